package fn

import "sync"

// Join2 runs two functions concurrently and returns both results once both finish.
func Join2[A, B any](fa func() A, fb func() B) (A, B) {
	var (
		a  A
		b  B
		wg sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		a = fa()
	}()
	go func() {
		defer wg.Done()
		b = fb()
	}()
	wg.Wait()
	return a, b
}

