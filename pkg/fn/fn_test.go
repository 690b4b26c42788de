package fn_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutetimely/leavetime/pkg/fn"
)

func TestResult_FromPair(t *testing.T) {
	ok := fn.FromPair(42, nil)
	assert.True(t, ok.IsOk())
	assert.NoError(t, ok.Error())
	assert.Equal(t, 42, ok.UnwrapOr(0))

	boom := errors.New("boom")
	failed := fn.FromPair(42, boom)
	assert.True(t, failed.IsErr())
	assert.ErrorIs(t, failed.Error(), boom)
	assert.Equal(t, 7, failed.UnwrapOr(7))
}

func TestResult_UnwrapOrElse(t *testing.T) {
	var seen error
	r := fn.Errf[string]("adapter %s failed", "route")
	v := r.UnwrapOrElse(func(err error) string {
		seen = err
		return "fallback"
	})

	assert.Equal(t, "fallback", v)
	require.Error(t, seen)
	assert.Equal(t, "adapter route failed", seen.Error())

	assert.Equal(t, "live", fn.Ok("live").UnwrapOrElse(func(error) string { return "fallback" }))
}

func TestResult_Map(t *testing.T) {
	double := func(v int) int { return v * 2 }
	assert.Equal(t, 4, fn.Ok(2).Map(double).UnwrapOr(0))
	assert.True(t, fn.Err[int](errors.New("x")).Map(double).IsErr())

	s := fn.MapResult(fn.Ok(3), func(v int) string { return "n=" + string(rune('0'+v)) })
	got, err := s.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "n=3", got)
}

func TestJoin2_RunsConcurrently(t *testing.T) {
	// Each side waits for the other to start, so a serial implementation would deadlock.
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})
	done := make(chan struct{})

	var (
		a int
		b string
	)
	go func() {
		defer close(done)
		a, b = fn.Join2(
			func() int { close(aStarted); <-bStarted; return 1 },
			func() string { close(bStarted); <-aStarted; return "two" },
		)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Join2 did not run both functions concurrently")
	}
	assert.Equal(t, 1, a)
	assert.Equal(t, "two", b)
}
