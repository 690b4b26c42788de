package notification

import (
	"context"
	"sort"
	"sync"
)

// MemoryCenter is an in-memory Center.
type MemoryCenter struct {
	mu      sync.Mutex
	pending map[string]Request
}

// NewMemoryCenter creates an empty in-memory center.
func NewMemoryCenter() *MemoryCenter {
	return &MemoryCenter{pending: make(map[string]Request)}
}

// Add stores a notification, replacing any with the same id.
func (c *MemoryCenter) Add(_ context.Context, req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[req.ID] = req
	return nil
}

// Remove deletes the given ids.
func (c *MemoryCenter) Remove(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		delete(c.pending, id)
	}
	return nil
}

// Ack removes req if the stored entry was not replaced since it was read.
func (c *MemoryCenter) Ack(_ context.Context, req Request) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.pending[req.ID]
	if !ok || !sameEntry(cur, req) {
		return false, nil
	}
	delete(c.pending, req.ID)
	return true, nil
}

func sameEntry(a, b Request) bool {
	return a.FireAt.Equal(b.FireAt) && a.LeaveTime.Equal(b.LeaveTime)
}

// Pending lists every stored notification ordered by fire time.
func (c *MemoryCenter) Pending(_ context.Context) ([]Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Request, 0, len(c.pending))
	for _, req := range c.pending {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out, nil
}

var _ Center = (*MemoryCenter)(nil)
