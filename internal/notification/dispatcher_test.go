package notification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutetimely/leavetime/internal/notification"
	"github.com/commutetimely/leavetime/internal/trip"
)

type recordingSender struct {
	sent []string
	fail map[string]bool
}

func (s *recordingSender) Send(_ context.Context, req notification.Request) error {
	if s.fail[req.ID] {
		return errors.New("push gateway down")
	}
	s.sent = append(s.sent, req.ID)
	return nil
}

func seed(t *testing.T, c notification.Center, reqs ...notification.Request) {
	t.Helper()
	for _, r := range reqs {
		require.NoError(t, c.Add(context.Background(), r))
	}
}

func TestDispatcher_DispatchDue(t *testing.T) {
	center := notification.NewMemoryCenter()
	seed(t, center,
		notification.Request{ID: "leave.a.main", FireAt: now.Add(-time.Minute)},
		notification.Request{ID: "leave.b.main", FireAt: now},
		notification.Request{ID: "leave.c.main", FireAt: now.Add(time.Minute)},
	)
	sender := &recordingSender{}
	d := notification.NewDispatcher(notification.DispatcherConfig{
		Center: center,
		Sender: sender,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return now },
	})

	n, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"leave.a.main", "leave.b.main"}, sender.sent)
	assert.Equal(t, []string{"leave.c.main"}, pendingIDs(t, center))
}

func TestDispatcher_FailedSendIsRetained(t *testing.T) {
	center := notification.NewMemoryCenter()
	seed(t, center,
		notification.Request{ID: "leave.a.main", FireAt: now.Add(-time.Minute)},
		notification.Request{ID: "leave.b.main", FireAt: now.Add(-time.Minute)},
	)
	sender := &recordingSender{fail: map[string]bool{"leave.a.main": true}}
	d := notification.NewDispatcher(notification.DispatcherConfig{
		Center: center,
		Sender: sender,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return now },
	})

	n, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"leave.a.main"}, pendingIDs(t, center))
}

func TestDispatcher_Paused(t *testing.T) {
	center := notification.NewMemoryCenter()
	seed(t, center, notification.Request{ID: "leave.a.main", FireAt: now.Add(-time.Minute)})
	sender := &recordingSender{}
	d := notification.NewDispatcher(notification.DispatcherConfig{
		Center: center,
		Sender: sender,
		Paused: func(context.Context) bool { return true },
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return now },
	})

	n, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sender.sent)
	assert.Len(t, pendingIDs(t, center), 1)
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	center := notification.NewMemoryCenter()
	seed(t, center, notification.Request{ID: "leave.a.main", FireAt: time.Now().Add(-time.Minute)})
	sender := &recordingSender{}
	d := notification.NewDispatcher(notification.DispatcherConfig{
		Center:   center,
		Sender:   sender,
		Interval: 10 * time.Millisecond,
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		pending, _ := center.Pending(context.Background())
		return len(pending) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

type hookSender struct {
	onSend func(req notification.Request)
	sent   []string
}

func (s *hookSender) Send(_ context.Context, req notification.Request) error {
	if s.onSend != nil {
		s.onSend(req)
	}
	s.sent = append(s.sent, req.ID)
	return nil
}

func TestDispatcher_KeepsEntryRescheduledDuringSend(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	tr := &trip.Trip{ID: "trp_1", UserID: "usr_1"}
	ctx := context.Background()

	_, err := m.Schedule(ctx, tr, recAt(now.Add(-3*time.Minute)))
	require.NoError(t, err)

	sender := &hookSender{onSend: func(notification.Request) {
		_, err := m.Schedule(ctx, tr, recAt(now.Add(time.Hour)))
		require.NoError(t, err)
	}}
	var delivered []string
	d := notification.NewDispatcher(notification.DispatcherConfig{
		Center:      center,
		Sender:      sender,
		OnDelivered: func(req notification.Request) { delivered = append(delivered, req.ID) },
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return now },
	})

	n, err := d.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, delivered, "the acked entry was replaced")

	set, ok := m.Scheduled("trp_1")
	require.True(t, ok)
	assert.ElementsMatch(t, set.IDs, pendingIDs(t, center))
	assert.Contains(t, pendingIDs(t, center), "leave.trp_1.main")

	pending, err := center.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), pending[len(pending)-1].FireAt)
}

func TestDispatcher_DeliveredShrinksLiveSet(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	ctx := context.Background()

	_, err := m.Schedule(ctx, &trip.Trip{ID: "trp_1", UserID: "usr_1"}, recAt(now.Add(10*time.Minute)))
	require.NoError(t, err)

	d := notification.NewDispatcher(notification.DispatcherConfig{
		Center:      center,
		Sender:      &recordingSender{},
		OnDelivered: m.Delivered,
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return now.Add(6 * time.Minute) },
	})

	n, err := d.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	set, ok := m.Scheduled("trp_1")
	require.True(t, ok)
	assert.Equal(t, []string{"leave.trp_1.main"}, set.IDs)
	assert.Equal(t, set.IDs, pendingIDs(t, center))
}

func TestMemoryCenter_AckIgnoresReplacedEntry(t *testing.T) {
	center := notification.NewMemoryCenter()
	ctx := context.Background()
	first := notification.Request{ID: "leave.a.main", FireAt: now, LeaveTime: now}
	seed(t, center, first)

	replaced := first
	replaced.FireAt = now.Add(time.Hour)
	replaced.LeaveTime = now.Add(time.Hour)
	seed(t, center, replaced)

	acked, err := center.Ack(ctx, first)
	require.NoError(t, err)
	assert.False(t, acked)
	assert.Len(t, pendingIDs(t, center), 1)

	acked, err = center.Ack(ctx, replaced)
	require.NoError(t, err)
	assert.True(t, acked)
	assert.Empty(t, pendingIDs(t, center))
}
