package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/notification"
	"github.com/commutetimely/leavetime/internal/prediction"
	"github.com/commutetimely/leavetime/internal/trip"
)

var now = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func newManager(center notification.Center) *notification.Manager {
	return notification.NewManager(notification.ManagerConfig{
		Center: center,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return now },
	})
}

func recAt(leave time.Time) prediction.Recommendation {
	return prediction.Recommendation{
		Prediction: prediction.Prediction{
			LeaveTime:   leave,
			Explanation: "28 min travel, moderate traffic, 10 min buffer",
		},
	}
}

func pendingIDs(t *testing.T, c notification.Center) []string {
	t.Helper()
	pending, err := c.Pending(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestIDs_AreDeterministic(t *testing.T) {
	assert.Equal(t, "leave.trp_1.main", notification.MainID("trp_1"))
	assert.Equal(t, "leave.trp_1.reminder15", notification.ReminderID("trp_1", 15*time.Minute))
	assert.Equal(t, "leave.trp_1.reminder5", notification.ReminderID("trp_1", 5*time.Minute))
	assert.Equal(t,
		[]string{"leave.trp_1.main", "leave.trp_1.reminder15", "leave.trp_1.reminder5"},
		notification.IDsFor("trp_1", notification.DefaultReminderOffsets))
	assert.True(t, notification.Managed("leave.x.main"))
	assert.False(t, notification.Managed("promo.x"))
}

func TestManager_Schedule(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	tr := &trip.Trip{ID: "trp_1", UserID: "usr_1", Label: "Office"}

	set, err := m.Schedule(context.Background(), tr, recAt(now.Add(time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, []string{"leave.trp_1.main", "leave.trp_1.reminder15", "leave.trp_1.reminder5"}, set.IDs)
	assert.Equal(t, []string{"leave.trp_1.reminder15", "leave.trp_1.reminder5", "leave.trp_1.main"}, pendingIDs(t, center))

	pending, err := center.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Leave in 15 min for Office", pending[0].Title)
	assert.Equal(t, now.Add(45*time.Minute), pending[0].FireAt)
	assert.Equal(t, "Time to leave for Office", pending[2].Title)

	live, ok := m.Scheduled("trp_1")
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour), live.LeaveTime)
}

func TestManager_Schedule_SkipsPastReminders(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	tr := &trip.Trip{ID: "trp_1", UserID: "usr_1"}

	set, err := m.Schedule(context.Background(), tr, recAt(now.Add(10*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []string{"leave.trp_1.main", "leave.trp_1.reminder5"}, set.IDs)
}

func TestManager_Schedule_PastLeaveTimeFiresNow(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	tr := &trip.Trip{ID: "trp_1", UserID: "usr_1", Label: "Gym"}

	set, err := m.Schedule(context.Background(), tr, recAt(now.Add(-3*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []string{"leave.trp_1.main"}, set.IDs)

	pending, err := center.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, now, pending[0].FireAt)
	assert.Equal(t, "Leave now for Gym", pending[0].Title)
}

func TestManager_RescheduleReplacesSet(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	tr := &trip.Trip{ID: "trp_1", UserID: "usr_1"}
	ctx := context.Background()

	_, err := m.Schedule(ctx, tr, recAt(now.Add(time.Hour)))
	require.NoError(t, err)
	_, err = m.Schedule(ctx, tr, recAt(now.Add(8*time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, []string{"leave.trp_1.reminder5", "leave.trp_1.main"}, pendingIDs(t, center))
}

func TestManager_ScheduleThenCancelLeavesNothing(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	ctx := context.Background()

	for _, id := range []string{"trp_1", "trp_2"} {
		_, err := m.Schedule(ctx, &trip.Trip{ID: id, UserID: "usr_1"}, recAt(now.Add(time.Hour)))
		require.NoError(t, err)
	}

	require.NoError(t, m.Cancel(ctx, "trp_1"))
	require.NoError(t, m.Cancel(ctx, "trp_1"))
	_, ok := m.Scheduled("trp_1")
	assert.False(t, ok)

	for _, id := range pendingIDs(t, center) {
		assert.NotContains(t, id, "trp_1")
	}
	assert.Len(t, pendingIDs(t, center), 3)
}

func TestManager_CancelUser(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	ctx := context.Background()

	_, err := m.Schedule(ctx, &trip.Trip{ID: "trp_1", UserID: "usr_1"}, recAt(now.Add(time.Hour)))
	require.NoError(t, err)
	_, err = m.Schedule(ctx, &trip.Trip{ID: "trp_2", UserID: "usr_2"}, recAt(now.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, m.CancelUser(ctx, "usr_1"))

	_, ok := m.Scheduled("trp_1")
	assert.False(t, ok)
	_, ok = m.Scheduled("trp_2")
	assert.True(t, ok)
	assert.Len(t, pendingIDs(t, center), 3)
}

func TestManager_CancelAll_KeepsForeignNotifications(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	ctx := context.Background()

	require.NoError(t, center.Add(ctx, notification.Request{ID: "promo.spring", FireAt: now}))
	_, err := m.Schedule(ctx, &trip.Trip{ID: "trp_1", UserID: "usr_1"}, recAt(now.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, m.CancelAll(ctx))
	assert.Equal(t, []string{"promo.spring"}, pendingIDs(t, center))
}

func TestManager_Load(t *testing.T) {
	center := notification.NewMemoryCenter()
	ctx := context.Background()

	first := newManager(center)
	_, err := first.Schedule(ctx, &trip.Trip{ID: "trp_1", UserID: "usr_1"}, recAt(now.Add(time.Hour)))
	require.NoError(t, err)

	restarted := newManager(center)
	require.NoError(t, restarted.Load(ctx))

	set, ok := restarted.Scheduled("trp_1")
	require.True(t, ok)
	assert.Len(t, set.IDs, 3)
	assert.Equal(t, now.Add(time.Hour), set.LeaveTime)
}

type failingCenter struct {
	*notification.MemoryCenter
	mu     sync.Mutex
	failOn string
}

func (c *failingCenter) Add(ctx context.Context, req notification.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.ID == c.failOn {
		return errors.New("center full")
	}
	return c.MemoryCenter.Add(ctx, req)
}

func TestManager_Schedule_FailureRollsBack(t *testing.T) {
	center := &failingCenter{MemoryCenter: notification.NewMemoryCenter(), failOn: "leave.trp_1.reminder5"}
	m := newManager(center)

	_, err := m.Schedule(context.Background(), &trip.Trip{ID: "trp_1", UserID: "usr_1"}, recAt(now.Add(time.Hour)))
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrSchedulingFailure)

	assert.Empty(t, pendingIDs(t, center))
	_, ok := m.Scheduled("trp_1")
	assert.False(t, ok)
}

func TestManager_PastDueLeaveAlertFiresOnce(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	tr := &trip.Trip{ID: "trp_1", UserID: "usr_1", Label: "Gym"}
	ctx := context.Background()

	_, err := m.Schedule(ctx, tr, recAt(now.Add(-3*time.Minute)))
	require.NoError(t, err)
	pending, err := center.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	acked, err := center.Ack(ctx, pending[0])
	require.NoError(t, err)
	require.True(t, acked)
	m.Delivered(pending[0])

	set, err := m.Schedule(ctx, tr, recAt(now.Add(-time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, set.IDs)
	assert.Empty(t, pendingIDs(t, center))
	_, ok := m.Scheduled("trp_1")
	assert.True(t, ok, "an emptied set is still live")

	set, err = m.Schedule(ctx, tr, recAt(now.Add(time.Hour)))
	require.NoError(t, err)
	assert.Len(t, set.IDs, 3)

	_, err = m.Schedule(ctx, tr, recAt(now.Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []string{"leave.trp_1.main"}, pendingIDs(t, center), "a future schedule re-arms the alert")
}

func TestManager_CancelForgetsDelivery(t *testing.T) {
	center := notification.NewMemoryCenter()
	m := newManager(center)
	tr := &trip.Trip{ID: "trp_1", UserID: "usr_1"}
	ctx := context.Background()

	m.Delivered(notification.Request{
		ID:        notification.MainID("trp_1"),
		TripID:    "trp_1",
		Kind:      notification.KindLeave,
		LeaveTime: now.Add(-5 * time.Minute),
	})
	require.NoError(t, m.Cancel(ctx, "trp_1"))

	set, err := m.Schedule(ctx, tr, recAt(now.Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []string{"leave.trp_1.main"}, set.IDs)
}
