package trip_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutetimely/leavetime/internal/api/models"
	"github.com/commutetimely/leavetime/internal/routing"
	"github.com/commutetimely/leavetime/internal/trip"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changed []string
	deleted []string
	err     error
}

func (p *recordingPublisher) TripChanged(_ context.Context, tripID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, tripID)
	return p.err
}

func (p *recordingPublisher) TripDeleted(_ context.Context, tripID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, tripID)
	return p.err
}

var fixedNow = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC) // Monday

func newService(pub trip.EventPublisher) (*trip.Service, *trip.InMemoryRepository) {
	repo := trip.NewInMemoryRepository()
	svc := trip.NewService(trip.ServiceConfig{
		Repository: repo,
		Publisher:  pub,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return fixedNow },
	})
	return svc, repo
}

func validCreate() *models.TripCreateRequest {
	return &models.TripCreateRequest{
		Label: "Office",
		Destination: models.TripLocation{
			Point:   models.Point{Lat: 37.7749, Lon: -122.4194},
			Address: "1 Market St",
		},
		ArrivalTime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestService_Create(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newService(pub)

	input := validCreate()
	input.RepeatDays = []int{5, 1, 3}

	created, err := svc.Create(context.Background(), "usr_1", input)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.ID, "trp_"))
	assert.Equal(t, "usr_1", created.UserID)
	assert.Equal(t, trip.DefaultTimeZone, created.TimeZone)
	assert.True(t, created.Active)
	assert.Nil(t, created.Origin)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, created.RepeatDays)
	assert.Equal(t, []string{created.ID}, pub.changed)
}

func TestService_Create_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.TripCreateRequest)
		wantField string
	}{
		{"empty label", func(r *models.TripCreateRequest) { r.Label = "" }, "label"},
		{"label too long", func(r *models.TripCreateRequest) { r.Label = strings.Repeat("a", 81) }, "label"},
		{"bad destination lat", func(r *models.TripCreateRequest) { r.Destination.Point.Lat = 91 }, "destination.point.lat"},
		{"bad origin lon", func(r *models.TripCreateRequest) {
			r.Origin = &models.TripLocation{Point: models.Point{Lat: 0, Lon: 181}}
		}, "origin.point.lon"},
		{"missing arrival", func(r *models.TripCreateRequest) { r.ArrivalTime = time.Time{} }, "arrivalTime"},
		{"unknown zone", func(r *models.TripCreateRequest) { r.TimeZone = "Mars/Olympus" }, "timeZone"},
		{"negative buffer", func(r *models.TripCreateRequest) { b := -1; r.BufferMinutes = &b }, "bufferMinutes"},
		{"huge buffer", func(r *models.TripCreateRequest) { b := 181; r.BufferMinutes = &b }, "bufferMinutes"},
		{"repeat day zero", func(r *models.TripCreateRequest) { r.RepeatDays = []int{0} }, "repeatDays"},
		{"repeat day duplicate", func(r *models.TripCreateRequest) { r.RepeatDays = []int{2, 2} }, "repeatDays"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			svc, _ := newService(pub)

			input := validCreate()
			tt.mutate(input)

			_, err := svc.Create(context.Background(), "usr_1", input)
			require.Error(t, err)
			assert.True(t, trip.IsValidation(err))

			var ve *trip.ValidationError
			require.True(t, errors.As(err, &ve))
			fields := make([]string, 0, len(ve.Errors))
			for _, fe := range ve.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.wantField)
			assert.Empty(t, pub.changed)
		})
	}
}

func TestService_Update(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newService(pub)
	ctx := context.Background()

	input := validCreate()
	input.Origin = &models.TripLocation{Point: models.Point{Lat: 37.8, Lon: -122.27}}
	created, err := svc.Create(ctx, "usr_1", input)
	require.NoError(t, err)

	label := "Gym"
	buffer := 20
	days := []int{6, 7}
	active := false
	updated, err := svc.Update(ctx, "usr_1", created.ID, &models.TripUpdateRequest{
		Label:         &label,
		ClearOrigin:   true,
		BufferMinutes: &buffer,
		RepeatDays:    &days,
		Active:        &active,
	})
	require.NoError(t, err)

	assert.Equal(t, "Gym", updated.Label)
	assert.Nil(t, updated.Origin)
	require.NotNil(t, updated.BufferMinutes)
	assert.Equal(t, 20, *updated.BufferMinutes)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Saturday}, updated.RepeatDays)
	assert.False(t, updated.Active)
	assert.Len(t, pub.changed, 2)
}

func TestService_Update_OtherUser(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "usr_1", validCreate())
	require.NoError(t, err)

	label := "Stolen"
	_, err = svc.Update(ctx, "usr_2", created.ID, &models.TripUpdateRequest{Label: &label})
	assert.ErrorIs(t, err, trip.ErrTripNotFound)
}

func TestService_Update_OriginConflictsWithClear(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "usr_1", validCreate())
	require.NoError(t, err)

	_, err = svc.Update(ctx, "usr_1", created.ID, &models.TripUpdateRequest{
		Origin:      &models.TripLocation{Point: models.Point{Lat: 1, Lon: 1}},
		ClearOrigin: true,
	})
	assert.True(t, trip.IsValidation(err))
}

func TestService_Delete(t *testing.T) {
	pub := &recordingPublisher{}
	svc, repo := newService(pub)
	ctx := context.Background()

	created, err := svc.Create(ctx, "usr_1", validCreate())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "usr_1", created.ID))
	assert.Equal(t, []string{created.ID}, pub.deleted)

	_, err = repo.Get(ctx, created.ID)
	assert.ErrorIs(t, err, trip.ErrTripNotFound)

	err = svc.Delete(ctx, "usr_1", created.ID)
	assert.ErrorIs(t, err, trip.ErrTripNotFound)
}

func TestService_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	svc, repo := newService(pub)
	ctx := context.Background()

	created, err := svc.Create(ctx, "usr_1", validCreate())
	require.NoError(t, err)

	stored, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Office", stored.Label)
}

func TestService_List(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	for range 3 {
		_, err := svc.Create(ctx, "usr_1", validCreate())
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "usr_2", validCreate())
	require.NoError(t, err)

	page, err := svc.List(ctx, "usr_1", 2, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	require.NotNil(t, page.Meta.NextCursor)

	rest, err := svc.List(ctx, "usr_1", 2, *page.Meta.NextCursor)
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)
	assert.Nil(t, rest.Meta.NextCursor)
}

func TestService_RecordRoute(t *testing.T) {
	svc, repo := newService(nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "usr_1", validCreate())
	require.NoError(t, err)

	route := routing.RouteSnapshot{DistanceMeters: 12000, BaselineDurationSeconds: 1500}
	require.NoError(t, svc.RecordRoute(ctx, created.ID, route))

	stored, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastRoute)
	assert.InDelta(t, 12000.0, stored.LastRoute.DistanceMeters, 0.001)

	err = svc.RecordRoute(ctx, "trp_missing", route)
	assert.ErrorIs(t, err, trip.ErrTripNotFound)
}

func TestToAPITrip_NextArrival(t *testing.T) {
	tr := &trip.Trip{
		ID:          "trp_1",
		Label:       "Office",
		ArrivalTime: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		TimeZone:    "UTC",
		RepeatDays:  []time.Weekday{time.Tuesday},
		Active:      true,
	}

	out := trip.ToAPITrip(tr, fixedNow)
	require.NotNil(t, out.NextArrival)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), out.NextArrival.Time())
	assert.Equal(t, []int{2}, out.RepeatDays)

	tr.Active = false
	assert.Nil(t, trip.ToAPITrip(tr, fixedNow).NextArrival)
}
