package trip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/routing"
)

const tripColumns = `
	id, user_id, label,
	origin_lat, origin_lon, origin_address, origin_name,
	destination_lat, destination_lon, destination_address, destination_name,
	arrival_time, time_zone, buffer_minutes, repeat_days, active, last_route,
	created_at, updated_at`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL trip repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a trip by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// GetByUserAndID retrieves a trip by user ID and trip ID.
func (r *PostgresRepository) GetByUserAndID(ctx context.Context, userID, tripID string) (*Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1 AND user_id = $2`
	return r.scanOne(ctx, query, tripID, userID)
}

// List retrieves all trips for a user with pagination.
func (r *PostgresRepository) List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	var (
		rows pgx.Rows
		err  error
	)
	if opts.Cursor == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT `+tripColumns+`
			FROM trips
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, userID, fetchLimit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+tripColumns+`
			FROM trips
			WHERE user_id = $1
			  AND (created_at, id) < (SELECT created_at, id FROM trips WHERE id = $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, userID, fetchLimit, opts.Cursor)
	}
	if err != nil {
		return nil, err
	}

	trips, err := collect(rows)
	if err != nil {
		return nil, err
	}

	result := &ListResult{Items: trips}
	if len(trips) > limit {
		result.Items = trips[:limit]
		result.NextCursor = trips[limit-1].ID
	}
	return result, nil
}

// ListActive retrieves every active trip.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Trip, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tripColumns+` FROM trips WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListActiveByUser retrieves the active trips of one user.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*Trip, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tripColumns+` FROM trips WHERE active AND user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Create creates a new trip.
func (r *PostgresRepository) Create(ctx context.Context, t *Trip) error {
	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	args, err := tripArgs(t)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query, args...)
	return err
}

// Update updates an existing trip.
func (r *PostgresRepository) Update(ctx context.Context, t *Trip) error {
	query := `
		UPDATE trips SET
			label = $2,
			origin_lat = $3,
			origin_lon = $4,
			origin_address = $5,
			origin_name = $6,
			destination_lat = $7,
			destination_lon = $8,
			destination_address = $9,
			destination_name = $10,
			arrival_time = $11,
			time_zone = $12,
			buffer_minutes = $13,
			repeat_days = $14,
			active = $15,
			last_route = $16,
			updated_at = $17
		WHERE id = $1
	`

	args, err := tripArgs(t)
	if err != nil {
		return err
	}
	// Drop user_id and created_at, which never change.
	updateArgs := append([]any{args[0]}, args[2:17]...)
	updateArgs = append(updateArgs, args[18])

	result, err := r.pool.Exec(ctx, query, updateArgs...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}

// UpdateLastRoute stores the most recent route seen for a trip.
func (r *PostgresRepository) UpdateLastRoute(ctx context.Context, id string, route routing.RouteSnapshot) error {
	data, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("encoding last route: %w", err)
	}
	result, err := r.pool.Exec(ctx, `UPDATE trips SET last_route = $2 WHERE id = $1`, id, data)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}

// Delete deletes a trip by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM trips WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (*Trip, error) {
	t, err := scanTrip(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, err
	}
	return t, nil
}

func collect(rows pgx.Rows) ([]*Trip, error) {
	defer rows.Close()

	var trips []*Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trips, nil
}

// scanTrip scans one row selected with tripColumns.
func scanTrip(row pgx.Row) (*Trip, error) {
	var (
		t                      Trip
		originLat, originLon   *float64
		originAddr, originName *string
		destAddr, destName     *string
		buffer                 *int32
		repeatDays             []int32
		lastRoute              []byte
	)

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Label,
		&originLat,
		&originLon,
		&originAddr,
		&originName,
		&t.Destination.Lat,
		&t.Destination.Lon,
		&destAddr,
		&destName,
		&t.ArrivalTime,
		&t.TimeZone,
		&buffer,
		&repeatDays,
		&t.Active,
		&lastRoute,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if originLat != nil && originLon != nil {
		t.Origin = &geo.Location{
			Coordinate:  geo.Coordinate{Lat: *originLat, Lon: *originLon},
			Address:     deref(originAddr),
			DisplayName: deref(originName),
		}
	}
	t.Destination.Address = deref(destAddr)
	t.Destination.DisplayName = deref(destName)

	if buffer != nil {
		b := int(*buffer)
		t.BufferMinutes = &b
	}
	for _, d := range repeatDays {
		t.RepeatDays = append(t.RepeatDays, WeekdayFromISO(int(d)))
	}
	if len(lastRoute) > 0 {
		var route routing.RouteSnapshot
		if err := json.Unmarshal(lastRoute, &route); err != nil {
			return nil, fmt.Errorf("decoding last route of trip %s: %w", t.ID, err)
		}
		t.LastRoute = &route
	}

	t.ArrivalTime = t.ArrivalTime.UTC()
	return &t, nil
}

// tripArgs returns the values of t in tripColumns order.
func tripArgs(t *Trip) ([]any, error) {
	var (
		originLat, originLon   *float64
		originAddr, originName *string
		buffer                 *int32
		lastRoute              []byte
	)
	if t.Origin != nil {
		originLat, originLon = &t.Origin.Lat, &t.Origin.Lon
		originAddr, originName = nullable(t.Origin.Address), nullable(t.Origin.DisplayName)
	}
	if t.BufferMinutes != nil {
		b := int32(*t.BufferMinutes)
		buffer = &b
	}
	if t.LastRoute != nil {
		data, err := json.Marshal(t.LastRoute)
		if err != nil {
			return nil, fmt.Errorf("encoding last route: %w", err)
		}
		lastRoute = data
	}

	repeatDays := make([]int32, 0, len(t.RepeatDays))
	for _, d := range t.RepeatDays {
		repeatDays = append(repeatDays, int32(ISOFromWeekday(d)))
	}

	return []any{
		t.ID,
		t.UserID,
		t.Label,
		originLat,
		originLon,
		originAddr,
		originName,
		t.Destination.Lat,
		t.Destination.Lon,
		nullable(t.Destination.Address),
		nullable(t.Destination.DisplayName),
		t.ArrivalTime.UTC(),
		t.TimeZone,
		buffer,
		repeatDays,
		t.Active,
		lastRoute,
		t.CreatedAt,
		t.UpdatedAt,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
