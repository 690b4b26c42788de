package notification

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCenter stores pending notifications in the scheduled_notifications
// table so they survive worker restarts.
type PostgresCenter struct {
	pool *pgxpool.Pool
}

// NewPostgresCenter creates a new PostgreSQL center.
func NewPostgresCenter(pool *pgxpool.Pool) *PostgresCenter {
	return &PostgresCenter{pool: pool}
}

// Add upserts a notification by id.
func (c *PostgresCenter) Add(ctx context.Context, req Request) error {
	query := `
		INSERT INTO scheduled_notifications (id, trip_id, user_id, kind, title, body, fire_at, leave_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			trip_id = EXCLUDED.trip_id,
			user_id = EXCLUDED.user_id,
			kind = EXCLUDED.kind,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			fire_at = EXCLUDED.fire_at,
			leave_time = EXCLUDED.leave_time
	`

	_, err := c.pool.Exec(ctx, query,
		req.ID, req.TripID, req.UserID, string(req.Kind), req.Title, req.Body, req.FireAt, req.LeaveTime)
	if err != nil {
		return fmt.Errorf("adding notification %s: %w", req.ID, err)
	}
	return nil
}

// Remove deletes the given ids.
func (c *PostgresCenter) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.pool.Exec(ctx, `DELETE FROM scheduled_notifications WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("removing notifications: %w", err)
	}
	return nil
}

// Ack deletes req only while its row still holds the times that were sent.
func (c *PostgresCenter) Ack(ctx context.Context, req Request) (bool, error) {
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM scheduled_notifications WHERE id = $1 AND fire_at = $2 AND leave_time = $3`,
		req.ID, req.FireAt, req.LeaveTime)
	if err != nil {
		return false, fmt.Errorf("acknowledging notification %s: %w", req.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Pending lists every stored notification ordered by fire time.
func (c *PostgresCenter) Pending(ctx context.Context) ([]Request, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, trip_id, user_id, kind, title, body, fire_at, leave_time
		FROM scheduled_notifications
		ORDER BY fire_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Request, error) {
		var (
			req  Request
			kind string
		)
		err := row.Scan(&req.ID, &req.TripID, &req.UserID, &kind, &req.Title, &req.Body, &req.FireAt, &req.LeaveTime)
		req.Kind = Kind(kind)
		return req, err
	})
}

var _ Center = (*PostgresCenter)(nil)
