package preference

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL preference repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves the preferences of a user.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*Preferences, error) {
	query := `
		SELECT user_id, default_buffer_minutes, leave_notifications_enabled, updated_at
		FROM user_preferences
		WHERE user_id = $1
	`

	var p Preferences
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.DefaultBufferMinutes,
		&p.LeaveNotificationsEnabled,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPreferencesNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Upsert creates or replaces the preferences of a user.
func (r *PostgresRepository) Upsert(ctx context.Context, p *Preferences) error {
	query := `
		INSERT INTO user_preferences (user_id, default_buffer_minutes, leave_notifications_enabled, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			default_buffer_minutes = EXCLUDED.default_buffer_minutes,
			leave_notifications_enabled = EXCLUDED.leave_notifications_enabled,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query, p.UserID, p.DefaultBufferMinutes, p.LeaveNotificationsEnabled, p.UpdatedAt)
	return err
}

// Delete removes the preferences of a user.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_preferences WHERE user_id = $1`, userID)
	return err
}

var _ Repository = (*PostgresRepository)(nil)
