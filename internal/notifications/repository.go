package notifications

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, userID, message string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, message)
		VALUES ($1, $2)
	`, userID, message)
	return err
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, user_id::text, message, sent_at, is_read
		FROM notifications
		WHERE user_id = $1
		ORDER BY sent_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.SentAt, &n.IsRead); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// MarkRead only flips rows owned by the caller.
func (r *Repository) MarkRead(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
