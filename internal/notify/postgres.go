package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// PostgresInbox stores notifications in the notifications table.
type PostgresInbox struct {
	pool *pgxpool.Pool
}

// NewPostgresInbox constructs an inbox over pool.
func NewPostgresInbox(pool *pgxpool.Pool) *PostgresInbox {
	return &PostgresInbox{pool: pool}
}

// Dispatch inserts n.
func (p *PostgresInbox) Dispatch(ctx context.Context, n model.Notification) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, transfer_id, type, title, body, link, read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, n.ID, n.UserID, n.TransferID, n.Type, n.Title, n.Body, n.Link, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns the user's notifications, newest first.
func (p *PostgresInbox) List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, user_id, transfer_id, type, title, body, link, read, created_at
		FROM notifications
		WHERE user_id=$1 AND (NOT $2 OR NOT read)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.TransferID, &n.Type, &n.Title, &n.Body, &n.Link, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags one notification as read.
func (p *PostgresInbox) MarkRead(ctx context.Context, userID int64, id string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFoundf("notification %s not found", id)
	}
	return nil
}

// MarkAllRead flags every unread notification of the user.
func (p *PostgresInbox) MarkAllRead(ctx context.Context, userID int64) (int, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE notifications SET read=TRUE WHERE user_id=$1 AND NOT read`, userID)
	if err != nil {
		return 0, fmt.Errorf("update notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Delete removes one notification.
func (p *PostgresInbox) Delete(ctx context.Context, userID int64, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM notifications WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFoundf("notification %s not found", id)
	}
	return nil
}
