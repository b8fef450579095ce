package domain

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teemates/realtime/errors"
)

// SQLiteNotifications wraps a Repository and overrides the in-app
// notification operations with SQLite-backed persistence. The realtime
// service owns the notifications table; every other read still goes to
// the wrapped repository, which fronts the marketplace data.
type SQLiteNotifications struct {
	Repository
	db *sql.DB
}

// NewSQLiteNotifications wraps base with SQLite notification storage
func NewSQLiteNotifications(base Repository, db *sql.DB) *SQLiteNotifications {
	return &SQLiteNotifications{Repository: base, db: db}
}

func (s *SQLiteNotifications) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		return errors.New("notification ID must not be empty")
	}

	data := sql.NullString{String: string(n.Data), Valid: len(n.Data) > 0}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, body, data, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.Kind, n.Title, n.Body, data, n.Read, n.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create notification")
	}
	return nil
}

func (s *SQLiteNotifications) ListNotifications(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, title, body, data, read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		var data sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &data, &n.Read, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan notification")
		}
		if data.Valid {
			n.Data = json.RawMessage(data.String)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating notifications")
	}
	return out, nil
}

func (s *SQLiteNotifications) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE read = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete read notifications")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted notifications")
	}
	return int(n), nil
}
