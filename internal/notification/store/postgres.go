package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"reyu/internal/notification/models"
	id "reyu/pkg/domain"
	"reyu/pkg/platform/sentinel"
	txcontext "reyu/pkg/platform/tx"
)

// PostgresStore persists notifications. The (event_id, user_id) unique key
// makes redelivered events a no-op.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const notificationColumns = `id, user_id, type, title, message, linked_entity_id,
	linked_entity_type, event_id, is_read, created_at`

func (s *PostgresStore) Save(ctx context.Context, n *models.Notification) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id, user_id) DO NOTHING`,
		n.ID.String(), n.UserID.String(), n.Type, n.Title, n.Message,
		n.LinkedEntityID, n.LinkedEntityType, n.EventID, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID, unreadOnly bool) ([]*models.Notification, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC`, userID.String(), unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, notificationID.String(), userID.String())
	return scanNotification(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (*models.Notification, error) {
	var (
		n              models.Notification
		rawID, rawUser string
	)
	err := row.Scan(&rawID, &rawUser, &n.Type, &n.Title, &n.Message, &n.LinkedEntityID,
		&n.LinkedEntityType, &n.EventID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	nid, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse notification id: %w", err)
	}
	uid, err := uuid.Parse(rawUser)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	n.ID, n.UserID = id.NotificationID(nid), id.UserID(uid)
	return &n, nil
}
