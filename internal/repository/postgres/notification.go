package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/studybuddy/internal/models"
)

type NotificationStore struct {
	pool Pool
}

func NewNotificationStore(pool Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

const notificationColumns = `id, user_id, sender_id, community_id, community_creator_id, request_id, type, message, read, created_at`

func scanNotification(row pgx.Row, n *models.Notification) error {
	return row.Scan(
		&n.ID,
		&n.UserID,
		&n.SenderID,
		&n.CommunityID,
		&n.CommunityCreatorID,
		&n.RequestID,
		&n.Type,
		&n.Message,
		&n.Read,
		&n.Timestamp,
	)
}

func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) (*models.Notification, bool, error) {
	// Two partial unique indexes back the dedup:
	//   - (request_id, type) for approvals/rejections, so a retried approve
	//     cannot emit a second approval for the same request;
	//   - (community_id, sender_id) over unread join_requests.
	// ON CONFLICT DO NOTHING with no target covers both; when nothing is
	// inserted we return the row that won.
	query := `
		INSERT INTO notifications (user_id, sender_id, community_id, community_creator_id, request_id, type, message, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
		RETURNING ` + notificationColumns

	db := conn(ctx, s.pool)

	var out models.Notification
	err := scanNotification(db.QueryRow(ctx, query,
		n.UserID, n.SenderID, n.CommunityID, n.CommunityCreatorID, n.RequestID, n.Type, n.Message, n.Read,
	), &out)
	if err == nil {
		return &out, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert notification: %w", err)
	}

	existing, err := s.findDuplicate(ctx, n)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *NotificationStore) findDuplicate(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	var (
		query string
		args  []any
	)
	if n.RequestID != nil {
		query = `SELECT ` + notificationColumns + ` FROM notifications WHERE request_id = $1 AND type = $2`
		args = []any{*n.RequestID, n.Type}
	} else {
		query = `SELECT ` + notificationColumns + ` FROM notifications
			WHERE community_id = $1 AND sender_id = $2 AND type = $3 AND NOT read`
		args = []any{n.CommunityID, n.SenderID, n.Type}
	}

	var out models.Notification
	if err := scanNotification(conn(ctx, s.pool).QueryRow(ctx, query, args...), &out); err != nil {
		return nil, fmt.Errorf("find duplicate notification: %w", err)
	}
	return &out, nil
}

func (s *NotificationStore) GetByID(ctx context.Context, notificationID uuid.UUID) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	var n models.Notification
	if err := scanNotification(conn(ctx, s.pool).QueryRow(ctx, query, notificationID), &n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, notificationID uuid.UUID) error {
	if _, err := conn(ctx, s.pool).Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, notificationID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *NotificationStore) Delete(ctx context.Context, notificationID uuid.UUID) error {
	if _, err := conn(ctx, s.pool).Exec(ctx, `DELETE FROM notifications WHERE id = $1`, notificationID); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// Both feeds order by created_at DESC and fall back to id for equal
// timestamps, so the order is stable across polls.

func (s *NotificationStore) ListPending(ctx context.Context, creatorID uuid.UUID) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE community_creator_id = $1 AND type = 'join_request' AND NOT read
		ORDER BY created_at DESC, id`
	return s.list(ctx, query, creatorID)
}

func (s *NotificationStore) ListForRequester(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE (user_id = $1 AND type <> 'join_request')
		   OR (sender_id = $1 AND type = 'join_request')
		ORDER BY created_at DESC, id`
	return s.list(ctx, query, userID)
}

func (s *NotificationStore) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE request_id = $1
		ORDER BY created_at DESC, id`
	return s.list(ctx, query, requestID)
}

func (s *NotificationStore) list(ctx context.Context, query string, arg any) ([]models.Notification, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

func (s *NotificationStore) DeleteByCommunity(ctx context.Context, communityID uuid.UUID) (int64, error) {
	tag, err := conn(ctx, s.pool).Exec(ctx, `DELETE FROM notifications WHERE community_id = $1`, communityID)
	if err != nil {
		return 0, fmt.Errorf("delete community notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
