package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/studybuddy/internal/models"
)

type MessageStore struct {
	pool Pool
}

func NewMessageStore(pool Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageSelect = `
		SELECT m.id, m.room_id, m.sender_id, m.sender_name, m.content, m.created_at,
		       COALESCE((SELECT array_agg(l.user_id) FROM message_likes l WHERE l.message_id = m.id), '{}')
		FROM messages m`

func scanMessage(row pgx.Row, msg *models.Message) error {
	return row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.Content,
		&msg.CreatedAt,
		&msg.Likes,
	)
}

func (s *MessageStore) Create(ctx context.Context, roomID, senderID uuid.UUID, senderName, content string) (*models.Message, error) {
	// Messages use bigserial, so we don't pass an ID. RETURNING gives it back.
	query := `
		INSERT INTO messages (room_id, sender_id, sender_name, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, room_id, sender_id, sender_name, content, created_at`

	var msg models.Message
	err := conn(ctx, s.pool).QueryRow(ctx, query, roomID, senderID, senderName, content).Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	msg.Likes = make([]uuid.UUID, 0)
	return &msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	var msg models.Message
	if err := scanMessage(conn(ctx, s.pool).QueryRow(ctx, messageSelect+` WHERE m.id = $1`, messageID), &msg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) ListByRoom(ctx context.Context, roomID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	// Cursor-based pagination:
	//
	// before=0  → first page (newest messages).
	// before=42 → messages older than ID 42.
	//
	// The page is selected newest-first so LIMIT keeps the right end of the
	// window, then flipped so the chat reads top to bottom.
	var query string
	var args []any

	if before > 0 {
		query = messageSelect + `
			WHERE m.room_id = $1 AND m.id < $2
			ORDER BY m.id DESC
			LIMIT $3`
		args = []any{roomID, before, limit}
	} else {
		query = messageSelect + `
			WHERE m.room_id = $1
			ORDER BY m.id DESC
			LIMIT $2`
		args = []any{roomID, limit}
	}

	rows, err := conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *MessageStore) AddLike(ctx context.Context, messageID int64, userID uuid.UUID) (bool, error) {
	tag, err := conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO message_likes (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("add message like: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *MessageStore) RemoveLike(ctx context.Context, messageID int64, userID uuid.UUID) (bool, error) {
	tag, err := conn(ctx, s.pool).Exec(ctx, `DELETE FROM message_likes WHERE message_id = $1 AND user_id = $2`, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("remove message like: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *MessageStore) DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error) {
	db := conn(ctx, s.pool)
	_, err := db.Exec(ctx, `
		DELETE FROM message_likes
		WHERE message_id IN (SELECT id FROM messages WHERE room_id = $1)`, roomID)
	if err != nil {
		return 0, fmt.Errorf("delete message likes: %w", err)
	}
	tag, err := db.Exec(ctx, `DELETE FROM messages WHERE room_id = $1`, roomID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return tag.RowsAffected(), nil
}
