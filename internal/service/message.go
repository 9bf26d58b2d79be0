package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"github.com/lalith-99/studybuddy/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100

	maxMessageContent = 4000
)

// MessageService handles study-room chat.
type MessageService struct {
	store  repository.Store
	pub    publisher
	logger *zap.Logger
}

func NewMessageService(store repository.Store, events Emitter, logger *zap.Logger) *MessageService {
	return &MessageService{
		store:  store,
		pub:    publisher{events: events, logger: logger},
		logger: logger,
	}
}

func (s *MessageService) Send(ctx context.Context, roomID, senderID uuid.UUID, content string) (*models.Message, error) {
	content, err := requireText("content", content, maxMessageContent)
	if err != nil {
		return nil, err
	}

	var msg *models.Message
	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, _, err := lockMemberRoom(ctx, s.store, roomID, senderID); err != nil {
			return err
		}
		name, err := displayName(ctx, s.store.Users, senderID)
		if err != nil {
			return err
		}
		msg, err = s.store.Messages.Create(ctx, roomID, senderID, name, content)
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pub.publish(ctx, senderID, realtime.EventMessageCreated, realtime.StudyRoomRoom(roomID), msg)
	return msg, nil
}

// List pages backwards through the room's chat: up to limit messages older
// than before (0 means the latest), returned oldest first. limit defaults
// to 50 and is capped at 100.
func (s *MessageService) List(ctx context.Context, roomID, userID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	if before < 0 {
		return nil, validationError("before must not be negative")
	}
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}
	if _, _, err := memberRoom(ctx, s.store, roomID, userID); err != nil {
		return nil, err
	}

	msgs, err := s.store.Messages.ListByRoom(ctx, roomID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ToggleLike likes the message, or unlikes it if userID already did.
func (s *MessageService) ToggleLike(ctx context.Context, roomID uuid.UUID, messageID int64, userID uuid.UUID) (*models.Message, error) {
	var msg *models.Message
	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, _, err := lockMemberRoom(ctx, s.store, roomID, userID); err != nil {
			return err
		}
		current, err := s.store.Messages.GetByID(ctx, messageID)
		if err != nil {
			return fmt.Errorf("get message: %w", err)
		}
		if current == nil || current.RoomID != roomID {
			return ErrNotFound
		}

		added, err := s.store.Messages.AddLike(ctx, messageID, userID)
		if err != nil {
			return fmt.Errorf("like message: %w", err)
		}
		if !added {
			if _, err := s.store.Messages.RemoveLike(ctx, messageID, userID); err != nil {
				return fmt.Errorf("unlike message: %w", err)
			}
		}

		if msg, err = s.store.Messages.GetByID(ctx, messageID); err != nil {
			return fmt.Errorf("reload message: %w", err)
		}
		if msg == nil {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pub.publish(ctx, userID, realtime.EventMessageChanged, realtime.StudyRoomRoom(roomID), msg)
	return msg, nil
}
