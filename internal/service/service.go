// Package service holds the application's operations. Handlers call into it;
// it talks to storage only through repository interfaces and announces
// changes through an Emitter.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/auth"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"github.com/lalith-99/studybuddy/internal/repository"
	"go.uber.org/zap"
)

// Errors handlers translate to HTTP statuses. Anything else is an internal
// failure.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Emitter publishes change events. *realtime.Adapter implements it.
type Emitter interface {
	Emit(ctx context.Context, sender uuid.UUID, event, room string, payload any) (realtime.Event, error)
}

// publisher wraps an Emitter so a failed publish never fails the operation
// that already committed. Live delivery is best effort.
type publisher struct {
	events Emitter
	logger *zap.Logger
}

func (p publisher) publish(ctx context.Context, sender uuid.UUID, event, room string, payload any) {
	if p.events == nil {
		return
	}
	if _, err := p.events.Emit(context.WithoutCancel(ctx), sender, event, room, payload); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("event", event),
			zap.String("room", room),
			zap.Error(err),
		)
	}
}

func (p publisher) notificationCreated(ctx context.Context, n *models.Notification) {
	p.publish(ctx, n.SenderID, realtime.EventNotificationCreated, realtime.UserRoom(n.UserID), n)
}

func (p publisher) notificationChanged(ctx context.Context, actor uuid.UUID, n *models.Notification) {
	p.publish(ctx, actor, realtime.EventNotificationChanged, realtime.UserRoom(n.UserID), n)
}

// Services bundles every service over one store.
type Services struct {
	Auth          *AuthService
	Users         *UserService
	Communities   *CommunityService
	Memberships   *MembershipService
	Notifications *NotificationService
	Posts         *PostService
	Rooms         *StudyRoomService
	Messages      *MessageService
	Cascade       *CascadeService
	Access        *AccessService
}

func New(store repository.Store, tokens *auth.Manager, events Emitter, logger *zap.Logger) *Services {
	pub := publisher{events: events, logger: logger}
	cascade := NewCascadeService(store, events, logger)
	return &Services{
		Auth:          NewAuthService(store.Users, tokens, logger),
		Users:         NewUserService(store.Users),
		Communities:   NewCommunityService(store, cascade, logger),
		Memberships:   NewMembershipService(store, events, logger),
		Notifications: &NotificationService{store: store, pub: pub},
		Posts:         NewPostService(store, events, logger),
		Rooms:         NewStudyRoomService(store, cascade, events, logger),
		Messages:      NewMessageService(store, events, logger),
		Cascade:       cascade,
		Access:        NewAccessService(store),
	}
}

// liveCommunity loads a community that exists and is not being deleted.
func liveCommunity(ctx context.Context, repo repository.CommunityRepository, communityID uuid.UUID) (*models.Community, error) {
	c, err := repo.GetByID(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("get community: %w", err)
	}
	if c == nil || c.Deleting {
		return nil, ErrNotFound
	}
	return c, nil
}

// memberCommunity is liveCommunity plus a membership check.
func memberCommunity(ctx context.Context, repo repository.CommunityRepository, communityID, userID uuid.UUID) (*models.Community, error) {
	c, err := liveCommunity(ctx, repo, communityID)
	if err != nil {
		return nil, err
	}
	if !c.HasMember(userID) {
		return nil, ErrForbidden
	}
	return c, nil
}

// memberRoom loads a live study room whose community the user belongs to.
func memberRoom(ctx context.Context, store repository.Store, roomID, userID uuid.UUID) (*models.StudyRoom, *models.Community, error) {
	return checkMemberRoom(ctx, store, store.Rooms.GetByID, roomID, userID)
}

// lockMemberRoom is memberRoom that also holds the room row lock. Call it
// inside WithinTx before writing anything that references the room.
func lockMemberRoom(ctx context.Context, store repository.Store, roomID, userID uuid.UUID) (*models.StudyRoom, *models.Community, error) {
	return checkMemberRoom(ctx, store, store.Rooms.GetForUpdate, roomID, userID)
}

func checkMemberRoom(
	ctx context.Context,
	store repository.Store,
	get func(context.Context, uuid.UUID) (*models.StudyRoom, error),
	roomID, userID uuid.UUID,
) (*models.StudyRoom, *models.Community, error) {
	room, err := get(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("get study room: %w", err)
	}
	if room == nil || room.Deleting {
		return nil, nil, ErrNotFound
	}
	c, err := memberCommunity(ctx, store.Communities, room.CommunityID, userID)
	if err != nil {
		return nil, nil, err
	}
	return room, c, nil
}

func displayName(ctx context.Context, users repository.UserRepository, userID uuid.UUID) (string, error) {
	u, err := users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return "", ErrNotFound
	}
	return u.DisplayName, nil
}

func requireText(field, value string, maxLen int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", validationError("%s is required", field)
	}
	if maxLen > 0 && len([]rune(value)) > maxLen {
		return "", validationError("%s must be at most %d characters", field, maxLen)
	}
	return value, nil
}
