package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/repository"
)

// AccessService decides which realtime rooms a user may use:
//
//	user:<id>        only that user, read only
//	community:<id>   members of the community
//	study_room:<id>  members of the room's community
//
// Rooms of any other shape are free-form and open to every signed-in user.
type AccessService struct {
	store repository.Store
}

func NewAccessService(store repository.Store) *AccessService {
	return &AccessService{store: store}
}

func (s *AccessService) CanAccess(ctx context.Context, userID uuid.UUID, room string) error {
	kind, rawID, ok := strings.Cut(room, ":")
	if !ok {
		return nil
	}
	id, err := uuid.Parse(rawID)

	switch kind {
	case "user":
		if err != nil || id != userID {
			return ErrForbidden
		}
		return nil
	case "community":
		if err != nil {
			return ErrNotFound
		}
		_, err := memberCommunity(ctx, s.store.Communities, id, userID)
		return err
	case "study_room":
		if err != nil {
			return ErrNotFound
		}
		_, _, err := memberRoom(ctx, s.store, id, userID)
		return err
	default:
		return nil
	}
}

// CanEmit is CanAccess, except that nobody writes into user rooms directly.
func (s *AccessService) CanEmit(ctx context.Context, userID uuid.UUID, room string) error {
	if strings.HasPrefix(room, "user:") {
		return ErrForbidden
	}
	return s.CanAccess(ctx, userID, room)
}
