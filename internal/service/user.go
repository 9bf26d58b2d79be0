package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/repository"
)

const maxProfileField = 500

type UserService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// Me returns the caller's profile including the communities they joined.
func (s *UserService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// UpdateProfile applies the non-nil fields of upd.
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (*models.User, error) {
	if upd.DisplayName != nil {
		name, err := requireText("display_name", *upd.DisplayName, maxDisplayName)
		if err != nil {
			return nil, err
		}
		upd.DisplayName = &name
	}
	for field, v := range map[string]*string{"bio": upd.Bio, "location": upd.Location} {
		if v == nil {
			continue
		}
		*v = strings.TrimSpace(*v)
		if len([]rune(*v)) > maxProfileField {
			return nil, validationError("%s must be at most %d characters", field, maxProfileField)
		}
	}

	u, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}
