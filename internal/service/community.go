package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/repository"
	"go.uber.org/zap"
)

const (
	maxCommunityName        = 100
	maxCommunityDescription = 2000
)

type CommunityService struct {
	store   repository.Store
	cascade *CascadeService
	logger  *zap.Logger
}

func NewCommunityService(store repository.Store, cascade *CascadeService, logger *zap.Logger) *CommunityService {
	return &CommunityService{store: store, cascade: cascade, logger: logger}
}

// Create makes a community with the creator as its first member.
func (s *CommunityService) Create(ctx context.Context, creatorID uuid.UUID, name, description string, isPrivate bool) (*models.Community, error) {
	name, err := requireText("name", name, maxCommunityName)
	if err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if len([]rune(description)) > maxCommunityDescription {
		return nil, validationError("description must be at most %d characters", maxCommunityDescription)
	}

	c, err := s.store.Communities.Create(ctx, name, description, creatorID, isPrivate)
	if err != nil {
		return nil, fmt.Errorf("create community: %w", err)
	}
	s.logger.Info("community created",
		zap.String("community_id", c.ID.String()),
		zap.String("created_by", creatorID.String()),
	)
	return c, nil
}

func (s *CommunityService) Get(ctx context.Context, communityID uuid.UUID) (*models.Community, error) {
	return liveCommunity(ctx, s.store.Communities, communityID)
}

// List returns every live community, or those whose name contains query.
func (s *CommunityService) List(ctx context.Context, query string) ([]models.Community, error) {
	communities, err := s.store.Communities.List(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	return communities, nil
}

// ListJoined returns the communities userID is a member of.
func (s *CommunityService) ListJoined(ctx context.Context, userID uuid.UUID) ([]models.Community, error) {
	communities, err := s.store.Communities.ListByMember(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list joined communities: %w", err)
	}
	return communities, nil
}

// Delete removes the community and everything under it.
func (s *CommunityService) Delete(ctx context.Context, communityID, requesterID uuid.UUID) error {
	return s.cascade.DeleteCommunity(ctx, communityID, requesterID)
}
