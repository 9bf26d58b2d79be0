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

const maxPostContent = 5000

// PostService handles community feed posts. Study-room discussion posts
// live in StudyRoomService.
type PostService struct {
	store  repository.Store
	pub    publisher
	logger *zap.Logger
}

func NewPostService(store repository.Store, events Emitter, logger *zap.Logger) *PostService {
	return &PostService{
		store:  store,
		pub:    publisher{events: events, logger: logger},
		logger: logger,
	}
}

// Create adds a post to the community feed and bumps its post count.
// Members only.
func (s *PostService) Create(ctx context.Context, communityID, authorID uuid.UUID, content string) (*models.Post, error) {
	content, err := requireText("content", content, maxPostContent)
	if err != nil {
		return nil, err
	}

	var post *models.Post
	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.store.Communities.GetForUpdate(ctx, communityID)
		if err != nil {
			return fmt.Errorf("lock community: %w", err)
		}
		if c == nil || c.Deleting {
			return ErrNotFound
		}
		if !c.HasMember(authorID) {
			return ErrForbidden
		}

		name, err := displayName(ctx, s.store.Users, authorID)
		if err != nil {
			return err
		}
		post, err = s.store.Posts.Create(ctx, &models.Post{
			CommunityID: communityID,
			AuthorID:    authorID,
			AuthorName:  name,
			Content:     content,
		})
		if err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		if err := s.store.Communities.AdjustPostCount(ctx, communityID, 1); err != nil {
			return fmt.Errorf("bump post count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pub.publish(ctx, authorID, realtime.EventPostCreated, realtime.CommunityRoom(communityID), post)
	return post, nil
}

// List returns the community feed, newest first. Members only.
func (s *PostService) List(ctx context.Context, communityID, userID uuid.UUID) ([]models.Post, error) {
	if _, err := memberCommunity(ctx, s.store.Communities, communityID, userID); err != nil {
		return nil, err
	}
	posts, err := s.store.Posts.ListByCommunity(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// ToggleLike likes the post, or unlikes it if userID already did.
func (s *PostService) ToggleLike(ctx context.Context, communityID, postID, userID uuid.UUID) (*models.Post, error) {
	if _, err := memberCommunity(ctx, s.store.Communities, communityID, userID); err != nil {
		return nil, err
	}
	post, err := s.feedPost(ctx, communityID, postID)
	if err != nil {
		return nil, err
	}

	post, err = toggleLike(ctx, s.store, post, userID)
	if err != nil {
		return nil, err
	}
	s.pub.publish(ctx, userID, realtime.EventPostChanged, realtime.CommunityRoom(communityID), post)
	return post, nil
}

// Delete removes a feed post. The author and the community creator may
// delete it.
func (s *PostService) Delete(ctx context.Context, communityID, postID, userID uuid.UUID) error {
	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.store.Communities.GetForUpdate(ctx, communityID)
		if err != nil {
			return fmt.Errorf("lock community: %w", err)
		}
		if c == nil || c.Deleting {
			return ErrNotFound
		}
		post, err := s.feedPost(ctx, communityID, postID)
		if err != nil {
			return err
		}
		if post.AuthorID != userID && c.CreatedBy != userID {
			return ErrForbidden
		}

		if err := s.store.Posts.Delete(ctx, postID); err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		if err := s.store.Communities.AdjustPostCount(ctx, communityID, -1); err != nil {
			return fmt.Errorf("drop post count: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.pub.publish(ctx, userID, realtime.EventPostChanged, realtime.CommunityRoom(communityID),
		map[string]any{"id": postID, "deleted": true})
	return nil
}

func (s *PostService) feedPost(ctx context.Context, communityID, postID uuid.UUID) (*models.Post, error) {
	post, err := s.store.Posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if post == nil || post.CommunityID != communityID || post.RoomID != nil {
		return nil, ErrNotFound
	}
	return post, nil
}

// toggleLike flips userID's like on post and returns the post as stored.
func toggleLike(ctx context.Context, store repository.Store, post *models.Post, userID uuid.UUID) (*models.Post, error) {
	added, err := store.Posts.AddLike(ctx, post.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("like post: %w", err)
	}
	if !added {
		if _, err := store.Posts.RemoveLike(ctx, post.ID, userID); err != nil {
			return nil, fmt.Errorf("unlike post: %w", err)
		}
	}

	updated, err := store.Posts.GetByID(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("reload post: %w", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	return updated, nil
}
