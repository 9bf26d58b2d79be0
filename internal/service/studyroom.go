package service

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"github.com/lalith-99/studybuddy/internal/repository"
	"go.uber.org/zap"
)

const (
	maxRoomName      = 100
	maxResourceTitle = 200
)

// StudyRoomService handles study rooms, their participants, and the
// discussion and resource tabs. Every operation requires membership in the
// room's community.
type StudyRoomService struct {
	store   repository.Store
	cascade *CascadeService
	pub     publisher
	logger  *zap.Logger
	now     func() time.Time
}

func NewStudyRoomService(store repository.Store, cascade *CascadeService, events Emitter, logger *zap.Logger) *StudyRoomService {
	return &StudyRoomService{
		store:   store,
		cascade: cascade,
		pub:     publisher{events: events, logger: logger},
		logger:  logger,
		now:     time.Now,
	}
}

func (s *StudyRoomService) Create(ctx context.Context, communityID, creatorID uuid.UUID, name, description string) (*models.StudyRoom, error) {
	name, err := requireText("name", name, maxRoomName)
	if err != nil {
		return nil, err
	}

	var room *models.StudyRoom
	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.store.Communities.GetForUpdate(ctx, communityID)
		if err != nil {
			return fmt.Errorf("lock community: %w", err)
		}
		if c == nil || c.Deleting {
			return ErrNotFound
		}
		if !c.HasMember(creatorID) {
			return ErrForbidden
		}

		creatorName, err := displayName(ctx, s.store.Users, creatorID)
		if err != nil {
			return err
		}
		room, err = s.store.Rooms.Create(ctx, &models.StudyRoom{
			CommunityID: communityID,
			Name:        name,
			Description: strings.TrimSpace(description),
			CreatedBy:   creatorID,
			CreatorName: creatorName,
		})
		if err != nil {
			return fmt.Errorf("create study room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("study room created",
		zap.String("room_id", room.ID.String()),
		zap.String("community_id", communityID.String()),
	)
	s.pub.publish(ctx, creatorID, realtime.EventCommunityChanged, realtime.CommunityRoom(communityID),
		map[string]any{"room_added": room.ID})
	return room, nil
}

// List returns the community's rooms, newest first.
func (s *StudyRoomService) List(ctx context.Context, communityID, userID uuid.UUID) ([]models.StudyRoom, error) {
	if _, err := memberCommunity(ctx, s.store.Communities, communityID, userID); err != nil {
		return nil, err
	}
	rooms, err := s.store.Rooms.ListByCommunity(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("list study rooms: %w", err)
	}
	return slices.DeleteFunc(rooms, func(r models.StudyRoom) bool { return r.Deleting }), nil
}

func (s *StudyRoomService) Get(ctx context.Context, roomID, userID uuid.UUID) (*models.StudyRoom, error) {
	room, _, err := memberRoom(ctx, s.store, roomID, userID)
	return room, err
}

// Join enters the room. Joining again refreshes the user's single
// participant entry.
func (s *StudyRoomService) Join(ctx context.Context, roomID, userID uuid.UUID) (*models.StudyRoom, error) {
	var p models.Participant
	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, _, err := lockMemberRoom(ctx, s.store, roomID, userID); err != nil {
			return err
		}
		name, err := displayName(ctx, s.store.Users, userID)
		if err != nil {
			return err
		}

		p = models.Participant{
			UserID:      userID,
			DisplayName: name,
			Status:      models.ParticipantActive,
			JoinedAt:    s.now().UTC(),
		}
		if err := s.store.Rooms.AddParticipant(ctx, roomID, p); err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pub.publish(ctx, userID, realtime.EventParticipantJoined, realtime.StudyRoomRoom(roomID), p)
	return s.reload(ctx, roomID)
}

// Leave removes the user from the room. Their participant entry stays with
// status "left".
func (s *StudyRoomService) Leave(ctx context.Context, roomID, userID uuid.UUID) (*models.StudyRoom, error) {
	var (
		room *models.StudyRoom
		left bool
	)
	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		room, _, err = lockMemberRoom(ctx, s.store, roomID, userID)
		if err != nil {
			return err
		}
		if !models.ContainsID(room.Participants, userID) {
			return nil
		}
		if err := s.store.Rooms.RemoveParticipant(ctx, roomID, userID); err != nil {
			return fmt.Errorf("remove participant: %w", err)
		}
		left = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !left {
		return room, nil
	}

	s.pub.publish(ctx, userID, realtime.EventParticipantLeft, realtime.StudyRoomRoom(roomID),
		map[string]any{"id": userID})
	return s.reload(ctx, roomID)
}

// Delete removes the room with its messages, posts and resources.
func (s *StudyRoomService) Delete(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.cascade.DeleteStudyRoom(ctx, roomID, userID)
}

func (s *StudyRoomService) reload(ctx context.Context, roomID uuid.UUID) (*models.StudyRoom, error) {
	room, err := s.store.Rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("reload study room: %w", err)
	}
	if room == nil {
		return nil, ErrNotFound
	}
	return room, nil
}

// CreatePost adds a post to the room's discussion tab.
func (s *StudyRoomService) CreatePost(ctx context.Context, roomID, authorID uuid.UUID, content string) (*models.Post, error) {
	content, err := requireText("content", content, maxPostContent)
	if err != nil {
		return nil, err
	}

	var post *models.Post
	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, _, err := lockMemberRoom(ctx, s.store, roomID, authorID)
		if err != nil {
			return err
		}
		name, err := displayName(ctx, s.store.Users, authorID)
		if err != nil {
			return err
		}

		post, err = s.store.Posts.Create(ctx, &models.Post{
			CommunityID: room.CommunityID,
			RoomID:      &room.ID,
			AuthorID:    authorID,
			AuthorName:  name,
			Content:     content,
		})
		if err != nil {
			return fmt.Errorf("create room post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pub.publish(ctx, authorID, realtime.EventPostCreated, realtime.StudyRoomRoom(roomID), post)
	return post, nil
}

func (s *StudyRoomService) ListPosts(ctx context.Context, roomID, userID uuid.UUID) ([]models.Post, error) {
	if _, _, err := memberRoom(ctx, s.store, roomID, userID); err != nil {
		return nil, err
	}
	posts, err := s.store.Posts.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list room posts: %w", err)
	}
	return posts, nil
}

// DeletePost removes a discussion post. Author only.
func (s *StudyRoomService) DeletePost(ctx context.Context, roomID, postID, userID uuid.UUID) error {
	if _, _, err := memberRoom(ctx, s.store, roomID, userID); err != nil {
		return err
	}
	post, err := s.store.Posts.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("get room post: %w", err)
	}
	if post == nil || post.RoomID == nil || *post.RoomID != roomID {
		return ErrNotFound
	}
	if post.AuthorID != userID {
		return ErrForbidden
	}

	if err := s.store.Posts.Delete(ctx, postID); err != nil {
		return fmt.Errorf("delete room post: %w", err)
	}
	s.pub.publish(ctx, userID, realtime.EventPostChanged, realtime.StudyRoomRoom(roomID),
		map[string]any{"id": postID, "deleted": true})
	return nil
}

// AddResource shares a link in the room. The URL must be absolute http(s).
func (s *StudyRoomService) AddResource(ctx context.Context, roomID, authorID uuid.UUID, title, link, description string) (*models.Resource, error) {
	title, err := requireText("title", title, maxResourceTitle)
	if err != nil {
		return nil, err
	}
	link, err = requireURL(link)
	if err != nil {
		return nil, err
	}

	var res *models.Resource
	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, _, err := lockMemberRoom(ctx, s.store, roomID, authorID); err != nil {
			return err
		}
		var err error
		res, err = s.store.Resources.Create(ctx, &models.Resource{
			RoomID:      roomID,
			AuthorID:    authorID,
			Title:       title,
			URL:         link,
			Description: strings.TrimSpace(description),
		})
		if err != nil {
			return fmt.Errorf("create resource: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pub.publish(ctx, authorID, realtime.EventResourceChanged, realtime.StudyRoomRoom(roomID), res)
	return res, nil
}

func (s *StudyRoomService) ListResources(ctx context.Context, roomID, userID uuid.UUID) ([]models.Resource, error) {
	if _, _, err := memberRoom(ctx, s.store, roomID, userID); err != nil {
		return nil, err
	}
	resources, err := s.store.Resources.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

// DeleteResource removes a resource. Author only.
func (s *StudyRoomService) DeleteResource(ctx context.Context, roomID, resourceID, userID uuid.UUID) error {
	if _, _, err := memberRoom(ctx, s.store, roomID, userID); err != nil {
		return err
	}
	res, err := s.store.Resources.GetByID(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("get resource: %w", err)
	}
	if res == nil || res.RoomID != roomID {
		return ErrNotFound
	}
	if res.AuthorID != userID {
		return ErrForbidden
	}

	if err := s.store.Resources.Delete(ctx, resourceID); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	s.pub.publish(ctx, userID, realtime.EventResourceChanged, realtime.StudyRoomRoom(roomID),
		map[string]any{"id": resourceID, "deleted": true})
	return nil
}

func requireURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", validationError("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", validationError("url must be an absolute http or https URL")
	}
	return u.String(), nil
}
