package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"github.com/lalith-99/studybuddy/internal/repository"
)

// NotificationService serves the two notification feeds and lets a
// recipient mark or remove their own notifications.
type NotificationService struct {
	store repository.Store
	pub   publisher
}

// ListPending returns the unread join requests waiting on userID as a
// community creator, newest first.
func (s *NotificationService) ListPending(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	ns, err := s.store.Notifications.ListPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	return ns, nil
}

// ListMine returns what happened to userID's own join requests: the
// requests they sent and the approvals and rejections they received.
func (s *NotificationService) ListMine(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	ns, err := s.store.Notifications.ListForRequester(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return ns, nil
}

// MarkRead marks a notification as read. Reading an open join request
// without approving it declines the request, the same as Delete.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) (*models.Notification, error) {
	var (
		n       *models.Notification
		changed bool
	)
	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.owned(ctx, notificationID, userID)
		if err != nil {
			return err
		}
		if n.Read {
			return nil
		}
		if err := s.dismissRequest(ctx, n); err != nil {
			return err
		}
		if err := s.store.Notifications.MarkRead(ctx, notificationID); err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
		n.Read = true
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.pub.notificationChanged(ctx, userID, n)
	}
	return n, nil
}

// Delete removes a notification. Deleting a join request that is still
// open declines it: the sender drops back to NONE and may ask again.
func (s *NotificationService) Delete(ctx context.Context, notificationID, userID uuid.UUID) error {
	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.owned(ctx, notificationID, userID)
		if err != nil {
			return err
		}
		if err := s.dismissRequest(ctx, n); err != nil {
			return err
		}
		if err := s.store.Notifications.Delete(ctx, notificationID); err != nil {
			return fmt.Errorf("delete notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.pub.publish(ctx, userID, realtime.EventNotificationChanged, realtime.UserRoom(userID),
		map[string]any{"id": notificationID, "deleted": true})
	return nil
}

// dismissRequest withdraws the sender's pending request when n is an open
// join request, so no requester is left PENDING with nothing to approve.
// It takes the community lock and re-reads n, because Approve or Reject may
// have resolved the request since n was loaded.
func (s *NotificationService) dismissRequest(ctx context.Context, n *models.Notification) error {
	if n.Type != models.NotificationJoinRequest || n.Read {
		return nil
	}
	c, err := s.store.Communities.GetForUpdate(ctx, n.CommunityID)
	if err != nil {
		return fmt.Errorf("lock community: %w", err)
	}
	if c == nil {
		return nil
	}
	current, err := s.store.Notifications.GetByID(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("get notification: %w", err)
	}
	if current == nil || current.Read {
		return nil
	}
	if _, err := s.store.Memberships.RemoveJoinRequest(ctx, c.ID, n.SenderID); err != nil {
		return fmt.Errorf("remove join request: %w", err)
	}
	return nil
}

// owned loads a notification addressed to userID. Someone else's
// notification looks the same as a missing one.
func (s *NotificationService) owned(ctx context.Context, notificationID, userID uuid.UUID) (*models.Notification, error) {
	n, err := s.store.Notifications.GetByID(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if n == nil || n.UserID != userID {
		return nil, ErrNotFound
	}
	return n, nil
}
