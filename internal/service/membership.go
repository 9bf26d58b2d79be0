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

// MembershipService runs the join workflow for a (user, community) pair:
//
//	NONE --RequestJoin--> PENDING --Approve--> MEMBER
//	                         |
//	                         +-----Reject----> NONE
//
// Every step runs in one transaction that starts by locking the community,
// so concurrent requests and decisions on a community are applied one at a
// time and each sees the state the previous one left.
type MembershipService struct {
	store  repository.Store
	pub    publisher
	logger *zap.Logger
}

func NewMembershipService(store repository.Store, events Emitter, logger *zap.Logger) *MembershipService {
	return &MembershipService{
		store:  store,
		pub:    publisher{events: events, logger: logger},
		logger: logger,
	}
}

// RequestJoin asks to join a community and returns the caller's resulting
// state. Members get their state back with nothing written; repeating a
// pending request changes nothing.
func (s *MembershipService) RequestJoin(ctx context.Context, userID, communityID uuid.UUID) (models.MembershipState, error) {
	var (
		state   models.MembershipState
		created *models.Notification
	)

	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.store.Communities.GetForUpdate(ctx, communityID)
		if err != nil {
			return fmt.Errorf("lock community: %w", err)
		}
		if c == nil || c.Deleting {
			return ErrNotFound
		}

		state = c.StateOf(userID)
		switch state {
		case models.StateMember:
			return nil
		case models.StateNone:
			if _, err := s.store.Memberships.AddJoinRequest(ctx, communityID, userID); err != nil {
				return fmt.Errorf("add join request: %w", err)
			}
			state = models.StatePending
		}

		// Pending users normally already have an open request, which the
		// create below hands back. One whose request was closed without a
		// decision gets a fresh one, so the creator can act on it again.
		name, err := s.requesterName(ctx, userID)
		if err != nil {
			return err
		}
		n, inserted, err := s.store.Notifications.Create(ctx, &models.Notification{
			UserID:             c.CreatedBy,
			SenderID:           userID,
			CommunityID:        c.ID,
			CommunityCreatorID: c.CreatedBy,
			Type:               models.NotificationJoinRequest,
			Message:            fmt.Sprintf("%s requested to join %s", name, c.Name),
		})
		if err != nil {
			return fmt.Errorf("create join request notification: %w", err)
		}
		if inserted {
			created = n
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if created != nil {
		s.logger.Info("join requested",
			zap.String("community_id", communityID.String()),
			zap.String("user_id", userID.String()),
		)
		s.pub.notificationCreated(ctx, created)
	}
	return state, nil
}

func (s *MembershipService) requesterName(ctx context.Context, userID uuid.UUID) (string, error) {
	u, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get requester: %w", err)
	}
	if u == nil || u.DisplayName == "" {
		return "Someone", nil
	}
	return u.DisplayName, nil
}

// Approve admits the sender of a join_request notification. Only the
// community creator may approve. Retrying an approval that already went
// through completes it without creating a second approval notification.
func (s *MembershipService) Approve(ctx context.Context, notificationID, approverID uuid.UUID) (*models.Notification, error) {
	return s.resolve(ctx, notificationID, approverID, models.NotificationApproval)
}

// Reject declines a join request. The requester goes back to NONE and may
// ask again. Rejecting someone who is already a member is a conflict.
func (s *MembershipService) Reject(ctx context.Context, notificationID, approverID uuid.UUID) (*models.Notification, error) {
	return s.resolve(ctx, notificationID, approverID, models.NotificationRejection)
}

func (s *MembershipService) resolve(ctx context.Context, notificationID, approverID uuid.UUID, outcome models.NotificationType) (*models.Notification, error) {
	var (
		result    *models.Notification
		created   bool
		request   *models.Notification
		markedNow bool
		joined    bool
	)

	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		request, err = s.store.Notifications.GetByID(ctx, notificationID)
		if err != nil {
			return fmt.Errorf("get notification: %w", err)
		}
		if request == nil {
			return ErrNotFound
		}
		if request.Type != models.NotificationJoinRequest {
			return validationError("notification %s is not a join request", notificationID)
		}

		c, err := s.store.Communities.GetForUpdate(ctx, request.CommunityID)
		if err != nil {
			return fmt.Errorf("lock community: %w", err)
		}
		if c == nil || c.Deleting {
			return ErrNotFound
		}
		if c.CreatedBy != approverID {
			return ErrForbidden
		}

		// A request is read once it has been decided or dismissed. Repeating
		// the decision returns it; anything else is a conflict.
		if request.Read {
			outcomes, err := s.store.Notifications.ListByRequest(ctx, request.ID)
			if err != nil {
				return fmt.Errorf("list request outcomes: %w", err)
			}
			for i := range outcomes {
				if outcomes[i].Type == outcome {
					result = &outcomes[i]
					return nil
				}
			}
			return conflictError("join request is no longer open")
		}

		requester := request.SenderID
		switch state := c.StateOf(requester); outcome {
		case models.NotificationApproval:
			if state == models.StateNone {
				return conflictError("no pending request from this user")
			}
			if state == models.StatePending {
				if _, err := s.store.Memberships.RemoveJoinRequest(ctx, c.ID, requester); err != nil {
					return fmt.Errorf("remove join request: %w", err)
				}
				if joined, err = s.store.Memberships.AddMember(ctx, c.ID, requester); err != nil {
					return fmt.Errorf("add member: %w", err)
				}
			}
		case models.NotificationRejection:
			if state == models.StateMember {
				return conflictError("user is already a member")
			}
			if state == models.StatePending {
				if _, err := s.store.Memberships.RemoveJoinRequest(ctx, c.ID, requester); err != nil {
					return fmt.Errorf("remove join request: %w", err)
				}
			}
		}

		verb := "approved"
		if outcome == models.NotificationRejection {
			verb = "rejected"
		}
		requestID := request.ID
		result, created, err = s.store.Notifications.Create(ctx, &models.Notification{
			UserID:             requester,
			SenderID:           approverID,
			CommunityID:        c.ID,
			CommunityCreatorID: c.CreatedBy,
			RequestID:          &requestID,
			Type:               outcome,
			Message:            fmt.Sprintf("request to join %q was %s.", c.Name, verb),
		})
		if err != nil {
			return fmt.Errorf("create %s notification: %w", outcome, err)
		}

		if !request.Read {
			if err := s.store.Notifications.MarkRead(ctx, request.ID); err != nil {
				return fmt.Errorf("mark request read: %w", err)
			}
			request.Read = true
			markedNow = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Info("join request resolved",
			zap.String("outcome", string(outcome)),
			zap.String("community_id", result.CommunityID.String()),
			zap.String("user_id", result.UserID.String()),
		)
		s.pub.notificationCreated(ctx, result)
	}
	if markedNow {
		s.pub.notificationChanged(ctx, approverID, request)
	}
	if joined {
		s.pub.publish(ctx, approverID, realtime.EventCommunityChanged,
			realtime.CommunityRoom(result.CommunityID), map[string]any{"member_added": result.UserID})
	}
	return result, nil
}

// State reports where userID stands with a community.
func (s *MembershipService) State(ctx context.Context, userID, communityID uuid.UUID) (models.MembershipState, error) {
	c, err := liveCommunity(ctx, s.store.Communities, communityID)
	if err != nil {
		return "", err
	}
	return c.StateOf(userID), nil
}
