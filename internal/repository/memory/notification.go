package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
)

type notificationRepo struct{ s *Store }

func (r *notificationRepo) Create(ctx context.Context, n *models.Notification) (*models.Notification, bool, error) {
	st, release, err := r.s.op(ctx, "notifications.Create")
	if err != nil {
		return nil, false, err
	}
	defer release()

	if dup := st.duplicateNotification(n); dup != nil {
		return dup, false, nil
	}

	out := *n
	out.ID = uuid.New()
	if out.Timestamp.IsZero() {
		out.Timestamp = r.s.now()
	}
	if n.RequestID != nil {
		id := *n.RequestID
		out.RequestID = &id
	}
	st.notifications[out.ID] = out
	st.track(out.ID)
	return st.notification(out.ID), true, nil
}

// duplicateNotification applies the same uniqueness rules as the partial
// unique indexes on the notifications table.
func (st *state) duplicateNotification(n *models.Notification) *models.Notification {
	for id, existing := range st.notifications {
		switch {
		case n.RequestID != nil && existing.RequestID != nil &&
			*existing.RequestID == *n.RequestID && existing.Type == n.Type:
			return st.notification(id)
		case n.Type == models.NotificationJoinRequest && !n.Read &&
			existing.Type == models.NotificationJoinRequest && !existing.Read &&
			existing.CommunityID == n.CommunityID && existing.SenderID == n.SenderID:
			return st.notification(id)
		}
	}
	return nil
}

func (r *notificationRepo) GetByID(ctx context.Context, notificationID uuid.UUID) (*models.Notification, error) {
	st, release, err := r.s.op(ctx, "notifications.GetByID")
	if err != nil {
		return nil, err
	}
	defer release()
	return st.notification(notificationID), nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, notificationID uuid.UUID) error {
	st, release, err := r.s.op(ctx, "notifications.MarkRead")
	if err != nil {
		return err
	}
	defer release()

	if n, ok := st.notifications[notificationID]; ok {
		n.Read = true
		st.notifications[notificationID] = n
	}
	return nil
}

func (r *notificationRepo) Delete(ctx context.Context, notificationID uuid.UUID) error {
	st, release, err := r.s.op(ctx, "notifications.Delete")
	if err != nil {
		return err
	}
	defer release()

	st.deleteNotification(notificationID)
	return nil
}

// deleteNotification removes a row and clears RequestID on the rows that
// pointed at it, like ON DELETE SET NULL.
func (st *state) deleteNotification(notificationID uuid.UUID) {
	if _, ok := st.notifications[notificationID]; !ok {
		return
	}
	delete(st.notifications, notificationID)
	delete(st.seq, notificationID)
	for id, n := range st.notifications {
		if n.RequestID != nil && *n.RequestID == notificationID {
			n.RequestID = nil
			st.notifications[id] = n
		}
	}
}

func (r *notificationRepo) ListPending(ctx context.Context, creatorID uuid.UUID) ([]models.Notification, error) {
	return r.list(ctx, "notifications.ListPending", func(n models.Notification) bool {
		return n.CommunityCreatorID == creatorID && n.Type == models.NotificationJoinRequest && !n.Read
	})
}

func (r *notificationRepo) ListForRequester(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	return r.list(ctx, "notifications.ListForRequester", func(n models.Notification) bool {
		if n.Type == models.NotificationJoinRequest {
			return n.SenderID == userID
		}
		return n.UserID == userID
	})
}

func (r *notificationRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Notification, error) {
	return r.list(ctx, "notifications.ListByRequest", func(n models.Notification) bool {
		return n.RequestID != nil && *n.RequestID == requestID
	})
}

func (r *notificationRepo) list(ctx context.Context, op string, keep func(models.Notification) bool) ([]models.Notification, error) {
	st, release, err := r.s.op(ctx, op)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]models.Notification, 0)
	for id, n := range st.notifications {
		if keep(n) {
			out = append(out, *st.notification(id))
		}
	}
	slices.SortFunc(out, func(a, b models.Notification) int {
		return st.newestFirst(a.Timestamp, b.Timestamp, a.ID, b.ID)
	})
	return out, nil
}

func (r *notificationRepo) DeleteByCommunity(ctx context.Context, communityID uuid.UUID) (int64, error) {
	st, release, err := r.s.op(ctx, "notifications.DeleteByCommunity")
	if err != nil {
		return 0, err
	}
	defer release()

	var ids []uuid.UUID
	for id, n := range st.notifications {
		if n.CommunityID == communityID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		st.deleteNotification(id)
	}
	return int64(len(ids)), nil
}

func (st *state) notification(notificationID uuid.UUID) *models.Notification {
	n, ok := st.notifications[notificationID]
	if !ok {
		return nil
	}
	if n.RequestID != nil {
		id := *n.RequestID
		n.RequestID = &id
	}
	return &n
}
