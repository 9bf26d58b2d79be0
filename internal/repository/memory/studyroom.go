package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
)

type roomRepo struct{ s *Store }

func (r *roomRepo) Create(ctx context.Context, room *models.StudyRoom) (*models.StudyRoom, error) {
	st, release, err := r.s.op(ctx, "rooms.Create")
	if err != nil {
		return nil, err
	}
	defer release()

	out := *room
	out.ID = uuid.New()
	out.IsActive = true
	out.Participants = make([]uuid.UUID, 0)
	out.ParticipantInfo = make([]models.Participant, 0)
	out.CreatedAt = r.s.now()
	st.rooms[out.ID] = out
	st.track(out.ID)
	return st.room(out.ID), nil
}

func (r *roomRepo) GetByID(ctx context.Context, roomID uuid.UUID) (*models.StudyRoom, error) {
	st, release, err := r.s.op(ctx, "rooms.GetByID")
	if err != nil {
		return nil, err
	}
	defer release()
	return st.room(roomID), nil
}

func (r *roomRepo) GetForUpdate(ctx context.Context, roomID uuid.UUID) (*models.StudyRoom, error) {
	st, release, err := r.s.op(ctx, "rooms.GetForUpdate")
	if err != nil {
		return nil, err
	}
	defer release()
	return st.room(roomID), nil
}

func (r *roomRepo) MarkDeleting(ctx context.Context, roomID uuid.UUID) error {
	st, release, err := r.s.op(ctx, "rooms.MarkDeleting")
	if err != nil {
		return err
	}
	defer release()

	if room, ok := st.rooms[roomID]; ok {
		room.Deleting = true
		st.rooms[roomID] = room
	}
	return nil
}

func (r *roomRepo) ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.StudyRoom, error) {
	st, release, err := r.s.op(ctx, "rooms.ListByCommunity")
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]models.StudyRoom, 0)
	for id, room := range st.rooms {
		if room.CommunityID == communityID {
			out = append(out, *st.room(id))
		}
	}
	slices.SortFunc(out, func(a, b models.StudyRoom) int {
		return st.newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (r *roomRepo) AddParticipant(ctx context.Context, roomID uuid.UUID, p models.Participant) error {
	st, release, err := r.s.op(ctx, "rooms.AddParticipant")
	if err != nil {
		return err
	}
	defer release()

	room, ok := st.rooms[roomID]
	if !ok {
		return nil
	}
	room.Participants, _ = addID(room.Participants, p.UserID)
	i := slices.IndexFunc(room.ParticipantInfo, func(e models.Participant) bool { return e.UserID == p.UserID })
	if i >= 0 {
		room.ParticipantInfo[i] = p
	} else {
		room.ParticipantInfo = append(room.ParticipantInfo, p)
	}
	st.rooms[roomID] = room
	return nil
}

func (r *roomRepo) RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	st, release, err := r.s.op(ctx, "rooms.RemoveParticipant")
	if err != nil {
		return err
	}
	defer release()

	room, ok := st.rooms[roomID]
	if !ok {
		return nil
	}
	room.Participants, _ = removeID(room.Participants, userID)
	for i := range room.ParticipantInfo {
		if room.ParticipantInfo[i].UserID == userID {
			room.ParticipantInfo[i].Status = models.ParticipantLeft
		}
	}
	st.rooms[roomID] = room
	return nil
}

func (r *roomRepo) Delete(ctx context.Context, roomID uuid.UUID) error {
	st, release, err := r.s.op(ctx, "rooms.Delete")
	if err != nil {
		return err
	}
	defer release()

	if _, ok := st.rooms[roomID]; !ok {
		return nil
	}
	for _, m := range st.messages {
		if m.RoomID == roomID {
			return fmt.Errorf("delete study room: messages: %w", ErrReferenced)
		}
	}
	for _, p := range st.posts {
		if p.RoomID != nil && *p.RoomID == roomID {
			return fmt.Errorf("delete study room: posts: %w", ErrReferenced)
		}
	}
	for _, res := range st.resources {
		if res.RoomID == roomID {
			return fmt.Errorf("delete study room: resources: %w", ErrReferenced)
		}
	}
	delete(st.rooms, roomID)
	delete(st.seq, roomID)
	return nil
}

func (st *state) room(roomID uuid.UUID) *models.StudyRoom {
	room, ok := st.rooms[roomID]
	if !ok {
		return nil
	}
	room.Participants = slices.Clone(room.Participants)
	room.ParticipantInfo = slices.Clone(room.ParticipantInfo)
	return &room
}

type resourceRepo struct{ s *Store }

func (r *resourceRepo) Create(ctx context.Context, res *models.Resource) (*models.Resource, error) {
	st, release, err := r.s.op(ctx, "resources.Create")
	if err != nil {
		return nil, err
	}
	defer release()

	out := *res
	out.ID = uuid.New()
	out.CreatedAt = r.s.now()
	st.resources[out.ID] = out
	st.track(out.ID)
	return &out, nil
}

func (r *resourceRepo) GetByID(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error) {
	st, release, err := r.s.op(ctx, "resources.GetByID")
	if err != nil {
		return nil, err
	}
	defer release()

	res, ok := st.resources[resourceID]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

func (r *resourceRepo) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Resource, error) {
	st, release, err := r.s.op(ctx, "resources.ListByRoom")
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]models.Resource, 0)
	for _, res := range st.resources {
		if res.RoomID == roomID {
			out = append(out, res)
		}
	}
	slices.SortFunc(out, func(a, b models.Resource) int {
		return st.newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (r *resourceRepo) Delete(ctx context.Context, resourceID uuid.UUID) error {
	st, release, err := r.s.op(ctx, "resources.Delete")
	if err != nil {
		return err
	}
	defer release()

	delete(st.resources, resourceID)
	delete(st.seq, resourceID)
	return nil
}

func (r *resourceRepo) DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error) {
	st, release, err := r.s.op(ctx, "resources.DeleteByRoom")
	if err != nil {
		return 0, err
	}
	defer release()

	var n int64
	for id, res := range st.resources {
		if res.RoomID == roomID {
			delete(st.resources, id)
			delete(st.seq, id)
			n++
		}
	}
	return n, nil
}
