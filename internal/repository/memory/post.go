package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
)

type postRepo struct{ s *Store }

func (r *postRepo) Create(ctx context.Context, p *models.Post) (*models.Post, error) {
	st, release, err := r.s.op(ctx, "posts.Create")
	if err != nil {
		return nil, err
	}
	defer release()

	out := *p
	out.ID = uuid.New()
	out.LikedBy = make([]uuid.UUID, 0)
	out.CreatedAt = r.s.now()
	if p.RoomID != nil {
		id := *p.RoomID
		out.RoomID = &id
	}
	st.posts[out.ID] = out
	st.track(out.ID)
	return st.post(out.ID), nil
}

func (r *postRepo) GetByID(ctx context.Context, postID uuid.UUID) (*models.Post, error) {
	st, release, err := r.s.op(ctx, "posts.GetByID")
	if err != nil {
		return nil, err
	}
	defer release()
	return st.post(postID), nil
}

func (r *postRepo) ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.Post, error) {
	return r.list(ctx, "posts.ListByCommunity", func(p models.Post) bool {
		return p.CommunityID == communityID && p.RoomID == nil
	})
}

func (r *postRepo) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Post, error) {
	return r.list(ctx, "posts.ListByRoom", func(p models.Post) bool {
		return p.RoomID != nil && *p.RoomID == roomID
	})
}

func (r *postRepo) list(ctx context.Context, op string, keep func(models.Post) bool) ([]models.Post, error) {
	st, release, err := r.s.op(ctx, op)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]models.Post, 0)
	for id, p := range st.posts {
		if keep(p) {
			out = append(out, *st.post(id))
		}
	}
	slices.SortFunc(out, func(a, b models.Post) int {
		return st.newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (r *postRepo) AddLike(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	st, release, err := r.s.op(ctx, "posts.AddLike")
	if err != nil {
		return false, err
	}
	defer release()

	p, ok := st.posts[postID]
	if !ok {
		return false, nil
	}
	var added bool
	p.LikedBy, added = addID(p.LikedBy, userID)
	st.posts[postID] = p
	return added, nil
}

func (r *postRepo) RemoveLike(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	st, release, err := r.s.op(ctx, "posts.RemoveLike")
	if err != nil {
		return false, err
	}
	defer release()

	p, ok := st.posts[postID]
	if !ok {
		return false, nil
	}
	var removed bool
	p.LikedBy, removed = removeID(p.LikedBy, userID)
	st.posts[postID] = p
	return removed, nil
}

func (r *postRepo) Delete(ctx context.Context, postID uuid.UUID) error {
	st, release, err := r.s.op(ctx, "posts.Delete")
	if err != nil {
		return err
	}
	defer release()

	delete(st.posts, postID)
	delete(st.seq, postID)
	return nil
}

func (r *postRepo) DeleteByCommunity(ctx context.Context, communityID uuid.UUID) (int64, error) {
	return r.deleteWhere(ctx, "posts.DeleteByCommunity", func(p models.Post) bool {
		return p.CommunityID == communityID && p.RoomID == nil
	})
}

func (r *postRepo) DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error) {
	return r.deleteWhere(ctx, "posts.DeleteByRoom", func(p models.Post) bool {
		return p.RoomID != nil && *p.RoomID == roomID
	})
}

func (r *postRepo) deleteWhere(ctx context.Context, op string, match func(models.Post) bool) (int64, error) {
	st, release, err := r.s.op(ctx, op)
	if err != nil {
		return 0, err
	}
	defer release()

	var n int64
	for id, p := range st.posts {
		if match(p) {
			delete(st.posts, id)
			delete(st.seq, id)
			n++
		}
	}
	return n, nil
}

func (st *state) post(postID uuid.UUID) *models.Post {
	p, ok := st.posts[postID]
	if !ok {
		return nil
	}
	p.LikedBy = slices.Clone(p.LikedBy)
	if p.RoomID != nil {
		id := *p.RoomID
		p.RoomID = &id
	}
	return &p
}

type messageRepo struct{ s *Store }

func (r *messageRepo) Create(ctx context.Context, roomID, senderID uuid.UUID, senderName, content string) (*models.Message, error) {
	st, release, err := r.s.op(ctx, "messages.Create")
	if err != nil {
		return nil, err
	}
	defer release()

	st.nextMsgID++
	m := models.Message{
		ID:         st.nextMsgID,
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		Likes:      make([]uuid.UUID, 0),
		CreatedAt:  r.s.now(),
	}
	st.messages[m.ID] = m
	return st.message(m.ID), nil
}

func (r *messageRepo) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	st, release, err := r.s.op(ctx, "messages.GetByID")
	if err != nil {
		return nil, err
	}
	defer release()
	return st.message(messageID), nil
}

func (r *messageRepo) ListByRoom(ctx context.Context, roomID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	st, release, err := r.s.op(ctx, "messages.ListByRoom")
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]models.Message, 0)
	for id, m := range st.messages {
		if m.RoomID != roomID || (before > 0 && id >= before) {
			continue
		}
		out = append(out, *st.message(id))
	}
	slices.SortFunc(out, func(a, b models.Message) int { return cmp.Compare(a.ID, b.ID) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *messageRepo) AddLike(ctx context.Context, messageID int64, userID uuid.UUID) (bool, error) {
	st, release, err := r.s.op(ctx, "messages.AddLike")
	if err != nil {
		return false, err
	}
	defer release()

	m, ok := st.messages[messageID]
	if !ok {
		return false, nil
	}
	var added bool
	m.Likes, added = addID(m.Likes, userID)
	st.messages[messageID] = m
	return added, nil
}

func (r *messageRepo) RemoveLike(ctx context.Context, messageID int64, userID uuid.UUID) (bool, error) {
	st, release, err := r.s.op(ctx, "messages.RemoveLike")
	if err != nil {
		return false, err
	}
	defer release()

	m, ok := st.messages[messageID]
	if !ok {
		return false, nil
	}
	var removed bool
	m.Likes, removed = removeID(m.Likes, userID)
	st.messages[messageID] = m
	return removed, nil
}

func (r *messageRepo) DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error) {
	st, release, err := r.s.op(ctx, "messages.DeleteByRoom")
	if err != nil {
		return 0, err
	}
	defer release()

	var n int64
	for id, m := range st.messages {
		if m.RoomID == roomID {
			delete(st.messages, id)
			n++
		}
	}
	return n, nil
}

func (st *state) message(messageID int64) *models.Message {
	m, ok := st.messages[messageID]
	if !ok {
		return nil
	}
	m.Likes = slices.Clone(m.Likes)
	return &m
}
