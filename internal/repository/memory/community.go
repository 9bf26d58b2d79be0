package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/repository"
)

// ErrReferenced is returned when deleting a parent row that still has
// children, the way a foreign key violation would surface from Postgres.
var ErrReferenced = errors.New("row is still referenced")

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, email, displayName, passwordHash string, role models.Role) (*models.User, error) {
	st, release, err := r.s.op(ctx, "users.Create")
	if err != nil {
		return nil, err
	}
	defer release()

	for _, u := range st.users {
		if strings.EqualFold(u.Email, email) {
			return nil, fmt.Errorf("insert user: %w", repository.ErrDuplicate)
		}
	}
	now := r.s.now()
	u := models.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	st.users[u.ID] = u
	st.track(u.ID)
	return st.user(u.ID), nil
}

func (r *userRepo) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	st, release, err := r.s.op(ctx, "users.GetByID")
	if err != nil {
		return nil, err
	}
	defer release()
	return st.user(userID), nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	st, release, err := r.s.op(ctx, "users.GetByEmail")
	if err != nil {
		return nil, err
	}
	defer release()

	for id, u := range st.users {
		if strings.EqualFold(u.Email, email) {
			return st.user(id), nil
		}
	}
	return nil, nil
}

func (r *userRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (*models.User, error) {
	st, release, err := r.s.op(ctx, "users.UpdateProfile")
	if err != nil {
		return nil, err
	}
	defer release()

	u, ok := st.users[userID]
	if !ok {
		return nil, nil
	}
	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.Location != nil {
		u.Location = *upd.Location
	}
	u.UpdatedAt = r.s.now()
	st.users[userID] = u
	return st.user(userID), nil
}

// user returns a copy of the user with JoinedCommunities derived from the
// live communities they are a member of.
func (st *state) user(userID uuid.UUID) *models.User {
	u, ok := st.users[userID]
	if !ok {
		return nil
	}
	joined := make([]uuid.UUID, 0)
	for _, c := range st.sortedCommunities() {
		if !c.Deleting && c.HasMember(userID) {
			joined = append(joined, c.ID)
		}
	}
	u.JoinedCommunities = joined
	return &u
}

type communityRepo struct{ s *Store }

func (r *communityRepo) Create(ctx context.Context, name, description string, createdBy uuid.UUID, isPrivate bool) (*models.Community, error) {
	st, release, err := r.s.op(ctx, "communities.Create")
	if err != nil {
		return nil, err
	}
	defer release()

	c := models.Community{
		ID:           uuid.New(),
		Name:         name,
		Description:  description,
		CreatedBy:    createdBy,
		Members:      []uuid.UUID{createdBy},
		JoinRequests: make([]uuid.UUID, 0),
		IsPrivate:    isPrivate,
		CreatedAt:    r.s.now(),
	}
	st.communities[c.ID] = c
	st.track(c.ID)
	return st.community(c.ID), nil
}

func (r *communityRepo) GetByID(ctx context.Context, communityID uuid.UUID) (*models.Community, error) {
	st, release, err := r.s.op(ctx, "communities.GetByID")
	if err != nil {
		return nil, err
	}
	defer release()
	return st.community(communityID), nil
}

// GetForUpdate needs no row lock here: inside WithinTx the whole store is
// already held.
func (r *communityRepo) GetForUpdate(ctx context.Context, communityID uuid.UUID) (*models.Community, error) {
	st, release, err := r.s.op(ctx, "communities.GetForUpdate")
	if err != nil {
		return nil, err
	}
	defer release()
	return st.community(communityID), nil
}

func (r *communityRepo) List(ctx context.Context, nameQuery string) ([]models.Community, error) {
	st, release, err := r.s.op(ctx, "communities.List")
	if err != nil {
		return nil, err
	}
	defer release()

	q := strings.ToLower(nameQuery)
	out := make([]models.Community, 0)
	for _, c := range st.sortedCommunities() {
		if c.Deleting {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) {
			continue
		}
		out = append(out, *st.community(c.ID))
	}
	return out, nil
}

func (r *communityRepo) ListByMember(ctx context.Context, userID uuid.UUID) ([]models.Community, error) {
	st, release, err := r.s.op(ctx, "communities.ListByMember")
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]models.Community, 0)
	for _, c := range st.sortedCommunities() {
		if !c.Deleting && c.HasMember(userID) {
			out = append(out, *st.community(c.ID))
		}
	}
	return out, nil
}

func (r *communityRepo) AdjustPostCount(ctx context.Context, communityID uuid.UUID, delta int) error {
	st, release, err := r.s.op(ctx, "communities.AdjustPostCount")
	if err != nil {
		return err
	}
	defer release()

	c, ok := st.communities[communityID]
	if !ok {
		return nil
	}
	c.PostCount = max(c.PostCount+delta, 0)
	st.communities[communityID] = c
	return nil
}

func (r *communityRepo) MarkDeleting(ctx context.Context, communityID uuid.UUID) error {
	st, release, err := r.s.op(ctx, "communities.MarkDeleting")
	if err != nil {
		return err
	}
	defer release()

	if c, ok := st.communities[communityID]; ok {
		c.Deleting = true
		st.communities[communityID] = c
	}
	return nil
}

func (r *communityRepo) Delete(ctx context.Context, communityID uuid.UUID) error {
	st, release, err := r.s.op(ctx, "communities.Delete")
	if err != nil {
		return err
	}
	defer release()

	if _, ok := st.communities[communityID]; !ok {
		return nil
	}
	for _, p := range st.posts {
		if p.CommunityID == communityID {
			return fmt.Errorf("delete community: posts: %w", ErrReferenced)
		}
	}
	for _, room := range st.rooms {
		if room.CommunityID == communityID {
			return fmt.Errorf("delete community: study rooms: %w", ErrReferenced)
		}
	}
	for _, n := range st.notifications {
		if n.CommunityID == communityID {
			return fmt.Errorf("delete community: notifications: %w", ErrReferenced)
		}
	}
	delete(st.communities, communityID)
	delete(st.seq, communityID)
	return nil
}

func (st *state) community(communityID uuid.UUID) *models.Community {
	c, ok := st.communities[communityID]
	if !ok {
		return nil
	}
	c.Members = slices.Clone(c.Members)
	c.JoinRequests = slices.Clone(c.JoinRequests)
	return &c
}

func (st *state) sortedCommunities() []models.Community {
	out := make([]models.Community, 0, len(st.communities))
	for _, c := range st.communities {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b models.Community) int {
		return st.newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out
}

type membershipRepo struct{ s *Store }

func (r *membershipRepo) AddJoinRequest(ctx context.Context, communityID, userID uuid.UUID) (bool, error) {
	st, release, err := r.s.op(ctx, "memberships.AddJoinRequest")
	if err != nil {
		return false, err
	}
	defer release()

	c, ok := st.communities[communityID]
	if !ok || c.HasMember(userID) {
		return false, nil
	}
	var added bool
	c.JoinRequests, added = addID(c.JoinRequests, userID)
	st.communities[communityID] = c
	return added, nil
}

func (r *membershipRepo) RemoveJoinRequest(ctx context.Context, communityID, userID uuid.UUID) (bool, error) {
	st, release, err := r.s.op(ctx, "memberships.RemoveJoinRequest")
	if err != nil {
		return false, err
	}
	defer release()

	c, ok := st.communities[communityID]
	if !ok {
		return false, nil
	}
	var removed bool
	c.JoinRequests, removed = removeID(c.JoinRequests, userID)
	st.communities[communityID] = c
	return removed, nil
}

func (r *membershipRepo) AddMember(ctx context.Context, communityID, userID uuid.UUID) (bool, error) {
	st, release, err := r.s.op(ctx, "memberships.AddMember")
	if err != nil {
		return false, err
	}
	defer release()

	c, ok := st.communities[communityID]
	if !ok {
		return false, nil
	}
	var added bool
	c.Members, added = addID(c.Members, userID)
	st.communities[communityID] = c
	return added, nil
}

func (r *membershipRepo) IsMember(ctx context.Context, communityID, userID uuid.UUID) (bool, error) {
	st, release, err := r.s.op(ctx, "memberships.IsMember")
	if err != nil {
		return false, err
	}
	defer release()

	c, ok := st.communities[communityID]
	return ok && c.HasMember(userID), nil
}
