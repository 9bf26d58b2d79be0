package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func seedCommunity(t *testing.T, repos repository.Store) (*models.User, *models.Community) {
	t.Helper()
	ctx := context.Background()
	creator, err := repos.Users.Create(ctx, "alice@example.com", "Alice", "hash", models.RoleStudent)
	require.NoError(t, err)
	c, err := repos.Communities.Create(ctx, "Go Study", "", creator.ID, false)
	require.NoError(t, err)
	return creator, c
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	_, c := seedCommunity(t, repos)
	bob := uuid.New()

	boom := errors.New("boom")
	err := repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		added, err := repos.Memberships.AddJoinRequest(ctx, c.ID, bob)
		require.NoError(t, err)
		assert.True(t, added)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repos.Communities.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.JoinRequests)
}

func TestWithinTx_Nested(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	_, c := seedCommunity(t, repos)
	bob := uuid.New()

	err := repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		return repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
			_, err := repos.Memberships.AddMember(ctx, c.ID, bob)
			return err
		})
	})
	require.NoError(t, err)

	ok, err := repos.Memberships.IsMember(ctx, c.ID, bob)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFailNext(t *testing.T) {
	s := New()
	repos := s.Repositories()
	ctx := context.Background()
	_, c := seedCommunity(t, repos)

	boom := errors.New("connection reset")
	s.FailNext("communities.GetByID", boom)

	_, err := repos.Communities.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, boom)

	// Only the next call fails.
	got, err := repos.Communities.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestMembership_JoinRequestSkipsMembers(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	creator, c := seedCommunity(t, repos)

	added, err := repos.Memberships.AddJoinRequest(ctx, c.ID, creator.ID)
	require.NoError(t, err)
	assert.False(t, added)

	bob := uuid.New()
	added, err = repos.Memberships.AddJoinRequest(ctx, c.ID, bob)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repos.Memberships.AddJoinRequest(ctx, c.ID, bob)
	require.NoError(t, err)
	assert.False(t, added)

	got, err := repos.Communities.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob}, got.JoinRequests)
	assert.Equal(t, models.StatePending, got.StateOf(bob))
}

func TestUsers_DuplicateEmail(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()

	_, err := repos.Users.Create(ctx, "a@example.com", "A", "h", models.RoleStudent)
	require.NoError(t, err)
	_, err = repos.Users.Create(ctx, "A@example.com", "A2", "h", models.RoleStudent)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestUsers_JoinedCommunitiesDerived(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	creator, c := seedCommunity(t, repos)

	u, err := repos.Users.GetByID(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c.ID}, u.JoinedCommunities)

	require.NoError(t, repos.Communities.MarkDeleting(ctx, c.ID))
	u, err = repos.Users.GetByID(ctx, creator.ID)
	require.NoError(t, err)
	assert.Empty(t, u.JoinedCommunities)
}

func TestNotifications_Dedup(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	creator, c := seedCommunity(t, repos)
	bob := uuid.New()

	req := &models.Notification{
		UserID:             creator.ID,
		SenderID:           bob,
		CommunityID:        c.ID,
		CommunityCreatorID: creator.ID,
		Type:               models.NotificationJoinRequest,
		Message:            "Bob wants to join Go Study",
	}
	first, created, err := repos.Notifications.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repos.Notifications.Create(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	approval := &models.Notification{
		UserID:             bob,
		SenderID:           creator.ID,
		CommunityID:        c.ID,
		CommunityCreatorID: creator.ID,
		RequestID:          &first.ID,
		Type:               models.NotificationApproval,
		Message:            "approved",
	}
	a1, created, err := repos.Notifications.Create(ctx, approval)
	require.NoError(t, err)
	assert.True(t, created)
	a2, created, err := repos.Notifications.Create(ctx, approval)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a1.ID, a2.ID)

	// Once the request is read, a fresh request from the same sender is allowed.
	require.NoError(t, repos.Notifications.MarkRead(ctx, first.ID))
	_, created, err = repos.Notifications.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestNotifications_Feeds(t *testing.T) {
	repos := New(WithClock(fixedClock())).Repositories()
	ctx := context.Background()
	creator, c := seedCommunity(t, repos)
	bob := uuid.New()

	req, _, err := repos.Notifications.Create(ctx, &models.Notification{
		UserID: creator.ID, SenderID: bob, CommunityID: c.ID, CommunityCreatorID: creator.ID,
		Type: models.NotificationJoinRequest, Message: "join",
	})
	require.NoError(t, err)

	pending, err := repos.Notifications.ListPending(ctx, creator.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	rej, _, err := repos.Notifications.Create(ctx, &models.Notification{
		UserID: bob, SenderID: creator.ID, CommunityID: c.ID, CommunityCreatorID: creator.ID,
		RequestID: &req.ID, Type: models.NotificationRejection, Message: "rejected",
	})
	require.NoError(t, err)
	require.NoError(t, repos.Notifications.MarkRead(ctx, req.ID))

	pending, err = repos.Notifications.ListPending(ctx, creator.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Same timestamp everywhere: insertion order breaks the tie, newest first.
	mine, err := repos.Notifications.ListForRequester(ctx, bob)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, rej.ID, mine[0].ID)
	assert.Equal(t, req.ID, mine[1].ID)

	creatorFeed, err := repos.Notifications.ListForRequester(ctx, creator.ID)
	require.NoError(t, err)
	assert.Empty(t, creatorFeed)
}

func TestNotifications_DeleteClearsRequestID(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	creator, c := seedCommunity(t, repos)
	bob := uuid.New()

	req, _, err := repos.Notifications.Create(ctx, &models.Notification{
		UserID: creator.ID, SenderID: bob, CommunityID: c.ID, CommunityCreatorID: creator.ID,
		Type: models.NotificationJoinRequest,
	})
	require.NoError(t, err)
	ap, _, err := repos.Notifications.Create(ctx, &models.Notification{
		UserID: bob, SenderID: creator.ID, CommunityID: c.ID, CommunityCreatorID: creator.ID,
		RequestID: &req.ID, Type: models.NotificationApproval,
	})
	require.NoError(t, err)

	require.NoError(t, repos.Notifications.Delete(ctx, req.ID))
	got, err := repos.Notifications.GetByID(ctx, ap.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RequestID)
}

func TestCommunityDelete_RefusesWhileChildrenExist(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	creator, c := seedCommunity(t, repos)

	room, err := repos.Rooms.Create(ctx, &models.StudyRoom{CommunityID: c.ID, Name: "Room", CreatedBy: creator.ID})
	require.NoError(t, err)
	_, err = repos.Messages.Create(ctx, room.ID, creator.ID, "Alice", "hi")
	require.NoError(t, err)

	assert.ErrorIs(t, repos.Rooms.Delete(ctx, room.ID), ErrReferenced)
	assert.ErrorIs(t, repos.Communities.Delete(ctx, c.ID), ErrReferenced)

	_, err = repos.Messages.DeleteByRoom(ctx, room.ID)
	require.NoError(t, err)
	require.NoError(t, repos.Rooms.Delete(ctx, room.ID))
	require.NoError(t, repos.Communities.Delete(ctx, c.ID))

	got, err := repos.Communities.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMessages_CursorPaging(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	room := uuid.New()
	sender := uuid.New()

	var ids []int64
	for i := 0; i < 5; i++ {
		m, err := repos.Messages.Create(ctx, room, sender, "S", "msg")
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	page, err := repos.Messages.ListByRoom(ctx, room, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[4], page[1].ID)

	page, err = repos.Messages.ListByRoom(ctx, room, page[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[0], page[0].ID)
}

func TestRooms_ParticipantInfoIsUniquePerUser(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	creator, c := seedCommunity(t, repos)

	room, err := repos.Rooms.Create(ctx, &models.StudyRoom{CommunityID: c.ID, Name: "Room", CreatedBy: creator.ID})
	require.NoError(t, err)

	p := models.Participant{UserID: creator.ID, DisplayName: "Alice", Status: models.ParticipantActive, JoinedAt: time.Now()}
	require.NoError(t, repos.Rooms.AddParticipant(ctx, room.ID, p))
	require.NoError(t, repos.Rooms.RemoveParticipant(ctx, room.ID, creator.ID))

	got, err := repos.Rooms.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Participants)
	require.Len(t, got.ParticipantInfo, 1)
	assert.Equal(t, models.ParticipantLeft, got.ParticipantInfo[0].Status)

	require.NoError(t, repos.Rooms.AddParticipant(ctx, room.ID, p))
	got, err = repos.Rooms.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{creator.ID}, got.Participants)
	require.Len(t, got.ParticipantInfo, 1)
	assert.Equal(t, models.ParticipantActive, got.ParticipantInfo[0].Status)
}

func TestCascadeJobs_CreateIsIdempotent(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	target := uuid.New()
	by := uuid.New()

	j1, err := repos.CascadeJobs.Create(ctx, models.CascadeCommunity, target, by)
	require.NoError(t, err)
	j2, err := repos.CascadeJobs.Create(ctx, models.CascadeCommunity, target, by)
	require.NoError(t, err)
	assert.Equal(t, j1.ID, j2.ID)

	require.NoError(t, repos.CascadeJobs.RecordFailure(ctx, j1.ID, "timeout"))
	jobs, err := repos.CascadeJobs.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.Equal(t, "timeout", jobs[0].LastError)

	require.NoError(t, repos.CascadeJobs.Delete(ctx, j1.ID))
	jobs, err = repos.CascadeJobs.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
