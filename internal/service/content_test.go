package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommunities_CreateAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")

	_, err := env.svc.Communities.Create(ctx, alice.ID, "   ", "", false)
	assert.ErrorIs(t, err, ErrValidation)

	golang := env.community(t, alice, "Go Study")
	env.community(t, alice, "Rust Club")
	assert.Equal(t, []uuid.UUID{alice.ID}, golang.Members)

	all, err := env.svc.Communities.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := env.svc.Communities.List(ctx, "go")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, golang.ID, found[0].ID)
}

func TestPosts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")
	c := env.community(t, alice, "Go Study")
	env.member(t, c, bob)

	_, err := env.svc.Posts.Create(ctx, c.ID, carol.ID, "let me in")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.Posts.Create(ctx, c.ID, bob.ID, "")
	assert.ErrorIs(t, err, ErrValidation)

	first, err := env.svc.Posts.Create(ctx, c.ID, bob.ID, "first")
	require.NoError(t, err)
	assert.Equal(t, "bob", first.AuthorName)
	second, err := env.svc.Posts.Create(ctx, c.ID, alice.ID, "second")
	require.NoError(t, err)

	posts, err := env.svc.Posts.List(ctx, c.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID)

	got, err := env.svc.Communities.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PostCount)
	assert.Equal(t, 2, env.events.count(realtime.CommunityRoom(c.ID), realtime.EventPostCreated))

	liked, err := env.svc.Posts.ToggleLike(ctx, c.ID, first.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice.ID}, liked.LikedBy)
	unliked, err := env.svc.Posts.ToggleLike(ctx, c.ID, first.ID, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, unliked.LikedBy)

	err = env.svc.Posts.Delete(ctx, c.ID, second.ID, bob.ID)
	assert.ErrorIs(t, err, ErrForbidden, "bob did not write it")
	require.NoError(t, env.svc.Posts.Delete(ctx, c.ID, first.ID, alice.ID), "creator may delete")

	got, err = env.svc.Communities.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PostCount)

	err = env.svc.Posts.Delete(ctx, c.ID, first.ID, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStudyRooms_Participants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")
	c := env.community(t, alice, "Go Study")
	env.member(t, c, bob)

	_, err := env.svc.Rooms.Create(ctx, c.ID, carol.ID, "Nope", "")
	assert.ErrorIs(t, err, ErrForbidden)

	room, err := env.svc.Rooms.Create(ctx, c.ID, alice.ID, "Exam prep", "weekly")
	require.NoError(t, err)
	assert.Equal(t, "alice", room.CreatorName)
	assert.True(t, room.IsActive)

	_, err = env.svc.Rooms.Join(ctx, room.ID, carol.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	for range 2 {
		room, err = env.svc.Rooms.Join(ctx, room.ID, bob.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, []uuid.UUID{bob.ID}, room.Participants)
	require.Len(t, room.ParticipantInfo, 1)
	assert.Equal(t, models.ParticipantActive, room.ParticipantInfo[0].Status)

	room, err = env.svc.Rooms.Leave(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, room.Participants)
	require.Len(t, room.ParticipantInfo, 1)
	assert.Equal(t, models.ParticipantLeft, room.ParticipantInfo[0].Status)

	assert.Equal(t, 2, env.events.count(realtime.StudyRoomRoom(room.ID), realtime.EventParticipantJoined))
	assert.Equal(t, 1, env.events.count(realtime.StudyRoomRoom(room.ID), realtime.EventParticipantLeft))

	rooms, err := env.svc.Rooms.List(ctx, c.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestStudyRooms_PostsAndResources(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")
	env.member(t, c, bob)
	room, err := env.svc.Rooms.Create(ctx, c.ID, alice.ID, "Exam prep", "")
	require.NoError(t, err)

	post, err := env.svc.Rooms.CreatePost(ctx, room.ID, bob.ID, "question")
	require.NoError(t, err)
	require.NotNil(t, post.RoomID)
	assert.Equal(t, room.ID, *post.RoomID)

	feed, err := env.svc.Posts.List(ctx, c.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, feed, "room posts stay out of the community feed")

	posts, err := env.svc.Rooms.ListPosts(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.ErrorIs(t, env.svc.Rooms.DeletePost(ctx, room.ID, post.ID, alice.ID), ErrForbidden)
	require.NoError(t, env.svc.Rooms.DeletePost(ctx, room.ID, post.ID, bob.ID))

	_, err = env.svc.Rooms.AddResource(ctx, room.ID, bob.ID, "Notes", "javascript:alert(1)", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.Rooms.AddResource(ctx, room.ID, bob.ID, "Notes", "notes.pdf", "")
	assert.ErrorIs(t, err, ErrValidation)

	res, err := env.svc.Rooms.AddResource(ctx, room.ID, bob.ID, "Notes", " https://example.com/n ", "ch 1-3")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/n", res.URL)

	resources, err := env.svc.Rooms.ListResources(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.Len(t, resources, 1)
	assert.ErrorIs(t, env.svc.Rooms.DeleteResource(ctx, room.ID, res.ID, alice.ID), ErrForbidden)
	require.NoError(t, env.svc.Rooms.DeleteResource(ctx, room.ID, res.ID, bob.ID))
	assert.ErrorIs(t, env.svc.Rooms.DeleteResource(ctx, room.ID, res.ID, bob.ID), ErrNotFound)
}

func TestMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, carol := env.user(t, "alice"), env.user(t, "carol")
	c := env.community(t, alice, "Go Study")
	room, err := env.svc.Rooms.Create(ctx, c.ID, alice.ID, "Exam prep", "")
	require.NoError(t, err)

	_, err = env.svc.Messages.Send(ctx, room.ID, carol.ID, "hi")
	assert.ErrorIs(t, err, ErrForbidden)

	var sent []*models.Message
	for i := range 5 {
		m, err := env.svc.Messages.Send(ctx, room.ID, alice.ID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
		sent = append(sent, m)
	}

	latest, err := env.svc.Messages.List(ctx, room.ID, alice.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, sent[3].ID, latest[0].ID, "oldest first")
	assert.Equal(t, sent[4].ID, latest[1].ID)

	older, err := env.svc.Messages.List(ctx, room.ID, alice.ID, latest[0].ID, 0)
	require.NoError(t, err)
	assert.Len(t, older, 3)

	_, err = env.svc.Messages.List(ctx, room.ID, alice.ID, -1, 0)
	assert.ErrorIs(t, err, ErrValidation)

	liked, err := env.svc.Messages.ToggleLike(ctx, room.ID, sent[0].ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice.ID}, liked.Likes)
	unliked, err := env.svc.Messages.ToggleLike(ctx, room.ID, sent[0].ID, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, unliked.Likes)

	_, err = env.svc.Messages.ToggleLike(ctx, room.ID, 9999, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 5, env.events.count(realtime.StudyRoomRoom(room.ID), realtime.EventMessageCreated))
}

func TestNotifications_RecipientOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")
	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	req := env.pendingFrom(t, alice.ID, bob.ID)

	_, err = env.svc.Notifications.MarkRead(ctx, req.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound, "the sender is not the recipient")
	assert.ErrorIs(t, env.svc.Notifications.Delete(ctx, req.ID, bob.ID), ErrNotFound)

	n, err := env.svc.Notifications.MarkRead(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, n.Read)

	pending, err := env.svc.Notifications.ListPending(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, env.svc.Notifications.Delete(ctx, req.ID, alice.ID))
	_, err = env.svc.Notifications.MarkRead(ctx, req.ID, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, env.events.count(realtime.UserRoom(alice.ID), realtime.EventNotificationChanged))
}

func TestAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")
	room, err := env.svc.Rooms.Create(ctx, c.ID, alice.ID, "Exam prep", "")
	require.NoError(t, err)

	access := env.svc.Access
	assert.NoError(t, access.CanAccess(ctx, alice.ID, realtime.UserRoom(alice.ID)))
	assert.ErrorIs(t, access.CanAccess(ctx, bob.ID, realtime.UserRoom(alice.ID)), ErrForbidden)
	assert.ErrorIs(t, access.CanEmit(ctx, alice.ID, realtime.UserRoom(alice.ID)), ErrForbidden)

	assert.NoError(t, access.CanAccess(ctx, alice.ID, realtime.CommunityRoom(c.ID)))
	assert.ErrorIs(t, access.CanAccess(ctx, bob.ID, realtime.CommunityRoom(c.ID)), ErrForbidden)
	assert.NoError(t, access.CanEmit(ctx, alice.ID, realtime.StudyRoomRoom(room.ID)))
	assert.ErrorIs(t, access.CanEmit(ctx, bob.ID, realtime.StudyRoomRoom(room.ID)), ErrForbidden)
	assert.ErrorIs(t, access.CanAccess(ctx, bob.ID, "study_room:not-a-uuid"), ErrNotFound)

	assert.NoError(t, access.CanEmit(ctx, bob.ID, "lobby"))
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Auth.Signup(ctx, "dana@example.com", "short", "Dana")
	assert.ErrorIs(t, err, ErrValidation)

	session, err := env.svc.Auth.Signup(ctx, " Dana@Example.com ", "correct horse", "Dana")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "dana@example.com", session.User.Email)
	assert.Equal(t, models.RoleStudent, session.User.Role)

	_, err = env.svc.Auth.Signup(ctx, "dana@example.com", "another password", "Dana 2")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = env.svc.Auth.Login(ctx, "dana@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Auth.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	again, err := env.svc.Auth.Login(ctx, "DANA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, again.User.ID)
}

func TestUsers_UpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")

	bio, name := "  likes graphs ", "Alice L."
	u, err := env.svc.Users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{DisplayName: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", u.DisplayName)
	assert.Equal(t, "likes graphs", u.Bio)
	assert.Empty(t, u.Location)

	blank := " "
	_, err = env.svc.Users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{DisplayName: &blank})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Users.Me(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
