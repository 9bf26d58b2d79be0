package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestJoin_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	for range 3 {
		state, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, state)
	}

	got, err := env.store.Communities.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob.ID}, got.JoinRequests)

	pending, err := env.svc.Notifications.ListPending(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.NotificationJoinRequest, pending[0].Type)
	assert.Equal(t, alice.ID, pending[0].UserID)
	assert.Equal(t, alice.ID, pending[0].CommunityCreatorID)
	assert.Equal(t, bob.ID, pending[0].SenderID)
	assert.Equal(t, "bob requested to join Go Study", pending[0].Message)
	assert.False(t, pending[0].Read)

	assert.Equal(t, 1, env.events.count(realtime.UserRoom(alice.ID), realtime.EventNotificationCreated))
}

func TestRequestJoin_MemberIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	c := env.community(t, alice, "Go Study")

	state, err := env.svc.Memberships.RequestJoin(ctx, alice.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateMember, state)

	pending, err := env.svc.Notifications.ListPending(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRequestJoin_UnknownCommunity(t *testing.T) {
	env := newTestEnv(t)
	bob := env.user(t, "bob")

	_, err := env.svc.Memberships.RequestJoin(context.Background(), bob.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequestJoin_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := env.store.Communities.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, got.JoinRequests, 1)

	pending, err := env.svc.Notifications.ListPending(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestApprove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	req := env.pendingFrom(t, alice.ID, bob.ID)

	approval, err := env.svc.Memberships.Approve(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationApproval, approval.Type)
	assert.Equal(t, bob.ID, approval.UserID)
	assert.Equal(t, alice.ID, approval.SenderID)
	require.NotNil(t, approval.RequestID)
	assert.Equal(t, req.ID, *approval.RequestID)
	assert.Equal(t, `request to join "Go Study" was approved.`, approval.Message)

	got, err := env.store.Communities.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.HasMember(bob.ID))
	assert.False(t, got.HasJoinRequest(bob.ID))

	orig, err := env.store.Notifications.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, orig.Read)

	u, err := env.svc.Users.Me(ctx, bob.ID)
	require.NoError(t, err)
	assert.Contains(t, u.JoinedCommunities, c.ID)

	assert.Equal(t, 1, env.events.count(realtime.UserRoom(bob.ID), realtime.EventNotificationCreated))
	assert.Equal(t, 1, env.events.count(realtime.UserRoom(alice.ID), realtime.EventNotificationChanged))
}

func TestApprove_RetryCreatesOneNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	req := env.pendingFrom(t, alice.ID, bob.ID)

	first, err := env.svc.Memberships.Approve(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	second, err := env.svc.Memberships.Approve(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	resolved, err := env.store.Notifications.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
	assert.Equal(t, 1, env.events.count(realtime.UserRoom(bob.ID), realtime.EventNotificationCreated))
	assert.Equal(t, models.StateMember, env.state(t, c, bob))
}

func TestApprove_CompletesPartialApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	req := env.pendingFrom(t, alice.ID, bob.ID)

	// Membership written by an earlier attempt that never got to the
	// notification step.
	_, err = env.store.Memberships.RemoveJoinRequest(ctx, c.ID, bob.ID)
	require.NoError(t, err)
	_, err = env.store.Memberships.AddMember(ctx, c.ID, bob.ID)
	require.NoError(t, err)

	approval, err := env.svc.Memberships.Approve(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationApproval, approval.Type)

	orig, err := env.store.Notifications.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, orig.Read)
}

func TestReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	req := env.pendingFrom(t, alice.ID, bob.ID)

	rejection, err := env.svc.Memberships.Reject(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationRejection, rejection.Type)
	assert.Equal(t, `request to join "Go Study" was rejected.`, rejection.Message)
	assert.Equal(t, models.StateNone, env.state(t, c, bob))

	again, err := env.svc.Memberships.Reject(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, rejection.ID, again.ID)

	pending, err := env.svc.Notifications.ListPending(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A rejected user may ask again.
	state, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, state)
	assert.NotEqual(t, req.ID, env.pendingFrom(t, alice.ID, bob.ID).ID)
}

func TestApproveAndReject_Conflicts(t *testing.T) {
	t.Run("approve after reject", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		alice, bob := env.user(t, "alice"), env.user(t, "bob")
		c := env.community(t, alice, "Go Study")

		_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
		require.NoError(t, err)
		req := env.pendingFrom(t, alice.ID, bob.ID)
		_, err = env.svc.Memberships.Reject(ctx, req.ID, alice.ID)
		require.NoError(t, err)

		_, err = env.svc.Memberships.Approve(ctx, req.ID, alice.ID)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, models.StateNone, env.state(t, c, bob))

		resolved, err := env.store.Notifications.ListByRequest(ctx, req.ID)
		require.NoError(t, err)
		require.Len(t, resolved, 1)
		assert.Equal(t, models.NotificationRejection, resolved[0].Type)
	})

	t.Run("reject after approve", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		alice, bob := env.user(t, "alice"), env.user(t, "bob")
		c := env.community(t, alice, "Go Study")

		_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
		require.NoError(t, err)
		req := env.pendingFrom(t, alice.ID, bob.ID)
		_, err = env.svc.Memberships.Approve(ctx, req.ID, alice.ID)
		require.NoError(t, err)

		_, err = env.svc.Memberships.Reject(ctx, req.ID, alice.ID)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, models.StateMember, env.state(t, c, bob))
	})
}

func TestApproveAndReject_MutuallyExclusive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	req := env.pendingFrom(t, alice.ID, bob.ID)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = env.svc.Memberships.Approve(ctx, req.ID, alice.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = env.svc.Memberships.Reject(ctx, req.ID, alice.ID)
	}()
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrConflict)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	got, err := env.store.Communities.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.HasMember(bob.ID) && got.HasJoinRequest(bob.ID))
	assert.False(t, got.HasJoinRequest(bob.ID))

	resolved, err := env.store.Notifications.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestApproveAndReject_NonCreatorMakesNoWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, mallory := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "mallory")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	req := env.pendingFrom(t, alice.ID, bob.ID)

	_, err = env.svc.Memberships.Approve(ctx, req.ID, mallory.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.Memberships.Reject(ctx, req.ID, mallory.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Equal(t, models.StatePending, env.state(t, c, bob))
	orig, err := env.store.Notifications.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, orig.Read)
	resolved, err := env.store.Notifications.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestApprove_LookupErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")
	env.member(t, c, bob)

	_, err := env.svc.Memberships.Approve(ctx, uuid.New(), alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := env.svc.Notifications.ListMine(ctx, bob.ID)
	require.NoError(t, err)
	var approval models.Notification
	for _, n := range mine {
		if n.Type == models.NotificationApproval {
			approval = n
		}
	}
	require.NotEqual(t, uuid.Nil, approval.ID)

	_, err = env.svc.Memberships.Approve(ctx, approval.ID, alice.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeletedRequest_CanBeMadeAgain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	first := env.pendingFrom(t, alice.ID, bob.ID)

	require.NoError(t, env.svc.Notifications.Delete(ctx, first.ID, alice.ID))
	assert.Equal(t, models.StateNone, env.state(t, c, bob), "deleting an open request declines it")

	state, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, state)

	second := env.pendingFrom(t, alice.ID, bob.ID)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = env.svc.Memberships.Approve(ctx, second.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateMember, env.state(t, c, bob))
}

func TestReadRequest_IsDeclined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	req := env.pendingFrom(t, alice.ID, bob.ID)

	_, err = env.svc.Notifications.MarkRead(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateNone, env.state(t, c, bob))

	_, err = env.svc.Memberships.Approve(ctx, req.ID, alice.ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = env.svc.Memberships.Reject(ctx, req.ID, alice.ID)
	assert.ErrorIs(t, err, ErrConflict)

	resolved, err := env.store.Notifications.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestRequestJoin_ReissuesClosedRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	stale := env.pendingFrom(t, alice.ID, bob.ID)

	// Closed at the store level, leaving bob in the request set.
	require.NoError(t, env.store.Notifications.MarkRead(ctx, stale.ID))
	assert.Equal(t, models.StatePending, env.state(t, c, bob))

	state, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, state)
	fresh := env.pendingFrom(t, alice.ID, bob.ID)
	assert.NotEqual(t, stale.ID, fresh.ID)

	_, err = env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	pending, err := env.svc.Notifications.ListPending(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = env.svc.Memberships.Approve(ctx, stale.ID, alice.ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = env.svc.Memberships.Approve(ctx, fresh.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateMember, env.state(t, c, bob))
}

func TestApprove_OldRequestAfterRejection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	first := env.pendingFrom(t, alice.ID, bob.ID)
	_, err = env.svc.Memberships.Reject(ctx, first.ID, alice.ID)
	require.NoError(t, err)

	_, err = env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	second := env.pendingFrom(t, alice.ID, bob.ID)

	_, err = env.svc.Memberships.Approve(ctx, first.ID, alice.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, models.StatePending, env.state(t, c, bob))

	resolved, err := env.store.Notifications.ListByRequest(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, models.NotificationRejection, resolved[0].Type)

	_, err = env.svc.Memberships.Approve(ctx, second.ID, alice.ID)
	require.NoError(t, err)
	_, err = env.svc.Memberships.Approve(ctx, second.ID, alice.ID)
	require.NoError(t, err)

	pending, err := env.svc.Notifications.ListPending(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	approvals := 0
	mine, err := env.svc.Notifications.ListMine(ctx, bob.ID)
	require.NoError(t, err)
	for _, n := range mine {
		if n.Type == models.NotificationApproval {
			approvals++
		}
	}
	assert.Equal(t, 1, approvals)
}

func TestDeleteRequest_RacesApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	c := env.community(t, alice, "Go Study")

	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	req := env.pendingFrom(t, alice.ID, bob.ID)

	var (
		wg         sync.WaitGroup
		approveErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, approveErr = env.svc.Memberships.Approve(ctx, req.ID, alice.ID)
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, env.svc.Notifications.Delete(ctx, req.ID, alice.ID))
	}()
	wg.Wait()

	if approveErr == nil {
		assert.Equal(t, models.StateMember, env.state(t, c, bob))
	} else {
		assert.ErrorIs(t, approveErr, ErrNotFound)
		assert.Equal(t, models.StateNone, env.state(t, c, bob))
	}
}

// Alice creates a community, Bob asks to join, Alice approves. Then Carol
// asks and is turned down.
func TestJoinWorkflow_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")
	c := env.community(t, alice, "Go Study")

	assert.Equal(t, models.StateNone, env.state(t, c, bob))
	_, err := env.svc.Memberships.RequestJoin(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	_, err = env.svc.Memberships.RequestJoin(ctx, carol.ID, c.ID)
	require.NoError(t, err)

	pending, err := env.svc.Notifications.ListPending(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, carol.ID, pending[0].SenderID, "newest first")
	assert.Equal(t, bob.ID, pending[1].SenderID)

	_, err = env.svc.Memberships.Approve(ctx, pending[1].ID, alice.ID)
	require.NoError(t, err)
	_, err = env.svc.Memberships.Reject(ctx, pending[0].ID, alice.ID)
	require.NoError(t, err)

	pending, err = env.svc.Notifications.ListPending(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	bobFeed, err := env.svc.Notifications.ListMine(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobFeed, 2)
	assert.Equal(t, models.NotificationApproval, bobFeed[0].Type)
	assert.Equal(t, models.NotificationJoinRequest, bobFeed[1].Type)

	carolFeed, err := env.svc.Notifications.ListMine(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, carolFeed, 2)
	assert.Equal(t, models.NotificationRejection, carolFeed[0].Type)

	assert.Equal(t, models.StateMember, env.state(t, c, bob))
	assert.Equal(t, models.StateNone, env.state(t, c, carol))

	joined, err := env.svc.Communities.ListJoined(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, c.ID, joined[0].ID)
}
