package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/auth"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"github.com/lalith-99/studybuddy/internal/repository"
	"github.com/lalith-99/studybuddy/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder is an Emitter that keeps what it was asked to publish.
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Emit(_ context.Context, sender uuid.UUID, event, room string, _ any) (realtime.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := realtime.Event{ID: uuid.NewString(), Name: event, Room: room, Sender: sender, Timestamp: time.Now()}
	r.events = append(r.events, ev)
	return ev, nil
}

// count returns how many events named event were published to room.
func (r *recorder) count(room, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Room == room && ev.Name == event {
			n++
		}
	}
	return n
}

type testEnv struct {
	mem    *memory.Store
	store  repository.Store
	svc    *Services
	events *recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := memory.New()
	store := mem.Repositories()
	events := &recorder{}
	tokens := auth.NewManager("test-secret", time.Hour, auth.NewMemoryRevocations())
	return &testEnv{
		mem:    mem,
		store:  store,
		svc:    New(store, tokens, events, zap.NewNop()),
		events: events,
	}
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := e.store.Users.Create(context.Background(), name+"@example.com", name, "hash", models.RoleStudent)
	require.NoError(t, err)
	return u
}

func (e *testEnv) community(t *testing.T, creator *models.User, name string) *models.Community {
	t.Helper()
	c, err := e.svc.Communities.Create(context.Background(), creator.ID, name, "", false)
	require.NoError(t, err)
	return c
}

// member puts u into c through the join workflow.
func (e *testEnv) member(t *testing.T, c *models.Community, u *models.User) {
	t.Helper()
	ctx := context.Background()
	_, err := e.svc.Memberships.RequestJoin(ctx, u.ID, c.ID)
	require.NoError(t, err)
	req := e.pendingFrom(t, c.CreatedBy, u.ID)
	_, err = e.svc.Memberships.Approve(ctx, req.ID, c.CreatedBy)
	require.NoError(t, err)
}

// pendingFrom finds the unread join request from sender in creator's feed.
func (e *testEnv) pendingFrom(t *testing.T, creatorID, senderID uuid.UUID) models.Notification {
	t.Helper()
	pending, err := e.svc.Notifications.ListPending(context.Background(), creatorID)
	require.NoError(t, err)
	for _, n := range pending {
		if n.SenderID == senderID {
			return n
		}
	}
	t.Fatalf("no pending join request from %s", senderID)
	return models.Notification{}
}

func (e *testEnv) state(t *testing.T, c *models.Community, u *models.User) models.MembershipState {
	t.Helper()
	s, err := e.svc.Memberships.State(context.Background(), u.ID, c.ID)
	require.NoError(t, err)
	return s
}
