// Package memory is an in-process implementation of the repository
// interfaces. It backs STORE_DRIVER=memory for local development and is the
// store the service tests run against.
//
// All state sits behind one lock. WithinTx holds that lock for the whole
// transaction and snapshots the state first, so a transaction is both
// serializable and rolled back on error, matching what the Postgres store
// gets from row locks and BEGIN/ROLLBACK.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/repository"
)

type state struct {
	users         map[uuid.UUID]models.User
	communities   map[uuid.UUID]models.Community
	notifications map[uuid.UUID]models.Notification
	rooms         map[uuid.UUID]models.StudyRoom
	posts         map[uuid.UUID]models.Post
	messages      map[int64]models.Message
	resources     map[uuid.UUID]models.Resource
	jobs          map[uuid.UUID]models.CascadeJob

	// seq records insertion order so equal timestamps still sort stably.
	seq       map[uuid.UUID]int64
	nextSeq   int64
	nextMsgID int64
}

func newState() *state {
	return &state{
		users:         make(map[uuid.UUID]models.User),
		communities:   make(map[uuid.UUID]models.Community),
		notifications: make(map[uuid.UUID]models.Notification),
		rooms:         make(map[uuid.UUID]models.StudyRoom),
		posts:         make(map[uuid.UUID]models.Post),
		messages:      make(map[int64]models.Message),
		resources:     make(map[uuid.UUID]models.Resource),
		jobs:          make(map[uuid.UUID]models.CascadeJob),
		seq:           make(map[uuid.UUID]int64),
	}
}

func (st *state) clone() *state {
	out := newState()
	for k, v := range st.users {
		v.JoinedCommunities = slices.Clone(v.JoinedCommunities)
		out.users[k] = v
	}
	for k, v := range st.communities {
		v.Members = slices.Clone(v.Members)
		v.JoinRequests = slices.Clone(v.JoinRequests)
		out.communities[k] = v
	}
	for k, v := range st.notifications {
		out.notifications[k] = v
	}
	for k, v := range st.rooms {
		v.Participants = slices.Clone(v.Participants)
		v.ParticipantInfo = slices.Clone(v.ParticipantInfo)
		out.rooms[k] = v
	}
	for k, v := range st.posts {
		v.LikedBy = slices.Clone(v.LikedBy)
		out.posts[k] = v
	}
	for k, v := range st.messages {
		v.Likes = slices.Clone(v.Likes)
		out.messages[k] = v
	}
	for k, v := range st.resources {
		out.resources[k] = v
	}
	for k, v := range st.jobs {
		out.jobs[k] = v
	}
	for k, v := range st.seq {
		out.seq[k] = v
	}
	out.nextSeq = st.nextSeq
	out.nextMsgID = st.nextMsgID
	return out
}

func (st *state) track(id uuid.UUID) {
	st.nextSeq++
	st.seq[id] = st.nextSeq
}

// Store holds the shared state every memory repository reads and writes.
type Store struct {
	mu     sync.Mutex
	st     *state
	now    func() time.Time
	faults map[string]error
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		st:     newState(),
		now:    time.Now,
		faults: make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repositories returns every repository view over this store.
func (s *Store) Repositories() repository.Store {
	return repository.Store{
		Tx:            s,
		Users:         &userRepo{s},
		Communities:   &communityRepo{s},
		Memberships:   &membershipRepo{s},
		Notifications: &notificationRepo{s},
		Posts:         &postRepo{s},
		Rooms:         &roomRepo{s},
		Messages:      &messageRepo{s},
		Resources:     &resourceRepo{s},
		CascadeJobs:   &cascadeRepo{s},
	}
}

// FailNext makes the next call of op (for example "rooms.Delete") return
// err instead of running. It exists so callers can rehearse a store outage
// part-way through a multi-step operation.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

type txKey struct{}

// WithinTx implements repository.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// op enters the store for one repository call. Inside a transaction the
// lock is already held by WithinTx.
func (s *Store) op(ctx context.Context, name string) (*state, func(), error) {
	release := func() {}
	if ctx.Value(txKey{}) == nil {
		s.mu.Lock()
		release = s.mu.Unlock
	}
	if err := ctx.Err(); err != nil {
		release()
		return nil, nil, err
	}
	if err, ok := s.faults[name]; ok {
		delete(s.faults, name)
		release()
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	return s.st, release, nil
}

func addID(ids []uuid.UUID, id uuid.UUID) ([]uuid.UUID, bool) {
	if models.ContainsID(ids, id) {
		return ids, false
	}
	return append(ids, id), true
}

func removeID(ids []uuid.UUID, id uuid.UUID) ([]uuid.UUID, bool) {
	i := slices.Index(ids, id)
	if i < 0 {
		return ids, false
	}
	return slices.Delete(ids, i, i+1), true
}

// newestFirst orders by timestamp descending, then by insertion order
// descending, then by ID so the result is fully deterministic.
func (st *state) newestFirst(ta, tb time.Time, a, b uuid.UUID) int {
	if c := tb.Compare(ta); c != 0 {
		return c
	}
	if st.seq[a] != st.seq[b] {
		if st.seq[a] > st.seq[b] {
			return -1
		}
		return 1
	}
	return bytes.Compare(a[:], b[:])
}
