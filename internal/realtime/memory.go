package realtime

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// liveBuffer is how many live events a subscriber may fall behind before
// new ones are dropped for it.
const liveBuffer = 64

var ErrBusClosed = errors.New("bus closed")

// MemoryBus is a single-process Bus. It is used when no Redis is configured
// and in tests.
type MemoryBus struct {
	mu      sync.Mutex
	backlog int
	logs    map[string][]Event
	subs    map[string]map[*memorySub]struct{}
	closed  bool
}

func NewMemoryBus(backlog int) *MemoryBus {
	return &MemoryBus{
		backlog: backlog,
		logs:    make(map[string][]Event),
		subs:    make(map[string]map[*memorySub]struct{}),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	topic := ev.Topic()
	if b.backlog > 0 {
		log := append(b.logs[topic], ev)
		if len(log) > b.backlog {
			log = slices.Clone(log[len(log)-b.backlog:])
		}
		b.logs[topic] = log
	}

	for sub := range b.subs[topic] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if _, _, err := SplitTopic(topic); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	past := b.logs[topic]
	sub := &memorySub{
		bus:   b,
		topic: topic,
		ch:    make(chan Event, len(past)+liveBuffer),
	}
	for _, ev := range past {
		sub.ch <- ev
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySub]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			close(sub.ch)
		}
	}
	b.subs = nil
	return nil
}

func (b *MemoryBus) remove(sub *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sub.topic]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.topic)
	}
	close(sub.ch)
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	ch    chan Event
	once  sync.Once
}

func (s *memorySub) Topic() string        { return s.topic }
func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() { s.bus.remove(s) })
	return nil
}

// MemoryPresence is a single-process Presence.
type MemoryPresence struct {
	mu   sync.Mutex
	sets map[string]map[uuid.UUID]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{sets: make(map[string]map[uuid.UUID]struct{})}
}

func (p *MemoryPresence) Join(_ context.Context, key string, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sets[key] == nil {
		p.sets[key] = make(map[uuid.UUID]struct{})
	}
	p.sets[key][userID] = struct{}{}
	return nil
}

func (p *MemoryPresence) Leave(_ context.Context, key string, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sets[key], userID)
	if len(p.sets[key]) == 0 {
		delete(p.sets, key)
	}
	return nil
}

func (p *MemoryPresence) Members(_ context.Context, key string) ([]uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uuid.UUID, 0, len(p.sets[key]))
	for id := range p.sets[key] {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return out, nil
}
