package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus publishes each event twice: onto a capped stream that serves as
// the topic backlog, and onto a pub/sub channel for live delivery. Both
// writes go in one MULTI so a subscriber never sees a live event that is
// missing from the backlog.
type RedisBus struct {
	rdb     *redis.Client
	backlog int64
	logger  *zap.Logger
}

func NewRedisBus(rdb *redis.Client, backlog int, logger *zap.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, backlog: int64(backlog), logger: logger}
}

func streamKey(topic string) string  { return "events:log:" + topic }
func channelKey(topic string) string { return "events:live:" + topic }

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	topic := ev.Topic()
	pipe := b.rdb.TxPipeline()
	if b.backlog > 0 {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey(topic),
			MaxLen: b.backlog,
			Values: map[string]any{"event": data},
		})
	}
	pipe.Publish(ctx, channelKey(topic), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if _, _, err := SplitTopic(topic); err != nil {
		return nil, err
	}

	// Subscribe before reading the backlog so nothing published in between
	// is lost. Events that land in both are de-duplicated by ID below.
	ps := b.rdb.Subscribe(ctx, channelKey(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	var past []Event
	if b.backlog > 0 {
		entries, err := b.rdb.XRevRangeN(ctx, streamKey(topic), "+", "-", b.backlog).Result()
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("read backlog %s: %w", topic, err)
		}
		for _, entry := range entries {
			ev, err := decodeStreamEntry(entry)
			if err != nil {
				b.logger.Warn("skipping malformed backlog entry",
					zap.String("topic", topic), zap.String("entry_id", entry.ID), zap.Error(err))
				continue
			}
			past = append(past, ev)
		}
		slices.Reverse(past)
	}

	sub := &redisSub{
		topic: topic,
		ps:    ps,
		out:   make(chan Event, len(past)+liveBuffer),
		done:  make(chan struct{}),
	}
	seen := make(map[string]struct{}, len(past))
	for _, ev := range past {
		seen[ev.ID] = struct{}{}
		sub.out <- ev
	}

	sub.wg.Add(1)
	go sub.forward(seen, b.logger)
	return sub, nil
}

func (b *RedisBus) Close() error {
	return nil
}

func decodeStreamEntry(entry redis.XMessage) (Event, error) {
	var ev Event
	raw, ok := entry.Values["event"].(string)
	if !ok {
		return ev, fmt.Errorf("entry has no event field")
	}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

type redisSub struct {
	topic string
	ps    *redis.PubSub
	out   chan Event
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func (s *redisSub) Topic() string        { return s.topic }
func (s *redisSub) Events() <-chan Event { return s.out }

func (s *redisSub) forward(seen map[string]struct{}, logger *zap.Logger) {
	defer s.wg.Done()
	defer close(s.out)

	for msg := range s.ps.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn("dropping malformed event", zap.String("topic", s.topic), zap.Error(err))
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			delete(seen, ev.ID)
			continue
		}
		select {
		case s.out <- ev:
		case <-s.done:
			return
		default:
			// Subscriber is too slow; live delivery is at most once.
		}
	}
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		s.wg.Wait()
	})
	return err
}

// RedisPresence keeps each room's members in a Redis set.
type RedisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func (p *RedisPresence) Join(ctx context.Context, key string, userID uuid.UUID) error {
	if err := p.rdb.SAdd(ctx, key, userID.String()).Err(); err != nil {
		return fmt.Errorf("join %s: %w", key, err)
	}
	return nil
}

func (p *RedisPresence) Leave(ctx context.Context, key string, userID uuid.UUID) error {
	if err := p.rdb.SRem(ctx, key, userID.String()).Err(); err != nil {
		return fmt.Errorf("leave %s: %w", key, err)
	}
	return nil
}

func (p *RedisPresence) Members(ctx context.Context, key string) ([]uuid.UUID, error) {
	raw, err := p.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", key, err)
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return out, nil
}
