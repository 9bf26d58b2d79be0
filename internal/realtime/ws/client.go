package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 64 * 1024

	// sendBuffer bounds how far a client may lag before it is disconnected.
	sendBuffer = 256
)

// Ops a client can send.
const (
	OpEmit        = "emit"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpJoin        = "join"
	OpLeave       = "leave"
)

type inbound struct {
	Op       string          `json:"op"`
	Room     string          `json:"room,omitempty"`
	Event    string          `json:"event,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	RoomType string          `json:"room_type,omitempty"`
	RoomID   string          `json:"room_id,omitempty"`
}

type outbound struct {
	Type     string          `json:"type"`
	Op       string          `json:"op,omitempty"`
	Topic    string          `json:"topic,omitempty"`
	Event    *realtime.Event `json:"event,omitempty"`
	Members  []uuid.UUID     `json:"members,omitempty"`
	RoomType string          `json:"room_type,omitempty"`
	RoomID   string          `json:"room_id,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type presenceRoom struct{ roomType, roomID string }

// client is one WebSocket connection. The read pump handles ops, the write
// pump owns all writes to the socket, and each subscription has a forwarder
// feeding the write pump.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID
	send   chan []byte
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[string]realtime.Subscription
	joined map[presenceRoom]struct{}
	wg     sync.WaitGroup
}

func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(outbound{Type: "error", Error: "malformed frame"})
			continue
		}
		c.handle(msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *client) handle(msg inbound) {
	ctx := c.ctx
	switch msg.Op {
	case OpSubscribe:
		topic := realtime.Topic(msg.Room, msg.Event)
		if err := c.hub.authz.CanAccess(ctx, c.userID, msg.Room); err != nil {
			c.deny(msg.Op, err)
			return
		}
		c.mu.Lock()
		_, exists := c.subs[topic]
		c.mu.Unlock()
		if exists {
			c.reply(outbound{Type: "ack", Op: msg.Op, Topic: topic})
			return
		}
		sub, err := c.hub.adapter.Subscribe(ctx, msg.Room, msg.Event)
		if err != nil {
			c.fail(msg.Op, err)
			return
		}
		c.mu.Lock()
		if c.ctx.Err() != nil {
			c.mu.Unlock()
			_ = sub.Close()
			return
		}
		c.subs[topic] = sub
		c.wg.Add(1)
		c.mu.Unlock()
		c.reply(outbound{Type: "ack", Op: msg.Op, Topic: topic})
		go c.forward(sub)

	case OpUnsubscribe:
		topic := realtime.Topic(msg.Room, msg.Event)
		c.mu.Lock()
		sub, ok := c.subs[topic]
		delete(c.subs, topic)
		c.mu.Unlock()
		if ok {
			_ = sub.Close()
		}
		c.reply(outbound{Type: "ack", Op: msg.Op, Topic: topic})

	case OpEmit:
		if err := c.hub.authz.CanEmit(ctx, c.userID, msg.Room); err != nil {
			c.deny(msg.Op, err)
			return
		}
		ev, err := c.hub.adapter.Emit(ctx, c.userID, msg.Event, msg.Room, msg.Payload)
		if err != nil {
			c.fail(msg.Op, err)
			return
		}
		c.reply(outbound{Type: "ack", Op: msg.Op, Topic: ev.Topic()})

	case OpJoin, OpLeave:
		room := realtime.PresenceKey(msg.RoomType, msg.RoomID)
		if err := c.hub.authz.CanAccess(ctx, c.userID, msg.RoomType+":"+msg.RoomID); err != nil {
			c.deny(msg.Op, err)
			return
		}
		key := presenceRoom{msg.RoomType, msg.RoomID}
		var err error
		if msg.Op == OpJoin {
			err = c.hub.adapter.JoinRoom(ctx, msg.RoomType, msg.RoomID, c.userID)
			if err == nil {
				c.mu.Lock()
				c.joined[key] = struct{}{}
				c.mu.Unlock()
			}
		} else {
			err = c.hub.adapter.LeaveRoom(ctx, msg.RoomType, msg.RoomID, c.userID)
			c.mu.Lock()
			delete(c.joined, key)
			c.mu.Unlock()
		}
		if err != nil {
			c.fail(msg.Op, err)
			return
		}
		members, err := c.hub.adapter.RoomMembers(ctx, msg.RoomType, msg.RoomID)
		if err != nil {
			c.fail(msg.Op, err)
			return
		}
		c.reply(outbound{Type: "members", Op: msg.Op, Topic: room, RoomType: msg.RoomType, RoomID: msg.RoomID, Members: members})

	default:
		c.reply(outbound{Type: "error", Op: msg.Op, Error: "unknown op"})
	}
}

func (c *client) forward(sub realtime.Subscription) {
	defer c.wg.Done()
	for ev := range sub.Events() {
		if !c.reply(outbound{Type: "event", Topic: sub.Topic(), Event: &ev}) {
			return
		}
	}
}

// reply queues a frame for the write pump. A client whose buffer is full is
// disconnected rather than allowed to stall its publishers.
func (c *client) reply(msg outbound) bool {
	frame, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode frame", zap.Error(err))
		return true
	}
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("dropping slow websocket client", zap.String("user_id", c.userID.String()))
		c.cancel()
		return false
	}
}

func (c *client) fail(op string, err error) {
	msg := "request failed"
	if errors.Is(err, realtime.ErrInvalidTopic) {
		msg = err.Error()
	} else {
		c.logger.Error("websocket op failed", zap.String("op", op), zap.Error(err))
	}
	c.reply(outbound{Type: "error", Op: op, Error: msg})
}

func (c *client) deny(op string, err error) {
	c.logger.Debug("websocket op denied",
		zap.String("op", op), zap.String("user_id", c.userID.String()), zap.Error(err))
	c.reply(outbound{Type: "error", Op: op, Error: "forbidden"})
}

// close releases every subscription and presence entry the client holds.
func (c *client) close() {
	c.cancel()

	c.mu.Lock()
	subs := c.subs
	joined := c.joined
	c.subs = make(map[string]realtime.Subscription)
	c.joined = make(map[presenceRoom]struct{})
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	for room := range joined {
		if err := c.hub.adapter.LeaveRoom(ctx, room.roomType, room.roomID, c.userID); err != nil {
			c.logger.Warn("failed to clear presence", zap.String("room_id", room.roomID), zap.Error(err))
		}
	}
	_ = c.conn.Close()
}
