// Package realtime delivers change events to connected clients.
//
// An event is addressed to a topic, "<room>/<event>", and the broker does
// the filtering: a subscriber to "study_room:42/message.created" never sees
// anything else. Each topic also keeps a short backlog so a client that
// subscribes late still gets the most recent events before the live ones.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event names published by the services.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationChanged = "notification.changed"
	EventPostCreated         = "post.created"
	EventPostChanged         = "post.changed"
	EventMessageCreated      = "message.created"
	EventMessageChanged      = "message.changed"
	EventParticipantJoined   = "participant.joined"
	EventParticipantLeft     = "participant.left"
	EventResourceChanged     = "resource.changed"
	EventCommunityChanged    = "community.changed"
	EventCommunityDeleted    = "community.deleted"
	EventRoomDeleted         = "study_room.deleted"
)

var ErrInvalidTopic = errors.New("invalid topic")

// Event is one change notification.
type Event struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Room      string          `json:"room"`
	Sender    uuid.UUID       `json:"sender"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Topic returns the key an event is published and subscribed under.
func (e Event) Topic() string {
	return Topic(e.Room, e.Name)
}

func Topic(room, event string) string {
	return room + "/" + event
}

// SplitTopic is the inverse of Topic.
func SplitTopic(topic string) (room, event string, err error) {
	i := strings.LastIndex(topic, "/")
	if i <= 0 || i == len(topic)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return topic[:i], topic[i+1:], nil
}

// UserRoom is the private room every user's notifications go to.
func UserRoom(userID uuid.UUID) string { return "user:" + userID.String() }

func CommunityRoom(communityID uuid.UUID) string { return "community:" + communityID.String() }

func StudyRoomRoom(roomID uuid.UUID) string { return "study_room:" + roomID.String() }

// Subscription streams the events of one topic. Events is closed after
// Close or when the underlying connection goes away.
type Subscription interface {
	Topic() string
	Events() <-chan Event
	Close() error
}

// Bus is the transport events travel over.
type Bus interface {
	Publish(ctx context.Context, ev Event) error

	// Subscribe delivers up to the configured backlog of past events for
	// topic, oldest first, and then live events as they are published.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	Close() error
}

// Presence tracks who is currently in a room.
type Presence interface {
	Join(ctx context.Context, key string, userID uuid.UUID) error
	Leave(ctx context.Context, key string, userID uuid.UUID) error
	Members(ctx context.Context, key string) ([]uuid.UUID, error)
}

// PresenceKey names the presence set for a room, for example
// "rooms/study_room_<id>".
func PresenceKey(roomType, roomID string) string {
	return "rooms/" + roomType + "_" + roomID
}

// Adapter is the surface the services and the WebSocket endpoint use.
type Adapter struct {
	bus      Bus
	presence Presence
	now      func() time.Time
}

func NewAdapter(bus Bus, presence Presence) *Adapter {
	return &Adapter{bus: bus, presence: presence, now: time.Now}
}

// Emit publishes payload as event in room on behalf of sender.
func (a *Adapter) Emit(ctx context.Context, sender uuid.UUID, event, room string, payload any) (Event, error) {
	if err := validateName(room); err != nil {
		return Event{}, err
	}
	if err := validateName(event); err != nil {
		return Event{}, err
	}
	if strings.Contains(event, "/") {
		return Event{}, fmt.Errorf("%w: event name %q contains '/'", ErrInvalidTopic, event)
	}

	ev := Event{
		ID:        uuid.NewString(),
		Name:      event,
		Room:      room,
		Sender:    sender,
		Timestamp: a.now().UTC(),
	}
	if payload != nil {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			var err error
			if raw, err = json.Marshal(payload); err != nil {
				return Event{}, fmt.Errorf("encode payload: %w", err)
			}
		}
		ev.Payload = raw
	}

	if err := a.bus.Publish(ctx, ev); err != nil {
		return Event{}, fmt.Errorf("publish %s: %w", ev.Topic(), err)
	}
	return ev, nil
}

func (a *Adapter) Subscribe(ctx context.Context, room, event string) (Subscription, error) {
	if err := validateName(room); err != nil {
		return nil, err
	}
	if err := validateName(event); err != nil {
		return nil, err
	}
	return a.bus.Subscribe(ctx, Topic(room, event))
}

func (a *Adapter) JoinRoom(ctx context.Context, roomType, roomID string, userID uuid.UUID) error {
	if roomType == "" || roomID == "" {
		return fmt.Errorf("%w: empty room", ErrInvalidTopic)
	}
	return a.presence.Join(ctx, PresenceKey(roomType, roomID), userID)
}

func (a *Adapter) LeaveRoom(ctx context.Context, roomType, roomID string, userID uuid.UUID) error {
	if roomType == "" || roomID == "" {
		return fmt.Errorf("%w: empty room", ErrInvalidTopic)
	}
	return a.presence.Leave(ctx, PresenceKey(roomType, roomID), userID)
}

func (a *Adapter) RoomMembers(ctx context.Context, roomType, roomID string) ([]uuid.UUID, error) {
	return a.presence.Members(ctx, PresenceKey(roomType, roomID))
}

func validateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTopic)
	}
	return nil
}
