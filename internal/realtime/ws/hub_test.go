package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/studybuddy/internal/middleware"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDenied = errors.New("denied")

// roomAuthorizer allows a fixed set of rooms to everyone.
type roomAuthorizer map[string]bool

func (a roomAuthorizer) CanAccess(_ context.Context, _ uuid.UUID, room string) error {
	if !a[room] {
		return errDenied
	}
	return nil
}

func (a roomAuthorizer) CanEmit(ctx context.Context, userID uuid.UUID, room string) error {
	return a.CanAccess(ctx, userID, room)
}

type testServer struct {
	hub     *Hub
	adapter *realtime.Adapter
	url     string
}

func newTestServer(t *testing.T, authz Authorizer) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	adapter := realtime.NewAdapter(realtime.NewMemoryBus(16), realtime.NewMemoryPresence())
	hub := NewHub(adapter, authz, zap.NewNop())

	r := gin.New()
	r.GET("/v1/ws", func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-User-ID")); err == nil {
			c.Set(middleware.ContextKeyUserID, id)
		}
		c.Next()
	}, hub.Serve)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{
		hub:     hub,
		adapter: adapter,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws",
	}
}

func (s *testServer) dial(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("X-User-ID", userID.String())
	conn, resp, err := websocket.DefaultDialer.Dial(s.url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg inbound) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func next(t *testing.T, conn *websocket.Conn) outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out outbound
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestHub_SubscribeAndEmit(t *testing.T) {
	room := "study_room:" + uuid.NewString()
	srv := newTestServer(t, roomAuthorizer{room: true})

	alice := srv.dial(t, uuid.New())
	bobID := uuid.New()
	bob := srv.dial(t, bobID)

	send(t, alice, inbound{Op: OpSubscribe, Room: room, Event: "typing"})
	ack := next(t, alice)
	assert.Equal(t, "ack", ack.Type)
	assert.Equal(t, realtime.Topic(room, "typing"), ack.Topic)

	send(t, bob, inbound{Op: OpEmit, Room: room, Event: "typing", Payload: []byte(`{"typing":true}`)})
	assert.Equal(t, "ack", next(t, bob).Type)

	ev := next(t, alice)
	require.Equal(t, "event", ev.Type)
	require.NotNil(t, ev.Event)
	assert.Equal(t, bobID, ev.Event.Sender)
	assert.Equal(t, "typing", ev.Event.Name)
	assert.JSONEq(t, `{"typing":true}`, string(ev.Event.Payload))
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	room := "community:" + uuid.NewString()
	srv := newTestServer(t, roomAuthorizer{room: true})
	conn := srv.dial(t, uuid.New())

	send(t, conn, inbound{Op: OpSubscribe, Room: room, Event: realtime.EventPostCreated})
	assert.Equal(t, "ack", next(t, conn).Type)
	send(t, conn, inbound{Op: OpUnsubscribe, Room: room, Event: realtime.EventPostCreated})
	assert.Equal(t, "ack", next(t, conn).Type)

	_, err := srv.adapter.Emit(context.Background(), uuid.New(), realtime.EventPostCreated, room, nil)
	require.NoError(t, err)

	// The next frame must be the reply to this op, not the emitted event.
	send(t, conn, inbound{Op: "shout"})
	out := next(t, conn)
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, "unknown op", out.Error)
}

func TestHub_DeniesForeignRooms(t *testing.T) {
	srv := newTestServer(t, roomAuthorizer{})
	conn := srv.dial(t, uuid.New())

	for _, msg := range []inbound{
		{Op: OpSubscribe, Room: "user:" + uuid.NewString(), Event: realtime.EventNotificationCreated},
		{Op: OpEmit, Room: "study_room:x", Event: "typing"},
		{Op: OpJoin, RoomType: "study_room", RoomID: "x"},
	} {
		send(t, conn, msg)
		out := next(t, conn)
		assert.Equal(t, "error", out.Type, msg.Op)
		assert.Equal(t, "forbidden", out.Error, msg.Op)
	}
}

func TestHub_MalformedFrame(t *testing.T) {
	srv := newTestServer(t, roomAuthorizer{})
	conn := srv.dial(t, uuid.New())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	out := next(t, conn)
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, "malformed frame", out.Error)
}

func TestHub_PresenceClearedOnDisconnect(t *testing.T) {
	roomID := uuid.NewString()
	srv := newTestServer(t, roomAuthorizer{"study_room:" + roomID: true})

	aliceID, bobID := uuid.New(), uuid.New()
	alice := srv.dial(t, aliceID)
	bob := srv.dial(t, bobID)

	send(t, alice, inbound{Op: OpJoin, RoomType: "study_room", RoomID: roomID})
	assert.Equal(t, []uuid.UUID{aliceID}, next(t, alice).Members)

	send(t, bob, inbound{Op: OpJoin, RoomType: "study_room", RoomID: roomID})
	out := next(t, bob)
	assert.Equal(t, "members", out.Type)
	assert.ElementsMatch(t, []uuid.UUID{aliceID, bobID}, out.Members)

	require.NoError(t, alice.Close())

	ctx := context.Background()
	require.Eventually(t, func() bool {
		members, err := srv.adapter.RoomMembers(ctx, "study_room", roomID)
		return err == nil && len(members) == 1 && members[0] == bobID
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RejectsAnonymous(t *testing.T) {
	srv := newTestServer(t, roomAuthorizer{})

	_, resp, err := websocket.DefaultDialer.Dial(srv.url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	srv := newTestServer(t, roomAuthorizer{})
	conn := srv.dial(t, uuid.New())
	require.Eventually(t, func() bool { return srv.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.hub.Close()
	assert.Equal(t, 0, srv.hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	late := srv.dial(t, uuid.New())
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	require.Error(t, err, "connections after Close are dropped")
	assert.Equal(t, 0, srv.hub.Clients())
}
