package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"separation-service/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hubHarness upgrades incoming connections and registers them on the
// hub, handing the server-side Conn back to the test.
type hubHarness struct {
	hub *Hub
	srv *httptest.Server

	mu    sync.Mutex
	conns map[int64]*Conn
}

func newHubHarness(t *testing.T) *hubHarness {
	t.Helper()
	h := &hubHarness{hub: NewHub(), conns: make(map[int64]*Conn)}
	upgrader := websocket.Upgrader{}

	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		userID, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
		conn := h.hub.Register(ws, userID, r.URL.Query().Get("user_name"), "separator", "")
		h.mu.Lock()
		h.conns[userID] = conn
		h.mu.Unlock()

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				h.hub.Disconnect(conn)
				return
			}
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *hubHarness) dial(t *testing.T, userID, userName string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "?user_id=" + userID + "&user_name=" + userName
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func (h *hubHarness) serverConn(t *testing.T, userID int64) *Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		conn, ok := h.conns[userID]
		h.mu.Unlock()
		if ok {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection for user %d never registered", userID)
	return nil
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func readType(t *testing.T, conn *websocket.Conn, eventType string) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env models.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == eventType {
			return env
		}
	}
}

func TestBroadcastToOrderReachesOnlyJoinedUsers(t *testing.T) {
	h := newHubHarness(t)

	maria := h.dial(t, "1", "Maria")
	defer maria.Close()
	jose := h.dial(t, "2", "Jose")
	defer jose.Close()

	h.hub.JoinOrder(h.serverConn(t, 1), 42)

	h.hub.BroadcastToOrder(42, models.EventOrderUpdated, models.OrderEvent{OrderID: 42})

	env := readType(t, maria, models.EventOrderUpdated)
	var ev models.OrderEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, int64(42), ev.OrderID)

	// José never joined order 42; he must not see the frame.
	require.NoError(t, jose.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var stray models.Envelope
	err := jose.ReadJSON(&stray)
	require.Error(t, err)
}

func TestJoinAnnouncesPresence(t *testing.T) {
	h := newHubHarness(t)

	maria := h.dial(t, "1", "Maria")
	defer maria.Close()
	h.hub.JoinOrder(h.serverConn(t, 1), 42)
	readType(t, maria, models.EventPresenceUpdate)

	jose := h.dial(t, "2", "Jose")
	defer jose.Close()
	h.hub.JoinOrder(h.serverConn(t, 2), 42)

	env := readType(t, maria, models.EventUserJoined)
	var ev models.PresenceEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, int64(2), ev.UserID)
	assert.Equal(t, "Jose", ev.UserName)

	env = readType(t, maria, models.EventPresenceUpdate)
	var snap models.PresenceSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Len(t, snap.ActiveUsers, 2)

	users := h.hub.UsersInOrder(42)
	assert.Len(t, users, 2)

	// Joining twice is a no-op; no duplicate announcements.
	h.hub.JoinOrder(h.serverConn(t, 2), 42)
	assert.Len(t, h.hub.UsersInOrder(42), 2)
}

func TestDisconnectSweepsOrdersAndAnnouncesGlobally(t *testing.T) {
	h := newHubHarness(t)

	maria := h.dial(t, "1", "Maria")
	defer maria.Close()
	h.hub.JoinOrder(h.serverConn(t, 1), 42)
	readType(t, maria, models.EventPresenceUpdate)

	jose := h.dial(t, "2", "Jose")
	h.hub.JoinOrder(h.serverConn(t, 2), 42)
	readType(t, maria, models.EventPresenceUpdate)

	// Closing José's socket disconnects him server-side.
	jose.Close()

	env := readType(t, maria, models.EventUserLeft)
	var ev models.PresenceEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, int64(2), ev.UserID)

	require.Eventually(t, func() bool {
		return len(h.hub.UsersInOrder(42)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendAfterDisconnectIsDropped(t *testing.T) {
	h := newHubHarness(t)

	maria := h.dial(t, "1", "Maria")
	conn := h.serverConn(t, 1)
	h.hub.JoinOrder(conn, 42)
	maria.Close()

	require.Eventually(t, func() bool {
		return len(h.hub.UsersInOrder(42)) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Frames for a torn-down connection are dropped, never panic.
	h.hub.Send(conn, models.EventOrderUpdated, models.OrderEvent{OrderID: 42})
	h.hub.BroadcastAll(models.EventOrderUpdated, models.OrderEvent{OrderID: 42})

	// Disconnecting twice is equally harmless.
	h.hub.Disconnect(conn)
}

func TestLeaveOrderRemovesFromFanout(t *testing.T) {
	h := newHubHarness(t)

	maria := h.dial(t, "1", "Maria")
	defer maria.Close()
	conn := h.serverConn(t, 1)

	h.hub.JoinOrder(conn, 42)
	readType(t, maria, models.EventPresenceUpdate)

	h.hub.LeaveOrder(conn, 42)
	assert.Empty(t, h.hub.UsersInOrder(42))

	// Leaving an order never joined is harmless.
	h.hub.LeaveOrder(conn, 99)
}
