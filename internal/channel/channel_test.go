package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"separation-service/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	base := time.Second
	cap := 30 * time.Second

	assert.Equal(t, 1*time.Second, Backoff(0, base, cap))
	assert.Equal(t, 2*time.Second, Backoff(1, base, cap))
	assert.Equal(t, 4*time.Second, Backoff(2, base, cap))
	assert.Equal(t, 8*time.Second, Backoff(3, base, cap))
	assert.Equal(t, 16*time.Second, Backoff(4, base, cap))
	// Capped from here on out.
	assert.Equal(t, cap, Backoff(5, base, cap))
	assert.Equal(t, cap, Backoff(20, base, cap))
	// Shift overflow must not produce a negative delay.
	assert.Equal(t, cap, Backoff(63, base, cap))
	assert.Equal(t, base, Backoff(-1, base, cap))
}

func TestClosureClassification(t *testing.T) {
	policy := &websocket.CloseError{Code: websocket.ClosePolicyViolation}
	normal := &websocket.CloseError{Code: websocket.CloseNormalClosure}
	away := &websocket.CloseError{Code: websocket.CloseGoingAway}
	abnormal := &websocket.CloseError{Code: websocket.CloseAbnormalClosure}

	assert.True(t, isAuthRejection(policy))
	assert.False(t, isAuthRejection(normal))

	assert.True(t, isNormalClosure(normal))
	assert.True(t, isNormalClosure(away))
	assert.False(t, isNormalClosure(abnormal))
	assert.False(t, isNormalClosure(policy))
}

// wsTestServer upgrades connections and records the command frames it
// receives.
type wsTestServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	commands []models.Envelope
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	ts := &wsTestServer{}
	upgrader := websocket.Upgrader{}

	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var env models.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ts.mu.Lock()
			ts.commands = append(ts.commands, env)
			ts.mu.Unlock()
		}
	}))
	return ts
}

func (ts *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *wsTestServer) commandTypes() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	types := make([]string, len(ts.commands))
	for i, env := range ts.commands {
		types[i] = env.Type
	}
	return types
}

func TestConnectSendsJoinAndSubscribe(t *testing.T) {
	ts := newWSTestServer(t)
	defer ts.srv.Close()

	var mu sync.Mutex
	var states []State
	ch := New(Options{
		URL:     ts.url(),
		OrderID: 42,
		OnStatus: func(state State, err error) {
			mu.Lock()
			states = append(states, state)
			mu.Unlock()
		},
	})

	require.NoError(t, ch.Connect(context.Background()))
	assert.Equal(t, StateOpen, ch.State())

	require.Eventually(t, func() bool {
		return len(ts.commandTypes()) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{models.CommandJoinOrder, models.CommandSubscribe}, ts.commandTypes()[:2])

	ch.Disconnect()
	assert.Equal(t, StateClosed, ch.State())

	// leave_order went out before the close frame.
	require.Eventually(t, func() bool {
		types := ts.commandTypes()
		return len(types) >= 3 && types[len(types)-1] == models.CommandLeaveOrder
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, StateConnecting, states[0])
	assert.Contains(t, states, StateOpen)
	assert.Equal(t, StateClosed, states[len(states)-1])
}

func TestConnectRoutesInboundFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		env, _ := models.NewEnvelope(models.EventOrderUpdated, models.OrderEvent{OrderID: 42})
		_ = conn.WriteJSON(env)

		// Keep the connection open until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	received := make(chan models.OrderEvent, 1)
	router := NewRouter()
	router.OnOrderUpdated(func(ev models.OrderEvent) { received <- ev })

	ch := New(Options{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		OrderID: 42,
		Router:  router,
	})
	require.NoError(t, ch.Connect(context.Background()))
	defer ch.Disconnect()

	select {
	case ev := <-received:
		assert.Equal(t, int64(42), ev.OrderID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for routed frame")
	}
}

func TestAuthRejectionIsFatal(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"), deadline)
		conn.Close()
	}))
	defer srv.Close()

	errs := make(chan error, 4)
	ch := New(Options{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		OrderID: 42,
		OnStatus: func(state State, err error) {
			if state == StateClosed {
				errs <- err
			}
		},
	})
	require.NoError(t, ch.Connect(context.Background()))
	defer ch.Disconnect()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrAuthRejected)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth rejection")
	}
}

func TestAbnormalClosureSchedulesReconnect(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the connection without a close frame.
		conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	ch := New(Options{
		URL:         "ws" + strings.TrimPrefix(srv.URL, "http"),
		OrderID:     42,
		BackoffBase: 5 * time.Millisecond,
		BackoffCap:  20 * time.Millisecond,
		MaxAttempts: 3,
	})
	require.NoError(t, ch.Connect(context.Background()))
	defer ch.Disconnect()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectBudgetExhausts(t *testing.T) {
	// Nothing is listening here, so every dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusServiceUnavailable)
	}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	errs := make(chan error, 8)
	ch := New(Options{
		URL:         url,
		OrderID:     42,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
		MaxAttempts: 2,
		OnStatus: func(state State, err error) {
			if err != nil {
				errs <- err
			}
		},
	})
	_ = ch.Connect(context.Background())
	defer ch.Disconnect()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrReconnectExhausted)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exhaustion")
	}
}
