package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/liftsync/internal/wire"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

func wsPair(t *testing.T) (listener, dialer *WebSocket) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	listener = NewWebSocket(WebSocketConfig{Role: RoleListener})
	require.NoError(t, listener.Activate(ctx))
	srv := httptest.NewServer(listener.Handler())
	t.Cleanup(srv.Close)

	dialer = NewWebSocket(WebSocketConfig{
		Role:           RoleDialer,
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	require.NoError(t, dialer.Activate(ctx))
	t.Cleanup(func() {
		dialer.Close()
		listener.Close()
	})

	require.Eventually(t, func() bool {
		return listener.Reachable() && dialer.Reachable()
	}, 5*time.Second, 10*time.Millisecond)
	return listener, dialer
}

func TestWebSocketRoundTrip(t *testing.T) {
	listener, dialer := wsPair(t)
	listener.OnMessage(echoHandler)
	dialer.OnMessage(echoHandler)

	notes := "legs"
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	msg, err := wire.NewWorkoutSession(wire.SessionPayload{
		SessionID: "0190f5a0-0000-7000-8000-000000000001", StartTime: &start, Notes: &notes,
		WorkoutSets: []wire.SetPayload{{SetID: "s1", Weight: 60, Repetitions: 8, SetNumber: 1, ExerciseName: "スクワット"}},
	})
	require.NoError(t, err)

	reply, err := dialer.SendAndAwaitReply(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusSuccess, reply.Status)

	reply, err = listener.SendAndAwaitReply(context.Background(), wire.Message{Type: "mystery"})
	require.NoError(t, err)
	assert.Equal(t, wire.StatusUnknownType, reply.Status)
}

func TestWebSocketPayloadSurvivesTransit(t *testing.T) {
	listener, dialer := wsPair(t)
	got := make(chan wire.Message, 1)
	listener.OnMessage(func(_ context.Context, m wire.Message) wire.Reply {
		got <- m
		return wire.Reply{Status: wire.StatusReceived}
	})

	_, err := dialer.SendAndAwaitReply(context.Background(), wire.NewHealthKitStatus(true))
	require.NoError(t, err)

	m := <-got
	v, err := wire.Decode(m)
	require.NoError(t, err)
	assert.Equal(t, wire.HealthKitStatus{Enabled: true}, v)
}

func TestWebSocketDialerReconnects(t *testing.T) {
	listener, dialer := wsPair(t)
	listener.OnMessage(echoHandler)

	listener.lifeMu.Lock()
	conn := listener.conn
	listener.lifeMu.Unlock()
	require.NotNil(t, conn)
	require.NoError(t, conn.Close(websocket.StatusInternalError, "drop"))

	require.Eventually(t, func() bool {
		listener.lifeMu.Lock()
		fresh := listener.conn != nil && listener.conn != conn
		listener.lifeMu.Unlock()
		return fresh && listener.Reachable() && dialer.Reachable()
	}, 5*time.Second, 10*time.Millisecond)

	reply, err := dialer.SendAndAwaitReply(context.Background(), wire.NewSyncRequest())
	require.NoError(t, err)
	assert.Equal(t, wire.StatusSuccess, reply.Status)
}

func TestWebSocketListenerReplacesConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	listener := NewWebSocket(WebSocketConfig{Role: RoleListener})
	require.NoError(t, listener.Activate(ctx))
	listener.OnMessage(echoHandler)
	srv := httptest.NewServer(listener.Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	// The first peer never reads, so closing it waits on the close handshake.
	first, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { first.CloseNow() })
	require.Eventually(t, listener.Reachable, 5*time.Second, 10*time.Millisecond)
	listener.lifeMu.Lock()
	replaced := listener.conn
	listener.lifeMu.Unlock()
	require.NotNil(t, replaced)

	dialer := NewWebSocket(WebSocketConfig{Role: RoleDialer, URL: url})
	require.NoError(t, dialer.Activate(ctx))
	t.Cleanup(func() {
		dialer.Close()
		listener.Close()
	})

	// The newer connection takes over without waiting for the old one to close.
	require.Eventually(t, func() bool {
		if !listener.lifeMu.TryLock() {
			return false
		}
		defer listener.lifeMu.Unlock()
		return listener.conn != nil && listener.conn != replaced && dialer.Reachable()
	}, time.Second, 10*time.Millisecond)

	reply, err := dialer.SendAndAwaitReply(ctx, wire.NewSyncRequest())
	require.NoError(t, err)
	assert.Equal(t, wire.StatusSuccess, reply.Status)

	_, _, err = first.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWebSocketDialFailureLeavesInactive(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	d := NewWebSocket(WebSocketConfig{Role: RoleDialer, URL: url})
	err := d.Activate(context.Background())
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.Equal(t, StateInactive, d.State())
	assert.False(t, d.Reachable())
}

func TestWebSocketListenerRejectsWhenInactive(t *testing.T) {
	l := NewWebSocket(WebSocketConfig{Role: RoleListener})
	rec := httptest.NewRecorder()
	l.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/peer", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebSocketUnknownRole(t *testing.T) {
	w := NewWebSocket(WebSocketConfig{Role: "relay"})
	err := w.Activate(context.Background())
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.Equal(t, StateInactive, w.State())
}
