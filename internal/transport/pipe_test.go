package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/liftsync/internal/wire"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

func activePipe(t *testing.T) (*Pipe, *Pipe) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	watch, phone := NewPipe()
	require.NoError(t, watch.Activate(ctx))
	require.NoError(t, phone.Activate(ctx))
	t.Cleanup(func() {
		watch.Close()
		phone.Close()
	})
	return watch, phone
}

func echoHandler(_ context.Context, m wire.Message) wire.Reply {
	switch m.Type {
	case wire.TypeHealthKitStatus:
		return wire.Reply{Status: wire.StatusReceived}
	case wire.TypeSyncRequest, wire.TypeWorkoutSession:
		return wire.Reply{Status: wire.StatusSuccess}
	default:
		return wire.Reply{Status: wire.StatusUnknownType}
	}
}

func TestPipeRequestReply(t *testing.T) {
	watch, phone := activePipe(t)
	phone.OnMessage(echoHandler)
	watch.OnMessage(echoHandler)

	tests := []struct {
		name string
		msg  wire.Message
		want wire.Status
	}{
		{"sync request", wire.NewSyncRequest(), wire.StatusSuccess},
		{"health status", wire.NewHealthKitStatus(true), wire.StatusReceived},
		{"unknown type", wire.Message{Type: "mystery"}, wire.StatusUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := watch.SendAndAwaitReply(context.Background(), tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Status)

			reply, err = phone.SendAndAwaitReply(context.Background(), tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Status)
		})
	}
}

func TestPipeReachability(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watch, phone := NewPipe()

	assert.Equal(t, StateInactive, watch.State())
	assert.False(t, watch.Reachable())

	ch, unsubscribe := watch.Subscribe()
	defer unsubscribe()
	assert.False(t, <-ch)

	require.NoError(t, watch.Activate(ctx))
	assert.Equal(t, StateActive, watch.State())
	assert.False(t, watch.Reachable(), "no peer yet")

	require.NoError(t, phone.Activate(ctx))
	assert.True(t, watch.Reachable())
	assert.True(t, phone.Reachable())
	assert.Eventually(t, func() bool {
		select {
		case v := <-ch:
			return v
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, phone.Close())
	assert.False(t, watch.Reachable())
	assert.False(t, phone.Reachable())
	assert.Equal(t, StateActive, watch.State())
}

func TestPipeSendWithoutPeer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watch, _ := NewPipe()
	require.NoError(t, watch.Activate(ctx))

	_, err := watch.SendAndAwaitReply(ctx, wire.NewSyncRequest())
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.ErrorIs(t, err, ErrNotReachable)
}

func TestPipeNoHandler(t *testing.T) {
	watch, _ := activePipe(t)
	_, err := watch.SendAndAwaitReply(context.Background(), wire.NewSyncRequest())
	assert.ErrorIs(t, err, types.ErrTransport)
}

func TestPipeCancelledSendLeavesSessionUsable(t *testing.T) {
	watch, phone := activePipe(t)
	release := make(chan struct{})
	phone.OnMessage(func(ctx context.Context, m wire.Message) wire.Reply {
		if m.Type == wire.TypeSyncRequest {
			<-release
		}
		return wire.Reply{Status: wire.StatusSuccess}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := watch.SendAndAwaitReply(ctx, wire.NewSyncRequest())
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)

	reply, err := watch.SendAndAwaitReply(context.Background(), wire.NewHealthKitStatus(false))
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.True(t, watch.Reachable())
}

func TestPipeDisconnectFailsPendingRequest(t *testing.T) {
	watch, phone := activePipe(t)
	entered := make(chan struct{})
	phone.OnMessage(func(ctx context.Context, m wire.Message) wire.Reply {
		close(entered)
		<-ctx.Done()
		return wire.Reply{Status: wire.StatusSuccess}
	})

	errc := make(chan error, 1)
	go func() {
		_, err := watch.SendAndAwaitReply(context.Background(), wire.NewSyncRequest())
		errc <- err
	}()
	<-entered
	require.NoError(t, phone.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, types.ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not failed after disconnect")
	}
}

func TestBackoffDelay(t *testing.T) {
	b := backoff{initial: 100 * time.Millisecond, max: time.Second, multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{60, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"request", `{"id":1,"kind":"request","message":{"type":"syncRequest"}}`, false},
		{"reply", `{"id":1,"kind":"reply","reply":{"status":"success"}}`, false},
		{"failure", `{"id":1,"kind":"failure","error":"boom"}`, false},
		{"request without message", `{"id":1,"kind":"request"}`, true},
		{"reply without body", `{"id":1,"kind":"reply"}`, true},
		{"unknown kind", `{"id":1,"kind":"ping"}`, true},
		{"not json", `nope`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeFrame([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
