// Package transport carries sync messages between the two devices of a
// pair. A session delivers requests to a single consumer goroutine that runs
// the registered Handler, and lets the local side send one request at a
// time and wait for the peer's reply.
//
// Two implementations exist: Pipe connects two sessions in process, and
// WebSocket connects a listener (phone) and a dialer (watch) over
// github.com/coder/websocket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mesh-intelligence/liftsync/internal/logging"
	"github.com/mesh-intelligence/liftsync/internal/wire"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// State is the activation state of a session.
type State int32

// Session states.
const (
	StateInactive State = iota
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Handler answers one inbound request.
type Handler func(ctx context.Context, m wire.Message) wire.Reply

// ErrNotReachable is returned when a send is attempted without a connected
// peer.
var ErrNotReachable = errors.New("peer not reachable")

// inboundQueueSize bounds requests waiting for the consumer.
const inboundQueueSize = 64

type frameKind string

const (
	kindRequest frameKind = "request"
	kindReply   frameKind = "reply"
	kindFailure frameKind = "failure"
)

// frame is the unit exchanged on a link.
type frame struct {
	ID      uint64        `json:"id"`
	Kind    frameKind     `json:"kind"`
	Message *wire.Message `json:"message,omitempty"`
	Reply   *wire.Reply   `json:"reply,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func encodeFrame(f frame) ([]byte, error) {
	return json.Marshal(f)
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	switch f.Kind {
	case kindRequest:
		if f.Message == nil {
			return frame{}, fmt.Errorf("request frame %d without message", f.ID)
		}
	case kindReply:
		if f.Reply == nil {
			return frame{}, fmt.Errorf("reply frame %d without reply", f.ID)
		}
	case kindFailure:
	default:
		return frame{}, fmt.Errorf("frame %d: unknown kind %q", f.ID, f.Kind)
	}
	return f, nil
}

// link writes frames to the connected peer.
type link interface {
	write(ctx context.Context, f frame) error
}

// peer is the machinery shared by every session implementation:
// reachability observers, the pending request table, the inbound queue and
// its consumer.
type peer struct {
	logger *slog.Logger
	state  atomic.Int32

	// sending admits one in-flight request.
	sending chan struct{}
	nextID  atomic.Uint64

	mu      sync.Mutex
	current link
	handler Handler
	pending map[uint64]chan frame
	subs    map[int]chan bool
	nextSub int

	inbound chan frame
}

func newPeer(logger *slog.Logger) *peer {
	return &peer{
		logger:  logging.Component(logger, "transport"),
		sending: make(chan struct{}, 1),
		pending: make(map[uint64]chan frame),
		subs:    make(map[int]chan bool),
		inbound: make(chan frame, inboundQueueSize),
	}
}

// State returns the activation state.
func (p *peer) State() State {
	return State(p.state.Load())
}

func (p *peer) setState(s State) {
	p.state.Store(int32(s))
}

// Reachable reports whether the session is active and a peer is connected.
func (p *peer) Reachable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reachableLocked()
}

func (p *peer) reachableLocked() bool {
	return p.current != nil && p.State() == StateActive
}

// Subscribe returns a channel that receives the reachability after every
// change, starting with the current value. Only the latest value is kept if
// the reader falls behind. cancel releases the subscription.
func (p *peer) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	ch <- p.reachableLocked()
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

func (p *peer) notifyLocked() {
	v := p.reachableLocked()
	for _, ch := range p.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// OnMessage registers the handler for inbound requests, replacing any
// previous one.
func (p *peer) OnMessage(h Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// attach makes l the link to the peer.
func (p *peer) attach(l link) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = l
	p.notifyLocked()
	p.logger.Info("peer connected")
}

// detach drops l if it is still current and fails every pending request.
func (p *peer) detach(l link) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != l {
		return
	}
	p.current = nil
	for id, ch := range p.pending {
		ch <- frame{ID: id, Kind: kindFailure, Error: ErrNotReachable.Error()}
		delete(p.pending, id)
	}
	p.notifyLocked()
	p.logger.Info("peer disconnected")
}

// refresh re-announces reachability after a state change.
func (p *peer) refresh() {
	p.mu.Lock()
	p.notifyLocked()
	p.mu.Unlock()
}

// deliver routes a frame read from the link.
func (p *peer) deliver(ctx context.Context, f frame) error {
	switch f.Kind {
	case kindRequest:
		select {
		case p.inbound <- f:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		p.mu.Lock()
		ch, ok := p.pending[f.ID]
		delete(p.pending, f.ID)
		p.mu.Unlock()
		if !ok {
			p.logger.Debug("dropping unmatched frame", "id", f.ID, "kind", f.Kind)
			return nil
		}
		ch <- f
		return nil
	}
}

// consume runs the handler for queued requests until ctx ends.
func (p *peer) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-p.inbound:
			p.handle(ctx, f)
		}
	}
}

func (p *peer) handle(ctx context.Context, f frame) {
	p.mu.Lock()
	h := p.handler
	l := p.current
	p.mu.Unlock()

	out := frame{ID: f.ID}
	if h == nil {
		out.Kind = kindFailure
		out.Error = "no handler registered"
	} else {
		reply := h(ctx, *f.Message)
		out.Kind = kindReply
		out.Reply = &reply
	}

	if l == nil {
		p.logger.Warn("reply dropped, peer gone", "id", f.ID, "type", f.Message.Type)
		return
	}
	if err := l.write(ctx, out); err != nil {
		p.logger.Warn("writing reply failed", "id", f.ID, "error", err)
	}
}

// SendAndAwaitReply sends m and blocks until the peer answers, the link
// drops or ctx ends. One request is in flight at a time; callers queue.
// Every failure matches types.ErrTransport.
func (p *peer) SendAndAwaitReply(ctx context.Context, m wire.Message) (wire.Reply, error) {
	select {
	case p.sending <- struct{}{}:
	case <-ctx.Done():
		return wire.Reply{}, types.NewOpError("transport.send", types.ErrTransport, ctx.Err())
	}
	defer func() { <-p.sending }()

	id := p.nextID.Add(1)
	ch := make(chan frame, 1)

	p.mu.Lock()
	l := p.current
	if !p.reachableLocked() {
		p.mu.Unlock()
		return wire.Reply{}, types.NewOpError("transport.send", types.ErrTransport, ErrNotReachable)
	}
	p.pending[id] = ch
	p.mu.Unlock()

	if err := l.write(ctx, frame{ID: id, Kind: kindRequest, Message: &m}); err != nil {
		p.forget(id)
		return wire.Reply{}, types.NewOpError("transport.send", types.ErrTransport, err)
	}

	select {
	case f := <-ch:
		if f.Kind == kindFailure {
			return wire.Reply{}, types.NewOpError("transport.send", types.ErrTransport, errors.New(f.Error))
		}
		return *f.Reply, nil
	case <-ctx.Done():
		p.forget(id)
		return wire.Reply{}, types.NewOpError("transport.send", types.ErrTransport, ctx.Err())
	}
}

func (p *peer) forget(id uint64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}
