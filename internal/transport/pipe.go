package transport

import (
	"context"
	"log/slog"
	"sync"
)

// Option configures a session.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Pipe is one end of an in-process session pair. The ends are reachable
// to each other while both are active.
type Pipe struct {
	*peer
	other  *Pipe
	pairMu *sync.Mutex
	cancel context.CancelFunc
}

type pipeLink struct {
	to *Pipe
}

func (l pipeLink) write(ctx context.Context, f frame) error {
	if l.to.State() != StateActive {
		return ErrNotReachable
	}
	return l.to.deliver(ctx, f)
}

// NewPipe returns two connected, inactive ends.
func NewPipe(opts ...Option) (*Pipe, *Pipe) {
	o := buildOptions(opts)
	mu := &sync.Mutex{}
	a := &Pipe{peer: newPeer(o.logger), pairMu: mu}
	b := &Pipe{peer: newPeer(o.logger), pairMu: mu}
	a.other, b.other = b, a
	return a, b
}

// Activate starts the consumer. The consumer stops when ctx ends or Close
// is called. Activating an active end is a no-op.
func (p *Pipe) Activate(ctx context.Context) error {
	p.pairMu.Lock()
	defer p.pairMu.Unlock()
	if p.State() == StateActive {
		return nil
	}
	p.setState(StateActivating)
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.consume(runCtx)
	p.setState(StateActive)

	if p.other.State() == StateActive {
		p.attach(pipeLink{to: p.other})
		p.other.attach(pipeLink{to: p})
		return nil
	}
	p.refresh()
	return nil
}

// Close deactivates this end. Both ends become unreachable and pending
// requests on either side fail.
func (p *Pipe) Close() error {
	p.pairMu.Lock()
	defer p.pairMu.Unlock()
	if p.State() == StateInactive {
		return nil
	}
	p.setState(StateInactive)
	p.cancel()
	p.detach(pipeLink{to: p.other})
	p.other.detach(pipeLink{to: p})
	p.refresh()
	return nil
}
