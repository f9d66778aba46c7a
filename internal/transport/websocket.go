package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// Role selects which side of the pair a WebSocket session plays.
type Role string

// Roles.
const (
	RoleListener Role = "listener"
	RoleDialer   Role = "dialer"
)

// WebSocketConfig configures a WebSocket session.
type WebSocketConfig struct {
	Role Role   `mapstructure:"role"`
	URL  string `mapstructure:"url"` // dialer only, e.g. ws://phone.local:7420/peer

	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	OriginPatterns []string      `mapstructure:"origin_patterns"`
}

// DefaultWebSocketConfig returns the listener defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Role:           RoleListener,
		WriteTimeout:   10 * time.Second,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		ReadLimit:      4 << 20,
	}
}

// WebSocket is a session over a single WebSocket connection. The listener
// accepts the peer through Handler; the dialer connects to URL and
// reconnects with exponential backoff after the connection drops.
type WebSocket struct {
	*peer
	cfg     WebSocketConfig
	backoff backoff

	lifeMu sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn
}

// NewWebSocket returns an inactive session. Zero fields in cfg take their
// defaults.
func NewWebSocket(cfg WebSocketConfig, opts ...Option) *WebSocket {
	def := DefaultWebSocketConfig()
	if cfg.Role == "" {
		cfg.Role = def.Role
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	o := buildOptions(opts)
	return &WebSocket{
		peer:    newPeer(o.logger),
		cfg:     cfg,
		backoff: backoff{initial: cfg.InitialBackoff, max: cfg.MaxBackoff, multiplier: 2},
	}
}

type wsLink struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (l *wsLink) write(ctx context.Context, f frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.conn.Write(wctx, websocket.MessageText, data)
}

// Activate starts the session. A dialer connects once before returning;
// if that fails the session stays inactive and the error matches
// types.ErrTransport. Background work stops when ctx ends or Close is
// called.
func (w *WebSocket) Activate(ctx context.Context) error {
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()
	if w.State() != StateInactive {
		return nil
	}
	w.setState(StateActivating)
	runCtx, cancel := context.WithCancel(ctx)

	var conn *websocket.Conn
	switch w.cfg.Role {
	case RoleListener:
	case RoleDialer:
		c, err := w.dial(runCtx)
		if err != nil {
			cancel()
			w.setState(StateInactive)
			w.logger.Error("activation failed", "url", w.cfg.URL, "error", err)
			return types.NewOpError("transport.activate", types.ErrTransport, err)
		}
		conn = c
	default:
		cancel()
		w.setState(StateInactive)
		return types.NewOpError("transport.activate", types.ErrTransport, fmt.Errorf("unknown role %q", w.cfg.Role))
	}

	w.runCtx, w.cancel = runCtx, cancel
	go w.consume(runCtx)
	w.setState(StateActive)
	w.logger.Info("session active", "role", w.cfg.Role)
	if conn != nil {
		w.conn = conn
		go w.maintain(runCtx, conn)
	}
	return nil
}

// Close deactivates the session and drops the connection.
func (w *WebSocket) Close() error {
	w.lifeMu.Lock()
	if w.State() == StateInactive {
		w.lifeMu.Unlock()
		return nil
	}
	w.setState(StateInactive)
	w.cancel()
	conn := w.conn
	w.conn = nil
	w.refresh()
	w.lifeMu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusGoingAway, "session closed")
	}
	return nil
}

// Handler accepts the peer's connection on the listener side. A newer
// connection replaces an older one.
func (w *WebSocket) Handler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.lifeMu.Lock()
		if w.State() != StateActive || w.cfg.Role != RoleListener {
			w.lifeMu.Unlock()
			http.Error(rw, "peer session inactive", http.StatusServiceUnavailable)
			return
		}
		ctx := w.runCtx
		w.lifeMu.Unlock()

		conn, err := websocket.Accept(rw, r, &websocket.AcceptOptions{OriginPatterns: w.cfg.OriginPatterns})
		if err != nil {
			w.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		w.lifeMu.Lock()
		old := w.conn
		w.conn = conn
		w.lifeMu.Unlock()
		if old != nil {
			go func() { _ = old.Close(websocket.StatusPolicyViolation, "replaced by newer connection") }()
		}

		w.logger.Info("peer accepted", "remote", r.RemoteAddr)
		if err := w.serveConn(ctx, conn); err != nil && ctx.Err() == nil {
			w.logger.Info("peer connection ended", "remote", r.RemoteAddr, "error", err)
		}
	})
}

func (w *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	if w.cfg.URL == "" {
		return nil, fmt.Errorf("dialer requires a url")
	}
	conn, _, err := websocket.Dial(ctx, w.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", w.cfg.URL, err)
	}
	return conn, nil
}

// serveConn reads frames from conn until it fails.
func (w *WebSocket) serveConn(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(w.cfg.ReadLimit)
	l := &wsLink{conn: conn, timeout: w.cfg.WriteTimeout}
	w.attach(l)
	defer func() {
		w.detach(l)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		w.lifeMu.Lock()
		if w.conn == conn {
			w.conn = nil
		}
		w.lifeMu.Unlock()
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			w.logger.Warn("ignoring binary frame")
			continue
		}
		f, err := decodeFrame(data)
		if err != nil {
			w.logger.Warn("ignoring malformed frame", "error", err)
			continue
		}
		if err := w.deliver(ctx, f); err != nil {
			return err
		}
	}
}

// maintain serves conn and redials after it drops, until ctx ends.
func (w *WebSocket) maintain(ctx context.Context, conn *websocket.Conn) {
	for conn != nil {
		err := w.serveConn(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("peer connection lost", "error", err)
		conn = w.reconnect(ctx)
	}
}

func (w *WebSocket) reconnect(ctx context.Context) *websocket.Conn {
	for attempt := 0; ; attempt++ {
		t := time.NewTimer(w.backoff.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		conn, err := w.dial(ctx)
		if err != nil {
			w.logger.Debug("reconnect failed", "attempt", attempt+1, "error", err)
			continue
		}
		w.lifeMu.Lock()
		if ctx.Err() != nil {
			w.lifeMu.Unlock()
			_ = conn.Close(websocket.StatusGoingAway, "session closed")
			return nil
		}
		w.conn = conn
		w.lifeMu.Unlock()
		w.logger.Info("peer reconnected", "attempts", attempt+1)
		return conn
	}
}
