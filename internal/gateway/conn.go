package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uuzor/predictx/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second
)

// ConnState is the connectivity state of the single logical connection to the
// remote settlement node. It transitions on socket events only.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Config holds the gateway connection and session parameters.
type Config struct {
	// Endpoint is the WebSocket URL of the remote settlement node.
	Endpoint string

	// Participant, Application, Scope, and ExpirySeconds identify the
	// application session requested during the handshake.
	Participant   string
	Application   string
	Scope         string
	ExpirySeconds int64

	// CallTimeout bounds every outbound call.
	CallTimeout time.Duration

	// ReconnectDelay is the base of the reconnect backoff; the delay doubles
	// after each failed attempt up to MaxReconnectDelay. The gateway retries
	// forever; it never gives up on the remote node.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// StatusFunc is invoked on every connectivity or session readiness change.
type StatusFunc func(connected, sessionReady bool)

// Client owns the persistent connection to the remote settlement node: the
// transport lifecycle, the receive loop, the reconnect policy, and (through
// its Router and SessionManager) call correlation and the application
// session.
type Client struct {
	cfg    Config
	logger *slog.Logger

	router  *Router
	session *SessionManager

	mu      sync.RWMutex
	conn    *websocket.Conn
	state   ConnState
	lost    chan struct{} // closed when the current connection tears down
	closed  bool
	done    chan struct{}

	statusMu sync.RWMutex
	status   StatusFunc
}

// New creates a gateway Client. It fails fast on incomplete identity
// configuration or a missing signer; the gateway never initiates a handshake
// it cannot complete.
func New(cfg Config, signer domain.Signer, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("gateway: endpoint must not be empty")
	}
	if cfg.Participant == "" || cfg.Application == "" {
		return nil, fmt.Errorf("gateway: participant and application must not be empty")
	}
	if signer == nil {
		return nil, fmt.Errorf("gateway: %w", domain.ErrSignerUnconfigured)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "gateway")),
		state:  Disconnected,
		done:   make(chan struct{}),
	}
	c.router = NewRouter(c.writeFrame, cfg.CallTimeout, logger)
	c.session = NewSessionManager(c.router, signer, SessionConfig{
		Participant:   cfg.Participant,
		Application:   cfg.Application,
		Scope:         cfg.Scope,
		ExpirySeconds: cfg.ExpirySeconds,
	}, logger)

	return c, nil
}

// State returns the current connectivity state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Ready reports whether the application session is open for submissions.
func (c *Client) Ready() bool {
	return c.session.IsReady()
}

// Session exposes the session manager to submission paths and tests.
func (c *Client) Session() *SessionManager {
	return c.session
}

// Router exposes the correlation layer, mainly for notification wiring.
func (c *Client) Router() *Router {
	return c.router
}

// OnStatusChange registers a hook invoked on connectivity and readiness
// transitions.
func (c *Client) OnStatusChange(fn StatusFunc) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.status = fn
}

// Run drives the connection state machine until ctx is cancelled or Close is
// called: connect, serve the receive loop until the connection drops, then
// reconnect after a backoff delay. Run always eventually retries; a
// permanently unreachable node keeps the gateway in a connect/backoff cycle,
// never crashes it.
func (c *Client) Run(ctx context.Context) error {
	delay := c.cfg.ReconnectDelay

	for {
		lost, err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("connect failed",
				slog.String("endpoint", c.cfg.Endpoint),
				slog.Duration("retry_in", delay),
				slog.String("error", err.Error()),
			)
		} else {
			// Connection established; backoff resets once we were connected.
			delay = c.cfg.ReconnectDelay

			select {
			case <-lost:
				c.logger.Warn("connection lost",
					slog.String("endpoint", c.cfg.Endpoint),
					slog.Duration("retry_in", delay),
				)
			case <-ctx.Done():
				c.teardown(true)
				return ctx.Err()
			case <-c.done:
				c.teardown(true)
				return nil
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// Close tears down the connection and stops the reconnect loop. Safe to call
// multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	// Best-effort session close while the connection may still be up.
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	c.session.CloseSession(ctx)

	c.teardown(true)
	return nil
}

// connect dials the endpoint, transitions to Connected, starts the receive
// loop, and kicks off the handshake as a side effect. It returns a channel
// that is closed when this particular connection tears down.
func (c *Client) connect(ctx context.Context) (<-chan struct{}, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("gateway: client is closed")
	}
	c.state = Connecting
	c.mu.Unlock()

	c.logger.Info("connecting", slog.String("endpoint", c.cfg.Endpoint))

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		c.setState(Disconnected)
		return nil, fmt.Errorf("gateway: dial %s: %w", c.cfg.Endpoint, err)
	}

	lost := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.state = Connected
	c.lost = lost
	c.mu.Unlock()

	c.logger.Info("connected", slog.String("endpoint", c.cfg.Endpoint))
	c.notifyStatus()

	go c.readLoop(conn)

	// Handshake initiation is a side effect of entering Connected. Failures
	// are logged only; the reconnect loop is the retry path.
	go func() {
		initCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout*2)
		defer cancel()
		if err := c.session.Initiate(initCtx); err != nil {
			c.logger.Error("handshake failed", slog.String("error", err.Error()))
			return
		}
		c.notifyStatus()
	}()

	return lost, nil
}

// readLoop feeds raw inbound frames to the correlation layer until the
// connection drops, then tears the connection state down.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.teardown(false)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("read failed", slog.String("error", err.Error()))
			}
			return
		}
		c.router.HandleFrame(message)
	}
}

// teardown closes the socket and transitions out of Connected: the session
// state is forced back to NoSession and every pending call fails with a
// connection-lost error. No call survives a connection boundary.
func (c *Client) teardown(closeSocket bool) {
	c.mu.Lock()
	conn := c.conn
	lost := c.lost
	wasConnected := c.state == Connected
	c.conn = nil
	c.lost = nil
	c.state = Disconnected
	c.mu.Unlock()

	if conn != nil {
		if closeSocket {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
		}
		_ = conn.Close()
	}

	if wasConnected {
		c.session.Reset()
		c.router.FailAll(domain.ErrConnectionLost)
		c.logger.Info("disconnected", slog.String("endpoint", c.cfg.Endpoint))
		c.notifyStatus()
	}
	if lost != nil {
		close(lost)
	}
}

// writeFrame serializes one frame onto the socket. It is the Router's
// SendFunc.
func (c *Client) writeFrame(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.state != Connected {
		return domain.ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) notifyStatus() {
	c.statusMu.RLock()
	fn := c.status
	c.statusMu.RUnlock()
	if fn != nil {
		fn(c.State() == Connected, c.session.IsReady())
	}
}
