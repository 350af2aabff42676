package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/smnsjas/go-boincrpc/auth"
	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/wire"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

const (
	// DefaultHost is the daemon host used when none is configured.
	DefaultHost = "localhost"
	// DefaultPort is the daemon's GUI RPC port.
	DefaultPort = 31416
	// DefaultConnectTimeout bounds the TCP connect.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultReadTimeout bounds one request/response exchange.
	DefaultReadTimeout = 30 * time.Second
)

// ErrAlreadyOpen is returned when Open is called on a connected session.
var ErrAlreadyOpen = errors.New("session already open")

// State represents the state of a Session.
type State int

const (
	// StateUnconnected is the initial state.
	StateUnconnected State = iota
	// StateConnected means the connection is up (and authenticated, when a
	// password is configured).
	StateConnected
	// StateClosed is terminal.
	StateClosed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "Unconnected"
	case StateConnected:
		return "Connected"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Config holds the connection parameters of a Session.
type Config struct {
	Host string
	Port int
	// Password is the shared GUI RPC secret. Empty means no handshake.
	Password string

	ConnectTimeout time.Duration
	// ReadTimeout bounds each exchange, write included. Zero means only the
	// context deadline applies.
	ReadTimeout time.Duration

	Limits wire.Limits
}

// DefaultConfig returns a Config for the local daemon without a password.
func DefaultConfig() Config {
	return Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		Limits:         wire.DefaultLimits(),
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DialFunc opens the underlying connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger. Records carry a session_id
// attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDialFunc replaces the TCP dialer.
func WithDialFunc(dial DialFunc) Option {
	return func(s *Session) {
		if dial != nil {
			s.dial = dial
		}
	}
}

// WithSecurityEventCallback sets the callback for security events.
func WithSecurityEventCallback(cb SecurityEventCallback) Option {
	return func(s *Session) { s.securityCallback = cb }
}

// Session is one connection to a daemon.
type Session struct {
	// mu serializes exchanges and guards everything below.
	mu sync.Mutex

	id    uuid.UUID
	cfg   Config
	state State

	conn      net.Conn
	reader    *wire.Reader
	handshake *auth.Handshake

	dial             DialFunc
	logger           *slog.Logger
	securityCallback SecurityEventCallback
}

// New returns an unconnected Session.
func New(cfg Config, opts ...Option) *Session {
	var d net.Dialer
	s := &Session{
		id:     uuid.New(),
		cfg:    cfg,
		state:  StateUnconnected,
		dial:   d.DialContext,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", s.id.String())
	return s
}

// ID returns the session's log identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Config returns the configuration the session was created with.
func (s *Session) Config() Config {
	return s.cfg
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AuthState returns the handshake state of the current connection.
func (s *Session) AuthState() auth.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handshake == nil {
		return auth.StateUnauthenticated
	}
	return s.handshake.State()
}

// Open connects and, when a password is configured, authenticates.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnected:
		return ErrAlreadyOpen
	case StateClosed:
		return rpcerr.New(rpcerr.KindDisconnected, "open", "session closed")
	}

	addr := s.cfg.Address()
	s.logger.Debug("connecting", "address", addr)

	conn, err := s.dialLocked(ctx, addr)
	if err != nil {
		s.logger.Debug("connect failed", "address", addr, "error", err)
		return err
	}

	s.conn = conn
	s.reader = wire.NewReader(conn, s.cfg.Limits)
	s.state = StateConnected
	s.logger.Debug("connected", "address", addr)

	if s.cfg.Password == "" {
		return nil
	}

	s.handshake = &auth.Handshake{
		OnTransition: func(from, to auth.State) {
			s.logger.Debug("auth state transition", "from", from.String(), "to", to.String())
		},
	}
	if err := s.handshake.Run(ctx, lockedCaller{s}, s.cfg.Password); err != nil {
		s.emitSecurityEventLocked("auth_failed", map[string]any{"address": addr, "error": err.Error()})
		s.closeLocked()
		return fmt.Errorf("authenticate: %w", err)
	}
	s.emitSecurityEventLocked("auth_succeeded", map[string]any{"address": addr})
	return nil
}

func (s *Session) dialLocked(ctx context.Context, addr string) (net.Conn, error) {
	dctx := ctx
	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := s.dial(dctx, "tcp", addr)
	if err == nil {
		return conn, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return nil, fmt.Errorf("dial %s: %w", addr, ctx.Err())
	case errors.Is(err, syscall.ECONNREFUSED):
		return nil, &rpcerr.Error{Kind: rpcerr.KindConnectionRefused, Op: "dial", Message: addr, Err: err}
	case isTimeout(err):
		return nil, &rpcerr.Error{Kind: rpcerr.KindConnectTimeout, Op: "dial", Message: addr, Err: err}
	default:
		// Unreachable hosts and failed lookups end up here too.
		return nil, &rpcerr.Error{Kind: rpcerr.KindConnectionRefused, Op: "dial", Message: addr, Err: err}
	}
}

// Exchange writes one framed request and returns the payload of the reply,
// terminator stripped.
func (s *Session) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchangeLocked(ctx, "exchange", req)
}

// Call encodes cmd, exchanges it and decodes the reply. A reply that does
// not parse is returned as a MalformedResponse error and leaves the session
// open, since framing is still intact.
func (s *Session) Call(ctx context.Context, cmd *xmltree.Node) (*wire.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callLocked(ctx, cmd)
}

func (s *Session) callLocked(ctx context.Context, cmd *xmltree.Node) (*wire.Reply, error) {
	req := wire.Encode(cmd)
	payload, err := s.exchangeLocked(ctx, cmd.Tag, req)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("exchange", "command", cmd.Tag, "sent", len(req), "received", len(payload))

	reply, err := wire.DecodeReply(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Tag, err)
	}
	return reply, nil
}

func (s *Session) exchangeLocked(ctx context.Context, op string, req []byte) ([]byte, error) {
	if s.state != StateConnected {
		return nil, rpcerr.Newf(rpcerr.KindDisconnected, op, "session %s", s.state)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var deadline time.Time
	if s.cfg.ReadTimeout > 0 {
		deadline = time.Now().Add(s.cfg.ReadTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return nil, s.failLocked(ctx, op, err)
	}

	// Cancellation unblocks a pending read or write by moving the deadline
	// into the past.
	conn := s.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := conn.Write(req); err != nil {
		return nil, s.failLocked(ctx, op, err)
	}
	payload, err := s.reader.ReadMessage()
	if err != nil {
		return nil, s.failLocked(ctx, op, err)
	}
	return payload, nil
}

// failLocked closes the session and classifies a transport error.
func (s *Session) failLocked(ctx context.Context, op string, err error) error {
	s.logger.Debug("exchange failed, closing session", "command", op, "error", err)
	s.closeLocked()

	var rerr *rpcerr.Error
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case errors.As(err, &rerr):
		if rerr.Op == "read" {
			rerr.Op = op
		}
		return rerr
	case errors.Is(ctx.Err(), context.DeadlineExceeded), isTimeout(err):
		return rpcerr.Wrap(rpcerr.KindReadTimeout, op, err)
	default:
		return rpcerr.Wrap(rpcerr.KindDisconnected, op, err)
	}
}

// Close closes the connection. It is safe to call more than once and after
// a failure.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	s.state = StateClosed
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.logger.Debug("session closed")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// lockedCaller lets the handshake run while Open holds the mutex.
type lockedCaller struct {
	s *Session
}

func (c lockedCaller) Call(ctx context.Context, cmd *xmltree.Node) (*wire.Reply, error) {
	return c.s.callLocked(ctx, cmd)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
