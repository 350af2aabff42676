package boincrpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smnsjas/go-boincrpc/poll"
	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/session"
	"github.com/smnsjas/go-boincrpc/wire"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

// Config holds everything needed to talk to one daemon.
type Config struct {
	session.Config

	// PollDelay is slept before every poll of a submit+poll command.
	PollDelay time.Duration
	// PollMaxAttempts bounds the polls of one command. Zero leaves only
	// PollTimeout and the context deadline.
	PollMaxAttempts int
	// PollTimeout bounds the whole poll phase. Zero means no extra bound.
	PollTimeout time.Duration
}

// DefaultConfig returns the configuration for the local daemon.
func DefaultConfig() Config {
	return Config{
		Config:          session.DefaultConfig(),
		PollDelay:       poll.DefaultDelay,
		PollMaxAttempts: poll.DefaultMaxAttempts,
	}
}

type options struct {
	logger   *slog.Logger
	dial     session.DialFunc
	sleep    poll.SleepFunc
	security session.SecurityEventCallback
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the structured logger used by the client and its session.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDialFunc replaces the TCP dialer.
func WithDialFunc(dial session.DialFunc) Option {
	return func(o *options) { o.dial = dial }
}

// WithSleepFunc replaces the delay used between polls.
func WithSleepFunc(sleep poll.SleepFunc) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithSecurityEventCallback receives authentication events.
func WithSecurityEventCallback(cb session.SecurityEventCallback) Option {
	return func(o *options) { o.security = cb }
}

// Client dispatches commands over one session.
type Client struct {
	cfg    Config
	sess   *session.Session
	sleep  poll.SleepFunc
	logger *slog.Logger
}

// Dial opens and, when cfg.Password is set, authenticates a new session.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	sopts := []session.Option{session.WithLogger(o.logger)}
	if o.dial != nil {
		sopts = append(sopts, session.WithDialFunc(o.dial))
	}
	if o.security != nil {
		sopts = append(sopts, session.WithSecurityEventCallback(o.security))
	}

	sess := session.New(cfg.Config, sopts...)
	if err := sess.Open(ctx); err != nil {
		_ = sess.Close()
		return nil, err
	}

	return &Client{
		cfg:    cfg,
		sess:   sess,
		sleep:  o.sleep,
		logger: o.logger.With("session_id", sess.ID().String()),
	}, nil
}

// Do dials, runs fn and closes the session on every exit path.
func Do(ctx context.Context, cfg Config, fn func(*Client) error, opts ...Option) (err error) {
	c, err := Dial(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(c)
}

// Close closes the underlying session. It is safe to call more than once.
func (c *Client) Close() error {
	if c == nil || c.sess == nil {
		return nil
	}
	return c.sess.Close()
}

// Session returns the underlying session.
func (c *Client) Session() *session.Session {
	return c.sess
}

// Call sends cmd and returns the reply after CheckReply.
func (c *Client) Call(ctx context.Context, cmd *xmltree.Node) (*wire.Reply, error) {
	if c == nil || c.sess == nil {
		return nil, rpcerr.New(rpcerr.KindDisconnected, cmd.Tag, "client not connected")
	}
	reply, err := c.sess.Call(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := CheckReply(cmd.Tag, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Simple sends a command without parameters.
func (c *Client) Simple(ctx context.Context, tag string) (*wire.Reply, error) {
	if tag == "" {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, "simple", "empty command")
	}
	return c.Call(ctx, xmltree.New(tag))
}

// Raw sends a hand-written XML command fragment such as "<get_state />".
func (c *Client) Raw(ctx context.Context, fragment string) (*wire.Reply, error) {
	req, err := wire.EncodeFragment(fragment)
	if err != nil {
		return nil, err
	}
	if c == nil || c.sess == nil {
		return nil, rpcerr.New(rpcerr.KindDisconnected, "raw", "client not connected")
	}
	payload, err := c.sess.Exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	reply, err := wire.DecodeReply(payload)
	if err != nil {
		return nil, fmt.Errorf("raw: %w", err)
	}
	if err := CheckReply("raw", reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// expect calls a simple command and returns the reply element, which must
// carry the tag want.
func (c *Client) expect(ctx context.Context, cmd *xmltree.Node, want string) (*xmltree.Node, error) {
	reply, err := c.Call(ctx, cmd)
	if err != nil {
		return nil, err
	}
	first := reply.First()
	if first.Tag != want {
		return nil, rpcerr.Newf(rpcerr.KindMalformedResponse, cmd.Tag, "unexpected reply <%s>, want <%s>", first.Tag, want)
	}
	return first, nil
}

func (c *Client) poller() *poll.Poller {
	p := poll.New()
	p.Delay = c.cfg.PollDelay
	p.MaxAttempts = c.cfg.PollMaxAttempts
	p.Logger = c.logger
	if c.sleep != nil {
		p.Sleep = c.sleep
	}
	return p
}
