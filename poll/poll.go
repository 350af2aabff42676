// Package poll implements the submit-then-poll loop used by long-running
// daemon operations.
//
// Account lookup, account-manager attach and project attach return
// immediately; the result has to be fetched with a companion *_poll command
// that answers "in progress" (error code -204) until the job finishes. The
// daemon expects callers to wait two seconds before every poll, the first
// one included.
//
// # Usage
//
//	p := poll.New()
//	node, err := p.Run(ctx, "lookup_account_poll", func(ctx context.Context) (poll.Result, error) {
//	    reply, err := sess.Call(ctx, xmltree.New("lookup_account_poll"))
//	    if err != nil {
//	        return poll.Result{}, err
//	    }
//	    return poll.ClassifyLookup(reply)
//	})
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/wire"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

const (
	// DefaultDelay is the wait before each poll.
	DefaultDelay = 2 * time.Second
	// DefaultMaxAttempts bounds the loop at roughly two minutes.
	DefaultMaxAttempts = 60
)

// Status is the outcome of one poll.
type Status int

const (
	// StatusInProgress means the job is still running.
	StatusInProgress Status = iota
	// StatusReady means the job finished and Result.Payload holds its output.
	StatusReady
	// StatusFailed means the job finished with a daemon error code.
	StatusFailed
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "InProgress"
	case StatusReady:
		return "Ready"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Result is the classified reply to one poll.
type Result struct {
	Status  Status
	Payload *xmltree.Node
	Code    int
	Message string
}

// Ready returns a StatusReady result.
func Ready(payload *xmltree.Node) Result {
	return Result{Status: StatusReady, Payload: payload}
}

// InProgress returns a StatusInProgress result.
func InProgress() Result {
	return Result{Status: StatusInProgress, Code: rpcerr.CodeInProgress}
}

// Failed returns a StatusFailed result.
func Failed(code int, message string) Result {
	return Result{Status: StatusFailed, Code: code, Message: message}
}

// Func performs one poll.
type Func func(ctx context.Context) (Result, error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller runs a Func until it resolves.
type Poller struct {
	// Delay is slept before every attempt.
	Delay time.Duration
	// MaxAttempts bounds the number of polls. Zero means only the context
	// deadline bounds the loop.
	MaxAttempts int
	// Sleep is used for the delay. Tests replace it.
	Sleep SleepFunc
	// Logger receives one debug record per attempt.
	Logger *slog.Logger
}

// New returns a Poller with the protocol defaults.
func New() *Poller {
	return &Poller{
		Delay:       DefaultDelay,
		MaxAttempts: DefaultMaxAttempts,
		Sleep:       SleepContext,
		Logger:      slog.New(slog.DiscardHandler),
	}
}

// Run polls until fn reports Ready or Failed, fn returns an error, or the
// attempt budget or context deadline runs out.
//
// Failed results are returned as KindRemote errors and never retried. Errors
// from fn abort the loop unchanged.
func (p *Poller) Run(ctx context.Context, op string, fn Func) (*xmltree.Node, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for attempt := 1; p.MaxAttempts <= 0 || attempt <= p.MaxAttempts; attempt++ {
		if err := sleep(ctx, p.Delay); err != nil {
			return nil, p.interrupted(op, attempt-1, err)
		}

		res, err := fn(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, p.interrupted(op, attempt, errors.Join(ctxErr, err))
			}
			return nil, err
		}
		logger.Debug("poll", "command", op, "attempt", attempt, "status", res.Status.String())

		switch res.Status {
		case StatusReady:
			return res.Payload, nil
		case StatusFailed:
			return nil, rpcerr.Remote(op, res.Code, res.Message)
		case StatusInProgress:
		default:
			return nil, rpcerr.Newf(rpcerr.KindProtocol, op, "unknown poll status %s", res.Status)
		}
	}

	return nil, rpcerr.Newf(rpcerr.KindPollTimeout, op, "still in progress after %d attempts", p.MaxAttempts)
}

// interrupted maps a context error into PollTimeout, or returns it as is for
// plain cancellation.
func (p *Poller) interrupted(op string, attempts int, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &rpcerr.Error{
			Kind:    rpcerr.KindPollTimeout,
			Op:      op,
			Message: fmt.Sprintf("deadline exceeded after %d attempts", attempts),
			Err:     err,
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SleepContext sleeps for d unless ctx is done first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClassifyLookup classifies a lookup_account_poll reply: an authenticator
// element means Ready, otherwise error_num decides.
func ClassifyLookup(reply *wire.Reply) (Result, error) {
	if n := reply.Find("authenticator"); n != nil {
		return Ready(n), nil
	}
	return classifyCode(reply, "lookup_account_poll", false)
}

// ClassifyErrorNum classifies acct_mgr_rpc_poll and project_attach_poll
// replies, where error_num 0 means Ready.
func ClassifyErrorNum(reply *wire.Reply) (Result, error) {
	return classifyCode(reply, "poll", true)
}

func classifyCode(reply *wire.Reply, op string, zeroIsReady bool) (Result, error) {
	n := reply.Find("error_num")
	if n == nil {
		return Result{}, rpcerr.Newf(rpcerr.KindProtocol, op, "reply has neither result nor error_num: %s", reply)
	}
	code, err := strconv.Atoi(strings.TrimSpace(n.Text))
	if err != nil {
		return Result{}, rpcerr.Newf(rpcerr.KindProtocol, op, "bad error_num %q", n.Text)
	}

	switch {
	case code == 0 && zeroIsReady:
		return Ready(reply.First()), nil
	case code == rpcerr.CodeInProgress:
		return InProgress(), nil
	default:
		msg := ""
		if m := reply.Find("error_msg"); m != nil {
			msg = m.Text
		}
		return Failed(code, msg), nil
	}
}
