// Package auth implements the GUI RPC challenge-response login.
//
// # Handshake
//
// The handshake is two request/response rounds on one connection:
//
//	client: <auth1/>
//	daemon: <nonce>1596811036.412331</nonce>
//	client: <auth2><nonce_hash>md5(nonce + secret)</nonce_hash></auth2>
//	daemon: <authorized/>  or  <unauthorized/>
//
// The nonce is single use and bound to the connection that requested it, so
// a Handshake must run on the same connection as the commands it unlocks and
// its result must never be reused on another connection.
//
// # State Machine
//
//	Unauthenticated → NonceRequested → DigestSent → Authenticated
//	                       ↓                ↓
//	                       └──────→ Rejected ←┘
package auth

import (
	"context"
	"crypto/md5" // #nosec G501 -- the protocol mandates MD5
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/wire"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

// Command and element names used by the handshake.
const (
	CommandAuth1 = "auth1"
	CommandAuth2 = "auth2"

	TagNonce        = "nonce"
	TagNonceHash    = "nonce_hash"
	TagAuthorized   = "authorized"
	TagUnauthorized = "unauthorized"
)

// State represents the progress of a Handshake.
type State int

const (
	// StateUnauthenticated is the initial state.
	StateUnauthenticated State = iota
	// StateNonceRequested means auth1 has been sent.
	StateNonceRequested
	// StateDigestSent means auth2 has been sent.
	StateDigestSent
	// StateAuthenticated means the daemon accepted the digest.
	StateAuthenticated
	// StateRejected means the handshake failed. It is terminal.
	StateRejected
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "Unauthenticated"
	case StateNonceRequested:
		return "NonceRequested"
	case StateDigestSent:
		return "DigestSent"
	case StateAuthenticated:
		return "Authenticated"
	case StateRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Digest returns hex(md5(nonce || secret)). The order is part of the
// protocol: nonce bytes first, then secret bytes.
func Digest(nonce, secret string) string {
	h := md5.New() // #nosec G401 -- the protocol mandates MD5
	h.Write([]byte(nonce))
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// AccountPasswordHash returns hex(md5(password || lower(email))), the form in
// which lookup_account expects a project account password.
func AccountPasswordHash(password, email string) string {
	h := md5.New() // #nosec G401 -- the protocol mandates MD5
	h.Write([]byte(password))
	h.Write([]byte(strings.ToLower(email)))
	return hex.EncodeToString(h.Sum(nil))
}

// Caller sends one command on an open connection and returns the decoded
// reply.
type Caller interface {
	Call(ctx context.Context, cmd *xmltree.Node) (*wire.Reply, error)
}

// Handshake drives one login on one connection.
type Handshake struct {
	state State
	// OnTransition, if set, is called after every state change.
	OnTransition func(from, to State)
}

// State returns the current handshake state.
func (h *Handshake) State() State {
	return h.state
}

func (h *Handshake) setState(s State) {
	from := h.state
	h.state = s
	if h.OnTransition != nil {
		h.OnTransition(from, s)
	}
}

// Run performs both rounds over c. It may be called once; later calls fail.
func (h *Handshake) Run(ctx context.Context, c Caller, secret string) error {
	if h.state != StateUnauthenticated {
		return rpcerr.Newf(rpcerr.KindProtocol, CommandAuth1, "handshake already in state %s", h.state)
	}

	h.setState(StateNonceRequested)
	reply, err := c.Call(ctx, xmltree.New(CommandAuth1))
	if err != nil {
		h.setState(StateRejected)
		return err
	}
	nonce, err := NonceFromReply(reply)
	if err != nil {
		h.setState(StateRejected)
		return err
	}

	h.setState(StateDigestSent)
	reply, err = c.Call(ctx, xmltree.New(CommandAuth2, xmltree.Leaf(TagNonceHash, Digest(nonce, secret))))
	if err != nil {
		h.setState(StateRejected)
		return err
	}
	outcome, err := DecodeOutcome(reply)
	if err != nil {
		h.setState(StateRejected)
		return err
	}

	switch o := outcome.(type) {
	case Authorized:
		h.setState(StateAuthenticated)
		return nil
	case Unauthorized:
		h.setState(StateRejected)
		return rpcerr.New(rpcerr.KindAuthenticationFailed, CommandAuth2, "password incorrect")
	case Refused:
		h.setState(StateRejected)
		return &rpcerr.Error{
			Kind:    rpcerr.KindAuthenticationFailed,
			Op:      CommandAuth2,
			Message: "daemon refused authentication",
			Err:     rpcerr.Remote(CommandAuth2, o.Code, o.Message),
		}
	default:
		h.setState(StateRejected)
		return rpcerr.Newf(rpcerr.KindProtocol, CommandAuth2, "unhandled outcome %T", outcome)
	}
}

// NonceFromReply extracts the nonce from an auth1 reply.
func NonceFromReply(reply *wire.Reply) (string, error) {
	n := reply.Find(TagNonce)
	if n == nil || n.Text == "" {
		return "", rpcerr.Newf(rpcerr.KindProtocol, CommandAuth1, "reply has no <%s>: %s", TagNonce, reply)
	}
	return n.Text, nil
}
