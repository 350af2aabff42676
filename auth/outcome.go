package auth

import (
	"strconv"
	"strings"

	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/wire"
)

// Outcome is the decoded result of auth2. It is one of Authorized,
// Unauthorized or Refused.
type Outcome interface {
	outcome()
}

// Authorized means the daemon accepted the digest.
type Authorized struct{}

// Unauthorized means the daemon rejected the digest.
type Unauthorized struct{}

// Refused means the daemon answered auth2 with an error instead of a verdict.
type Refused struct {
	Code    int
	Message string
}

func (Authorized) outcome()   {}
func (Unauthorized) outcome() {}
func (Refused) outcome()      {}

// DecodeOutcome maps an auth2 reply onto an Outcome. Replies that are
// neither a verdict nor an error are a protocol violation.
func DecodeOutcome(reply *wire.Reply) (Outcome, error) {
	first := reply.First()
	if first == nil {
		return nil, rpcerr.New(rpcerr.KindProtocol, CommandAuth2, "empty reply")
	}

	switch first.Tag {
	case TagAuthorized:
		return Authorized{}, nil
	case TagUnauthorized:
		return Unauthorized{}, nil
	}

	if n := reply.Find("error_num"); n != nil {
		code, err := strconv.Atoi(strings.TrimSpace(n.Text))
		if err != nil {
			return nil, rpcerr.Newf(rpcerr.KindProtocol, CommandAuth2, "bad error_num %q", n.Text)
		}
		return Refused{Code: code, Message: rpcerr.Message(code)}, nil
	}
	if first.Tag == "error" {
		return Refused{Message: first.Text}, nil
	}
	return nil, rpcerr.Newf(rpcerr.KindProtocol, CommandAuth2, "unexpected reply <%s>", first.Tag)
}
