package boincrpc

import (
	"strconv"
	"strings"

	"github.com/smnsjas/go-boincrpc/auth"
	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/wire"
)

// CheckReply classifies a reply to op:
//
//   - an empty reply is a protocol error
//   - <unauthorized/> means the session is not (or no longer) authenticated
//   - a non-zero error_num anywhere in the tree is a remote error
//   - a top-level <error>msg</error> is a remote error without a code
//
// Anything else is success.
func CheckReply(op string, reply *wire.Reply) error {
	first := reply.First()
	if first == nil {
		return rpcerr.New(rpcerr.KindProtocol, op, "empty reply")
	}
	if first.Tag == auth.TagUnauthorized {
		return rpcerr.New(rpcerr.KindAuthenticationFailed, op, "unauthorized")
	}

	if n := reply.Find("error_num"); n != nil {
		code, err := strconv.Atoi(strings.TrimSpace(n.Text))
		if err != nil {
			return rpcerr.Newf(rpcerr.KindProtocol, op, "bad error_num %q", n.Text)
		}
		if code != 0 {
			msg := ""
			if m := reply.Find("error_msg"); m != nil {
				msg = m.Text
			}
			return rpcerr.Remote(op, code, msg)
		}
	}

	for _, n := range reply.Body() {
		if n.Tag == "error" {
			return rpcerr.Remote(op, 0, n.Text)
		}
	}
	return nil
}
