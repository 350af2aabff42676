package boincrpc

import (
	"context"
	"strings"

	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/wire"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

// ProjectOp is a project lifecycle operation.
type ProjectOp string

const (
	OpReset              ProjectOp = "reset"
	OpDetach             ProjectOp = "detach"
	OpUpdate             ProjectOp = "update"
	OpSuspend            ProjectOp = "suspend"
	OpResume             ProjectOp = "resume"
	OpNoMoreWork         ProjectOp = "nomorework"
	OpAllowMoreWork      ProjectOp = "allowmorework"
	OpDetachWhenDone     ProjectOp = "detach_when_done"
	OpDontDetachWhenDone ProjectOp = "dont_detach_when_done"
)

var projectOps = []ProjectOp{
	OpReset, OpDetach, OpUpdate, OpSuspend, OpResume,
	OpNoMoreWork, OpAllowMoreWork, OpDetachWhenDone, OpDontDetachWhenDone,
}

// ProjectOps returns every valid operation.
func ProjectOps() []ProjectOp {
	out := make([]ProjectOp, len(projectOps))
	copy(out, projectOps)
	return out
}

// Valid reports whether op is one of the nine operations.
func (op ProjectOp) Valid() bool {
	for _, v := range projectOps {
		if v == op {
			return true
		}
	}
	return false
}

// Command returns the wire command name, project_<op>.
func (op ProjectOp) Command() string {
	return "project_" + string(op)
}

// ParseProjectOp validates s.
func ParseProjectOp(s string) (ProjectOp, error) {
	op := ProjectOp(s)
	if !op.Valid() {
		names := make([]string, len(projectOps))
		for i, v := range projectOps {
			names[i] = string(v)
		}
		return "", rpcerr.Newf(rpcerr.KindInvalidArgument, "project",
			"unknown operation %q, want one of %s", s, strings.Join(names, ", "))
	}
	return op, nil
}

// ProjectRequest builds <project_<op>><project_url>url</project_url></project_<op>>.
func ProjectRequest(url string, op ProjectOp) (*xmltree.Node, error) {
	if _, err := ParseProjectOp(string(op)); err != nil {
		return nil, err
	}
	if url == "" {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, op.Command(), "empty project URL")
	}
	return xmltree.New(op.Command(), xmltree.Leaf("project_url", url)), nil
}

// ProjectCommand runs a lifecycle operation on the project at url. The
// operation is validated before anything is sent, so an unknown op fails the
// same way on a nil or closed Client.
func (c *Client) ProjectCommand(ctx context.Context, url, op string) (*wire.Reply, error) {
	parsed, err := ParseProjectOp(op)
	if err != nil {
		return nil, err
	}
	cmd, err := ProjectRequest(url, parsed)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, cmd)
}
