package wire

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

const (
	// Terminator closes every message in both directions.
	Terminator byte = 0x03

	// RequestRoot wraps every request.
	RequestRoot = "boinc_gui_rpc_request"
	// ReplyRoot wraps replies from the daemon.
	ReplyRoot = "boinc_gui_rpc_reply"
)

// Encode frames a command element as a complete request message.
func Encode(cmd *xmltree.Node) []byte {
	var buf bytes.Buffer
	buf.Grow(64)
	buf.WriteString("<" + RequestRoot + ">")
	cmd.AppendXML(&buf)
	buf.WriteString("</" + RequestRoot + ">")
	buf.WriteByte(Terminator)
	return buf.Bytes()
}

// EncodeFragment frames a raw XML command fragment. The fragment may use the
// <tag /> form; it is normalized on the way out. A fragment that is already
// a complete request document is not wrapped a second time.
func EncodeFragment(raw string) ([]byte, error) {
	cmd, err := xmltree.Parse([]byte(raw))
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindInvalidArgument, "encode fragment", err)
	}
	if cmd.Tag == RequestRoot {
		if len(cmd.Children) != 1 {
			return nil, rpcerr.Newf(rpcerr.KindInvalidArgument, "encode fragment",
				"request holds %d commands, want 1", len(cmd.Children))
		}
		cmd = cmd.Children[0]
	}
	return Encode(cmd), nil
}

// DecodeRequest parses a request payload (terminator already stripped) and
// returns its command element. It is the server-side counterpart of Encode.
func DecodeRequest(payload []byte) (*xmltree.Node, error) {
	root, err := xmltree.Parse(payload)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindMalformedResponse, "decode request", err)
	}
	if root.Tag != RequestRoot {
		return nil, rpcerr.Newf(rpcerr.KindProtocol, "decode request", "unexpected root <%s>", root.Tag)
	}
	if len(root.Children) != 1 {
		return nil, rpcerr.Newf(rpcerr.KindProtocol, "decode request",
			"request holds %d commands, want 1", len(root.Children))
	}
	return root.Children[0], nil
}

// EncodeReply frames reply elements the way the daemon does: wrapped in
// <boinc_gui_rpc_reply>, one element per line, then the terminator.
func EncodeReply(body ...*xmltree.Node) []byte {
	var buf bytes.Buffer
	buf.WriteString("<" + ReplyRoot + ">\n")
	for _, n := range body {
		n.AppendXML(&buf)
		buf.WriteByte('\n')
	}
	buf.WriteString("</" + ReplyRoot + ">\n")
	buf.WriteByte(Terminator)
	return buf.Bytes()
}

// Reply is a decoded daemon reply.
type Reply struct {
	// Root is always a <boinc_gui_rpc_reply> element. When the daemon sent
	// unwrapped elements they become its children.
	Root *xmltree.Node
	// Wrapped reports whether the daemon sent the wrapper itself.
	Wrapped bool
}

// DecodeReply parses a reply payload (terminator already stripped).
func DecodeReply(payload []byte) (*Reply, error) {
	nodes, err := xmltree.ParseAll(payload)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindMalformedResponse, "decode reply", fmt.Errorf("%w (payload: %q)", err, truncate(string(payload), 100)))
	}
	if len(nodes) == 1 && nodes[0].Tag == ReplyRoot {
		return &Reply{Root: nodes[0], Wrapped: true}, nil
	}
	return &Reply{Root: xmltree.New(ReplyRoot, nodes...)}, nil
}

// Body returns the reply's result elements.
func (r *Reply) Body() []*xmltree.Node {
	if r == nil || r.Root == nil {
		return nil
	}
	return r.Root.Children
}

// First returns the first result element or nil.
func (r *Reply) First() *xmltree.Node {
	if r == nil {
		return nil
	}
	return r.Root.FirstChild()
}

// Find searches the whole reply for the first element with the given tag.
func (r *Reply) Find(tag string) *xmltree.Node {
	if r == nil {
		return nil
	}
	for _, n := range r.Body() {
		if found := n.Find(tag); found != nil {
			return found
		}
	}
	return nil
}

// String returns the compact XML form of the reply.
func (r *Reply) String() string {
	if r == nil {
		return ""
	}
	return r.Root.String()
}

// truncate shortens a string for error messages.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
