package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
)

// SkipChildren is returned by a WalkFunc to skip the descendants of the
// current element.
var SkipChildren = errors.New("skip children")

// WalkFunc is called for each element visited by Walk. depth is 0 for the
// element Walk was started on.
type WalkFunc func(depth int, n *Node) error

// Walk visits n and its descendants in document order.
func Walk(n *Node, fn WalkFunc) error {
	if n == nil {
		return nil
	}
	return walk(n, 0, fn)
}

func walk(n *Node, depth int, fn WalkFunc) error {
	if err := fn(depth, n); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	for _, c := range n.Children {
		if err := walk(c, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// AppendXML writes the compact XML form of n to buf.
// Empty elements are written as <tag/> with no space before the slash; the
// GUI RPC daemon rejects the <tag /> form.
func (n *Node) AppendXML(buf *bytes.Buffer) {
	buf.WriteByte('<')
	buf.WriteString(n.Tag)
	if n.Text == "" && len(n.Children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	if n.Text != "" {
		// EscapeText only fails when the writer fails; bytes.Buffer never does.
		_ = xml.EscapeText(buf, []byte(n.Text))
	}
	for _, c := range n.Children {
		c.AppendXML(buf)
	}
	buf.WriteString("</")
	buf.WriteString(n.Tag)
	buf.WriteByte('>')
}

// String returns the compact XML form of n.
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	n.AppendXML(&buf)
	return buf.String()
}
