// Package xmltree is the element tree shared by the GUI RPC wire codec, the
// command dispatcher and the command-line printer.
//
// A Node carries only what the protocol uses: a tag, the element's text and
// its ordered children. Attributes, namespaces, comments and processing
// instructions are dropped on parse.
//
// # Usage
//
//	root, err := xmltree.Parse(payload)
//	if err != nil {
//	    return err
//	}
//	if n := root.Find("nonce"); n != nil {
//	    fmt.Println(n.Text)
//	}
package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	// DefaultMaxDepth is the default limit for element nesting depth.
	DefaultMaxDepth = 100
)

var (
	// ErrInvalidXML is returned when the input is not well-formed XML.
	ErrInvalidXML = errors.New("invalid xml")
	// ErrNoElement is returned when the input holds no element at all.
	ErrNoElement = errors.New("no root element")
	// ErrMaxDepth is returned when nesting exceeds the configured depth.
	ErrMaxDepth = errors.New("maximum nesting depth exceeded")
)

// Node is a single element of a GUI RPC document.
type Node struct {
	Tag      string
	Text     string
	Children []*Node
}

// New creates an element with the given children.
func New(tag string, children ...*Node) *Node {
	return &Node{Tag: tag, Children: children}
}

// Leaf creates a text-only element.
func Leaf(tag, text string) *Node {
	return &Node{Tag: tag, Text: text}
}

// Add appends children and returns n for chaining.
func (n *Node) Add(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// FirstChild returns the first child element or nil.
func (n *Node) FirstChild() *Node {
	if n == nil || len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// Child returns the first direct child with the given tag or nil.
func (n *Node) Child(tag string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// Find searches n and its descendants in document order and returns the
// first element with the given tag, or nil.
func (n *Node) Find(tag string) *Node {
	if n == nil {
		return nil
	}
	if n.Tag == tag {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(tag); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every element with the given tag in document order.
func (n *Node) FindAll(tag string) []*Node {
	var out []*Node
	_ = Walk(n, func(_ int, e *Node) error {
		if e.Tag == tag {
			out = append(out, e)
		}
		return nil
	})
	return out
}

// Equal reports whether two trees have the same tags, text and child order.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Tag != other.Tag || n.Text != other.Text || len(n.Children) != len(other.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(other.Children[i]) {
			return false
		}
	}
	return true
}

// Parse decodes data and returns its single root element.
func Parse(data []byte) (*Node, error) {
	nodes, err := ParseAll(data)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, fmt.Errorf("%w: expected one root element, got %d", ErrInvalidXML, len(nodes))
	}
	return nodes[0], nil
}

// ParseAll decodes data and returns all top-level elements in order.
// The daemon is not required to wrap multi-element replies, so more than one
// top-level element is accepted here.
func ParseAll(data []byte) ([]*Node, error) {
	return ParseAllWithMaxDepth(data, DefaultMaxDepth)
}

// ParseAllWithMaxDepth is ParseAll with a custom nesting limit.
func ParseAllWithMaxDepth(data []byte, maxDepth int) ([]*Node, error) {
	// Strip UTF-8 BOM if present
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	dec := xml.NewDecoder(bytes.NewReader(data))
	// The daemon declares ISO-8859-1 in some builds.
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity

	var (
		roots []*Node
		stack []*Node
		text  []*strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) && len(stack) == 0 {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) >= maxDepth {
				return nil, fmt.Errorf("%w: depth %d", ErrMaxDepth, maxDepth)
			}
			node := &Node{Tag: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			} else {
				roots = append(roots, node)
			}
			stack = append(stack, node)
			text = append(text, &strings.Builder{})

		case xml.EndElement:
			top := len(stack) - 1
			stack[top].Text = strings.TrimSpace(text[top].String())
			stack = stack[:top]
			text = text[:top]

		case xml.CharData:
			if len(stack) > 0 {
				text[len(text)-1].Write(t)
			} else if len(bytes.TrimSpace(t)) > 0 {
				return nil, fmt.Errorf("%w: text outside of an element", ErrInvalidXML)
			}
		}
	}

	if len(roots) == 0 {
		return nil, ErrNoElement
	}
	return roots, nil
}
