package main

import (
	"fmt"
	"io"

	"github.com/smnsjas/go-boincrpc/xmltree"
)

// printTree writes every node below and including each root as "tag: text",
// one per line, in document order.
func printTree(w io.Writer, roots ...*xmltree.Node) error {
	for _, root := range roots {
		err := xmltree.Walk(root, func(_ int, n *xmltree.Node) error {
			_, err := fmt.Fprintf(w, "%s: %s\n", n.Tag, n.Text)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}
