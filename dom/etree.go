// Package dom adapts etree XML documents to the xpath.Node interface.
// The adapter wraps a parsed document once into an immutable node tree, so
// node identity is stable across repeated axis traversals.
package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"

	"github.com/xpathkit/xpath-go/xpath"
)

// Parse reads an XML document and returns its document node.
func Parse(r io.Reader) (xpath.Node, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	return FromDocument(doc), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (xpath.Node, error) {
	return Parse(strings.NewReader(s))
}

// FromDocument wraps an already parsed etree document.
func FromDocument(doc *etree.Document) xpath.Node {
	root := &node{kind: xpath.DocumentNode}
	for _, tok := range doc.Child {
		if c := wrapToken(tok, root); c != nil {
			root.children = append(root.children, c)
		}
	}
	return root
}

type node struct {
	kind     xpath.NodeKind
	name     xpath.QName
	value    string // text, comment, PI and attribute content
	parent   *node
	children []*node
	attrs    []*node
}

func wrapToken(tok etree.Token, parent *node) *node {
	switch t := tok.(type) {
	case *etree.Element:
		n := &node{
			kind:   xpath.ElementNode,
			name:   xpath.QName{Space: t.Space, Local: t.Tag},
			parent: parent,
		}
		for i := range t.Attr {
			a := &t.Attr[i]
			n.attrs = append(n.attrs, &node{
				kind:   xpath.AttributeNode,
				name:   xpath.QName{Space: a.Space, Local: a.Key},
				value:  a.Value,
				parent: n,
			})
		}
		for _, c := range t.Child {
			if w := wrapToken(c, n); w != nil {
				n.children = append(n.children, w)
			}
		}
		return n
	case *etree.CharData:
		return &node{kind: xpath.TextNode, value: t.Data, parent: parent}
	case *etree.Comment:
		return &node{kind: xpath.CommentNode, value: t.Data, parent: parent}
	case *etree.ProcInst:
		return &node{
			kind:   xpath.ProcessingInstructionNode,
			name:   xpath.QName{Local: t.Target},
			value:  t.Inst,
			parent: parent,
		}
	default:
		// Directives and the XML declaration have no data model mapping.
		return nil
	}
}

func (n *node) Kind() xpath.NodeKind  { return n.kind }
func (n *node) NodeName() xpath.QName { return n.name }

func (n *node) StringValue() string {
	switch n.kind {
	case xpath.DocumentNode, xpath.ElementNode:
		var b strings.Builder
		var walk func(c *node)
		walk = func(c *node) {
			if c.kind == xpath.TextNode {
				b.WriteString(c.value)
			}
			for _, cc := range c.children {
				walk(cc)
			}
		}
		walk(n)
		return b.String()
	default:
		return n.value
	}
}

// TypedValue is never present: etree documents carry no schema.
func (n *node) TypedValue() (xpath.Sequence, bool) { return nil, false }
func (n *node) TypeAnnotation() string             { return "" }

func (n *node) Parent() xpath.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *node) Children() []xpath.Node {
	out := make([]xpath.Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

func (n *node) Attributes() []xpath.Node {
	out := make([]xpath.Node, len(n.attrs))
	for i, a := range n.attrs {
		out[i] = a
	}
	return out
}

func (n *node) TypeName() string { return n.kind.String() }

func (n *node) String() string {
	switch n.kind {
	case xpath.ElementNode:
		return "<" + n.name.String() + ">"
	case xpath.AttributeNode:
		return "@" + n.name.String() + "=" + n.value
	case xpath.DocumentNode:
		return "document-node()"
	default:
		return n.value
	}
}
