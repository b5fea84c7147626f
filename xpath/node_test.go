package xpath

import "strings"

// testNode is a minimal in-memory document tree for evaluator tests.
type testNode struct {
	kind       NodeKind
	name       QName
	text       string
	annotation string
	typed      Sequence
	hasTyped   bool
	parent     *testNode
	children   []*testNode
	attrs      []*testNode
}

func (n *testNode) Kind() NodeKind  { return n.kind }
func (n *testNode) NodeName() QName { return n.name }

func (n *testNode) StringValue() string {
	switch n.kind {
	case DocumentNode, ElementNode:
		var b strings.Builder
		var walk func(c *testNode)
		walk = func(c *testNode) {
			if c.kind == TextNode {
				b.WriteString(c.text)
			}
			for _, cc := range c.children {
				walk(cc)
			}
		}
		walk(n)
		return b.String()
	default:
		return n.text
	}
}

func (n *testNode) TypedValue() (Sequence, bool) { return n.typed, n.hasTyped }
func (n *testNode) TypeAnnotation() string       { return n.annotation }

func (n *testNode) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *testNode) Children() []Node {
	out := make([]Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

func (n *testNode) Attributes() []Node {
	out := make([]Node, len(n.attrs))
	for i, a := range n.attrs {
		out[i] = a
	}
	return out
}

func (n *testNode) TypeName() string { return n.kind.String() }

func (n *testNode) String() string {
	switch n.kind {
	case ElementNode:
		return "<" + n.name.String() + ">"
	case AttributeNode:
		return "@" + n.name.String()
	default:
		return n.text
	}
}

func docNode(kids ...*testNode) *testNode {
	d := &testNode{kind: DocumentNode}
	for _, k := range kids {
		k.parent = d
		d.children = append(d.children, k)
	}
	return d
}

func elemNode(name string, kids ...*testNode) *testNode {
	e := &testNode{kind: ElementNode, name: QName{Local: name}}
	for _, k := range kids {
		k.parent = e
		if k.kind == AttributeNode {
			e.attrs = append(e.attrs, k)
		} else {
			e.children = append(e.children, k)
		}
	}
	return e
}

func textNode(s string) *testNode {
	return &testNode{kind: TextNode, text: s}
}

func attrNode(name, value string) *testNode {
	return &testNode{kind: AttributeNode, name: QName{Local: name}, text: value}
}

// sampleDoc builds the document used across evaluator tests:
//
//	<root>
//	  <a>1</a>
//	  <a>2</a>
//	  <b x="9">text</b>
//	</root>
func sampleDoc() *testNode {
	return docNode(
		elemNode("root",
			elemNode("a", textNode("1")),
			elemNode("a", textNode("2")),
			elemNode("b", attrNode("x", "9"), textNode("text")),
		),
	)
}
