package xpath

import (
	"context"
	"fmt"
	"strings"
)

// axis is a navigation direction through the node tree.
type axis int

const (
	axisChild axis = iota
	axisDescendant
	axisDescendantOrSelf
	axisSelf
	axisParent
	axisAncestor
	axisAncestorOrSelf
	axisAttribute
	axisFollowingSibling
	axisPrecedingSibling
	axisFollowing
	axisPreceding
)

var axisNames = map[string]axis{
	"child":              axisChild,
	"descendant":         axisDescendant,
	"descendant-or-self": axisDescendantOrSelf,
	"self":               axisSelf,
	"parent":             axisParent,
	"ancestor":           axisAncestor,
	"ancestor-or-self":   axisAncestorOrSelf,
	"attribute":          axisAttribute,
	"following-sibling":  axisFollowingSibling,
	"preceding-sibling":  axisPrecedingSibling,
	"following":          axisFollowing,
	"preceding":          axisPreceding,
}

func (a axis) String() string {
	for name, ax := range axisNames {
		if ax == a {
			return name
		}
	}
	return "child"
}

// reverse axes deliver nodes in reverse document order to their
// predicates, so position() counts backwards from the context node.
func (a axis) reverse() bool {
	switch a {
	case axisParent, axisAncestor, axisAncestorOrSelf, axisPrecedingSibling, axisPreceding:
		return true
	}
	return false
}

// walk applies the axis to one origin node.
func (a axis) walk(n Node) []Node {
	switch a {
	case axisChild:
		return n.Children()
	case axisAttribute:
		return n.Attributes()
	case axisSelf:
		return []Node{n}
	case axisParent:
		if p := n.Parent(); p != nil {
			return []Node{p}
		}
		return nil
	case axisDescendant:
		return descendants(n, nil)
	case axisDescendantOrSelf:
		return descendants(n, []Node{n})
	case axisAncestor:
		var out []Node
		for p := n.Parent(); p != nil; p = p.Parent() {
			out = append(out, p)
		}
		return out
	case axisAncestorOrSelf:
		out := []Node{n}
		for p := n.Parent(); p != nil; p = p.Parent() {
			out = append(out, p)
		}
		return out
	case axisFollowingSibling:
		return siblings(n, false)
	case axisPrecedingSibling:
		return reversed(siblings(n, true))
	case axisFollowing:
		var out []Node
		for cur := n; cur != nil; cur = cur.Parent() {
			for _, s := range siblings(cur, false) {
				out = descendants(s, append(out, s))
			}
		}
		return out
	case axisPreceding:
		// Reverse document order: nearest preceding subtree first, each
		// subtree itself reversed. Ancestors are never on this axis.
		var out []Node
		for cur := n; cur != nil; cur = cur.Parent() {
			prev := siblings(cur, true)
			for i := len(prev) - 1; i >= 0; i-- {
				out = append(out, reversed(descendants(prev[i], []Node{prev[i]}))...)
			}
		}
		return out
	}
	return nil
}

func descendants(n Node, acc []Node) []Node {
	for _, c := range n.Children() {
		acc = append(acc, c)
		acc = descendants(c, acc)
	}
	return acc
}

func siblings(n Node, preceding bool) []Node {
	p := n.Parent()
	if p == nil {
		return nil
	}
	all := p.Children()
	at := -1
	for i, c := range all {
		if c == n {
			at = i
			break
		}
	}
	if at < 0 {
		return nil
	}
	if preceding {
		return all[:at]
	}
	return all[at+1:]
}

func reversed(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}

// stepExpr is one axis step with its node test and predicates. It is only
// ever evaluated with a node as the context item.
type stepExpr struct {
	axis       axis
	test       KindTest
	predicates []Expr
}

func (e stepExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	n, ok := env.contextNode()
	if !ok {
		return nil, dynamicErrorf(CodeTypeMismatch, "axis step on non-node context item")
	}
	var matched []Node
	for _, cand := range e.axis.walk(n) {
		if e.test.Matches(cand) {
			matched = append(matched, cand)
		}
	}
	seq := make(Sequence, len(matched))
	for i, m := range matched {
		seq[i] = m
	}
	seq, err := applyPredicates(ctx, env, seq, e.predicates)
	if err != nil {
		return nil, err
	}
	if e.axis.reverse() {
		// Results always surface in document order, even off reverse axes.
		for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
			seq[i], seq[j] = seq[j], seq[i]
		}
	}
	return seq, nil
}

// applyPredicates filters a sequence through each predicate in turn with a
// fresh focus per item. A predicate evaluating to a number selects by
// position; anything else filters by effective boolean value.
func applyPredicates(ctx context.Context, env *Scope, seq Sequence, predicates []Expr) (Sequence, error) {
	for _, pred := range predicates {
		var kept Sequence
		for i, it := range seq {
			v, err := pred.eval(ctx, env.withFocus(it, i+1, len(seq)))
			if err != nil {
				return nil, err
			}
			keep, err := predicateTruth(v, i+1)
			if err != nil {
				return nil, err
			}
			if keep {
				kept = append(kept, it)
			}
		}
		seq = kept
	}
	return seq, nil
}

func predicateTruth(v Sequence, position int) (bool, error) {
	if len(v) == 1 && isNumeric(v[0]) {
		f, err := toDouble(v[0])
		if err != nil {
			return false, err
		}
		return f == float64(position), nil
	}
	return v.EffectiveBoolean()
}

func (e stepExpr) String() string {
	var b strings.Builder
	switch {
	case e.axis == axisAttribute && !e.test.AnyKind:
		b.WriteString("@")
	case e.axis == axisSelf && e.test.AnyKind:
		return renderPredicates(".", e.predicates)
	case e.axis == axisParent && e.test.AnyKind:
		return renderPredicates("..", e.predicates)
	case e.axis != axisChild:
		b.WriteString(e.axis.String())
		b.WriteString("::")
	}
	b.WriteString(renderNodeTest(e.test))
	return renderPredicates(b.String(), e.predicates)
}

func renderNodeTest(t KindTest) string {
	if t.AnyKind {
		return "node()"
	}
	switch t.Kind {
	case TextNode:
		return "text()"
	case CommentNode:
		return "comment()"
	case ProcessingInstructionNode:
		if t.PITarget != "" {
			return fmt.Sprintf("processing-instruction(%s)", t.PITarget)
		}
		return "processing-instruction()"
	case DocumentNode:
		return "document-node()"
	}
	local := t.Local
	if local == "" {
		local = "*"
	}
	if t.Space != "" {
		return t.Space + ":" + local
	}
	return local
}

func renderPredicates(base string, predicates []Expr) string {
	var b strings.Builder
	b.WriteString(base)
	for _, p := range predicates {
		fmt.Fprintf(&b, "[%s]", p)
	}
	return b.String()
}

// pathExpr chains steps left to right. With rooted set, evaluation starts
// at the document root of the context node instead of the node itself.
type pathExpr struct {
	rooted bool
	steps  []Expr
}

func (e pathExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	var current Sequence
	if e.rooted {
		n, ok := env.contextNode()
		if !ok {
			return nil, dynamicErrorf(CodeTypeMismatch, "rooted path without a node context item")
		}
		for n.Parent() != nil {
			n = n.Parent()
		}
		current = Sequence{n}
	} else {
		if env.item == nil {
			return nil, dynamicErrorf(CodeTypeMismatch, "path expression without context item")
		}
		current = Sequence{env.item}
	}
	for _, step := range e.steps {
		var out Sequence
		nodesOnly := true
		for i, it := range current {
			vals, err := step.eval(ctx, env.withFocus(it, i+1, len(current)))
			if err != nil {
				return nil, err
			}
			for _, v := range vals {
				if _, ok := v.(Node); !ok {
					nodesOnly = false
				}
				out = append(out, v)
			}
		}
		if nodesOnly && len(out) > 1 {
			nodes := make([]Node, len(out))
			for i, it := range out {
				nodes[i] = it.(Node)
			}
			nodes = documentOrder(nodes)
			out = make(Sequence, len(nodes))
			for i, n := range nodes {
				out[i] = n
			}
		}
		current = out
	}
	return current, nil
}

func (e pathExpr) String() string {
	parts := make([]string, len(e.steps))
	for i, s := range e.steps {
		parts[i] = s.String()
	}
	joined := strings.Join(parts, "/")
	if e.rooted {
		return "/" + joined
	}
	return joined
}

// rootExpr is the bare "/" path: the document root of the context node.
type rootExpr struct{}

func (rootExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	n, ok := env.contextNode()
	if !ok {
		return nil, dynamicErrorf(CodeTypeMismatch, "\"/\" without a node context item")
	}
	for n.Parent() != nil {
		n = n.Parent()
	}
	return Sequence{n}, nil
}

func (rootExpr) String() string { return "/" }

// filterExpr applies predicates to an arbitrary primary expression.
type filterExpr struct {
	base       Expr
	predicates []Expr
}

func (e filterExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	v, err := e.base.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	return applyPredicates(ctx, env, v, e.predicates)
}

func (e filterExpr) String() string {
	return renderPredicates(e.base.String(), e.predicates)
}
