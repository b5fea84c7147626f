package xpath

import "context"

// Atomize applies the data model atomization rule to a sequence: atomic
// values pass through, nodes contribute their typed value or untyped string
// value, arrays atomize their members recursively. Maps and function items
// cannot be atomized. With strict set, atomizing an element whose children
// are exclusively elements fails instead of yielding a misleading
// concatenation.
func Atomize(ctx context.Context, seq Sequence, strict bool) (Sequence, error) {
	var out Sequence
	for _, it := range seq {
		vals, err := atomizeItem(ctx, it, strict)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func atomizeItem(ctx context.Context, it Item, strict bool) (Sequence, error) {
	switch v := it.(type) {
	case nil:
		return nil, nil
	case Node:
		return atomizeNode(ctx, v, strict)
	case *Array:
		var out Sequence
		for _, m := range v.Members() {
			vals, err := Atomize(ctx, m, strict)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	case *Map:
		return nil, dynamicErrorf(CodeAtomizeFuncs, "cannot atomize a map")
	case *FuncItem:
		return nil, dynamicErrorf(CodeAtomizeFuncs, "cannot atomize a function item")
	default:
		return Sequence{it}, nil
	}
}

func atomizeNode(ctx context.Context, n Node, strict bool) (Sequence, error) {
	if tv, ok := n.TypedValue(); ok {
		return tv, nil
	}
	if ann := n.TypeAnnotation(); ann != "" {
		if t, ok := AtomicTypeByName(ann); ok {
			v, err := t.Cast(ctx, UntypedAtomic(n.StringValue()))
			if err != nil {
				return nil, err
			}
			return Sequence{v}, nil
		}
	}
	if strict && elementOnlyContent(n) {
		return nil, dynamicErrorf(CodeAtomizeContent, "cannot atomize element-only content of %s", nodeDescription(n))
	}
	return Sequence{UntypedAtomic(n.StringValue())}, nil
}

// elementOnlyContent reports whether the node has children but no text
// among them.
func elementOnlyContent(n Node) bool {
	children := n.Children()
	if len(children) == 0 {
		return false
	}
	for _, c := range children {
		if c.Kind() == TextNode {
			return false
		}
	}
	return true
}

func nodeDescription(n Node) string {
	name := n.NodeName()
	if name.Local == "" {
		return n.Kind().String()
	}
	return name.String()
}

// AtomizeSingle atomizes the sequence and requires the result to hold
// exactly one atomic value.
func AtomizeSingle(ctx context.Context, seq Sequence, strict bool) (Item, error) {
	vals, err := Atomize(ctx, seq, strict)
	if err != nil {
		return nil, err
	}
	switch len(vals) {
	case 1:
		return vals[0], nil
	case 0:
		return nil, dynamicErrorf(CodeCardinality, "expected exactly one atomic value, got empty sequence")
	default:
		return nil, dynamicErrorf(CodeCardinality, "expected exactly one atomic value, got %d", len(vals))
	}
}

// atomizeOptional is AtomizeSingle with the empty sequence allowed; it
// returns nil for empty input.
func atomizeOptional(ctx context.Context, seq Sequence, strict bool) (Item, error) {
	vals, err := Atomize(ctx, seq, strict)
	if err != nil {
		return nil, err
	}
	switch len(vals) {
	case 0:
		return nil, nil
	case 1:
		return vals[0], nil
	default:
		return nil, dynamicErrorf(CodeCardinality, "expected at most one atomic value, got %d", len(vals))
	}
}
