package xpath

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/cockroachdb/apd/v3"
)

// ExtensionFunction registers a host-provided function under a plain name.
// Extensions shadow built-ins of the same name for the expressions they are
// attached to.
type ExtensionFunction struct {
	Name        string
	MinArgs     int
	MaxArgs     int
	Impl        func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error)
	Description string
}

func validateExtensions(exts []ExtensionFunction) (map[string]ExtensionFunction, error) {
	if len(exts) == 0 {
		return nil, nil
	}
	out := make(map[string]ExtensionFunction, len(exts))
	for _, ext := range exts {
		if ext.Name == "" {
			return nil, configErrorf("extension function with empty name")
		}
		if ext.Impl == nil {
			return nil, configErrorf("extension function %s has no implementation", ext.Name)
		}
		if ext.MaxArgs < ext.MinArgs {
			return nil, configErrorf("extension function %s: max arity %d below min arity %d", ext.Name, ext.MaxArgs, ext.MinArgs)
		}
		if _, dup := out[ext.Name]; dup {
			return nil, configErrorf("duplicate extension function %s", ext.Name)
		}
		out[ext.Name] = ext
	}
	return out, nil
}

type builtin struct {
	minArgs int
	maxArgs int
	fn      func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error)
}

func lookupBuiltin(name string) (*builtin, bool) {
	b, ok := builtins()[name]
	return b, ok
}

var builtins = sync.OnceValue(func() map[string]*builtin {
	fns := map[string]*builtin{
		"true":  {0, 0, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) { return Sequence{Boolean(true)}, nil }},
		"false": {0, 0, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) { return Sequence{Boolean(false)}, nil }},
		"boolean": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			b, err := args[0].EffectiveBoolean()
			if err != nil {
				return nil, err
			}
			return Sequence{Boolean(b)}, nil
		}},
		"not": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			b, err := args[0].EffectiveBoolean()
			if err != nil {
				return nil, err
			}
			return Sequence{Boolean(!b)}, nil
		}},
		"string": {0, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			v, err := focusArgument(env, args)
			if err != nil {
				return nil, err
			}
			if len(v) == 0 {
				return Sequence{String("")}, nil
			}
			it, err := AtomizeSingle(ctx, v, false)
			if err != nil {
				// string() of a node falls back to the string value.
				if n, ok := v[0].(Node); ok && len(v) == 1 {
					return Sequence{String(n.StringValue())}, nil
				}
				return nil, err
			}
			return Sequence{String(it.String())}, nil
		}},
		"number": {0, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			v, err := focusArgument(env, args)
			if err != nil {
				return nil, err
			}
			return Sequence{Double(compatNumber(v))}, nil
		}},
		"count": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			return Sequence{Integer(len(args[0]))}, nil
		}},
		"empty": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			return Sequence{Boolean(len(args[0]) == 0)}, nil
		}},
		"exists": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			return Sequence{Boolean(len(args[0]) > 0)}, nil
		}},
		"position": {0, 0, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			return Sequence{Integer(env.position)}, nil
		}},
		"last": {0, 0, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			return Sequence{Integer(env.size)}, nil
		}},
		"head": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			if len(args[0]) == 0 {
				return nil, nil
			}
			return args[0][:1], nil
		}},
		"tail": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			if len(args[0]) <= 1 {
				return nil, nil
			}
			return args[0][1:], nil
		}},
		"reverse": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			out := make(Sequence, len(args[0]))
			for i, it := range args[0] {
				out[len(out)-1-i] = it
			}
			return out, nil
		}},
		"distinct-values": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			atoms, err := Atomize(ctx, args[0], strictAtomization(ctx))
			if err != nil {
				return nil, err
			}
			var out Sequence
			for _, it := range atoms {
				dup := false
				for _, have := range out {
					if eq, err := atomicEqual(have, it); err == nil && eq {
						dup = true
						break
					}
				}
				if !dup {
					out = append(out, it)
				}
			}
			return out, nil
		}},
		"concat": {2, 64, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			var b strings.Builder
			for _, a := range args {
				it, err := atomizeOptional(ctx, a, false)
				if err != nil {
					return nil, err
				}
				if it != nil {
					b.WriteString(it.String())
				}
			}
			return Sequence{String(b.String())}, nil
		}},
		"string-join": {1, 2, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			sep := ""
			if len(args) == 2 {
				s, err := atomizeOptional(ctx, args[1], false)
				if err != nil {
					return nil, err
				}
				if s != nil {
					sep = s.String()
				}
			}
			atoms, err := Atomize(ctx, args[0], false)
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(atoms))
			for i, it := range atoms {
				parts[i] = it.String()
			}
			return Sequence{String(strings.Join(parts, sep))}, nil
		}},
		"contains": {2, 2, stringPairFn(strings.Contains)},
		"starts-with": {2, 2, stringPairFn(strings.HasPrefix)},
		"ends-with": {2, 2, stringPairFn(strings.HasSuffix)},
		"substring": {2, 3, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			s, err := stringArgument(ctx, args[0])
			if err != nil {
				return nil, err
			}
			start := compatNumber(args[1])
			length := math.Inf(1)
			if len(args) == 3 {
				length = compatNumber(args[2])
			}
			runes := []rune(s)
			var b strings.Builder
			for i, r := range runes {
				p := float64(i + 1)
				if math.Round(p-start) >= 0 && p < math.Round(start)+math.Round(length) {
					b.WriteRune(r)
				}
			}
			return Sequence{String(b.String())}, nil
		}},
		"string-length": {0, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			v, err := focusArgument(env, args)
			if err != nil {
				return nil, err
			}
			s, err := stringArgument(ctx, v)
			if err != nil {
				return nil, err
			}
			return Sequence{Integer(len([]rune(s)))}, nil
		}},
		"normalize-space": {0, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			v, err := focusArgument(env, args)
			if err != nil {
				return nil, err
			}
			s, err := stringArgument(ctx, v)
			if err != nil {
				return nil, err
			}
			return Sequence{String(strings.Join(strings.Fields(s), " "))}, nil
		}},
		"upper-case": {1, 1, stringUnaryFn(strings.ToUpper)},
		"lower-case": {1, 1, stringUnaryFn(strings.ToLower)},
		"name": {0, 1, nodeNameFn(func(q QName) string { return q.String() })},
		"local-name": {0, 1, nodeNameFn(func(q QName) string { return q.Local })},
		"floor":   {1, 1, numericUnaryFn(math.Floor, func(apdCtx *apd.Context, out, in *apd.Decimal) error { _, err := apdCtx.Floor(out, in); return err })},
		"ceiling": {1, 1, numericUnaryFn(math.Ceil, func(apdCtx *apd.Context, out, in *apd.Decimal) error { _, err := apdCtx.Ceil(out, in); return err })},
		"abs":     {1, 1, numericUnaryFn(math.Abs, func(apdCtx *apd.Context, out, in *apd.Decimal) error { out.Abs(in); return nil })},
		"round": {1, 1, numericUnaryFn(func(f float64) float64 {
			// round half toward positive infinity
			return math.Floor(f + 0.5)
		}, func(apdCtx *apd.Context, out, in *apd.Decimal) error {
			rounded := apdCtx.WithPrecision(apdCtx.Precision)
			rounded.Rounding = apd.RoundHalfUp
			_, err := rounded.RoundToIntegralValue(out, in)
			return err
		})},
		"sum": {1, 2, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			atoms, err := Atomize(ctx, args[0], strictAtomization(ctx))
			if err != nil {
				return nil, err
			}
			if len(atoms) == 0 {
				if len(args) == 2 {
					return args[1], nil
				}
				return Sequence{Integer(0)}, nil
			}
			acc := atoms[0]
			if u, ok := acc.(UntypedAtomic); ok {
				if acc, err = Promote(ctx, u, PromoteArithmetic, nil); err != nil {
					return nil, err
				}
			}
			for _, it := range atoms[1:] {
				if it, err = Promote(ctx, it, PromoteArithmetic, nil); err != nil {
					return nil, err
				}
				if acc, err = applyArithmetic(ctx, "+", acc, it); err != nil {
					return nil, err
				}
			}
			return Sequence{acc}, nil
		}},
		"min": {1, 1, extremumFn(-1)},
		"max": {1, 1, extremumFn(1)},
		"trace": {1, 2, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			label := "trace"
			if len(args) == 2 {
				if it, err := atomizeOptional(ctx, args[1], false); err == nil && it != nil {
					label = it.String()
				}
			}
			contextLogger(ctx).InfoContext(ctx, label, "value", args[0].String())
			return args[0], nil
		}},
		"doc": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			it, err := atomizeOptional(ctx, args[0], false)
			if err != nil || it == nil {
				return nil, err
			}
			loader := documentLoader(ctx)
			if loader == nil {
				return nil, nil
			}
			n, err := loader(it.String())
			if err != nil || n == nil {
				return nil, nil
			}
			return Sequence{n}, nil
		}},
		"collection": {0, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			uri := ""
			if len(args) == 1 {
				it, err := atomizeOptional(ctx, args[0], false)
				if err != nil {
					return nil, err
				}
				if it != nil {
					uri = it.String()
				}
			}
			return contextCollections(ctx)[uri], nil
		}},
		"current-dateTime": {0, 0, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			now := contextNow(ctx).In(implicitTimezone(ctx))
			return Sequence{DateTime{Value: now, HasTZ: true}}, nil
		}},
		"static-base-uri": {0, 0, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			if uri := baseURI(ctx); uri != "" {
				return Sequence{AnyURI(uri)}, nil
			}
			return nil, nil
		}},
		"default-collation": {0, 0, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			return Sequence{String(defaultCollation(ctx))}, nil
		}},
		"map:merge": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			out := NewMap()
			for _, it := range args[0] {
				m, ok := it.(*Map)
				if !ok {
					return nil, dynamicErrorf(CodeTypeMismatch, "map:merge argument contains %s", it.TypeName())
				}
				for _, e := range m.Entries() {
					if _, exists := out.Get(e.Key); !exists {
						out.Put(e.Key, e.Value)
					}
				}
			}
			return Sequence{out}, nil
		}},
		"map:size": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			m, err := mapArgument(args[0])
			if err != nil {
				return nil, err
			}
			return Sequence{Integer(m.Size())}, nil
		}},
		"map:keys": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			m, err := mapArgument(args[0])
			if err != nil {
				return nil, err
			}
			return m.Keys(), nil
		}},
		"map:contains": {2, 2, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			m, err := mapArgument(args[0])
			if err != nil {
				return nil, err
			}
			key, err := AtomizeSingle(ctx, args[1], false)
			if err != nil {
				return nil, err
			}
			_, ok := m.Get(key)
			return Sequence{Boolean(ok)}, nil
		}},
		"map:get": {2, 2, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			m, err := mapArgument(args[0])
			if err != nil {
				return nil, err
			}
			key, err := AtomizeSingle(ctx, args[1], false)
			if err != nil {
				return nil, err
			}
			v, _ := m.Get(key)
			return v, nil
		}},
		"map:put": {3, 3, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			m, err := mapArgument(args[0])
			if err != nil {
				return nil, err
			}
			key, err := AtomizeSingle(ctx, args[1], false)
			if err != nil {
				return nil, err
			}
			out := NewMap(m.Entries()...)
			out.Put(key, args[2])
			return Sequence{out}, nil
		}},
		"map:remove": {2, 2, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			m, err := mapArgument(args[0])
			if err != nil {
				return nil, err
			}
			drop, err := Atomize(ctx, args[1], false)
			if err != nil {
				return nil, err
			}
			out := NewMap()
			for _, e := range m.Entries() {
				dropped := false
				for _, k := range drop {
					if eq, err := atomicEqual(e.Key, k); err == nil && eq {
						dropped = true
						break
					}
				}
				if !dropped {
					out.Put(e.Key, e.Value)
				}
			}
			return Sequence{out}, nil
		}},
		"array:size": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			a, err := arrayArgument(args[0])
			if err != nil {
				return nil, err
			}
			return Sequence{Integer(a.Size())}, nil
		}},
		"array:get": {2, 2, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			a, err := arrayArgument(args[0])
			if err != nil {
				return nil, err
			}
			idx, err := integerArgument(ctx, args[1])
			if err != nil {
				return nil, err
			}
			return a.Get(int(idx))
		}},
		"array:append": {2, 2, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			a, err := arrayArgument(args[0])
			if err != nil {
				return nil, err
			}
			members := append(append([]Sequence{}, a.Members()...), args[1])
			return Sequence{NewArray(members...)}, nil
		}},
		"array:flatten": {1, 1, func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
			var flatten func(seq Sequence) Sequence
			flatten = func(seq Sequence) Sequence {
				var out Sequence
				for _, it := range seq {
					if a, ok := it.(*Array); ok {
						for _, m := range a.Members() {
							out = append(out, flatten(m)...)
						}
						continue
					}
					out = append(out, it)
				}
				return out
			}
			return flatten(args[0]), nil
		}},
	}
	return fns
})

// focusArgument returns the explicit argument or, for zero-argument calls,
// the context item as a singleton.
func focusArgument(env *Scope, args []Sequence) (Sequence, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if env.item == nil {
		return nil, dynamicErrorf(CodeTypeMismatch, "context item is absent")
	}
	return Sequence{env.item}, nil
}

func stringArgument(ctx context.Context, seq Sequence) (string, error) {
	it, err := atomizeOptional(ctx, seq, false)
	if err != nil {
		return "", err
	}
	if it == nil {
		return "", nil
	}
	return it.String(), nil
}

func integerArgument(ctx context.Context, seq Sequence) (int64, error) {
	it, err := AtomizeSingle(ctx, seq, false)
	if err != nil {
		return 0, err
	}
	cast, err := castInteger(ctx, it)
	if err != nil {
		return 0, err
	}
	return int64(cast.(Integer)), nil
}

func mapArgument(seq Sequence) (*Map, error) {
	if len(seq) == 1 {
		if m, ok := seq[0].(*Map); ok {
			return m, nil
		}
	}
	return nil, dynamicErrorf(CodeTypeMismatch, "expected a single map, got %s", seq)
}

func arrayArgument(seq Sequence) (*Array, error) {
	if len(seq) == 1 {
		if a, ok := seq[0].(*Array); ok {
			return a, nil
		}
	}
	return nil, dynamicErrorf(CodeTypeMismatch, "expected a single array, got %s", seq)
}

func stringPairFn(f func(a, b string) bool) func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
	return func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
		a, err := stringArgument(ctx, args[0])
		if err != nil {
			return nil, err
		}
		b, err := stringArgument(ctx, args[1])
		if err != nil {
			return nil, err
		}
		return Sequence{Boolean(f(a, b))}, nil
	}
}

func stringUnaryFn(f func(string) string) func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
	return func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
		s, err := stringArgument(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return Sequence{String(f(s))}, nil
	}
}

func nodeNameFn(f func(QName) string) func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
	return func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
		v, err := focusArgument(env, args)
		if err != nil {
			return nil, err
		}
		if len(v) == 0 {
			return Sequence{String("")}, nil
		}
		n, ok := v[0].(Node)
		if !ok {
			return nil, dynamicErrorf(CodeTypeMismatch, "expected a node, got %s", v[0].TypeName())
		}
		return Sequence{String(f(n.NodeName()))}, nil
	}
}

// numericUnaryFn dispatches on the promoted numeric type: integers pass
// through unchanged, decimals use the apd operation, floats and doubles the
// float64 operation.
func numericUnaryFn(ffn func(float64) float64, dfn func(apdCtx *apd.Context, out, in *apd.Decimal) error) func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
	return func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
		it, err := atomizeOptional(ctx, args[0], strictAtomization(ctx))
		if err != nil || it == nil {
			return nil, err
		}
		if it, err = Promote(ctx, it, PromoteArithmetic, nil); err != nil {
			return nil, err
		}
		switch v := it.(type) {
		case Integer:
			if v < 0 && ffn(-1) == 1 { // abs
				return Sequence{Integer(-v)}, nil
			}
			return Sequence{v}, nil
		case Decimal:
			var out apd.Decimal
			if err := dfn(apdContext(ctx), &out, v.Value); err != nil {
				return nil, dynamicErrorf(CodeTypeMismatch, "decimal operation failed: %v", err)
			}
			return Sequence{Decimal{Value: &out}}, nil
		case Float:
			return Sequence{Float(ffn(float64(v)))}, nil
		case Double:
			return Sequence{Double(ffn(float64(v)))}, nil
		}
		return nil, dynamicErrorf(CodeTypeMismatch, "%s is not numeric", it.TypeName())
	}
}

// extremumFn builds min (sign -1) and max (sign 1) over the codepoint
// collation for strings and numeric promotion for numbers.
func extremumFn(sign int) func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
	return func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) {
		atoms, err := Atomize(ctx, args[0], strictAtomization(ctx))
		if err != nil {
			return nil, err
		}
		if len(atoms) == 0 {
			return nil, nil
		}
		best := atoms[0]
		if u, ok := best.(UntypedAtomic); ok {
			if best, err = Promote(ctx, u, PromoteArithmetic, nil); err != nil {
				return nil, err
			}
		}
		for _, it := range atoms[1:] {
			if u, ok := it.(UntypedAtomic); ok {
				if it, err = Promote(ctx, u, PromoteArithmetic, nil); err != nil {
					return nil, err
				}
			}
			cmp, err := compareAtomic(it, best)
			if err != nil {
				return nil, err
			}
			if cmp == 2 { // NaN poisons the whole aggregate
				return Sequence{it}, nil
			}
			if cmp*sign > 0 {
				best = it
			}
		}
		return Sequence{best}, nil
	}
}
