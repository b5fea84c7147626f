package xpath

import (
	"context"
	"fmt"
	"strings"
)

// functionCallExpr is a static call to a named function. The name is
// resolved at evaluation time against extensions, context-installed
// functions and built-ins, in that order.
type functionCallExpr struct {
	name string
	args []Expr
}

func (e functionCallExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	args := make([]Sequence, len(e.args))
	for i, a := range e.args {
		v, err := a.eval(ctx, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	if ext, ok := env.extensions[e.name]; ok {
		if len(args) < ext.MinArgs || len(args) > ext.MaxArgs {
			return nil, dynamicErrorf(CodeUnknownFunction, "%s expects %s arguments, got %d", e.name, arityRange(ext.MinArgs, ext.MaxArgs), len(args))
		}
		return ext.Impl(ctx, env, args)
	}
	if f, ok := contextFunctions(ctx)[e.name]; ok {
		if len(args) != f.Arity {
			return nil, dynamicErrorf(CodeUnknownFunction, "%s expects %d arguments, got %d", e.name, f.Arity, len(args))
		}
		return f.Invoke(ctx, env, args)
	}
	if b, ok := lookupBuiltin(e.name); ok {
		if len(args) < b.minArgs || len(args) > b.maxArgs {
			return nil, dynamicErrorf(CodeUnknownFunction, "%s expects %s arguments, got %d", e.name, arityRange(b.minArgs, b.maxArgs), len(args))
		}
		return b.fn(ctx, env, args)
	}
	return nil, dynamicErrorf(CodeUnknownFunction, "unknown function %s#%d", e.name, len(args))
}

func arityRange(min, max int) string {
	if min == max {
		return fmt.Sprintf("%d", min)
	}
	return fmt.Sprintf("%d to %d", min, max)
}

func (e functionCallExpr) String() string {
	parts := make([]string, len(e.args))
	for i, a := range e.args {
		parts[i] = a.String()
	}
	return e.name + "(" + strings.Join(parts, ", ") + ")"
}

// dynamicCallExpr applies a function item, map or array produced by an
// arbitrary expression to arguments.
type dynamicCallExpr struct {
	callee Expr
	args   []Expr
}

func (e dynamicCallExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	cv, err := e.callee.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	if len(cv) != 1 {
		return nil, dynamicErrorf(CodeTypeMismatch, "dynamic call target must be a single item, got %d", len(cv))
	}
	args := make([]Sequence, len(e.args))
	for i, a := range e.args {
		v, err := a.eval(ctx, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return applyFunctionItem(ctx, env, cv[0], args)
}

// applyFunctionItem invokes a function item. Maps apply as single-argument
// key lookups and arrays as single-argument positional access.
func applyFunctionItem(ctx context.Context, env *Scope, target Item, args []Sequence) (Sequence, error) {
	switch f := target.(type) {
	case *FuncItem:
		if len(args) != f.Arity {
			return nil, dynamicErrorf(CodeTypeMismatch, "%s called with %d arguments", f, len(args))
		}
		return f.Invoke(ctx, env, args)
	case *Map:
		if len(args) != 1 {
			return nil, dynamicErrorf(CodeTypeMismatch, "map called with %d arguments, expected 1", len(args))
		}
		key, err := AtomizeSingle(ctx, args[0], strictAtomization(ctx))
		if err != nil {
			return nil, err
		}
		v, _ := f.Get(key)
		return v, nil
	case *Array:
		if len(args) != 1 {
			return nil, dynamicErrorf(CodeTypeMismatch, "array called with %d arguments, expected 1", len(args))
		}
		idx, err := AtomizeSingle(ctx, args[0], strictAtomization(ctx))
		if err != nil {
			return nil, err
		}
		cast, err := castInteger(ctx, idx)
		if err != nil {
			return nil, err
		}
		return f.Get(int(cast.(Integer)))
	default:
		return nil, dynamicErrorf(CodeTypeMismatch, "%s is not callable", target.TypeName())
	}
}

func (e dynamicCallExpr) String() string {
	parts := make([]string, len(e.args))
	for i, a := range e.args {
		parts[i] = a.String()
	}
	return e.callee.String() + "(" + strings.Join(parts, ", ") + ")"
}

// namedFunctionRefExpr is the name#arity form. It resolves at evaluation
// time into a function item.
type namedFunctionRefExpr struct {
	name  string
	arity int
}

func (e namedFunctionRefExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	if ext, ok := env.extensions[e.name]; ok {
		if e.arity < ext.MinArgs || e.arity > ext.MaxArgs {
			return nil, dynamicErrorf(CodeUnknownFunction, "unknown function %s#%d", e.name, e.arity)
		}
		impl := ext.Impl
		return Sequence{&FuncItem{Name: e.name, Arity: e.arity, Invoke: impl}}, nil
	}
	if f, ok := contextFunctions(ctx)[e.name]; ok && f.Arity == e.arity {
		return Sequence{f}, nil
	}
	if b, ok := lookupBuiltin(e.name); ok && e.arity >= b.minArgs && e.arity <= b.maxArgs {
		fn := b.fn
		return Sequence{&FuncItem{Name: e.name, Arity: e.arity, Invoke: fn}}, nil
	}
	return nil, dynamicErrorf(CodeUnknownFunction, "unknown function %s#%d", e.name, e.arity)
}

func (e namedFunctionRefExpr) String() string {
	return fmt.Sprintf("%s#%d", e.name, e.arity)
}

// param is one declared parameter of an inline function.
type param struct {
	name string
	typ  *SequenceType
}

// inlineFunctionExpr builds a closure over the defining scope.
type inlineFunctionExpr struct {
	params  []param
	returns *SequenceType
	body    Expr
}

func (e inlineFunctionExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	captured := env
	f := &FuncItem{
		Arity: len(e.params),
		Invoke: func(ctx context.Context, _ *Scope, args []Sequence) (Sequence, error) {
			sub := captured
			for i, p := range e.params {
				if p.typ != nil {
					if res := MatchSequence(args[i], *p.typ); !res.Matches {
						return nil, dynamicErrorf(CodeTypeMismatch, "argument $%s does not match %s: %s", p.name, p.typ, res.Reason)
					}
				}
				sub = sub.withVariable(p.name, args[i])
			}
			out, err := e.body.eval(ctx, sub)
			if err != nil {
				return nil, err
			}
			if e.returns != nil {
				if res := MatchSequence(out, *e.returns); !res.Matches {
					return nil, dynamicErrorf(CodeTypeMismatch, "function result does not match %s: %s", e.returns, res.Reason)
				}
			}
			return out, nil
		},
	}
	return Sequence{f}, nil
}

func (e inlineFunctionExpr) String() string {
	parts := make([]string, len(e.params))
	for i, p := range e.params {
		parts[i] = "$" + p.name
		if p.typ != nil {
			parts[i] += " as " + p.typ.String()
		}
	}
	sig := "function(" + strings.Join(parts, ", ") + ")"
	if e.returns != nil {
		sig += " as " + e.returns.String()
	}
	return sig + " { " + e.body.String() + " }"
}
