package xpath

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Expr is one node of the compiled expression tree. Nodes are immutable
// after parsing and re-evaluable against any number of independent scopes.
type Expr interface {
	eval(ctx context.Context, env *Scope) (Sequence, error)
	fmt.Stringer
}

type literalExpr struct {
	value Item
}

func (e literalExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	return Sequence{e.value}, nil
}

func (e literalExpr) String() string { return renderItem(e.value) }

type emptySequenceExpr struct{}

func (emptySequenceExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	return nil, nil
}

func (emptySequenceExpr) String() string { return "()" }

type sequenceExpr struct {
	items []Expr
}

func (e sequenceExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	var out Sequence
	for _, item := range e.items {
		vals, err := item.eval(ctx, env)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func (e sequenceExpr) String() string {
	parts := make([]string, len(e.items))
	for i, item := range e.items {
		parts[i] = item.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

type varRefExpr struct {
	name string
}

func (e varRefExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	if v, ok := env.variable(e.name); ok {
		return v, nil
	}
	return nil, dynamicErrorf(CodeUndefinedVar, "variable $%s is not bound", e.name)
}

func (e varRefExpr) String() string { return "$" + e.name }

type contextItemExpr struct{}

func (contextItemExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	if env.item == nil {
		return nil, dynamicErrorf(CodeTypeMismatch, "context item is absent")
	}
	return Sequence{env.item}, nil
}

func (contextItemExpr) String() string { return "." }

type logicalExpr struct {
	op          string // "and" or "or"
	left, right Expr
}

func (e logicalExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	lv, err := e.left.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	lb, err := lv.EffectiveBoolean()
	if err != nil {
		return nil, err
	}
	if e.op == "and" && !lb {
		return Sequence{Boolean(false)}, nil
	}
	if e.op == "or" && lb {
		return Sequence{Boolean(true)}, nil
	}
	rv, err := e.right.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	rb, err := rv.EffectiveBoolean()
	if err != nil {
		return nil, err
	}
	return Sequence{Boolean(rb)}, nil
}

func (e logicalExpr) String() string {
	return fmt.Sprintf("%s %s %s", e.left, e.op, e.right)
}

type comparisonExpr struct {
	op          string // = != < <= > >=
	left, right Expr
}

func (e comparisonExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	lv, err := e.left.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	rv, err := e.right.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	if compatibilityMode(ctx) {
		ok, err := e.compareCompat(ctx, lv, rv)
		if err != nil {
			return nil, err
		}
		return Sequence{Boolean(ok)}, nil
	}
	la, err := Atomize(ctx, lv, strictAtomization(ctx))
	if err != nil {
		return nil, err
	}
	ra, err := Atomize(ctx, rv, strictAtomization(ctx))
	if err != nil {
		return nil, err
	}
	// General comparison: existential over all operand pairs.
	for _, l := range la {
		for _, r := range ra {
			ok, err := comparePair(ctx, e.op, l, r)
			if err != nil {
				return nil, err
			}
			if ok {
				return Sequence{Boolean(true)}, nil
			}
		}
	}
	return Sequence{Boolean(false)}, nil
}

func comparePair(ctx context.Context, op string, l, r Item) (bool, error) {
	pl, err := Promote(ctx, l, PromoteComparison, r)
	if err != nil {
		return false, err
	}
	pr, err := Promote(ctx, r, PromoteComparison, pl)
	if err != nil {
		return false, err
	}
	switch op {
	case "=", "!=":
		eq, err := atomicEqual(pl, pr)
		if err != nil {
			return false, err
		}
		if op == "=" {
			return eq, nil
		}
		return !eq, nil
	default:
		cmp, err := compareAtomic(pl, pr)
		if err != nil {
			return false, err
		}
		if cmp == 2 { // unordered (NaN)
			return false, nil
		}
		switch op {
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		}
	}
	return false, dynamicErrorf(CodeTypeMismatch, "unknown comparison operator %q", op)
}

// compareCompat implements the XPath 1.0 compatibility comparison rules as
// a pre-pass: booleans compare by effective boolean value, relational
// operators coerce both sides to numbers, equality falls back to string
// comparison when neither side is numeric.
func (e comparisonExpr) compareCompat(ctx context.Context, lv, rv Sequence) (bool, error) {
	isBool := func(s Sequence) bool {
		if len(s) != 1 {
			return false
		}
		_, ok := s[0].(Boolean)
		return ok
	}
	if (e.op == "=" || e.op == "!=") && (isBool(lv) || isBool(rv)) {
		lb, err := lv.EffectiveBoolean()
		if err != nil {
			return false, err
		}
		rb, err := rv.EffectiveBoolean()
		if err != nil {
			return false, err
		}
		return (lb == rb) == (e.op == "="), nil
	}
	la, err := Atomize(ctx, lv, false)
	if err != nil {
		return false, err
	}
	ra, err := Atomize(ctx, rv, false)
	if err != nil {
		return false, err
	}
	numeric := e.op != "=" && e.op != "!="
	if !numeric {
		for _, it := range append(append(Sequence{}, la...), ra...) {
			if isNumeric(it) {
				numeric = true
				break
			}
		}
	}
	for _, l := range la {
		for _, r := range ra {
			var ok bool
			if numeric {
				lf, el := toDouble(l)
				rf, er := toDouble(r)
				if el != nil || er != nil {
					lf, rf = math.NaN(), 0
				}
				switch e.op {
				case "=":
					ok = lf == rf
				case "!=":
					ok = lf != rf
				case "<":
					ok = lf < rf
				case "<=":
					ok = lf <= rf
				case ">":
					ok = lf > rf
				case ">=":
					ok = lf >= rf
				}
			} else {
				eq := l.String() == r.String()
				ok = eq == (e.op == "=")
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

func (e comparisonExpr) String() string {
	return fmt.Sprintf("%s %s %s", e.left, e.op, e.right)
}

type arithmeticExpr struct {
	op          string // + - * div idiv mod
	left, right Expr
}

func (e arithmeticExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	lv, err := e.left.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	rv, err := e.right.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	if compatibilityMode(ctx) {
		// 1.0 compatibility: operands coerce through number(), empty
		// sequences become NaN.
		lf := compatNumber(lv)
		rf := compatNumber(rv)
		res, err := applyFloatOp(e.op, lf, rf)
		if err != nil {
			return nil, err
		}
		return Sequence{Double(res)}, nil
	}
	l, err := atomizeOptional(ctx, lv, strictAtomization(ctx))
	if err != nil {
		return nil, err
	}
	r, err := atomizeOptional(ctx, rv, strictAtomization(ctx))
	if err != nil {
		return nil, err
	}
	if l == nil || r == nil {
		return nil, nil
	}
	if l, err = Promote(ctx, l, PromoteArithmetic, r); err != nil {
		return nil, err
	}
	if r, err = Promote(ctx, r, PromoteArithmetic, l); err != nil {
		return nil, err
	}
	res, err := applyArithmetic(ctx, e.op, l, r)
	if err != nil {
		return nil, err
	}
	return Sequence{res}, nil
}

func compatNumber(s Sequence) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	f, err := toDouble(s[0])
	if err != nil {
		if sv, ok := s[0].(Node); ok {
			if f2, err2 := parseXPathDouble(sv.StringValue()); err2 == nil {
				return f2
			}
		}
		return math.NaN()
	}
	return f
}

func applyFloatOp(op string, l, r float64) (float64, error) {
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "div":
		return l / r, nil
	case "idiv":
		if r == 0 {
			return 0, dynamicErrorf(CodeTypeMismatch, "integer division by zero")
		}
		return math.Trunc(l / r), nil
	case "mod":
		return math.Mod(l, r), nil
	}
	return 0, dynamicErrorf(CodeTypeMismatch, "unknown arithmetic operator %q", op)
}

func applyArithmetic(ctx context.Context, op string, l, r Item) (Item, error) {
	pl, pr, err := promoteNumericPair(ctx, l, r)
	if err != nil {
		return nil, err
	}
	switch lv := pl.(type) {
	case Integer:
		rv := pr.(Integer)
		switch op {
		case "+":
			return Integer(lv + rv), nil
		case "-":
			return Integer(lv - rv), nil
		case "*":
			return Integer(lv * rv), nil
		case "idiv":
			if rv == 0 {
				return nil, dynamicErrorf(CodeTypeMismatch, "integer division by zero")
			}
			return Integer(lv / rv), nil
		case "mod":
			if rv == 0 {
				return nil, dynamicErrorf(CodeTypeMismatch, "modulus by zero")
			}
			return Integer(lv % rv), nil
		case "div":
			// Integer div yields xs:decimal.
			if rv == 0 {
				return nil, dynamicErrorf(CodeTypeMismatch, "division by zero")
			}
			var x, y, q apd.Decimal
			x.SetInt64(int64(lv))
			y.SetInt64(int64(rv))
			if _, err := apdContext(ctx).Quo(&q, &x, &y); err != nil {
				return nil, dynamicErrorf(CodeTypeMismatch, "division failed: %v", err)
			}
			return Decimal{Value: &q}, nil
		}
	case Decimal:
		rv := pr.(Decimal)
		var out apd.Decimal
		var opErr error
		switch op {
		case "+":
			_, opErr = apdContext(ctx).Add(&out, lv.Value, rv.Value)
		case "-":
			_, opErr = apdContext(ctx).Sub(&out, lv.Value, rv.Value)
		case "*":
			_, opErr = apdContext(ctx).Mul(&out, lv.Value, rv.Value)
		case "div":
			if rv.Value.IsZero() {
				return nil, dynamicErrorf(CodeTypeMismatch, "division by zero")
			}
			_, opErr = apdContext(ctx).Quo(&out, lv.Value, rv.Value)
		case "idiv":
			if rv.Value.IsZero() {
				return nil, dynamicErrorf(CodeTypeMismatch, "integer division by zero")
			}
			_, opErr = apdContext(ctx).QuoInteger(&out, lv.Value, rv.Value)
			if opErr == nil {
				return castInteger(ctx, Decimal{Value: &out})
			}
		case "mod":
			if rv.Value.IsZero() {
				return nil, dynamicErrorf(CodeTypeMismatch, "modulus by zero")
			}
			_, opErr = apdContext(ctx).Rem(&out, lv.Value, rv.Value)
		}
		if opErr != nil {
			return nil, dynamicErrorf(CodeTypeMismatch, "decimal %s failed: %v", op, opErr)
		}
		return Decimal{Value: &out}, nil
	case Float:
		res, err := applyFloatOp(op, float64(lv), float64(pr.(Float)))
		if err != nil {
			return nil, err
		}
		if op == "idiv" {
			return Integer(res), nil
		}
		return Float(res), nil
	case Double:
		res, err := applyFloatOp(op, float64(lv), float64(pr.(Double)))
		if err != nil {
			return nil, err
		}
		if op == "idiv" {
			return Integer(res), nil
		}
		return Double(res), nil
	}
	return nil, dynamicErrorf(CodeTypeMismatch, "%s is not valid in arithmetic", pl.TypeName())
}

func (e arithmeticExpr) String() string {
	return fmt.Sprintf("%s %s %s", e.left, e.op, e.right)
}

type unaryExpr struct {
	negate  bool
	operand Expr
}

func (e unaryExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	v, err := e.operand.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	if compatibilityMode(ctx) {
		f := compatNumber(v)
		if e.negate {
			f = -f
		}
		return Sequence{Double(f)}, nil
	}
	it, err := atomizeOptional(ctx, v, strictAtomization(ctx))
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, nil
	}
	if it, err = Promote(ctx, it, PromoteArithmetic, nil); err != nil {
		return nil, err
	}
	if !e.negate {
		return Sequence{it}, nil
	}
	switch n := it.(type) {
	case Integer:
		return Sequence{Integer(-n)}, nil
	case Decimal:
		var out apd.Decimal
		out.Neg(n.Value)
		return Sequence{Decimal{Value: &out}}, nil
	case Float:
		return Sequence{Float(-n)}, nil
	case Double:
		return Sequence{Double(-n)}, nil
	}
	return nil, dynamicErrorf(CodeTypeMismatch, "cannot negate %s", it.TypeName())
}

func (e unaryExpr) String() string {
	if e.negate {
		return "-" + e.operand.String()
	}
	return "+" + e.operand.String()
}

type rangeExpr struct {
	left, right Expr
}

func (e rangeExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	lo, err := evalToOptionalInteger(ctx, env, e.left)
	if err != nil {
		return nil, err
	}
	hi, err := evalToOptionalInteger(ctx, env, e.right)
	if err != nil {
		return nil, err
	}
	if lo == nil || hi == nil || *lo > *hi {
		return nil, nil
	}
	out := make(Sequence, 0, *hi-*lo+1)
	for i := *lo; i <= *hi; i++ {
		out = append(out, Integer(i))
	}
	return out, nil
}

func evalToOptionalInteger(ctx context.Context, env *Scope, e Expr) (*int64, error) {
	v, err := e.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	it, err := atomizeOptional(ctx, v, strictAtomization(ctx))
	if err != nil || it == nil {
		return nil, err
	}
	cast, err := castInteger(ctx, it)
	if err != nil {
		return nil, err
	}
	n := int64(cast.(Integer))
	return &n, nil
}

func (e rangeExpr) String() string {
	return fmt.Sprintf("%s to %s", e.left, e.right)
}

type concatenateExpr struct {
	left, right Expr
}

func (e concatenateExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	ls, err := evalToString(ctx, env, e.left)
	if err != nil {
		return nil, err
	}
	rs, err := evalToString(ctx, env, e.right)
	if err != nil {
		return nil, err
	}
	return Sequence{String(ls + rs)}, nil
}

func evalToString(ctx context.Context, env *Scope, e Expr) (string, error) {
	v, err := e.eval(ctx, env)
	if err != nil {
		return "", err
	}
	it, err := atomizeOptional(ctx, v, strictAtomization(ctx))
	if err != nil {
		return "", err
	}
	if it == nil {
		return "", nil
	}
	return it.String(), nil
}

func (e concatenateExpr) String() string {
	return fmt.Sprintf("%s || %s", e.left, e.right)
}

type unionExpr struct {
	left, right Expr
}

func (e unionExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	lv, err := e.left.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	rv, err := e.right.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(lv)+len(rv))
	for _, it := range append(append(Sequence{}, lv...), rv...) {
		n, ok := it.(Node)
		if !ok {
			return nil, dynamicErrorf(CodeTypeMismatch, "union operand contains non-node %s", it.TypeName())
		}
		nodes = append(nodes, n)
	}
	nodes = documentOrder(nodes)
	out := make(Sequence, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out, nil
}

func (e unionExpr) String() string {
	return fmt.Sprintf("%s | %s", e.left, e.right)
}

// documentOrder deduplicates nodes by identity and sorts them into
// document order by their depth-first position under the common root.
func documentOrder(nodes []Node) []Node {
	if len(nodes) < 2 {
		return nodes
	}
	ordinals := map[Node]int{}
	next := 0
	var walk func(n Node)
	walk = func(n Node) {
		if _, seen := ordinals[n]; seen {
			return
		}
		ordinals[n] = next
		next++
		for _, a := range n.Attributes() {
			if _, seen := ordinals[a]; !seen {
				ordinals[a] = next
				next++
			}
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	for _, n := range nodes {
		root := n
		for root.Parent() != nil {
			root = root.Parent()
		}
		walk(root)
	}
	var unique []Node
	seen := map[Node]bool{}
	for _, n := range nodes {
		if !seen[n] {
			seen[n] = true
			unique = append(unique, n)
		}
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return ordinals[unique[i]] < ordinals[unique[j]]
	})
	return unique
}

type ifExpr struct {
	cond, then, els Expr
}

func (e ifExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	cv, err := e.cond.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	ok, err := cv.EffectiveBoolean()
	if err != nil {
		return nil, err
	}
	if ok {
		return e.then.eval(ctx, env)
	}
	return e.els.eval(ctx, env)
}

func (e ifExpr) String() string {
	return fmt.Sprintf("if (%s) then %s else %s", e.cond, e.then, e.els)
}

type binding struct {
	name string
	expr Expr
}

type forExpr struct {
	bindings []binding
	body     Expr
}

func (e forExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	return evalForBindings(ctx, env, e.bindings, e.body)
}

func evalForBindings(ctx context.Context, env *Scope, binds []binding, body Expr) (Sequence, error) {
	if len(binds) == 0 {
		return body.eval(ctx, env)
	}
	seq, err := binds[0].expr.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	var out Sequence
	for _, it := range seq {
		sub := env.withVariable(binds[0].name, Sequence{it})
		vals, err := evalForBindings(ctx, sub, binds[1:], body)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func (e forExpr) String() string {
	return fmt.Sprintf("for %s return %s", renderBindings(e.bindings, "in"), e.body)
}

type letExpr struct {
	bindings []binding
	body     Expr
}

func (e letExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	sub := env
	for _, b := range e.bindings {
		v, err := b.expr.eval(ctx, sub)
		if err != nil {
			return nil, err
		}
		sub = sub.withVariable(b.name, v)
	}
	return e.body.eval(ctx, sub)
}

func (e letExpr) String() string {
	return fmt.Sprintf("let %s return %s", renderBindings(e.bindings, ":="), e.body)
}

func renderBindings(binds []binding, sep string) string {
	parts := make([]string, len(binds))
	for i, b := range binds {
		if sep == ":=" {
			parts[i] = fmt.Sprintf("$%s := %s", b.name, b.expr)
		} else {
			parts[i] = fmt.Sprintf("$%s %s %s", b.name, sep, b.expr)
		}
	}
	return strings.Join(parts, ", ")
}

type quantifiedExpr struct {
	every    bool
	bindings []binding
	test     Expr
}

func (e quantifiedExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	ok, err := e.quantify(ctx, env, e.bindings)
	if err != nil {
		return nil, err
	}
	return Sequence{Boolean(ok)}, nil
}

func (e quantifiedExpr) quantify(ctx context.Context, env *Scope, binds []binding) (bool, error) {
	if len(binds) == 0 {
		tv, err := e.test.eval(ctx, env)
		if err != nil {
			return false, err
		}
		return tv.EffectiveBoolean()
	}
	seq, err := binds[0].expr.eval(ctx, env)
	if err != nil {
		return false, err
	}
	for _, it := range seq {
		ok, err := e.quantify(ctx, env.withVariable(binds[0].name, Sequence{it}), binds[1:])
		if err != nil {
			return false, err
		}
		if ok != e.every {
			// some: first success wins; every: first failure loses.
			return !e.every, nil
		}
	}
	// Vacuous: some over empty is false, every over empty is true.
	return e.every, nil
}

func (e quantifiedExpr) String() string {
	kw := "some"
	if e.every {
		kw = "every"
	}
	return fmt.Sprintf("%s %s satisfies %s", kw, renderBindings(e.bindings, "in"), e.test)
}

type instanceOfExpr struct {
	operand Expr
	st      SequenceType
}

func (e instanceOfExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	v, err := e.operand.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	return Sequence{Boolean(MatchSequence(v, e.st).Matches)}, nil
}

func (e instanceOfExpr) String() string {
	return fmt.Sprintf("%s instance of %s", e.operand, e.st)
}

type treatExpr struct {
	operand Expr
	st      SequenceType
}

func (e treatExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	v, err := e.operand.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	if res := MatchSequence(v, e.st); !res.Matches {
		return nil, dynamicErrorf(CodeTypeMismatch, "treat as %s failed: %s", e.st, res.Reason)
	}
	return v, nil
}

func (e treatExpr) String() string {
	return fmt.Sprintf("%s treat as %s", e.operand, e.st)
}

type castExpr struct {
	operand  Expr
	target   *AtomicType
	optional bool
}

func (e castExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	v, err := e.operand.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	it, err := atomizeOptional(ctx, v, strictAtomization(ctx))
	if err != nil {
		return nil, err
	}
	if it == nil {
		if e.optional {
			return nil, nil
		}
		return nil, dynamicErrorf(CodeCardinality, "cast as %s of empty sequence", e.target)
	}
	out, err := e.target.Cast(ctx, it)
	if err != nil {
		return nil, err
	}
	return Sequence{out}, nil
}

func (e castExpr) String() string {
	return fmt.Sprintf("%s cast as %s%s", e.operand, e.target, optionalMark(e.optional))
}

type castableExpr struct {
	operand  Expr
	target   *AtomicType
	optional bool
}

func (e castableExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	v, err := e.operand.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	it, err := atomizeOptional(ctx, v, strictAtomization(ctx))
	if err != nil {
		// Cardinality failures make the expression not castable rather
		// than propagating.
		return Sequence{Boolean(false)}, nil
	}
	if it == nil {
		return Sequence{Boolean(e.optional)}, nil
	}
	_, err = e.target.Cast(ctx, it)
	return Sequence{Boolean(err == nil)}, nil
}

func (e castableExpr) String() string {
	return fmt.Sprintf("%s castable as %s%s", e.operand, e.target, optionalMark(e.optional))
}

func optionalMark(optional bool) string {
	if optional {
		return "?"
	}
	return ""
}

type simpleMapExpr struct {
	left, right Expr
}

func (e simpleMapExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	lv, err := e.left.eval(ctx, env)
	if err != nil {
		return nil, err
	}
	var out Sequence
	for i, it := range lv {
		vals, err := e.right.eval(ctx, env.withFocus(it, i+1, len(lv)))
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func (e simpleMapExpr) String() string {
	return fmt.Sprintf("%s ! %s", e.left, e.right)
}

type mapConstructorExpr struct {
	keys   []Expr
	values []Expr
}

func (e mapConstructorExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	m := NewMap()
	for i := range e.keys {
		kv, err := e.keys[i].eval(ctx, env)
		if err != nil {
			return nil, err
		}
		key, err := AtomizeSingle(ctx, kv, strictAtomization(ctx))
		if err != nil {
			return nil, err
		}
		vv, err := e.values[i].eval(ctx, env)
		if err != nil {
			return nil, err
		}
		// Duplicate keys: last value wins.
		m.Put(key, vv)
	}
	return Sequence{m}, nil
}

func (e mapConstructorExpr) String() string {
	parts := make([]string, len(e.keys))
	for i := range e.keys {
		parts[i] = fmt.Sprintf("%s: %s", e.keys[i], e.values[i])
	}
	return "map {" + strings.Join(parts, ", ") + "}"
}

type arrayConstructorExpr struct {
	members []Expr
	curly   bool // array { expr }: members come from the sequence items
}

func (e arrayConstructorExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	if e.curly {
		var all Sequence
		for _, m := range e.members {
			vals, err := m.eval(ctx, env)
			if err != nil {
				return nil, err
			}
			all = append(all, vals...)
		}
		members := make([]Sequence, len(all))
		for i, it := range all {
			members[i] = Sequence{it}
		}
		return Sequence{NewArray(members...)}, nil
	}
	members := make([]Sequence, len(e.members))
	for i, m := range e.members {
		vals, err := m.eval(ctx, env)
		if err != nil {
			return nil, err
		}
		members[i] = vals
	}
	return Sequence{NewArray(members...)}, nil
}

func (e arrayConstructorExpr) String() string {
	parts := make([]string, len(e.members))
	for i, m := range e.members {
		parts[i] = m.String()
	}
	if e.curly {
		return "array {" + strings.Join(parts, ", ") + "}"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// lookupKey is the key part of a lookup expression: a name, an integer
// position, a wildcard, or a parenthesized key expression.
type lookupKey struct {
	name     string
	position int64
	expr     Expr
	wildcard bool
	numeric  bool
}

func (k lookupKey) String() string {
	switch {
	case k.wildcard:
		return "*"
	case k.expr != nil:
		return "(" + k.expr.String() + ")"
	case k.numeric:
		return strconv.FormatInt(k.position, 10)
	default:
		return k.name
	}
}

type lookupExpr struct {
	base Expr // nil for the unary form, which applies to the context item
	key  lookupKey
}

func (e lookupExpr) eval(ctx context.Context, env *Scope) (Sequence, error) {
	var base Sequence
	if e.base == nil {
		if env.item == nil {
			return nil, dynamicErrorf(CodeTypeMismatch, "unary lookup without context item")
		}
		base = Sequence{env.item}
	} else {
		v, err := e.base.eval(ctx, env)
		if err != nil {
			return nil, err
		}
		base = v
	}
	var out Sequence
	for _, it := range base {
		vals, err := e.lookupOne(ctx, env, it)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func (e lookupExpr) lookupOne(ctx context.Context, env *Scope, it Item) (Sequence, error) {
	keys, err := e.keyItems(ctx, env, it)
	if err != nil {
		return nil, err
	}
	switch v := it.(type) {
	case *Map:
		var out Sequence
		for _, k := range keys {
			if vals, ok := v.Get(k); ok {
				out = append(out, vals...)
			}
		}
		return out, nil
	case *Array:
		var out Sequence
		for _, k := range keys {
			idx, err := castInteger(ctx, k)
			if err != nil {
				return nil, dynamicErrorf(CodeTypeMismatch, "array lookup key %s is not an integer", renderItem(k))
			}
			member, err := v.Get(int(idx.(Integer)))
			if err != nil {
				return nil, err
			}
			out = append(out, member...)
		}
		return out, nil
	default:
		return nil, dynamicErrorf(CodeTypeMismatch, "lookup applied to %s, expected map or array", it.TypeName())
	}
}

func (e lookupExpr) keyItems(ctx context.Context, env *Scope, target Item) (Sequence, error) {
	switch {
	case e.key.wildcard:
		switch v := target.(type) {
		case *Map:
			return v.Keys(), nil
		case *Array:
			keys := make(Sequence, v.Size())
			for i := range keys {
				keys[i] = Integer(i + 1)
			}
			return keys, nil
		}
		return nil, nil
	case e.key.expr != nil:
		v, err := e.key.expr.eval(ctx, env)
		if err != nil {
			return nil, err
		}
		return Atomize(ctx, v, strictAtomization(ctx))
	case e.key.numeric:
		return Sequence{Integer(e.key.position)}, nil
	default:
		return Sequence{String(e.key.name)}, nil
	}
}

func (e lookupExpr) String() string {
	if e.base == nil {
		return "?" + e.key.String()
	}
	return e.base.String() + "?" + e.key.String()
}
