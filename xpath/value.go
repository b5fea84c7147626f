package xpath

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Item is one member of an XPath sequence: an atomic value, a node, a map,
// an array or a function item. The set of implementations is closed within
// this package apart from Node, which document backends provide.
type Item interface {
	// TypeName is the diagnostic name of the item's type, e.g.
	// "xs:integer", "element()", "map(*)".
	TypeName() string
	fmt.Stringer
}

// Sequence is the result of every expression evaluation. A nil Sequence is
// the empty sequence.
type Sequence []Item

func (s Sequence) String() string {
	if len(s) == 0 {
		return "{ }"
	}
	var b strings.Builder
	b.WriteString("{ ")
	for i, it := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		// Strings render quoted so the empty string stays visible and
		// "1" stays distinguishable from 1.
		if v, ok := it.(String); ok {
			fmt.Fprintf(&b, "%q", string(v))
		} else {
			fmt.Fprint(&b, it)
		}
	}
	b.WriteString(" }")
	return b.String()
}

// EffectiveBoolean computes the effective boolean value of the sequence.
func (s Sequence) EffectiveBoolean() (bool, error) {
	if len(s) == 0 {
		return false, nil
	}
	if _, ok := s[0].(Node); ok {
		return true, nil
	}
	if len(s) > 1 {
		return false, dynamicErrorf(CodeTypeMismatch, "effective boolean value undefined for sequence of %d items", len(s))
	}
	switch v := s[0].(type) {
	case Boolean:
		return bool(v), nil
	case String:
		return len(v) > 0, nil
	case UntypedAtomic:
		return len(v) > 0, nil
	case AnyURI:
		return len(v) > 0, nil
	case Integer:
		return v != 0, nil
	case Decimal:
		return !v.Value.IsZero(), nil
	case Float:
		return v != 0 && !math.IsNaN(float64(v)), nil
	case Double:
		return v != 0 && !math.IsNaN(float64(v)), nil
	default:
		return false, dynamicErrorf(CodeTypeMismatch, "effective boolean value undefined for %s", s[0].TypeName())
	}
}

// NodeKind enumerates the node kinds of the data model.
type NodeKind uint8

const (
	DocumentNode NodeKind = iota
	ElementNode
	AttributeNode
	TextNode
	CommentNode
	ProcessingInstructionNode
	NamespaceNode
)

func (k NodeKind) String() string {
	switch k {
	case DocumentNode:
		return "document-node()"
	case ElementNode:
		return "element()"
	case AttributeNode:
		return "attribute()"
	case TextNode:
		return "text()"
	case CommentNode:
		return "comment()"
	case ProcessingInstructionNode:
		return "processing-instruction()"
	case NamespaceNode:
		return "namespace-node()"
	default:
		return "node()"
	}
}

// Node is the external document collaborator. Implementations must be
// usable as comparison keys (pointer-backed) so that node identity and
// document-order deduplication work.
type Node interface {
	Item
	Kind() NodeKind
	// NodeName returns the node's name; the zero QName for unnamed kinds.
	NodeName() QName
	// StringValue is the XDM string value: direct text for text, comment,
	// processing-instruction and attribute nodes, concatenated descendant
	// text for elements and documents.
	StringValue() string
	// TypedValue reports a schema-computed typed value when present.
	TypedValue() (Sequence, bool)
	// TypeAnnotation is the declared schema type local name, "" if none.
	TypeAnnotation() string
	Parent() Node
	Children() []Node
	Attributes() []Node
}

// QName is a namespace-qualified name. It doubles as the xs:QName atomic
// value.
type QName struct {
	Space string
	Local string
}

func (q QName) TypeName() string { return "xs:QName" }
func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return q.Space + ":" + q.Local
}

type Boolean bool

func (b Boolean) TypeName() string { return "xs:boolean" }
func (b Boolean) String() string   { return strconv.FormatBool(bool(b)) }

type String string

func (s String) TypeName() string { return "xs:string" }
func (s String) String() string   { return string(s) }

// UntypedAtomic is the type of atomized values from untyped nodes.
type UntypedAtomic string

func (u UntypedAtomic) TypeName() string { return "xs:untypedAtomic" }
func (u UntypedAtomic) String() string   { return string(u) }

type AnyURI string

func (u AnyURI) TypeName() string { return "xs:anyURI" }
func (u AnyURI) String() string   { return string(u) }

type Integer int64

func (i Integer) TypeName() string { return "xs:integer" }
func (i Integer) String() string   { return strconv.FormatInt(int64(i), 10) }

// Decimal wraps an arbitrary-precision decimal.
type Decimal struct {
	Value *apd.Decimal
}

func (d Decimal) TypeName() string { return "xs:decimal" }
func (d Decimal) String() string {
	if d.Value == nil {
		return "0"
	}
	return d.Value.Text('f')
}

type Float float64

func (f Float) TypeName() string { return "xs:float" }
func (f Float) String() string   { return formatXPathFloat(float64(f)) }

type Double float64

func (d Double) TypeName() string { return "xs:double" }
func (d Double) String() string   { return formatXPathFloat(float64(d)) }

func formatXPathFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "INF"
	case math.IsInf(v, -1):
		return "-INF"
	case math.IsNaN(v):
		return "NaN"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

type HexBinary []byte

func (h HexBinary) TypeName() string { return "xs:hexBinary" }
func (h HexBinary) String() string   { return strings.ToUpper(hex.EncodeToString(h)) }

type Base64Binary []byte

func (b Base64Binary) TypeName() string { return "xs:base64Binary" }
func (b Base64Binary) String() string   { return base64.StdEncoding.EncodeToString(b) }

// MapEntry is one key/value pair of a Map. Keys are atomic items.
type MapEntry struct {
	Key   Item
	Value Sequence
}

// Map is the XPath 3.1 map item. Entries preserve insertion order;
// duplicate keys apply last-value-wins.
type Map struct {
	entries []MapEntry
}

func NewMap(entries ...MapEntry) *Map {
	m := &Map{}
	for _, e := range entries {
		m.Put(e.Key, e.Value)
	}
	return m
}

// Put inserts or replaces the entry for key. Replacement keeps the original
// entry position.
func (m *Map) Put(key Item, value Sequence) {
	for i, e := range m.entries {
		if sameKey(e.Key, key) {
			m.entries[i].Value = value
			return
		}
	}
	m.entries = append(m.entries, MapEntry{Key: key, Value: value})
}

func (m *Map) Get(key Item) (Sequence, bool) {
	for _, e := range m.entries {
		if sameKey(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

func (m *Map) Size() int           { return len(m.entries) }
func (m *Map) Entries() []MapEntry { return m.entries }

func (m *Map) Keys() Sequence {
	keys := make(Sequence, 0, len(m.entries))
	for _, e := range m.entries {
		keys = append(keys, e.Key)
	}
	return keys
}

func (m *Map) TypeName() string { return "map(*)" }
func (m *Map) String() string {
	var b strings.Builder
	b.WriteString("map {")
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", renderItem(e.Key), e.Value)
	}
	b.WriteString("}")
	return b.String()
}

// sameKey implements the map-key equality rule: same type family and same
// canonical value. Numeric keys compare numerically across the hierarchy.
func sameKey(a, b Item) bool {
	if isNumeric(a) && isNumeric(b) {
		av, errA := toDouble(a)
		bv, errB := toDouble(b)
		return errA == nil && errB == nil && av == bv
	}
	eq, err := atomicEqual(a, b)
	return err == nil && eq
}

// Array is the XPath 3.1 array item; members are sequences.
type Array struct {
	members []Sequence
}

func NewArray(members ...Sequence) *Array {
	return &Array{members: members}
}

func (a *Array) Size() int           { return len(a.members) }
func (a *Array) Members() []Sequence { return a.members }

// Get returns the member at the 1-based position.
func (a *Array) Get(i int) (Sequence, error) {
	if i < 1 || i > len(a.members) {
		return nil, dynamicErrorf(CodeArrayBounds, "array index %d out of bounds (size %d)", i, len(a.members))
	}
	return a.members[i-1], nil
}

func (a *Array) TypeName() string { return "array(*)" }
func (a *Array) String() string {
	var b strings.Builder
	b.WriteString("[")
	for i, m := range a.members {
		if i > 0 {
			b.WriteString(", ")
		}
		if len(m) == 1 {
			b.WriteString(renderItem(m[0]))
		} else {
			b.WriteString(m.String())
		}
	}
	b.WriteString("]")
	return b.String()
}

// FuncItem is a function value: a named function reference, an inline
// function, or a partially applied built-in.
type FuncItem struct {
	Name   string
	Arity  int
	Invoke func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error)
}

func (f *FuncItem) TypeName() string { return "function(*)" }
func (f *FuncItem) String() string {
	if f.Name != "" {
		return fmt.Sprintf("%s#%d", f.Name, f.Arity)
	}
	return fmt.Sprintf("function#%d", f.Arity)
}

func renderItem(it Item) string {
	switch v := it.(type) {
	case String:
		return strconv.Quote(string(v))
	case UntypedAtomic:
		return strconv.Quote(string(v))
	default:
		return it.String()
	}
}

func isNumeric(it Item) bool {
	switch it.(type) {
	case Integer, Decimal, Float, Double:
		return true
	default:
		return false
	}
}

// toDouble converts any numeric item (or numeric-looking string form) to a
// float64 without changing its semantic type.
func toDouble(it Item) (float64, error) {
	switch v := it.(type) {
	case Integer:
		return float64(v), nil
	case Decimal:
		f, err := v.Value.Float64()
		if err != nil {
			return 0, dynamicErrorf(CodeNumberParse, "decimal out of double range: %s", v)
		}
		return f, nil
	case Float:
		return float64(v), nil
	case Double:
		return float64(v), nil
	case Boolean:
		if v {
			return 1, nil
		}
		return 0, nil
	case String:
		return parseXPathDouble(string(v))
	case UntypedAtomic:
		return parseXPathDouble(string(v))
	default:
		return 0, dynamicErrorf(CodeTypeMismatch, "cannot use %s as number", it.TypeName())
	}
}

func parseXPathDouble(s string) (float64, error) {
	switch strings.TrimSpace(s) {
	case "INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	case "NaN":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, dynamicErrorf(CodeNumberParse, "cannot parse %q as number", s)
	}
	return f, nil
}

// atomicEqual implements value equality between two atomic items after the
// usual comparison promotions have been applied by the caller.
func atomicEqual(a, b Item) (bool, error) {
	if isNumeric(a) && isNumeric(b) {
		cmp, err := compareNumeric(a, b)
		return cmp == 0, err
	}
	switch av := a.(type) {
	case Boolean:
		if bv, ok := b.(Boolean); ok {
			return av == bv, nil
		}
	case String:
		switch bv := b.(type) {
		case String:
			return av == String(bv), nil
		case UntypedAtomic:
			return string(av) == string(bv), nil
		case AnyURI:
			return string(av) == string(bv), nil
		}
	case UntypedAtomic:
		switch bv := b.(type) {
		case String:
			return string(av) == string(bv), nil
		case UntypedAtomic:
			return av == bv, nil
		case AnyURI:
			return string(av) == string(bv), nil
		}
	case AnyURI:
		switch bv := b.(type) {
		case String:
			return string(av) == string(bv), nil
		case UntypedAtomic:
			return string(av) == string(bv), nil
		case AnyURI:
			return av == bv, nil
		}
	case QName:
		if bv, ok := b.(QName); ok {
			return av == bv, nil
		}
	case Date:
		if bv, ok := b.(Date); ok {
			return av.Value.Equal(bv.Value), nil
		}
	case Time:
		if bv, ok := b.(Time); ok {
			return av.Value.Equal(bv.Value), nil
		}
	case DateTime:
		if bv, ok := b.(DateTime); ok {
			return av.Value.Equal(bv.Value), nil
		}
	case Duration:
		if bv, ok := b.(Duration); ok {
			return av.canonical() == bv.canonical(), nil
		}
	case HexBinary:
		if bv, ok := b.(HexBinary); ok {
			return string(av.String()) == bv.String(), nil
		}
	case Base64Binary:
		if bv, ok := b.(Base64Binary); ok {
			return av.String() == bv.String(), nil
		}
	}
	return false, dynamicErrorf(CodeTypeMismatch, "cannot compare %s with %s", a.TypeName(), b.TypeName())
}

// compareNumeric compares two numeric items, returning -1, 0 or 1.
func compareNumeric(a, b Item) (int, error) {
	ai, aInt := a.(Integer)
	bi, bInt := b.(Integer)
	if aInt && bInt {
		switch {
		case ai < bi:
			return -1, nil
		case ai > bi:
			return 1, nil
		default:
			return 0, nil
		}
	}
	ad, aDec := a.(Decimal)
	bd, bDec := b.(Decimal)
	if (aDec || aInt) && (bDec || bInt) {
		var x, y apd.Decimal
		if aDec {
			x.Set(ad.Value)
		} else {
			x.SetInt64(int64(ai))
		}
		if bDec {
			y.Set(bd.Value)
		} else {
			y.SetInt64(int64(bi))
		}
		return x.Cmp(&y), nil
	}
	av, err := toDouble(a)
	if err != nil {
		return 0, err
	}
	bv, err := toDouble(b)
	if err != nil {
		return 0, err
	}
	switch {
	case av < bv:
		return -1, nil
	case av > bv:
		return 1, nil
	case av == bv:
		return 0, nil
	default:
		// NaN involved: unordered, and never equal.
		return 2, nil
	}
}

// compareAtomic orders two atomic items for the relational operators.
func compareAtomic(a, b Item) (int, error) {
	if isNumeric(a) && isNumeric(b) {
		return compareNumeric(a, b)
	}
	switch av := a.(type) {
	case String:
		if bv, err := stringForm(b); err == nil {
			return strings.Compare(string(av), bv), nil
		}
	case UntypedAtomic:
		if bv, err := stringForm(b); err == nil {
			return strings.Compare(string(av), bv), nil
		}
	case AnyURI:
		if bv, err := stringForm(b); err == nil {
			return strings.Compare(string(av), bv), nil
		}
	case Boolean:
		if bv, ok := b.(Boolean); ok {
			x, y := 0, 0
			if av {
				x = 1
			}
			if bv {
				y = 1
			}
			return x - y, nil
		}
	case Date:
		if bv, ok := b.(Date); ok {
			return av.Value.Compare(bv.Value), nil
		}
	case Time:
		if bv, ok := b.(Time); ok {
			return av.Value.Compare(bv.Value), nil
		}
	case DateTime:
		if bv, ok := b.(DateTime); ok {
			return av.Value.Compare(bv.Value), nil
		}
	}
	return 0, dynamicErrorf(CodeTypeMismatch, "cannot order %s relative to %s", a.TypeName(), b.TypeName())
}

func stringForm(it Item) (string, error) {
	switch v := it.(type) {
	case String:
		return string(v), nil
	case UntypedAtomic:
		return string(v), nil
	case AnyURI:
		return string(v), nil
	default:
		return "", dynamicErrorf(CodeTypeMismatch, "not a string-like value: %s", it.TypeName())
	}
}
