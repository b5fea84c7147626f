package xpath

import (
	"fmt"
	"strings"
)

// Occurrence is the cardinality indicator of a SequenceType.
type Occurrence int

const (
	ExactlyOne Occurrence = iota
	ZeroOrOne
	ZeroOrMore
	OneOrMore
)

func (o Occurrence) String() string {
	switch o {
	case ZeroOrOne:
		return "?"
	case ZeroOrMore:
		return "*"
	case OneOrMore:
		return "+"
	default:
		return ""
	}
}

func (o Occurrence) allows(count int) bool {
	switch o {
	case ExactlyOne:
		return count == 1
	case ZeroOrOne:
		return count <= 1
	case OneOrMore:
		return count >= 1
	default:
		return true
	}
}

// ItemType is a structural test on one sequence item.
type ItemType interface {
	Matches(it Item) bool
	TypeName() string
}

// AnyItem is the wildcard item() type: it matches any present item.
var AnyItem ItemType = anyItemType{}

type anyItemType struct{}

func (anyItemType) Matches(it Item) bool { return it != nil }
func (anyItemType) TypeName() string     { return "item()" }

// AtomicItemType matches atomic values of the given type or a type derived
// from it. Untyped atomics only match xs:untypedAtomic and xs:anyAtomicType.
type AtomicItemType struct {
	Type *AtomicType
}

func (t AtomicItemType) Matches(it Item) bool {
	at := itemAtomicType(it)
	if at == nil {
		return false
	}
	return at.DerivesFrom(t.Type) || (t.Type != typeAnyAtomic && t.Type.DerivesFrom(at) && t.Type.Validate(it))
}

func (t AtomicItemType) TypeName() string { return t.Type.String() }

// KindTest matches nodes by kind and, optionally, by name. Wildcard parts
// are empty strings; WildcardSpace alone expresses "prefix:*".
type KindTest struct {
	Kind     NodeKind
	AnyKind  bool // node()
	Space    string
	Local    string // "" matches any local name
	PITarget string
}

func (t KindTest) Matches(it Item) bool {
	n, ok := it.(Node)
	if !ok {
		return false
	}
	if !t.AnyKind && n.Kind() != t.Kind {
		return false
	}
	if t.PITarget != "" && n.NodeName().Local != t.PITarget {
		return false
	}
	name := n.NodeName()
	if t.Local != "" && t.Local != "*" && name.Local != t.Local {
		return false
	}
	if t.Space != "" && t.Space != "*" && name.Space != t.Space {
		return false
	}
	return true
}

func (t KindTest) TypeName() string {
	if t.AnyKind {
		return "node()"
	}
	if t.Local != "" || t.Space != "" {
		name := t.Local
		if t.Space != "" {
			name = t.Space + ":" + t.Local
		}
		switch t.Kind {
		case ElementNode:
			return fmt.Sprintf("element(%s)", name)
		case AttributeNode:
			return fmt.Sprintf("attribute(%s)", name)
		}
	}
	return t.Kind.String()
}

// FunctionTest matches function items; only the function(*) wildcard form
// is supported. Maps and arrays are function items in the data model and
// match as well.
type FunctionTest struct{}

func (FunctionTest) Matches(it Item) bool {
	switch it.(type) {
	case *FuncItem, *Map, *Array:
		return true
	default:
		return false
	}
}

func (FunctionTest) TypeName() string { return "function(*)" }

// MapType is the typed map test map(K, V). Nil key and value mean map(*),
// which still requires the candidate to be a map.
type MapType struct {
	Key   *SequenceType
	Value *SequenceType
}

func (t MapType) Matches(it Item) bool {
	m, ok := it.(*Map)
	if !ok {
		return false
	}
	if t.Key == nil && t.Value == nil {
		return true
	}
	for _, e := range m.Entries() {
		if t.Key != nil && !MatchSequence(Sequence{e.Key}, *t.Key).Matches {
			return false
		}
		if t.Value != nil && !MatchSequence(e.Value, *t.Value).Matches {
			return false
		}
	}
	return true
}

func (t MapType) TypeName() string {
	if t.Key == nil && t.Value == nil {
		return "map(*)"
	}
	return fmt.Sprintf("map(%s, %s)", t.Key, t.Value)
}

// ArrayType is the typed array test array(M). A nil member type means
// array(*), which still requires the candidate to be an array.
type ArrayType struct {
	Member *SequenceType
}

func (t ArrayType) Matches(it Item) bool {
	a, ok := it.(*Array)
	if !ok {
		return false
	}
	if t.Member == nil {
		return true
	}
	for _, m := range a.Members() {
		if !MatchSequence(m, *t.Member).Matches {
			return false
		}
	}
	return true
}

func (t ArrayType) TypeName() string {
	if t.Member == nil {
		return "array(*)"
	}
	return fmt.Sprintf("array(%s)", t.Member)
}

// UnionType matches when any member type matches. Construct through
// NewUnionType.
type UnionType struct {
	members []ItemType
}

func (t UnionType) Matches(it Item) bool {
	for _, m := range t.members {
		if m.Matches(it) {
			return true
		}
	}
	return false
}

func (t UnionType) TypeName() string {
	names := make([]string, len(t.members))
	for i, m := range t.members {
		names[i] = m.TypeName()
	}
	return strings.Join(names, " | ")
}

func (t UnionType) Members() []ItemType { return t.members }

// NewUnionType builds a union item type. Nested unions are flattened and
// duplicate members (by type name) removed; fewer than two distinct members
// after flattening is a construction contract violation.
func NewUnionType(members ...ItemType) (ItemType, error) {
	var flat []ItemType
	seen := map[string]bool{}
	var add func(list []ItemType) error
	add = func(list []ItemType) error {
		for _, m := range list {
			if m == nil {
				return configErrorf("union type member must not be nil")
			}
			if u, ok := m.(UnionType); ok {
				if err := add(u.members); err != nil {
					return err
				}
				continue
			}
			if seen[m.TypeName()] {
				continue
			}
			seen[m.TypeName()] = true
			flat = append(flat, m)
		}
		return nil
	}
	if err := add(members); err != nil {
		return nil, err
	}
	if len(flat) < 2 {
		return nil, configErrorf("union type requires at least 2 distinct member types, got %d", len(flat))
	}
	return UnionType{members: flat}, nil
}

// SequenceType pairs an item type with a cardinality. The zero value is not
// meaningful; use NewSequenceType or EmptySequenceType.
type SequenceType struct {
	item  ItemType
	occ   Occurrence
	empty bool
}

// NewSequenceType builds a SequenceType from an item type and occurrence
// indicator. A nil item type is a construction contract violation; the
// empty-sequence type has its own constructor.
func NewSequenceType(item ItemType, occ Occurrence) SequenceType {
	if item == nil {
		panic("xpath: nil ItemType in SequenceType; use EmptySequenceType")
	}
	return SequenceType{item: item, occ: occ}
}

// EmptySequenceType is the empty-sequence() type: it matches only the empty
// sequence. Its occurrence is fixed at ExactlyOne and must not be
// interpreted.
func EmptySequenceType() SequenceType {
	return SequenceType{empty: true}
}

func (t SequenceType) IsEmptySequence() bool  { return t.empty }
func (t SequenceType) ItemType() ItemType     { return t.item }
func (t SequenceType) Occurrence() Occurrence { return t.occ }

func (t SequenceType) String() string {
	if t.empty {
		return "empty-sequence()"
	}
	return t.item.TypeName() + t.occ.String()
}

// MatchResult reports the outcome of a sequence type test. Failures carry a
// diagnostic reason instead of an error: instance-of renders the result as
// a boolean while treat-as escalates it to a dynamic error.
type MatchResult struct {
	Matches   bool
	Reason    string
	ItemCount int
}

// MatchSequence tests a value sequence against a SequenceType.
func MatchSequence(seq Sequence, st SequenceType) MatchResult {
	res := MatchResult{ItemCount: len(seq)}
	if len(seq) == 0 {
		if st.empty || st.occ == ZeroOrOne || st.occ == ZeroOrMore {
			res.Matches = true
			return res
		}
		res.Reason = fmt.Sprintf("empty sequence not allowed for %s", st)
		return res
	}
	if st.empty {
		res.Reason = fmt.Sprintf("expected empty sequence, got %d items", len(seq))
		return res
	}
	for i, it := range seq {
		if !st.item.Matches(it) {
			res.Reason = fmt.Sprintf("item %d (%s) does not match %s", i+1, renderItem(it), st.item.TypeName())
			return res
		}
	}
	if !st.occ.allows(len(seq)) {
		res.Reason = fmt.Sprintf("cardinality %d not allowed by occurrence indicator %q", len(seq), st.occ)
		return res
	}
	res.Matches = true
	return res
}
