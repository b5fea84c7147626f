package xpath

import (
	"strings"
	"testing"
)

func integerItemType(t *testing.T) ItemType {
	t.Helper()
	at, ok := AtomicTypeByName("integer")
	if !ok {
		t.Fatal("xs:integer not registered")
	}
	return AtomicItemType{Type: at}
}

func stringItemType(t *testing.T) ItemType {
	t.Helper()
	at, ok := AtomicTypeByName("string")
	if !ok {
		t.Fatal("xs:string not registered")
	}
	return AtomicItemType{Type: at}
}

func intSeq(n int) Sequence {
	out := make(Sequence, n)
	for i := range out {
		out[i] = Integer(i + 1)
	}
	return out
}

func TestMatchSequenceOccurrence(t *testing.T) {
	item := integerItemType(t)
	tests := []struct {
		occ  Occurrence
		want [4]bool // matches for sequence lengths 0..3
	}{
		{ExactlyOne, [4]bool{false, true, false, false}},
		{ZeroOrOne, [4]bool{true, true, false, false}},
		{ZeroOrMore, [4]bool{true, true, true, true}},
		{OneOrMore, [4]bool{false, true, true, true}},
	}
	for _, tt := range tests {
		st := NewSequenceType(item, tt.occ)
		for n := 0; n <= 3; n++ {
			res := MatchSequence(intSeq(n), st)
			if res.Matches != tt.want[n] {
				t.Errorf("%s with %d items: got %v, want %v (%s)", st, n, res.Matches, tt.want[n], res.Reason)
			}
			if res.ItemCount != n {
				t.Errorf("%s with %d items: ItemCount = %d", st, n, res.ItemCount)
			}
			if !res.Matches && res.Reason == "" {
				t.Errorf("%s with %d items: failure without reason", st, n)
			}
		}
	}
}

func TestMatchSequenceEmptySequenceType(t *testing.T) {
	st := EmptySequenceType()
	if !MatchSequence(nil, st).Matches {
		t.Error("empty sequence must match empty-sequence()")
	}
	res := MatchSequence(intSeq(1), st)
	if res.Matches {
		t.Error("non-empty sequence must not match empty-sequence()")
	}
	if st.String() != "empty-sequence()" {
		t.Errorf("String() = %q", st.String())
	}
}

func TestMatchSequenceItemMismatchReason(t *testing.T) {
	st := NewSequenceType(integerItemType(t), ZeroOrMore)
	res := MatchSequence(Sequence{Integer(1), String("x"), Integer(3)}, st)
	if res.Matches {
		t.Fatal("expected mismatch")
	}
	if !strings.Contains(res.Reason, "item 2") {
		t.Errorf("reason should name the offending item: %q", res.Reason)
	}
}

func TestKindTestMatching(t *testing.T) {
	doc := sampleDoc()
	root := doc.children[0]
	a1 := root.children[0]
	attr := root.children[2].attrs[0]
	text := a1.children[0]

	tests := []struct {
		name string
		test KindTest
		item Item
		want bool
	}{
		{"any node", KindTest{AnyKind: true}, a1, true},
		{"any node vs atomic", KindTest{AnyKind: true}, Integer(1), false},
		{"element wildcard", KindTest{Kind: ElementNode}, a1, true},
		{"element by name", KindTest{Kind: ElementNode, Local: "a"}, a1, true},
		{"element wrong name", KindTest{Kind: ElementNode, Local: "b"}, a1, false},
		{"attribute", KindTest{Kind: AttributeNode, Local: "x"}, attr, true},
		{"attribute vs element", KindTest{Kind: AttributeNode}, a1, false},
		{"text", KindTest{Kind: TextNode}, text, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.test.Matches(tt.item); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapAndArrayTypes(t *testing.T) {
	intST := NewSequenceType(integerItemType(t), ExactlyOne)
	strST := NewSequenceType(stringItemType(t), ExactlyOne)
	m := NewMap(MapEntry{Key: String("a"), Value: Sequence{Integer(1)}})
	a := NewArray(Sequence{Integer(1)}, Sequence{Integer(2)})

	// The wildcard forms still require the right container kind.
	if !(MapType{}).Matches(m) {
		t.Error("map(*) must match a map")
	}
	if (MapType{}).Matches(a) {
		t.Error("map(*) must not match an array")
	}
	if !(ArrayType{}).Matches(a) {
		t.Error("array(*) must match an array")
	}
	if (ArrayType{}).Matches(Integer(1)) {
		t.Error("array(*) must not match an atomic")
	}

	typed := MapType{Key: &strST, Value: &intST}
	if !typed.Matches(m) {
		t.Errorf("%s should match %s", typed.TypeName(), m)
	}
	wrongValue := MapType{Key: &strST, Value: &strST}
	if wrongValue.Matches(m) {
		t.Errorf("%s should not match %s", wrongValue.TypeName(), m)
	}
	// No entry can violate the constraint, so the empty map matches any
	// typed map test.
	if !typed.Matches(NewMap()) {
		t.Errorf("%s should match the empty map", typed.TypeName())
	}

	intArray := ArrayType{Member: &intST}
	if !intArray.Matches(a) {
		t.Errorf("%s should match %s", intArray.TypeName(), a)
	}
	mixed := NewArray(Sequence{Integer(1)}, Sequence{String("x")})
	if intArray.Matches(mixed) {
		t.Errorf("%s should not match %s", intArray.TypeName(), mixed)
	}
	if !intArray.Matches(NewArray()) {
		t.Errorf("%s should match the empty array", intArray.TypeName())
	}

	// Function tests cover maps and arrays: both are function items.
	if !(FunctionTest{}).Matches(m) || !(FunctionTest{}).Matches(a) {
		t.Error("function(*) must match maps and arrays")
	}
	if (FunctionTest{}).Matches(Integer(1)) {
		t.Error("function(*) must not match an atomic")
	}
}

func TestUnionTypeConstruction(t *testing.T) {
	intT := integerItemType(t)
	strT := stringItemType(t)

	u, err := NewUnionType(intT, strT)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Matches(Integer(1)) || !u.Matches(String("x")) {
		t.Error("union must match both member types")
	}
	if u.Matches(Boolean(true)) {
		t.Error("union must not match non-member types")
	}

	// Nested unions flatten, duplicates collapse.
	nested, err := NewUnionType(u, intT)
	if err != nil {
		t.Fatal(err)
	}
	if len(nested.(UnionType).Members()) != 2 {
		t.Errorf("expected 2 flattened members, got %d", len(nested.(UnionType).Members()))
	}

	if _, err := NewUnionType(intT, intT); err == nil {
		t.Error("single distinct member must be rejected")
	}
	if _, err := NewUnionType(intT); err == nil {
		t.Error("one member must be rejected")
	}
	if _, err := NewUnionType(intT, nil); err == nil {
		t.Error("nil member must be rejected")
	}
}

func TestAnyItemMatchesEverything(t *testing.T) {
	items := []Item{
		Integer(1), String("x"), Boolean(true),
		NewMap(), NewArray(), sampleDoc(),
		&FuncItem{Arity: 0},
	}
	for _, it := range items {
		if !AnyItem.Matches(it) {
			t.Errorf("item() must match %s", it.TypeName())
		}
	}
}

func TestNewSequenceTypePanicsOnNilItem(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewSequenceType(nil, ExactlyOne)
}
