package xpath

import (
	"context"
	"testing"
	"time"
)

func TestBuiltinStrings(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		expr string
		want string
	}{
		{"concat('a', 'b')", `{ "ab" }`},
		{"concat('a', 1, 'b')", `{ "a1b" }`},
		{"concat((), 'x')", `{ "x" }`},
		{"string-join(('a', 'b', 'c'), '-')", `{ "a-b-c" }`},
		{"string-join((1, 2, 3))", `{ "123" }`},
		{"string-join((), ',')", `{ "" }`},
		{"contains('banana', 'nan')", "{ true }"},
		{"contains('banana', 'x')", "{ false }"},
		{"starts-with('banana', 'ban')", "{ true }"},
		{"ends-with('banana', 'ana')", "{ true }"},
		{"substring('12345', 2, 3)", `{ "234" }`},
		{"substring('12345', 2)", `{ "2345" }`},
		{"substring('12345', 1.5, 2.6)", `{ "234" }`},
		{"substring('12345', 0)", `{ "12345" }`},
		{"substring('héllo', 2, 2)", `{ "él" }`},
		{"string-length('héllo')", "{ 5 }"},
		{"string-length('')", "{ 0 }"},
		{"normalize-space('  a   b  ')", `{ "a b" }`},
		{"upper-case('mixed Case')", `{ "MIXED CASE" }`},
		{"lower-case('MIXED Case')", `{ "mixed case" }`},
		{"string(())", `{ "" }`},
		{"string(1.5)", `{ "1.5" }`},
		{"string(true())", `{ "true" }`},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := evalString(t, ctx, nil, tt.expr); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuiltinNumbers(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		expr string
		want string
	}{
		{"number('12')", "{ 12 }"},
		{"number(' 3.5 ')", "{ 3.5 }"},
		{"number('abc')", "{ NaN }"},
		{"number(())", "{ NaN }"},
		{"floor(1.7)", "{ 1 }"},
		{"floor(-1.2)", "{ -2 }"},
		{"floor(3)", "{ 3 }"},
		{"ceiling(1.2)", "{ 2 }"},
		{"ceiling(-1.7)", "{ -1 }"},
		{"abs(-3)", "{ 3 }"},
		{"abs(3)", "{ 3 }"},
		{"abs(-2.5)", "{ 2.5 }"},
		{"round(2.4)", "{ 2 }"},
		{"round(2.5)", "{ 3 }"},
		{"round(2.5e0)", "{ 3 }"},
		{"round(-2.5e0)", "{ -2 }"},
		{"round(())", "{ }"},
		{"sum((1, 2, 3))", "{ 6 }"},
		{"sum(())", "{ 0 }"},
		{"sum((), ())", "{ }"},
		{"sum((1.5, 1.5))", "{ 3.0 }"},
		{"min((3, 1, 2))", "{ 1 }"},
		{"max((3, 1, 2))", "{ 3 }"},
		{"min(('b', 'a', 'c'))", `{ "a" }`},
		{"max((5, 0e0 div 0))", "{ NaN }"},
		{"min(())", "{ }"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := evalString(t, ctx, nil, tt.expr); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuiltinSequences(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		expr string
		want string
	}{
		{"count((1, 2, 3))", "{ 3 }"},
		{"count(())", "{ 0 }"},
		{"empty(())", "{ true }"},
		{"empty(0)", "{ false }"},
		{"exists(())", "{ false }"},
		{"exists(0)", "{ true }"},
		{"head((1, 2, 3))", "{ 1 }"},
		{"head(())", "{ }"},
		{"tail((1, 2, 3))", "{ 2, 3 }"},
		{"tail(1)", "{ }"},
		{"reverse((1, 2, 3))", "{ 3, 2, 1 }"},
		{"reverse(())", "{ }"},
		{"distinct-values((1, 2, 1, 3, 2))", "{ 1, 2, 3 }"},
		{"distinct-values((1, 1.0, '1'))", `{ 1, "1" }`},
		{"boolean((1, 2)[1])", "{ true }"},
		{"boolean(0)", "{ false }"},
		{"not(())", "{ true }"},
		{"not('x')", "{ false }"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := evalString(t, ctx, nil, tt.expr); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuiltinNodeFunctions(t *testing.T) {
	ctx := context.Background()
	doc := sampleDoc()
	tests := []struct {
		expr string
		want string
	}{
		{"local-name(/root/b)", `{ "b" }`},
		{"name(/root/b/@x)", `{ "x" }`},
		{"local-name(())", `{ "" }`},
		{"string(/root/a[2])", `{ "2" }`},
		{"/root/b/string-length()", "{ 4 }"},
		{"/root/a[1]/number()", "{ 1 }"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := evalString(t, ctx, doc, tt.expr); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuiltinPositionLast(t *testing.T) {
	ctx := context.Background()
	doc := sampleDoc()
	if got := evalString(t, ctx, doc, "/root/*[position() = last()]/local-name()"); got != `{ "b" }` {
		t.Errorf("got %s", got)
	}
	if got := evalString(t, ctx, doc, "(10, 20, 30)[position() > 1]"); got != "{ 20, 30 }" {
		t.Errorf("got %s", got)
	}
}

func TestBuiltinDocAndCollection(t *testing.T) {
	extra := docNode(elemNode("other", textNode("42")))
	ctx := WithDocuments(context.Background(), func(uri string) (Node, error) {
		if uri == "other.xml" {
			return extra, nil
		}
		return nil, nil
	})
	ctx = WithCollections(ctx, map[string]Sequence{
		"":     {Integer(1), Integer(2)},
		"coll": {Integer(9)},
	})

	tests := []struct {
		expr string
		want string
	}{
		{"string(doc('other.xml'))", `{ "42" }`},
		{"doc('missing.xml')", "{ }"},
		{"collection()", "{ 1, 2 }"},
		{"collection('coll')", "{ 9 }"},
		{"collection('nope')", "{ }"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := evalString(t, ctx, nil, tt.expr); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	// Without a loader doc() yields the empty sequence rather than failing.
	if got := evalString(t, context.Background(), nil, "doc('other.xml')"); got != "{ }" {
		t.Errorf("got %s", got)
	}
}

func TestBuiltinEnvironment(t *testing.T) {
	ctx := WithNow(context.Background(), time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC))
	if got := evalString(t, ctx, nil, "string(current-dateTime())"); got != `{ "2024-05-01T12:30:00Z" }` {
		t.Errorf("current-dateTime: got %s", got)
	}

	if got := evalString(t, context.Background(), nil, "static-base-uri()"); got != "{ }" {
		t.Errorf("static-base-uri without base: got %s", got)
	}
	ctx = WithBaseURI(context.Background(), "http://example.com/")
	if got := evalString(t, ctx, nil, "string(static-base-uri())"); got != `{ "http://example.com/" }` {
		t.Errorf("static-base-uri: got %s", got)
	}

	if got := evalString(t, context.Background(), nil, "default-collation()"); got != `{ "`+CodepointCollation+`" }` {
		t.Errorf("default-collation: got %s", got)
	}
}

func TestBuiltinMapFunctions(t *testing.T) {
	ctx := context.Background()
	opts := Options{Version: "3.1"}
	tests := []struct {
		expr string
		want string
	}{
		{`map:size(map {"a": 1, "b": 2})`, "{ 2 }"},
		{`map:keys(map {"a": 1})`, `{ "a" }`},
		{`map:contains(map {"a": 1}, "a")`, "{ true }"},
		{`map:contains(map {"a": 1}, "b")`, "{ false }"},
		{`map:get(map {"a": (1, 2)}, "a")`, "{ 1, 2 }"},
		{`map:get(map {"a": 1}, "b")`, "{ }"},
		{`map:get(map:put(map {}, "k", 7), "k")`, "{ 7 }"},
		{`map:size(map:remove(map {"a": 1, "b": 2}, "a"))`, "{ 1 }"},
		// merge keeps the first binding of a duplicate key
		{`map:get(map:merge((map {"a": 1}, map {"a": 2})), "a")`, "{ 1 }"},
		{`map:size(map:merge(()))`, "{ 0 }"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := evalString(t, ctx, nil, tt.expr, opts); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuiltinArrayFunctions(t *testing.T) {
	ctx := context.Background()
	opts := Options{Version: "3.1"}
	tests := []struct {
		expr string
		want string
	}{
		{"array:size([1, 2, 3])", "{ 3 }"},
		{"array:size([])", "{ 0 }"},
		{"array:get([10, 20], 2)", "{ 20 }"},
		{"array:size(array:append([1], 2))", "{ 2 }"},
		{"array:get(array:append([1], (2, 3)), 2)", "{ 2, 3 }"},
		{"array:flatten([1, [2, [3]], 4])", "{ 1, 2, 3, 4 }"},
		{"array:flatten(())", "{ }"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := evalString(t, ctx, nil, tt.expr, opts); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuiltinArityErrors(t *testing.T) {
	ctx := context.Background()
	for _, expr := range []string{"not()", "not(1, 2)", "concat('a')", "substring('x')"} {
		t.Run(expr, func(t *testing.T) {
			if _, err := Evaluate(ctx, nil, expr); err == nil {
				t.Error("expected arity error")
			}
		})
	}
}
