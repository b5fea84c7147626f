package xpath

import (
	"context"
	"errors"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2 * 3", "1 + 2 * 3"},
		{"1+2", "1 + 2"},
		{"a/b[1]", "a/b[1]"},
		{"@id", "@id"},
		{"../x", "../x"},
		{"//a", "/descendant-or-self::node()/a"},
		{"/", "/"},
		{"a//b", "a/descendant-or-self::node()/b"},
		{"child::a/attribute::b", "a/@b"},
		{"ancestor::x", "ancestor::x"},
		{"if (1) then 2 else 3", "if (1) then 2 else 3"},
		{"for $x in (1, 2) return $x", "for $x in (1, 2) return $x"},
		{"some $x in a satisfies $x", "some $x in a satisfies $x"},
		{"$x instance of xs:integer", "$x instance of xs:integer"},
		{"$x cast as xs:integer?", "$x cast as xs:integer?"},
		{"1 to 5", "1 to 5"},
		{"a | b", "a | b"},
		{"a ! b", "a ! b"},
		{"-1", "-1"},
		{"'it''s'", `"it's"`},
		{"ns:item", "ns:item"},
		{"*:item", "*:item"},
		{"ns:*", "ns:*"},
		{"text()", "text()"},
		{"processing-instruction(tgt)", "processing-instruction(tgt)"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr, err := Parse(tt.input, Options{Version: "3.0"})
			if err != nil {
				t.Fatal(err)
			}
			if got := expr.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRoundTrip31(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`map {"a": 1}`, `map {"a": 1}`},
		{"[1, 2]", "[1, 2]"},
		{"array { 1 }", "array {1}"},
		{"$m?key", "$m?key"},
		{"$m?*", "$m?*"},
		{"?name", "?name"},
		{"$a?1", "$a?1"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr, err := Parse(tt.input, Options{Version: "3.1"})
			if err != nil {
				t.Fatal(err)
			}
			if got := expr.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseVersionGating(t *testing.T) {
	tests := []struct {
		expr    string
		version string
	}{
		{"if (1) then 2 else 3", "1.0"},
		{"for $x in a return $x", "1.0"},
		{"some $x in a satisfies $x", "1.0"},
		{"1 instance of xs:integer", "1.0"},
		{"x cast as xs:integer", "1.0"},
		{"1 to 3", "1.0"},
		{"let $x := 1 return $x", "2.0"},
		{"1, 2", "2.0"},
		{"'a' || 'b'", "2.0"},
		{"a ! b", "2.0"},
		{"a => f()", "2.0"},
		{"f#1", "2.0"},
		{"function($x) { $x }", "2.0"},
		{"$f(1)", "2.0"},
		{"map {}", "3.0"},
		{"[1]", "3.0"},
		{"$m?k", "3.0"},
		{"1 instance of (xs:integer | xs:string)", "3.0"},
		{"map {} instance of map(*)", "3.0"},
	}
	for _, tt := range tests {
		t.Run(tt.version+"/"+tt.expr, func(t *testing.T) {
			_, err := Parse(tt.expr, Options{Version: tt.version})
			var se SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("expected SyntaxError, got %v", err)
			}
			if se.Code != CodeUnsupportedVersion {
				t.Errorf("code %s, want %s", se.Code, CodeUnsupportedVersion)
			}
		})
	}
}

func TestParseVersionAcceptance(t *testing.T) {
	tests := []struct {
		expr    string
		version string
	}{
		{"a/b[@id = '1']", "1.0"},
		{"a | b", "1.0"},
		{"()", "1.0"}, // the empty sequence belongs to the shared base grammar
		{"(1, 2)", "2.0"}, // parenthesized sequences predate top-level commas
		{"1 to 3", "2.0"},
		{"for $x in (1, 2) return $x", "2.0"},
		{"let $x := 1 return $x", "3.0"},
		{"1, 2", "3.0"},
		{"a => f()", "3.0"},
		{"map {}", "3.1"},
	}
	for _, tt := range tests {
		t.Run(tt.version+"/"+tt.expr, func(t *testing.T) {
			if _, err := Parse(tt.expr, Options{Version: tt.version}); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestParseDefaultVersion(t *testing.T) {
	expr, err := Parse("a/b")
	if err != nil {
		t.Fatal(err)
	}
	if expr.Version() != "1.0" {
		t.Errorf("version %s, want 1.0", expr.Version())
	}

	// Newer constructs are rejected until a version opts in to them.
	_, err = Parse("1, 2")
	var se SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
	if se.Code != CodeUnsupportedVersion {
		t.Errorf("code %s, want %s", se.Code, CodeUnsupportedVersion)
	}
}

func TestParseUnknownVersion(t *testing.T) {
	_, err := Parse("1", Options{Version: "9.9"})
	var ce ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}

	// Lenient construction falls back to the newest grammar.
	expr, err := Parse("map {}", Options{Version: "9.9", Lenient: true})
	if err != nil {
		t.Fatal(err)
	}
	if expr.Version() != "3.1" {
		t.Errorf("version %s, want 3.1", expr.Version())
	}
}

// Lenient parsing lets newer productions through an older grammar instead
// of stopping at the version fence.
func TestParseLenientVersionFallthrough(t *testing.T) {
	for _, expr := range []string{"map {}", "1, 2", "let $x := 1 return $x", "[1, 2]"} {
		t.Run(expr, func(t *testing.T) {
			if _, err := Parse(expr, Options{Version: "1.0", Lenient: true}); err != nil {
				t.Errorf("Parse(%q): %v", expr, err)
			}
		})
	}
}

func TestParseExtensionValidation(t *testing.T) {
	impl := func(ctx context.Context, env *Scope, args []Sequence) (Sequence, error) { return nil, nil }
	tests := []struct {
		name string
		exts []ExtensionFunction
	}{
		{"empty name", []ExtensionFunction{{MinArgs: 0, MaxArgs: 0, Impl: impl}}},
		{"nil impl", []ExtensionFunction{{Name: "f", MinArgs: 0, MaxArgs: 0}}},
		{"max below min", []ExtensionFunction{{Name: "f", MinArgs: 2, MaxArgs: 1, Impl: impl}}},
		{"duplicate", []ExtensionFunction{
			{Name: "f", MinArgs: 0, MaxArgs: 0, Impl: impl},
			{Name: "f", MinArgs: 0, MaxArgs: 0, Impl: impl},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("1", Options{Extensions: tt.exts})
			var ce ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		expr string
		code string
	}{
		{"1 +", CodeInvalidSyntax},
		{"(1", CodeInvalidSyntax},
		{"1 1", CodeInvalidSyntax},
		{"a[", CodeInvalidSyntax},
		{"if (1) then 2", CodeInvalidSyntax},
		{"for $x return $x", CodeInvalidSyntax},
		{"5 cast as xs:nosuch", CodeUnknownType},
		{"1 instance of xs:nosuch", CodeUnknownType},
		{"5 cast as xs:anyAtomicType", CodeCastTarget},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Parse(tt.expr, Options{Version: "3.1"})
			var se SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("expected SyntaxError, got %v", err)
			}
			if se.Code != tt.code {
				t.Errorf("code %s, want %s", se.Code, tt.code)
			}
		})
	}
}

// Reserved-looking words stay usable as element names.
func TestParseKeywordsAsNames(t *testing.T) {
	for _, expr := range []string{"if", "for", "let", "div", "and", "or", "to", "a/if", "union/union"} {
		t.Run(expr, func(t *testing.T) {
			if _, err := Parse(expr); err != nil {
				t.Errorf("Parse(%q): %v", expr, err)
			}
		})
	}
}

func TestParseSequenceTypes(t *testing.T) {
	tests := []string{
		"$x instance of empty-sequence()",
		"$x instance of item()*",
		"$x instance of xs:integer+",
		"$x instance of node()",
		"$x instance of element(a)",
		"$x instance of attribute(b)?",
		"$x instance of text()",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			if _, err := Parse(expr, Options{Version: "2.0"}); err != nil {
				t.Fatal(err)
			}
		})
	}

	tests31 := []string{
		"$x instance of map(*)",
		"$x instance of map(xs:string, item()*)",
		"$x instance of array(*)",
		"$x instance of array(xs:integer)",
		"$x instance of function(*)",
		"$x instance of (xs:integer | xs:string | xs:date)",
	}
	for _, expr := range tests31 {
		t.Run(expr, func(t *testing.T) {
			if _, err := Parse(expr, Options{Version: "3.1"}); err != nil {
				t.Fatal(err)
			}
		})
	}
}
