package xpath

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func lexemes(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Lexeme
	}
	return out
}

func TestTokenizeBasics(t *testing.T) {
	tests := []struct {
		input       string
		wantKinds   []TokenKind
		wantLexemes []string
	}{
		{
			input:       "1 + 2.5",
			wantKinds:   []TokenKind{TokenNumber, TokenPlus, TokenNumber},
			wantLexemes: []string{"1", "+", "2.5"},
		},
		{
			input:       "a-b + 2.5e3",
			wantKinds:   []TokenKind{TokenName, TokenPlus, TokenNumber},
			wantLexemes: []string{"a-b", "+", "2.5e3"},
		},
		{
			input:       "a -b",
			wantKinds:   []TokenKind{TokenName, TokenMinus, TokenName},
			wantLexemes: []string{"a", "-", "b"},
		},
		{
			input:       "//book/@id",
			wantKinds:   []TokenKind{TokenDoubleSlash, TokenName, TokenSlash, TokenAt, TokenName},
			wantLexemes: []string{"//", "book", "/", "@", "id"},
		},
		{
			input:       "$x := 1",
			wantKinds:   []TokenKind{TokenDollar, TokenName, TokenAssign, TokenNumber},
			wantLexemes: []string{"$", "x", ":=", "1"},
		},
		{
			input:       "a => b#2",
			wantKinds:   []TokenKind{TokenName, TokenArrow, TokenName, TokenHash, TokenNumber},
			wantLexemes: []string{"a", "=>", "b", "#", "2"},
		},
		{
			input:       "self::node()",
			wantKinds:   []TokenKind{TokenName, TokenDoubleColon, TokenName, TokenLParen, TokenRParen},
			wantLexemes: []string{"self", "::", "node", "(", ")"},
		},
		{
			input:       "x != 1 and y <= 2",
			wantKinds:   []TokenKind{TokenName, TokenNe, TokenNumber, TokenName, TokenName, TokenLe, TokenNumber},
			wantLexemes: []string{"x", "!=", "1", "and", "y", "<=", "2"},
		},
		{
			input:       "a || b ! c",
			wantKinds:   []TokenKind{TokenName, TokenConcat, TokenName, TokenBang, TokenName},
			wantLexemes: []string{"a", "||", "b", "!", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := Tokenize(tt.input)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.wantKinds, kinds(tokens)); diff != "" {
				t.Errorf("kinds mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantLexemes, lexemes(tokens)); diff != "" {
				t.Errorf("lexemes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTokenizeStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`'simple'`, "simple"},
		{`"double"`, "double"},
		{`'don''t'`, "don't"},
		{`"say ""hi"""`, `say "hi"`},
		{`''`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := Tokenize(tt.input)
			if err != nil {
				t.Fatal(err)
			}
			if len(tokens) != 1 || tokens[0].Kind != TokenString {
				t.Fatalf("expected one string token, got %v", tokens)
			}
			if tokens[0].Lexeme != tt.want {
				t.Errorf("got %q, want %q", tokens[0].Lexeme, tt.want)
			}
		})
	}
}

func TestTokenizeComments(t *testing.T) {
	tokens, err := Tokenize("(: outer (: nested :) still outer :) 42")
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || tokens[0].Kind != TokenNumber || tokens[0].Lexeme != "42" {
		t.Fatalf("expected just the number, got %v", tokens)
	}
}

func TestTokenizeErrors(t *testing.T) {
	for _, input := range []string{"'unterminated", "~"} {
		t.Run(input, func(t *testing.T) {
			if _, err := Tokenize(input); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTokenizePositions(t *testing.T) {
	tokens, err := Tokenize("ab + cd")
	if err != nil {
		t.Fatal(err)
	}
	wantPos := []int{0, 3, 5}
	for i, tok := range tokens {
		if tok.Pos != wantPos[i] {
			t.Errorf("token %d: pos %d, want %d", i, tok.Pos, wantPos[i])
		}
	}
}
