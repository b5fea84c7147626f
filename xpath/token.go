package xpath

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenKind identifies a lexical class. Word tokens (names, keywords and
// operator words such as "div" or "instance") are all emitted as TokenName;
// whether a word acts as a keyword is decided positionally by the parser so
// that reserved words remain usable as element and attribute names.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenName
	TokenString
	TokenNumber

	TokenLParen
	TokenRParen
	TokenLBracket
	TokenRBracket
	TokenLBrace
	TokenRBrace
	TokenComma
	TokenColon
	TokenDoubleColon
	TokenDot
	TokenDotDot
	TokenAt
	TokenStar
	TokenPipe
	TokenDollar
	TokenQuestion
	TokenPlus
	TokenMinus
	TokenEq
	TokenNe
	TokenLt
	TokenGt
	TokenLe
	TokenGe
	TokenSlash
	TokenDoubleSlash
	TokenAssign
	TokenArrow
	TokenConcat
	TokenBang
	TokenHash
)

var tokenKindNames = map[TokenKind]string{
	TokenEOF:         "end of input",
	TokenName:        "name",
	TokenString:      "string literal",
	TokenNumber:      "number literal",
	TokenLParen:      "'('",
	TokenRParen:      "')'",
	TokenLBracket:    "'['",
	TokenRBracket:    "']'",
	TokenLBrace:      "'{'",
	TokenRBrace:      "'}'",
	TokenComma:       "','",
	TokenColon:       "':'",
	TokenDoubleColon: "'::'",
	TokenDot:         "'.'",
	TokenDotDot:      "'..'",
	TokenAt:          "'@'",
	TokenStar:        "'*'",
	TokenPipe:        "'|'",
	TokenDollar:      "'$'",
	TokenQuestion:    "'?'",
	TokenPlus:        "'+'",
	TokenMinus:       "'-'",
	TokenEq:          "'='",
	TokenNe:          "'!='",
	TokenLt:          "'<'",
	TokenGt:          "'>'",
	TokenLe:          "'<='",
	TokenGe:          "'>='",
	TokenSlash:       "'/'",
	TokenDoubleSlash: "'//'",
	TokenAssign:      "':='",
	TokenArrow:       "'=>'",
	TokenConcat:      "'||'",
	TokenBang:        "'!'",
	TokenHash:        "'#'",
}

func (k TokenKind) String() string {
	if s, ok := tokenKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is one element of the stream consumed by the parser. Pos is the
// rune offset of the token's first character in the source expression.
type Token struct {
	Kind   TokenKind
	Lexeme string
	Pos    int
}

// Tokenize scans an expression into a token slice. String literals use
// XPath doubled-quote escaping; comments "(: ... :)" nest and are dropped.
func Tokenize(input string) ([]Token, error) {
	lx := lexer{src: []rune(input)}
	return lx.run()
}

type lexer struct {
	src []rune
	pos int
}

func (l *lexer) run() ([]Token, error) {
	var tokens []Token
	for {
		l.skipSpaceAndComments()
		if l.pos >= len(l.src) {
			return tokens, nil
		}
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if unicode.IsSpace(c) {
			l.pos++
			continue
		}
		if c == '(' && l.peekAt(1) == ':' {
			depth := 1
			l.pos += 2
			for l.pos < len(l.src) && depth > 0 {
				if l.src[l.pos] == '(' && l.peekAt(1) == ':' {
					depth++
					l.pos += 2
				} else if l.src[l.pos] == ':' && l.peekAt(1) == ')' {
					depth--
					l.pos += 2
				} else {
					l.pos++
				}
			}
			continue
		}
		return
	}
}

func (l *lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) next() (Token, error) {
	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '\'' || c == '"':
		return l.scanString(c)
	case unicode.IsDigit(c) || (c == '.' && unicode.IsDigit(l.peekAt(1))):
		return l.scanNumber()
	case isNameStart(c):
		return l.scanName()
	}

	two := func(kind TokenKind, lit string) (Token, error) {
		l.pos += 2
		return Token{Kind: kind, Lexeme: lit, Pos: start}, nil
	}
	one := func(kind TokenKind) (Token, error) {
		l.pos++
		return Token{Kind: kind, Lexeme: string(c), Pos: start}, nil
	}

	switch c {
	case '(':
		return one(TokenLParen)
	case ')':
		return one(TokenRParen)
	case '[':
		return one(TokenLBracket)
	case ']':
		return one(TokenRBracket)
	case '{':
		return one(TokenLBrace)
	case '}':
		return one(TokenRBrace)
	case ',':
		return one(TokenComma)
	case ':':
		switch l.peekAt(1) {
		case ':':
			return two(TokenDoubleColon, "::")
		case '=':
			return two(TokenAssign, ":=")
		}
		return one(TokenColon)
	case '.':
		if l.peekAt(1) == '.' {
			return two(TokenDotDot, "..")
		}
		return one(TokenDot)
	case '@':
		return one(TokenAt)
	case '*':
		return one(TokenStar)
	case '|':
		if l.peekAt(1) == '|' {
			return two(TokenConcat, "||")
		}
		return one(TokenPipe)
	case '$':
		return one(TokenDollar)
	case '?':
		return one(TokenQuestion)
	case '+':
		return one(TokenPlus)
	case '-':
		return one(TokenMinus)
	case '=':
		if l.peekAt(1) == '>' {
			return two(TokenArrow, "=>")
		}
		return one(TokenEq)
	case '!':
		if l.peekAt(1) == '=' {
			return two(TokenNe, "!=")
		}
		return one(TokenBang)
	case '<':
		if l.peekAt(1) == '=' {
			return two(TokenLe, "<=")
		}
		return one(TokenLt)
	case '>':
		if l.peekAt(1) == '=' {
			return two(TokenGe, ">=")
		}
		return one(TokenGt)
	case '/':
		if l.peekAt(1) == '/' {
			return two(TokenDoubleSlash, "//")
		}
		return one(TokenSlash)
	case '#':
		return one(TokenHash)
	}
	return Token{}, syntaxErrorf(start, "unexpected character %q", string(c))
}

func (l *lexer) scanString(quote rune) (Token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == quote {
			if l.peekAt(1) == quote {
				sb.WriteRune(quote)
				l.pos += 2
				continue
			}
			l.pos++
			return Token{Kind: TokenString, Lexeme: sb.String(), Pos: start}, nil
		}
		sb.WriteRune(c)
		l.pos++
	}
	return Token{}, syntaxErrorf(start, "unterminated string literal")
}

func (l *lexer) scanNumber() (Token, error) {
	start := l.pos
	for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' && unicode.IsDigit(l.peekAt(1)) {
		l.pos++
		for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		mark := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
			for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = mark
		}
	}
	return Token{Kind: TokenNumber, Lexeme: string(l.src[start:l.pos]), Pos: start}, nil
}

func (l *lexer) scanName() (Token, error) {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isNameStart(c) || unicode.IsDigit(c) {
			l.pos++
			continue
		}
		// '-' and '.' continue a name only when followed by another name
		// character, so "a-b" is one name but "a -b" and "a-$b" are not.
		if (c == '-' || c == '.') && (isNameStart(l.peekAt(1)) || unicode.IsDigit(l.peekAt(1))) {
			l.pos++
			continue
		}
		break
	}
	return Token{Kind: TokenName, Lexeme: string(l.src[start:l.pos]), Pos: start}, nil
}

func isNameStart(c rune) bool {
	return c == '_' || unicode.IsLetter(c)
}
