package xpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Language versions, ordered so that later versions compare greater.
const (
	v10 = 10
	v20 = 20
	v30 = 30
	v31 = 31
)

func parseVersion(s string, lenient bool) (int, error) {
	switch s {
	case "", "1.0":
		return v10, nil
	case "2.0":
		return v20, nil
	case "3.0":
		return v30, nil
	case "3.1":
		return v31, nil
	}
	if !lenient {
		return 0, configErrorf("unsupported XPath version %q", s)
	}
	// Lenient construction takes unknown versions as the newest grammar.
	return v31, nil
}

func versionString(v int) string {
	switch v {
	case v10:
		return "1.0"
	case v20:
		return "2.0"
	case v30:
		return "3.0"
	default:
		return "3.1"
	}
}

// parser is a recursive-descent parser over the token stream. One parser
// handles all language versions; newer constructs are fenced behind
// version checks at the point where their first token is recognized.
type parser struct {
	tokens  []Token
	pos     int
	version int
	lenient bool
}

func (p *parser) peek() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	end := 0
	if n := len(p.tokens); n > 0 {
		end = p.tokens[n-1].Pos + len(p.tokens[n-1].Lexeme)
	}
	return Token{Kind: TokenEOF, Pos: end}
}

func (p *parser) peekAt(off int) Token {
	if p.pos+off < len(p.tokens) {
		return p.tokens[p.pos+off]
	}
	return Token{Kind: TokenEOF}
}

func (p *parser) next() Token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) accept(kind TokenKind) bool {
	if p.peek().Kind == kind {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	t := p.peek()
	if t.Kind != kind {
		return t, syntaxErrorf(t.Pos, "expected %s, got %s", kind, describeToken(t))
	}
	p.pos++
	return t, nil
}

func describeToken(t Token) string {
	if t.Kind == TokenEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.Lexeme)
}

// word reports whether the current token is the given bare name. Keywords
// are never reserved; a name acts as a keyword only in positions where the
// parser asks for it.
func (p *parser) word(s string) bool {
	t := p.peek()
	return t.Kind == TokenName && t.Lexeme == s
}

func (p *parser) acceptWord(s string) bool {
	if p.word(s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectWord(s string) error {
	t := p.peek()
	if t.Kind != TokenName || t.Lexeme != s {
		return syntaxErrorf(t.Pos, "expected %q, got %s", s, describeToken(t))
	}
	p.pos++
	return nil
}

// requireVersion fences a production behind a minimum language version.
// Lenient parsers let every production through regardless of version.
func (p *parser) requireVersion(min int, feature string) error {
	if p.version >= min || p.lenient {
		return nil
	}
	return SyntaxError{
		Code:     CodeUnsupportedVersion,
		Position: p.peek().Pos,
		Cause:    fmt.Sprintf("%s requires XPath %s, parser is at %s", feature, versionString(min), versionString(p.version)),
	}
}

// parseExpr is the entry production: one ExprSingle, or a comma-separated
// sequence of them.
func (p *parser) parseExpr() (Expr, error) {
	first, err := p.parseExprSingle()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != TokenComma {
		return first, nil
	}
	if err := p.requireVersion(v30, "comma sequence construction"); err != nil {
		return nil, err
	}
	items := []Expr{first}
	for p.accept(TokenComma) {
		e, err := p.parseExprSingle()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return sequenceExpr{items: items}, nil
}

func (p *parser) parseExprSingle() (Expr, error) {
	t := p.peek()
	if t.Kind == TokenName {
		switch t.Lexeme {
		case "if":
			if p.peekAt(1).Kind == TokenLParen {
				return p.parseIf()
			}
		case "for":
			if p.peekAt(1).Kind == TokenDollar {
				return p.parseFor()
			}
		case "let":
			if p.peekAt(1).Kind == TokenDollar {
				return p.parseLet()
			}
		case "some", "every":
			if p.peekAt(1).Kind == TokenDollar {
				return p.parseQuantified(t.Lexeme == "every")
			}
		}
	}
	return p.parseOr()
}

func (p *parser) parseIf() (Expr, error) {
	if err := p.requireVersion(v20, "conditional expression"); err != nil {
		return nil, err
	}
	p.next() // if
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	if err := p.expectWord("then"); err != nil {
		return nil, err
	}
	then, err := p.parseExprSingle()
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("else"); err != nil {
		return nil, err
	}
	els, err := p.parseExprSingle()
	if err != nil {
		return nil, err
	}
	return ifExpr{cond: cond, then: then, els: els}, nil
}

func (p *parser) parseBindings(sep string) ([]binding, error) {
	var binds []binding
	for {
		if _, err := p.expect(TokenDollar); err != nil {
			return nil, err
		}
		name, err := p.parseQNameString()
		if err != nil {
			return nil, err
		}
		if sep == ":=" {
			if _, err := p.expect(TokenAssign); err != nil {
				return nil, err
			}
		} else if err := p.expectWord(sep); err != nil {
			return nil, err
		}
		e, err := p.parseExprSingle()
		if err != nil {
			return nil, err
		}
		binds = append(binds, binding{name: name, expr: e})
		if !p.accept(TokenComma) {
			return binds, nil
		}
	}
}

func (p *parser) parseFor() (Expr, error) {
	if err := p.requireVersion(v20, "for expression"); err != nil {
		return nil, err
	}
	p.next() // for
	binds, err := p.parseBindings("in")
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("return"); err != nil {
		return nil, err
	}
	body, err := p.parseExprSingle()
	if err != nil {
		return nil, err
	}
	return forExpr{bindings: binds, body: body}, nil
}

func (p *parser) parseLet() (Expr, error) {
	if err := p.requireVersion(v30, "let expression"); err != nil {
		return nil, err
	}
	p.next() // let
	binds, err := p.parseBindings(":=")
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("return"); err != nil {
		return nil, err
	}
	body, err := p.parseExprSingle()
	if err != nil {
		return nil, err
	}
	return letExpr{bindings: binds, body: body}, nil
}

func (p *parser) parseQuantified(every bool) (Expr, error) {
	if err := p.requireVersion(v20, "quantified expression"); err != nil {
		return nil, err
	}
	p.next() // some | every
	binds, err := p.parseBindings("in")
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("satisfies"); err != nil {
		return nil, err
	}
	test, err := p.parseExprSingle()
	if err != nil {
		return nil, err
	}
	return quantifiedExpr{every: every, bindings: binds, test: test}, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.operandFollows(1) && p.acceptWord("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logicalExpr{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.operandFollows(1) && p.acceptWord("and") {
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = logicalExpr{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Kind {
		case TokenEq:
			op = "="
		case TokenNe:
			op = "!="
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = comparisonExpr{op: op, left: left, right: right}
	}
}

func (p *parser) parseRelational() (Expr, error) {
	left, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Kind {
		case TokenLt:
			op = "<"
		case TokenLe:
			op = "<="
		case TokenGt:
			op = ">"
		case TokenGe:
			op = ">="
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseRange()
		if err != nil {
			return nil, err
		}
		left = comparisonExpr{op: op, left: left, right: right}
	}
}

func (p *parser) parseRange() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.operandFollows(1) && p.word("to") {
		if err := p.requireVersion(v20, "range expression"); err != nil {
			return nil, err
		}
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return rangeExpr{left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Kind {
		case TokenPlus:
			op = "+"
		case TokenMinus:
			op = "-"
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = arithmeticExpr{op: op, left: left, right: right}
	}
}

func (p *parser) parseConcat() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokenConcat {
		if err := p.requireVersion(v30, "string concatenation operator"); err != nil {
			return nil, err
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = concatenateExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.peek().Kind == TokenStar:
			op = "*"
		case p.operandFollows(1) && p.word("div"):
			op = "div"
		case p.operandFollows(1) && p.word("idiv"):
			if err := p.requireVersion(v20, "integer division"); err != nil {
				return nil, err
			}
			op = "idiv"
		case p.operandFollows(1) && p.word("mod"):
			op = "mod"
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = arithmeticExpr{op: op, left: left, right: right}
	}
}

// operandFollows guards word operators: "a div b" is a division only when
// something that can start an operand follows the operator word.
func (p *parser) operandFollows(off int) bool {
	switch p.peekAt(off).Kind {
	case TokenEOF, TokenRParen, TokenRBracket, TokenRBrace, TokenComma:
		return false
	}
	return true
}

func (p *parser) parseUnary() (Expr, error) {
	switch p.peek().Kind {
	case TokenMinus:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryExpr{negate: true, operand: operand}, nil
	case TokenPlus:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryExpr{operand: operand}, nil
	}
	return p.parseUnion()
}

func (p *parser) parseUnion() (Expr, error) {
	left, err := p.parseSimpleMap()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.peek().Kind == TokenPipe:
			p.next()
		case p.operandFollows(1) && p.word("union"):
			if err := p.requireVersion(v20, "union keyword"); err != nil {
				return nil, err
			}
			p.next()
		default:
			return left, nil
		}
		right, err := p.parseSimpleMap()
		if err != nil {
			return nil, err
		}
		left = unionExpr{left: left, right: right}
	}
}

func (p *parser) parseSimpleMap() (Expr, error) {
	left, err := p.parseTypeOps()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokenBang {
		if err := p.requireVersion(v30, "simple map operator"); err != nil {
			return nil, err
		}
		p.next()
		right, err := p.parseTypeOps()
		if err != nil {
			return nil, err
		}
		left = simpleMapExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseTypeOps() (Expr, error) {
	operand, err := p.parseArrow()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.word("instance") && p.peekAt(1).Kind == TokenName && p.peekAt(1).Lexeme == "of":
			if err := p.requireVersion(v20, "instance of"); err != nil {
				return nil, err
			}
			p.pos += 2
			st, err := p.parseSequenceType()
			if err != nil {
				return nil, err
			}
			operand = instanceOfExpr{operand: operand, st: st}
		case p.word("treat") && p.peekAt(1).Kind == TokenName && p.peekAt(1).Lexeme == "as":
			if err := p.requireVersion(v20, "treat as"); err != nil {
				return nil, err
			}
			p.pos += 2
			st, err := p.parseSequenceType()
			if err != nil {
				return nil, err
			}
			operand = treatExpr{operand: operand, st: st}
		case p.word("castable") && p.peekAt(1).Kind == TokenName && p.peekAt(1).Lexeme == "as":
			if err := p.requireVersion(v20, "castable as"); err != nil {
				return nil, err
			}
			p.pos += 2
			target, optional, err := p.parseCastTarget()
			if err != nil {
				return nil, err
			}
			operand = castableExpr{operand: operand, target: target, optional: optional}
		case p.word("cast") && p.peekAt(1).Kind == TokenName && p.peekAt(1).Lexeme == "as":
			if err := p.requireVersion(v20, "cast as"); err != nil {
				return nil, err
			}
			p.pos += 2
			target, optional, err := p.parseCastTarget()
			if err != nil {
				return nil, err
			}
			operand = castExpr{operand: operand, target: target, optional: optional}
		default:
			return operand, nil
		}
	}
}

// parseCastTarget reads the single-type target of cast/castable: an atomic
// type name with an optional "?".
func (p *parser) parseCastTarget() (*AtomicType, bool, error) {
	pos := p.peek().Pos
	name, err := p.parseQNameString()
	if err != nil {
		return nil, false, err
	}
	t, err := resolveAtomicType(pos, name)
	if err != nil {
		return nil, false, err
	}
	if t == typeAnyAtomic {
		return nil, false, SyntaxError{Code: CodeCastTarget, Position: pos, Cause: "cannot cast to xs:anyAtomicType"}
	}
	optional := p.accept(TokenQuestion)
	return t, optional, nil
}

func resolveAtomicType(pos int, name string) (*AtomicType, error) {
	local := strings.TrimPrefix(name, "xs:")
	t, ok := AtomicTypeByName(local)
	if !ok {
		return nil, SyntaxError{Code: CodeUnknownType, Position: pos, Cause: fmt.Sprintf("unknown atomic type %s", name)}
	}
	return t, nil
}

func (p *parser) parseArrow() (Expr, error) {
	left, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokenArrow {
		if err := p.requireVersion(v30, "arrow operator"); err != nil {
			return nil, err
		}
		p.next()
		left, err = p.parseArrowTarget(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

// parseArrowTarget reads the right-hand side of "=>": either a named call
// or a dynamic callee, with the piped value as the implicit first argument.
func (p *parser) parseArrowTarget(piped Expr) (Expr, error) {
	t := p.peek()
	switch t.Kind {
	case TokenName:
		name, err := p.parseQNameString()
		if err != nil {
			return nil, err
		}
		args, err := p.parseArguments()
		if err != nil {
			return nil, err
		}
		return functionCallExpr{name: name, args: append([]Expr{piped}, args...)}, nil
	case TokenDollar:
		p.next()
		name, err := p.parseQNameString()
		if err != nil {
			return nil, err
		}
		args, err := p.parseArguments()
		if err != nil {
			return nil, err
		}
		return dynamicCallExpr{callee: varRefExpr{name: name}, args: append([]Expr{piped}, args...)}, nil
	case TokenLParen:
		p.next()
		callee, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		args, err := p.parseArguments()
		if err != nil {
			return nil, err
		}
		return dynamicCallExpr{callee: callee, args: append([]Expr{piped}, args...)}, nil
	}
	return nil, syntaxErrorf(t.Pos, "expected function after =>, got %s", describeToken(t))
}

func (p *parser) parseArguments() ([]Expr, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	if p.accept(TokenRParen) {
		return nil, nil
	}
	var args []Expr
	for {
		a, err := p.parseExprSingle()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if !p.accept(TokenComma) {
			break
		}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parsePath() (Expr, error) {
	switch p.peek().Kind {
	case TokenSlash:
		p.next()
		if !p.startsStep() {
			return rootExpr{}, nil
		}
		steps, err := p.parseRelativePathSteps()
		if err != nil {
			return nil, err
		}
		return pathExpr{rooted: true, steps: steps}, nil
	case TokenDoubleSlash:
		p.next()
		steps, err := p.parseRelativePathSteps()
		if err != nil {
			return nil, err
		}
		steps = append([]Expr{descendantOrSelfStep()}, steps...)
		return pathExpr{rooted: true, steps: steps}, nil
	}
	first, err := p.parseStep()
	if err != nil {
		return nil, err
	}
	var steps []Expr
	switch p.peek().Kind {
	case TokenSlash:
		p.next()
		steps, err = p.parseRelativePathSteps()
	case TokenDoubleSlash:
		p.next()
		steps, err = p.parseRelativePathSteps()
		steps = append([]Expr{descendantOrSelfStep()}, steps...)
	default:
		return first, nil
	}
	if err != nil {
		return nil, err
	}
	return pathExpr{steps: append([]Expr{first}, steps...)}, nil
}

func descendantOrSelfStep() Expr {
	return stepExpr{axis: axisDescendantOrSelf, test: KindTest{AnyKind: true}}
}

func (p *parser) parseRelativePathSteps() ([]Expr, error) {
	var steps []Expr
	for {
		step, err := p.parseStep()
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
		switch p.peek().Kind {
		case TokenSlash:
			p.next()
		case TokenDoubleSlash:
			p.next()
			steps = append(steps, descendantOrSelfStep())
		default:
			return steps, nil
		}
	}
}

// startsStep reports whether the upcoming tokens begin an axis step rather
// than a primary expression. Names are steps unless they start a function
// call, a keyword construct or a named function reference.
func (p *parser) startsStep() bool {
	t := p.peek()
	switch t.Kind {
	case TokenAt, TokenDotDot, TokenStar:
		return true
	case TokenName:
		next := p.peekAt(1)
		if next.Kind == TokenDoubleColon {
			return true
		}
		if next.Kind == TokenLParen {
			_, kindTest := kindTestKinds[t.Lexeme]
			return kindTest
		}
		if next.Kind == TokenHash {
			return false
		}
		if next.Kind == TokenLBrace && (t.Lexeme == "map" || t.Lexeme == "array" || t.Lexeme == "function") {
			return false
		}
		return true
	}
	return false
}

var kindTestKinds = map[string]NodeKind{
	"node":                   ElementNode, // placeholder; AnyKind is set instead
	"text":                   TextNode,
	"comment":                CommentNode,
	"processing-instruction": ProcessingInstructionNode,
	"document-node":          DocumentNode,
	"element":                ElementNode,
	"attribute":              AttributeNode,
}

// parseStep reads one path component: an axis step with predicates, or any
// postfix expression when the component is not step-shaped.
func (p *parser) parseStep() (Expr, error) {
	if !p.startsStep() {
		return p.parsePostfix()
	}
	step := stepExpr{axis: axisChild}
	switch {
	case p.accept(TokenDotDot):
		step.axis = axisParent
		step.test = KindTest{AnyKind: true}
	case p.accept(TokenAt):
		step.axis = axisAttribute
		test, err := p.parseNodeTest(AttributeNode)
		if err != nil {
			return nil, err
		}
		step.test = test
	case p.peek().Kind == TokenName && p.peekAt(1).Kind == TokenDoubleColon:
		ax, ok := axisNames[p.peek().Lexeme]
		if !ok {
			return nil, syntaxErrorf(p.peek().Pos, "unknown axis %q", p.peek().Lexeme)
		}
		p.pos += 2
		step.axis = ax
		principal := ElementNode
		if ax == axisAttribute {
			principal = AttributeNode
		}
		test, err := p.parseNodeTest(principal)
		if err != nil {
			return nil, err
		}
		step.test = test
	default:
		test, err := p.parseNodeTest(ElementNode)
		if err != nil {
			return nil, err
		}
		step.test = test
	}
	for p.peek().Kind == TokenLBracket {
		p.next()
		pred, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRBracket); err != nil {
			return nil, err
		}
		step.predicates = append(step.predicates, pred)
	}
	return step, nil
}

// parseNodeTest reads a name test or kind test. The principal node kind
// decides what a bare name matches: elements on most axes, attributes on
// the attribute axis.
func (p *parser) parseNodeTest(principal NodeKind) (KindTest, error) {
	t := p.peek()
	switch t.Kind {
	case TokenStar:
		p.next()
		if p.peek().Kind == TokenColon {
			p.next()
			local, err := p.expect(TokenName)
			if err != nil {
				return KindTest{}, err
			}
			return KindTest{Kind: principal, Space: "*", Local: local.Lexeme}, nil
		}
		return KindTest{Kind: principal}, nil
	case TokenName:
		if p.peekAt(1).Kind == TokenLParen {
			if _, ok := kindTestKinds[t.Lexeme]; ok {
				return p.parseKindTest()
			}
		}
		p.next()
		space, local := "", t.Lexeme
		// The colon qualifies the name only when a local part follows, so
		// map constructor keys like "a: 1" keep their colon.
		if p.peek().Kind == TokenColon && (p.peekAt(1).Kind == TokenName || p.peekAt(1).Kind == TokenStar) {
			p.next()
			space = local
			if p.accept(TokenStar) {
				return KindTest{Kind: principal, Space: space, Local: "*"}, nil
			}
			local = p.next().Lexeme
		}
		return KindTest{Kind: principal, Space: space, Local: local}, nil
	}
	return KindTest{}, syntaxErrorf(t.Pos, "expected node test, got %s", describeToken(t))
}

func (p *parser) parseKindTest() (KindTest, error) {
	name := p.next().Lexeme
	if _, err := p.expect(TokenLParen); err != nil {
		return KindTest{}, err
	}
	test := KindTest{}
	switch name {
	case "node":
		test.AnyKind = true
	case "processing-instruction":
		test.Kind = ProcessingInstructionNode
		switch p.peek().Kind {
		case TokenName:
			test.PITarget = p.next().Lexeme
		case TokenString:
			test.PITarget = p.next().Lexeme
		}
	case "element", "attribute":
		test.Kind = kindTestKinds[name]
		if p.peek().Kind == TokenName || p.peek().Kind == TokenStar {
			inner, err := p.parseNodeTest(test.Kind)
			if err != nil {
				return KindTest{}, err
			}
			test.Space, test.Local = inner.Space, inner.Local
		}
	default:
		test.Kind = kindTestKinds[name]
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return KindTest{}, err
	}
	return test, nil
}

// parsePostfix reads a primary expression and its postfix chain of
// predicates, dynamic call argument lists and lookups.
func (p *parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Kind {
		case TokenLBracket:
			p.next()
			pred, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			if f, ok := e.(filterExpr); ok {
				f.predicates = append(f.predicates, pred)
				e = f
			} else {
				e = filterExpr{base: e, predicates: []Expr{pred}}
			}
		case TokenLParen:
			if err := p.requireVersion(v30, "dynamic function call"); err != nil {
				return nil, err
			}
			args, err := p.parseArguments()
			if err != nil {
				return nil, err
			}
			e = dynamicCallExpr{callee: e, args: args}
		case TokenQuestion:
			if err := p.requireVersion(v31, "lookup operator"); err != nil {
				return nil, err
			}
			p.next()
			key, err := p.parseLookupKey()
			if err != nil {
				return nil, err
			}
			e = lookupExpr{base: e, key: key}
		default:
			return e, nil
		}
	}
}

func (p *parser) parseLookupKey() (lookupKey, error) {
	t := p.peek()
	switch t.Kind {
	case TokenStar:
		p.next()
		return lookupKey{wildcard: true}, nil
	case TokenName:
		p.next()
		return lookupKey{name: t.Lexeme}, nil
	case TokenNumber:
		p.next()
		n, err := strconv.ParseInt(t.Lexeme, 10, 64)
		if err != nil {
			return lookupKey{}, syntaxErrorf(t.Pos, "lookup position must be an integer, got %q", t.Lexeme)
		}
		return lookupKey{position: n, numeric: true}, nil
	case TokenLParen:
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return lookupKey{}, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return lookupKey{}, err
		}
		return lookupKey{expr: e}, nil
	}
	return lookupKey{}, syntaxErrorf(t.Pos, "expected lookup key, got %s", describeToken(t))
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.Kind {
	case TokenString:
		p.next()
		return literalExpr{value: String(t.Lexeme)}, nil
	case TokenNumber:
		p.next()
		return numberLiteral(t)
	case TokenDollar:
		p.next()
		name, err := p.parseQNameString()
		if err != nil {
			return nil, err
		}
		return varRefExpr{name: name}, nil
	case TokenDot:
		p.next()
		return contextItemExpr{}, nil
	case TokenLParen:
		p.next()
		if p.accept(TokenRParen) {
			return emptySequenceExpr{}, nil
		}
		e, err := p.parseParenthesized()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return e, nil
	case TokenQuestion:
		if err := p.requireVersion(v31, "unary lookup"); err != nil {
			return nil, err
		}
		p.next()
		key, err := p.parseLookupKey()
		if err != nil {
			return nil, err
		}
		return lookupExpr{key: key}, nil
	case TokenLBracket:
		if err := p.requireVersion(v31, "array constructor"); err != nil {
			return nil, err
		}
		return p.parseSquareArray()
	case TokenName:
		return p.parseNamedPrimary()
	}
	return nil, syntaxErrorf(t.Pos, "unexpected %s", describeToken(t))
}

// parseParenthesized allows comma sequences inside parentheses from 2.0 on,
// one version earlier than top-level comma sequences.
func (p *parser) parseParenthesized() (Expr, error) {
	first, err := p.parseExprSingle()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != TokenComma {
		return first, nil
	}
	if err := p.requireVersion(v20, "sequence construction"); err != nil {
		return nil, err
	}
	items := []Expr{first}
	for p.accept(TokenComma) {
		e, err := p.parseExprSingle()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return sequenceExpr{items: items}, nil
}

func numberLiteral(t Token) (Expr, error) {
	if !strings.ContainsAny(t.Lexeme, ".eE") {
		n, err := strconv.ParseInt(t.Lexeme, 10, 64)
		if err == nil {
			return literalExpr{value: Integer(n)}, nil
		}
	}
	if strings.ContainsAny(t.Lexeme, "eE") {
		f, err := strconv.ParseFloat(t.Lexeme, 64)
		if err != nil {
			return nil, syntaxErrorf(t.Pos, "malformed number literal %q", t.Lexeme)
		}
		return literalExpr{value: Double(f)}, nil
	}
	var d apd.Decimal
	if _, _, err := d.SetString(t.Lexeme); err != nil {
		return nil, syntaxErrorf(t.Pos, "malformed number literal %q", t.Lexeme)
	}
	return literalExpr{value: Decimal{Value: &d}}, nil
}

func (p *parser) parseNamedPrimary() (Expr, error) {
	t := p.peek()
	switch t.Lexeme {
	case "function":
		if p.peekAt(1).Kind == TokenLParen {
			return p.parseInlineFunction()
		}
	case "map":
		if p.peekAt(1).Kind == TokenLBrace {
			return p.parseMapConstructor()
		}
	case "array":
		if p.peekAt(1).Kind == TokenLBrace {
			return p.parseCurlyArray()
		}
	}
	name, err := p.parseQNameString()
	if err != nil {
		return nil, err
	}
	switch p.peek().Kind {
	case TokenHash:
		if err := p.requireVersion(v30, "named function reference"); err != nil {
			return nil, err
		}
		p.next()
		n, err := p.expect(TokenNumber)
		if err != nil {
			return nil, err
		}
		arity, err := strconv.Atoi(n.Lexeme)
		if err != nil {
			return nil, syntaxErrorf(n.Pos, "function arity must be an integer, got %q", n.Lexeme)
		}
		return namedFunctionRefExpr{name: name, arity: arity}, nil
	case TokenLParen:
		args, err := p.parseArguments()
		if err != nil {
			return nil, err
		}
		return functionCallExpr{name: name, args: args}, nil
	}
	return nil, syntaxErrorf(t.Pos, "unexpected name %q", name)
}

func (p *parser) parseQNameString() (string, error) {
	first, err := p.expect(TokenName)
	if err != nil {
		return "", err
	}
	if p.peek().Kind == TokenColon && p.peekAt(1).Kind == TokenName {
		p.next()
		local := p.next()
		return first.Lexeme + ":" + local.Lexeme, nil
	}
	return first.Lexeme, nil
}

func (p *parser) parseInlineFunction() (Expr, error) {
	if err := p.requireVersion(v30, "inline function"); err != nil {
		return nil, err
	}
	p.next() // function
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	var params []param
	if !p.accept(TokenRParen) {
		for {
			if _, err := p.expect(TokenDollar); err != nil {
				return nil, err
			}
			name, err := p.parseQNameString()
			if err != nil {
				return nil, err
			}
			pr := param{name: name}
			if p.acceptWord("as") {
				st, err := p.parseSequenceType()
				if err != nil {
					return nil, err
				}
				pr.typ = &st
			}
			params = append(params, pr)
			if !p.accept(TokenComma) {
				break
			}
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
	}
	var returns *SequenceType
	if p.acceptWord("as") {
		st, err := p.parseSequenceType()
		if err != nil {
			return nil, err
		}
		returns = &st
	}
	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRBrace); err != nil {
		return nil, err
	}
	return inlineFunctionExpr{params: params, returns: returns, body: body}, nil
}

func (p *parser) parseMapConstructor() (Expr, error) {
	if err := p.requireVersion(v31, "map constructor"); err != nil {
		return nil, err
	}
	p.pos += 2 // map {
	e := mapConstructorExpr{}
	if p.accept(TokenRBrace) {
		return e, nil
	}
	for {
		key, err := p.parseExprSingle()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		value, err := p.parseExprSingle()
		if err != nil {
			return nil, err
		}
		e.keys = append(e.keys, key)
		e.values = append(e.values, value)
		if !p.accept(TokenComma) {
			break
		}
	}
	if _, err := p.expect(TokenRBrace); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *parser) parseCurlyArray() (Expr, error) {
	if err := p.requireVersion(v31, "array constructor"); err != nil {
		return nil, err
	}
	p.pos += 2 // array {
	e := arrayConstructorExpr{curly: true}
	if p.accept(TokenRBrace) {
		return e, nil
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	e.members = []Expr{body}
	if _, err := p.expect(TokenRBrace); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *parser) parseSquareArray() (Expr, error) {
	p.next() // [
	e := arrayConstructorExpr{}
	if p.accept(TokenRBracket) {
		return e, nil
	}
	for {
		m, err := p.parseExprSingle()
		if err != nil {
			return nil, err
		}
		e.members = append(e.members, m)
		if !p.accept(TokenComma) {
			break
		}
	}
	if _, err := p.expect(TokenRBracket); err != nil {
		return nil, err
	}
	return e, nil
}

// parseSequenceType reads the type syntax used by instance of, treat as and
// function signatures: empty-sequence(), or an item type with an optional
// occurrence indicator.
func (p *parser) parseSequenceType() (SequenceType, error) {
	if p.word("empty-sequence") && p.peekAt(1).Kind == TokenLParen {
		p.pos++
		if _, err := p.expect(TokenLParen); err != nil {
			return SequenceType{}, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return SequenceType{}, err
		}
		return EmptySequenceType(), nil
	}
	item, err := p.parseItemType()
	if err != nil {
		return SequenceType{}, err
	}
	occ := ExactlyOne
	switch p.peek().Kind {
	case TokenQuestion:
		p.next()
		occ = ZeroOrOne
	case TokenStar:
		p.next()
		occ = ZeroOrMore
	case TokenPlus:
		p.next()
		occ = OneOrMore
	}
	return NewSequenceType(item, occ), nil
}

func (p *parser) parseItemType() (ItemType, error) {
	first, err := p.parseSingleItemType()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != TokenPipe {
		return first, nil
	}
	if err := p.requireVersion(v31, "union item type"); err != nil {
		return nil, err
	}
	members := []ItemType{first}
	for p.accept(TokenPipe) {
		m, err := p.parseSingleItemType()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	u, err := NewUnionType(members...)
	if err != nil {
		return nil, syntaxErrorf(p.peek().Pos, "invalid union type: %v", err)
	}
	return u, nil
}

func (p *parser) parseSingleItemType() (ItemType, error) {
	t := p.peek()
	if t.Kind == TokenLParen {
		p.next()
		inner, err := p.parseItemType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	}
	if t.Kind != TokenName {
		return nil, syntaxErrorf(t.Pos, "expected item type, got %s", describeToken(t))
	}
	if p.peekAt(1).Kind == TokenLParen {
		switch t.Lexeme {
		case "item":
			p.pos += 2
			if _, err := p.expect(TokenRParen); err != nil {
				return nil, err
			}
			return AnyItem, nil
		case "function":
			if err := p.requireVersion(v30, "function test"); err != nil {
				return nil, err
			}
			p.pos += 2
			if _, err := p.expect(TokenStar); err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRParen); err != nil {
				return nil, err
			}
			return FunctionTest{}, nil
		case "map":
			if err := p.requireVersion(v31, "map test"); err != nil {
				return nil, err
			}
			return p.parseMapTest()
		case "array":
			if err := p.requireVersion(v31, "array test"); err != nil {
				return nil, err
			}
			return p.parseArrayTest()
		default:
			if _, ok := kindTestKinds[t.Lexeme]; ok {
				return p.parseKindTest()
			}
			return nil, syntaxErrorf(t.Pos, "unknown item type %s()", t.Lexeme)
		}
	}
	pos := t.Pos
	name, err := p.parseQNameString()
	if err != nil {
		return nil, err
	}
	at, err := resolveAtomicType(pos, name)
	if err != nil {
		return nil, err
	}
	return AtomicItemType{Type: at}, nil
}

func (p *parser) parseMapTest() (ItemType, error) {
	p.pos += 2 // map (
	if p.accept(TokenStar) {
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return MapType{}, nil
	}
	key, err := p.parseSequenceType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenComma); err != nil {
		return nil, err
	}
	value, err := p.parseSequenceType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return MapType{Key: &key, Value: &value}, nil
}

func (p *parser) parseArrayTest() (ItemType, error) {
	p.pos += 2 // array (
	if p.accept(TokenStar) {
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return ArrayType{}, nil
	}
	member, err := p.parseSequenceType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return ArrayType{Member: &member}, nil
}
