// Package xpath evaluates XPath expressions (versions 1.0 through 3.1)
// against any tree implementing the Node interface. Expressions are parsed
// once into an immutable tree and may be evaluated concurrently; all
// per-evaluation configuration travels on the context.
package xpath

import (
	"context"
	"fmt"
)

// Options configures parsing. The zero value parses XPath 1.0 strictly
// with no extension functions.
type Options struct {
	// Version selects the grammar: "1.0" (default), "2.0", "3.0" or "3.1".
	Version string
	// Lenient accepts unknown version strings (taking the newest grammar)
	// and lets newer-version constructs through the selected grammar
	// instead of rejecting them at parse time.
	Lenient bool
	// Extensions are host functions callable from the expression.
	Extensions []ExtensionFunction
}

// Expression is a parsed XPath expression, safe for concurrent use.
type Expression struct {
	source     string
	root       Expr
	version    int
	extensions map[string]ExtensionFunction
}

// Parse compiles an expression. Configuration errors (bad version, invalid
// extension bundle) surface as ConfigError before any token is consumed;
// malformed input surfaces as SyntaxError.
func Parse(source string, opts ...Options) (*Expression, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	version, err := parseVersion(o.Version, o.Lenient)
	if err != nil {
		return nil, err
	}
	exts, err := validateExtensions(o.Extensions)
	if err != nil {
		return nil, err
	}
	tokens, err := Tokenize(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, version: version, lenient: o.Lenient}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if trailing := p.peek(); trailing.Kind != TokenEOF {
		return nil, syntaxErrorf(trailing.Pos, "unexpected %s after end of expression", describeToken(trailing))
	}
	return &Expression{
		source:     source,
		root:       root,
		version:    version,
		extensions: exts,
	}, nil
}

// MustParse is Parse for statically known expressions; it panics on error.
func MustParse(source string, opts ...Options) *Expression {
	e, err := Parse(source, opts...)
	if err != nil {
		panic(fmt.Sprintf("xpath: %v", err))
	}
	return e
}

// Evaluate runs the expression against the given context item, which may be
// nil for expressions that do not touch the focus.
func (e *Expression) Evaluate(ctx context.Context, item Item) (Sequence, error) {
	env := newScope(item)
	env.vars = contextVariables(ctx)
	env.namespaces = contextNamespaces(ctx)
	env.extensions = e.extensions
	return e.root.eval(ctx, env)
}

// Version reports the grammar version the expression was parsed with.
func (e *Expression) Version() string { return versionString(e.version) }

// String renders the parsed tree back to expression syntax. The result is
// normalized, not the original source text.
func (e *Expression) String() string { return e.root.String() }

// Source returns the original expression text.
func (e *Expression) Source() string { return e.source }

// Evaluate parses and evaluates in one step.
func Evaluate(ctx context.Context, item Item, source string, opts ...Options) (Sequence, error) {
	e, err := Parse(source, opts...)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, item)
}
