package xpath

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Scope is the dynamic focus of one expression evaluation: the context
// item, its position and size within the focus sequence, and the variable
// bindings in effect. Scopes are copied, never mutated in place; child
// evaluations receive derived copies.
type Scope struct {
	item       Item
	position   int
	size       int
	vars       map[string]Sequence
	namespaces map[string]string
	extensions map[string]ExtensionFunction
}

func newScope(item Item) *Scope {
	return &Scope{item: item, position: 1, size: 1}
}

// withFocus derives a scope with a new context item and focus position.
func (s *Scope) withFocus(item Item, position, size int) *Scope {
	c := *s
	c.item = item
	c.position = position
	c.size = size
	return &c
}

// withVariable derives a scope with one additional variable binding.
func (s *Scope) withVariable(name string, value Sequence) *Scope {
	c := *s
	c.vars = maps.Clone(s.vars)
	if c.vars == nil {
		c.vars = map[string]Sequence{}
	}
	c.vars[name] = value
	return &c
}

func (s *Scope) variable(name string) (Sequence, bool) {
	v, ok := s.vars[name]
	return v, ok
}

func (s *Scope) contextNode() (Node, bool) {
	n, ok := s.item.(Node)
	return n, ok
}

type (
	apdContextKey  struct{}
	compatModeKey  struct{}
	variablesKey   struct{}
	namespacesKey  struct{}
	functionsKey   struct{}
	strictAtomKey  struct{}
	nowKey         struct{}
	timezoneKey    struct{}
	collationKey   struct{}
	baseURIKey     struct{}
	documentsKey   struct{}
	collectionsKey struct{}
	loggerKey      struct{}
)

// defaultDecimalPrecision keeps 34 significant digits (roughly Decimal128)
// so xs:decimal arithmetic retains headroom well past the 18 digits the
// data model mandates.
const defaultDecimalPrecision uint32 = 34

var defaultAPDContext = apd.BaseContext.WithPrecision(defaultDecimalPrecision)

// WithAPDContext overrides the precision and rounding behavior of
// xs:decimal operations for evaluations under this context.
func WithAPDContext(ctx context.Context, apdCtx *apd.Context) context.Context {
	return context.WithValue(ctx, apdContextKey{}, apdCtx)
}

func apdContext(ctx context.Context) *apd.Context {
	if ctx != nil {
		if c, ok := ctx.Value(apdContextKey{}).(*apd.Context); ok && c != nil {
			return c
		}
	}
	return defaultAPDContext
}

// WithCompatibilityMode enables XPath 1.0 compatibility coercion for
// arithmetic, comparison and boolean contexts.
func WithCompatibilityMode(ctx context.Context, on bool) context.Context {
	return context.WithValue(ctx, compatModeKey{}, on)
}

func compatibilityMode(ctx context.Context) bool {
	on, _ := ctx.Value(compatModeKey{}).(bool)
	return on
}

// WithVariable binds an external variable visible as $name.
func WithVariable(ctx context.Context, name string, value Sequence) context.Context {
	vars, _ := ctx.Value(variablesKey{}).(map[string]Sequence)
	vars = maps.Clone(vars)
	if vars == nil {
		vars = map[string]Sequence{}
	}
	vars[name] = value
	return context.WithValue(ctx, variablesKey{}, vars)
}

func contextVariables(ctx context.Context) map[string]Sequence {
	vars, _ := ctx.Value(variablesKey{}).(map[string]Sequence)
	return vars
}

// WithNamespace binds a namespace prefix for name tests and type names.
func WithNamespace(ctx context.Context, prefix, uri string) context.Context {
	ns, _ := ctx.Value(namespacesKey{}).(map[string]string)
	ns = maps.Clone(ns)
	if ns == nil {
		ns = map[string]string{}
	}
	ns[prefix] = uri
	return context.WithValue(ctx, namespacesKey{}, ns)
}

func contextNamespaces(ctx context.Context) map[string]string {
	ns, _ := ctx.Value(namespacesKey{}).(map[string]string)
	return ns
}

// WithFunctions installs additional named functions, overriding built-ins
// of the same name.
func WithFunctions(ctx context.Context, fns map[string]*FuncItem) context.Context {
	all, _ := ctx.Value(functionsKey{}).(map[string]*FuncItem)
	all = maps.Clone(all)
	if all == nil {
		all = map[string]*FuncItem{}
	}
	maps.Copy(all, fns)
	return context.WithValue(ctx, functionsKey{}, all)
}

func contextFunctions(ctx context.Context) map[string]*FuncItem {
	fns, _ := ctx.Value(functionsKey{}).(map[string]*FuncItem)
	return fns
}

// WithStrictAtomization makes atomization of element-only content a dynamic
// error instead of a silent text concatenation.
func WithStrictAtomization(ctx context.Context, strict bool) context.Context {
	return context.WithValue(ctx, strictAtomKey{}, strict)
}

func strictAtomization(ctx context.Context) bool {
	strict, _ := ctx.Value(strictAtomKey{}).(bool)
	return strict
}

// WithNow pins the current dateTime for this evaluation.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, nowKey{}, now)
}

func contextNow(ctx context.Context) time.Time {
	if now, ok := ctx.Value(nowKey{}).(time.Time); ok {
		return now
	}
	return time.Now()
}

// WithTimezone sets the implicit timezone used when comparing values
// without one.
func WithTimezone(ctx context.Context, loc *time.Location) context.Context {
	return context.WithValue(ctx, timezoneKey{}, loc)
}

func implicitTimezone(ctx context.Context) *time.Location {
	if loc, ok := ctx.Value(timezoneKey{}).(*time.Location); ok && loc != nil {
		return loc
	}
	return time.UTC
}

// WithDefaultCollation sets the default collation URI (informational; only
// codepoint collation is implemented).
func WithDefaultCollation(ctx context.Context, uri string) context.Context {
	return context.WithValue(ctx, collationKey{}, uri)
}

// CodepointCollation is the only collation the engine implements.
const CodepointCollation = "http://www.w3.org/2005/xpath-functions/collation/codepoint"

func defaultCollation(ctx context.Context) string {
	if uri, ok := ctx.Value(collationKey{}).(string); ok && uri != "" {
		return uri
	}
	return CodepointCollation
}

// WithBaseURI sets the static base URI reported by fn:static-base-uri.
func WithBaseURI(ctx context.Context, uri string) context.Context {
	return context.WithValue(ctx, baseURIKey{}, uri)
}

func baseURI(ctx context.Context) string {
	uri, _ := ctx.Value(baseURIKey{}).(string)
	return uri
}

// DocumentLoader resolves a document URI to its root node. Failures map to
// an empty node set at the call site, never to a fatal evaluation error.
type DocumentLoader func(uri string) (Node, error)

// WithDocuments installs the loader backing fn:doc.
func WithDocuments(ctx context.Context, loader DocumentLoader) context.Context {
	return context.WithValue(ctx, documentsKey{}, loader)
}

func documentLoader(ctx context.Context) DocumentLoader {
	loader, _ := ctx.Value(documentsKey{}).(DocumentLoader)
	return loader
}

// WithCollections installs the available collections map.
func WithCollections(ctx context.Context, collections map[string]Sequence) context.Context {
	return context.WithValue(ctx, collectionsKey{}, maps.Clone(collections))
}

func contextCollections(ctx context.Context) map[string]Sequence {
	c, _ := ctx.Value(collectionsKey{}).(map[string]Sequence)
	return c
}

// WithLogger directs fn:trace output. Without one, trace logs through
// slog.Default.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func contextLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
