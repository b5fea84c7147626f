package xpath

import "fmt"

// Error codes follow the W3C XPath error namespace. Static (XPST) codes are
// raised while parsing, dynamic (XPDY/FORG/FOTY/FOCA) codes during
// evaluation.
const (
	CodeInvalidSyntax      = "XPST0003"
	CodeUndefinedVar       = "XPST0008"
	CodeUnknownFunction    = "XPST0017"
	CodeUnknownType        = "XPST0051"
	CodeUnsupportedVersion = "XPST0010"

	CodeTypeMismatch   = "XPDY0050"
	CodeAtomizeContent = "FOTY0012"
	CodeAtomizeFuncs   = "FOTY0013"
	CodeCastInvalid    = "FORG0001"
	CodeCastTarget     = "XPST0080"
	CodeNumberParse    = "FORG0001"
	CodeCardinality    = "XPTY0004"
	CodeArrayBounds    = "FOAY0001"
	CodeMapKey         = "FOJS0005"
)

// SyntaxError is returned for any failure while tokenizing or parsing an
// expression. Position is a zero-based token offset into the input stream.
type SyntaxError struct {
	Code     string
	Position int
	Cause    string
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("[%s] position %d: %s", e.Code, e.Position, e.Cause)
}

func syntaxErrorf(pos int, format string, args ...any) error {
	return SyntaxError{
		Code:     CodeInvalidSyntax,
		Position: pos,
		Cause:    fmt.Sprintf(format, args...),
	}
}

// DynamicError is an evaluation-time failure carrying a spec-style code.
type DynamicError struct {
	Code  string
	Cause string
}

func (e DynamicError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Cause)
}

func dynamicErrorf(code, format string, args ...any) error {
	return DynamicError{
		Code:  code,
		Cause: fmt.Sprintf(format, args...),
	}
}

// ConfigError reports invalid parser construction input (unsupported
// version, malformed extension bundle). It is raised before any token is
// consumed.
type ConfigError struct {
	Cause string
}

func (e ConfigError) Error() string {
	return "configuration: " + e.Cause
}

func configErrorf(format string, args ...any) error {
	return ConfigError{Cause: fmt.Sprintf(format, args...)}
}
