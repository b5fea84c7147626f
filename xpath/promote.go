package xpath

import "context"

// PromotionContext selects the coercion rules applied when a value crosses
// into an operation of a different kind.
type PromotionContext int

const (
	PromoteArithmetic PromotionContext = iota
	PromoteComparison
	PromoteString
	PromoteBoolean
)

func (pc PromotionContext) String() string {
	switch pc {
	case PromoteArithmetic:
		return "arithmetic"
	case PromoteComparison:
		return "comparison"
	case PromoteString:
		return "string"
	case PromoteBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// numericLevel places a value in the numeric promotion hierarchy:
// integer < decimal < float < double. Non-numeric values are level -1.
func numericLevel(it Item) int {
	switch it.(type) {
	case Integer:
		return 0
	case Decimal:
		return 1
	case Float:
		return 2
	case Double:
		return 3
	default:
		return -1
	}
}

// Promote converts a value for use in the given context. The other operand
// is consulted only in comparison context, where untyped atomics take on
// the other side's numeric type.
func Promote(ctx context.Context, it Item, pc PromotionContext, other Item) (Item, error) {
	switch pc {
	case PromoteArithmetic:
		switch it.(type) {
		case UntypedAtomic:
			// Failure to parse is a dynamic error, not a silent NaN;
			// XPath 1.0 compatibility mode handles its own coercion
			// before operands reach this point.
			f, err := parseXPathDouble(it.String())
			if err != nil {
				return nil, err
			}
			return Double(f), nil
		}
		if !isNumeric(it) {
			return nil, dynamicErrorf(CodeTypeMismatch, "%s is not valid in arithmetic", it.TypeName())
		}
		return it, nil

	case PromoteComparison:
		if _, ok := it.(UntypedAtomic); ok {
			if other != nil && isNumeric(other) {
				f, err := parseXPathDouble(it.String())
				if err != nil {
					return nil, err
				}
				return Double(f), nil
			}
			return String(it.String()), nil
		}
		return it, nil

	case PromoteString:
		switch it.(type) {
		case UntypedAtomic, AnyURI, String:
			return String(it.String()), nil
		}
		return nil, dynamicErrorf(CodeTypeMismatch, "%s does not promote to xs:string", it.TypeName())

	case PromoteBoolean:
		if u, ok := it.(UntypedAtomic); ok {
			return String(u), nil
		}
		return it, nil
	}
	return it, nil
}

// promoteNumericPair lifts two numeric operands to the higher of their two
// hierarchy levels. Only the semantic type tag changes; the numeric value
// is preserved.
func promoteNumericPair(ctx context.Context, a, b Item) (Item, Item, error) {
	la, lb := numericLevel(a), numericLevel(b)
	if la < 0 {
		return nil, nil, dynamicErrorf(CodeTypeMismatch, "%s is not numeric", a.TypeName())
	}
	if lb < 0 {
		return nil, nil, dynamicErrorf(CodeTypeMismatch, "%s is not numeric", b.TypeName())
	}
	level := max(la, lb)
	pa, err := promoteNumericTo(ctx, a, level)
	if err != nil {
		return nil, nil, err
	}
	pb, err := promoteNumericTo(ctx, b, level)
	if err != nil {
		return nil, nil, err
	}
	return pa, pb, nil
}

func promoteNumericTo(ctx context.Context, it Item, level int) (Item, error) {
	if numericLevel(it) == level {
		return it, nil
	}
	switch level {
	case 1:
		return castDecimal(ctx, it)
	case 2:
		d, err := castDouble(ctx, it)
		if err != nil {
			return nil, err
		}
		return Float(d.(Double)), nil
	case 3:
		return castDouble(ctx, it)
	default:
		return nil, dynamicErrorf(CodeTypeMismatch, "cannot demote %s", it.TypeName())
	}
}
