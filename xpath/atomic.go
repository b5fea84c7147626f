package xpath

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// AtomicType describes one built-in atomic type of the xs namespace. All
// instances are constructed once at package initialization and shared
// read-only afterwards; the Base chain is finite, acyclic and roots at
// xs:anyAtomicType.
type AtomicType struct {
	Name string
	Base *AtomicType

	validate func(it Item) bool
	cast     func(ctx context.Context, it Item) (Item, error)
}

func (t *AtomicType) String() string { return "xs:" + t.Name }

// Primitive returns the primitive ancestor: the type directly below
// xs:anyAtomicType on the base chain.
func (t *AtomicType) Primitive() *AtomicType {
	p := t
	for p.Base != nil && p.Base != typeAnyAtomic {
		p = p.Base
	}
	return p
}

// DerivesFrom reports whether t is other or derives from it.
func (t *AtomicType) DerivesFrom(other *AtomicType) bool {
	for p := t; p != nil; p = p.Base {
		if p == other {
			return true
		}
	}
	return false
}

// Validate reports whether the value already conforms to the type without
// casting.
func (t *AtomicType) Validate(it Item) bool {
	if t.validate != nil {
		return t.validate(it)
	}
	// Derived types without their own lexical rule validate through cast.
	_, err := t.Cast(context.Background(), it)
	return err == nil
}

// Cast converts the value to this type or fails with a cast error.
func (t *AtomicType) Cast(ctx context.Context, it Item) (Item, error) {
	if t.cast == nil {
		return nil, dynamicErrorf(CodeCastTarget, "cast target xs:%s unsupported", t.Name)
	}
	return t.cast(ctx, it)
}

var (
	typeAnyAtomic = &AtomicType{Name: "anyAtomicType", validate: func(Item) bool { return true }}

	typeUntypedAtomic = &AtomicType{
		Name: "untypedAtomic", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(UntypedAtomic); return ok },
		cast: func(ctx context.Context, it Item) (Item, error) {
			return UntypedAtomic(canonicalString(it)), nil
		},
	}

	typeString = &AtomicType{
		Name: "string", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(String); return ok },
		cast: func(ctx context.Context, it Item) (Item, error) {
			return String(canonicalString(it)), nil
		},
	}
	typeNormalizedString = derivedStringType("normalizedString", typeString, func(s string) bool {
		return !strings.ContainsAny(s, "\t\n\r")
	})
	typeToken = derivedStringType("token", typeNormalizedString, func(s string) bool {
		return s == strings.Join(strings.Fields(s), " ")
	})
	typeLanguage = derivedStringType("language", typeToken, regexp.MustCompile(`^[a-zA-Z]{1,8}(-[a-zA-Z0-9]{1,8})*$`).MatchString)
	typeXSName   = derivedStringType("Name", typeToken, regexp.MustCompile(`^[A-Za-z_:][-A-Za-z0-9._:]*$`).MatchString)
	typeNCName   = derivedStringType("NCName", typeXSName, regexp.MustCompile(`^[A-Za-z_][-A-Za-z0-9._]*$`).MatchString)
	typeID       = derivedStringType("ID", typeNCName, regexp.MustCompile(`^[A-Za-z_][-A-Za-z0-9._]*$`).MatchString)

	typeBoolean = &AtomicType{
		Name: "boolean", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(Boolean); return ok },
		cast:     castBoolean,
	}

	typeDecimal = &AtomicType{
		Name: "decimal", Base: typeAnyAtomic,
		validate: func(it Item) bool {
			switch it.(type) {
			case Decimal, Integer:
				return true
			}
			return false
		},
		cast: castDecimal,
	}
	typeInteger = &AtomicType{
		Name: "integer", Base: typeDecimal,
		validate: func(it Item) bool { _, ok := it.(Integer); return ok },
		cast:     castInteger,
	}

	typeLong               = boundedIntegerType("long", nil, "-9223372036854775808", "9223372036854775807")
	typeInt                = boundedIntegerType("int", nil, "-2147483648", "2147483647")
	typeShort              = boundedIntegerType("short", nil, "-32768", "32767")
	typeByte               = boundedIntegerType("byte", nil, "-128", "127")
	typeNonNegativeInteger = boundedIntegerType("nonNegativeInteger", nil, "0", "")
	typePositiveInteger    = boundedIntegerType("positiveInteger", nil, "1", "")
	typeNonPositiveInteger = boundedIntegerType("nonPositiveInteger", nil, "", "0")
	typeNegativeInteger    = boundedIntegerType("negativeInteger", nil, "", "-1")
	typeUnsignedLong       = boundedIntegerType("unsignedLong", nil, "0", "18446744073709551615")
	typeUnsignedInt        = boundedIntegerType("unsignedInt", nil, "0", "4294967295")
	typeUnsignedShort      = boundedIntegerType("unsignedShort", nil, "0", "65535")
	typeUnsignedByte       = boundedIntegerType("unsignedByte", nil, "0", "255")

	typeFloat = &AtomicType{
		Name: "float", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(Float); return ok },
		cast: func(ctx context.Context, it Item) (Item, error) {
			d, err := castDouble(ctx, it)
			if err != nil {
				return nil, err
			}
			return Float(d.(Double)), nil
		},
	}
	typeDouble = &AtomicType{
		Name: "double", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(Double); return ok },
		cast:     castDouble,
	}

	typeDate = &AtomicType{
		Name: "date", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(Date); return ok },
		cast:     castDate,
	}
	typeTime = &AtomicType{
		Name: "time", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(Time); return ok },
		cast: func(ctx context.Context, it Item) (Item, error) {
			switch v := it.(type) {
			case Time:
				return v, nil
			case DateTime:
				return Time{Value: time0(v.Value), HasTZ: v.HasTZ}, nil
			}
			s, err := lexicalForm(it)
			if err != nil {
				return nil, err
			}
			return ParseTime(s)
		},
	}
	typeDateTime = &AtomicType{
		Name: "dateTime", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(DateTime); return ok },
		cast:     castDateTime,
	}

	typeDuration = &AtomicType{
		Name: "duration", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(Duration); return ok },
		cast:     castDuration,
	}
	typeYearMonthDuration = &AtomicType{
		Name: "yearMonthDuration", Base: typeDuration,
		cast: func(ctx context.Context, it Item) (Item, error) {
			d, err := castDuration(ctx, it)
			if err != nil {
				return nil, err
			}
			dur := d.(Duration)
			dur.Seconds = 0
			return dur, nil
		},
	}
	typeDayTimeDuration = &AtomicType{
		Name: "dayTimeDuration", Base: typeDuration,
		cast: func(ctx context.Context, it Item) (Item, error) {
			d, err := castDuration(ctx, it)
			if err != nil {
				return nil, err
			}
			dur := d.(Duration)
			dur.Months = 0
			return dur, nil
		},
	}

	typeGYear      = gregorianType("gYear", regexp.MustCompile(`^-?\d{4,}(Z|[+-]\d{2}:\d{2})?$`))
	typeGMonth     = gregorianType("gMonth", regexp.MustCompile(`^--(0[1-9]|1[0-2])(Z|[+-]\d{2}:\d{2})?$`))
	typeGDay       = gregorianType("gDay", regexp.MustCompile(`^---(0[1-9]|[12]\d|3[01])(Z|[+-]\d{2}:\d{2})?$`))
	typeGYearMonth = gregorianType("gYearMonth", regexp.MustCompile(`^-?\d{4,}-(0[1-9]|1[0-2])(Z|[+-]\d{2}:\d{2})?$`))
	typeGMonthDay  = gregorianType("gMonthDay", regexp.MustCompile(`^--(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])(Z|[+-]\d{2}:\d{2})?$`))

	typeAnyURI = &AtomicType{
		Name: "anyURI", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(AnyURI); return ok },
		cast: func(ctx context.Context, it Item) (Item, error) {
			s, err := lexicalForm(it)
			if err != nil {
				if u, ok := it.(AnyURI); ok {
					return u, nil
				}
				return nil, err
			}
			return AnyURI(strings.TrimSpace(s)), nil
		},
	}
	typeQName = &AtomicType{
		Name: "QName", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(QName); return ok },
		cast: func(ctx context.Context, it Item) (Item, error) {
			if q, ok := it.(QName); ok {
				return q, nil
			}
			s, err := lexicalForm(it)
			if err != nil {
				return nil, err
			}
			s = strings.TrimSpace(s)
			prefix, local, found := strings.Cut(s, ":")
			if !found {
				prefix, local = "", s
			}
			if local == "" || !typeNCName.Validate(String(local)) || (found && !typeNCName.Validate(String(prefix))) {
				return nil, dynamicErrorf(CodeCastInvalid, "invalid xs:QName %q", s)
			}
			return QName{Space: prefix, Local: local}, nil
		},
	}

	typeHexBinary = &AtomicType{
		Name: "hexBinary", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(HexBinary); return ok },
		cast: func(ctx context.Context, it Item) (Item, error) {
			switch v := it.(type) {
			case HexBinary:
				return v, nil
			case Base64Binary:
				return HexBinary(v), nil
			}
			s, err := lexicalForm(it)
			if err != nil {
				return nil, err
			}
			buf, err := hex.DecodeString(strings.TrimSpace(s))
			if err != nil {
				return nil, dynamicErrorf(CodeCastInvalid, "invalid xs:hexBinary %q", s)
			}
			return HexBinary(buf), nil
		},
	}
	typeBase64Binary = &AtomicType{
		Name: "base64Binary", Base: typeAnyAtomic,
		validate: func(it Item) bool { _, ok := it.(Base64Binary); return ok },
		cast: func(ctx context.Context, it Item) (Item, error) {
			switch v := it.(type) {
			case Base64Binary:
				return v, nil
			case HexBinary:
				return Base64Binary(v), nil
			}
			s, err := lexicalForm(it)
			if err != nil {
				return nil, err
			}
			buf, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
			if err != nil {
				return nil, dynamicErrorf(CodeCastInvalid, "invalid xs:base64Binary %q", s)
			}
			return Base64Binary(buf), nil
		},
	}
)

// The bounded integer types base on xs:integer; wiring Base after the var
// block avoids an initialization cycle between typeInteger and its
// derivatives.
func init() {
	typeLong.Base = typeInteger
	typeInt.Base = typeLong
	typeShort.Base = typeInt
	typeByte.Base = typeShort
	typeNonNegativeInteger.Base = typeInteger
	typePositiveInteger.Base = typeNonNegativeInteger
	typeNonPositiveInteger.Base = typeInteger
	typeNegativeInteger.Base = typeNonPositiveInteger
	typeUnsignedLong.Base = typeNonNegativeInteger
	typeUnsignedInt.Base = typeUnsignedLong
	typeUnsignedShort.Base = typeUnsignedInt
	typeUnsignedByte.Base = typeUnsignedShort
}

var atomicTypes = sync.OnceValue(func() map[string]*AtomicType {
	all := []*AtomicType{
		typeAnyAtomic, typeUntypedAtomic,
		typeString, typeNormalizedString, typeToken, typeLanguage, typeXSName, typeNCName, typeID,
		typeBoolean,
		typeDecimal, typeInteger,
		typeLong, typeInt, typeShort, typeByte,
		typeNonNegativeInteger, typePositiveInteger, typeNonPositiveInteger, typeNegativeInteger,
		typeUnsignedLong, typeUnsignedInt, typeUnsignedShort, typeUnsignedByte,
		typeFloat, typeDouble,
		typeDate, typeTime, typeDateTime,
		typeDuration, typeYearMonthDuration, typeDayTimeDuration,
		typeGYear, typeGMonth, typeGDay, typeGYearMonth, typeGMonthDay,
		typeAnyURI, typeQName, typeHexBinary, typeBase64Binary,
	}
	m := make(map[string]*AtomicType, len(all))
	for _, t := range all {
		m[t.Name] = t
	}
	return m
})

// AtomicTypeByName resolves a built-in atomic type by its local name in the
// xs namespace.
func AtomicTypeByName(local string) (*AtomicType, bool) {
	t, ok := atomicTypes()[local]
	return t, ok
}

// itemAtomicType maps a runtime item to its atomic type, nil for non-atomic
// items.
func itemAtomicType(it Item) *AtomicType {
	switch it.(type) {
	case Boolean:
		return typeBoolean
	case String:
		return typeString
	case UntypedAtomic:
		return typeUntypedAtomic
	case AnyURI:
		return typeAnyURI
	case Integer:
		return typeInteger
	case Decimal:
		return typeDecimal
	case Float:
		return typeFloat
	case Double:
		return typeDouble
	case Date:
		return typeDate
	case Time:
		return typeTime
	case DateTime:
		return typeDateTime
	case Duration:
		return typeDuration
	case QName:
		return typeQName
	case HexBinary:
		return typeHexBinary
	case Base64Binary:
		return typeBase64Binary
	default:
		return nil
	}
}

func canonicalString(it Item) string {
	return it.String()
}

// lexicalForm extracts the castable string form of an item; only strings
// and untyped atomics carry one.
func lexicalForm(it Item) (string, error) {
	switch v := it.(type) {
	case String:
		return string(v), nil
	case UntypedAtomic:
		return string(v), nil
	case AnyURI:
		return string(v), nil
	default:
		return "", dynamicErrorf(CodeCastInvalid, "cannot cast %s from %s", it.TypeName(), it.TypeName())
	}
}

func castBoolean(ctx context.Context, it Item) (Item, error) {
	switch v := it.(type) {
	case Boolean:
		return v, nil
	case Integer:
		if v == 0 || v == 1 {
			return Boolean(v == 1), nil
		}
	case Decimal:
		if v.Value.IsZero() {
			return Boolean(false), nil
		}
		var one apd.Decimal
		one.SetInt64(1)
		if v.Value.Cmp(&one) == 0 {
			return Boolean(true), nil
		}
	case Float:
		if v == 0 || v == 1 {
			return Boolean(v == 1), nil
		}
	case Double:
		if v == 0 || v == 1 {
			return Boolean(v == 1), nil
		}
	case String, UntypedAtomic:
		switch strings.TrimSpace(it.String()) {
		case "true", "1":
			return Boolean(true), nil
		case "false", "0":
			return Boolean(false), nil
		}
	}
	return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %s to xs:boolean", renderItem(it))
}

func castDouble(ctx context.Context, it Item) (Item, error) {
	switch v := it.(type) {
	case Double:
		return v, nil
	case Float:
		return Double(v), nil
	case Integer:
		return Double(v), nil
	case Decimal:
		f, err := v.Value.Float64()
		if err != nil {
			return nil, dynamicErrorf(CodeCastInvalid, "decimal %s out of xs:double range", v)
		}
		return Double(f), nil
	case Boolean:
		if v {
			return Double(1), nil
		}
		return Double(0), nil
	case String, UntypedAtomic:
		f, err := parseXPathDouble(it.String())
		if err != nil {
			return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %q to xs:double", it.String())
		}
		return Double(f), nil
	}
	return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %s to xs:double", it.TypeName())
}

func castDecimal(ctx context.Context, it Item) (Item, error) {
	switch v := it.(type) {
	case Decimal:
		return v, nil
	case Integer:
		var d apd.Decimal
		d.SetInt64(int64(v))
		return Decimal{Value: &d}, nil
	case Float:
		return decimalFromFloat(float64(v))
	case Double:
		return decimalFromFloat(float64(v))
	case Boolean:
		var d apd.Decimal
		if v {
			d.SetInt64(1)
		}
		return Decimal{Value: &d}, nil
	case String, UntypedAtomic:
		s := strings.TrimSpace(it.String())
		switch s {
		case "INF", "-INF", "NaN":
			return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %q to xs:decimal", s)
		}
		d, _, err := apd.NewFromString(s)
		if err != nil {
			return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %q to xs:decimal", s)
		}
		return Decimal{Value: d}, nil
	}
	return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %s to xs:decimal", it.TypeName())
}

func decimalFromFloat(f float64) (Item, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %s to xs:decimal", formatXPathFloat(f))
	}
	d, _, err := apd.NewFromString(strconv.FormatFloat(f, 'f', -1, 64))
	if err != nil {
		return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %v to xs:decimal", f)
	}
	return Decimal{Value: d}, nil
}

func castInteger(ctx context.Context, it Item) (Item, error) {
	switch v := it.(type) {
	case Integer:
		return v, nil
	case Decimal:
		var trunc apd.Decimal
		if v.Value.Negative {
			_, _ = apdContext(ctx).Ceil(&trunc, v.Value)
		} else {
			_, _ = apdContext(ctx).Floor(&trunc, v.Value)
		}
		i, err := trunc.Int64()
		if err != nil {
			return nil, dynamicErrorf(CodeCastInvalid, "decimal %s out of xs:integer range", v)
		}
		return Integer(i), nil
	case Float, Double:
		f, _ := toDouble(it)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %s to xs:integer", it.String())
		}
		return Integer(int64(math.Trunc(f))), nil
	case Boolean:
		if v {
			return Integer(1), nil
		}
		return Integer(0), nil
	case String, UntypedAtomic:
		i, err := strconv.ParseInt(strings.TrimSpace(it.String()), 10, 64)
		if err != nil {
			return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %q to xs:integer", it.String())
		}
		return Integer(i), nil
	}
	return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %s to xs:integer", it.TypeName())
}

// boundedIntegerType builds an integer-derived type that casts through
// xs:decimal and then applies min/max range checks. Empty bound strings mean
// unbounded on that side.
func boundedIntegerType(name string, base *AtomicType, min, max string) *AtomicType {
	var minD, maxD *apd.Decimal
	if min != "" {
		minD, _, _ = apd.NewFromString(min)
	}
	if max != "" {
		maxD, _, _ = apd.NewFromString(max)
	}
	t := &AtomicType{Name: name, Base: base}
	t.cast = func(ctx context.Context, it Item) (Item, error) {
		dec, err := castDecimal(ctx, it)
		if err != nil {
			return nil, err
		}
		d := dec.(Decimal)
		if minD != nil && d.Value.Cmp(minD) < 0 {
			return nil, dynamicErrorf(CodeCastInvalid, "value %s below xs:%s minimum %s", d, name, min)
		}
		if maxD != nil && d.Value.Cmp(maxD) > 0 {
			return nil, dynamicErrorf(CodeCastInvalid, "value %s above xs:%s maximum %s", d, name, max)
		}
		return castInteger(ctx, d)
	}
	return t
}

func derivedStringType(name string, base *AtomicType, lexical func(string) bool) *AtomicType {
	t := &AtomicType{Name: name, Base: base}
	t.validate = func(it Item) bool {
		s, err := lexicalForm(it)
		return err == nil && lexical(s)
	}
	t.cast = func(ctx context.Context, it Item) (Item, error) {
		s := canonicalString(it)
		if !lexical(s) {
			return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %q to xs:%s", s, name)
		}
		return String(s), nil
	}
	return t
}

func gregorianType(name string, re *regexp.Regexp) *AtomicType {
	t := &AtomicType{Name: name, Base: typeAnyAtomic}
	t.validate = func(it Item) bool {
		s, err := lexicalForm(it)
		return err == nil && re.MatchString(strings.TrimSpace(s))
	}
	t.cast = func(ctx context.Context, it Item) (Item, error) {
		s, err := lexicalForm(it)
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if !re.MatchString(s) {
			return nil, dynamicErrorf(CodeCastInvalid, "cannot cast %q to xs:%s", s, name)
		}
		return String(s), nil
	}
	return t
}

// castDate goes through xs:dateTime when the input is a dateTime, then
// truncates to midnight in the value's own timezone.
func castDate(ctx context.Context, it Item) (Item, error) {
	switch v := it.(type) {
	case Date:
		return v, nil
	case DateTime:
		y, m, d := v.Value.Date()
		return Date{
			Value: time.Date(y, m, d, 0, 0, 0, 0, v.Value.Location()),
			HasTZ: v.HasTZ,
		}, nil
	}
	s, err := lexicalForm(it)
	if err != nil {
		return nil, err
	}
	return ParseDate(strings.TrimSpace(s))
}

func castDateTime(ctx context.Context, it Item) (Item, error) {
	switch v := it.(type) {
	case DateTime:
		return v, nil
	case Date:
		return DateTime{Value: v.Value, HasTZ: v.HasTZ}, nil
	}
	s, err := lexicalForm(it)
	if err != nil {
		return nil, err
	}
	return ParseDateTime(strings.TrimSpace(s))
}

func castDuration(ctx context.Context, it Item) (Item, error) {
	if v, ok := it.(Duration); ok {
		return v, nil
	}
	s, err := lexicalForm(it)
	if err != nil {
		return nil, err
	}
	return ParseDuration(strings.TrimSpace(s))
}

func time0(t time.Time) time.Time {
	return time.Date(0, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
