package xpath

import (
	"context"
	"errors"
	"math"
	"testing"
)

func mustType(t *testing.T, name string) *AtomicType {
	t.Helper()
	at, ok := AtomicTypeByName(name)
	if !ok {
		t.Fatalf("xs:%s not registered", name)
	}
	return at
}

func TestCastBoolean(t *testing.T) {
	tests := []struct {
		in   Item
		want bool
		ok   bool
	}{
		{String("true"), true, true},
		{String("false"), false, true},
		{String("1"), true, true},
		{String("0"), false, true},
		{String(" true "), true, true},
		{String("TRUE"), false, false},
		{String("yes"), false, false},
		{UntypedAtomic("true"), true, true},
		{Integer(1), true, true},
		{Integer(0), false, true},
		{Integer(2), false, false},
		{Double(1), true, true},
		{Double(0.5), false, false},
		{Boolean(true), true, true},
	}
	bt := mustType(t, "boolean")
	for _, tt := range tests {
		t.Run(renderItem(tt.in), func(t *testing.T) {
			got, err := bt.Cast(context.Background(), tt.in)
			if tt.ok != (err == nil) {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && bool(got.(Boolean)) != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCastNumeric(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		typ  string
		in   Item
		want string
		ok   bool
	}{
		{"double", String("1.5"), "1.5", true},
		{"double", String("INF"), "INF", true},
		{"double", String("-INF"), "-INF", true},
		{"double", String("NaN"), "NaN", true},
		{"double", String("abc"), "", false},
		{"double", Boolean(true), "1", true},
		{"decimal", String("1.50"), "1.50", true},
		{"decimal", String("INF"), "", false},
		{"decimal", String("NaN"), "", false},
		{"decimal", Integer(7), "7", true},
		{"integer", String("42"), "42", true},
		{"integer", String("4.2"), "", false},
		{"integer", Double(3.9), "3", true},
		{"integer", Double(-3.9), "-3", true},
		{"integer", Boolean(true), "1", true},
		{"float", String("2.5"), "2.5", true},
		{"byte", String("127"), "127", true},
		{"byte", String("128"), "", false},
		{"byte", Integer(-128), "-128", true},
		{"byte", Integer(-129), "", false},
		{"unsignedByte", Integer(255), "255", true},
		{"unsignedByte", Integer(-1), "", false},
		{"positiveInteger", Integer(0), "", false},
		{"positiveInteger", Integer(1), "1", true},
		{"negativeInteger", Integer(-1), "-1", true},
		{"negativeInteger", Integer(0), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.typ+"/"+renderItem(tt.in), func(t *testing.T) {
			got, err := mustType(t, tt.typ).Cast(ctx, tt.in)
			if tt.ok != (err == nil) {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if !tt.ok {
				var de DynamicError
				if !errors.As(err, &de) || de.Code != CodeCastInvalid {
					t.Errorf("expected %s, got %v", CodeCastInvalid, err)
				}
				return
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got.String(), tt.want)
			}
		})
	}
}

func TestCastIntegerOverflowFromDouble(t *testing.T) {
	// Infinities and NaN have no integer value.
	it := mustType(t, "integer")
	for _, in := range []Item{Double(math.Inf(1)), Double(math.Inf(-1)), Double(math.NaN())} {
		if _, err := it.Cast(context.Background(), in); err == nil {
			t.Errorf("cast of %s should fail", in)
		}
	}
}

func TestCastStrings(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		typ  string
		in   string
		ok   bool
	}{
		{"normalizedString", "plain text", true},
		{"normalizedString", "has\ttab", false},
		{"token", "a b", true},
		{"token", " leading", false},
		{"token", "double  space", false},
		{"language", "en", true},
		{"language", "en-US", true},
		{"language", "not a language", false},
		{"Name", "ns:local", true},
		{"Name", "1starts-with-digit", false},
		{"NCName", "local-name", true},
		{"NCName", "with:colon", false},
	}
	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.in, func(t *testing.T) {
			_, err := mustType(t, tt.typ).Cast(ctx, String(tt.in))
			if tt.ok != (err == nil) {
				t.Errorf("err = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestCastQName(t *testing.T) {
	ctx := context.Background()
	qt := mustType(t, "QName")

	got, err := qt.Cast(ctx, String("ns:local"))
	if err != nil {
		t.Fatal(err)
	}
	q := got.(QName)
	if q.Space != "ns" || q.Local != "local" {
		t.Errorf("got %+v", q)
	}

	got, err = qt.Cast(ctx, String("bare"))
	if err != nil {
		t.Fatal(err)
	}
	if q := got.(QName); q.Space != "" || q.Local != "bare" {
		t.Errorf("got %+v", q)
	}

	for _, bad := range []string{":x", "x:", "a:b:c", ""} {
		if _, err := qt.Cast(ctx, String(bad)); err == nil {
			t.Errorf("cast of %q should fail", bad)
		}
	}
}

func TestCastBinary(t *testing.T) {
	ctx := context.Background()
	hex := mustType(t, "hexBinary")
	b64 := mustType(t, "base64Binary")

	h, err := hex.Cast(ctx, String("48690a"))
	if err != nil {
		t.Fatal(err)
	}
	if string(h.(HexBinary)) != "Hi\n" {
		t.Errorf("got %q", string(h.(HexBinary)))
	}
	if _, err := hex.Cast(ctx, String("4z")); err == nil {
		t.Error("invalid hex should fail")
	}

	b, err := b64.Cast(ctx, String("SGkK"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b.(Base64Binary)) != "Hi\n" {
		t.Errorf("got %q", string(b.(Base64Binary)))
	}
	if _, err := b64.Cast(ctx, String("!!!")); err == nil {
		t.Error("invalid base64 should fail")
	}

	// The two binary types cast into each other without re-encoding.
	cross, err := b64.Cast(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	if string(cross.(Base64Binary)) != "Hi\n" {
		t.Errorf("got %q", string(cross.(Base64Binary)))
	}
}

func TestCastTemporalConversions(t *testing.T) {
	ctx := context.Background()
	dt, err := mustType(t, "dateTime").Cast(ctx, String("2024-05-01T12:30:45Z"))
	if err != nil {
		t.Fatal(err)
	}

	d, err := mustType(t, "date").Cast(ctx, dt)
	if err != nil {
		t.Fatal(err)
	}
	if d.String() != "2024-05-01Z" {
		t.Errorf("date: got %s", d)
	}

	tm, err := mustType(t, "time").Cast(ctx, dt)
	if err != nil {
		t.Fatal(err)
	}
	if tm.String() != "12:30:45Z" {
		t.Errorf("time: got %s", tm)
	}

	// Sub-duration casts drop the other component.
	ym, err := mustType(t, "yearMonthDuration").Cast(ctx, String("P1Y2M3DT4H"))
	if err != nil {
		t.Fatal(err)
	}
	if ym.String() != "P1Y2M" {
		t.Errorf("yearMonthDuration: got %s", ym)
	}
	dtd, err := mustType(t, "dayTimeDuration").Cast(ctx, String("P1Y2M3DT4H"))
	if err != nil {
		t.Fatal(err)
	}
	if dtd.String() != "P3DT4H" {
		t.Errorf("dayTimeDuration: got %s", dtd)
	}
}

func TestDerivesFrom(t *testing.T) {
	tests := []struct {
		typ, base string
		want      bool
	}{
		{"integer", "decimal", true},
		{"integer", "anyAtomicType", true},
		{"byte", "integer", true},
		{"byte", "decimal", true},
		{"unsignedByte", "nonNegativeInteger", true},
		{"decimal", "integer", false},
		{"string", "decimal", false},
		{"token", "normalizedString", true},
		{"NCName", "string", true},
		{"yearMonthDuration", "duration", true},
	}
	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.base, func(t *testing.T) {
			if got := mustType(t, tt.typ).DerivesFrom(mustType(t, tt.base)); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrimitive(t *testing.T) {
	tests := []struct{ typ, want string }{
		{"byte", "decimal"},
		{"integer", "decimal"},
		{"token", "string"},
		{"string", "string"},
		{"dayTimeDuration", "duration"},
	}
	for _, tt := range tests {
		if got := mustType(t, tt.typ).Primitive(); got.Name != tt.want {
			t.Errorf("%s: primitive %s, want %s", tt.typ, got.Name, tt.want)
		}
	}
}
