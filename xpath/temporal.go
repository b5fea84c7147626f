package xpath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date is an xs:date value: a calendar day with an optional timezone.
type Date struct {
	Value time.Time
	HasTZ bool
}

func (d Date) TypeName() string { return "xs:date" }
func (d Date) String() string {
	s := d.Value.Format("2006-01-02")
	return s + tzSuffix(d.Value, d.HasTZ)
}

// Time is an xs:time value.
type Time struct {
	Value time.Time
	HasTZ bool
}

func (t Time) TypeName() string { return "xs:time" }
func (t Time) String() string {
	s := t.Value.Format("15:04:05")
	if ns := t.Value.Nanosecond(); ns != 0 {
		s += strings.TrimRight(fmt.Sprintf(".%09d", ns), "0")
	}
	return s + tzSuffix(t.Value, t.HasTZ)
}

// DateTime is an xs:dateTime value.
type DateTime struct {
	Value time.Time
	HasTZ bool
}

func (d DateTime) TypeName() string { return "xs:dateTime" }
func (d DateTime) String() string {
	s := d.Value.Format("2006-01-02T15:04:05")
	if ns := d.Value.Nanosecond(); ns != 0 {
		s += strings.TrimRight(fmt.Sprintf(".%09d", ns), "0")
	}
	return s + tzSuffix(d.Value, d.HasTZ)
}

func tzSuffix(t time.Time, hasTZ bool) string {
	if !hasTZ {
		return ""
	}
	_, off := t.Zone()
	if off == 0 {
		return "Z"
	}
	sign := "+"
	if off < 0 {
		sign = "-"
		off = -off
	}
	return fmt.Sprintf("%s%02d:%02d", sign, off/3600, (off%3600)/60)
}

// Duration is an xs:duration value kept in its component form: months carry
// the year/month part, seconds the day/time part.
type Duration struct {
	Negative bool
	Months   int
	Seconds  float64
}

func (d Duration) TypeName() string { return "xs:duration" }
func (d Duration) String() string   { return d.canonical() }

func (d Duration) canonical() string {
	if d.Months == 0 && d.Seconds == 0 {
		return "PT0S"
	}
	var b strings.Builder
	if d.Negative {
		b.WriteString("-")
	}
	b.WriteString("P")
	months := d.Months
	if y := months / 12; y != 0 {
		fmt.Fprintf(&b, "%dY", y)
	}
	if m := months % 12; m != 0 {
		fmt.Fprintf(&b, "%dM", m)
	}
	secs := d.Seconds
	days := int(secs / 86400)
	secs -= float64(days) * 86400
	if days != 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if secs != 0 {
		b.WriteString("T")
		h := int(secs / 3600)
		secs -= float64(h) * 3600
		mi := int(secs / 60)
		secs -= float64(mi) * 60
		if h != 0 {
			fmt.Fprintf(&b, "%dH", h)
		}
		if mi != 0 {
			fmt.Fprintf(&b, "%dM", mi)
		}
		if secs != 0 {
			fmt.Fprintf(&b, "%sS", strconv.FormatFloat(secs, 'f', -1, 64))
		}
	}
	return b.String()
}

var (
	dateRe     = regexp.MustCompile(`^(-?\d{4,})-(\d{2})-(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	timeRe     = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	dateTimeRe = regexp.MustCompile(`^(-?\d{4,})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	durationRe = regexp.MustCompile(`^(-)?P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
)

func parseTZ(s string) (*time.Location, bool, error) {
	switch s {
	case "":
		return time.UTC, false, nil
	case "Z":
		return time.UTC, true, nil
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	h, err1 := strconv.Atoi(s[1:3])
	m, err2 := strconv.Atoi(s[4:6])
	if err1 != nil || err2 != nil || h > 14 || m > 59 {
		return nil, false, dynamicErrorf(CodeCastInvalid, "invalid timezone %q", s)
	}
	return time.FixedZone(s, sign*(h*3600+m*60)), true, nil
}

// ParseDate parses an xs:date lexical value.
func ParseDate(s string) (Date, error) {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return Date{}, dynamicErrorf(CodeCastInvalid, "invalid xs:date %q", s)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Date{}, dynamicErrorf(CodeCastInvalid, "invalid xs:date %q", s)
	}
	loc, hasTZ, err := parseTZ(m[4])
	if err != nil {
		return Date{}, err
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Day() != day || t.Month() != time.Month(month) {
		return Date{}, dynamicErrorf(CodeCastInvalid, "nonexistent date %q", s)
	}
	return Date{Value: t, HasTZ: hasTZ}, nil
}

// ParseTime parses an xs:time lexical value, validating hours in [0,23],
// minutes in [0,59] and seconds in [0,60).
func ParseTime(s string) (Time, error) {
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return Time{}, dynamicErrorf(CodeCastInvalid, "invalid xs:time %q", s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	if hour > 23 || minute > 59 || sec > 59 {
		return Time{}, dynamicErrorf(CodeCastInvalid, "time component out of range in %q", s)
	}
	var ns int
	if m[4] != "" {
		frac, _ := strconv.ParseFloat(m[4], 64)
		ns = int(frac * 1e9)
	}
	loc, hasTZ, err := parseTZ(m[5])
	if err != nil {
		return Time{}, err
	}
	return Time{
		Value: time.Date(0, 1, 1, hour, minute, sec, ns, loc),
		HasTZ: hasTZ,
	}, nil
}

// ParseDateTime parses an xs:dateTime lexical value.
func ParseDateTime(s string) (DateTime, error) {
	m := dateTimeRe.FindStringSubmatch(s)
	if m == nil {
		return DateTime{}, dynamicErrorf(CodeCastInvalid, "invalid xs:dateTime %q", s)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	sec, _ := strconv.Atoi(m[6])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 59 {
		return DateTime{}, dynamicErrorf(CodeCastInvalid, "component out of range in xs:dateTime %q", s)
	}
	var ns int
	if m[7] != "" {
		frac, _ := strconv.ParseFloat(m[7], 64)
		ns = int(frac * 1e9)
	}
	loc, hasTZ, err := parseTZ(m[8])
	if err != nil {
		return DateTime{}, err
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, ns, loc)
	if t.Day() != day || t.Month() != time.Month(month) {
		return DateTime{}, dynamicErrorf(CodeCastInvalid, "nonexistent date in %q", s)
	}
	return DateTime{Value: t, HasTZ: hasTZ}, nil
}

// ParseDuration parses an xs:duration lexical value. At least one designator
// component must be present after P (a bare "P" or "PT" is invalid).
func ParseDuration(s string) (Duration, error) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return Duration{}, dynamicErrorf(CodeCastInvalid, "invalid xs:duration %q", s)
	}
	if m[2] == "" && m[3] == "" && m[4] == "" && m[5] == "" && m[6] == "" && m[7] == "" {
		return Duration{}, dynamicErrorf(CodeCastInvalid, "xs:duration %q has no components", s)
	}
	if strings.HasSuffix(s, "T") {
		return Duration{}, dynamicErrorf(CodeCastInvalid, "xs:duration %q has empty time part", s)
	}
	var d Duration
	d.Negative = m[1] == "-"
	years, _ := strconv.Atoi(zeroIfEmpty(m[2]))
	months, _ := strconv.Atoi(zeroIfEmpty(m[3]))
	days, _ := strconv.Atoi(zeroIfEmpty(m[4]))
	hours, _ := strconv.Atoi(zeroIfEmpty(m[5]))
	minutes, _ := strconv.Atoi(zeroIfEmpty(m[6]))
	seconds, _ := strconv.ParseFloat(zeroIfEmpty(m[7]), 64)
	d.Months = years*12 + months
	d.Seconds = float64(days)*86400 + float64(hours)*3600 + float64(minutes)*60 + seconds
	return d, nil
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
