package xpath

import "testing"

func TestParseDateValues(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"2024-02-29", "2024-02-29", true},
		{"2024-02-29Z", "2024-02-29Z", true},
		{"2024-02-29+05:30", "2024-02-29+05:30", true},
		{"2023-02-29", "", false}, // not a leap year
		{"2024-13-01", "", false},
		{"2024-00-10", "", false},
		{"2024-01-32", "", false},
		{"2024-1-02", "", false},
		{"20240102", "", false},
		{"2024-01-02+15:00", "", false}, // offset beyond +14:00
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseDate(tt.input)
			if tt.ok != (err == nil) {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && d.String() != tt.want {
				t.Errorf("String() = %q, want %q", d.String(), tt.want)
			}
		})
	}
}

func TestParseTimeValues(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"13:20:00", "13:20:00", true},
		{"13:20:30.5", "13:20:30.5", true},
		{"13:20:00Z", "13:20:00Z", true},
		{"13:20:00-08:00", "13:20:00-08:00", true},
		{"24:00:00", "", false},
		{"12:60:00", "", false},
		{"12:00:61", "", false},
		{"1:00:00", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseTime(tt.input)
			if tt.ok != (err == nil) {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && v.String() != tt.want {
				t.Errorf("String() = %q, want %q", v.String(), tt.want)
			}
		})
	}
}

func TestParseDateTimeValues(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"2024-05-01T12:30:00", "2024-05-01T12:30:00", true},
		{"2024-05-01T12:30:00Z", "2024-05-01T12:30:00Z", true},
		{"2024-05-01T12:30:00.25+01:00", "2024-05-01T12:30:00.25+01:00", true},
		{"2024-05-01 12:30:00", "", false},
		{"2024-05-01T25:00:00", "", false},
		{"2024-04-31T00:00:00", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseDateTime(tt.input)
			if tt.ok != (err == nil) {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && v.String() != tt.want {
				t.Errorf("String() = %q, want %q", v.String(), tt.want)
			}
		})
	}
}

func TestParseDurationValues(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"P1Y", "P1Y", true},
		{"P1Y2M", "P1Y2M", true},
		{"P14M", "P1Y2M", true}, // canonical form rebalances months
		{"P3D", "P3D", true},
		{"PT1H30M", "PT1H30M", true},
		{"PT90M", "PT1H30M", true},
		{"PT0.5S", "PT0.5S", true},
		{"-P1D", "-P1D", true},
		{"P1DT2H", "P1DT2H", true},
		{"PT0S", "PT0S", true},
		{"P", "", false},
		{"PT", "", false},
		{"P1D2H", "", false}, // hours need the T separator
		{"1Y", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseDuration(tt.input)
			if tt.ok != (err == nil) {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && d.String() != tt.want {
				t.Errorf("String() = %q, want %q", d.String(), tt.want)
			}
		})
	}
}
