package feel

import (
	"testing"
	"time"
)

// TestParseTemporal verifies parsing and canonical formatting of temporal text
func TestParseTemporal(t *testing.T) {
	tests := []struct {
		name    string
		parse   func(string) (Value, error)
		input   string
		want    string
		wantErr bool
	}{
		{name: "date", parse: parseDateValue, input: "2024-02-29", want: "2024-02-29"},
		{name: "date not leap", parse: parseDateValue, input: "2023-02-29", wantErr: true},
		{name: "date bad format", parse: parseDateValue, input: "2024/01/01", wantErr: true},
		{name: "time", parse: parseTimeValue, input: "09:05:00", want: "09:05:00"},
		{name: "time fraction", parse: parseTimeValue, input: "09:05:00.250", want: "09:05:00.25"},
		{name: "time utc", parse: parseTimeValue, input: "23:59:59Z", want: "23:59:59Z"},
		{name: "time negative offset", parse: parseTimeValue, input: "08:00:00-05:00", want: "08:00:00-05:00"},
		{name: "time out of range", parse: parseTimeValue, input: "25:00:00", wantErr: true},
		{name: "date and time", parse: parseDateTimeValue, input: "2024-01-01T10:00:00", want: "2024-01-01T10:00:00"},
		{name: "bare date as date and time", parse: parseDateTimeValue, input: "2024-01-01", want: "2024-01-01T00:00:00"},
		{name: "days and time", parse: ParseDuration, input: "P1DT2H", want: "P1DT2H"},
		{name: "minutes normalised", parse: ParseDuration, input: "PT90M", want: "PT1H30M"},
		{name: "zero duration", parse: ParseDuration, input: "PT0S", want: "PT0S"},
		{name: "fractional seconds", parse: ParseDuration, input: "PT1.5S", want: "PT1.5S"},
		{name: "negative", parse: ParseDuration, input: "-P2D", want: "-P2D"},
		{name: "years and months", parse: ParseDuration, input: "P1Y2M", want: "P1Y2M"},
		{name: "months normalised", parse: ParseDuration, input: "P14M", want: "P1Y2M"},
		{name: "zero months", parse: ParseDuration, input: "P0M", want: "P0M"},
		{name: "mixed", parse: ParseDuration, input: "P1Y1D", wantErr: true},
		{name: "empty", parse: ParseDuration, input: "P", wantErr: true},
		{name: "dangling T", parse: ParseDuration, input: "P1DT", wantErr: true},
		{name: "largest days", parse: ParseDuration, input: "P106751D", want: "P106751D"},
		{name: "days out of range", parse: ParseDuration, input: "P300000D", wantErr: true},
		{name: "hours out of range", parse: ParseDuration, input: "PT9999999999H", wantErr: true},
		{name: "years out of range", parse: ParseDuration, input: "P99999999999999999999Y", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %s", tt.input, v)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tt.input, err)
			}
			if got := v.String(); got != tt.want {
				t.Errorf("parse %q = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func parseDateValue(s string) (Value, error)     { return ParseDate(s) }
func parseTimeValue(s string) (Value, error)     { return ParseTime(s) }
func parseDateTimeValue(s string) (Value, error) { return ParseDateTime(s) }

// TestTemporalArithmetic verifies calendar arithmetic including month-end
// clamping
func TestTemporalArithmetic(t *testing.T) {
	runEvalCases(t, NewInterpreter(), nil, []evalCase{
		{name: "month end clamps", expr: `@"2024-01-31" + @"P1M"`, want: "2024-02-29"},
		{name: "month end clamps non leap", expr: `@"2023-01-31" + @"P1M"`, want: "2023-02-28"},
		{name: "add years", expr: `@"2024-02-29" + @"P1Y"`, want: "2025-02-28"},
		{name: "subtract months", expr: `@"2024-03-31" - @"P1M"`, want: "2024-02-29"},
		{name: "add days", expr: `@"2024-12-31" + @"P1D"`, want: "2025-01-01"},
		{name: "date difference", expr: `date("2024-03-10") - date("2024-03-01")`, want: "P9D"},
		{name: "date time difference", expr: `@"2024-01-01T12:00:00" - @"2024-01-01T10:30:00"`, want: "PT1H30M"},
		{name: "time plus duration", expr: `time("10:30:00") + @"PT45M"`, want: "11:15:00"},
		{name: "time wraps", expr: `time("23:30:00") + @"PT1H"`, want: "00:30:00"},
		{name: "duration sum", expr: `@"P1D" + @"PT12H"`, want: "P1DT12H"},
		{name: "duration scaled", expr: `@"P1Y" * 2`, want: "P2Y"},
		{name: "months plus days", expr: `@"P1M" + @"P1D"`, want: "null"},
		{name: "date and duration order", expr: `@"P1D" + @"2024-01-01"`, want: "2024-01-02"},
	})
}

// TestDurationOverflow verifies results outside the days and time range are
// null instead of wrapping around
func TestDurationOverflow(t *testing.T) {
	runEvalCases(t, NewInterpreter(), nil, []evalCase{
		{name: "conversion", expr: `duration("P300000D")`, want: "null"},
		{name: "date span", expr: `date("0001-01-01") - date("9999-01-01")`, want: "null"},
		{name: "date time span", expr: `@"9999-01-01T00:00:00" - @"0001-01-01T00:00:00"`, want: "null"},
		{name: "date span in range", expr: `date("2000-01-01") - date("1800-01-01")`, want: "P73048D"},
		{name: "sum", expr: `@"P106751D" + @"P106751D"`, want: "null"},
		{name: "difference", expr: `@"-P106751D" - @"P106751D"`, want: "null"},
		{name: "scaled", expr: `@"P100000D" * 3`, want: "null"},
	})
}

// TestTemporalComparison verifies ordering across temporal kinds
func TestTemporalComparison(t *testing.T) {
	runEvalCases(t, NewInterpreter(), nil, []evalCase{
		{name: "dates", expr: `@"2024-01-01" < @"2024-01-02"`, want: "true"},
		{name: "date promoted", expr: `@"2024-01-01" < @"2024-01-01T10:00:00"`, want: "true"},
		{name: "date equals midnight", expr: `@"2024-01-01" = @"2024-01-01T00:00:00"`, want: "true"},
		{name: "zoned instants", expr: `@"2024-01-01T10:00:00+01:00" = @"2024-01-01T09:00:00Z"`, want: "true"},
		{name: "durations", expr: `@"PT1H" < @"P1D"`, want: "true"},
		{name: "different duration kinds", expr: `@"P1M" < @"P1D"`, want: "null"},
		{name: "date against number", expr: `@"2024-01-01" < 5`, want: "null"},
	})
}

// TestTemporalComponents verifies property access on temporal values
func TestTemporalComponents(t *testing.T) {
	runEvalCases(t, NewInterpreter(), nil, []evalCase{
		{name: "year", expr: `date("2024-05-17").year`, want: "2024"},
		{name: "month", expr: `date("2024-05-17").month`, want: "5"},
		{name: "weekday", expr: `date("2024-05-17").weekday`, want: "5"},
		{name: "hour", expr: `@"2024-05-17T10:30:15".hour`, want: "10"},
		{name: "second", expr: `time("10:30:15").second`, want: "15"},
		{name: "offset", expr: `time("10:30:00+02:00").time offset`, want: "PT2H"},
		{name: "unzoned offset", expr: `time("10:30:00").time offset`, want: "null"},
		{name: "years", expr: `@"P1Y2M".years`, want: "1"},
		{name: "months", expr: `@"P1Y2M".months`, want: "2"},
		{name: "days", expr: `@"P1DT2H".days`, want: "1"},
		{name: "hours", expr: `@"P1DT2H".hours`, want: "2"},
		{name: "unknown component", expr: `date("2024-05-17").hour`, want: "null"},
	})
}

// TestNewDate verifies calendar validation
func TestNewDate(t *testing.T) {
	if _, ok := NewDate(2024, time.February, 30); ok {
		t.Error("expected February 30th to be rejected")
	}
	d, ok := NewDate(2024, time.February, 29)
	if !ok {
		t.Fatal("expected leap day to be accepted")
	}
	if d.String() != "2024-02-29" {
		t.Errorf("unexpected date %s", d)
	}
}
