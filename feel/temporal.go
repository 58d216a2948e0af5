package feel

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Date is a calendar date without a time of day.
type Date struct {
	t time.Time // midnight UTC
}

// NewDate validates and builds a date. ok is false for dates such as
// February 30th.
func NewDate(year int, month time.Month, day int) (Date, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, false
	}
	return Date{t: t}, true
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Time returns the date as midnight UTC.
func (d Date) Time() time.Time { return d.t }

func (Date) Kind() Kind { return KindDate }

func (d Date) String() string {
	return formatDate(d.t)
}

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }
func (Date) feelValue()                     {}

// Time is a time of day, optionally with an offset or zone.
type Time struct {
	t     time.Time // on 1970-01-01
	zoned bool
}

// NewTime builds a time of day. A nil location yields a local time without
// zone information.
func NewTime(hour, minute, second, nanos int, loc *time.Location) (Time, bool) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return Time{}, false
	}
	zoned := loc != nil
	if loc == nil {
		loc = time.UTC
	}
	return Time{t: time.Date(1970, 1, 1, hour, minute, second, nanos, loc), zoned: zoned}, true
}

func (t Time) Zoned() bool { return t.zoned }

func (Time) Kind() Kind { return KindTime }

func (t Time) String() string {
	return formatClock(t.t) + formatZone(t.t, t.zoned)
}

func (t Time) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }
func (Time) feelValue()                     {}

// secondsOfDay is used for ordering; zoned times are normalised to UTC.
func (t Time) secondsOfDay() time.Duration {
	u := t.t
	if t.zoned {
		u = u.UTC()
	}
	return time.Duration(u.Hour())*time.Hour + time.Duration(u.Minute())*time.Minute +
		time.Duration(u.Second())*time.Second + time.Duration(u.Nanosecond())
}

// DateTime is a date with a time of day.
type DateTime struct {
	t     time.Time
	zoned bool
}

// NewDateTime wraps t. Values without zone information compare as UTC.
func NewDateTime(t time.Time, zoned bool) DateTime {
	if !zoned {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	}
	return DateTime{t: t, zoned: zoned}
}

func (dt DateTime) Time() time.Time { return dt.t }
func (dt DateTime) Zoned() bool     { return dt.zoned }

func (DateTime) Kind() Kind { return KindDateTime }

func (dt DateTime) String() string {
	return formatDate(dt.t) + "T" + formatClock(dt.t) + formatZone(dt.t, dt.zoned)
}

func (dt DateTime) MarshalJSON() ([]byte, error) { return json.Marshal(dt.String()) }
func (DateTime) feelValue()                      {}

// YearsMonthsDuration is a calendar duration counted in months.
type YearsMonthsDuration struct {
	months int64
}

func NewYearsMonthsDuration(months int64) YearsMonthsDuration {
	return YearsMonthsDuration{months: months}
}

func (d YearsMonthsDuration) Months() int64 { return d.months }

func (YearsMonthsDuration) Kind() Kind { return KindYearsMonthsDuration }

func (d YearsMonthsDuration) String() string {
	m := d.months
	var sb strings.Builder
	if m < 0 {
		sb.WriteByte('-')
		m = -m
	}
	sb.WriteByte('P')
	if y := m / 12; y > 0 {
		sb.WriteString(strconv.FormatInt(y, 10))
		sb.WriteByte('Y')
	}
	if mm := m % 12; mm > 0 || m == 0 {
		sb.WriteString(strconv.FormatInt(mm, 10))
		sb.WriteByte('M')
	}
	return sb.String()
}

func (d YearsMonthsDuration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }
func (YearsMonthsDuration) feelValue()                     {}

// DaysTimeDuration is an exact duration.
type DaysTimeDuration struct {
	d time.Duration
}

func NewDaysTimeDuration(d time.Duration) DaysTimeDuration {
	return DaysTimeDuration{d: d}
}

func (d DaysTimeDuration) Duration() time.Duration { return d.d }

func (DaysTimeDuration) Kind() Kind { return KindDaysTimeDuration }

func (d DaysTimeDuration) String() string {
	v := d.d
	var sb strings.Builder
	if v < 0 {
		sb.WriteByte('-')
		v = -v
	}
	sb.WriteByte('P')
	days := v / (24 * time.Hour)
	v -= days * 24 * time.Hour
	if days > 0 {
		sb.WriteString(strconv.FormatInt(int64(days), 10))
		sb.WriteByte('D')
	}
	if v == 0 {
		if days == 0 {
			sb.WriteString("T0S")
		}
		return sb.String()
	}
	sb.WriteByte('T')
	h := v / time.Hour
	v -= h * time.Hour
	m := v / time.Minute
	v -= m * time.Minute
	if h > 0 {
		sb.WriteString(strconv.FormatInt(int64(h), 10))
		sb.WriteByte('H')
	}
	if m > 0 {
		sb.WriteString(strconv.FormatInt(int64(m), 10))
		sb.WriteByte('M')
	}
	if v > 0 {
		secs := strconv.FormatFloat(v.Seconds(), 'f', -1, 64)
		sb.WriteString(secs)
		sb.WriteByte('S')
	}
	return sb.String()
}

func (d DaysTimeDuration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }
func (DaysTimeDuration) feelValue()                     {}

func formatDate(t time.Time) string {
	y := t.Year()
	if y < 0 {
		return fmt.Sprintf("-%04d-%02d-%02d", -y, int(t.Month()), t.Day())
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, int(t.Month()), t.Day())
}

func formatClock(t time.Time) string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
	if ns := t.Nanosecond(); ns > 0 {
		frac := strings.TrimRight(fmt.Sprintf("%09d", ns), "0")
		s += "." + frac
	}
	return s
}

func formatZone(t time.Time, zoned bool) string {
	if !zoned {
		return ""
	}
	if name := t.Location().String(); strings.Contains(name, "/") {
		return "@" + name
	}
	_, offset := t.Zone()
	if offset == 0 {
		return "Z"
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d:%02d", sign, offset/3600, (offset%3600)/60)
}

var (
	dateRe     = regexp.MustCompile(`^(-?\d{4,9})-(\d{2})-(\d{2})$`)
	timeRe     = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})(\.\d{1,9})?(Z|[+-]\d{2}:\d{2}|@[A-Za-z][A-Za-z0-9_/+-]*)?$`)
	durationRe = regexp.MustCompile(`^(-)?P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
)

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	m := dateRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	date, ok := NewDate(y, time.Month(mo), d)
	if !ok {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return date, nil
}

// parseClock parses the time-of-day part shared by times and date-times.
func parseClock(s string) (h, mi, sec, ns int, loc *time.Location, err error) {
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, 0, 0, nil, fmt.Errorf("invalid time %q", s)
	}
	h, _ = strconv.Atoi(m[1])
	mi, _ = strconv.Atoi(m[2])
	sec, _ = strconv.Atoi(m[3])
	if h > 23 || mi > 59 || sec > 59 {
		return 0, 0, 0, 0, nil, fmt.Errorf("invalid time %q", s)
	}
	if m[4] != "" {
		frac := (m[4][1:] + "000000000")[:9]
		ns, _ = strconv.Atoi(frac)
	}
	zone := m[5]
	switch {
	case zone == "":
	case zone == "Z":
		loc = time.UTC
	case zone[0] == '@':
		loc, err = time.LoadLocation(zone[1:])
		if err != nil {
			return 0, 0, 0, 0, nil, fmt.Errorf("invalid time zone %q: %w", zone[1:], err)
		}
	default:
		oh, _ := strconv.Atoi(zone[1:3])
		om, _ := strconv.Atoi(zone[4:6])
		offset := oh*3600 + om*60
		if zone[0] == '-' {
			offset = -offset
		}
		loc = time.FixedZone("", offset)
	}
	return h, mi, sec, ns, loc, nil
}

// ParseTime parses "hh:mm:ss[.fff][Z|±hh:mm|@zone]".
func ParseTime(s string) (Time, error) {
	h, mi, sec, ns, loc, err := parseClock(strings.TrimSpace(s))
	if err != nil {
		return Time{}, err
	}
	t, ok := NewTime(h, mi, sec, ns, loc)
	if !ok {
		return Time{}, fmt.Errorf("invalid time %q", s)
	}
	return t, nil
}

// ParseDateTime parses "YYYY-MM-DDThh:mm:ss[...]". A bare date is accepted
// and yields midnight.
func ParseDateTime(s string) (DateTime, error) {
	s = strings.TrimSpace(s)
	datePart, clockPart, found := strings.Cut(s, "T")
	d, err := ParseDate(datePart)
	if err != nil {
		return DateTime{}, fmt.Errorf("invalid date and time %q", s)
	}
	if !found {
		return NewDateTime(d.t, false), nil
	}
	h, mi, sec, ns, loc, err := parseClock(clockPart)
	if err != nil {
		return DateTime{}, fmt.Errorf("invalid date and time %q", s)
	}
	zoned := loc != nil
	if loc == nil {
		loc = time.UTC
	}
	t := time.Date(d.t.Year(), d.t.Month(), d.t.Day(), h, mi, sec, ns, loc)
	return DateTime{t: t, zoned: zoned}, nil
}

// ParseDuration parses an ISO 8601 duration. Durations with only years and
// months are YearsMonthsDuration; durations with only days and time parts
// are DaysTimeDuration; mixing both is rejected.
func ParseDuration(s string) (Value, error) {
	s = strings.TrimSpace(s)
	m := durationRe.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "-P" || strings.HasSuffix(s, "T") {
		return nil, fmt.Errorf("invalid duration %q", s)
	}
	neg := m[1] == "-"
	hasYM := m[2] != "" || m[3] != ""
	hasDT := m[4] != "" || m[5] != "" || m[6] != "" || m[7] != "" || m[8] != ""
	if hasYM && hasDT {
		return nil, fmt.Errorf("duration %q mixes years/months with days/time", s)
	}
	if hasYM {
		months, ok := sumUnits(neg, unit{m[2], 12}, unit{m[3], 1})
		if !ok {
			return nil, fmt.Errorf("duration %q is out of range", s)
		}
		return YearsMonthsDuration{months: months}, nil
	}
	nanos, ok := sumUnits(neg,
		unit{m[4], int64(7 * 24 * time.Hour)},
		unit{m[5], int64(24 * time.Hour)},
		unit{m[6], int64(time.Hour)},
		unit{m[7], int64(time.Minute)},
		unit{m[8], int64(time.Second)},
	)
	if !ok {
		return nil, fmt.Errorf("duration %q is out of range", s)
	}
	return DaysTimeDuration{d: time.Duration(nanos)}, nil
}

// unit is one component of an ISO-8601 duration and the number of base
// units it stands for
type unit struct {
	text  string
	scale int64
}

// sumUnits adds up duration components as decimals. ok is false when the
// total does not fit in an int64.
func sumUnits(neg bool, units ...unit) (int64, bool) {
	total := new(apd.Decimal)
	for _, u := range units {
		if u.text == "" {
			continue
		}
		n, _, err := apd.NewFromString(u.text)
		if err != nil {
			return 0, false
		}
		if _, err := decimalContext.Mul(n, n, apd.New(u.scale, 0)); err != nil {
			return 0, false
		}
		if _, err := decimalContext.Add(total, total, n); err != nil {
			return 0, false
		}
	}
	if neg {
		total.Neg(total)
	}
	var i apd.Decimal
	if _, err := truncContext.RoundToIntegralValue(&i, total); err != nil {
		return 0, false
	}
	v, err := i.Int64()
	if err != nil || v == math.MinInt64 {
		return 0, false
	}
	return v, true
}

// addDurations adds two nanosecond counts, ok is false on overflow
func addDurations(a, b time.Duration) (time.Duration, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) || sum == math.MinInt64 {
		return 0, false
	}
	return sum, true
}

// spanBetween returns a - b, ok is false when the span exceeds what a
// DaysTimeDuration can hold (about 292 years)
func spanBetween(a, b time.Time) (time.Duration, bool) {
	d := a.Sub(b)
	if d == math.MaxInt64 || d == math.MinInt64 || !b.Add(d).Equal(a) {
		return 0, false
	}
	return d, true
}

// addMonths adds calendar months, clamping the day to the end of the target
// month (January 31st plus one month is February 28th or 29th).
func addMonths(t time.Time, months int64) time.Time {
	total := int64(t.Year())*12 + int64(t.Month()-1) + months
	y := floorDiv(total, 12)
	mo := time.Month(total-y*12) + 1
	day := t.Day()
	if last := daysIn(int(y), mo); day > last {
		day = last
	}
	return time.Date(int(y), mo, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// monthsBetween counts whole months from a to b, truncated toward zero.
func monthsBetween(a, b time.Time) int64 {
	months := int64(b.Year()-a.Year())*12 + int64(b.Month()-a.Month())
	if months > 0 && addMonths(a, months).After(b) {
		months--
	} else if months < 0 && addMonths(a, months).Before(b) {
		months++
	}
	return months
}

// temporalInstant promotes dates to midnight UTC so dates and date-times
// can be compared and subtracted.
func temporalInstant(v Value) (time.Time, bool) {
	switch t := v.(type) {
	case Date:
		return t.t, true
	case DateTime:
		return t.t, true
	}
	return time.Time{}, false
}

// isoWeekday maps Monday..Sunday to 1..7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// temporalComponent implements path access such as d.year or dur.months.
func temporalComponent(v Value, name string) (Value, bool) {
	switch t := v.(type) {
	case Date:
		return dateComponent(t.t, name)
	case DateTime:
		if c, ok := dateComponent(t.t, name); ok {
			return c, true
		}
		return clockComponent(t.t, t.zoned, name)
	case Time:
		return clockComponent(t.t, t.zoned, name)
	case YearsMonthsDuration:
		switch name {
		case "years":
			return NewNumber(t.months / 12), true
		case "months":
			return NewNumber(t.months % 12), true
		}
	case DaysTimeDuration:
		d := t.d
		switch name {
		case "days":
			return NewNumber(int64(d / (24 * time.Hour))), true
		case "hours":
			return NewNumber(int64((d % (24 * time.Hour)) / time.Hour)), true
		case "minutes":
			return NewNumber(int64((d % time.Hour) / time.Minute)), true
		case "seconds":
			return NewNumber(int64((d % time.Minute) / time.Second)), true
		}
	}
	return nil, false
}

func dateComponent(t time.Time, name string) (Value, bool) {
	switch name {
	case "year":
		return NewNumber(int64(t.Year())), true
	case "month":
		return NewNumber(int64(t.Month())), true
	case "day":
		return NewNumber(int64(t.Day())), true
	case "weekday":
		return NewNumber(int64(isoWeekday(t))), true
	}
	return nil, false
}

func clockComponent(t time.Time, zoned bool, name string) (Value, bool) {
	switch name {
	case "hour":
		return NewNumber(int64(t.Hour())), true
	case "minute":
		return NewNumber(int64(t.Minute())), true
	case "second":
		return NewNumber(int64(t.Second())), true
	case "time offset":
		if !zoned {
			return Null, true
		}
		_, offset := t.Zone()
		return DaysTimeDuration{d: time.Duration(offset) * time.Second}, true
	case "timezone":
		if !zoned {
			return Null, true
		}
		if zone := t.Location().String(); strings.Contains(zone, "/") {
			return String(zone), true
		}
		return Null, true
	}
	return nil, false
}
