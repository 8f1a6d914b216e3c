package provider

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// The provider returns the same logical field as a number in one payload and
// a string in the next ("12", "12,500", "183*", "-", "N/A"). The types below
// decode any of those without ever failing: unparseable input just leaves the
// value absent, so one odd field never sinks a whole payload.

// Int is a lenient integer.
type Int struct {
	V     int64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int) UnmarshalJSON(b []byte) error {
	*i = Int{}
	if s, ok := scalar(b); ok {
		*i = ParseInt(s)
	}
	return nil
}

// Ptr returns the value as *int64, nil when absent.
func (i Int) Ptr() *int64 {
	if !i.Valid {
		return nil
	}
	v := i.V
	return &v
}

// IntPtr returns the value as *int, nil when absent.
func (i Int) IntPtr() *int {
	if !i.Valid {
		return nil
	}
	v := int(i.V)
	return &v
}

// Float is a lenient float.
type Float struct {
	V     float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	*f = Float{}
	if s, ok := scalar(b); ok {
		if v, ok := ParseNumber(s); ok {
			*f = Float{V: v, Valid: true}
		}
	}
	return nil
}

// Ptr returns the value as *float64, nil when absent.
func (f Float) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.V
	return &v
}

// Text is a lenient string: numbers and booleans decode to their literal
// text, objects and arrays decode to empty.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	s, _ := scalar(b)
	*t = Text(strings.TrimSpace(s))
	return nil
}

// Bool is a lenient tri-state boolean.
type Bool struct {
	V     bool
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Bool) UnmarshalJSON(b []byte) error {
	*v = Bool{}
	s, ok := scalar(b)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		*v = Bool{V: true, Valid: true}
	case "false", "no", "n", "0":
		*v = Bool{V: false, Valid: true}
	default:
		if n, ok := ParseNumber(s); ok {
			*v = Bool{V: n != 0, Valid: true}
		}
	}
	return nil
}

// Ptr returns the value as *bool, nil when absent.
func (v Bool) Ptr() *bool {
	if !v.Valid {
		return nil
	}
	b := v.V
	return &b
}

// Date is a calendar date normalized to "YYYY-MM-DD", empty when absent.
type Date string

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	s, _ := scalar(b)
	*d = Date(ToDate(s))
	return nil
}

// Object decodes a JSON object into T. Any other JSON value (a string where
// an object was expected, an empty array) leaves it invalid instead of
// failing the enclosing decode.
type Object[T any] struct {
	V     T
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Object[T]) UnmarshalJSON(b []byte) error {
	*o = Object[T]{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var v T
	if err := sonic.Unmarshal(b, &v); err != nil {
		return nil
	}
	*o = Object[T]{V: v, Valid: true}
	return nil
}

// List decodes a JSON array of T, dropping elements that do not decode.
// Non-array input yields an empty list.
type List[T any] []T

// UnmarshalJSON implements json.Unmarshaler.
func (l *List[T]) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		return nil
	}
	var raws []json.RawMessage
	if err := sonic.Unmarshal(b, &raws); err != nil {
		return nil
	}
	out := make([]T, 0, len(raws))
	for _, r := range raws {
		var v T
		if err := sonic.Unmarshal(r, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	*l = out
	return nil
}

// Dict decodes a JSON object of T values keyed by string, dropping values
// that do not decode. Non-object input yields an empty map.
type Dict[T any] map[string]T

// UnmarshalJSON implements json.Unmarshaler.
func (d *Dict[T]) UnmarshalJSON(b []byte) error {
	*d = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var raws map[string]json.RawMessage
	if err := sonic.Unmarshal(b, &raws); err != nil {
		return nil
	}
	out := make(Dict[T], len(raws))
	for k, r := range raws {
		var v T
		if err := sonic.Unmarshal(r, &v); err != nil {
			continue
		}
		out[k] = v
	}
	*d = out
	return nil
}

// --------------------------------------------------------------------------
// Parsing helpers
// --------------------------------------------------------------------------

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 10_000_000_000

var missingMarkers = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"n/a":  true,
	"na":   true,
	"null": true,
	"none": true,
}

// ParseNumber parses a provider numeric cell. Thousands separators, a
// trailing not-out asterisk, and surrounding space are tolerated.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "*")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if missingMarkers[strings.ToLower(s)] {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseInt parses a provider integer cell; fractional input is truncated.
func ParseInt(s string) Int {
	f, ok := ParseNumber(s)
	if !ok {
		return Int{}
	}
	return Int{V: int64(f), Valid: true}
}

// ToDate converts epoch seconds, epoch milliseconds, or an ISO-like string
// into "YYYY-MM-DD". Anything else yields "".
func ToDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return ""
		}
		var t time.Time
		if n > epochMillisThreshold {
			t = time.UnixMilli(n)
		} else {
			t = time.Unix(n, 0)
		}
		return t.UTC().Format(time.DateOnly)
	}
	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		if _, err := time.Parse(time.DateOnly, s[:10]); err == nil {
			return s[:10]
		}
	}
	return ""
}

// Round rounds f to the given number of decimal places.
func Round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// --------------------------------------------------------------------------
// Alternate-key selection
// --------------------------------------------------------------------------

// FirstInt returns the first valid value, in priority order.
func FirstInt(vals ...Int) Int {
	for _, v := range vals {
		if v.Valid {
			return v
		}
	}
	return Int{}
}

// FirstFloat returns the first valid value, in priority order.
func FirstFloat(vals ...Float) Float {
	for _, v := range vals {
		if v.Valid {
			return v
		}
	}
	return Float{}
}

// FirstText returns the first non-empty value, in priority order.
func FirstText(vals ...Text) string {
	for _, v := range vals {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

// FirstDate returns the first non-empty date, in priority order.
func FirstDate(vals ...Date) string {
	for _, v := range vals {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

// scalar extracts the textual form of a JSON scalar. Objects, arrays, and
// null report ok=false.
func scalar(b []byte) (string, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", false
	}
	switch b[0] {
	case '{', '[':
		return "", false
	case '"':
		var s string
		if err := sonic.Unmarshal(b, &s); err != nil {
			return "", false
		}
		return s, true
	default:
		return string(b), true
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
