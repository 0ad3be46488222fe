package rows

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Row is one normalized record keyed by column name. Values may be nested
// maps when the source kept structure, so lookups go through ReadPath.
type Row map[string]interface{}

const maxSafeInteger = 1<<53 - 1

// ReadPath returns row[path] when the key exists verbatim, otherwise walks the
// dotted path through nested maps.
func ReadPath(row Row, path string) (interface{}, bool) {
	if row == nil {
		return nil, false
	}
	if v, ok := row[path]; ok {
		return v, true
	}
	var current interface{} = map[string]interface{}(row)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case Row:
		return m, true
	case map[string]interface{}:
		return m, true
	}
	return nil, false
}

// ToNumber coerces v to a finite float64. nil, blank strings, unparseable
// values and non-finite numbers report false.
func ToNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return 0, false
		}
		v = x
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NumberOr is ToNumber with a fallback for invalid values.
func NumberOr(v interface{}, fallback float64) float64 {
	if f, ok := ToNumber(v); ok {
		return f
	}
	return fallback
}

// PickNumber returns the first candidate path holding a finite number.
func PickNumber(row Row, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := ReadPath(row, key)
		if !ok {
			continue
		}
		if f, ok := ToNumber(v); ok {
			return f, true
		}
	}
	return 0, false
}

// PickNumberOr is PickNumber with a fallback, usually math.NaN().
func PickNumberOr(row Row, fallback float64, keys ...string) float64 {
	if f, ok := PickNumber(row, keys...); ok {
		return f
	}
	return fallback
}

// PickString returns the first candidate path holding a non-blank value.
func PickString(row Row, fallback string, keys ...string) string {
	for _, key := range keys {
		v, ok := ReadPath(row, key)
		if !ok || v == nil {
			continue
		}
		if text := strings.TrimSpace(Stringify(v)); text != "" {
			return text
		}
	}
	return fallback
}

// Stringify renders a scalar the way it would appear in a table cell key.
func Stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]interface{}, Row, []interface{}:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

// NormalizeValue flattens v into a scalar: nested values become JSON text,
// times become ISO-8601 and integers beyond float64 precision become strings.
func NormalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		if x > maxSafeInteger || x < -maxSafeInteger {
			return strconv.FormatInt(x, 10)
		}
		return float64(x)
	case uint64:
		if x > maxSafeInteger {
			return strconv.FormatUint(x, 10)
		}
		return float64(x)
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05.000Z")
	case map[string]interface{}, Row, []interface{}:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return v
}

// NormalizeRow applies NormalizeValue to every column. Anything that is not an
// object becomes a single "value" column.
func NormalizeRow(v interface{}) Row {
	m, ok := asMap(v)
	if !ok {
		return Row{"value": NormalizeValue(v)}
	}
	out := make(Row, len(m))
	for key, value := range m {
		out[key] = NormalizeValue(value)
	}
	return out
}

func isNumeric(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// FormatCell renders a value for a preview table.
func FormatCell(v interface{}) string {
	if v == nil {
		return ""
	}
	if f, ok := isNumeric(v); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "n/a"
		}
		if math.Abs(f) >= 1000 || math.Abs(f) < 0.01 {
			return exponential(f, 3)
		}
		return strconv.FormatFloat(f, 'f', 4, 64)
	}
	text := []rune(Stringify(v))
	if len(text) > 100 {
		return string(text[:97]) + "..."
	}
	return string(text)
}

// exponential formats like 1.235e+3, without exponent zero padding.
func exponential(f float64, digits int) string {
	s := strconv.FormatFloat(f, 'e', digits, 64)
	i := strings.IndexByte(s, 'e')
	mantissa, exp := s[:i], s[i+1:]
	sign := exp[:1]
	exp = strings.TrimLeft(exp[1:], "0")
	if exp == "" {
		exp = "0"
	}
	return mantissa + "e" + sign + exp
}
