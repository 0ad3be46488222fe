package rows

import (
	"math"
	"sort"
)

const (
	maxDistinct     = 300
	maxDistinctText = 120
)

type ColumnType string

const (
	TypeEmpty   ColumnType = "empty"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
	TypeString  ColumnType = "string"
	TypeMixed   ColumnType = "mixed"
)

type ColumnProfile struct {
	Column       string     `json:"column"`
	InferredType ColumnType `json:"inferred_type"`
	NonNull      int        `json:"non_null_sampled"`
	Null         int        `json:"null_sampled"`
	Distinct     int        `json:"distinct_sampled"`
	Min          *float64   `json:"sample_min"`
	Max          *float64   `json:"sample_max"`
}

type columnStats struct {
	nonNull, nulls         int
	numeric, boolean, text int
	distinct               map[string]struct{}
	min, max               float64
}

func (s *columnStats) observe(f float64) {
	s.numeric++
	s.min = math.Min(s.min, f)
	s.max = math.Max(s.max, f)
}

func (s *columnStats) inferType() ColumnType {
	switch {
	case s.nonNull == 0:
		return TypeEmpty
	case s.numeric == s.nonNull:
		return TypeNumber
	case s.boolean == s.nonNull:
		return TypeBoolean
	case s.text == s.nonNull:
		return TypeString
	}
	return TypeMixed
}

// Columns returns the sorted union of keys across rows.
func Columns(rows []Row) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for key := range row {
			seen[key] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}
	sort.Strings(columns)
	return columns
}

// BuildColumnProfiles infers a type and basic ranges for every column seen in
// rows. Strings that parse as numbers count as numbers.
func BuildColumnProfiles(rows []Row) []ColumnProfile {
	columns := Columns(rows)
	profiles := make([]ColumnProfile, 0, len(columns))
	for _, column := range columns {
		stats := &columnStats{
			distinct: map[string]struct{}{},
			min:      math.Inf(1),
			max:      math.Inf(-1),
		}
		for _, row := range rows {
			value := row[column]
			if value == nil || value == "" {
				stats.nulls++
				continue
			}
			stats.nonNull++

			if len(stats.distinct) < maxDistinct {
				key := []rune(Stringify(value))
				if len(key) > maxDistinctText {
					key = key[:maxDistinctText]
				}
				stats.distinct[string(key)] = struct{}{}
			}

			if f, ok := isNumeric(value); ok {
				if finite(f) {
					stats.observe(f)
				} else {
					stats.text++
				}
				continue
			}
			switch x := value.(type) {
			case bool:
				stats.boolean++
			case string:
				if f, ok := ToNumber(x); ok {
					stats.observe(f)
				} else {
					stats.text++
				}
			default:
				stats.text++
			}
		}

		profile := ColumnProfile{
			Column:       column,
			InferredType: stats.inferType(),
			NonNull:      stats.nonNull,
			Null:         stats.nulls,
			Distinct:     len(stats.distinct),
		}
		if finite(stats.min) {
			lo := stats.min
			profile.Min = &lo
		}
		if finite(stats.max) {
			hi := stats.max
			profile.Max = &hi
		}
		profiles = append(profiles, profile)
	}
	return profiles
}

// NumericColumns lists the profiled columns inferred as numbers.
func NumericColumns(profiles []ColumnProfile) []string {
	var out []string
	for _, p := range profiles {
		if p.InferredType == TypeNumber {
			out = append(out, p.Column)
		}
	}
	return out
}
