package rows

import (
	"math"
	"regexp"
	"strconv"
)

var (
	runStampPattern  = regexp.MustCompile(`_(\d{8}_\d{6})$`)
	runNumberPattern = regexp.MustCompile(`(\d+)$`)
)

// NormalizeRunLabel strips a trailing _YYYYMMDD_HHMMSS stamp from a run name.
func NormalizeRunLabel(runName string) string {
	if runName == "" {
		return "unknown"
	}
	return runStampPattern.ReplaceAllString(runName, "")
}

func ParseRunStamp(runName string) string {
	if m := runStampPattern.FindStringSubmatch(runName); m != nil {
		return m[1]
	}
	return ""
}

// RunNumber is the trailing integer of a run name, NaN when there is none.
func RunNumber(name string) float64 {
	m := runNumberPattern.FindStringSubmatch(name)
	if m == nil {
		return math.NaN()
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

func Dedupe[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
