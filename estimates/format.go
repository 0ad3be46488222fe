package estimates

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	gigabyte = 1_000_000_000
	megabyte = 1_000_000
	kilobyte = 1_000
)

// FormatBytes renders a byte count with 1000-based units. Invalid counts
// render as "0 B".
func FormatBytes(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return "0 B"
	}
	switch {
	case n >= gigabyte:
		return fixed2(n/gigabyte) + " GB"
	case n >= megabyte:
		return fixed2(n/megabyte) + " MB"
	case n >= kilobyte:
		return fixed2(n/kilobyte) + " KB"
	}
	return strconv.FormatFloat(math.Floor(n+0.5), 'f', 0, 64) + " B"
}

func FormatMs(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00 ms"
	}
	return fixed2(v) + " ms"
}

func FormatTFLOPs(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fixed(v, 3) + " TFLOPs"
}

func fixed2(v float64) string {
	return fixed(v, 2)
}

// fixed rounds the exact binary value of v, ties away from zero, so 1.005
// (stored as 1.00499...) renders as "1.00".
func fixed(v float64, places int32) string {
	return decimal.NewFromFloatWithExponent(v, -places).StringFixed(places)
}
