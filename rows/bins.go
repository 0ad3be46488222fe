package rows

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrInvalidBinCount = errors.New("bin count must be at least 1")

type BinOptions struct {
	// Log10 bins in log10 space; non-positive values are dropped.
	Log10 bool
	// SkipEmpty drops buckets without values.
	SkipEmpty bool
}

// FlaggedValue is a value plus a secondary predicate, e.g. a learning rate and
// whether its step was gradient-clipped.
type FlaggedValue struct {
	Value   float64
	Flagged bool
}

type Bucket struct {
	Lo         float64 `json:"lo"`
	Hi         float64 `json:"hi"`
	Count      int     `json:"count"`
	Flagged    int     `json:"flagged"`
	PctFlagged Float   `json:"pct_flagged"`
}

func Bin(values []float64, bins int, opts BinOptions) ([]Bucket, error) {
	points := make([]FlaggedValue, len(values))
	for i, v := range values {
		points[i] = FlaggedValue{Value: v}
	}
	return BinFlagged(points, bins, opts)
}

// BinFlagged splits the value range into equal-width buckets and counts
// values and flagged values per bucket. The last bucket includes the maximum.
func BinFlagged(points []FlaggedValue, bins int, opts BinOptions) ([]Bucket, error) {
	if bins < 1 {
		return nil, ErrInvalidBinCount
	}

	kept := make([]FlaggedValue, 0, len(points))
	for _, p := range points {
		v := p.Value
		if !finite(v) || (opts.Log10 && v <= 0) {
			continue
		}
		if opts.Log10 {
			v = math.Log10(v)
		}
		kept = append(kept, FlaggedValue{Value: v, Flagged: p.Flagged})
	}
	if len(kept) == 0 {
		return []Bucket{}, nil
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Value < kept[j].Value })

	xs := make([]float64, len(kept))
	flags := make([]float64, len(kept))
	for i, p := range kept {
		xs[i] = p.Value
		if p.Flagged {
			flags[i] = 1
		}
	}

	lo, hi := xs[0], xs[len(xs)-1]
	var edges []float64
	if hi-lo > 1e-12 {
		edges = floats.Span(make([]float64, bins+1), lo, hi)
	} else {
		edges = []float64{lo, lo + 1e-6}
	}

	dividers := append([]float64(nil), edges...)
	dividers[len(dividers)-1] = math.Max(dividers[len(dividers)-1], math.Nextafter(hi, math.Inf(1)))
	counts := stat.Histogram(nil, dividers, xs, nil)
	flagged := stat.Histogram(nil, dividers, xs, flags)

	out := make([]Bucket, 0, len(counts))
	for i := range counts {
		b := Bucket{
			Lo:         edges[i],
			Hi:         edges[i+1],
			Count:      int(counts[i]),
			Flagged:    int(flagged[i]),
			PctFlagged: Float(math.NaN()),
		}
		if b.Count > 0 {
			b.PctFlagged = Float(100 * flagged[i] / counts[i])
		} else if opts.SkipEmpty {
			continue
		}
		if opts.Log10 {
			b.Lo, b.Hi = math.Pow(10, b.Lo), math.Pow(10, b.Hi)
		}
		out = append(out, b)
	}
	return out, nil
}
