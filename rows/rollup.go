package rows

import (
	"fmt"
	"math"
	"sort"
)

type Aggregate string

const (
	AggCount Aggregate = "count"
	AggSum   Aggregate = "sum"
	AggMean  Aggregate = "mean"
	AggMin   Aggregate = "min"
	AggMax   Aggregate = "max"
)

const (
	DefaultMaxGroups = 30
	MissingGroup     = "(missing)"
	AllRowsGroup     = "(all rows)"

	maxGroupLabel = 48
)

func ParseAggregate(s string) (Aggregate, error) {
	switch a := Aggregate(s); a {
	case AggCount, AggSum, AggMean, AggMin, AggMax:
		return a, nil
	}
	return "", fmt.Errorf("unknown aggregate %q (expected count, sum, mean, min or max)", s)
}

// bucket accumulates one group. ValueCount only counts finite metrics.
type bucket struct {
	key        string
	count      int
	sum        float64
	valueCount int
	min, max   float64
}

func newBucket(key string) *bucket {
	return &bucket{key: key, min: math.Inf(1), max: math.Inf(-1)}
}

func (b *bucket) add(metric float64, ok bool) {
	b.count++
	if !ok {
		return
	}
	b.sum += metric
	b.valueCount++
	b.min = math.Min(b.min, metric)
	b.max = math.Max(b.max, metric)
}

func (b *bucket) value(agg Aggregate) float64 {
	switch agg {
	case AggCount:
		return float64(b.count)
	case AggSum:
		return b.sum
	case AggMean:
		if b.valueCount > 0 {
			return b.sum / float64(b.valueCount)
		}
	case AggMin:
		if finite(b.min) {
			return b.min
		}
	case AggMax:
		if finite(b.max) {
			return b.max
		}
	}
	return math.NaN()
}

// groups keeps buckets in first-seen order.
type groups struct {
	order []*bucket
	index map[string]*bucket
}

func newGroups() *groups {
	return &groups{index: map[string]*bucket{}}
}

func (g *groups) get(key string) *bucket {
	b, ok := g.index[key]
	if !ok {
		b = newBucket(key)
		g.index[key] = b
		g.order = append(g.order, b)
	}
	return b
}

func groupKey(row Row, column string) string {
	v, ok := ReadPath(row, column)
	if !ok || v == nil {
		return MissingGroup
	}
	key := Stringify(v)
	if key == "" {
		return MissingGroup
	}
	return key
}

type RollupRow struct {
	Group     string  `json:"group"`
	FullGroup string  `json:"full_group"`
	Value     float64 `json:"value"`
	Count     int     `json:"count"`
}

// BuildRollup groups rows by groupColumn (one group when empty) and reduces
// metricColumn with agg. Groups whose value is not finite are dropped; the
// rest are sorted by value descending, keeping first-seen order on ties, and
// truncated to maxGroups (DefaultMaxGroups when <= 0).
func BuildRollup(rows []Row, groupColumn, metricColumn string, agg Aggregate, maxGroups int) []RollupRow {
	if maxGroups <= 0 {
		maxGroups = DefaultMaxGroups
	}

	g := newGroups()
	for _, row := range rows {
		key := AllRowsGroup
		if groupColumn != "" {
			key = groupKey(row, groupColumn)
		}
		v, _ := ReadPath(row, metricColumn)
		metric, ok := ToNumber(v)
		g.get(key).add(metric, ok)
	}

	out := make([]RollupRow, 0, len(g.order))
	for _, b := range g.order {
		value := b.value(agg)
		if !finite(value) {
			continue
		}
		out = append(out, RollupRow{
			Group:     truncateLabel(b.key),
			FullGroup: b.key,
			Value:     value,
			Count:     b.count,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > maxGroups {
		out = out[:maxGroups]
	}
	return out
}

func truncateLabel(s string) string {
	r := []rune(s)
	if len(r) > maxGroupLabel {
		return string(r[:maxGroupLabel-3]) + "..."
	}
	return s
}

type PivotRow struct {
	X     string  `json:"x"`
	Split string  `json:"split"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// AggregatePivot reduces yKey over every (xKey, colorKey) pair. An empty
// colorKey or "(none)" puts every row of an x value into the "all" split.
func AggregatePivot(rows []Row, xKey, yKey, colorKey string, agg Aggregate, topN int) []PivotRow {
	type cell struct {
		x, split string
		b        *bucket
	}
	var cells []*cell
	index := map[[2]string]*cell{}

	for _, row := range rows {
		x := groupKey(row, xKey)
		split := "all"
		if colorKey != "" && colorKey != "(none)" {
			split = groupKey(row, colorKey)
		}
		k := [2]string{x, split}
		c, ok := index[k]
		if !ok {
			c = &cell{x: x, split: split, b: newBucket(x)}
			index[k] = c
			cells = append(cells, c)
		}
		v, _ := ReadPath(row, yKey)
		metric, ok := ToNumber(v)
		c.b.add(metric, ok)
	}

	// cells are appended in encounter order of (x, split); regroup by x first
	// so every split of one x stays adjacent.
	byX := newGroups()
	splits := map[string][]*cell{}
	for _, c := range cells {
		byX.get(c.x)
		splits[c.x] = append(splits[c.x], c)
	}

	var out []PivotRow
	for _, xb := range byX.order {
		for _, c := range splits[xb.key] {
			value := c.b.value(agg)
			if !finite(value) {
				continue
			}
			out = append(out, PivotRow{X: c.x, Split: c.split, Value: value, Count: c.b.count})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
