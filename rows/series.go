package rows

import (
	"math"
	"sort"
)

// Point is one observation of a series, e.g. a loss value at a training step.
type Point struct {
	Series string  `json:"series"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type SmoothedPoint struct {
	Point
	Smoothed float64 `json:"smoothed"`
}

// splitSeries groups points by series in first-seen order and sorts each
// group by X. Points with a non-finite X or Y are dropped.
func splitSeries(points []Point) [][]Point {
	index := map[string]int{}
	var out [][]Point
	for _, p := range points {
		if !finite(p.X) || !finite(p.Y) {
			continue
		}
		i, ok := index[p.Series]
		if !ok {
			i = len(out)
			index[p.Series] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], p)
	}
	for _, series := range out {
		sort.SliceStable(series, func(i, j int) bool { return series[i].X < series[j].X })
	}
	return out
}

// SmoothBySeries replaces each value with the mean of the trailing
// min(i+1, window) values of its series.
func SmoothBySeries(points []Point, window int) []SmoothedPoint {
	if window < 1 {
		window = 1
	}
	out := make([]SmoothedPoint, 0, len(points))
	w := NewWindow(window)
	for _, series := range splitSeries(points) {
		w.Reset()
		for _, p := range series {
			w.Add(p.Y)
			out = append(out, SmoothedPoint{Point: p, Smoothed: w.Average()})
		}
	}
	return out
}

// PointsFromRows reads (series, x, y) triples out of rows.
func PointsFromRows(rows []Row, seriesKey, xKey, yKey string) []Point {
	points := make([]Point, 0, len(rows))
	for _, row := range rows {
		points = append(points, Point{
			Series: PickString(row, "unknown", seriesKey),
			X:      PickNumberOr(row, math.NaN(), xKey),
			Y:      PickNumberOr(row, math.NaN(), yKey),
		})
	}
	return points
}

type LossDelta struct {
	Point
	NextX Float `json:"next_x"`
	NextY Float `json:"next_y"`
	Delta Float `json:"delta"`
}

// WithLossDelta pairs each point with the next one in its series. Delta is
// Y - nextY when the next point sits exactly one step later, NaN otherwise.
// Points with a non-finite X or Y are dropped before pairing, so a step
// without a loss value yields no row of its own.
func WithLossDelta(points []Point) []LossDelta {
	var out []LossDelta
	for _, series := range splitSeries(points) {
		for i, p := range series {
			nan := Float(math.NaN())
			d := LossDelta{Point: p, NextX: nan, NextY: nan, Delta: nan}
			if i+1 < len(series) {
				next := series[i+1]
				d.NextX, d.NextY = Float(next.X), Float(next.Y)
				if next.X == p.X+1 {
					d.Delta = Float(p.Y - next.Y)
				}
			}
			out = append(out, d)
		}
	}
	return out
}
