package report

import (
	"github.com/spf13/cast"

	"training-perf-agent/config"
	"training-perf-agent/datasets"
	"training-perf-agent/rows"
)

const (
	defaultBins   = 20
	defaultWindow = 5
)

type DatasetAnalysis struct {
	Dataset  string        `json:"dataset"`
	Kind     datasets.Kind `json:"kind,omitempty"`
	RowCount int           `json:"row_count"`
	Note     string        `json:"note,omitempty"`
	Error    string        `json:"error,omitempty"`

	Profiles   []rows.ColumnProfile  `json:"profiles,omitempty"`
	Rollup     []rows.RollupRow      `json:"rollup,omitempty"`
	Covariance []rows.CovarianceCell `json:"covariance,omitempty"`
	Histogram  []rows.Bucket         `json:"histogram,omitempty"`
	Smoothed   []rows.SmoothedPoint  `json:"smoothed,omitempty"`
}

// Analyze runs every aggregation a describes on ds. Configuration mistakes
// are recorded in Error and stop the remaining aggregations.
func Analyze(ds *datasets.Dataset, a config.Analysis) DatasetAnalysis {
	out := DatasetAnalysis{
		Dataset:  ds.Entry.ID,
		Kind:     ds.Kind,
		RowCount: ds.RowCount,
		Note:     ds.Note,
	}
	if ds.Kind != datasets.KindTable {
		return out
	}
	out.Profiles = ds.Profiles

	if a.Metric != "" {
		agg := rows.AggMean
		if a.Aggregate != "" {
			parsed, err := rows.ParseAggregate(a.Aggregate)
			if err != nil {
				out.Error = err.Error()
				return out
			}
			agg = parsed
		}
		out.Rollup = rows.BuildRollup(ds.Rows, a.GroupBy, a.Metric, agg, a.MaxGroups)
	}

	columns := a.CovarianceColumns
	if len(columns) == 0 {
		columns = ds.NumericColumns
	}
	if len(columns) > 1 {
		out.Covariance = rows.CovarianceMatrix(ds.Rows, columns)
	}

	if a.HistogramColumn != "" {
		bins := a.Bins
		if bins == 0 {
			bins = defaultBins
		}
		points := make([]rows.FlaggedValue, 0, len(ds.Rows))
		for _, row := range ds.Rows {
			value := rows.PickNumberOr(row, nan, a.HistogramColumn)
			points = append(points, rows.FlaggedValue{Value: value, Flagged: flagged(row, a.FlagColumn)})
		}
		buckets, err := rows.BinFlagged(points, bins, rows.BinOptions{Log10: a.Log10})
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.Histogram = buckets
	}

	if a.SeriesColumn != "" && a.StepColumn != "" && a.Metric != "" {
		window := a.Window
		if window <= 0 {
			window = defaultWindow
		}
		out.Smoothed = rows.SmoothBySeries(rows.PointsFromRows(ds.Rows, a.SeriesColumn, a.StepColumn, a.Metric), window)
	}
	return out
}

func flagged(row rows.Row, column string) bool {
	if column == "" {
		return false
	}
	v, ok := rows.ReadPath(row, column)
	if !ok || v == nil {
		return false
	}
	return cast.ToBool(v)
}
