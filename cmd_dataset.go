package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"training-perf-agent/datasets"
	"training-perf-agent/rows"
)

var (
	datasetID string
	nan       = math.NaN()
)

func addDatasetFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&datasetID, "dataset", "", "Dataset id category/filename (default from the manifest)")
}

func openDataset(ctx context.Context) (*datasets.Dataset, error) {
	catalog, err := datasets.LoadCatalog(cfg.DatasetsRoot)
	if err != nil {
		return nil, err
	}
	entry, err := catalog.Lookup(datasetID)
	if err != nil {
		return nil, err
	}
	return datasets.Load(ctx, entry, cfg.SampleLimit)
}

func openTable(ctx context.Context) (*datasets.Dataset, error) {
	ds, err := openDataset(ctx)
	if err != nil {
		return nil, err
	}
	if ds.Kind != datasets.KindTable {
		return nil, fmt.Errorf("%s is a %s dataset: %s", ds.Entry.ID, ds.Kind, ds.Note)
	}
	return ds, nil
}

func newPreviewCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the first rows of a dataset as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openDataset(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ds.Kind == datasets.KindText {
				fmt.Fprintf(out, "%s (%d lines)\n\n%s\n", ds.Entry.ID, ds.LineCount, ds.TextPreview)
				return nil
			}
			if ds.Note != "" {
				fmt.Fprintln(out, ds.Note)
			}
			w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join(ds.Columns, "\t"))
			for i, row := range ds.Rows {
				if i >= limit {
					break
				}
				cells := make([]string, len(ds.Columns))
				for j, column := range ds.Columns {
					cells[j] = rows.FormatCell(row[column])
				}
				fmt.Fprintln(w, strings.Join(cells, "\t"))
			}
			return w.Flush()
		},
	}
	addDatasetFlag(cmd)
	cmd.Flags().IntVar(&limit, "rows", 20, "Rows to print")
	return cmd
}

func newProfileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Infer column types, null counts and ranges of a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openTable(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"dataset":         ds.Entry.ID,
				"row_count":       ds.RowCount,
				"note":            ds.Note,
				"profiles":        ds.Profiles,
				"numeric_columns": ds.NumericColumns,
			})
		},
	}
	addDatasetFlag(cmd)
	return cmd
}

func newRollupCommand() *cobra.Command {
	var group, metric, agg string
	var maxGroups int
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Aggregate a metric column per group",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rows.ParseAggregate(agg)
			if err != nil {
				return err
			}
			ds, err := openTable(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows.BuildRollup(ds.Rows, group, metric, a, maxGroups))
		},
	}
	addDatasetFlag(cmd)
	cmd.Flags().StringVar(&group, "group", "", "Group column (empty aggregates all rows)")
	cmd.Flags().StringVar(&metric, "metric", "", "Metric column")
	cmd.Flags().StringVar(&agg, "agg", "mean", "count, sum, mean, min or max")
	cmd.Flags().IntVar(&maxGroups, "max-groups", rows.DefaultMaxGroups, "Groups to keep")
	_ = cmd.MarkFlagRequired("metric")
	return cmd
}

func newPivotCommand() *cobra.Command {
	var x, y, color, agg string
	var top int
	cmd := &cobra.Command{
		Use:   "pivot",
		Short: "Aggregate a metric over an x column split by a color column",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rows.ParseAggregate(agg)
			if err != nil {
				return err
			}
			ds, err := openTable(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows.AggregatePivot(ds.Rows, x, y, color, a, top))
		},
	}
	addDatasetFlag(cmd)
	cmd.Flags().StringVar(&x, "x", "", "X column")
	cmd.Flags().StringVar(&y, "y", "", "Metric column")
	cmd.Flags().StringVar(&color, "color", "(none)", "Split column")
	cmd.Flags().StringVar(&agg, "agg", "mean", "count, sum, mean, min or max")
	cmd.Flags().IntVar(&top, "top", 0, "Rows to keep (0 keeps all)")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")
	return cmd
}

func newCovarianceCommand() *cobra.Command {
	var columns []string
	var upper bool
	cmd := &cobra.Command{
		Use:   "covariance",
		Short: "Pairwise covariance and correlation of numeric columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openTable(cmd.Context())
			if err != nil {
				return err
			}
			if len(columns) == 0 {
				columns = ds.NumericColumns
			}
			matrix := rows.CovarianceMatrix(ds.Rows, columns)
			if upper {
				matrix = rows.UpperTriangle(matrix, columns)
			}
			return printJSON(cmd.OutOrStdout(), matrix)
		},
	}
	addDatasetFlag(cmd)
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns (default every numeric column)")
	cmd.Flags().BoolVar(&upper, "upper", false, "Only print each pair once")
	return cmd
}

func newHistogramCommand() *cobra.Command {
	var column, flag string
	var bins int
	var opts rows.BinOptions
	cmd := &cobra.Command{
		Use:   "histogram",
		Short: "Bin a numeric column, optionally in log10 space",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openTable(cmd.Context())
			if err != nil {
				return err
			}
			points := make([]rows.FlaggedValue, 0, len(ds.Rows))
			for _, row := range ds.Rows {
				p := rows.FlaggedValue{Value: rows.PickNumberOr(row, nan, column)}
				if flag != "" {
					v, _ := rows.ReadPath(row, flag)
					p.Flagged = cast.ToBool(v)
				}
				points = append(points, p)
			}
			buckets, err := rows.BinFlagged(points, bins, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), buckets)
		},
	}
	addDatasetFlag(cmd)
	cmd.Flags().StringVar(&column, "column", "", "Numeric column")
	cmd.Flags().StringVar(&flag, "flag", "", "Boolean column counted per bucket")
	cmd.Flags().IntVar(&bins, "bins", 20, "Bucket count")
	cmd.Flags().BoolVar(&opts.Log10, "log10", false, "Bin in log10 space")
	cmd.Flags().BoolVar(&opts.SkipEmpty, "skip-empty", false, "Drop empty buckets")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func newSmoothCommand() *cobra.Command {
	var series, step, metric string
	var window int
	var delta, normalize bool
	cmd := &cobra.Command{
		Use:   "smooth",
		Short: "Trailing-mean smoothing of a metric per series",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openTable(cmd.Context())
			if err != nil {
				return err
			}
			points := rows.PointsFromRows(ds.Rows, series, step, metric)
			if normalize {
				for i := range points {
					points[i].Series = rows.NormalizeRunLabel(points[i].Series)
				}
			}
			if delta {
				return printJSON(cmd.OutOrStdout(), rows.WithLossDelta(points))
			}
			return printJSON(cmd.OutOrStdout(), rows.SmoothBySeries(points, window))
		},
	}
	addDatasetFlag(cmd)
	cmd.Flags().StringVar(&series, "series", "run_name", "Series column")
	cmd.Flags().StringVar(&step, "step", "step", "Step column")
	cmd.Flags().StringVar(&metric, "metric", "loss", "Metric column")
	cmd.Flags().IntVar(&window, "window", 5, "Trailing window")
	cmd.Flags().BoolVar(&delta, "delta", false, "Print step-to-step deltas instead")
	cmd.Flags().BoolVar(&normalize, "normalize-runs", false, "Strip _YYYYMMDD_HHMMSS stamps from series names")
	return cmd
}
