package main

import (
	"github.com/spf13/cobra"

	"training-perf-agent/datasets"
	"training-perf-agent/report"
)

func newReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build one report from the configured models and analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := datasets.LoadCatalog(cfg.DatasetsRoot)
			if err != nil {
				return err
			}
			cache := datasets.NewCache(datasets.CatalogLoader(catalog), cfg.Cache.MaxSize, cfg.Cache.TTL)
			defer cache.Stop()

			_, hw := budgetGB()
			b := &report.Builder{Config: cfg, Cache: cache, Hardware: hw}
			r, err := b.Build(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Output == "-" {
				return printJSON(cmd.OutOrStdout(), r)
			}
			return r.WriteFile(cfg.Output)
		},
	}
	cmd.Flags().String("output", "perf-report.json", "Path of the report file, - for stdout")
	return cmd
}
