package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"training-perf-agent/config"
	"training-perf-agent/hardware"
)

var (
	v          = viper.New()
	cfg        *config.Config
	configPath string
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "perf-agent",
		Short:         "Estimate transformer training resources and analyze benchmark datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// output and schedule are local to the commands that write reports
			for flag, key := range map[string]string{"output": "output", "schedule": "schedule"} {
				if f := cmd.Flags().Lookup(flag); f != nil {
					if err := v.BindPFlag(key, f); err != nil {
						return err
					}
				}
			}
			c, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			cfg = c
			log.SetFormatter(&log.TextFormatter{})
			if cfg.Debug {
				log.SetLevel(log.DebugLevel)
			}
			log.Debugf("config: %+v", *cfg)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path of the config file (default ./perf-agent.yaml)")
	flags.Bool("debug", false, "Enable debug mod")
	flags.String("datasets-root", "./data", "Directory holding manifest.json and the dataset files")
	flags.Float64("budget-gb", 0, "RAM budget in GB (0 detects device memory)")
	flags.Int("sample-limit", 5000, "Max rows loaded per dataset")
	bindFlags(root, map[string]string{
		"debug":         "debug",
		"datasets-root": "datasets_root",
		"budget-gb":     "budget_gb",
		"sample-limit":  "sample_limit",
	})

	root.AddCommand(
		newEstimateCommand(),
		newValidateCommand(),
		newPreviewCommand(),
		newProfileCommand(),
		newRollupCommand(),
		newPivotCommand(),
		newCovarianceCommand(),
		newHistogramCommand(),
		newSmoothCommand(),
		newReportCommand(),
		newAgentCommand(),
	)
	return root
}

func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
			log.Fatalf("bind flag %s: %v", flag, err)
		}
	}
}

// budgetGB is the configured budget, else the detected device memory.
func budgetGB() (float64, hardware.Spec) {
	if cfg.BudgetGB > 0 {
		return cfg.BudgetGB, hardware.Spec{BudgetGB: cfg.BudgetGB, Source: "config"}
	}
	spec := hardware.Probe(cfg.FallbackGB, &hardware.HostMemoryCollector{}, &hardware.GpuMemoryCollector{})
	return spec.BudgetGB, spec
}

func printJSON(w io.Writer, value interface{}) error {
	output, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Errorf("Error: %s", err.Error())
		os.Exit(1)
	}
}
