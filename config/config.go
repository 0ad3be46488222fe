package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"training-perf-agent/estimates"
	"training-perf-agent/rows"
)

const EnvPrefix = "PERFAGENT"

// Model is one training configuration to estimate. Platform, when set,
// overrides the precision fields of Spec.
type Model struct {
	Name     string              `mapstructure:"name" json:"name"`
	Category string              `mapstructure:"category" json:"category,omitempty"`
	Platform string              `mapstructure:"platform" json:"platform,omitempty"`
	Spec     estimates.ModelSpec `mapstructure:"spec" json:"spec"`
}

// Analysis describes the aggregations to run on one dataset.
type Analysis struct {
	Dataset     string `mapstructure:"dataset"`
	SampleLimit int    `mapstructure:"sample_limit"`

	GroupBy   string `mapstructure:"group_by"`
	Metric    string `mapstructure:"metric"`
	Aggregate string `mapstructure:"aggregate"`
	MaxGroups int    `mapstructure:"max_groups"`

	CovarianceColumns []string `mapstructure:"covariance_columns"`

	HistogramColumn string `mapstructure:"histogram_column"`
	FlagColumn      string `mapstructure:"flag_column"`
	Bins            int    `mapstructure:"bins"`
	Log10           bool   `mapstructure:"log10"`

	SeriesColumn string `mapstructure:"series_column"`
	StepColumn   string `mapstructure:"step_column"`
	Window       int    `mapstructure:"window"`
}

type Cache struct {
	MaxSize int64         `mapstructure:"max_size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type Config struct {
	DatasetsRoot string     `mapstructure:"datasets_root"`
	SampleLimit  int        `mapstructure:"sample_limit"`
	BudgetGB     float64    `mapstructure:"budget_gb"`
	FallbackGB   float64    `mapstructure:"fallback_gb"`
	Output       string     `mapstructure:"output"`
	Schedule     string     `mapstructure:"schedule"`
	Debug        bool       `mapstructure:"debug"`
	Cache        Cache      `mapstructure:"cache"`
	Models       []Model    `mapstructure:"models"`
	Analyses     []Analysis `mapstructure:"analyses"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("datasets_root", "./data")
	v.SetDefault("sample_limit", 5000)
	v.SetDefault("budget_gb", 0)
	v.SetDefault("fallback_gb", 24)
	v.SetDefault("output", "perf-report.json")
	v.SetDefault("schedule", "@every 15m")
	v.SetDefault("debug", false)
	v.SetDefault("cache.max_size", 100)
	v.SetDefault("cache.ttl", time.Hour)
}

// Load reads path, or perf-agent.yaml from the working directory or
// /etc/perf-agent/ when path is empty. Environment variables prefixed with
// PERFAGENT_ override file values, e.g. PERFAGENT_CACHE_TTL.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("perf-agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/perf-agent/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Debug("no config file found, using defaults")
	} else {
		log.Infof("Using config file %s", v.ConfigFileUsed())
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var ErrInvalidConfig = errors.New("invalid config")

func (c *Config) Validate() error {
	if c.BudgetGB < 0 {
		return fmt.Errorf("%w: budget_gb must not be negative", ErrInvalidConfig)
	}
	for i, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("%w: models[%d] has no name", ErrInvalidConfig, i)
		}
		if m.Platform != "" {
			if _, err := estimates.LookupPlatform(m.Platform); err != nil {
				return fmt.Errorf("%w: models[%d]: %v", ErrInvalidConfig, i, err)
			}
		}
	}
	for i, a := range c.Analyses {
		if a.Aggregate == "" {
			continue
		}
		if _, err := rows.ParseAggregate(a.Aggregate); err != nil {
			return fmt.Errorf("%w: analyses[%d]: %v", ErrInvalidConfig, i, err)
		}
	}
	return nil
}

// ResolvedSpec applies the platform preset, if any, to the model spec.
func (m Model) ResolvedSpec() estimates.ModelSpec {
	if m.Platform == "" {
		return m.Spec
	}
	p, err := estimates.LookupPlatform(m.Platform)
	if err != nil {
		return m.Spec
	}
	return p.Apply(m.Spec)
}
