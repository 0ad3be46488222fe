package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-perf-agent/estimates"
)

const sample = `
datasets_root: /data/bench
budget_gb: 16
cache:
  ttl: 10m
models:
  - name: small
    platform: cuda_amp
    spec:
      B: 8
      S: 512
      V: 32000
      d_model: 512
      n_heads: 8
      n_blocks: 8
      d_ff: 1408
  - name: plain
    spec:
      B: 1
      S: 128
      V: 1000
      d_model: 128
      n_heads: 4
      n_blocks: 2
      d_ff: 256
      wt_dtype: float16
analyses:
  - dataset: micro_benchmarks/bench.csv
    group_by: op
    metric: ms
    aggregate: mean
    covariance_columns: [ms, flops]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "perf-agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(viper.New(), writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "/data/bench", c.DatasetsRoot)
	assert.Equal(t, 16.0, c.BudgetGB)
	assert.Equal(t, 5000, c.SampleLimit)
	assert.Equal(t, 10*time.Minute, c.Cache.TTL)
	assert.Equal(t, int64(100), c.Cache.MaxSize)
	assert.Equal(t, "@every 15m", c.Schedule)

	require.Len(t, c.Models, 2)
	assert.Equal(t, 512.0, c.Models[0].Spec.DModel)
	assert.Equal(t, 1408.0, c.Models[0].Spec.DFF)
	assert.Equal(t, estimates.Float16, c.Models[1].Spec.WeightDType)

	spec := c.Models[0].ResolvedSpec()
	assert.True(t, spec.UseAMP)
	assert.Equal(t, estimates.BFloat16, spec.ActivationDType)
	assert.Equal(t, c.Models[1].Spec, c.Models[1].ResolvedSpec())

	require.Len(t, c.Analyses, 1)
	assert.Equal(t, []string{"ms", "flops"}, c.Analyses[0].CovarianceColumns)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PERFAGENT_BUDGET_GB", "40")
	t.Setenv("PERFAGENT_OUTPUT", "/tmp/out.json")

	c, err := Load(viper.New(), writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 40.0, c.BudgetGB)
	assert.Equal(t, "/tmp/out.json", c.Output)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	_, err := Load(viper.New(), writeConfig(t, "models:\n  - name: x\n    platform: tpu\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(viper.New(), writeConfig(t, "models:\n  - platform: mps\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(viper.New(), writeConfig(t, "analyses:\n  - dataset: x\n    aggregate: median\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
