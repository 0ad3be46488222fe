package report

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"training-perf-agent/config"
	"training-perf-agent/datasets"
	"training-perf-agent/hardware"
	"training-perf-agent/rows"
)

var nan = math.NaN()

const SourceConfig = "config"

type Report struct {
	ID           string            `json:"id"`
	GeneratedAt  time.Time         `json:"generated_at"`
	BudgetGB     float64           `json:"budget_gb"`
	BudgetSource string            `json:"budget_source"`
	Hardware     hardware.Spec     `json:"hardware"`
	Models       []ModelRow        `json:"models"`
	Datasets     []DatasetAnalysis `json:"datasets"`
}

type Builder struct {
	Config   *config.Config
	Cache    *datasets.Cache
	Hardware hardware.Spec
}

// BudgetGB is the configured budget, or the detected one when unset.
func (b *Builder) BudgetGB() (float64, string) {
	if b.Config.BudgetGB > 0 {
		return b.Config.BudgetGB, SourceConfig
	}
	if b.Hardware.BudgetGB > 0 {
		return b.Hardware.BudgetGB, b.Hardware.Source
	}
	return hardware.DetectBudgetGB(b.Hardware, b.Config.FallbackGB)
}

func (b *Builder) Build(ctx context.Context) (*Report, error) {
	budget, source := b.BudgetGB()
	r := &Report{
		ID:           uuid.New().String(),
		GeneratedAt:  time.Now().UTC(),
		BudgetGB:     budget,
		BudgetSource: source,
		Hardware:     b.Hardware,
		Models:       make([]ModelRow, 0, len(b.Config.Models)),
		Datasets:     make([]DatasetAnalysis, 0, len(b.Config.Analyses)),
	}

	for _, m := range b.Config.Models {
		r.Models = append(r.Models, BuildModelRow(m, budget))
	}

	if b.Cache != nil && len(b.Config.Analyses) > 0 {
		loaded, err := b.loadDatasets(ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range b.Config.Analyses {
			res := loaded[datasetKey{a.Dataset, b.sampleLimit(a)}]
			if res.Err != nil {
				r.Datasets = append(r.Datasets, DatasetAnalysis{Dataset: a.Dataset, Error: res.Err.Error()})
				continue
			}
			r.Datasets = append(r.Datasets, Analyze(res.Dataset, a))
		}
	}

	log.Infof("Built report %s: %d models, %d datasets, budget %.2f GB (%s)",
		r.ID, len(r.Models), len(r.Datasets), r.BudgetGB, r.BudgetSource)
	return r, nil
}

type datasetKey struct {
	id    string
	limit int
}

func (b *Builder) sampleLimit(a config.Analysis) int {
	if a.SampleLimit > 0 {
		return a.SampleLimit
	}
	return b.Config.SampleLimit
}

// loadDatasets loads every dataset the analyses need, concurrently per
// sample limit.
func (b *Builder) loadDatasets(ctx context.Context) (map[datasetKey]datasets.LoadResult, error) {
	var limits []int
	ids := map[int][]string{}
	for _, a := range b.Config.Analyses {
		limit := b.sampleLimit(a)
		if _, ok := ids[limit]; !ok {
			limits = append(limits, limit)
		}
		ids[limit] = append(ids[limit], a.Dataset)
	}

	loaded := map[datasetKey]datasets.LoadResult{}
	for _, limit := range limits {
		for _, res := range b.Cache.LoadAll(ctx, rows.Dedupe(ids[limit]), limit) {
			loaded[datasetKey{res.ID, limit}] = res
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return loaded, nil
}

// WriteFile writes r as JSON, replacing path atomically.
func (r *Report) WriteFile(path string) error {
	output, err := json.Marshal(r)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(output); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
