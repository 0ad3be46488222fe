package report

import (
	"math"

	log "github.com/sirupsen/logrus"

	"training-perf-agent/config"
	"training-perf-agent/estimates"
	"training-perf-agent/rows"
)

// ModelRow is the resource envelope of one configured model.
type ModelRow struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Platform string `json:"platform,omitempty"`

	B      float64    `json:"B"`
	S      float64    `json:"S"`
	DModel float64    `json:"d_model"`
	NHeads float64    `json:"n_heads"`
	DHead  rows.Float `json:"d_head"`
	DFF    float64    `json:"d_ff"`

	ParamsM      rows.Float `json:"params_m"`
	PeakMemGB    rows.Float `json:"peak_mem_gb"`
	SteadyMemGB  rows.Float `json:"steady_mem_gb"`
	TrainTFLOPs  rows.Float `json:"train_tflops"`
	PeakTraining string     `json:"peak_training"`
	SteadyState  string     `json:"steady_state"`

	FitsBudget          bool     `json:"fits_budget"`
	HeadDimMultipleOf32 bool     `json:"head_dim_multiple_32"`
	DFFMultipleOf64     bool     `json:"d_ff_multiple_64"`
	Issues              []string `json:"issues"`
}

// BuildModelRow estimates m against budgetGB. A spec whose heads do not
// split d_model gives a row of n/a values instead of an error.
func BuildModelRow(m config.Model, budgetGB float64) ModelRow {
	spec := m.ResolvedSpec()
	nan := rows.Float(math.NaN())
	row := ModelRow{
		Name:         m.Name,
		Category:     m.Category,
		Platform:     m.Platform,
		B:            spec.B,
		S:            spec.S,
		DModel:       spec.DModel,
		NHeads:       spec.NHeads,
		DHead:        nan,
		DFF:          spec.DFF,
		ParamsM:      nan,
		PeakMemGB:    nan,
		SteadyMemGB:  nan,
		TrainTFLOPs:  nan,
		PeakTraining: "n/a",
		SteadyState:  "n/a",

		DFFMultipleOf64: math.Mod(spec.DFF, 64) == 0,
		Issues:          []string{},
	}

	result, err := estimates.ValidateModelSpec(spec, budgetGB)
	if err != nil {
		log.Debugf("model %s: %v", m.Name, err)
		row.Issues = append(row.Issues, err.Error())
		return row
	}

	spec.DHead = float64(result.DHead)
	estimate := estimates.EstimateSpec(spec)

	row.DHead = rows.Float(result.DHead)
	row.ParamsM = rows.Float(estimate.Params.TotalM)
	row.PeakMemGB = rows.Float(result.PeakTrainingRaw / 1e9)
	row.SteadyMemGB = rows.Float(result.SteadyStateRaw / 1e9)
	row.TrainTFLOPs = rows.Float(estimate.Training.TotalTFLOPs)
	row.PeakTraining = result.PeakTraining
	row.SteadyState = result.SteadyState
	row.FitsBudget = result.FitsBudget
	row.HeadDimMultipleOf32 = result.HeadDimMultipleOf32
	row.DFFMultipleOf64 = result.DFFMultipleOf64
	row.Issues = result.Issues
	return row
}
