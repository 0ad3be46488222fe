package estimates

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

var (
	ErrInvalidSpec     = errors.New("spec must be a map of model parameters")
	ErrInvalidBudget   = errors.New("ram_budget_gb must be positive")
	ErrMissingKeys     = errors.New("missing required keys")
	ErrHeadDimMismatch = errors.New("head dimension does not match d_model")
)

// RequiredKeys are the fields ValidateTrainingSpec refuses to guess.
var RequiredKeys = []string{"B", "S", "V", "d_model", "n_heads", "n_blocks", "d_ff"}

type ValidationResult struct {
	DHead               Float    `json:"d_head"`
	HeadDimMultipleOf32 bool     `json:"head_dim_multiple_of_32"`
	DFFMultipleOf64     bool     `json:"d_ff_multiple_of_64"`
	FitsBudget          bool     `json:"fits_budget"`
	PeakTraining        string   `json:"peak_training"`
	SteadyState         string   `json:"steady_state"`
	PeakTrainingRaw     Float    `json:"peak_training_raw"`
	SteadyStateRaw      Float    `json:"steady_state_raw"`
	RAMBudgetGB         Float    `json:"ram_budget_gb"`
	Issues              []string `json:"issues"`
}

// ValidateTrainingSpec checks a loosely typed spec, as read from a config
// file or a benchmark row, against a RAM budget in GB.
//
// Only malformed input is an error. Failed hygiene or budget checks are
// reported in Issues.
func ValidateTrainingSpec(raw map[string]interface{}, ramBudgetGB float64) (*ValidationResult, error) {
	if raw == nil {
		return nil, ErrInvalidSpec
	}
	if err := checkBudget(ramBudgetGB); err != nil {
		return nil, err
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, err
	}
	return ValidateModelSpec(spec, ramBudgetGB)
}

// ParseSpec converts a loosely typed map into a ModelSpec. Unparseable
// numbers become NaN.
func ParseSpec(raw map[string]interface{}) (ModelSpec, error) {
	var missing []string
	for _, key := range RequiredKeys {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return ModelSpec{}, fmt.Errorf("%w: %s", ErrMissingKeys, strings.Join(missing, ", "))
	}

	spec := ModelSpec{
		B:               number(raw["B"]),
		S:               number(raw["S"]),
		V:               number(raw["V"]),
		DModel:          number(raw["d_model"]),
		NHeads:          number(raw["n_heads"]),
		NBlocks:         number(raw["n_blocks"]),
		DFF:             number(raw["d_ff"]),
		WeightDType:     DType(cast.ToString(raw["wt_dtype"])),
		ActivationDType: DType(cast.ToString(raw["ft_dtype"])),
		GradDType:       DType(cast.ToString(raw["grad_dtype"])),
		UseAMP:          cast.ToBool(raw["use_amp"]),
	}
	if v, ok := raw["d_head"]; ok && v != nil {
		spec.DHead = number(v)
	}
	return spec, nil
}

func ValidateModelSpec(spec ModelSpec, ramBudgetGB float64) (*ValidationResult, error) {
	if err := checkBudget(ramBudgetGB); err != nil {
		return nil, err
	}

	dHead, err := ResolveHeadDim(spec)
	if err != nil {
		return nil, err
	}

	spec.DHead = dHead
	if spec.WeightDType == "" {
		spec.WeightDType = Float32
	}
	if spec.ActivationDType == "" {
		spec.ActivationDType = Float32
	}
	if spec.GradDType == "" {
		spec.GradDType = spec.WeightDType
	}
	memory := CalculateMemoryAccounting(spec)

	result := &ValidationResult{
		DHead:               Float(dHead),
		HeadDimMultipleOf32: math.Mod(dHead, 32) == 0,
		DFFMultipleOf64:     math.Mod(spec.DFF, 64) == 0,
		FitsBudget:          float64(memory.PeakTrainingRaw) <= ramBudgetGB*1e9,
		PeakTraining:        memory.PeakTraining,
		SteadyState:         memory.SteadyState,
		PeakTrainingRaw:     memory.PeakTrainingRaw,
		SteadyStateRaw:      memory.SteadyStateRaw,
		RAMBudgetGB:         Float(ramBudgetGB),
		Issues:              []string{},
	}
	if !result.HeadDimMultipleOf32 {
		result.Issues = append(result.Issues, fmt.Sprintf("d_head %s is not a multiple of 32", num(dHead)))
	}
	if !result.DFFMultipleOf64 {
		result.Issues = append(result.Issues, fmt.Sprintf("d_ff %s is not a multiple of 64", num(spec.DFF)))
	}
	if !result.FitsBudget {
		result.Issues = append(result.Issues,
			fmt.Sprintf("peak training memory %s exceeds budget %s GB", memory.PeakTraining, num(ramBudgetGB)))
	}
	return result, nil
}

// ResolveHeadDim derives d_head from d_model / n_heads, or checks a supplied
// d_head against them.
func ResolveHeadDim(spec ModelSpec) (float64, error) {
	if spec.DHead == 0 {
		if math.Mod(spec.DModel, spec.NHeads) != 0 {
			return 0, fmt.Errorf("%w: d_model %s not divisible by n_heads %s",
				ErrHeadDimMismatch, num(spec.DModel), num(spec.NHeads))
		}
		return spec.DModel / spec.NHeads, nil
	}
	if spec.DHead*spec.NHeads != spec.DModel {
		return 0, fmt.Errorf("%w: d_head %s * n_heads %s != d_model %s",
			ErrHeadDimMismatch, num(spec.DHead), num(spec.NHeads), num(spec.DModel))
	}
	return spec.DHead, nil
}

func checkBudget(gb float64) error {
	if math.IsNaN(gb) || math.IsInf(gb, 0) || gb <= 0 {
		return ErrInvalidBudget
	}
	return nil
}

func number(v interface{}) float64 {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return math.NaN()
	}
	return f
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
