package estimates

import (
	"fmt"
	"math"
	"strings"
)

// Platform is a named precision preset for a training device.
type Platform struct {
	Name            string   `json:"value"`
	Label           string   `json:"label"`
	WeightDType     DType    `json:"wt_dtype"`
	ActivationDType DType    `json:"ft_dtype"`
	GradDType       DType    `json:"grad_dtype"`
	UseAMP          bool     `json:"use_amp"`
	Notes           []string `json:"notes"`
}

var Platforms = []Platform{
	{
		Name:            "mps",
		Label:           "MPS (M4 Mac)",
		WeightDType:     Float32,
		ActivationDType: Float32,
		GradDType:       Float32,
		Notes: []string{
			"Weights: float32",
			"Activations: float32",
			"Gradients: float32",
			"Optimizer: float32 state",
		},
	},
	{
		Name:            "cuda_amp",
		Label:           "RTX 4090 (AMP)",
		WeightDType:     Float32,
		ActivationDType: BFloat16,
		GradDType:       BFloat16,
		UseAMP:          true,
		Notes: []string{
			"Weights: float32 (master)",
			"Activations: bfloat16",
			"Gradients: bfloat16",
			"Optimizer: AMP state",
		},
	},
}

var HeadDimChoices = []int{32, 64, 96, 128}

func LookupPlatform(name string) (Platform, error) {
	for _, p := range Platforms {
		if p.Name == name {
			return p, nil
		}
	}
	names := make([]string, 0, len(Platforms))
	for _, p := range Platforms {
		names = append(names, p.Name)
	}
	return Platform{}, fmt.Errorf("unknown platform %q (expected one of %s)", name, strings.Join(names, ", "))
}

// Apply copies the platform precision choices onto spec.
func (p Platform) Apply(spec ModelSpec) ModelSpec {
	spec.WeightDType = p.WeightDType
	spec.ActivationDType = p.ActivationDType
	spec.GradDType = p.GradDType
	spec.UseAMP = p.UseAMP
	return spec
}

const (
	DFFModeEightThirds = "8/3"
	DFFModeFourX       = "4x"
	DFFModeManual      = "manual"
)

// ComputeDFF picks the feed-forward width, always a multiple of 64.
func ComputeDFF(mode string, dModel, manual float64) (float64, error) {
	switch mode {
	case DFFModeEightThirds:
		return math.Floor(dModel*8/3/64) * 64, nil
	case DFFModeFourX:
		return math.Floor(dModel*4/64) * 64, nil
	case DFFModeManual, "":
		return math.Max(64, math.Round(manual/64)*64), nil
	}
	return 0, fmt.Errorf("unknown d_ff mode %q", mode)
}
