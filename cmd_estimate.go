package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"training-perf-agent/estimates"
)

type specFlags struct {
	model     string
	platform  string
	dffMode   string
	spec      estimates.ModelSpec
	wt, ft    string
	grad      string
	tflopsSec float64
}

func (f *specFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.model, "model", "", "Use a model from the config file instead of the flags below")
	fs.StringVar(&f.platform, "platform", "", "Precision preset: mps or cuda_amp")
	fs.StringVar(&f.dffMode, "dff-mode", "", "Derive d_ff from d_model: 8/3, 4x or manual")
	fs.Float64VarP(&f.spec.B, "batch", "B", 32, "Batch size")
	fs.Float64VarP(&f.spec.S, "seq", "S", 256, "Sequence length")
	fs.Float64VarP(&f.spec.V, "vocab", "V", 10000, "Vocabulary size")
	fs.Float64Var(&f.spec.DModel, "d-model", 512, "Model width")
	fs.Float64Var(&f.spec.NHeads, "n-heads", 8, "Attention heads")
	fs.Float64Var(&f.spec.DHead, "d-head", 0, "Head width (0 derives d_model / n_heads)")
	fs.Float64Var(&f.spec.NBlocks, "n-blocks", 12, "Transformer blocks")
	fs.Float64Var(&f.spec.DFF, "d-ff", 1536, "Feed-forward width")
	fs.StringVar(&f.wt, "wt-dtype", "float32", "Weight dtype")
	fs.StringVar(&f.ft, "ft-dtype", "float32", "Activation dtype")
	fs.StringVar(&f.grad, "grad-dtype", "", "Gradient dtype (default weight dtype)")
	fs.BoolVar(&f.spec.UseAMP, "use-amp", false, "Mixed precision optimizer state")
	fs.Float64Var(&f.tflopsSec, "tflops", 0, "Sustained device TFLOP/s for a step time estimate")
}

func (f *specFlags) resolve() (estimates.ModelSpec, error) {
	if f.model != "" {
		for _, m := range cfg.Models {
			if m.Name == f.model {
				return m.ResolvedSpec(), nil
			}
		}
		return estimates.ModelSpec{}, fmt.Errorf("model %q not found in config", f.model)
	}

	spec := f.spec
	spec.WeightDType = estimates.DType(f.wt)
	spec.ActivationDType = estimates.DType(f.ft)
	spec.GradDType = estimates.DType(f.grad)
	if f.platform != "" {
		p, err := estimates.LookupPlatform(f.platform)
		if err != nil {
			return estimates.ModelSpec{}, err
		}
		spec = p.Apply(spec)
	}
	if f.dffMode != "" {
		dff, err := estimates.ComputeDFF(f.dffMode, spec.DModel, spec.DFF)
		if err != nil {
			return estimates.ModelSpec{}, err
		}
		spec.DFF = dff
	}
	return spec, nil
}

// raw renders spec as the loosely typed map a spec file would hold.
func raw(spec estimates.ModelSpec) map[string]interface{} {
	m := map[string]interface{}{
		"B":          spec.B,
		"S":          spec.S,
		"V":          spec.V,
		"d_model":    spec.DModel,
		"n_heads":    spec.NHeads,
		"n_blocks":   spec.NBlocks,
		"d_ff":       spec.DFF,
		"wt_dtype":   string(spec.WeightDType),
		"ft_dtype":   string(spec.ActivationDType),
		"grad_dtype": string(spec.GradDType),
		"use_amp":    spec.UseAMP,
	}
	if spec.DHead != 0 {
		m["d_head"] = spec.DHead
	}
	return m
}

func newEstimateCommand() *cobra.Command {
	var f specFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate parameters, FLOPs and memory of one training step",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := f.resolve()
			if err != nil {
				return err
			}
			if _, err := estimates.ResolveHeadDim(spec); err != nil {
				return err
			}
			e := estimates.EstimateSpec(spec)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), e)
			}
			printEstimate(cmd.OutOrStdout(), e, f.tflopsSec)
			return nil
		},
	}
	f.register(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full estimate as JSON")
	return cmd
}

func printEstimate(w io.Writer, e estimates.Estimate, tflopsSec float64) {
	m := e.Memory
	fmt.Fprintf(w, "params:            %.2fM\n", float64(e.Params.TotalM))
	fmt.Fprintf(w, "forward:           %s\n", estimates.FormatTFLOPs(float64(e.Forward.TotalTFLOPs)))
	fmt.Fprintf(w, "training step:     %s\n", estimates.FormatTFLOPs(float64(e.Training.TotalTFLOPs)))
	if tflopsSec > 0 {
		fmt.Fprintf(w, "step time:         %s\n", estimates.FormatMs(float64(e.Training.TotalTFLOPs)/tflopsSec*1000))
	}
	fmt.Fprintf(w, "weights:           %s\n", m.TotalWeights)
	fmt.Fprintf(w, "activations:       %s\n", m.TotalFwdActivations)
	fmt.Fprintf(w, "gradients:         %s\n", m.TotalGradients)
	fmt.Fprintf(w, "optimizer state:   %s\n", m.OptimizerState)
	fmt.Fprintf(w, "peak training:     %s\n", m.PeakTraining)
	fmt.Fprintf(w, "steady state:      %s\n", m.SteadyState)
	fmt.Fprintf(w, "S^2 attention:     %s\n", m.SSquaredMemory)
}

func newValidateCommand() *cobra.Command {
	var f specFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check head/ffn alignment and whether a spec fits the RAM budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := f.resolve()
			if err != nil {
				return err
			}
			budget, _ := budgetGB()
			result, err := estimates.ValidateTrainingSpec(raw(spec), budget)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	f.register(cmd.Flags())
	return cmd
}
