package estimates

// ModelSpec holds the architecture hyperparameters and precision choices of a
// training configuration. DHead of 0 means DModel / NHeads.
type ModelSpec struct {
	B       float64 `json:"B" mapstructure:"B"`
	S       float64 `json:"S" mapstructure:"S"`
	V       float64 `json:"V" mapstructure:"V"`
	DModel  float64 `json:"d_model" mapstructure:"d_model"`
	NHeads  float64 `json:"n_heads" mapstructure:"n_heads"`
	DHead   float64 `json:"d_head,omitempty" mapstructure:"d_head"`
	NBlocks float64 `json:"n_blocks" mapstructure:"n_blocks"`
	DFF     float64 `json:"d_ff" mapstructure:"d_ff"`

	WeightDType     DType `json:"wt_dtype,omitempty" mapstructure:"wt_dtype"`
	ActivationDType DType `json:"ft_dtype,omitempty" mapstructure:"ft_dtype"`
	GradDType       DType `json:"grad_dtype,omitempty" mapstructure:"grad_dtype"`
	UseAMP          bool  `json:"use_amp" mapstructure:"use_amp"`
}

func (s ModelSpec) headDim() float64 {
	if s.DHead != 0 {
		return s.DHead
	}
	return s.DModel / s.NHeads
}

// Tensor is one named buffer in the memory breakdown.
type Tensor struct {
	Name  string  `json:"name"`
	Bytes float64 `json:"bytes"`
}

type Tensors []Tensor

func (t Tensors) Sum() float64 {
	var total float64
	for _, x := range t {
		total += x.Bytes
	}
	return total
}

type MemoryAccounting struct {
	TotalWeights           string `json:"total_weights"`
	TotalWeightsRaw        Float  `json:"total_weights_raw"`
	TotalFwdActivations    string `json:"total_fwd_activations"`
	TotalFwdActivationsRaw Float  `json:"total_fwd_activations_raw"`
	TotalGradients         string `json:"total_gradients"`
	TotalGradientsRaw      Float  `json:"total_gradients_raw"`
	OptimizerState         string `json:"optimizer_state"`
	OptimizerStateRaw      Float  `json:"optimizer_state_raw"`
	PeakTraining           string `json:"peak_training"`
	PeakTrainingRaw        Float  `json:"peak_training_raw"`
	SteadyState            string `json:"steady_state"`
	SteadyStateRaw         Float  `json:"steady_state_raw"`

	SSquaredMemory            string `json:"s_squared_memory"`
	SSquaredRaw               Float  `json:"s_squared_raw"`
	PerBlockFwd               string `json:"per_block_fwd"`
	PerBlockFwdRaw            Float  `json:"per_block_fwd_raw"`
	AttentionMatricesPerBlock string `json:"attention_matrices_per_block"`
	SwiGLUPerBlock            string `json:"swiglu_per_block"`

	NBlocks               Float   `json:"n_blocks"`
	PerBlockWeightsDetail Tensors `json:"per_block_weights_detail"`
	PerBlockFwdDetail     Tensors `json:"per_block_fwd_detail"`
	TotalParams           Float   `json:"total_params"`
	BatchSize             Float   `json:"batch_size"`
	SeqLen                Float   `json:"seq_len"`
}

func globalWeights(s ModelSpec, width float64) Tensors {
	V, d := s.V, s.DModel
	return Tensors{
		{"token_embeddings [V, d]", V * d * width},
		{"lm_head [d, V]", d * V * width},
		{"final_ln gamma [d]", d * width},
	}
}

func blockWeights(s ModelSpec, width float64) Tensors {
	d, ff := s.DModel, s.DFF
	return Tensors{
		{"ln1 gamma [d]", d * width},
		{"ln2 gamma [d]", d * width},
		{"W_q [d, d]", d * d * width},
		{"W_k [d, d]", d * d * width},
		{"W_v [d, d]", d * d * width},
		{"W_o [d, d]", d * d * width},
		{"swiglu_w1 [d, dff]", d * ff * width},
		{"swiglu_w2 [dff, d]", ff * d * width},
		{"swiglu_w3 [d, dff]", d * ff * width},
	}
}

func blockActivations(s ModelSpec, width float64) Tensors {
	B, S, d, h, dh, ff := s.B, s.S, s.DModel, s.NHeads, s.headDim(), s.DFF
	bsd := B * S * d * width
	bhsd := B * h * S * dh * width
	bhss := B * h * S * S * width
	bsff := B * S * ff * width
	return Tensors{
		{"input to block (residual) [B, S, d]", bsd},
		{"ln1 output [B, S, d]", bsd},
		{"ln1 rstd [B, S, 1]", B * S * width},
		{"QKV combined [B, S, 3d]", 3 * bsd},
		{"Q [B, h, S, dh]", bhsd},
		{"K [B, h, S, dh]", bhsd},
		{"V [B, h, S, dh]", bhsd},
		{"Q after RoPE [B, h, S, dh]", bhsd},
		{"K after RoPE [B, h, S, dh]", bhsd},
		{"QK^T / sqrt(dk) [B, h, S, S]", bhss},
		{"masked scores [B, h, S, S]", bhss},
		{"softmax adjusted [B, h, S, S]", bhss},
		{"softmax exp [B, h, S, S]", bhss},
		{"softmax output [B, h, S, S]", bhss},
		{"attn @ V [B, h, S, dh]", bhsd},
		{"attn reshaped [B, S, d]", bsd},
		{"O proj output [B, S, d]", bsd},
		{"post-attn residual [B, S, d]", bsd},
		{"ln2 output [B, S, d]", bsd},
		{"ln2 rstd [B, S, 1]", B * S * width},
		{"w1(x) [B, S, dff]", bsff},
		{"w3(x) [B, S, dff]", bsff},
		{"sigmoid(w1(x)) [B, S, dff]", bsff},
		{"silu(w1(x)) [B, S, dff]", bsff},
		{"silu * w3 [B, S, dff]", bsff},
		{"w2 output [B, S, d]", bsd},
	}
}

func weightBytes(s ModelSpec, width float64) float64 {
	return globalWeights(s, width).Sum() + s.NBlocks*blockWeights(s, width).Sum()
}

// CalculateMemoryAccounting sizes every weight, activation, gradient and
// optimizer buffer of one training step.
//
// Peak training memory (weights + forward activations + gradients) and steady
// state memory (weights + optimizer state + gradients) describe different
// points of a step and are reported side by side.
//
// With mixed precision the optimizer keeps fp32 master weights and two fp32
// moments regardless of WeightDType.
func CalculateMemoryAccounting(s ModelSpec) MemoryAccounting {
	wt := s.WeightDType.Bytes(4)
	ft := s.ActivationDType.Bytes(4)
	grad := wt
	if s.GradDType != "" {
		grad = s.GradDType.Bytes(wt)
	}

	B, S, V, d, h, ff := s.B, s.S, s.V, s.DModel, s.NHeads, s.DFF

	perBlockWeights := blockWeights(s, wt)
	totalWeights := weightBytes(s, wt)

	fwdGlobal := Tensors{
		{"input_indices [B, S]", B * S * 2},
		{"embeddings [B, S, d]", B * S * d * ft},
	}
	perBlockFwd := blockActivations(s, ft)
	fwdFinal := Tensors{
		{"final_ln output [B, S, d]", B * S * d * ft},
		{"final_ln rstd [B, S, 1]", B * S * ft},
		{"lm_head logits [B, S, V]", B * S * V * ft},
	}
	perBlockFwdRaw := perBlockFwd.Sum()
	totalFwd := fwdGlobal.Sum() + s.NBlocks*perBlockFwdRaw + fwdFinal.Sum()

	totalGradients := totalWeights
	if grad != wt {
		totalGradients = weightBytes(s, grad)
	}

	params := totalParams(V, d, s.NBlocks, ff)
	var optimizer float64
	if s.UseAMP {
		optimizer = 3 * params * 4
	} else {
		optimizer = 2 * totalWeights
	}

	peak := totalWeights + totalFwd + totalGradients
	steady := totalWeights + optimizer + totalGradients
	attnPerBlock := B * h * S * S * ft * 5
	sSquared := s.NBlocks * attnPerBlock

	return MemoryAccounting{
		TotalWeights:           FormatBytes(totalWeights),
		TotalWeightsRaw:        Float(totalWeights),
		TotalFwdActivations:    FormatBytes(totalFwd),
		TotalFwdActivationsRaw: Float(totalFwd),
		TotalGradients:         FormatBytes(totalGradients),
		TotalGradientsRaw:      Float(totalGradients),
		OptimizerState:         FormatBytes(optimizer),
		OptimizerStateRaw:      Float(optimizer),
		PeakTraining:           FormatBytes(peak),
		PeakTrainingRaw:        Float(peak),
		SteadyState:            FormatBytes(steady),
		SteadyStateRaw:         Float(steady),

		SSquaredMemory:            FormatBytes(sSquared),
		SSquaredRaw:               Float(sSquared),
		PerBlockFwd:               FormatBytes(s.NBlocks * perBlockFwdRaw),
		PerBlockFwdRaw:            Float(perBlockFwdRaw),
		AttentionMatricesPerBlock: FormatBytes(attnPerBlock),
		SwiGLUPerBlock:            FormatBytes(B * S * ff * ft * 5),

		NBlocks:               Float(s.NBlocks),
		PerBlockWeightsDetail: perBlockWeights,
		PerBlockFwdDetail:     perBlockFwd,
		TotalParams:           Float(params),
		BatchSize:             Float(B),
		SeqLen:                Float(S),
	}
}
