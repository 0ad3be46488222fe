package estimates

// A fused multiply-add counts as 2 FLOPs throughout.

type ForwardFlops struct {
	Total             Float `json:"total"`
	PerLayer          Float `json:"per_layer"`
	LMHead            Float `json:"lm_head"`
	AttentionPerLayer Float `json:"attention_per_layer"`
	FFNPerLayer       Float `json:"ffn_per_layer"`
	TotalTFLOPs       Float `json:"total_TFLOPs"`
}

type TrainingFlops struct {
	Forward     Float `json:"forward"`
	Backward    Float `json:"backward"`
	Total       Float `json:"total"`
	TotalTFLOPs Float `json:"total_TFLOPs"`
}

func CalculateForwardFlops(batch, seq, vocab, dModel, nHeads, nBlocks, dFF float64) ForwardFlops {
	B, S, V, d, h, L, ff := batch, seq, vocab, dModel, nHeads, nBlocks, dFF
	dh := d / h

	perLayer := 2*B*S*d + // rotary
		2*B*S*d*(3*d) + // qkv projection
		8*B*h*S*dh + // rotary on q and k
		2*B*h*S*S*dh + // q @ k^T
		3*B*h*S*S + // softmax
		2*B*h*S*S*dh + // scores @ v
		2*B*S*d*d + // output projection
		2*B*S*d + // residual
		2*B*S*d*ff + // w1
		2*B*S*d*ff + // w3
		3*B*S*ff + // silu gate
		2*B*S*ff*d // w2

	finalNorm := 2 * B * S * d
	lmHead := 2 * B * S * d * V
	total := L*perLayer + finalNorm + lmHead

	return ForwardFlops{
		Total:             Float(total),
		PerLayer:          Float(perLayer),
		LMHead:            Float(lmHead),
		AttentionPerLayer: Float(2*B*h*S*S*dh*2 + 3*B*h*S*S),
		FFNPerLayer:       Float(2*B*S*d*ff*3 + 3*B*S*ff),
		TotalTFLOPs:       Float(total / 1e12),
	}
}

// CalculateTrainingStepFlops applies the usual rule that the backward pass
// costs twice the forward pass.
func CalculateTrainingStepFlops(forward float64) TrainingFlops {
	return TrainingFlops{
		Forward:     Float(forward),
		Backward:    Float(forward * 2),
		Total:       Float(forward * 3),
		TotalTFLOPs: Float(forward * 3 / 1e12),
	}
}
