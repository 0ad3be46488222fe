package estimates

// ModelParams is the parameter count of a decoder-only transformer with
// untied embeddings, RMSNorm gains and a SwiGLU feed-forward block.
type ModelParams struct {
	Total      Float `json:"total"`
	Embeddings Float `json:"embeddings"`
	PerLayer   Float `json:"per_layer"`
	FinalLN    Float `json:"final_ln"`
	TotalM     Float `json:"total_M"`
}

// CalculateModelParams counts parameters. nHeads does not change the count
// since the four attention projections are all d_model x d_model.
func CalculateModelParams(vocab, dModel, nHeads, nBlocks, dFF float64) ModelParams {
	_ = nHeads
	emb := 2 * vocab * dModel
	finalLN := dModel
	perLayer := perBlockParams(dModel, dFF)
	total := emb + finalLN + nBlocks*perLayer
	return ModelParams{
		Total:      Float(total),
		Embeddings: Float(emb),
		PerLayer:   Float(perLayer),
		FinalLN:    Float(finalLN),
		TotalM:     Float(total / 1e6),
	}
}

// ln1 + ln2 gains, W_q/W_k/W_v/W_o, swiglu w1/w2/w3
func perBlockParams(dModel, dFF float64) float64 {
	return 2*dModel + 4*dModel*dModel + 3*dModel*dFF
}

func totalParams(vocab, dModel, nBlocks, dFF float64) float64 {
	return vocab*dModel + dModel*vocab + dModel + nBlocks*perBlockParams(dModel, dFF)
}
