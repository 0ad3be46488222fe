package estimates

// Estimate bundles every estimator output for one spec.
type Estimate struct {
	Spec     ModelSpec        `json:"spec"`
	Params   ModelParams      `json:"params"`
	Forward  ForwardFlops     `json:"forward"`
	Training TrainingFlops    `json:"training"`
	Memory   MemoryAccounting `json:"memory"`
}

func EstimateSpec(s ModelSpec) Estimate {
	if s.DHead == 0 && s.NHeads != 0 {
		s.DHead = s.DModel / s.NHeads
	}
	forward := CalculateForwardFlops(s.B, s.S, s.V, s.DModel, s.NHeads, s.NBlocks, s.DFF)
	return Estimate{
		Spec:     s,
		Params:   CalculateModelParams(s.V, s.DModel, s.NHeads, s.NBlocks, s.DFF),
		Forward:  forward,
		Training: CalculateTrainingStepFlops(float64(forward.Total)),
		Memory:   CalculateMemoryAccounting(s),
	}
}
