package estimates

import (
	"encoding/json"
	"math"
)

// Float is a float64 that encodes non-finite values as JSON null. NaN from an
// unparseable input field then marshals instead of failing.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func (f Float) Valid() bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (t Tensor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name  string `json:"name"`
		Bytes Float  `json:"bytes"`
	}{t.Name, Float(t.Bytes)})
}

func (s ModelSpec) MarshalJSON() ([]byte, error) {
	out := struct {
		B               Float  `json:"B"`
		S               Float  `json:"S"`
		V               Float  `json:"V"`
		DModel          Float  `json:"d_model"`
		NHeads          Float  `json:"n_heads"`
		DHead           *Float `json:"d_head,omitempty"`
		NBlocks         Float  `json:"n_blocks"`
		DFF             Float  `json:"d_ff"`
		WeightDType     DType  `json:"wt_dtype,omitempty"`
		ActivationDType DType  `json:"ft_dtype,omitempty"`
		GradDType       DType  `json:"grad_dtype,omitempty"`
		UseAMP          bool   `json:"use_amp"`
	}{
		B:               Float(s.B),
		S:               Float(s.S),
		V:               Float(s.V),
		DModel:          Float(s.DModel),
		NHeads:          Float(s.NHeads),
		NBlocks:         Float(s.NBlocks),
		DFF:             Float(s.DFF),
		WeightDType:     s.WeightDType,
		ActivationDType: s.ActivationDType,
		GradDType:       s.GradDType,
		UseAMP:          s.UseAMP,
	}
	if s.DHead != 0 {
		dh := Float(s.DHead)
		out.DHead = &dh
	}
	return json.Marshal(out)
}
