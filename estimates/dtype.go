package estimates

type DType string

const (
	Float32  DType = "float32"
	Float16  DType = "float16"
	BFloat16 DType = "bfloat16"
	Float8   DType = "float8"
)

var dtypeBytes = map[DType]float64{
	Float32:  4,
	Float16:  2,
	BFloat16: 2,
	Float8:   1,
}

// Bytes returns the element width of d, or fallback when d is unknown.
func (d DType) Bytes(fallback float64) float64 {
	if n, ok := dtypeBytes[d]; ok {
		return n
	}
	return fallback
}

func (d DType) Known() bool {
	_, ok := dtypeBytes[d]
	return ok
}
