package estimates

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSpec() ModelSpec {
	return ModelSpec{B: 32, S: 256, V: 10000, DModel: 512, NHeads: 8, NBlocks: 12, DFF: 1536}
}

func TestCalculateModelParams(t *testing.T) {
	p := CalculateModelParams(10000, 512, 8, 12, 1536)

	want := float64(2*10000*512 + 512 + 12*(2*512+4*512*512+3*512*1536))
	assert.Equal(t, Float(want), p.Total)
	assert.Equal(t, Float(2*10000*512), p.Embeddings)
	assert.Equal(t, Float(512), p.FinalLN)
	assert.Equal(t, Float(2*512+4*512*512+3*512*1536), p.PerLayer)
	assert.InDelta(t, want/1e6, float64(p.TotalM), 1e-9)
}

func TestCalculateModelParamsPropagatesNaN(t *testing.T) {
	p := CalculateModelParams(math.NaN(), 512, 8, 12, 1536)
	assert.True(t, math.IsNaN(float64(p.Total)))
}

func TestCalculateForwardFlops(t *testing.T) {
	f := CalculateForwardFlops(32, 256, 10000, 512, 8, 12, 1536)

	assert.Equal(t, Float(60267954176), f.PerLayer)
	assert.Equal(t, Float(2*32*256*512*10000), f.LMHead)
	assert.Equal(t, Float(807109918720), f.Total)
	assert.InDelta(t, 0.80710991872, float64(f.TotalTFLOPs), 1e-12)
	assert.Equal(t, Float(2*32*256*512*1536*3+3*32*256*1536), f.FFNPerLayer)
}

func TestCalculateTrainingStepFlops(t *testing.T) {
	for _, f := range []float64{0, 1, 12345.5, 807109918720} {
		got := CalculateTrainingStepFlops(f)
		assert.Equal(t, Float(f), got.Forward)
		assert.Equal(t, Float(2*f), got.Backward)
		assert.Equal(t, Float(3*f), got.Total)
		assert.Equal(t, Float(3*f/1e12), got.TotalTFLOPs)
	}
}

func TestCalculateMemoryAccountingFloat32(t *testing.T) {
	m := CalculateMemoryAccounting(baseSpec())

	assert.Equal(t, Float(204589056), m.TotalWeightsRaw)
	assert.Equal(t, m.TotalWeightsRaw, m.TotalGradientsRaw)
	assert.Equal(t, Float(855703552), m.PerBlockFwdRaw)
	assert.Equal(t, Float(10629726208), m.TotalFwdActivationsRaw)
	assert.Equal(t, Float(11038904320), m.PeakTrainingRaw)
	assert.Equal(t, 2*m.TotalWeightsRaw, m.OptimizerStateRaw)
	assert.Equal(t, Float(818356224), m.SteadyStateRaw)
	assert.Equal(t, "11.04 GB", m.PeakTraining)
	assert.Equal(t, "204.59 MB", m.TotalWeights)

	assert.Len(t, m.PerBlockWeightsDetail, 9)
	assert.Len(t, m.PerBlockFwdDetail, 26)
	assert.Equal(t, "input to block (residual) [B, S, d]", m.PerBlockFwdDetail[0].Name)
	assert.Equal(t, Float(51147264), m.TotalParams)
}

func TestCalculateMemoryAccountingGradientDType(t *testing.T) {
	spec := baseSpec()
	spec.GradDType = BFloat16
	m := CalculateMemoryAccounting(spec)

	assert.Equal(t, m.TotalWeightsRaw/2, m.TotalGradientsRaw)
	assert.Equal(t, m.TotalWeightsRaw+m.TotalFwdActivationsRaw+m.TotalGradientsRaw, m.PeakTrainingRaw)
}

func TestCalculateMemoryAccountingAMPUsesFixedFloat32State(t *testing.T) {
	spec := baseSpec()
	spec.WeightDType = Float16
	spec.UseAMP = true
	m := CalculateMemoryAccounting(spec)

	assert.Equal(t, 3*m.TotalParams*4, m.OptimizerStateRaw)
	assert.Equal(t, m.TotalWeightsRaw+m.OptimizerStateRaw+m.TotalGradientsRaw, m.SteadyStateRaw)
}

func TestCalculateMemoryAccountingUnknownDType(t *testing.T) {
	spec := baseSpec()
	spec.WeightDType = "int4"
	spec.GradDType = "int4"
	m := CalculateMemoryAccounting(spec)

	assert.Equal(t, Float(204589056), m.TotalWeightsRaw)
	assert.Equal(t, m.TotalWeightsRaw, m.TotalGradientsRaw)
}

func TestMemoryIsMonotonic(t *testing.T) {
	grow := map[string]func(ModelSpec) ModelSpec{
		"B":        func(s ModelSpec) ModelSpec { s.B *= 2; return s },
		"S":        func(s ModelSpec) ModelSpec { s.S += 64; return s },
		"n_blocks": func(s ModelSpec) ModelSpec { s.NBlocks++; return s },
	}
	for name, fn := range grow {
		t.Run(name, func(t *testing.T) {
			spec := baseSpec()
			prev := float64(CalculateMemoryAccounting(spec).PeakTrainingRaw)
			for i := 0; i < 5; i++ {
				spec = fn(spec)
				next := float64(CalculateMemoryAccounting(spec).PeakTrainingRaw)
				require.GreaterOrEqual(t, next, prev)
				prev = next
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0 B"},
		{999.4, "999 B"},
		{999.5, "1000 B"},
		{1000, "1.00 KB"},
		{1005, "1.00 KB"},
		{1125, "1.13 KB"},
		{1536, "1.54 KB"},
		{2_500_000, "2.50 MB"},
		{11038904320, "11.04 GB"},
		{-1, "0 B"},
		{math.NaN(), "0 B"},
		{math.Inf(1), "0 B"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatBytes(c.in), "FormatBytes(%v)", c.in)
	}
}

func TestFormatBytesRoundTrip(t *testing.T) {
	bands := []struct {
		unit  float64
		value float64
	}{
		{1, 742},
		{1e3, 12_345},
		{1e6, 98_765_432},
		{1e9, 31_415_926_535},
	}
	for _, b := range bands {
		text := FormatBytes(b.value)
		prefix := strings.Fields(text)[0]
		parsed, err := strconv.ParseFloat(prefix, 64)
		require.NoError(t, err)
		assert.InDelta(t, b.value, parsed*b.unit, 0.005*b.unit+0.5, text)
	}
}

func TestFormatMsAndTFLOPs(t *testing.T) {
	assert.Equal(t, "12.35 ms", FormatMs(12.345))
	assert.Equal(t, "1.00 ms", FormatMs(1.005))
	assert.Equal(t, "0.00 ms", FormatMs(math.NaN()))
	assert.Equal(t, "2.421 TFLOPs", FormatTFLOPs(2.42133))
	assert.Equal(t, "n/a", FormatTFLOPs(math.Inf(1)))
}

func TestValidateTrainingSpecExample(t *testing.T) {
	raw := map[string]interface{}{
		"B": 32, "S": 256, "V": 10000, "d_model": 512, "n_heads": 8, "n_blocks": 12, "d_ff": 1536,
	}
	result, err := ValidateTrainingSpec(raw, 24)
	require.NoError(t, err)

	assert.Equal(t, Float(64), result.DHead)
	assert.True(t, result.HeadDimMultipleOf32)
	assert.True(t, result.DFFMultipleOf64)
	assert.Equal(t, result.PeakTrainingRaw <= 24e9, result.FitsBudget)
	assert.True(t, result.FitsBudget)
	assert.Empty(t, result.Issues)
	assert.Equal(t, Float(24), result.RAMBudgetGB)
}

func TestValidateTrainingSpecReportsIssues(t *testing.T) {
	raw := map[string]interface{}{
		"B": 64, "S": 1024, "V": 50000, "d_model": 480, "n_heads": 8, "n_blocks": 24, "d_ff": 1000,
	}
	result, err := ValidateTrainingSpec(raw, 1)
	require.NoError(t, err)

	assert.Equal(t, Float(60), result.DHead)
	assert.False(t, result.HeadDimMultipleOf32)
	assert.False(t, result.DFFMultipleOf64)
	assert.False(t, result.FitsBudget)
	require.Len(t, result.Issues, 3)
	assert.Equal(t, "d_head 60 is not a multiple of 32", result.Issues[0])
	assert.Equal(t, "d_ff 1000 is not a multiple of 64", result.Issues[1])
	assert.Contains(t, result.Issues[2], "exceeds budget 1 GB")
}

func TestValidateTrainingSpecStructuralErrors(t *testing.T) {
	full := func() map[string]interface{} {
		return map[string]interface{}{
			"B": 32, "S": 256, "V": 10000, "d_model": 512, "n_heads": 8, "n_blocks": 12, "d_ff": 1536,
		}
	}

	_, err := ValidateTrainingSpec(nil, 24)
	assert.True(t, errors.Is(err, ErrInvalidSpec))

	for _, budget := range []float64{0, -3, math.NaN(), math.Inf(1)} {
		_, err = ValidateTrainingSpec(full(), budget)
		assert.True(t, errors.Is(err, ErrInvalidBudget), "budget %v", budget)
	}

	raw := full()
	delete(raw, "V")
	delete(raw, "d_ff")
	_, err = ValidateTrainingSpec(raw, 24)
	require.True(t, errors.Is(err, ErrMissingKeys))
	assert.Contains(t, err.Error(), "V, d_ff")

	raw = full()
	raw["n_heads"] = 7
	_, err = ValidateTrainingSpec(raw, 24)
	require.True(t, errors.Is(err, ErrHeadDimMismatch))
	assert.Contains(t, err.Error(), "d_model 512 not divisible by n_heads 7")

	raw = full()
	raw["d_head"] = 32
	_, err = ValidateTrainingSpec(raw, 24)
	require.True(t, errors.Is(err, ErrHeadDimMismatch))
	assert.Contains(t, err.Error(), "d_head 32 * n_heads 8 != d_model 512")
}

func TestValidateAcceptsConsistentHeadDims(t *testing.T) {
	for _, heads := range []float64{1, 2, 4, 8, 16} {
		spec := baseSpec()
		spec.NHeads = heads
		spec.DHead = spec.DModel / heads
		result, err := ValidateModelSpec(spec, 24)
		require.NoError(t, err)
		assert.Equal(t, Float(spec.DHead), result.DHead)
	}
}

func TestParseSpecCoercesStrings(t *testing.T) {
	spec, err := ParseSpec(map[string]interface{}{
		"B": "32", "S": " 256 ", "V": 10000.0, "d_model": int64(512), "n_heads": "8",
		"n_blocks": 12, "d_ff": "abc", "use_amp": "true", "ft_dtype": "bfloat16",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(32), spec.B)
	assert.Equal(t, float64(256), spec.S)
	assert.Equal(t, float64(512), spec.DModel)
	assert.True(t, math.IsNaN(spec.DFF))
	assert.True(t, spec.UseAMP)
	assert.Equal(t, BFloat16, spec.ActivationDType)
}

func TestPlatformsAndDFF(t *testing.T) {
	p, err := LookupPlatform("cuda_amp")
	require.NoError(t, err)
	spec := p.Apply(baseSpec())
	assert.True(t, spec.UseAMP)
	assert.Equal(t, BFloat16, spec.ActivationDType)

	_, err = LookupPlatform("tpu")
	assert.Error(t, err)

	cases := []struct {
		mode   string
		d      float64
		manual float64
		want   float64
	}{
		{DFFModeEightThirds, 512, 0, 1344},
		{DFFModeFourX, 512, 0, 2048},
		{DFFModeManual, 512, 1000, 1024},
		{DFFModeManual, 512, 10, 64},
	}
	for _, c := range cases {
		got, err := ComputeDFF(c.mode, c.d, c.manual)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, c.mode)
	}
	_, err = ComputeDFF("2x", 512, 0)
	assert.Error(t, err)
}

func TestEstimateSpec(t *testing.T) {
	e := EstimateSpec(baseSpec())
	assert.Equal(t, float64(64), e.Spec.DHead)
	assert.Equal(t, 3*e.Forward.Total, e.Training.Total)
	assert.Equal(t, e.Params.Total, e.Memory.TotalParams)
}

func TestValidationResultMarshalsUnparseableNumbers(t *testing.T) {
	raw := map[string]interface{}{
		"B": "abc", "S": 256, "V": 10000, "d_model": 512, "n_heads": 8, "n_blocks": 12, "d_ff": 1536,
	}
	result, err := ValidateTrainingSpec(raw, 24)
	require.NoError(t, err)
	assert.Equal(t, "0 B", result.PeakTraining)
	assert.False(t, result.PeakTrainingRaw.Valid())

	out, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Nil(t, decoded["peak_training_raw"])
	assert.Equal(t, float64(818356224), decoded["steady_state_raw"])
	assert.Equal(t, float64(64), decoded["d_head"])
	assert.Equal(t, float64(24), decoded["ram_budget_gb"])
}

func TestEstimateMarshalsDegenerateHeads(t *testing.T) {
	spec := baseSpec()
	spec.DModel = 0
	spec.NHeads = 0
	spec.DHead = 64
	_, err := ResolveHeadDim(spec)
	require.NoError(t, err)

	out, err := json.Marshal(EstimateSpec(spec))
	require.NoError(t, err)

	var decoded struct {
		Spec    map[string]interface{} `json:"spec"`
		Forward map[string]interface{} `json:"forward"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, float64(64), decoded.Spec["d_head"])
	assert.Nil(t, decoded.Forward["per_layer"])
}

func TestModelSpecMarshalsNaNInput(t *testing.T) {
	spec := baseSpec()
	spec.B = math.NaN()

	out, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"B":null`)
	assert.NotContains(t, string(out), "d_head")
}
