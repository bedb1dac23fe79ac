package stretch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Cubic Resampler Tests - The pitch stage in isolation
// =============================================================================

// TestCubicResampler_UnityRatio verifies that ratio 1.0 passes samples
// through with the interpolator's two-sample delay and no value distortion.
func TestCubicResampler_UnityRatio(t *testing.T) {
	r := newCubicResampler(1.0)

	input := make([]float64, 256)
	for i := range input {
		input[i] = float64(i) * 0.01
	}

	out := r.process(nil, input)
	require.Len(t, out, len(input), "unity ratio should emit one output per input")

	// Output lags input by two samples (interpolation midpoint of the
	// 4-point history). Skip the zero-history warmup.
	for i := 4; i < len(out); i++ {
		assert.InDelta(t, input[i-2], float64(out[i]), 1e-9,
			"out[%d] should equal input[%d]", i, i-2)
	}
}

// TestCubicResampler_RatioScalesOutputCount verifies output counts for
// downward and upward ratios.
func TestCubicResampler_RatioScalesOutputCount(t *testing.T) {
	testCases := []struct {
		name  string
		ratio float64
	}{
		{"half", 0.5},
		{"double", 2.0},
		{"fractional", 0.75},
	}

	const n = 4096
	input := make([]float64, n)
	for i := range input {
		input[i] = 0.5
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newCubicResampler(tc.ratio)
			out := r.process(nil, input)

			want := float64(n) * tc.ratio
			assert.InDelta(t, want, float64(len(out)), 4,
				"ratio %.2f: got %d outputs for %d inputs", tc.ratio, len(out), n)

			// A constant signal must interpolate to the same constant.
			for i := 8; i < len(out); i++ {
				assert.InDelta(t, 0.5, float64(out[i]), 1e-9, "DC not preserved at out[%d]", i)
			}
		})
	}
}

// TestCubicResampler_LiveRatioChange verifies that setRatio mid-stream
// takes effect without resetting the phase accumulator.
func TestCubicResampler_LiveRatioChange(t *testing.T) {
	r := newCubicResampler(1.0)

	const half = 1024
	input := make([]float64, half)
	for i := range input {
		input[i] = float64(i%7) * 0.1
	}

	out := r.process(nil, input)
	firstLen := len(out)
	assert.InDelta(t, half, firstLen, 2, "first half at unity ratio")

	r.setRatio(0.5)
	out = r.process(out, input)
	secondLen := len(out) - firstLen
	assert.InDelta(t, half/2, secondLen, 2, "second half at half ratio")
}

// TestCubicResampler_Reset verifies reset restores fresh-state behavior.
func TestCubicResampler_Reset(t *testing.T) {
	input := make([]float64, 128)
	for i := range input {
		input[i] = float64(i) - 64
	}

	r := newCubicResampler(1.5)
	fresh := newCubicResampler(1.5)

	r.process(nil, input)
	r.reset()

	got := r.process(nil, input)
	want := fresh.process(nil, input)

	require.Len(t, got, len(want), "output length after reset should match fresh resampler")
	for i := range got {
		assert.InDelta(t, float64(want[i]), float64(got[i]), 1e-12,
			"out[%d] after reset differs from fresh resampler", i)
	}
}
