// Package testutil provides reusable test helper functions for audio player tests.
package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Default tolerances for various test scenarios.
const (
	// DefaultTolerance is for near-exact float comparisons.
	DefaultTolerance = 1e-6

	// RMSTolerance is for signal level comparisons.
	RMSTolerance = 1e-3

	// RatioTolerance is for duration and frequency ratio checks, where
	// windowed processing blurs the edges.
	RatioTolerance = 0.05
)

// SineBlock returns a planar block (one slice per channel) holding frames
// samples of a freq Hz sine at the given rate, identical on every channel.
func SineBlock(freq float64, sampleRate, channels, frames int, amp float64) [][]float32 {
	block := make([][]float32, channels)
	for ch := range block {
		block[ch] = make([]float32, frames)
	}
	step := 2 * math.Pi * freq / float64(sampleRate)
	for i := 0; i < frames; i++ {
		v := float32(amp * math.Sin(step*float64(i)))
		for ch := range block {
			block[ch][i] = v
		}
	}
	return block
}

// SilenceBlock returns an all-zero planar block.
func SilenceBlock(channels, frames int) [][]float32 {
	block := make([][]float32, channels)
	for ch := range block {
		block[ch] = make([]float32, frames)
	}
	return block
}

// RMS returns the root mean square level of a sample slice.
func RMS(s []float32) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(s)))
}

// CountPositiveCrossings returns the number of negative-to-nonnegative
// transitions in s. For a sine it is proportional to frequency, which makes
// it a cheap pitch estimate.
func CountPositiveCrossings(s []float32) int {
	count := 0
	for i := 1; i < len(s); i++ {
		if s[i-1] < 0 && s[i] >= 0 {
			count++
		}
	}
	return count
}

// AssertNoNaNOrInf verifies that no sample in the block is NaN or Inf.
func AssertNoNaNOrInf(t *testing.T, block [][]float32, msgAndArgs ...any) bool {
	t.Helper()
	for ch, samples := range block {
		for i, v := range samples {
			f := float64(v)
			if math.IsNaN(f) {
				return assert.Fail(t, "found NaN", "block[%d][%d] is NaN", ch, i)
			}
			if math.IsInf(f, 0) {
				return assert.Fail(t, "found Inf", "block[%d][%d] is Inf", ch, i)
			}
		}
	}
	return true
}

// AssertAllInRange verifies that every sample is within [min, max].
func AssertAllInRange(t *testing.T, block [][]float32, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	for ch, samples := range block {
		for i, v := range samples {
			f := float64(v)
			if f < minVal || f > maxVal {
				return assert.Fail(t, "sample out of range",
					"block[%d][%d]=%f is outside range [%f, %f]", ch, i, f, minVal, maxVal)
			}
		}
	}
	return true
}

// AssertSilent verifies that every sample in the block is exactly zero.
func AssertSilent(t *testing.T, block [][]float32, msgAndArgs ...any) bool {
	t.Helper()
	for ch, samples := range block {
		for i, v := range samples {
			if v != 0 {
				return assert.Fail(t, "expected silence",
					"block[%d][%d]=%f, want 0", ch, i, v)
			}
		}
	}
	return true
}

// AssertRelativeError verifies that the relative error between actual and expected is within tolerance.
func AssertRelativeError(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	if expected == 0 {
		return assert.InDelta(t, expected, actual, tolerance, msgAndArgs...)
	}
	relError := math.Abs(actual-expected) / math.Abs(expected)
	return assert.LessOrEqual(t, relError, tolerance,
		"relative error %e exceeds tolerance %e (expected=%f, actual=%f)",
		relError, tolerance, expected, actual)
}

// AssertInRange verifies that a value is within [min, max].
func AssertInRange(t *testing.T, value, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	if value < minVal || value > maxVal {
		return assert.Fail(t, "value out of range",
			"value %f is outside range [%f, %f]", value, minVal, maxVal)
	}
	return true
}
