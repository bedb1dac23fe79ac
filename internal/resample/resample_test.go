package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-audio-player/internal/testutil"
)

// ============================================================================
// Converter construction
// ============================================================================

// TestNewConverterValidation checks the sample rate bounds.
func TestNewConverterValidation(t *testing.T) {
	testCases := []struct {
		name     string
		fromRate int
		toRate   int
		wantErr  bool
	}{
		{"cd_to_dat", 44100, 48000, false},
		{"dat_to_cd", 48000, 44100, false},
		{"identity", 48000, 48000, false},
		{"zero_from", 0, 48000, true},
		{"zero_to", 48000, 0, true},
		{"negative", -44100, 48000, true},
		{"below_minimum", 4000, 48000, true},
		{"above_maximum", 48000, 1000000, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewConverter(tc.fromRate, tc.toRate)
			if tc.wantErr {
				assert.Error(t, err, "rates %d -> %d should be rejected", tc.fromRate, tc.toRate)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c)
		})
	}
}

// TestIdentityPassThrough verifies that equal rates return the input buffer
// itself, with no filtering and no copy.
func TestIdentityPassThrough(t *testing.T) {
	c, err := NewConverter(48000, 48000)
	require.NoError(t, err)

	in := testutil.SineBlock(440, 48000, 2, 1024, 0.5)
	out, err := c.Convert(in)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, len(in[0]), len(out[0]), "identity must not change the frame count")
	assert.True(t, &in[0][0] == &out[0][0], "identity should share the input's backing array")
}

// TestOutputFrameCounts pins the ceil(frames*to/from) frame accounting.
func TestOutputFrameCounts(t *testing.T) {
	testCases := []struct {
		name      string
		fromRate  int
		toRate    int
		inFrames  int
		outFrames int
	}{
		{"one_second_up", 44100, 48000, 44100, 48000},
		{"one_second_down", 48000, 44100, 48000, 44100},
		{"halving", 48000, 24000, 1000, 500},
		{"fractional_rounds_up", 44100, 48000, 1000, 1089},
		{"empty", 44100, 48000, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewConverter(tc.fromRate, tc.toRate)
			require.NoError(t, err)

			assert.Equal(t, tc.outFrames, c.OutputFrames(tc.inFrames))

			if tc.inFrames > 0 {
				out, err := c.Convert(testutil.SineBlock(440, tc.fromRate, 1, tc.inFrames, 0.5))
				require.NoError(t, err)
				assert.Equal(t, tc.outFrames, len(out[0]), "Convert must produce what OutputFrames promises")
			}
		})
	}
}

// ============================================================================
// Signal fidelity
// ============================================================================

// middle returns s with tapsPerPhase samples shaved off each end, past the
// zero-padded filter edges.
func middle(s []float32) []float32 {
	if len(s) <= 2*tapsPerPhase {
		return nil
	}
	return s[tapsPerPhase : len(s)-tapsPerPhase]
}

// TestDCPreserved feeds a constant and expects it back at the new rate:
// every phase row of the bank must have unity DC gain.
func TestDCPreserved(t *testing.T) {
	testCases := []struct {
		name     string
		fromRate int
		toRate   int
	}{
		{"up_44100_48000", 44100, 48000},
		{"down_48000_44100", 48000, 44100},
		{"up_22050_48000", 22050, 48000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := [][]float32{make([]float32, 2048)}
			for i := range in[0] {
				in[0][i] = 0.5
			}

			out, err := Convert(in, tc.fromRate, tc.toRate)
			require.NoError(t, err)

			for i, v := range middle(out[0]) {
				require.InDelta(t, 0.5, v, 2e-3, "DC sample %d drifted", i)
			}
		})
	}
}

// TestToneSurvivesUpsampling converts a 1 kHz tone from CD to DAT rate and
// checks that both its frequency and its level come through.
func TestToneSurvivesUpsampling(t *testing.T) {
	const (
		freq     = 1000.0
		fromRate = 44100
		toRate   = 48000
		frames   = 8192
	)

	in := testutil.SineBlock(freq, fromRate, 1, frames, 0.5)
	out, err := Convert(in, fromRate, toRate)
	require.NoError(t, err)

	mid := middle(out[0])
	require.NotEmpty(t, mid)

	seconds := float64(len(mid)) / toRate
	measured := float64(testutil.CountPositiveCrossings(mid)) / seconds
	testutil.AssertRelativeError(t, freq, measured, 0.03, "tone frequency after conversion")

	testutil.AssertRelativeError(t, testutil.RMS(in[0]), testutil.RMS(mid), 0.05,
		"tone level after conversion")
}

// TestUltrasoundRemovedOnDownsampling uses an 18 kHz tone, inside the 48 kHz
// passband but far above the 24 kHz target's cutoff. A converter that forgot
// to scale its cutoff by the ratio would pass it nearly untouched.
func TestUltrasoundRemovedOnDownsampling(t *testing.T) {
	in := testutil.SineBlock(18000, 48000, 1, 8192, 0.5)
	out, err := Convert(in, 48000, 24000)
	require.NoError(t, err)

	got := testutil.RMS(middle(out[0]))
	assert.Less(t, got, 0.01, "18 kHz must be attenuated below the 24 kHz Nyquist")
	t.Logf("18 kHz residual RMS after 48k->24k: %.2e (input %.3f)", got, testutil.RMS(in[0]))
}

// TestChannelsConvertIndependently checks that a silent channel stays
// exactly silent next to an active one.
func TestChannelsConvertIndependently(t *testing.T) {
	in := [][]float32{
		testutil.SineBlock(440, 44100, 1, 4096, 0.5)[0],
		make([]float32, 4096),
	}

	out, err := Convert(in, 44100, 48000)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Greater(t, testutil.RMS(out[0]), 0.1, "active channel should carry signal")
	assert.Less(t, testutil.RMS(out[1]), 1e-7, "silent channel must stay silent")
}

// ============================================================================
// Input validation
// ============================================================================

// TestConvertRejectsRaggedInput rejects channels of unequal length.
func TestConvertRejectsRaggedInput(t *testing.T) {
	c, err := NewConverter(44100, 48000)
	require.NoError(t, err)

	_, err = c.Convert([][]float32{make([]float32, 100), make([]float32, 99)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ragged")
}

// TestConvertEmptyInput passes empty buffers through untouched.
func TestConvertEmptyInput(t *testing.T) {
	c, err := NewConverter(44100, 48000)
	require.NoError(t, err)

	out, err := c.Convert(nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = c.Convert([][]float32{{}, {}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Empty(t, out[0])
}

// ============================================================================
// Benchmarks
// ============================================================================

func BenchmarkConvertStereoSecond(b *testing.B) {
	c, err := NewConverter(44100, 48000)
	if err != nil {
		b.Fatal(err)
	}
	in := testutil.SineBlock(440, 44100, 2, 44100, 0.5)

	b.ReportAllocs()
	for b.Loop() {
		if _, err := c.Convert(in); err != nil {
			b.Fatal(err)
		}
	}
}
