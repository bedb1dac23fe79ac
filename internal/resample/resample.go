// Package resample converts whole audio buffers between sample rates with a
// Kaiser-windowed sinc polyphase filter.
//
// The converter is strictly offline: it takes a complete planar float32
// buffer and returns a new one, with the filter edges zero-padded. Streaming
// rate conversion inside the playback path is a different problem with
// different constraints and lives in the stretch engine.
//
// Quality is fixed at one transparent preset: a 256-phase bank, 32 taps per
// phase, ~100 dB stopband, cubic interpolation between phases, and 20-bit
// fixed-point phase accumulation so long buffers do not drift.
package resample

import (
	"fmt"

	"github.com/tphakala/go-audio-player/internal/simdops"
)

const (
	numPhases = 256
	phaseBits = 8 // log2(numPhases)

	fracBits  = 20
	fracScale = 1 << fracBits

	tapsPerPhase = 32
	protoTaps    = numPhases * tapsPerPhase

	stopbandDB   = 100.0
	passbandFrac = 0.95 // fraction of the narrower Nyquist kept flat

	// One input sample in fixed-point position units.
	positionUnit = numPhases * fracScale

	minRate = 8000
	maxRate = 768000
)

// Converter resamples float32 buffers from one fixed rate to another. It is
// stateless between calls and safe for concurrent use once built.
type Converter struct {
	fromRate int
	toRate   int

	step uint64 // input advance per output sample, in position units

	a, b, c, d [][]float32 // coefficient planes, nil for identity rates

	ops *simdops.Ops[float32]
}

// NewConverter designs the filter bank for a fromRate to toRate conversion.
// Equal rates yield an identity converter with no filter.
func NewConverter(fromRate, toRate int) (*Converter, error) {
	for _, r := range []int{fromRate, toRate} {
		if r < minRate || r > maxRate {
			return nil, fmt.Errorf("sample rate %d out of range [%d, %d]", r, minRate, maxRate)
		}
	}

	c := &Converter{
		fromRate: fromRate,
		toRate:   toRate,
		ops:      simdops.For[float32](),
	}
	if fromRate == toRate {
		return c, nil
	}

	c.step = (uint64(fromRate)*positionUnit + uint64(toRate)/2) / uint64(toRate)

	// Cutoff sits below the narrower of the two Nyquist frequencies,
	// normalized to the input rate.
	ratio := float64(toRate) / float64(fromRate)
	cutoff := 0.5 * passbandFrac
	if ratio < 1 {
		cutoff *= ratio
	}
	c.a, c.b, c.c, c.d = phasePlanes(designPrototype(cutoff))
	return c, nil
}

// Ratio returns toRate / fromRate.
func (c *Converter) Ratio() float64 {
	return float64(c.toRate) / float64(c.fromRate)
}

// OutputFrames returns the number of frames Convert produces for
// inputFrames of input.
func (c *Converter) OutputFrames(inputFrames int) int {
	if inputFrames <= 0 || c.fromRate == c.toRate {
		return max(inputFrames, 0)
	}
	n := (uint64(inputFrames)*uint64(c.toRate) + uint64(c.fromRate) - 1) / uint64(c.fromRate)
	return int(n)
}

// Convert resamples a planar buffer. All channels must have equal length.
// Identity conversions return the input unchanged, sharing its backing
// arrays; otherwise a freshly allocated buffer comes back.
func (c *Converter) Convert(planar [][]float32) ([][]float32, error) {
	if len(planar) == 0 {
		return planar, nil
	}
	frames := len(planar[0])
	for i, ch := range planar {
		if len(ch) != frames {
			return nil, fmt.Errorf("ragged input: channel %d has %d frames, channel 0 has %d", i, len(ch), frames)
		}
	}
	if c.fromRate == c.toRate || frames == 0 {
		return planar, nil
	}

	out := make([][]float32, len(planar))
	for i, ch := range planar {
		out[i] = c.convertChannel(ch)
	}
	return out, nil
}

// convertChannel runs the polyphase loop over one channel. The input is
// copied into a zero-padded buffer so the kernel can run past both edges;
// each output sample is one fused dot product against the interpolated
// phase row.
func (c *Converter) convertChannel(src []float32) []float32 {
	const half = tapsPerPhase / 2

	padded := make([]float32, tapsPerPhase+len(src)+tapsPerPhase)
	copy(padded[tapsPerPhase:], src)

	dst := make([]float32, c.OutputFrames(len(src)))
	maxIdx := len(src) - 1

	var pos uint64
	for n := range dst {
		idx := int(pos >> (phaseBits + fracBits))
		if idx > maxIdx {
			idx = maxIdx
		}
		phase := int(pos>>fracBits) & (numPhases - 1)
		frac := float32(pos&(fracScale-1)) / float32(fracScale)

		// Kernel window centered on idx: input samples
		// [idx-half+1, idx+half], shifted by the pad.
		hist := padded[idx+half+1 : idx+half+1+tapsPerPhase]
		dst[n] = c.ops.CubicInterpDot(hist, c.a[phase], c.b[phase], c.c[phase], c.d[phase], frac)

		pos += c.step
	}
	return dst
}

// Convert is the one-shot form: design a converter for the rate pair, run
// it over planar, and return the result.
func Convert(planar [][]float32, fromRate, toRate int) ([][]float32, error) {
	c, err := NewConverter(fromRate, toRate)
	if err != nil {
		return nil, err
	}
	return c.Convert(planar)
}
