// Package stretch implements a real-time-safe time-stretch and pitch-shift
// engine for streaming PCM blocks.
//
// The algorithm is a per-channel phase vocoder with a fixed synthesis hop:
// analysis frames are taken at a variable hop (synthesis hop divided by the
// combined stretch ratio), phases are propagated per bin with principal
// argument correction, and frames are Hann-windowed back together with a
// window-squared-normalized overlap-add. A cubic Hermite resampling stage
// (ratio 1/pitchScale) then restores the duration and shifts the pitch, so
// that time ratio and pitch scale act independently.
//
// Output is not produced 1:1 with input: a processed block may make zero
// frames available or many, and callers drive Process/Retrieve in a loop.
// All ratio setters are live and take effect on the next analysis frame.
//
// A Stretcher is not safe for concurrent use; callers serialize access.
package stretch

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/tphakala/go-audio-player/internal/simdops"
)

// Quality selects the processing preset.
type Quality int

const (
	// QualityRealtime favors latency over spectral resolution; the preset
	// for live playback.
	QualityRealtime Quality = iota

	// QualityOffline favors quality; used for non-interactive rendering.
	QualityOffline
)

// Config holds the stretcher's fixed per-stream parameters.
type Config struct {
	SampleRate int
	Channels   int
	Quality    Quality

	// WindowSize overrides the preset window when nonzero.
	// Must be an even size of at least 64.
	WindowSize int
}

// Validate reports the first invalid configuration field.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("stretch: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels < 1 || c.Channels > channelLimit {
		return fmt.Errorf("stretch: channels must be in [1,%d], got %d", channelLimit, c.Channels)
	}
	if c.WindowSize != 0 && (c.WindowSize < 64 || c.WindowSize%2 != 0) {
		return fmt.Errorf("stretch: window size must be an even value >= 64, got %d", c.WindowSize)
	}
	switch c.Quality {
	case QualityRealtime, QualityOffline:
	default:
		return fmt.Errorf("stretch: unknown quality preset %d", int(c.Quality))
	}
	return nil
}

// windowSize resolves the effective STFT window.
func (c *Config) windowSize() int {
	if c.WindowSize != 0 {
		return c.WindowSize
	}
	if c.Quality == QualityOffline {
		return defaultOfflineWindow
	}
	return defaultRealtimeWindow
}

// channelState carries everything that is independent per channel.
type channelState struct {
	in        []float64 // pending input, logical start at Stretcher.inBase
	prevPhase []float64
	synPhase  []float64
	spec      []complex128
	synth     []complex128
	ola       []float64 // overlap-add accumulator, logical start at olaBase
	resamp    *cubicResampler
	out       []float32 // produced frames, read cursor at Stretcher.outRead
}

// Stretcher is the streaming time-stretch/pitch-shift processor.
type Stretcher struct {
	cfg      Config
	window   int
	hop      int
	bins     int
	fft      *fourier.FFT
	anaWin   []float64 // analysis Hann window
	synWin   []float64 // synthesis window with the IFFT 1/N folded in
	binFreq  []float64 // per-sample angular bin frequency 2*pi*k/window
	channels []*channelState

	timeRatio  float64
	pitchScale float64

	// Shared frame scratch.
	work []float64
	seq  []float64
	wsum []float64 // window-squared overlap sum, logical start at olaBase

	// Logical cursors, in frames/samples since the last reset.
	inTotal  int     // input frames accepted
	inBase   int     // logical index of in[0]
	anaPos   float64 // next analysis window start
	prevRead int     // previous analysis read position
	havePrev bool    // a first frame has seeded the phase state
	synPos   int     // next synthesis write start (pre-resampler samples)
	emitPos  int     // samples already emitted to the pitch stage
	olaBase  int     // logical index of ola[0]/wsum[0]
	outRead  int     // read cursor into channelState.out

	emitScratch []float64
	finished    bool
}

// New creates a stretcher for the given configuration.
func New(cfg Config) (*Stretcher, error) {
	s := &Stretcher{
		cfg:        cfg,
		timeRatio:  1.0,
		pitchScale: 1.0,
	}
	if err := s.Configure(cfg.SampleRate, cfg.Channels); err != nil {
		return nil, err
	}
	return s, nil
}

// Configure rebuilds the stretcher for a stream format, discarding all
// internal state. Ratios survive reconfiguration.
func (s *Stretcher) Configure(sampleRate, channels int) error {
	cfg := s.cfg
	cfg.SampleRate = sampleRate
	cfg.Channels = channels
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg

	w := cfg.windowSize()
	s.window = w
	s.hop = w / overlapFactor
	s.bins = w/2 + 1
	s.fft = fourier.NewFFT(w)

	ones := make([]float64, w)
	for i := range ones {
		ones[i] = 1
	}
	s.anaWin = window.Hann(ones)
	s.synWin = make([]float64, w)
	simdops.For[float64]().Scale(s.synWin, s.anaWin, 1/float64(w))

	s.binFreq = make([]float64, s.bins)
	for k := range s.binFreq {
		s.binFreq[k] = 2 * math.Pi * float64(k) / float64(w)
	}

	s.work = make([]float64, w)
	s.seq = make([]float64, w)
	s.wsum = s.wsum[:0]
	s.emitScratch = nil

	s.channels = make([]*channelState, channels)
	for i := range s.channels {
		s.channels[i] = &channelState{
			prevPhase: make([]float64, s.bins),
			synPhase:  make([]float64, s.bins),
			spec:      make([]complex128, s.bins),
			synth:     make([]complex128, s.bins),
			resamp:    newCubicResampler(1 / s.pitchScale),
		}
	}

	s.resetCursors()
	return nil
}

// Reset discards all cross-block state (pending input, phases, overlap-add
// accumulators, resampler history, produced output) without reallocating.
// Required after any stream discontinuity such as a seek.
func (s *Stretcher) Reset() {
	for _, ch := range s.channels {
		ch.in = ch.in[:0]
		ch.ola = ch.ola[:0]
		ch.out = ch.out[:0]
		for k := range ch.prevPhase {
			ch.prevPhase[k] = 0
			ch.synPhase[k] = 0
		}
		ch.resamp.reset()
		ch.resamp.setRatio(1 / s.pitchScale)
	}
	s.wsum = s.wsum[:0]
	s.resetCursors()
}

func (s *Stretcher) resetCursors() {
	s.inTotal = 0
	s.inBase = 0
	s.anaPos = 0
	s.prevRead = 0
	s.havePrev = false
	s.synPos = 0
	s.emitPos = 0
	s.olaBase = 0
	s.outRead = 0
	s.finished = false
}

// SetTimeRatio sets the duration multiplier (2.0 plays twice as long).
// Clamped to [0.25, 4]; live, no reset required.
func (s *Stretcher) SetTimeRatio(r float64) {
	s.timeRatio = clampFloat(r, minTimeRatio, maxTimeRatio)
}

// SetPitchScale sets the frequency multiplier (2.0 is one octave up).
// Clamped to [0.25, 4]; live, no reset required.
func (s *Stretcher) SetPitchScale(r float64) {
	s.pitchScale = clampFloat(r, minPitchScale, maxPitchScale)
	for _, ch := range s.channels {
		ch.resamp.setRatio(1 / s.pitchScale)
	}
}

// TimeRatio returns the current duration multiplier.
func (s *Stretcher) TimeRatio() float64 { return s.timeRatio }

// PitchScale returns the current frequency multiplier.
func (s *Stretcher) PitchScale() float64 { return s.pitchScale }

// Latency returns the approximate inherent latency in input frames
// (one analysis window).
func (s *Stretcher) Latency() int { return s.window }

// Channels returns the configured channel count.
func (s *Stretcher) Channels() int { return s.cfg.Channels }

// Process feeds one planar block of input. The block may be nil or empty,
// which is the usual way to pass final=true after the source is exhausted;
// final flushes the remaining internal latency. Returns the number of frames
// now retrievable.
func (s *Stretcher) Process(block [][]float32, final bool) (int, error) {
	if s.finished {
		if blockFrames(block) > 0 {
			return s.Available(), fmt.Errorf("stretch: input after final block")
		}
		return s.Available(), nil
	}
	if len(block) != 0 && len(block) != len(s.channels) {
		return s.Available(), fmt.Errorf("stretch: expected %d channels, got %d", len(s.channels), len(block))
	}

	frames := blockFrames(block)
	for i := range block {
		if len(block[i]) != frames {
			return s.Available(), fmt.Errorf("stretch: ragged channel lengths")
		}
	}
	if frames > 0 {
		for i, ch := range s.channels {
			for j := 0; j < frames; j++ {
				ch.in = append(ch.in, float64(block[i][j]))
			}
		}
		s.inTotal += frames
	}

	s.runFrames()

	if final {
		// Pad one window of silence so every real sample gets full
		// overlap coverage, then flush the accumulated tail.
		for _, ch := range s.channels {
			for i := 0; i < s.window; i++ {
				ch.in = append(ch.in, 0)
			}
		}
		s.inTotal += s.window
		s.runFrames()

		if s.havePrev {
			tail := s.synPos - s.hop + s.window
			s.emitReady(tail)
		}
		s.finished = true
	}

	return s.Available(), nil
}

// Available returns the number of frames ready for Retrieve.
func (s *Stretcher) Available() int {
	if len(s.channels) == 0 {
		return 0
	}
	return len(s.channels[0].out) - s.outRead
}

// Retrieve copies up to len(dst[ch]) produced frames into dst (planar, one
// slice per channel) and returns the number of frames copied.
func (s *Stretcher) Retrieve(dst [][]float32) int {
	if len(dst) != len(s.channels) {
		return 0
	}
	n := s.Available()
	for _, d := range dst {
		if len(d) < n {
			n = len(d)
		}
	}
	if n <= 0 {
		return 0
	}
	for i, ch := range s.channels {
		copy(dst[i][:n], ch.out[s.outRead:s.outRead+n])
	}
	s.outRead += n

	// Reclaim the consumed prefix once it dominates the buffer.
	if s.outRead > s.window && s.outRead > len(s.channels[0].out)/2 {
		for _, ch := range s.channels {
			ch.out = ch.out[:copy(ch.out, ch.out[s.outRead:])]
		}
		s.outRead = 0
	}
	return n
}

// runFrames processes every analysis frame the pending input can satisfy,
// then emits completed overlap-add output to the pitch stage.
func (s *Stretcher) runFrames() {
	processed := false
	for int(s.anaPos)+s.window <= s.inTotal {
		s.frame()
		processed = true
	}
	if processed {
		s.emitReady(s.synPos)
		s.compact()
	}
}

// frame runs one analysis/synthesis cycle at the current cursors.
func (s *Stretcher) frame() {
	ri := int(s.anaPos)
	stretchRatio := s.timeRatio * s.pitchScale
	anaHop := float64(s.hop) / stretchRatio

	// Make room for the synthesis write.
	need := s.synPos - s.olaBase + s.window
	for len(s.wsum) < need {
		s.wsum = append(s.wsum, 0)
	}

	actualHop := float64(ri - s.prevRead)
	if actualHop < 1 {
		actualHop = anaHop
	}

	for _, ch := range s.channels {
		for len(ch.ola) < need {
			ch.ola = append(ch.ola, 0)
		}

		// Analysis: windowed FFT of the current grain.
		start := ri - s.inBase
		grain := ch.in[start : start+s.window]
		for i := range s.work {
			s.work[i] = grain[i] * s.anaWin[i]
		}
		s.fft.Coefficients(ch.spec, s.work)

		if !s.havePrev {
			// First frame seeds the phase state and passes through.
			for k, c := range ch.spec {
				ph := cmplx.Phase(c)
				ch.prevPhase[k] = ph
				ch.synPhase[k] = ph
				ch.synth[k] = c
			}
		} else {
			for k, c := range ch.spec {
				ph := cmplx.Phase(c)
				mag := cmplx.Abs(c)

				// Instantaneous frequency from the measured phase
				// advance over the actual analysis hop.
				delta := princarg(ph - ch.prevPhase[k] - s.binFreq[k]*actualHop)
				perSample := s.binFreq[k] + delta/actualHop

				ch.synPhase[k] = princarg(ch.synPhase[k] + perSample*float64(s.hop))
				ch.synth[k] = cmplx.Rect(mag, ch.synPhase[k])
				ch.prevPhase[k] = ph
			}
		}

		// Synthesis: IFFT (1/N folded into synWin) and overlap-add.
		s.fft.Sequence(s.seq, ch.synth)
		off := s.synPos - s.olaBase
		for i := range s.seq {
			ch.ola[off+i] += s.seq[i] * s.synWin[i]
		}
	}

	// Window-squared sum is channel-independent; accumulate once.
	off := s.synPos - s.olaBase
	for i, w := range s.anaWin {
		s.wsum[off+i] += w * w
	}

	s.prevRead = ri
	s.havePrev = true
	s.anaPos += anaHop
	s.synPos += s.hop
}

// emitReady normalizes overlap-add output below upTo (which future frames
// can no longer touch) and pushes it through the pitch resampler.
func (s *Stretcher) emitReady(upTo int) {
	limit := s.olaBase + len(s.wsum)
	if upTo > limit {
		upTo = limit
	}
	count := upTo - s.emitPos
	if count <= 0 {
		return
	}
	if cap(s.emitScratch) < count {
		s.emitScratch = make([]float64, count)
	}
	buf := s.emitScratch[:count]

	off := s.emitPos - s.olaBase
	for _, ch := range s.channels {
		for i := 0; i < count; i++ {
			n := s.wsum[off+i]
			if n < normFloor {
				n = normFloor
			}
			buf[i] = ch.ola[off+i] / n
		}
		ch.out = ch.resamp.process(ch.out, buf)
	}
	s.emitPos = upTo
}

// compact reclaims consumed prefixes of the input and overlap-add buffers.
func (s *Stretcher) compact() {
	nextRead := int(s.anaPos)
	if nextRead-s.inBase > compactSlack*s.window {
		drop := nextRead - s.inBase
		for _, ch := range s.channels {
			ch.in = ch.in[:copy(ch.in, ch.in[drop:])]
		}
		s.inBase = nextRead
	}
	if s.emitPos-s.olaBase > compactSlack*s.window {
		drop := s.emitPos - s.olaBase
		for _, ch := range s.channels {
			ch.ola = ch.ola[:copy(ch.ola, ch.ola[drop:])]
		}
		s.wsum = s.wsum[:copy(s.wsum, s.wsum[drop:])]
		s.olaBase = s.emitPos
	}
}

func blockFrames(block [][]float32) int {
	if len(block) == 0 {
		return 0
	}
	return len(block[0])
}

// princarg wraps a phase into (-pi, pi].
func princarg(x float64) float64 {
	m := math.Mod(x+math.Pi, 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}
	return m - math.Pi
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
