package player

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/tphakala/go-audio-player/internal/decode"
	"github.com/tphakala/go-audio-player/internal/device"
	"github.com/tphakala/go-audio-player/internal/pcmqueue"
	"github.com/tphakala/go-audio-player/internal/simdops"
	"github.com/tphakala/go-audio-player/internal/stretch"
)

// Tempo operating range of the live engine.
const (
	MinTempo = 0.25
	MaxTempo = 4.0
)

// retrieveChunkFrames sizes the per-channel buffers used to drain the
// stretch engine into the output queue.
const retrieveChunkFrames = 4096

// Session is the realtime playback engine: one lazily opened output stream,
// one loaded track, a stretch engine and an output queue.
//
// All state shared with the device callback sits behind a single mutex held
// only for short, bounded sections; the callback's fill work is bounded by
// maxFillIterations, so the lock never starves the audio thread.
type Session struct {
	cfg Config
	log *log.Logger
	ops simdops.Ops[float32]

	mu        sync.Mutex
	track     *decode.Track
	info      *TrackInfo
	stretcher *stretch.Stretcher
	queue     *pcmqueue.Queue
	stream    device.Stream

	state     State
	inPos     int  // source cursor in frames; counts audio consumed, not yet heard
	finalSent bool // stretcher flush issued after the source ran out
	tempo     float64
	semitones float64
	volume    float64

	blockScratch [][]float32 // planar views into the track for feeding
	retrScratch  [][]float32 // planar buffers for draining the stretcher
}

// NewSession validates cfg and builds an idle session. The output device is
// not touched until the first Play.
func NewSession(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stretcher, err := stretch.New(stretch.Config{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Quality:    stretch.QualityRealtime,
		WindowSize: cfg.StretchWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s := &Session{
		cfg:          cfg,
		log:          cfg.logger(),
		ops:          simdops.Float32Ops(),
		stretcher:    stretcher,
		queue:        pcmqueue.New(cfg.Channels),
		state:        StateEmpty,
		tempo:        1,
		volume:       1,
		blockScratch: make([][]float32, cfg.Channels),
		retrScratch:  make([][]float32, cfg.Channels),
	}
	for ch := range s.retrScratch {
		s.retrScratch[ch] = make([]float32, retrieveChunkFrames)
	}
	return s, nil
}

// Load decodes path at the session format and installs it. The previous
// track stays in place when decoding fails.
func (s *Session) Load(path string) (*TrackInfo, error) {
	track, err := decode.Open(context.Background(), path, decode.Config{
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		FFmpegPath: s.cfg.FFmpegPath,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return s.LoadTrack(track)
}

// LoadTrack installs an already-decoded track. Effect swaps use this to
// move between the source and rendered files without re-decoding.
func (s *Session) LoadTrack(track *decode.Track) (*TrackInfo, error) {
	if track == nil || track.Frames() == 0 {
		return nil, fmt.Errorf("%w: empty track", ErrDecode)
	}
	if track.SampleRate != s.cfg.SampleRate || track.Channels() != s.cfg.Channels {
		return nil, fmt.Errorf("%w: track format %dHz/%dch does not match session %dHz/%dch",
			ErrInvalidConfig, track.SampleRate, track.Channels(), s.cfg.SampleRate, s.cfg.Channels)
	}

	info := &TrackInfo{
		Path:       track.Path,
		Duration:   track.Duration().Seconds(),
		SampleRate: track.SampleRate,
		Channels:   track.Channels(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = track
	s.info = info
	s.inPos = 0
	s.finalSent = false
	s.queue.Clear()
	s.stretcher.Reset()
	s.state = StateLoaded
	return info, nil
}

// Play starts or resumes playback. From Paused it is a pure unpause. The
// output stream opens lazily on the first call; an open failure leaves the
// session loaded and retryable. After a natural end the track restarts from
// the top.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return ErrNoTrack
	}

	if s.stream == nil {
		stream, err := s.cfg.openDevice()(s.cfg.SampleRate, s.cfg.Channels, s.cfg.BlockFrames, s.fillOutput)
		if err != nil {
			return fmt.Errorf("failed to open output stream: %w", err)
		}
		if err := stream.Start(); err != nil {
			_ = stream.Close()
			return fmt.Errorf("failed to start output stream: %w", err)
		}
		s.stream = stream
	}

	if s.state == StateStopped && s.inPos >= s.track.Frames() {
		s.seekLocked(0)
	}
	s.state = StatePlaying
	return nil
}

// Pause suspends playback; the callback emits silence and the cursor
// freezes.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		s.state = StatePaused
	}
}

// Unpause resumes a paused session.
func (s *Session) Unpause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		s.state = StatePlaying
	}
}

// Stop halts playback and rewinds to the start; the track stays loaded.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return
	}
	s.seekLocked(0)
	s.state = StateStopped
}

// Seek moves the cursor to seconds, clamped to [0, duration]. Playing and
// paused survive a seek; a stopped session becomes loaded again.
func (s *Session) Seek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return
	}
	s.seekLocked(seconds)
	if s.state == StateStopped {
		s.state = StateLoaded
	}
}

// seekLocked repositions the cursor and discards all in-flight audio; the
// stretch engine's cross-block state is invalid after any discontinuity.
func (s *Session) seekLocked(seconds float64) {
	pos := int(math.Max(0, seconds) * float64(s.cfg.SampleRate))
	if pos > s.track.Frames() {
		pos = s.track.Frames()
	}
	s.inPos = pos
	s.finalSent = false
	s.queue.Clear()
	s.stretcher.Reset()
}

// SetTempo sets the speed multiplier (2.0 plays twice as fast), clamped to
// [0.25, 4]. Live: takes effect on the next processed block, no reset.
func (s *Session) SetTempo(tempo float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempo = clampFloat(tempo, MinTempo, MaxTempo)
	s.stretcher.SetTimeRatio(1 / s.tempo)
}

// SetPitch sets the pitch shift in semitones, independent of tempo. Live.
func (s *Session) SetPitch(semitones float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.semitones = semitones
	s.stretcher.SetPitchScale(math.Pow(2, semitones/12))
}

// SetVolume sets the output gain, clamped to [0, 1]. Applied at emission
// time, so it also affects audio already queued.
func (s *Session) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = clampFloat(v, 0, 1)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Position returns the source-time cursor in seconds: audio consumed from
// the source, not audio heard. The small lead over audibility (queued plus
// in-stretcher frames) is an accepted approximation.
func (s *Session) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.inPos) / float64(s.cfg.SampleRate)
}

// Duration returns the loaded track's length in seconds, 0 when empty.
func (s *Session) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return 0
	}
	return s.info.Duration
}

// Track returns the loaded track's info, nil when empty.
func (s *Session) Track() *TrackInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// IsPlaying reports whether the callback is consuming audio.
func (s *Session) IsPlaying() bool { return s.State() == StatePlaying }

// IsPaused reports whether playback is suspended.
func (s *Session) IsPaused() bool { return s.State() == StatePaused }

// IsLoaded reports whether a track is installed.
func (s *Session) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track != nil
}

// Tempo returns the current speed multiplier.
func (s *Session) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempo
}

// Pitch returns the current pitch shift in semitones.
func (s *Session) Pitch() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.semitones
}

// Volume returns the current output gain.
func (s *Session) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Shutdown halts playback and tears down the output stream. Device errors
// are logged, not returned. The session stays usable; a later Play reopens
// the stream.
func (s *Session) Shutdown() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	if s.track != nil {
		s.state = StateLoaded
	} else {
		s.state = StateEmpty
	}
	s.mu.Unlock()

	// Stopping waits for the in-flight callback, which takes the session
	// lock; stop outside it or this deadlocks.
	if stream != nil {
		if err := stream.Stop(); err != nil {
			s.log.Printf("output stream stop: %v", err)
		}
		if err := stream.Close(); err != nil {
			s.log.Printf("output stream close: %v", err)
		}
	}
}

// fillOutput is the device callback. Its work under the lock is bounded by
// maxFillIterations; a panic is converted to silence plus one log line so
// nothing propagates into the driver.
func (s *Session) fillOutput(out []float32) {
	defer func() {
		if r := recover(); r != nil {
			zeroSamples(out)
			s.log.Printf("audio callback panic: %v", r)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying || s.track == nil {
		zeroSamples(out)
		return
	}

	s.ensureQueueLocked(len(out) / s.cfg.Channels)

	n := s.queue.Take(out)
	emitted := out[:n*s.cfg.Channels]
	if s.volume != 1 {
		s.ops.Scale(emitted, emitted, float32(s.volume))
	}
	zeroSamples(out[len(emitted):])
}

// ensureQueueLocked tops the queue up to the request plus headroom by
// feeding the stretcher source blocks, capped at maxFillIterations. When
// the source runs out it flushes the stretcher once, drains the tail, and
// transitions to Stopped once queue and stretcher are both empty; the
// cursor stays at the end.
func (s *Session) ensureQueueLocked(framesNeeded int) {
	target := framesNeeded + queueHeadroomBlocks*s.cfg.BlockFrames

	for iters := 0; s.queue.Frames() < target && iters < maxFillIterations; iters++ {
		remaining := s.track.Frames() - s.inPos
		if remaining <= 0 {
			if !s.finalSent {
				s.finalSent = true
				if _, err := s.stretcher.Process(nil, true); err != nil {
					s.log.Printf("stretch flush: %v", err)
				}
			}
			if s.stretcher.Available() > 0 {
				s.drainStretcherLocked()
				continue
			}
			if s.queue.Frames() == 0 {
				s.state = StateStopped
			}
			return
		}

		n := min(s.cfg.BlockFrames, remaining)
		for ch := range s.blockScratch {
			s.blockScratch[ch] = s.track.Samples[ch][s.inPos : s.inPos+n]
		}
		s.inPos += n
		if _, err := s.stretcher.Process(s.blockScratch, false); err != nil {
			s.log.Printf("stretch process: %v", err)
			s.state = StateStopped
			return
		}
		if s.stretcher.Available() > 0 {
			s.drainStretcherLocked()
		}
	}
}

// drainStretcherLocked moves everything the stretcher has produced into the
// queue as interleaved blocks.
func (s *Session) drainStretcherLocked() {
	for {
		n := s.stretcher.Retrieve(s.retrScratch)
		if n == 0 {
			return
		}
		block := make([]float32, n*s.cfg.Channels)
		s.interleaveInto(block, n)
		s.queue.Append(block)
	}
}

// interleaveInto packs the first n frames of the retrieve scratch into dst.
func (s *Session) interleaveInto(dst []float32, n int) {
	if s.cfg.Channels == 2 {
		s.ops.Interleave2(dst, s.retrScratch[0][:n], s.retrScratch[1][:n])
		return
	}
	for ch := range s.retrScratch {
		src := s.retrScratch[ch][:n]
		for i, v := range src {
			dst[i*s.cfg.Channels+ch] = v
		}
	}
}

func zeroSamples(s []float32) {
	for i := range s {
		s[i] = 0
	}
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
