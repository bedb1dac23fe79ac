// Package decode loads audio files into planar float32 PCM at a caller-fixed
// sample rate and channel count.
//
// WAV and MP3 files whose sample rate already matches the target are decoded
// natively (channel shape is still adapted in process). Everything else,
// including rate mismatches and exotic containers, falls back to an ffmpeg
// subprocess emitting raw f32le on stdout. The fallback means format support
// tracks the installed ffmpeg, not this package.
package decode

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// defaultFFmpeg is the binary resolved from PATH when Config.FFmpegPath
// is empty.
const defaultFFmpeg = "ffmpeg"

// Config fixes the output format every decoded track is converted to.
type Config struct {
	// SampleRate is the target rate. Native decoding is only used when
	// the file already matches; otherwise ffmpeg resamples.
	SampleRate int

	// Channels is the target channel count.
	Channels int

	// FFmpegPath overrides the ffmpeg binary; empty means "ffmpeg"
	// resolved from PATH.
	FFmpegPath string
}

// Validate reports the first invalid configuration field.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("decode: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels < 1 {
		return fmt.Errorf("decode: channels must be positive, got %d", c.Channels)
	}
	return nil
}

func (c *Config) ffmpeg() string {
	if c.FFmpegPath != "" {
		return c.FFmpegPath
	}
	return defaultFFmpeg
}

// Track is a fully decoded audio file. Samples are planar, one slice per
// channel, all the same length. A Track is immutable after decoding;
// channel slices may alias each other when channels were duplicated.
type Track struct {
	Path       string
	SampleRate int
	Samples    [][]float32
}

// Channels returns the channel count.
func (t *Track) Channels() int { return len(t.Samples) }

// Frames returns the per-channel sample count.
func (t *Track) Frames() int {
	if len(t.Samples) == 0 {
		return 0
	}
	return len(t.Samples[0])
}

// Duration returns the track length at its sample rate.
func (t *Track) Duration() time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(t.Frames()) / float64(t.SampleRate) * float64(time.Second))
}

// Open decodes path into a Track at the configured rate and channel count.
func Open(ctx context.Context, path string, cfg Config) (*Track, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Native fast path: container decodes cleanly at the target rate.
	if planar, ok := tryNative(path, cfg); ok {
		return &Track{Path: path, SampleRate: cfg.SampleRate, Samples: planar}, nil
	}

	planar, err := ffmpegDecode(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	return &Track{Path: path, SampleRate: cfg.SampleRate, Samples: planar}, nil
}

// tryNative attempts an in-process decode. It only succeeds when the file's
// own sample rate equals the target; channel shape is adapted here. Any
// native failure routes through the fallback instead of surfacing.
func tryNative(path string, cfg Config) ([][]float32, bool) {
	var (
		planar [][]float32
		ok     bool
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		planar, ok, err = readWAV(path, cfg.SampleRate)
	case ".mp3":
		planar, ok, err = readMP3(path, cfg.SampleRate)
	default:
		return nil, false
	}
	if err != nil || !ok || frameCount(planar) == 0 {
		return nil, false
	}
	return adaptChannels(planar, cfg.Channels), true
}

// adaptChannels reshapes a planar block to the target channel count.
// Missing channels repeat existing ones (mono duplicates to all outputs);
// excess channels are dropped. Output slices may alias the input.
func adaptChannels(planar [][]float32, channels int) [][]float32 {
	if len(planar) == channels {
		return planar
	}
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = planar[ch%len(planar)]
	}
	return out
}

func frameCount(planar [][]float32) int {
	if len(planar) == 0 {
		return 0
	}
	return len(planar[0])
}
