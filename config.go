package player

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/tphakala/go-audio-player/internal/device"
)

// Errors returned by the player.
var (
	// ErrInvalidConfig indicates invalid configuration parameters.
	ErrInvalidConfig = errors.New("invalid player configuration")

	// ErrNoTrack indicates an operation that requires a loaded track.
	ErrNoTrack = errors.New("no track loaded")

	// ErrDecode indicates a file could not be decoded to PCM. Fatal to that
	// load call only; prior session state is untouched.
	ErrDecode = errors.New("decode failed")

	// ErrRender indicates the offline stretch tool failed. Fatal to the one
	// render job; playback continues unaffected.
	ErrRender = errors.New("render failed")
)

// Playback format defaults.
const (
	DefaultSampleRate  = 48000
	DefaultChannels    = 2
	DefaultBlockFrames = 1024

	minBlockFrames = 64
	maxChannels    = 8
)

// maxFillIterations caps process/retrieve cycles per device callback so the
// real-time deadline cannot be missed; an unmet remainder is zero-filled and
// deferred to the next callback.
const maxFillIterations = 24

// queueHeadroomBlocks is how far beyond the current request the callback
// tops up the output queue, in device blocks.
const queueHeadroomBlocks = 2

// Config holds the fixed parameters of a playback session.
type Config struct {
	// SampleRate and Channels fix the output format. Every source is
	// decoded or adapted to it, so the output stream never reopens.
	SampleRate int
	Channels   int

	// BlockFrames is the device buffer size per callback.
	BlockFrames int

	// FFmpegPath and RubberbandPath override the external tools; empty
	// resolves them from PATH.
	FFmpegPath     string
	RubberbandPath string

	// StretchWindow overrides the live stretch engine's STFT window
	// (even, >= 64); zero selects the realtime preset.
	StretchWindow int

	// Logger receives diagnostics such as callback panics and render
	// completions. Nil means log.Default().
	Logger *log.Logger

	// OpenDevice opens the output stream; nil uses the PortAudio default
	// device. Swappable so tests can drive playback without hardware.
	OpenDevice device.OpenFunc
}

// DefaultConfig returns the standard 48kHz stereo configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:  DefaultSampleRate,
		Channels:    DefaultChannels,
		BlockFrames: DefaultBlockFrames,
	}
}

// ConfigFromEnv starts from DefaultConfig and applies PLAYER_* environment
// overrides: PLAYER_SAMPLE_RATE, PLAYER_CHANNELS, PLAYER_BLOCK_FRAMES,
// PLAYER_FFMPEG, PLAYER_RUBBERBAND.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, v := range []struct {
		name string
		dst  *int
	}{
		{"PLAYER_SAMPLE_RATE", &cfg.SampleRate},
		{"PLAYER_CHANNELS", &cfg.Channels},
		{"PLAYER_BLOCK_FRAMES", &cfg.BlockFrames},
	} {
		raw := os.Getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, v.name, raw)
		}
		*v.dst = n
	}
	if v := os.Getenv("PLAYER_FFMPEG"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := os.Getenv("PLAYER_RUBBERBAND"); v != "" {
		cfg.RubberbandPath = v
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid configuration field.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	}
	if c.Channels < 1 {
		return fmt.Errorf("%w: channels must be at least 1", ErrInvalidConfig)
	}
	if c.Channels > maxChannels {
		return fmt.Errorf("%w: too many channels (max %d)", ErrInvalidConfig, maxChannels)
	}
	if c.BlockFrames < minBlockFrames {
		return fmt.Errorf("%w: block frames must be at least %d", ErrInvalidConfig, minBlockFrames)
	}
	return nil
}

func (c *Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c *Config) openDevice() device.OpenFunc {
	if c.OpenDevice != nil {
		return c.OpenDevice
	}
	return device.Open
}
