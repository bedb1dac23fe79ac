// Package device wraps the PortAudio default output stream behind a small
// interface so playback can run against a fake device in tests.
package device

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Callback fills an interleaved float32 output buffer on the device thread.
// The buffer holds len(out)/channels frames and must be fully written every
// invocation; the callback never blocks for unbounded time.
type Callback func(out []float32)

// Stream is an opened output stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// OpenFunc opens an output stream for the given format. Swappable so tests
// can drive the callback without audio hardware.
type OpenFunc func(sampleRate, channels, blockFrames int, cb Callback) (Stream, error)

var (
	initOnce sync.Once
	initErr  error
)

// Open opens the default PortAudio output device. The PortAudio library is
// initialized once per process and never terminated; streams are closed
// individually by their owners.
func Open(sampleRate, channels, blockFrames int, cb Callback) (Stream, error) {
	initOnce.Do(func() { initErr = portaudio.Initialize() })
	if initErr != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", initErr)
	}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), blockFrames,
		func(out []float32) { cb(out) })
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	return stream, nil
}
