package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// readWAV decodes a WAV file in process via go-audio. It bails out after
// the header (ok=false, no error) when the file's rate differs from
// wantRate, so a fallback decode does not pay for a full read here first.
func readWAV(path string, wantRate int) ([][]float32, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, false, fmt.Errorf("invalid WAV file: %s", path)
	}
	if int(dec.SampleRate) != wantRate {
		return nil, false, nil
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read WAV data: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, false, fmt.Errorf("invalid WAV channel count %d", channels)
	}
	frames := len(buf.Data) / channels

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	maxVal := float32(int64(1)<<(bitDepth-1)) - 1

	planar := make([][]float32, channels)
	for ch := range planar {
		planar[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			planar[ch][i] = float32(buf.Data[i*channels+ch]) / maxVal
		}
	}
	return planar, true, nil
}

// readMP3 decodes an MP3 file in process via go-mp3, which always emits
// 16-bit little-endian stereo. Same early-out contract as readWAV.
func readMP3(path string, wantRate int) ([][]float32, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, false, fmt.Errorf("invalid MP3 file: %w", err)
	}
	if dec.SampleRate() != wantRate {
		return nil, false, nil
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read MP3 data: %w", err)
	}

	const bytesPerFrame = 4 // 2 channels x int16
	frames := len(raw) / bytesPerFrame

	planar := [][]float32{make([]float32, frames), make([]float32, frames)}
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(raw[i*bytesPerFrame:]))
		r := int16(binary.LittleEndian.Uint16(raw[i*bytesPerFrame+2:]))
		planar[0][i] = float32(l) / 32767
		planar[1][i] = float32(r) / 32767
	}
	return planar, true, nil
}
