package decode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ffmpegDecode shells out to ffmpeg, converting any input to raw f32le at
// the target rate and channel count on stdout.
func ffmpegDecode(ctx context.Context, path string, cfg Config) ([][]float32, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, cfg.ffmpeg(), args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(string(exitErr.Stderr))
			if msg == "" {
				msg = exitErr.String()
			}
			return nil, fmt.Errorf("ffmpeg failed for %s: %s", path, msg)
		}
		return nil, fmt.Errorf("ffmpeg not available (%s): %w", cfg.ffmpeg(), err)
	}

	samples := len(out) / 4
	frames := samples / cfg.Channels
	if frames == 0 {
		return nil, fmt.Errorf("no audio data decoded from %s", path)
	}

	planar := make([][]float32, cfg.Channels)
	for ch := range planar {
		planar[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		base := i * cfg.Channels * 4
		for ch := 0; ch < cfg.Channels; ch++ {
			bits := binary.LittleEndian.Uint32(out[base+ch*4:])
			planar[ch][i] = math.Float32frombits(bits)
		}
	}
	return planar, nil
}
