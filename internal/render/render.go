// Package render produces offline high-quality time-stretch renders by
// shelling out to the Rubber Band CLI.
//
// The renderer keeps one decoded source WAV in a private temp directory and
// two render paths: a cached full-track render on the highest-quality engine,
// and an uncached bounded preview clip on the faster engine. Renders are
// keyed and cached by their Effects value; concurrent requests for the same
// full render are coalesced so the tool runs once.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tphakala/go-audio-player/internal/decode"
	"github.com/tphakala/go-audio-player/internal/wavio"
)

const (
	// defaultTool is the binary resolved from PATH when Config.ToolPath
	// is empty.
	defaultTool = "rubberband"

	// tempDirPattern names the per-process working directory holding the
	// decoded source and every render; removed on Close.
	tempDirPattern = "stretchplayer_rb_*"

	// sourceFileName is the stable 16-bit decode the full renders read,
	// written once per loaded track.
	sourceFileName = "decoded_source.wav"

	// previewLengthSeconds bounds the preview clip, truncated at the
	// track end.
	previewLengthSeconds = 10.0

	// renderBlockFrames sizes WAV writes when exporting PCM.
	renderBlockFrames = 65536
)

// Effects operating ranges. Requests outside are clamped, matching the
// ranges the CLI tool accepts without complaint.
const (
	MinTempo     = 0.25
	MaxTempo     = 4.0
	MinSemitones = -24.0
	MaxSemitones = 24.0
)

// Effects is a render request: tempo ratio (2.0 plays twice as fast) and a
// pitch shift in semitones. The zero shift at tempo 1 is the identity.
// Effects is comparable and used directly as the cache key.
type Effects struct {
	Tempo     float64
	Semitones float64
}

// Clamp returns e bounded to the supported ranges.
func (e Effects) Clamp() Effects {
	return Effects{
		Tempo:     clamp(e.Tempo, MinTempo, MaxTempo),
		Semitones: clamp(e.Semitones, MinSemitones, MaxSemitones),
	}
}

// IsIdentity reports whether e is a no-op transform within tol.
func (e Effects) IsIdentity(tol float64) bool {
	return math.Abs(e.Tempo-1) < tol && math.Abs(e.Semitones) < tol
}

// Config holds renderer options.
type Config struct {
	// ToolPath overrides the Rubber Band binary; empty means "rubberband"
	// resolved from PATH.
	ToolPath string

	// Logger receives one line per completed render; nil disables.
	Logger *log.Logger
}

func (c *Config) tool() string {
	if c.ToolPath != "" {
		return c.ToolPath
	}
	return defaultTool
}

// Renderer owns the temp directory, the decoded source, and the render
// cache. Renders run without the lock; only cache and source bookkeeping
// are locked.
type Renderer struct {
	cfg Config
	dir string

	mu     sync.Mutex
	src    *decode.Track
	srcWAV string
	cache  map[Effects]string

	flight singleflight.Group
}

// NewRenderer creates a renderer with a fresh private temp directory.
func NewRenderer(cfg Config) (*Renderer, error) {
	dir, err := os.MkdirTemp("", tempDirPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create render directory: %w", err)
	}
	return &Renderer{
		cfg:   cfg,
		dir:   dir,
		cache: make(map[Effects]string),
	}, nil
}

// Dir returns the working directory holding source and render files.
func (r *Renderer) Dir() string { return r.dir }

// LoadSource stores the decoded track, resets the render cache, and exports
// the stable source WAV the full renders read. Safe to call again for a new
// track; prior render files become unreferenced until Close.
func (r *Renderer) LoadSource(track *decode.Track) error {
	if track == nil || track.Frames() == 0 {
		return errors.New("render: no audio in source track")
	}

	path := filepath.Join(r.dir, sourceFileName)
	if err := exportWAV(path, track.Samples, track.SampleRate); err != nil {
		return fmt.Errorf("failed to export source WAV: %w", err)
	}

	r.mu.Lock()
	r.src = track
	r.srcWAV = path
	r.cache = make(map[Effects]string)
	r.mu.Unlock()
	return nil
}

// Render produces (or returns the cached) full-track render for fx.
// The tool runs with the R3 engine, formant preservation and centre focus;
// identical concurrent requests share one tool invocation.
func (r *Renderer) Render(ctx context.Context, fx Effects) (string, error) {
	fx = fx.Clamp()

	r.mu.Lock()
	if path, ok := r.cache[fx]; ok {
		r.mu.Unlock()
		return path, nil
	}
	srcWAV := r.srcWAV
	r.mu.Unlock()
	if srcWAV == "" {
		return "", errors.New("render: no source loaded")
	}

	out := filepath.Join(r.dir, fmt.Sprintf("rb_t%.3f_p%.3f.wav", fx.Tempo, fx.Semitones))
	path, err, _ := r.flight.Do(out, func() (any, error) {
		start := time.Now()
		args := []string{
			"-3", "-F", "--centre-focus", "-q",
			fmt.Sprintf("-T%g", fx.Tempo),
			fmt.Sprintf("-p%g", fx.Semitones),
			srcWAV, out,
		}
		if err := r.runTool(ctx, args); err != nil {
			return "", err
		}

		r.mu.Lock()
		// LoadSource may have swapped sources mid-render; only cache
		// results that still belong to the current one.
		if r.srcWAV == srcWAV {
			r.cache[fx] = out
		}
		r.mu.Unlock()

		r.logf("full render t=%.3f p=%.3f done in %s", fx.Tempo, fx.Semitones, time.Since(start).Round(time.Millisecond))
		return out, nil
	})
	if err != nil {
		return "", err
	}
	return path.(string), nil
}

// Preview renders a bounded clip starting at startSeconds on the faster
// engine. Previews are position-dependent and never cached; file names carry
// jobID so overlapping jobs cannot collide.
func (r *Renderer) Preview(ctx context.Context, fx Effects, startSeconds float64, jobID uint64) (string, error) {
	fx = fx.Clamp()

	r.mu.Lock()
	track := r.src
	r.mu.Unlock()
	if track == nil {
		return "", errors.New("render: no source loaded")
	}

	clip, err := clipSource(track, startSeconds)
	if err != nil {
		return "", err
	}

	in := filepath.Join(r.dir, fmt.Sprintf("preview_in_%d.wav", jobID))
	out := filepath.Join(r.dir, fmt.Sprintf("preview_out_%d_t%.3f_p%.3f.wav", jobID, fx.Tempo, fx.Semitones))
	if err := exportWAV(in, clip, track.SampleRate); err != nil {
		return "", fmt.Errorf("failed to export preview clip: %w", err)
	}

	start := time.Now()
	args := []string{
		"-2", "-q",
		fmt.Sprintf("-T%g", fx.Tempo),
		fmt.Sprintf("-p%g", fx.Semitones),
		in, out,
	}
	if err := r.runTool(ctx, args); err != nil {
		return "", err
	}

	r.logf("preview render job=%d t=%.3f p=%.3f done in %s", jobID, fx.Tempo, fx.Semitones, time.Since(start).Round(time.Millisecond))
	return out, nil
}

// Close removes the working directory and everything rendered into it.
func (r *Renderer) Close() error {
	return os.RemoveAll(r.dir)
}

// runTool executes the stretch tool, surfacing its stderr on failure.
func (r *Renderer) runTool(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.cfg.tool(), args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := bytes.TrimSpace(stderr.Bytes())
			if len(msg) == 0 {
				return fmt.Errorf("%s failed: %w", r.cfg.tool(), err)
			}
			return fmt.Errorf("%s failed: %s", r.cfg.tool(), msg)
		}
		return fmt.Errorf("stretch tool not available (%s): %w", r.cfg.tool(), err)
	}
	return nil
}

func (r *Renderer) logf(format string, args ...any) {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Printf(format, args...)
	}
}

// clipSource slices [start, start+10s] (at least one second) out of the
// track's PCM without copying.
func clipSource(track *decode.Track, startSeconds float64) ([][]float32, error) {
	rate := float64(track.SampleRate)
	start := int(math.Max(0, startSeconds) * rate)
	end := start + int(previewLengthSeconds*rate)

	frames := track.Frames()
	if end > frames {
		end = frames
	}
	if start >= end {
		return nil, fmt.Errorf("render: preview start %.2fs is past the end of the track", startSeconds)
	}

	clip := make([][]float32, len(track.Samples))
	for ch := range clip {
		clip[ch] = track.Samples[ch][start:end]
	}
	return clip, nil
}

// exportWAV writes planar PCM as a 16-bit WAV in bounded blocks.
func exportWAV(path string, planar [][]float32, sampleRate int) error {
	w, err := wavio.Create(path, sampleRate, 16, len(planar))
	if err != nil {
		return err
	}

	frames := len(planar[0])
	block := make([][]float32, len(planar))
	for pos := 0; pos < frames; pos += renderBlockFrames {
		end := min(pos+renderBlockFrames, frames)
		for ch := range block {
			block[ch] = planar[ch][pos:end]
		}
		if err := w.WriteBlock(block); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
