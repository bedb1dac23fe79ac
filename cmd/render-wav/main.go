// Command render-wav applies tempo and pitch effects to an audio file offline
// and writes the result as a 16-bit WAV.
//
// Usage:
//
//	render-wav -tempo 1.25 input.mp3 output.wav
//	render-wav -native -tempo 0.8 -pitch 3 input.wav output.wav
//	render-wav -rate 44.1 input.wav output.wav
//
// By default the render runs through the external rubberband tool, the same
// path the player uses to bake effects during playback. -native uses the
// built-in phase vocoder on its offline preset instead, so no external tool
// is needed. -rate converts the finished render to another sample rate.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	player "github.com/tphakala/go-audio-player"
	"github.com/tphakala/go-audio-player/internal/decode"
	"github.com/tphakala/go-audio-player/internal/render"
	"github.com/tphakala/go-audio-player/internal/resample"
	"github.com/tphakala/go-audio-player/internal/stretch"
	"github.com/tphakala/go-audio-player/internal/wavio"
)

const (
	// chunkFrames is the block size fed through the stretcher in native mode.
	chunkFrames = 8192

	// outBitDepth is the PCM depth of the written WAV.
	outBitDepth = 16

	// Conversion constants
	kHzToHz          = 1000
	percentScale     = 100
	progressInterval = 10 // Report progress every N%

	minRequiredArgs = 2
	semitonesPerOct = 12.0
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	tempo := flag.Float64("tempo", 1.0, "Speed multiplier baked into the output (0.25 to 4)")
	pitch := flag.Float64("pitch", 0, "Pitch shift in semitones (-24 to +24)")
	native := flag.Bool("native", false, "Render with the built-in phase vocoder instead of rubberband")
	rateKHz := flag.Float64("rate", 0, "Output sample rate in kHz (0 keeps the session rate)")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	args := flag.Args()
	if len(args) < minRequiredArgs {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] input output.wav\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -tempo 1.25 song.mp3 faster.wav          # 25%% faster, same pitch\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -native -pitch -2 take.wav down.wav      # Two semitones down, no external tool\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -rate 44.1 master.wav cd.wav             # Sample rate conversion only\n", os.Args[0])
		return fmt.Errorf("insufficient arguments")
	}
	inputPath, outputPath := args[0], args[1]

	cfg, err := player.ConfigFromEnv()
	if err != nil {
		return err
	}

	if *verbose {
		log.Printf("Input: %s", inputPath)
		log.Printf("Output: %s", outputPath)
		log.Printf("Effects: tempo %.3fx, pitch %+.1f semitones", *tempo, *pitch)
	}

	ctx := context.Background()
	start := time.Now()

	track, err := decode.Open(ctx, inputPath, decode.Config{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		FFmpegPath: cfg.FFmpegPath,
	})
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", inputPath, err)
	}
	if *verbose {
		log.Printf("Decoded: %d Hz, %d channels, %.1fs",
			track.SampleRate, track.Channels(), track.Duration().Seconds())
	}

	var (
		samples [][]float32
		engine  string
	)
	switch {
	case *tempo == 1.0 && *pitch == 0:
		samples = track.Samples
		engine = "copy"
	case *native:
		samples, err = renderNative(track, *tempo, *pitch, *verbose)
		engine = "native"
	default:
		samples, err = renderExternal(ctx, track, *tempo, *pitch, cfg, *verbose)
		engine = "rubberband"
	}
	if err != nil {
		return err
	}

	rate := track.SampleRate
	if targetRate := int(*rateKHz * kHzToHz); targetRate != 0 && targetRate != rate {
		if *verbose {
			log.Printf("Resampling: %d Hz -> %d Hz", rate, targetRate)
		}
		samples, err = resample.Convert(samples, rate, targetRate)
		if err != nil {
			return err
		}
		rate = targetRate
	}

	if err := writeWAV(outputPath, samples, rate); err != nil {
		return err
	}

	elapsed := time.Since(start)
	outSeconds := float64(frameCount(samples)) / float64(rate)
	fmt.Printf("Rendered %s -> %s (%s)\n", filepath.Base(inputPath), filepath.Base(outputPath), engine)
	fmt.Printf("  tempo %.2fx, pitch %+.1f semitones\n", *tempo, *pitch)
	fmt.Printf("  %.1fs -> %.1fs at %d Hz, %d channels\n",
		track.Duration().Seconds(), outSeconds, rate, len(samples))
	fmt.Printf("  Duration: %.2fs, Speed: %.1fx realtime\n",
		elapsed.Seconds(), track.Duration().Seconds()/elapsed.Seconds())
	return nil
}

// renderExternal runs the rubberband tool through the same renderer the
// player uses, then decodes the finished file back into memory.
func renderExternal(ctx context.Context, track *decode.Track, tempo, pitch float64, cfg player.Config, verbose bool) ([][]float32, error) {
	rcfg := render.Config{ToolPath: cfg.RubberbandPath}
	if verbose {
		rcfg.Logger = log.Default()
	}
	r, err := render.NewRenderer(rcfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	if err := r.LoadSource(track); err != nil {
		return nil, err
	}
	path, err := r.Render(ctx, render.Effects{Tempo: tempo, Semitones: pitch})
	if err != nil {
		return nil, err
	}
	rendered, err := decode.Open(ctx, path, decode.Config{
		SampleRate: track.SampleRate,
		Channels:   track.Channels(),
		FFmpegPath: cfg.FFmpegPath,
	})
	if err != nil {
		return nil, err
	}
	return rendered.Samples, nil
}

// renderNative streams the whole track through the phase vocoder on its
// offline preset and collects the stretched output.
func renderNative(track *decode.Track, tempo, pitch float64, verbose bool) ([][]float32, error) {
	st, err := stretch.New(stretch.Config{
		SampleRate: track.SampleRate,
		Channels:   track.Channels(),
		Quality:    stretch.QualityOffline,
	})
	if err != nil {
		return nil, err
	}
	st.SetTimeRatio(1 / tempo)
	st.SetPitchScale(math.Pow(2, pitch/semitonesPerOct))

	channels := track.Channels()
	out := make([][]float32, channels)
	block := make([][]float32, channels)
	scratch := make([][]float32, channels)
	for ch := range scratch {
		scratch[ch] = make([]float32, chunkFrames)
	}

	total := track.Frames()
	progress := newProgressTracker(int64(total), verbose)
	for pos := 0; pos < total; pos += chunkFrames {
		n := min(chunkFrames, total-pos)
		for ch := range block {
			block[ch] = track.Samples[ch][pos : pos+n]
		}
		if _, err := st.Process(block, false); err != nil {
			return nil, err
		}
		out = drainInto(out, st, scratch)
		progress.reportIfNeeded(int64(pos + n))
	}
	if _, err := st.Process(nil, true); err != nil {
		return nil, err
	}
	return drainInto(out, st, scratch), nil
}

// drainInto appends everything currently retrievable from the stretcher.
func drainInto(dst [][]float32, st *stretch.Stretcher, scratch [][]float32) [][]float32 {
	for st.Available() > 0 {
		got := st.Retrieve(scratch)
		if got == 0 {
			break
		}
		for ch := range dst {
			dst[ch] = append(dst[ch], scratch[ch][:got]...)
		}
	}
	return dst
}

// writeWAV writes planar samples as 16-bit PCM.
func writeWAV(path string, planar [][]float32, rate int) error {
	w, err := wavio.Create(path, rate, outBitDepth, len(planar))
	if err != nil {
		return err
	}
	if err := w.WriteBlock(planar); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func frameCount(planar [][]float32) int {
	if len(planar) == 0 {
		return 0
	}
	return len(planar[0])
}

// progressTracker reports native render progress at fixed percent intervals.
type progressTracker struct {
	totalFrames int64
	lastPercent int
	verbose     bool
}

func newProgressTracker(totalFrames int64, verbose bool) *progressTracker {
	return &progressTracker{totalFrames: totalFrames, verbose: verbose}
}

func (p *progressTracker) reportIfNeeded(processed int64) {
	if !p.verbose || p.totalFrames == 0 {
		return
	}
	percent := int(float64(processed) / float64(p.totalFrames) * percentScale)
	if percent >= p.lastPercent+progressInterval {
		log.Printf("Progress: %d%%", percent)
		p.lastPercent = percent
	}
}
