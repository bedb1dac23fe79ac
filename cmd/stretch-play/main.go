// Command stretch-play plays an audio file from the terminal with live tempo
// and pitch effects.
//
// Usage:
//
//	stretch-play song.mp3
//	stretch-play -tempo 1.5 -pitch -3 song.wav
//	stretch-play -seek 30 -for 10 song.mp3
//
// Effects are audible immediately through the realtime stretcher; when the
// rubberband tool is installed the player upgrades to an offline render in
// the background while audio keeps running. The status line shows the
// position in source time, so it is comparable across those swaps.
//
// The output device and external tools are configured through PLAYER_*
// environment variables; see ConfigFromEnv in the player package.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	player "github.com/tphakala/go-audio-player"
)

const (
	// tickInterval is the status line redraw period.
	tickInterval = 100 * time.Millisecond

	// statusWidth pads the redrawn line so a shorter draw clears the
	// previous one.
	statusWidth = 79
)

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	fxColor    = color.New(color.FgYellow)
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	tempo := flag.Float64("tempo", 1.0, "Playback speed multiplier (0.5 to 2.0)")
	pitch := flag.Float64("pitch", 0, "Pitch shift in semitones (-12 to +12)")
	volume := flag.Float64("volume", 1.0, "Output gain (0.0 to 1.0)")
	seek := flag.Float64("seek", 0, "Start position in seconds")
	playFor := flag.Float64("for", 0, "Stop after this many seconds (0 plays to the end)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] file\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s song.mp3                        # Play at normal speed\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -tempo 1.5 song.mp3             # Half again as fast\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -pitch -3 -volume 0.5 song.wav  # Three semitones down, quiet\n", os.Args[0])
		return fmt.Errorf("expected exactly one input file")
	}

	cfg, err := player.ConfigFromEnv()
	if err != nil {
		return err
	}
	ctrl, err := player.NewController(cfg)
	if err != nil {
		return err
	}
	defer ctrl.Shutdown()

	if err := ctrl.Load(flag.Arg(0)); err != nil {
		return err
	}
	ctrl.SetVolume(*volume)
	if *seek > 0 {
		ctrl.Seek(*seek)
	}
	if *tempo != 1.0 {
		ctrl.SetTempo(*tempo)
	}
	if *pitch != 0 {
		ctrl.SetSemitones(*pitch)
	}
	if err := ctrl.Play(); err != nil {
		return err
	}
	titleColor.Println(ctrl.Snapshot().Title)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stopAt time.Time
	if *playFor > 0 {
		stopAt = time.Now().Add(time.Duration(*playFor * float64(time.Second)))
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-ticker.C:
			ctrl.Tick()
			snap := ctrl.Snapshot()
			printStatus(snap)
			if !snap.Playing && !snap.Paused {
				fmt.Println()
				return nil
			}
			if !stopAt.IsZero() && time.Now().After(stopAt) {
				fmt.Println()
				return nil
			}
		}
	}
}

// printStatus redraws the single status line in place.
func printStatus(snap player.Snapshot) {
	line := fmt.Sprintf("%s / %s  tempo %.2fx  pitch %+.1f st",
		clock(snap.Position), clock(snap.Duration), snap.Tempo, snap.Semitones)
	if snap.FXMessage != "" {
		line += "  " + fxColor.Sprint(snap.FXMessage)
	}
	fmt.Printf("\r%-*s", statusWidth, line)
}

// clock formats seconds as m:ss.
func clock(seconds float64) string {
	whole := int(seconds)
	return fmt.Sprintf("%d:%02d", whole/60, whole%60)
}
