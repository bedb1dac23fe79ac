package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-audio-player/internal/decode"
	"github.com/tphakala/go-audio-player/internal/testutil"
)

const testRate = 8000

// sineTrack builds a synthetic stereo track without touching the filesystem.
func sineTrack(seconds float64) *decode.Track {
	frames := int(seconds * testRate)
	return &decode.Track{
		Path:       "synthetic",
		SampleRate: testRate,
		Samples:    testutil.SineBlock(440, testRate, 2, frames, 0.5),
	}
}

func TestRenderNative_TempoScalesDuration(t *testing.T) {
	track := sineTrack(2.0)

	out, err := renderNative(track, 2.0, 0, false)
	require.NoError(t, err)
	require.Len(t, out, 2)

	testutil.AssertRelativeError(t, float64(track.Frames())/2, float64(len(out[0])), 0.2,
		"tempo 2.0 should halve the output length")
	assert.Equal(t, len(out[0]), len(out[1]), "channels must stay the same length")
	testutil.AssertNoNaNOrInf(t, out[0])
}

func TestRenderNative_PitchKeepsDuration(t *testing.T) {
	track := sineTrack(2.0)

	out, err := renderNative(track, 1.0, 4, false)
	require.NoError(t, err)

	testutil.AssertRelativeError(t, float64(track.Frames()), float64(len(out[0])), 0.2,
		"pitch-only rendering should preserve the length")
}

func TestWriteWAV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	planar := testutil.SineBlock(440, testRate, 2, 1000, 0.5)

	require.NoError(t, writeWAV(path, planar, testRate))

	back, err := decode.Open(context.Background(), path, decode.Config{
		SampleRate: testRate,
		Channels:   2,
		FFmpegPath: "/nonexistent-ffmpeg",
	})
	require.NoError(t, err)
	require.Equal(t, 1000, back.Frames())
	for i := 0; i < 100; i++ {
		assert.InDelta(t, planar[0][i], back.Samples[0][i], 0.01)
	}
}

func TestWriteWAV_InvalidDirectory(t *testing.T) {
	planar := testutil.SineBlock(440, testRate, 2, 10, 0.5)
	require.Error(t, writeWAV("/nonexistent/dir/out.wav", planar, testRate))
}

func TestFrameCount(t *testing.T) {
	assert.Zero(t, frameCount(nil))
	assert.Zero(t, frameCount([][]float32{}))
	assert.Equal(t, 3, frameCount([][]float32{{1, 2, 3}, {4, 5, 6}}))
}

func TestProgressTracker_VerboseMode(t *testing.T) {
	tracker := newProgressTracker(1000, true)
	require.NotNil(t, tracker)

	assert.Equal(t, int64(1000), tracker.totalFrames)
	assert.True(t, tracker.verbose)
	assert.Equal(t, 0, tracker.lastPercent)
}

func TestProgressTracker_NonVerboseMode(t *testing.T) {
	tracker := newProgressTracker(1000, false)

	// reportIfNeeded should do nothing in non-verbose mode
	tracker.reportIfNeeded(500)
	assert.Equal(t, 0, tracker.lastPercent)
}

func TestProgressTracker_ZeroFrames(t *testing.T) {
	tracker := newProgressTracker(0, true)

	// Should not panic or divide by zero
	tracker.reportIfNeeded(100)
	assert.Equal(t, 0, tracker.lastPercent)
}
