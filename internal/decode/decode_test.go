package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-audio-player/internal/testutil"
	"github.com/tphakala/go-audio-player/internal/wavio"
)

// writeWAVFixture writes a 16-bit WAV file for decoding tests.
func writeWAVFixture(t *testing.T, path string, rate int, block [][]float32) {
	t.Helper()
	w, err := wavio.Create(path, rate, 16, len(block))
	require.NoError(t, err)
	require.NoError(t, w.WriteBlock(block))
	require.NoError(t, w.Close())
}

// writeWAVWithEncoder writes a WAV through go-audio's encoder rather than
// this module's own writer, so native decoding is checked against an
// independent producer at an arbitrary bit depth.
func writeWAVWithEncoder(t *testing.T, path string, rate, depth int, block [][]float32) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)

	channels := len(block)
	frames := len(block[0])
	maxVal := float64(int64(1)<<(depth-1)) - 1
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: depth,
		Data:           make([]int, frames*channels),
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			buf.Data[i*channels+ch] = int(float64(block[ch][i]) * maxVal)
		}
	}

	enc := wav.NewEncoder(f, rate, depth, channels, 1)
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

// writeRawF32LE writes interleaved f32le samples, the ffmpeg pipe format.
func writeRawF32LE(t *testing.T, path string, planar [][]float32) {
	t.Helper()
	var buf bytes.Buffer
	frames := len(planar[0])
	for i := 0; i < frames; i++ {
		for ch := range planar {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(planar[ch][i]))
			buf.Write(b[:])
		}
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// fakeFFmpeg writes an executable that ignores its arguments and streams
// rawPath to stdout, standing in for a real ffmpeg.
func fakeFFmpeg(t *testing.T, dir, rawPath string) string {
	t.Helper()
	tool := filepath.Join(dir, "fake-ffmpeg")
	script := fmt.Sprintf("#!/bin/sh\nexec cat %q\n", rawPath)
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))
	return tool
}

// failingFFmpeg writes an executable that prints msg to stderr and exits 1.
func failingFFmpeg(t *testing.T, dir, msg string) string {
	t.Helper()
	tool := filepath.Join(dir, "fake-ffmpeg")
	script := fmt.Sprintf("#!/bin/sh\necho %q >&2\nexit 1\n", msg)
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))
	return tool
}

// missingTool returns a path that does not exist, to force the native path
// or exercise tool resolution errors.
func missingTool(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing-ffmpeg")
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{SampleRate: 44100, Channels: 2}, false},
		{"zero_rate", Config{SampleRate: 0, Channels: 2}, true},
		{"zero_channels", Config{SampleRate: 44100, Channels: 0}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestOpenWAVNative verifies the in-process WAV path is used when the rate
// matches: the ffmpeg path points at a missing binary, so a fallback would
// fail loudly.
func TestOpenWAVNative(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	const rate = 44100
	block := testutil.SineBlock(440, rate, 2, 4096, 0.5)
	writeWAVFixture(t, path, rate, block)

	track, err := Open(context.Background(), path, Config{
		SampleRate: rate,
		Channels:   2,
		FFmpegPath: missingTool(t),
	})
	require.NoError(t, err)

	assert.Equal(t, rate, track.SampleRate)
	assert.Equal(t, 2, track.Channels())
	assert.Equal(t, 4096, track.Frames())
	testutil.AssertRelativeError(t, (4096.0/rate)*float64(time.Second), float64(track.Duration()), 1e-6)

	// 16-bit quantization tolerance.
	for i := 0; i < 64; i++ {
		assert.InDelta(t, block[0][i], track.Samples[0][i], 1.0/32000, "sample %d", i)
	}
}

// TestOpenWAVNative_24BitFromEncoder decodes a 24-bit file produced by a
// different writer; the depth-dependent normalization must still recover the
// original samples.
func TestOpenWAVNative_24BitFromEncoder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone24.wav")
	const rate = 8000
	block := testutil.SineBlock(200, rate, 2, 512, 0.5)
	writeWAVWithEncoder(t, path, rate, 24, block)

	track, err := Open(context.Background(), path, Config{
		SampleRate: rate,
		Channels:   2,
		FFmpegPath: missingTool(t),
	})
	require.NoError(t, err)
	require.Equal(t, 512, track.Frames())
	for i := 0; i < 64; i++ {
		assert.InDelta(t, block[0][i], track.Samples[0][i], 1e-4, "sample %d", i)
	}
}

// TestOpenWAVNative_ChannelAdaptation verifies channel reshaping without
// leaving the native path.
func TestOpenWAVNative_ChannelAdaptation(t *testing.T) {
	dir := t.TempDir()
	const rate = 48000

	t.Run("mono_to_stereo", func(t *testing.T) {
		path := filepath.Join(dir, "mono.wav")
		writeWAVFixture(t, path, rate, testutil.SineBlock(330, rate, 1, 1024, 0.4))

		track, err := Open(context.Background(), path, Config{
			SampleRate: rate, Channels: 2, FFmpegPath: missingTool(t),
		})
		require.NoError(t, err)
		require.Equal(t, 2, track.Channels())
		assert.Equal(t, track.Samples[0], track.Samples[1], "mono should duplicate to both channels")
	})

	t.Run("stereo_to_mono", func(t *testing.T) {
		path := filepath.Join(dir, "stereo.wav")
		block := testutil.SineBlock(330, rate, 2, 1024, 0.4)
		writeWAVFixture(t, path, rate, block)

		track, err := Open(context.Background(), path, Config{
			SampleRate: rate, Channels: 1, FFmpegPath: missingTool(t),
		})
		require.NoError(t, err)
		require.Equal(t, 1, track.Channels())
		assert.Equal(t, 1024, track.Frames())
	})
}

// TestOpenRateMismatchFallsBack verifies a WAV at the wrong rate is routed
// through the converter subprocess.
func TestOpenRateMismatchFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.wav")
	writeWAVFixture(t, path, 22050, testutil.SineBlock(440, 22050, 2, 1024, 0.5))

	// The fake tool serves a recognizable constant signal.
	raw := filepath.Join(dir, "fixture.raw")
	fixture := [][]float32{make([]float32, 1000), make([]float32, 1000)}
	for i := range fixture[0] {
		fixture[0][i] = 0.25
		fixture[1][i] = -0.5
	}
	writeRawF32LE(t, raw, fixture)

	track, err := Open(context.Background(), path, Config{
		SampleRate: 44100,
		Channels:   2,
		FFmpegPath: fakeFFmpeg(t, dir, raw),
	})
	require.NoError(t, err)

	assert.Equal(t, 1000, track.Frames(), "track should hold the subprocess output, not the file")
	assert.Equal(t, float32(0.25), track.Samples[0][0])
	assert.Equal(t, float32(-0.5), track.Samples[1][0])
}

// TestOpenUnknownExtensionUsesFFmpeg verifies non-native containers go
// straight to the subprocess.
func TestOpenUnknownExtensionUsesFFmpeg(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.flac")
	require.NoError(t, os.WriteFile(path, []byte("not really flac"), 0o644))

	raw := filepath.Join(dir, "fixture.raw")
	writeRawF32LE(t, raw, testutil.SineBlock(440, 44100, 2, 512, 0.5))

	track, err := Open(context.Background(), path, Config{
		SampleRate: 44100,
		Channels:   2,
		FFmpegPath: fakeFFmpeg(t, dir, raw),
	})
	require.NoError(t, err)
	assert.Equal(t, 512, track.Frames())
}

// TestOpenCorruptMP3FallsBack verifies a native decode failure falls through
// to the subprocess instead of surfacing.
func TestOpenCorruptMP3FallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.mp3")
	require.NoError(t, os.WriteFile(path, []byte{0xde, 0xad, 0xbe, 0xef}, 0o644))

	raw := filepath.Join(dir, "fixture.raw")
	writeRawF32LE(t, raw, testutil.SineBlock(440, 44100, 2, 256, 0.5))

	track, err := Open(context.Background(), path, Config{
		SampleRate: 44100,
		Channels:   2,
		FFmpegPath: fakeFFmpeg(t, dir, raw),
	})
	require.NoError(t, err)
	assert.Equal(t, 256, track.Frames())
}

// TestOpenFFmpegFailure verifies subprocess stderr reaches the caller.
func TestOpenFFmpegFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.ogg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Open(context.Background(), path, Config{
		SampleRate: 44100,
		Channels:   2,
		FFmpegPath: failingFFmpeg(t, dir, "boom: unsupported codec"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom: unsupported codec")
}

// TestOpenFFmpegMissing verifies a resolution failure is reported as such.
func TestOpenFFmpegMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.ogg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Open(context.Background(), path, Config{
		SampleRate: 44100,
		Channels:   2,
		FFmpegPath: missingTool(t),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg not available")
}

// TestOpenEmptyOutput verifies zero decoded frames is an error.
func TestOpenEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.ogg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	raw := filepath.Join(dir, "empty.raw")
	require.NoError(t, os.WriteFile(raw, nil, 0o644))

	_, err := Open(context.Background(), path, Config{
		SampleRate: 44100,
		Channels:   2,
		FFmpegPath: fakeFFmpeg(t, dir, raw),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audio data decoded")
}
