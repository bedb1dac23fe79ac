// Package player is a tempo- and pitch-shifting audio player in pure Go.
//
// The player streams a decoded track through a phase-vocoder stretch engine
// inside the output device's real-time callback, so tempo and pitch changes
// are audible immediately. In the background it progressively upgrades
// quality: a few seconds after the knobs settle, an external high-quality
// stretch tool renders first a short preview clip around the playhead and
// then the whole track, and playback swaps onto the rendered audio without
// losing its position.
//
// # Features
//
//   - Independent live tempo (0.5x-2x) and pitch (±12 semitones) control
//     with no permanent quality loss
//   - Real-time phase-vocoder time stretching with cubic-interpolation
//     pitch shifting, driven from the audio callback
//   - Background two-stage quality upgrade (preview, then full render) via
//     an external rubberband-style tool, cached per effect setting
//   - Native WAV and MP3 decoding with an ffmpeg fallback for everything
//     else, always normalized to the engine's fixed format
//   - Position, transport state, and effect status exposed as a plain
//     snapshot for polling UIs
//   - Optional SIMD acceleration (AVX2/SSE) via github.com/tphakala/simd
//
// # Quick Start
//
// The high-level surface is [Controller], which owns the playback session
// and the render pipeline:
//
//	ctrl, err := player.NewController(player.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctrl.Shutdown()
//
//	if err := ctrl.Load("song.mp3"); err != nil {
//	    log.Fatal(err)
//	}
//	ctrl.SetTempo(1.25) // 25% faster, same pitch
//	ctrl.SetSemitones(-2)
//	if err := ctrl.Play(); err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    ctrl.Tick()
//	    st := ctrl.Snapshot()
//	    fmt.Printf("\r%6.1fs / %6.1fs  %s", st.Position, st.Duration, st.FXMessage)
//	    if !st.Playing && !st.Paused {
//	        break
//	    }
//	    time.Sleep(150 * time.Millisecond)
//	}
//
// Applications that do their own effect management can drive a [Session]
// directly; it exposes the same transport operations plus live SetTempo,
// SetPitch and SetVolume, without the render pipeline.
//
// # Configuration
//
// [DefaultConfig] plays 48 kHz stereo through the default output device and
// expects the ffmpeg and rubberband binaries on PATH. [ConfigFromEnv] reads
// overrides from PLAYER_* environment variables. Both external tools are
// optional at construction time: a missing decode tool only fails loads of
// formats the native decoders cannot handle, and a missing stretch tool only
// fails the background quality upgrade, never live playback.
//
// # Thread Safety
//
// [Controller] and [Session] methods are safe for concurrent use. The
// output device invokes the session's callback on its own real-time thread;
// the callback never blocks on renders, which run on background goroutines.
package player
