package player

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/go-audio-player/internal/decode"
	"github.com/tphakala/go-audio-player/internal/render"
)

const (
	// UI-facing effect bounds, narrower than what the stretch engine and
	// the render tool accept.
	fxMinTempo     = 0.5
	fxMaxTempo     = 2.0
	fxMinSemitones = -12.0
	fxMaxSemitones = 12.0

	// Effects within this distance of tempo 1.0 / 0 semitones are treated
	// as "no effect": no render, original source plays untouched.
	identityTolerance = 0.01

	// Settle time after the last effect change before renders launch. Each
	// change restarts the countdown, so dragging a slider fires one job.
	renderDebounce = 300 * time.Millisecond

	noFileTitle = "No file loaded"

	statusPreviewRender = "applying effects (preview)"
	statusFullRender    = "full render in progress"
)

// medium identifies which audio the session is currently playing back.
type medium int

const (
	mediumSource  medium = iota // the decoded original file
	mediumPreview               // a short rendered clip around the playhead
	mediumFull                  // the full-length rendered file
)

// Snapshot is a plain copy of everything a UI needs to draw one frame of
// player state. It is safe to retain; position and duration are in source
// time, in seconds, regardless of which rendered file is playing.
type Snapshot struct {
	Title    string
	Duration float64
	Position float64

	Loaded  bool
	Playing bool
	Paused  bool

	Tempo     float64
	Semitones float64

	ApplyingFX bool
	FXMessage  string
}

// Controller drives a Session for a UI: it owns the displayed state, maps
// positions between the source and rendered files, and coordinates the
// background render jobs that bake tempo and pitch changes.
//
// Effect changes take hold in two stages. The change is forwarded to the
// session's realtime stretcher immediately, so it is audible at once, then
// after a short debounce a render job produces a short preview clip and the
// full file concurrently. Each job carries an id; changing the effects again
// allocates a new id and completions with an old id are discarded, so a
// stale render can never clobber a newer request.
type Controller struct {
	cfg Config
	log *log.Logger

	session  *Session
	renderer *render.Renderer

	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup

	mu     sync.Mutex
	snap   Snapshot
	source *decode.Track
	fx     render.Effects

	medium     medium
	mediumBase float64 // source seconds at the active medium's start
	bakedTempo float64 // tempo baked into the active medium, 1.0 for source

	jobID       uint64
	debounce    *time.Timer
	debounceGen uint64
}

// NewController builds a controller plus its session and renderer from cfg.
// Call Shutdown to release the audio stream and the render working
// directory.
func NewController(cfg Config) (*Controller, error) {
	session, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	renderer, err := render.NewRenderer(render.Config{
		ToolPath: cfg.RubberbandPath,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:        cfg,
		log:        cfg.logger(),
		session:    session,
		renderer:   renderer,
		ctx:        ctx,
		cancel:     cancel,
		snap:       Snapshot{Title: noFileTitle, Tempo: 1.0},
		fx:         render.Effects{Tempo: 1.0},
		medium:     mediumSource,
		bakedTempo: 1.0,
	}, nil
}

// Load decodes path, makes it the render source, and installs it in the
// session. Effects reset to identity; any in-flight render job is orphaned.
func (c *Controller) Load(path string) error {
	track, err := decode.Open(c.ctx, path, c.decodeConfig())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := c.renderer.LoadSource(track); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	info, err := c.session.LoadTrack(track)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelRenderLocked()
	c.source = track
	c.fx = render.Effects{Tempo: 1.0}
	c.medium = mediumSource
	c.mediumBase = 0
	c.bakedTempo = 1.0
	c.session.SetTempo(1.0)
	c.session.SetPitch(0)
	c.snap = Snapshot{
		Title:    filepath.Base(path),
		Duration: info.Duration,
		Loaded:   true,
		Tempo:    1.0,
	}
	return nil
}

// Play starts playback from the displayed position, so play-after-stop picks
// up wherever the position slider sits. From Paused it only unpauses. A
// displayed position at the very end restarts from the top.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snap.Loaded {
		return ErrNoTrack
	}

	if c.session.IsPaused() {
		c.session.Unpause()
		c.syncLocked()
		return nil
	}

	pos := c.snap.Position
	if c.snap.Duration > 0 && pos >= c.snap.Duration {
		pos = 0
	}
	c.seekMediumLocked(pos)
	if err := c.session.Play(); err != nil {
		return err
	}
	c.snap.Position = pos
	c.syncLocked()
	return nil
}

// PauseToggle flips between playing and paused. It does nothing when the
// session is stopped or empty.
func (c *Controller) PauseToggle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snap.Loaded {
		return
	}
	switch c.session.State() {
	case StatePlaying:
		c.session.Pause()
	case StatePaused:
		c.session.Unpause()
	}
	c.syncLocked()
}

// Stop halts playback and zeroes the displayed position.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snap.Loaded {
		return
	}
	c.session.Stop()
	c.snap.Position = 0
	c.syncLocked()
}

// Seek moves the displayed position to seconds of source time, clamped to
// the track, and repositions whichever medium is playing to match.
func (c *Controller) Seek(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snap.Loaded {
		return
	}
	seconds = clampFloat(seconds, 0, c.snap.Duration)
	c.seekMediumLocked(seconds)
	c.snap.Position = seconds
	c.syncLocked()
}

// SetTempo requests a playback speed multiplier, clamped to [0.5, 2.0].
// The realtime stretcher picks it up immediately; a debounced background
// job then bakes it into rendered files.
func (c *Controller) SetTempo(tempo float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fx.Tempo = clampFloat(tempo, fxMinTempo, fxMaxTempo)
	c.snap.Tempo = c.fx.Tempo
	c.applyEffectsLocked()
}

// SetSemitones requests a pitch shift in semitones, clamped to [-12, +12].
func (c *Controller) SetSemitones(semitones float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fx.Semitones = clampFloat(semitones, fxMinSemitones, fxMaxSemitones)
	c.snap.Semitones = c.fx.Semitones
	c.applyEffectsLocked()
}

// SetVolume sets the output gain, clamped to [0, 1]. Volume is applied at
// emission time and survives loads and medium swaps.
func (c *Controller) SetVolume(v float64) {
	c.session.SetVolume(clampFloat(v, 0, 1))
}

// Tick refreshes the displayed position and playing/paused flags from the
// session. UIs call it from their redraw timer; nothing is pushed.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snap.Loaded {
		return
	}
	c.snap.Position = c.positionLocked()
	c.syncLocked()
}

// Snapshot returns a copy of the current UI state. Position is as of the
// last Tick or transport operation.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Shutdown cancels render jobs, waits for them to finish, closes the audio
// stream, and removes the render working directory.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.cancelRenderLocked()
	c.mu.Unlock()

	c.cancel()
	c.jobs.Wait()
	c.session.Shutdown()
	if err := c.renderer.Close(); err != nil {
		c.log.Printf("renderer close: %v", err)
	}
}

// applyEffectsLocked reacts to a changed c.fx: identity tears down render
// state and goes back to the plain source, anything else is made audible on
// the realtime path and scheduled for rendering.
func (c *Controller) applyEffectsLocked() {
	identity := c.fx.IsIdentity(identityTolerance)

	if c.medium == mediumSource {
		if identity {
			c.session.SetTempo(1.0)
			c.session.SetPitch(0)
		} else {
			c.session.SetTempo(c.fx.Tempo)
			c.session.SetPitch(c.fx.Semitones)
		}
	}
	if !c.snap.Loaded {
		return
	}

	if identity {
		c.cancelRenderLocked()
		c.snap.ApplyingFX = false
		c.snap.FXMessage = ""
		if c.medium != mediumSource {
			if err := c.restoreSourceLocked(); err != nil {
				c.log.Printf("restore source: %v", err)
				c.snap.FXMessage = fmt.Sprintf("effects failed: %v", err)
			}
		}
		return
	}

	c.scheduleRenderLocked()
}

// cancelRenderLocked abandons the pending debounce and orphans any job in
// flight. Running renders finish on their own and get discarded on arrival.
func (c *Controller) cancelRenderLocked() {
	c.debounceGen++
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.jobID++
}

// scheduleRenderLocked (re)arms the debounce timer for the current effects.
func (c *Controller) scheduleRenderLocked() {
	c.debounceGen++
	gen := c.debounceGen
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = time.AfterFunc(renderDebounce, func() {
		c.debounceFired(gen)
	})
}

// debounceFired runs when the settle timer expires. The generation check
// drops timers that lost a Stop race with a newer schedule.
func (c *Controller) debounceFired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.debounceGen || !c.snap.Loaded {
		return
	}
	c.startJobLocked()
}

// startJobLocked captures the request point, allocates the next job id, and
// launches the preview and full renders.
func (c *Controller) startJobLocked() {
	fx := c.fx
	srcPos := c.positionLocked()
	started := time.Now()

	c.jobID++
	id := c.jobID
	c.snap.ApplyingFX = true
	c.snap.FXMessage = statusPreviewRender

	c.jobs.Add(1)
	go c.renderJob(id, fx, srcPos, started)
}

// renderJob runs both renders of one job concurrently and without the
// controller lock. Each completion handles its own swap or failure; the
// group only collects the first error for the log.
func (c *Controller) renderJob(id uint64, fx render.Effects, srcPos float64, started time.Time) {
	defer c.jobs.Done()

	var g errgroup.Group
	g.Go(func() error {
		path, err := c.renderer.Preview(c.ctx, fx, srcPos, id)
		return c.previewDone(id, fx, srcPos, path, err)
	})
	g.Go(func() error {
		path, err := c.renderer.Render(c.ctx, fx)
		return c.fullDone(id, fx, srcPos, started, path, err)
	})
	if err := g.Wait(); err != nil && c.ctx.Err() == nil {
		c.log.Printf("fx job %d: %v", id, err)
	}
}

// previewDone swaps playback onto the preview clip if the job is still
// current. The clip starts at the captured source position, so it begins at
// clip time zero.
func (c *Controller) previewDone(id uint64, fx render.Effects, srcPos float64, path string, renderErr error) error {
	if renderErr != nil {
		c.failJob(id, renderErr)
		return renderErr
	}
	if !c.jobCurrent(id) {
		return nil
	}
	track, err := decode.Open(c.ctx, path, c.decodeConfig())
	if err != nil {
		c.failJob(id, err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.jobID {
		return nil
	}
	if err := c.swapLocked(track, mediumPreview, srcPos, fx.Tempo, 0); err != nil {
		c.failJobLocked(id, err)
		return err
	}
	c.snap.FXMessage = statusFullRender
	return nil
}

// fullDone swaps playback onto the full render if the job is still current.
// Wall time spent listening at the new tempo covers elapsed*tempo source
// seconds, so the render-time target advances one second per elapsed second;
// the estimate ignores swap latency and is clamped by the seek.
func (c *Controller) fullDone(id uint64, fx render.Effects, srcPos float64, started time.Time, path string, renderErr error) error {
	if renderErr != nil {
		c.failJob(id, renderErr)
		return renderErr
	}
	if !c.jobCurrent(id) {
		return nil
	}
	track, err := decode.Open(c.ctx, path, c.decodeConfig())
	if err != nil {
		c.failJob(id, err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.jobID {
		return nil
	}
	target := srcPos / fx.Tempo
	if c.session.State() == StatePlaying {
		target += time.Since(started).Seconds()
	}
	if err := c.swapLocked(track, mediumFull, 0, fx.Tempo, target); err != nil {
		c.failJobLocked(id, err)
		return err
	}
	c.snap.ApplyingFX = false
	c.snap.FXMessage = ""
	return nil
}

// jobCurrent reports whether id is still the latest job. Completions check
// it before decoding a rendered file, so superseded jobs skip that work too.
func (c *Controller) jobCurrent(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return id == c.jobID
}

// failJob surfaces a render failure if the job is still current; stale
// failures stay silent. Playback keeps running on whatever medium is active.
func (c *Controller) failJob(id uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failJobLocked(id, err)
}

func (c *Controller) failJobLocked(id uint64, err error) {
	if id != c.jobID {
		return
	}
	c.log.Printf("fx job %d failed: %v", id, err)
	c.snap.ApplyingFX = false
	c.snap.FXMessage = fmt.Sprintf("effects failed: %v", err)
}

// swapLocked installs track as the active medium and repositions it at
// startSeconds of medium time. Playing resumes playing, paused stays paused
// at the mapped position, anything else is left stopped.
func (c *Controller) swapLocked(track *decode.Track, m medium, base, baked, startSeconds float64) error {
	wasPlaying := c.session.State() == StatePlaying
	wasPaused := c.session.State() == StatePaused

	if _, err := c.session.LoadTrack(track); err != nil {
		return err
	}
	c.session.SetTempo(1.0)
	c.session.SetPitch(0)
	c.session.Seek(startSeconds)

	c.medium = m
	c.mediumBase = base
	c.bakedTempo = baked
	c.snap.Position = clampFloat(base+startSeconds*baked, 0, c.snap.Duration)

	if wasPlaying || wasPaused {
		if err := c.session.Play(); err != nil {
			return err
		}
		if wasPaused {
			c.session.Pause()
		}
	}
	c.syncLocked()
	return nil
}

// restoreSourceLocked puts the untouched source back at the current
// source-time position. The realtime ratios were already reset by the
// identity branch of applyEffectsLocked via swapLocked.
func (c *Controller) restoreSourceLocked() error {
	pos := c.positionLocked()
	return c.swapLocked(c.source, mediumSource, 0, 1.0, pos)
}

// seekMediumLocked maps a source-time position into the active medium and
// seeks the session there. Positions outside a preview clip clamp to its
// edges; the full render and the source cover the whole track.
func (c *Controller) seekMediumLocked(sourceSeconds float64) {
	c.session.Seek((sourceSeconds - c.mediumBase) / c.bakedTempo)
}

// positionLocked is the displayed position: the session's medium-time
// cursor mapped back into source time.
func (c *Controller) positionLocked() float64 {
	pos := c.mediumBase + c.session.Position()*c.bakedTempo
	if c.snap.Duration > 0 {
		pos = clampFloat(pos, 0, c.snap.Duration)
	}
	return pos
}

func (c *Controller) syncLocked() {
	st := c.session.State()
	c.snap.Playing = st == StatePlaying
	c.snap.Paused = st == StatePaused
}

func (c *Controller) decodeConfig() decode.Config {
	return decode.Config{
		SampleRate: c.cfg.SampleRate,
		Channels:   c.cfg.Channels,
		FFmpegPath: c.cfg.FFmpegPath,
	}
}
