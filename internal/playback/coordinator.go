// Package playback owns transport state for a project: the current frame
// and play/pause flag shared between the timeline, the preview renderer,
// and quick-action controls.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/montagehq/montage-engine/internal/manifest"
	"github.com/montagehq/montage-engine/internal/timeline"
)

// Renderer is the opaque playback surface the coordinator commands. The
// renderer advances frames on its own clock while playing and reports them
// back through the frame callback registered at attach time.
type Renderer interface {
	Play()
	Pause()
	Seek(frame int)
}

// State is the externally visible transport state.
type State struct {
	CurrentFrame int  `json:"current_frame"`
	Playing      bool `json:"playing"`
}

// ManifestSource supplies the live manifest and frame rate. Duration is
// recomputed from it on every use so the coordinator and the timeline engine
// can never disagree about length.
type ManifestSource func() (*manifest.Manifest, int)

const defaultScrubDebounce = 40 * time.Millisecond

// Coordinator is the single owner of (currentFrame, isPlaying). Every write
// flows through its setters: the UI drives frames while paused, the renderer
// drives them while playing, never both in the same tick.
type Coordinator struct {
	mu       sync.Mutex
	renderer Renderer
	source   ManifestSource
	logger   *slog.Logger

	current int
	playing bool

	skipSeconds   int
	scrubDebounce time.Duration
	scrubTimer    *time.Timer

	onState func(State)
}

// NewCoordinator creates a coordinator over the given manifest source.
// A nil renderer is allowed; commands are then state-only until one is
// attached.
func NewCoordinator(source ManifestSource, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		source:        source,
		logger:        logger,
		skipSeconds:   1,
		scrubDebounce: defaultScrubDebounce,
	}
}

// AttachRenderer connects the renderer and aligns it with current state.
func (c *Coordinator) AttachRenderer(r Renderer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renderer = r
	if r != nil {
		r.Seek(c.current)
		if c.playing {
			r.Play()
		}
	}
}

// SetSkipSeconds overrides the whole-second skip increment.
func (c *Coordinator) SetSkipSeconds(s int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s > 0 {
		c.skipSeconds = s
	}
}

// OnStateChange registers a listener invoked after every state transition.
func (c *Coordinator) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// State returns a snapshot of the transport state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{CurrentFrame: c.current, Playing: c.playing}
}

// DurationFrames derives the project length from the live manifest using
// the shared duration formula.
func (c *Coordinator) DurationFrames() int {
	m, fps := c.source()
	return manifest.TotalFrames(m, fps)
}

// FPS returns the live frame rate.
func (c *Coordinator) FPS() int {
	_, fps := c.source()
	if fps <= 0 {
		fps = manifest.DefaultFPS
	}
	return fps
}

// Play starts playback, delegating frame advancement to the renderer.
func (c *Coordinator) Play() {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return
	}
	c.playing = true
	r := c.renderer
	st := State{CurrentFrame: c.current, Playing: true}
	fn := c.onState
	c.mu.Unlock()

	if r != nil {
		r.Play()
	}
	if fn != nil {
		fn(st)
	}
}

// Pause stops playback.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.playing = false
	r := c.renderer
	st := State{CurrentFrame: c.current, Playing: false}
	fn := c.onState
	c.mu.Unlock()

	if r != nil {
		r.Pause()
	}
	if fn != nil {
		fn(st)
	}
}

// TogglePlay flips between playing and paused.
func (c *Coordinator) TogglePlay() {
	if c.State().Playing {
		c.Pause()
	} else {
		c.Play()
	}
}

// Seek clamps the frame into [0, duration-1] and commands the renderer to
// jump regardless of play state.
func (c *Coordinator) Seek(frame int) {
	total := c.DurationFrames()

	c.mu.Lock()
	if c.scrubTimer != nil {
		c.scrubTimer.Stop()
		c.scrubTimer = nil
	}
	c.current = timeline.ClampFrame(frame, total)
	r := c.renderer
	target := c.current
	st := State{CurrentFrame: c.current, Playing: c.playing}
	fn := c.onState
	c.mu.Unlock()

	if r != nil {
		r.Seek(target)
	}
	if fn != nil {
		fn(st)
	}
}

// Scrub updates the visible frame immediately but debounces the renderer
// command, so dragging the playhead does not flood the renderer with seeks.
func (c *Coordinator) Scrub(frame int) {
	total := c.DurationFrames()

	c.mu.Lock()
	c.current = timeline.ClampFrame(frame, total)
	target := c.current
	st := State{CurrentFrame: c.current, Playing: c.playing}
	fn := c.onState
	if c.scrubTimer != nil {
		c.scrubTimer.Stop()
	}
	c.scrubTimer = time.AfterFunc(c.scrubDebounce, func() {
		c.mu.Lock()
		r := c.renderer
		// a later seek or scrub supersedes this target
		stale := c.current != target
		c.mu.Unlock()
		if r != nil && !stale {
			r.Seek(target)
		}
	})
	c.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

// StepFrames moves the playhead by n frames.
func (c *Coordinator) StepFrames(n int) {
	c.Seek(c.State().CurrentFrame + n)
}

// SkipBack jumps back by the skip increment in whole seconds.
func (c *Coordinator) SkipBack() {
	c.mu.Lock()
	skip := c.skipSeconds
	c.mu.Unlock()
	c.StepFrames(-skip * c.FPS())
}

// SkipForward jumps forward by the skip increment in whole seconds.
func (c *Coordinator) SkipForward() {
	c.mu.Lock()
	skip := c.skipSeconds
	c.mu.Unlock()
	c.StepFrames(skip * c.FPS())
}

// Execute applies a keyboard transport command. Zoom commands are not
// transport and report handled=false so the timeline controller can take
// them.
func (c *Coordinator) Execute(cmd timeline.Command) bool {
	switch cmd {
	case timeline.CmdNone, timeline.CmdZoomIn, timeline.CmdZoomOut:
		return false
	case timeline.CmdTogglePlay:
		c.TogglePlay()
		return true
	case timeline.CmdJumpStart:
		c.Seek(0)
		return true
	case timeline.CmdJumpEnd:
		c.Seek(c.DurationFrames() - 1)
		return true
	}
	if delta, ok := timeline.FrameDelta(cmd, c.FPS()); ok {
		c.StepFrames(delta)
		return true
	}
	return false
}

// HandleKey translates and applies a key press in one call.
func (c *Coordinator) HandleKey(ev timeline.KeyEvent, textInputFocused bool) bool {
	return c.Execute(timeline.Translate(ev, textInputFocused))
}

// ObserveEnded is the renderer's end-of-timeline callback. The renderer has
// already stopped its own clock at the last frame; the play flag mirrors
// that here so transport state cannot report playback the renderer is no
// longer doing.
func (c *Coordinator) ObserveEnded(frame int) {
	total := c.DurationFrames()

	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.playing = false
	c.current = timeline.ClampFrame(frame, total)
	st := State{CurrentFrame: c.current, Playing: false}
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

// ObserveFrame is the renderer's frame-change callback. It only writes
// state while playing; a paused renderer reporting frames is ignored so the
// UI stays the sole writer while paused.
func (c *Coordinator) ObserveFrame(frame int) {
	total := c.DurationFrames()

	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.current = timeline.ClampFrame(frame, total)
	st := State{CurrentFrame: c.current, Playing: true}
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}
