package playback

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/montagehq/montage-engine/internal/manifest"
	"github.com/montagehq/montage-engine/internal/timeline"
)

type fakeRenderer struct {
	mu    sync.Mutex
	calls []string
	seeks []int
}

func (f *fakeRenderer) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "play")
}

func (f *fakeRenderer) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "pause")
}

func (f *fakeRenderer) Seek(frame int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "seek")
	f.seeks = append(f.seeks, frame)
}

func (f *fakeRenderer) lastSeek() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seeks) == 0 {
		return 0, false
	}
	return f.seeks[len(f.seeks)-1], true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedSource returns an empty manifest at 30fps, so the duration floor of
// 900 frames applies.
func fixedSource() ManifestSource {
	m := manifest.New()
	return func() (*manifest.Manifest, int) { return m, 30 }
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeRenderer) {
	t.Helper()
	c := NewCoordinator(fixedSource(), testLogger())
	r := &fakeRenderer{}
	c.AttachRenderer(r)
	return c, r
}

func TestSeekClamps(t *testing.T) {
	tests := []struct {
		name  string
		frame int
		want  int
	}{
		{"negative clamps to zero", -10, 0},
		{"in range", 450, 450},
		{"last frame", 899, 899},
		{"at duration clamps", 900, 899},
		{"past end clamps", 5000, 899},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, r := newTestCoordinator(t)
			c.Seek(tt.frame)
			if got := c.State().CurrentFrame; got != tt.want {
				t.Fatalf("Seek(%d): frame = %d, want %d", tt.frame, got, tt.want)
			}
			if last, ok := r.lastSeek(); !ok || last != tt.want {
				t.Fatalf("renderer seek = %d (%v), want %d", last, ok, tt.want)
			}
		})
	}
}

func TestPlayPauseToggle(t *testing.T) {
	c, r := newTestCoordinator(t)

	if c.State().Playing {
		t.Fatal("new coordinator should start paused")
	}

	c.Play()
	if !c.State().Playing {
		t.Fatal("not playing after Play")
	}
	c.Play() // idempotent
	c.Pause()
	if c.State().Playing {
		t.Fatal("still playing after Pause")
	}
	c.Pause() // idempotent

	c.TogglePlay()
	if !c.State().Playing {
		t.Fatal("toggle from paused should play")
	}
	c.TogglePlay()
	if c.State().Playing {
		t.Fatal("toggle from playing should pause")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	want := []string{"seek", "play", "pause", "play", "pause"}
	if len(r.calls) != len(want) {
		t.Fatalf("renderer calls = %v, want %v", r.calls, want)
	}
	for i := range want {
		if r.calls[i] != want[i] {
			t.Fatalf("renderer calls = %v, want %v", r.calls, want)
		}
	}
}

func TestObserveFrameIgnoredWhilePaused(t *testing.T) {
	c, _ := newTestCoordinator(t)

	c.ObserveFrame(120)
	if got := c.State().CurrentFrame; got != 0 {
		t.Fatalf("paused ObserveFrame moved playhead to %d", got)
	}

	c.Play()
	c.ObserveFrame(120)
	if got := c.State().CurrentFrame; got != 120 {
		t.Fatalf("playing ObserveFrame frame = %d, want 120", got)
	}

	c.ObserveFrame(2000)
	if got := c.State().CurrentFrame; got != 899 {
		t.Fatalf("ObserveFrame past end = %d, want 899", got)
	}
}

func TestObserveEndedStopsPlayback(t *testing.T) {
	c, _ := newTestCoordinator(t)

	// ignored while paused, like ObserveFrame
	c.ObserveEnded(899)
	if got := c.State().CurrentFrame; got != 0 {
		t.Fatalf("paused ObserveEnded moved playhead to %d", got)
	}

	c.Play()
	c.ObserveEnded(899)
	st := c.State()
	if st.Playing {
		t.Fatal("still playing after the renderer reported the end")
	}
	if st.CurrentFrame != 899 {
		t.Fatalf("end frame = %d, want 899", st.CurrentFrame)
	}

	// transport is usable again from the stopped state
	c.Play()
	if !c.State().Playing {
		t.Fatal("Play after end of timeline did not restart")
	}
}

func TestSeekCancelsPendingScrub(t *testing.T) {
	c := NewCoordinator(fixedSource(), testLogger())
	c.scrubDebounce = 20 * time.Millisecond
	r := &fakeRenderer{}
	c.AttachRenderer(r)

	c.Scrub(100)
	c.Seek(5)

	time.Sleep(80 * time.Millisecond)

	if got := c.State().CurrentFrame; got != 5 {
		t.Fatalf("frame after seek = %d, want 5", got)
	}
	if last, ok := r.lastSeek(); !ok || last != 5 {
		t.Fatalf("renderer parked at %d (%v), want 5", last, ok)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.seeks {
		if s == 100 {
			t.Fatalf("superseded scrub target reached the renderer: %v", r.seeks)
		}
	}
}

func TestScrubUpdatesStateImmediately(t *testing.T) {
	c := NewCoordinator(fixedSource(), testLogger())
	c.scrubDebounce = 5 * time.Millisecond
	r := &fakeRenderer{}
	c.AttachRenderer(r)

	c.Scrub(100)
	c.Scrub(200)
	c.Scrub(300)
	if got := c.State().CurrentFrame; got != 300 {
		t.Fatalf("frame after scrubs = %d, want 300", got)
	}

	time.Sleep(50 * time.Millisecond)
	last, ok := r.lastSeek()
	if !ok || last != 300 {
		t.Fatalf("debounced renderer seek = %d (%v), want 300", last, ok)
	}
	r.mu.Lock()
	seeks := len(r.seeks)
	r.mu.Unlock()
	// attach seek plus at most the final debounced seek
	if seeks > 2 {
		t.Fatalf("renderer saw %d seeks, debounce should collapse them", seeks)
	}
}

func TestStepAndSkip(t *testing.T) {
	c, _ := newTestCoordinator(t)

	c.Seek(100)
	c.StepFrames(5)
	if got := c.State().CurrentFrame; got != 105 {
		t.Fatalf("step = %d, want 105", got)
	}
	c.StepFrames(-200)
	if got := c.State().CurrentFrame; got != 0 {
		t.Fatalf("step below zero = %d, want 0", got)
	}

	c.Seek(100)
	c.SkipForward()
	if got := c.State().CurrentFrame; got != 130 {
		t.Fatalf("skip forward = %d, want 130", got)
	}
	c.SkipBack()
	if got := c.State().CurrentFrame; got != 100 {
		t.Fatalf("skip back = %d, want 100", got)
	}

	c.SetSkipSeconds(5)
	c.SkipForward()
	if got := c.State().CurrentFrame; got != 250 {
		t.Fatalf("skip forward 5s = %d, want 250", got)
	}
}

func TestExecute(t *testing.T) {
	c, _ := newTestCoordinator(t)

	if c.Execute(timeline.CmdZoomIn) {
		t.Fatal("zoom in should not be handled by the transport")
	}
	if c.Execute(timeline.CmdZoomOut) {
		t.Fatal("zoom out should not be handled by the transport")
	}
	if c.Execute(timeline.CmdNone) {
		t.Fatal("CmdNone should not be handled")
	}

	if !c.Execute(timeline.CmdTogglePlay) {
		t.Fatal("toggle not handled")
	}
	if !c.State().Playing {
		t.Fatal("toggle did not start playback")
	}

	if !c.Execute(timeline.CmdJumpEnd) {
		t.Fatal("jump end not handled")
	}
	if got := c.State().CurrentFrame; got != 899 {
		t.Fatalf("jump end frame = %d, want 899", got)
	}

	if !c.Execute(timeline.CmdJumpStart) {
		t.Fatal("jump start not handled")
	}
	if got := c.State().CurrentFrame; got != 0 {
		t.Fatalf("jump start frame = %d, want 0", got)
	}

	if !c.Execute(timeline.CmdJumpForwardSecond) {
		t.Fatal("jump forward not handled")
	}
	if got := c.State().CurrentFrame; got != 30 {
		t.Fatalf("jump forward frame = %d, want 30", got)
	}
}

func TestHandleKeyRespectsTextInputGuard(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if c.HandleKey(timeline.KeyEvent{Key: " "}, true) {
		t.Fatal("key handled while text input focused")
	}
	if c.State().Playing {
		t.Fatal("playback started from a guarded key press")
	}
	if !c.HandleKey(timeline.KeyEvent{Key: " "}, false) {
		t.Fatal("space not handled")
	}
	if !c.State().Playing {
		t.Fatal("space did not start playback")
	}
}

func TestDurationFollowsManifest(t *testing.T) {
	m := manifest.New()
	c := NewCoordinator(func() (*manifest.Manifest, int) { return m, 30 }, testLogger())

	if got := c.DurationFrames(); got != 900 {
		t.Fatalf("empty manifest duration = %d, want 900", got)
	}

	m.Tracks.Video = append(m.Tracks.Video, manifest.VideoClip{
		Clip: manifest.Clip{ID: "v1", StartFrame: 1000, DurationFrames: 200},
		URL:  "file:///a.mp4",
	})
	if got := c.DurationFrames(); got != 1200 {
		t.Fatalf("duration after append = %d, want 1200", got)
	}

	// a later seek clamps against the grown duration, not the old one
	c.Seek(1150)
	if got := c.State().CurrentFrame; got != 1150 {
		t.Fatalf("seek into grown region = %d, want 1150", got)
	}
}

func TestStateChangeListener(t *testing.T) {
	c, _ := newTestCoordinator(t)

	var mu sync.Mutex
	var states []State
	c.OnStateChange(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	c.Play()
	c.Seek(10)
	c.Pause()

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 3 {
		t.Fatalf("got %d state events, want 3: %v", len(states), states)
	}
	if !states[0].Playing || states[0].CurrentFrame != 0 {
		t.Fatalf("play event = %+v", states[0])
	}
	if states[1].CurrentFrame != 10 {
		t.Fatalf("seek event = %+v", states[1])
	}
	if states[2].Playing {
		t.Fatalf("pause event = %+v", states[2])
	}
}
