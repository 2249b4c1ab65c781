package project

import (
	"errors"
	"testing"

	"github.com/montagehq/montage-engine/internal/apperr"
	"github.com/montagehq/montage-engine/internal/manifest"
)

func testManifest() *manifest.Manifest {
	m := manifest.New()
	m.Tracks.Video = []manifest.VideoClip{
		{Clip: manifest.Clip{ID: "v1", StartFrame: 0, DurationFrames: 90}, URL: "file:///a.mp4"},
		{Clip: manifest.Clip{ID: "v2", StartFrame: 90, DurationFrames: 60}, URL: "file:///b.mp4"},
		{Clip: manifest.Clip{ID: "v3", StartFrame: 150, DurationFrames: 30}, URL: "file:///c.mp4"},
	}
	m.Tracks.Audio = []manifest.AudioClip{
		{Clip: manifest.Clip{ID: "a1", StartFrame: 0, DurationFrames: 120}, URL: "file:///a.mp3", Volume: 1},
	}
	m.Tracks.Components = []manifest.ComponentOverlay{
		{
			Clip:      manifest.Clip{ID: "c1", StartFrame: 30, DurationFrames: 60},
			Component: manifest.ComponentBigTitle,
			Props:     manifest.BigTitleProps{Text: "Intro"},
		},
	}
	return m
}

func TestAddVideoClipAssignsID(t *testing.T) {
	m := manifest.New()
	op := AddVideoClip(manifest.VideoClip{
		Clip: manifest.Clip{DurationFrames: 60},
		URL:  "file:///new.mp4",
	})
	out, err := op(m)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(out.Tracks.Video) != 1 {
		t.Fatalf("video clips = %d, want 1", len(out.Tracks.Video))
	}
	if out.Tracks.Video[0].ID == "" {
		t.Fatal("clip left without an id")
	}
	if len(m.Tracks.Video) != 0 {
		t.Fatal("input manifest was mutated")
	}
}

func TestAddVideoClipValidates(t *testing.T) {
	m := manifest.New()
	// missing URL
	if _, err := AddVideoClip(manifest.VideoClip{Clip: manifest.Clip{DurationFrames: 60}})(m); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("missing url: err = %v, want ErrInvalid", err)
	}
	// zero duration
	if _, err := AddVideoClip(manifest.VideoClip{URL: "file:///a.mp4"})(m); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("zero duration: err = %v, want ErrInvalid", err)
	}
}

func TestAddAudioClip(t *testing.T) {
	m := manifest.New()
	out, err := AddAudioClip(manifest.AudioClip{
		Clip:   manifest.Clip{DurationFrames: 120},
		URL:    "file:///a.mp3",
		Volume: 0.8,
	})(m)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(out.Tracks.Audio) != 1 || out.Tracks.Audio[0].Volume != 0.8 {
		t.Fatalf("audio = %+v", out.Tracks.Audio)
	}
}

func TestAddOverlay(t *testing.T) {
	m := manifest.New()
	out, err := AddOverlay(manifest.ComponentOverlay{
		Clip:      manifest.Clip{DurationFrames: 60},
		Component: manifest.ComponentLowerThird,
		Props:     manifest.LowerThirdProps{Title: "Jane Doe"},
	})(m)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(out.Tracks.Components) != 1 {
		t.Fatalf("components = %d, want 1", len(out.Tracks.Components))
	}
}

func TestMoveClip(t *testing.T) {
	m := testManifest()
	out, err := MoveClip("v2", 300)(m)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if out.Tracks.Video[1].StartFrame != 300 {
		t.Fatalf("start = %d, want 300", out.Tracks.Video[1].StartFrame)
	}
	if m.Tracks.Video[1].StartFrame != 90 {
		t.Fatal("input manifest was mutated")
	}
}

func TestMoveClipRejectsNegative(t *testing.T) {
	if _, err := MoveClip("v1", -1)(testManifest()); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestMoveClipNotFound(t *testing.T) {
	if _, err := MoveClip("nope", 10)(testManifest()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMoveClipFindsAudioAndOverlay(t *testing.T) {
	m := testManifest()
	out, err := MoveClip("a1", 60)(m)
	if err != nil {
		t.Fatalf("move audio: %v", err)
	}
	if out.Tracks.Audio[0].StartFrame != 60 {
		t.Fatalf("audio start = %d", out.Tracks.Audio[0].StartFrame)
	}
	out, err = MoveClip("c1", 90)(m)
	if err != nil {
		t.Fatalf("move overlay: %v", err)
	}
	if out.Tracks.Components[0].StartFrame != 90 {
		t.Fatalf("overlay start = %d", out.Tracks.Components[0].StartFrame)
	}
}

func TestTrimClip(t *testing.T) {
	out, err := TrimClip("v1", 10, 45)(testManifest())
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	c := out.Tracks.Video[0]
	if c.StartFrame != 10 || c.DurationFrames != 45 {
		t.Fatalf("clip = %+v", c.Clip)
	}

	if _, err := TrimClip("v1", 0, 0)(testManifest()); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("zero duration err = %v, want ErrInvalid", err)
	}
	if _, err := TrimClip("v1", -5, 30)(testManifest()); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("negative start err = %v, want ErrInvalid", err)
	}
}

func TestSetLayer(t *testing.T) {
	out, err := SetLayer("v1", 3)(testManifest())
	if err != nil {
		t.Fatalf("set layer: %v", err)
	}
	if out.Tracks.Video[0].Layer != 3 {
		t.Fatalf("layer = %d, want 3", out.Tracks.Video[0].Layer)
	}
}

func TestRemoveClip(t *testing.T) {
	out, err := RemoveClip("v2")(testManifest())
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(out.Tracks.Video) != 2 {
		t.Fatalf("video clips = %d, want 2", len(out.Tracks.Video))
	}
	for _, c := range out.Tracks.Video {
		if c.ID == "v2" {
			t.Fatal("v2 still present")
		}
	}

	if _, err := RemoveClip("nope")(testManifest()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReorderTrackDoesNotRetime(t *testing.T) {
	out, err := ReorderTrack(manifest.TrackVideo, 0, 2)(testManifest())
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	order := []string{out.Tracks.Video[0].ID, out.Tracks.Video[1].ID, out.Tracks.Video[2].ID}
	if order[0] != "v2" || order[1] != "v3" || order[2] != "v1" {
		t.Fatalf("order = %v", order)
	}
	starts := map[string]int{"v1": 0, "v2": 90, "v3": 150}
	for _, c := range out.Tracks.Video {
		if c.StartFrame != starts[c.ID] {
			t.Fatalf("reorder retimed %s: start = %d, want %d", c.ID, c.StartFrame, starts[c.ID])
		}
	}
}

func TestReorderTrackUnknownTrack(t *testing.T) {
	if _, err := ReorderTrack("subtitles", 0, 1)(testManifest()); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestRippleRetimesSequentially(t *testing.T) {
	m := testManifest()
	// scatter starts so ripple has work to do
	m.Tracks.Video[0].StartFrame = 500
	m.Tracks.Video[1].StartFrame = 10
	m.Tracks.Video[2].StartFrame = 999

	out, err := Ripple(manifest.TrackVideo, 0)(m)
	if err != nil {
		t.Fatalf("ripple: %v", err)
	}
	// display order wins: v1(90), v2(60), v3(30) back to back
	wants := []int{0, 90, 150}
	for i, want := range wants {
		if out.Tracks.Video[i].StartFrame != want {
			t.Fatalf("clip %d start = %d, want %d", i, out.Tracks.Video[i].StartFrame, want)
		}
	}
}

func TestRippleWithGap(t *testing.T) {
	out, err := Ripple(manifest.TrackVideo, 15)(testManifest())
	if err != nil {
		t.Fatalf("ripple: %v", err)
	}
	wants := []int{0, 105, 180}
	for i, want := range wants {
		if out.Tracks.Video[i].StartFrame != want {
			t.Fatalf("clip %d start = %d, want %d", i, out.Tracks.Video[i].StartFrame, want)
		}
	}

	if _, err := Ripple(manifest.TrackVideo, -1)(testManifest()); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("negative gap err = %v, want ErrInvalid", err)
	}
}

func TestSetTransition(t *testing.T) {
	out, err := SetTransition("v1", manifest.TransitionFade)(testManifest())
	if err != nil {
		t.Fatalf("set transition: %v", err)
	}
	if out.Tracks.Video[0].Transition != manifest.TransitionFade {
		t.Fatalf("transition = %q", out.Tracks.Video[0].Transition)
	}

	if _, err := SetTransition("v1", "wipe")(testManifest()); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("unknown transition err = %v, want ErrInvalid", err)
	}
	if _, err := SetTransition("a1", manifest.TransitionFade)(testManifest()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("audio id err = %v, want ErrNotFound", err)
	}
}

func TestSetEffects(t *testing.T) {
	effects := []manifest.Effect{{Type: manifest.EffectBlur, Value: 0.5}}
	out, err := SetEffects("v1", effects)(testManifest())
	if err != nil {
		t.Fatalf("set effects: %v", err)
	}
	if len(out.Tracks.Video[0].Effects) != 1 || out.Tracks.Video[0].Effects[0].Type != manifest.EffectBlur {
		t.Fatalf("effects = %+v", out.Tracks.Video[0].Effects)
	}

	bad := []manifest.Effect{{Type: "sepia", Value: 1}}
	if _, err := SetEffects("v1", bad)(testManifest()); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("unknown effect err = %v, want ErrInvalid", err)
	}
}

func TestSetVolume(t *testing.T) {
	out, err := SetVolume("a1", 0.25)(testManifest())
	if err != nil {
		t.Fatalf("set volume: %v", err)
	}
	if out.Tracks.Audio[0].Volume != 0.25 {
		t.Fatalf("volume = %v", out.Tracks.Audio[0].Volume)
	}

	if _, err := SetVolume("a1", 1.5)(testManifest()); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("out of range err = %v, want ErrInvalid", err)
	}
	if _, err := SetVolume("v1", 0.5)(testManifest()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("video id err = %v, want ErrNotFound", err)
	}
}

func TestSetOverlayProps(t *testing.T) {
	out, err := SetOverlayProps("c1", manifest.BigTitleProps{Text: "Updated"})(testManifest())
	if err != nil {
		t.Fatalf("set props: %v", err)
	}
	props, ok := out.Tracks.Components[0].Props.(manifest.BigTitleProps)
	if !ok || props.Text != "Updated" {
		t.Fatalf("props = %+v", out.Tracks.Components[0].Props)
	}
}

func TestSetOverlayPropsKindMismatch(t *testing.T) {
	op := SetOverlayProps("c1", manifest.LowerThirdProps{Title: "Wrong"})
	if _, err := op(testManifest()); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestSetBackground(t *testing.T) {
	out, err := SetBackground("#112233")(testManifest())
	if err != nil {
		t.Fatalf("set background: %v", err)
	}
	if out.GlobalSettings.BackgroundColor != "#112233" {
		t.Fatalf("color = %q", out.GlobalSettings.BackgroundColor)
	}

	if _, err := SetBackground("")(testManifest()); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("empty color err = %v, want ErrInvalid", err)
	}
}
