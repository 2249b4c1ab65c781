// Package timeline implements the visual layout math and input translation
// for the manifest editor: pixel/frame mapping at variable zoom, snapping,
// selection/seek coupling, keyboard transport, and drag reordering. It is
// pure computation with no I/O.
package timeline

import (
	"math"

	"github.com/montagehq/montage-engine/internal/manifest"
)

// ClampFrame clamps a frame into [0, totalFrames-1].
func ClampFrame(frame, totalFrames int) int {
	if totalFrames < 1 {
		return 0
	}
	if frame < 0 {
		return 0
	}
	if frame > totalFrames-1 {
		return totalFrames - 1
	}
	return frame
}

// FrameAtPixel converts a pointer x position to a frame index:
// floor((x + scrollOffset) / pixelsPerFrame), clamped to the timeline.
func FrameAtPixel(x, scrollOffset, pixelsPerFrame float64, totalFrames int) int {
	if pixelsPerFrame <= 0 {
		pixelsPerFrame = DefaultZoom
	}
	frame := int(math.Floor((x + scrollOffset) / pixelsPerFrame))
	return ClampFrame(frame, totalFrames)
}

// PixelAtFrame is the inverse mapping, used to position clip boxes and the
// playhead.
func PixelAtFrame(frame int, scrollOffset, pixelsPerFrame float64) float64 {
	return float64(frame)*pixelsPerFrame - scrollOffset
}

// SnapGrid rounds drag and trim operations to a frame grid. Disabled or
// zero-unit grids pass values through unchanged.
type SnapGrid struct {
	Enabled    bool
	UnitFrames int
}

// GridFromSeconds derives a grid unit from a duration in seconds.
func GridFromSeconds(fps int, seconds float64) int {
	if fps <= 0 {
		fps = manifest.DefaultFPS
	}
	unit := int(math.Round(float64(fps) * seconds))
	if unit < 1 {
		unit = 1
	}
	return unit
}

// GridFromBPM derives a one-beat grid unit from a musical tempo.
func GridFromBPM(fps int, bpm float64) int {
	if bpm <= 0 {
		return 0
	}
	if fps <= 0 {
		fps = manifest.DefaultFPS
	}
	unit := int(math.Round(float64(fps) * 60 / bpm))
	if unit < 1 {
		unit = 1
	}
	return unit
}

// Snap rounds a start frame to the nearest grid line.
func (g SnapGrid) Snap(frame int) int {
	if !g.Enabled || g.UnitFrames <= 0 {
		return frame
	}
	snapped := int(math.Round(float64(frame)/float64(g.UnitFrames))) * g.UnitFrames
	if snapped < 0 {
		snapped = 0
	}
	return snapped
}

// SnapDuration rounds a duration to the nearest grid line but never below
// one grid unit, so a trim cannot collapse a clip to zero length.
func (g SnapGrid) SnapDuration(frames int) int {
	if !g.Enabled || g.UnitFrames <= 0 {
		return frames
	}
	snapped := g.Snap(frames)
	if snapped < g.UnitFrames {
		snapped = g.UnitFrames
	}
	return snapped
}

// Controller couples selection and the playhead per the editor's click
// semantics: clicking the ruler or empty background both seeks and clears
// the selection, while selecting a clip never moves the playhead.
type Controller struct {
	Zoom         Zoom
	ScrollOffset float64
	Snap         SnapGrid

	selected string
}

// NewController returns a controller at default zoom with snapping off.
func NewController() *Controller {
	return &Controller{Zoom: NewZoom()}
}

// SelectedClip returns the selected clip id, empty when nothing is selected.
func (c *Controller) SelectedClip() string {
	return c.selected
}

// SelectClip marks a clip selected without seeking.
func (c *Controller) SelectClip(id string) {
	c.selected = id
}

// ClearSelection drops the current selection.
func (c *Controller) ClearSelection() {
	c.selected = ""
}

// ClickBackground handles a click on the ruler or empty timeline area: it
// clears the selection and returns the frame to seek to.
func (c *Controller) ClickBackground(x float64, totalFrames int) int {
	c.selected = ""
	return FrameAtPixel(x, c.ScrollOffset, c.Zoom.PixelsPerFrame(), totalFrames)
}

// SnapStart applies the grid to a dragged start frame.
func (c *Controller) SnapStart(frame int) int {
	return c.Snap.Snap(frame)
}

// SnapTrim applies the grid to a trimmed duration.
func (c *Controller) SnapTrim(frames int) int {
	return c.Snap.SnapDuration(frames)
}
