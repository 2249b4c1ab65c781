package timeline

const (
	// MinZoom and MaxZoom bound pixelsPerFrame.
	MinZoom = 0.5
	MaxZoom = 8.0

	// ZoomStep is the multiplier applied per zoom-in/out action.
	ZoomStep = 1.5

	// DefaultZoom is the pixelsPerFrame a fresh timeline opens at.
	DefaultZoom = 1.0
)

// Zoom is the single scalar controlling pixel/frame mapping. The zero value
// is not usable; construct with NewZoom.
type Zoom struct {
	pixelsPerFrame float64
}

// NewZoom returns the default zoom level.
func NewZoom() Zoom {
	return Zoom{pixelsPerFrame: DefaultZoom}
}

// ZoomAt returns a zoom clamped into [MinZoom, MaxZoom].
func ZoomAt(pixelsPerFrame float64) Zoom {
	return Zoom{pixelsPerFrame: clampZoom(pixelsPerFrame)}
}

// PixelsPerFrame returns the current scale.
func (z Zoom) PixelsPerFrame() float64 {
	if z.pixelsPerFrame == 0 {
		return DefaultZoom
	}
	return z.pixelsPerFrame
}

// In zooms in one step. Repeated calls converge to MaxZoom without
// overshooting.
func (z Zoom) In() Zoom {
	return ZoomAt(z.PixelsPerFrame() * ZoomStep)
}

// Out zooms out one step. Repeated calls converge to MinZoom.
func (z Zoom) Out() Zoom {
	return ZoomAt(z.PixelsPerFrame() / ZoomStep)
}

// FitToView picks the level that shows the whole timeline in a container of
// the given pixel width, clamped into range.
func (z Zoom) FitToView(containerWidth float64, totalFrames int) Zoom {
	if totalFrames <= 0 || containerWidth <= 0 {
		return ZoomAt(DefaultZoom)
	}
	return ZoomAt(containerWidth / float64(totalFrames))
}

func clampZoom(v float64) float64 {
	if v < MinZoom {
		return MinZoom
	}
	if v > MaxZoom {
		return MaxZoom
	}
	return v
}
