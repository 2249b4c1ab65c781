// Package manifest defines the serializable timeline document shared between
// the engine, the studio UI, and the external renderer. The JSON shape uses
// camelCase keys because the renderer consumes the document verbatim.
package manifest

import "github.com/google/uuid"

const (
	// DefaultFPS is assumed whenever a caller passes a non-positive rate.
	DefaultFPS = 30

	// MinDurationSeconds is the minimum visible canvas length. An empty
	// project still presents a 30 second timeline.
	MinDurationSeconds = 30
)

// Transition names the supported cut styles between video clips.
type Transition string

const (
	TransitionCut        Transition = "cut"
	TransitionFade       Transition = "fade"
	TransitionSlideLeft  Transition = "slide-left"
	TransitionSlideRight Transition = "slide-right"
	TransitionGlitch     Transition = "glitch"
	TransitionZoom       Transition = "zoom"
)

// EffectType names the supported per-clip video effects.
type EffectType string

const (
	EffectBrightness EffectType = "brightness"
	EffectContrast   EffectType = "contrast"
	EffectSaturation EffectType = "saturation"
	EffectBlur       EffectType = "blur"
	EffectGrayscale  EffectType = "grayscale"
)

// Effect is a single video effect applied to a clip.
type Effect struct {
	Type  EffectType `json:"type"`
	Value float64    `json:"value"`
}

// Clip is the shared shape of every timeline entry. StartFrame and
// DurationFrames are absolute frame counts; Layer orders stacking for video
// and component tracks (higher draws on top). Clips on the same track/layer
// may overlap; overlap resolution is a rendering concern.
type Clip struct {
	ID             string `json:"id"`
	StartFrame     int    `json:"startFrame"`
	DurationFrames int    `json:"durationFrames"`
	Layer          int    `json:"layer"`
}

// EndFrame returns the first frame past the clip.
func (c Clip) EndFrame() int {
	return c.StartFrame + c.DurationFrames
}

// VideoClip references a video asset placed on the timeline.
type VideoClip struct {
	Clip
	AssetID    string     `json:"assetId"`
	URL        string     `json:"url"`
	Transition Transition `json:"transition,omitempty"`
	Effects    []Effect   `json:"effects,omitempty"`
}

// WordTimestamp maps one spoken word to its start/end time in seconds,
// used for caption synchronisation.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// AudioClip references an audio asset placed on the timeline.
type AudioClip struct {
	Clip
	AssetID        string          `json:"assetId"`
	URL            string          `json:"url"`
	Volume         float64         `json:"volume"`
	WordTimestamps []WordTimestamp `json:"wordTimestamps,omitempty"`
}

// Tracks groups the three clip sequences of a project. Slice order is
// display/selection order only; time order comes from StartFrame and z-order
// from Layer.
type Tracks struct {
	Video      []VideoClip        `json:"video"`
	Audio      []AudioClip        `json:"audio"`
	Components []ComponentOverlay `json:"components"`
}

// GlobalSettings holds project-wide render settings.
type GlobalSettings struct {
	BackgroundColor string `json:"backgroundColor"`
}

// Manifest is the root serializable document describing a project timeline.
type Manifest struct {
	Version        int            `json:"version"`
	Tracks         Tracks         `json:"tracks"`
	GlobalSettings GlobalSettings `json:"globalSettings"`
}

// New returns an empty version-1 manifest with a black canvas.
func New() *Manifest {
	return &Manifest{
		Version:        1,
		GlobalSettings: GlobalSettings{BackgroundColor: "#000000"},
	}
}

// NewClipID returns a fresh stable clip identifier.
func NewClipID() string {
	return uuid.NewString()
}

// TotalFrames is THE duration formula: max of a 30 second floor and the
// furthest clip end across all three tracks. The timeline engine and the
// playback coordinator must both derive duration from this one function or
// seeking and duration display disagree.
func TotalFrames(m *Manifest, fps int) int {
	if fps <= 0 {
		fps = DefaultFPS
	}
	total := fps * MinDurationSeconds
	if m == nil {
		return total
	}
	for _, c := range m.Tracks.Video {
		if end := c.EndFrame(); end > total {
			total = end
		}
	}
	for _, c := range m.Tracks.Audio {
		if end := c.EndFrame(); end > total {
			total = end
		}
	}
	for _, c := range m.Tracks.Components {
		if end := c.EndFrame(); end > total {
			total = end
		}
	}
	return total
}

// Clone returns a deep copy. Mutation ops operate on clones so the previous
// snapshot stays intact for undo and for concurrent readers.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	out := &Manifest{
		Version:        m.Version,
		GlobalSettings: m.GlobalSettings,
	}
	if m.Tracks.Video != nil {
		out.Tracks.Video = make([]VideoClip, len(m.Tracks.Video))
		for i, c := range m.Tracks.Video {
			cc := c
			if c.Effects != nil {
				cc.Effects = append([]Effect(nil), c.Effects...)
			}
			out.Tracks.Video[i] = cc
		}
	}
	if m.Tracks.Audio != nil {
		out.Tracks.Audio = make([]AudioClip, len(m.Tracks.Audio))
		for i, c := range m.Tracks.Audio {
			cc := c
			if c.WordTimestamps != nil {
				cc.WordTimestamps = append([]WordTimestamp(nil), c.WordTimestamps...)
			}
			out.Tracks.Audio[i] = cc
		}
	}
	if m.Tracks.Components != nil {
		out.Tracks.Components = append([]ComponentOverlay(nil), m.Tracks.Components...)
	}
	return out
}
