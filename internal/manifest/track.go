package manifest

import "fmt"

// TrackKind names one of the three clip tracks.
type TrackKind string

const (
	TrackVideo      TrackKind = "video"
	TrackAudio      TrackKind = "audio"
	TrackComponents TrackKind = "components"
)

// ParseTrackKind validates a wire-level track name.
func ParseTrackKind(s string) (TrackKind, error) {
	switch TrackKind(s) {
	case TrackVideo, TrackAudio, TrackComponents:
		return TrackKind(s), nil
	}
	return "", fmt.Errorf("unknown track %q", s)
}

// FindClip returns the base clip with the given id and the track it lives
// on, or false when no track contains it.
func (m *Manifest) FindClip(id string) (Clip, TrackKind, bool) {
	for _, c := range m.Tracks.Video {
		if c.ID == id {
			return c.Clip, TrackVideo, true
		}
	}
	for _, c := range m.Tracks.Audio {
		if c.ID == id {
			return c.Clip, TrackAudio, true
		}
	}
	for _, c := range m.Tracks.Components {
		if c.ID == id {
			return c.Clip, TrackComponents, true
		}
	}
	return Clip{}, "", false
}
