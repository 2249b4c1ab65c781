package project

import (
	"fmt"

	"github.com/montagehq/montage-engine/internal/apperr"
	"github.com/montagehq/montage-engine/internal/manifest"
	"github.com/montagehq/montage-engine/internal/timeline"
)

// Mutation ops take the whole manifest and return a new whole manifest; the
// input is never modified. There is no patch API: full snapshots keep
// undo/redo trivial and manifest replacement atomic.
//
// Overlapping clips on the same track/layer are allowed; overlap resolution
// (crossfade, transition) is the renderer's concern, not a data invariant.

// Op is a structural edit applied through Store.Apply.
type Op func(*manifest.Manifest) (*manifest.Manifest, error)

// AddVideoClip appends a video clip. An empty ID is assigned a fresh one.
func AddVideoClip(clip manifest.VideoClip) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		if clip.ID == "" {
			clip.ID = manifest.NewClipID()
		}
		if err := clip.Validate(); err != nil {
			return nil, err
		}
		out := m.Clone()
		out.Tracks.Video = append(out.Tracks.Video, clip)
		return out, nil
	}
}

// AddAudioClip appends an audio clip.
func AddAudioClip(clip manifest.AudioClip) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		if clip.ID == "" {
			clip.ID = manifest.NewClipID()
		}
		if err := clip.Validate(); err != nil {
			return nil, err
		}
		out := m.Clone()
		out.Tracks.Audio = append(out.Tracks.Audio, clip)
		return out, nil
	}
}

// AddOverlay appends a component overlay.
func AddOverlay(clip manifest.ComponentOverlay) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		if clip.ID == "" {
			clip.ID = manifest.NewClipID()
		}
		if err := clip.Validate(); err != nil {
			return nil, err
		}
		out := m.Clone()
		out.Tracks.Components = append(out.Tracks.Components, clip)
		return out, nil
	}
}

// MoveClip repositions a clip in time. Negative starts are rejected, not
// clamped: a drop that lands off-timeline is an invalid edit.
func MoveClip(id string, startFrame int) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		if startFrame < 0 {
			return nil, fmt.Errorf("%w: startFrame %d < 0", apperr.ErrInvalid, startFrame)
		}
		return updateClip(m, id, func(c *manifest.Clip) {
			c.StartFrame = startFrame
		})
	}
}

// TrimClip changes a clip's start and duration together, as a trim handle
// drag does.
func TrimClip(id string, startFrame, durationFrames int) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		if startFrame < 0 {
			return nil, fmt.Errorf("%w: startFrame %d < 0", apperr.ErrInvalid, startFrame)
		}
		if durationFrames < 1 {
			return nil, fmt.Errorf("%w: durationFrames %d < 1", apperr.ErrInvalid, durationFrames)
		}
		return updateClip(m, id, func(c *manifest.Clip) {
			c.StartFrame = startFrame
			c.DurationFrames = durationFrames
		})
	}
}

// SetLayer changes a clip's z-order layer.
func SetLayer(id string, layer int) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		return updateClip(m, id, func(c *manifest.Clip) {
			c.Layer = layer
		})
	}
}

// RemoveClip deletes a clip from whichever track holds it.
func RemoveClip(id string) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		out := m.Clone()
		for i, c := range out.Tracks.Video {
			if c.ID == id {
				out.Tracks.Video = append(out.Tracks.Video[:i], out.Tracks.Video[i+1:]...)
				return out, nil
			}
		}
		for i, c := range out.Tracks.Audio {
			if c.ID == id {
				out.Tracks.Audio = append(out.Tracks.Audio[:i], out.Tracks.Audio[i+1:]...)
				return out, nil
			}
		}
		for i, c := range out.Tracks.Components {
			if c.ID == id {
				out.Tracks.Components = append(out.Tracks.Components[:i], out.Tracks.Components[i+1:]...)
				return out, nil
			}
		}
		return nil, fmt.Errorf("%w: clip %s", apperr.ErrNotFound, id)
	}
}

// ReorderTrack moves a clip between display positions within one track.
// Display order only: startFrame is untouched, so the edit never retimes
// anything. Callers wanting sequential reflow follow up with Ripple.
func ReorderTrack(track manifest.TrackKind, from, to int) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		out := m.Clone()
		switch track {
		case manifest.TrackVideo:
			out.Tracks.Video = timeline.Reorder(out.Tracks.Video, from, to)
		case manifest.TrackAudio:
			out.Tracks.Audio = timeline.Reorder(out.Tracks.Audio, from, to)
		case manifest.TrackComponents:
			out.Tracks.Components = timeline.Reorder(out.Tracks.Components, from, to)
		default:
			return nil, fmt.Errorf("%w: unknown track %q", apperr.ErrInvalid, track)
		}
		return out, nil
	}
}

// Ripple retimes a track's clips sequentially in display order, placing
// each clip right after the previous one separated by gapFrames.
func Ripple(track manifest.TrackKind, gapFrames int) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		if gapFrames < 0 {
			return nil, fmt.Errorf("%w: gapFrames %d < 0", apperr.ErrInvalid, gapFrames)
		}
		out := m.Clone()
		next := 0
		switch track {
		case manifest.TrackVideo:
			for i := range out.Tracks.Video {
				out.Tracks.Video[i].StartFrame = next
				next += out.Tracks.Video[i].DurationFrames + gapFrames
			}
		case manifest.TrackAudio:
			for i := range out.Tracks.Audio {
				out.Tracks.Audio[i].StartFrame = next
				next += out.Tracks.Audio[i].DurationFrames + gapFrames
			}
		case manifest.TrackComponents:
			for i := range out.Tracks.Components {
				out.Tracks.Components[i].StartFrame = next
				next += out.Tracks.Components[i].DurationFrames + gapFrames
			}
		default:
			return nil, fmt.Errorf("%w: unknown track %q", apperr.ErrInvalid, track)
		}
		return out, nil
	}
}

// SetTransition changes a video clip's transition.
func SetTransition(id string, t manifest.Transition) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		out := m.Clone()
		for i := range out.Tracks.Video {
			if out.Tracks.Video[i].ID == id {
				out.Tracks.Video[i].Transition = t
				if err := out.Tracks.Video[i].Validate(); err != nil {
					return nil, err
				}
				return out, nil
			}
		}
		return nil, fmt.Errorf("%w: video clip %s", apperr.ErrNotFound, id)
	}
}

// SetEffects replaces a video clip's effect list.
func SetEffects(id string, effects []manifest.Effect) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		out := m.Clone()
		for i := range out.Tracks.Video {
			if out.Tracks.Video[i].ID == id {
				out.Tracks.Video[i].Effects = append([]manifest.Effect(nil), effects...)
				if err := out.Tracks.Video[i].Validate(); err != nil {
					return nil, err
				}
				return out, nil
			}
		}
		return nil, fmt.Errorf("%w: video clip %s", apperr.ErrNotFound, id)
	}
}

// SetVolume changes an audio clip's volume.
func SetVolume(id string, volume float64) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		if volume < 0 || volume > 1 {
			return nil, fmt.Errorf("%w: volume %v outside [0,1]", apperr.ErrInvalid, volume)
		}
		out := m.Clone()
		for i := range out.Tracks.Audio {
			if out.Tracks.Audio[i].ID == id {
				out.Tracks.Audio[i].Volume = volume
				return out, nil
			}
		}
		return nil, fmt.Errorf("%w: audio clip %s", apperr.ErrNotFound, id)
	}
}

// SetOverlayProps replaces an overlay's typed props.
func SetOverlayProps(id string, props manifest.OverlayProps) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		out := m.Clone()
		for i := range out.Tracks.Components {
			if out.Tracks.Components[i].ID == id {
				if props != nil && props.Kind() != out.Tracks.Components[i].Component {
					return nil, fmt.Errorf("%w: props kind %s does not match component %s",
						apperr.ErrInvalid, props.Kind(), out.Tracks.Components[i].Component)
				}
				out.Tracks.Components[i].Props = props
				return out, nil
			}
		}
		return nil, fmt.Errorf("%w: overlay %s", apperr.ErrNotFound, id)
	}
}

// SetBackground changes the fallback canvas color.
func SetBackground(color string) Op {
	return func(m *manifest.Manifest) (*manifest.Manifest, error) {
		if color == "" {
			return nil, fmt.Errorf("%w: background color is required", apperr.ErrInvalid)
		}
		out := m.Clone()
		out.GlobalSettings.BackgroundColor = color
		return out, nil
	}
}

func updateClip(m *manifest.Manifest, id string, fn func(*manifest.Clip)) (*manifest.Manifest, error) {
	out := m.Clone()
	for i := range out.Tracks.Video {
		if out.Tracks.Video[i].ID == id {
			fn(&out.Tracks.Video[i].Clip)
			return out, nil
		}
	}
	for i := range out.Tracks.Audio {
		if out.Tracks.Audio[i].ID == id {
			fn(&out.Tracks.Audio[i].Clip)
			return out, nil
		}
	}
	for i := range out.Tracks.Components {
		if out.Tracks.Components[i].ID == id {
			fn(&out.Tracks.Components[i].Clip)
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: clip %s", apperr.ErrNotFound, id)
}
