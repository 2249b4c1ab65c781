package manifest

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/montagehq/montage-engine/internal/apperr"
)

// Validate enforces the structural invariants of the document. Mutation
// entry points call this before persisting; rendering never validates.
func (m *Manifest) Validate() error {
	if err := validation.ValidateStruct(m,
		validation.Field(&m.Version, validation.Required, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}

	for i := range m.Tracks.Video {
		if err := m.Tracks.Video[i].Validate(); err != nil {
			return fmt.Errorf("tracks.video[%d]: %w", i, err)
		}
	}
	for i := range m.Tracks.Audio {
		if err := m.Tracks.Audio[i].Validate(); err != nil {
			return fmt.Errorf("tracks.audio[%d]: %w", i, err)
		}
	}
	for i := range m.Tracks.Components {
		if err := m.Tracks.Components[i].Validate(); err != nil {
			return fmt.Errorf("tracks.components[%d]: %w", i, err)
		}
	}
	return nil
}

func (c *Clip) validateBase() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.StartFrame, validation.Min(0)),
		validation.Field(&c.DurationFrames, validation.Required, validation.Min(1)),
	)
}

// Validate checks a video clip's frame bounds, transition, and effects.
func (c *VideoClip) Validate() error {
	if err := c.validateBase(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.Transition, validation.In(
			TransitionCut, TransitionFade, TransitionSlideLeft,
			TransitionSlideRight, TransitionGlitch, TransitionZoom,
		)),
	); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	for i, e := range c.Effects {
		if err := validation.Validate(e.Type, validation.Required, validation.In(
			EffectBrightness, EffectContrast, EffectSaturation, EffectBlur, EffectGrayscale,
		)); err != nil {
			return fmt.Errorf("%w: effects[%d]: %v", apperr.ErrInvalid, i, err)
		}
	}
	return nil
}

// Validate checks an audio clip's frame bounds, volume range, and word
// timestamp ordering.
func (c *AudioClip) Validate() error {
	if err := c.validateBase(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.Volume, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	return validateWordTimestamps(c.WordTimestamps)
}

// Validate checks an overlay's frame bounds and component kind.
func (o *ComponentOverlay) Validate() error {
	if err := o.validateBase(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	if o.Component == "" {
		return fmt.Errorf("%w: component is required", apperr.ErrInvalid)
	}
	if p, ok := o.Props.(KaraokeTextProps); ok {
		return validateWordTimestamps(p.WordTimestamps)
	}
	return nil
}

func validateWordTimestamps(words []WordTimestamp) error {
	prev := 0.0
	for i, w := range words {
		if w.Start < 0 || w.End < w.Start {
			return fmt.Errorf("%w: wordTimestamps[%d]: end %v before start %v", apperr.ErrInvalid, i, w.End, w.Start)
		}
		if w.Start < prev {
			return fmt.Errorf("%w: wordTimestamps[%d]: out of order", apperr.ErrInvalid, i)
		}
		prev = w.Start
	}
	return nil
}
