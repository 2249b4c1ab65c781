package manifest

import (
	"encoding/json"
	"fmt"
)

// ComponentKind discriminates overlay variants.
type ComponentKind string

const (
	ComponentKaraokeText  ComponentKind = "KaraokeText"
	ComponentBigTitle     ComponentKind = "BigTitle"
	ComponentImageOverlay ComponentKind = "ImageOverlay"
	ComponentLowerThird   ComponentKind = "LowerThird"
)

// OverlayProps is the tagged union of per-component overlay properties.
// Props values are treated as immutable: edits replace the whole value,
// which is why Clone can share them between snapshots.
type OverlayProps interface {
	Kind() ComponentKind
}

// KaraokeTextProps drives word-level highlighted captions.
type KaraokeTextProps struct {
	Text           string          `json:"text"`
	WordTimestamps []WordTimestamp `json:"wordTimestamps,omitempty"`
	FontSize       int             `json:"fontSize,omitempty"`
	TextColor      string          `json:"textColor,omitempty"`
	HighlightColor string          `json:"highlightColor,omitempty"`
}

func (KaraokeTextProps) Kind() ComponentKind { return ComponentKaraokeText }

// BigTitleProps is a full-frame animated title card.
type BigTitleProps struct {
	Text      string `json:"text"`
	Subtitle  string `json:"subtitle,omitempty"`
	Color     string `json:"color,omitempty"`
	Animation string `json:"animation,omitempty"`
}

func (BigTitleProps) Kind() ComponentKind { return ComponentBigTitle }

// ImageOverlayProps places a still image over the video.
type ImageOverlayProps struct {
	URL     string  `json:"url"`
	Fit     string  `json:"fit,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`
}

func (ImageOverlayProps) Kind() ComponentKind { return ComponentImageOverlay }

// LowerThirdProps is a name/title banner in the lower third of the frame.
type LowerThirdProps struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	AccentColor string `json:"accentColor,omitempty"`
}

func (LowerThirdProps) Kind() ComponentKind { return ComponentLowerThird }

// RawProps round-trips props for component kinds this build does not know,
// so an older engine never drops data written by a newer one.
type RawProps struct {
	Component ComponentKind
	Data      json.RawMessage
}

func (p RawProps) Kind() ComponentKind { return p.Component }

// ComponentOverlay places a typed overlay component on the timeline.
type ComponentOverlay struct {
	Clip
	Component ComponentKind
	Props     OverlayProps
}

type overlayWire struct {
	Clip
	Component ComponentKind   `json:"component"`
	Props     json.RawMessage `json:"props,omitempty"`
}

func (o ComponentOverlay) MarshalJSON() ([]byte, error) {
	w := overlayWire{Clip: o.Clip, Component: o.Component}
	if o.Props != nil {
		if raw, ok := o.Props.(RawProps); ok {
			w.Props = raw.Data
		} else {
			data, err := json.Marshal(o.Props)
			if err != nil {
				return nil, fmt.Errorf("marshal %s props: %w", o.Component, err)
			}
			w.Props = data
		}
	}
	return json.Marshal(w)
}

func (o *ComponentOverlay) UnmarshalJSON(data []byte) error {
	var w overlayWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	props, err := DecodeProps(w.Component, w.Props)
	if err != nil {
		return err
	}
	o.Clip = w.Clip
	o.Component = w.Component
	o.Props = props
	return nil
}

// DecodeProps decodes a raw props object into its typed variant. Unknown
// component kinds are preserved as RawProps rather than rejected.
func DecodeProps(kind ComponentKind, raw json.RawMessage) (OverlayProps, error) {
	decode := func(v OverlayProps) (OverlayProps, error) {
		if len(raw) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("decode %s props: %w", kind, err)
		}
		return v, nil
	}

	switch kind {
	case ComponentKaraokeText:
		p, err := decode(&KaraokeTextProps{})
		if err != nil {
			return nil, err
		}
		return *p.(*KaraokeTextProps), nil
	case ComponentBigTitle:
		p, err := decode(&BigTitleProps{})
		if err != nil {
			return nil, err
		}
		return *p.(*BigTitleProps), nil
	case ComponentImageOverlay:
		p, err := decode(&ImageOverlayProps{})
		if err != nil {
			return nil, err
		}
		return *p.(*ImageOverlayProps), nil
	case ComponentLowerThird:
		p, err := decode(&LowerThirdProps{})
		if err != nil {
			return nil, err
		}
		return *p.(*LowerThirdProps), nil
	default:
		preserved := append(json.RawMessage(nil), raw...)
		return RawProps{Component: kind, Data: preserved}, nil
	}
}
