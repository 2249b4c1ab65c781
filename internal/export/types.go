// Package export resolves a manifest into renderer-consumable artifacts: a
// frame-accurate render plan for the renderer CLI and a CMX-style EDL for
// NLE interchange.
package export

import "github.com/montagehq/montage-engine/internal/manifest"

// RenderPlan is the document the renderer subprocess consumes. Clip URLs
// are resolved to absolute locations and video clips are pre-sorted into
// draw order.
type RenderPlan struct {
	ProjectID       string                      `json:"projectId"`
	FPS             int                         `json:"fps"`
	DurationFrames  int                         `json:"durationFrames"`
	BackgroundColor string                      `json:"backgroundColor"`
	Video           []PlanVideoClip             `json:"video"`
	Audio           []PlanAudioClip             `json:"audio"`
	Overlays        []manifest.ComponentOverlay `json:"overlays"`
}

// PlanVideoClip is a video clip with its asset location resolved.
type PlanVideoClip struct {
	manifest.VideoClip
	ResolvedURL string `json:"resolvedUrl"`
}

// PlanAudioClip is an audio clip with its asset location resolved.
type PlanAudioClip struct {
	manifest.AudioClip
	ResolvedURL string `json:"resolvedUrl"`
}

// ResolvedClip feeds the EDL generator: one video event with resolved
// media and frame bounds.
type ResolvedClip struct {
	ClipName    string
	MediaPath   string
	StartFrame  int
	EndFrame    int
}
