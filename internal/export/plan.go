package export

import (
	"context"
	"sort"

	"github.com/montagehq/montage-engine/internal/manifest"
)

// AssetResolver maps an asset id to an absolute media location. Unresolved
// assets fall back to the clip's own URL.
type AssetResolver interface {
	ResolveAsset(ctx context.Context, assetID string) (string, bool)
}

// BuildPlan resolves a manifest into a render plan. Video clips are sorted
// by layer then start frame so the renderer draws them in z-order without
// re-sorting; audio keeps start-frame order.
func BuildPlan(ctx context.Context, projectID string, m *manifest.Manifest, fps int, resolver AssetResolver) *RenderPlan {
	plan := &RenderPlan{
		ProjectID:       projectID,
		FPS:             fps,
		DurationFrames:  manifest.TotalFrames(m, fps),
		BackgroundColor: m.GlobalSettings.BackgroundColor,
	}

	for _, c := range m.Tracks.Video {
		plan.Video = append(plan.Video, PlanVideoClip{
			VideoClip:   c,
			ResolvedURL: resolve(ctx, resolver, c.AssetID, c.URL),
		})
	}
	sort.SliceStable(plan.Video, func(i, j int) bool {
		if plan.Video[i].Layer != plan.Video[j].Layer {
			return plan.Video[i].Layer < plan.Video[j].Layer
		}
		return plan.Video[i].StartFrame < plan.Video[j].StartFrame
	})

	for _, c := range m.Tracks.Audio {
		plan.Audio = append(plan.Audio, PlanAudioClip{
			AudioClip:   c,
			ResolvedURL: resolve(ctx, resolver, c.AssetID, c.URL),
		})
	}
	sort.SliceStable(plan.Audio, func(i, j int) bool {
		return plan.Audio[i].StartFrame < plan.Audio[j].StartFrame
	})

	plan.Overlays = append(plan.Overlays, m.Tracks.Components...)
	sort.SliceStable(plan.Overlays, func(i, j int) bool {
		if plan.Overlays[i].Layer != plan.Overlays[j].Layer {
			return plan.Overlays[i].Layer < plan.Overlays[j].Layer
		}
		return plan.Overlays[i].StartFrame < plan.Overlays[j].StartFrame
	})

	return plan
}

// EDLClips flattens a plan's video track into EDL events in time order.
func EDLClips(plan *RenderPlan) []ResolvedClip {
	clips := make([]ResolvedClip, 0, len(plan.Video))
	for _, c := range plan.Video {
		name := c.AssetID
		if name == "" {
			name = c.ID
		}
		clips = append(clips, ResolvedClip{
			ClipName:   name,
			MediaPath:  c.ResolvedURL,
			StartFrame: c.StartFrame,
			EndFrame:   c.EndFrame(),
		})
	}
	sort.SliceStable(clips, func(i, j int) bool {
		return clips[i].StartFrame < clips[j].StartFrame
	})
	return clips
}

func resolve(ctx context.Context, resolver AssetResolver, assetID, fallback string) string {
	if resolver != nil && assetID != "" {
		if url, ok := resolver.ResolveAsset(ctx, assetID); ok {
			return url
		}
	}
	return fallback
}
