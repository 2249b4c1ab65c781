// Package mcpserver exposes the engine's timeline and asset operations as
// MCP (Model Context Protocol) tools over stdio, so LLM agents can read and
// mutate project manifests the same way the REST API does.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/montagehq/montage-engine/internal/asset"
	"github.com/montagehq/montage-engine/internal/config"
	"github.com/montagehq/montage-engine/internal/manifest"
	"github.com/montagehq/montage-engine/internal/playback"
	"github.com/montagehq/montage-engine/internal/project"
	"github.com/montagehq/montage-engine/internal/render"
)

// Server wraps the MCP server with montage tools.
type Server struct {
	mcp      *server.MCPServer
	store    *project.Store
	assets   *asset.Service
	player   *playback.Coordinator
	exporter *render.Service
}

// New creates the MCP server with all timeline tools registered. The
// exporter may be nil when no renderer is configured; export tools then
// report the condition instead of failing at registration time.
func New(store *project.Store, assets *asset.Service, player *playback.Coordinator, exporter *render.Service) *Server {
	s := &Server{store: store, assets: assets, player: player, exporter: exporter}

	s.mcp = server.NewMCPServer(
		"Montage Engine",
		config.Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_manifest",
		mcp.WithDescription("Read a project's current composition manifest as JSON."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	), s.getManifest)

	s.mcp.AddTool(mcp.NewTool("add_clip",
		mcp.WithDescription("Add a clip to the video or audio track. Frames are counted at the project frame rate."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		mcp.WithString("track", mcp.Required(), mcp.Description("Target track: video or audio")),
		mcp.WithString("url", mcp.Description("Media URL (required unless asset_id resolves one)")),
		mcp.WithString("asset_id", mcp.Description("Asset to place; its URL is used when url is empty")),
		mcp.WithNumber("start_frame", mcp.Description("Timeline position in frames (default 0)")),
		mcp.WithNumber("duration_frames", mcp.Required(), mcp.Description("Clip length in frames")),
		mcp.WithNumber("layer", mcp.Description("Z-order for video clips (default 0)")),
	), s.addClip)

	s.mcp.AddTool(mcp.NewTool("move_clip",
		mcp.WithDescription("Move a clip to a new start frame without changing its duration."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		mcp.WithString("clip_id", mcp.Required(), mcp.Description("Clip identifier")),
		mcp.WithNumber("start_frame", mcp.Required(), mcp.Description("New timeline position in frames")),
	), s.moveClip)

	s.mcp.AddTool(mcp.NewTool("trim_clip",
		mcp.WithDescription("Retime a clip's start and duration in frames."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		mcp.WithString("clip_id", mcp.Required(), mcp.Description("Clip identifier")),
		mcp.WithNumber("start_frame", mcp.Required(), mcp.Description("New start frame")),
		mcp.WithNumber("duration_frames", mcp.Required(), mcp.Description("New duration in frames (minimum 1)")),
	), s.trimClip)

	s.mcp.AddTool(mcp.NewTool("remove_clip",
		mcp.WithDescription("Remove a clip from whichever track holds it."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		mcp.WithString("clip_id", mcp.Required(), mcp.Description("Clip identifier")),
	), s.removeClip)

	s.mcp.AddTool(mcp.NewTool("reorder_track",
		mcp.WithDescription("Change a clip's display position within its track. Does not retime clips."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		mcp.WithString("track", mcp.Required(), mcp.Description("Track: video, audio or components")),
		mcp.WithNumber("from", mcp.Required(), mcp.Description("Current index")),
		mcp.WithNumber("to", mcp.Required(), mcp.Description("Target index")),
	), s.reorderTrack)

	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the most recent manifest mutation."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	), s.undo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the most recently undone manifest mutation."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	), s.redo)

	s.mcp.AddTool(mcp.NewTool("list_assets",
		mcp.WithDescription("List generated and imported assets for a project."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	), s.listAssets)

	s.mcp.AddTool(mcp.NewTool("playback_control",
		mcp.WithDescription("Control the preview transport: play, pause, toggle, or seek."),
		mcp.WithString("action", mcp.Required(), mcp.Description("One of play, pause, toggle, seek")),
		mcp.WithNumber("frame", mcp.Description("Target frame for seek (clamped to the composition)")),
	), s.playbackControl)

	s.mcp.AddTool(mcp.NewTool("export_project",
		mcp.WithDescription("Export a project. Format edl returns the file path immediately; format video starts a background render job."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		mcp.WithString("format", mcp.Description("edl or video (default edl)")),
	), s.exportProject)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) getManifest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.store.Open(ctx, projectID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return manifestResult(m)
}

func (s *Server) addClip(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	track, err := req.RequireString("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	durationFrames, err := req.RequireInt("duration_frames")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	url := req.GetString("url", "")
	assetID := req.GetString("asset_id", "")
	startFrame := req.GetInt("start_frame", 0)

	if url == "" && assetID != "" {
		a, aerr := s.assets.GetAsset(ctx, assetID)
		if aerr != nil || a == nil {
			return mcp.NewToolResultError(fmt.Sprintf("asset not found: %s", assetID)), nil
		}
		url = a.URL
	}
	if url == "" {
		return mcp.NewToolResultError("either url or asset_id is required"), nil
	}

	base := manifest.Clip{
		StartFrame:     startFrame,
		DurationFrames: durationFrames,
		Layer:          req.GetInt("layer", 0),
	}

	var op project.Op
	switch track {
	case "video":
		op = project.AddVideoClip(manifest.VideoClip{
			Clip:    base,
			AssetID: assetID,
			URL:     url,
		})
	case "audio":
		op = project.AddAudioClip(manifest.AudioClip{
			Clip:    base,
			AssetID: assetID,
			URL:     url,
			Volume:  1.0,
		})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown track %q (want video or audio)", track)), nil
	}

	if _, err := s.store.Open(ctx, projectID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.store.Apply(ctx, projectID, op)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return manifestResult(m)
}

func (s *Server) moveClip(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.applyClipOp(ctx, req, func(clipID string) (project.Op, error) {
		startFrame, err := req.RequireInt("start_frame")
		if err != nil {
			return nil, err
		}
		return project.MoveClip(clipID, startFrame), nil
	})
}

func (s *Server) trimClip(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.applyClipOp(ctx, req, func(clipID string) (project.Op, error) {
		startFrame, err := req.RequireInt("start_frame")
		if err != nil {
			return nil, err
		}
		durationFrames, err := req.RequireInt("duration_frames")
		if err != nil {
			return nil, err
		}
		return project.TrimClip(clipID, startFrame, durationFrames), nil
	})
}

func (s *Server) removeClip(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.applyClipOp(ctx, req, func(clipID string) (project.Op, error) {
		return project.RemoveClip(clipID), nil
	})
}

// applyClipOp factors the project/clip plumbing shared by the clip tools.
func (s *Server) applyClipOp(ctx context.Context, req mcp.CallToolRequest, build func(clipID string) (project.Op, error)) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	clipID, err := req.RequireString("clip_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op, err := build(clipID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.store.Open(ctx, projectID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.store.Apply(ctx, projectID, op)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return manifestResult(m)
}

func (s *Server) reorderTrack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	trackName, err := req.RequireString("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, err := req.RequireInt("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireInt("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	track, err := manifest.ParseTrackKind(trackName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.store.Open(ctx, projectID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.store.Apply(ctx, projectID, project.ReorderTrack(track, from, to))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return manifestResult(m)
}

func (s *Server) undo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.store.Open(ctx, projectID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.store.Undo(ctx, projectID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return manifestResult(m)
}

func (s *Server) redo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.store.Open(ctx, projectID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.store.Redo(ctx, projectID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return manifestResult(m)
}

func (s *Server) listAssets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	assets, err := s.assets.ListAssets(ctx, projectID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(assets, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) playbackControl(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch action {
	case "play":
		s.player.Play()
	case "pause":
		s.player.Pause()
	case "toggle":
		s.player.TogglePlay()
	case "seek":
		frame, ferr := req.RequireInt("frame")
		if ferr != nil {
			return mcp.NewToolResultError(ferr.Error()), nil
		}
		s.player.Seek(frame)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q (want play, pause, toggle or seek)", action)), nil
	}

	out, _ := json.Marshal(s.player.State())
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) exportProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.exporter == nil {
		return mcp.NewToolResultError("no renderer configured"), nil
	}

	format := req.GetString("format", render.FormatEDL)
	switch format {
	case render.FormatEDL:
		path, eerr := s.exporter.ExportEDL(ctx, projectID)
		if eerr != nil {
			return mcp.NewToolResultError(eerr.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("exported: %s", path)), nil
	case render.FormatVideo:
		job, eerr := s.exporter.StartExport(ctx, projectID)
		if eerr != nil {
			return mcp.NewToolResultError(eerr.Error()), nil
		}
		out, _ := json.Marshal(job)
		return mcp.NewToolResultText(string(out)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q (want edl or video)", format)), nil
	}
}

func manifestResult(m *manifest.Manifest) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
