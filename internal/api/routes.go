package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/montagehq/montage-engine/internal/apperr"
	"github.com/montagehq/montage-engine/internal/asset"
	"github.com/montagehq/montage-engine/internal/config"
	"github.com/montagehq/montage-engine/internal/manifest"
	"github.com/montagehq/montage-engine/internal/project"
	"github.com/montagehq/montage-engine/internal/render"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Projects, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/events", cfg.Broker.ServeHTTP)

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))
		r.Get("/projects/{id}", getProjectHandler(cfg))
		r.Patch("/projects/{id}", renameProjectHandler(cfg))
		r.Delete("/projects/{id}", deleteProjectHandler(cfg))

		r.Get("/projects/{id}/manifest", getManifestHandler(cfg))
		r.Post("/projects/{id}/manifest/ops", applyMutationHandler(cfg))
		r.Post("/projects/{id}/manifest/undo", undoHandler(cfg))
		r.Post("/projects/{id}/manifest/redo", redoHandler(cfg))

		r.Get("/projects/{id}/assets", listAssetsHandler(cfg))
		r.Post("/projects/{id}/assets", registerAssetHandler(cfg))
		r.Get("/assets/{id}", getAssetHandler(cfg))
		r.Get("/assets/{id}/media", assetMediaHandler(cfg))

		r.Post("/projects/{id}/generate", generateHandler(cfg))
		r.Get("/projects/{id}/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))

		r.Get("/playback/state", playbackStateHandler(cfg))
		r.Post("/playback/transport", transportHandler(cfg))

		r.Post("/projects/{id}/export", exportHandler(cfg))

		r.Post("/projects/{id}/chat", chatSendHandler(cfg))
		r.Get("/projects/{id}/chat", chatHistoryHandler(cfg))
		r.Delete("/projects/{id}/chat", chatClearHandler(cfg))
		r.Post("/projects/{id}/chat/cancel", chatCancelHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		state := "idle"
		jobsRunning := 0
		for _, id := range cfg.Store.OpenProjects() {
			if cfg.Assets.HasActiveJobs(ctx, id) {
				state = "generating"
				jobsRunning++
			}
		}

		paused := false
		if cfg.Poller != nil {
			paused = cfg.Poller.IsPaused()
			if paused {
				state = "paused"
			}
		}

		resp := StatusResponse{
			State:         state,
			OpenProjects:  len(cfg.Store.OpenProjects()),
			JobsRunning:   jobsRunning,
			SSEClients:    cfg.Broker.ClientCount(),
			PollingPaused: paused,
		}

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Renderer = &RendererResponse{
					CanRender:   caps.CanRender,
					Version:     caps.RendererVersion,
					LastProbeAt: caps.ProbedAt.Format(time.RFC3339),
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Projects.ListProjects(r.Context())
		if err != nil {
			WriteDomainError(w, err)
			return
		}

		resp := ProjectsResponse{Projects: make([]ProjectResponse, len(projects))}
		for i, p := range projects {
			resp.Projects[i] = ProjectToResponse(p)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Name == "" {
			WriteError(w, http.StatusBadRequest, "name is required", "BAD_REQUEST")
			return
		}
		fps := req.FPS
		if fps <= 0 {
			fps = manifest.DefaultFPS
		}

		now := time.Now().UTC()
		p := &project.Project{
			ID:        project.NewID(),
			Name:      req.Name,
			FPS:       fps,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := cfg.Projects.CreateProject(r.Context(), p); err != nil {
			WriteDomainError(w, err)
			return
		}
		if _, err := cfg.Store.Open(r.Context(), p.ID); err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ProjectToResponse(p))
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Projects.GetProject(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if p == nil {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, ProjectToResponse(p))
	}
}

func renameProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			WriteError(w, http.StatusBadRequest, "name is required", "BAD_REQUEST")
			return
		}
		id := chi.URLParam(r, "id")
		if err := cfg.Projects.RenameProject(r.Context(), id, req.Name); err != nil {
			WriteDomainError(w, err)
			return
		}
		p, err := cfg.Projects.GetProject(r.Context(), id)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if p == nil {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, ProjectToResponse(p))
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Projects.DeleteProject(r.Context(), id); err != nil {
			WriteDomainError(w, err)
			return
		}
		cfg.Store.Close(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func getManifestHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := cfg.Store.Open(r.Context(), id); err != nil {
			WriteDomainError(w, err)
			return
		}
		writeManifest(w, cfg, r, id)
	}
}

func applyMutationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MutationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		op, err := buildOp(req)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		id := chi.URLParam(r, "id")
		if _, err := cfg.Store.Open(r.Context(), id); err != nil {
			WriteDomainError(w, err)
			return
		}
		if _, err := cfg.Store.Apply(r.Context(), id, op); err != nil {
			WriteDomainError(w, err)
			return
		}
		writeManifest(w, cfg, r, id)
	}
}

func undoHandler(cfg ServerConfig) http.HandlerFunc {
	return historyHandler(cfg, true)
}

func redoHandler(cfg ServerConfig) http.HandlerFunc {
	return historyHandler(cfg, false)
}

func historyHandler(cfg ServerConfig, undo bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := cfg.Store.Open(r.Context(), id); err != nil {
			WriteDomainError(w, err)
			return
		}
		var err error
		if undo {
			_, err = cfg.Store.Undo(r.Context(), id)
		} else {
			_, err = cfg.Store.Redo(r.Context(), id)
		}
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		writeManifest(w, cfg, r, id)
	}
}

func writeManifest(w http.ResponseWriter, cfg ServerConfig, r *http.Request, projectID string) {
	m, rev, err := cfg.Store.Current(projectID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	fps := manifest.DefaultFPS
	if p, perr := cfg.Projects.GetProject(r.Context(), projectID); perr == nil && p != nil {
		fps = p.FPS
	}
	WriteJSON(w, http.StatusOK, ManifestResponse{
		Manifest: m,
		Revision: rev,
		Duration: manifest.TotalFrames(m, fps),
	})
}

// buildOp maps a mutation request onto a manifest operation.
func buildOp(req MutationRequest) (project.Op, error) {
	needInt := func(name string, v *int) (int, error) {
		if v == nil {
			return 0, fmt.Errorf("%w: %s is required for op %s", apperr.ErrInvalid, name, req.Op)
		}
		return *v, nil
	}

	switch req.Op {
	case "add_video_clip":
		duration, err := needInt("duration_frames", req.DurationFrames)
		if err != nil {
			return nil, err
		}
		clip := manifest.VideoClip{
			Clip:    baseClip(req, duration),
			AssetID: req.AssetID,
			URL:     req.URL,
		}
		if req.Transition != "" {
			clip.Transition = manifest.Transition(req.Transition)
		}
		clip.Effects = req.Effects
		return project.AddVideoClip(clip), nil

	case "add_audio_clip":
		duration, err := needInt("duration_frames", req.DurationFrames)
		if err != nil {
			return nil, err
		}
		clip := manifest.AudioClip{
			Clip:    baseClip(req, duration),
			AssetID: req.AssetID,
			URL:     req.URL,
			Volume:  1.0,
		}
		if req.Volume != nil {
			clip.Volume = *req.Volume
		}
		return project.AddAudioClip(clip), nil

	case "add_overlay":
		duration, err := needInt("duration_frames", req.DurationFrames)
		if err != nil {
			return nil, err
		}
		kind := manifest.ComponentKind(req.Component)
		props, err := manifest.DecodeProps(kind, req.Props)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
		}
		return project.AddOverlay(manifest.ComponentOverlay{
			Clip:      baseClip(req, duration),
			Component: kind,
			Props:     props,
		}), nil

	case "move_clip":
		start, err := needInt("start_frame", req.StartFrame)
		if err != nil {
			return nil, err
		}
		return project.MoveClip(req.ClipID, start), nil

	case "trim_clip":
		start, err := needInt("start_frame", req.StartFrame)
		if err != nil {
			return nil, err
		}
		duration, err := needInt("duration_frames", req.DurationFrames)
		if err != nil {
			return nil, err
		}
		return project.TrimClip(req.ClipID, start, duration), nil

	case "set_layer":
		layer, err := needInt("layer", req.Layer)
		if err != nil {
			return nil, err
		}
		return project.SetLayer(req.ClipID, layer), nil

	case "remove_clip":
		return project.RemoveClip(req.ClipID), nil

	case "reorder_track":
		from, err := needInt("from", req.From)
		if err != nil {
			return nil, err
		}
		to, err := needInt("to", req.To)
		if err != nil {
			return nil, err
		}
		track, err := manifest.ParseTrackKind(req.Track)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
		}
		return project.ReorderTrack(track, from, to), nil

	case "ripple":
		track, err := manifest.ParseTrackKind(req.Track)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
		}
		gap := 0
		if req.GapFrames != nil {
			gap = *req.GapFrames
		}
		return project.Ripple(track, gap), nil

	case "set_transition":
		return project.SetTransition(req.ClipID, manifest.Transition(req.Transition)), nil

	case "set_effects":
		return project.SetEffects(req.ClipID, req.Effects), nil

	case "set_volume":
		if req.Volume == nil {
			return nil, fmt.Errorf("%w: volume is required for op set_volume", apperr.ErrInvalid)
		}
		return project.SetVolume(req.ClipID, *req.Volume), nil

	case "set_overlay_props":
		kind := manifest.ComponentKind(req.Component)
		props, err := manifest.DecodeProps(kind, req.Props)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
		}
		return project.SetOverlayProps(req.ClipID, props), nil

	case "set_background":
		return project.SetBackground(req.Color), nil

	default:
		return nil, fmt.Errorf("%w: unknown op %q", apperr.ErrInvalid, req.Op)
	}
}

func baseClip(req MutationRequest, duration int) manifest.Clip {
	c := manifest.Clip{DurationFrames: duration}
	if req.StartFrame != nil {
		c.StartFrame = *req.StartFrame
	}
	if req.Layer != nil {
		c.Layer = *req.Layer
	}
	return c
}

func listAssetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets, err := cfg.Assets.ListAssets(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if assets == nil {
			assets = []*asset.Asset{}
		}
		WriteJSON(w, http.StatusOK, AssetsResponse{Assets: assets})
	}
}

func registerAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterAssetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.URL == "" {
			WriteError(w, http.StatusBadRequest, "url is required", "BAD_REQUEST")
			return
		}

		a, err := cfg.Assets.RegisterAsset(r.Context(), &asset.Asset{
			ProjectID:       chi.URLParam(r, "id"),
			Type:            req.Type,
			URL:             req.URL,
			Filename:        req.Filename,
			Prompt:          req.Prompt,
			Metadata:        req.Metadata,
			DurationSeconds: req.DurationSeconds,
		})
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, a)
	}
}

func getAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := cfg.Assets.GetAsset(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if a == nil {
			WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, a)
	}
}

func assetMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := cfg.Assets.GetAsset(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if a == nil {
			WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
			return
		}
		if a.LocalPath == "" {
			WriteError(w, http.StatusNotFound, "asset has no local media", "NOT_FOUND")
			return
		}
		if err := cfg.Media.ServeFile(w, r, a.LocalPath); err != nil {
			cfg.Logger.Warn("media serve failed", "asset_id", a.ID, "error", err)
		}
	}
}

func generateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		job, err := cfg.Assets.Submit(r.Context(), chi.URLParam(r, "id"), req.Kind, req.Prompt)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, job)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Assets.ListJobs(r.Context(), chi.URLParam(r, "id"), 50)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if jobs == nil {
			jobs = []*asset.Job{}
		}
		WriteJSON(w, http.StatusOK, JobsResponse{Jobs: jobs})
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Assets.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func playbackStateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Player.State())
	}
}

func transportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		switch req.Action {
		case "play":
			cfg.Player.Play()
		case "pause":
			cfg.Player.Pause()
		case "toggle":
			cfg.Player.TogglePlay()
		case "seek":
			if req.Frame == nil {
				WriteError(w, http.StatusBadRequest, "frame is required for seek", "BAD_REQUEST")
				return
			}
			cfg.Player.Seek(*req.Frame)
		case "scrub":
			if req.Frame == nil {
				WriteError(w, http.StatusBadRequest, "frame is required for scrub", "BAD_REQUEST")
				return
			}
			cfg.Player.Scrub(*req.Frame)
		case "skip_back":
			cfg.Player.SkipBack()
		case "skip_forward":
			cfg.Player.SkipForward()
		default:
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusOK, cfg.Player.State())
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Exporter == nil {
			WriteError(w, http.StatusServiceUnavailable, "no renderer configured", "UNAVAILABLE")
			return
		}

		var req ExportRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}
		if req.Format == "" {
			req.Format = render.FormatEDL
		}

		id := chi.URLParam(r, "id")
		if _, err := cfg.Store.Open(r.Context(), id); err != nil {
			WriteDomainError(w, err)
			return
		}

		switch req.Format {
		case render.FormatEDL:
			path, err := cfg.Exporter.ExportEDL(r.Context(), id)
			if err != nil {
				WriteDomainError(w, err)
				return
			}
			WriteJSON(w, http.StatusOK, ExportResponse{Format: req.Format, Path: path})
		case render.FormatVideo:
			job, err := cfg.Exporter.StartExport(r.Context(), id)
			if err != nil {
				WriteDomainError(w, err)
				return
			}
			WriteJSON(w, http.StatusAccepted, ExportResponse{Format: req.Format, Job: job})
		default:
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", req.Format), "BAD_REQUEST")
		}
	}
}

func chatSendHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
			WriteError(w, http.StatusBadRequest, "message is required", "BAD_REQUEST")
			return
		}

		id := chi.URLParam(r, "id")
		msg, err := cfg.Chat.Send(r.Context(), id, req.Message)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if msg == nil {
			// Cancelled by the user or nothing accumulated.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		WriteJSON(w, http.StatusOK, msg)
	}
}

func chatHistoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages, err := cfg.Chat.History(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ChatMessagesResponse{Messages: messages})
	}
}

func chatClearHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Chat.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
			WriteDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func chatCancelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Chat.Cancel(chi.URLParam(r, "id")) {
			WriteError(w, http.StatusNotFound, "no stream in flight", "NOT_FOUND")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
