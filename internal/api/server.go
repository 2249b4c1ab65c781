// Package api is the local HTTP surface the studio UI talks to: project and
// manifest CRUD, asset and job queries, playback transport, export, chat,
// and the SSE event feed.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/montagehq/montage-engine/internal/asset"
	"github.com/montagehq/montage-engine/internal/chat"
	"github.com/montagehq/montage-engine/internal/media"
	"github.com/montagehq/montage-engine/internal/playback"
	"github.com/montagehq/montage-engine/internal/project"
	"github.com/montagehq/montage-engine/internal/render"
	"github.com/montagehq/montage-engine/internal/sse"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port     int
	Projects project.Repository
	Store    *project.Store
	Assets   *asset.Service
	Player   *playback.Coordinator
	Exporter *render.Service
	Doctor   *render.CachedDoctor
	Poller   *asset.Poller
	Chat     *chat.Bridge
	Broker   *sse.Broker
	Media    *media.Server
	Logger   *slog.Logger

	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
