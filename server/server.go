// Package server assembles the HTTP surface and the long-lived components
// behind it.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/dealcoach/dealcoach/plugin/cache"
	"github.com/dealcoach/dealcoach/plugin/eventbus"
	"github.com/dealcoach/dealcoach/plugin/upstream"
	"github.com/dealcoach/dealcoach/plugin/vectorstore"
	"github.com/dealcoach/dealcoach/server/profile"
	apiv1 "github.com/dealcoach/dealcoach/server/router/api/v1"
	"github.com/dealcoach/dealcoach/server/scoring"
	"github.com/dealcoach/dealcoach/server/session"
	"github.com/dealcoach/dealcoach/store"
)

// Server owns the echo instance and the wired service graph.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	httpServer *http.Server
}

// NewServer wires the upstream client, event bus, cache, vector index, and
// scoring pipeline, then mounts the v1 routes.
func NewServer(ctx context.Context, p *profile.Profile, st *store.Store) (*Server, error) {
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	client := upstream.NewClient(upstream.Config{
		Timeout:           p.RequestTimeout,
		MaxRetries:        p.MaxRetries,
		InitialBackoff:    p.InitialBackoff,
		BackoffMultiplier: p.BackoffMultiplier,
	})
	completions := upstream.NewCompletionClient(client, p.UpstreamBaseURL)
	realtime := upstream.NewRealtimeClient(client, p.UpstreamBaseURL)

	var shared cache.Shared = cache.NoopShared{}
	if p.RedisAddr != "" {
		shared = cache.NewRedisShared(p.RedisAddr)
	}
	tiered := cache.New(shared, p.CacheLocalTTL)

	var vectors *vectorstore.Store
	if p.UpstreamAPIKey != "" {
		v, err := vectorstore.New(p.Data, vectorstore.OpenAIEmbedding(p.UpstreamBaseURL, p.UpstreamAPIKey))
		if err != nil {
			slog.Warn("vector store unavailable, transcript search disabled", "error", err)
		} else {
			vectors = v
		}
	}

	bus := eventbus.New(eventbus.DefaultHistoryLimit)
	evaluator := scoring.NewEvaluator(completions, st)
	orchestrator := session.NewOrchestrator(st, bus, realtime, evaluator, tiered, vectors, session.Config{
		Credential:    p.UpstreamAPIKey,
		RealtimeModel: p.RealtimeModel,
		ScoringModel:  p.ScoringModel,
	})

	apiv1.NewAPIV1Service(p, st, bus, orchestrator, tiered, vectors).Register(e)

	s := &Server{
		Profile:    p,
		Store:      st,
		echoServer: e,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", p.Addr, p.Port),
			Handler: e,
		},
	}
	return s, nil
}

// Start begins serving and blocks until the listener fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("server started", "addr", s.httpServer.Addr, "mode", s.Profile.Mode)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
}
