// Package server exposes the ingestion, retrieval and chat surfaces over
// HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipmind/clipmind/chat"
	"github.com/clipmind/clipmind/ingest"
	"github.com/clipmind/clipmind/internal/profile"
	"github.com/clipmind/clipmind/search"
	"github.com/clipmind/clipmind/search/lexical"
	"github.com/clipmind/clipmind/search/vector"
)

// Answerer is the chat surface the server needs.
type Answerer interface {
	Answer(ctx context.Context, sessionID, query string, topK int) (*chat.Answer, error)
}

// Searcher is the retrieval surface the server needs.
type Searcher interface {
	Retrieve(ctx context.Context, query string, topK int) ([]search.FusedResult, error)
}

// LexicalIndex is the slice of the lexical index used by ingestion and
// stats.
type LexicalIndex interface {
	Add(ctx context.Context, docs []*search.Document) error
	Stats() lexical.Stats
}

// VectorIndex is the slice of the vector index used by ingestion and stats.
type VectorIndex interface {
	Add(ctx context.Context, docs []*search.Document) error
	Stats(ctx context.Context) (vector.Stats, error)
}

// SessionArchive is the durable history surface. Optional.
type SessionArchive interface {
	ListExchanges(ctx context.Context, sessionID string, limit int) ([]chat.Exchange, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Deps carries everything the HTTP layer delegates to.
type Deps struct {
	Answerer Answerer
	Searcher Searcher
	Memory   *chat.Memory
	Lexical  LexicalIndex
	Vector   VectorIndex
	Archive  SessionArchive
	Ingest   ingest.Config
}

// Server is the HTTP front end.
type Server struct {
	e       *echo.Echo
	profile *profile.Profile
	deps    Deps
	metrics *Metrics
}

// New assembles the echo instance and routes.
func New(p *profile.Profile, deps Deps) (*Server, error) {
	if deps.Answerer == nil || deps.Searcher == nil || deps.Memory == nil {
		return nil, errors.New("server: answerer, searcher and memory are required")
	}
	if deps.Lexical == nil || deps.Vector == nil {
		return nil, errors.New("server: both indexes are required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		e:       e,
		profile: p,
		deps:    deps,
		metrics: NewMetrics(),
	}
	e.Use(s.metrics.middleware)
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.e.GET("/healthz", s.handleHealthz)
	s.e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	api := s.e.Group("/api/v1")
	api.POST("/transcripts", s.handleIngestTranscript)
	api.POST("/search", s.handleSearch)
	api.POST("/ask", s.handleAsk)
	api.GET("/sessions/:id/history", s.handleHistory)
	api.DELETE("/sessions/:id", s.handleClearSession)
	api.GET("/stats", s.handleStats)
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.e.Start(s.profile.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("HTTP server started", "addr", s.profile.ListenAddr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.e.Shutdown(shutdownCtx)
	}
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.e }
