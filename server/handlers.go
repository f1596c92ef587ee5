package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/clipmind/clipmind/ai"
	"github.com/clipmind/clipmind/ingest"
	"github.com/clipmind/clipmind/search"
)

type ingestRequest struct {
	Segments []ingest.Segment `json:"segments"`
}

type ingestResponse struct {
	Documents int `json:"documents"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": s.profile.Version})
}

// handleIngestTranscript builds passages and commits them to the vector
// index first, the lexical one second. A vector failure leaves both indexes
// without the batch; a lexical failure after a vector commit is surfaced so
// the caller can retry the idempotent upsert.
func (s *Server) handleIngestTranscript(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Segments) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "segments are required")
	}

	docs, err := ingest.BuildDocuments(req.Segments, s.deps.Ingest)
	if err != nil {
		return httpError(err)
	}
	if len(docs) == 0 {
		return c.JSON(http.StatusOK, ingestResponse{Documents: 0})
	}

	ctx := c.Request().Context()
	if err := s.deps.Vector.Add(ctx, docs); err != nil {
		return httpError(errors.Wrap(err, "vector index rejected batch"))
	}
	if err := s.deps.Lexical.Add(ctx, docs); err != nil {
		return httpError(errors.Wrap(err, "lexical index rejected batch"))
	}

	s.metrics.documentsIngested.Add(float64(len(docs)))
	slog.InfoContext(ctx, "Transcript ingested", "segments", len(req.Segments), "documents", len(docs))
	return c.JSON(http.StatusOK, ingestResponse{Documents: len(docs)})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	results, err := s.deps.Searcher.Retrieve(c.Request().Context(), req.Query, req.TopK)
	if err != nil {
		return httpError(err)
	}
	if results == nil {
		results = []search.FusedResult{}
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	answer, err := s.deps.Answerer.Answer(c.Request().Context(), req.SessionID, req.Query, req.TopK)
	if err != nil {
		return httpError(err)
	}

	s.metrics.questionsTotal.Inc()
	if answer.ContextLess {
		s.metrics.contextLessTotal.Inc()
	}
	return c.JSON(http.StatusOK, answer)
}

// handleHistory prefers the durable archive when configured, falling back
// to in-process session memory.
func (s *Server) handleHistory(c echo.Context) error {
	sessionID := c.Param("id")
	ctx := c.Request().Context()

	if s.deps.Archive != nil {
		exchanges, err := s.deps.Archive.ListExchanges(ctx, sessionID, 0)
		if err == nil {
			return c.JSON(http.StatusOK, map[string]any{"session_id": sessionID, "exchanges": exchanges})
		}
		slog.WarnContext(ctx, "Archive lookup failed, falling back to session memory", "error", err)
	}

	exchanges := s.deps.Memory.History(sessionID, 0)
	return c.JSON(http.StatusOK, map[string]any{"session_id": sessionID, "exchanges": exchanges})
}

func (s *Server) handleClearSession(c echo.Context) error {
	sessionID := c.Param("id")
	s.deps.Memory.Clear(sessionID)
	if s.deps.Archive != nil {
		if err := s.deps.Archive.DeleteSession(c.Request().Context(), sessionID); err != nil {
			return httpError(err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStats(c echo.Context) error {
	vectorStats, err := s.deps.Vector.Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"lexical":  s.deps.Lexical.Stats(),
		"vector":   vectorStats,
		"sessions": s.deps.Memory.Len(),
	})
}

// httpError maps domain errors onto HTTP statuses.
func httpError(err error) error {
	switch {
	case search.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ai.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, "provider rate limited")
	case errors.Is(err, ai.ErrAuthFailed):
		return echo.NewHTTPError(http.StatusBadGateway, "provider authentication failed")
	case errors.Is(err, ai.ErrGenerationUnavailable), errors.Is(err, ai.ErrProviderUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "provider unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
