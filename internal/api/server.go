// Package api exposes the translation pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/babel/internal/logger"
	"github.com/samcharles93/babel/internal/translate"
)

// maxBatchSources bounds one request so a single caller cannot queue an
// unbounded decode.
const maxBatchSources = 128

// Engine is the translation capability the server fronts.
type Engine interface {
	Translate(ctx context.Context, sources []string) ([]translate.Translation, error)
}

type Server struct {
	engine Engine
	log    logger.Logger
	clock  func() time.Time
}

func NewServer(engine Engine, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		engine: engine,
		log:    log,
		clock:  time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/translations", s.handleCreateTranslation)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCreateTranslation(c *echo.Context) error {
	if s.engine == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "translation engine not configured", "", "")
	}
	req, err := decodeJSON[TranslationRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, "malformed request body: "+err.Error())
	}
	if err := validateRequest(req); err != nil {
		return writeBadRequest(c, err.Error())
	}

	translations, err := s.engine.Translate(c.Request().Context(), req.Sources)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return writeError(c, http.StatusBadRequest, "request_cancelled", "client closed the request", "", "")
		}
		s.log.Error("translation batch failed", "sources", len(req.Sources), "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}

	resp := TranslationResponse{
		ID:           "tr_" + uuid.NewString(),
		Object:       "translation.batch",
		Created:      s.clock().Unix(),
		Translations: make([]TranslationResult, len(translations)),
	}
	for i, tl := range translations {
		resp.Translations[i] = TranslationResult{
			Source: req.Sources[i],
			Text:   tl.Text,
			Score:  tl.Score,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func validateRequest(req TranslationRequest) error {
	if len(req.Sources) == 0 {
		return newInvalidRequest("sources is required and must not be empty")
	}
	if len(req.Sources) > maxBatchSources {
		return newInvalidRequest("too many sources in one request")
	}
	return nil
}
