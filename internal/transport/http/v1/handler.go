// Package v1 provides the HTTP handlers of the session API.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/mockinterview/internal/domain"
	"github.com/xiaot623/mockinterview/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session lifecycle
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.DELETE("/v1/sessions/:session_id", h.CloseSession)
	e.POST("/v1/sessions/:session_id/start", h.StartSession)

	// Answers
	e.POST("/v1/sessions/:session_id/capture/start", h.StartCapture)
	e.POST("/v1/sessions/:session_id/capture/stop", h.StopCapture)
	e.POST("/v1/sessions/:session_id/answers", h.SubmitAnswer)
	e.POST("/v1/sessions/:session_id/answers/retry", h.RetryAnswer)

	// Results
	e.POST("/v1/sessions/:session_id/finalize", h.Finalize)
	e.POST("/v1/sessions/:session_id/report/save", h.SaveReport)
	e.GET("/v1/sessions/:session_id/report", h.GetReport)
	e.GET("/v1/sessions/:session_id/turns", h.ListTurns)
	e.GET("/v1/sessions/:session_id/events", h.ListEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"version":         "0.1.0",
		"active_sessions": h.service.ActiveSessions(),
	})
}

// errorResponse maps a service error onto a status code.
func errorResponse(c echo.Context, err error) error {
	var genErr *domain.QuestionGenerationError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &genErr):
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error":             err.Error(),
			"retryable":         true,
			"question_index":    genErr.Index,
			"attempts":          genErr.Attempts,
			"no_more_questions": genErr.NoMoreQuestions(),
		})
	case errors.Is(err, domain.ErrPersistenceFailed):
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error":     err.Error(),
			"retryable": true,
		})
	case errors.Is(err, domain.ErrDeviceUnavailable),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrSequenceComplete),
		errors.Is(err, domain.ErrCaptureActive),
		errors.Is(err, domain.ErrCaptureInactive),
		errors.Is(err, domain.ErrSessionClosed):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
