package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/mockinterview/internal/domain"
	"github.com/xiaot623/mockinterview/internal/orchestrator"
	"github.com/xiaot623/mockinterview/internal/service"
)

// AnswerRequest submits a typed answer.
type AnswerRequest struct {
	Transcript string `json:"transcript"`
}

// SubmitResponse is returned by every call that records an answer.
type SubmitResponse struct {
	TurnIndex int                   `json:"turn_index"`
	Appended  bool                  `json:"appended"`
	Fallback  bool                  `json:"fallback"`
	Complete  bool                  `json:"complete"`
	Session   domain.Snapshot       `json:"session"`
	Report    *domain.SessionReport `json:"report,omitempty"`
}

// CreateSession creates a new interview session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Role) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "role is required"})
	}
	if req.Modality != "" && !req.Modality.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "modality must be speech or video"})
	}
	if req.PlanLength < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "plan_length must not be negative"})
	}

	snap, err := h.service.CreateSession(ctx, req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, snap)
}

// GetSession returns the state of a session.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	snap, err := h.service.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// CloseSession tears a session down.
// DELETE /v1/sessions/:session_id
func (h *Handler) CloseSession(c echo.Context) error {
	if err := h.service.CloseSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StartSession acquires the capture device.
// POST /v1/sessions/:session_id/start
func (h *Handler) StartSession(c echo.Context) error {
	snap, err := h.service.StartSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// StartCapture starts recording the answer to the current question.
// POST /v1/sessions/:session_id/capture/start
func (h *Handler) StartCapture(c echo.Context) error {
	snap, err := h.service.StartCapture(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// StopCapture stops recording and submits the answer.
// POST /v1/sessions/:session_id/capture/stop
func (h *Handler) StopCapture(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")
	res, err := h.service.StopCapture(ctx, sessionID)
	return h.submitResponse(c, sessionID, res, err)
}

// SubmitAnswer submits a typed answer.
// POST /v1/sessions/:session_id/answers
func (h *Handler) SubmitAnswer(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	res, err := h.service.SubmitAnswer(ctx, sessionID, req.Transcript)
	return h.submitResponse(c, sessionID, res, err)
}

// RetryAnswer retries question generation for the pending answer.
// POST /v1/sessions/:session_id/answers/retry
func (h *Handler) RetryAnswer(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")
	res, err := h.service.RetryAnswer(ctx, sessionID)
	return h.submitResponse(c, sessionID, res, err)
}

func (h *Handler) submitResponse(c echo.Context, sessionID string, res orchestrator.SubmitResult, err error) error {
	if err != nil && !(res.Report != nil && errors.Is(err, domain.ErrPersistenceFailed)) {
		return errorResponse(c, err)
	}

	snap, serr := h.service.GetSession(c.Request().Context(), sessionID)
	if serr != nil {
		return errorResponse(c, serr)
	}
	resp := SubmitResponse{
		TurnIndex: res.Turn.Index,
		Appended:  res.Appended,
		Fallback:  res.Fallback,
		Complete:  res.Report != nil,
		Session:   snap,
		Report:    res.Report,
	}
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error":     err.Error(),
			"retryable": true,
			"result":    resp,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// Finalize returns the session report, saving it if needed.
// POST /v1/sessions/:session_id/finalize
func (h *Handler) Finalize(c echo.Context) error {
	report, err := h.service.Finalize(c.Request().Context(), c.Param("session_id"))
	return reportResponse(c, report, err)
}

// SaveReport retries saving the session report.
// POST /v1/sessions/:session_id/report/save
func (h *Handler) SaveReport(c echo.Context) error {
	report, err := h.service.SaveReport(c.Request().Context(), c.Param("session_id"))
	return reportResponse(c, report, err)
}

func reportResponse(c echo.Context, report *domain.SessionReport, err error) error {
	if err != nil {
		if report != nil && errors.Is(err, domain.ErrPersistenceFailed) {
			return c.JSON(http.StatusBadGateway, map[string]interface{}{
				"error":     err.Error(),
				"retryable": true,
				"report":    report,
			})
		}
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// GetReport returns the report of a session.
// GET /v1/sessions/:session_id/report
func (h *Handler) GetReport(c echo.Context) error {
	report, err := h.service.GetReport(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	if c.QueryParam("format") == "text" {
		return c.String(http.StatusOK, report.Transcript())
	}
	return c.JSON(http.StatusOK, report)
}

// ListTurns returns the conversation log of a session.
// GET /v1/sessions/:session_id/turns
func (h *Handler) ListTurns(c echo.Context) error {
	turns, err := h.service.ListTurns(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"turns": turns,
	})
}

// ListEvents returns the recorded events of a session.
// GET /v1/sessions/:session_id/events
func (h *Handler) ListEvents(c echo.Context) error {
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if t := c.QueryParam("types"); t != "" {
		types = strings.Split(t, ",")
	}

	events, err := h.service.ListEvents(c.Request().Context(), c.Param("session_id"), afterTs, types, limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
