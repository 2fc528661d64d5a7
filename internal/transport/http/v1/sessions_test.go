package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/xiaot623/mockinterview/internal/capture"
	"github.com/xiaot623/mockinterview/internal/config"
	"github.com/xiaot623/mockinterview/internal/domain"
	"github.com/xiaot623/mockinterview/internal/sequencer"
	"github.com/xiaot623/mockinterview/internal/service"
	"github.com/xiaot623/mockinterview/policy"
	"github.com/xiaot623/mockinterview/tests/helpers"
)

type testDevice struct{}

func (testDevice) Acquire(context.Context) error { return nil }
func (testDevice) Release() error                { return nil }
func (testDevice) Enabled() bool                 { return false }
func (testDevice) Snapshot() (domain.Frame, error) {
	return domain.Frame{}, errors.New("no camera")
}
func (testDevice) Listen(context.Context) (capture.RecognitionStream, error) {
	return nil, errors.New("no microphone")
}

type testDevices struct{}

func (testDevices) Recognizer(string) capture.Recognizer { return testDevice{} }
func (testDevices) Camera(string) capture.Camera         { return testDevice{} }

func newTestServer(t *testing.T, gen sequencer.Generator) *echo.Echo {
	t.Helper()
	ctx := context.Background()
	cfg := &config.Config{
		PlanLength:            2,
		SeedQuestion:          config.DefaultSeedQuestion,
		MaxGenerationAttempts: 3,
		ClassifierConcurrency: 1,
		MaxSessions:           10,
		SessionIdleTimeout:    time.Minute,
		ReaperInterval:        time.Second,
	}
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	svc, err := service.New(helpers.NewTestSQLiteStore(t), gen, nil, testDevices{}, cfg, policyEngine, service.Options{Log: log})
	if err != nil {
		t.Fatalf("service.New failed: %v", err)
	}

	e := echo.New()
	NewHandler(svc).RegisterRoutes(e)
	return e
}

func okGenerator() sequencer.Generator {
	return sequencer.GeneratorFunc(func(_ context.Context, _, _ string, asked []string) (string, error) {
		return fmt.Sprintf("Follow-up %d?", len(asked)), nil
	})
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/v1/sessions", `{"role":"Backend Engineer","user_id":"u1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.Question != config.DefaultSeedQuestion {
		t.Fatalf("expected seed question, got %q", snap.Question)
	}
	return snap.SessionID
}

func TestCreateSessionValidation(t *testing.T) {
	e := newTestServer(t, okGenerator())

	rec := do(t, e, http.MethodPost, "/v1/sessions", `{"modality":"speech"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = do(t, e, http.MethodPost, "/v1/sessions", `{"role":"QA","modality":"audio"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSessionFlow(t *testing.T) {
	e := newTestServer(t, okGenerator())
	id := createSession(t, e)

	rec := do(t, e, http.MethodPost, "/v1/sessions/"+id+"/answers", `{"transcript":"too early"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before start, got %d", rec.Code)
	}

	rec = do(t, e, http.MethodPost, "/v1/sessions/"+id+"/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodPost, "/v1/sessions/"+id+"/answers", `{"transcript":"I write Go services."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Complete || resp.Session.Question != "Follow-up 1?" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rec = do(t, e, http.MethodPost, "/v1/sessions/"+id+"/answers", `{"transcript":"I profile before optimizing."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp = SubmitResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Complete || resp.Report == nil || len(resp.Report.Turns) != 2 {
		t.Fatalf("expected completed report, got %+v", resp)
	}
	if resp.Session.State != domain.SessionStateComplete {
		t.Fatalf("expected COMPLETE, got %s", resp.Session.State)
	}

	rec = do(t, e, http.MethodGet, "/v1/sessions/"+id+"/report?format=text", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Q: "+config.DefaultSeedQuestion) {
		t.Fatalf("unexpected transcript: %s", rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/v1/sessions/"+id+"/turns", "")
	var turns struct {
		Turns []domain.Turn `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &turns); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(turns.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns.Turns))
	}

	rec = do(t, e, http.MethodGet, "/v1/sessions/"+id+"/events?types=report_saved", "")
	var events struct {
		Events []domain.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(events.Events) != 1 {
		t.Fatalf("expected 1 report_saved event, got %d", len(events.Events))
	}

	rec = do(t, e, http.MethodDelete, "/v1/sessions/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestGenerationFailureIsRetryable(t *testing.T) {
	gen := sequencer.GeneratorFunc(func(context.Context, string, string, []string) (string, error) {
		return "", errors.New("upstream timeout")
	})
	e := newTestServer(t, gen)
	id := createSession(t, e)
	do(t, e, http.MethodPost, "/v1/sessions/"+id+"/start", "")

	rec := do(t, e, http.MethodPost, "/v1/sessions/"+id+"/answers", `{"transcript":"answer"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["retryable"] != true {
		t.Fatalf("expected retryable error, got %v", body)
	}

	rec = do(t, e, http.MethodGet, "/v1/sessions/"+id, "")
	var snap domain.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !snap.PendingAnswer {
		t.Fatalf("expected pending answer, got %+v", snap)
	}
}

func TestStopCaptureWithoutStart(t *testing.T) {
	e := newTestServer(t, okGenerator())
	id := createSession(t, e)
	do(t, e, http.MethodPost, "/v1/sessions/"+id+"/start", "")

	rec := do(t, e, http.MethodPost, "/v1/sessions/"+id+"/capture/stop", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestUnknownSession(t *testing.T) {
	e := newTestServer(t, okGenerator())

	for _, path := range []string{"/v1/sessions/sess_nope", "/v1/sessions/sess_nope/report", "/v1/sessions/sess_nope/turns"} {
		rec := do(t, e, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
	}
	rec := do(t, e, http.MethodPost, "/v1/sessions/sess_nope/start", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, okGenerator())
	rec := do(t, e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
