package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	orchestratorx "github.com/ppec-ai/copilot/agent/orchestrator"
	planx "github.com/ppec-ai/copilot/agent/plan"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePlanner struct{}

func (fakePlanner) GeneratePlan(ctx context.Context, req contractx.PlanRequest) (planx.Plan, error) {
	return planx.New(req.Goal, []planx.Step{planx.NewStep(1, "look it up")}), nil
}

type fakeReplanner struct{}

func (fakeReplanner) Replan(ctx context.Context, pl planx.Plan, history []contractx.Message) (planx.Plan, error) {
	return pl, nil
}

type fakeExecutor struct{}

func (fakeExecutor) ExecuteNext(ctx context.Context, pl planx.Plan, history []contractx.Message) (planx.Plan, error) {
	if idx, ok := pl.FirstPendingIndex(); ok {
		_ = pl.Steps[idx].MarkComplete("found it")
	}
	return pl, nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(ctx context.Context, pl planx.Plan) (planx.Plan, error) {
	pl.FinalSummary = "here is the answer"
	return pl, nil
}

type fakeRegistry struct{}

func (fakeRegistry) Planner() contractx.Planner       { return fakePlanner{} }
func (fakeRegistry) Replanner() contractx.Replanner   { return fakeReplanner{} }
func (fakeRegistry) Executor() contractx.Executor     { return fakeExecutor{} }
func (fakeRegistry) Summarizer() contractx.Summarizer { return fakeSummarizer{} }

type fakeGateway struct {
	revertErr   error
	revertCalls int
}

func (f *fakeGateway) History(ctx context.Context, sessionID string) ([]contractx.Message, error) {
	return nil, nil
}

func (f *fakeGateway) Commit(ctx context.Context, sessionID string, pl planx.Plan) error {
	return nil
}

func (f *fakeGateway) Revert(ctx context.Context, sessionID string, turnID string) error {
	f.revertCalls++
	return f.revertErr
}

// closeNotifyRecorder adds the http.CloseNotifier method that gin's
// Context.Stream requires but httptest.ResponseRecorder lacks.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newCloseNotifyRecorder() *closeNotifyRecorder {
	return &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func newTestServer(t *testing.T, gw *fakeGateway) *Server {
	t.Helper()
	orch, err := orchestratorx.New(fakeRegistry{}, gw, orchestratorx.Config{TurnTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("orchestrator.New() error = %v", err)
	}
	srv, err := New(orch, gw, Config{Addr: ":0", HeartbeatInterval: time.Minute})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func TestChatStreamsEvents(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeGateway{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat",
		strings.NewReader(`{"session_id":"sess-1","message":"where are the docs"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := newCloseNotifyRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{"plan_update", "step_update", "final_response", "here is the answer"} {
		if !strings.Contains(body, want) {
			t.Fatalf("response body missing %q:\n%s", want, body)
		}
	}
}

func TestChatRejectsBadRequest(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeGateway{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRevertSuccess(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	srv := newTestServer(t, gw)

	req := httptest.NewRequest(http.MethodPost, "/v1/revert",
		strings.NewReader(`{"session_id":"sess-1","turn_id":"turn-1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if gw.revertCalls != 1 {
		t.Fatalf("revert calls = %d, want 1", gw.revertCalls)
	}
}

func TestRevertUnknownTurn(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{revertErr: contractx.ErrTurnNotFound}
	srv := newTestServer(t, gw)

	req := httptest.NewRequest(http.MethodPost, "/v1/revert",
		strings.NewReader(`{"session_id":"sess-1","turn_id":"missing"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRevertRejectsMissingFields(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	srv := newTestServer(t, gw)

	req := httptest.NewRequest(http.MethodPost, "/v1/revert", strings.NewReader(`{"session_id":"sess-1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if gw.revertCalls != 0 {
		t.Fatal("revert must not be attempted on invalid input")
	}
}
