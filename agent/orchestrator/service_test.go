package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	planx "github.com/ppec-ai/copilot/agent/plan"
)

type fakePlanner struct {
	steps       []planx.Step
	err         error
	seenHistory []contractx.Message
}

func (f *fakePlanner) GeneratePlan(ctx context.Context, req contractx.PlanRequest) (planx.Plan, error) {
	f.seenHistory = req.History
	if f.err != nil {
		return planx.Plan{}, f.err
	}
	return planx.New(req.Goal, append([]planx.Step(nil), f.steps...)), nil
}

// fakeExecutor completes the first pending step, or fails it when its id is
// listed in failIDs. Each id fails at most once.
type fakeExecutor struct {
	failIDs map[float64]bool
	calls   int
}

func (f *fakeExecutor) ExecuteNext(ctx context.Context, pl planx.Plan, history []contractx.Message) (planx.Plan, error) {
	idx, ok := pl.FirstPendingIndex()
	if !ok {
		return pl, nil
	}
	f.calls++
	step := &pl.Steps[idx]
	if f.failIDs[step.StepID] {
		delete(f.failIDs, step.StepID)
		_ = step.MarkFailed("simulated failure")
		return pl, nil
	}
	_ = step.MarkComplete(fmt.Sprintf("result for step %g", step.StepID))
	return pl, nil
}

// fakeReplanner either splices a single repair step over the failed one, or
// inserts a manual step after it leaving the failure in place.
type fakeReplanner struct {
	manual bool
	calls  int
}

func (f *fakeReplanner) Replan(ctx context.Context, pl planx.Plan, history []contractx.Message) (planx.Plan, error) {
	f.calls++
	idx, ok := pl.FirstFailedIndex()
	if !ok {
		return pl, nil
	}
	if f.manual {
		manual := planx.NewStep(pl.Steps[idx].StepID+0.5, "manual handling required")
		if err := pl.InsertAfter(idx, manual); err != nil {
			return pl, err
		}
		return pl, nil
	}
	repair := planx.NewStep(pl.NextStepID(), "repair the failed step")
	if err := pl.SpliceAt(idx, []planx.Step{repair}); err != nil {
		return pl, err
	}
	return pl, nil
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, pl planx.Plan) (planx.Plan, error) {
	if f.err != nil {
		return pl, f.err
	}
	pl.FinalSummary = f.summary
	return pl, nil
}

type fakeRegistry struct {
	planner    *fakePlanner
	replanner  *fakeReplanner
	executor   *fakeExecutor
	summarizer *fakeSummarizer
}

func (f *fakeRegistry) Planner() contractx.Planner       { return f.planner }
func (f *fakeRegistry) Replanner() contractx.Replanner   { return f.replanner }
func (f *fakeRegistry) Executor() contractx.Executor     { return f.executor }
func (f *fakeRegistry) Summarizer() contractx.Summarizer { return f.summarizer }

type fakeGateway struct {
	history   []contractx.Message
	commits   []planx.Plan
	commitErr error
}

func (f *fakeGateway) History(ctx context.Context, sessionID string) ([]contractx.Message, error) {
	return f.history, nil
}

func (f *fakeGateway) Commit(ctx context.Context, sessionID string, pl planx.Plan) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits = append(f.commits, pl)
	return nil
}

func (f *fakeGateway) Revert(ctx context.Context, sessionID string, turnID string) error {
	return nil
}

func newTestService(t *testing.T, reg *fakeRegistry, gw *fakeGateway) *Service {
	t.Helper()
	svc, err := New(reg, gw, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func collectEvents(emit *[]contractx.Event) EmitFunc {
	return func(ev contractx.Event) {
		*emit = append(*emit, ev)
	}
}

// substantive events are everything except thoughts and heartbeats
func substantiveTypes(events []contractx.Event) []contractx.EventType {
	out := make([]contractx.EventType, 0, len(events))
	for _, ev := range events {
		if ev.Type == contractx.EventThought || ev.Type == contractx.EventHeartbeat {
			continue
		}
		out = append(out, ev.Type)
	}
	return out
}

func assertEventTypes(t *testing.T, got, want []contractx.EventType) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("event count = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestRunTurnSingleStepEventOrder(t *testing.T) {
	t.Parallel()

	history := []contractx.Message{{Role: contractx.RoleUser, Content: "earlier goal"}}
	reg := &fakeRegistry{
		planner:    &fakePlanner{steps: []planx.Step{planx.NewStep(1, "look it up")}},
		replanner:  &fakeReplanner{},
		executor:   &fakeExecutor{},
		summarizer: &fakeSummarizer{summary: "here is the answer"},
	}
	gw := &fakeGateway{history: history}
	svc := newTestService(t, reg, gw)

	var events []contractx.Event
	pl, err := svc.RunTurn(context.Background(), TurnRequest{SessionID: "sess-1", Message: "find it"}, collectEvents(&events))
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}

	assertEventTypes(t, substantiveTypes(events), []contractx.EventType{
		contractx.EventPlanUpdate,
		contractx.EventStepUpdate,
		contractx.EventPlanUpdate,
		contractx.EventFinalResponse,
	})

	if !pl.Complete() {
		t.Fatalf("turn must end with a complete plan: %+v", pl)
	}
	if len(reg.planner.seenHistory) != 1 {
		t.Fatal("planner must receive the retrieved history")
	}
	if len(gw.commits) != 1 {
		t.Fatalf("expected exactly one commit, got %d", len(gw.commits))
	}
	if gw.commits[0].FinalSummary != "here is the answer" {
		t.Fatalf("committed plan lost its summary: %+v", gw.commits[0])
	}
}

func TestRunTurnMultiStepEmitsPerStep(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		planner:    &fakePlanner{steps: []planx.Step{planx.NewStep(1, "one"), planx.NewStep(2, "two")}},
		replanner:  &fakeReplanner{},
		executor:   &fakeExecutor{},
		summarizer: &fakeSummarizer{summary: "done"},
	}
	svc := newTestService(t, reg, &fakeGateway{})

	var events []contractx.Event
	if _, err := svc.RunTurn(context.Background(), TurnRequest{SessionID: "s", Message: "m"}, collectEvents(&events)); err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}

	assertEventTypes(t, substantiveTypes(events), []contractx.EventType{
		contractx.EventPlanUpdate,
		contractx.EventStepUpdate,
		contractx.EventPlanUpdate,
		contractx.EventStepUpdate,
		contractx.EventPlanUpdate,
		contractx.EventFinalResponse,
	})
	if reg.executor.calls != 2 {
		t.Fatalf("executor calls = %d, want 2", reg.executor.calls)
	}
}

func TestRunTurnRoutesFailureThroughReplan(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		planner:    &fakePlanner{steps: []planx.Step{planx.NewStep(1, "one"), planx.NewStep(2, "two")}},
		replanner:  &fakeReplanner{},
		executor:   &fakeExecutor{failIDs: map[float64]bool{1: true}},
		summarizer: &fakeSummarizer{summary: "recovered"},
	}
	gw := &fakeGateway{}
	svc := newTestService(t, reg, gw)

	var events []contractx.Event
	pl, err := svc.RunTurn(context.Background(), TurnRequest{SessionID: "s", Message: "m"}, collectEvents(&events))
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}

	if reg.replanner.calls != 1 {
		t.Fatalf("replanner calls = %d, want 1", reg.replanner.calls)
	}
	if pl.HasFailed() {
		t.Fatalf("spliced replan must remove the failure: %+v", pl.Steps)
	}
	if !pl.Complete() {
		t.Fatalf("turn must still complete after a replan: %+v", pl)
	}
	if len(gw.commits) != 1 {
		t.Fatalf("expected exactly one commit, got %d", len(gw.commits))
	}
}

func TestRunTurnManualRepairDoesNotLoop(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		planner:    &fakePlanner{steps: []planx.Step{planx.NewStep(1, "one")}},
		replanner:  &fakeReplanner{manual: true},
		executor:   &fakeExecutor{failIDs: map[float64]bool{1: true}},
		summarizer: &fakeSummarizer{summary: "partially done"},
	}
	svc := newTestService(t, reg, &fakeGateway{})

	pl, err := svc.RunTurn(context.Background(), TurnRequest{SessionID: "s", Message: "m"}, nil)
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}

	if reg.replanner.calls != 1 {
		t.Fatalf("a failed step already routed through replanning must not re-trigger it, calls = %d", reg.replanner.calls)
	}
	if !pl.HasFailed() {
		t.Fatal("the failed step must stay in the plan as a historical record")
	}
	if pl.HasPending() {
		t.Fatal("the manual-repair step must have been executed")
	}
	if pl.FinalSummary != "partially done" {
		t.Fatalf("unexpected summary: %q", pl.FinalSummary)
	}
}

func TestRunTurnValidatesInput(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		planner:    &fakePlanner{},
		replanner:  &fakeReplanner{},
		executor:   &fakeExecutor{},
		summarizer: &fakeSummarizer{},
	}
	svc := newTestService(t, reg, &fakeGateway{})

	cases := []TurnRequest{
		{SessionID: "", Message: "hi"},
		{SessionID: "s", Message: "   "},
	}
	for _, req := range cases {
		var events []contractx.Event
		_, err := svc.RunTurn(context.Background(), req, collectEvents(&events))
		if !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("req %+v: expected ErrValidation, got %v", req, err)
		}
		if len(events) != 0 {
			t.Fatalf("req %+v: no events may be emitted before validation", req)
		}
	}
}

func TestRunTurnPropagatesPlannerError(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		planner:    &fakePlanner{err: contractx.ErrModelInvoke},
		replanner:  &fakeReplanner{},
		executor:   &fakeExecutor{},
		summarizer: &fakeSummarizer{},
	}
	gw := &fakeGateway{}
	svc := newTestService(t, reg, gw)

	_, err := svc.RunTurn(context.Background(), TurnRequest{SessionID: "s", Message: "m"}, nil)
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
	if len(gw.commits) != 0 {
		t.Fatal("a failed turn must not be committed to memory")
	}
}

func TestRunTurnStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		planner:    &fakePlanner{steps: []planx.Step{planx.NewStep(1, "one")}},
		replanner:  &fakeReplanner{},
		executor:   &fakeExecutor{},
		summarizer: &fakeSummarizer{summary: "done"},
	}
	svc := newTestService(t, reg, &fakeGateway{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunTurn(ctx, TurnRequest{SessionID: "s", Message: "m"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStreamTurnEmitsSingleErrorEvent(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		planner:    &fakePlanner{err: errors.New("planner exploded")},
		replanner:  &fakeReplanner{},
		executor:   &fakeExecutor{},
		summarizer: &fakeSummarizer{},
	}
	svc := newTestService(t, reg, &fakeGateway{})

	var events []contractx.Event
	for ev := range svc.StreamTurn(context.Background(), TurnRequest{SessionID: "s", Message: "m"}) {
		events = append(events, ev)
	}

	errorCount := 0
	for _, ev := range events {
		if ev.Type == contractx.EventError {
			errorCount++
		}
	}
	if errorCount != 1 {
		t.Fatalf("expected exactly one error event, got %d (%v)", errorCount, events)
	}
	if last := events[len(events)-1]; last.Type != contractx.EventError {
		t.Fatalf("error event must terminate the stream, last was %s", last.Type)
	}
}

func TestStreamTurnEndsWithFinalResponse(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		planner:    &fakePlanner{steps: []planx.Step{planx.NewStep(1, "one")}},
		replanner:  &fakeReplanner{},
		executor:   &fakeExecutor{},
		summarizer: &fakeSummarizer{summary: "done"},
	}
	svc := newTestService(t, reg, &fakeGateway{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []contractx.Event
	for ev := range svc.StreamTurn(ctx, TurnRequest{SessionID: "s", Message: "m"}) {
		events = append(events, ev)
	}

	if len(events) == 0 {
		t.Fatal("expected events from a successful turn")
	}
	if last := events[len(events)-1]; last.Type != contractx.EventFinalResponse {
		t.Fatalf("stream must end with final_response, got %s", last.Type)
	}
}
