package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	planx "github.com/ppec-ai/copilot/agent/plan"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

// phase is one state of the turn state machine. The only branching point is
// the transition evaluated after every execute.
type phase string

const (
	phaseRetrieveMemory phase = "retrieve_memory"
	phasePlan           phase = "plan"
	phaseExecute        phase = "execute"
	phaseReplan         phase = "replan"
	phaseSummarize      phase = "summarize"
	phaseUpdateMemory   phase = "update_memory"
	phaseDone           phase = "done"
)

type Config struct {
	// TurnTimeout caps the wall-clock budget of a whole turn. Zero disables
	// the deadline; collaborator timeouts still apply.
	TurnTimeout time.Duration
}

// Service drives one conversational turn through
// retrieve_memory -> plan -> {execute <-> replan} -> summarize ->
// update_memory, emitting a typed event per phase transition. One Service
// handles concurrent turns for independent sessions; each turn itself runs
// strictly sequentially.
type Service struct {
	models      contractx.Registry
	memory      contractx.MemoryGateway
	turnTimeout time.Duration
}

func New(models contractx.Registry, memory contractx.MemoryGateway, cfg Config) (*Service, error) {
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if memory == nil {
		return nil, errors.New("memory gateway is required")
	}
	return &Service{
		models:      models,
		memory:      memory,
		turnTimeout: cfg.TurnTimeout,
	}, nil
}

type TurnRequest struct {
	SessionID string
	Message   string
}

type EmitFunc func(contractx.Event)

// RunTurn executes one full turn. Events are emitted in exact phase
// execution order; no event is emitted for a phase that has not run.
// Expected failures (failed steps, malformed plans, degraded summaries) are
// absorbed into plan data; only unexpected internal errors are returned.
func (s *Service) RunTurn(ctx context.Context, req TurnRequest, emit EmitFunc) (planx.Plan, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return planx.Plan{}, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrInvalidSession)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return planx.Plan{}, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrInvalidMessage)
	}
	if emit == nil {
		emit = func(contractx.Event) {}
	}
	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	logger := log.With().Str("session_id", sessionID).Logger()

	var (
		history []contractx.Message
		pl      planx.Plan
		err     error
	)
	// Step ids already routed through replanning. A failed step that the
	// replanner could not replace stays in the plan as a historical record
	// and must not re-trigger replanning.
	replanned := make(map[float64]bool)

	current := phaseRetrieveMemory
	for current != phaseDone {
		if err := ctx.Err(); err != nil {
			return pl, fmt.Errorf("turn budget exhausted in phase=%s: %w", current, err)
		}

		switch current {
		case phaseRetrieveMemory:
			logger.Info().Msg("phase: retrieve memory")
			emit(contractx.NewThoughtEvent(string(phaseRetrieveMemory), "retrieving conversation memory"))
			history, _ = s.memory.History(ctx, sessionID)
			emit(contractx.NewThoughtEvent(string(phaseRetrieveMemory), fmt.Sprintf("retrieved %d history entries", len(history))))
			current = phasePlan

		case phasePlan:
			logger.Info().Msg("phase: plan")
			pl, err = s.models.Planner().GeneratePlan(ctx, contractx.PlanRequest{
				Goal:    message,
				History: history,
			})
			if err != nil {
				return planx.Plan{}, fmt.Errorf("generate plan: %w", err)
			}
			emit(contractx.NewPlanUpdateEvent(pl))
			current = phaseExecute

		case phaseExecute:
			if idx, ok := pl.FirstPendingIndex(); ok {
				stepID := pl.Steps[idx].StepID
				logger.Info().Float64("step_id", stepID).Msg("phase: execute")
				emit(contractx.NewStepUpdateEvent(pl.TurnID, "running", &stepID))
			}
			pl, err = s.models.Executor().ExecuteNext(ctx, pl, history)
			if err != nil {
				return pl, fmt.Errorf("execute step: %w", err)
			}
			emit(contractx.NewPlanUpdateEvent(pl))
			current = nextAfterExecute(&pl, replanned)

		case phaseReplan:
			logger.Warn().Str("turn_id", pl.TurnID).Msg("phase: replan")
			emit(contractx.NewThoughtEvent(string(phaseReplan), "a step failed, generating a corrective plan"))
			idx, ok := firstUnhandledFailed(&pl, replanned)
			if !ok {
				// routing bug guard; nextAfterExecute should prevent this
				current = phaseExecute
				continue
			}
			failedID := pl.Steps[idx].StepID
			pl, err = s.models.Replanner().Replan(ctx, pl, history)
			if err != nil {
				return pl, fmt.Errorf("replan: %w", err)
			}
			replanned[failedID] = true
			emit(contractx.NewPlanUpdateEvent(pl))
			emit(contractx.NewThoughtEvent(string(phaseReplan), "replanning finished, resuming execution"))
			current = phaseExecute

		case phaseSummarize:
			logger.Info().Str("turn_id", pl.TurnID).Msg("phase: summarize")
			pl, err = s.models.Summarizer().Summarize(ctx, pl)
			if err != nil {
				return pl, fmt.Errorf("summarize: %w", err)
			}
			emit(contractx.NewFinalResponseEvent(pl.TurnID, pl.FinalSummary))
			current = phaseUpdateMemory

		case phaseUpdateMemory:
			logger.Info().Str("turn_id", pl.TurnID).Msg("phase: update memory")
			if err := s.memory.Commit(ctx, sessionID, pl); err != nil {
				return pl, fmt.Errorf("commit plan: %w", err)
			}
			current = phaseDone
		}
	}

	return pl, nil
}

// StreamTurn runs the turn in the background and returns its event stream.
// Internal errors terminate the stream with a single error event.
func (s *Service) StreamTurn(ctx context.Context, req TurnRequest) <-chan contractx.Event {
	events := make(chan contractx.Event, 16)
	go func() {
		defer close(events)
		emit := func(ev contractx.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		if _, err := s.RunTurn(ctx, req, emit); err != nil {
			log.Error().Err(err).Str("session_id", req.SessionID).Msg("turn failed")
			emit(contractx.NewErrorEvent(err.Error()))
		}
	}()
	return events
}

// nextAfterExecute is the single branching rule of the state machine:
// unhandled failed step -> replan, pending step -> execute, otherwise
// summarize.
func nextAfterExecute(pl *planx.Plan, replanned map[float64]bool) phase {
	if _, ok := firstUnhandledFailed(pl, replanned); ok {
		return phaseReplan
	}
	if pl.HasPending() {
		return phaseExecute
	}
	return phaseSummarize
}

func firstUnhandledFailed(pl *planx.Plan, replanned map[float64]bool) (int, bool) {
	for i := range pl.Steps {
		if pl.Steps[i].Status == planx.StepFailed && !replanned[pl.Steps[i].StepID] {
			return i, true
		}
	}
	return -1, false
}
