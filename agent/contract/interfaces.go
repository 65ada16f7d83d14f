package contract

import (
	"context"

	planx "github.com/ppec-ai/copilot/agent/plan"
)

type PlanRequest struct {
	Goal    string
	History []Message
}

// Planner decomposes a goal into an ordered plan of pending steps. It must
// always return a usable plan: malformed model output degrades to a
// deterministic fallback instead of an error.
type Planner interface {
	GeneratePlan(ctx context.Context, req PlanRequest) (planx.Plan, error)
}

// Replanner produces a corrective continuation for the first failed step of
// a plan. A plan without failed steps is returned unchanged.
type Replanner interface {
	Replan(ctx context.Context, pl planx.Plan, history []Message) (planx.Plan, error)
}

// Executor advances the first pending step of a plan. Step failures are
// captured into the step itself, never returned as errors.
type Executor interface {
	ExecuteNext(ctx context.Context, pl planx.Plan, history []Message) (planx.Plan, error)
}

// Summarizer sets the plan's final user-facing summary once all steps
// completed. Model failures degrade to a generic summary.
type Summarizer interface {
	Summarize(ctx context.Context, pl planx.Plan) (planx.Plan, error)
}

type Registry interface {
	Planner() Planner
	Replanner() Replanner
	Executor() Executor
	Summarizer() Summarizer
}

// KnowledgeTool answers domain questions from an external knowledge base.
// Upstream outages and timeouts surface as ErrServiceUnavailable, anything
// else as a generic error.
type KnowledgeTool interface {
	Search(ctx context.Context, query string, history []Message) (string, error)
}

// MemoryGateway reads and writes a session's durable history of completed
// plans.
type MemoryGateway interface {
	// History reconstructs conversational context oldest first; one user
	// entry (goal) and one assistant entry (final summary) per committed
	// plan. Fails open to an empty history on retrieval errors.
	History(ctx context.Context, sessionID string) ([]Message, error)
	// Commit persists a completed plan atomically. Plans without a final
	// summary are never persisted.
	Commit(ctx context.Context, sessionID string, pl planx.Plan) error
	// Revert deletes every record recorded strictly after the given turn for
	// the session. Unknown turn ids fail with ErrTurnNotFound.
	Revert(ctx context.Context, sessionID string, turnID string) error
}

// RecordStore is the low-level append-only store backing the memory gateway.
type RecordStore interface {
	Add(ctx context.Context, rec Record) error
	List(ctx context.Context, ownerKey string) ([]Record, error)
	Delete(ctx context.Context, recordKey string) error
}
