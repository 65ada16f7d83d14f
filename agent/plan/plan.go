package plan

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepComplete StepStatus = "complete"
	StepFailed   StepStatus = "failed"
)

var (
	ErrTerminalStep = errors.New("step already in terminal status")
	ErrStepNotFound = errors.New("step not found")
)

// Step is one unit of work inside a Plan. StepID is a float64 so that
// corrective steps inserted out of band can take fractional ids without
// colliding with generator-assigned whole numbers.
type Step struct {
	StepID      float64    `json:"step_id"`
	Instruction string     `json:"instruction"`
	Status      StepStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
}

func NewStep(id float64, instruction string) Step {
	return Step{
		StepID:      id,
		Instruction: strings.TrimSpace(instruction),
		Status:      StepPending,
	}
}

func (s *Step) IsPending() bool {
	return s != nil && s.Status == StepPending
}

func (s *Step) IsTerminal() bool {
	return s != nil && (s.Status == StepComplete || s.Status == StepFailed)
}

// MarkComplete transitions pending->complete. Terminal steps are never
// re-entered.
func (s *Step) MarkComplete(result string) error {
	if s.Status != StepPending {
		return fmt.Errorf("%w: step_id=%g status=%s", ErrTerminalStep, s.StepID, s.Status)
	}
	s.Status = StepComplete
	s.Result = result
	return nil
}

// MarkFailed transitions pending->failed. The result carries a human-readable
// error description; failure is data, not control flow.
func (s *Step) MarkFailed(reason string) error {
	if s.Status != StepPending {
		return fmt.Errorf("%w: step_id=%g status=%s", ErrTerminalStep, s.StepID, s.Status)
	}
	s.Status = StepFailed
	s.Result = reason
	return nil
}

// Plan represents one conversational turn's unit of work and the durable
// memory record for that turn.
type Plan struct {
	TurnID       string `json:"turn_id"`
	Goal         string `json:"goal"`
	Steps        []Step `json:"steps"`
	FinalSummary string `json:"final_summary,omitempty"`
}

// New builds a Plan with a freshly generated turn id. The turn id is the
// stable key used for later point-in-time revert and must never be
// reassigned once persisted.
func New(goal string, steps []Step) Plan {
	return Plan{
		TurnID: uuid.NewString(),
		Goal:   goal,
		Steps:  steps,
	}
}

// FirstPendingIndex returns the index of the first step in sequence order
// whose status is pending. Selection is strict FIFO.
func (p *Plan) FirstPendingIndex() (int, bool) {
	for i := range p.Steps {
		if p.Steps[i].Status == StepPending {
			return i, true
		}
	}
	return -1, false
}

// FirstFailedIndex returns the index of the first failed step.
func (p *Plan) FirstFailedIndex() (int, bool) {
	for i := range p.Steps {
		if p.Steps[i].Status == StepFailed {
			return i, true
		}
	}
	return -1, false
}

func (p *Plan) HasPending() bool {
	_, ok := p.FirstPendingIndex()
	return ok
}

func (p *Plan) HasFailed() bool {
	_, ok := p.FirstFailedIndex()
	return ok
}

// InProgress reports whether execution has started but not finished: at
// least one step is terminal and at least one is still pending.
func (p *Plan) InProgress() bool {
	terminal := false
	for i := range p.Steps {
		if p.Steps[i].IsTerminal() {
			terminal = true
			break
		}
	}
	return terminal && p.HasPending()
}

// AllComplete reports whether every step reached the complete status.
func (p *Plan) AllComplete() bool {
	if len(p.Steps) == 0 {
		return false
	}
	for i := range p.Steps {
		if p.Steps[i].Status != StepComplete {
			return false
		}
	}
	return true
}

// Complete reports whether the plan as a whole is done: every step complete
// and the final summary set.
func (p *Plan) Complete() bool {
	return p.AllComplete() && strings.TrimSpace(p.FinalSummary) != ""
}

// NextStepID allocates the next whole-number step id after the current
// maximum.
func (p *Plan) NextStepID() float64 {
	max := 0.0
	for i := range p.Steps {
		if p.Steps[i].StepID > max {
			max = p.Steps[i].StepID
		}
	}
	return math.Floor(max) + 1
}

// SpliceAt replaces the step at idx with one or more replacement steps,
// preserving order around it. Used by replanning for 1:n step replacement.
func (p *Plan) SpliceAt(idx int, replacements []Step) error {
	if idx < 0 || idx >= len(p.Steps) {
		return fmt.Errorf("%w: index=%d", ErrStepNotFound, idx)
	}
	out := make([]Step, 0, len(p.Steps)-1+len(replacements))
	out = append(out, p.Steps[:idx]...)
	out = append(out, replacements...)
	out = append(out, p.Steps[idx+1:]...)
	p.Steps = out
	return nil
}

// InsertAfter inserts a step immediately after idx, leaving the step at idx
// in place.
func (p *Plan) InsertAfter(idx int, step Step) error {
	if idx < 0 || idx >= len(p.Steps) {
		return fmt.Errorf("%w: index=%d", ErrStepNotFound, idx)
	}
	out := make([]Step, 0, len(p.Steps)+1)
	out = append(out, p.Steps[:idx+1]...)
	out = append(out, step)
	out = append(out, p.Steps[idx+1:]...)
	p.Steps = out
	return nil
}

// Clone returns a deep copy so phases can hand plans over without aliasing
// the step slice.
func (p Plan) Clone() Plan {
	cp := p
	cp.Steps = append([]Step(nil), p.Steps...)
	return cp
}
