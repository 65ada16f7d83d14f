package contract

import (
	"encoding/json"
	"fmt"

	planx "github.com/ppec-ai/copilot/agent/plan"
)

type EventType string

const (
	EventThought       EventType = "thought"
	EventPlanUpdate    EventType = "plan_update"
	EventStepUpdate    EventType = "step_update"
	EventFinalResponse EventType = "final_response"
	EventError         EventType = "error"
	EventHeartbeat     EventType = "heartbeat"
)

type ThoughtPayload struct {
	Phase   string `json:"phase"`
	Content string `json:"content"`
}

type StepUpdatePayload struct {
	TurnID string   `json:"turn_id"`
	Status string   `json:"status"`
	StepID *float64 `json:"step_id,omitempty"`
}

type FinalResponsePayload struct {
	TurnID  string `json:"turn_id"`
	Summary string `json:"summary"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// Event is the tagged union streamed to the transport layer. Exactly one
// payload field matching Type is set; heartbeat carries none.
type Event struct {
	Type    EventType
	Thought *ThoughtPayload
	Plan    *planx.Plan
	Step    *StepUpdatePayload
	Final   *FinalResponsePayload
	Err     *ErrorPayload
}

func NewThoughtEvent(phase, content string) Event {
	return Event{Type: EventThought, Thought: &ThoughtPayload{Phase: phase, Content: content}}
}

func NewPlanUpdateEvent(pl planx.Plan) Event {
	cp := pl.Clone()
	return Event{Type: EventPlanUpdate, Plan: &cp}
}

func NewStepUpdateEvent(turnID, status string, stepID *float64) Event {
	return Event{Type: EventStepUpdate, Step: &StepUpdatePayload{TurnID: turnID, Status: status, StepID: stepID}}
}

func NewFinalResponseEvent(turnID, summary string) Event {
	return Event{Type: EventFinalResponse, Final: &FinalResponsePayload{TurnID: turnID, Summary: summary}}
}

func NewErrorEvent(msg string) Event {
	return Event{Type: EventError, Err: &ErrorPayload{Error: msg}}
}

func NewHeartbeatEvent() Event {
	return Event{Type: EventHeartbeat}
}

// Data serializes the payload matching the event type.
func (e Event) Data() ([]byte, error) {
	switch e.Type {
	case EventThought:
		return json.Marshal(e.Thought)
	case EventPlanUpdate:
		return json.Marshal(e.Plan)
	case EventStepUpdate:
		return json.Marshal(e.Step)
	case EventFinalResponse:
		return json.Marshal(e.Final)
	case EventError:
		return json.Marshal(e.Err)
	case EventHeartbeat:
		return []byte("{}"), nil
	default:
		return nil, fmt.Errorf("%w: unknown event type=%q", ErrValidation, e.Type)
	}
}

// ParseEvent decodes a typed event from its wire representation. The type
// discriminator is explicit; unrecognized types are an error rather than a
// guess from payload keys.
func ParseEvent(eventType string, data []byte) (Event, error) {
	switch EventType(eventType) {
	case EventThought:
		var p ThoughtPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("decode thought payload: %w", err)
		}
		return Event{Type: EventThought, Thought: &p}, nil
	case EventPlanUpdate:
		var p planx.Plan
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("decode plan payload: %w", err)
		}
		return Event{Type: EventPlanUpdate, Plan: &p}, nil
	case EventStepUpdate:
		var p StepUpdatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("decode step payload: %w", err)
		}
		return Event{Type: EventStepUpdate, Step: &p}, nil
	case EventFinalResponse:
		var p FinalResponsePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("decode final response payload: %w", err)
		}
		return Event{Type: EventFinalResponse, Final: &p}, nil
	case EventError:
		var p ErrorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("decode error payload: %w", err)
		}
		return Event{Type: EventError, Err: &p}, nil
	case EventHeartbeat:
		return Event{Type: EventHeartbeat}, nil
	default:
		return Event{}, fmt.Errorf("%w: unrecognized event type=%q", ErrValidation, eventType)
	}
}
