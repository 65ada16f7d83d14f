package agents

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	planx "github.com/ppec-ai/copilot/agent/plan"
	toolx "github.com/ppec-ai/copilot/agent/tool"
)

type plannerImpl struct {
	runner compose.Runnable[map[string]any, planLLMOutput]
}

type planLLMOutput struct {
	Goal  string          `json:"goal"`
	Steps []stepLLMOutput `json:"steps"`
}

type stepLLMOutput struct {
	StepID      float64 `json:"step_id"`
	Instruction string  `json:"instruction"`
	Status      string  `json:"status,omitempty"`
	Result      string  `json:"result,omitempty"`
}

func newPlanner(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*plannerImpl, error) {
	runner, err := compileStructuredLLMGraph[planLLMOutput](
		ctx, chatModel, systemPrompt, "My goal is: {{input}}", "planner.model_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile planner graph: %v", contractx.ErrModelInvoke, err)
	}
	return &plannerImpl{runner: runner}, nil
}

// GeneratePlan turns a goal plus history into a fresh plan of pending steps.
// It never fails: malformed or unparseable model output degrades to the
// deterministic single-step knowledge-search plan.
func (p *plannerImpl) GeneratePlan(ctx context.Context, req contractx.PlanRequest) (planx.Plan, error) {
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		return planx.Plan{}, fmt.Errorf("%w: goal is required", contractx.ErrValidation)
	}

	out, err := p.runner.Invoke(ctx, map[string]any{
		"input":   goal,
		"history": toSchemaMessages(req.History),
	})
	if err != nil {
		log.Warn().Err(err).Msg("plan generation failed, using fallback plan")
		return fallbackPlan(goal), nil
	}

	steps := sanitizeSteps(out.Steps)
	if len(steps) == 0 {
		log.Warn().Msg("plan generation produced no usable steps, using fallback plan")
		return fallbackPlan(goal), nil
	}

	pl := planx.New(goal, steps)
	log.Info().Str("turn_id", pl.TurnID).Int("steps", len(pl.Steps)).Msg("generated plan")
	return pl, nil
}

// sanitizeSteps normalizes model output: every step starts pending with an
// empty result, missing or duplicate ids are reassigned in sequence order.
func sanitizeSteps(raw []stepLLMOutput) []planx.Step {
	steps := make([]planx.Step, 0, len(raw))
	seen := make(map[float64]struct{}, len(raw))
	nextID := 1.0
	for _, s := range raw {
		instruction := strings.TrimSpace(s.Instruction)
		if instruction == "" {
			continue
		}
		id := s.StepID
		if _, dup := seen[id]; id <= 0 || dup {
			id = nextID
			for _, taken := seen[id]; taken; _, taken = seen[id] {
				id++
			}
		}
		seen[id] = struct{}{}
		if id >= nextID {
			nextID = id + 1
		}
		steps = append(steps, planx.NewStep(id, instruction))
	}
	return steps
}

func fallbackPlan(goal string) planx.Plan {
	instruction := fmt.Sprintf("Use the %s tool to look up information relevant to the goal.", toolx.ToolKnowledgeSearch)
	pl := planx.New(goal, []planx.Step{planx.NewStep(1, instruction)})
	log.Info().Str("turn_id", pl.TurnID).Msg("generated fallback plan")
	return pl
}
