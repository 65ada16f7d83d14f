package agents

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	planx "github.com/ppec-ai/copilot/agent/plan"
)

type replannerImpl struct {
	runner compose.Runnable[map[string]any, replanLLMOutput]
}

type replanLLMOutput struct {
	Steps []stepLLMOutput `json:"steps"`
}

func newReplanner(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*replannerImpl, error) {
	runner, err := compileStructuredLLMGraph[replanLLMOutput](
		ctx, chatModel, systemPrompt, "{{input}}", "replanner.model_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile replanner graph: %v", contractx.ErrModelInvoke, err)
	}
	return &replannerImpl{runner: runner}, nil
}

// Replan produces a corrective continuation for the first failed step. On a
// successful parse the failed step is replaced in place by one or more
// repair steps. When no usable repair comes back, a synthetic manual-repair
// step is inserted after the failed step, which stays in the plan as a
// historical record.
func (r *replannerImpl) Replan(ctx context.Context, pl planx.Plan, history []contractx.Message) (planx.Plan, error) {
	idx, ok := pl.FirstFailedIndex()
	if !ok {
		log.Warn().Str("turn_id", pl.TurnID).Msg("replan requested but the plan has no failed steps")
		return pl, nil
	}
	failed := pl.Steps[idx]

	input := fmt.Sprintf(
		"We are trying to achieve this goal: %s\n\n"+
			"Step %g (instruction: %q) failed during execution.\n"+
			"Failure reason: %s\n\n"+
			"Based on this failure, produce replacement steps that still achieve the original goal.",
		pl.Goal, failed.StepID, failed.Instruction, failed.Result,
	)

	out, err := r.runner.Invoke(ctx, map[string]any{
		"input":   input,
		"history": toSchemaMessages(history),
	})
	if err != nil || len(out.Steps) == 0 {
		log.Warn().Err(err).Str("turn_id", pl.TurnID).Float64("step_id", failed.StepID).
			Msg("replanning produced no usable repair, inserting manual-repair step")
		manual := planx.NewStep(
			failed.StepID+0.5,
			fmt.Sprintf("Manual handling required: step %g (%s) failed and no automatic repair could be generated.",
				failed.StepID, failed.Instruction),
		)
		if err := pl.InsertAfter(idx, manual); err != nil {
			return pl, fmt.Errorf("insert manual-repair step: %w", err)
		}
		return pl, nil
	}

	nextID := pl.NextStepID()
	replacements := make([]planx.Step, 0, len(out.Steps))
	for i, s := range out.Steps {
		if s.Instruction == "" {
			continue
		}
		replacements = append(replacements, planx.NewStep(nextID+float64(i), s.Instruction))
	}
	if len(replacements) == 0 {
		manual := planx.NewStep(
			failed.StepID+0.5,
			fmt.Sprintf("Manual handling required: step %g (%s) failed and no automatic repair could be generated.",
				failed.StepID, failed.Instruction),
		)
		if err := pl.InsertAfter(idx, manual); err != nil {
			return pl, fmt.Errorf("insert manual-repair step: %w", err)
		}
		return pl, nil
	}

	if err := pl.SpliceAt(idx, replacements); err != nil {
		return pl, fmt.Errorf("splice repair steps: %w", err)
	}
	log.Info().Str("turn_id", pl.TurnID).Float64("failed_step_id", failed.StepID).
		Int("replacements", len(replacements)).Msg("spliced repair steps into plan")
	return pl, nil
}
