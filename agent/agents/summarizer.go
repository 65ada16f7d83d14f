package agents

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	planx "github.com/ppec-ai/copilot/agent/plan"
)

const degradedSummaryText = "The task completed, but no detailed summary is available."

type summarizerImpl struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

func newSummarizer(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*summarizerImpl, error) {
	userTemplate := "Original goal: {{goal}}\n\nSummary of plan steps and results:\n{{steps_summary}}\n\nWrite the final reply to the user:"
	runner, err := compileChatGraph(ctx, chatModel, systemPrompt, userTemplate, "summarizer.model_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile summarizer graph: %v", contractx.ErrModelInvoke, err)
	}
	return &summarizerImpl{runner: runner}, nil
}

// Summarize sets the plan's final user-facing summary from a digest of every
// step's instruction and result. Model failures degrade to a generic
// completion message: the summary is never left unset, because an unset
// summary would block the memory commit.
func (s *summarizerImpl) Summarize(ctx context.Context, pl planx.Plan) (planx.Plan, error) {
	var digest strings.Builder
	for i := range pl.Steps {
		fmt.Fprintf(&digest, "Step %g (%s): %s\n", pl.Steps[i].StepID, pl.Steps[i].Instruction, pl.Steps[i].Result)
	}

	msg, err := s.runner.Invoke(ctx, map[string]any{
		"goal":          pl.Goal,
		"steps_summary": digest.String(),
	})
	if err != nil || msg == nil || strings.TrimSpace(msg.Content) == "" {
		log.Error().Err(err).Str("turn_id", pl.TurnID).Msg("summary generation failed, using degraded summary")
		pl.FinalSummary = degradedSummaryText
		return pl, nil
	}

	pl.FinalSummary = strings.TrimSpace(msg.Content)
	log.Info().Str("turn_id", pl.TurnID).Msg("generated final summary")
	return pl, nil
}
