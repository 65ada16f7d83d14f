package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	planx "github.com/ppec-ai/copilot/agent/plan"
	toolx "github.com/ppec-ai/copilot/agent/tool"
)

type executorImpl struct {
	runner  compose.Runnable[map[string]any, *schema.Message]
	catalog *toolx.Catalog
}

func newExecutor(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	catalog *toolx.Catalog,
) (*executorImpl, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: tool catalog is required", contractx.ErrValidation)
	}
	toolModel, err := chatModel.WithTools(catalog.Infos())
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for executor: %v", contractx.ErrModelInvoke, err)
	}
	runner, err := compileChatGraph(ctx, toolModel, systemPrompt, "{{input}}", "executor.model_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile executor graph: %v", contractx.ErrModelInvoke, err)
	}
	return &executorImpl{runner: runner, catalog: catalog}, nil
}

// ExecuteNext advances the first pending step in strict FIFO order. A plan
// without pending steps is returned unchanged. Failure is captured into the
// step's status and result, never returned as an error: the orchestrator
// routes failed steps to replanning.
func (e *executorImpl) ExecuteNext(ctx context.Context, pl planx.Plan, history []contractx.Message) (planx.Plan, error) {
	idx, ok := pl.FirstPendingIndex()
	if !ok {
		log.Debug().Str("turn_id", pl.TurnID).Msg("no pending steps left to execute")
		return pl, nil
	}
	step := &pl.Steps[idx]
	log.Info().Str("turn_id", pl.TurnID).Float64("step_id", step.StepID).
		Str("instruction", step.Instruction).Msg("executing step")

	result, err := e.runStep(ctx, step.Instruction, history)
	if err != nil {
		_ = step.MarkFailed(fmt.Sprintf("execution error: %v", err))
		log.Error().Err(err).Str("turn_id", pl.TurnID).Float64("step_id", step.StepID).Msg("step failed")
		return pl, nil
	}

	_ = step.MarkComplete(result)
	log.Info().Str("turn_id", pl.TurnID).Float64("step_id", step.StepID).Msg("step complete")
	return pl, nil
}

func (e *executorImpl) runStep(ctx context.Context, instruction string, history []contractx.Message) (string, error) {
	msg, err := e.runner.Invoke(ctx, map[string]any{"input": instruction})
	if err != nil {
		return "", fmt.Errorf("%w: executor invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return "", fmt.Errorf("%w: empty executor response", contractx.ErrSchemaViolation)
	}

	if len(msg.ToolCalls) == 0 {
		// The model answered the step directly without a tool.
		return strings.TrimSpace(msg.Content), nil
	}

	call := msg.ToolCalls[0]
	name := strings.TrimSpace(call.Function.Name)
	if name == "" {
		return "", fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
		}
	}

	return e.catalog.Execute(ctx, name, args, history)
}
