package agents

import (
	"context"
	"fmt"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	llmx "github.com/ppec-ai/copilot/agent/llm"
	promptx "github.com/ppec-ai/copilot/agent/prompt"
	toolx "github.com/ppec-ai/copilot/agent/tool"
)

type registryImpl struct {
	planner    contractx.Planner
	replanner  contractx.Replanner
	executor   contractx.Executor
	summarizer contractx.Summarizer
}

func (r *registryImpl) Planner() contractx.Planner {
	return r.planner
}

func (r *registryImpl) Replanner() contractx.Replanner {
	return r.replanner
}

func (r *registryImpl) Executor() contractx.Executor {
	return r.executor
}

func (r *registryImpl) Summarizer() contractx.Summarizer {
	return r.summarizer
}

// NewRegistry builds the per-role model pipelines. The replanner shares the
// planner's model; only the system prompt differs.
func NewRegistry(ctx context.Context, cfg llmx.Config, catalog *toolx.Catalog) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()

	plannerModelCfg := cfg.OpenRouterFor(contractx.RolePlanner)
	plannerModel, err := plannerModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create planner model: %v", contractx.ErrModelInvoke, err)
	}
	executorModelCfg := cfg.OpenRouterFor(contractx.RoleExecutor)
	executorModel, err := executorModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create executor model: %v", contractx.ErrModelInvoke, err)
	}
	summarizerModelCfg := cfg.OpenRouterFor(contractx.RoleSummarizer)
	summarizerModel, err := summarizerModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create summarizer model: %v", contractx.ErrModelInvoke, err)
	}

	planner, err := newPlanner(ctx, plannerModel, prompts.Planner)
	if err != nil {
		return nil, err
	}
	replanner, err := newReplanner(ctx, plannerModel, prompts.Replanner)
	if err != nil {
		return nil, err
	}
	executor, err := newExecutor(ctx, executorModel, prompts.Executor, catalog)
	if err != nil {
		return nil, err
	}
	summarizer, err := newSummarizer(ctx, summarizerModel, prompts.Summarizer)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		planner:    planner,
		replanner:  replanner,
		executor:   executor,
		summarizer: summarizer,
	}, nil
}
