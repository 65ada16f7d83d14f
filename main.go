package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	agentsx "github.com/ppec-ai/copilot/agent/agents"
	llmx "github.com/ppec-ai/copilot/agent/llm"
	memoryx "github.com/ppec-ai/copilot/agent/memory"
	orchestratorx "github.com/ppec-ai/copilot/agent/orchestrator"
	toolx "github.com/ppec-ai/copilot/agent/tool"
	configx "github.com/ppec-ai/copilot/pkg/config"
	_ "github.com/ppec-ai/copilot/pkg/logger/autoload"
	ragflowx "github.com/ppec-ai/copilot/pkg/ragflow"
	serverx "github.com/ppec-ai/copilot/server"
)

type AppConfig struct {
	TurnTimeout time.Duration `envconfig:"TURN_TIMEOUT" split_words:"true" default:"2m"`
}

func main() {
	ctx := context.Background()

	appCfg := configx.MustNew[AppConfig]("APP")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	ragflowCfg := configx.MustNew[ragflowx.Config]("RAGFLOW")
	storeCfg := configx.MustNew[memoryx.StoreConfig]("MEMORY")
	serverCfg := configx.MustNew[serverx.Config]("SERVER")

	ragflowClient := ragflowx.MustNew(*ragflowCfg)
	knowledge, err := toolx.NewRAGFlowSearch(ragflowClient, ragflowCfg.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize knowledge tool")
	}
	catalog, err := toolx.NewCatalog(knowledge)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tool catalog")
	}

	registry, err := agentsx.NewRegistry(ctx, *llmCfg, catalog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize model registry")
	}

	store, err := memoryx.NewPostgresStore(*storeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize memory store")
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare memory store schema")
	}
	gateway, err := memoryx.NewGateway(store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize memory gateway")
	}

	orch, err := orchestratorx.New(registry, gateway, orchestratorx.Config{
		TurnTimeout: appCfg.TurnTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator")
	}

	srv, err := serverx.New(orch, gateway, *serverCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http server")
	}
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("http server stopped")
	}
}
