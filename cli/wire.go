package cli

import (
	"context"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/classifier"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/collector"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/dispatch"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/knowledge"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/llm"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/metadata"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/orchestrator"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/synth"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/upgrade"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
)

// app is the fully wired engine plus the resources commands share.
type app struct {
	engine *orchestrator.Engine
	store  session.Store
	client *upgrade.Client
	llm    llm.Client
}

// buildApp wires every engine component from configuration.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	llmClient, err := llm.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(ctx, cfg)
	if err != nil {
		llmClient.Close()
		return nil, err
	}
	glossary, err := knowledge.Load()
	if err != nil {
		llmClient.Close()
		store.Close(ctx)
		return nil, err
	}

	client := upgrade.NewClient(cfg, nil)
	meta := metadata.NewService(client, cfg.Engine.MetadataTTL)
	engine := orchestrator.New(
		store,
		classifier.NewService(llmClient, meta, glossary, cfg),
		collector.NewService(llmClient, meta),
		dispatch.New(client, meta),
		synth.NewService(llmClient),
		cfg,
	)
	return &app{engine: engine, store: store, client: client, llm: llmClient}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.llm.Close(); err != nil {
		logger.FromContext(ctx).Warn("llm client close failed", "error", err)
	}
	if err := a.store.Close(ctx); err != nil {
		logger.FromContext(ctx).Warn("session store close failed", "error", err)
	}
}
