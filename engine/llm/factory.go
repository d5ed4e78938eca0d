package llm

import (
	"context"

	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
)

// NewClient builds the configured provider client wrapped with retry. The
// mock provider returns a scripted client and is meant for tests and local
// development without API keys.
func NewClient(ctx context.Context, cfg *config.Config) (Client, error) {
	if cfg.LLM.Provider == "mock" {
		return NewMockClient(), nil
	}
	base, err := NewLangChainClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return WithRetry(base, cfg.LLM.RetryAttempts, cfg.LLM.Timeout), nil
}
