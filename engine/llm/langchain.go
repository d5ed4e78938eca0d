package llm

import (
	"context"
	"fmt"

	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient adapts a langchaingo model to the Client interface.
type LangChainClient struct {
	model    llms.Model
	provider string
}

// NewLangChainClient builds the configured provider's model and wraps it.
func NewLangChainClient(ctx context.Context, cfg *config.Config) (*LangChainClient, error) {
	model, err := newModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model: %w", err)
	}
	return &LangChainClient{model: model, provider: cfg.LLM.Provider}, nil
}

func newModel(ctx context.Context, cfg *config.Config) (llms.Model, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(cfg.LLM.Model)}
		if key := cfg.LLM.APIKey.Value(); key != "" {
			opts = append(opts, anthropic.WithToken(key))
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.LLM.BaseURL))
		}
		return anthropic.New(opts...)
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.LLM.Model)}
		if key := cfg.LLM.APIKey.Value(); key != "" {
			opts = append(opts, openai.WithToken(key))
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		return openai.New(opts...)
	case "googleai":
		opts := []googleai.Option{googleai.WithDefaultModel(cfg.LLM.Model)}
		if key := cfg.LLM.APIKey.Value(); key != "" {
			opts = append(opts, googleai.WithAPIKey(key))
		}
		return googleai.New(ctx, opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.LLM.Model)}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.LLM.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}

// GenerateContent implements Client.
func (c *LangChainClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	messages := convertMessages(req)
	options := buildCallOptions(req)

	response, err := c.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, fmt.Errorf("%s generation failed: %w", c.provider, err)
	}
	return convertResponse(response)
}

// Close implements Client. The underlying langchaingo models hold no
// resources that need releasing.
func (c *LangChainClient) Close() error {
	return nil
}

func convertMessages(req *Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		messages = append(messages, llms.TextParts(mapMessageRole(msg.Role), msg.Content))
	}
	return messages
}

func mapMessageRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func buildCallOptions(req *Request) []llms.CallOption {
	var options []llms.CallOption
	if req.Options.Temperature > 0 {
		options = append(options, llms.WithTemperature(req.Options.Temperature))
	}
	if req.Options.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(int(req.Options.MaxTokens)))
	}
	if len(req.Tools) > 0 {
		options = append(options, llms.WithTools(convertTools(req.Tools)))
		if req.Options.ToolChoice != "" {
			options = append(options, llms.WithToolChoice(req.Options.ToolChoice))
		}
	} else if req.Options.UseJSONMode {
		options = append(options, llms.WithJSONMode())
	}
	return options
}

func convertTools(tools []ToolDefinition) []llms.Tool {
	llmTools := make([]llms.Tool, 0, len(tools))
	for _, tool := range tools {
		llmTools = append(llmTools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return llmTools
}

func convertResponse(resp *llms.ContentResponse) (*Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from LLM")
	}
	choice := resp.Choices[0]
	response := &Response{Content: choice.Content}
	if len(choice.ToolCalls) > 0 {
		response.ToolCalls = make([]ToolCall, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			response.ToolCalls = append(response.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.FunctionCall.Name,
				Arguments: []byte(tc.FunctionCall.Arguments),
			})
		}
	}
	return response, nil
}
