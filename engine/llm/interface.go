package llm

import (
	"context"
	"encoding/json"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// ToolDefinition declares a function the model may call. Structured asks
// (intent classification, parameter extraction) are expressed as a single
// forced tool call so the reply comes back as JSON arguments.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// ToolCall is a function invocation emitted by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// CallOptions tunes a single generation.
type CallOptions struct {
	Temperature float64
	MaxTokens   int32
	// UseJSONMode asks the provider for a JSON-only reply. Ignored when
	// tools are supplied.
	UseJSONMode bool
	// ToolChoice forces a specific tool ("auto", "none" or a tool name).
	ToolChoice string
}

// Request is a provider-independent generation request.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	Options      CallOptions
}

// Response is a provider-independent generation result.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Client generates model responses. Implementations must be safe for
// concurrent use.
type Client interface {
	GenerateContent(ctx context.Context, req *Request) (*Response, error)
	Close() error
}
