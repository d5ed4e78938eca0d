package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests and keyless local runs. Queued
// results are returned in order; once drained it falls back to an empty
// JSON object, which downstream parsers treat as "no structured reply".
type MockClient struct {
	mu       sync.Mutex
	queue    []mockResult
	requests []*Request
	fallback string
}

type mockResult struct {
	response *Response
	err      error
}

// NewMockClient builds a mock that replies with the given contents in order.
func NewMockClient(contents ...string) *MockClient {
	m := &MockClient{fallback: "{}"}
	for _, content := range contents {
		m.QueueContent(content)
	}
	return m
}

// QueueContent schedules a plain text reply.
func (m *MockClient) QueueContent(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{response: &Response{Content: content}})
}

// QueueToolCall schedules a reply consisting of a single tool call.
func (m *MockClient) QueueToolCall(name string, arguments string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{response: &Response{
		ToolCalls: []ToolCall{{ID: "call-1", Name: name, Arguments: []byte(arguments)}},
	}})
}

// QueueError schedules a failure.
func (m *MockClient) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{err: err})
}

// Requests returns the requests received so far.
func (m *MockClient) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, or nil.
func (m *MockClient) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// GenerateContent implements Client.
func (m *MockClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.queue) == 0 {
		return &Response{Content: m.fallback}, nil
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.response, nil
}

// Close implements Client.
func (m *MockClient) Close() error {
	return nil
}
