package llm

import (
	"context"
	"errors"
	"sync"
)

// errNoReplies is returned by a MockClient built without any replies.
var errNoReplies = errors.New("mock: no replies scripted")

// MockResponse is one scripted reply. A non-nil Error fails the call.
type MockResponse struct {
	Content    string
	StopReason StopReason
	Usage      TokenUsage
	Error      error
}

// MockClient replays scripted replies in order and records each request,
// so summarizer tests can check the prompt they sent without a network.
// The final reply is reused once the script runs out.
type MockClient struct {
	mu      sync.Mutex
	replies []MockResponse
	next    int
	calls   []ChatRequest
}

// NewMockClient returns a client that answers with replies.
func NewMockClient(replies ...MockResponse) *MockClient {
	return &MockClient{replies: replies}
}

// Chat records req and answers with the next scripted reply.
func (m *MockClient) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)
	if len(m.replies) == 0 {
		return nil, errNoReplies
	}

	r := m.replies[min(m.next, len(m.replies)-1)]
	if m.next < len(m.replies) {
		m.next++
	}
	if r.Error != nil {
		return nil, r.Error
	}
	if r.StopReason == "" {
		r.StopReason = StopEndTurn
	}
	return &ChatResponse{Content: r.Content, StopReason: r.StopReason, Usage: r.Usage}, nil
}

// Calls returns a copy of the requests seen so far.
func (m *MockClient) Calls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.calls...)
}
