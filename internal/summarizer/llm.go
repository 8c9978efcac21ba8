package summarizer

import (
	"context"
	"errors"
	"strings"

	"github.com/szaher/contextd/internal/llm"
)

// Default model settings for LLM.
const (
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultMaxTokens = 4096
)

var errEmptySummary = errors.New("empty summary")

// LLM summarizes through an llm.Client.
type LLM struct {
	client    llm.Client
	model     string
	maxTokens int
}

// NewLLM creates an LLM summarizer. Empty model and non-positive maxTokens
// fall back to the defaults.
func NewLLM(client llm.Client, model string, maxTokens int) *LLM {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &LLM{client: client, model: model, maxTokens: maxTokens}
}

// Summarize sends the instruction and documents as one user message with the
// system prompt as the model's system text.
func (s *LLM) Summarize(ctx context.Context, req Request) (string, error) {
	resp, err := s.client.Chat(ctx, llm.ChatRequest{
		Model:     s.model,
		System:    req.SystemPrompt,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: renderPrompt(req)}},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return "", &Error{Backend: "llm", Diagnostic: err.Error(), Err: err}
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", &Error{Backend: "llm", Diagnostic: "stop_reason=" + string(resp.StopReason), Err: errEmptySummary}
	}
	return out, nil
}

func renderPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.Instruction)
	for _, doc := range req.Documents {
		b.WriteString("\n\n<document name=\"")
		b.WriteString(doc.Name)
		b.WriteString("\">\n")
		b.WriteString(doc.Content)
		if !strings.HasSuffix(doc.Content, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString("</document>")
	}
	return b.String()
}
