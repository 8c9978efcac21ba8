// Package summarizer condenses conversation text into a shorter summary.
//
// The compaction sweep depends only on the Summarizer interface; backends
// wrap a language-model client or an external command.
package summarizer

import (
	"context"
	"errors"
	"fmt"
)

// CompactionInstruction asks the model to fold a live log into dated,
// topic-tagged context worth keeping.
const CompactionInstruction = "Condense the following conversation log into the decisions, shared information, and context that must be retained for the following days. " +
	"Write one dated, topic-tagged line per item using the format: [YYYY-MM-DD] topic: content"

// Document is one named piece of context handed to the summarizer.
type Document struct {
	Name    string
	Content string
}

// Request is a single summarization call.
type Request struct {
	SystemPrompt string
	Instruction  string
	Documents    []Document
}

// Summarizer produces condensed text for a request.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// Func adapts an ordinary function to the Summarizer interface.
type Func func(ctx context.Context, req Request) (string, error)

// Summarize calls f.
func (f Func) Summarize(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrSummarization matches every *Error.
var ErrSummarization = errors.New("summarization failed")

// Error reports a failed summarization. Diagnostic carries whatever the
// backend reported (stderr, API message) for operators.
type Error struct {
	Backend    string
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("summarize via %s", e.Backend)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += " (" + e.Diagnostic + ")"
	}
	return msg
}

// Unwrap exposes ErrSummarization and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSummarization}
	}
	return []error{ErrSummarization, e.Err}
}
