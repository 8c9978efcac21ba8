package summarizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/szaher/contextd/internal/llm"
)

func TestErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("exit status 1")
	err := error(&Error{Backend: "gmn", Diagnostic: "quota exceeded", Err: cause})

	if !errors.Is(err, ErrSummarization) {
		t.Error("errors.Is(err, ErrSummarization) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	for _, want := range []string{"gmn", "exit status 1", "quota exceeded"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error() = %q, missing %q", err.Error(), want)
		}
	}
}

func TestFunc(t *testing.T) {
	var s Summarizer = Func(func(_ context.Context, req Request) (string, error) {
		return strings.ToUpper(req.Instruction), nil
	})
	out, err := s.Summarize(context.Background(), Request{Instruction: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "ABC" {
		t.Errorf("out = %q", out)
	}
}

func TestLLMSummarize(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Content: "  [2024-01-01] greeting: alice said hi\n"})
	s := NewLLM(mock, "claude-test", 512)

	out, err := s.Summarize(context.Background(), Request{
		SystemPrompt: "You are a helpful assistant.",
		Instruction:  CompactionInstruction,
		Documents:    []Document{{Name: "current.txt", Content: "[t1] alice: hi\n"}},
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "[2024-01-01] greeting: alice said hi" {
		t.Errorf("out = %q", out)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	req := calls[0]
	if req.Model != "claude-test" || req.MaxTokens != 512 {
		t.Errorf("model/max_tokens = %q/%d", req.Model, req.MaxTokens)
	}
	if req.System != "You are a helpful assistant." {
		t.Errorf("System = %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("Messages = %+v", req.Messages)
	}
	body := req.Messages[0].Content
	if !strings.HasPrefix(body, CompactionInstruction) {
		t.Errorf("prompt should start with the instruction: %q", body)
	}
	if !strings.Contains(body, "<document name=\"current.txt\">\n[t1] alice: hi\n</document>") {
		t.Errorf("prompt missing document: %q", body)
	}
}

func TestLLMDefaults(t *testing.T) {
	s := NewLLM(llm.NewMockClient(), "", 0)
	if s.model != DefaultModel {
		t.Errorf("model = %q, want %q", s.model, DefaultModel)
	}
	if s.maxTokens != DefaultMaxTokens {
		t.Errorf("maxTokens = %d, want %d", s.maxTokens, DefaultMaxTokens)
	}
}

func TestLLMSummarizeErrors(t *testing.T) {
	tests := []struct {
		name     string
		response llm.MockResponse
		wantDiag string
	}{
		{
			name:     "client error",
			response: llm.MockResponse{Error: errors.New("overloaded")},
			wantDiag: "overloaded",
		},
		{
			name:     "empty response",
			response: llm.MockResponse{Content: "   ", StopReason: llm.StopMaxTokens},
			wantDiag: "stop_reason=max_tokens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLLM(llm.NewMockClient(tt.response), "m", 10)
			_, err := s.Summarize(context.Background(), Request{Instruction: "x"})
			if !errors.Is(err, ErrSummarization) {
				t.Fatalf("err = %v, want ErrSummarization", err)
			}
			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if se.Diagnostic != tt.wantDiag {
				t.Errorf("Diagnostic = %q, want %q", se.Diagnostic, tt.wantDiag)
			}
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	p := filepath.Join(t.TempDir(), "fake-summarizer")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCommandSummarize(t *testing.T) {
	// Echo stdin, then every -f file in order.
	script := writeScript(t, `
cat
echo
while [ $# -gt 0 ]; do
  if [ "$1" = "-f" ]; then
    shift
    printf '<%s>' "$(cat "$1")"
  fi
  shift
done
echo
`)
	s := NewCommand(script)

	out, err := s.Summarize(context.Background(), Request{
		SystemPrompt: "SYS",
		Instruction:  "INSTR",
		Documents:    []Document{{Name: "current.txt", Content: "LOG"}},
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "INSTR\n<SYS><LOG>" {
		t.Errorf("out = %q", out)
	}
}

func TestCommandSummarizeFailure(t *testing.T) {
	script := writeScript(t, "echo 'quota exceeded' >&2\nexit 3\n")
	s := NewCommand(script)

	_, err := s.Summarize(context.Background(), Request{Instruction: "x"})
	if !errors.Is(err, ErrSummarization) {
		t.Fatalf("err = %v, want ErrSummarization", err)
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if se.Diagnostic != "quota exceeded" {
		t.Errorf("Diagnostic = %q", se.Diagnostic)
	}
}

func TestCommandSummarizeMissingBinary(t *testing.T) {
	s := NewCommand(filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := s.Summarize(context.Background(), Request{Instruction: "x"})
	if !errors.Is(err, ErrSummarization) {
		t.Fatalf("err = %v, want ErrSummarization", err)
	}
}

func TestCommandEmptyOutput(t *testing.T) {
	script := writeScript(t, "exit 0\n")
	_, err := NewCommand(script).Summarize(context.Background(), Request{Instruction: "x"})
	if !errors.Is(err, errEmptySummary) {
		t.Fatalf("err = %v, want errEmptySummary", err)
	}
}

func TestNewCommandDefault(t *testing.T) {
	if c := NewCommand(""); c.Binary != DefaultCommand {
		t.Errorf("Binary = %q, want %q", c.Binary, DefaultCommand)
	}
}
