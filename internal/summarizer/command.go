package summarizer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultCommand is the external summarizer binary used when none is set.
const DefaultCommand = "gmn"

// Command runs an external program that reads the instruction on stdin,
// takes context files as repeated -f flags and writes the result to stdout:
//
//	<binary> -f <system prompt file> -f <document file>...
type Command struct {
	Binary string
	// Args are passed before the -f flags, e.g. a model selector.
	Args []string
}

// NewCommand creates a command summarizer for binary.
func NewCommand(binary string, args ...string) *Command {
	if binary == "" {
		binary = DefaultCommand
	}
	return &Command{Binary: binary, Args: args}
}

// Summarize writes the system prompt and documents to a private temporary
// directory and invokes the binary on them.
func (c *Command) Summarize(ctx context.Context, req Request) (string, error) {
	dir, err := os.MkdirTemp("", "contextd-summarize-*")
	if err != nil {
		return "", &Error{Backend: c.Binary, Err: err}
	}
	defer os.RemoveAll(dir)

	systemFile := filepath.Join(dir, "system.txt")
	if err := os.WriteFile(systemFile, []byte(req.SystemPrompt), 0o600); err != nil {
		return "", &Error{Backend: c.Binary, Err: err}
	}

	args := append([]string{}, c.Args...)
	args = append(args, "-f", systemFile)
	for i, doc := range req.Documents {
		name := filepath.Base(doc.Name)
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = "document.txt"
		}
		p := filepath.Join(dir, fmt.Sprintf("%02d-%s", i, name))
		if err := os.WriteFile(p, []byte(doc.Content), 0o600); err != nil {
			return "", &Error{Backend: c.Binary, Err: err}
		}
		args = append(args, "-f", p)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Stdin = strings.NewReader(req.Instruction)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &Error{
			Backend:    c.Binary,
			Diagnostic: strings.TrimSpace(stderr.String()),
			Err:        err,
		}
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", &Error{Backend: c.Binary, Diagnostic: strings.TrimSpace(stderr.String()), Err: errEmptySummary}
	}
	return out, nil
}
