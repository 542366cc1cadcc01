package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"time"
)

// CLI runs the claude command-line client in print mode with a JSON schema
// and reads the structured output from its JSON envelope.
type CLI struct {
	Path    string
	Timeout time.Duration
}

func NewCLI(path string) *CLI {
	if path == "" {
		path = "claude"
	}
	return &CLI{Path: path, Timeout: DefaultTimeout}
}

type envelope struct {
	StructuredOutput json.RawMessage `json:"structured_output"`
	Result           string          `json:"result"`
	IsError          bool            `json:"is_error"`
}

func (c *CLI) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	schema, err := json.Marshal(req.Schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-p", req.Prompt,
		"--json-schema", string(schema),
		"--model", req.Model,
		"--output-format", "json",
		"--permission-mode", "default",
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}

	cmd := exec.CommandContext(ctx, c.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			log.Printf("engine: %s stderr: %s", c.Path, clip(stderr.String(), 500))
		}
		return nil, fmt.Errorf("run %s: %w", c.Path, err)
	}
	return parseEnvelope(stdout.Bytes())
}

func parseEnvelope(out []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(out, &env); err != nil {
		log.Printf("engine: non-JSON output: %s", clip(string(out), 500))
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if env.IsError {
		return nil, &ReportedError{Message: env.Result}
	}
	if len(env.StructuredOutput) == 0 || string(env.StructuredOutput) == "null" {
		return nil, fmt.Errorf("%w: envelope has no structured_output", ErrMalformedOutput)
	}
	return env.StructuredOutput, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
