package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic calls the Messages API and forces a single tool whose input
// schema is the requested structure; the tool input is the result.
type Anthropic struct {
	client    anthropic.Client
	MaxTokens int64
	Timeout   time.Duration
}

// NewAnthropic disables the SDK's own retries: a failed model call surfaces
// to the caller after one request.
func NewAnthropic(apiKey string, opts ...option.RequestOption) *Anthropic {
	all := append([]option.RequestOption{option.WithMaxRetries(0), option.WithAPIKey(apiKey)}, opts...)
	return &Anthropic{
		client:    anthropic.NewClient(all...),
		MaxTokens: 8192,
		Timeout:   DefaultTimeout,
	}
}

func (a *Anthropic) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := req.SchemaName
	if name == "" {
		name = "structured_output"
	}
	props, _ := req.Schema["properties"].(map[string]any)
	required := stringList(req.Schema["required"])
	tool := anthropic.ToolParam{
		Name:        name,
		Description: anthropic.String("Record the result. Call exactly once with the complete result."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: props,
			Required:   required,
		},
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(ResolveModel(req.Model)),
		MaxTokens: a.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Tools:      []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: name}},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("messages API: %w", err)
	}

	for _, block := range resp.Content {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok && tu.Name == name {
			if !json.Valid(tu.Input) {
				return nil, fmt.Errorf("%w: tool input is not JSON", ErrMalformedOutput)
			}
			return tu.Input, nil
		}
	}
	if resp.StopReason == "refusal" {
		return nil, &ReportedError{Message: "model refused the request"}
	}
	return nil, fmt.Errorf("%w: no %s tool call (stop reason %s)", ErrMalformedOutput, name, resp.StopReason)
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
