// Package engine is the boundary to the language model that judges skills.
// Implementations take a prompt plus a JSON schema and return one JSON
// object conforming to it.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Request struct {
	Prompt       string
	SystemPrompt string
	// SchemaName names the structured output, e.g. "scan_result".
	SchemaName string
	Schema     map[string]any
	Model      string
}

type Engine interface {
	Invoke(ctx context.Context, req Request) (json.RawMessage, error)
}

// ErrMalformedOutput means the engine answered but the answer could not be
// read as the requested structure.
var ErrMalformedOutput = errors.New("malformed engine output")

// ReportedError is an error the engine itself signalled.
type ReportedError struct {
	Message string
}

func (e *ReportedError) Error() string {
	return fmt.Sprintf("engine reported an error: %s", e.Message)
}

// DefaultTimeout bounds one engine call.
const DefaultTimeout = 10 * time.Minute

const (
	ModelOpus   = "claude-opus-4-1-20250805"
	ModelSonnet = "claude-sonnet-4-5-20250929"
	ModelHaiku  = "claude-3-5-haiku-20241022"
)

// ResolveModel maps the short aliases accepted on the command line to model
// identifiers. Anything else is passed through.
func ResolveModel(alias string) string {
	switch alias {
	case "", "sonnet":
		return ModelSonnet
	case "opus":
		return ModelOpus
	case "haiku":
		return ModelHaiku
	default:
		return alias
	}
}
