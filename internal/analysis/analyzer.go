// Package analysis turns code plus pre-scan context into a consistent
// per-skill verdict using an injected engine.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/yourorg/skill-scanner/internal/engine"
	"github.com/yourorg/skill-scanner/internal/model"
)

type Analyzer struct {
	Engine engine.Engine
	Model  string
}

func New(e engine.Engine, model string) *Analyzer {
	return &Analyzer{Engine: e, Model: model}
}

// Analyze runs one engine call for t and returns the enforced verdict.
// Engine failures are returned as-is and are not retried.
func (a *Analyzer) Analyze(ctx context.Context, t Target) (*model.ScanOutput, error) {
	raw, err := a.Engine.Invoke(ctx, engine.Request{
		Prompt:       Prompt(t),
		SystemPrompt: SystemPrompt(),
		SchemaName:   SchemaName,
		Schema:       ScanSchema(),
		Model:        a.Model,
	})
	if err != nil {
		return nil, err
	}
	out, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	out.Corrections = Enforce(out)
	return out, nil
}

// Decode parses a raw engine verdict, rejecting output that lacks the
// fields every later stage depends on.
func Decode(raw json.RawMessage) (*model.ScanOutput, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrMalformedOutput, err)
	}
	for _, k := range []string{"trust_status", "risk_score", "intent"} {
		v, ok := probe[k]
		if !ok || bytes.Equal(v, []byte("null")) {
			return nil, fmt.Errorf("%w: missing %s", engine.ErrMalformedOutput, k)
		}
	}
	var out model.ScanOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrMalformedOutput, err)
	}
	if !slices.Contains([]string{model.IntentBenign, model.IntentRisky, model.IntentMalicious}, out.Intent) {
		return nil, fmt.Errorf("%w: unknown intent %q", engine.ErrMalformedOutput, out.Intent)
	}
	return &out, nil
}
