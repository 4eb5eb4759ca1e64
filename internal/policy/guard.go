// Package policy evaluates the OPA delete guard.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/birthmark/internal/telemetry"
)

// Query is the document a delete policy must define.
const Query = "data.birthmark.delete"

// DefaultPolicy denies requests without a kind or id.
const DefaultPolicy = `package birthmark.delete

default allow := false

allow if count(deny) == 0

deny contains "resource kind is required" if trim_space(input.kind) == ""

deny contains "resource id is required" if trim_space(input.id) == ""
`

// Request is the input document of a delete decision.
type Request struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Region string `json:"region,omitempty"`
}

// Decision is the evaluated guard result.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Guard holds a prepared delete policy.
type Guard struct {
	query  rego.PreparedEvalQuery
	source string
	logger *telemetry.Logger
	tracer trace.Tracer
}

// NewGuard compiles the policy in policyFile, or DefaultPolicy when empty.
func NewGuard(ctx context.Context, policyFile string) (*Guard, error) {
	name, module := "default.rego", DefaultPolicy
	if policyFile != "" {
		content, err := os.ReadFile(filepath.Clean(policyFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", policyFile, err)
		}
		name, module = filepath.Base(policyFile), string(content)
	}
	return NewGuardFromModule(ctx, name, module)
}

// NewGuardFromModule compiles a Rego module defining Query.
func NewGuardFromModule(ctx context.Context, name, module string) (*Guard, error) {
	prepared, err := rego.New(
		rego.Query(Query),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", name, err)
	}

	g := &Guard{
		query:  prepared,
		source: name,
		logger: telemetry.NewLogger("policy"),
		tracer: otel.Tracer("policy"),
	}
	g.logger.WithContext(ctx).Info().Str("policy", name).Msg("delete policy loaded")
	return g, nil
}

// Evaluate decides req. An undefined or malformed result denies.
func (g *Guard) Evaluate(ctx context.Context, req Request) (Decision, error) {
	ctx, span := g.tracer.Start(ctx, "policy.evaluate", trace.WithAttributes(
		attribute.String("resource.kind", req.Kind),
		attribute.String("policy.source", g.source),
	))
	defer span.End()

	input := map[string]any{"kind": req.Kind, "id": req.ID, "region": req.Region}
	results, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluation failed: %w", err)
	}

	decision := parseDecision(results)
	span.SetAttributes(attribute.Bool("policy.allowed", decision.Allowed))
	g.logger.WithContext(ctx).Debug().
		Str("kind", req.Kind).
		Str("id", req.ID).
		Bool("allowed", decision.Allowed).
		Strs("reasons", decision.Reasons).
		Msg("delete policy evaluated")
	return decision, nil
}

func parseDecision(results rego.ResultSet) Decision {
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reasons: []string{"policy result is undefined"}}
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{Reasons: []string{"policy result is not an object"}}
	}

	var d Decision
	d.Allowed, _ = doc["allow"].(bool)
	if deny, ok := doc["deny"].([]any); ok {
		for _, reason := range deny {
			if s, ok := reason.(string); ok {
				d.Reasons = append(d.Reasons, s)
			}
		}
	}
	sort.Strings(d.Reasons)
	if !d.Allowed && len(d.Reasons) == 0 {
		d.Reasons = []string{"denied by policy"}
	}
	return d
}
