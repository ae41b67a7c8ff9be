package gateway

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

// RegoPolicy is an optional admission layer evaluated after the static
// filter. The query is data.admission.allow with the event as input.
type RegoPolicy struct {
	query *rego.PreparedEvalQuery
}

// NewRegoPolicy loads all .rego files from policyDir and prepares the
// admission query. An empty directory yields a nil policy, which admits
// everything.
func NewRegoPolicy(ctx context.Context, policyDir string) (*RegoPolicy, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.admission.allow"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare admission query")
	}

	return &RegoPolicy{query: &prepared}, nil
}

// Allow evaluates the admission query against the event. A nil policy admits
// everything. An undefined result denies.
func (p *RegoPolicy) Allow(ctx context.Context, ev *model.Event) (bool, error) {
	if p == nil || p.query == nil {
		return true, nil
	}

	// Round-trip through JSON so the policy sees plain maps.
	raw, err := json.Marshal(ev)
	if err != nil {
		return false, goerr.Wrap(err, "failed to encode event for policy")
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return false, goerr.Wrap(err, "failed to decode event for policy")
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate admission policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}
