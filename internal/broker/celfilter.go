package broker

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// celFilter wraps a compiled CEL program evaluated once per candidate
// envelope, both during replay and live delivery. When disabled, Eval always
// returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("topic", cel.StringType),
		cel.Variable("resource", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("workspace", cel.StringType),
		cel.Variable("sequence", cel.IntType),
		// Parsed JSON payload (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an envelope. When disabled,
// returns true. Evaluation errors drop the envelope rather than the
// subscriber.
func (f celFilter) Eval(e Envelope) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(e.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"topic":     e.Topic,
		"resource":  e.ResourceID,
		"kind":      string(e.Kind),
		"workspace": e.WorkspaceID,
		"sequence":  int64(e.Sequence),
		"json":      jsonObj,
		"now_ms":    time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
