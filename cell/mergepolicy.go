package cell

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
)

// MergePolicy is a declarative alternative to a hand-written MergeFunc:
// a CEL expression compiled once against previous/current/applied and
// evaluated at commit time.
//
// A true result accepts applied unchanged; false declines the merge,
// exactly like a MergeFunc returning (zero, false).
type MergePolicy struct {
	prg cel.Program
}

// NewMergePolicy compiles expr once. expr sees three dyn variables:
// previous, current, applied.
func NewMergePolicy(expr string) (*MergePolicy, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("previous", decls.Dyn),
			decls.NewVar("current", decls.Dyn),
			decls.NewVar("applied", decls.Dyn),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("cell: building merge policy env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("cell: compiling merge policy %q: %w", expr, iss.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cell: building merge policy program: %w", err)
	}

	return &MergePolicy{prg: prg}, nil
}

// Accepts evaluates the policy. An evaluation error (for example an
// operator applied to values it has no overload for) and a non-boolean
// result are both reported as errors rather than silently treated as a
// decline.
func (p *MergePolicy) Accepts(previous, current, applied any) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{
		"previous": previous,
		"current":  current,
		"applied":  applied,
	})
	if err != nil {
		return false, fmt.Errorf("cell: evaluating merge policy: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cell: merge policy must evaluate to bool, got %T", out.Value())
	}
	return b, nil
}
