package expressions

import "context"

// Engine evaluates an expression against the condition scope built from a
// frame (vars, globals, source action, tick). Two implementations back the
// transition condition kinds: Expr and CEL. The jq engine is separate; it
// transforms arbitrary JSON values, not scope maps.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
