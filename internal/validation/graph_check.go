package validation

import (
	"fmt"

	"github.com/emberline/blueprint/pkg/schema"
)

// validateGraph performs reachability analysis: BFS from Start actions
// through transition edges, warning on anything that can never activate.
//
// Cycles are deliberately not flagged. Loops are normal in tick-based
// graphs (a Counter re-armed by its own downstream is a common pattern)
// and re-entry is handled by the phase machine, not the document.
func validateGraph(doc *schema.BlueprintDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	roots := make([]string, 0)
	for i := range doc.Actions {
		if doc.Actions[i].TypeID == schema.TypeStart {
			roots = append(roots, doc.Actions[i].ID)
		}
	}
	if len(roots) == 0 {
		// Semantic already warned; everything would be unreachable.
		return result
	}

	outgoing := make(map[string][]string, len(doc.Actions))
	for i := range doc.Transitions {
		tr := &doc.Transitions[i]
		outgoing[tr.FromActionID] = append(outgoing[tr.FromActionID], tr.ToActionID)
	}

	reachable := make(map[string]bool, len(doc.Actions))
	queue := make([]string, len(roots))
	copy(queue, roots)
	for _, r := range roots {
		reachable[r] = true
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range outgoing[node] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for i := range doc.Actions {
		a := &doc.Actions[i]
		if !reachable[a.ID] {
			result.AddWarning(fmt.Sprintf("Actions[%s]", a.ID),
				schema.ErrCodeValidation,
				fmt.Sprintf("action %q is unreachable from any Start action", a.ID))
		}
	}

	return result
}
