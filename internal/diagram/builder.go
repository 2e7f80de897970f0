package diagram

import (
	"fmt"

	"github.com/emberline/blueprint/pkg/schema"
	"github.com/emberline/blueprint/pkg/systems"
)

// Build constructs a GraphModel from a blueprint document. phases is an
// optional overlay keyed by action id, typically captured from a frame
// after a run; pass nil for a static render.
//
// Edges whose endpoints are not in the document are dropped, matching
// what the loader does with them.
func Build(doc *schema.BlueprintDocument, phases map[string]schema.ActionPhase) (*GraphModel, error) {
	if doc == nil {
		return nil, fmt.Errorf("diagram: nil document")
	}
	if len(doc.Actions) == 0 {
		return nil, fmt.Errorf("diagram: blueprint %q has no actions", doc.BlueprintID)
	}

	known := make(map[string]bool, len(doc.Actions))
	nodes := make([]*Node, 0, len(doc.Actions))
	for i := range doc.Actions {
		a := &doc.Actions[i]
		if known[a.ID] {
			continue
		}
		known[a.ID] = true
		nodes = append(nodes, &Node{
			ID:    a.ID,
			Label: nodeLabel(a),
			Kind:  typeKind(a.TypeID),
			Phase: phases[a.ID],
		})
	}

	control := make([]Edge, 0, len(doc.Transitions))
	for i := range doc.Transitions {
		t := &doc.Transitions[i]
		if !known[t.FromActionID] || !known[t.ToActionID] {
			continue
		}
		control = append(control, Edge{
			From:  t.FromActionID,
			To:    t.ToActionID,
			Label: conditionLabel(t.Condition),
		})
	}

	data := make([]Edge, 0, len(doc.DataConnections))
	for i := range doc.DataConnections {
		c := &doc.DataConnections[i]
		if !known[c.FromActionID] || !known[c.ToActionID] {
			continue
		}
		data = append(data, Edge{
			From:  c.FromActionID,
			To:    c.ToActionID,
			Label: fmt.Sprintf("%s->%s", c.FromPortID, c.ToPortID),
		})
	}

	return &GraphModel{
		Title:        titleFromDoc(doc),
		Nodes:        nodes,
		ControlEdges: control,
		DataEdges:    data,
	}, nil
}

// typeKind maps an action type id to a NodeKind. Unrecognized types
// render as plain actions.
func typeKind(typeID string) NodeKind {
	switch typeID {
	case schema.TypeStart:
		return NodeKindStart
	case schema.TypeEnd:
		return NodeKindEnd
	case schema.TypeJoin:
		return NodeKindJoin
	case systems.TypeGate:
		return NodeKindGate
	case systems.TypeDelay:
		return NodeKindWait
	case systems.TypeScript, systems.TypeQuery:
		return NodeKindScript
	default:
		return NodeKindAction
	}
}

// nodeLabel creates a human-readable label for a node. Start and End
// carry their type in the shape already, so the id alone is enough.
func nodeLabel(a *schema.ActionEntry) string {
	switch a.TypeID {
	case schema.TypeStart, schema.TypeEnd, "":
		return a.ID
	default:
		return fmt.Sprintf("%s\n(%s)", a.ID, a.TypeID)
	}
}

// conditionLabel renders a transition condition as an edge label.
// Immediate transitions stay unlabeled.
func conditionLabel(c schema.ConditionEntry) string {
	switch c.Type {
	case "", schema.ConditionImmediate:
		return ""
	case schema.ConditionCEL:
		return "cel: " + trimLabel(c.Expression)
	default:
		return trimLabel(c.Expression)
	}
}

// trimLabel keeps edge labels to a single short line.
func trimLabel(s string) string {
	s = firstLine(s)
	const max = 40
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// titleFromDoc generates a diagram title from blueprint metadata.
func titleFromDoc(doc *schema.BlueprintDocument) string {
	if doc.BlueprintName != "" {
		return doc.BlueprintName
	}
	if doc.BlueprintID != "" {
		return doc.BlueprintID
	}
	return "Blueprint"
}
