package diagram

import "github.com/emberline/blueprint/pkg/schema"

// NodeKind classifies a diagram node by its action type.
type NodeKind string

const (
	NodeKindAction NodeKind = "action"
	NodeKindGate   NodeKind = "gate"
	NodeKindJoin   NodeKind = "join"
	NodeKindWait   NodeKind = "wait"
	NodeKindScript NodeKind = "script"
	NodeKindStart  NodeKind = "start"
	NodeKindEnd    NodeKind = "end"
)

// GraphModel is the intermediate representation used by the renderer.
// Control and data edges are kept apart so they can be styled
// differently.
type GraphModel struct {
	Title        string
	Nodes        []*Node
	ControlEdges []Edge
	DataEdges    []Edge
}

// Node represents a single action in the diagram. Phase is empty for a
// static render and carries the action's last observed phase when the
// model is built from a finished run.
type Node struct {
	ID    string
	Label string
	Kind  NodeKind
	Phase schema.ActionPhase
}

// Edge is a directed connection between two actions. For control edges
// the label is the transition condition; for data edges it names the
// port pair.
type Edge struct {
	From  string
	To    string
	Label string
}
