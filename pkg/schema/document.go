package schema

// BlueprintDocument is the static JSON export format produced by the editor
// pipeline. The runtime never mutates it; the loader flattens it into a Frame
// once and all execution state lives elsewhere.
type BlueprintDocument struct {
	BlueprintID     string                `json:"BlueprintId"`
	BlueprintName   string                `json:"BlueprintName,omitempty"`
	Actions         []ActionEntry         `json:"Actions"`
	Transitions     []TransitionEntry     `json:"Transitions,omitempty"`
	DataConnections []DataConnectionEntry `json:"DataConnections,omitempty"`
	Variables       []VariableDeclaration `json:"Variables,omitempty"`
}

// ActionEntry describes one node instance in the exported graph.
type ActionEntry struct {
	ID            string          `json:"Id"`
	TypeID        string          `json:"TypeId"`
	Properties    []PropertyEntry `json:"Properties,omitempty"`
	SceneBindings []string        `json:"SceneBindings,omitempty"`
	PortDefaults  []PortDefault   `json:"PortDefaults,omitempty"`
}

// Property returns the raw string value for key, or "" when absent.
func (a *ActionEntry) Property(key string) (string, bool) {
	for i := range a.Properties {
		if a.Properties[i].Key == key {
			return a.Properties[i].Value, true
		}
	}
	return "", false
}

// PropertyEntry is a single key/value pair on an action. Values are
// string-encoded end-to-end; ValueType is an editor hint, not enforced here.
type PropertyEntry struct {
	Key       string `json:"Key"`
	ValueType string `json:"ValueType,omitempty"`
	Value     string `json:"Value"`
}

// PortDefault is the fallback value for an unconnected input port.
type PortDefault struct {
	PortID       string `json:"PortId"`
	DefaultValue string `json:"DefaultValue"`
}

// TransitionEntry is a directed control-flow edge between two actions' ports.
type TransitionEntry struct {
	FromActionID string         `json:"FromActionId"`
	FromPortID   string         `json:"FromPortId,omitempty"`
	ToActionID   string         `json:"ToActionId"`
	ToPortID     string         `json:"ToPortId,omitempty"`
	Condition    ConditionEntry `json:"Condition,omitempty"`
}

// ConditionEntry gates a transition. Type selects the evaluation strategy;
// Expression carries the source for expression-backed kinds.
type ConditionEntry struct {
	Type       string `json:"Type,omitempty"`
	Expression string `json:"Expression,omitempty"`
}

// Condition kinds understood by the router. Unrecognized kinds evaluate to
// true with a logged warning, which keeps old runtimes permissive when the
// editor grows new condition types.
const (
	ConditionImmediate  = "Immediate"
	ConditionExpression = "Expression"
	ConditionCEL        = "CEL"
)

// DataConnectionEntry is a directed data-flow edge, independent of control
// flow: the consumer pulls the producer's last published value.
type DataConnectionEntry struct {
	FromActionID string `json:"FromActionId"`
	FromPortID   string `json:"FromPortId"`
	ToActionID   string `json:"ToActionId"`
	ToPortID     string `json:"ToPortId"`
}

// VariableDeclaration seeds a blackboard slot at load time.
type VariableDeclaration struct {
	Index        int    `json:"Index"`
	Name         string `json:"Name"`
	Type         string `json:"Type"`
	Scope        string `json:"Scope"`
	InitialValue string `json:"InitialValue,omitempty"`
}

// Variable value types.
const (
	VariableInt    = "Int"
	VariableFloat  = "Float"
	VariableBool   = "Bool"
	VariableString = "String"
)

// Variable scopes.
const (
	ScopeLocal  = "Local"
	ScopeGlobal = "Global"
)

// Action type ids the engine itself knows about. Everything else is routed to
// whichever registered System claims the type.
const (
	TypeStart = "Start"
	TypeEnd   = "End"
	TypeJoin  = "Join"
)

// PropJoinCount is the Join property naming how many distinct inbound
// activations are required before the node runs. Defaults to 1 when absent.
const PropJoinCount = "inEdgeCount"
