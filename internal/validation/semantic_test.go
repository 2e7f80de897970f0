package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberline/blueprint/internal/expressions"
	"github.com/emberline/blueprint/pkg/schema"
)

// stubTypes is a TypeLookup backed by a fixed set.
type stubTypes map[string]bool

func (s stubTypes) Has(typeID string) bool { return s[typeID] }

func newSemanticEngines(t *testing.T) (*expressions.ExprEngine, *expressions.CELEngine) {
	t.Helper()
	celEngine, err := expressions.NewCELEngine()
	require.NoError(t, err)
	return expressions.NewExprEngine(), celEngine
}

func runSemantic(t *testing.T, doc *schema.BlueprintDocument, types TypeLookup) *schema.ValidationResult {
	t.Helper()
	exprEngine, celEngine := newSemanticEngines(t)
	return validateSemantic(doc, types, exprEngine, celEngine)
}

func twoActionDoc() *schema.BlueprintDocument {
	return &schema.BlueprintDocument{
		BlueprintID: "bp-sem",
		Actions: []schema.ActionEntry{
			{ID: "start", TypeID: schema.TypeStart},
			{ID: "end", TypeID: schema.TypeEnd},
		},
		Transitions: []schema.TransitionEntry{
			{FromActionID: "start", ToActionID: "end"},
		},
	}
}

// --- Action checks ---

func TestSemantic_ValidDoc(t *testing.T) {
	result := runSemantic(t, twoActionDoc(), nil)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestSemantic_DuplicateActionID(t *testing.T) {
	doc := twoActionDoc()
	doc.Actions = append(doc.Actions, schema.ActionEntry{ID: "start", TypeID: "Delay"})

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "duplicate action id")
}

func TestSemantic_UnregisteredType(t *testing.T) {
	doc := twoActionDoc()
	types := stubTypes{schema.TypeStart: true, schema.TypeEnd: true}
	doc.Actions = append(doc.Actions, schema.ActionEntry{ID: "x", TypeID: "Teleport"})
	doc.Transitions = append(doc.Transitions, schema.TransitionEntry{FromActionID: "end", ToActionID: "x"})

	result := runSemantic(t, doc, types)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, `no registered system handles type "Teleport"`)
}

func TestSemantic_NilLookupSkipsTypeCheck(t *testing.T) {
	doc := twoActionDoc()
	doc.Actions = append(doc.Actions, schema.ActionEntry{ID: "x", TypeID: "Teleport"})
	doc.Transitions = append(doc.Transitions, schema.TransitionEntry{FromActionID: "end", ToActionID: "x"})

	result := runSemantic(t, doc, nil)
	assert.Empty(t, result.Warnings)
}

func TestSemantic_NoStartWarning(t *testing.T) {
	doc := &schema.BlueprintDocument{
		BlueprintID: "bp-nostart",
		Actions: []schema.ActionEntry{
			{ID: "end", TypeID: schema.TypeEnd},
		},
	}

	result := runSemantic(t, doc, nil)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "no Start action")
}

// --- Property checks ---

func TestSemantic_PropertyValueMismatch(t *testing.T) {
	doc := twoActionDoc()
	doc.Actions[0].Properties = []schema.PropertyEntry{
		{Key: "ticks", ValueType: schema.VariableInt, Value: "three"},
	}

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "does not decode as Int")
}

func TestSemantic_PropertyWithoutValueTypeSkipped(t *testing.T) {
	doc := twoActionDoc()
	doc.Actions[0].Properties = []schema.PropertyEntry{
		{Key: "label", Value: "anything goes"},
	}

	result := runSemantic(t, doc, nil)
	assert.True(t, result.Valid())
}

func TestSemantic_JoinCountNotInteger(t *testing.T) {
	doc := twoActionDoc()
	doc.Actions = append(doc.Actions, schema.ActionEntry{
		ID:     "join",
		TypeID: schema.TypeJoin,
		Properties: []schema.PropertyEntry{
			{Key: schema.PropJoinCount, Value: "many"},
		},
	})
	doc.Transitions = append(doc.Transitions, schema.TransitionEntry{FromActionID: "start", ToActionID: "join"})

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "inEdgeCount")
}

func TestSemantic_JoinCountValid(t *testing.T) {
	doc := twoActionDoc()
	doc.Actions = append(doc.Actions, schema.ActionEntry{
		ID:     "join",
		TypeID: schema.TypeJoin,
		Properties: []schema.PropertyEntry{
			{Key: schema.PropJoinCount, ValueType: schema.VariableInt, Value: "2"},
		},
	})
	doc.Transitions = append(doc.Transitions, schema.TransitionEntry{FromActionID: "start", ToActionID: "join"})

	result := runSemantic(t, doc, nil)
	assert.True(t, result.Valid())
}

// --- Transition endpoint checks ---

func TestSemantic_TransitionUnknownFrom(t *testing.T) {
	doc := twoActionDoc()
	doc.Transitions = append(doc.Transitions, schema.TransitionEntry{FromActionID: "ghost", ToActionID: "end"})

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, `non-existent action "ghost"`)
}

func TestSemantic_TransitionUnknownTo(t *testing.T) {
	doc := twoActionDoc()
	doc.Transitions = append(doc.Transitions, schema.TransitionEntry{FromActionID: "start", ToActionID: "ghost"})

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
}

// --- Data connection checks (warnings only) ---

func TestSemantic_DanglingDataConnectionWarns(t *testing.T) {
	doc := twoActionDoc()
	doc.DataConnections = []schema.DataConnectionEntry{
		{FromActionID: "ghost", FromPortID: "out", ToActionID: "end", ToPortID: "in"},
	}

	result := runSemantic(t, doc, nil)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "will be dropped")
}

// --- Condition checks ---

func TestSemantic_ConditionImmediatePasses(t *testing.T) {
	doc := twoActionDoc()
	doc.Transitions[0].Condition = schema.ConditionEntry{Type: schema.ConditionImmediate}

	result := runSemantic(t, doc, nil)
	assert.True(t, result.Valid())
}

func TestSemantic_ConditionExpressionCompiles(t *testing.T) {
	doc := twoActionDoc()
	doc.Transitions[0].Condition = schema.ConditionEntry{
		Type:       schema.ConditionExpression,
		Expression: "vars.alarmLevel >= 2",
	}

	result := runSemantic(t, doc, nil)
	assert.True(t, result.Valid())
}

func TestSemantic_ConditionExpressionBroken(t *testing.T) {
	doc := twoActionDoc()
	doc.Transitions[0].Condition = schema.ConditionEntry{
		Type:       schema.ConditionExpression,
		Expression: "vars.((broken",
	}

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "does not compile")
}

func TestSemantic_ConditionCELBroken(t *testing.T) {
	doc := twoActionDoc()
	doc.Transitions[0].Condition = schema.ConditionEntry{
		Type:       schema.ConditionCEL,
		Expression: "tick >>>",
	}

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
}

func TestSemantic_ConditionEmptyExpressionIsError(t *testing.T) {
	doc := twoActionDoc()
	doc.Transitions[0].Condition = schema.ConditionEntry{Type: schema.ConditionExpression}

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
}

func TestSemantic_ConditionUnknownTypeWarns(t *testing.T) {
	doc := twoActionDoc()
	doc.Transitions[0].Condition = schema.ConditionEntry{Type: "Lua", Expression: "return true"}

	result := runSemantic(t, doc, nil)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "unknown condition type")
}

// --- Variable checks ---

func TestSemantic_DuplicateVariableIndex(t *testing.T) {
	doc := twoActionDoc()
	doc.Variables = []schema.VariableDeclaration{
		{Index: 3, Name: "a", Type: schema.VariableInt, Scope: schema.ScopeLocal},
		{Index: 3, Name: "b", Type: schema.VariableInt, Scope: schema.ScopeLocal},
	}

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "index 3 already used")
}

func TestSemantic_DuplicateVariableNameSameScope(t *testing.T) {
	doc := twoActionDoc()
	doc.Variables = []schema.VariableDeclaration{
		{Index: 0, Name: "hp", Type: schema.VariableInt, Scope: schema.ScopeLocal},
		{Index: 1, Name: "hp", Type: schema.VariableInt, Scope: schema.ScopeLocal},
	}

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "duplicate Local variable")
}

func TestSemantic_SameNameDifferentScopeAllowed(t *testing.T) {
	doc := twoActionDoc()
	doc.Variables = []schema.VariableDeclaration{
		{Index: 0, Name: "hp", Type: schema.VariableInt, Scope: schema.ScopeLocal},
		{Index: 1, Name: "hp", Type: schema.VariableInt, Scope: schema.ScopeGlobal},
	}

	result := runSemantic(t, doc, nil)
	assert.True(t, result.Valid())
}

func TestSemantic_BadInitialValue(t *testing.T) {
	doc := twoActionDoc()
	doc.Variables = []schema.VariableDeclaration{
		{Index: 0, Name: "armed", Type: schema.VariableBool, Scope: schema.ScopeLocal, InitialValue: "maybe"},
	}

	result := runSemantic(t, doc, nil)
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "does not decode as Bool")
}

func TestSemantic_EmptyInitialValueSkipsDecode(t *testing.T) {
	doc := twoActionDoc()
	doc.Variables = []schema.VariableDeclaration{
		{Index: 0, Name: "armed", Type: schema.VariableBool, Scope: schema.ScopeLocal},
	}

	result := runSemantic(t, doc, nil)
	assert.True(t, result.Valid())
}

func TestSemantic_VariableIndexInOutputNamespace(t *testing.T) {
	doc := twoActionDoc()
	doc.Variables = []schema.VariableDeclaration{
		{Index: 10500, Name: "collide", Type: schema.VariableInt, Scope: schema.ScopeLocal},
	}

	result := runSemantic(t, doc, nil)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "reserved output namespace")
}
