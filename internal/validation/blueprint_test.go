package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberline/blueprint/pkg/schema"
)

func newTestValidator(t *testing.T, lookup TypeLookup) *DocumentValidator {
	t.Helper()
	dv, err := NewDocumentValidator(lookup)
	require.NoError(t, err)
	return dv
}

func TestDocumentValidator_ValidDocument(t *testing.T) {
	dv := newTestValidator(t, nil)

	doc := &schema.BlueprintDocument{
		BlueprintID: "bp-full",
		Actions: []schema.ActionEntry{
			{ID: "start", TypeID: schema.TypeStart},
			{ID: "end", TypeID: schema.TypeEnd},
		},
		Transitions: []schema.TransitionEntry{
			{FromActionID: "start", ToActionID: "end"},
		},
	}

	result := dv.Validate(doc)
	assert.True(t, result.Valid())
	assert.NoError(t, dv.ValidateDocument(doc))
}

func TestDocumentValidator_NilDocument(t *testing.T) {
	dv := newTestValidator(t, nil)

	result := dv.Validate(nil)
	assert.False(t, result.Valid())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "nil")
}

func TestDocumentValidator_StructuralShortCircuit(t *testing.T) {
	dv := newTestValidator(t, nil)

	// Missing BlueprintId (structural) and a dangling transition
	// (semantic). Only the structural error should surface.
	doc := &schema.BlueprintDocument{
		Actions: []schema.ActionEntry{
			{ID: "start", TypeID: schema.TypeStart},
		},
		Transitions: []schema.TransitionEntry{
			{FromActionID: "start", ToActionID: "ghost"},
		},
	}

	result := dv.Validate(doc)
	assert.False(t, result.Valid())
	for _, issue := range result.Errors {
		assert.NotContains(t, issue.Message, "ghost")
	}
}

func TestDocumentValidator_SemanticErrorsSkipGraph(t *testing.T) {
	dv := newTestValidator(t, nil)

	// Dangling transition endpoint plus an unreachable action. The
	// graph stage is skipped, so no unreachability warning appears.
	doc := &schema.BlueprintDocument{
		BlueprintID: "bp-skip",
		Actions: []schema.ActionEntry{
			{ID: "start", TypeID: schema.TypeStart},
			{ID: "orphan", TypeID: "Delay"},
		},
		Transitions: []schema.TransitionEntry{
			{FromActionID: "start", ToActionID: "ghost"},
		},
	}

	result := dv.Validate(doc)
	assert.False(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestDocumentValidator_TypeLookupWired(t *testing.T) {
	dv := newTestValidator(t, stubTypes{schema.TypeStart: true})

	doc := &schema.BlueprintDocument{
		BlueprintID: "bp-types",
		Actions: []schema.ActionEntry{
			{ID: "start", TypeID: schema.TypeStart},
			{ID: "warp", TypeID: "Warp"},
		},
		Transitions: []schema.TransitionEntry{
			{FromActionID: "start", ToActionID: "warp"},
		},
	}

	result := dv.Validate(doc)
	assert.True(t, result.Valid())
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0].Message, "Warp")
}

func TestDocumentValidator_ValidateDocumentToError(t *testing.T) {
	dv := newTestValidator(t, nil)

	doc := &schema.BlueprintDocument{
		BlueprintID: "bp-err",
		Actions: []schema.ActionEntry{
			{ID: "a", TypeID: schema.TypeStart},
			{ID: "a", TypeID: schema.TypeEnd},
		},
	}

	err := dv.ValidateDocument(doc)
	require.Error(t, err)

	var berr *schema.BlueprintError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, schema.ErrCodeValidation, berr.Code)
}

// --- ValidateBytes ---

func TestValidateBytes_Valid(t *testing.T) {
	dv := newTestValidator(t, nil)

	raw := []byte(`{
		"BlueprintId": "bp-bytes",
		"Actions": [
			{"Id": "start", "TypeId": "Start"},
			{"Id": "end", "TypeId": "End"}
		],
		"Transitions": [
			{"FromActionId": "start", "ToActionId": "end"}
		]
	}`)

	doc, result := dv.ValidateBytes(raw)
	require.NotNil(t, doc)
	assert.True(t, result.Valid())
	assert.Equal(t, "bp-bytes", doc.BlueprintID)
	assert.Len(t, doc.Actions, 2)
}

func TestValidateBytes_InvalidJSON(t *testing.T) {
	dv := newTestValidator(t, nil)

	doc, result := dv.ValidateBytes([]byte(`{broken`))
	assert.Nil(t, doc)
	assert.False(t, result.Valid())
}

func TestValidateBytes_WrongShape(t *testing.T) {
	dv := newTestValidator(t, nil)

	doc, result := dv.ValidateBytes([]byte(`{"BlueprintId": 7, "Actions": []}`))
	assert.Nil(t, doc)
	assert.False(t, result.Valid())
}

func TestValidateBytes_SemanticIssuesReported(t *testing.T) {
	dv := newTestValidator(t, nil)

	raw := []byte(`{
		"BlueprintId": "bp-bytes",
		"Actions": [
			{"Id": "start", "TypeId": "Start"}
		],
		"Transitions": [
			{"FromActionId": "start", "ToActionId": "nowhere"}
		]
	}`)

	doc, result := dv.ValidateBytes(raw)
	require.NotNil(t, doc)
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "nowhere")
}
