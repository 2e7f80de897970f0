package validation

import (
	"encoding/json"

	"github.com/emberline/blueprint/internal/expressions"
	"github.com/emberline/blueprint/pkg/schema"
)

// DocumentValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (references, value encoding, condition expressions)
// 3. Graph (reachability from Start actions)
type DocumentValidator struct {
	jsonSchema *JSONSchemaValidator
	types      TypeLookup
	expr       *expressions.ExprEngine
	cel        *expressions.CELEngine
}

// NewDocumentValidator creates a DocumentValidator.
// lookup may be nil to skip system registration checks.
func NewDocumentValidator(lookup TypeLookup) (*DocumentValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &DocumentValidator{
		jsonSchema: jsv,
		types:      lookup,
		expr:       expressions.NewExprEngine(),
		cel:        celEngine,
	}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and graph stages are skipped.
func (dv *DocumentValidator) Validate(doc *schema.BlueprintDocument) *schema.ValidationResult {
	if doc == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "blueprint document is nil")
		return r
	}

	result := validateStructural(dv.jsonSchema, doc)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(doc, dv.types, dv.expr, dv.cel))

	// Graph analysis only makes sense once references resolve.
	if result.Valid() {
		result.Merge(validateGraph(doc))
	}

	return result
}

// ValidateDocument satisfies the Validator interface.
func (dv *DocumentValidator) ValidateDocument(doc *schema.BlueprintDocument) error {
	return dv.Validate(doc).ToError()
}

// ValidateBytes decodes raw export bytes and runs the full pipeline. The
// decoded document is returned alongside the result so callers do not parse
// twice.
func (dv *DocumentValidator) ValidateBytes(raw []byte) (*schema.BlueprintDocument, *schema.ValidationResult) {
	result := &schema.ValidationResult{}

	if err := dv.jsonSchema.ValidateRaw(raw); err != nil {
		mergeStructuralError(err, result)
		return nil, result
	}

	var doc schema.BlueprintDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		result.AddError("/", schema.ErrCodeValidation, "failed to decode blueprint document: "+err.Error())
		return nil, result
	}

	result.Merge(validateSemantic(&doc, dv.types, dv.expr, dv.cel))
	if result.Valid() {
		result.Merge(validateGraph(&doc))
	}
	return &doc, result
}

// validateStructural wraps JSONSchemaValidator.ValidateDocument, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, doc *schema.BlueprintDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err := v.ValidateDocument(doc); err != nil {
		mergeStructuralError(err, result)
	}
	return result
}

// mergeStructuralError unpacks per-violation messages when present.
func mergeStructuralError(err error, result *schema.ValidationResult) {
	berr, ok := err.(*schema.BlueprintError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return
	}

	if berr.Details != nil {
		if violations, ok := berr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return
		}
	}
	result.AddError("/", schema.ErrCodeValidation, berr.Message)
}
