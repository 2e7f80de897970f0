package validation

import "github.com/emberline/blueprint/pkg/schema"

// Validator checks exported blueprint documents before they reach the
// engine. Structural checks use JSON Schema Draft 2020-12.
type Validator interface {
	ValidateDocument(doc *schema.BlueprintDocument) error
}

// TypeLookup reports whether any registered system handles an action type.
// nil lookups skip the check.
type TypeLookup interface {
	Has(typeID string) bool
}
