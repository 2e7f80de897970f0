package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/emberline/blueprint/pkg/schema"
)

// blueprintSchemaJSON is the JSON Schema for the editor export format.
// Embedded as a constant to avoid filesystem dependencies.
const blueprintSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://emberline.dev/schemas/blueprint.json",
  "type": "object",
  "required": ["BlueprintId", "Actions"],
  "properties": {
    "BlueprintId": {
      "type": "string",
      "minLength": 1
    },
    "BlueprintName": {
      "type": "string"
    },
    "Actions": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/action" }
    },
    "Transitions": {
      "type": "array",
      "items": { "$ref": "#/$defs/transition" }
    },
    "DataConnections": {
      "type": "array",
      "items": { "$ref": "#/$defs/dataConnection" }
    },
    "Variables": {
      "type": "array",
      "items": { "$ref": "#/$defs/variable" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "action": {
      "type": "object",
      "required": ["Id", "TypeId"],
      "properties": {
        "Id": {
          "type": "string",
          "minLength": 1
        },
        "TypeId": {
          "type": "string",
          "minLength": 1
        },
        "Properties": {
          "type": "array",
          "items": { "$ref": "#/$defs/property" }
        },
        "SceneBindings": {
          "type": "array",
          "items": { "type": "string" }
        },
        "PortDefaults": {
          "type": "array",
          "items": { "$ref": "#/$defs/portDefault" }
        }
      },
      "additionalProperties": false
    },
    "property": {
      "type": "object",
      "required": ["Key", "Value"],
      "properties": {
        "Key": {
          "type": "string",
          "minLength": 1
        },
        "ValueType": {
          "type": "string",
          "enum": ["Int", "Float", "Bool", "String"]
        },
        "Value": { "type": "string" }
      },
      "additionalProperties": false
    },
    "portDefault": {
      "type": "object",
      "required": ["PortId", "DefaultValue"],
      "properties": {
        "PortId": {
          "type": "string",
          "minLength": 1
        },
        "DefaultValue": { "type": "string" }
      },
      "additionalProperties": false
    },
    "transition": {
      "type": "object",
      "required": ["FromActionId", "ToActionId"],
      "properties": {
        "FromActionId": {
          "type": "string",
          "minLength": 1
        },
        "FromPortId": { "type": "string" },
        "ToActionId": {
          "type": "string",
          "minLength": 1
        },
        "ToPortId": { "type": "string" },
        "Condition": { "$ref": "#/$defs/condition" }
      },
      "additionalProperties": false
    },
    "condition": {
      "type": "object",
      "properties": {
        "Type": { "type": "string" },
        "Expression": { "type": "string" }
      },
      "additionalProperties": false
    },
    "dataConnection": {
      "type": "object",
      "required": ["FromActionId", "FromPortId", "ToActionId", "ToPortId"],
      "properties": {
        "FromActionId": {
          "type": "string",
          "minLength": 1
        },
        "FromPortId": {
          "type": "string",
          "minLength": 1
        },
        "ToActionId": {
          "type": "string",
          "minLength": 1
        },
        "ToPortId": {
          "type": "string",
          "minLength": 1
        }
      },
      "additionalProperties": false
    },
    "variable": {
      "type": "object",
      "required": ["Index", "Name", "Type", "Scope"],
      "properties": {
        "Index": {
          "type": "integer",
          "minimum": 0
        },
        "Name": {
          "type": "string",
          "minLength": 1
        },
        "Type": {
          "type": "string",
          "enum": ["Int", "Float", "Bool", "String"]
        },
        "Scope": {
          "type": "string",
          "enum": ["Local", "Global"]
        },
        "InitialValue": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks exported documents against the embedded
// blueprint schema. It is safe for concurrent use; the schema is compiled
// once at construction.
type JSONSchemaValidator struct {
	blueprintSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the blueprint
// schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(blueprintSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal blueprint schema: %w", err)
	}
	if err := c.AddResource("https://emberline.dev/schemas/blueprint.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add blueprint schema resource: %w", err)
	}

	bpSchema, err := c.Compile("https://emberline.dev/schemas/blueprint.json")
	if err != nil {
		return nil, fmt.Errorf("compile blueprint schema: %w", err)
	}

	return &JSONSchemaValidator{blueprintSchema: bpSchema}, nil
}

// ValidateDocument validates an already-decoded document against the
// blueprint JSON Schema.
func (v *JSONSchemaValidator) ValidateDocument(doc *schema.BlueprintDocument) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "blueprint document is nil")
	}

	val, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize blueprint document").WithCause(err)
	}

	if err := v.blueprintSchema.Validate(val); err != nil {
		return toBlueprintError(err)
	}
	return nil
}

// ValidateRaw validates raw export bytes before decoding. Catching shape
// errors here gives designers a schema-level message instead of a Go
// unmarshal error.
func (v *JSONSchemaValidator) ValidateRaw(raw []byte) error {
	if len(raw) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "empty blueprint document")
	}

	val, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "blueprint document is not valid JSON").WithCause(err)
	}

	if err := v.blueprintSchema.Validate(val); err != nil {
		return toBlueprintError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// toBlueprintError converts a jsonschema.ValidationError into a
// BlueprintError with one message per violated instance location.
func toBlueprintError(err error) *schema.BlueprintError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
