package validation

import (
	"fmt"

	"github.com/emberline/blueprint/internal/expressions"
	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/codec"
	"github.com/emberline/blueprint/pkg/schema"
)

// validateSemantic performs semantic analysis on a structurally valid
// document. Checks: unique action ids, transition and data connection
// endpoints, property and variable value encoding, condition expressions.
//
// Issues the runtime tolerates with its fail-open policy are warnings here;
// anything that would make the loader reject the document is an error.
func validateSemantic(doc *schema.BlueprintDocument, types TypeLookup, exprEngine *expressions.ExprEngine, celEngine *expressions.CELEngine) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	actionIDs := make(map[string]bool, len(doc.Actions))
	hasStart := false

	for i := range doc.Actions {
		a := &doc.Actions[i]
		path := fmt.Sprintf("Actions[%d]", i)

		if actionIDs[a.ID] {
			result.AddError(path+".Id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate action id %q", a.ID))
		}
		actionIDs[a.ID] = true

		if a.TypeID == schema.TypeStart {
			hasStart = true
		}

		if types != nil && !types.Has(a.TypeID) {
			result.AddWarning(path+".TypeId", schema.ErrCodeValidation,
				fmt.Sprintf("no registered system handles type %q; action %q will never complete", a.TypeID, a.ID))
		}

		validateProperties(a, path, result)
	}

	if !hasStart {
		result.AddWarning("Actions", schema.ErrCodeValidation,
			"no Start action; the blueprint will never activate on its own")
	}

	for i := range doc.Transitions {
		tr := &doc.Transitions[i]
		path := fmt.Sprintf("Transitions[%d]", i)

		if !actionIDs[tr.FromActionID] {
			result.AddError(path+".FromActionId", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent action %q", tr.FromActionID))
		}
		if !actionIDs[tr.ToActionID] {
			result.AddError(path+".ToActionId", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent action %q", tr.ToActionID))
		}

		validateCondition(&tr.Condition, path+".Condition", exprEngine, celEngine, result)
	}

	for i := range doc.DataConnections {
		dc := &doc.DataConnections[i]
		path := fmt.Sprintf("DataConnections[%d]", i)

		// The loader drops dangling data edges at runtime, so these are
		// warnings rather than errors.
		if !actionIDs[dc.FromActionID] {
			result.AddWarning(path+".FromActionId", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent action %q; connection will be dropped", dc.FromActionID))
		}
		if !actionIDs[dc.ToActionID] {
			result.AddWarning(path+".ToActionId", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent action %q; connection will be dropped", dc.ToActionID))
		}
	}

	validateVariables(doc, result)

	return result
}

// validateProperties checks that property values decode as their declared
// ValueType and that Join counters are well-formed.
func validateProperties(a *schema.ActionEntry, path string, result *schema.ValidationResult) {
	for j := range a.Properties {
		p := &a.Properties[j]
		ppath := fmt.Sprintf("%s.Properties[%d]", path, j)

		if p.ValueType == "" {
			continue
		}
		if _, err := blackboard.ParseValue(p.ValueType, p.Value); err != nil {
			result.AddError(ppath+".Value", schema.ErrCodeValidation,
				fmt.Sprintf("value %q does not decode as %s", p.Value, p.ValueType))
		}
	}

	if a.TypeID == schema.TypeJoin {
		if raw, ok := a.Property(schema.PropJoinCount); ok {
			if _, err := codec.ParseInt(raw); err != nil {
				result.AddError(path+".Properties", schema.ErrCodeValidation,
					fmt.Sprintf("%s %q is not an integer", schema.PropJoinCount, raw))
			}
		}
	}
}

// validateCondition checks a transition condition: known kinds compile,
// unknown kinds evaluate to true at runtime and only warn here.
func validateCondition(cond *schema.ConditionEntry, path string, exprEngine *expressions.ExprEngine, celEngine *expressions.CELEngine, result *schema.ValidationResult) {
	switch cond.Type {
	case "", schema.ConditionImmediate:
		return
	case schema.ConditionExpression:
		if err := exprEngine.Check(cond.Expression); err != nil {
			result.AddError(path+".Expression", schema.ErrCodeValidation,
				fmt.Sprintf("expression does not compile: %s", err.Error()))
		}
	case schema.ConditionCEL:
		if err := celEngine.Check(cond.Expression); err != nil {
			result.AddError(path+".Expression", schema.ErrCodeValidation,
				fmt.Sprintf("CEL expression does not compile: %s", err.Error()))
		}
	default:
		result.AddWarning(path+".Type", schema.ErrCodeValidation,
			fmt.Sprintf("unknown condition type %q; runtime treats it as always true", cond.Type))
	}
}

// validateVariables checks blackboard declarations: unique indexes, unique
// names per scope, decodable initial values, and indexes clear of the
// reserved output namespace.
func validateVariables(doc *schema.BlueprintDocument, result *schema.ValidationResult) {
	seenIndex := make(map[int]string, len(doc.Variables))
	seenName := make(map[string]bool, len(doc.Variables))

	for i := range doc.Variables {
		v := &doc.Variables[i]
		path := fmt.Sprintf("Variables[%d]", i)

		if prev, dup := seenIndex[v.Index]; dup {
			result.AddError(path+".Index", schema.ErrCodeValidation,
				fmt.Sprintf("index %d already used by variable %q", v.Index, prev))
		}
		seenIndex[v.Index] = v.Name

		nameKey := v.Scope + "/" + v.Name
		if seenName[nameKey] {
			result.AddError(path+".Name", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate %s variable %q", v.Scope, v.Name))
		}
		seenName[nameKey] = true

		if v.InitialValue != "" {
			if _, err := blackboard.ParseValue(v.Type, v.InitialValue); err != nil {
				result.AddError(path+".InitialValue", schema.ErrCodeValidation,
					fmt.Sprintf("initial value %q does not decode as %s", v.InitialValue, v.Type))
			}
		}

		if v.Index >= blackboard.OutputIndexBase {
			result.AddWarning(path+".Index", schema.ErrCodeValidation,
				fmt.Sprintf("index %d falls inside the reserved output namespace (%d+)", v.Index, blackboard.OutputIndexBase))
		}
	}
}
