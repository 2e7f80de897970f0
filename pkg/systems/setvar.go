package systems

import (
	"log/slog"

	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

// TypeSetVariable writes one blackboard variable and completes.
const TypeSetVariable = "SetVariable"

// SetVariable properties. The value arriving on the value port wins over the
// value property, so upstream nodes can feed computed values in.
const (
	PropSetVarName  = "variable"
	PropSetVarScope = "scope"
	PropSetVarType  = "valueType"
	PropSetVarValue = "value"

	PortSetVarValue = "value"
)

func init() {
	mustRegister(TypeSetVariable, func(log *slog.Logger) engine.System {
		return NewSetVariableSystem(log)
	})
}

// SetVariableSystem resolves the target slot by name and scope, parses the
// raw value into the declared type and writes it. Local names that were never
// declared are synthesized as output slots; global names must be declared, a
// dynamic write into the shared board would be invisible to every other
// session's contract.
type SetVariableSystem struct {
	engine.Base
	log *slog.Logger
}

// NewSetVariableSystem returns the System handling the SetVariable type.
func NewSetVariableSystem(log *slog.Logger) *SetVariableSystem {
	if log == nil {
		log = slog.Default()
	}
	return &SetVariableSystem{
		Base: engine.NewBase("set-variable", engine.GroupBusiness),
		log:  log,
	}
}

// Update performs the write for every running SetVariable and completes it.
func (s *SetVariableSystem) Update(f *engine.Frame) error {
	for _, i := range f.ActionIndices(TypeSetVariable) {
		st := f.State(i)
		if st.Phase != schema.PhaseRunning {
			continue
		}
		st.IsFirstEntry = false

		name := f.Property(i, PropSetVarName)
		if name == "" {
			f.ForceComplete(i, "set-variable has no variable name")
			continue
		}

		raw, ok := f.DataPortValue(i, PortSetVarValue)
		if !ok {
			raw = f.Property(i, PropSetVarValue)
		}
		varType := f.Property(i, PropSetVarType)
		if varType == "" {
			varType = schema.VariableString
		}
		value, err := blackboard.ParseValue(varType, raw)
		if err != nil {
			s.log.Warn("set-variable value does not parse",
				slog.String("action_id", f.ActionID(i)),
				slog.String("variable", name),
				slog.String("type", varType),
				slog.String("error", err.Error()))
			f.ForceComplete(i, "set-variable value does not parse")
			continue
		}

		switch f.Property(i, PropSetVarScope) {
		case "", schema.ScopeLocal:
			index, declared := f.LocalVariableIndex(name)
			if !declared {
				index = blackboard.OutputIndex(name)
			}
			f.Locals().Set(index, value)
		case schema.ScopeGlobal:
			index, declared := f.GlobalVariableIndex(name)
			if !declared {
				f.ForceComplete(i, "set-variable targets an undeclared global")
				continue
			}
			f.Globals().Set(index, value)
		default:
			f.ForceComplete(i, "set-variable has an unknown scope")
			continue
		}

		_ = st.MarkCompleted()
	}
	return nil
}
