package systems

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dop251/goja"

	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

// TypeScript runs a sandboxed JavaScript snippet against the Frame.
const TypeScript = "Script"

// PropScriptSource is the JavaScript source property.
const PropScriptSource = "source"

// PortScriptResult receives the script's return value, JSON-encoded.
const PortScriptResult = "result"

func init() {
	mustRegister(TypeScript, func(log *slog.Logger) engine.System {
		return NewScriptSystem(log)
	})
}

// ScriptSystem is the escape hatch for logic that has no dedicated node type.
// Each run gets a fresh sandboxed goja runtime with a `bp` host object bound
// to the current action; compiled programs are cached per source. The node
// completes after one run unless the script calls bp.listen(), and a thrown
// exception force-completes it so a broken script cannot stall the graph.
type ScriptSystem struct {
	engine.Base
	log *slog.Logger

	mu    sync.RWMutex
	cache map[string]*goja.Program
}

// NewScriptSystem returns the System handling the Script type.
func NewScriptSystem(log *slog.Logger) *ScriptSystem {
	if log == nil {
		log = slog.Default()
	}
	return &ScriptSystem{
		Base:  engine.NewBase("script", engine.GroupBusiness),
		log:   log,
		cache: make(map[string]*goja.Program),
	}
}

// Update runs every running Script action once.
func (s *ScriptSystem) Update(f *engine.Frame) error {
	for _, i := range f.ActionIndices(TypeScript) {
		st := f.State(i)
		if st.Phase != schema.PhaseRunning || !st.IsFirstEntry {
			continue
		}
		st.IsFirstEntry = false

		source := f.Property(i, PropScriptSource)
		if source == "" {
			f.ForceComplete(i, "script has no source")
			continue
		}
		program, err := s.compile(source)
		if err != nil {
			s.log.Warn("script does not compile",
				slog.String("action_id", f.ActionID(i)),
				slog.String("error", err.Error()))
			f.ForceComplete(i, "script does not compile")
			continue
		}

		host := &scriptHost{frame: f, action: i, log: s.log}
		result, err := s.run(program, host)
		if err != nil {
			s.log.Warn("script threw",
				slog.String("action_id", f.ActionID(i)),
				slog.String("error", err.Error()))
			f.ForceComplete(i, "script threw")
			continue
		}
		if result != nil {
			encoded, encErr := json.Marshal(result)
			if encErr == nil {
				f.SetDataPortValue(i, PortScriptResult, string(encoded))
			}
		}

		if host.listen {
			_ = st.MarkListening()
		} else {
			_ = st.MarkCompleted()
		}
	}
	return nil
}

// compile returns the cached program for the source, compiling on first use.
func (s *ScriptSystem) compile(source string) (*goja.Program, error) {
	s.mu.RLock()
	if p, ok := s.cache[source]; ok {
		s.mu.RUnlock()
		return p, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.cache[source]; ok {
		return p, nil
	}
	p, err := goja.Compile("script", source, true)
	if err != nil {
		return nil, err
	}
	s.cache[source] = p
	return p, nil
}

// run executes one program in a fresh sandboxed runtime and exports its
// return value, nil for undefined or null.
func (s *ScriptSystem) run(program *goja.Program, host *scriptHost) (any, error) {
	vm := goja.New()
	if err := sandbox(vm); err != nil {
		return nil, err
	}
	if err := vm.Set("bp", host.object(vm)); err != nil {
		return nil, err
	}
	val, err := vm.RunProgram(program)
	if err != nil {
		return nil, err
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

// scriptHost backs the bp object for one action run.
type scriptHost struct {
	frame  *engine.Frame
	action int
	log    *slog.Logger
	listen bool
}

func (h *scriptHost) object(vm *goja.Runtime) *goja.Object {
	f, i := h.frame, h.action
	obj := vm.NewObject()

	_ = obj.Set("actionId", func() string { return f.ActionID(i) })
	_ = obj.Set("tick", func() int64 { return int64(f.Tick()) })

	_ = obj.Set("get", func(name string) any {
		if index, ok := f.LocalVariableIndex(name); ok {
			if v, found := f.Locals().Get(index); found {
				return v.Any()
			}
			return nil
		}
		if index, ok := f.GlobalVariableIndex(name); ok {
			if v, found := f.Globals().Get(index); found {
				return v.Any()
			}
			return nil
		}
		if v, found := f.Locals().Get(blackboard.OutputIndex(name)); found {
			return v.Any()
		}
		return nil
	})

	_ = obj.Set("set", func(name string, value any) {
		index, declared := f.LocalVariableIndex(name)
		if !declared {
			index = blackboard.OutputIndex(name)
		}
		f.Locals().Set(index, toBoardValue(value))
	})

	_ = obj.Set("setGlobal", func(name string, value any) bool {
		index, declared := f.GlobalVariableIndex(name)
		if !declared {
			h.log.Warn("script write to undeclared global",
				slog.String("action_id", f.ActionID(i)),
				slog.String("variable", name))
			return false
		}
		f.Globals().Set(index, toBoardValue(value))
		return true
	})

	_ = obj.Set("input", func(port string) any {
		raw, ok := f.DataPortValue(i, port)
		if !ok {
			return nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return raw
		}
		return decoded
	})

	_ = obj.Set("publish", func(port string, value any) {
		switch x := value.(type) {
		case string:
			f.SetDataPortValue(i, port, x)
		default:
			encoded, err := json.Marshal(x)
			if err != nil {
				return
			}
			f.SetDataPortValue(i, port, string(encoded))
		}
	})

	_ = obj.Set("log", func(message any) {
		h.log.Info(fmt.Sprint(message),
			slog.String("action_id", f.ActionID(i)),
			slog.Uint64("tick", f.Tick()))
	})

	_ = obj.Set("listen", func() { h.listen = true })

	return obj
}

// toBoardValue maps an exported goja value onto a board slot. Composites are
// stored JSON-encoded.
func toBoardValue(v any) blackboard.Value {
	switch x := v.(type) {
	case nil:
		return blackboard.StringValue("")
	case bool:
		return blackboard.BoolValue(x)
	case int64:
		return blackboard.IntValue(x)
	case float64:
		return blackboard.FloatValue(x)
	case string:
		return blackboard.StringValue(x)
	default:
		encoded, err := json.Marshal(x)
		if err != nil {
			return blackboard.StringValue(fmt.Sprint(x))
		}
		return blackboard.StringValue(string(encoded))
	}
}

// dangerousGlobals are the Node-ish globals scripts must not see. The
// runtime is ECMAScript-only, but authors paste Node snippets and a clear
// undefined beats a half-working shim.
var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

const freezeScript = `(function() {
	[Object, Array, Function, String, Number, Boolean, Date, RegExp, Error, Math, JSON].forEach(function(b) {
		Object.freeze(b);
		if (b.prototype) {
			Object.freeze(b.prototype);
		}
	});
})()`

// sandbox strips the dangerous globals and freezes the builtins so one run
// cannot poison the prototypes for value conversion.
func sandbox(vm *goja.Runtime) error {
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}
	if _, err := vm.RunString(freezeScript); err != nil {
		return err
	}
	return nil
}
