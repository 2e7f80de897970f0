package engine

import (
	"encoding/json"
	"log/slog"

	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/schema"
)

// ParseDocument decodes a raw blueprint export into its document form.
func ParseDocument(raw []byte) (*schema.BlueprintDocument, error) {
	if len(raw) == 0 {
		return nil, schema.NewError(schema.ErrCodeLoad, "empty blueprint document")
	}
	var doc schema.BlueprintDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeLoad, "blueprint document is not valid JSON").WithCause(err)
	}
	return &doc, nil
}

// NewFrame flattens a parsed document into an executable Frame. Structural
// defects that would corrupt indexing (no actions, empty or duplicate ids)
// are fatal; dangling edges are logged and dropped so a blueprint exported
// against a newer editor still runs with whatever graph remains.
func NewFrame(doc *schema.BlueprintDocument, globals *blackboard.Board, log *slog.Logger) (*Frame, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeLoad, "blueprint document is nil")
	}
	if len(doc.Actions) == 0 {
		return nil, schema.NewError(schema.ErrCodeLoad, "blueprint has no actions")
	}
	if log == nil {
		log = slog.Default()
	}
	if globals == nil {
		globals = blackboard.NewBoard()
	}

	f := &Frame{
		blueprintID:   doc.BlueprintID,
		blueprintName: doc.BlueprintName,
		actions:       make([]schema.ActionEntry, len(doc.Actions)),
		idToIndex:     make(map[string]int, len(doc.Actions)),
		byType:        make(map[string][]int),
		outgoing:      make(map[int][]int),
		dataIn:        make(map[portKey]portRef),
		portDefaults:  make(map[portKey]string),
		localVars:     make(map[string]int),
		globalVars:    make(map[string]int),
		states:        newStates(len(doc.Actions)),
		published:     make(map[portKey]portValue),
		locals:        blackboard.NewBoard(),
		globals:       globals,
		log:           log,
	}
	copy(f.actions, doc.Actions)

	for i := range f.actions {
		id := f.actions[i].ID
		if id == "" {
			return nil, schema.NewErrorf(schema.ErrCodeLoad, "action at index %d has empty id", i)
		}
		if _, exists := f.idToIndex[id]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeLoad, "duplicate action id: %s", id)
		}
		f.idToIndex[id] = i
		f.byType[f.actions[i].TypeID] = append(f.byType[f.actions[i].TypeID], i)

		for _, pd := range f.actions[i].PortDefaults {
			f.portDefaults[portKey{i, pd.PortID}] = pd.DefaultValue
		}
	}

	for ti := range doc.Transitions {
		t := doc.Transitions[ti]
		from, okFrom := f.idToIndex[t.FromActionID]
		_, okTo := f.idToIndex[t.ToActionID]
		if !okFrom || !okTo {
			log.Warn("dropping transition with dangling endpoint",
				slog.String("from", t.FromActionID),
				slog.String("to", t.ToActionID))
			continue
		}
		f.transitions = append(f.transitions, t)
		f.outgoing[from] = append(f.outgoing[from], len(f.transitions)-1)
	}

	for _, dc := range doc.DataConnections {
		from, okFrom := f.idToIndex[dc.FromActionID]
		to, okTo := f.idToIndex[dc.ToActionID]
		if !okFrom || !okTo {
			log.Warn("dropping data connection with dangling endpoint",
				slog.String("from", dc.FromActionID),
				slog.String("to", dc.ToActionID))
			continue
		}
		key := portKey{to, dc.ToPortID}
		if _, bound := f.dataIn[key]; bound {
			log.Warn("rebinding data port to a later producer",
				slog.String("action_id", dc.ToActionID),
				slog.String("port_id", dc.ToPortID))
		}
		f.dataIn[key] = portRef{from, dc.FromPortID}
	}

	seedVariables(f, doc.Variables, log)

	return f, nil
}

// seedVariables writes declared initial values into the boards. Locals are
// always (re)seeded; globals only fill empty slots so values written by an
// earlier blueprint in the same session survive. Bad initial values fall back
// to the typed zero with a warning, the same keep-running posture the router
// takes for bad edges.
func seedVariables(f *Frame, vars []schema.VariableDeclaration, log *slog.Logger) {
	for _, decl := range vars {
		var v blackboard.Value
		if decl.InitialValue == "" {
			v = blackboard.ZeroValue(decl.Type)
		} else {
			parsed, err := blackboard.ParseValue(decl.Type, decl.InitialValue)
			if err != nil {
				log.Warn("variable initial value does not parse, using zero",
					slog.String("variable", decl.Name),
					slog.String("type", decl.Type),
					slog.String("raw", decl.InitialValue))
				parsed = blackboard.ZeroValue(decl.Type)
			}
			v = parsed
		}

		switch decl.Scope {
		case schema.ScopeGlobal:
			f.globalVars[decl.Name] = decl.Index
			f.globals.SetIfAbsent(decl.Index, v)
		default:
			f.localVars[decl.Name] = decl.Index
			f.locals.Set(decl.Index, v)
		}
	}
}
