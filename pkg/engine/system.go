package engine

import "fmt"

// Group is a System's execution tier. All Framework Systems run before all
// Business Systems, which run before all PostProcess Systems; within a group
// the order comes from the predecessor declarations.
type Group int

const (
	// GroupFramework runs first: engine bookkeeping such as the phase clock.
	GroupFramework Group = 0
	// GroupBusiness is where plug-in Systems live.
	GroupBusiness Group = 100
	// GroupPostProcess is reserved for the engine. The TransitionSystem is
	// pinned here so that every Completed assignment made during the Tick is
	// visible before routing decisions; letting external Systems into this
	// group would make that ordering silently violable.
	GroupPostProcess Group = 900
)

// String returns the group label used in logs and schedule errors.
func (g Group) String() string {
	switch g {
	case GroupFramework:
		return "framework"
	case GroupBusiness:
		return "business"
	case GroupPostProcess:
		return "postprocess"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// System is the plug-in contract. A System scans the Actions it cares about
// (usually one TypeId) and mutates their runtime state through the Frame,
// exactly once per Tick.
//
// Update runs on the single Tick goroutine with no suspension points; state
// mutated by an earlier System in the same Tick is already visible. An error
// return is logged and the Tick continues; it never aborts execution.
type System interface {
	// Name identifies the System in schedules, predecessor declarations and
	// logs. Names must be unique across one Runner.
	Name() string

	// Group returns the execution tier.
	Group() Group

	// After lists the names of same-group Systems that must run earlier.
	After() []string

	// Update processes the Frame for one Tick.
	Update(f *Frame) error
}

// Base carries a System's scheduling declaration. Embed it and implement
// Update.
type Base struct {
	name  string
	group Group
	after []string
}

// NewBase declares a System's identity, group and same-group predecessors.
func NewBase(name string, group Group, after ...string) Base {
	return Base{name: name, group: group, after: after}
}

// Name returns the declared System name.
func (b Base) Name() string { return b.name }

// Group returns the declared execution group.
func (b Base) Group() Group { return b.group }

// After returns the declared predecessor names.
func (b Base) After() []string { return b.after }
