package engine

import (
	"github.com/emberline/blueprint/pkg/schema"
)

// orderSystems produces the deterministic per-Tick execution order: Systems
// sorted by ascending Group, and within each group topologically by their
// After constraints using Kahn's algorithm. Ties break alphabetically by
// name, so the schedule is a pure function of the registered set.
func orderSystems(systems []System) ([]System, error) {
	byName := make(map[string]System, len(systems))
	for _, s := range systems {
		name := s.Name()
		if name == "" {
			return nil, schema.NewError(schema.ErrCodeSchedule, "system has empty name")
		}
		if _, exists := byName[name]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeSchedule, "duplicate system name: %s", name)
		}
		byName[name] = s
	}

	// Partition into groups and validate After edges stay within one group.
	groups := make(map[Group][]string)
	for name, s := range byName {
		groups[s.Group()] = append(groups[s.Group()], name)
		for _, pred := range s.After() {
			p, ok := byName[pred]
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeSchedule, "system %s runs after unknown system: %s", name, pred)
			}
			if p.Group() != s.Group() {
				return nil, schema.NewErrorf(schema.ErrCodeSchedule,
					"system %s (group %s) cannot run after %s (group %s); ordering across groups is fixed by group number",
					name, s.Group(), pred, p.Group())
			}
		}
	}

	groupOrder := make([]Group, 0, len(groups))
	for g := range groups {
		groupOrder = append(groupOrder, g)
	}
	sortGroups(groupOrder)

	ordered := make([]System, 0, len(systems))
	for _, g := range groupOrder {
		names, err := sortWithinGroup(groups[g], byName)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			ordered = append(ordered, byName[name])
		}
	}

	return ordered, nil
}

// sortWithinGroup is Kahn's algorithm over one group's After edges. Ready
// queues are kept sorted so equal-constraint systems always run in name order.
func sortWithinGroup(names []string, byName map[string]System) ([]string, error) {
	inDegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))
	for _, name := range names {
		inDegree[name] = len(byName[name].After())
		for _, pred := range byName[name].After() {
			dependents[pred] = append(dependents[pred], name)
		}
	}

	queue := make([]string, 0, len(names))
	for _, name := range names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sortStrings(queue)

	sorted := make([]string, 0, len(names))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		next := make([]string, len(dependents[node]))
		copy(next, dependents[node])
		sortStrings(next)

		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
				sortStrings(queue)
			}
		}
	}

	if len(sorted) != len(names) {
		return nil, schema.NewErrorf(schema.ErrCodeSchedule, "cycle in system ordering within group %s", byName[names[0]].Group())
	}

	return sorted, nil
}

// sortStrings sorts a slice of strings in-place using insertion sort.
// Schedules are small; this avoids pulling in sort for a handful of names.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		key := s[i]
		j := i - 1
		for j >= 0 && s[j] > key {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = key
	}
}

// sortGroups sorts group numbers ascending, same idiom as sortStrings.
func sortGroups(g []Group) {
	for i := 1; i < len(g); i++ {
		key := g[i]
		j := i - 1
		for j >= 0 && g[j] > key {
			g[j+1] = g[j]
			j--
		}
		g[j+1] = key
	}
}
