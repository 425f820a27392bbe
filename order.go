package modloader

import (
	"fmt"
	"sort"
)

// computeLoadOrder produces the single linear execution order for a loading
// session: a topological sort of the dependency graph where, among modules
// whose dependencies are all scheduled, higher priority goes first and equal
// priorities fall back to registration order. The result is deterministic
// for a fixed registration sequence.
//
// Structural problems are reported before any ordering is returned: a
// dependency on an unregistered module yields ErrUnknownModule, and a
// dependency cycle yields a CycleError naming the members.
func computeLoadOrder(registry *Registry) ([]string, error) {
	names := registry.AllNames()

	// Unknown dependencies are structural failures, checked up front so the
	// sort below can assume every edge resolves.
	dependents := make(map[string][]string, len(names))
	indegree := make(map[string]int, len(names))
	for _, name := range names {
		indegree[name] = 0
	}
	for _, name := range names {
		deps, _ := registry.DependenciesOf(name)
		for _, dep := range deps {
			if _, err := registry.Get(dep); err != nil {
				return nil, fmt.Errorf("%w: %s depends on unregistered module %s",
					ErrUnknownModule, name, dep)
			}
			dependents[dep] = append(dependents[dep], name)
			indegree[name]++
		}
	}

	ready := make([]string, 0, len(names))
	for _, name := range names {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(names))
	for len(ready) > 0 {
		sortReady(registry, ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(names) {
		return nil, findCycle(registry, indegree)
	}
	return order, nil
}

// sortReady orders the ready set by descending priority, then registration
// order. Sorting the whole set each round keeps the selection obviously
// stable; session sizes are small enough that a heap would be overkill.
func sortReady(registry *Registry, ready []string) {
	sort.SliceStable(ready, func(i, j int) bool {
		a, _ := registry.Get(ready[i])
		b, _ := registry.Get(ready[j])
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return registry.record(a.Name).index < registry.record(b.Name).index
	})
}

// findCycle walks the unscheduled remainder of the graph to name one
// concrete cycle. Every node left with a positive indegree sits on or
// downstream of a cycle, so following dependency edges within that set must
// eventually revisit a node.
func findCycle(registry *Registry, indegree map[string]int) *CycleError {
	remaining := make(map[string]bool)
	var start string
	for _, name := range registry.AllNames() {
		if indegree[name] > 0 {
			remaining[name] = true
			if start == "" {
				start = name
			}
		}
	}

	seen := make(map[string]int)
	var path []string
	node := start
	for {
		if at, ok := seen[node]; ok {
			return &CycleError{Members: path[at:]}
		}
		seen[node] = len(path)
		path = append(path, node)

		deps, _ := registry.DependenciesOf(node)
		next := ""
		for _, dep := range deps {
			if remaining[dep] {
				next = dep
				break
			}
		}
		node = next
	}
}
