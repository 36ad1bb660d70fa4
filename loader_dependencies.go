package modhost

import "slices"

// CheckDependencies checks m's declared dependencies against the modules
// started so far. It returns nil or a *DependencyError for the first
// dependency that fails. A missing optional dependency is only logged. A
// loaded dependency outside the declared version range fails the check
// whether it is required or not, and so does a version that cannot be
// parsed.
func (l *Loader) CheckDependencies(m Module) error {
	for _, dep := range m.Dependencies() {
		target, ok := l.GetModule(dep.ModuleID)
		if !ok {
			if dep.Required {
				l.logger.Error("Required dependency not loaded", "module", m.Name(), "dependency", dep.ModuleID)
				return &DependencyError{Kind: DependencyMissing, ModuleID: m.ID(), Dependency: dep.ModuleID}
			}
			l.logger.Warn("Optional dependency not loaded", "module", m.Name(), "dependency", dep.ModuleID)
			continue
		}

		// The target's version must parse even when no bounds are declared.
		actual := target.Version()
		ok, err := InRange(actual, dep.MinVersion, dep.MaxVersion)
		if err != nil {
			l.logger.Error("Dependency version cannot be compared", "module", m.Name(), "dependency", dep.ModuleID,
				"version", actual, "minVersion", dep.MinVersion, "maxVersion", dep.MaxVersion, "error", err)
			return &DependencyError{
				Kind: DependencyInvalidVersion, ModuleID: m.ID(), Dependency: dep.ModuleID,
				MinVersion: dep.MinVersion, MaxVersion: dep.MaxVersion, Actual: actual,
			}
		}
		if !ok {
			l.logger.Error("Dependency version mismatch", "module", m.Name(), "dependency", dep.ModuleID,
				"expected", formatRange(dep.MinVersion, dep.MaxVersion), "actual", actual)
			return &DependencyError{
				Kind: DependencyVersionMismatch, ModuleID: m.ID(), Dependency: dep.ModuleID,
				MinVersion: dep.MinVersion, MaxVersion: dep.MaxVersion, Actual: actual,
			}
		}
	}
	return nil
}

// findCycles returns, for each module on a cycle of required dependency
// edges between the given modules, a cycle through it (for example
// a -> b -> a). Cycle members are the strongly connected components with
// more than one module, or a module requiring itself. Modules are visited in
// slice order and each gets the shortest cycle through the first unassigned
// member of its component, so results are deterministic.
func findCycles(modules []Module) map[string][]string {
	var order []string
	byID := make(map[string]Module, len(modules))
	for _, m := range modules {
		if _, exists := byID[m.ID()]; !exists {
			byID[m.ID()] = m
			order = append(order, m.ID())
		}
	}

	edges := make(map[string][]string, len(order))
	for _, id := range order {
		for _, dep := range requiredDependencies(byID[id]) {
			if _, inBatch := byID[dep]; inBatch && !slices.Contains(edges[id], dep) {
				edges[id] = append(edges[id], dep)
			}
		}
	}

	component := stronglyConnected(order, edges)

	cycles := make(map[string][]string)
	for _, id := range order {
		if _, seen := cycles[id]; seen {
			continue
		}
		path := shortestCycle(id, edges, component)
		for _, member := range path[:max(len(path)-1, 0)] {
			if _, seen := cycles[member]; !seen {
				cycles[member] = path
			}
		}
	}
	return cycles
}

// stronglyConnected labels every node with its component using Tarjan's
// algorithm.
func stronglyConnected(order []string, edges map[string][]string) map[string]int {
	var (
		next      int
		stack     []string
		index     = make(map[string]int, len(order))
		low       = make(map[string]int, len(order))
		onStack   = make(map[string]bool, len(order))
		component = make(map[string]int, len(order))
	)

	var connect func(id string)
	connect = func(id string) {
		index[id] = next
		low[id] = next
		next++
		stack = append(stack, id)
		onStack[id] = true

		for _, dep := range edges[id] {
			if _, visited := index[dep]; !visited {
				connect(dep)
				low[id] = min(low[id], low[dep])
			} else if onStack[dep] {
				low[id] = min(low[id], index[dep])
			}
		}

		if low[id] != index[id] {
			return
		}
		label := index[id]
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			component[top] = label
			if top == id {
				break
			}
		}
	}

	for _, id := range order {
		if _, visited := index[id]; !visited {
			connect(id)
		}
	}
	return component
}

// shortestCycle searches breadth-first from start, staying inside its
// component, and returns the path back to start or nil when there is none.
func shortestCycle(start string, edges map[string][]string, component map[string]int) []string {
	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range edges[id] {
			if component[dep] != component[start] {
				continue
			}
			if dep == start {
				var path []string
				for n := id; n != start; n = parent[n] {
					path = append(path, n)
				}
				path = append(path, start)
				slices.Reverse(path)
				return append(path, start)
			}
			if _, seen := parent[dep]; !seen {
				parent[dep] = id
				queue = append(queue, dep)
			}
		}
	}
	return nil
}

// requiredDependencies lists the IDs m requires. A panicking Dependencies
// yields nothing here and is reported by the dependency check.
func requiredDependencies(m Module) (ids []string) {
	defer func() {
		if recover() != nil {
			ids = nil
		}
	}()
	for _, dep := range m.Dependencies() {
		if dep.Required {
			ids = append(ids, dep.ModuleID)
		}
	}
	return ids
}
