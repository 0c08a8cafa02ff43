package task

// IsAvailable reports whether a task can be completed: every task it depends on is completed.
// A task without dependencies is always available.
func IsAvailable(deps []DependencyRef) bool {
	for _, dep := range deps {
		if !dep.IsCompleted {
			return false
		}
	}
	return true
}

// createsCycle reports whether making taskID depend on dependsOn closes a loop in edges,
// where edges maps each task to the tasks it depends on.
func createsCycle(edges map[int64][]int64, taskID int64, dependsOn []int64) bool {
	seen := make(map[int64]bool, len(edges))
	stack := append([]int64(nil), dependsOn...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == taskID {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, edges[id]...)
	}
	return false
}

// hasDuplicates reports whether ids holds the same value twice.
func hasDuplicates(ids []int64) bool {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

func uniqueIDs(ids []int64) []int64 {
	if !hasDuplicates(ids) {
		return ids
	}
	seen := make(map[int64]struct{}, len(ids))
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			res = append(res, id)
		}
	}
	return res
}
