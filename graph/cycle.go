package graph

import "github.com/songzhibin97/workflow-steps/types"

// checkCycles fails when, for any connection, its source is reachable from its
// target. Reachability runs over every discovered edge, duplicates included,
// so cycles closed by default branches or converging followers are caught.
func checkCycles(connections, discovered []types.Connection) error {
	children := make(map[string][]string, len(discovered))
	for _, c := range discovered {
		if c.FromStepID == "" {
			continue
		}
		children[c.FromStepID] = append(children[c.FromStepID], c.ToStepID)
	}

	for _, c := range connections {
		if c.FromStepID == "" {
			continue
		}
		if reachable(children, c.ToStepID, c.FromStepID) {
			return stepError(c.FromStepID, ErrCyclicGraph)
		}
	}
	return nil
}

func reachable(children map[string][]string, from, target string) bool {
	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range children[current] {
			if child == target {
				return true
			}
			if !visited[child] {
				visited[child] = true
				stack = append(stack, child)
			}
		}
	}
	return false
}
