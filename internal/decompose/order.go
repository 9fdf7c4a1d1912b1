package decompose

// ExecutionLayers is the output of GetExecutionOrder: an ordered list of
// layers, each a set of sub-task ids that can run concurrently, plus a
// warning populated if a dependency cycle forced an early cutoff.
type ExecutionLayers struct {
	Layers  [][]string
	Warning string
}

// GetExecutionOrder performs a Kahn topological layering over subtasks'
// declared dependencies: each layer contains every remaining sub-task
// whose dependencies have all already appeared in a prior layer. If no
// sub-task can be released and tasks remain, a cycle is present; the
// remaining tasks are released as one final layer and a warning is set.
func GetExecutionOrder(subtasks []SubTask) ExecutionLayers {
	remaining := make(map[string]SubTask, len(subtasks))
	for _, st := range subtasks {
		remaining[st.ID] = st
	}
	done := make(map[string]bool, len(subtasks))

	var layers [][]string
	for len(remaining) > 0 {
		var layer []string
		for id, st := range remaining {
			if dependenciesSatisfied(st, done) {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			// Cycle: release everything left over in one final layer.
			var rest []string
			for id := range remaining {
				rest = append(rest, id)
			}
			layers = append(layers, rest)
			return ExecutionLayers{
				Layers:  layers,
				Warning: "dependency cycle detected; remaining subtasks released as a single final layer",
			}
		}

		for _, id := range layer {
			done[id] = true
			delete(remaining, id)
		}
		layers = append(layers, layer)
	}
	return ExecutionLayers{Layers: layers}
}

func dependenciesSatisfied(st SubTask, done map[string]bool) bool {
	for _, dep := range st.Dependencies {
		if !done[dep] {
			return false
		}
	}
	return true
}
