package wfincremental

import "sort"

// GraphDelta is the difference between two graph snapshots, targets
// identified by canonical TargetID string.
type GraphDelta struct {
	AddedTargets    []string
	RemovedTargets  []string
	ModifiedTargets []string
}

// CalculateGraphDelta computes a deterministic delta between oldGraph and
// newGraph. A target present in both is "modified" if its snapshot differs
// in any field that affects execution identity.
func CalculateGraphDelta(oldGraph, newGraph *GraphSnapshot) GraphDelta {
	var delta GraphDelta

	oldNodes := map[string]NodeSnapshot{}
	if oldGraph != nil {
		oldNodes = oldGraph.Nodes
	}
	newNodes := map[string]NodeSnapshot{}
	if newGraph != nil {
		newNodes = newGraph.Nodes
	}

	for id, nn := range newNodes {
		on, ok := oldNodes[id]
		if !ok {
			delta.AddedTargets = append(delta.AddedTargets, id)
			continue
		}
		if !equalNodeSnapshot(on, nn) {
			delta.ModifiedTargets = append(delta.ModifiedTargets, id)
		}
	}
	for id := range oldNodes {
		if _, ok := newNodes[id]; !ok {
			delta.RemovedTargets = append(delta.RemovedTargets, id)
		}
	}

	sort.Strings(delta.AddedTargets)
	sort.Strings(delta.RemovedTargets)
	sort.Strings(delta.ModifiedTargets)
	return delta
}

func equalNodeSnapshot(a, b NodeSnapshot) bool {
	if a.TargetID != b.TargetID || a.InputHash != b.InputHash || a.Command != b.Command {
		return false
	}
	return equalStringSet(a.DeclaredInputs, b.DeclaredInputs) &&
		equalStringSet(a.Outputs, b.Outputs) &&
		equalStringSet(a.Upstream, b.Upstream) &&
		equalStringMap(a.Env, b.Env)
}
