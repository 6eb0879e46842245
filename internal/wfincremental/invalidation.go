// Package wfincremental computes, between two runs of the same build graph,
// which targets changed enough to require re-execution: a per-target
// invalidation decision with a stable reason, transitively propagated to
// every downstream dependent, and an execution plan (Execute/ReuseCache)
// built from invalidation state plus cache presence.
package wfincremental

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"weaveforge/internal/core"
)

// InvalidationReasonType is the stable, closed reason category. These
// string-adjacent ordinal values feed MarshalBinary's canonical bytes: do
// not renumber without considering any stored plan hash's meaning.
type InvalidationReasonType string

const (
	ReasonInputChanged          InvalidationReasonType = "InputChanged"
	ReasonEnvChanged             InvalidationReasonType = "EnvChanged"
	ReasonDependencyInvalidated InvalidationReasonType = "DependencyInvalidated"
	ReasonGraphStructureChanged InvalidationReasonType = "GraphStructureChanged"
	ReasonCommandChanged        InvalidationReasonType = "CommandChanged"
	ReasonOutputChanged         InvalidationReasonType = "OutputChanged"
)

// InvalidationDetail is an optional key/value pair giving reason-specific
// context (e.g. which input name changed).
type InvalidationDetail struct {
	Key   string
	Value string
}

// InvalidationReason describes one atomic cause of invalidation.
// SourceTargetID is required iff Type == ReasonDependencyInvalidated.
type InvalidationReason struct {
	Type           InvalidationReasonType
	SourceTargetID string
	Details        []InvalidationDetail
}

func (r InvalidationReason) Validate() error {
	if r.Type == "" {
		return errors.New("invalidation reason type is required")
	}
	if r.Type == ReasonDependencyInvalidated && r.SourceTargetID == "" {
		return errors.New("dependency invalidation requires sourceTargetID")
	}
	for i := range r.Details {
		if r.Details[i].Key == "" {
			return fmt.Errorf("details[%d].key is empty", i)
		}
	}
	return nil
}

func (r InvalidationReason) canonical() InvalidationReason {
	if len(r.Details) == 0 {
		r.Details = nil
		return r
	}
	dd := append([]InvalidationDetail(nil), r.Details...)
	sort.Slice(dd, func(i, j int) bool {
		if dd[i].Key != dd[j].Key {
			return dd[i].Key < dd[j].Key
		}
		return dd[i].Value < dd[j].Value
	})
	j := 0
	for i := 0; i < len(dd); i++ {
		if i == 0 || dd[i] != dd[i-1] {
			dd[j] = dd[i]
			j++
		}
	}
	r.Details = dd[:j]
	return r
}

// MarshalBinary produces a canonical, fixed-field-order encoding:
// type, hasSource, [sourceTargetId], detailCount, (key,value)*.
func (r InvalidationReason) MarshalBinary() ([]byte, error) {
	r = r.canonical()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writeString(&buf, string(r.Type))
	if r.SourceTargetID != "" {
		buf.WriteByte(1)
		writeString(&buf, r.SourceTargetID)
	} else {
		buf.WriteByte(0)
	}
	binary.Write(&buf, binary.BigEndian, uint32(len(r.Details)))
	for _, d := range r.Details {
		writeString(&buf, d.Key)
		writeString(&buf, d.Value)
	}
	return buf.Bytes(), nil
}

// InvalidationReasons is a per-target set of reasons, canonicalized by
// sorting and deduplication so creation order never affects serialized bytes.
type InvalidationReasons []InvalidationReason

func (rs InvalidationReasons) Canonicalize() InvalidationReasons {
	if len(rs) == 0 {
		return nil
	}
	out := make([]InvalidationReason, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.canonical())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if reasonTypeOrder(a.Type) != reasonTypeOrder(b.Type) {
			return reasonTypeOrder(a.Type) < reasonTypeOrder(b.Type)
		}
		if a.SourceTargetID != b.SourceTargetID {
			return a.SourceTargetID < b.SourceTargetID
		}
		return compareDetails(a.Details, b.Details)
	})
	j := 0
	for i := 0; i < len(out); i++ {
		if i == 0 || !reasonEqual(out[i], out[i-1]) {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}

func (rs InvalidationReasons) MarshalBinary() ([]byte, error) {
	rs = rs.Canonicalize()
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(rs)))
	for _, r := range rs {
		b, err := r.MarshalBinary()
		if err != nil {
			return nil, err
		}
		binary.Write(&buf, binary.BigEndian, uint32(len(b)))
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func reasonTypeOrder(t InvalidationReasonType) int {
	switch t {
	case ReasonInputChanged:
		return 10
	case ReasonEnvChanged:
		return 20
	case ReasonDependencyInvalidated:
		return 30
	case ReasonGraphStructureChanged:
		return 40
	case ReasonCommandChanged:
		return 50
	case ReasonOutputChanged:
		return 60
	default:
		return 1000
	}
}

func compareDetails(a, b []InvalidationDetail) bool {
	min := len(a)
	if len(b) < min {
		min = len(b)
	}
	for i := 0; i < min; i++ {
		if a[i].Key != b[i].Key {
			return a[i].Key < b[i].Key
		}
		if a[i].Value != b[i].Value {
			return a[i].Value < b[i].Value
		}
	}
	return len(a) < len(b)
}

func reasonEqual(a, b InvalidationReason) bool {
	if a.Type != b.Type || a.SourceTargetID != b.SourceTargetID || len(a.Details) != len(b.Details) {
		return false
	}
	for i := range a.Details {
		if a.Details[i] != b.Details[i] {
			return false
		}
	}
	return true
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

// NodeSnapshot captures the minimal identity a target needs for invalidation
// and plan decisions: everything that, if changed, should force
// re-execution, plus the cache key (ActionID) used to check cache presence.
type NodeSnapshot struct {
	TargetID string

	// ActionID is this target's current cache key, used only by plan
	// building to check cache presence; it plays no role in invalidation.
	ActionID core.ActionId

	// InputHash is the deterministic summary of resolved input content
	// (wfhash.InputFingerprint's output). Any change invalidates the node.
	InputHash string

	// DeclaredInputs is the target's declared source set, treated as a set
	// for identity purposes.
	DeclaredInputs []string

	Env     map[string]string
	Command string
	Outputs []string

	// Upstream is the list of direct dependency target IDs.
	Upstream []string
}

// GraphSnapshot is the minimal per-run state needed to compute an
// incremental invalidation map, addressed by canonical target ID string.
type GraphSnapshot struct {
	Nodes map[string]NodeSnapshot
}

// InvalidationEntry is one target's invalidation decision.
type InvalidationEntry struct {
	Invalidated bool
	Reasons     InvalidationReasons
}

// InvalidationMap maps target ID -> invalidation decision, with an entry
// for every target in the new graph.
type InvalidationMap map[string]InvalidationEntry

// MarshalBinary produces a canonical encoding independent of Go map
// iteration order: target IDs are sorted lexicographically first.
func (m InvalidationMap) MarshalBinary() ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(keys)))
	for _, k := range keys {
		e := m[k]
		writeString(&buf, k)
		reasonsBytes, err := e.Reasons.MarshalBinary()
		if err != nil {
			return nil, err
		}
		binary.Write(&buf, binary.BigEndian, uint32(len(reasonsBytes)))
		buf.Write(reasonsBytes)
	}
	return buf.Bytes(), nil
}

// CalculateInvalidation computes which targets in newGraph are invalidated
// relative to oldGraph. Invalidation is strictly transitive: if A is
// invalidated, every downstream dependent of A in the new graph is
// invalidated too, with a DependencyInvalidated reason naming A as the root
// cause (or A's own root cause, if A itself was only invalidated by
// propagation).
func CalculateInvalidation(oldGraph, newGraph *GraphSnapshot) InvalidationMap {
	result := make(InvalidationMap)
	if newGraph == nil || len(newGraph.Nodes) == 0 {
		return result
	}

	oldNodes := map[string]NodeSnapshot{}
	if oldGraph != nil && oldGraph.Nodes != nil {
		oldNodes = oldGraph.Nodes
	}

	names := make([]string, 0, len(newGraph.Nodes))
	for name := range newGraph.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	outgoing := make(map[string][]string, len(newGraph.Nodes))
	indeg := make(map[string]int, len(newGraph.Nodes))
	for _, name := range names {
		indeg[name] = 0
	}
	for _, name := range names {
		n := newGraph.Nodes[name]
		for _, parent := range normalizeStringSet(n.Upstream) {
			if _, exists := newGraph.Nodes[parent]; !exists {
				continue
			}
			outgoing[parent] = append(outgoing[parent], name)
			indeg[name]++
		}
	}
	for k := range outgoing {
		sort.Strings(outgoing[k])
	}

	topo := topoOrder(names, outgoing, indeg)
	rootSources := make(map[string][]string, len(newGraph.Nodes))

	directReasonsFor := func(oldNode NodeSnapshot, existed bool, newNode NodeSnapshot) InvalidationReasons {
		if !existed {
			return InvalidationReasons{InvalidationReason{Type: ReasonGraphStructureChanged}}.Canonicalize()
		}

		var direct InvalidationReasons
		if newNode.InputHash != oldNode.InputHash {
			direct = append(direct, InvalidationReason{Type: ReasonInputChanged})
		}

		if !equalStringSet(newNode.DeclaredInputs, oldNode.DeclaredInputs) {
			for _, name := range symmetricSetDiff(oldNode.DeclaredInputs, newNode.DeclaredInputs) {
				direct = append(direct, InvalidationReason{Type: ReasonGraphStructureChanged, Details: []InvalidationDetail{{Key: "InputName", Value: name}}})
			}
			if len(direct) == 0 {
				direct = append(direct, InvalidationReason{Type: ReasonGraphStructureChanged, Details: []InvalidationDetail{{Key: "DeclaredInputs", Value: "changed"}}})
			}
		}

		if !equalStringMap(newNode.Env, oldNode.Env) {
			keys := changedMapKeys(oldNode.Env, newNode.Env)
			if len(keys) == 0 {
				direct = append(direct, InvalidationReason{Type: ReasonEnvChanged})
			} else {
				details := make([]InvalidationDetail, 0, len(keys))
				for _, k := range keys {
					details = append(details, InvalidationDetail{Key: "EnvName", Value: k})
				}
				direct = append(direct, InvalidationReason{Type: ReasonEnvChanged, Details: details})
			}
		}

		if newNode.Command != oldNode.Command {
			direct = append(direct, InvalidationReason{Type: ReasonCommandChanged})
		}

		if !equalStringSet(newNode.Outputs, oldNode.Outputs) {
			outputs := symmetricSetDiff(oldNode.Outputs, newNode.Outputs)
			if len(outputs) == 0 {
				direct = append(direct, InvalidationReason{Type: ReasonOutputChanged})
			} else {
				details := make([]InvalidationDetail, 0, len(outputs))
				for _, o := range outputs {
					details = append(details, InvalidationDetail{Key: "OutputName", Value: o})
				}
				direct = append(direct, InvalidationReason{Type: ReasonOutputChanged, Details: details})
			}
		}

		if !equalStringSet(newNode.Upstream, oldNode.Upstream) {
			direct = append(direct, InvalidationReason{Type: ReasonGraphStructureChanged, Details: []InvalidationDetail{{Key: "Upstream", Value: "changed"}}})
		}

		for _, parent := range normalizeStringSet(newNode.Upstream) {
			if _, ok := newGraph.Nodes[parent]; !ok {
				direct = append(direct, InvalidationReason{Type: ReasonGraphStructureChanged, Details: []InvalidationDetail{{Key: "UpstreamTargetID", Value: parent}, {Key: "Upstream", Value: "missing"}}})
			}
		}

		return direct.Canonicalize()
	}

	for _, name := range topo {
		newNode := newGraph.Nodes[name]
		oldNode, existed := oldNodes[name]

		direct := directReasonsFor(oldNode, existed, newNode)

		sourceSet := make(map[string]struct{})
		for _, parent := range normalizeStringSet(newNode.Upstream) {
			pEntry, ok := result[parent]
			if !ok || !pEntry.Invalidated {
				continue
			}
			for _, src := range rootSources[parent] {
				sourceSet[src] = struct{}{}
			}
		}
		depSources := make([]string, 0, len(sourceSet))
		for src := range sourceSet {
			depSources = append(depSources, src)
		}
		sort.Strings(depSources)

		var dep InvalidationReasons
		for _, src := range depSources {
			dep = append(dep, InvalidationReason{Type: ReasonDependencyInvalidated, SourceTargetID: src})
		}

		reasons := append(direct, dep...).Canonicalize()
		entry := InvalidationEntry{Invalidated: len(reasons) > 0, Reasons: reasons}
		result[name] = entry

		if !entry.Invalidated {
			rootSources[name] = nil
			continue
		}
		rootSet := make(map[string]struct{})
		if len(direct) > 0 {
			rootSet[name] = struct{}{}
		}
		for _, src := range depSources {
			rootSet[src] = struct{}{}
		}
		rootList := make([]string, 0, len(rootSet))
		for src := range rootSet {
			rootList = append(rootList, src)
		}
		sort.Strings(rootList)
		rootSources[name] = rootList
	}

	return result
}

func symmetricSetDiff(a, b []string) []string {
	aa, bb := normalizeStringSet(a), normalizeStringSet(b)
	setA := make(map[string]struct{}, len(aa))
	for _, v := range aa {
		setA[v] = struct{}{}
	}
	setB := make(map[string]struct{}, len(bb))
	for _, v := range bb {
		setB[v] = struct{}{}
	}
	var diff []string
	for _, v := range aa {
		if _, ok := setB[v]; !ok {
			diff = append(diff, v)
		}
	}
	for _, v := range bb {
		if _, ok := setA[v]; !ok {
			diff = append(diff, v)
		}
	}
	sort.Strings(diff)
	return diff
}

func changedMapKeys(a, b map[string]string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	all := make([]string, 0, len(keys))
	for k := range keys {
		all = append(all, k)
	}
	sort.Strings(all)
	var changed []string
	for _, k := range all {
		av, aok := a[k]
		bv, bok := b[k]
		if aok != bok || av != bv {
			changed = append(changed, k)
		}
	}
	return changed
}

func normalizeStringSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	j := 0
	for i := 0; i < len(out); i++ {
		if i == 0 || out[i] != out[i-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}

func equalStringSet(a, b []string) bool {
	aa, bb := normalizeStringSet(a), normalizeStringSet(b)
	if len(aa) != len(bb) {
		return false
	}
	for i := range aa {
		if aa[i] != bb[i] {
			return false
		}
	}
	return true
}

func equalStringMap(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		if bv, ok := b[k]; !ok || av != bv {
			return false
		}
	}
	return true
}

func topoOrder(names []string, outgoing map[string][]string, indeg map[string]int) []string {
	ind := make(map[string]int, len(indeg))
	for k, v := range indeg {
		ind[k] = v
	}
	ready := make([]string, 0, len(names))
	for _, n := range names {
		if ind[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(names))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, m := range outgoing[n] {
			ind[m]--
			if ind[m] == 0 {
				idx := sort.SearchStrings(ready, m)
				ready = append(ready, "")
				copy(ready[idx+1:], ready[idx:])
				ready[idx] = m
			}
		}
	}

	if len(order) != len(names) {
		fallback := append([]string(nil), names...)
		sort.Strings(fallback)
		return fallback
	}
	return order
}
