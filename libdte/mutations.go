package libdte

import (
	"fmt"
	"math/rand"
)

// MutationState is the working set handed to a structural operator.
// Operators that rename or merge nodes keep Current pointing at a live
// node; callers adopt it back after the operator returns.
type MutationState struct {
	Graph          *DiGraph
	Rand           *rand.Rand
	Current        string
	RecursionLevel int
	MaxNodes       int
}

// MutationFunc rewrites graph topology and returns a human-readable
// description. Unsatisfied preconditions yield a described no-op; an error
// means a graph invariant was violated and the engine must not continue.
type MutationFunc func(st *MutationState) (string, error)

// MutationNames lists the general engine's operators in selection order.
var MutationNames = []string{"prune", "expand", "restructure", "branch", "merge"}

// Mutations is the general engine's structural operator catalog.
var Mutations = map[string]MutationFunc{
	"prune":       mutatePrune,
	"expand":      mutateExpand,
	"restructure": mutateRestructure,
	"branch":      mutateBranch,
	"merge":       mutateMerge,
}

// minPruneEdges is the edge count below which prune refuses to thin the
// graph further.
const minPruneEdges = 6

// minMergeNodes is the node count below which consolidation is a no-op.
const minMergeNodes = 8

func mutatePrune(st *MutationState) (string, error) {
	if st.Graph.EdgeCount() < minPruneEdges {
		return "prune skipped: too few pathways remain", nil
	}
	edges := st.Graph.Edges()
	victim := edges[st.Rand.Intn(len(edges))]
	if err := st.Graph.RemoveEdge(victim.Src, victim.Dst); err != nil {
		return "", err
	}
	return fmt.Sprintf("Pruned connection from %s to %s", victim.Src, victim.Dst), nil
}

func mutateExpand(st *MutationState) (string, error) {
	nodes := st.Graph.Nodes()
	if len(nodes) < 2 {
		return "expand skipped: not enough states", nil
	}
	src, dst := samplePair(st.Rand, nodes)
	if st.Graph.HasEdge(src, dst) {
		return "expand skipped: pathway already exists", nil
	}
	if err := st.Graph.AddEdge(src, dst, DefaultWeight); err != nil {
		return "", err
	}
	return fmt.Sprintf("Created new pathway: %s -> %s", src, dst), nil
}

var restructureVersions = []string{"enhanced", "recursive", "optimized", "generalized", "specialized"}

func mutateRestructure(st *MutationState) (string, error) {
	version := restructureVersions[st.Rand.Intn(len(restructureVersions))]
	suffix := "_" + version
	mapping := make(map[string]string, st.Graph.NodeCount())
	for _, key := range st.Graph.Nodes() {
		mapping[key] = key + suffix
	}
	if err := st.Graph.Relabel(mapping); err != nil {
		return "", err
	}
	st.Current += suffix
	return fmt.Sprintf("Restructured system to %s version", version), nil
}

// branchInDegree / branchOutDegree bound how many existing nodes feed the
// new branch state and how many it feeds back into.
const (
	branchInDegree  = 3
	branchOutDegree = 2
)

func mutateBranch(st *MutationState) (string, error) {
	if st.Graph.NodeCount() >= st.MaxNodes {
		return "branch skipped: node ceiling reached", nil
	}
	existing := st.Graph.Nodes()
	name := fmt.Sprintf("Branch_%d_%d", st.RecursionLevel, 1+st.Rand.Intn(100))
	if !st.Graph.AddNode(name) {
		return "branch skipped: state already exists", nil
	}

	sources := sampleK(st.Rand, existing, branchInDegree)
	for _, src := range sources {
		if err := st.Graph.AddEdge(src, name, DefaultWeight); err != nil {
			return "", err
		}
	}
	targets := sampleK(st.Rand, existing, branchOutDegree)
	for _, dst := range targets {
		if err := st.Graph.AddEdge(name, dst, DefaultWeight); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Created new branch state: %s with %d inputs and %d outputs",
		name, len(sources), len(targets)), nil
}

func mutateMerge(st *MutationState) (string, error) {
	if st.Graph.NodeCount() < minMergeNodes {
		return "merge skipped: no suitable candidates", nil
	}
	a, b := samplePair(st.Rand, st.Graph.Nodes())
	merged := a + "+" + b
	if err := st.Graph.Merge(a, b, merged); err != nil {
		return "", err
	}
	if st.Current == a || st.Current == b {
		st.Current = merged
	}
	return fmt.Sprintf("Merged %s and %s into %s", a, b, merged), nil
}
