package libdte

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"github.com/plan-systems/klog"

	"github.com/dte-systems/go-dte/godte"
)

// Seed topology of the general recursion engine: 10 named states joined by
// 13 transitions forming a primarily cyclic flow.
var dteSeedStates = []string{
	"Recursive Expansion",
	"Novel Insights",
	"Entropy Threshold",
	"Self-Sealing Loop",
	"External Validation Triggered",
	"Evolutionary Pruning",
	"Synthesis Phase",
	"Pattern Recognition",
	"Self-Reference Point",
	"Knowledge Integration",
}

var dteSeedTransitions = [][2]string{
	{"Recursive Expansion", "Novel Insights"},
	{"Novel Insights", "Entropy Threshold"},
	{"Entropy Threshold", "Self-Sealing Loop"},
	{"Entropy Threshold", "External Validation Triggered"},
	{"Self-Sealing Loop", "Evolutionary Pruning"},
	{"External Validation Triggered", "Recursive Expansion"},
	{"Self-Sealing Loop", "Synthesis Phase"},
	{"Evolutionary Pruning", "Synthesis Phase"},
	{"Synthesis Phase", "Recursive Expansion"},
	{"Synthesis Phase", "Pattern Recognition"},
	{"Pattern Recognition", "Self-Reference Point"},
	{"Self-Reference Point", "Knowledge Integration"},
	{"Knowledge Integration", "Recursive Expansion"},
}

const dteStartNode = "Recursive Expansion"

const initialSelfRefIndex = 0.4

// patternComplexity is a fixed descriptive metric carried in snapshots; no
// operator tunes it.
const patternComplexity = 3

// maxCycleCount bounds simple-cycle enumeration; past this the
// recursion_points metric saturates instead of stalling the engine.
const maxCycleCount = 10000

// DTEngine is the general recursion engine: a weighted random walk over an
// evolving knowledge graph, self-modifying on an entropy-driven policy.
// Not safe for concurrent use; one mutator at a time.
type DTEngine struct {
	g         *DiGraph
	opts      godte.EngineOpts
	rng       *rand.Rand
	entropyFn func() float64
	maxNodes  int

	current        string
	recursionLevel int
	stepsTaken     int
	insightsGained int
	selfRefIndex   float64
	entropyHistory []float64

	novelty    *noveltyTracker
	novelCount int

	cycleCount   int
	cycleVersion uint64
	cycleValid   bool
}

var _ godte.RecursionEngine = (*DTEngine)(nil)

func NewDTEngine(opts godte.EngineOpts) (*DTEngine, error) {
	e := &DTEngine{
		opts: opts,
		rng:  opts.Rand,
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(opts.Seed))
	}
	e.entropyFn = opts.EntropyFn
	if e.entropyFn == nil {
		e.entropyFn = e.rng.Float64
	}
	e.maxNodes = opts.MaxNodes
	if e.maxNodes <= 0 {
		e.maxNodes = godte.DefaultMaxNodes
	}
	if err := e.seed(); err != nil {
		return nil, err
	}
	klog.Infof("DTEngine initialized with %d states and %d transitions",
		e.g.NodeCount(), e.g.EdgeCount())
	e.notify(fmt.Sprintf("engine initialized with %d states and %d transitions",
		e.g.NodeCount(), e.g.EdgeCount()), godte.CategorySystem)
	return e, nil
}

// seed (re)builds the graph and scalar state from the configured topology.
func (e *DTEngine) seed() error {
	if e.opts.SeedExpr != "" {
		g, err := ParseTopology(e.opts.SeedExpr)
		if err != nil {
			return err
		}
		start := e.opts.StartNode
		if start == "" {
			if nodes := g.Nodes(); len(nodes) > 0 {
				start = nodes[0]
			}
		}
		if !g.HasNode(start) {
			return errors.Wrapf(godte.ErrBadStartNode, "%q", start)
		}
		e.g = g
		e.current = start
	} else {
		g := NewDiGraph()
		for _, s := range dteSeedStates {
			g.AddNode(s)
		}
		for _, t := range dteSeedTransitions {
			if err := g.AddEdge(t[0], t[1], DefaultWeight); err != nil {
				return err
			}
		}
		e.g = g
		e.current = dteStartNode
	}

	e.recursionLevel = 0
	e.stepsTaken = 0
	e.insightsGained = 0
	e.selfRefIndex = initialSelfRefIndex
	e.entropyHistory = nil
	e.cycleValid = false

	e.novelCount = 0
	nt, err := newNoveltyTracker()
	if err != nil {
		return err
	}
	e.novelty = nt
	e.observeTopology()
	return nil
}

// Step advances the walk by one transition. Selection is proportional to
// edge weight once any outgoing weight differs from the default, uniform
// otherwise. Every AdjustEvery'th step also self-adjusts the structure.
// A dead end returns ErrDeadEnd and leaves all state untouched.
func (e *DTEngine) Step() (godte.Transition, error) {
	succ := e.g.Successors(e.current)
	if len(succ) == 0 {
		klog.Warningf("no successor states available from %q", e.current)
		e.notify(fmt.Sprintf("unable to progress from %s: recursive dead end", e.current),
			godte.CategoryThought)
		return godte.Transition{}, godte.ErrDeadEnd
	}

	next := e.chooseNext(succ)
	old := e.current
	e.current = next
	e.stepsTaken++

	e.notify(fmt.Sprintf("transitioned from %s to %s", old, next), godte.CategoryThought)

	if e.stepsTaken%godte.AdjustEvery == 0 {
		if _, err := e.AdjustRecursion(); err != nil {
			return godte.Transition{From: old, To: next}, err
		}
	}
	return godte.Transition{From: old, To: next}, nil
}

func (e *DTEngine) chooseNext(succ []string) string {
	weights := make([]float64, len(succ))
	uniform := true
	for i, s := range succ {
		w, _ := e.g.Weight(e.current, s)
		weights[i] = w
		if w != DefaultWeight {
			uniform = false
		}
	}
	if uniform {
		return succ[e.rng.Intn(len(succ))]
	}
	return weightedPick(e.rng, succ, weights)
}

// AdjustRecursion samples an entropy value and self-modifies accordingly:
// high entropy mutates the graph structure, low entropy consolidates, the
// middle band reinforces pathway weights.
func (e *DTEngine) AdjustRecursion() (string, error) {
	entropy := e.entropyFn()
	e.entropyHistory = append(e.entropyHistory, entropy)

	switch {
	case entropy > 0.8:
		klog.Infof("high entropy detected (%.2f): modifying recursion depth and pathways", entropy)
		e.recursionLevel++
		e.selfRefIndex += 0.1
		desc, err := e.Mutate("")
		if err != nil {
			return "", err
		}
		e.insightsGained += 2
		return "High entropy pathway modification applied: " + desc, nil

	case entropy < 0.3:
		klog.Infof("low entropy (%.2f): simplification phase activated", entropy)
		desc, err := e.ConsolidateKnowledge()
		if err != nil {
			return "", err
		}
		e.notify(desc, godte.CategorySystem)
		return "Low entropy consolidation phase completed: " + desc, nil

	default:
		klog.Infof("recursion stable (%.2f): incremental optimization applied", entropy)
		if err := e.OptimizePathways(); err != nil {
			return "", err
		}
		e.insightsGained++
		return "Moderate entropy optimization applied", nil
	}
}

// Mutate applies the named structural operator, or a uniformly random one
// when name is empty. Operators whose preconditions fail are described
// no-ops, never errors; an error here means a violated graph invariant.
func (e *DTEngine) Mutate(name string) (string, error) {
	if name == "" {
		name = MutationNames[e.rng.Intn(len(MutationNames))]
	}
	fn, ok := Mutations[name]
	if !ok {
		return "", errors.Errorf("unknown mutation %q", name)
	}
	st := &MutationState{
		Graph:          e.g,
		Rand:           e.rng,
		Current:        e.current,
		RecursionLevel: e.recursionLevel,
		MaxNodes:       e.maxNodes,
	}
	desc, err := fn(st)
	if err != nil {
		klog.Errorf("mutation %q violated a graph invariant: %v", name, err)
		return "", err
	}
	e.current = st.Current
	e.observeTopology()
	klog.Infof("code structure modified: %s", desc)
	e.notify(desc, godte.CategorySystem)
	return desc, nil
}

// ConsolidateKnowledge merges two randomly chosen nodes into one; a no-op
// while fewer than 8 nodes exist.
func (e *DTEngine) ConsolidateKnowledge() (string, error) {
	st := &MutationState{
		Graph:          e.g,
		Rand:           e.rng,
		Current:        e.current,
		RecursionLevel: e.recursionLevel,
		MaxNodes:       e.maxNodes,
	}
	desc, err := mutateMerge(st)
	if err != nil {
		return "", err
	}
	e.current = st.Current
	e.observeTopology()
	return desc, nil
}

// OptimizePathways reinforces edge weights around the current node,
// randomly strengthens or decays others, clamps everything at
// MaxEdgeWeight, and occasionally spawns an insight node off the walk.
func (e *DTEngine) OptimizePathways() error {
	for _, edge := range e.g.Edges() {
		w := edge.Weight
		switch {
		case edge.Src == e.current || edge.Dst == e.current:
			w *= 1.2
		case e.rng.Float64() < 0.3:
			w *= 1.1
		case e.rng.Float64() < 0.2:
			w *= 0.9
		}
		if w > godte.MaxEdgeWeight {
			w = godte.MaxEdgeWeight
		}
		if w != edge.Weight {
			if err := e.g.AddEdge(edge.Src, edge.Dst, w); err != nil {
				return err
			}
		}
	}

	if e.rng.Float64() < 0.15 && e.g.NodeCount() < e.maxNodes {
		name := fmt.Sprintf("Insight_%d", e.insightsGained)
		if e.g.AddNode(name) {
			if err := e.g.AddEdge(e.current, name, DefaultWeight); err != nil {
				return err
			}
			others := make([]string, 0, e.g.NodeCount())
			for _, n := range e.g.Nodes() {
				if n != name && n != e.current {
					others = append(others, n)
				}
			}
			if len(others) > 0 {
				other := others[e.rng.Intn(len(others))]
				if err := e.g.AddEdge(name, other, DefaultWeight); err != nil {
					return err
				}
			}
			klog.Infof("created new insight node %q", name)
			e.notify("new insight node "+name, godte.CategoryInsight)
			e.observeTopology()
		}
	}
	return nil
}

// Reset discards all state and reinitializes to the seed topology. The
// random source is kept as-is; reproducing a run from its beginning means
// constructing a fresh engine with the same seed.
func (e *DTEngine) Reset() {
	oldNodes, oldEdges := e.g.NodeCount(), e.g.EdgeCount()
	if err := e.seed(); err != nil {
		// Reseeding the fixed topology cannot fail; a SeedExpr that parsed
		// at construction parses now.
		klog.Fatalf("reset failed: %v", err)
	}
	klog.Infof("simulation reset: nodes %d -> %d, edges %d -> %d",
		oldNodes, e.g.NodeCount(), oldEdges, e.g.EdgeCount())
	e.notify("simulation reset to initial state", godte.CategorySystem)
}

// GetState returns a read-only snapshot: current node, scalar metrics, and
// node/edge views with derived grouping for visualization collaborators.
func (e *DTEngine) GetState() godte.Snapshot {
	lastEntropy := 0.5
	if n := len(e.entropyHistory); n > 0 {
		lastEntropy = e.entropyHistory[n-1]
	}

	nodeCount := e.g.NodeCount()
	edgeCount := e.g.EdgeCount()
	metrics := map[string]float64{
		"recursion_level":      float64(e.recursionLevel),
		"steps_taken":          float64(e.stepsTaken),
		"insights_gained":      float64(e.insightsGained),
		"node_count":           float64(nodeCount),
		"edge_count":           float64(edgeCount),
		"complexity_score":     0.4*float64(nodeCount) + 0.6*float64(edgeCount),
		"pattern_complexity":   patternComplexity,
		"recursion_points":     float64(e.recursionPoints()),
		"self_reference_index": e.selfRefIndex,
		"entropy":              lastEntropy,
		"novel_topologies":     float64(e.novelCount),
	}

	nodes := make([]godte.NodeView, 0, nodeCount)
	for _, key := range e.g.Nodes() {
		group := 1
		switch {
		case key == e.current:
			group = 0
		case strings.Contains(key, "Insight"):
			group = 2
		case strings.Contains(key, "Branch"):
			group = 3
		}
		label := key
		if i := strings.IndexByte(key, '_'); i >= 0 {
			label = key[:i]
		}
		nodes = append(nodes, godte.NodeView{ID: key, Group: group, Label: label})
	}

	links := make([]godte.EdgeView, 0, edgeCount)
	for _, edge := range e.g.Edges() {
		links = append(links, godte.EdgeView{
			Source:   edge.Src,
			Target:   edge.Dst,
			Weight:   edge.Weight,
			Weighted: true,
		})
	}

	return godte.Snapshot{
		Current: e.current,
		Metrics: metrics,
		Nodes:   nodes,
		Links:   links,
	}
}

// recursionPoints is the simple-cycle count, computed on demand and
// memoized against the graph version. Recomputing it eagerly after every
// mutation does not survive graph growth.
func (e *DTEngine) recursionPoints() int {
	if e.cycleValid && e.cycleVersion == e.g.Version() {
		return e.cycleCount
	}
	e.cycleCount = e.g.CountSimpleCycles(maxCycleCount)
	e.cycleVersion = e.g.Version()
	e.cycleValid = true
	return e.cycleCount
}

func (e *DTEngine) observeTopology() {
	var scrap [256]byte
	sig := e.g.Signature(scrap[:0])
	if e.novelty.Observe(sig) {
		e.novelCount++
	}
}

// notify hands an event to the configured collaborator. Collaborator
// failures never propagate into the engine.
func (e *DTEngine) notify(content string, cat godte.Category) {
	n := e.opts.Notifier
	if n == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("notifier panic swallowed: %v", r)
		}
	}()
	n.Notify(godte.Event{
		Content:        content,
		Category:       cat,
		Node:           e.current,
		RecursionLevel: e.recursionLevel,
		Step:           e.stepsTaken,
	})
}
