package libdte

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/plan-systems/klog"

	"github.com/dte-systems/go-dte/godte"
)

// Fractal parameter bounds.
const (
	minFractalDepth = 2
	maxFractalDepth = 7

	minBranchingFactor = 2
	maxBranchingFactor = 4

	minSymmetryFactor = 2
	maxSymmetryFactor = 7

	minFractalComplexity = 1.0
	maxFractalComplexity = 3.0

	defaultFractalDepth = 3
	defaultBranching    = 2
	defaultSymmetry     = 3
	defaultPattern      = "sierpinski"
)

// fractalPatterns enumerates the base pattern types; hybrid operators may
// combine two of them into a composite label.
var fractalPatterns = []string{"sierpinski", "koch", "dragon", "tree", "mandelbrot", "julia"}

var fractalDimensions = map[string]float64{
	"sierpinski": 1.58,
	"koch":       1.26,
	"dragon":     2.0,
	"tree":       1.8,
	"mandelbrot": 2.0,
	"julia":      2.0,
}

// DimensionOf returns the static dimension associated with a base pattern
// type. Pattern dimensions are lookup labels, not computed geometry.
func DimensionOf(pattern string) (float64, bool) {
	d, ok := fractalDimensions[pattern]
	return d, ok
}

// FractalMutationNames lists the fractal engine's operators in selection
// order.
var FractalMutationNames = []string{"deepen", "pattern_shift", "branch", "symmetry", "hybrid"}

// hybridMaxRetry bounds how often the hybrid operator re-rolls another
// operator before settling for a symmetry perturbation.
const hybridMaxRetry = 3

// FractalEngine walks a leveled chain graph and mutates fractal parameters
// (depth, branching, pattern, symmetry) instead of a knowledge graph.
// Not safe for concurrent use; one mutator at a time.
type FractalEngine struct {
	g         *DiGraph
	opts      godte.EngineOpts
	rng       *rand.Rand
	entropyFn func() float64
	maxNodes  int

	current        string
	depth          int
	branching      int
	patternType    string
	dimension      float64
	symmetry       int
	complexity     float64
	patternHistory []string
	iterations     int
	stepsTaken     int

	novelty    *noveltyTracker
	novelCount int
}

var _ godte.RecursionEngine = (*FractalEngine)(nil)

func NewFractalEngine(opts godte.EngineOpts) (*FractalEngine, error) {
	e := &FractalEngine{
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
	klog.Infof("FractalEngine initialized with %s pattern at depth %d", e.patternType, e.depth)
	e.notify(fmt.Sprintf("fractal engine initialized with %s pattern at depth %d",
		e.patternType, e.depth), godte.CategorySystem)
	return e, nil
}

func levelName(i int) string {
	return "Level_" + strconv.Itoa(i)
}

func (e *FractalEngine) seed() error {
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
		e.depth = g.NodeCount()
	} else {
		g := NewDiGraph()
		e.depth = defaultFractalDepth
		for i := 0; i < e.depth; i++ {
			g.AddNode(levelName(i))
		}
		for i := 0; i < e.depth-1; i++ {
			if err := g.AddEdge(levelName(i), levelName(i+1), DefaultWeight); err != nil {
				return err
			}
			if i > 0 {
				if err := g.AddEdge(levelName(i), levelName(i-1), DefaultWeight); err != nil {
					return err
				}
			}
		}
		e.g = g
		e.current = levelName(0)
	}

	e.branching = defaultBranching
	e.patternType = defaultPattern
	e.dimension = fractalDimensions[defaultPattern]
	e.symmetry = defaultSymmetry
	e.complexity = minFractalComplexity
	e.patternHistory = []string{defaultPattern}
	e.iterations = 0
	e.stepsTaken = 0

	e.novelCount = 0
	nt, err := newNoveltyTracker()
	if err != nil {
		return err
	}
	e.novelty = nt
	e.observeTopology()
	return nil
}

// Step advances the walk one level by uniform choice among successors.
// A dead end returns ErrDeadEnd and leaves all state untouched.
func (e *FractalEngine) Step() (godte.Transition, error) {
	succ := e.g.Successors(e.current)
	if len(succ) == 0 {
		klog.Warningf("no successor states available from %q", e.current)
		return godte.Transition{}, godte.ErrDeadEnd
	}

	next := succ[e.rng.Intn(len(succ))]
	old := e.current
	e.current = next
	e.stepsTaken++

	e.notify(fmt.Sprintf("moved from %s to %s", old, next), godte.CategoryThought)

	if e.stepsTaken%godte.AdjustEvery == 0 {
		if _, err := e.AdjustRecursion(); err != nil {
			return godte.Transition{From: old, To: next}, err
		}
	}

	// Lingering on a level occasionally counts as another pattern iteration.
	if strings.Contains(e.current, "Level") && e.rng.Float64() < 0.2 {
		e.iterations++
	}
	return godte.Transition{From: old, To: next}, nil
}

// AdjustRecursion tunes complexity, depth, and symmetry on the entropy
// policy; the high band additionally applies a structural mutation.
func (e *FractalEngine) AdjustRecursion() (string, error) {
	entropy := e.entropyFn()

	switch {
	case entropy > 0.7:
		klog.Infof("fractal complexity increasing (entropy %.2f)", entropy)
		if e.complexity < maxFractalComplexity {
			e.complexity = clampFloat(e.complexity+0.2, minFractalComplexity, maxFractalComplexity)
		}
		desc, err := e.Mutate("")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Increased complexity to %.1f. %s", e.complexity, desc), nil

	case entropy < 0.3:
		klog.Infof("fractal structure simplifying (entropy %.2f)", entropy)
		if e.complexity > minFractalComplexity {
			e.complexity = clampFloat(e.complexity-0.1, minFractalComplexity, maxFractalComplexity)
		}
		if e.depth > minFractalDepth && e.rng.Float64() < 0.3 {
			// Parameter shrink only; level nodes stay so the walk never
			// strands the current node.
			e.depth--
			klog.Infof("reduced fractal depth to %d", e.depth)
		}
		desc := fmt.Sprintf("Simplified structure, complexity now %.1f", e.complexity)
		e.notify(desc, godte.CategorySystem)
		return desc, nil

	default:
		klog.Infof("fractal structure stable (entropy %.2f)", entropy)
		e.symmetry = clampInt(e.symmetry+e.rng.Intn(3)-1, minSymmetryFactor, maxSymmetryFactor)
		desc := fmt.Sprintf("Maintained stability, adjusted symmetry to %d", e.symmetry)
		e.notify(desc, godte.CategorySystem)
		return desc, nil
	}
}

// Mutate applies the named fractal operator, or a uniformly random one when
// name is empty. Operators whose preconditions fail are described no-ops.
func (e *FractalEngine) Mutate(name string) (string, error) {
	desc, err := e.applyOp(name, 0)
	if err != nil {
		return "", err
	}
	e.iterations++
	e.observeTopology()
	klog.Infof("modified fractal structure: %s", desc)
	e.notify(desc, godte.CategorySystem)
	return desc, nil
}

func (e *FractalEngine) applyOp(name string, attempt int) (string, error) {
	if name == "" {
		name = FractalMutationNames[e.rng.Intn(len(FractalMutationNames))]
	}
	switch name {
	case "deepen":
		return e.opDeepen()
	case "pattern_shift":
		return e.opPatternShift(), nil
	case "branch":
		return e.opBranch()
	case "symmetry":
		return e.opSymmetry(), nil
	case "hybrid":
		if desc, ok := e.opHybrid(); ok {
			return desc, nil
		}
		if attempt >= hybridMaxRetry {
			return e.opSymmetry(), nil
		}
		return e.applyOp("", attempt+1)
	default:
		return "", errors.Errorf("unknown fractal mutation %q", name)
	}
}

// opDeepen appends one level with a forward edge and, past depth 3, a
// backward edge two levels down. Depth caps at maxFractalDepth; further
// attempts are described no-ops.
func (e *FractalEngine) opDeepen() (string, error) {
	if e.depth >= maxFractalDepth {
		return fmt.Sprintf("deepen skipped: depth capped at %d", maxFractalDepth), nil
	}
	e.depth++
	newLevel := levelName(e.depth - 1)
	prev := levelName(e.depth - 2)
	e.g.AddNode(newLevel)
	e.g.AddNode(prev) // branch regeneration may have renamed the chain
	if err := e.g.AddEdge(prev, newLevel, DefaultWeight); err != nil {
		return "", err
	}
	if e.depth > 3 {
		back := levelName(e.depth - 3)
		e.g.AddNode(back)
		if err := e.g.AddEdge(newLevel, back, DefaultWeight); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Deepened fractal to level %d", e.depth), nil
}

func (e *FractalEngine) opPatternShift() string {
	candidates := make([]string, 0, len(fractalPatterns))
	for _, p := range fractalPatterns {
		if p != e.patternType {
			candidates = append(candidates, p)
		}
	}
	old := e.patternType
	e.patternType = candidates[e.rng.Intn(len(candidates))]
	e.dimension = fractalDimensions[e.patternType]
	e.patternHistory = append(e.patternHistory, e.patternType)
	return fmt.Sprintf("Shifted pattern from %s to %s", old, e.patternType)
}

func (e *FractalEngine) opBranch() (string, error) {
	if e.rng.Float64() > 0.5 && e.branching < maxBranchingFactor {
		e.branching++
		if err := e.regenerateAsTree(); err != nil {
			return "", err
		}
		return fmt.Sprintf("Increased branching factor to %d", e.branching), nil
	}

	if e.g.NodeCount() >= e.maxNodes {
		return "branch skipped: node ceiling reached", nil
	}
	branchName := fmt.Sprintf("Branch_%d", 1+e.rng.Intn(100))
	span := e.depth
	if span > 3 {
		span = 3
	}
	for i := 0; i < span; i++ {
		node := fmt.Sprintf("Level_%d_%s", i, branchName)
		e.g.AddNode(node)
		e.g.AddNode(levelName(i))
		if err := e.g.AddEdge(levelName(i), node, DefaultWeight); err != nil {
			return "", err
		}
		if i > 0 {
			prev := fmt.Sprintf("Level_%d_%s", i-1, branchName)
			if err := e.g.AddEdge(prev, node, DefaultWeight); err != nil {
				return "", err
			}
		}
	}
	return fmt.Sprintf("Added new branch structure %s", branchName), nil
}

// regenerateAsTree replaces the whole graph with a balanced tree of the
// current branching factor, shrinking the height until the node ceiling is
// respected. The walk restarts at the root.
func (e *FractalEngine) regenerateAsTree() error {
	height := e.depth
	if height > 4 {
		height = 4
	}
	for height > 1 && balancedTreeSize(e.branching, height) > e.maxNodes {
		height--
	}

	g := NewDiGraph()
	root := "Level_0_Branch_0"
	g.AddNode(root)
	frontier := []string{root}
	for d := 1; d <= height; d++ {
		next := make([]string, 0, len(frontier)*e.branching)
		k := 0
		for _, parent := range frontier {
			for c := 0; c < e.branching; c++ {
				child := fmt.Sprintf("Level_%d_Branch_%d", d, k)
				k++
				g.AddNode(child)
				if err := g.AddEdge(parent, child, DefaultWeight); err != nil {
					return err
				}
				next = append(next, child)
			}
		}
		frontier = next
	}
	e.g = g
	e.current = root
	return nil
}

func balancedTreeSize(branching, height int) int {
	size, level := 1, 1
	for d := 0; d < height; d++ {
		level *= branching
		size += level
	}
	return size
}

func (e *FractalEngine) opSymmetry() string {
	old := e.symmetry
	if e.rng.Float64() > 0.5 {
		e.symmetry = clampInt(e.symmetry+1, minSymmetryFactor, maxSymmetryFactor)
	} else {
		e.symmetry = clampInt(e.symmetry-1, minSymmetryFactor, maxSymmetryFactor)
	}
	return fmt.Sprintf("Changed symmetry factor from %d to %d", old, e.symmetry)
}

// opHybrid combines the current pattern with an earlier distinct one into
// a composite label, averaging their dimensions. Reports false when the
// pattern history holds no second distinct entry yet.
func (e *FractalEngine) opHybrid() (string, bool) {
	candidates := make([]string, 0, len(e.patternHistory))
	for _, p := range e.patternHistory {
		if p != e.patternType {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	secondary := candidates[e.rng.Intn(len(candidates))]
	e.patternType = e.patternType + "-" + secondary
	if d, ok := fractalDimensions[secondary]; ok {
		e.dimension = (e.dimension + d) / 2
	}
	return fmt.Sprintf("Created hybrid pattern: %s", e.patternType), true
}

// Reset discards all state and reinitializes to the seed topology.
func (e *FractalEngine) Reset() {
	oldPattern, oldDepth := e.patternType, e.depth
	if err := e.seed(); err != nil {
		klog.Fatalf("reset failed: %v", err)
	}
	klog.Infof("fractal reset: pattern %s -> %s, depth %d -> %d",
		oldPattern, e.patternType, oldDepth, e.depth)
	e.notify("fractal simulation reset to initial state", godte.CategorySystem)
}

// GetState returns a read-only snapshot with level/group derivation and
// forward/backward edge classification for visualization collaborators.
func (e *FractalEngine) GetState() godte.Snapshot {
	metrics := map[string]float64{
		"iterations":        float64(e.iterations),
		"depth":             float64(e.depth),
		"branching_factor":  float64(e.branching),
		"symmetry_factor":   float64(e.symmetry),
		"fractal_dimension": e.dimension,
		"complexity":        e.complexity,
		"steps_taken":       float64(e.stepsTaken),
		"novel_topologies":  float64(e.novelCount),
	}

	nodes := make([]godte.NodeView, 0, e.g.NodeCount())
	for _, key := range e.g.Nodes() {
		level := parseLevel(key)
		group := 0
		if key != e.current {
			group = (level % 4) + 1
		}
		if strings.Contains(key, "Branch") {
			group += 4
		}
		nodes = append(nodes, godte.NodeView{
			ID:    key,
			Group: group,
			Level: level,
			Label: strings.ReplaceAll(key, "Level_", "L"),
		})
	}

	links := make([]godte.EdgeView, 0, e.g.EdgeCount())
	for _, edge := range e.g.Edges() {
		links = append(links, godte.EdgeView{
			Source: edge.Src,
			Target: edge.Dst,
			Type:   edgeKind(edge.Src, edge.Dst),
		})
	}

	history := append([]string(nil), e.patternHistory...)
	return godte.Snapshot{
		Current:        e.current,
		Metrics:        metrics,
		Nodes:          nodes,
		Links:          links,
		Pattern:        e.patternType,
		PatternHistory: history,
	}
}

// parseLevel extracts the numeric level from keys shaped Level_<n>[_...];
// anything else is level 0.
func parseLevel(key string) int {
	if !strings.HasPrefix(key, "Level_") {
		return 0
	}
	rest := key[len("Level_"):]
	if i := strings.IndexByte(rest, '_'); i >= 0 {
		rest = rest[:i]
	}
	level, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return level
}

func edgeKind(src, dst string) string {
	if !strings.HasPrefix(src, "Level_") || !strings.HasPrefix(dst, "Level_") {
		return "other"
	}
	if parseLevel(dst) > parseLevel(src) {
		return "forward"
	}
	return "backward"
}

func (e *FractalEngine) observeTopology() {
	var scrap [256]byte
	sig := e.g.Signature(scrap[:0])
	if e.novelty.Observe(sig) {
		e.novelCount++
	}
}

func (e *FractalEngine) notify(content string, cat godte.Category) {
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
		RecursionLevel: e.depth,
		Step:           e.stepsTaken,
	})
}
