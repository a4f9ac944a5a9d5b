package godte

import (
	"math/rand"
)

// RecursionEngine is the shared contract of the two engine variants.
// Implementations own their graph outright and assume a single mutator;
// see libdte for the concrete engines.
type RecursionEngine interface {

	// Step advances the walk by one transition along the engine's graph.
	// A node with no successors returns ErrDeadEnd and leaves all engine
	// state untouched; the caller decides whether to Reset or inject edges.
	Step() (Transition, error)

	// AdjustRecursion samples an entropy value and rewrites the engine's
	// structure or parameters accordingly. It is also invoked internally
	// on every AdjustEvery'th step. Returns a description of what changed.
	AdjustRecursion() (string, error)

	// Reset discards all graph and scalar state and reinitializes to the
	// seed topology, as if the engine had been recreated.
	Reset()

	// GetState returns a read-only snapshot of the engine. It never
	// mutates the graph or the engine's scalars.
	GetState() Snapshot
}

// Transition reports one completed walk step.
type Transition struct {
	From string
	To   string
}

// AdjustEvery is the step cadence at which engines self-adjust.
const AdjustEvery = 3

// MaxEdgeWeight is the clamp applied by the pathway optimizer.
const MaxEdgeWeight = 5.0

// DefaultMaxNodes bounds structural growth so that derived metrics
// (simple-cycle counts in particular) stay tractable.
const DefaultMaxNodes = 96

// EngineOpts configures an engine at construction time.
type EngineOpts struct {
	Seed      int64          // RNG seed; used only when Rand is nil
	Rand      *rand.Rand     // injectable random source for reproducible runs
	EntropyFn func() float64 // overrides entropy sampling; nil draws from Rand
	Notifier  Notifier       // event collaborator; may be nil
	MaxNodes  int            // growth ceiling; 0 means DefaultMaxNodes
	SeedExpr  string         // topology expression replacing the default seed
	StartNode string         // start node when SeedExpr is set
}

// Snapshot is the full read-only external view of an engine at a point in
// time, consumed by visualization and logging collaborators.
type Snapshot struct {
	Current        string
	Metrics        map[string]float64
	Nodes          []NodeView
	Links          []EdgeView
	Pattern        string   // fractal engine only
	PatternHistory []string // fractal engine only
}

// NodeView is one node entry of a Snapshot. Group and Level are derived
// from the node key and the current node at snapshot time, never stored.
type NodeView struct {
	ID    string
	Group int
	Level int
	Label string
}

// EdgeView is one edge entry of a Snapshot. Weighted reports whether
// Weight carries a value (default-weight graphs omit it).
type EdgeView struct {
	Source   string
	Target   string
	Weight   float64
	Weighted bool
	Type     string // "forward", "backward" or "other"; fractal engine only
}

// Category classifies a notified Event.
type Category string

const (
	CategoryThought Category = "thought"
	CategoryDream   Category = "dream"
	CategoryInsight Category = "insight"
	CategorySystem  Category = "system"
)

// Event is what engines hand to their Notifier whenever something
// noteworthy happens: construction, transitions, mutations, resets.
type Event struct {
	Content        string
	Category       Category
	Node           string
	RecursionLevel int
	Step           int
}

// Notifier receives engine events. Implementations live outside the
// engine; a panicking or failing Notifier never propagates into it.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }
