package libdte_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dte-systems/go-dte/godte"
	"github.com/dte-systems/go-dte/libdte"
)

func TestDTEngineSeedTopology(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{Seed: 1})
	require.NoError(t, err)

	st := eng.GetState()
	require.Equal(t, "Recursive Expansion", st.Current)
	require.Equal(t, 10.0, st.Metrics["node_count"])
	require.Equal(t, 13.0, st.Metrics["edge_count"])
	require.InDelta(t, 11.8, st.Metrics["complexity_score"], 1e-9)
	require.Equal(t, 3.0, st.Metrics["pattern_complexity"])
	require.Equal(t, 5.0, st.Metrics["recursion_points"])
	require.Equal(t, 0.0, st.Metrics["recursion_level"])
	require.Equal(t, 0.0, st.Metrics["steps_taken"])
	require.InDelta(t, 0.4, st.Metrics["self_reference_index"], 1e-9)
	require.InDelta(t, 0.5, st.Metrics["entropy"], 1e-9, "entropy defaults before any adjustment")
	require.Equal(t, 1.0, st.Metrics["novel_topologies"], "the seed topology itself counts once")

	require.Len(t, st.Nodes, 10)
	require.Len(t, st.Links, 13)
	for _, l := range st.Links {
		require.True(t, l.Weighted)
		require.Equal(t, libdte.DefaultWeight, l.Weight)
	}
	require.Equal(t, 0, st.Nodes[0].Group, "current node renders as group 0")
}

func TestDTEngineDeterminism(t *testing.T) {
	run := func() ([]godte.Transition, godte.Snapshot) {
		eng, err := libdte.NewDTEngine(godte.EngineOpts{Seed: 42})
		require.NoError(t, err)
		var trail []godte.Transition
		for i := 0; i < 30; i++ {
			tr, err := eng.Step()
			if err != nil {
				break
			}
			trail = append(trail, tr)
		}
		return trail, eng.GetState()
	}

	trailA, stateA := run()
	trailB, stateB := run()
	require.Equal(t, trailA, trailB)
	require.Equal(t, stateA, stateB)
}

func TestDTEngineDeadEndLeavesStateUntouched(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{
		Seed:      1,
		SeedExpr:  `"A" > "B"`,
		StartNode: "B",
	})
	require.NoError(t, err)

	_, err = eng.Step()
	require.ErrorIs(t, err, godte.ErrDeadEnd)

	st := eng.GetState()
	require.Equal(t, "B", st.Current)
	require.Equal(t, 0.0, st.Metrics["steps_taken"])
	require.Equal(t, 2.0, st.Metrics["node_count"])
	require.Equal(t, 1.0, st.Metrics["edge_count"])
}

func TestDTEngineBadStartNode(t *testing.T) {
	_, err := libdte.NewDTEngine(godte.EngineOpts{
		SeedExpr:  `"A" > "B"`,
		StartNode: "nope",
	})
	require.ErrorIs(t, err, godte.ErrBadStartNode)
}

func TestAdjustRecursionHighEntropy(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{
		Seed:      7,
		EntropyFn: func() float64 { return 0.85 },
	})
	require.NoError(t, err)

	desc, err := eng.AdjustRecursion()
	require.NoError(t, err)
	require.Contains(t, desc, "High entropy")

	st := eng.GetState()
	require.Equal(t, 1.0, st.Metrics["recursion_level"])
	require.Equal(t, 2.0, st.Metrics["insights_gained"])
	require.InDelta(t, 0.5, st.Metrics["self_reference_index"], 1e-9)
	require.InDelta(t, 0.85, st.Metrics["entropy"], 1e-9)
}

func TestAdjustRecursionLowEntropyConsolidates(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{
		Seed:      7,
		EntropyFn: func() float64 { return 0.1 },
	})
	require.NoError(t, err)

	desc, err := eng.AdjustRecursion()
	require.NoError(t, err)
	require.Contains(t, desc, "consolidation")

	st := eng.GetState()
	require.Equal(t, 9.0, st.Metrics["node_count"], "two states merged into one")
	requireGraphInvariants(t, st)
}

func TestAdjustRecursionModerateEntropyBoundsWeights(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{
		Seed:      7,
		EntropyFn: func() float64 { return 0.5 },
	})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, err := eng.AdjustRecursion()
		require.NoError(t, err)
	}

	st := eng.GetState()
	for _, l := range st.Links {
		require.Greater(t, l.Weight, 0.0)
		require.LessOrEqual(t, l.Weight, godte.MaxEdgeWeight)
	}
	require.GreaterOrEqual(t, st.Metrics["insights_gained"], 50.0)
}

// complete 3-state graph: every ordered pair already connected
const completeTriExpr = `"A" > "B" > "C" > "A"; "A" > "C"; "B" > "A"; "C" > "B"`

func TestMutateExpandSkipsWhenSaturated(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{Seed: 3, SeedExpr: completeTriExpr})
	require.NoError(t, err)

	before := eng.GetState()
	desc, err := eng.Mutate("expand")
	require.NoError(t, err)
	require.Contains(t, desc, "skipped")

	after := eng.GetState()
	require.Equal(t, before.Metrics["node_count"], after.Metrics["node_count"])
	require.Equal(t, before.Metrics["edge_count"], after.Metrics["edge_count"])
}

func TestMutatePruneSkipsWhenSparse(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{Seed: 3, SeedExpr: `"A" > "B" > "C"`})
	require.NoError(t, err)

	desc, err := eng.Mutate("prune")
	require.NoError(t, err)
	require.Contains(t, desc, "skipped")
	require.Equal(t, 2.0, eng.GetState().Metrics["edge_count"])
}

func TestMutateRestructureRenamesCurrent(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{Seed: 3})
	require.NoError(t, err)

	desc, err := eng.Mutate("restructure")
	require.NoError(t, err)
	require.Contains(t, desc, "Restructured")

	st := eng.GetState()
	require.True(t, strings.HasPrefix(st.Current, "Recursive Expansion_"),
		"current follows its node through the rename")
	found := false
	for _, n := range st.Nodes {
		if n.ID == st.Current {
			found = true
		}
	}
	require.True(t, found)
}

func TestMutateUnknownName(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{Seed: 3})
	require.NoError(t, err)
	_, err = eng.Mutate("transmogrify")
	require.Error(t, err)
}

func TestDTEngineReset(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{Seed: 11})
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		if _, err := eng.Step(); err != nil {
			break
		}
	}
	eng.Reset()

	st := eng.GetState()
	require.Equal(t, "Recursive Expansion", st.Current)
	require.Equal(t, 10.0, st.Metrics["node_count"])
	require.Equal(t, 13.0, st.Metrics["edge_count"])
	require.Equal(t, 0.0, st.Metrics["steps_taken"])
	require.Equal(t, 0.0, st.Metrics["recursion_level"])
	require.Equal(t, 1.0, st.Metrics["novel_topologies"])
}

func TestNoveltyMetricCountsNewTopologies(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{Seed: 5})
	require.NoError(t, err)

	desc, err := eng.Mutate("branch")
	require.NoError(t, err)
	require.Contains(t, desc, "branch state")
	require.Equal(t, 2.0, eng.GetState().Metrics["novel_topologies"])
}

func TestNotifierReceivesEvents(t *testing.T) {
	var events []godte.Event
	eng, err := libdte.NewDTEngine(godte.EngineOpts{
		Seed: 9,
		Notifier: godte.NotifierFunc(func(ev godte.Event) {
			events = append(events, ev)
		}),
	})
	require.NoError(t, err)

	require.NotEmpty(t, events, "construction is announced")
	require.Equal(t, godte.CategorySystem, events[0].Category)
	require.Contains(t, events[0].Content, "initialized")

	n := len(events)
	_, err = eng.Step()
	require.NoError(t, err)
	require.Greater(t, len(events), n)
	assert.Equal(t, godte.CategoryThought, events[n].Category)
	assert.Equal(t, 1, events[n].Step)
}

func TestNotifierPanicIsSwallowed(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{
		Seed:     9,
		Notifier: godte.NotifierFunc(func(godte.Event) { panic("collaborator down") }),
	})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		_, err := eng.Step()
		require.NoError(t, err)
	})
}

// long mixed run: every structural invariant must hold throughout
func TestDTEngineOperatorStorm(t *testing.T) {
	eng, err := libdte.NewDTEngine(godte.EngineOpts{Seed: 1234})
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		_, err := eng.Step()
		if err != nil {
			require.ErrorIs(t, err, godte.ErrDeadEnd)
			eng.Reset()
			continue
		}
	}

	st := eng.GetState()
	requireGraphInvariants(t, st)
	require.LessOrEqual(t, st.Metrics["node_count"], float64(godte.DefaultMaxNodes)+1,
		"growth stays near the configured ceiling")
}

// requireGraphInvariants checks that a snapshot is internally consistent:
// the current node exists, every link endpoint exists, and weights are
// positive and clamped.
func requireGraphInvariants(t *testing.T, st godte.Snapshot) {
	t.Helper()
	nodes := make(map[string]bool, len(st.Nodes))
	for _, n := range st.Nodes {
		nodes[n.ID] = true
	}
	require.True(t, nodes[st.Current], "current node %q missing from node set", st.Current)
	for _, l := range st.Links {
		require.True(t, nodes[l.Source], "dangling link source %q", l.Source)
		require.True(t, nodes[l.Target], "dangling link target %q", l.Target)
		if l.Weighted {
			require.Greater(t, l.Weight, 0.0)
			require.LessOrEqual(t, l.Weight, godte.MaxEdgeWeight)
		}
	}
}
