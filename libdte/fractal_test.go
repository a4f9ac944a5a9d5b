package libdte_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dte-systems/go-dte/godte"
	"github.com/dte-systems/go-dte/libdte"
)

func TestFractalEngineSeedTopology(t *testing.T) {
	eng, err := libdte.NewFractalEngine(godte.EngineOpts{Seed: 1})
	require.NoError(t, err)

	st := eng.GetState()
	require.Equal(t, "Level_0", st.Current)
	require.Equal(t, "sierpinski", st.Pattern)
	require.Equal(t, []string{"sierpinski"}, st.PatternHistory)
	require.Equal(t, 3.0, st.Metrics["depth"])
	require.Equal(t, 2.0, st.Metrics["branching_factor"])
	require.Equal(t, 3.0, st.Metrics["symmetry_factor"])
	require.InDelta(t, 1.58, st.Metrics["fractal_dimension"], 1e-9)
	require.InDelta(t, 1.0, st.Metrics["complexity"], 1e-9)

	require.Len(t, st.Nodes, 3)
	require.Len(t, st.Links, 3, "two forward edges plus one backward")

	kinds := map[string]int{}
	for _, l := range st.Links {
		kinds[l.Type]++
		require.False(t, l.Weighted)
	}
	require.Equal(t, 2, kinds["forward"])
	require.Equal(t, 1, kinds["backward"])

	for _, n := range st.Nodes {
		require.Equal(t, "L"+n.ID[len("Level_"):], n.Label)
	}
}

func TestFractalDeepenCapsAtMaxDepth(t *testing.T) {
	eng, err := libdte.NewFractalEngine(godte.EngineOpts{Seed: 2})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		desc, err := eng.Mutate("deepen")
		require.NoError(t, err)
		require.Contains(t, desc, "Deepened")
	}
	require.Equal(t, 7.0, eng.GetState().Metrics["depth"])

	desc, err := eng.Mutate("deepen")
	require.NoError(t, err)
	require.Contains(t, desc, "skipped")
	require.Equal(t, 7.0, eng.GetState().Metrics["depth"])

	// deeper levels feed back two levels down
	st := eng.GetState()
	hasBackward := false
	for _, l := range st.Links {
		if l.Source == "Level_6" && l.Target == "Level_4" {
			hasBackward = true
			require.Equal(t, "backward", l.Type)
		}
	}
	require.True(t, hasBackward)
}

func TestFractalPatternShift(t *testing.T) {
	eng, err := libdte.NewFractalEngine(godte.EngineOpts{Seed: 3})
	require.NoError(t, err)

	desc, err := eng.Mutate("pattern_shift")
	require.NoError(t, err)
	require.Contains(t, desc, "Shifted pattern")

	st := eng.GetState()
	require.NotEqual(t, "sierpinski", st.Pattern)
	dim, ok := libdte.DimensionOf(st.Pattern)
	require.True(t, ok)
	require.Equal(t, dim, st.Metrics["fractal_dimension"])
	require.Equal(t, []string{"sierpinski", st.Pattern}, st.PatternHistory)
}

func TestFractalHybrid(t *testing.T) {
	eng, err := libdte.NewFractalEngine(godte.EngineOpts{Seed: 4})
	require.NoError(t, err)

	// no second distinct pattern yet: hybrid must still succeed via fallback
	_, err = eng.Mutate("hybrid")
	require.NoError(t, err)

	eng, err = libdte.NewFractalEngine(godte.EngineOpts{Seed: 4})
	require.NoError(t, err)
	_, err = eng.Mutate("pattern_shift")
	require.NoError(t, err)
	shifted := eng.GetState().Pattern

	desc, err := eng.Mutate("hybrid")
	require.NoError(t, err)
	require.Contains(t, desc, "hybrid")

	st := eng.GetState()
	require.Equal(t, shifted+"-sierpinski", st.Pattern)

	dimShifted, _ := libdte.DimensionOf(shifted)
	dimBase, _ := libdte.DimensionOf("sierpinski")
	require.InDelta(t, (dimShifted+dimBase)/2, st.Metrics["fractal_dimension"], 1e-9)
}

func TestFractalSymmetryStaysBounded(t *testing.T) {
	eng, err := libdte.NewFractalEngine(godte.EngineOpts{Seed: 5})
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		_, err := eng.Mutate("symmetry")
		require.NoError(t, err)
		sym := eng.GetState().Metrics["symmetry_factor"]
		require.GreaterOrEqual(t, sym, 2.0)
		require.LessOrEqual(t, sym, 7.0)
	}
}

func TestNoveltyIgnoresUnchangedTopology(t *testing.T) {
	eng, err := libdte.NewFractalEngine(godte.EngineOpts{Seed: 12})
	require.NoError(t, err)
	require.Equal(t, 1.0, eng.GetState().Metrics["novel_topologies"])

	// symmetry is parameter-only: same topology signature, nothing novel
	for i := 0; i < 5; i++ {
		_, err := eng.Mutate("symmetry")
		require.NoError(t, err)
	}
	require.Equal(t, 1.0, eng.GetState().Metrics["novel_topologies"])

	// deepen rewrites the graph: the new signature counts exactly once more
	_, err = eng.Mutate("deepen")
	require.NoError(t, err)
	require.Equal(t, 2.0, eng.GetState().Metrics["novel_topologies"])
	_, err = eng.Mutate("symmetry")
	require.NoError(t, err)
	require.Equal(t, 2.0, eng.GetState().Metrics["novel_topologies"])
}

func TestFractalComplexityBand(t *testing.T) {
	high := func() float64 { return 0.9 }
	eng, err := libdte.NewFractalEngine(godte.EngineOpts{Seed: 6, EntropyFn: high})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		desc, err := eng.AdjustRecursion()
		require.NoError(t, err)
		require.Contains(t, desc, "Increased complexity")
	}
	require.InDelta(t, 3.0, eng.GetState().Metrics["complexity"], 1e-9, "complexity caps at 3.0")

	low := func() float64 { return 0.1 }
	eng, err = libdte.NewFractalEngine(godte.EngineOpts{Seed: 6, EntropyFn: low})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		desc, err := eng.AdjustRecursion()
		require.NoError(t, err)
		require.Contains(t, desc, "Simplified")
	}
	st := eng.GetState()
	require.InDelta(t, 1.0, st.Metrics["complexity"], 1e-9, "complexity floors at 1.0")
	require.GreaterOrEqual(t, st.Metrics["depth"], 2.0, "depth never shrinks below the minimum")
}

func TestFractalDeadEndLeavesStateUntouched(t *testing.T) {
	eng, err := libdte.NewFractalEngine(godte.EngineOpts{
		Seed:      7,
		SeedExpr:  `"A" > "B"`,
		StartNode: "B",
	})
	require.NoError(t, err)

	_, err = eng.Step()
	require.ErrorIs(t, err, godte.ErrDeadEnd)
	st := eng.GetState()
	require.Equal(t, "B", st.Current)
	require.Equal(t, 0.0, st.Metrics["steps_taken"])
}

func TestFractalDeterminism(t *testing.T) {
	run := func() ([]godte.Transition, godte.Snapshot) {
		eng, err := libdte.NewFractalEngine(godte.EngineOpts{Seed: 77})
		require.NoError(t, err)
		var trail []godte.Transition
		for i := 0; i < 40; i++ {
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

func TestFractalBranchRespectsNodeCeiling(t *testing.T) {
	eng, err := libdte.NewFractalEngine(godte.EngineOpts{Seed: 8, MaxNodes: 20})
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		_, err := eng.Mutate("branch")
		require.NoError(t, err)
	}
	st := eng.GetState()
	assert.LessOrEqual(t, len(st.Nodes), 20+3,
		"flat branches stop at the ceiling; tree regrowth shrinks to fit")
}

func TestFractalReset(t *testing.T) {
	eng, err := libdte.NewFractalEngine(godte.EngineOpts{Seed: 9})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		if _, err := eng.Step(); err != nil {
			break
		}
	}
	_, err = eng.Mutate("pattern_shift")
	require.NoError(t, err)

	eng.Reset()
	st := eng.GetState()
	require.Equal(t, "Level_0", st.Current)
	require.Equal(t, "sierpinski", st.Pattern)
	require.Equal(t, []string{"sierpinski"}, st.PatternHistory)
	require.Equal(t, 3.0, st.Metrics["depth"])
	require.Equal(t, 0.0, st.Metrics["steps_taken"])
}
