package libdte

import (
	"github.com/alecthomas/participle/v2"
	"github.com/pkg/errors"

	"github.com/dte-systems/go-dte/godte"
)

// TopoExpr is a topology expression: semicolon-separated chains of quoted
// state names joined by '>' hops, each hop optionally weighted with '*':
//
//	"Recursive Expansion" > "Novel Insight" * 1.5 > "Emergent Theme";
//	"Emergent Theme" > "Recursive Expansion"
type TopoExpr struct {
	Chains []*TopoChain `parser:"(@@ (';' @@)*)?"`
}

type TopoChain struct {
	Start string     `parser:"@String"`
	Hops  []*TopoHop `parser:"@@*"`
}

type TopoHop struct {
	Dst    string   `parser:"'>' @String"`
	Weight *float64 `parser:"('*' @(Float | Int))?"`
}

var parseTopoExpr = participle.MustBuild[TopoExpr](participle.Unquote("String"))

// ParseTopology builds a DiGraph from a topology expression. Node order
// follows first mention; repeated edges overwrite earlier weights.
func ParseTopology(expr string) (*DiGraph, error) {
	topo, err := parseTopoExpr.ParseString("", expr)
	if err != nil {
		return nil, errors.Wrap(godte.ErrBadTopology, err.Error())
	}

	g := NewDiGraph()
	for _, chain := range topo.Chains {
		src := chain.Start
		g.AddNode(src)
		for _, hop := range chain.Hops {
			g.AddNode(hop.Dst)
			weight := DefaultWeight
			if hop.Weight != nil {
				weight = *hop.Weight
			}
			if weight <= 0 {
				return nil, errors.Wrapf(godte.ErrBadTopology,
					"edge %q -> %q has non-positive weight %v", src, hop.Dst, weight)
			}
			if err := g.AddEdge(src, hop.Dst, weight); err != nil {
				return nil, err
			}
			src = hop.Dst
		}
	}
	return g, nil
}
