package libdte

import (
	"sort"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/pkg/errors"

	"github.com/dte-systems/go-dte/godte"
)

// Edge is one directed weighted transition.
type Edge struct {
	Src    string
	Dst    string
	Weight float64
}

// DefaultWeight is the weight assigned to edges created without one.
const DefaultWeight = 1.0

// DiGraph is a minimal directed graph with float64 edge weights and
// insertion-ordered adjacency. Invariants: every edge endpoint is a member
// of the node set, and there is at most one edge per ordered (src,dst) pair.
//
// DiGraph carries no internal locking: callers follow a single-writer
// discipline (each engine owns its graph outright).
type DiGraph struct {
	nodes     *linkedhashmap.Map // node key -> *adjacency
	edgeCount int
	version   uint64 // bumped on every mutation; used to memoize derived metrics
}

type adjacency struct {
	out *linkedhashmap.Map // dst key -> float64 weight
	in  *linkedhashmap.Map // src key -> struct{}
}

func newAdjacency() *adjacency {
	return &adjacency{
		out: linkedhashmap.New(),
		in:  linkedhashmap.New(),
	}
}

func NewDiGraph() *DiGraph {
	return &DiGraph{
		nodes: linkedhashmap.New(),
	}
}

// Version increments on every mutation, letting callers cheaply detect
// whether a memoized derived metric is stale.
func (g *DiGraph) Version() uint64 {
	return g.version
}

func (g *DiGraph) NodeCount() int {
	return g.nodes.Size()
}

func (g *DiGraph) EdgeCount() int {
	return g.edgeCount
}

func (g *DiGraph) HasNode(key string) bool {
	_, ok := g.nodes.Get(key)
	return ok
}

// AddNode inserts key with empty adjacency. Returns false (no-op) if the
// node is already present.
func (g *DiGraph) AddNode(key string) bool {
	if _, ok := g.nodes.Get(key); ok {
		return false
	}
	g.nodes.Put(key, newAdjacency())
	g.version++
	return true
}

func (g *DiGraph) adj(key string) (*adjacency, bool) {
	v, ok := g.nodes.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*adjacency), true
}

// AddEdge creates src->dst with the given weight, overwriting the weight
// if the edge already exists. Both endpoints must be present.
func (g *DiGraph) AddEdge(src, dst string, weight float64) error {
	srcAdj, ok := g.adj(src)
	if !ok {
		return errors.Wrapf(godte.ErrUnknownNode, "add edge %q -> %q", src, dst)
	}
	dstAdj, ok := g.adj(dst)
	if !ok {
		return errors.Wrapf(godte.ErrUnknownNode, "add edge %q -> %q", src, dst)
	}
	if _, exists := srcAdj.out.Get(dst); !exists {
		g.edgeCount++
	}
	srcAdj.out.Put(dst, weight)
	dstAdj.in.Put(src, struct{}{})
	g.version++
	return nil
}

func (g *DiGraph) HasEdge(src, dst string) bool {
	srcAdj, ok := g.adj(src)
	if !ok {
		return false
	}
	_, ok = srcAdj.out.Get(dst)
	return ok
}

// Weight returns the weight of src->dst, or false if no such edge exists.
func (g *DiGraph) Weight(src, dst string) (float64, bool) {
	srcAdj, ok := g.adj(src)
	if !ok {
		return 0, false
	}
	w, ok := srcAdj.out.Get(dst)
	if !ok {
		return 0, false
	}
	return w.(float64), true
}

// RemoveEdge deletes src->dst. Unknown endpoints return ErrUnknownNode,
// a missing edge returns ErrEdgeNotFound.
func (g *DiGraph) RemoveEdge(src, dst string) error {
	srcAdj, ok := g.adj(src)
	if !ok {
		return errors.Wrapf(godte.ErrUnknownNode, "remove edge %q -> %q", src, dst)
	}
	dstAdj, ok := g.adj(dst)
	if !ok {
		return errors.Wrapf(godte.ErrUnknownNode, "remove edge %q -> %q", src, dst)
	}
	if _, exists := srcAdj.out.Get(dst); !exists {
		return errors.Wrapf(godte.ErrEdgeNotFound, "%q -> %q", src, dst)
	}
	srcAdj.out.Remove(dst)
	dstAdj.in.Remove(src)
	g.edgeCount--
	g.version++
	return nil
}

// RemoveNode deletes key and every incident edge, both directions.
func (g *DiGraph) RemoveNode(key string) error {
	nodeAdj, ok := g.adj(key)
	if !ok {
		return errors.Wrapf(godte.ErrUnknownNode, "remove node %q", key)
	}
	nodeAdj.out.Each(func(dst, _ interface{}) {
		if dstAdj, ok := g.adj(dst.(string)); ok {
			dstAdj.in.Remove(key)
		}
		g.edgeCount--
	})
	nodeAdj.in.Each(func(src, _ interface{}) {
		if src.(string) == key {
			return // self-loop already counted via out
		}
		if srcAdj, ok := g.adj(src.(string)); ok {
			srcAdj.out.Remove(key)
		}
		g.edgeCount--
	})
	g.nodes.Remove(key)
	g.version++
	return nil
}

// Successors returns the insertion-ordered adjacent keys reachable from
// key. Empty if none (or if key is absent).
func (g *DiGraph) Successors(key string) []string {
	nodeAdj, ok := g.adj(key)
	if !ok {
		return nil
	}
	return keyStrings(nodeAdj.out)
}

// Predecessors returns the insertion-ordered keys with an edge into key.
func (g *DiGraph) Predecessors(key string) []string {
	nodeAdj, ok := g.adj(key)
	if !ok {
		return nil
	}
	return keyStrings(nodeAdj.in)
}

func keyStrings(m *linkedhashmap.Map) []string {
	keys := make([]string, 0, m.Size())
	m.Each(func(k, _ interface{}) {
		keys = append(keys, k.(string))
	})
	return keys
}

// Nodes returns all node keys in insertion order.
func (g *DiGraph) Nodes() []string {
	return keyStrings(g.nodes)
}

// Edges returns all edges, ordered by source insertion then target
// insertion, so iteration order is deterministic for a fixed history.
func (g *DiGraph) Edges() []Edge {
	edges := make([]Edge, 0, g.edgeCount)
	g.nodes.Each(func(src, v interface{}) {
		v.(*adjacency).out.Each(func(dst, w interface{}) {
			edges = append(edges, Edge{
				Src:    src.(string),
				Dst:    dst.(string),
				Weight: w.(float64),
			})
		})
	})
	return edges
}

// Relabel renames every node through mapping, preserving node and edge
// insertion order and edge weights. Nodes absent from mapping keep their
// key. Fails with ErrDuplicateLabel if the mapping collides.
func (g *DiGraph) Relabel(mapping map[string]string) error {
	rename := func(key string) string {
		if to, ok := mapping[key]; ok {
			return to
		}
		return key
	}

	seen := make(map[string]struct{}, g.nodes.Size())
	var dupe string
	g.nodes.Each(func(k, _ interface{}) {
		to := rename(k.(string))
		if _, clash := seen[to]; clash && dupe == "" {
			dupe = to
		}
		seen[to] = struct{}{}
	})
	if dupe != "" {
		return errors.Wrapf(godte.ErrDuplicateLabel, "%q", dupe)
	}

	relabeled := linkedhashmap.New()
	g.nodes.Each(func(k, v interface{}) {
		old := v.(*adjacency)
		next := newAdjacency()
		old.out.Each(func(dst, w interface{}) {
			next.out.Put(rename(dst.(string)), w)
		})
		old.in.Each(func(src, _ interface{}) {
			next.in.Put(rename(src.(string)), struct{}{})
		})
		relabeled.Put(rename(k.(string)), next)
	})
	g.nodes = relabeled
	g.version++
	return nil
}

// Merge creates newKey, redirects every edge incident to a or b onto it,
// and removes a and b. Any edge that would become a self-loop on newKey
// (in particular a<->b edges) is dropped rather than created. When both a
// and b carry an edge to or from the same third node, redirection applies
// a's edges first and b's overwrite, so b's weight wins.
func (g *DiGraph) Merge(a, b, newKey string) error {
	if a == b {
		return errors.Wrapf(godte.ErrUnknownNode, "merge requires two distinct nodes, got %q twice", a)
	}
	aAdj, ok := g.adj(a)
	if !ok {
		return errors.Wrapf(godte.ErrUnknownNode, "merge %q + %q", a, b)
	}
	bAdj, ok := g.adj(b)
	if !ok {
		return errors.Wrapf(godte.ErrUnknownNode, "merge %q + %q", a, b)
	}

	redirect := func(key string) string {
		if key == a || key == b {
			return newKey
		}
		return key
	}

	type redirected struct {
		src, dst string
		weight   float64
	}
	var moved []redirected
	collect := func(nodeAdj *adjacency, key string) {
		nodeAdj.out.Each(func(dst, w interface{}) {
			moved = append(moved, redirected{
				src:    redirect(key),
				dst:    redirect(dst.(string)),
				weight: w.(float64),
			})
		})
		nodeAdj.in.Each(func(src, _ interface{}) {
			w, _ := g.Weight(src.(string), key)
			moved = append(moved, redirected{
				src:    redirect(src.(string)),
				dst:    redirect(key),
				weight: w,
			})
		})
	}
	collect(aAdj, a)
	collect(bAdj, b)

	if err := g.RemoveNode(a); err != nil {
		return err
	}
	if err := g.RemoveNode(b); err != nil {
		return err
	}
	g.AddNode(newKey)
	for _, e := range moved {
		if e.src == e.dst {
			continue // dropped, not created
		}
		if err := g.AddEdge(e.src, e.dst, e.weight); err != nil {
			return err
		}
	}
	g.version++
	return nil
}

// CountSimpleCycles enumerates simple cycles, each counted once at its
// minimum-index node, stopping early once limit is reached (limit <= 0
// means unbounded). Worst case is exponential in graph size, which is why
// engines compute this on demand and cap graph growth.
func (g *DiGraph) CountSimpleCycles(limit int) int {
	keys := g.Nodes()
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}

	count := 0
	onPath := make(map[string]bool, len(keys))

	var walk func(start int, node string) bool
	walk = func(start int, node string) bool {
		onPath[node] = true
		defer delete(onPath, node)

		for _, succ := range g.Successors(node) {
			si := index[succ]
			if si < start {
				continue // cycle through succ is counted from succ's own start
			}
			if si == start {
				count++
				if limit > 0 && count >= limit {
					return false
				}
				continue
			}
			if !onPath[succ] && !walk(start, succ) {
				return false
			}
		}
		return true
	}

	for s, k := range keys {
		if !walk(s, k) {
			break
		}
	}
	return count
}

// Signature appends a canonical byte encoding of the topology (sorted edge
// list) to dst and returns it. Two graphs with identical node and edge
// sets produce identical signatures regardless of insertion history.
func (g *DiGraph) Signature(dst []byte) []byte {
	edges := g.Edges()
	parts := make([]string, len(edges))
	for i, e := range edges {
		parts[i] = e.Src + ">" + e.Dst
	}
	sort.Strings(parts)
	for _, p := range parts {
		dst = append(dst, p...)
		dst = append(dst, '|')
	}
	return dst
}
