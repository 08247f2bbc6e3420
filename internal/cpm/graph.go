// Package cpm builds the task dependency graph and runs the Critical Path Method over it.
package cpm

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/evanschultz/pmforge/internal/domain"
)

// ErrCycle reports a dependency graph that still contains a cycle.
var ErrCycle = errors.New("dependency graph has a cycle")

// Edge is one predecessor -> successor dependency.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// String renders the edge as "from->to".
func (e Edge) String() string {
	return e.From + "->" + e.To
}

// Heal describes one self-heal action taken while building the graph.
type Heal struct {
	Edge   Edge   `json:"edge"`
	Reason string `json:"reason"`
}

// Heal reasons.
const (
	HealUnknownPredecessor = "unknown_predecessor"
	HealSelfReference      = "self_reference"
	HealCycle              = "cycle"
)

// Graph is a dependency graph over task ids. Node ids follow input order so results are stable.
type Graph struct {
	ids   []string
	index map[string]int64
	g     *simple.DirectedGraph
}

// Build constructs the graph from task predecessors. Unknown and self references are pruned
// and reported; duplicate task ids keep their first occurrence.
func Build(tasks []domain.ScheduleTask) (*Graph, []Heal) {
	gr := &Graph{
		index: make(map[string]int64, len(tasks)),
		g:     simple.NewDirectedGraph(),
	}
	for _, t := range tasks {
		id := strings.TrimSpace(t.ID)
		if _, dup := gr.index[id]; dup {
			continue
		}
		nid := int64(len(gr.ids))
		gr.index[id] = nid
		gr.ids = append(gr.ids, id)
		gr.g.AddNode(simple.Node(nid))
	}

	var heals []Heal
	for _, t := range tasks {
		to := gr.index[strings.TrimSpace(t.ID)]
		for _, p := range t.Predecessors {
			p = strings.TrimSpace(p)
			edge := Edge{From: p, To: strings.TrimSpace(t.ID)}
			from, ok := gr.index[p]
			switch {
			case !ok:
				heals = append(heals, Heal{Edge: edge, Reason: HealUnknownPredecessor})
			case from == to:
				heals = append(heals, Heal{Edge: edge, Reason: HealSelfReference})
			default:
				gr.g.SetEdge(gr.g.NewEdge(simple.Node(from), simple.Node(to)))
			}
		}
	}
	return gr, heals
}

// Len returns the node count.
func (gr *Graph) Len() int {
	return len(gr.ids)
}

// HasEdge reports whether from -> to exists.
func (gr *Graph) HasEdge(from, to string) bool {
	f, ok := gr.index[from]
	if !ok {
		return false
	}
	t, ok := gr.index[to]
	if !ok {
		return false
	}
	return gr.g.HasEdgeFromTo(f, t)
}

// Edges returns every edge ordered by successor then predecessor input position.
func (gr *Graph) Edges() []Edge {
	var out []Edge
	for to := range gr.ids {
		for _, from := range gr.predecessorIDs(int64(to)) {
			out = append(out, Edge{From: gr.ids[from], To: gr.ids[to]})
		}
	}
	return out
}

// Predecessors returns the predecessor ids of id in input order.
func (gr *Graph) Predecessors(id string) []string {
	nid, ok := gr.index[id]
	if !ok {
		return nil
	}
	preds := gr.predecessorIDs(nid)
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = gr.ids[p]
	}
	return out
}

// Successors returns the successor ids of id in input order.
func (gr *Graph) Successors(id string) []string {
	nid, ok := gr.index[id]
	if !ok {
		return nil
	}
	succ := nodeIDs(gr.g.From(nid))
	out := make([]string, len(succ))
	for i, s := range succ {
		out[i] = gr.ids[s]
	}
	return out
}

func (gr *Graph) predecessorIDs(nid int64) []int64 {
	return nodeIDs(gr.g.To(nid))
}

func nodeIDs(it graph.Nodes) []int64 {
	var out []int64
	for it.Next() {
		out = append(out, it.Node().ID())
	}
	slices.Sort(out)
	return out
}

// Cycles returns every elementary cycle as an id list; the first id is repeated at the end.
func (gr *Graph) Cycles() [][]string {
	raw := topo.DirectedCyclesIn(gr.g)
	out := make([][]string, 0, len(raw))
	for _, cycle := range raw {
		ids := make([]string, len(cycle))
		for i, n := range cycle {
			ids[i] = gr.ids[n.ID()]
		}
		out = append(out, ids)
	}
	return out
}

// BreakCycles removes the closing edge of each detected cycle until the graph is acyclic and
// returns the removed edges in removal order.
func (gr *Graph) BreakCycles() []Edge {
	var removed []Edge
	for {
		cycles := topo.DirectedCyclesIn(gr.g)
		if len(cycles) == 0 {
			return removed
		}
		progress := false
		for _, cycle := range cycles {
			if len(cycle) < 2 {
				continue
			}
			from := cycle[len(cycle)-2].ID()
			to := cycle[len(cycle)-1].ID()
			if !gr.g.HasEdgeFromTo(from, to) {
				continue
			}
			gr.g.RemoveEdge(from, to)
			removed = append(removed, Edge{From: gr.ids[from], To: gr.ids[to]})
			progress = true
		}
		if !progress {
			return removed
		}
	}
}

// Order returns task ids in topological order, breaking ties by input position.
func (gr *Graph) Order() ([]string, error) {
	sorted, err := topo.SortStabilized(gr.g, func(nodes []graph.Node) {
		slices.SortFunc(nodes, func(a, b graph.Node) int {
			switch {
			case a.ID() < b.ID():
				return -1
			case a.ID() > b.ID():
				return 1
			default:
				return 0
			}
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycle, err)
	}
	out := make([]string, len(sorted))
	for i, n := range sorted {
		out[i] = gr.ids[n.ID()]
	}
	return out, nil
}

// CompareIDs orders dotted WBS ids numerically segment by segment ("1.2" < "1.10"),
// falling back to string comparison for non-numeric segments.
func CompareIDs(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			if ai != bi {
				if ai < bi {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	default:
		return 0
	}
}
