// Package topology describes the optical network the simulator runs on:
// nodes, bidirectional fibre links with a fixed number of spectrum slots,
// and the k-shortest candidate paths between every node pair.
//
// A Topology is immutable once built. Per-link occupancy is owned by each
// simulation environment, never by the topology, so one Topology can be
// shared read-only by any number of concurrent replicas.
package topology

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// LinkSpec describes one bidirectional link when building a Topology.
type LinkSpec struct {
	From   int     `yaml:"from"`
	To     int     `yaml:"to"`
	Slots  int     `yaml:"slots,omitempty"`  // 0 = topology default
	Length float64 `yaml:"length,omitempty"` // km; 0 = unit weight
}

// Link is a bidirectional fibre between two nodes.
type Link struct {
	ID     int
	From   int
	To     int
	Slots  int
	Length float64
}

// Path is a loopless route between two nodes.
// Nodes has len(Links)+1 entries; Links[i] connects Nodes[i] and Nodes[i+1].
type Path struct {
	Nodes  []int
	Links  []int
	Length float64
}

// Hops returns the number of links on the path.
func (p Path) Hops() int {
	return len(p.Links)
}

type nodePair struct{ src, dst int }

// Topology is an immutable node/link graph with precomputed candidate paths.
type Topology struct {
	name    string
	nodes   int
	k       int
	links   []Link
	linkIDs map[nodePair]int
	paths   map[nodePair][]Path
}

// New builds a Topology and precomputes up to k shortest loopless paths
// (by link length) for every ordered pair of distinct nodes.
// defaultSlots applies to links whose Slots is zero.
func New(name string, nodes int, links []LinkSpec, defaultSlots, k int) (*Topology, error) {
	if nodes < 2 {
		return nil, fmt.Errorf("topology %q: need at least 2 nodes, got %d", name, nodes)
	}
	if k < 1 {
		return nil, fmt.Errorf("topology %q: k must be >= 1, got %d", name, k)
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("topology %q: no links", name)
	}

	t := &Topology{
		name:    name,
		nodes:   nodes,
		k:       k,
		links:   make([]Link, 0, len(links)),
		linkIDs: make(map[nodePair]int, 2*len(links)),
		paths:   make(map[nodePair][]Path, nodes*(nodes-1)),
	}
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := 0; i < nodes; i++ {
		g.AddNode(simple.Node(i))
	}

	for i, ls := range links {
		if ls.From < 0 || ls.From >= nodes || ls.To < 0 || ls.To >= nodes {
			return nil, fmt.Errorf("topology %q: link[%d] endpoint out of range [0, %d): %d-%d", name, i, nodes, ls.From, ls.To)
		}
		if ls.From == ls.To {
			return nil, fmt.Errorf("topology %q: link[%d] is a self loop on node %d", name, i, ls.From)
		}
		if _, dup := t.linkIDs[nodePair{ls.From, ls.To}]; dup {
			return nil, fmt.Errorf("topology %q: duplicate link %d-%d", name, ls.From, ls.To)
		}
		slots := ls.Slots
		if slots == 0 {
			slots = defaultSlots
		}
		if slots < 1 {
			return nil, fmt.Errorf("topology %q: link[%d] needs at least 1 slot, got %d", name, i, slots)
		}
		if ls.Length < 0 || math.IsNaN(ls.Length) || math.IsInf(ls.Length, 0) {
			return nil, fmt.Errorf("topology %q: link[%d] length must be a finite non-negative number, got %f", name, i, ls.Length)
		}
		length := ls.Length
		if length == 0 {
			length = 1
		}
		id := len(t.links)
		t.links = append(t.links, Link{ID: id, From: ls.From, To: ls.To, Slots: slots, Length: length})
		t.linkIDs[nodePair{ls.From, ls.To}] = id
		t.linkIDs[nodePair{ls.To, ls.From}] = id
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(ls.From), simple.Node(ls.To), length))
	}

	for s := 0; s < nodes; s++ {
		for d := 0; d < nodes; d++ {
			if s == d {
				continue
			}
			raw := path.YenKShortestPaths(g, k, math.Inf(1), simple.Node(s), simple.Node(d))
			t.paths[nodePair{s, d}] = t.toPaths(raw)
		}
	}
	return t, nil
}

// toPaths converts gonum node sequences into Paths ordered by
// (length, hops, node sequence) so ties never depend on map iteration order.
func (t *Topology) toPaths(raw [][]graph.Node) []Path {
	out := make([]Path, 0, len(raw))
	for _, nodes := range raw {
		if len(nodes) < 2 {
			continue
		}
		p := Path{
			Nodes: make([]int, len(nodes)),
			Links: make([]int, 0, len(nodes)-1),
		}
		for i, n := range nodes {
			p.Nodes[i] = int(n.ID())
			if i > 0 {
				id := t.linkIDs[nodePair{p.Nodes[i-1], p.Nodes[i]}]
				p.Links = append(p.Links, id)
				p.Length += t.links[id].Length
			}
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b Path) int {
		if a.Length != b.Length {
			if a.Length < b.Length {
				return -1
			}
			return 1
		}
		if a.Hops() != b.Hops() {
			return a.Hops() - b.Hops()
		}
		return slices.Compare(a.Nodes, b.Nodes)
	})
	return out
}

// Name returns the topology name.
func (t *Topology) Name() string { return t.name }

// NodeCount returns the number of nodes.
func (t *Topology) NodeCount() int { return t.nodes }

// LinkCount returns the number of links.
func (t *Topology) LinkCount() int { return len(t.links) }

// K returns the number of candidate paths computed per node pair.
func (t *Topology) K() int { return t.k }

// Link returns the link with the given id. Panics on an out-of-range id.
func (t *Topology) Link(id int) Link { return t.links[id] }

// Links returns a copy of all links in id order.
func (t *Topology) Links() []Link { return slices.Clone(t.links) }

// LinkSlotCapacity returns the number of spectrum slots on a link.
func (t *Topology) LinkSlotCapacity(id int) int { return t.links[id].Slots }

// TotalSlots returns the sum of slot capacities over all links.
func (t *Topology) TotalSlots() int {
	total := 0
	for _, l := range t.links {
		total += l.Slots
	}
	return total
}

// LinkBetween returns the id of the link joining u and v, if any.
func (t *Topology) LinkBetween(u, v int) (int, bool) {
	id, ok := t.linkIDs[nodePair{u, v}]
	return id, ok
}

// CandidatePaths returns the precomputed candidate paths from src to dst,
// shortest first. The returned slice is shared and must not be modified.
// Returns nil for unknown or identical endpoints.
func (t *Topology) CandidatePaths(src, dst int) []Path {
	return t.paths[nodePair{src, dst}]
}

// ValidPath reports whether links form a loopless walk from src to dst
// over existing links. Any such walk is accepted, not only candidate paths.
func (t *Topology) ValidPath(src, dst int, links []int) bool {
	if len(links) == 0 || src == dst {
		return false
	}
	if src < 0 || src >= t.nodes || dst < 0 || dst >= t.nodes {
		return false
	}
	visited := map[int]bool{src: true}
	at := src
	for _, id := range links {
		if id < 0 || id >= len(t.links) {
			return false
		}
		l := t.links[id]
		var next int
		switch at {
		case l.From:
			next = l.To
		case l.To:
			next = l.From
		default:
			return false
		}
		if visited[next] {
			return false
		}
		visited[next] = true
		at = next
	}
	return at == dst
}

// WithSlots returns a copy of the topology with every link set to n slots.
// Candidate paths are shared with the receiver since they do not depend on capacity.
func (t *Topology) WithSlots(n int) (*Topology, error) {
	if n < 1 {
		return nil, fmt.Errorf("topology %q: slots must be >= 1, got %d", t.name, n)
	}
	c := *t
	c.links = slices.Clone(t.links)
	for i := range c.links {
		c.links[i].Slots = n
	}
	return &c, nil
}
