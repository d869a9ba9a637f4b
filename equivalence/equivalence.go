// Package equivalence maintains sets of NetMeshObjectIdentifiers that denote
// the same logical object. A set is the connected component of a graph of
// direct, symmetric links; callers own the links and expose them through a
// Links function.
package equivalence

import (
	"slices"

	"github.com/infogrid/netmesh/common/types"
)

type ID = types.NetMeshObjectIdentifier

// Links returns the identifiers directly linked to id.
type Links func(id ID) []ID

// Component returns the equivalence set of start, including start itself,
// ordered canonically.
func Component(start ID, links Links) []ID {
	seen := map[ID]struct{}{start: {}}
	queue := []ID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range links(cur) {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	rst := make([]ID, 0, len(seen))
	for id := range seen {
		rst = append(rst, id)
	}
	slices.SortFunc(rst, ID.Compare)
	return rst
}

// Connected returns true if a and b are in the same equivalence set.
func Connected(a, b ID, links Links) bool {
	if a == b {
		return true
	}
	return slices.Contains(Component(a, links), b)
}

// Split groups the former direct links of a removed member by the
// equivalence set each of them ends up in once the member's links are gone.
// Each group lists only former links, in canonical order. A single group means
// the remaining members are still connected. links must already reflect the
// removal.
func Split(former []ID, links Links) [][]ID {
	var groups [][]ID
	assigned := map[ID]struct{}{}
	for _, id := range canonical(former) {
		if _, ok := assigned[id]; ok {
			continue
		}
		component := Component(id, links)
		var group []ID
		for _, other := range canonical(former) {
			if _, ok := slices.BinarySearchFunc(component, other, ID.Compare); ok {
				group = append(group, other)
				assigned[other] = struct{}{}
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// Bridges returns the links that rejoin the groups returned by Split into a
// single set. It returns nothing for fewer than two groups.
func Bridges(groups [][]ID) [][2]ID {
	var rst [][2]ID
	for i := 1; i < len(groups); i++ {
		rst = append(rst, [2]ID{groups[i-1][0], groups[i][0]})
	}
	return rst
}

// FindLeftAndRightEquivalents places target among all, which may or may not
// contain target, in canonical order and returns its neighbors in that order.
// An empty identifier means there is no neighbor on that side. The result
// does not depend on the order of all.
func FindLeftAndRightEquivalents(target ID, all []ID) (left, right ID) {
	ordered := canonical(append(slices.Clone(all), target))
	i, _ := slices.BinarySearchFunc(ordered, target, ID.Compare)
	if i > 0 {
		left = ordered[i-1]
	}
	if i+1 < len(ordered) {
		right = ordered[i+1]
	}
	return left, right
}

func canonical(ids []ID) []ID {
	rst := slices.Clone(ids)
	slices.SortFunc(rst, ID.Compare)
	return slices.Compact(rst)
}

// Graph keeps links in memory. A MeshBase keeps its links in the replicas
// instead and calls the package functions directly.
type Graph struct {
	links map[ID]map[ID]struct{}
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{links: map[ID]map[ID]struct{}{}}
}

// Links returns the direct links of id in canonical order.
func (g *Graph) Links(id ID) []ID {
	rst := make([]ID, 0, len(g.links[id]))
	for other := range g.links[id] {
		rst = append(rst, other)
	}
	slices.SortFunc(rst, ID.Compare)
	return rst
}

// Add merges the sets of a and b. It returns false and changes nothing if they
// already are in the same set.
func (g *Graph) Add(a, b ID) bool {
	if Connected(a, b, g.Links) {
		return false
	}
	g.link(a, b)
	g.link(b, a)
	return true
}

// Unlink removes the direct link between a and b and reports whether that
// split their set in two.
func (g *Graph) Unlink(a, b ID) (split bool) {
	if _, ok := g.links[a][b]; !ok {
		return false
	}
	g.unlink(a, b)
	g.unlink(b, a)
	return !Connected(a, b, g.Links)
}

// Remove takes id out of its set. The remaining members stay equivalent to
// each other: where id was their only connection, bridging links are added.
// Removing an identifier without links is a no-op.
func (g *Graph) Remove(id ID) {
	former := g.Links(id)
	for _, other := range former {
		g.unlink(id, other)
		g.unlink(other, id)
	}
	for _, bridge := range Bridges(Split(former, g.Links)) {
		g.link(bridge[0], bridge[1])
		g.link(bridge[1], bridge[0])
	}
}

// Set returns the equivalence set of id.
func (g *Graph) Set(id ID) []ID {
	return Component(id, g.Links)
}

func (g *Graph) link(a, b ID) {
	set, ok := g.links[a]
	if !ok {
		set = map[ID]struct{}{}
		g.links[a] = set
	}
	set[b] = struct{}{}
}

func (g *Graph) unlink(a, b ID) {
	delete(g.links[a], b)
	if len(g.links[a]) == 0 {
		delete(g.links, a)
	}
}
