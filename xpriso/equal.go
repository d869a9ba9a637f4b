package xpriso

import (
	"encoding/binary"
	"slices"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/hash"
)

// Equal compares two messages field by field. Operation lists are compared as
// multisets: the order of elements does not matter, their multiplicity does.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Sender != o.Sender ||
		m.Receiver != o.Receiver ||
		m.RequestID != o.RequestID ||
		m.ResponseID != o.ResponseID ||
		m.Session != o.Session ||
		m.ResponseSession != o.ResponseSession ||
		m.CeaseCommunications != o.CeaseCommunications {
		return false
	}
	if !multisetEqual(m.ConveyedMeshObjects, o.ConveyedMeshObjects, func(a, b types.ExternalizedNetMeshObject) bool {
		return a.SameState(&b)
	}) {
		return false
	}
	if !multisetEqual(m.DeletedObjects, o.DeletedObjects, comparableEqual[DeleteChange]) ||
		!multisetEqual(m.PropertyChanges, o.PropertyChanges, propertyChangeEqual) ||
		!multisetEqual(m.TypeAdditions, o.TypeAdditions, typeChangeEqual) ||
		!multisetEqual(m.TypeRemovals, o.TypeRemovals, typeChangeEqual) ||
		!multisetEqual(m.NeighborAdditions, o.NeighborAdditions, comparableEqual[NeighborChange]) ||
		!multisetEqual(m.NeighborRemovals, o.NeighborRemovals, comparableEqual[NeighborChange]) ||
		!multisetEqual(m.RoleAdditions, o.RoleAdditions, roleChangeEqual) ||
		!multisetEqual(m.RoleRemovals, o.RoleRemovals, roleChangeEqual) ||
		!multisetEqual(m.EquivalentAdditions, o.EquivalentAdditions, comparableEqual[EquivalentsChange]) ||
		!multisetEqual(m.EquivalentRemovals, o.EquivalentRemovals, comparableEqual[EquivalentsChange]) {
		return false
	}
	ours, theirs := m.identifierLists(), o.identifierLists()
	for i := range ours {
		if !multisetEqual(ours[i].ids, theirs[i].ids, comparableEqual[types.NetMeshObjectIdentifier]) {
			return false
		}
	}
	return true
}

// Hash covers only sender, receiver and the two ids. Within one session these
// identify a message; messages that differ only in content collide.
func (m *Message) Hash() uint64 {
	var ids [16]byte
	binary.LittleEndian.PutUint64(ids[:8], uint64(m.RequestID))
	binary.LittleEndian.PutUint64(ids[8:], uint64(m.ResponseID))
	return hash.Sum64(ids[:], []byte(m.Sender.String()), []byte{0}, []byte(m.Receiver.String()))
}

func multisetEqual[T any](a, b []T, eq func(T, T) bool) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, x := range a {
		found := false
		for j, y := range b {
			if !used[j] && eq(x, y) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func comparableEqual[T comparable](a, b T) bool {
	return a == b
}

func propertyChangeEqual(a, b PropertyChange) bool {
	return a.Identifier == b.Identifier &&
		a.Type == b.Type &&
		a.Removed == b.Removed &&
		a.TimeUpdated == b.TimeUpdated &&
		a.Value.Equal(b.Value)
}

func typeChangeEqual(a, b TypeChange) bool {
	return a.Identifier == b.Identifier &&
		a.TimeUpdated == b.TimeUpdated &&
		sameElements(a.Types, b.Types)
}

func roleChangeEqual(a, b RoleChange) bool {
	return a.Identifier == b.Identifier &&
		a.Neighbor == b.Neighbor &&
		a.TimeUpdated == b.TimeUpdated &&
		sameElements(a.RoleTypes, b.RoleTypes)
}

func sameElements[T ~string](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
