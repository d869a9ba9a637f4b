package types

import (
	"slices"
)

//go:generate scalegen -types ExternalizedNetMeshObject,PropertyEntry,NeighborEntry

// Replication routing indices of an ExternalizedNetMeshObject.
const (
	// HereIndex means the home replica or the lock is held by this replica.
	HereIndex = -1
	// LostIndex means the proxy that led toward home or lock was lost.
	LostIndex = -2
)

// NeverExpires is the TimeExpires value of objects that do not expire. It also marks
// timestamps that were never set.
const NeverExpires int64 = -1

// PropertyEntry is one property of an externalized MeshObject.
type PropertyEntry struct {
	Type  PropertyTypeID
	Value PropertyValue
}

// NeighborEntry is one neighbor of an externalized MeshObject together with the
// RoleTypes this object plays with respect to it.
type NeighborEntry struct {
	Identifier NetMeshObjectIdentifier
	RoleTypes  []RoleTypeID
}

// ExternalizedNetMeshObject is the complete replicated state of one replica.
// It is what gets persisted in a Store and what is conveyed in Xpriso messages.
// Timestamps are milliseconds since the unix epoch, -1 if never set.
type ExternalizedNetMeshObject struct {
	Identifier  NetMeshObjectIdentifier
	EntityTypes []EntityTypeID

	TimeCreated int64
	TimeUpdated int64
	TimeRead    int64
	TimeExpires int64

	Properties  []PropertyEntry
	Neighbors   []NeighborEntry
	Equivalents []NetMeshObjectIdentifier

	Proxies               []NetMeshBaseIdentifier
	ProxyTowardsHomeIndex int32
	ProxyTowardsLockIndex int32
	GiveUpHomeReplica     bool
	GiveUpLock            bool
}

// Normalize sorts all unordered collections so that two snapshots of the same state
// compare and encode identically.
func (e *ExternalizedNetMeshObject) Normalize() {
	slices.Sort(e.EntityTypes)
	slices.SortFunc(e.Properties, func(a, b PropertyEntry) int {
		switch {
		case a.Type < b.Type:
			return -1
		case a.Type > b.Type:
			return 1
		}
		return 0
	})
	for i := range e.Neighbors {
		slices.Sort(e.Neighbors[i].RoleTypes)
	}
	slices.SortFunc(e.Neighbors, func(a, b NeighborEntry) int {
		return a.Identifier.Compare(b.Identifier)
	})
	slices.SortFunc(e.Equivalents, NetMeshObjectIdentifier.Compare)
}

// Equal compares two snapshots field by field. Collections are compared in order,
// call Normalize on both sides first when their origin is unknown.
func (e *ExternalizedNetMeshObject) Equal(o *ExternalizedNetMeshObject) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Identifier != o.Identifier ||
		e.TimeCreated != o.TimeCreated ||
		e.TimeUpdated != o.TimeUpdated ||
		e.TimeRead != o.TimeRead ||
		e.TimeExpires != o.TimeExpires ||
		e.ProxyTowardsHomeIndex != o.ProxyTowardsHomeIndex ||
		e.ProxyTowardsLockIndex != o.ProxyTowardsLockIndex ||
		e.GiveUpHomeReplica != o.GiveUpHomeReplica ||
		e.GiveUpLock != o.GiveUpLock {
		return false
	}
	if !slices.Equal(e.EntityTypes, o.EntityTypes) ||
		!slices.Equal(e.Equivalents, o.Equivalents) ||
		!slices.Equal(e.Proxies, o.Proxies) {
		return false
	}
	if !slices.EqualFunc(e.Properties, o.Properties, func(a, b PropertyEntry) bool {
		return a.Type == b.Type && a.Value.Equal(b.Value)
	}) {
		return false
	}
	return slices.EqualFunc(e.Neighbors, o.Neighbors, func(a, b NeighborEntry) bool {
		return a.Identifier == b.Identifier && slices.Equal(a.RoleTypes, b.RoleTypes)
	})
}

// Clone returns a deep copy.
func (e *ExternalizedNetMeshObject) Clone() *ExternalizedNetMeshObject {
	c := *e
	c.EntityTypes = slices.Clone(e.EntityTypes)
	c.Properties = make([]PropertyEntry, len(e.Properties))
	for i, p := range e.Properties {
		c.Properties[i] = PropertyEntry{Type: p.Type, Value: p.Value.Clone()}
	}
	c.Neighbors = make([]NeighborEntry, len(e.Neighbors))
	for i, n := range e.Neighbors {
		c.Neighbors[i] = NeighborEntry{Identifier: n.Identifier, RoleTypes: slices.Clone(n.RoleTypes)}
	}
	c.Equivalents = slices.Clone(e.Equivalents)
	c.Proxies = slices.Clone(e.Proxies)
	return &c
}

// SameState compares two snapshots regardless of the order of their collections.
func (e *ExternalizedNetMeshObject) SameState(o *ExternalizedNetMeshObject) bool {
	if e == nil || o == nil {
		return e == o
	}
	a, b := e.Clone(), o.Clone()
	a.Normalize()
	b.Normalize()
	return a.Equal(b)
}
