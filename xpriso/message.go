// Package xpriso defines the messages two MeshBases exchange to keep their
// replicas in sync.
package xpriso

import (
	"go.uber.org/zap/zapcore"

	"github.com/infogrid/netmesh/common/types"
)

//go:generate scalegen -types Message,DeleteChange,PropertyChange,TypeChange,NeighborChange,RoleChange,EquivalentsChange

// DeleteChange announces that the home replica deleted an object.
type DeleteChange struct {
	Identifier  types.NetMeshObjectIdentifier
	TimeUpdated int64
}

// PropertyChange sets one property. A zero Value with Removed set clears it.
type PropertyChange struct {
	Identifier  types.NetMeshObjectIdentifier
	Type        types.PropertyTypeID
	Value       types.PropertyValue
	Removed     bool
	TimeUpdated int64
}

// TypeChange blesses or unblesses an object with EntityTypes.
type TypeChange struct {
	Identifier  types.NetMeshObjectIdentifier
	Types       []types.EntityTypeID
	TimeUpdated int64
}

// NeighborChange relates or unrelates two objects.
type NeighborChange struct {
	Identifier  types.NetMeshObjectIdentifier
	Neighbor    types.NetMeshObjectIdentifier
	TimeUpdated int64
}

// RoleChange blesses or unblesses the relationship between two related objects.
type RoleChange struct {
	Identifier  types.NetMeshObjectIdentifier
	Neighbor    types.NetMeshObjectIdentifier
	RoleTypes   []types.RoleTypeID
	TimeUpdated int64
}

// EquivalentsChange links or unlinks two identifiers of the same logical object.
type EquivalentsChange struct {
	Identifier types.NetMeshObjectIdentifier
	Equivalent types.NetMeshObjectIdentifier
}

// Message is the unit of the replication protocol. Every operation list is an
// unordered collection; a receiver applies the lists in a fixed order.
//
// A Message is filled in by its producer and must not be modified once it was
// handed to a transport. RequestID and ResponseID are assigned by the proxy.
// RequestID 0 marks a message that only acknowledges ResponseID.
//
// Request ids count from 1 within a Session of the sending proxy. A proxy that
// was lost and recreated starts a new Session, which tells the receiver to
// restart its count. ResponseSession is the Session ResponseID belongs to.
type Message struct {
	Sender              types.NetMeshBaseIdentifier
	Receiver            types.NetMeshBaseIdentifier
	RequestID           int64
	ResponseID          int64
	Session             uint64
	ResponseSession     uint64
	CeaseCommunications bool

	ConveyedMeshObjects []types.ExternalizedNetMeshObject
	DeletedObjects      []DeleteChange
	PropertyChanges     []PropertyChange
	TypeAdditions       []TypeChange
	TypeRemovals        []TypeChange
	NeighborAdditions   []NeighborChange
	NeighborRemovals    []NeighborChange
	RoleAdditions       []RoleChange
	RoleRemovals        []RoleChange
	EquivalentAdditions []EquivalentsChange
	EquivalentRemovals  []EquivalentsChange

	PushLockObjects       []types.NetMeshObjectIdentifier
	RequestedLockObjects  []types.NetMeshObjectIdentifier
	ReclaimedLockObjects  []types.NetMeshObjectIdentifier
	PushHomeReplicas      []types.NetMeshObjectIdentifier
	RequestedHomeReplicas []types.NetMeshObjectIdentifier

	RequestedFirstTimeObjects      []types.NetMeshObjectIdentifier
	RequestedCanceledObjects       []types.NetMeshObjectIdentifier
	RequestedResynchronizeReplicas []types.NetMeshObjectIdentifier
}

// IsEmpty returns true if the message carries no operation and does not
// cease communications. Empty messages are pure acknowledgements.
func (m *Message) IsEmpty() bool {
	return !m.CeaseCommunications && m.Operations() == 0
}

// Operations counts the operations carried by the message.
func (m *Message) Operations() int {
	return len(m.ConveyedMeshObjects) +
		len(m.DeletedObjects) +
		len(m.PropertyChanges) +
		len(m.TypeAdditions) +
		len(m.TypeRemovals) +
		len(m.NeighborAdditions) +
		len(m.NeighborRemovals) +
		len(m.RoleAdditions) +
		len(m.RoleRemovals) +
		len(m.EquivalentAdditions) +
		len(m.EquivalentRemovals) +
		len(m.PushLockObjects) +
		len(m.RequestedLockObjects) +
		len(m.ReclaimedLockObjects) +
		len(m.PushHomeReplicas) +
		len(m.RequestedHomeReplicas) +
		len(m.RequestedFirstTimeObjects) +
		len(m.RequestedCanceledObjects) +
		len(m.RequestedResynchronizeReplicas)
}

// Merge appends all operations of other to m. Sender, receiver and ids of m
// are kept.
func (m *Message) Merge(other *Message) {
	m.CeaseCommunications = m.CeaseCommunications || other.CeaseCommunications
	m.ConveyedMeshObjects = append(m.ConveyedMeshObjects, other.ConveyedMeshObjects...)
	m.DeletedObjects = append(m.DeletedObjects, other.DeletedObjects...)
	m.PropertyChanges = append(m.PropertyChanges, other.PropertyChanges...)
	m.TypeAdditions = append(m.TypeAdditions, other.TypeAdditions...)
	m.TypeRemovals = append(m.TypeRemovals, other.TypeRemovals...)
	m.NeighborAdditions = append(m.NeighborAdditions, other.NeighborAdditions...)
	m.NeighborRemovals = append(m.NeighborRemovals, other.NeighborRemovals...)
	m.RoleAdditions = append(m.RoleAdditions, other.RoleAdditions...)
	m.RoleRemovals = append(m.RoleRemovals, other.RoleRemovals...)
	m.EquivalentAdditions = append(m.EquivalentAdditions, other.EquivalentAdditions...)
	m.EquivalentRemovals = append(m.EquivalentRemovals, other.EquivalentRemovals...)
	m.PushLockObjects = append(m.PushLockObjects, other.PushLockObjects...)
	m.RequestedLockObjects = append(m.RequestedLockObjects, other.RequestedLockObjects...)
	m.ReclaimedLockObjects = append(m.ReclaimedLockObjects, other.ReclaimedLockObjects...)
	m.PushHomeReplicas = append(m.PushHomeReplicas, other.PushHomeReplicas...)
	m.RequestedHomeReplicas = append(m.RequestedHomeReplicas, other.RequestedHomeReplicas...)
	m.RequestedFirstTimeObjects = append(m.RequestedFirstTimeObjects, other.RequestedFirstTimeObjects...)
	m.RequestedCanceledObjects = append(m.RequestedCanceledObjects, other.RequestedCanceledObjects...)
	m.RequestedResynchronizeReplicas = append(m.RequestedResynchronizeReplicas, other.RequestedResynchronizeReplicas...)
}

// MarshalLogObject implements logging interface.
func (m *Message) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("sender", m.Sender.String())
	encoder.AddString("receiver", m.Receiver.String())
	encoder.AddInt64("request", m.RequestID)
	encoder.AddInt64("response", m.ResponseID)
	if m.Session != 0 {
		encoder.AddUint64("session", m.Session)
	}
	if m.CeaseCommunications {
		encoder.AddBool("cease", true)
	}
	for _, f := range []struct {
		name string
		n    int
	}{
		{"conveyed", len(m.ConveyedMeshObjects)},
		{"deleted", len(m.DeletedObjects)},
		{"properties", len(m.PropertyChanges)},
		{"types", len(m.TypeAdditions) + len(m.TypeRemovals)},
		{"neighbors", len(m.NeighborAdditions) + len(m.NeighborRemovals)},
		{"roles", len(m.RoleAdditions) + len(m.RoleRemovals)},
		{"equivalents", len(m.EquivalentAdditions) + len(m.EquivalentRemovals)},
		{"lock", len(m.PushLockObjects) + len(m.RequestedLockObjects) + len(m.ReclaimedLockObjects)},
		{"home", len(m.PushHomeReplicas) + len(m.RequestedHomeReplicas)},
		{"first_time", len(m.RequestedFirstTimeObjects)},
		{"canceled", len(m.RequestedCanceledObjects)},
		{"resync", len(m.RequestedResynchronizeReplicas)},
	} {
		if f.n > 0 {
			encoder.AddInt(f.name, f.n)
		}
	}
	return nil
}

type identifierList struct {
	name string
	ids  []types.NetMeshObjectIdentifier
}

func (m *Message) identifierLists() []identifierList {
	return []identifierList{
		{"push lock", m.PushLockObjects},
		{"requested lock", m.RequestedLockObjects},
		{"reclaimed lock", m.ReclaimedLockObjects},
		{"push home", m.PushHomeReplicas},
		{"requested home", m.RequestedHomeReplicas},
		{"requested first time", m.RequestedFirstTimeObjects},
		{"requested canceled", m.RequestedCanceledObjects},
		{"requested resync", m.RequestedResynchronizeReplicas},
	}
}
