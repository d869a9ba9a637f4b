package netmesh

import (
	"context"

	"go.uber.org/zap/zapcore"

	"github.com/infogrid/netmesh/common/types"
)

// ChangeKind tells what a Change did.
type ChangeKind uint8

const (
	Created ChangeKind = iota + 1
	Deleted
	Purged
	PropertyChanged
	TypesAdded
	TypesRemoved
	NeighborAdded
	NeighborRemoved
	RolesAdded
	RolesRemoved
	EquivalentAdded
	EquivalentRemoved
	LockGained
	LockLost
	HomeGained
	HomeLost
	ProxyAdded
	ProxyRemoved
	Resynchronized
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Purged:
		return "purged"
	case PropertyChanged:
		return "property changed"
	case TypesAdded:
		return "types added"
	case TypesRemoved:
		return "types removed"
	case NeighborAdded:
		return "neighbor added"
	case NeighborRemoved:
		return "neighbor removed"
	case RolesAdded:
		return "roles added"
	case RolesRemoved:
		return "roles removed"
	case EquivalentAdded:
		return "equivalent added"
	case EquivalentRemoved:
		return "equivalent removed"
	case LockGained:
		return "lock gained"
	case LockLost:
		return "lock lost"
	case HomeGained:
		return "home gained"
	case HomeLost:
		return "home lost"
	case ProxyAdded:
		return "proxy added"
	case ProxyRemoved:
		return "proxy removed"
	case Resynchronized:
		return "resynchronized"
	}
	return "unknown"
}

// Change is one logically distinct change of a replica. Fields that do not
// apply to the kind are zero.
type Change struct {
	Kind   ChangeKind
	Object types.NetMeshObjectIdentifier
	// Origin is the MeshBase whose message caused the change, empty for local changes.
	Origin types.NetMeshBaseIdentifier

	Property types.PropertyTypeID
	OldValue *types.PropertyValue
	NewValue *types.PropertyValue

	Types    []types.EntityTypeID
	Neighbor types.NetMeshObjectIdentifier
	Roles    []types.RoleTypeID
	Proxy    types.NetMeshBaseIdentifier
}

// MarshalLogObject implements logging interface.
func (c *Change) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("kind", c.Kind.String())
	encoder.AddString("object", c.Object.String())
	if !c.Origin.IsEmpty() {
		encoder.AddString("origin", c.Origin.String())
	}
	if c.Property != "" {
		encoder.AddString("property", string(c.Property))
	}
	if !c.Neighbor.IsEmpty() {
		encoder.AddString("neighbor", c.Neighbor.String())
	}
	if !c.Proxy.IsEmpty() {
		encoder.AddString("proxy", c.Proxy.String())
	}
	return nil
}

// Listener is notified after a transaction committed, with its changes in
// the order they were applied. Listeners run outside the MeshBase lock and may
// start new transactions.
type Listener func(ctx context.Context, changes []Change)
