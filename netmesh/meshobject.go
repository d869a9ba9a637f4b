package netmesh

import (
	"slices"

	"github.com/infogrid/netmesh/common/types"
)

// MeshObject is a read-only view of a committed replica.
type MeshObject struct {
	r *replica
}

func (o *MeshObject) Identifier() types.NetMeshObjectIdentifier { return o.r.Identifier }

func (o *MeshObject) Types() []types.EntityTypeID { return slices.Clone(o.r.EntityTypes) }

func (o *MeshObject) IsBlessedBy(t types.EntityTypeID) bool {
	return slices.Contains(o.r.EntityTypes, t)
}

// Property returns the value of a property and whether it is set.
func (o *MeshObject) Property(t types.PropertyTypeID) (types.PropertyValue, bool) {
	v, ok := property(o.r, t)
	return v.Clone(), ok
}

// Neighbors returns the identifiers of all related objects.
func (o *MeshObject) Neighbors() []types.NetMeshObjectIdentifier {
	rst := make([]types.NetMeshObjectIdentifier, 0, len(o.r.Neighbors))
	for _, n := range o.r.Neighbors {
		rst = append(rst, n.Identifier)
	}
	return rst
}

// RoleTypes returns the roles this object plays with respect to neighbor.
func (o *MeshObject) RoleTypes(neighbor types.NetMeshObjectIdentifier) []types.RoleTypeID {
	if i := neighborIndex(o.r, neighbor); i >= 0 {
		return slices.Clone(o.r.Neighbors[i].RoleTypes)
	}
	return nil
}

// Equivalents returns the direct equivalence links of the object.
func (o *MeshObject) Equivalents() []types.NetMeshObjectIdentifier {
	return slices.Clone(o.r.Equivalents)
}

func (o *MeshObject) TimeCreated() int64 { return o.r.TimeCreated }
func (o *MeshObject) TimeUpdated() int64 { return o.r.TimeUpdated }
func (o *MeshObject) TimeRead() int64    { return o.r.TimeRead }
func (o *MeshObject) TimeExpires() int64 { return o.r.TimeExpires }

// Proxies returns the remote MeshBases this replica is known to exist at.
func (o *MeshObject) Proxies() []types.NetMeshBaseIdentifier { return slices.Clone(o.r.Proxies) }

// IsReplicated is true if at least one other replica is known.
func (o *MeshObject) IsReplicated() bool { return len(o.r.Proxies) > 0 }

// HasLock is true if this replica may be written to.
func (o *MeshObject) HasLock() bool { return hasLock(o.r) }

// IsHomeReplica is true if this replica decides about the existence of the object.
func (o *MeshObject) IsHomeReplica() bool { return isHome(o.r) }

// ProxyTowardsLock returns the MeshBase the lock is reached through, if the
// lock is held elsewhere and the route is known.
func (o *MeshObject) ProxyTowardsLock() (types.NetMeshBaseIdentifier, bool) {
	return proxyAt(o.r, o.r.ProxyTowardsLockIndex)
}

// ProxyTowardsHome returns the MeshBase the home replica is reached through.
func (o *MeshObject) ProxyTowardsHome() (types.NetMeshBaseIdentifier, bool) {
	return proxyAt(o.r, o.r.ProxyTowardsHomeIndex)
}

// HomeRouteLost is true if the proxy leading toward the home replica was lost.
func (o *MeshObject) HomeRouteLost() bool { return o.r.ProxyTowardsHomeIndex == types.LostIndex }

// LockRouteLost is true if the proxy leading toward the lock was lost.
func (o *MeshObject) LockRouteLost() bool { return o.r.ProxyTowardsLockIndex == types.LostIndex }

func (o *MeshObject) GiveUpLock() bool        { return o.r.GiveUpLock }
func (o *MeshObject) GiveUpHomeReplica() bool { return o.r.GiveUpHomeReplica }

// Externalize returns a copy of the full replicated state.
func (o *MeshObject) Externalize() types.ExternalizedNetMeshObject {
	return *o.r.Clone()
}
