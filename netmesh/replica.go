package netmesh

import (
	"slices"

	"github.com/infogrid/netmesh/common/types"
)

// replica is the mutable state of a local copy. Committed replicas are never
// modified in place; transactions work on clones.
type replica = types.ExternalizedNetMeshObject

func newReplica(id types.NetMeshObjectIdentifier, now int64) *replica {
	return &replica{
		Identifier:            id,
		TimeCreated:           now,
		TimeUpdated:           now,
		TimeRead:              now,
		TimeExpires:           types.NeverExpires,
		ProxyTowardsHomeIndex: types.HereIndex,
		ProxyTowardsLockIndex: types.HereIndex,
	}
}

func hasLock(r *replica) bool { return r.ProxyTowardsLockIndex == types.HereIndex }

func isHome(r *replica) bool { return r.ProxyTowardsHomeIndex == types.HereIndex }

func proxyIndex(r *replica, base types.NetMeshBaseIdentifier) int32 {
	return int32(slices.Index(r.Proxies, base))
}

func proxyAt(r *replica, idx int32) (types.NetMeshBaseIdentifier, bool) {
	if idx < 0 || int(idx) >= len(r.Proxies) {
		return types.NetMeshBaseIdentifier{}, false
	}
	return r.Proxies[idx], true
}

func addProxy(r *replica, base types.NetMeshBaseIdentifier) (idx int32, added bool) {
	if i := proxyIndex(r, base); i >= 0 {
		return i, false
	}
	r.Proxies = append(r.Proxies, base)
	return int32(len(r.Proxies) - 1), true
}

// removeProxy drops base from the proxies. Routes through it become lost.
func removeProxy(r *replica, base types.NetMeshBaseIdentifier) bool {
	i := proxyIndex(r, base)
	if i < 0 {
		return false
	}
	r.Proxies = slices.Delete(r.Proxies, int(i), int(i)+1)
	for _, idx := range []*int32{&r.ProxyTowardsHomeIndex, &r.ProxyTowardsLockIndex} {
		switch {
		case *idx == i:
			*idx = types.LostIndex
		case *idx > i:
			*idx--
		}
	}
	return true
}

func addTypes(r *replica, ts []types.EntityTypeID) []types.EntityTypeID {
	var added []types.EntityTypeID
	for _, t := range ts {
		if !slices.Contains(r.EntityTypes, t) {
			r.EntityTypes = append(r.EntityTypes, t)
			added = append(added, t)
		}
	}
	return added
}

func removeTypes(r *replica, ts []types.EntityTypeID) []types.EntityTypeID {
	var removed []types.EntityTypeID
	for _, t := range ts {
		if i := slices.Index(r.EntityTypes, t); i >= 0 {
			r.EntityTypes = slices.Delete(r.EntityTypes, i, i+1)
			removed = append(removed, t)
		}
	}
	return removed
}

func property(r *replica, t types.PropertyTypeID) (types.PropertyValue, bool) {
	for _, p := range r.Properties {
		if p.Type == t {
			return p.Value, true
		}
	}
	return types.PropertyValue{}, false
}

func setProperty(r *replica, t types.PropertyTypeID, v types.PropertyValue) {
	for i := range r.Properties {
		if r.Properties[i].Type == t {
			r.Properties[i].Value = v.Clone()
			return
		}
	}
	r.Properties = append(r.Properties, types.PropertyEntry{Type: t, Value: v.Clone()})
}

func removeProperty(r *replica, t types.PropertyTypeID) bool {
	i := slices.IndexFunc(r.Properties, func(p types.PropertyEntry) bool { return p.Type == t })
	if i < 0 {
		return false
	}
	r.Properties = slices.Delete(r.Properties, i, i+1)
	return true
}

func neighborIndex(r *replica, id types.NetMeshObjectIdentifier) int {
	return slices.IndexFunc(r.Neighbors, func(n types.NeighborEntry) bool { return n.Identifier == id })
}

func addNeighbor(r *replica, id types.NetMeshObjectIdentifier) bool {
	if neighborIndex(r, id) >= 0 {
		return false
	}
	r.Neighbors = append(r.Neighbors, types.NeighborEntry{Identifier: id})
	return true
}

func removeNeighbor(r *replica, id types.NetMeshObjectIdentifier) bool {
	i := neighborIndex(r, id)
	if i < 0 {
		return false
	}
	r.Neighbors = slices.Delete(r.Neighbors, i, i+1)
	return true
}

func addRoles(r *replica, nb types.NetMeshObjectIdentifier, roles []types.RoleTypeID) []types.RoleTypeID {
	i := neighborIndex(r, nb)
	if i < 0 {
		return nil
	}
	var added []types.RoleTypeID
	for _, role := range roles {
		if !slices.Contains(r.Neighbors[i].RoleTypes, role) {
			r.Neighbors[i].RoleTypes = append(r.Neighbors[i].RoleTypes, role)
			added = append(added, role)
		}
	}
	return added
}

func removeRoles(r *replica, nb types.NetMeshObjectIdentifier, roles []types.RoleTypeID) []types.RoleTypeID {
	i := neighborIndex(r, nb)
	if i < 0 {
		return nil
	}
	var removed []types.RoleTypeID
	for _, role := range roles {
		if j := slices.Index(r.Neighbors[i].RoleTypes, role); j >= 0 {
			r.Neighbors[i].RoleTypes = slices.Delete(r.Neighbors[i].RoleTypes, j, j+1)
			removed = append(removed, role)
		}
	}
	return removed
}

func addEquivalent(r *replica, id types.NetMeshObjectIdentifier) bool {
	if id == r.Identifier || slices.Contains(r.Equivalents, id) {
		return false
	}
	r.Equivalents = append(r.Equivalents, id)
	return true
}

func removeEquivalent(r *replica, id types.NetMeshObjectIdentifier) bool {
	i := slices.Index(r.Equivalents, id)
	if i < 0 {
		return false
	}
	r.Equivalents = slices.Delete(r.Equivalents, i, i+1)
	return true
}
