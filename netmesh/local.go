package netmesh

import (
	"errors"
	"fmt"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/equivalence"
	"github.com/infogrid/netmesh/xpriso"
)

// ErrNotRelated is returned when blessing the relationship of unrelated objects.
var ErrNotRelated = errors.New("meshobjects are not related")

// CreateMeshObject creates an object with a random identifier of this MeshBase.
func (tx *Tx) CreateMeshObject(ts ...types.EntityTypeID) (types.NetMeshObjectIdentifier, error) {
	id := tx.mb.ids.CreateRandom()
	return id, tx.CreateMeshObjectWithID(id, ts...)
}

// CreateMeshObjectWithID creates an object of this MeshBase. The new replica is
// the home replica and holds the lock.
func (tx *Tx) CreateMeshObjectWithID(id types.NetMeshObjectIdentifier, ts ...types.EntityTypeID) error {
	if err := tx.checkAccess(OpCreate, id); err != nil {
		return err
	}
	if id.MeshBase() != tx.mb.id {
		return notPermitted(id, OpCreate, "identifier belongs to "+id.MeshBase().String())
	}
	if tx.Exists(id) {
		return fmt.Errorf("%w: %s", ErrObjectExists, id)
	}
	r := newReplica(id, tx.now)
	tx.put(id, r)
	tx.emit(Change{Kind: Created, Object: id})
	if added := addTypes(r, ts); len(added) > 0 {
		tx.emit(Change{Kind: TypesAdded, Object: id, Types: added})
	}
	return nil
}

// SetProperty sets a property of an object whose lock this replica holds.
func (tx *Tx) SetProperty(id types.NetMeshObjectIdentifier, t types.PropertyTypeID, v types.PropertyValue) error {
	r, err := tx.writable(OpSetProperty, id)
	if err != nil {
		return err
	}
	old, had := property(r, t)
	if had && old.Equal(v) {
		return nil
	}
	setProperty(r, t, v)
	r.TimeUpdated = tx.now
	change := Change{Kind: PropertyChanged, Object: id, Property: t, NewValue: ptr(v.Clone())}
	if had {
		change.OldValue = &old
	}
	tx.emit(change)
	tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
		m.PropertyChanges = append(m.PropertyChanges, xpriso.PropertyChange{
			Identifier: id, Type: t, Value: v.Clone(), TimeUpdated: tx.now,
		})
	})
	return nil
}

// RemoveProperty clears a property.
func (tx *Tx) RemoveProperty(id types.NetMeshObjectIdentifier, t types.PropertyTypeID) error {
	r, err := tx.writable(OpSetProperty, id)
	if err != nil {
		return err
	}
	old, had := property(r, t)
	if !had {
		return nil
	}
	removeProperty(r, t)
	r.TimeUpdated = tx.now
	tx.emit(Change{Kind: PropertyChanged, Object: id, Property: t, OldValue: &old})
	tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
		m.PropertyChanges = append(m.PropertyChanges, xpriso.PropertyChange{
			Identifier: id, Type: t, Removed: true, TimeUpdated: tx.now,
		})
	})
	return nil
}

// Bless adds EntityTypes to an object.
func (tx *Tx) Bless(id types.NetMeshObjectIdentifier, ts ...types.EntityTypeID) error {
	r, err := tx.writable(OpBless, id)
	if err != nil {
		return err
	}
	added := addTypes(r, ts)
	if len(added) == 0 {
		return nil
	}
	r.TimeUpdated = tx.now
	tx.emit(Change{Kind: TypesAdded, Object: id, Types: added})
	tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
		m.TypeAdditions = append(m.TypeAdditions, xpriso.TypeChange{Identifier: id, Types: added, TimeUpdated: tx.now})
	})
	return nil
}

// Unbless removes EntityTypes from an object.
func (tx *Tx) Unbless(id types.NetMeshObjectIdentifier, ts ...types.EntityTypeID) error {
	r, err := tx.writable(OpBless, id)
	if err != nil {
		return err
	}
	removed := removeTypes(r, ts)
	if len(removed) == 0 {
		return nil
	}
	r.TimeUpdated = tx.now
	tx.emit(Change{Kind: TypesRemoved, Object: id, Types: removed})
	tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
		m.TypeRemovals = append(m.TypeRemovals, xpriso.TypeChange{Identifier: id, Types: removed, TimeUpdated: tx.now})
	})
	return nil
}

// Relate makes a and b neighbors. Both replicas need the lock.
func (tx *Tx) Relate(a, b types.NetMeshObjectIdentifier) error {
	ra, err := tx.writable(OpRelate, a)
	if err != nil {
		return err
	}
	rb, err := tx.writable(OpRelate, b)
	if err != nil {
		return err
	}
	for _, side := range [][2]*replica{{ra, rb}, {rb, ra}} {
		r, nb := side[0], side[1].Identifier
		if !addNeighbor(r, nb) {
			continue
		}
		r.TimeUpdated = tx.now
		tx.emit(Change{Kind: NeighborAdded, Object: r.Identifier, Neighbor: nb})
		tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
			m.NeighborAdditions = append(m.NeighborAdditions, xpriso.NeighborChange{
				Identifier: r.Identifier, Neighbor: nb, TimeUpdated: tx.now,
			})
		})
	}
	return nil
}

// Unrelate removes the relationship between a and b together with its roles.
func (tx *Tx) Unrelate(a, b types.NetMeshObjectIdentifier) error {
	ra, err := tx.writable(OpRelate, a)
	if err != nil {
		return err
	}
	rb, err := tx.writable(OpRelate, b)
	if err != nil {
		return err
	}
	for _, side := range [][2]*replica{{ra, rb}, {rb, ra}} {
		r, nb := side[0], side[1].Identifier
		if !removeNeighbor(r, nb) {
			continue
		}
		r.TimeUpdated = tx.now
		tx.emit(Change{Kind: NeighborRemoved, Object: r.Identifier, Neighbor: nb})
		tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
			m.NeighborRemovals = append(m.NeighborRemovals, xpriso.NeighborChange{
				Identifier: r.Identifier, Neighbor: nb, TimeUpdated: tx.now,
			})
		})
	}
	return nil
}

// BlessRelationship adds RoleTypes to the relationship of id toward neighbor.
func (tx *Tx) BlessRelationship(id, neighbor types.NetMeshObjectIdentifier, roles ...types.RoleTypeID) error {
	r, err := tx.writable(OpBless, id)
	if err != nil {
		return err
	}
	if neighborIndex(r, neighbor) < 0 {
		return fmt.Errorf("%w: %s and %s", ErrNotRelated, id, neighbor)
	}
	added := addRoles(r, neighbor, roles)
	if len(added) == 0 {
		return nil
	}
	r.TimeUpdated = tx.now
	tx.emit(Change{Kind: RolesAdded, Object: id, Neighbor: neighbor, Roles: added})
	tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
		m.RoleAdditions = append(m.RoleAdditions, xpriso.RoleChange{
			Identifier: id, Neighbor: neighbor, RoleTypes: added, TimeUpdated: tx.now,
		})
	})
	return nil
}

// UnblessRelationship removes RoleTypes from the relationship of id toward neighbor.
func (tx *Tx) UnblessRelationship(id, neighbor types.NetMeshObjectIdentifier, roles ...types.RoleTypeID) error {
	r, err := tx.writable(OpBless, id)
	if err != nil {
		return err
	}
	if neighborIndex(r, neighbor) < 0 {
		return fmt.Errorf("%w: %s and %s", ErrNotRelated, id, neighbor)
	}
	removed := removeRoles(r, neighbor, roles)
	if len(removed) == 0 {
		return nil
	}
	r.TimeUpdated = tx.now
	tx.emit(Change{Kind: RolesRemoved, Object: id, Neighbor: neighbor, Roles: removed})
	tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
		m.RoleRemovals = append(m.RoleRemovals, xpriso.RoleChange{
			Identifier: id, Neighbor: neighbor, RoleTypes: removed, TimeUpdated: tx.now,
		})
	})
	return nil
}

// AddAsEquivalent puts a and b into the same equivalence set. Nothing changes
// if they already are.
func (tx *Tx) AddAsEquivalent(a, b types.NetMeshObjectIdentifier) error {
	if a == b {
		return nil
	}
	if _, err := tx.writable(OpEquivalent, a); err != nil {
		return err
	}
	if _, err := tx.writable(OpEquivalent, b); err != nil {
		return err
	}
	if equivalence.Connected(a, b, tx.equivalents) {
		return nil
	}
	return tx.linkEquivalents(a, b)
}

// RemoveAsEquivalent takes id out of its equivalence set. The remaining members
// stay equivalent to each other.
func (tx *Tx) RemoveAsEquivalent(id types.NetMeshObjectIdentifier) error {
	r, err := tx.writable(OpEquivalent, id)
	if err != nil {
		return err
	}
	former := append([]types.NetMeshObjectIdentifier(nil), r.Equivalents...)
	if len(former) == 0 {
		return nil
	}
	for _, other := range former {
		if err := tx.unlinkEquivalents(id, other); err != nil {
			return err
		}
	}
	var local []types.NetMeshObjectIdentifier
	for _, other := range former {
		if tx.Exists(other) {
			local = append(local, other)
		}
	}
	for _, bridge := range equivalence.Bridges(equivalence.Split(local, tx.equivalents)) {
		if err := tx.linkEquivalents(bridge[0], bridge[1]); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) equivalents(id types.NetMeshObjectIdentifier) []types.NetMeshObjectIdentifier {
	r, err := tx.read(id)
	if err != nil {
		return nil
	}
	return r.Equivalents
}

func (tx *Tx) linkEquivalents(a, b types.NetMeshObjectIdentifier) error {
	for _, side := range [][2]types.NetMeshObjectIdentifier{{a, b}, {b, a}} {
		if !tx.Exists(side[0]) {
			continue
		}
		r, err := tx.write(side[0])
		if err != nil {
			return err
		}
		if !addEquivalent(r, side[1]) {
			continue
		}
		r.TimeUpdated = tx.now
		tx.emit(Change{Kind: EquivalentAdded, Object: side[0], Neighbor: side[1]})
		change := xpriso.EquivalentsChange{Identifier: side[0], Equivalent: side[1]}
		tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
			m.EquivalentAdditions = append(m.EquivalentAdditions, change)
		})
	}
	return nil
}

func (tx *Tx) unlinkEquivalents(a, b types.NetMeshObjectIdentifier) error {
	for _, side := range [][2]types.NetMeshObjectIdentifier{{a, b}, {b, a}} {
		if !tx.Exists(side[0]) {
			continue
		}
		r, err := tx.write(side[0])
		if err != nil {
			return err
		}
		if !removeEquivalent(r, side[1]) {
			continue
		}
		r.TimeUpdated = tx.now
		tx.emit(Change{Kind: EquivalentRemoved, Object: side[0], Neighbor: side[1]})
		change := xpriso.EquivalentsChange{Identifier: side[0], Equivalent: side[1]}
		tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
			m.EquivalentRemovals = append(m.EquivalentRemovals, change)
		})
	}
	return nil
}

// SetExpires sets when the sweeper may consider the replica expired, in
// milliseconds. types.NeverExpires disables expiry. The setting is local.
func (tx *Tx) SetExpires(id types.NetMeshObjectIdentifier, at int64) error {
	if err := tx.checkAccess(OpSetExpires, id); err != nil {
		return err
	}
	r, err := tx.write(id)
	if err != nil {
		return err
	}
	r.TimeExpires = at
	return nil
}

// SetGiveUpLock controls whether this replica hands its lock to proxies that request it.
func (tx *Tx) SetGiveUpLock(id types.NetMeshObjectIdentifier, giveUp bool) error {
	if err := tx.checkAccess(OpSetGiveUp, id); err != nil {
		return err
	}
	r, err := tx.write(id)
	if err != nil {
		return err
	}
	r.GiveUpLock = giveUp
	return nil
}

// SetGiveUpHomeReplica controls whether this replica hands over home status.
func (tx *Tx) SetGiveUpHomeReplica(id types.NetMeshObjectIdentifier, giveUp bool) error {
	if err := tx.checkAccess(OpSetGiveUp, id); err != nil {
		return err
	}
	r, err := tx.write(id)
	if err != nil {
		return err
	}
	r.GiveUpHomeReplica = giveUp
	return nil
}

// Delete deletes the object everywhere. Only the home replica holding the lock
// may delete; the home object of a MeshBase is never deleted.
func (tx *Tx) Delete(id types.NetMeshObjectIdentifier) error {
	if id.IsHomeObject() {
		return fmt.Errorf("%w: %s", ErrMustNotDeleteHomeObject, id)
	}
	if err := tx.checkAccess(OpDelete, id); err != nil {
		return err
	}
	r, err := tx.read(id)
	if err != nil {
		return err
	}
	if !isHome(r) {
		return notPermitted(id, OpDelete, "not the home replica")
	}
	if !hasLock(r) {
		return notPermitted(id, OpDelete, "update lock is not held")
	}
	tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
		m.DeletedObjects = append(m.DeletedObjects, xpriso.DeleteChange{Identifier: id, TimeUpdated: tx.now})
	})
	if err := tx.drop(r); err != nil {
		return err
	}
	tx.emit(Change{Kind: Deleted, Object: id})
	return nil
}

// drop removes r and the references local replicas keep to it.
func (tx *Tx) drop(r *replica) error {
	id := r.Identifier
	for _, nb := range r.Neighbors {
		if !tx.Exists(nb.Identifier) {
			continue
		}
		other, err := tx.write(nb.Identifier)
		if err != nil {
			return err
		}
		if removeNeighbor(other, id) {
			tx.emit(Change{Kind: NeighborRemoved, Object: nb.Identifier, Neighbor: id})
		}
	}
	for _, eq := range r.Equivalents {
		if !tx.Exists(eq) {
			continue
		}
		other, err := tx.write(eq)
		if err != nil {
			return err
		}
		if removeEquivalent(other, id) {
			tx.emit(Change{Kind: EquivalentRemoved, Object: eq, Neighbor: id})
		}
	}
	tx.remove(id)
	return nil
}

// Purge removes the local replica while the object lives on elsewhere. The
// lock and, if allowed, the home status are pushed to a proxy first.
func (tx *Tx) Purge(id types.NetMeshObjectIdentifier) error {
	if err := tx.checkAccess(OpPurge, id); err != nil {
		return err
	}
	r, err := tx.read(id)
	if err != nil {
		return err
	}
	if len(r.Proxies) == 0 {
		if isHome(r) {
			return notPermitted(id, OpPurge, "home replica is not replicated")
		}
		// orphaned: the rest of the object is unreachable
		tx.remove(id)
		tx.emit(Change{Kind: Purged, Object: id})
		return nil
	}
	target, ok := proxyAt(r, r.ProxyTowardsHomeIndex)
	if !ok {
		target = r.Proxies[0]
	}
	if isHome(r) {
		if !r.GiveUpHomeReplica {
			return notPermitted(id, OpPurge, "home replica does not give up home")
		}
		m := tx.message(target)
		m.PushHomeReplicas = append(m.PushHomeReplicas, id)
		tx.emit(Change{Kind: HomeLost, Object: id, Proxy: target})
	}
	if hasLock(r) {
		m := tx.message(target)
		m.PushLockObjects = append(m.PushLockObjects, id)
		tx.emit(Change{Kind: LockLost, Object: id, Proxy: target})
	}
	tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
		m.RequestedCanceledObjects = append(m.RequestedCanceledObjects, id)
	})
	tx.remove(id)
	tx.emit(Change{Kind: Purged, Object: id})
	return nil
}

// ReclaimLock takes the lock back after the replica that had it was lost.
// Only the home replica may reclaim.
func (tx *Tx) ReclaimLock(id types.NetMeshObjectIdentifier) error {
	if err := tx.checkAccess(OpReclaimLock, id); err != nil {
		return err
	}
	r, err := tx.read(id)
	if err != nil {
		return err
	}
	if hasLock(r) {
		return nil
	}
	if r.ProxyTowardsLockIndex != types.LostIndex {
		return notPermitted(id, OpReclaimLock, "lock is held by a reachable replica")
	}
	if !isHome(r) {
		return notPermitted(id, OpReclaimLock, "not the home replica")
	}
	r, err = tx.write(id)
	if err != nil {
		return err
	}
	r.ProxyTowardsLockIndex = types.HereIndex
	tx.emit(Change{Kind: LockGained, Object: id})
	tx.broadcast(r, types.NetMeshBaseIdentifier{}, func(m *xpriso.Message) {
		m.ReclaimedLockObjects = append(m.ReclaimedLockObjects, id)
	})
	return nil
}

// RequestLock asks the proxy toward the lock for it. It returns true if the
// lock is held already.
func (tx *Tx) RequestLock(id types.NetMeshObjectIdentifier) (bool, error) {
	if err := tx.checkAccess(OpObtainLock, id); err != nil {
		return false, err
	}
	r, err := tx.read(id)
	if err != nil {
		return false, err
	}
	if hasLock(r) {
		return true, nil
	}
	to, ok := proxyAt(r, r.ProxyTowardsLockIndex)
	if !ok {
		return false, notPermitted(id, OpObtainLock, "route toward the lock is lost")
	}
	m := tx.message(to)
	m.RequestedLockObjects = append(m.RequestedLockObjects, id)
	return false, nil
}

// RequestHomeReplica asks the proxy toward the home replica for home status.
// It returns true if this is the home replica already.
func (tx *Tx) RequestHomeReplica(id types.NetMeshObjectIdentifier) (bool, error) {
	if err := tx.checkAccess(OpObtainHome, id); err != nil {
		return false, err
	}
	r, err := tx.read(id)
	if err != nil {
		return false, err
	}
	if isHome(r) {
		return true, nil
	}
	to, ok := proxyAt(r, r.ProxyTowardsHomeIndex)
	if !ok {
		return false, notPermitted(id, OpObtainHome, "route toward the home replica is lost")
	}
	m := tx.message(to)
	m.RequestedHomeReplicas = append(m.RequestedHomeReplicas, id)
	return false, nil
}

// RequestFirstTime asks via for a replica of id. It returns true if a replica
// exists locally already.
func (tx *Tx) RequestFirstTime(via types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier) (bool, error) {
	if err := tx.checkAccess(OpObtainReplicas, id); err != nil {
		return false, err
	}
	if tx.Exists(id) {
		return true, nil
	}
	if via == tx.mb.id {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m := tx.message(via)
	m.RequestedFirstTimeObjects = append(m.RequestedFirstTimeObjects, id)
	return false, nil
}

// RequestResynchronize asks the proxy toward the lock, or else toward home,
// for a fresh copy of the replica.
func (tx *Tx) RequestResynchronize(id types.NetMeshObjectIdentifier) error {
	if err := tx.checkAccess(OpResynchronize, id); err != nil {
		return err
	}
	r, err := tx.read(id)
	if err != nil {
		return err
	}
	to, ok := proxyAt(r, r.ProxyTowardsLockIndex)
	if !ok {
		to, ok = proxyAt(r, r.ProxyTowardsHomeIndex)
	}
	if !ok {
		// this replica is authoritative
		return nil
	}
	tx.ResynchronizeVia(to, id)
	return nil
}

// ResynchronizeVia asks via for a fresh copy of the replica.
func (tx *Tx) ResynchronizeVia(via types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier) {
	m := tx.message(via)
	m.RequestedResynchronizeReplicas = append(m.RequestedResynchronizeReplicas, id)
}

func ptr[T any](v T) *T { return &v }
