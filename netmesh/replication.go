package netmesh

import (
	"errors"
	"fmt"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/xpriso"
)

// ErrConflict is returned for a remote change that did not come from the
// replica holding the lock, or a deletion that did not come from home.
var ErrConflict = errors.New("conflicting remote change")

// Outcome of a remote request for the lock or the home replica.
type Outcome uint8

const (
	// Unknown means there is no local replica.
	Unknown Outcome = iota
	// Granted means it was pushed to the requester.
	Granted
	// Forwarded means the request went on toward the current holder.
	Forwarded
	// Refused means this replica keeps it.
	Refused
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Forwarded:
		return "forwarded"
	case Refused:
		return "refused"
	default:
		return "unknown"
	}
}

func conflict(id types.NetMeshObjectIdentifier, from types.NetMeshBaseIdentifier, reason string) error {
	return fmt.Errorf("%w: %s from %s: %s", ErrConflict, id, from, reason)
}

// remote returns a private copy of a replica whose lock route leads to from.
// It returns nil without error if there is no replica.
func (tx *Tx) remote(from types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier) (*replica, error) {
	r, err := tx.read(id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if idx := proxyIndex(r, from); idx < 0 || r.ProxyTowardsLockIndex != idx {
		return nil, conflict(id, from, "sender does not hold the lock")
	}
	return tx.write(id)
}

// ApplyConveyed takes a full replica from a proxy. A missing replica is
// created with from as the route toward home and lock. An existing one takes
// over the content unless it holds the lock. Expiry is local to each replica
// and never taken from the sender.
func (tx *Tx) ApplyConveyed(from types.NetMeshBaseIdentifier, ext *types.ExternalizedNetMeshObject) error {
	id := ext.Identifier
	r, err := tx.write(id)
	if errors.Is(err, ErrNotFound) {
		r = ext.Clone()
		r.Proxies = []types.NetMeshBaseIdentifier{from}
		r.ProxyTowardsHomeIndex = 0
		r.ProxyTowardsLockIndex = 0
		r.GiveUpHomeReplica = false
		r.GiveUpLock = false
		r.TimeRead = tx.now
		r.TimeExpires = types.NeverExpires
		tx.put(id, r)
		tx.emit(Change{Kind: Created, Object: id, Origin: from})
		return nil
	} else if err != nil {
		return err
	}
	if !hasLock(r) {
		c := ext.Clone()
		r.EntityTypes = c.EntityTypes
		r.Properties = c.Properties
		r.Neighbors = c.Neighbors
		r.Equivalents = c.Equivalents
		r.TimeCreated = c.TimeCreated
		r.TimeUpdated = c.TimeUpdated
	}
	idx, added := addProxy(r, from)
	if added {
		tx.emit(Change{Kind: ProxyAdded, Object: id, Origin: from, Proxy: from})
	}
	if r.ProxyTowardsHomeIndex == types.LostIndex {
		r.ProxyTowardsHomeIndex = idx
	}
	if r.ProxyTowardsLockIndex == types.LostIndex {
		r.ProxyTowardsLockIndex = idx
	}
	tx.emit(Change{Kind: Resynchronized, Object: id, Origin: from})
	return nil
}

// ApplyTypes adds or removes EntityTypes as announced by from.
func (tx *Tx) ApplyTypes(from types.NetMeshBaseIdentifier, c xpriso.TypeChange, add bool) error {
	r, err := tx.remote(from, c.Identifier)
	if r == nil {
		return err
	}
	var changed []types.EntityTypeID
	kind := TypesAdded
	if add {
		changed = addTypes(r, c.Types)
	} else {
		kind = TypesRemoved
		changed = removeTypes(r, c.Types)
	}
	r.TimeUpdated = max(r.TimeUpdated, c.TimeUpdated)
	if len(changed) > 0 {
		tx.emit(Change{Kind: kind, Object: c.Identifier, Origin: from, Types: changed})
	}
	tx.broadcast(r, from, func(m *xpriso.Message) {
		if add {
			m.TypeAdditions = append(m.TypeAdditions, c)
		} else {
			m.TypeRemovals = append(m.TypeRemovals, c)
		}
	})
	return nil
}

// ApplyNeighbor relates or unrelates as announced by from.
func (tx *Tx) ApplyNeighbor(from types.NetMeshBaseIdentifier, c xpriso.NeighborChange, add bool) error {
	r, err := tx.remote(from, c.Identifier)
	if r == nil {
		return err
	}
	kind := NeighborAdded
	changed := false
	if add {
		changed = addNeighbor(r, c.Neighbor)
	} else {
		kind = NeighborRemoved
		changed = removeNeighbor(r, c.Neighbor)
	}
	r.TimeUpdated = max(r.TimeUpdated, c.TimeUpdated)
	if changed {
		tx.emit(Change{Kind: kind, Object: c.Identifier, Origin: from, Neighbor: c.Neighbor})
	}
	tx.broadcast(r, from, func(m *xpriso.Message) {
		if add {
			m.NeighborAdditions = append(m.NeighborAdditions, c)
		} else {
			m.NeighborRemovals = append(m.NeighborRemovals, c)
		}
	})
	return nil
}

// ApplyRoles blesses or unblesses a relationship as announced by from.
func (tx *Tx) ApplyRoles(from types.NetMeshBaseIdentifier, c xpriso.RoleChange, add bool) error {
	r, err := tx.remote(from, c.Identifier)
	if r == nil {
		return err
	}
	if add && neighborIndex(r, c.Neighbor) < 0 {
		addNeighbor(r, c.Neighbor)
	}
	var changed []types.RoleTypeID
	kind := RolesAdded
	if add {
		changed = addRoles(r, c.Neighbor, c.RoleTypes)
	} else {
		kind = RolesRemoved
		changed = removeRoles(r, c.Neighbor, c.RoleTypes)
	}
	r.TimeUpdated = max(r.TimeUpdated, c.TimeUpdated)
	if len(changed) > 0 {
		tx.emit(Change{Kind: kind, Object: c.Identifier, Origin: from, Neighbor: c.Neighbor, Roles: changed})
	}
	tx.broadcast(r, from, func(m *xpriso.Message) {
		if add {
			m.RoleAdditions = append(m.RoleAdditions, c)
		} else {
			m.RoleRemovals = append(m.RoleRemovals, c)
		}
	})
	return nil
}

// ApplyEquivalent links or unlinks equivalents as announced by from.
func (tx *Tx) ApplyEquivalent(from types.NetMeshBaseIdentifier, c xpriso.EquivalentsChange, add bool) error {
	r, err := tx.remote(from, c.Identifier)
	if r == nil {
		return err
	}
	kind := EquivalentAdded
	changed := false
	if add {
		changed = addEquivalent(r, c.Equivalent)
	} else {
		kind = EquivalentRemoved
		changed = removeEquivalent(r, c.Equivalent)
	}
	if changed {
		tx.emit(Change{Kind: kind, Object: c.Identifier, Origin: from, Neighbor: c.Equivalent})
	}
	tx.broadcast(r, from, func(m *xpriso.Message) {
		if add {
			m.EquivalentAdditions = append(m.EquivalentAdditions, c)
		} else {
			m.EquivalentRemovals = append(m.EquivalentRemovals, c)
		}
	})
	return nil
}

// ApplyProperty sets or clears a property as announced by from.
func (tx *Tx) ApplyProperty(from types.NetMeshBaseIdentifier, c xpriso.PropertyChange) error {
	r, err := tx.remote(from, c.Identifier)
	if r == nil {
		return err
	}
	old, had := property(r, c.Type)
	change := Change{Kind: PropertyChanged, Object: c.Identifier, Origin: from, Property: c.Type}
	if had {
		change.OldValue = &old
	}
	switch {
	case c.Removed && had:
		removeProperty(r, c.Type)
		tx.emit(change)
	case !c.Removed && (!had || !old.Equal(c.Value)):
		setProperty(r, c.Type, c.Value)
		change.NewValue = ptr(c.Value.Clone())
		tx.emit(change)
	}
	r.TimeUpdated = max(r.TimeUpdated, c.TimeUpdated)
	tx.broadcast(r, from, func(m *xpriso.Message) {
		m.PropertyChanges = append(m.PropertyChanges, c)
	})
	return nil
}

// LockRequested handles a request for the lock from a proxy. mayGrant decides
// whether a held lock is handed over; nil defers to the replica's GiveUpLock.
func (tx *Tx) LockRequested(
	from types.NetMeshBaseIdentifier,
	id types.NetMeshObjectIdentifier,
	mayGrant func(*MeshObject) bool,
) (Outcome, error) {
	r, err := tx.read(id)
	if errors.Is(err, ErrNotFound) {
		return Unknown, nil
	} else if err != nil {
		return Unknown, err
	}
	if hasLock(r) {
		if !grants(r, mayGrant, r.GiveUpLock) {
			return Refused, nil
		}
		r, err = tx.write(id)
		if err != nil {
			return Unknown, err
		}
		idx, _ := addProxy(r, from)
		r.ProxyTowardsLockIndex = idx
		m := tx.message(from)
		m.PushLockObjects = append(m.PushLockObjects, id)
		tx.emit(Change{Kind: LockLost, Object: id, Origin: from, Proxy: from})
		return Granted, nil
	}
	to, ok := proxyAt(r, r.ProxyTowardsLockIndex)
	if !ok || to == from {
		return Refused, nil
	}
	m := tx.message(to)
	m.RequestedLockObjects = append(m.RequestedLockObjects, id)
	tx.lockForwards[id] = from
	return Forwarded, nil
}

// LockPushed receives the lock from a proxy. It is passed on if a request
// was forwarded earlier, otherwise it stays here.
func (tx *Tx) LockPushed(from types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier) error {
	r, err := tx.write(id)
	if errors.Is(err, ErrNotFound) {
		return conflict(id, from, "lock pushed for missing replica")
	} else if err != nil {
		return err
	}
	addProxy(r, from)
	if fwd, ok := tx.lockForward(id); ok && fwd != from {
		tx.lockForwards[id] = types.NetMeshBaseIdentifier{}
		if idx := proxyIndex(r, fwd); idx >= 0 {
			r.ProxyTowardsLockIndex = idx
			m := tx.message(fwd)
			m.PushLockObjects = append(m.PushLockObjects, id)
			return nil
		}
	}
	tx.lockForwards[id] = types.NetMeshBaseIdentifier{}
	r.ProxyTowardsLockIndex = types.HereIndex
	tx.emit(Change{Kind: LockGained, Object: id, Origin: from})
	return nil
}

// LockReclaimed points the lock route at from after its home replica
// reclaimed a lost lock, and tells the other proxies.
func (tx *Tx) LockReclaimed(from types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier) error {
	r, err := tx.write(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	idx, _ := addProxy(r, from)
	if hasLock(r) {
		tx.emit(Change{Kind: LockLost, Object: id, Origin: from, Proxy: from})
	}
	r.ProxyTowardsLockIndex = idx
	tx.broadcast(r, from, func(m *xpriso.Message) {
		m.ReclaimedLockObjects = append(m.ReclaimedLockObjects, id)
	})
	return nil
}

// HomeRequested handles a request for home status from a proxy. mayGrant
// decides whether home is handed over; nil defers to GiveUpHomeReplica.
func (tx *Tx) HomeRequested(
	from types.NetMeshBaseIdentifier,
	id types.NetMeshObjectIdentifier,
	mayGrant func(*MeshObject) bool,
) (Outcome, error) {
	r, err := tx.read(id)
	if errors.Is(err, ErrNotFound) {
		return Unknown, nil
	} else if err != nil {
		return Unknown, err
	}
	if isHome(r) {
		if id.IsHomeObject() || !grants(r, mayGrant, r.GiveUpHomeReplica) {
			return Refused, nil
		}
		r, err = tx.write(id)
		if err != nil {
			return Unknown, err
		}
		idx, _ := addProxy(r, from)
		r.ProxyTowardsHomeIndex = idx
		m := tx.message(from)
		m.PushHomeReplicas = append(m.PushHomeReplicas, id)
		tx.emit(Change{Kind: HomeLost, Object: id, Origin: from, Proxy: from})
		return Granted, nil
	}
	to, ok := proxyAt(r, r.ProxyTowardsHomeIndex)
	if !ok || to == from {
		return Refused, nil
	}
	m := tx.message(to)
	m.RequestedHomeReplicas = append(m.RequestedHomeReplicas, id)
	tx.homeForwards[id] = from
	return Forwarded, nil
}

// HomePushed receives home status from a proxy.
func (tx *Tx) HomePushed(from types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier) error {
	r, err := tx.write(id)
	if errors.Is(err, ErrNotFound) {
		return conflict(id, from, "home pushed for missing replica")
	} else if err != nil {
		return err
	}
	addProxy(r, from)
	if fwd, ok := tx.homeForward(id); ok && fwd != from {
		tx.homeForwards[id] = types.NetMeshBaseIdentifier{}
		if idx := proxyIndex(r, fwd); idx >= 0 {
			r.ProxyTowardsHomeIndex = idx
			m := tx.message(fwd)
			m.PushHomeReplicas = append(m.PushHomeReplicas, id)
			return nil
		}
	}
	tx.homeForwards[id] = types.NetMeshBaseIdentifier{}
	r.ProxyTowardsHomeIndex = types.HereIndex
	tx.emit(Change{Kind: HomeGained, Object: id, Origin: from})
	return nil
}

func grants(r *replica, mayGrant func(*MeshObject) bool, fallback bool) bool {
	if mayGrant == nil {
		return fallback
	}
	return mayGrant(&MeshObject{r: r})
}

// FirstTimeRequested registers from as a proxy of the replica and conveys it.
func (tx *Tx) FirstTimeRequested(from types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier) error {
	r, err := tx.write(id)
	if err != nil {
		return err
	}
	if _, added := addProxy(r, from); added {
		tx.emit(Change{Kind: ProxyAdded, Object: id, Origin: from, Proxy: from})
	}
	m := tx.message(from)
	m.ConveyedMeshObjects = append(m.ConveyedMeshObjects, *r.Clone())
	return nil
}

// CancelRequested drops from as a proxy of the replica.
func (tx *Tx) CancelRequested(from types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier) error {
	r, err := tx.read(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if proxyIndex(r, from) < 0 {
		return nil
	}
	r, err = tx.write(id)
	if err != nil {
		return err
	}
	removeProxy(r, from)
	tx.emit(Change{Kind: ProxyRemoved, Object: id, Origin: from, Proxy: from})
	return nil
}

// ResynchronizeRequested conveys the current replica to from.
func (tx *Tx) ResynchronizeRequested(from types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier) error {
	r, err := tx.read(id)
	if err != nil {
		return err
	}
	if proxyIndex(r, from) < 0 {
		r, err = tx.write(id)
		if err != nil {
			return err
		}
		addProxy(r, from)
		tx.emit(Change{Kind: ProxyAdded, Object: id, Origin: from, Proxy: from})
	}
	m := tx.message(from)
	m.ConveyedMeshObjects = append(m.ConveyedMeshObjects, *r.Clone())
	return nil
}

// ApplyDeleted removes the replica after its home replica deleted the object.
func (tx *Tx) ApplyDeleted(from types.NetMeshBaseIdentifier, c xpriso.DeleteChange) error {
	r, err := tx.read(c.Identifier)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if idx := proxyIndex(r, from); idx < 0 || r.ProxyTowardsHomeIndex != idx {
		return conflict(c.Identifier, from, "sender is not toward home")
	}
	tx.broadcast(r, from, func(m *xpriso.Message) {
		m.DeletedObjects = append(m.DeletedObjects, c)
	})
	if err := tx.drop(r); err != nil {
		return err
	}
	tx.emit(Change{Kind: Deleted, Object: c.Identifier, Origin: from})
	return nil
}

// DropProxy forgets base as a proxy of the replica. Routes through base
// become lost.
func (tx *Tx) DropProxy(base types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier) error {
	r, err := tx.read(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if proxyIndex(r, base) < 0 {
		return nil
	}
	r, err = tx.write(id)
	if err != nil {
		return err
	}
	removeProxy(r, base)
	tx.emit(Change{Kind: ProxyRemoved, Object: id, Proxy: base})
	return nil
}
