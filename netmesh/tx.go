package netmesh

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/log"
	"github.com/infogrid/netmesh/store"
	"github.com/infogrid/netmesh/xpriso"
)

// Tx is a single writer transaction. It works on clones of the committed
// replicas; nothing it does is visible before Update commits it.
type Tx struct {
	ctx context.Context
	mb  *MeshBase
	now int64

	// nil marks a replica removed by this transaction
	working map[types.NetMeshObjectIdentifier]*replica
	order   []types.NetMeshObjectIdentifier

	changes []Change
	out     Outbox

	// empty value clears the committed forward
	lockForwards map[types.NetMeshObjectIdentifier]types.NetMeshBaseIdentifier
	homeForwards map[types.NetMeshObjectIdentifier]types.NetMeshBaseIdentifier
}

func newTx(ctx context.Context, mb *MeshBase) *Tx {
	return &Tx{
		ctx:          ctx,
		mb:           mb,
		now:          mb.Now(),
		working:      map[types.NetMeshObjectIdentifier]*replica{},
		out:          Outbox{},
		lockForwards: map[types.NetMeshObjectIdentifier]types.NetMeshBaseIdentifier{},
		homeForwards: map[types.NetMeshObjectIdentifier]types.NetMeshBaseIdentifier{},
	}
}

// Context of the transaction.
func (tx *Tx) Context() context.Context { return tx.ctx }

// MeshBase the transaction runs on.
func (tx *Tx) MeshBase() *MeshBase { return tx.mb }

// Get returns the replica as seen by this transaction.
func (tx *Tx) Get(id types.NetMeshObjectIdentifier) (*MeshObject, error) {
	r, err := tx.read(id)
	if err != nil {
		return nil, err
	}
	return &MeshObject{r: r}, nil
}

// Exists reports whether the transaction sees a replica for id.
func (tx *Tx) Exists(id types.NetMeshObjectIdentifier) bool {
	_, err := tx.read(id)
	return err == nil
}

// read returns the replica without copying it. The result must not be modified.
func (tx *Tx) read(id types.NetMeshObjectIdentifier) (*replica, error) {
	if r, ok := tx.working[id]; ok {
		if r == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return r, nil
	}
	return tx.mb.load(tx.ctx, id)
}

// write returns a private copy of the replica that is persisted on commit.
func (tx *Tx) write(id types.NetMeshObjectIdentifier) (*replica, error) {
	if r, ok := tx.working[id]; ok {
		if r == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return r, nil
	}
	r, err := tx.mb.load(tx.ctx, id)
	if err != nil {
		return nil, err
	}
	c := r.Clone()
	tx.put(id, c)
	return c, nil
}

func (tx *Tx) put(id types.NetMeshObjectIdentifier, r *replica) {
	if _, ok := tx.working[id]; !ok {
		tx.order = append(tx.order, id)
	}
	tx.working[id] = r
}

func (tx *Tx) remove(id types.NetMeshObjectIdentifier) {
	tx.put(id, nil)
	tx.lockForwards[id] = types.NetMeshBaseIdentifier{}
	tx.homeForwards[id] = types.NetMeshBaseIdentifier{}
}

func (tx *Tx) emit(c Change) {
	tx.changes = append(tx.changes, c)
}

// message returns the outgoing message to base, creating it on first use.
func (tx *Tx) message(to types.NetMeshBaseIdentifier) *xpriso.Message {
	msg, ok := tx.out[to]
	if !ok {
		msg = &xpriso.Message{Sender: tx.mb.id, Receiver: to}
		tx.out[to] = msg
	}
	return msg
}

// broadcast calls add with the message to every proxy of r except the origin.
func (tx *Tx) broadcast(r *replica, except types.NetMeshBaseIdentifier, add func(*xpriso.Message)) {
	for _, p := range r.Proxies {
		if p != except {
			add(tx.message(p))
		}
	}
}

func (tx *Tx) checkAccess(op Operation, id types.NetMeshObjectIdentifier) error {
	if tx.mb.access == nil || isSu(tx.ctx) {
		return nil
	}
	caller, _ := CallerFrom(tx.ctx)
	if err := tx.mb.access(tx.ctx, caller, op, id); err != nil {
		return notPermitted(id, op, err.Error())
	}
	return nil
}

// writable checks access and that the lock is held, then returns a private copy.
func (tx *Tx) writable(op Operation, id types.NetMeshObjectIdentifier) (*replica, error) {
	if err := tx.checkAccess(op, id); err != nil {
		return nil, err
	}
	r, err := tx.read(id)
	if err != nil {
		return nil, err
	}
	if !hasLock(r) {
		return nil, notPermitted(id, op, "update lock is not held")
	}
	return tx.write(id)
}

func (tx *Tx) lockForward(id types.NetMeshObjectIdentifier) (types.NetMeshBaseIdentifier, bool) {
	return lookupForward(tx.lockForwards, tx.mb.lockForwards, id)
}

func (tx *Tx) homeForward(id types.NetMeshObjectIdentifier) (types.NetMeshBaseIdentifier, bool) {
	return lookupForward(tx.homeForwards, tx.mb.homeForwards, id)
}

func lookupForward(
	overlay, committed map[types.NetMeshObjectIdentifier]types.NetMeshBaseIdentifier,
	id types.NetMeshObjectIdentifier,
) (types.NetMeshBaseIdentifier, bool) {
	if to, ok := overlay[id]; ok {
		return to, !to.IsEmpty()
	}
	to, ok := committed[id]
	return to, ok
}

func (tx *Tx) commit() error {
	var (
		puts    []store.Value
		deletes []string
	)
	for _, id := range tx.order {
		if r := tx.working[id]; r != nil {
			puts = append(puts, encode(r))
		} else {
			deletes = append(deletes, id.String())
		}
	}
	if len(puts) > 0 || len(deletes) > 0 {
		if err := tx.mb.store.Apply(tx.ctx, puts, deletes); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("persist transaction: %w", err)
		}
	}
	for _, id := range tx.order {
		if r := tx.working[id]; r != nil {
			tx.mb.cache.Add(id, r)
		} else {
			tx.mb.cache.Remove(id)
		}
	}
	mergeForwards(tx.mb.lockForwards, tx.lockForwards)
	mergeForwards(tx.mb.homeForwards, tx.homeForwards)
	if len(tx.changes) > 0 {
		tx.mb.logger.Debug("committed transaction",
			log.ZContext(tx.ctx),
			zap.Int("replicas", len(tx.order)),
			zap.Int("changes", len(tx.changes)),
			zap.Int("receivers", len(tx.out)),
		)
	}
	return nil
}

func mergeForwards(committed, overlay map[types.NetMeshObjectIdentifier]types.NetMeshBaseIdentifier) {
	for id, to := range overlay {
		if to.IsEmpty() {
			delete(committed, id)
		} else {
			committed[id] = to
		}
	}
}
