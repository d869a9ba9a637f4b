package proxy

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/netmesh"
)

// Policy decides how a proxy reacts to requests and conflicts.
type Policy interface {
	// GrantLock decides whether the lock held by obj is pushed to the requester.
	GrantLock(ctx context.Context, obj *netmesh.MeshObject, to types.NetMeshBaseIdentifier) bool
	// GrantHome decides whether home status of obj is pushed to the requester.
	GrantHome(ctx context.Context, obj *netmesh.MeshObject, to types.NetMeshBaseIdentifier) bool
	// Conflict handles a remote change that was rejected with netmesh.ErrConflict.
	// Returning an error rolls back the whole message.
	Conflict(tx *netmesh.Tx, from types.NetMeshBaseIdentifier, id types.NetMeshObjectIdentifier, err error) error
}

// DefaultPolicy honours GiveUpLock and GiveUpHomeReplica, and drops
// conflicting changes in favour of resynchronizing the replica.
type DefaultPolicy struct {
	Logger *zap.Logger
}

func (DefaultPolicy) GrantLock(_ context.Context, obj *netmesh.MeshObject, _ types.NetMeshBaseIdentifier) bool {
	return obj.GiveUpLock()
}

func (DefaultPolicy) GrantHome(_ context.Context, obj *netmesh.MeshObject, _ types.NetMeshBaseIdentifier) bool {
	return obj.GiveUpHomeReplica()
}

func (p DefaultPolicy) Conflict(
	tx *netmesh.Tx,
	from types.NetMeshBaseIdentifier,
	id types.NetMeshObjectIdentifier,
	err error,
) error {
	if p.Logger != nil {
		p.Logger.Debug("dropping conflicting change",
			zap.Stringer("from", from),
			zap.Stringer("object", id),
			zap.Error(err),
		)
	}
	if err := tx.RequestResynchronize(id); err != nil && !errors.Is(err, netmesh.ErrNotFound) {
		return err
	}
	return nil
}
