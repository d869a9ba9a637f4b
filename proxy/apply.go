package proxy

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/log"
	"github.com/infogrid/netmesh/netmesh"
	"github.com/infogrid/netmesh/xpriso"
)

// applyTo applies all operations of msg in dependency order: conveyed objects
// first, then types, relationships and equivalents, then properties, lock and
// home transfers, requests, and deletions last.
func (p *Proxy) applyTo(ctx context.Context, tx *netmesh.Tx, msg *xpriso.Message) error {
	from := msg.Sender
	for i := range msg.ConveyedMeshObjects {
		if err := tx.ApplyConveyed(from, &msg.ConveyedMeshObjects[i]); err != nil {
			return err
		}
	}

	for _, c := range msg.TypeAdditions {
		if err := p.tolerate(ctx, tx, from, c.Identifier, tx.ApplyTypes(from, c, true)); err != nil {
			return err
		}
	}
	for _, c := range msg.TypeRemovals {
		if err := p.tolerate(ctx, tx, from, c.Identifier, tx.ApplyTypes(from, c, false)); err != nil {
			return err
		}
	}
	for _, c := range msg.NeighborAdditions {
		if err := p.tolerate(ctx, tx, from, c.Identifier, tx.ApplyNeighbor(from, c, true)); err != nil {
			return err
		}
	}
	for _, c := range msg.RoleAdditions {
		if err := p.tolerate(ctx, tx, from, c.Identifier, tx.ApplyRoles(from, c, true)); err != nil {
			return err
		}
	}
	for _, c := range msg.RoleRemovals {
		if err := p.tolerate(ctx, tx, from, c.Identifier, tx.ApplyRoles(from, c, false)); err != nil {
			return err
		}
	}
	for _, c := range msg.NeighborRemovals {
		if err := p.tolerate(ctx, tx, from, c.Identifier, tx.ApplyNeighbor(from, c, false)); err != nil {
			return err
		}
	}
	for _, c := range msg.EquivalentAdditions {
		if err := p.tolerate(ctx, tx, from, c.Identifier, tx.ApplyEquivalent(from, c, true)); err != nil {
			return err
		}
	}
	for _, c := range msg.EquivalentRemovals {
		if err := p.tolerate(ctx, tx, from, c.Identifier, tx.ApplyEquivalent(from, c, false)); err != nil {
			return err
		}
	}

	for _, c := range msg.PropertyChanges {
		if err := p.tolerate(ctx, tx, from, c.Identifier, tx.ApplyProperty(from, c)); err != nil {
			return err
		}
	}

	grantLock := func(obj *netmesh.MeshObject) bool { return p.m.policy.GrantLock(ctx, obj, from) }
	for _, id := range msg.RequestedLockObjects {
		outcome, err := tx.LockRequested(from, id, grantLock)
		if err != nil {
			return err
		}
		outcomes.WithLabelValues("lock", outcome.String()).Inc()
	}
	for _, id := range msg.PushLockObjects {
		if err := p.tolerate(ctx, tx, from, id, tx.LockPushed(from, id)); err != nil {
			return err
		}
	}
	for _, id := range msg.ReclaimedLockObjects {
		if err := tx.LockReclaimed(from, id); err != nil {
			return err
		}
	}
	grantHome := func(obj *netmesh.MeshObject) bool { return p.m.policy.GrantHome(ctx, obj, from) }
	for _, id := range msg.RequestedHomeReplicas {
		outcome, err := tx.HomeRequested(from, id, grantHome)
		if err != nil {
			return err
		}
		outcomes.WithLabelValues("home", outcome.String()).Inc()
	}
	for _, id := range msg.PushHomeReplicas {
		if err := p.tolerate(ctx, tx, from, id, tx.HomePushed(from, id)); err != nil {
			return err
		}
	}

	for _, id := range msg.RequestedFirstTimeObjects {
		if err := p.tolerate(ctx, tx, from, id, tx.FirstTimeRequested(from, id)); err != nil {
			return err
		}
	}
	for _, id := range msg.RequestedCanceledObjects {
		if err := tx.CancelRequested(from, id); err != nil {
			return err
		}
	}
	for _, id := range msg.RequestedResynchronizeReplicas {
		if err := p.tolerate(ctx, tx, from, id, tx.ResynchronizeRequested(from, id)); err != nil {
			return err
		}
	}

	for _, c := range msg.DeletedObjects {
		if err := p.tolerate(ctx, tx, from, c.Identifier, tx.ApplyDeleted(from, c)); err != nil {
			return err
		}
	}
	return nil
}

// tolerate turns per object failures that must not fail the whole message
// into log entries. Conflicts are handed to the policy.
func (p *Proxy) tolerate(
	ctx context.Context,
	tx *netmesh.Tx,
	from types.NetMeshBaseIdentifier,
	id types.NetMeshObjectIdentifier,
	err error,
) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, netmesh.ErrConflict):
		conflicts.Inc()
		return p.m.policy.Conflict(tx, from, id, err)
	case errors.Is(err, netmesh.ErrNotFound):
		p.logger.Debug("request for unknown replica",
			log.ZContext(ctx),
			zap.Stringer("object", id),
		)
		return nil
	default:
		return err
	}
}
