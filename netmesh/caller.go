package netmesh

import (
	"context"

	"github.com/infogrid/netmesh/common/types"
)

// Operation names a local operation for access checks and errors.
type Operation string

const (
	OpCreate         Operation = "create"
	OpSetProperty    Operation = "set property"
	OpBless          Operation = "bless"
	OpRelate         Operation = "relate"
	OpEquivalent     Operation = "equivalent"
	OpSetExpires     Operation = "set expires"
	OpSetGiveUp      Operation = "set give up"
	OpDelete         Operation = "delete"
	OpPurge          Operation = "purge"
	OpReclaimLock    Operation = "reclaim lock"
	OpObtainLock     Operation = "obtain lock"
	OpObtainHome     Operation = "obtain home replica"
	OpResynchronize  Operation = "resynchronize"
	OpObtainReplicas Operation = "obtain replica"
)

// AccessManager decides whether caller may perform op on the object. Returning
// an error rejects the operation. It is not consulted for super user contexts
// and for changes applied on behalf of remote MeshBases.
type AccessManager func(ctx context.Context, caller string, op Operation, id types.NetMeshObjectIdentifier) error

type callerKey struct{}

type callerValue struct {
	id string
	su bool
}

// WithCaller returns a context carrying the identity of the caller.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, callerValue{id: caller})
}

// WithSu returns a context that bypasses the AccessManager, keeping the caller identity.
func WithSu(ctx context.Context) context.Context {
	v, _ := ctx.Value(callerKey{}).(callerValue)
	v.su = true
	return context.WithValue(ctx, callerKey{}, v)
}

// CallerFrom returns the caller stored in ctx, if any.
func CallerFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(callerKey{}).(callerValue)
	if !ok || v.id == "" {
		return "", false
	}
	return v.id, true
}

func isSu(ctx context.Context) bool {
	v, _ := ctx.Value(callerKey{}).(callerValue)
	return v.su
}
