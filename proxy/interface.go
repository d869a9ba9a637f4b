package proxy

import (
	"context"

	"github.com/infogrid/netmesh/common/types"
)

//go:generate mockgen -typed -package=proxy -destination=./mocks.go -source=./interface.go

// Handler receives encoded messages from a Transport.
type Handler func(ctx context.Context, data []byte) error

// Transport carries encoded messages between MeshBases. Delivery may fail,
// be delayed or reordered; the proxies retry and reorder.
type Transport interface {
	// Name labels metrics.
	Name() string
	Send(ctx context.Context, to types.NetMeshBaseIdentifier, data []byte) error
	SetHandler(h Handler)
}
