package netmesh

import (
	"errors"
	"fmt"

	"github.com/infogrid/netmesh/common/types"
)

var (
	// ErrNotFound is returned when no replica exists for an identifier.
	ErrNotFound = errors.New("meshobject not found")
	// ErrObjectExists is returned when creating an object whose identifier is taken.
	ErrObjectExists = errors.New("meshobject exists")
	// ErrNotPermitted is matched by every PermissionError.
	ErrNotPermitted = errors.New("not permitted")
	// ErrMustNotDeleteHomeObject is returned when deleting the home object of a MeshBase.
	ErrMustNotDeleteHomeObject = errors.New("must not delete home object")
	// ErrDecode is returned for persisted snapshots that cannot be decoded.
	ErrDecode = errors.New("decode replica")
	// ErrClosed is returned by operations on a closed MeshBase.
	ErrClosed = errors.New("meshbase closed")
)

// PermissionError rejects an operation on a replica.
type PermissionError struct {
	Object    types.NetMeshObjectIdentifier
	Operation Operation
	Reason    string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s %s on %s: %s", ErrNotPermitted, e.Operation, e.Object, e.Reason)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrNotPermitted
}

func notPermitted(id types.NetMeshObjectIdentifier, op Operation, reason string) error {
	return &PermissionError{Object: id, Operation: op, Reason: reason}
}
