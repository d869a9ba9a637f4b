package proxy

import (
	"errors"
	"fmt"

	"github.com/infogrid/netmesh/common/types"
)

var (
	// ErrTimeout is returned when a synchronous wait did not complete in time.
	ErrTimeout = errors.New("timed out waiting for remote meshbase")
	// ErrCeased is returned for communication with a MeshBase after ceasing.
	ErrCeased = errors.New("communications ceased")
	// ErrLost is matched by CommunicationErrors for proxies that exhausted retries.
	ErrLost = errors.New("proxy lost")
	// ErrClosed is returned after the Manager was closed.
	ErrClosed = errors.New("proxy manager closed")
	// ErrWrongReceiver is returned for messages addressed to another MeshBase.
	ErrWrongReceiver = errors.New("message addressed to another meshbase")
)

// State of an outgoing request.
type State uint8

const (
	StateSent State = iota
	StateAcknowledged
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateAcknowledged:
		return "acknowledged"
	case StateTimedOut:
		return "timed out"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// CommunicationError reports a request that could not be delivered.
type CommunicationError struct {
	Remote    types.NetMeshBaseIdentifier
	RequestID int64
	State     State
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("request %d to %s %s", e.RequestID, e.Remote, e.State)
}

func (e *CommunicationError) Is(target error) bool {
	return target == ErrLost && e.State == StateFailed
}
