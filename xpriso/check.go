package xpriso

import (
	"errors"
	"fmt"
	"strings"

	"github.com/infogrid/netmesh/common/types"
)

// ErrInvalidMessage is matched by every error returned from Check.
var ErrInvalidMessage = errors.New("invalid xpriso message")

// InvalidMessageError lists every problem found in a message.
type InvalidMessageError struct {
	Problems []string
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidMessage, strings.Join(e.Problems, "; "))
}

func (e *InvalidMessageError) Is(target error) bool {
	return target == ErrInvalidMessage
}

// Check validates the message before anything is applied. It reports all
// violations at once.
func (m *Message) Check() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	if m.Sender.IsEmpty() {
		add("sender is empty")
	}
	if m.Receiver.IsEmpty() {
		add("receiver is empty")
	}
	if m.RequestID < 0 {
		add("request id %d is negative", m.RequestID)
	}
	if m.ResponseID < 0 {
		add("response id %d is negative", m.ResponseID)
	}
	if !m.Sender.IsEmpty() && m.Sender == m.Receiver {
		add("sender and receiver are both %s", m.Sender)
	}
	if m.RequestID == 0 && m.Operations() > 0 {
		add("%d operations without request id", m.Operations())
	}

	emptyID := func(field string, i int, id types.NetMeshObjectIdentifier) {
		if id.IsEmpty() {
			add("%s[%d] has empty identifier", field, i)
		}
	}
	for i := range m.ConveyedMeshObjects {
		emptyID("conveyed", i, m.ConveyedMeshObjects[i].Identifier)
	}
	for i, c := range m.DeletedObjects {
		emptyID("deleted", i, c.Identifier)
	}
	for i, c := range m.PropertyChanges {
		emptyID("property changes", i, c.Identifier)
		if c.Type == "" {
			add("property changes[%d] has empty property type", i)
		}
	}
	for i, c := range m.TypeAdditions {
		emptyID("type additions", i, c.Identifier)
	}
	for i, c := range m.TypeRemovals {
		emptyID("type removals", i, c.Identifier)
	}
	for i, c := range m.NeighborAdditions {
		emptyID("neighbor additions", i, c.Identifier)
		emptyID("neighbor additions", i, c.Neighbor)
	}
	for i, c := range m.NeighborRemovals {
		emptyID("neighbor removals", i, c.Identifier)
		emptyID("neighbor removals", i, c.Neighbor)
	}
	for i, c := range m.RoleAdditions {
		emptyID("role additions", i, c.Identifier)
		emptyID("role additions", i, c.Neighbor)
	}
	for i, c := range m.RoleRemovals {
		emptyID("role removals", i, c.Identifier)
		emptyID("role removals", i, c.Neighbor)
	}
	for i, c := range m.EquivalentAdditions {
		emptyID("equivalent additions", i, c.Identifier)
		emptyID("equivalent additions", i, c.Equivalent)
	}
	for i, c := range m.EquivalentRemovals {
		emptyID("equivalent removals", i, c.Identifier)
		emptyID("equivalent removals", i, c.Equivalent)
	}
	for _, f := range m.identifierLists() {
		for i, id := range f.ids {
			emptyID(f.name, i, id)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &InvalidMessageError{Problems: problems}
}
