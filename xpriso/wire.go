package xpriso

import (
	"errors"
	"fmt"

	"github.com/infogrid/netmesh/codec"
)

// ErrMalformedMessage is returned by Decode for bytes that do not hold a message.
var ErrMalformedMessage = errors.New("malformed xpriso message")

// Encode serializes the message for a transport.
func Encode(m *Message) ([]byte, error) {
	return codec.Encode(m)
}

// Decode parses a message received from a transport. It does not Check it.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := codec.Decode(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return &m, nil
}
