// Package codec wraps the scale codec used for everything netmesh persists or
// puts on the wire.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spacemeshos/go-scale"
)

// ErrTrailingBytes is returned by Decode when the buffer holds more than one value.
var ErrTrailingBytes = errors.New("codec: trailing bytes after value")

// Encodable values are generated with scalegen.
type Encodable = scale.Encodable

type Decodable = scale.Decodable

// EncodeTo writes value to w and returns the number of bytes written.
func EncodeTo(w io.Writer, value Encodable) (int, error) {
	n, err := value.EncodeScale(scale.NewEncoder(w))
	if err != nil {
		return n, fmt.Errorf("encode scale: %w", err)
	}
	return n, nil
}

// DecodeFrom reads one value from r. It leaves any following bytes unread.
func DecodeFrom(r io.Reader, value Decodable) (int, error) {
	n, err := value.DecodeScale(scale.NewDecoder(r))
	if err != nil {
		return n, fmt.Errorf("decode scale: %w", err)
	}
	return n, nil
}

// buffers larger than this are not returned to the pool
const maxPooledBuffer = 1 << 20

var buffers = sync.Pool{
	New: func() any { return bytes.NewBuffer(make([]byte, 0, 256)) },
}

// Encode returns the encoding of value in a freshly allocated slice.
func Encode(value Encodable) ([]byte, error) {
	b := buffers.Get().(*bytes.Buffer)
	defer func() {
		if b.Cap() <= maxPooledBuffer {
			b.Reset()
			buffers.Put(b)
		}
	}()
	if _, err := EncodeTo(b, value); err != nil {
		return nil, err
	}
	return bytes.Clone(b.Bytes()), nil
}

// MustEncode encodes value and panics on error. Only for values that cannot fail
// to encode, such as test fixtures.
func MustEncode(value Encodable) []byte {
	buf, err := Encode(value)
	if err != nil {
		panic(err)
	}
	return buf
}

// Decode reads value from buf, which must hold exactly one value.
func Decode(buf []byte, value Decodable) error {
	r := bytes.NewReader(buf)
	if _, err := DecodeFrom(r, value); err != nil {
		return fmt.Errorf("decode from buffer: %w", err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, r.Len())
	}
	return nil
}
