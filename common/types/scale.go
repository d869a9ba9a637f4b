package types

import (
	"errors"

	"github.com/spacemeshos/go-scale"
)

// ErrTooManyElements is returned when a decoded list exceeds MaxListLength.
var ErrTooManyElements = errors.New("too many elements in list")

// Limits applied when decoding untrusted input.
const (
	MaxStringLength = 4096
	MaxValueLength  = 1 << 20
	MaxListLength   = 1 << 16
)

// EncodeScale implements scale codec interface.
func (id NetMeshBaseIdentifier) EncodeScale(enc *scale.Encoder) (int, error) {
	return scale.EncodeStringWithLimit(enc, id.canonical, MaxStringLength)
}

// DecodeScale implements scale codec interface.
// The decoded form is taken as canonical; re-parse it with a factory when it
// comes from a source that may not have produced canonical forms.
func (id *NetMeshBaseIdentifier) DecodeScale(dec *scale.Decoder) (int, error) {
	s, n, err := scale.DecodeStringWithLimit(dec, MaxStringLength)
	if err != nil {
		return n, err
	}
	id.canonical = s
	return n, nil
}

// EncodeScale implements scale codec interface.
func (id NetMeshObjectIdentifier) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := id.base.EncodeScale(enc)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeStringWithLimit(enc, id.local, MaxStringLength)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeScale implements scale codec interface.
func (id *NetMeshObjectIdentifier) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		n, err := id.base.DecodeScale(dec)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		field, n, err := scale.DecodeStringWithLimit(dec, MaxStringLength)
		if err != nil {
			return total, err
		}
		total += n
		id.local = field
	}
	return total, nil
}

// EncodeScale implements scale codec interface.
func (v PropertyValue) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeByte(enc, byte(v.Kind))
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeByteSliceWithLimit(enc, v.Data, MaxValueLength)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeScale implements scale codec interface.
func (v *PropertyValue) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		field, n, err := scale.DecodeByte(dec)
		if err != nil {
			return total, err
		}
		total += n
		v.Kind = ValueKind(field)
	}
	{
		field, n, err := scale.DecodeByteSliceWithLimit(dec, MaxValueLength)
		if err != nil {
			return total, err
		}
		total += n
		v.Data = field
	}
	return total, nil
}

// EncodeStrings encodes a list of string-like values.
func EncodeStrings[T ~string](enc *scale.Encoder, values []T) (total int, err error) {
	{
		n, err := scale.EncodeCompact32(enc, uint32(len(values)))
		if err != nil {
			return total, err
		}
		total += n
	}
	for _, v := range values {
		n, err := scale.EncodeStringWithLimit(enc, string(v), MaxStringLength)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeStrings decodes a list written by EncodeStrings.
func DecodeStrings[T ~string](dec *scale.Decoder) ([]T, int, error) {
	total := 0
	length, n, err := scale.DecodeCompact32(dec)
	if err != nil {
		return nil, total, err
	}
	total += n
	if length > MaxListLength {
		return nil, total, ErrTooManyElements
	}
	if length == 0 {
		return nil, total, nil
	}
	values := make([]T, 0, length)
	for i := uint32(0); i < length; i++ {
		s, n, err := scale.DecodeStringWithLimit(dec, MaxStringLength)
		if err != nil {
			return nil, total, err
		}
		total += n
		values = append(values, T(s))
	}
	return values, total, nil
}

// EncodeInt64 encodes a signed timestamp or counter. Negative values are written
// in two's complement and survive the round trip.
func EncodeInt64(enc *scale.Encoder, v int64) (int, error) {
	return scale.EncodeCompact64(enc, uint64(v))
}

// DecodeInt64 decodes a value written by EncodeInt64.
func DecodeInt64(dec *scale.Decoder) (int64, int, error) {
	v, n, err := scale.DecodeCompact64(dec)
	return int64(v), n, err
}
