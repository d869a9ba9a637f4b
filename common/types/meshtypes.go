package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// EntityTypeID identifies an EntityType of the external type system.
type EntityTypeID string

// PropertyTypeID identifies a PropertyType of the external type system.
type PropertyTypeID string

// RoleTypeID identifies one end of a RelationshipType of the external type system.
type RoleTypeID string

// ValueKind tags the representation of a PropertyValue.
type ValueKind uint8

const (
	KindBlob ValueKind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
)

func (k ValueKind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// PropertyValue is the value of one property of a MeshObject. The type system
// that gives it meaning lives outside of the replication core, here it is only
// carried, compared and persisted.
type PropertyValue struct {
	Kind ValueKind
	Data []byte
}

// StringValue returns a string PropertyValue.
func StringValue(s string) PropertyValue {
	return PropertyValue{Kind: KindString, Data: []byte(s)}
}

// IntegerValue returns an integer PropertyValue.
func IntegerValue(v int64) PropertyValue {
	return PropertyValue{Kind: KindInteger, Data: binary.BigEndian.AppendUint64(nil, uint64(v))}
}

// FloatValue returns a floating point PropertyValue.
func FloatValue(v float64) PropertyValue {
	return PropertyValue{Kind: KindFloat, Data: binary.BigEndian.AppendUint64(nil, math.Float64bits(v))}
}

// BooleanValue returns a boolean PropertyValue.
func BooleanValue(v bool) PropertyValue {
	b := byte(0)
	if v {
		b = 1
	}
	return PropertyValue{Kind: KindBoolean, Data: []byte{b}}
}

// BlobValue returns an opaque binary PropertyValue.
func BlobValue(data []byte) PropertyValue {
	return PropertyValue{Kind: KindBlob, Data: bytes.Clone(data)}
}

// Equal compares kind and data.
func (v PropertyValue) Equal(other PropertyValue) bool {
	return v.Kind == other.Kind && bytes.Equal(v.Data, other.Data)
}

// Clone returns a deep copy.
func (v PropertyValue) Clone() PropertyValue {
	return PropertyValue{Kind: v.Kind, Data: bytes.Clone(v.Data)}
}

func (v PropertyValue) String() string {
	switch v.Kind {
	case KindString:
		return strconv.Quote(string(v.Data))
	case KindInteger:
		if len(v.Data) == 8 {
			return strconv.FormatInt(int64(binary.BigEndian.Uint64(v.Data)), 10)
		}
	case KindFloat:
		if len(v.Data) == 8 {
			return strconv.FormatFloat(math.Float64frombits(binary.BigEndian.Uint64(v.Data)), 'g', -1, 64)
		}
	case KindBoolean:
		if len(v.Data) == 1 {
			return strconv.FormatBool(v.Data[0] != 0)
		}
	}
	return fmt.Sprintf("%s(%x)", v.Kind, v.Data)
}
