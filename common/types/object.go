package types

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// NetMeshObjectIdentifier identifies one logical MeshObject across all of its replicas.
// It consists of the identifier of the MeshBase that created it and a local id
// unique within that MeshBase. The empty local id denotes the home object of the MeshBase.
type NetMeshObjectIdentifier struct {
	base  NetMeshBaseIdentifier
	local string
}

// NewNetMeshObjectIdentifier combines a MeshBase identifier and a local id. The local
// id is not validated, use ObjectIDFactory for untrusted input.
func NewNetMeshObjectIdentifier(base NetMeshBaseIdentifier, local string) NetMeshObjectIdentifier {
	return NetMeshObjectIdentifier{base: base, local: local}
}

// MeshBase returns the identifier of the MeshBase this object was created in.
func (id NetMeshObjectIdentifier) MeshBase() NetMeshBaseIdentifier { return id.base }

// LocalID returns the part of the identifier that is local to the MeshBase.
func (id NetMeshObjectIdentifier) LocalID() string { return id.local }

// IsHomeObject returns true if id denotes the home object of its MeshBase.
func (id NetMeshObjectIdentifier) IsHomeObject() bool { return id.local == "" && !id.base.IsEmpty() }

// IsEmpty returns true for the zero identifier.
func (id NetMeshObjectIdentifier) IsEmpty() bool { return id.base.IsEmpty() && id.local == "" }

// String returns the external form.
func (id NetMeshObjectIdentifier) String() string {
	if id.local == "" {
		return id.base.String()
	}
	return id.base.String() + "#" + id.local
}

// Compare orders identifiers by their external form.
func (id NetMeshObjectIdentifier) Compare(other NetMeshObjectIdentifier) int {
	return strings.Compare(id.String(), other.String())
}

// ObjectIDFactory creates and parses NetMeshObjectIdentifiers for one MeshBase.
type ObjectIDFactory struct {
	base  NetMeshBaseIdentifier
	bases *MeshBaseIDFactory
}

// NewObjectIDFactory creates a factory for objects created in base.
func NewObjectIDFactory(base NetMeshBaseIdentifier, bases *MeshBaseIDFactory) *ObjectIDFactory {
	if bases == nil {
		bases = DefaultMeshBaseIDFactory()
	}
	return &ObjectIDFactory{base: base, bases: bases}
}

// MeshBase returns the identifier new objects are created in.
func (f *ObjectIDFactory) MeshBase() NetMeshBaseIdentifier { return f.base }

// HomeObject returns the identifier of the MeshBase home object.
func (f *ObjectIDFactory) HomeObject() NetMeshObjectIdentifier {
	return NetMeshObjectIdentifier{base: f.base}
}

// CreateRandom returns a fresh identifier in the factory's MeshBase.
func (f *ObjectIDFactory) CreateRandom() NetMeshObjectIdentifier {
	return NetMeshObjectIdentifier{base: f.base, local: uuid.NewString()}
}

// FromLocal returns the identifier with the given local id in the factory's MeshBase.
func (f *ObjectIDFactory) FromLocal(local string) (NetMeshObjectIdentifier, error) {
	if err := validLocal(local); err != nil {
		return NetMeshObjectIdentifier{}, err
	}
	return NetMeshObjectIdentifier{base: f.base, local: local}, nil
}

// FromExternalForm parses raw strictly.
func (f *ObjectIDFactory) FromExternalForm(raw string) (NetMeshObjectIdentifier, error) {
	basePart, local, _ := strings.Cut(raw, "#")
	base, err := f.bases.FromExternalForm(basePart)
	if err != nil {
		return NetMeshObjectIdentifier{}, err
	}
	if err := validLocal(local); err != nil {
		return NetMeshObjectIdentifier{}, err
	}
	return NetMeshObjectIdentifier{base: base, local: local}, nil
}

// GuessFromExternalForm parses raw leniently. A bare "#local" or "local" is resolved
// against the factory's MeshBase.
func (f *ObjectIDFactory) GuessFromExternalForm(raw string) (NetMeshObjectIdentifier, error) {
	raw = strings.TrimSpace(raw)
	basePart, local, found := strings.Cut(raw, "#")
	switch {
	case basePart == "" && found:
		return f.FromLocal(local)
	case !found && !strings.Contains(raw, ":") && !strings.Contains(raw, "/") && !strings.Contains(raw, "."):
		return f.FromLocal(raw)
	}
	base, err := f.bases.GuessFromExternalForm(basePart)
	if err != nil {
		return NetMeshObjectIdentifier{}, err
	}
	local = strings.TrimSpace(local)
	if err := validLocal(local); err != nil {
		return NetMeshObjectIdentifier{}, err
	}
	return NetMeshObjectIdentifier{base: base, local: local}, nil
}

func validLocal(local string) error {
	for _, r := range local {
		if unicode.IsSpace(r) || r == '#' || !unicode.IsPrint(r) {
			return fmt.Errorf("%w: local id %q", ErrInvalidIdentifier, local)
		}
	}
	return nil
}
