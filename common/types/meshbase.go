package types

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrInvalidIdentifier is returned when an external form cannot be parsed.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrUnsupportedScheme is returned by strict parsing for schemes the factory does not know.
	ErrUnsupportedScheme = errors.New("unsupported identifier scheme")
)

// Default schemes understood by DefaultMeshBaseIDFactory.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeP2P   = "p2p"
	SchemeMem   = "mem"
)

// NetMeshBaseIdentifier identifies a MeshBase that takes part in replication.
// The zero value is the empty identifier. Identifiers are comparable and
// can be used as map keys.
type NetMeshBaseIdentifier struct {
	canonical string
}

// String returns the canonical external form.
func (id NetMeshBaseIdentifier) String() string {
	return id.canonical
}

// IsEmpty returns true for the zero identifier.
func (id NetMeshBaseIdentifier) IsEmpty() bool {
	return id.canonical == ""
}

// Scheme returns the scheme of the external form, e.g. "http".
func (id NetMeshBaseIdentifier) Scheme() string {
	if i := strings.Index(id.canonical, ":"); i > 0 {
		return id.canonical[:i]
	}
	return ""
}

// MeshBaseIDFactory turns external forms into NetMeshBaseIdentifiers.
type MeshBaseIDFactory struct {
	schemes map[string]struct{}
}

// NewMeshBaseIDFactory creates a factory that accepts the given schemes in strict mode.
func NewMeshBaseIDFactory(schemes ...string) *MeshBaseIDFactory {
	f := &MeshBaseIDFactory{schemes: make(map[string]struct{}, len(schemes))}
	for _, s := range schemes {
		f.schemes[strings.ToLower(s)] = struct{}{}
	}
	return f
}

// DefaultMeshBaseIDFactory accepts http, https, p2p and mem identifiers.
func DefaultMeshBaseIDFactory() *MeshBaseIDFactory {
	return NewMeshBaseIDFactory(SchemeHTTP, SchemeHTTPS, SchemeP2P, SchemeMem)
}

// Supports returns true if scheme is accepted by strict parsing.
func (f *MeshBaseIDFactory) Supports(scheme string) bool {
	_, ok := f.schemes[strings.ToLower(scheme)]
	return ok
}

// FromExternalForm parses raw strictly: the scheme must be supported, http(s)
// identifiers need a host and fragments are not allowed.
func (f *MeshBaseIDFactory) FromExternalForm(raw string) (NetMeshBaseIdentifier, error) {
	if raw == "" || strings.TrimSpace(raw) != raw {
		return NetMeshBaseIdentifier{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return NetMeshBaseIdentifier{}, fmt.Errorf("%w: %q: %w", ErrInvalidIdentifier, raw, err)
	}
	if u.Scheme == "" {
		return NetMeshBaseIdentifier{}, fmt.Errorf("%w: %q: missing scheme", ErrInvalidIdentifier, raw)
	}
	if !f.Supports(u.Scheme) {
		return NetMeshBaseIdentifier{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Fragment != "" || strings.Contains(raw, "#") {
		return NetMeshBaseIdentifier{}, fmt.Errorf("%w: %q: fragment not allowed", ErrInvalidIdentifier, raw)
	}
	return canonicalize(u)
}

// GuessFromExternalForm parses raw leniently. It is meant for input that may
// predate the currently supported schemes, such as persisted proxy names.
func (f *MeshBaseIDFactory) GuessFromExternalForm(raw string) (NetMeshBaseIdentifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NetMeshBaseIdentifier{}, fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if i := strings.Index(raw, "#"); i >= 0 {
		raw = raw[:i]
	}
	if !strings.Contains(raw, "://") {
		if i := strings.Index(raw, ":"); i <= 0 || !f.Supports(raw[:i]) {
			raw = SchemeHTTP + "://" + raw
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return NetMeshBaseIdentifier{}, fmt.Errorf("%w: %q: %w", ErrInvalidIdentifier, raw, err)
	}
	if u.Scheme == "" {
		return NetMeshBaseIdentifier{}, fmt.Errorf("%w: %q: missing scheme", ErrInvalidIdentifier, raw)
	}
	return canonicalize(u)
}

// MustFromExternalForm is FromExternalForm on the default factory that panics
// on error. Intended for tests and constants.
func MustFromExternalForm(raw string) NetMeshBaseIdentifier {
	id, err := DefaultMeshBaseIDFactory().FromExternalForm(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func canonicalize(u *url.URL) (NetMeshBaseIdentifier, error) {
	scheme := strings.ToLower(u.Scheme)
	if u.Opaque != "" {
		// scheme:opaque, e.g. mem:alpha
		return NetMeshBaseIdentifier{canonical: scheme + ":" + u.Opaque}, nil
	}
	host := u.Host
	if scheme == SchemeHTTP || scheme == SchemeHTTPS {
		host = strings.ToLower(host)
		if host == "" {
			return NetMeshBaseIdentifier{}, fmt.Errorf("%w: %q: missing host", ErrInvalidIdentifier, u.String())
		}
		h, port, err := net.SplitHostPort(host)
		if err == nil && ((scheme == SchemeHTTP && port == "80") || (scheme == SchemeHTTPS && port == "443")) {
			host = h
		}
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	return NetMeshBaseIdentifier{canonical: b.String()}, nil
}
