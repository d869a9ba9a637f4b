package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMeshBaseFromExternalForm(t *testing.T) {
	f := DefaultMeshBaseIDFactory()
	for _, tc := range []struct {
		desc     string
		raw      string
		expected string
		err      error
	}{
		{desc: "canonical", raw: "http://example.com/", expected: "http://example.com/"},
		{desc: "empty path", raw: "http://example.com", expected: "http://example.com/"},
		{desc: "upper case host", raw: "HTTP://Example.COM/a", expected: "http://example.com/a"},
		{desc: "default port", raw: "https://example.com:443/x", expected: "https://example.com/x"},
		{desc: "other port", raw: "http://example.com:8080/", expected: "http://example.com:8080/"},
		{desc: "opaque", raw: "mem:alpha", expected: "mem:alpha"},
		{desc: "p2p keeps case", raw: "p2p://QmPeer/", expected: "p2p://QmPeer/"},
		{desc: "fragment", raw: "http://example.com/#x", err: ErrInvalidIdentifier},
		{desc: "no scheme", raw: "example.com", err: ErrInvalidIdentifier},
		{desc: "unknown scheme", raw: "gopher://example.com/", err: ErrUnsupportedScheme},
		{desc: "whitespace", raw: " http://example.com/", err: ErrInvalidIdentifier},
		{desc: "missing host", raw: "http:///path", err: ErrInvalidIdentifier},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			id, err := f.FromExternalForm(tc.raw)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, id.String())
		})
	}
}

func TestMeshBaseGuessFromExternalForm(t *testing.T) {
	f := DefaultMeshBaseIDFactory()
	for _, tc := range []struct {
		raw      string
		expected string
	}{
		{raw: "example.com", expected: "http://example.com/"},
		{raw: "  example.com/x  ", expected: "http://example.com/x"},
		{raw: "localhost:8080", expected: "http://localhost:8080/"},
		{raw: "http://example.com/#frag", expected: "http://example.com/"},
		{raw: "gopher://example.com/", expected: "gopher://example.com/"},
		{raw: "mem:alpha", expected: "mem:alpha"},
	} {
		t.Run(tc.raw, func(t *testing.T) {
			id, err := f.GuessFromExternalForm(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.expected, id.String())
		})
	}
	_, err := f.GuessFromExternalForm("   ")
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestMeshBaseIdentifierEquality(t *testing.T) {
	f := DefaultMeshBaseIDFactory()
	a, err := f.FromExternalForm("http://Example.com")
	require.NoError(t, err)
	b, err := f.GuessFromExternalForm("example.com")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, "http", a.Scheme())

	seen := map[NetMeshBaseIdentifier]int{a: 1}
	require.Equal(t, 1, seen[b])
}

func TestObjectIdentifiers(t *testing.T) {
	base := MustFromExternalForm("http://example.com/")
	f := NewObjectIDFactory(base, nil)

	home := f.HomeObject()
	require.True(t, home.IsHomeObject())
	require.Equal(t, "http://example.com/", home.String())

	id, err := f.FromExternalForm("http://example.com/#abc")
	require.NoError(t, err)
	require.Equal(t, "abc", id.LocalID())
	require.Equal(t, base, id.MeshBase())
	require.False(t, id.IsHomeObject())

	local, err := f.FromLocal("abc")
	require.NoError(t, err)
	require.Equal(t, id, local)

	guessed, err := f.GuessFromExternalForm("#abc")
	require.NoError(t, err)
	require.Equal(t, id, guessed)
	guessed, err = f.GuessFromExternalForm("abc")
	require.NoError(t, err)
	require.Equal(t, id, guessed)
	guessed, err = f.GuessFromExternalForm(" example.com#abc ")
	require.NoError(t, err)
	require.Equal(t, id, guessed)

	_, err = f.FromLocal("a b")
	require.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = f.FromExternalForm("http://example.com/#a#b")
	require.ErrorIs(t, err, ErrInvalidIdentifier)

	r1, r2 := f.CreateRandom(), f.CreateRandom()
	require.NotEqual(t, r1, r2)
	require.Equal(t, base, r1.MeshBase())

	require.Negative(t, home.Compare(id))
	require.Zero(t, id.Compare(local))
}

func TestPropertyValues(t *testing.T) {
	require.True(t, StringValue("a").Equal(StringValue("a")))
	require.False(t, StringValue("a").Equal(BlobValue([]byte("a"))))
	require.Equal(t, "42", IntegerValue(42).String())
	require.Equal(t, "-1", IntegerValue(-1).String())
	require.Equal(t, "true", BooleanValue(true).String())
	require.Equal(t, "1.5", FloatValue(1.5).String())
	require.Equal(t, `"x"`, StringValue("x").String())
}
