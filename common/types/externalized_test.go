package types_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/infogrid/netmesh/codec"
	"github.com/infogrid/netmesh/common/types"
)

func fixture(t *testing.T) types.ExternalizedNetMeshObject {
	t.Helper()
	base := types.MustFromExternalForm("http://a.example.com/")
	other := types.MustFromExternalForm("mem:b")
	f := types.NewObjectIDFactory(base, nil)
	id, err := f.FromLocal("node")
	require.NoError(t, err)
	nb, err := f.FromLocal("neighbor")
	require.NoError(t, err)
	eq := types.NewNetMeshObjectIdentifier(other, "alias")
	return types.ExternalizedNetMeshObject{
		Identifier:  id,
		EntityTypes: []types.EntityTypeID{"org.example/Person", "org.example/Account"},
		TimeCreated: 1000,
		TimeUpdated: 2000,
		TimeRead:    3000,
		TimeExpires: types.NeverExpires,
		Properties: []types.PropertyEntry{
			{Type: "org.example/Person_Name", Value: types.StringValue("ada")},
			{Type: "org.example/Person_Age", Value: types.IntegerValue(36)},
		},
		Neighbors: []types.NeighborEntry{
			{Identifier: nb, RoleTypes: []types.RoleTypeID{"org.example/Knows-S"}},
		},
		Equivalents:           []types.NetMeshObjectIdentifier{eq},
		Proxies:               []types.NetMeshBaseIdentifier{other},
		ProxyTowardsHomeIndex: types.HereIndex,
		ProxyTowardsLockIndex: 0,
		GiveUpHomeReplica:     false,
		GiveUpLock:            true,
	}
}

func TestExternalizedRoundTrip(t *testing.T) {
	ext := fixture(t)
	ext.Normalize()

	buf, err := codec.Encode(&ext)
	require.NoError(t, err)

	var decoded types.ExternalizedNetMeshObject
	require.NoError(t, codec.Decode(buf, &decoded))
	require.True(t, ext.Equal(&decoded), cmp.Diff(ext, decoded, cmp.AllowUnexported(
		types.NetMeshObjectIdentifier{}, types.NetMeshBaseIdentifier{})))

	again, err := codec.Encode(&decoded)
	require.NoError(t, err)
	require.Equal(t, buf, again)
}

func TestExternalizedNegativeIndices(t *testing.T) {
	ext := fixture(t)
	ext.ProxyTowardsHomeIndex = types.LostIndex
	ext.ProxyTowardsLockIndex = types.HereIndex

	var decoded types.ExternalizedNetMeshObject
	require.NoError(t, codec.Decode(codec.MustEncode(&ext), &decoded))
	require.EqualValues(t, types.LostIndex, decoded.ProxyTowardsHomeIndex)
	require.EqualValues(t, types.HereIndex, decoded.ProxyTowardsLockIndex)
	require.Equal(t, types.NeverExpires, decoded.TimeExpires)
}

func TestExternalizedNormalize(t *testing.T) {
	a := fixture(t)
	b := fixture(t)
	b.EntityTypes[0], b.EntityTypes[1] = b.EntityTypes[1], b.EntityTypes[0]
	b.Properties[0], b.Properties[1] = b.Properties[1], b.Properties[0]
	require.False(t, a.Equal(&b))
	a.Normalize()
	b.Normalize()
	require.True(t, a.Equal(&b))
}

func TestDecodeTruncated(t *testing.T) {
	ext := fixture(t)
	buf := codec.MustEncode(&ext)
	var decoded types.ExternalizedNetMeshObject
	require.Error(t, codec.Decode(buf[:len(buf)/2], &decoded))
	require.ErrorIs(t, codec.Decode(append(buf, 0), &decoded), codec.ErrTrailingBytes)
}
