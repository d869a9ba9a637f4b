package codec_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infogrid/netmesh/codec"
	"github.com/infogrid/netmesh/common/types"
)

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	id := types.MustFromExternalForm("http://example.com/")
	buf, err := codec.Encode(&id)
	require.NoError(t, err)

	var decoded types.NetMeshBaseIdentifier
	require.NoError(t, codec.Decode(buf, &decoded))
	require.Equal(t, id, decoded)

	err = codec.Decode(append(buf, 0), &decoded)
	require.ErrorIs(t, err, codec.ErrTrailingBytes)
}

func TestEncodeToDecodeFrom(t *testing.T) {
	id := types.MustFromExternalForm("mem:a")
	var b bytes.Buffer
	n, err := codec.EncodeTo(&b, &id)
	require.NoError(t, err)
	require.Equal(t, b.Len(), n)

	var decoded types.NetMeshBaseIdentifier
	_, err = codec.DecodeFrom(&b, &decoded)
	require.NoError(t, err)
	require.Equal(t, id, decoded)

	_, err = codec.DecodeFrom(bytes.NewReader(nil), &decoded)
	require.Error(t, err)
}
