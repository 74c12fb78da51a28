package raftstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTripsArgs(t *testing.T) {
	args := InsertObjectArgs{
		NamespaceID: 10,
		Key:         "foo",
		Size:        123,
		ETag:        "etag",
		ContentType: "text/plain",
		KeyID:       "key1",
	}

	data, err := Encode(OpInsertObject, args)
	require.NoError(t, err)

	cmd, err := decodeCommand(data)
	require.NoError(t, err)
	assert.Equal(t, OpInsertObject, cmd.Op)

	var got InsertObjectArgs
	require.NoError(t, decodeArgs(cmd.Args, &got))
	assert.Equal(t, args, got)
}

func TestEncodeCommand_RoundTripsThroughForwarding(t *testing.T) {
	data, err := Encode(OpDeleteNamespace, DeleteNamespaceArgs{Name: "ns"})
	require.NoError(t, err)

	cmd, err := decodeCommand(data)
	require.NoError(t, err)

	reencoded, err := encodeCommand(cmd)
	require.NoError(t, err)

	cmd2, err := decodeCommand(reencoded)
	require.NoError(t, err)
	assert.Equal(t, cmd, cmd2)
}
