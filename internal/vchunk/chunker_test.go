package vchunk

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairForge/vaultaire/internal/types"
)

func concatChunks(chunks []types.RawChunk) []byte {
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c.Data)
	}
	return buf.Bytes()
}

func TestCDCChunker_EmptyInput(t *testing.T) {
	c, err := NewCDCChunker(4 * 1024 * 1024)
	require.NoError(t, err)

	chunks, err := c.ChunkBytes(nil)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestCDCChunker_SmallInputSingleChunk(t *testing.T) {
	c, err := NewCDCChunker(4 * 1024 * 1024)
	require.NoError(t, err)

	data := []byte("hello")
	chunks, err := c.ChunkBytes(data)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, data, chunks[0].Data)
	require.Equal(t, types.SumChunkHash(data), chunks[0].Hash)
}

func TestCDCChunker_Determinism(t *testing.T) {
	data := make([]byte, 8*1024*1024)
	_, err := rand.Read(data)
	require.NoError(t, err)

	c1, err := NewCDCChunker(1 * 1024 * 1024)
	require.NoError(t, err)
	c2, err := NewCDCChunker(1 * 1024 * 1024)
	require.NoError(t, err)

	chunks1, err := c1.ChunkBytes(data)
	require.NoError(t, err)
	chunks2, err := c2.ChunkBytes(data)
	require.NoError(t, err)

	require.Equal(t, len(chunks1), len(chunks2))
	for i := range chunks1 {
		require.Equal(t, chunks1[i].Hash, chunks2[i].Hash)
		require.Equal(t, chunks1[i].Offset, chunks2[i].Offset)
		require.Equal(t, chunks1[i].Length, chunks2[i].Length)
	}
}

func TestCDCChunker_Totality(t *testing.T) {
	data := make([]byte, 5*1024*1024)
	_, err := rand.Read(data)
	require.NoError(t, err)

	c, err := NewCDCChunker(512 * 1024)
	require.NoError(t, err)

	chunks, err := c.ChunkBytes(data)
	require.NoError(t, err)
	require.Equal(t, data, concatChunks(chunks))

	var wantOffset uint64
	for i, ch := range chunks {
		require.Equal(t, wantOffset, ch.Offset, "chunk %d offset", i)
		wantOffset += uint64(ch.Length)
	}
	require.Equal(t, uint64(len(data)), wantOffset)
}

func TestCDCChunker_BoundsRespectedExceptFinal(t *testing.T) {
	target := 256 * 1024
	data := make([]byte, 4*1024*1024)
	_, err := rand.Read(data)
	require.NoError(t, err)

	c, err := NewCDCChunker(target)
	require.NoError(t, err)
	chunks, err := c.ChunkBytes(data)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	min, max := target/4, target*4
	for i, ch := range chunks {
		if i == len(chunks)-1 {
			require.LessOrEqual(t, ch.Length, max)
			continue
		}
		require.GreaterOrEqual(t, ch.Length, min)
		require.LessOrEqual(t, ch.Length, max)
	}
}

func TestFixedChunker_Totality(t *testing.T) {
	data := make([]byte, 10*1024+37)
	_, err := rand.Read(data)
	require.NoError(t, err)

	c, err := NewFixedChunker(1024)
	require.NoError(t, err)
	chunks, err := c.ChunkBytes(data)
	require.NoError(t, err)
	require.Equal(t, data, concatChunks(chunks))

	for i, ch := range chunks {
		if i < len(chunks)-1 {
			require.Equal(t, 1024, ch.Length)
		}
	}
	require.Equal(t, 37, chunks[len(chunks)-1].Length)
}

func TestFixedChunker_EmptyInput(t *testing.T) {
	c, err := NewFixedChunker(1024)
	require.NoError(t, err)
	chunks, err := c.ChunkBytes(nil)
	require.NoError(t, err)
	require.Empty(t, chunks)
}
