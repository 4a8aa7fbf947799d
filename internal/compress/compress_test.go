package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress_RoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("observation-action-reward "), 200)
	random := []byte{0x13, 0x99, 0x01, 0xfe, 0x42}

	for _, typ := range []Type{None, LZ4, ZSTD} {
		for _, data := range [][]byte{compressible, random, {}} {
			block, err := Compress(data, typ)
			require.NoError(t, err, typ)

			out, err := Decompress(block)
			require.NoError(t, err, typ)
			assert.Equal(t, len(data), len(out))
			assert.True(t, bytes.Equal(data, out), typ)
		}
	}
}

func TestCompress_ShrinksCompressibleData(t *testing.T) {
	data := bytes.Repeat([]byte{0}, 4096)
	for _, typ := range []Type{LZ4, ZSTD} {
		block, err := Compress(data, typ)
		require.NoError(t, err)
		assert.Equal(t, byte(typ), block[0])
		assert.Less(t, len(block), len(data)/2)
	}
}

func TestCompress_IncompressibleStoredRaw(t *testing.T) {
	block, err := Compress([]byte{1, 2, 3}, ZSTD)
	require.NoError(t, err)
	assert.Equal(t, byte(None), block[0])
}

func TestDecompress_Errors(t *testing.T) {
	_, err := Decompress([]byte{1, 2})
	assert.ErrorIs(t, err, ErrShortBlock)

	block, err := Compress([]byte("abc"), None)
	require.NoError(t, err)
	block[0] = 9
	_, err = Decompress(block)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("brotli")
	assert.Error(t, err)
}
