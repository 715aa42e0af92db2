package codec

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(""),
		[]byte("<a> <b> <c> ."),
		[]byte("<a> <b> <c> .\n<x> <y> <z> ."),
		make([]byte, 1<<16),
	}

	for _, p := range payloads {
		c, err := Compress(p)
		require.NoError(t, err)

		d, err := Decompress(c)
		require.NoError(t, err)
		assert.Equal(t, p, d)
	}
}

func TestDecompressGarbage(t *testing.T) {
	_, err := Decompress([]byte("not a zlib stream"))
	assert.Error(t, err)
}

func TestKeySum(t *testing.T) {
	sum := KeySum("http://dbpedia.org/resource/Berlin")
	assert.Len(t, sum, KeySize)
	assert.Equal(t, "014d3df25d3e5b9293e432e7c185733e22d2fe28", hex.EncodeToString(sum))

	// distinct keys hash differently
	assert.NotEqual(t, sum, KeySum("http://dbpedia.org/resource/Hamburg"))
}
