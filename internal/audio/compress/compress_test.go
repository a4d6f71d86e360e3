package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyBatchIsSkipped(t *testing.T) {
	out, ok := Compress(nil)
	assert.False(t, ok)
	assert.Nil(t, out)
}

func TestRoundTrip(t *testing.T) {
	original := []byte("+12345-6789+1")
	compressed, ok := Compress(original)
	require.True(t, ok)
	assert.NotEmpty(t, compressed)

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}
