package pack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePositiveSampleProducesSignedMantissa(t *testing.T) {
	got := Encode(0.12345, 9)
	assert.Equal(t, "+12345", string(got))
}

func TestEncodeNegativeSamplePreservesSign(t *testing.T) {
	got := Encode(-0.12345, 9)
	assert.Equal(t, "-12345", string(got))
}

func TestEncodeTruncatesToQuality(t *testing.T) {
	got := Encode(0.123456789, 4)
	assert.Equal(t, "+1234", string(got))
}

func TestEncodeQualityThreeKeepsSignPlusThreeDigits(t *testing.T) {
	got := Encode(0.9876, 3)
	assert.Equal(t, "+987", string(got))
}

func TestRoundTripThroughEncodeAndDecode(t *testing.T) {
	samples := []float32{0.5, -0.25, 0.125, -0.75}
	packed := EncodeBatch(samples, 9)
	decoded := Decode(packed)

	assert.Len(t, decoded, len(samples))
	for i, s := range samples {
		assert.InDelta(t, s, decoded[i], 1e-3)
	}
}

func TestRoundTripErrorBoundedByQuality(t *testing.T) {
	// For every x in (-1, 1) and q >= 3, decode(encode(x, q)) must differ
	// from x by at most 10^(2-q).
	for q := 3; q <= 9; q++ {
		bound := math.Pow(10, float64(2-q))
		for x := float32(-0.99); x <= 0.99; x += 0.03 {
			decoded := Decode(Encode(x, q))
			require.Len(t, decoded, 1, "quality %d sample %f", q, x)
			assert.InDelta(t, x, decoded[0], bound, "quality %d sample %f", q, x)
		}
	}
}

func TestDecodeEmptyTokenYieldsZero(t *testing.T) {
	decoded := Decode([]byte("+-12345"))
	assert.Len(t, decoded, 2)
	assert.Equal(t, float32(0), decoded[0])
}

func TestDecodeMalformedDigitsYieldZero(t *testing.T) {
	decoded := Decode([]byte("+abc"))
	assert.Equal(t, []float32{0}, decoded)
}
