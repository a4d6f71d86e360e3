// Package pack implements the quantizer stage: a lossy, variable-precision
// text encoding of f32 samples into a compact byte stream, and its inverse.
package pack

import (
	"strconv"
	"strings"
)

// Encode renders s as signed-mantissa text and truncates its digits to
// quality (quality must be in [1..9]):
//
//  1. render the decimal textual form
//  2. prepend '+' if the form begins '0' (positive-zero path)
//  3. if length > 2, strip the characters at positions 1 and 2 (the '0'
//     and '.'), yielding a compact signed-mantissa form like "+12345"
//     representing 0.12345
//  4. truncate to quality digits after the sign (quality=3 on 0.9876
//     yields "+987" — the sign character is kept unconditionally and does
//     not count against quality)
func Encode(s float32, quality int) []byte {
	text := strconv.FormatFloat(float64(s), 'f', -1, 32)
	if strings.HasPrefix(text, "0") {
		text = "+" + text
	}
	if len(text) > 2 {
		text = text[:1] + text[3:]
	}
	if maxLen := 1 + quality; len(text) > maxLen {
		text = text[:maxLen]
	}
	return []byte(text)
}

// EncodeBatch encodes every sample in samples and concatenates the result,
// as the Quantizer does once per tick.
func EncodeBatch(samples []float32, quality int) []byte {
	out := make([]byte, 0, len(samples)*quality)
	for _, s := range samples {
		out = append(out, Encode(s, quality)...)
	}
	return out
}

// Decode reverses Encode across a whole packed buffer: it splits on '+'/'-'
// delimiters, reinserts "0." after each delimiter before the digits, and
// parses each token as a float32. Empty tokens and parse failures yield
// 0.0.
func Decode(tokens []byte) []float32 {
	text := string(tokens)
	var out []float32
	var cur strings.Builder
	var sign byte

	flush := func() {
		if sign == 0 {
			return
		}
		digits := cur.String()
		var value float32
		if digits != "" {
			f, err := strconv.ParseFloat("0."+digits, 32)
			if err == nil {
				value = float32(f)
			}
		}
		if sign == '-' {
			value = -value
		}
		out = append(out, value)
		cur.Reset()
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '+' || c == '-' {
			flush()
			sign = c
			continue
		}
		cur.WriteByte(c)
	}
	flush()

	return out
}
