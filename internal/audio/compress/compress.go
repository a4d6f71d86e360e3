// Package compress wraps andybalholm/brotli with fixed parameters
// (quality 4, window 24), forming each message sent over the wire.
package compress

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

const (
	quality = 4
	lgwin   = 24
)

// Compress brotli-compresses a packed batch buffer. Empty batches are
// skipped, returning (nil, false).
func Compress(packed []byte) ([]byte, bool) {
	if len(packed) == 0 {
		return nil, false
	}

	var buf bytes.Buffer
	w := brotli.NewWriterOptions(&buf, brotli.WriterOptions{Quality: quality, LGWin: lgwin})
	if _, err := w.Write(packed); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// Decompress reverses Compress.
func Decompress(compressed []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(compressed))
	return io.ReadAll(r)
}
