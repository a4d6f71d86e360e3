// Package ffmpeg shells out to the ffmpeg binary to decode arbitrary
// container/codec audio files into raw PCM for FileSource.
package ffmpeg

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"

	"github.com/arung-agamani/wavecast/internal/wire"
)

// Decoder decodes an input audio file to mono f32 PCM at a fixed sample
// rate; FileSource then resamples that output to the pipeline rate.
type Decoder struct {
	sampleRate int
}

// NewDecoder constructs a Decoder that always outputs the given sample rate,
// downmixed to a single channel.
func NewDecoder(sampleRate int) *Decoder {
	return &Decoder{sampleRate: sampleRate}
}

// Decode streams path through ffmpeg, converting to signed 16-bit
// little-endian mono PCM at d.sampleRate, and calls emit for every decoded
// sample converted to float32 in [-1, 1]. It blocks until the file is fully
// decoded, ctx is cancelled, or ffmpeg exits with an error.
func (d *Decoder) Decode(ctx context.Context, path string, emit func(float32)) error {
	args := []string{
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", d.sampleRate),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: start: %w", err)
	}

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := stderr.Read(buf)
			if err != nil {
				return
			}
			if n > 0 {
				slog.Debug("ffmpeg", "output", string(buf[:n]))
			}
		}
	}()

	readErr := readPCM16(stdout, emit)
	waitErr := cmd.Wait()

	if readErr != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: decode stream: %v", wire.ErrDecodeFailed, readErr)
	}
	if waitErr != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: process error: %v", wire.ErrDecodeFailed, waitErr)
	}
	return nil
}

func readPCM16(r io.Reader, emit func(float32)) error {
	buf := make([]byte, 4096)
	var frame [2]byte
	havePartial := false

	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			if !havePartial {
				frame[0] = buf[i]
				havePartial = true
				continue
			}
			frame[1] = buf[i]
			havePartial = false
			sample := int16(binary.LittleEndian.Uint16(frame[:]))
			emit(float32(sample) / float32(math.MaxInt16))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
