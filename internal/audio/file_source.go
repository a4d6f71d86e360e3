package audio

import (
	"context"
	"log/slog"
	"time"

	"github.com/arung-agamani/wavecast/internal/audio/resample"
	"github.com/arung-agamani/wavecast/internal/ffmpeg"
)

// FileSource is a Source backed by a Playlist of local audio files, decoded
// one at a time through ffmpeg and resampled to pipelineRate. The decode
// loop runs ahead of playback: it decodes the current track into the ring,
// then blocks until the ring has drained below half capacity before
// decoding further, so decode work is throttled by downstream consumption.
type FileSource struct {
	playlist     *Playlist
	decoder      *ffmpeg.Decoder
	resampler    *resample.Resampler
	ring         *ring
	shouldDecode chan struct{}
	done         chan struct{}
}

// NewFileSource scans dir's tracks and prepares a FileSource that converts
// every file to pipelineRate as it decodes. It does not start decoding: the
// caller starts the decode loop by running Run.
func NewFileSource(dir string, fileRate, pipelineRate int) (*FileSource, error) {
	pl, err := NewPlaylist(dir)
	if err != nil {
		return nil, err
	}

	fs := &FileSource{
		playlist:     pl,
		decoder:      ffmpeg.NewDecoder(fileRate),
		resampler:    resample.New(fileRate, pipelineRate),
		ring:         newRing(pipelineRate * 4),
		shouldDecode: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	fs.shouldDecode <- struct{}{}
	return fs, nil
}

// Run drives the decode loop until ctx is cancelled. It must be started as
// its own goroutine by the owning pipeline task.
func (fs *FileSource) Run(ctx context.Context) {
	defer close(fs.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-fs.shouldDecode:
		}

		track, ok := fs.playlist.Next()
		if !ok {
			slog.Warn("file source: playlist is empty")
			select {
			case <-ctx.Done():
				return
			case fs.shouldDecode <- struct{}{}:
			}
			continue
		}

		slog.Info("file source: decoding track", "path", track)
		var decoded []float32
		err := fs.decoder.Decode(ctx, track, func(sample float32) {
			decoded = append(decoded, sample)
		})
		if err != nil {
			slog.Error("file source: decode failed", "path", track, "error", err)
		}

		for _, s := range fs.resampler.Process(decoded) {
			fs.ring.push(s)
			fs.maybeThrottle(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case fs.shouldDecode <- struct{}{}:
		default:
		}
	}
}

// maybeThrottle blocks the decode goroutine (not the caller of NextBatch)
// once the ring has filled past half capacity.
func (fs *FileSource) maybeThrottle(ctx context.Context) {
	for fs.ring.len() >= fs.ring.cap()/2 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// CurrentTrack reports the path of the track currently being decoded,
// satisfying TrackReporter for StreamerStatus's current_track field.
func (fs *FileSource) CurrentTrack() (string, bool) {
	return fs.playlist.CurrentTrack()
}

// NextBatch implements Source.
func (fs *FileSource) NextBatch(ctx context.Context, max int) ([]float32, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	default:
	}

	batch := fs.ring.drain(max)
	select {
	case fs.shouldDecode <- struct{}{}:
	default:
	}
	return batch, true
}
