package audio

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dhowden/tag"
)

// TrackInfo is the metadata extracted for one playlist entry.
type TrackInfo struct {
	Filename string
	Path     string
	Title    string
	Artist   string
	Album    string
	Format   string
}

var supportedFormats = []string{".mp3", ".wav", ".flac", ".aac", ".ogg"}

// Playlist is FileSource's track scanner: a flat, sorted list of files under
// a directory, advanced one track at a time, looping back to the start once
// exhausted.
type Playlist struct {
	mu            sync.RWMutex
	tracks        []string
	metadata      map[string]*TrackInfo
	current       int
	dir           string
	lastTrack     string
	hasDispatched bool
}

// NewPlaylist scans dir and builds the initial track list.
func NewPlaylist(dir string) (*Playlist, error) {
	pl := &Playlist{dir: dir}
	if err := pl.scan(); err != nil {
		return nil, err
	}
	return pl, nil
}

func (pl *Playlist) scan() error {
	tracks := make([]string, 0)
	metadata := make(map[string]*TrackInfo)

	err := filepath.Walk(pl.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, format := range supportedFormats {
			if ext == format {
				tracks = append(tracks, path)
				metadata[path] = extractMetadata(path, ext)
				break
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Strings(tracks)
	pl.tracks = tracks
	pl.metadata = metadata
	slog.Info("playlist scanned", "total_tracks", len(pl.tracks), "dir", pl.dir)
	return nil
}

// Rescan rebuilds the track list from disk and resets playback to the start.
func (pl *Playlist) Rescan() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if err := pl.scan(); err != nil {
		return err
	}
	pl.current = 0
	return nil
}

// Next returns the next track path, looping back to the start once the
// playlist is exhausted — FileSource has no "end of show" state.
func (pl *Playlist) Next() (string, bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if len(pl.tracks) == 0 {
		return "", false
	}
	track := pl.tracks[pl.current]
	pl.current = (pl.current + 1) % len(pl.tracks)
	pl.lastTrack = track
	pl.hasDispatched = true
	return track, true
}

// CurrentTrack returns the path of the most recently dispatched track, if
// Next has been called at least once.
func (pl *Playlist) CurrentTrack() (string, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.lastTrack, pl.hasDispatched
}

// Len reports the number of tracks currently in the playlist.
func (pl *Playlist) Len() int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return len(pl.tracks)
}

// TrackInfo returns metadata for a given track path, if known.
func (pl *Playlist) TrackInfo(path string) (*TrackInfo, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	info, ok := pl.metadata[path]
	if !ok {
		return nil, false
	}
	copied := *info
	return &copied, true
}

func extractMetadata(path, ext string) *TrackInfo {
	filename := filepath.Base(path)
	nameWithoutExt := strings.TrimSuffix(filename, filepath.Ext(filename))

	info := &TrackInfo{
		Filename: filename,
		Path:     path,
		Format:   strings.TrimPrefix(ext, "."),
		Title:    nameWithoutExt,
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Warn("could not open file for metadata", "path", path, "error", err)
		return info
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		slog.Debug("could not read tags", "path", path, "error", err)
		return info
	}
	if m.Title() != "" {
		info.Title = m.Title()
	}
	if m.Artist() != "" {
		info.Artist = m.Artist()
	}
	if m.Album() != "" {
		info.Album = m.Album()
	}
	return info
}
