package queue

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedPlaylist is returned when a playlist file does not carry a
// recognized extension.
var ErrUnsupportedPlaylist = errors.New("unsupported playlist format")

var playlistExtensions = map[string]struct{}{
	".m3u":  {},
	".m3u8": {},
}

// IsPlaylist reports whether path names a playlist file the queue can load
func IsPlaylist(path string) bool {
	_, ok := playlistExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadPlaylist appends every entry of an M3U playlist to the queue and
// returns how many were added.
//
// Blank lines and lines starting with '#' (#EXTM3U, #EXTINF, ...) are skipped.
// Entries are not checked for existence; a bad entry is dropped later when
// playback fails to open it.
func (q *Queue) LoadPlaylist(path string) (int, error) {
	if !IsPlaylist(path) {
		return 0, fmt.Errorf("%s: %w", path, ErrUnsupportedPlaylist)
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open playlist: %w", err)
	}
	defer file.Close()

	var entries []string
	skipped := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			skipped++
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read playlist: %w", err)
	}

	q.items = append(q.items, entries...)
	q.log.Debug().
		Str("playlist", path).
		Int("entries", len(entries)).
		Int("skipped_lines", skipped).
		Int("queue_length", len(q.items)).
		Msg("playlist read")
	return len(entries), nil
}
