package audio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// TrackInfo contains the tag metadata shown for the current track
type TrackInfo struct {
	Path   string `json:"path"`
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// ReadTrackInfo reads tag metadata from path
func ReadTrackInfo(path string) (*TrackInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, err
	}

	title := m.Title()
	if title == "" {
		title = titleFromPath(path)
	}

	artist := m.Artist()
	if artist == "" {
		artist = m.AlbumArtist()
	}

	return &TrackInfo{
		Path:   path,
		Title:  title,
		Artist: artist,
		Album:  m.Album(),
	}, nil
}

// DescribeTrack returns the tag metadata of path, falling back to a title
// derived from the file name when the file has no readable tags
func DescribeTrack(path string) TrackInfo {
	if info, err := ReadTrackInfo(path); err == nil {
		return *info
	}
	return TrackInfo{
		Path:  path,
		Title: titleFromPath(path),
	}
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
