package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

const (
	extMP3  = ".mp3"
	extFLAC = ".flac"
	extWAV  = ".wav"
	extOGG  = ".ogg"

	resampleQuality = 4
)

// ErrUnsupportedFormat is returned for files whose extension has no decoder
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// IsSupported reports whether path has a decodable extension
func IsSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case extMP3, extFLAC, extWAV, extOGG:
		return true
	}
	return false
}

// decodedTrack is an opened file and the stream decoding it
type decodedTrack struct {
	streamer beep.StreamSeekCloser
	format   beep.Format
	file     *os.File
}

func (t *decodedTrack) Close() error {
	err := t.streamer.Close()
	// Some decoders close the file themselves.
	if ferr := t.file.Close(); ferr != nil && !errors.Is(ferr, os.ErrClosed) && err == nil {
		err = ferr
	}
	return err
}

// decodeFile opens path and picks a decoder from its extension
func decodeFile(path string) (*decodedTrack, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !IsSupported(path) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track: %w", err)
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format

	switch ext {
	case extMP3:
		streamer, format, err = mp3.Decode(f)
	case extFLAC:
		streamer, format, err = flac.Decode(f)
	case extWAV:
		streamer, format, err = wav.Decode(f)
	case extOGG:
		streamer, format, err = vorbis.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}

	return &decodedTrack{
		streamer: streamer,
		format:   format,
		file:     f,
	}, nil
}

// resampled returns the track's stream converted to rate
func (t *decodedTrack) resampled(rate beep.SampleRate) beep.Streamer {
	if t.format.SampleRate == rate {
		return t.streamer
	}
	return beep.Resample(resampleQuality, t.format.SampleRate, rate, t.streamer)
}
