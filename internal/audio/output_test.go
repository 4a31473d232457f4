package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constStream yields n frames of the same value, then drains
type constStream struct {
	n     int
	value float64
}

func (c *constStream) Stream(samples [][2]float64) (int, bool) {
	if c.n == 0 {
		return 0, false
	}
	n := min(len(samples), c.n)
	for i := range samples[:n] {
		samples[i] = [2]float64{c.value, -c.value}
	}
	c.n -= n
	return n, true
}

func (c *constStream) Err() error { return nil }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func testSink() *OtoSink {
	return newOtoSink(beep.SampleRate(44100), zerolog.Nop())
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestEncodeS16LE(t *testing.T) {
	tests := []struct {
		name     string
		frame    [2]float64
		expected []byte
	}{
		{"silence", [2]float64{0, 0}, []byte{0x00, 0x00, 0x00, 0x00}},
		{"full scale", [2]float64{1, -1}, []byte{0xFF, 0x7F, 0x01, 0x80}},
		{"clipped", [2]float64{2.5, -3}, []byte{0xFF, 0x7F, 0x01, 0x80}},
		{"half", [2]float64{0.5, -0.5}, []byte{0xFF, 0x3F, 0x01, 0xC0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, frameBytes)
			encodeS16LE(dst, [][2]float64{tt.frame})
			assert.Equal(t, tt.expected, dst)
		})
	}
}

func TestReadIdleProducesSilence(t *testing.T) {
	s := testSink()
	p := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}

	n, err := s.Read(p)

	require.NoError(t, err)
	assert.Equal(t, len(p), n)
	assert.Equal(t, make([]byte, len(p)), p)
}

func TestReadStreamsTrackAndSignalsEnd(t *testing.T) {
	s := testSink()
	closed := false
	done := s.load("/a.wav", &constStream{n: 2, value: 1}, closerFunc(func() error {
		closed = true
		return nil
	}))

	p := make([]byte, 4*frameBytes)
	n, err := s.Read(p)

	require.NoError(t, err)
	assert.Equal(t, len(p), n)
	assert.Equal(t, []byte{0xFF, 0x7F, 0x01, 0x80, 0xFF, 0x7F, 0x01, 0x80}, p[:2*frameBytes])
	assert.Equal(t, make([]byte, 2*frameBytes), p[2*frameBytes:], "padded with silence")
	assert.True(t, isClosed(done), "end of stream closes done")
	assert.True(t, closed, "decoder released")
}

func TestReadWhilePausedDoesNotConsume(t *testing.T) {
	s := testSink()
	stream := &constStream{n: 8, value: 0.5}
	done := s.load("/a.wav", stream, nil)

	s.Pause()
	assert.True(t, s.IsPaused())

	p := make([]byte, 4*frameBytes)
	_, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, len(p)), p)
	assert.Equal(t, 8, stream.n)

	s.Resume()
	assert.False(t, s.IsPaused())
	_, err = s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 4, stream.n)
	assert.False(t, isClosed(done))
}

func TestPauseWithoutTrackIsNoop(t *testing.T) {
	s := testSink()

	s.Pause()

	assert.False(t, s.IsPaused())
}

func TestStopClosesDone(t *testing.T) {
	s := testSink()
	done := s.load("/a.wav", &constStream{n: 100, value: 0.1}, nil)
	s.Pause()

	s.Stop()

	assert.True(t, isClosed(done))
	assert.False(t, s.IsPaused())
	assert.NotPanics(t, s.Stop, "stop without a track")
}

func TestLoadReplacesTrack(t *testing.T) {
	s := testSink()
	first := s.load("/a.wav", &constStream{n: 100, value: 0.1}, nil)

	second := s.load("/b.wav", &constStream{n: 100, value: 0.1}, nil)

	assert.True(t, isClosed(first))
	assert.False(t, isClosed(second))
}

func TestReadAfterClose(t *testing.T) {
	s := testSink()
	done := s.load("/a.wav", &constStream{n: 100, value: 0.1}, nil)

	require.NoError(t, s.Close())

	assert.True(t, isClosed(done))
	_, err := s.Read(make([]byte, 16))
	assert.ErrorIs(t, err, io.EOF)
}

func TestPlayUnsupportedFormat(t *testing.T) {
	s := testSink()

	_, err := s.Play("/music/cover.jpg")

	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestPlayMissingFile(t *testing.T) {
	s := testSink()

	_, err := s.Play(filepath.Join(t.TempDir(), "missing.mp3"))

	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPlayCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.flac")
	require.NoError(t, os.WriteFile(path, []byte("definitely not flac"), 0o600))
	s := testSink()

	_, err := s.Play(path)

	assert.Error(t, err)
}

// writeWAV writes a 16-bit stereo PCM file with frames samples of a constant
// value
func writeWAV(t *testing.T, rate, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	dataSize := frames * frameBytes
	header := []interface{}{
		[4]byte{'R', 'I', 'F', 'F'}, uint32(36 + dataSize), [4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '}, uint32(16), uint16(1), uint16(2),
		uint32(rate), uint32(rate * frameBytes), uint16(frameBytes), uint16(16),
		[4]byte{'d', 'a', 't', 'a'}, uint32(dataSize),
	}
	for _, v := range header {
		require.NoError(t, binary.Write(f, binary.LittleEndian, v))
	}
	for i := 0; i < frames*2; i++ {
		require.NoError(t, binary.Write(f, binary.LittleEndian, int16(8000)))
	}
	return path
}

func TestPlayWAVToEnd(t *testing.T) {
	tests := []struct {
		name string
		rate int
	}{
		{"native rate", 44100},
		{"resampled", 22050},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeWAV(t, tt.rate, 512)
			s := testSink()

			done, err := s.Play(path)
			require.NoError(t, err)

			p := make([]byte, 256*frameBytes)
			heard := false
			deadline := time.Now().Add(2 * time.Second)
			for !isClosed(done) && time.Now().Before(deadline) {
				_, err := s.Read(p)
				require.NoError(t, err)
				for _, b := range p {
					if b != 0 {
						heard = true
						break
					}
				}
			}

			assert.True(t, isClosed(done), "track played out")
			assert.True(t, heard, "decoded samples reached the device")
		})
	}
}

func TestIsSupported(t *testing.T) {
	for path, want := range map[string]bool{
		"/a.mp3":  true,
		"/a.FLAC": true,
		"/a.wav":  true,
		"/a.ogg":  true,
		"/a.m4a":  false,
		"/a":      false,
	} {
		assert.Equal(t, want, IsSupported(path), path)
	}
}
