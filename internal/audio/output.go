package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/hajimehoshi/oto/v2"
	"github.com/rs/zerolog"

	"github.com/altkeys/grapevined/internal/config"
)

const (
	outputChannels = 2
	bitDepth       = 2 // 16-bit = 2 bytes
	frameBytes     = outputChannels * bitDepth
)

// loadedTrack is the stream currently feeding the device
type loadedTrack struct {
	path   string
	stream beep.Streamer
	closer io.Closer
	done   chan struct{}
}

// finish releases the decoder and signals the end of the track
func (t *loadedTrack) finish() error {
	close(t.done)
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// OtoSink is a Sink writing to the native audio device through Oto.
//
// The Oto player pulls PCM from Read on its own goroutine. Read streams the
// loaded track and produces silence when nothing is loaded, so the device
// stream stays open for the life of the sink.
type OtoSink struct {
	context    *oto.Context
	player     oto.Player // oto.Player is an interface, not a pointer
	sampleRate beep.SampleRate
	log        zerolog.Logger
	mu         sync.Mutex
	track      *loadedTrack
	samples    [][2]float64
	paused     bool
	closed     bool
}

// NewOtoSink opens the audio device
func NewOtoSink(cfg config.AudioConfig, logger zerolog.Logger) (*OtoSink, error) {
	ctx, ready, err := oto.NewContext(cfg.SampleRate, outputChannels, bitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	// Wait for context to be ready
	<-ready

	s := newOtoSink(beep.SampleRate(cfg.SampleRate), logger)
	s.context = ctx
	s.player = ctx.NewPlayer(s)
	if setter, ok := s.player.(oto.BufferSizeSetter); ok {
		setter.SetBufferSize(cfg.SampleRate * frameBytes * cfg.BufferMs / 1000)
	}
	s.player.Play()

	return s, nil
}

func newOtoSink(rate beep.SampleRate, logger zerolog.Logger) *OtoSink {
	return &OtoSink{
		sampleRate: rate,
		log:        logger,
	}
}

// Play decodes path and starts it, replacing any loaded track
func (s *OtoSink) Play(path string) (<-chan struct{}, error) {
	t, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	s.log.Debug().
		Str("path", path).
		Int("sample_rate", int(t.format.SampleRate)).
		Int("channels", t.format.NumChannels).
		Msg("track decoded")

	return s.load(path, t.resampled(s.sampleRate), t), nil
}

// load installs stream as the current track
func (s *OtoSink) load(path string, stream beep.Streamer, closer io.Closer) <-chan struct{} {
	t := &loadedTrack{
		path:   path,
		stream: stream,
		closer: closer,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.unloadLocked()
	s.track = t
	s.paused = false
	s.mu.Unlock()

	s.startDevice()
	return t.done
}

// startDevice makes sure the device is pulling. Must be called without mu
// held; the device goroutine takes mu in Read.
func (s *OtoSink) startDevice() {
	if s.player != nil && !s.player.IsPlaying() {
		s.player.Play()
	}
}

func (s *OtoSink) unloadLocked() {
	if s.track == nil {
		return
	}
	if err := s.track.finish(); err != nil {
		s.log.Warn().Err(err).Str("path", s.track.path).Msg("failed to close decoder")
	}
	s.track = nil
}

// Read implements io.Reader for the player to read from
func (s *OtoSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// If closed, signal EOF to stop the player cleanly
	if s.closed {
		return 0, io.EOF
	}

	frames := len(p) / frameBytes
	written := 0
	if s.track != nil && !s.paused && frames > 0 {
		if cap(s.samples) < frames {
			s.samples = make([][2]float64, frames)
		}
		buf := s.samples[:frames]

		n, ok := s.track.stream.Stream(buf)
		encodeS16LE(p, buf[:n])
		written = n * frameBytes

		if !ok || n < frames {
			if err := s.track.stream.Err(); err != nil {
				s.log.Warn().Err(err).Str("path", s.track.path).Msg("stream error")
			}
			s.log.Debug().Str("path", s.track.path).Msg("track finished")
			s.unloadLocked()
		}
	}

	// Pad with silence to keep the stream alive while idle or paused
	clear(p[written:])
	return len(p), nil
}

// encodeS16LE writes samples as interleaved signed 16-bit little-endian PCM
func encodeS16LE(dst []byte, samples [][2]float64) {
	for i, frame := range samples {
		for ch := 0; ch < outputChannels; ch++ {
			v := frame[ch]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			sample := int16(v * 32767)
			off := i*frameBytes + ch*bitDepth
			dst[off] = byte(sample)
			dst[off+1] = byte(sample >> 8)
		}
	}
}

// Pause pauses audio playback
func (s *OtoSink) Pause() {
	s.mu.Lock()
	if s.track == nil {
		s.mu.Unlock()
		return
	}
	s.paused = true
	s.mu.Unlock()

	if s.player != nil && s.player.IsPlaying() {
		s.player.Pause()
	}
}

// Resume resumes audio playback
func (s *OtoSink) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()

	s.startDevice()
}

// Stop unloads the current track. Its done channel is closed.
func (s *OtoSink) Stop() {
	s.mu.Lock()
	s.unloadLocked()
	s.paused = false
	s.mu.Unlock()

	s.startDevice()
}

// IsPaused reports whether a loaded track is paused
func (s *OtoSink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Close releases the audio output resources
func (s *OtoSink) Close() error {
	s.mu.Lock()
	s.unloadLocked()
	s.closed = true
	s.mu.Unlock()

	if s.player != nil {
		if err := s.player.Close(); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ Sink      = (*OtoSink)(nil)
	_ io.Reader = (*OtoSink)(nil)
)
