package player

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/altkeys/grapevined/internal/audio"
	"github.com/altkeys/grapevined/internal/ipc"
	"github.com/altkeys/grapevined/internal/media"
)

const testTick = 10 * time.Millisecond

type fakeTrack struct {
	path   string
	done   chan struct{}
	closed bool
}

func (t *fakeTrack) end() {
	if !t.closed {
		t.closed = true
		close(t.done)
	}
}

// fakeSink records calls and lets the test end tracks on demand
type fakeSink struct {
	mu      sync.Mutex
	played  []string
	started map[string]time.Time
	fail    map[string]error
	current *fakeTrack
	paused  bool
	stops   int
}

func newFakeSink() *fakeSink {
	return &fakeSink{fail: make(map[string]error), started: make(map[string]time.Time)}
}

func (s *fakeSink) Play(path string) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail[path]; err != nil {
		return nil, err
	}
	if s.current != nil {
		s.current.end()
	}
	s.played = append(s.played, path)
	s.started[path] = time.Now()
	s.current = &fakeTrack{path: path, done: make(chan struct{})}
	s.paused = false
	return s.current.done, nil
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.paused = true
	}
}

func (s *fakeSink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.paused = false
	if s.current != nil {
		s.current.end()
		s.current = nil
	}
}

func (s *fakeSink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *fakeSink) Close() error { return nil }

// Finish plays out the current track
func (s *fakeSink) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.end()
		s.current = nil
	}
}

func (s *fakeSink) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}

// StartedAt returns when path was last started
func (s *fakeSink) StartedAt(path string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.started[path]
	return at, ok
}

func (s *fakeSink) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

var _ audio.Sink = (*fakeSink)(nil)

// fakeSession records what the loop publishes
type fakeSession struct {
	media.NoOpSession
	mu     sync.Mutex
	states []media.PlaybackState
	metas  []media.Metadata
	loops  []media.LoopStatus
}

func (s *fakeSession) UpdateMetadata(m media.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas = append(s.metas, m)
	return nil
}

func (s *fakeSession) UpdatePlaybackState(state media.PlaybackState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
	return nil
}

func (s *fakeSession) UpdateLoopStatus(status media.LoopStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loops = append(s.loops, status)
	return errors.New("bus gone")
}

func (s *fakeSession) snapshot() ([]media.PlaybackState, []media.Metadata, []media.LoopStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]media.PlaybackState(nil), s.states...),
		append([]media.Metadata(nil), s.metas...),
		append([]media.LoopStatus(nil), s.loops...)
}

type harness struct {
	t      *testing.T
	c      *Controller
	sink   *fakeSink
	cancel context.CancelFunc
	errCh  chan error
}

func newHarness(t *testing.T, session media.Session) *harness {
	t.Helper()
	sink := newFakeSink()
	c := New(Config{TickInterval: testTick}, sink, session, zerolog.Nop())
	c.describe = func(path string) audio.TrackInfo {
		return audio.TrackInfo{Path: path, Title: filepath.Base(path)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, c: c, sink: sink, cancel: cancel, errCh: make(chan error, 1)}
	go func() { h.errCh <- c.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-c.Done():
		case <-time.After(2 * time.Second):
			t.Error("control loop did not stop")
		}
	})
	return h
}

func (h *harness) send(kind ipc.CommandType, payload ...string) ipc.Response {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := h.c.Dispatcher().Dispatch(ctx, ipc.NewCommand(kind, payload...))
	require.NoError(h.t, err)
	return resp
}

func (h *harness) status() Status {
	h.t.Helper()
	resp := h.send(ipc.CmdStatus)
	require.True(h.t, resp.OK(), resp.ErrMsg)
	var st Status
	require.NoError(h.t, json.Unmarshal(resp.Data, &st))
	return st
}

// eventually waits until the loop reports a state matching cond
func (h *harness) eventually(cond func(Status) bool, msg string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return cond(h.status()) }, 2*time.Second, testTick/2, msg)
}

func writePlaylist(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
