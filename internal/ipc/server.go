package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/altkeys/grapevined/internal/config"
)

var (
	// ErrNoPortAvailable is returned when no port in the configured range
	// could be bound.
	ErrNoPortAvailable = errors.New("no port available in range")

	// ErrMessageTooLarge is returned when a request exceeds the configured
	// maximum size.
	ErrMessageTooLarge = errors.New("message too large")
)

// Reply texts synthesized by the connection handler when the control loop
// cannot answer.
const (
	MsgDispatchFailure = "internal dispatch failure"
	MsgNoResponse      = "music thread failed to return a response"
)

// Server accepts control connections and forwards each request to a
// Dispatcher
type Server struct {
	cfg        config.ServerConfig
	dispatcher Dispatcher
	log        zerolog.Logger
	listener   net.Listener
	active     atomic.Int32
	wg         sync.WaitGroup
}

// NewServer creates a new control server
func NewServer(cfg config.ServerConfig, dispatcher Dispatcher, logger zerolog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        logger,
	}
}

// Bind listens on the first free port of the configured range
func (s *Server) Bind() error {
	var lastErr error
	for _, addr := range s.cfg.ListenAddrs() {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			s.log.Debug().Str("addr", addr).Err(err).Msg("port unavailable")
			lastErr = err
			continue
		}
		s.listener = listener
		s.log.Info().Str("addr", listener.Addr().String()).Msg("control listener bound")
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("%w %d-%d: %w", ErrNoPortAvailable, s.cfg.PortMin, s.cfg.PortMax, lastErr)
	}
	return fmt.Errorf("%w %d-%d", ErrNoPortAvailable, s.cfg.PortMin, s.cfg.PortMax)
}

// Addr returns the bound address, or nil before Bind
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled. Each connection is
// handled on its own goroutine; connections still in flight when Serve
// returns are left to finish.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Bind(); err != nil {
			return err
		}
	}

	stop := context.AfterFunc(ctx, func() {
		s.listener.Close()
	})
	defer stop()

	s.log.Info().Msg("server listening, waiting for connections")

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("listener stopped")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept error")
			continue
		}

		active := s.active.Add(1)
		s.log.Debug().Str("remote", conn.RemoteAddr().String()).Int32("active", active).Msg("new client connection")

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// Wait blocks until every accepted connection has been handled
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	log := s.log.With().
		Str("request_id", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	defer func() {
		conn.Close()
		s.active.Add(-1)
		s.wg.Done()
	}()

	line, err := readMessage(conn, s.cfg.MaxMessageBytes)
	if err != nil {
		log.Warn().Err(err).Msg("read error")
		return
	}

	cmd, err := DecodeRequest(line)
	if err != nil {
		log.Warn().Err(err).Str("raw", truncateForLog(string(line), 128)).Msg("invalid request")
		return
	}

	start := time.Now()
	RequestLogger(log, cmd)

	resp, err := s.dispatcher.Dispatch(ctx, cmd)
	switch {
	case errors.Is(err, ErrNoResponse):
		log.Error().Err(err).Msg("control loop exited before replying")
		resp = NewErrorResponse(MsgNoResponse)
	case err != nil:
		log.Error().Err(err).Msg("dispatch failed")
		resp = NewErrorResponse(MsgDispatchFailure)
	}

	ResponseLogger(log, cmd, resp, time.Since(start))

	if err := sendResponse(conn, resp); err != nil {
		log.Warn().Err(err).Msg("send error")
	}
}

// readMessage reads one JSON request of at most max bytes. The request ends
// at a newline, at EOF, or as soon as the JSON value is complete, so clients
// that send a single value without a newline and keep the connection open
// are answered too.
func readMessage(r io.Reader, max int) ([]byte, error) {
	line := &lineReader{r: bufio.NewReader(io.LimitReader(r, int64(max)+1))}

	var raw json.RawMessage
	err := json.NewDecoder(line).Decode(&raw)
	switch {
	case line.size > max || len(raw) > max:
		return nil, fmt.Errorf("%w: limit %d bytes", ErrMessageTooLarge, max)
	case errors.Is(err, io.EOF):
		return nil, io.ErrUnexpectedEOF
	case err != nil:
		return nil, err
	}
	return raw, nil
}

// lineReader passes bytes through up to and including the first newline,
// then reports EOF. It never blocks once it has bytes to return.
type lineReader struct {
	r    *bufio.Reader
	done bool
	size int // bytes read, excluding the newline
}

func (l *lineReader) Read(p []byte) (int, error) {
	if l.done {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) {
		b, err := l.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		p[n] = b
		n++
		if b == '\n' {
			l.done = true
			break
		}
		l.size++
		if l.r.Buffered() == 0 {
			break
		}
	}
	return n, nil
}

func sendResponse(w io.Writer, resp Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
