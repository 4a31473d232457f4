// Package gateway exposes the daemon's control protocol over HTTP and a
// websocket so browser clients can drive it.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/altkeys/grapevined/internal/ipc"
)

// MsgDaemonUnreachable is the errmsg returned when a request never got a
// reply from the daemon
const MsgDaemonUnreachable = "gateway failed to reach daemon"

const maxBodyBytes = 64 << 10

// Sender delivers one command to the daemon
type Sender interface {
	Send(ctx context.Context, cmd ipc.Command) (ipc.Response, error)
}

// Response is the JSON shape returned to HTTP and websocket clients
type Response struct {
	Status string          `json:"status"`
	ErrMsg string          `json:"errmsg,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func fromIPC(resp ipc.Response) Response {
	return Response{
		Status: string(resp.Status),
		ErrMsg: resp.ErrMsg,
		Data:   resp.Data,
	}
}

func unreachable() Response {
	return Response{Status: string(ipc.StatusErr), ErrMsg: MsgDaemonUnreachable}
}

type pathBody struct {
	Path string `json:"path"`
}

// Gateway routes HTTP requests to the daemon
type Gateway struct {
	sender     Sender
	daemonAddr string
	timeout    time.Duration
	log        zerolog.Logger
	mux        *http.ServeMux
}

// New creates a gateway forwarding to sender. daemonAddr is only reported
// by /api/ping.
func New(sender Sender, daemonAddr string, timeout time.Duration, logger zerolog.Logger) *Gateway {
	g := &Gateway{
		sender:     sender,
		daemonAddr: daemonAddr,
		timeout:    timeout,
		log:        logger,
		mux:        http.NewServeMux(),
	}
	g.routes()
	return g
}

func (g *Gateway) routes() {
	g.mux.HandleFunc("GET /api/ping", g.handlePing)
	g.mux.HandleFunc("GET /api/status", g.simple(ipc.CmdStatus))
	g.mux.HandleFunc("POST /api/skip", g.simple(ipc.CmdSkip))
	g.mux.HandleFunc("POST /api/clear", g.simple(ipc.CmdClear))
	g.mux.HandleFunc("POST /api/pause", g.simple(ipc.CmdPause))
	g.mux.HandleFunc("POST /api/resume", g.simple(ipc.CmdResume))
	g.mux.HandleFunc("POST /api/shutdown", g.simple(ipc.CmdShutdown))
	g.mux.HandleFunc("POST /api/loop/song", g.simple(ipc.CmdLoopSong))
	g.mux.HandleFunc("POST /api/loop/queue", g.simple(ipc.CmdLoopQueue))
	g.mux.HandleFunc("POST /api/queue", g.withPath(ipc.CmdAddQueue))
	g.mux.HandleFunc("POST /api/playlist", g.withPath(ipc.CmdAddPlaylist))
	g.mux.HandleFunc("GET /api/ws", g.handleWebsocket)
}

// ServeHTTP applies CORS headers and dispatches to the routes
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST")
	h.Set("Access-Control-Allow-Headers", "*")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	g.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled
func (g *Gateway) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return g.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled
func (g *Gateway) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           g,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		g.log.Info().Str("addr", listener.Addr().String()).Msg("gateway listening")
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) handlePing(w http.ResponseWriter, _ *http.Request) {
	data, _ := json.Marshal(map[string]string{"daemon": g.daemonAddr})
	writeJSON(w, http.StatusOK, Response{Status: string(ipc.StatusOK), Data: data})
}

func (g *Gateway) simple(kind ipc.CommandType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, g.forward(r.Context(), ipc.NewCommand(kind)))
	}
}

func (g *Gateway) withPath(kind ipc.CommandType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body pathBody
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		if err := dec.Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{
				Status: string(ipc.StatusErr),
				ErrMsg: "request body must be {\"path\": \"...\"}",
			})
			return
		}
		writeJSON(w, http.StatusOK, g.forward(r.Context(), ipc.NewCommand(kind, body.Path)))
	}
}

// forward sends cmd to the daemon. Transport failures become the
// unreachable reply; command failures pass through unchanged.
func (g *Gateway) forward(ctx context.Context, cmd ipc.Command) Response {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.sender.Send(ctx, cmd)
	if err != nil {
		g.log.Warn().Err(err).Str("command", string(cmd.Command)).Msg("daemon request failed")
		return unreachable()
	}

	g.log.Debug().
		Str("command", string(cmd.Command)).
		Str("status", string(resp.Status)).
		Dur("duration", time.Since(start)).
		Msg("daemon request")
	return fromIPC(resp)
}

// handleWebsocket bridges text frames: each inbound frame is a command in
// the daemon's wire format, each outbound frame the gateway response.
func (g *Gateway) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		g.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx := r.Context()
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				g.log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "text frames only")
			return
		}

		var resp Response
		cmd, err := ipc.DecodeRequest(msg)
		if err != nil {
			resp = Response{Status: string(ipc.StatusErr), ErrMsg: err.Error()}
		} else {
			resp = g.forward(ctx, cmd)
		}

		out, err := json.Marshal(resp)
		if err != nil {
			g.log.Error().Err(err).Msg("failed to encode websocket reply")
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			g.log.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
