// Package client talks to a running grapevined over its control port.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/altkeys/grapevined/internal/config"
	"github.com/altkeys/grapevined/internal/ipc"
)

// EnvAddr names the environment variable that overrides daemon discovery
const EnvAddr = "GRAPEVINED_ADDR"

// DefaultTimeout bounds a single request when no other deadline applies
const DefaultTimeout = 3 * time.Second

// ErrDaemonNotFound is returned when no port in the range accepts a
// connection
var ErrDaemonNotFound = errors.New("grapevined not found")

// Client sends one command per connection to a daemon address
type Client struct {
	addr    string
	timeout time.Duration
}

// New creates a client for addr. A zero timeout uses DefaultTimeout.
func New(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{addr: addr, timeout: timeout}
}

// Addr returns the daemon address
func (c *Client) Addr() string {
	return c.addr
}

// Send writes cmd and waits for the single reply line
func (c *Client) Send(ctx context.Context, cmd ipc.Command) (ipc.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return ipc.Response{}, err
		}
	}

	data, err := ipc.EncodeRequest(cmd)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return ipc.Response{}, fmt.Errorf("failed to send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return ipc.Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	if len(line) == 0 {
		return ipc.Response{}, fmt.Errorf("failed to read response: %w", io.ErrUnexpectedEOF)
	}

	resp, err := ipc.DecodeResponse(line)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}

// Resolve picks the daemon address: override when set, then the
// GRAPEVINED_ADDR environment variable, then the first listening port in
// the configured range.
func Resolve(ctx context.Context, cfg config.ServerConfig, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if addr := os.Getenv(EnvAddr); addr != "" {
		return addr, nil
	}
	return Discover(ctx, cfg)
}

// Discover probes the configured port range in order and returns the first
// address that accepts a connection
func Discover(ctx context.Context, cfg config.ServerConfig) (string, error) {
	d := net.Dialer{Timeout: 200 * time.Millisecond}
	for _, addr := range cfg.ListenAddrs() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			continue
		}
		conn.Close()
		return addr, nil
	}
	return "", fmt.Errorf("%w on %s ports %d-%d", ErrDaemonNotFound, cfg.Host, cfg.PortMin, cfg.PortMax)
}
