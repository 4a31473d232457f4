package ipc

import (
	"context"
	"errors"
)

var (
	// ErrDispatchClosed is returned when a command is handed off after the
	// control loop stopped receiving.
	ErrDispatchClosed = errors.New("dispatch closed")

	// ErrNoResponse is returned when the control loop exited without
	// answering an accepted command.
	ErrNoResponse = errors.New("no response from control loop")
)

// Request pairs a command with the private channel its response is sent on.
// Reply always has room for exactly one response.
type Request struct {
	Command Command
	Reply   chan<- Response
}

// Dispatcher hands commands to whatever owns the player state
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) (Response, error)
}

// ChannelDispatcher sends requests over a channel to a single consumer and
// waits for the reply. It is safe for concurrent use by many producers.
type ChannelDispatcher struct {
	requests chan<- Request
	done     <-chan struct{}
}

// NewChannelDispatcher creates a dispatcher feeding requests. done must be
// closed when the consumer stops receiving.
func NewChannelDispatcher(requests chan<- Request, done <-chan struct{}) *ChannelDispatcher {
	return &ChannelDispatcher{
		requests: requests,
		done:     done,
	}
}

// Dispatch sends cmd and blocks until the consumer replies. ctx only bounds
// the hand-off; once the consumer accepted the request Dispatch waits for
// its answer or for the consumer to exit.
func (d *ChannelDispatcher) Dispatch(ctx context.Context, cmd Command) (Response, error) {
	reply := make(chan Response, 1)

	select {
	case <-d.done:
		return Response{}, ErrDispatchClosed
	default:
	}

	select {
	case d.requests <- Request{Command: cmd, Reply: reply}:
	case <-d.done:
		return Response{}, ErrDispatchClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-d.done:
		// The consumer may have answered right before exiting.
		select {
		case resp := <-reply:
			return resp, nil
		default:
			return Response{}, ErrNoResponse
		}
	}
}
