package ipc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelDispatcherRoundTrip(t *testing.T) {
	requests := make(chan Request)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for req := range requests {
			req.Reply <- NewErrorResponse(string(req.Command.Command))
		}
	}()
	defer close(requests)

	d := NewChannelDispatcher(requests, done)
	resp, err := d.Dispatch(context.Background(), NewCommand(CmdPause))

	require.NoError(t, err)
	assert.Equal(t, "PAUSE", resp.ErrMsg)
}

func TestChannelDispatcherConcurrentProducers(t *testing.T) {
	requests := make(chan Request)
	done := make(chan struct{})
	defer close(done)

	// Single consumer echoing the payload back.
	go func() {
		for req := range requests {
			req.Reply <- NewErrorResponse(req.Command.PayloadValue())
		}
	}()
	defer close(requests)

	d := NewChannelDispatcher(requests, done)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := string(rune('A' + i%26))
			resp, err := d.Dispatch(context.Background(), NewCommand(CmdAddQueue, payload))
			assert.NoError(t, err)
			assert.Equal(t, payload, resp.ErrMsg, "each producer gets its own reply")
		}(i)
	}
	wg.Wait()
}

func TestChannelDispatcherClosed(t *testing.T) {
	done := make(chan struct{})
	close(done)

	d := NewChannelDispatcher(make(chan Request), done)
	_, err := d.Dispatch(context.Background(), NewCommand(CmdSkip))

	assert.True(t, errors.Is(err, ErrDispatchClosed))
}

func TestChannelDispatcherHandOffCancelled(t *testing.T) {
	d := NewChannelDispatcher(make(chan Request), make(chan struct{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Dispatch(ctx, NewCommand(CmdSkip))

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestChannelDispatcherConsumerExitsWithoutReply(t *testing.T) {
	requests := make(chan Request)
	done := make(chan struct{})

	go func() {
		<-requests
		close(done)
	}()

	d := NewChannelDispatcher(requests, done)
	_, err := d.Dispatch(context.Background(), NewCommand(CmdSkip))

	assert.True(t, errors.Is(err, ErrNoResponse))
}

func TestChannelDispatcherReplyBeforeExit(t *testing.T) {
	requests := make(chan Request)
	done := make(chan struct{})

	go func() {
		req := <-requests
		req.Reply <- NewOKResponse()
		close(done)
	}()

	d := NewChannelDispatcher(requests, done)
	resp, err := d.Dispatch(context.Background(), NewCommand(CmdShutdown))

	require.NoError(t, err)
	assert.True(t, resp.OK())
}
