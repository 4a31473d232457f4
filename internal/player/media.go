package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/altkeys/grapevined/internal/ipc"
	"github.com/altkeys/grapevined/internal/media"
)

const mediaCommandTimeout = 5 * time.Second

// MediaHandler turns OS media commands into ordinary control commands sent
// through a Dispatcher, so media keys go through the same path as clients.
type MediaHandler struct {
	dispatcher ipc.Dispatcher
	log        zerolog.Logger
}

// NewMediaHandler creates a media command handler
func NewMediaHandler(dispatcher ipc.Dispatcher, logger zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		dispatcher: dispatcher,
		log:        logger,
	}
}

// OnCommand implements media.CommandHandler
func (h *MediaHandler) OnCommand(cmd media.Command, data interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), mediaCommandTimeout)
	defer cancel()

	h.log.Info().Str("media_command", cmd.String()).Msg("media command received")

	var err error
	switch cmd {
	case media.CmdPlay:
		err = h.send(ctx, ipc.CmdResume)
	case media.CmdPause:
		err = h.send(ctx, ipc.CmdPause)
	case media.CmdPlayPause:
		err = h.togglePause(ctx)
	case media.CmdStop:
		err = h.send(ctx, ipc.CmdClear)
	case media.CmdNext:
		err = h.send(ctx, ipc.CmdSkip)
	case media.CmdSetLoopStatus:
		status, ok := data.(media.LoopStatus)
		if !ok {
			return fmt.Errorf("invalid loop status %v", data)
		}
		err = h.setLoopStatus(ctx, status)
	default:
		return fmt.Errorf("unsupported media command %s", cmd)
	}

	if err != nil {
		h.log.Warn().Err(err).Str("media_command", cmd.String()).Msg("media command failed")
	}
	return err
}

func (h *MediaHandler) send(ctx context.Context, kind ipc.CommandType) error {
	resp, err := h.dispatcher.Dispatch(ctx, ipc.NewCommand(kind))
	if err != nil {
		return err
	}
	if !resp.OK() {
		return errors.New(resp.ErrMsg)
	}
	return nil
}

func (h *MediaHandler) status(ctx context.Context) (Status, error) {
	resp, err := h.dispatcher.Dispatch(ctx, ipc.NewCommand(ipc.CmdStatus))
	if err != nil {
		return Status{}, err
	}
	if !resp.OK() {
		return Status{}, errors.New(resp.ErrMsg)
	}
	var st Status
	if err := json.Unmarshal(resp.Data, &st); err != nil {
		return Status{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return st, nil
}

func (h *MediaHandler) togglePause(ctx context.Context) error {
	st, err := h.status(ctx)
	if err != nil {
		return err
	}
	if st.State == Playing.String() {
		return h.send(ctx, ipc.CmdPause)
	}
	return h.send(ctx, ipc.CmdResume)
}

// setLoopStatus toggles the queue flags until they match status. Track
// leaves the loop-queue flag alone since loop-song already takes precedence.
func (h *MediaHandler) setLoopStatus(ctx context.Context, status media.LoopStatus) error {
	st, err := h.status(ctx)
	if err != nil {
		return err
	}

	wantSong, wantQueue := false, false
	switch status {
	case media.LoopTrack:
		wantSong, wantQueue = true, st.LoopQueue
	case media.LoopPlaylist:
		wantQueue = true
	case media.LoopNone:
	default:
		return fmt.Errorf("invalid loop status %q", status)
	}

	if st.LoopSong != wantSong {
		if err := h.send(ctx, ipc.CmdLoopSong); err != nil {
			return err
		}
	}
	if st.LoopQueue != wantQueue {
		if err := h.send(ctx, ipc.CmdLoopQueue); err != nil {
			return err
		}
	}
	return nil
}

var _ media.CommandHandler = (*MediaHandler)(nil)
