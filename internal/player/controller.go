// Package player runs the control loop that owns the queue and the sink.
//
// All playback state lives on the goroutine running Controller.Run. Other
// goroutines reach it only by dispatching commands through the Dispatcher,
// each with a private reply channel.
package player

import (
	"context"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/altkeys/grapevined/internal/audio"
	"github.com/altkeys/grapevined/internal/ipc"
	"github.com/altkeys/grapevined/internal/media"
	"github.com/altkeys/grapevined/internal/queue"
)

// Reply texts for command-level failures
const (
	MsgNotPlaying         = "no song is currently playing"
	MsgAlreadyPaused      = "the current song is already paused"
	MsgQueueEmpty         = "the queue is empty"
	MsgPlaylistFailed     = "failed to process playlist"
	MsgVolumeUnsupported  = "volume control is not supported"
	MsgUnknownCommand     = "unknown command"
	missingPayloadMessage = " is missing its payload"
)

// DefaultTickInterval is used when Config.TickInterval is not set
const DefaultTickInterval = 250 * time.Millisecond

// Config contains control loop settings
type Config struct {
	// TickInterval bounds how long a queued track waits to start after a
	// failed open
	TickInterval time.Duration

	// Queue is the queue the loop takes ownership of. Nil creates an
	// empty one.
	Queue *queue.Queue
}

// followUp is work the loop does after a reply has been sent
type followUp int

const (
	followNone followUp = iota
	followStart
	followExit
)

// Controller is the player control loop
type Controller struct {
	cfg        Config
	log        zerolog.Logger
	sink       audio.Sink
	session    media.Session
	queue      *queue.Queue
	requests   chan ipc.Request
	finished   chan uint64
	done       chan struct{}
	dispatcher *ipc.ChannelDispatcher
	describe   func(path string) audio.TrackInfo

	started    time.Time
	state      State
	generation uint64
	current    string
	info       audio.TrackInfo
	published  published
}

// New creates a controller. A nil session disables media session updates.
func New(cfg Config, sink audio.Sink, session media.Session, logger zerolog.Logger) *Controller {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if session == nil {
		session = media.NewNoOpSession()
	}
	q := cfg.Queue
	if q == nil {
		q = queue.New()
	}

	requests := make(chan ipc.Request)
	done := make(chan struct{})

	return &Controller{
		cfg:        cfg,
		log:        logger,
		sink:       sink,
		session:    session,
		queue:      q,
		requests:   requests,
		finished:   make(chan uint64),
		done:       done,
		dispatcher: ipc.NewChannelDispatcher(requests, done),
		describe:   audio.DescribeTrack,
		state:      Idle,
		published: published{
			state: media.StateStopped,
			loop:  media.LoopNone,
		},
	}
}

// Dispatcher returns the dispatcher feeding this controller
func (c *Controller) Dispatcher() *ipc.ChannelDispatcher {
	return c.dispatcher
}

// Done is closed once Run has returned
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Run processes commands and playback events until SHUTDOWN is received or
// ctx is cancelled. It must be called at most once.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.started = time.Now()
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.log.Info().Dur("tick", c.cfg.TickInterval).Msg("control loop started")

	for {
		// Commands take priority over playback events.
		select {
		case req := <-c.requests:
			if c.handle(req) {
				c.log.Info().Msg("control loop stopped by shutdown")
				return nil
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			c.clear()
			c.log.Info().Msg("control loop stopped")
			return nil
		case req := <-c.requests:
			if c.handle(req) {
				c.log.Info().Msg("control loop stopped by shutdown")
				return nil
			}
		case gen := <-c.finished:
			c.trackFinished(gen)
		case <-ticker.C:
			c.tryStart()
		}
	}
}

// handle executes one command, replies, then runs its follow-up. It
// reports whether the loop must exit.
func (c *Controller) handle(req ipc.Request) bool {
	resp, next := c.execute(req.Command)
	req.Reply <- resp

	if next == followStart {
		c.tryStart()
	}
	c.publish()
	return next == followExit
}

func (c *Controller) execute(cmd ipc.Command) (ipc.Response, followUp) {
	if !cmd.ValidatePayload() {
		return ipc.NewErrorResponse(string(cmd.Command) + missingPayloadMessage), followNone
	}

	switch cmd.Command {
	case ipc.CmdPause:
		switch c.state {
		case Idle:
			return ipc.NewErrorResponse(MsgNotPlaying), followNone
		case Paused:
			return ipc.NewErrorResponse(MsgAlreadyPaused), followNone
		}
		c.sink.Pause()
		c.state = Paused
		return ipc.NewOKResponse(), followNone

	case ipc.CmdResume:
		if c.state == Paused {
			c.sink.Resume()
			c.state = Playing
		}
		return ipc.NewOKResponse(), followNone

	case ipc.CmdSkip:
		if c.state == Idle {
			return ipc.NewErrorResponse(MsgNotPlaying), followNone
		}
		// The finished event from the stopped track advances the queue.
		c.sink.Stop()
		return ipc.NewOKResponse(), followNone

	case ipc.CmdClear:
		c.clear()
		return ipc.NewOKResponse(), followNone

	case ipc.CmdLoopSong:
		if c.state == Idle {
			return ipc.NewErrorResponse(MsgNotPlaying), followNone
		}
		c.queue.LoopSong()
		c.log.Info().Bool("loop_song", c.queue.LoopingSong()).Msg("loop song toggled")
		return ipc.NewOKResponse(), followNone

	case ipc.CmdLoopQueue:
		if c.queue.IsEmpty() {
			return ipc.NewErrorResponse(MsgQueueEmpty), followNone
		}
		c.queue.LoopQueue()
		c.log.Info().Bool("loop_queue", c.queue.LoopingQueue()).Msg("loop queue toggled")
		return ipc.NewOKResponse(), followNone

	case ipc.CmdAddQueue:
		path := cmd.PayloadValue()
		c.queue.Append(path)
		c.log.Info().Str("path", path).Int("queue_length", c.queue.Len()).Msg("track queued")
		return ipc.NewOKResponse(), followStart

	case ipc.CmdAddPlaylist:
		return c.loadPlaylist(cmd.PayloadValue())

	case ipc.CmdShutdown:
		c.clear()
		return ipc.NewOKResponse(), followExit

	case ipc.CmdSetVolume:
		return ipc.NewErrorResponse(MsgVolumeUnsupported), followNone

	case ipc.CmdStatus:
		resp, err := ipc.NewSuccessResponse(c.status())
		if err != nil {
			c.log.Error().Err(err).Msg("failed to encode status")
			return ipc.NewErrorResponse("failed to encode status"), followNone
		}
		return resp, followNone
	}

	return ipc.NewErrorResponse(MsgUnknownCommand), followNone
}

func (c *Controller) loadPlaylist(path string) (ipc.Response, followUp) {
	c.clear()

	n, err := c.queue.LoadPlaylist(path)
	if err != nil {
		c.log.Warn().Err(err).Str("playlist", path).Msg("failed to load playlist")
		c.queue.Clear()
		return ipc.NewErrorResponse(MsgPlaylistFailed), followNone
	}

	c.log.Info().Str("playlist", path).Int("tracks", n).Msg("playlist loaded")
	return ipc.NewOKResponse(), followStart
}

// clear empties the queue and stops playback. Any finished event still in
// flight for the stopped track becomes stale.
func (c *Controller) clear() {
	c.queue.Clear()
	if c.state == Idle {
		return
	}
	c.generation++
	c.sink.Stop()
	c.setIdle()
}

func (c *Controller) setIdle() {
	c.state = Idle
	c.current = ""
	c.info = audio.TrackInfo{}
}

// tryStart opens the head of the queue when nothing is loaded. A track that
// fails to open is dropped and the next one waits for the following tick.
func (c *Controller) tryStart() {
	if c.state != Idle {
		return
	}
	path, ok := c.queue.Peek()
	if !ok {
		return
	}

	done, err := c.sink.Play(path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("failed to open track, dropping it")
		c.queue.RemoveCurrent()
		return
	}

	c.generation++
	c.state = Playing
	c.current = path
	c.info = c.describe(path)
	go c.watch(done, c.generation)

	c.log.Info().
		Str("path", path).
		Str("title", c.info.Title).
		Uint64("generation", c.generation).
		Msg("track started")
	c.publish()
}

// watch forwards the end of a track to the loop
func (c *Controller) watch(trackDone <-chan struct{}, gen uint64) {
	select {
	case <-trackDone:
	case <-c.done:
		return
	}
	select {
	case c.finished <- gen:
	case <-c.done:
	}
}

func (c *Controller) trackFinished(gen uint64) {
	if gen != c.generation || c.state == Idle {
		c.log.Debug().Uint64("generation", gen).Msg("ignoring stale track event")
		return
	}

	c.log.Info().Str("path", c.current).Msg("track finished")
	c.setIdle()
	c.queue.MoveNext()
	c.tryStart()
	c.publish()
}

func (c *Controller) status() Status {
	now := time.Now()
	st := Status{
		State:         c.state.String(),
		Current:       c.current,
		QueueLength:   c.queue.Len(),
		LoopSong:      c.queue.LoopingSong(),
		LoopQueue:     c.queue.LoopingQueue(),
		Uptime:        strings.TrimSpace(humanize.RelTime(c.started, now, "", "")),
		UptimeSeconds: int64(now.Sub(c.started) / time.Second),
	}
	if c.state != Idle {
		info := c.info
		st.Track = &info
	}
	return st
}

// publish pushes changed state to the media session
func (c *Controller) publish() {
	next := published{
		state: c.state.mediaState(),
		meta: media.Metadata{
			Path:   c.info.Path,
			Title:  c.info.Title,
			Artist: c.info.Artist,
			Album:  c.info.Album,
		},
		loop: loopStatus(c.queue.Repeat()),
	}

	if next.meta != c.published.meta {
		if err := c.session.UpdateMetadata(next.meta); err != nil {
			c.log.Debug().Err(err).Msg("failed to update media metadata")
		}
	}
	if next.state != c.published.state {
		if err := c.session.UpdatePlaybackState(next.state); err != nil {
			c.log.Debug().Err(err).Msg("failed to update media playback state")
		}
	}
	if next.loop != c.published.loop {
		if err := c.session.UpdateLoopStatus(next.loop); err != nil {
			c.log.Debug().Err(err).Msg("failed to update media loop status")
		}
	}
	c.published = next
}
