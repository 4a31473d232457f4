// Package main is the entry point for the grapevined daemon.
// grapevined is a background audio player controlled over a local TCP port
// with newline-delimited JSON commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/altkeys/grapevined/internal/audio"
	"github.com/altkeys/grapevined/internal/config"
	"github.com/altkeys/grapevined/internal/ipc"
	"github.com/altkeys/grapevined/internal/logging"
	"github.com/altkeys/grapevined/internal/media"
	"github.com/altkeys/grapevined/internal/player"
	"github.com/altkeys/grapevined/internal/queue"
)

// Version is set at build time via ldflags
var Version = "dev"

type options struct {
	configPath string
	verbose    bool
	portMin    int
	portMax    int
	noMPRIS    bool
}

func main() {
	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "grapevined: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVarP(&opts.configPath, "config", "c", "", "Path to a config file (default: $XDG_CONFIG_HOME/grapevined/config.toml)")
	flag.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level to stderr as well as the log file")
	flag.IntVar(&opts.portMin, "port-min", 0, "Lowest control port to try")
	flag.IntVar(&opts.portMax, "port-max", 0, "Highest control port to try")
	flag.BoolVar(&opts.noMPRIS, "no-mpris", false, "Disable the MPRIS media session")
	flag.Parse()
	return opts
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.portMin > 0 {
		cfg.Server.PortMin = opts.portMin
	}
	if opts.portMax > 0 {
		cfg.Server.PortMax = opts.portMax
	}
	if opts.noMPRIS {
		cfg.Media.MPRIS = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Log, "grapevined", opts.verbose)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	logger.Info().Str("version", Version).Msg("grapevined starting")

	sink, err := audio.NewOtoSink(cfg.Audio, logging.Component(logger, logging.ComponentAudio))
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize audio output")
		return fmt.Errorf("failed to initialize audio output: %w", err)
	}
	defer sink.Close()

	mediaLog := logging.Component(logger, logging.ComponentMedia)
	session := newMediaSession(cfg.Media, mediaLog)
	defer session.Close()

	ctrl := player.New(
		player.Config{
			TickInterval: cfg.Player.TickInterval,
			Queue:        queue.NewWithLogger(logging.Component(logger, logging.ComponentQueue)),
		},
		sink,
		session,
		logging.Component(logger, logging.ComponentPlayer),
	)
	session.SetCommandHandler(player.NewMediaHandler(ctrl.Dispatcher(), mediaLog))

	server := ipc.NewServer(cfg.Server, ctrl.Dispatcher(), logging.Component(logger, logging.ComponentIPC))
	if err := server.Bind(); err != nil {
		logger.Error().Err(err).Msg("failed to bind control port")
		return err
	}
	fmt.Fprintf(os.Stderr, "grapevined listening on %s\n", server.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctrl.Run(gctx); err != nil {
			return err
		}
		// SHUTDOWN ends the loop; take the listener down with it.
		return errShutdown
	})
	g.Go(func() error {
		return server.Serve(gctx)
	})

	err = g.Wait()
	server.Wait()
	if errors.Is(err, errShutdown) {
		err = nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("daemon stopped with error")
		return err
	}
	logger.Info().Msg("grapevined stopped")
	return nil
}

var errShutdown = errors.New("control loop stopped")

func newMediaSession(cfg config.MediaConfig, log zerolog.Logger) media.Session {
	if !cfg.MPRIS {
		log.Info().Msg("media session disabled")
		return media.NewNoOpSession()
	}
	session, err := media.NewSession()
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize media session, continuing without OS media integration")
		return media.NewNoOpSession()
	}
	log.Info().Msg("media session initialized")
	return session
}
