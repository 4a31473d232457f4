// Package main is the entry point for grapevine-gateway, an HTTP and
// websocket front end for a running grapevined.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/altkeys/grapevined/internal/client"
	"github.com/altkeys/grapevined/internal/config"
	"github.com/altkeys/grapevined/internal/gateway"
	"github.com/altkeys/grapevined/internal/logging"
)

type options struct {
	configPath string
	listen     string
	daemon     string
	verbose    bool
}

func main() {
	var opts options
	flag.StringVarP(&opts.configPath, "config", "c", "", "Path to a config file")
	flag.StringVar(&opts.listen, "listen", "", "HTTP listen address (default: gateway.listen)")
	flag.StringVar(&opts.daemon, "daemon", "", "Daemon address, skipping port discovery")
	flag.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level to stderr as well")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "grapevine-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.listen != "" {
		cfg.Gateway.Listen = opts.listen
	}
	if opts.daemon != "" {
		cfg.Gateway.DaemonAddr = opts.daemon
	}

	logger, logCloser, err := logging.New(cfg.Log, "grapevine-gateway", opts.verbose)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	log := logging.Component(logger, logging.ComponentGateway)

	addr, err := client.Resolve(ctx, cfg.Server, cfg.Gateway.DaemonAddr)
	if err != nil {
		// The daemon may come up later; use the first port of the range.
		addr = cfg.Server.ListenAddrs()[0]
		log.Warn().Err(err).Str("daemon", addr).Msg("daemon not found, using default address")
	}
	log.Info().Str("daemon", addr).Msg("forwarding to daemon")

	gw := gateway.New(client.New(addr, cfg.Gateway.Timeout), addr, cfg.Gateway.Timeout, log)
	fmt.Fprintf(os.Stderr, "HTTP gateway on http://%s\n", cfg.Gateway.Listen)
	return gw.ListenAndServe(ctx, cfg.Gateway.Listen)
}
