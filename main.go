package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"github.com/utilitywarehouse/index-mirror/mirror"
)

const shutdownGracePeriod = 30 * time.Second

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Sources: cli.EnvVars("INDEX_MIRROR_CONFIG"),
			Value:   "/etc/index-mirror/config.yaml",
			Usage:   "Absolute path to the config file.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   "info",
			Usage:   "Log level",
		},
	}
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

func main() {
	cmd := &cli.Command{
		Name:   "index-mirror",
		Usage:  "index-mirror keeps a local mirror of a registry index repository and serves it as static files.",
		Flags:  flags,
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("failed to run app", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	// set log level according to argument
	if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
		loggerLevel.Set(v)
	}

	conf, err := parseConfigFile(c.String("config"))
	if err != nil {
		logger.Error("unable to parse index-mirror config file", "err", err)
		os.Exit(1)
	}

	repo, err := mirror.New(conf.Repo, logger.With("logger", "mirror"))
	if err != nil {
		logger.Error("could not create mirror repository", "err", err)
		os.Exit(1)
	}

	// the mirror directory must exist before serving starts, a failed
	// clone must not leave the server running on a missing tree
	if err := repo.Initialize(ctx); err != nil {
		logger.Error("unable to initialise mirror", "err", err)
		os.Exit(1)
	}

	if conf.Web.MetricsAddress != "" {
		mirror.EnableMetrics("index_mirror", prometheus.DefaultRegisterer)
		if err := startMetricsServer(conf.Web.MetricsAddress, logger.With("logger", "metrics")); err != nil {
			logger.Error("unable to start metrics endpoint", "err", err)
			os.Exit(1)
		}
	}

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()

	// start sync loop
	go repo.StartLoop(loopCtx)

	srv := newStaticServer(conf.Web, repo.Directory(), logger.With("logger", "webserver"))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.start()
	}()

	// listenForShutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var serverFailed error

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("web server terminated", "err", err)
			serverFailed = err
		} else {
			logger.Info("web server stopped")
		}
	case sig := <-stop:
		logger.Info("received signal, shutting down", "signal", sig.String())

		sdCtx, sdCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		if err := srv.shutdown(sdCtx); err != nil {
			logger.Error("web server shutdown failed", "err", err)
		}
		sdCancel()
	}

	// stop the sync loop, an in-flight sync is allowed to finish or
	// fail on its own
	cancelLoop()
	select {
	case <-repo.Stopped():
	case <-time.After(shutdownGracePeriod):
		logger.Error("timed out waiting for sync loop to stop")
	}

	if serverFailed != nil {
		return fmt.Errorf("web server failed err:%w", serverFailed)
	}

	logger.Info("graceful shutdown complete")
	return nil
}
