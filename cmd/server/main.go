// Command server runs the RTSP-like control listener and RTP-like
// media emitter described by the streaming protocol this repository
// implements.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mjpeg-rtsp-streamer/config"
	"mjpeg-rtsp-streamer/dashboard"
	"mjpeg-rtsp-streamer/frame"
	"mjpeg-rtsp-streamer/rtsp"
	"mjpeg-rtsp-streamer/session"
)

const defaultConfigPath = "config.toml"

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath, "path to configuration file")
		listenAddr = flag.String("listen", "", "override server.listen_addr")
		mediaDir   = flag.String("media-dir", "", "override server.media_dir")
	)
	flag.Parse()

	bootLogger, _ := zap.NewProduction()

	cfg, err := config.Load(*configPath, bootLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	bootLogger.Sync()

	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *mediaDir != "" {
		cfg.Server.MediaDir = *mediaDir
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("media_dir", cfg.Server.MediaDir))

	manager := session.NewManager(logger)
	openSource := func(filename string) (*frame.Source, error) {
		return frame.OpenSource(filepath.Join(cfg.Server.MediaDir, filename), logger)
	}

	server := rtsp.NewServer(manager, openSource, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx, cfg.Server.ListenAddr); err != nil {
		logger.Fatal("failed to start control server", zap.Error(err))
	}

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.NewServer(manager, time.Duration(cfg.Dashboard.BroadcastInterval)*time.Millisecond, logger)
		if err := dash.Start(cfg.Dashboard.ListenAddr); err != nil {
			logger.Fatal("failed to start dashboard", zap.Error(err))
		}
		logger.Info("dashboard started", zap.String("listen_addr", cfg.Dashboard.ListenAddr))
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if dash != nil {
		if err := dash.Stop(); err != nil {
			logger.Error("error stopping dashboard", zap.Error(err))
		}
	}

	stopped := make(chan error, 1)
	go func() { stopped <- server.Stop() }()

	grace := time.Duration(cfg.Server.ShutdownGrace) * time.Second
	select {
	case err := <-stopped:
		if err != nil {
			logger.Error("error stopping control server", zap.Error(err))
		}
	case <-time.After(grace):
		logger.Warn("shutdown grace period elapsed, exiting with connections still draining")
	}
	logger.Info("shutdown complete")
}
