// Command client dials a server, runs the SETUP/PLAY control sequence,
// and renders delivered frames to a cache file for inspection.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mjpeg-rtsp-streamer/client"
	"mjpeg-rtsp-streamer/config"
)

const defaultConfigPath = "config.toml"

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath, "path to configuration file")
		serverAddr = flag.String("server", "", "override client.server_addr")
		filename   = flag.String("file", "", "override client.filename (media file to request)")
		localPort  = flag.Int("local-port", 0, "override client.local_rtp_port")
	)
	flag.Parse()

	bootLogger, _ := zap.NewProduction()
	cfg, err := config.Load(*configPath, bootLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	bootLogger.Sync()

	if *serverAddr != "" {
		cfg.Client.ServerAddr = *serverAddr
	}
	if *filename != "" {
		cfg.Client.Filename = *filename
	}
	if *localPort != 0 {
		cfg.Client.LocalRTPPort = *localPort
	}
	if cfg.Client.Filename == "" {
		fmt.Fprintln(os.Stderr, "client.filename must be set (via config or -file)")
		os.Exit(1)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Client.CacheDir != "" && cfg.Client.CacheDir != "." {
		if err := os.MkdirAll(cfg.Client.CacheDir, 0o755); err != nil {
			logger.Fatal("failed to create cache dir", zap.Error(err))
		}
		if err := os.Chdir(cfg.Client.CacheDir); err != nil {
			logger.Fatal("failed to enter cache dir", zap.Error(err))
		}
	}

	conn, err := net.Dial("tcp", cfg.Client.ServerAddr)
	if err != nil {
		logger.Fatal("failed to connect to server", zap.String("addr", cfg.Client.ServerAddr), zap.Error(err))
	}
	defer conn.Close()

	driver := client.NewDriver(conn, cfg.Client.LocalRTPPort, cfg.Client.FPS, cfg.Client.JitterMs, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := driver.Setup(ctx, cfg.Client.Filename); err != nil {
		logger.Fatal("setup failed", zap.Error(err))
	}
	if driver.State() != client.StateReady {
		logger.Fatal("server rejected setup", zap.String("filename", cfg.Client.Filename))
	}

	if err := driver.Play(ctx); err != nil {
		logger.Fatal("play failed", zap.Error(err))
	}
	logger.Info("streaming", zap.String("filename", cfg.Client.Filename))

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh

	logger.Info("shutting down")
	if err := driver.Teardown(ctx); err != nil {
		logger.Error("teardown error", zap.Error(err))
	}
}
