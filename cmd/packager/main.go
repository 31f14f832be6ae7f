// Command packager converts a raw MJPEG byte stream into the
// length-prefixed record format the server's Video Source reads.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"mjpeg-rtsp-streamer/frame"
)

func main() {
	var (
		output   = flag.String("output", "temp.Mjpeg", "output file path")
		logLevel = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <input.mjpeg>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	input := flag.Arg(0)

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	data, err := os.ReadFile(input)
	if err != nil {
		logger.Fatal("failed to read input", zap.String("path", input), zap.Error(err))
	}

	out, err := os.Create(*output)
	if err != nil {
		logger.Fatal("failed to create output", zap.String("path", *output), zap.Error(err))
	}
	defer out.Close()

	packager := frame.NewPackager(logger)
	count, err := packager.Write(data, out)
	if err != nil {
		logger.Fatal("failed to write prefixed records", zap.Error(err))
	}
	if count == 0 {
		logger.Warn("no JPEG frames found", zap.String("input", input))
		os.Exit(1)
	}

	logger.Info("wrote prefixed records",
		zap.Int("count", count),
		zap.String("output", *output))
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	l, err := zap.ParseAtomicLevel(level)
	if err != nil {
		l = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = l
	return cfg.Build()
}
