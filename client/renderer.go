package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// FrameRenderer is the external display surface the renderer delivers
// decoded frame bytes to. Display, windowing, and cache-file cleanup
// are explicitly out of scope (spec.md §1); this is the seam a real
// viewer implements.
type FrameRenderer interface {
	RenderFrame(data []byte) error
}

// CacheFileRenderer is a convenience default FrameRenderer that writes
// each delivered frame to a fixed cache file, overwriting it every
// frame, matching the original client's cache-file-per-session naming
// convention (SPEC_FULL.md §D.4).
type CacheFileRenderer struct {
	path string
}

// NewCacheFileRenderer builds a renderer that writes to cache-<session>.jpg.
func NewCacheFileRenderer(sessionID uint32) *CacheFileRenderer {
	return &CacheFileRenderer{path: fmt.Sprintf("cache-%d.jpg", sessionID)}
}

// NewCacheFileRendererInDir is NewCacheFileRenderer with an explicit
// destination directory.
func NewCacheFileRendererInDir(dir string, sessionID uint32) *CacheFileRenderer {
	return &CacheFileRenderer{path: filepath.Join(dir, fmt.Sprintf("cache-%d.jpg", sessionID))}
}

func (c *CacheFileRenderer) RenderFrame(data []byte) error {
	return os.WriteFile(c.path, data, 0o644)
}

// sleepStep is the maximum increment the renderer sleeps between
// preemption checks, so a stop signal is honored quickly even during a
// long pacing wait (spec.md §4.5).
const sleepStep = 5 * time.Millisecond

// prebufferTimeout bounds how long the renderer waits for the jitter
// buffer to reach its prebuffer threshold before starting anyway.
const prebufferTimeout = 3 * time.Second

// Renderer is the paced renderer: it pops frames from a JitterBuffer in
// timestamp order and delivers them to a FrameRenderer at a target
// frame rate, never accelerating to catch up.
type Renderer struct {
	buffer   *JitterBuffer
	render   FrameRenderer
	logger   *zap.Logger
	fps      int
	lastTick time.Time
}

// NewRenderer constructs a Renderer targeting fps frames per second.
func NewRenderer(buffer *JitterBuffer, render FrameRenderer, fps int, logger *zap.Logger) *Renderer {
	if fps <= 0 {
		fps = 25
	}
	return &Renderer{buffer: buffer, render: render, fps: fps, logger: logger}
}

// Run waits for the prebuffer to fill (or times out) and then delivers
// frames at the configured pace until ctx is cancelled.
func (r *Renderer) Run(ctx context.Context) {
	select {
	case <-r.buffer.PrebufferReady():
	case <-time.After(prebufferTimeout):
		r.logger.Debug("prebuffer timeout elapsed, starting playback anyway")
	case <-ctx.Done():
		return
	}

	interval := time.Duration(float64(time.Second) / float64(r.fps))
	r.lastTick = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, _, ok := r.buffer.Pop()
		if !ok {
			if !sleepInterruptible(ctx, sleepStep) {
				return
			}
			continue
		}

		if err := r.render.RenderFrame(data); err != nil {
			r.logger.Warn("render frame failed", zap.Error(err))
		}

		now := time.Now()
		toSleep := interval - now.Sub(r.lastTick)
		r.lastTick = now
		if toSleep > 0 {
			if !sleepInPaced(ctx, toSleep) {
				return
			}
		}
	}
}

// sleepInterruptible sleeps for d or until ctx is cancelled.
func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// sleepInPaced sleeps for d in sleepStep increments so a cancellation
// is honored within one step instead of the full wait.
func sleepInPaced(ctx context.Context, d time.Duration) bool {
	for d > 0 {
		step := sleepStep
		if d < step {
			step = d
		}
		if !sleepInterruptible(ctx, step) {
			return false
		}
		d -= step
	}
	return true
}
