package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeRenderer struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeRenderer) RenderFrame(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeRenderer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestRendererDeliversInTimestampOrder(t *testing.T) {
	logger := zaptest.NewLogger(t)
	buffer := NewJitterBuffer(10, 1)
	buffer.Push(20, []byte("b"))
	buffer.Push(10, []byte("a"))
	buffer.Push(30, []byte("c"))

	fake := &fakeRenderer{}
	r := NewRenderer(buffer, fake, 100, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.frames) != 3 {
		t.Fatalf("delivered %d frames, want 3", len(fake.frames))
	}
	if string(fake.frames[0]) != "a" || string(fake.frames[1]) != "b" || string(fake.frames[2]) != "c" {
		t.Errorf("delivery order = %q, %q, %q, want a, b, c", fake.frames[0], fake.frames[1], fake.frames[2])
	}
}

func TestRendererStopsOnCancel(t *testing.T) {
	logger := zaptest.NewLogger(t)
	buffer := NewJitterBuffer(10, 100) // threshold never reached
	fake := &fakeRenderer{}
	r := NewRenderer(buffer, fake, 25, logger)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Run did not return promptly after cancel")
	}
}

func TestCacheFileRendererWritesFile(t *testing.T) {
	dir := t.TempDir()
	r := &CacheFileRenderer{path: dir + "/cache-1.jpg"}
	if err := r.RenderFrame([]byte("jpeg-bytes")); err != nil {
		t.Fatalf("RenderFrame returned error: %v", err)
	}
}
