package frame

import (
	"bufio"
	"bytes"
	"os"
	"testing"
)

func newTestReader(data []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(data))
}

func TestSourceNextFrame(t *testing.T) {
	// "\xFF\xD8A\xFF\xD9\xFF\xD8BB\xFF\xD9" prefixed as two records of
	// lengths 5 and 6 (spec.md §8 scenario 6).
	data := append([]byte("00005"), soiEoi("A")...)
	data = append(data, append([]byte("00006"), soiEoi("BB")...)...)

	src := &Source{reader: newTestReader(data)}

	f1, err := src.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame() #1 returned error: %v", err)
	}
	if !bytes.Equal(f1, soiEoi("A")) {
		t.Errorf("frame 1 = %v, want %v", f1, soiEoi("A"))
	}

	f2, err := src.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame() #2 returned error: %v", err)
	}
	if !bytes.Equal(f2, soiEoi("BB")) {
		t.Errorf("frame 2 = %v, want %v", f2, soiEoi("BB"))
	}

	if _, err := src.NextFrame(); err != ErrEndOfStream {
		t.Errorf("NextFrame() at end = %v, want ErrEndOfStream", err)
	}
}

func TestSourceNextFrameShortPrefix(t *testing.T) {
	src := &Source{reader: newTestReader([]byte("000"))}
	if _, err := src.NextFrame(); err != ErrEndOfStream {
		t.Errorf("NextFrame() with short prefix = %v, want ErrEndOfStream", err)
	}
}

func TestSourceNextFrameShortBody(t *testing.T) {
	src := &Source{reader: newTestReader([]byte("00010abc"))}
	if _, err := src.NextFrame(); err != ErrEndOfStream {
		t.Errorf("NextFrame() with short body = %v, want ErrEndOfStream", err)
	}
}

func TestSourceNextFrameZeroLength(t *testing.T) {
	data := append([]byte("00000"), []byte("00003")...)
	data = append(data, []byte("xyz")...)

	src := &Source{reader: newTestReader(data)}

	f1, err := src.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame() #1 returned error: %v", err)
	}
	if len(f1) != 0 {
		t.Errorf("frame 1 = %v, want empty", f1)
	}

	f2, err := src.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame() #2 returned error: %v", err)
	}
	if !bytes.Equal(f2, []byte("xyz")) {
		t.Errorf("frame 2 = %v, want xyz", f2)
	}
}

func TestOpenSourceMissingFile(t *testing.T) {
	_, err := OpenSource("/nonexistent/path/to/frames.bin", nil)
	if err == nil {
		t.Fatal("expected error opening missing file")
	}
}

func TestPackagerThenSourceRoundTrip(t *testing.T) {
	data := append(soiEoi("hello"), soiEoi("world!!")...)

	dir := t.TempDir()
	path := dir + "/frames.bin"

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}

	p := NewPackager(nil)
	if _, err := p.Write(data, f); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}

	src, err := OpenSource(path, nil)
	if err != nil {
		t.Fatalf("OpenSource returned error: %v", err)
	}
	defer src.Close()

	f1, err := src.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame() #1 returned error: %v", err)
	}
	if !bytes.Equal(f1, soiEoi("hello")) {
		t.Errorf("frame 1 = %v, want %v", f1, soiEoi("hello"))
	}

	f2, err := src.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame() #2 returned error: %v", err)
	}
	if !bytes.Equal(f2, soiEoi("world!!")) {
		t.Errorf("frame 2 = %v, want %v", f2, soiEoi("world!!"))
	}

	if _, err := src.NextFrame(); err != ErrEndOfStream {
		t.Errorf("NextFrame() at end = %v, want ErrEndOfStream", err)
	}
}
