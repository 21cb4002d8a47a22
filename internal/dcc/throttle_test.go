package dcc

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

func TestNewThrottledWriterBypass(t *testing.T) {
	var buf bytes.Buffer
	w := NewThrottledWriter(context.Background(), &buf, 0)
	if w != io.Writer(&buf) {
		t.Fatalf("expected bypass to return the original writer unchanged")
	}
}

func TestNewThrottledWriterLimits(t *testing.T) {
	var buf bytes.Buffer
	w := NewThrottledWriter(context.Background(), &buf, 1) // 1KB/s

	payload := bytes.Repeat([]byte{'a'}, 2048)
	start := time.Now()
	n, err := w.Write(payload)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("write error: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("n = %d, want %d", n, len(payload))
	}
	if buf.Len() != len(payload) {
		t.Fatalf("buffered %d bytes, want %d", buf.Len(), len(payload))
	}
	if elapsed < 500*time.Millisecond {
		t.Errorf("expected throttling to slow a 2x-burst write, took %v", elapsed)
	}
}
