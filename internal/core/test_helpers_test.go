package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vovakirdan/wirelobby-server/internal/proto"
)

// fakeTransport records frames and close calls.
type fakeTransport struct {
	mu      sync.Mutex
	frames  []string
	closes  int
	reasons []string
}

func (t *fakeTransport) Send(_ context.Context, frame proto.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, frame.String())
	return nil
}

func (t *fakeTransport) Close(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	t.reasons = append(t.reasons, reason)
	return nil
}

func (t *fakeTransport) Frames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.frames))
	copy(out, t.frames)
	return out
}

func (t *fakeTransport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

func (t *fakeTransport) countPrefix(prefix string) int {
	n := 0
	for _, f := range t.Frames() {
		if len(f) >= len(prefix) && f[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// newTestClient builds a client on a fake clock with the given close grace.
func newTestClient(id string, clock clockwork.Clock, grace time.Duration) (*Client, *fakeTransport) {
	tr := &fakeTransport{}
	c := NewClient(id, tr)
	c.clock = clock
	c.closeGrace = grace
	return c, tr
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T, opts Options) *Hub {
	t.Helper()

	hub := NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}
