package http

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/config"
	"github.com/vovakirdan/wirelobby-server/internal/core"
	"github.com/vovakirdan/wirelobby-server/internal/store"
)

// testConfig returns a config suited for in-process servers.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.Port = 0
	cfg.Hostname = "127.0.0.1"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	return cfg
}

// startTestServer runs a hub and an httptest server until the test ends.
func startTestServer(t *testing.T, cfg config.Config, opts core.Options, journal store.Journal) (*httptest.Server, *core.Hub) {
	t.Helper()

	if opts.RuntimeInterval == 0 {
		opts.RuntimeInterval = 10 * time.Millisecond
	}
	hub := core.NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	disabledLogger := zerolog.New(nil)
	server := NewServer(hub, journal, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.CloseClientConnections()
		ts.Close()
		cancel()
		<-done
	})

	return ts, hub
}

func wsURL(ts *httptest.Server, query string) string {
	u := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// readFrame reads the next text frame.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("unexpected message type %v", typ)
	}
	return string(data)
}

// expectClosed reads until the server closes the connection and returns the close reason.
func expectClosed(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()

	for {
		_, data, err := conn.Read(ctx)
		if err == nil {
			t.Logf("frame before close: %s", data)
			continue
		}
		var ce websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("expected close frame, got %v", err)
		}
		return ce.Reason
	}
}

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
