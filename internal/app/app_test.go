package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/wirelobby-server/internal/config"
	"github.com/vovakirdan/wirelobby-server/internal/core"
	"github.com/vovakirdan/wirelobby-server/internal/log"
	"github.com/vovakirdan/wirelobby-server/internal/store"
	"github.com/vovakirdan/wirelobby-server/internal/store/sqlite"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Port = 0
	cfg.Hostname = "127.0.0.1"
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestHubOptionsAdmission(t *testing.T) {
	tests := []struct {
		name      string
		acceptAll bool
		secret    string
		wantHook  bool
	}{
		{name: "accept all", acceptAll: true, secret: "s", wantHook: false},
		{name: "token admission", acceptAll: false, secret: "s", wantHook: true},
		{name: "no secret", acceptAll: false, secret: "", wantHook: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.AcceptAllConnections = tt.acceptAll
			cfg.Admission.Secret = tt.secret

			opts := hubOptions(&cfg, nil, log.Nop())
			if (opts.AdmissionHook != nil) != tt.wantHook {
				t.Fatalf("admission hook set = %v, want %v", opts.AdmissionHook != nil, tt.wantHook)
			}
			if opts.AcceptAllConnections != tt.acceptAll {
				t.Fatalf("accept all = %v", opts.AcceptAllConnections)
			}
		})
	}
}

func TestHubOptionsCopiesTimings(t *testing.T) {
	cfg := testConfig(t)
	cfg.LobbyManageInterval = 0
	cfg.RejectionSocketCloseTimeout = 7 * time.Millisecond
	cfg.LobbyRemoveMessage = "Server closing"

	opts := hubOptions(&cfg, nil, log.Nop())
	if opts.LobbyManageInterval != 0 || opts.RejectionSocketCloseTimeout != 7*time.Millisecond {
		t.Fatalf("unexpected timings: %+v", opts)
	}
	if opts.LobbyRemoveMessage != "Server closing" {
		t.Fatalf("remove message = %q", opts.LobbyRemoveMessage)
	}
	if opts.EventRunner == nil || opts.MessageHandler == nil {
		t.Fatal("default event runner and message handler expected")
	}
}

func TestLogEventsConsumesPending(t *testing.T) {
	hub := core.NewHub(core.Options{UseSingleLobby: true})
	main, _ := hub.Registry().Get(core.MainLobbyID)

	left := logEvents(log.Nop())(context.Background(), main, []core.Event{{ID: "a"}, {ID: "b"}})
	if len(left) != 0 {
		t.Fatalf("expected every event consumed, %d left", len(left))
	}
}

func TestRunJournalsNoticesAndShutsDown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Path = filepath.Join(t.TempDir(), "notices.db")

	application, err := New(&cfg, log.Nop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if application.Hub().Registry().Len() != 1 {
		t.Fatal("single lobby mode should create the main lobby")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	journal, err := sqlite.New(cfg.Journal.Path)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer journal.Close()

	records, err := journal.List(context.Background(), store.NoticeFilter{Kind: string(core.NoticeLobbyCreated)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].LobbyID != core.MainLobbyID {
		t.Fatalf("unexpected journal records: %+v", records)
	}
}

func TestNewFailsWhenNATSUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.NATS.URL = "nats://127.0.0.1:1"

	if _, err := New(&cfg, log.Nop()); err == nil {
		t.Fatal("expected connect error")
	}
}
