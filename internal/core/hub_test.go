package core

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vovakirdan/wirelobby-server/internal/proto"
)

var lobbyIDPattern = regexp.MustCompile(`^[0-9a-f]{12}$`)

func TestHubSingleLobbyHandshake(t *testing.T) {
	hub := startHub(t, Options{UseSingleLobby: true, AcceptAllConnections: true})

	tr := &fakeTransport{}
	client, err := hub.Negotiate(context.Background(), tr, ConnInfo{RemoteAddr: "127.0.0.1:1"})
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if client.LobbyID() != MainLobbyID {
		t.Fatalf("expected main lobby, got %q", client.LobbyID())
	}

	waitFor(t, "handshake frames", func() bool { return len(tr.Frames()) == 3 })
	frames := tr.Frames()
	if frames[0] != "LOB::JOINING::main" || frames[1] != "LOB::JOINED::main" {
		t.Fatalf("unexpected lobby frames: %v", frames)
	}
	syn, err := proto.Parse(frames[2])
	if err != nil || syn.Type != proto.TypeSync || len(syn.Fields) != 2 {
		t.Fatalf("unexpected sync frame %q: %v", frames[2], err)
	}
	if _, err := syn.SyncTimestamp(); err != nil {
		t.Fatalf("sync timestamp: %v", err)
	}

	lobbies := hub.ListLobbies()
	if len(lobbies) != 1 || lobbies[0].ID != MainLobbyID || lobbies[0].ActiveClientCount != 1 {
		t.Fatalf("unexpected lobbies: %+v", lobbies)
	}
	if client.LastSynchronised() != NotSynchronised {
		t.Fatal("no acknowledgment exists, sync time must stay unset")
	}
}

func TestHubCreatesLobbyForFirstClient(t *testing.T) {
	hub := startHub(t, Options{CreateLobbyOnFirstClient: true, AcceptAllConnections: true})
	if hub.Registry().Len() != 0 {
		t.Fatal("registry should start empty")
	}

	client, err := hub.Negotiate(context.Background(), &fakeTransport{}, ConnInfo{})
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}

	waitFor(t, "client membership", func() bool {
		lobbies := hub.ListLobbies()
		return len(lobbies) == 1 && lobbies[0].ActiveClientCount == 1
	})
	lobby := hub.ListLobbies()[0]
	if !lobbyIDPattern.MatchString(lobby.ID) {
		t.Fatalf("lobby id %q is not 12 hex characters", lobby.ID)
	}
	l, _ := hub.Registry().Get(lobby.ID)
	if members := l.Clients(); len(members) != 1 || members[0] != client {
		t.Fatal("the first client should be the sole member")
	}

	// The second client goes to the existing lobby.
	if _, err := hub.Negotiate(context.Background(), &fakeTransport{}, ConnInfo{}); err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	waitFor(t, "second member", func() bool { return l.ClientCount() == 2 })
	if hub.Registry().Len() != 1 {
		t.Fatal("no further lobby should be created")
	}
}

func TestHubRejectsConnection(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hub := startHub(t, Options{
		CreateLobbyOnFirstClient:    true,
		RejectionSocketCloseTimeout: 120 * time.Millisecond,
		AdmissionHook:               func(req *AdmissionRequest) { req.Accept(false, "") },
		Clock:                       clock,
	})

	tr := &fakeTransport{}
	client, err := hub.Negotiate(context.Background(), tr, ConnInfo{})
	if !errors.Is(err, ErrRejected) || client != nil {
		t.Fatalf("expected rejection, got client=%v err=%v", client, err)
	}

	frames := tr.Frames()
	if len(frames) != 1 || frames[0] != "ERR::Access Denied" {
		t.Fatalf("unexpected frames: %v", frames)
	}
	if tr.Closes() != 0 {
		t.Fatal("transport closed before the rejection delay")
	}

	clock.Advance(120 * time.Millisecond)
	waitFor(t, "transport close", func() bool { return tr.Closes() == 1 })

	if hub.Registry().Len() != 0 || hub.Coordinator().Pending() != 0 {
		t.Fatal("rejection must not touch the registry")
	}
}

func TestHubRejectionPayload(t *testing.T) {
	var (
		mu      sync.Mutex
		pending *AdmissionRequest
	)
	hub := startHub(t, Options{
		UseSingleLobby: true,
		AdmissionHook: func(req *AdmissionRequest) {
			mu.Lock()
			pending = req
			mu.Unlock()
		},
	})

	tr := &fakeTransport{}
	result := make(chan error, 1)
	go func() {
		_, err := hub.Negotiate(context.Background(), tr, ConnInfo{Token: "abc"})
		result <- err
	}()

	waitFor(t, "hook invocation", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return pending != nil
	})
	if pending.Conn.Token != "abc" {
		t.Fatalf("hook saw token %q", pending.Conn.Token)
	}
	pending.Accept(false, "Lobby full")
	pending.Accept(true, "")

	if err := <-result; !errors.Is(err, ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if frames := tr.Frames(); len(frames) != 1 || frames[0] != "ERR::Lobby full" {
		t.Fatalf("unexpected frames: %v", frames)
	}
}

func TestHubAdmissionAcceptIsOneShot(t *testing.T) {
	hub := startHub(t, Options{
		UseSingleLobby: true,
		AdmissionHook: func(req *AdmissionRequest) {
			req.Accept(true, "")
			req.Accept(false, "too late")
		},
	})

	tr := &fakeTransport{}
	if _, err := hub.Negotiate(context.Background(), tr, ConnInfo{}); err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	waitFor(t, "handshake", func() bool { return len(tr.Frames()) == 3 })
	if tr.countPrefix("ERR::") != 0 {
		t.Fatalf("second Accept call leaked: %v", tr.Frames())
	}
}

func TestHubNegotiateCancelledWhilePending(t *testing.T) {
	hub := startHub(t, Options{
		UseSingleLobby: true,
		AdmissionHook:  func(*AdmissionRequest) {},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	tr := &fakeTransport{}
	if _, err := hub.Negotiate(ctx, tr, ConnInfo{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(tr.Frames()) != 0 {
		t.Fatalf("abandoned negotiation sent frames: %v", tr.Frames())
	}
}

func TestHubRejectsWithoutHookOrOnHookPanic(t *testing.T) {
	cases := map[string]AdmissionHook{
		"nil hook":       nil,
		"panicking hook": func(*AdmissionRequest) { panic("hook failure") },
	}
	for name, hook := range cases {
		t.Run(name, func(t *testing.T) {
			hub := startHub(t, Options{UseSingleLobby: true, AdmissionHook: hook})
			tr := &fakeTransport{}
			if _, err := hub.Negotiate(context.Background(), tr, ConnInfo{}); !errors.Is(err, ErrRejected) {
				t.Fatalf("expected rejection, got %v", err)
			}
			if tr.countPrefix("ERR::") != 1 {
				t.Fatalf("expected an error frame, got %v", tr.Frames())
			}
		})
	}
}

func TestHubRemoveLobbyWithMembers(t *testing.T) {
	hub := startHub(t, Options{
		AcceptAllConnections: true,
		LobbyRemoveMessage:   "Server closing",
	})
	if _, err := hub.CreateLobby("party"); err != nil {
		t.Fatalf("create lobby: %v", err)
	}

	transports := make([]*fakeTransport, 3)
	for i := range transports {
		transports[i] = &fakeTransport{}
		if _, err := hub.Negotiate(context.Background(), transports[i], ConnInfo{RequestedLobby: "party"}); err != nil {
			t.Fatalf("negotiate %d: %v", i, err)
		}
	}
	lobby, _ := hub.Registry().Get("party")
	waitFor(t, "three members", func() bool { return lobby.ClientCount() == 3 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hub.RemoveLobby(ctx, "party"); err != nil {
		t.Fatalf("remove lobby: %v", err)
	}

	for i, tr := range transports {
		var closes []string
		for _, f := range tr.Frames() {
			if strings.HasPrefix(f, "CLS::") {
				closes = append(closes, f)
			}
		}
		if len(closes) != 1 || closes[0] != "CLS::Server closing" {
			t.Fatalf("member %d close frames: %v", i, closes)
		}
	}
	if _, ok := hub.Registry().Get("party"); ok {
		t.Fatal("lobby should be removed from the registry")
	}
	if err := hub.RemoveLobby(ctx, "party"); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("second removal: expected ErrLobbyNotFound, got %v", err)
	}
}

func TestHubCreateLobby(t *testing.T) {
	single := startHub(t, Options{UseSingleLobby: true})
	if _, err := single.CreateLobby("extra"); !errors.Is(err, ErrSingleLobbyMode) {
		t.Fatalf("expected ErrSingleLobbyMode, got %v", err)
	}
	if single.Registry().Len() != 1 {
		t.Fatal("single lobby registry must keep only main")
	}

	multi := startHub(t, Options{})
	if _, err := multi.CreateLobby(""); !errors.Is(err, ErrInvalidLobbyID) {
		t.Fatalf("expected ErrInvalidLobbyID, got %v", err)
	}
	if _, err := multi.CreateLobby("a"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := multi.CreateLobby("a"); !errors.Is(err, ErrLobbyExists) {
		t.Fatalf("expected ErrLobbyExists, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if l, err := multi.QueryLobby(ctx, "a"); err != nil || l.ID != "a" {
		t.Fatalf("query: lobby=%v err=%v", l, err)
	}
	if _, err := multi.QueryLobby(ctx, "b"); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("expected ErrLobbyNotFound, got %v", err)
	}
}

func TestHubScheduleEvent(t *testing.T) {
	ran := make(chan Event, 4)
	hub := startHub(t, Options{
		UseSingleLobby:  true,
		RuntimeInterval: 5 * time.Millisecond,
		EventRunner: func(_ context.Context, _ *Lobby, pending []Event) []Event {
			for _, ev := range pending {
				ran <- ev
			}
			return nil
		},
	})

	if _, err := hub.ScheduleEvent("missing", Event{}); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("expected ErrLobbyNotFound, got %v", err)
	}

	ev, err := hub.ScheduleEvent(MainLobbyID, Event{Payload: "spawn"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if ev.ID == "" || ev.ScheduledAt.IsZero() {
		t.Fatalf("event not stamped: %+v", ev)
	}

	select {
	case got := <-ran:
		if got.ID != ev.ID || got.Payload != "spawn" {
			t.Fatalf("runner got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event runner never ran")
	}
}

func TestHubDetachAndMessages(t *testing.T) {
	got := make(chan proto.Frame, 1)
	hub := startHub(t, Options{
		UseSingleLobby:       true,
		AcceptAllConnections: true,
		MessageHandler:       func(_ *Client, frame proto.Frame) { got <- frame },
	})

	tr := &fakeTransport{}
	client, err := hub.Negotiate(context.Background(), tr, ConnInfo{})
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	main, _ := hub.Registry().Get(MainLobbyID)
	waitFor(t, "membership", func() bool { return main.ClientCount() == 1 })

	hub.HandleMessage(client, "")
	hub.HandleMessage(client, "PING::1")
	select {
	case frame := <-got:
		if frame.Type != "PING" || frame.Field(0) != "1" {
			t.Fatalf("unexpected frame %+v", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("message handler not called")
	}

	hub.Detach(client)
	waitFor(t, "detach", func() bool { return main.ClientCount() == 0 })
	if tr.countPrefix("CLS::") != 0 {
		t.Fatal("detached client must not receive a close frame")
	}
}

func TestDefaultLobbySelector(t *testing.T) {
	lobbies := []LobbyInfo{{ID: "old"}, {ID: "new"}}
	if got := DefaultLobbySelector(ConnInfo{RequestedLobby: "new"}, lobbies); got != "new" {
		t.Fatalf("requested lobby ignored: %q", got)
	}
	if got := DefaultLobbySelector(ConnInfo{}, lobbies); got != "old" {
		t.Fatalf("expected oldest lobby, got %q", got)
	}
	if got := DefaultLobbySelector(ConnInfo{}, nil); got != "" {
		t.Fatalf("expected no lobby, got %q", got)
	}
}

func TestCreateAndRemoveLobbyConcurrently(t *testing.T) {
	hub := startHub(t, Options{RuntimeInterval: time.Millisecond})
	ctx := context.Background()

	for i := range 300 {
		created := make(chan *Lobby, 1)
		go func() {
			l, err := hub.CreateLobby("race")
			if err != nil {
				t.Errorf("iteration %d: create: %v", i, err)
			}
			created <- l
		}()

		if err := hub.RemoveLobby(ctx, "race"); err != nil && !errors.Is(err, ErrLobbyNotFound) {
			t.Fatalf("iteration %d: remove: %v", i, err)
		}
		l := <-created
		if l == nil {
			t.FailNow()
		}
		if _, ok := hub.Registry().Get("race"); ok {
			if err := hub.RemoveLobby(ctx, "race"); err != nil {
				t.Fatalf("iteration %d: second remove: %v", i, err)
			}
		}

		select {
		case <-l.stopped():
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: tick loop still running after removal", i)
		}
	}
}
