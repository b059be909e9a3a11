package core

import (
	"testing"
	"time"
)

func TestRegistryInsertDeleteAndSnapshotOrder(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		if !reg.insert(newLobby(id, time.Time{})) {
			t.Fatalf("insert %s failed", id)
		}
	}
	if reg.insert(newLobby("a", time.Time{})) {
		t.Fatal("duplicate id must not be inserted")
	}

	snap := reg.Snapshot()
	if len(snap) != 3 || snap[0].ID != "c" || snap[1].ID != "a" || snap[2].ID != "b" {
		t.Fatalf("snapshot not in creation order: %v %v %v", snap[0].ID, snap[1].ID, snap[2].ID)
	}

	if !reg.delete("a") || reg.delete("a") {
		t.Fatal("delete should succeed exactly once")
	}
	if _, ok := reg.Get("a"); ok {
		t.Fatal("deleted lobby still visible")
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 lobbies, got %d", reg.Len())
	}

	// Snapshots are copies.
	snap = reg.Snapshot()
	snap[0] = nil
	if reg.Snapshot()[0] == nil {
		t.Fatal("snapshot aliases registry state")
	}
}
