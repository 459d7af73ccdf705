package oauth

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreTakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(SessionTTL)

	if err := store.Put(ctx, "state-1", Session{Verifier: "v1", UserID: "u1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("put: %v", err)
	}

	s, ok, err := store.Take(ctx, "state-1")
	if err != nil || !ok {
		t.Fatalf("first take: ok=%v err=%v", ok, err)
	}
	if s.Verifier != "v1" || s.UserID != "u1" {
		t.Fatalf("unexpected session: %+v", s)
	}

	if _, ok, _ := store.Take(ctx, "state-1"); ok {
		t.Fatal("second take should miss: sessions are single-use")
	}
}

func TestMemoryStoreTakeUnknownID(t *testing.T) {
	store := NewMemoryStore(SessionTTL)
	if _, ok, err := store.Take(context.Background(), "nope"); ok || err != nil {
		t.Fatalf("take unknown: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreSweepRemovesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10 * time.Minute)
	now := time.Now()

	ages := map[string]time.Duration{
		"old":    11 * time.Minute,
		"middle": 5 * time.Minute,
		"fresh":  0,
	}
	for id, age := range ages {
		if err := store.Put(ctx, id, Session{Verifier: id, CreatedAt: now.Add(-age)}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	removed, err := store.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if _, ok, _ := store.Take(ctx, "old"); ok {
		t.Fatal("expired session survived the sweep")
	}
	for _, id := range []string{"middle", "fresh"} {
		if _, ok, _ := store.Take(ctx, id); !ok {
			t.Fatalf("live session %s was swept", id)
		}
	}
}
