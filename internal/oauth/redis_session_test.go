package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, 10*time.Minute), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	put := Session{Verifier: "verifier", UserID: "u1", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	if err := store.Put(ctx, "state-1", put); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := store.Take(ctx, "state-1")
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}
	if got.Verifier != put.Verifier || got.UserID != put.UserID {
		t.Fatalf("got %+v, want %+v", got, put)
	}

	if _, ok, _ := store.Take(ctx, "state-1"); ok {
		t.Fatal("GETDEL should have consumed the session")
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	if err := store.Put(ctx, "state-1", Session{Verifier: "v"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(11 * time.Minute)

	if _, ok, err := store.Take(ctx, "state-1"); ok || err != nil {
		t.Fatalf("expired session should be gone: ok=%v err=%v", ok, err)
	}
}
