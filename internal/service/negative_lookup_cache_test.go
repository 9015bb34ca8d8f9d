package service

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryNegativeLookupCacheStoreGetSetInvalidate(t *testing.T) {
	store := NewInMemoryNegativeLookupCacheStore(nil)
	ctx := context.Background()

	if err := store.Set(ctx, refreshNotFoundNamespace, "deadbeef", time.Minute); err != nil {
		t.Fatalf("set negative cache: %v", err)
	}
	ok, err := store.Get(ctx, refreshNotFoundNamespace, "deadbeef")
	if err != nil {
		t.Fatalf("get negative cache: %v", err)
	}
	if !ok {
		t.Fatal("expected negative cache hit")
	}

	if err := store.InvalidateNamespace(ctx, refreshNotFoundNamespace); err != nil {
		t.Fatalf("invalidate negative cache namespace: %v", err)
	}
	ok, err = store.Get(ctx, refreshNotFoundNamespace, "deadbeef")
	if err != nil {
		t.Fatalf("get cache after invalidate: %v", err)
	}
	if ok {
		t.Fatal("expected negative cache miss after invalidate")
	}
}

func TestInMemoryNegativeLookupCacheStoreExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewInMemoryNegativeLookupCacheStore(clock.Now)
	ctx := context.Background()

	if err := store.Set(ctx, refreshNotFoundNamespace, "77", 30*time.Second); err != nil {
		t.Fatalf("set negative cache: %v", err)
	}
	clock.Advance(29 * time.Second)
	if ok, _ := store.Get(ctx, refreshNotFoundNamespace, "77"); !ok {
		t.Fatal("expected hit before ttl")
	}
	clock.Advance(time.Second)
	ok, err := store.Get(ctx, refreshNotFoundNamespace, "77")
	if err != nil {
		t.Fatalf("get negative cache: %v", err)
	}
	if ok {
		t.Fatal("expected negative cache entry to expire")
	}
}

func TestInMemoryNegativeLookupCacheStoreIgnoresNonPositiveTTL(t *testing.T) {
	store := NewInMemoryNegativeLookupCacheStore(nil)
	ctx := context.Background()
	if err := store.Set(ctx, refreshNotFoundNamespace, "k", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok, _ := store.Get(ctx, refreshNotFoundNamespace, "k"); ok {
		t.Fatal("zero ttl must not cache")
	}
}

func TestNoopNegativeLookupCacheStoreAlwaysMisses(t *testing.T) {
	store := NewNoopNegativeLookupCacheStore()
	ctx := context.Background()
	if err := store.Set(ctx, refreshNotFoundNamespace, "404", time.Minute); err != nil {
		t.Fatalf("set noop negative cache: %v", err)
	}
	ok, err := store.Get(ctx, refreshNotFoundNamespace, "404")
	if err != nil {
		t.Fatalf("get noop negative cache: %v", err)
	}
	if ok {
		t.Fatal("expected noop negative cache miss")
	}
	if err := store.InvalidateNamespace(ctx, refreshNotFoundNamespace); err != nil {
		t.Fatalf("invalidate noop negative cache namespace: %v", err)
	}
}
