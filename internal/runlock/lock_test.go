package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) DeleteIfEqual(_ context.Context, key, value string) (bool, error) {
	if v, ok := m.data[key]; ok && v == value {
		delete(m.data, key)
		return true, nil
	}
	return false, nil
}

func TestRedisLockExclusive(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{data: map[string]string{}}

	first, err := NewRedisLock(store, "massabalans:lock:monta_orders", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "massabalans:lock:monta_orders", time.Minute)

	if err := first.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	err = second.Acquire(ctx)
	if !pkgerrors.IsCode(err, pkgerrors.CodeLocked) {
		t.Fatalf("expected RUN_LOCKED, got %v", err)
	}
	details, _ := pkgerrors.As(err).Details().(map[string]any)
	if details["holder"] != first.owner {
		t.Fatalf("expected holder %q in details, got %v", first.owner, details)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner should be a no-op, got %v", err)
	}
	if _, held := store.data["massabalans:lock:monta_orders"]; !held {
		t.Fatal("non-owner release must not delete the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := second.Acquire(ctx); err != nil {
		t.Fatalf("expected lock to be free after release, got %v", err)
	}
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{data: map[string]string{}}
	lock, _ := NewRedisLock(store, "k", 0)
	if lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", lock.ttl)
	}
	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	delete(store.data, "k")
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release of expired lock should succeed, got %v", err)
	}
}

func TestRedisLockReleaseKeepsSuccessorLock(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{data: map[string]string{}}
	stale, _ := NewRedisLock(store, "k", time.Minute)
	if err := stale.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// the TTL passed and another run took over
	store.data["k"] = "other-host:1:token"
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["k"] != "other-host:1:token" {
		t.Fatal("release must not delete a lock owned by another run")
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Second); !pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := NewRedisLock(&memoryStore{}, "", time.Second); !pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
