package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryStore struct {
	values map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockExcludesSecondWorker(t *testing.T) {
	t.Parallel()

	store := &memoryStore{values: map[string]string{}}
	ctx := context.Background()
	first, err := NewRedisLock(store, "fl:lock:cron:settlement", "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "fl:lock:cron:settlement", "worker-b", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if !strings.HasPrefix(store.values["fl:lock:cron:settlement"], "worker-a:") {
		t.Fatalf("lease should carry the owner, got %q", store.values["fl:lock:cron:settlement"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second worker must not acquire a held lock")
	}
	// Releasing a lock you do not hold leaves the lease alone.
	if err := second.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, ok := store.values["fl:lock:cron:settlement"]; !ok {
		t.Fatal("lease removed by non-owner")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("lock should be free after release")
	}
}

func TestRedisLockIgnoresExpiredLease(t *testing.T) {
	t.Parallel()

	store := &memoryStore{values: map[string]string{}}
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "k", "", 0)
	if lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", lock.ttl)
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	delete(store.values, "k")
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release after expiry: %v", err)
	}
}
