package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestClaimIntentIsExclusive(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	ok, err := client.ClaimIntent(ctx, "intent-1", "api-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first claim to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.ClaimIntent(ctx, "intent-1", "api-b", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("second instance must not claim a held intent")
	}
	if mock.ttls[client.PollerClaimKey("intent-1")] != time.Minute {
		t.Fatalf("expected claim ttl to be forwarded")
	}
}

func TestReleaseIntentChecksOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if _, err := client.ClaimIntent(ctx, "intent-1", "api-a", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := client.ReleaseIntent(ctx, "intent-1", "api-b"); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, ok := mock.data[client.PollerClaimKey("intent-1")]; !ok {
		t.Fatal("non-owner must not drop the claim")
	}
	if err := client.ReleaseIntent(ctx, "intent-1", "api-a"); err != nil {
		t.Fatalf("release by owner: %v", err)
	}
	if _, err := client.Get(ctx, client.PollerClaimKey("intent-1")); err != redis.Nil {
		t.Fatalf("expected redis.Nil after release, got %v", err)
	}
	if err := client.ReleaseIntent(ctx, "intent-1", "api-a"); err != nil {
		t.Fatalf("releasing a missing claim should be a no-op: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "fl:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.PollerClaimKey("abc"); got != "fl:poller:claim:abc" {
		t.Fatalf("unexpected claim key %s", got)
	}
	if got := client.LockKey("cron-worker", ""); got != "fl:lock:cron-worker" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without raw client should be nil, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("optionsFromConfig: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
