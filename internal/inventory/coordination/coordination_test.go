package coordination

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type primitives interface {
	Locker
	IdempotencyStore
	CancelRegistry
}

func setupRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedis(client)
}

func backends(t *testing.T) map[string]func(t *testing.T) primitives {
	return map[string]func(t *testing.T) primitives{
		"memory": func(t *testing.T) primitives { return NewMemory() },
		"redis":  func(t *testing.T) primitives { return setupRedis(t) },
	}
}

func TestTryLock(t *testing.T) {
	for name, setup := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := setup(t)
			ctx := context.Background()
			lockName := "sweeper-" + uuid.New().String()

			lock, ok, err := p.TryLock(ctx, lockName, time.Minute)
			if err != nil || !ok {
				t.Fatalf("first TryLock: ok=%v err=%v", ok, err)
			}

			if _, ok, err := p.TryLock(ctx, lockName, time.Minute); err != nil || ok {
				t.Fatalf("second TryLock should fail: ok=%v err=%v", ok, err)
			}

			if err := lock.Release(ctx); err != nil {
				t.Fatalf("Release failed: %v", err)
			}
			again, ok, err := p.TryLock(ctx, lockName, time.Minute)
			if err != nil || !ok {
				t.Fatalf("TryLock after release: ok=%v err=%v", ok, err)
			}
			_ = again.Release(ctx)
		})
	}
}

func TestClaim(t *testing.T) {
	for name, setup := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := setup(t)
			ctx := context.Background()
			key := "checkout-" + uuid.New().String()

			stored, claimed, err := p.Claim(ctx, key, "res-1", time.Minute)
			if err != nil || !claimed || stored != "res-1" {
				t.Fatalf("first Claim = %q %v %v", stored, claimed, err)
			}

			stored, claimed, err = p.Claim(ctx, key, "res-2", time.Minute)
			if err != nil || claimed || stored != "res-1" {
				t.Fatalf("second Claim = %q %v %v, want res-1 unclaimed", stored, claimed, err)
			}

			// Forget with the wrong value keeps the key
			_ = p.Forget(ctx, key, "res-2")
			if stored, _, _ := p.Claim(ctx, key, "res-3", time.Minute); stored != "res-1" {
				t.Fatalf("key lost after foreign Forget: %q", stored)
			}

			_ = p.Forget(ctx, key, "res-1")
			if _, claimed, _ := p.Claim(ctx, key, "res-4", time.Minute); !claimed {
				t.Fatal("expected key to be free after Forget")
			}
		})
	}
}

func TestCancelRegistry(t *testing.T) {
	for name, setup := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := setup(t)
			ctx := context.Background()
			jobID := uuid.New().String()

			if cancelled, _ := p.IsCancelled(ctx, jobID); cancelled {
				t.Fatal("new job reported cancelled")
			}
			if err := p.RequestCancel(ctx, jobID); err != nil {
				t.Fatalf("RequestCancel failed: %v", err)
			}
			if cancelled, err := p.IsCancelled(ctx, jobID); err != nil || !cancelled {
				t.Fatalf("IsCancelled = %v %v, want true", cancelled, err)
			}
		})
	}
}

func TestMemory_ClaimExpires(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if _, claimed, _ := m.Claim(ctx, "k", "a", time.Second); !claimed {
		t.Fatal("expected claim")
	}
	now = now.Add(2 * time.Second)
	if stored, claimed, _ := m.Claim(ctx, "k", "b", time.Second); !claimed || stored != "b" {
		t.Fatalf("expired key not reclaimed: %q %v", stored, claimed)
	}
}

func TestMemory_DropsExpiredEntries(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, claimed, _ := m.Claim(ctx, uuid.New().String(), "v", time.Second); !claimed {
			t.Fatal("expected claim")
		}
	}
	m.RequestCancel(ctx, "job-1")

	// read-time expiry
	now = now.Add(25 * time.Hour)
	if cancelled, _ := m.IsCancelled(ctx, "job-1"); cancelled {
		t.Error("cancel flag outlived its TTL")
	}
	if _, ok := m.entries[cancelKeyPrefix+"job-1"]; ok {
		t.Error("expired cancel flag was not deleted on read")
	}

	// the next claim scans out the idempotency keys nobody reads again
	if _, claimed, _ := m.Claim(ctx, "fresh", "v", time.Minute); !claimed {
		t.Fatal("expected claim")
	}
	if len(m.entries) != 1 {
		t.Errorf("%d entries held after prune, want 1", len(m.entries))
	}
}
