package redis

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestDedup(t *testing.T) (*DedupService, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return NewDedupService(client), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestDedup_FirstDeliveryPasses(t *testing.T) {
	svc, _, cleanup := setupTestDedup(t)
	defer cleanup()

	primeira, err := svc.Primeira(context.Background(), "tenant-a", "evt-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !primeira {
		t.Fatal("first delivery should pass")
	}
}

func TestDedup_RedeliveryIsDropped(t *testing.T) {
	svc, _, cleanup := setupTestDedup(t)
	defer cleanup()

	ctx := context.Background()
	svc.Primeira(ctx, "tenant-a", "evt-001")

	primeira, err := svc.Primeira(ctx, "tenant-a", "evt-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primeira {
		t.Fatal("redelivered event should be dropped")
	}
}

func TestDedup_TenantsAreIsolated(t *testing.T) {
	svc, _, cleanup := setupTestDedup(t)
	defer cleanup()

	ctx := context.Background()
	svc.Primeira(ctx, "tenant-a", "evt-001")

	primeira, _ := svc.Primeira(ctx, "tenant-b", "evt-001")
	if !primeira {
		t.Fatal("same event id under another tenant should pass")
	}
}

func TestDedup_KeyExpiresAfterTTL(t *testing.T) {
	svc, mr, cleanup := setupTestDedup(t)
	defer cleanup()

	ctx := context.Background()
	svc.Primeira(ctx, "tenant-a", "evt-001")

	mr.FastForward(DedupTTL)

	primeira, _ := svc.Primeira(ctx, "tenant-a", "evt-001")
	if !primeira {
		t.Fatal("event id should be forgotten after TTL")
	}
}

func TestDedup_LiberarAllowsRetryAfterFailure(t *testing.T) {
	svc, _, cleanup := setupTestDedup(t)
	defer cleanup()

	ctx := context.Background()
	primeira, err := svc.Primeira(ctx, "tenant-a", "evt-001")
	if err != nil || !primeira {
		t.Fatalf("reservation failed: primeira=%v err=%v", primeira, err)
	}

	// Processing failed; the reservation is given back.
	if err := svc.Liberar(ctx, "tenant-a", "evt-001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	primeira, err = svc.Primeira(ctx, "tenant-a", "evt-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !primeira {
		t.Fatal("released event id should be accepted on redelivery")
	}
}

func TestDedup_ConcurrentDeliveriesResolveToOne(t *testing.T) {
	svc, _, cleanup := setupTestDedup(t)
	defer cleanup()

	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	vencedores := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			primeira, err := svc.Primeira(ctx, "tenant-a", "evt-corrida")
			if err != nil {
				return
			}
			if primeira {
				mu.Lock()
				vencedores++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if vencedores != 1 {
		t.Fatalf("expected exactly one winner, got %d", vencedores)
	}
}
