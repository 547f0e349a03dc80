package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemoryOrderClaimStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryOrderClaimStore()

	claimed, err := store.ClaimOrder(ctx, " 123 ")
	if err != nil || !claimed {
		t.Fatalf("expected first claim, got %v %v", claimed, err)
	}
	if claimed, _ := store.ClaimOrder(ctx, "123"); claimed {
		t.Fatalf("expected in-flight order to stay claimed")
	}
	if err := store.ReleaseOrder(ctx, "123"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if claimed, _ := store.ClaimOrder(ctx, "123"); !claimed {
		t.Fatalf("expected released order to be claimable")
	}
	if err := store.CompleteOrder(ctx, "123"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if claimed, _ := store.ClaimOrder(ctx, "123"); claimed {
		t.Fatalf("expected forwarded order to never be claimed again")
	}
	claim, ok := store.Get("123")
	if !ok || claim.Status != OrderClaimStatusForwarded {
		t.Fatalf("unexpected claim %+v", claim)
	}
	if err := store.CompleteOrder(ctx, "999"); err == nil {
		t.Fatalf("expected unknown order error")
	}
	if _, err := store.ClaimOrder(ctx, ""); err == nil {
		t.Fatalf("expected empty order id error")
	}
}

func TestMemoryOrderClaimStore_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	store := NewMemoryOrderClaimStore()
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if claimed, err := store.ClaimOrder(context.Background(), "42"); err == nil && claimed {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	if winners.Load() != 1 {
		t.Fatalf("expected one winner, got %d", winners.Load())
	}
}
