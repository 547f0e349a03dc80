package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	OrderClaimStatusClaimed   = "claimed"
	OrderClaimStatusForwarded = "forwarded"
	OrderClaimStatusReleased  = "released"
)

type OrderClaim struct {
	OrderID   string
	Status    string
	ClaimedAt time.Time
	UpdatedAt time.Time
}

// MemoryOrderClaimStore keeps order claims for the lifetime of the process.
type MemoryOrderClaimStore struct {
	mu     sync.Mutex
	claims map[string]OrderClaim
	Now    func() time.Time
}

func NewMemoryOrderClaimStore() *MemoryOrderClaimStore {
	return &MemoryOrderClaimStore{
		claims: map[string]OrderClaim{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryOrderClaimStore) ClaimOrder(_ context.Context, orderID string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: order claim store is nil")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, fmt.Errorf("core: order id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims == nil {
		s.claims = map[string]OrderClaim{}
	}
	now := s.now()
	if existing, ok := s.claims[orderID]; ok && existing.Status != OrderClaimStatusReleased {
		return false, nil
	}
	s.claims[orderID] = OrderClaim{
		OrderID:   orderID,
		Status:    OrderClaimStatusClaimed,
		ClaimedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (s *MemoryOrderClaimStore) CompleteOrder(_ context.Context, orderID string) error {
	return s.transition(orderID, OrderClaimStatusForwarded)
}

func (s *MemoryOrderClaimStore) ReleaseOrder(_ context.Context, orderID string) error {
	return s.transition(orderID, OrderClaimStatusReleased)
}

func (s *MemoryOrderClaimStore) Get(orderID string) (OrderClaim, bool) {
	if s == nil {
		return OrderClaim{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[strings.TrimSpace(orderID)]
	return claim, ok
}

func (s *MemoryOrderClaimStore) transition(orderID string, status string) error {
	if s == nil {
		return fmt.Errorf("core: order claim store is nil")
	}
	orderID = strings.TrimSpace(orderID)
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[orderID]
	if !ok {
		return fmt.Errorf("core: order claim %q not found", orderID)
	}
	claim.Status = status
	claim.UpdatedAt = s.now()
	s.claims[orderID] = claim
	return nil
}

func (s *MemoryOrderClaimStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ OrderClaimStore = (*MemoryOrderClaimStore)(nil)
