package webhooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is a process-local DeliveryLedger. It is the default when no SQL store
// is configured; dedupe state is lost on restart.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]DeliveryRecord
	claims  map[string]string
	Now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: map[string]DeliveryRecord{},
		claims:  map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryLedger) Claim(
	_ context.Context,
	providerID string,
	deliveryID string,
	lease time.Duration,
) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: memory ledger is nil")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensure()

	now := l.now()
	key := ledgerKey(providerID, deliveryID)
	record, ok := l.records[key]
	if !ok {
		record = DeliveryRecord{
			ID:         uuid.NewString(),
			ClaimID:    uuid.NewString(),
			ProviderID: providerID,
			DeliveryID: deliveryID,
			Status:     DeliveryStatusProcessing,
			Attempts:   1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		l.records[key] = record
		l.claims[record.ClaimID] = key
		return record, true, nil
	}

	reclaimable := record.Status == DeliveryStatusFailed ||
		(record.Status == DeliveryStatusProcessing && !record.UpdatedAt.Add(lease).After(now))
	if !reclaimable {
		return record, false, nil
	}
	delete(l.claims, record.ClaimID)
	record.ClaimID = uuid.NewString()
	record.Status = DeliveryStatusProcessing
	record.Attempts++
	record.UpdatedAt = now
	l.records[key] = record
	l.claims[record.ClaimID] = key
	return record, true, nil
}

func (l *MemoryLedger) Get(_ context.Context, providerID string, deliveryID string) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("webhooks: memory ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[ledgerKey(strings.TrimSpace(providerID), strings.TrimSpace(deliveryID))]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery %s/%s not found", providerID, deliveryID)
	}
	return record, nil
}

func (l *MemoryLedger) Complete(_ context.Context, claimID string, outcome string) error {
	return l.transition(claimID, func(record *DeliveryRecord) {
		record.Status = DeliveryStatusProcessed
		record.Outcome = strings.TrimSpace(outcome)
		record.LastError = ""
	})
}

func (l *MemoryLedger) Fail(_ context.Context, claimID string, cause error) error {
	return l.transition(claimID, func(record *DeliveryRecord) {
		record.Status = DeliveryStatusFailed
		if cause != nil {
			record.LastError = cause.Error()
		}
	})
}

func (l *MemoryLedger) ListDeliveries(_ context.Context, filter DeliveryFilter) (DeliveryPage, error) {
	if l == nil {
		return DeliveryPage{}, fmt.Errorf("webhooks: memory ledger is nil")
	}
	filter = NormalizeDeliveryFilter(filter)

	l.mu.Lock()
	matched := make([]DeliveryRecord, 0, len(l.records))
	for _, record := range l.records {
		if filter.ProviderID != "" && record.ProviderID != filter.ProviderID {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		matched = append(matched, record)
	}
	l.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].DeliveryID < matched[j].DeliveryID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := DeliveryPage{Total: len(matched), Limit: filter.Limit, Offset: filter.Offset}
	if filter.Offset >= len(matched) {
		page.Items = []DeliveryRecord{}
		return page, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Items = append([]DeliveryRecord(nil), matched[filter.Offset:end]...)
	return page, nil
}

const (
	DefaultDeliveryPageLimit = 50
	MaxDeliveryPageLimit     = 500
)

// NormalizeDeliveryFilter trims the filter and clamps paging to sane bounds.
func NormalizeDeliveryFilter(filter DeliveryFilter) DeliveryFilter {
	filter.ProviderID = strings.TrimSpace(filter.ProviderID)
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	if filter.Limit <= 0 {
		filter.Limit = DefaultDeliveryPageLimit
	}
	if filter.Limit > MaxDeliveryPageLimit {
		filter.Limit = MaxDeliveryPageLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter
}

func (l *MemoryLedger) transition(claimID string, apply func(*DeliveryRecord)) error {
	if l == nil {
		return fmt.Errorf("webhooks: memory ledger is nil")
	}
	claimID = strings.TrimSpace(claimID)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensure()
	key, ok := l.claims[claimID]
	if !ok {
		return fmt.Errorf("webhooks: delivery claim %q not found", claimID)
	}
	record := l.records[key]
	if record.Status != DeliveryStatusProcessing {
		return fmt.Errorf("webhooks: delivery claim %q is %s", claimID, record.Status)
	}
	apply(&record)
	record.UpdatedAt = l.now()
	l.records[key] = record
	return nil
}

func (l *MemoryLedger) ensure() {
	if l.records == nil {
		l.records = map[string]DeliveryRecord{}
	}
	if l.claims == nil {
		l.claims = map[string]string{}
	}
}

func (l *MemoryLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func ledgerKey(providerID string, deliveryID string) string {
	return providerID + ":" + deliveryID
}

var (
	_ DeliveryLedger = (*MemoryLedger)(nil)
	_ DeliveryLister = (*MemoryLedger)(nil)
)
