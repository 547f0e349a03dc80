package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-order-relay/core"
)

const (
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusFailed     = "failed"
)

const defaultClaimLease = 30 * time.Second

type DeliveryRecord struct {
	ID         string    `json:"id"`
	ClaimID    string    `json:"-"`
	ProviderID string    `json:"provider_id"`
	DeliveryID string    `json:"delivery_id"`
	Status     string    `json:"status"`
	Outcome    string    `json:"outcome,omitempty"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DeliveryLedger tracks inbound deliveries so a redelivered notification is handled once.
// A processing claim older than the lease, or a failed one, can be claimed again.
type DeliveryLedger interface {
	Claim(
		ctx context.Context,
		providerID string,
		deliveryID string,
		lease time.Duration,
	) (DeliveryRecord, bool, error)
	Get(ctx context.Context, providerID string, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string, outcome string) error
	Fail(ctx context.Context, claimID string, cause error) error
}

type DeliveryFilter struct {
	ProviderID string
	Status     string
	Limit      int
	Offset     int
}

type DeliveryPage struct {
	Items  []DeliveryRecord `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type DeliveryLister interface {
	ListDeliveries(ctx context.Context, filter DeliveryFilter) (DeliveryPage, error)
}

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type DeliveryIDExtractor func(req core.InboundRequest) (string, error)

type Handler interface {
	Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type Processor struct {
	Verifier   Verifier
	Ledger     DeliveryLedger
	Handler    Handler
	ExtractID  DeliveryIDExtractor
	ClaimLease time.Duration
}

func NewProcessor(verifier Verifier, ledger DeliveryLedger, handler Handler) *Processor {
	return &Processor{
		Verifier:   verifier,
		Ledger:     ledger,
		Handler:    handler,
		ExtractID:  DefaultDeliveryIDExtractor,
		ClaimLease: defaultClaimLease,
	}
}

// Process verifies, dedupes and dispatches one inbound delivery. Handler errors are
// recorded on the ledger and returned alongside the handler result, so callers can tell
// an acknowledged failure (Accepted) from a rejected request.
func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: processor requires handler and ledger")
	}

	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		return core.InboundResult{}, fmt.Errorf("webhooks: provider id is required")
	}
	req.ProviderID = providerID

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"provider_id": providerID,
					"rejected":    true,
				},
			}, core.NewSignatureError(err, "webhooks: signature verification failed")
		}
	}

	extractor := p.ExtractID
	if extractor == nil {
		extractor = DefaultDeliveryIDExtractor
	}
	deliveryID, err := extractor(req)
	if err != nil {
		return core.InboundResult{}, err
	}

	delivery, claimed, err := p.Ledger.Claim(ctx, providerID, deliveryID, p.claimLease())
	if err != nil {
		return core.InboundResult{}, err
	}
	if !claimed {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"provider_id": providerID,
				"delivery_id": delivery.DeliveryID,
				"status":      delivery.Status,
				"deduped":     true,
			},
		}, nil
	}

	result, err := p.Handler.Handle(ctx, req)
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["provider_id"] = providerID
	result.Metadata["delivery_id"] = deliveryID
	if err != nil {
		if failErr := p.Ledger.Fail(ctx, delivery.ClaimID, err); failErr != nil {
			return core.InboundResult{}, failErr
		}
		return result, err
	}
	if !result.Accepted {
		rejectErr := fmt.Errorf("webhooks: delivery handler rejected delivery with status %d", result.StatusCode)
		if failErr := p.Ledger.Fail(ctx, delivery.ClaimID, rejectErr); failErr != nil {
			return core.InboundResult{}, failErr
		}
		return result, rejectErr
	}

	outcome := strings.TrimSpace(fmt.Sprint(result.Metadata["status"]))
	if outcome == "<nil>" {
		outcome = ""
	}
	if err := p.Ledger.Complete(ctx, delivery.ClaimID, outcome); err != nil {
		return core.InboundResult{}, err
	}
	return result, nil
}

// DefaultDeliveryIDExtractor reads a delivery id from request metadata or common headers.
func DefaultDeliveryIDExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["delivery_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
	}
	if value := headerValue(req.Headers, "x-delivery-id"); value != "" {
		return value, nil
	}
	if value := headerValue(req.Headers, "x-request-id"); value != "" {
		return value, nil
	}
	return "", core.NewBadInputError(nil, "webhooks: delivery id is required for dedupe", nil)
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return defaultClaimLease
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
