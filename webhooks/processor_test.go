package webhooks

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-order-relay/core"
)

func TestProcessor_DedupesDeliveries(t *testing.T) {
	ledger := NewMemoryLedger()
	handler := &stubWebhookHandler{
		result: core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata:   map[string]any{"status": "processed"},
		},
	}
	processor := NewProcessor(stubVerifier{err: nil}, ledger, handler)

	req := core.InboundRequest{
		ProviderID: "mercadolibre",
		Metadata: map[string]any{
			"delivery_id": "delivery-1",
		},
	}

	first, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process first webhook: %v", err)
	}
	if !first.Accepted {
		t.Fatalf("expected first delivery accepted")
	}
	if handler.calls != 1 {
		t.Fatalf("expected handler to be called once")
	}

	second, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process duplicate webhook: %v", err)
	}
	if !second.Accepted {
		t.Fatalf("expected duplicate to be accepted as deduped")
	}
	if second.Metadata["deduped"] != true {
		t.Fatalf("expected deduped metadata marker")
	}
	if handler.calls != 1 {
		t.Fatalf("expected handler call count to remain unchanged for duplicate")
	}

	record, err := ledger.Get(context.Background(), "mercadolibre", "delivery-1")
	if err != nil {
		t.Fatalf("load delivery record: %v", err)
	}
	if record.Status != DeliveryStatusProcessed || record.Outcome != "processed" {
		t.Fatalf("unexpected delivery record %+v", record)
	}
}

func TestProcessor_MarksFailedDeliveryReclaimable(t *testing.T) {
	ledger := NewMemoryLedger()
	handler := &stubWebhookHandler{
		result: core.InboundResult{Accepted: true, StatusCode: http.StatusOK},
		err:    errors.New("forward failed"),
	}
	processor := NewProcessor(stubVerifier{}, ledger, handler)

	req := core.InboundRequest{
		ProviderID: "mercadolibre",
		Headers:    map[string]string{"X-Delivery-Id": "42"},
	}
	result, err := processor.Process(context.Background(), req)
	if err == nil {
		t.Fatalf("expected handler error to be returned")
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("expected acknowledged result to pass through, got %+v", result)
	}

	record, err := ledger.Get(context.Background(), "mercadolibre", "42")
	if err != nil {
		t.Fatalf("load delivery record: %v", err)
	}
	if record.Status != DeliveryStatusFailed {
		t.Fatalf("expected failed status, got %q", record.Status)
	}
	if record.LastError != "forward failed" {
		t.Fatalf("expected last error to be recorded, got %q", record.LastError)
	}

	handler.err = nil
	if _, err := processor.Process(context.Background(), req); err != nil {
		t.Fatalf("process redelivery: %v", err)
	}
	if handler.calls != 2 {
		t.Fatalf("expected failed delivery to be handled again, got %d calls", handler.calls)
	}
	record, _ = ledger.Get(context.Background(), "mercadolibre", "42")
	if record.Status != DeliveryStatusProcessed || record.Attempts != 2 {
		t.Fatalf("expected processed record after second attempt, got %+v", record)
	}
}

func TestProcessor_RejectedResultFailsDelivery(t *testing.T) {
	ledger := NewMemoryLedger()
	handler := &stubWebhookHandler{
		result: core.InboundResult{Accepted: false, StatusCode: http.StatusInternalServerError},
	}
	processor := NewProcessor(stubVerifier{}, ledger, handler)

	result, err := processor.Process(context.Background(), core.InboundRequest{
		ProviderID: "mercadolibre",
		Metadata:   map[string]any{"delivery_id": "d-500"},
	})
	if err == nil {
		t.Fatalf("expected rejection error")
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected handler status to pass through, got %d", result.StatusCode)
	}
	record, _ := ledger.Get(context.Background(), "mercadolibre", "d-500")
	if record.Status != DeliveryStatusFailed {
		t.Fatalf("expected failed status, got %q", record.Status)
	}
}

func TestProcessor_RejectsInvalidSignature(t *testing.T) {
	ledger := NewMemoryLedger()
	handler := &stubWebhookHandler{}
	processor := NewProcessor(stubVerifier{err: errors.New("signature mismatch")}, ledger, handler)

	result, err := processor.Process(context.Background(), core.InboundRequest{
		ProviderID: "mercadolibre",
		Metadata: map[string]any{
			"delivery_id": "delivery-2",
		},
	})
	if err == nil {
		t.Fatalf("expected verifier error")
	}
	if result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized status code, got %d", result.StatusCode)
	}
	if mapped := core.MapError(err); mapped.TextCode != core.RelayErrorSignatureInvalid {
		t.Fatalf("expected signature text code, got %q", mapped.TextCode)
	}
	if handler.calls != 0 {
		t.Fatalf("expected handler not to run when verification fails")
	}
	if _, err := ledger.Get(context.Background(), "mercadolibre", "delivery-2"); err == nil {
		t.Fatalf("expected no ledger record for rejected delivery")
	}
}

func TestProcessor_RequiresDeliveryID(t *testing.T) {
	processor := NewProcessor(nil, NewMemoryLedger(), &stubWebhookHandler{})
	_, err := processor.Process(context.Background(), core.InboundRequest{ProviderID: "mercadolibre"})
	if err == nil {
		t.Fatalf("expected missing delivery id error")
	}
	if mapped := core.MapError(err); mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request code, got %d", mapped.Code)
	}
}

func TestMemoryLedger_ReclaimsExpiredProcessingLease(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryLedger()
	ledger.Now = func() time.Time { return now }

	first, claimed, err := ledger.Claim(context.Background(), "mercadolibre", "d-1", 30*time.Second)
	if err != nil || !claimed {
		t.Fatalf("expected first claim, claimed=%v err=%v", claimed, err)
	}
	if _, claimed, _ := ledger.Claim(context.Background(), "mercadolibre", "d-1", 30*time.Second); claimed {
		t.Fatalf("expected active lease to block second claim")
	}

	now = now.Add(31 * time.Second)
	second, claimed, err := ledger.Claim(context.Background(), "mercadolibre", "d-1", 30*time.Second)
	if err != nil || !claimed {
		t.Fatalf("expected expired lease to be reclaimed, claimed=%v err=%v", claimed, err)
	}
	if second.ClaimID == first.ClaimID {
		t.Fatalf("expected new claim id on reclaim")
	}
	if err := ledger.Complete(context.Background(), first.ClaimID, "processed"); err == nil {
		t.Fatalf("expected stale claim id to be rejected")
	}
	if err := ledger.Complete(context.Background(), second.ClaimID, "processed"); err != nil {
		t.Fatalf("complete reclaimed delivery: %v", err)
	}
}

func TestMemoryLedger_ListDeliveriesFiltersAndPages(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryLedger()
	ledger.Now = func() time.Time { return now }

	for _, id := range []string{"a", "b", "c"} {
		record, _, err := ledger.Claim(context.Background(), "mercadolibre", id, time.Minute)
		if err != nil {
			t.Fatalf("claim %s: %v", id, err)
		}
		if id == "b" {
			_ = ledger.Fail(context.Background(), record.ClaimID, errors.New("boom"))
		} else {
			_ = ledger.Complete(context.Background(), record.ClaimID, "processed")
		}
		now = now.Add(time.Second)
	}

	page, err := ledger.ListDeliveries(context.Background(), DeliveryFilter{Status: "processed", Limit: 1})
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 1 {
		t.Fatalf("expected 1 of 2 processed deliveries, got %+v", page)
	}
	if page.Items[0].DeliveryID != "c" {
		t.Fatalf("expected newest delivery first, got %q", page.Items[0].DeliveryID)
	}

	page, err = ledger.ListDeliveries(context.Background(), DeliveryFilter{Offset: 10})
	if err != nil {
		t.Fatalf("list deliveries past end: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 0 || page.Limit != DefaultDeliveryPageLimit {
		t.Fatalf("unexpected page past end %+v", page)
	}
}

type stubVerifier struct {
	err error
}

func (v stubVerifier) Verify(context.Context, core.InboundRequest) error {
	return v.err
}

type stubWebhookHandler struct {
	result core.InboundResult
	err    error
	calls  int
}

func (h *stubWebhookHandler) Handle(context.Context, core.InboundRequest) (core.InboundResult, error) {
	h.calls++
	return h.result, h.err
}
