package query

import (
	"strings"

	"github.com/goliatone/go-order-relay/core"
	"github.com/goliatone/go-order-relay/webhooks"
)

const (
	TypeListDeliveries = "relay.query.deliveries.list"
	TypeGetDelivery    = "relay.query.deliveries.get"
	TypeRecentSales    = "relay.query.sales.recent"
)

type ListDeliveriesMessage struct {
	Filter webhooks.DeliveryFilter
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Filter.Limit > webhooks.MaxDeliveryPageLimit {
		return queryValidationError("limit", "limit exceeds maximum page size")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	switch strings.TrimSpace(m.Filter.Status) {
	case "", webhooks.DeliveryStatusProcessing, webhooks.DeliveryStatusProcessed, webhooks.DeliveryStatusFailed:
		return nil
	default:
		return queryValidationError("status", "unknown delivery status")
	}
}

type GetDeliveryMessage struct {
	ProviderID string
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return queryValidationError("provider_id", "provider id is required")
	}
	if strings.TrimSpace(m.DeliveryID) == "" {
		return queryValidationError("delivery_id", "delivery id is required")
	}
	return nil
}

// RecentSalesMessage asks for the seller's latest paid sales. Zero means the
// marketplace maximum.
type RecentSalesMessage struct {
	Limit int
}

func (RecentSalesMessage) Type() string { return TypeRecentSales }

func (m RecentSalesMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Limit > core.MaxRecentSalesLimit {
		return queryValidationError("limit", "limit exceeds maximum page size")
	}
	return nil
}
