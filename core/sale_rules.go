package core

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	OrderStatusPaid      = "paid"
	OrderStatusConfirmed = "confirmed"
	PaymentStatusApprove = "approved"

	BlockFulfilled         = "blocked_fulfilled"
	BlockDelivered         = "blocked_delivered"
	BlockInvoiceAuthorized = "blocked_invoice_authorized"

	// MaxRecentSalesLimit is the marketplace's page size cap for order search.
	MaxRecentSalesLimit = 50
)

var orderResourcePattern = regexp.MustCompile(`/orders/(\d+)`)

// ExtractOrderID returns the numeric order id referenced by a notification resource.
func ExtractOrderID(resource string) (string, bool) {
	match := orderResourcePattern.FindStringSubmatch(strings.TrimSpace(resource))
	if len(match) < 2 {
		return "", false
	}
	return match[1], true
}

func HasApprovedPayment(order Order) bool {
	for _, payment := range order.Payments {
		if strings.EqualFold(strings.TrimSpace(payment.Status), PaymentStatusApprove) {
			return true
		}
	}
	return false
}

// IsPaidSale accepts paid orders and confirmed orders carrying an approved payment.
func IsPaidSale(order Order) bool {
	status := strings.ToLower(strings.TrimSpace(order.Status))
	switch status {
	case OrderStatusPaid:
		return true
	case OrderStatusConfirmed:
		return HasApprovedPayment(order)
	default:
		return false
	}
}

// BlockReason returns the first semantic block that applies to order, or "".
func BlockReason(order Order) string {
	if order.Fulfilled != nil && *order.Fulfilled {
		return BlockFulfilled
	}
	if containsFold(order.Tags, "delivered") {
		return BlockDelivered
	}
	if containsFold(order.InternalTags, "invoice_authorized") {
		return BlockInvoiceAuthorized
	}
	return ""
}

// BuildForwardPayload projects the notification and order into the downstream payload.
// SentUnix is the relay's processing time, not the notification timestamp.
func BuildForwardPayload(n Notification, orderID string, order Order, now time.Time, location *time.Location) ForwardPayload {
	if location == nil {
		location = time.UTC
	}
	now = normalizeNow(now)
	sent := strings.TrimSpace(n.Sent)
	if sent == "" {
		sent = now.In(location).Format(time.RFC3339)
	}
	if orderID == "" && order.ID != 0 {
		orderID = strconv.FormatInt(order.ID, 10)
	}

	payload := ForwardPayload{
		Topic:        strings.TrimSpace(n.Topic),
		Resource:     strings.TrimSpace(n.Resource),
		OrderID:      orderID,
		Sent:         sent,
		SentUnix:     now.Unix(),
		OrderStatus:  strings.ToLower(strings.TrimSpace(order.Status)),
		TotalAmount:  order.TotalAmount,
		PaidAmount:   order.PaidAmount,
		Tags:         normalizeTags(order.Tags),
		InternalTags: normalizeTags(order.InternalTags),
		Fulfilled:    order.Fulfilled != nil && *order.Fulfilled,
	}
	if order.Seller != nil {
		id := order.Seller.ID
		payload.SellerID = &id
	}
	if order.Buyer != nil {
		id := order.Buyer.ID
		payload.BuyerID = &id
	}
	return payload
}

// SummarizeSale projects an order search result into a sales listing row.
func SummarizeSale(order Order) SaleSummary {
	summary := SaleSummary{
		OrderID:     order.ID,
		DateCreated: strings.TrimSpace(order.DateCreated),
		Total:       order.TotalAmount,
		Status:      strings.ToLower(strings.TrimSpace(order.Status)),
	}
	if order.Buyer != nil {
		summary.Buyer = strings.TrimSpace(order.Buyer.Nickname)
	}
	return summary
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), target) {
			return true
		}
	}
	return false
}
