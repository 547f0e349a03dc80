package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	ProviderMercadoLibre = "mercadolibre"
	SurfaceWebhook       = "webhook"
)

type Notification struct {
	ID            string `json:"_id,omitempty"`
	Resource      string `json:"resource"`
	Topic         string `json:"topic"`
	UserID        int64  `json:"user_id,omitempty"`
	ApplicationID int64  `json:"application_id,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	Sent          string `json:"sent,omitempty"`
	Received      string `json:"received,omitempty"`
}

type ActiveCredential struct {
	TokenType    string
	AccessToken  string
	RefreshToken string
	Scope        string
	UserID       string
	ExpiresAt    *time.Time
	Refreshable  bool
	Metadata     map[string]any
}

type OrderParty struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname,omitempty"`
}

type Payment struct {
	ID                int64    `json:"id"`
	Status            string   `json:"status"`
	StatusDetail      string   `json:"status_detail,omitempty"`
	TransactionAmount *float64 `json:"transaction_amount,omitempty"`
	DateApproved      string   `json:"date_approved,omitempty"`
}

type Order struct {
	ID           int64       `json:"id"`
	Status       string      `json:"status"`
	StatusDetail string      `json:"status_detail,omitempty"`
	DateCreated  string      `json:"date_created,omitempty"`
	DateClosed   string      `json:"date_closed,omitempty"`
	TotalAmount  *float64    `json:"total_amount,omitempty"`
	PaidAmount   *float64    `json:"paid_amount,omitempty"`
	CurrencyID   string      `json:"currency_id,omitempty"`
	Fulfilled    *bool       `json:"fulfilled,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
	InternalTags []string    `json:"internal_tags,omitempty"`
	Buyer        *OrderParty `json:"buyer,omitempty"`
	Seller       *OrderParty `json:"seller,omitempty"`
	Payments     []Payment   `json:"payments,omitempty"`
}

type ForwardPayload struct {
	Topic        string   `json:"topic"`
	Resource     string   `json:"resource"`
	OrderID      string   `json:"order_id"`
	Sent         string   `json:"sent"`
	SentUnix     int64    `json:"sent_unix"`
	OrderStatus  string   `json:"order_status"`
	SellerID     *int64   `json:"seller_id"`
	BuyerID      *int64   `json:"buyer_id"`
	TotalAmount  *float64 `json:"total_amount"`
	PaidAmount   *float64 `json:"paid_amount"`
	Tags         []string `json:"tags"`
	InternalTags []string `json:"internal_tags"`
	Fulfilled    bool     `json:"fulfilled"`
}

// SaleSummary is one row of the seller's recent paid sales listing.
type SaleSummary struct {
	OrderID     int64    `json:"pedido_id"`
	DateCreated string   `json:"data"`
	Buyer       string   `json:"comprador"`
	Total       *float64 `json:"total"`
	Status      string   `json:"status"`
}

type ForwardResult struct {
	StatusCode int
	Duration   time.Duration
}

// Outcome summarizes how a single notification was handled.
type Outcome struct {
	Status        string
	Reason        string
	Topic         string
	Resource      string
	OrderID       string
	OrderStatus   string
	Forwarded     bool
	ForwardStatus int
}

func (o Outcome) Metadata() map[string]any {
	metadata := map[string]any{
		"status":    o.Status,
		"forwarded": o.Forwarded,
	}
	if o.Reason != "" {
		metadata["reason"] = o.Reason
	}
	if o.Topic != "" {
		metadata["topic"] = o.Topic
	}
	if o.Resource != "" {
		metadata["resource"] = o.Resource
	}
	if o.OrderID != "" {
		metadata["order_id"] = o.OrderID
	}
	if o.OrderStatus != "" {
		metadata["order_status"] = o.OrderStatus
	}
	if o.ForwardStatus != 0 {
		metadata["forward_status"] = o.ForwardStatus
	}
	return metadata
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundRequest struct {
	ProviderID string
	Surface    string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

type OrderFetcher interface {
	FetchOrder(ctx context.Context, orderID string) (Order, error)
}

type SalesLister interface {
	RecentPaidSales(ctx context.Context, limit int) ([]SaleSummary, error)
}

// OrderCacheInvalidator is implemented by fetchers that keep orders between lookups.
type OrderCacheInvalidator interface {
	Forget(ctx context.Context, orderID string) error
}

type Forwarder interface {
	Forward(ctx context.Context, payload ForwardPayload) (ForwardResult, error)
}

// OrderClaimStore guards the forward-once-per-order rule.
type OrderClaimStore interface {
	ClaimOrder(ctx context.Context, orderID string) (bool, error)
	CompleteOrder(ctx context.Context, orderID string) error
	ReleaseOrder(ctx context.Context, orderID string) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
