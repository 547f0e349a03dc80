package mercadolibre

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-order-relay/core"
)

const (
	DefaultAPIBaseURL     = "https://api.mercadolibre.com"
	defaultRequestTimeout = 20 * time.Second
)

type OrderClientConfig struct {
	APIBaseURL     string
	RequestTimeout time.Duration
}

// OrderClient reads orders from the marketplace API with a bearer token.
type OrderClient struct {
	baseURL   string
	timeout   time.Duration
	transport core.TransportAdapter
	tokens    core.TokenSource

	mu       sync.Mutex
	sellerID int64
}

func NewOrderClient(cfg OrderClientConfig, transport core.TransportAdapter, tokens core.TokenSource) (*OrderClient, error) {
	if transport == nil {
		return nil, fmt.Errorf("mercadolibre: transport adapter is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("mercadolibre: token source is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &OrderClient{
		baseURL:   baseURL,
		timeout:   timeout,
		transport: transport,
		tokens:    tokens,
	}, nil
}

// FetchOrder returns the order with its payments.
func (c *OrderClient) FetchOrder(ctx context.Context, orderID string) (core.Order, error) {
	if c == nil {
		return core.Order{}, core.NewFetchError(nil, "mercadolibre: order client is nil", nil)
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return core.Order{}, core.NewFetchError(nil, "mercadolibre: order id is required", nil)
	}
	metadata := map[string]any{"order_id": orderID, "provider_id": core.ProviderMercadoLibre}

	response, err := c.get(ctx, "/orders/"+orderID, map[string]string{"include": "payments"}, metadata)
	if err != nil {
		return core.Order{}, err
	}
	if response.StatusCode == http.StatusNotFound {
		return core.Order{}, core.NewFetchError(nil, "mercadolibre: order not found", metadata)
	}
	if err := expectSuccess(response, "order lookup", metadata); err != nil {
		return core.Order{}, err
	}

	var order core.Order
	if err := json.Unmarshal(response.Body, &order); err != nil {
		return core.Order{}, core.NewFetchError(err, "mercadolibre: decode order response", metadata)
	}
	if order.ID == 0 || strings.TrimSpace(order.Status) == "" {
		return core.Order{}, core.NewFetchError(nil, "mercadolibre: order response missing id or status", metadata)
	}
	return order, nil
}

// SellerID returns the id of the account that owns the refresh token. It is looked up
// once through /users/me.
func (c *OrderClient) SellerID(ctx context.Context) (int64, error) {
	if c == nil {
		return 0, core.NewFetchError(nil, "mercadolibre: order client is nil", nil)
	}
	c.mu.Lock()
	cached := c.sellerID
	c.mu.Unlock()
	if cached != 0 {
		return cached, nil
	}

	metadata := map[string]any{"provider_id": core.ProviderMercadoLibre}
	response, err := c.get(ctx, "/users/me", nil, metadata)
	if err != nil {
		return 0, err
	}
	if err := expectSuccess(response, "user lookup", metadata); err != nil {
		return 0, err
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(response.Body, &user); err != nil {
		return 0, core.NewFetchError(err, "mercadolibre: decode user response", metadata)
	}
	if user.ID == 0 {
		return 0, core.NewFetchError(nil, "mercadolibre: user response missing id", metadata)
	}

	c.mu.Lock()
	c.sellerID = user.ID
	c.mu.Unlock()
	return user.ID, nil
}

// RecentPaidSales lists the seller's latest paid orders, newest first.
func (c *OrderClient) RecentPaidSales(ctx context.Context, limit int) ([]core.SaleSummary, error) {
	if limit <= 0 || limit > core.MaxRecentSalesLimit {
		limit = core.MaxRecentSalesLimit
	}
	sellerID, err := c.SellerID(ctx)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{"provider_id": core.ProviderMercadoLibre, "seller_id": sellerID}
	response, err := c.get(ctx, "/orders/search", map[string]string{
		"seller":       strconv.FormatInt(sellerID, 10),
		"order.status": core.OrderStatusPaid,
		"sort":         "date_desc",
		"limit":        strconv.Itoa(limit),
	}, metadata)
	if err != nil {
		return nil, err
	}
	if err := expectSuccess(response, "order search", metadata); err != nil {
		return nil, err
	}
	var search struct {
		Results []core.Order `json:"results"`
	}
	if err := json.Unmarshal(response.Body, &search); err != nil {
		return nil, core.NewFetchError(err, "mercadolibre: decode order search response", metadata)
	}
	sales := make([]core.SaleSummary, 0, len(search.Results))
	for _, order := range search.Results {
		sales = append(sales, core.SummarizeSale(order))
	}
	return sales, nil
}

// get performs an authorized GET. A 401 drops the cached token and the request is
// attempted once more with a freshly exchanged one.
func (c *OrderClient) get(ctx context.Context, path string, query map[string]string, metadata map[string]any) (core.TransportResponse, error) {
	response, err := c.do(ctx, path, query, metadata)
	if err != nil {
		return core.TransportResponse{}, err
	}
	if response.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		return c.do(ctx, path, query, metadata)
	}
	return response, nil
}

func (c *OrderClient) do(ctx context.Context, path string, query map[string]string, metadata map[string]any) (core.TransportResponse, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return core.TransportResponse{}, err
	}
	response, err := c.transport.Do(ctx, core.TransportRequest{
		Method: http.MethodGet,
		URL:    c.baseURL + path,
		Query:  query,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"Accept":        "application/json",
		},
		Timeout: c.timeout,
	})
	if err != nil {
		return core.TransportResponse{}, core.NewFetchError(err, "mercadolibre: request failed", metadata)
	}
	return response, nil
}

func expectSuccess(response core.TransportResponse, operation string, metadata map[string]any) error {
	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	metadata["status_code"] = response.StatusCode
	return core.NewFetchError(
		nil,
		fmt.Sprintf("mercadolibre: %s returned status %d", operation, response.StatusCode),
		metadata,
	)
}

var (
	_ core.OrderFetcher = (*OrderClient)(nil)
	_ core.SalesLister  = (*OrderClient)(nil)
)
