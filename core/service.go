package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	OutcomeProcessed      = "processed"
	OutcomeIgnored        = "ignored"
	OutcomeIgnoredOrder   = "ignored_order"
	OutcomeDuplicateOrder = "duplicate_order"
	OutcomeAuthError      = "auth_error"
	OutcomeFetchError     = "fetch_error"
	OutcomeForwardError   = "forward_error"
	OutcomeClaimError     = "claim_error"

	ReasonTopicNotAllowed = "topic_not_allowed"
	ReasonNoOrderID       = "resource_without_order_id"
	ReasonNotPaid         = "not_paid"
)

// Service turns a marketplace notification into at most one downstream forward.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	orderFetcher    OrderFetcher
	forwarder       Forwarder
	orderClaims     OrderClaimStore
	now             func() time.Time
	location        *time.Location
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("relay", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("relay"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	finalConfig, err := ResolveConfig(context.Background(), builder.runtimeConfig, builder.configProvider, builder.optionsResolver)
	if err != nil {
		return nil, builder.errorMapper(err)
	}

	if builder.orderFetcher == nil {
		return nil, builder.errorMapper(fmt.Errorf("core: order fetcher is required"))
	}
	if builder.forwarder == nil {
		return nil, builder.errorMapper(fmt.Errorf("core: forwarder is required"))
	}
	if builder.orderClaims == nil {
		builder.orderClaims = NewMemoryOrderClaimStore()
	}
	if builder.location == nil {
		location, locErr := time.LoadLocation(strings.TrimSpace(finalConfig.Forward.SentTimezone))
		if locErr != nil {
			logger.Warn("sent timezone unavailable, using UTC", "timezone", finalConfig.Forward.SentTimezone, "error", locErr.Error())
			location = time.UTC
		}
		builder.location = location
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		orderFetcher:    builder.orderFetcher,
		forwarder:       builder.forwarder,
		orderClaims:     builder.orderClaims,
		now:             builder.now,
		location:        builder.location,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// Handle adapts the relay to the webhook processor. Downstream auth, fetch and forward
// failures are still acknowledged so the marketplace does not redeliver.
func (s *Service) Handle(ctx context.Context, req InboundRequest) (InboundResult, error) {
	if s == nil {
		return InboundResult{}, fmt.Errorf("core: service is nil")
	}
	notification, err := DecodeNotification(req.Body)
	if err != nil {
		return InboundResult{}, err
	}
	outcome, err := s.HandleNotification(ctx, notification)
	result := InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   outcome.Metadata(),
	}
	if err != nil && outcome.Status == OutcomeClaimError {
		result.Accepted = false
		result.StatusCode = http.StatusInternalServerError
	}
	return result, err
}

func (s *Service) HandleNotification(ctx context.Context, n Notification) (outcome Outcome, err error) {
	if s == nil {
		return Outcome{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()
	outcome = Outcome{
		Topic:    strings.TrimSpace(n.Topic),
		Resource: strings.TrimSpace(n.Resource),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "handle_notification", err, outcome.logFields())
	}()

	if !s.config.Webhook.TopicAllowed(outcome.Topic) {
		outcome.Status = OutcomeIgnored
		outcome.Reason = ReasonTopicNotAllowed
		return outcome, nil
	}
	orderID, ok := ExtractOrderID(outcome.Resource)
	if !ok {
		outcome.Status = OutcomeIgnored
		outcome.Reason = ReasonNoOrderID
		return outcome, nil
	}
	outcome.OrderID = orderID

	order, err := s.orderFetcher.FetchOrder(ctx, orderID)
	if err != nil {
		outcome.Status = OutcomeFetchError
		switch {
		case IsAuthError(err):
			outcome.Status = OutcomeAuthError
		case !IsFetchError(err):
			err = NewFetchError(err, "core: order lookup failed", map[string]any{"order_id": orderID})
		}
		return outcome, s.errorMapper(err)
	}
	outcome.OrderStatus = strings.ToLower(strings.TrimSpace(order.Status))

	if block := BlockReason(order); block != "" {
		outcome.Status = OutcomeIgnoredOrder
		outcome.Reason = block
		return outcome, nil
	}
	if !IsPaidSale(order) {
		outcome.Status = OutcomeIgnoredOrder
		outcome.Reason = ReasonNotPaid
		return outcome, nil
	}

	claimed, err := s.orderClaims.ClaimOrder(ctx, orderID)
	if err != nil {
		outcome.Status = OutcomeClaimError
		return outcome, s.errorMapper(err)
	}
	if !claimed {
		outcome.Status = OutcomeDuplicateOrder
		return outcome, nil
	}

	payload := BuildForwardPayload(n, orderID, order, s.now(), s.location)
	result, err := s.forwarder.Forward(ctx, payload)
	outcome.ForwardStatus = result.StatusCode
	if err != nil {
		if releaseErr := s.orderClaims.ReleaseOrder(ctx, orderID); releaseErr != nil {
			s.logError(ctx, "order claim release failed", map[string]any{
				"order_id": orderID,
				"error":    releaseErr.Error(),
			})
		}
		s.forgetOrder(ctx, orderID)
		if !IsForwardError(err) {
			err = NewForwardError(err, "core: forward failed", map[string]any{"order_id": orderID})
		}
		outcome.Status = OutcomeForwardError
		return outcome, s.errorMapper(err)
	}
	if completeErr := s.orderClaims.CompleteOrder(ctx, orderID); completeErr != nil {
		s.logError(ctx, "order claim completion failed", map[string]any{
			"order_id": orderID,
			"error":    completeErr.Error(),
		})
	}
	outcome.Status = OutcomeProcessed
	outcome.Forwarded = true
	return outcome, nil
}

// forgetOrder drops a cached order so a redelivery sees its current state.
func (s *Service) forgetOrder(ctx context.Context, orderID string) {
	cached, ok := s.orderFetcher.(OrderCacheInvalidator)
	if !ok {
		return
	}
	if err := cached.Forget(ctx, orderID); err != nil {
		s.logError(ctx, "order cache eviction failed", map[string]any{
			"order_id": orderID,
			"error":    err.Error(),
		})
	}
}

// DecodeNotification parses a notification body and requires topic and resource.
func DecodeNotification(body []byte) (Notification, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return Notification{}, NewBadInputError(nil, "core: notification body is required", nil)
	}
	var notification Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		return Notification{}, NewBadInputError(err, "core: notification body is malformed json", nil)
	}
	notification.Topic = strings.TrimSpace(notification.Topic)
	notification.Resource = strings.TrimSpace(notification.Resource)
	if notification.Resource == "" {
		return Notification{}, NewBadInputError(nil, "core: notification resource is required", map[string]any{"field": "resource"})
	}
	if notification.Topic == "" {
		return Notification{}, NewBadInputError(nil, "core: notification topic is required", map[string]any{"field": "topic"})
	}
	return notification, nil
}

func (o Outcome) logFields() map[string]any {
	fields := map[string]any{
		"outcome":  o.Status,
		"topic":    o.Topic,
		"resource": o.Resource,
	}
	if o.OrderID != "" {
		fields["order_id"] = o.OrderID
	}
	if o.Reason != "" {
		fields["reason"] = o.Reason
	}
	if o.OrderStatus != "" {
		fields["order_status"] = o.OrderStatus
	}
	if o.ForwardStatus != 0 {
		fields["forward_status"] = o.ForwardStatus
	}
	return fields
}
