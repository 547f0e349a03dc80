package gocommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	relaycommand "github.com/goliatone/go-order-relay/command"
	"github.com/goliatone/go-order-relay/core"
	relayquery "github.com/goliatone/go-order-relay/query"
	"github.com/goliatone/go-order-relay/webhooks"
)

// ValidateMessageContract enforces Type() plus the optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) register(handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.register(cmd); err != nil {
		subscription.Unsubscribe()
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.register(qry); err != nil {
		subscription.Unsubscribe()
		return nil, err
	}
	return subscription, nil
}

// RelayHandlers is the set of relay commands and queries exposed on the dispatcher.
type RelayHandlers struct {
	ProcessNotification *relaycommand.ProcessNotificationCommand
	ListDeliveries      *relayquery.ListDeliveriesQuery
	GetDelivery         *relayquery.GetDeliveryQuery
	RecentSales         *relayquery.RecentSalesQuery
}

// Subscriptions releases dispatcher subscriptions in one call.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterRelayHandlers subscribes every non-nil relay handler and initializes the registry.
// On failure nothing stays subscribed.
func RegisterRelayHandlers(adapter *RegistryAdapter, handlers RelayHandlers) (Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	var (
		subscriptions Subscriptions
		errs          []error
	)
	keep := func(subscription commanddispatcher.Subscription, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		subscriptions = append(subscriptions, subscription)
	}

	if handlers.ProcessNotification != nil {
		keep(RegisterAndSubscribe[relaycommand.ProcessNotificationMessage](adapter, handlers.ProcessNotification))
	}
	if handlers.ListDeliveries != nil {
		keep(RegisterAndSubscribeQuery[relayquery.ListDeliveriesMessage, webhooks.DeliveryPage](adapter, handlers.ListDeliveries))
	}
	if handlers.GetDelivery != nil {
		keep(RegisterAndSubscribeQuery[relayquery.GetDeliveryMessage, webhooks.DeliveryRecord](adapter, handlers.GetDelivery))
	}
	if handlers.RecentSales != nil {
		keep(RegisterAndSubscribeQuery[relayquery.RecentSalesMessage, []core.SaleSummary](adapter, handlers.RecentSales))
	}
	if len(errs) == 0 {
		if err := adapter.Initialize(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		subscriptions.Unsubscribe()
		return nil, errors.Join(errs...)
	}
	return subscriptions, nil
}
