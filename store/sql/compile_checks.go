package sqlstore

import (
	"github.com/goliatone/go-order-relay/core"
	"github.com/goliatone/go-order-relay/webhooks"
)

var (
	_ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
	_ webhooks.DeliveryLister = (*WebhookDeliveryStore)(nil)
	_ core.OrderClaimStore    = (*OrderClaimStore)(nil)
)
