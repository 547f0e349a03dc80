package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-order-relay/core"
	"github.com/goliatone/go-order-relay/webhooks"
)

var (
	_ gocmd.Querier[ListDeliveriesMessage, webhooks.DeliveryPage] = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, webhooks.DeliveryRecord]  = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[RecentSalesMessage, []core.SaleSummary]       = (*RecentSalesQuery)(nil)
	_ DeliveryReader                                              = (*webhooks.MemoryLedger)(nil)
)
