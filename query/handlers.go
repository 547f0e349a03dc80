package query

import (
	"context"

	"github.com/goliatone/go-order-relay/core"
	"github.com/goliatone/go-order-relay/webhooks"
)

type DeliveryReader interface {
	Get(ctx context.Context, providerID string, deliveryID string) (webhooks.DeliveryRecord, error)
}

type ListDeliveriesQuery struct {
	lister webhooks.DeliveryLister
}

func NewListDeliveriesQuery(lister webhooks.DeliveryLister) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{lister: lister}
}

func (q *ListDeliveriesQuery) Query(ctx context.Context, msg ListDeliveriesMessage) (webhooks.DeliveryPage, error) {
	if q == nil || q.lister == nil {
		return webhooks.DeliveryPage{}, queryDependencyError("query: delivery lister is required")
	}
	if err := msg.Validate(); err != nil {
		return webhooks.DeliveryPage{}, err
	}
	return q.lister.ListDeliveries(ctx, msg.Filter)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (webhooks.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return webhooks.DeliveryRecord{}, queryDependencyError("query: delivery reader is required")
	}
	if err := msg.Validate(); err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	record, err := q.reader.Get(ctx, msg.ProviderID, msg.DeliveryID)
	if err != nil {
		return webhooks.DeliveryRecord{}, queryNotFoundError(err, "query: delivery not found")
	}
	return record, nil
}

type RecentSalesQuery struct {
	sales core.SalesLister
}

func NewRecentSalesQuery(sales core.SalesLister) *RecentSalesQuery {
	return &RecentSalesQuery{sales: sales}
}

func (q *RecentSalesQuery) Query(ctx context.Context, msg RecentSalesMessage) ([]core.SaleSummary, error) {
	if q == nil || q.sales == nil {
		return nil, queryDependencyError("query: sales lister is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	sales, err := q.sales.RecentPaidSales(ctx, msg.Limit)
	if err != nil {
		return nil, err
	}
	if sales == nil {
		sales = []core.SaleSummary{}
	}
	return sales, nil
}
