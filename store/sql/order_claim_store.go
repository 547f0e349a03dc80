package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-order-relay/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OrderClaimStore persists forward-once markers per order id. It keeps no order data.
type OrderClaimStore struct {
	db   *bun.DB
	repo repository.Repository[*orderClaimRecord]
	now  func() time.Time
}

func NewOrderClaimStore(db *bun.DB) (*OrderClaimStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*orderClaimRecord](db, orderClaimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order claim repository wiring: %w", err)
		}
	}
	return &OrderClaimStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *OrderClaimStore) ClaimOrder(ctx context.Context, orderID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: order claim store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, fmt.Errorf("sqlstore: order id is required")
	}

	now := s.now()
	record := &orderClaimRecord{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Status:    core.OrderClaimStatusClaimed,
		ClaimedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	if err == nil {
		return true, nil
	}
	if !isUniqueViolation(err) {
		return false, err
	}

	res, err := s.db.NewUpdate().
		Model((*orderClaimRecord)(nil)).
		Set("status = ?", core.OrderClaimStatusClaimed).
		Set("claimed_at = ?", now).
		Set("updated_at = ?", now).
		Where("order_id = ?", orderID).
		Where("status = ?", core.OrderClaimStatusReleased).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func (s *OrderClaimStore) CompleteOrder(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, core.OrderClaimStatusForwarded)
}

func (s *OrderClaimStore) ReleaseOrder(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, core.OrderClaimStatusReleased)
}

func (s *OrderClaimStore) Get(ctx context.Context, orderID string) (core.OrderClaim, error) {
	if s == nil || s.repo == nil {
		return core.OrderClaim{}, fmt.Errorf("sqlstore: order claim store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("order_id", "=", strings.TrimSpace(orderID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.OrderClaim{}, fmt.Errorf("sqlstore: order claim %q not found", orderID)
		}
		return core.OrderClaim{}, err
	}
	if len(records) == 0 {
		return core.OrderClaim{}, fmt.Errorf("sqlstore: order claim %q not found", orderID)
	}
	record := records[0]
	return core.OrderClaim{
		OrderID:   record.OrderID,
		Status:    record.Status,
		ClaimedAt: record.ClaimedAt.UTC(),
		UpdatedAt: record.UpdatedAt.UTC(),
	}, nil
}

func (s *OrderClaimStore) transition(ctx context.Context, orderID string, status string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: order claim store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	res, err := s.db.NewUpdate().
		Model((*orderClaimRecord)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", s.now()).
		Where("order_id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("sqlstore: order claim %q not found", orderID)
	}
	return nil
}
