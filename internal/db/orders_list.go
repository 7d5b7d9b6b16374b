package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/gitshopapp/storefront/internal/models"
)

// List returns one page of orders matching filter, newest first, and the
// total number of matches.
func (s *OrderStore) List(ctx context.Context, filter OrderFilter) ([]*Order, int, error) {
	filter = filter.Normalized()
	where := filterConditions(filter)

	countQuery, countArgs, err := s.qb.Select("COUNT(*)").From("orders").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build order count query: %w", err)
	}
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query, args, err := s.qb.Select(orderColumnNames...).
		From("orders").
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build order list query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func filterConditions(filter OrderFilter) sq.And {
	where := sq.And{}
	if filter.PaymentMethod != "" {
		where = append(where, sq.Eq{"payment_method": string(filter.PaymentMethod)})
	}
	if filter.PaymentStatus != "" {
		where = append(where, sq.Eq{"payment_status": string(filter.PaymentStatus)})
	}
	if len(filter.States) > 0 {
		where = append(where, sq.Eq{"state": stateStrings(filter.States)})
	}
	if filter.Legacy != nil {
		where = append(where, legacyCondition(*filter.Legacy))
	}
	if filter.Email != "" {
		where = append(where, sq.Eq{"recipient_email": filter.Email})
	}
	return where
}

// legacyCondition matches exactly the orders whose LegacyStatus reports the
// filter's code.
func legacyCondition(legacy models.LegacyStatusFilter) sq.Or {
	match := sq.Or{}
	if len(legacy.States) > 0 {
		match = append(match, sq.Eq{"state": stateStrings(legacy.States)})
	}
	if legacy.MatchReadyToShip {
		readyToShip := sq.Eq{"state": string(models.StateReadyToShip)}
		if legacy.ReadyToShipPaidGateway {
			match = append(match, sq.And{
				readyToShip,
				sq.Eq{"payment_method": string(models.PaymentMethodGateway)},
				sq.Eq{"payment_status": string(models.PaymentPaid)},
			})
		} else {
			match = append(match, sq.And{
				readyToShip,
				sq.Or{
					sq.NotEq{"payment_method": string(models.PaymentMethodGateway)},
					sq.NotEq{"payment_status": string(models.PaymentPaid)},
				},
			})
		}
	}
	return match
}

func stateStrings(states []models.OrderState) []string {
	out := make([]string, 0, len(states))
	for _, state := range states {
		out = append(out, string(state))
	}
	return out
}
