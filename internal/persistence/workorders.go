package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/workorder/internal/engine"
	"github.com/aristath/workorder/internal/plan"
)

// SaveWorkOrder saves or updates a work order. Uses ON CONFLICT to make
// saves idempotent; the plan is stored as JSON alongside the scalar
// columns so it survives restarts verbatim.
func (s *SQLiteStore) SaveWorkOrder(ctx context.Context, order *engine.WorkOrder) error {
	planJSON := []byte("null")
	if order.Plan != nil {
		var err error
		planJSON, err = json.Marshal(order.Plan)
		if err != nil {
			return fmt.Errorf("failed to marshal plan: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_orders (id, objective, kind, quality_target, authority, budget_ns, status, plan_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			objective = excluded.objective,
			kind = excluded.kind,
			quality_target = excluded.quality_target,
			authority = excluded.authority,
			budget_ns = excluded.budget_ns,
			status = excluded.status,
			plan_json = excluded.plan_json,
			updated_at = CURRENT_TIMESTAMP
	`, order.ID, order.Objective, string(order.Kind), string(order.Target), string(order.Authority),
		int64(order.Budget), string(order.Status), string(planJSON), order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert work order: %w", err)
	}
	return nil
}

// UpdateWorkOrderStatus updates only the lifecycle state of a stored
// work order.
func (s *SQLiteStore) UpdateWorkOrderStatus(ctx context.Context, orderID string, status engine.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE work_orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, string(status), orderID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("work order not found: %s", orderID)
	}
	return nil
}

// GetWorkOrder retrieves a work order by ID, including its plan.
func (s *SQLiteStore) GetWorkOrder(ctx context.Context, orderID string) (*engine.WorkOrder, error) {
	order := &engine.WorkOrder{}
	var kind, target, authority, status, planJSON string
	var budget int64
	var created time.Time

	err := s.db.QueryRowContext(ctx, `
		SELECT id, objective, kind, quality_target, authority, budget_ns, status, plan_json, created_at
		FROM work_orders
		WHERE id = ?
	`, orderID).Scan(&order.ID, &order.Objective, &kind, &target, &authority, &budget, &status, &planJSON, &created)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("work order not found: %s", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query work order: %w", err)
	}

	order.Kind = plan.Kind(kind)
	order.Target = plan.QualityTarget(target)
	order.Authority = engine.Authority(authority)
	order.Budget = time.Duration(budget)
	order.Status = engine.Status(status)
	order.CreatedAt = created

	if planJSON != "" && planJSON != "null" {
		var p plan.ExecutionPlan
		if err := json.Unmarshal([]byte(planJSON), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
		order.Plan = &p
	}

	return order, nil
}

// ListWorkOrders returns all stored work orders, newest first, without
// their plans.
func (s *SQLiteStore) ListWorkOrders(ctx context.Context) ([]*engine.WorkOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, objective, kind, quality_target, authority, budget_ns, status, created_at
		FROM work_orders
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query work orders: %w", err)
	}
	defer rows.Close()

	var orders []*engine.WorkOrder
	for rows.Next() {
		order := &engine.WorkOrder{}
		var kind, target, authority, status string
		var budget int64
		if err := rows.Scan(&order.ID, &order.Objective, &kind, &target, &authority, &budget, &status, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan work order: %w", err)
		}
		order.Kind = plan.Kind(kind)
		order.Target = plan.QualityTarget(target)
		order.Authority = engine.Authority(authority)
		order.Budget = time.Duration(budget)
		order.Status = engine.Status(status)
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
