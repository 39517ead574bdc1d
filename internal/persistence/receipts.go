package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aristath/workorder/internal/engine"
)

// SaveReceipt stores a work order's terminal receipt. A re-run of the
// same order replaces the previous receipt.
func (s *SQLiteStore) SaveReceipt(ctx context.Context, orderID string, r *engine.Receipt) error {
	receiptJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts (order_id, status, receipt_json, generated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			receipt_json = excluded.receipt_json,
			generated_at = excluded.generated_at
	`, orderID, string(r.Status), string(receiptJSON), r.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert receipt: %w", err)
	}
	return nil
}

// GetReceipt retrieves a work order's stored receipt.
func (s *SQLiteStore) GetReceipt(ctx context.Context, orderID string) (*engine.Receipt, error) {
	var receiptJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT receipt_json FROM receipts WHERE order_id = ?
	`, orderID).Scan(&receiptJSON)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("receipt not found: %s", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query receipt: %w", err)
	}

	var r engine.Receipt
	if err := json.Unmarshal([]byte(receiptJSON), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return &r, nil
}
