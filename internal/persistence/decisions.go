package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aristath/workorder/internal/engine"
)

// AppendDecision stores one decision-trail entry for a work order. The
// trail is append-only; entries are never updated.
func (s *SQLiteStore) AppendDecision(ctx context.Context, orderID string, d engine.DecisionPoint) error {
	optionsJSON, err := json.Marshal(d.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, order_id, context, options_json, chosen, confidence, outcome, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, orderID, d.Context, string(optionsJSON), d.Chosen, d.Confidence, d.Outcome, d.At)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// ListDecisions returns a work order's decision trail in the order the
// decisions were made.
func (s *SQLiteStore) ListDecisions(ctx context.Context, orderID string) ([]engine.DecisionPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, context, options_json, chosen, confidence, outcome, decided_at
		FROM decisions
		WHERE order_id = ?
		ORDER BY decided_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []engine.DecisionPoint
	for rows.Next() {
		var d engine.DecisionPoint
		var optionsJSON string
		if err := rows.Scan(&d.ID, &d.Context, &optionsJSON, &d.Chosen, &d.Confidence, &d.Outcome, &d.At); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		if err := json.Unmarshal([]byte(optionsJSON), &d.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
