package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS work_orders (
		id TEXT PRIMARY KEY,
		objective TEXT NOT NULL,
		kind TEXT NOT NULL,
		quality_target TEXT NOT NULL,
		authority TEXT NOT NULL,
		budget_ns INTEGER NOT NULL,
		status TEXT NOT NULL,
		plan_json TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		context TEXT NOT NULL,
		options_json TEXT NOT NULL,
		chosen INTEGER NOT NULL,
		confidence REAL NOT NULL,
		outcome TEXT,
		decided_at DATETIME NOT NULL,
		FOREIGN KEY (order_id) REFERENCES work_orders(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_order_id ON decisions(order_id);

	CREATE TABLE IF NOT EXISTS receipts (
		order_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		receipt_json TEXT NOT NULL,
		generated_at DATETIME NOT NULL,
		FOREIGN KEY (order_id) REFERENCES work_orders(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS pod_metrics (
		pod_id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		tasks_completed INTEGER NOT NULL,
		tasks_failed INTEGER NOT NULL,
		tokens_used INTEGER NOT NULL,
		execution_time_ns INTEGER NOT NULL,
		api_calls INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
