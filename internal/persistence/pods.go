package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/workorder/internal/pod"
)

// SavePodMetrics upserts a pod's cumulative metrics. Called at run end
// for every pod the run touched, so cross-run load-balancing data
// survives restarts.
func (s *SQLiteStore) SavePodMetrics(ctx context.Context, p *pod.Pod) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pod_metrics (pod_id, role, tasks_completed, tasks_failed, tokens_used, execution_time_ns, api_calls, errors, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(pod_id) DO UPDATE SET
			role = excluded.role,
			tasks_completed = excluded.tasks_completed,
			tasks_failed = excluded.tasks_failed,
			tokens_used = excluded.tokens_used,
			execution_time_ns = excluded.execution_time_ns,
			api_calls = excluded.api_calls,
			errors = excluded.errors,
			updated_at = CURRENT_TIMESTAMP
	`, p.ID, string(p.Role), len(p.CompletedTasks), len(p.FailedTasks),
		p.Usage.TokensUsed, int64(p.Usage.ExecutionTime), p.Usage.APICalls, p.Health.Errors)
	if err != nil {
		return fmt.Errorf("failed to upsert pod metrics: %w", err)
	}
	return nil
}

// PodMetrics is one pod's stored cumulative record.
type PodMetrics struct {
	PodID          string
	Role           pod.Role
	TasksCompleted int
	TasksFailed    int
	TokensUsed     int
	ExecutionTime  time.Duration
	APICalls       int
	Errors         int
}

// GetPodMetrics retrieves one pod's stored metrics.
func (s *SQLiteStore) GetPodMetrics(ctx context.Context, podID string) (*PodMetrics, error) {
	m := &PodMetrics{}
	var role string
	var execNS int64

	err := s.db.QueryRowContext(ctx, `
		SELECT pod_id, role, tasks_completed, tasks_failed, tokens_used, execution_time_ns, api_calls, errors
		FROM pod_metrics
		WHERE pod_id = ?
	`, podID).Scan(&m.PodID, &role, &m.TasksCompleted, &m.TasksFailed, &m.TokensUsed, &execNS, &m.APICalls, &m.Errors)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pod metrics not found: %s", podID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pod metrics: %w", err)
	}

	m.Role = pod.Role(role)
	m.ExecutionTime = time.Duration(execNS)
	return m, nil
}
