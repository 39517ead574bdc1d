package engine

import (
	"context"

	"github.com/aristath/workorder/internal/pod"
)

// Store is the external persistence boundary. The engine reads and
// writes through it without constraining the storage format; the SQLite
// implementation lives in internal/persistence.
type Store interface {
	SaveWorkOrder(ctx context.Context, order *WorkOrder) error
	UpdateWorkOrderStatus(ctx context.Context, orderID string, status Status) error
	AppendDecision(ctx context.Context, orderID string, d DecisionPoint) error
	SaveReceipt(ctx context.Context, orderID string, r *Receipt) error
	SavePodMetrics(ctx context.Context, p *pod.Pod) error
}
