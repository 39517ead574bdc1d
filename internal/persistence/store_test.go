package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/workorder/internal/engine"
	"github.com/aristath/workorder/internal/plan"
	"github.com/aristath/workorder/internal/pod"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("NewMemoryStore() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testOrder(id string) *engine.WorkOrder {
	return &engine.WorkOrder{
		ID:        id,
		Objective: "ship the landing page",
		Kind:      plan.KindWebsite,
		Target:    plan.QualityStandard,
		Authority: engine.AuthoritySupervised,
		Budget:    2 * time.Hour,
		Status:    engine.StatusDraft,
		Plan: &plan.ExecutionPlan{
			Phases: []plan.Phase{{
				ID:    "phase-1",
				Order: 1,
				Name:  "Build",
				Tasks: []plan.Task{{ID: "t1", Name: "scaffold", Role: "backend", Estimated: time.Hour}},
			}},
		},
		CreatedAt: time.Now().Truncate(time.Second),
	}
}

// TestWorkOrderRoundTrip verifies saving and loading a work order
// preserves its fields and plan.
func TestWorkOrderRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	order := testOrder("wo-round-trip")
	if err := store.SaveWorkOrder(ctx, order); err != nil {
		t.Fatalf("SaveWorkOrder() failed: %v", err)
	}

	got, err := store.GetWorkOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetWorkOrder() failed: %v", err)
	}

	if got.Objective != order.Objective {
		t.Errorf("Objective = %q, want %q", got.Objective, order.Objective)
	}
	if got.Kind != order.Kind || got.Target != order.Target || got.Authority != order.Authority {
		t.Errorf("Enums lost in round trip: %+v", got)
	}
	if got.Budget != order.Budget {
		t.Errorf("Budget = %v, want %v", got.Budget, order.Budget)
	}
	if got.Plan == nil || len(got.Plan.Phases) != 1 || got.Plan.Phases[0].Tasks[0].ID != "t1" {
		t.Errorf("Plan lost in round trip: %+v", got.Plan)
	}
}

// TestSaveWorkOrderIdempotent verifies a second save updates rather than
// duplicates.
func TestSaveWorkOrderIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	order := testOrder("wo-upsert")
	if err := store.SaveWorkOrder(ctx, order); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	order.Objective = "revised objective"
	if err := store.SaveWorkOrder(ctx, order); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := store.GetWorkOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetWorkOrder() failed: %v", err)
	}
	if got.Objective != "revised objective" {
		t.Errorf("Objective = %q, want the revised value", got.Objective)
	}

	orders, err := store.ListWorkOrders(ctx)
	if err != nil {
		t.Fatalf("ListWorkOrders() failed: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("Expected 1 work order after upsert, got %d", len(orders))
	}
}

// TestUpdateWorkOrderStatus verifies status updates persist and unknown
// IDs error.
func TestUpdateWorkOrderStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	order := testOrder("wo-status")
	if err := store.SaveWorkOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateWorkOrderStatus(ctx, order.ID, engine.StatusExecuting); err != nil {
		t.Fatalf("UpdateWorkOrderStatus() failed: %v", err)
	}

	got, err := store.GetWorkOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != engine.StatusExecuting {
		t.Errorf("Status = %s, want executing", got.Status)
	}

	if err := store.UpdateWorkOrderStatus(ctx, "wo-ghost", engine.StatusFailed); err == nil {
		t.Error("Expected error updating unknown work order")
	}
}

// TestDecisionTrail verifies decisions append and list in order.
func TestDecisionTrail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	order := testOrder("wo-decisions")
	if err := store.SaveWorkOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	base := time.Now().Truncate(time.Second)
	decisions := []engine.DecisionPoint{
		{ID: "dec-1", At: base, Context: "phase failed", Options: []engine.DecisionOption{{Label: "continue"}, {Label: "abort"}}, Chosen: 0, Confidence: 0.8},
		{ID: "dec-2", At: base.Add(time.Second), Context: "terminal outcome", Options: []engine.DecisionOption{{Label: "completed"}}, Chosen: 0, Confidence: 1.0},
	}
	for _, d := range decisions {
		if err := store.AppendDecision(ctx, order.ID, d); err != nil {
			t.Fatalf("AppendDecision(%s) failed: %v", d.ID, err)
		}
	}

	got, err := store.ListDecisions(ctx, order.ID)
	if err != nil {
		t.Fatalf("ListDecisions() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 decisions, got %d", len(got))
	}
	if got[0].ID != "dec-1" || got[1].ID != "dec-2" {
		t.Errorf("Decisions out of order: %s, %s", got[0].ID, got[1].ID)
	}
	if len(got[0].Options) != 2 || got[0].Options[1].Label != "abort" {
		t.Errorf("Options lost in round trip: %+v", got[0].Options)
	}
}

// TestReceiptRoundTrip verifies receipts serialize and load intact.
func TestReceiptRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	order := testOrder("wo-receipt")
	if err := store.SaveWorkOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	receipt := &engine.Receipt{
		OrderID:     order.ID,
		Status:      engine.StatusCompleted,
		GeneratedAt: time.Now().Truncate(time.Second),
		Executive: engine.ExecutiveSummary{
			Accomplishments: []string{"scaffold"},
			QualityScore:    82.5,
			UnfinishedItems: []string{"polish pass"},
		},
		Technical: engine.TechnicalSummary{TotalTasks: 3, CompletedTasks: 2, SkippedTasks: 1},
	}
	if err := store.SaveReceipt(ctx, order.ID, receipt); err != nil {
		t.Fatalf("SaveReceipt() failed: %v", err)
	}

	got, err := store.GetReceipt(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetReceipt() failed: %v", err)
	}
	if got.Executive.QualityScore != 82.5 {
		t.Errorf("QualityScore = %v, want 82.5", got.Executive.QualityScore)
	}
	if got.Technical.TotalTasks != 3 || got.Technical.SkippedTasks != 1 {
		t.Errorf("Technical summary lost: %+v", got.Technical)
	}
	if len(got.Executive.UnfinishedItems) != 1 {
		t.Errorf("UnfinishedItems lost: %v", got.Executive.UnfinishedItems)
	}
}

// TestPodMetricsUpsert verifies pod metrics persist and update in place.
func TestPodMetricsUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p := pod.New(pod.RoleBackend)
	p.CompletedTasks = []string{"t1", "t2"}
	p.FailedTasks = []string{"t3"}
	p.Usage = pod.Usage{TokensUsed: 500, ExecutionTime: 3 * time.Minute, APICalls: 7}
	p.Health.Errors = 1

	if err := store.SavePodMetrics(ctx, p); err != nil {
		t.Fatalf("SavePodMetrics() failed: %v", err)
	}

	got, err := store.GetPodMetrics(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPodMetrics() failed: %v", err)
	}
	if got.TasksCompleted != 2 || got.TasksFailed != 1 {
		t.Errorf("Task counts = %d/%d, want 2/1", got.TasksCompleted, got.TasksFailed)
	}
	if got.ExecutionTime != 3*time.Minute || got.TokensUsed != 500 {
		t.Errorf("Usage lost: %+v", got)
	}

	p.CompletedTasks = append(p.CompletedTasks, "t4")
	if err := store.SavePodMetrics(ctx, p); err != nil {
		t.Fatalf("Second SavePodMetrics() failed: %v", err)
	}
	got, err = store.GetPodMetrics(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TasksCompleted != 3 {
		t.Errorf("TasksCompleted after upsert = %d, want 3", got.TasksCompleted)
	}
}
