package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/workorder/internal/brain"
	"github.com/aristath/workorder/internal/config"
	"github.com/aristath/workorder/internal/events"
	"github.com/aristath/workorder/internal/plan"
	"github.com/aristath/workorder/internal/pod"
	"github.com/aristath/workorder/internal/pool"
)

// fastConfig returns engine tuning scaled down for tests.
func fastConfig() *config.EngineConfig {
	return &config.EngineConfig{
		TickIntervalMS:    10,
		PodConcurrencyCap: 2,
		RequestTimeoutMS:  500,
		BrainTimeoutMS:    2000,
		BusHistorySize:    100,
		ErrorThreshold:    3,
		Retry: config.RetryConfig{
			InitialIntervalMS:   1,
			MaxIntervalMS:       5,
			MaxElapsedTimeMS:    20,
			Multiplier:          2.0,
			RandomizationFactor: 0,
		},
	}
}

// threePhasePlan is the canonical scenario: setup, build (t2 and t3 in
// parallel), then a final task depending on t2.
func threePhasePlan() *plan.ExecutionPlan {
	return &plan.ExecutionPlan{
		Phases: []plan.Phase{
			{ID: "p1", Order: 1, Name: "Setup", Tasks: []plan.Task{
				{ID: "t1", Name: "scaffold project", Role: "backend", Estimated: time.Hour},
			}},
			{ID: "p2", Order: 2, Name: "Build", Tasks: []plan.Task{
				{ID: "t2", Name: "build api", Role: "backend", Estimated: 2 * time.Hour, DependsOn: []string{"t1"}},
				{ID: "t3", Name: "design pages", Role: "design", Estimated: time.Hour, DependsOn: []string{"t1"}},
			}},
			{ID: "p3", Order: 3, Name: "Finish", Tasks: []plan.Task{
				{ID: "t4", Name: "wire frontend", Role: "frontend", Estimated: time.Hour, DependsOn: []string{"t2"}},
			}},
		},
	}
}

func newTestController(cfg *config.EngineConfig, b brain.Brain, opts ...func(*ControllerConfig)) (*Controller, *events.EventBus) {
	bus := events.NewEventBus()
	cc := ControllerConfig{
		Engine: cfg,
		Pool:   pool.New(cfg.PodConcurrencyCap),
		Brain:  b,
		Events: bus,
	}
	for _, opt := range opts {
		opt(&cc)
	}
	return NewController(cc), bus
}

// memStore is a minimal in-memory Store capturing persistence calls.
type memStore struct {
	mu        sync.Mutex
	orders    map[string]Status
	decisions int
	receipts  int
	pods      int
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]Status)}
}

func (m *memStore) SaveWorkOrder(_ context.Context, order *WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order.Status
	return nil
}

func (m *memStore) UpdateWorkOrderStatus(_ context.Context, orderID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID] = status
	return nil
}

func (m *memStore) AppendDecision(_ context.Context, _ string, _ DecisionPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions++
	return nil
}

func (m *memStore) SaveReceipt(_ context.Context, _ string, _ *Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts++
	return nil
}

func (m *memStore) SavePodMetrics(_ context.Context, _ *pod.Pod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pods++
	return nil
}

// TestExecuteHappyPath verifies a clean run completes every task,
// collects artifacts and produces a completed receipt.
func TestExecuteHappyPath(t *testing.T) {
	store := newMemStore()
	ctrl, bus := newTestController(fastConfig(), brain.NewScripted(), func(cc *ControllerConfig) {
		cc.Store = store
	})
	defer bus.Close()

	order := &WorkOrder{
		Objective: "ship it",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthoritySupervised,
		Plan:      threePhasePlan(),
		CreatedAt: time.Now(),
	}

	receipt, err := ctrl.Execute(context.Background(), order)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if order.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", order.Status)
	}
	if receipt.Technical.TotalTasks != 4 || receipt.Technical.CompletedTasks != 4 {
		t.Errorf("Task counts = %d/%d completed, want 4/4", receipt.Technical.CompletedTasks, receipt.Technical.TotalTasks)
	}
	if receipt.Technical.FailedTasks != 0 || receipt.Technical.SkippedTasks != 0 {
		t.Errorf("Unexpected failures/skips: %+v", receipt.Technical)
	}
	if len(receipt.Executive.UnfinishedItems) != 0 {
		t.Errorf("UnfinishedItems = %v, want none", receipt.Executive.UnfinishedItems)
	}
	if receipt.Executive.FilesProduced != 4 {
		t.Errorf("FilesProduced = %d, want 4", receipt.Executive.FilesProduced)
	}
	if len(order.PodIDs) != 3 {
		t.Errorf("Expected 3 pods (one per role), got %d", len(order.PodIDs))
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.orders[order.ID] != StatusCompleted {
		t.Errorf("Persisted status = %s, want completed", store.orders[order.ID])
	}
	if store.receipts != 1 || store.pods != 3 {
		t.Errorf("Persistence calls: receipts=%d pods=%d", store.receipts, store.pods)
	}
}

// TestExecutePartialFailure is the end-to-end partial-failure scenario:
// a mid-run task failure skips its dependents, later independent phases
// still run, and the run completes with the skipped work reported as
// unfinished rather than failed.
func TestExecutePartialFailure(t *testing.T) {
	scripted := brain.NewScripted()
	scripted.ScriptFailure("t2", errors.New("api build exploded"))

	ctrl, bus := newTestController(fastConfig(), scripted)
	defer bus.Close()

	sub := bus.SubscribeAll(128)

	order := &WorkOrder{
		Objective: "ship with a pothole",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthoritySupervised,
		Plan:      threePhasePlan(),
	}

	receipt, err := ctrl.Execute(context.Background(), order)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if order.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed (failures are local)", order.Status)
	}
	if receipt.Technical.FailedTasks != 1 {
		t.Errorf("FailedTasks = %d, want 1", receipt.Technical.FailedTasks)
	}
	if receipt.Technical.SkippedTasks != 1 {
		t.Errorf("SkippedTasks = %d, want 1", receipt.Technical.SkippedTasks)
	}
	if receipt.Technical.CompletedTasks != 2 {
		t.Errorf("CompletedTasks = %d, want 2 (t1 and t3)", receipt.Technical.CompletedTasks)
	}

	// Only the never-run dependent counts as unfinished; the failed
	// task itself shows in the technical summary instead.
	if len(receipt.Executive.UnfinishedItems) != 1 || receipt.Executive.UnfinishedItems[0] != "wire frontend" {
		t.Errorf("UnfinishedItems = %v, want [wire frontend]", receipt.Executive.UnfinishedItems)
	}

	if receipt.Technical.BuildStatus != "unverified" {
		t.Errorf("BuildStatus = %s, want unverified with a failed task", receipt.Technical.BuildStatus)
	}

	// The decision trail records the phase-failure fork with continue
	// chosen.
	foundPhaseDecision := false
	for _, d := range receipt.Decisions {
		if d.Context == "phase p2 failed" && d.Chosen == 0 {
			foundPhaseDecision = true
		}
	}
	if !foundPhaseDecision {
		t.Error("Decision trail missing the phase-failure continue decision")
	}

	// The event stream carries the skip.
	foundSkip := false
	for {
		select {
		case e := <-sub:
			if sk, ok := e.(events.TaskSkippedEvent); ok && sk.TaskID == "t4" {
				foundSkip = true
			}
		default:
			if !foundSkip {
				t.Error("No TaskSkippedEvent for t4 in the event stream")
			}
			return
		}
	}
}

// TestTaskOutputRecorded verifies the brain's output payload and
// confidence land on the plan task after phase settlement.
func TestTaskOutputRecorded(t *testing.T) {
	scripted := brain.NewScripted()
	scripted.ScriptResult("t1", brain.Result{
		Output:     "scaffold ready",
		Confidence: 0.8,
		TokensUsed: 10,
	})

	ctrl, bus := newTestController(fastConfig(), scripted)
	defer bus.Close()

	order := &WorkOrder{
		Objective: "record outputs",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthoritySupervised,
		Plan:      threePhasePlan(),
	}

	if _, err := ctrl.Execute(context.Background(), order); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	task := order.Plan.Phases[0].Tasks[0]
	if task.Output != "scaffold ready" {
		t.Errorf("Task.Output = %q, want the brain's output payload", task.Output)
	}
	if task.Confidence != 0.8 {
		t.Errorf("Task.Confidence = %v, want 0.8", task.Confidence)
	}

	// Unscripted tasks still carry the default scripted confidence.
	if got := order.Plan.Phases[1].Tasks[0].Confidence; got != 0.9 {
		t.Errorf("Unscripted task confidence = %v, want 0.9", got)
	}
}

// TestExecuteRejectsCyclicPlan verifies a dependency cycle aborts at
// planning time with an error naming the unresolvable tasks.
func TestExecuteRejectsCyclicPlan(t *testing.T) {
	ctrl, bus := newTestController(fastConfig(), brain.NewScripted())
	defer bus.Close()

	order := &WorkOrder{
		Objective: "impossible ordering",
		Plan: &plan.ExecutionPlan{
			Phases: []plan.Phase{
				{ID: "p1", Order: 1, Name: "Tangle", Tasks: []plan.Task{
					{ID: "t1", Name: "first", Role: "backend", DependsOn: []string{"t2"}},
					{ID: "t2", Name: "second", Role: "backend", DependsOn: []string{"t1"}},
				}},
			},
		},
	}

	receipt, err := ctrl.Execute(context.Background(), order)
	if err == nil {
		t.Fatal("Execute() accepted a cyclic plan")
	}
	if !strings.Contains(err.Error(), "t1") || !strings.Contains(err.Error(), "t2") {
		t.Errorf("Planning error %q does not name the cyclic tasks", err)
	}
	if receipt.Status != StatusFailed {
		t.Errorf("Receipt status = %s, want failed", receipt.Status)
	}
}

// TestExecuteAbortsOnPhaseFailureWhenConfigured verifies the
// fail-fast policy stops at the failed phase.
func TestExecuteAbortsOnPhaseFailureWhenConfigured(t *testing.T) {
	scripted := brain.NewScripted()
	scripted.ScriptFailure("t2", errors.New("boom"))

	cfg := fastConfig()
	abort := false
	cfg.ContinueOnPhaseFailure = &abort

	ctrl, bus := newTestController(cfg, scripted)
	defer bus.Close()

	order := &WorkOrder{
		Objective: "fail fast",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthoritySupervised,
		Plan:      threePhasePlan(),
	}

	receipt, err := ctrl.Execute(context.Background(), order)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if order.Status != StatusFailed {
		t.Errorf("Status = %s, want failed under fail-fast policy", order.Status)
	}
	if receipt.Status != StatusFailed {
		t.Errorf("Receipt status = %s, want failed", receipt.Status)
	}
}

// TestExecutePlanningError verifies malformed plans abort before
// execution with an error and a failed receipt.
func TestExecutePlanningError(t *testing.T) {
	ctrl, bus := newTestController(fastConfig(), brain.NewScripted())
	defer bus.Close()

	order := &WorkOrder{
		Objective: "unplannable",
		Plan:      &plan.ExecutionPlan{}, // no phases
	}

	receipt, err := ctrl.Execute(context.Background(), order)
	if err == nil {
		t.Fatal("Execute() accepted a plan with no phases")
	}
	if receipt == nil {
		t.Fatal("Planning failure must still produce a receipt")
	}
	if receipt.Status != StatusFailed {
		t.Errorf("Receipt status = %s, want failed", receipt.Status)
	}
	if order.Status != StatusFailed {
		t.Errorf("Order status = %s, want failed", order.Status)
	}
}

// TestExecuteBudgetTimeout verifies the budget ticker forces a timeout
// mid-phase when the brain never returns.
func TestExecuteBudgetTimeout(t *testing.T) {
	hang := brain.Func(func(ctx context.Context, _ brain.Prompt) (brain.Result, error) {
		<-ctx.Done()
		return brain.Result{}, ctx.Err()
	})

	ctrl, bus := newTestController(fastConfig(), hang)
	defer bus.Close()

	order := &WorkOrder{
		Objective: "never finishes",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthoritySupervised,
		Budget:    50 * time.Millisecond,
		Plan:      threePhasePlan(),
	}

	start := time.Now()
	receipt, err := ctrl.Execute(context.Background(), order)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if order.Status != StatusTimeout {
		t.Errorf("Status = %s, want timeout", order.Status)
	}
	if receipt.Status != StatusTimeout {
		t.Errorf("Receipt status = %s, want timeout", receipt.Status)
	}
	// Detection is bounded by the ticker interval, not the phase plan.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Timeout took %v to take effect", elapsed)
	}
	if receipt.Technical.CompletedTasks != 0 {
		t.Errorf("CompletedTasks = %d, want 0", receipt.Technical.CompletedTasks)
	}
}

// TestCancelStopsRun verifies cancellation forces the cancelled terminal
// state and discards in-flight work.
func TestCancelStopsRun(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	hang := brain.Func(func(ctx context.Context, _ brain.Prompt) (brain.Result, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return brain.Result{}, ctx.Err()
	})

	ctrl, bus := newTestController(fastConfig(), hang)
	defer bus.Close()

	order := &WorkOrder{
		Objective: "to be cancelled",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthoritySupervised,
		Plan:      threePhasePlan(),
	}

	done := make(chan *Receipt, 1)
	go func() {
		receipt, _ := ctrl.Execute(context.Background(), order)
		done <- receipt
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Run never started a task")
	}
	ctrl.Cancel()

	select {
	case receipt := <-done:
		if receipt.Status != StatusCancelled {
			t.Errorf("Receipt status = %s, want cancelled", receipt.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute() did not return after Cancel()")
	}
}

// TestGuidedCheckpoints verifies guided authority raises a checkpoint
// after every phase and blocks on the resolver.
func TestGuidedCheckpoints(t *testing.T) {
	var resolved int
	resolver := ResolverFunc(func(_ context.Context, cp *Checkpoint) (Resolution, error) {
		resolved++
		return Resolution{Action: ResolutionContinue, DecidedBy: "test-operator"}, nil
	})

	ctrl, bus := newTestController(fastConfig(), brain.NewScripted(), func(cc *ControllerConfig) {
		cc.Resolver = resolver
	})
	defer bus.Close()

	order := &WorkOrder{
		Objective: "guided run",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthorityGuided,
		Plan:      threePhasePlan(),
	}

	if _, err := ctrl.Execute(context.Background(), order); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if resolved != 3 {
		t.Errorf("Resolver called %d times, want once per phase (3)", resolved)
	}
	if len(order.Checkpoints) != 3 {
		t.Fatalf("Checkpoints = %d, want 3", len(order.Checkpoints))
	}
	for _, cp := range order.Checkpoints {
		if cp.Status != CheckpointResolved {
			t.Errorf("Checkpoint %s status = %s, want resolved", cp.ID, cp.Status)
		}
		if cp.Resolution == nil || cp.Resolution.DecidedBy != "test-operator" {
			t.Errorf("Checkpoint %s missing operator resolution", cp.ID)
		}
	}
	if order.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", order.Status)
	}
}

// TestErrorThresholdCheckpoint verifies accumulated task failures raise
// a checkpoint regardless of authority level.
func TestErrorThresholdCheckpoint(t *testing.T) {
	scripted := brain.NewScripted()
	scripted.ScriptFailure("t2", errors.New("boom"))

	cfg := fastConfig()
	cfg.ErrorThreshold = 1

	ctrl, bus := newTestController(cfg, scripted)
	defer bus.Close()

	order := &WorkOrder{
		Objective: "autonomous but watched",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthorityAutonomous,
		Plan:      threePhasePlan(),
	}

	if _, err := ctrl.Execute(context.Background(), order); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	found := false
	for _, cp := range order.Checkpoints {
		if cp.Trigger == TriggerErrorThreshold {
			found = true
			if cp.Resolution == nil || cp.Resolution.Action != ResolutionContinue {
				t.Error("Non-guided checkpoint should auto-resolve to continue")
			}
		}
	}
	if !found {
		t.Error("No error-threshold checkpoint was raised")
	}
}

// TestTimeElapsedCheckpoint verifies crossing the configured budget
// fraction raises a single time-elapsed checkpoint regardless of
// authority level.
func TestTimeElapsedCheckpoint(t *testing.T) {
	slow := brain.Func(func(ctx context.Context, prompt brain.Prompt) (brain.Result, error) {
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return brain.Result{}, ctx.Err()
		}
		return brain.Result{Output: "done", Confidence: 0.9}, nil
	})

	cfg := fastConfig()
	cfg.BudgetWarnFraction = 0.0001 // 1ms of the 10s budget

	ctrl, bus := newTestController(cfg, slow)
	defer bus.Close()

	order := &WorkOrder{
		Objective: "long haul",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthoritySupervised,
		Budget:    10 * time.Second,
		Plan:      threePhasePlan(),
	}

	if _, err := ctrl.Execute(context.Background(), order); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	raised := 0
	for _, cp := range order.Checkpoints {
		if cp.Trigger == TriggerTimeElapsed {
			raised++
			if cp.Resolution == nil || cp.Resolution.Action != ResolutionContinue {
				t.Error("Non-guided time-elapsed checkpoint should auto-continue")
			}
		}
	}
	if raised != 1 {
		t.Errorf("Time-elapsed checkpoints raised = %d, want exactly 1", raised)
	}
	if order.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", order.Status)
	}
}

// TestNoTimeElapsedCheckpointWithoutBudget verifies unbudgeted runs
// never raise the budget-fraction checkpoint.
func TestNoTimeElapsedCheckpointWithoutBudget(t *testing.T) {
	cfg := fastConfig()
	cfg.BudgetWarnFraction = 0.0001

	ctrl, bus := newTestController(cfg, brain.NewScripted())
	defer bus.Close()

	order := &WorkOrder{
		Objective: "no budget",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthoritySupervised,
		Plan:      threePhasePlan(),
	}

	if _, err := ctrl.Execute(context.Background(), order); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	for _, cp := range order.Checkpoints {
		if cp.Trigger == TriggerTimeElapsed {
			t.Error("Time-elapsed checkpoint raised on an unbudgeted run")
		}
	}
}

// TestGuidedRequiresResolver verifies a guided work order without a
// resolver is rejected at planning time instead of silently degrading
// to auto-continue.
func TestGuidedRequiresResolver(t *testing.T) {
	ctrl, bus := newTestController(fastConfig(), brain.NewScripted())
	defer bus.Close()

	order := &WorkOrder{
		Objective: "guided without a guide",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthorityGuided,
		Plan:      threePhasePlan(),
	}

	receipt, err := ctrl.Execute(context.Background(), order)
	if err == nil {
		t.Fatal("Execute() accepted a guided order without a resolver")
	}
	if !strings.Contains(err.Error(), "resolver") {
		t.Errorf("Planning error %q does not mention the missing resolver", err)
	}
	if receipt.Status != StatusFailed || order.Status != StatusFailed {
		t.Errorf("Statuses = receipt %s / order %s, want failed", receipt.Status, order.Status)
	}
}

// TestModifyResolutionRecordsSimplification verifies a modify resolution
// lands in the receipt's simplifications.
func TestModifyResolutionRecordsSimplification(t *testing.T) {
	resolver := ResolverFunc(func(_ context.Context, _ *Checkpoint) (Resolution, error) {
		return Resolution{Action: ResolutionModify, DecidedBy: "operator", Note: "dropped the animation pass"}, nil
	})

	ctrl, bus := newTestController(fastConfig(), brain.NewScripted(), func(cc *ControllerConfig) {
		cc.Resolver = resolver
	})
	defer bus.Close()

	order := &WorkOrder{
		Objective: "guided with changes",
		Kind:      plan.KindApplication,
		Target:    plan.QualityDraft,
		Authority: AuthorityGuided,
		Plan:      threePhasePlan(),
	}

	receipt, err := ctrl.Execute(context.Background(), order)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if len(receipt.Executive.Simplifications) == 0 {
		t.Fatal("Modify resolution produced no simplification entries")
	}
	if receipt.Executive.Simplifications[0] != "dropped the animation pass" {
		t.Errorf("Simplification = %q, want the resolver's note", receipt.Executive.Simplifications[0])
	}
}

// TestPauseExcludedFromElapsed verifies paused intervals do not consume
// elapsed time or budget.
func TestPauseExcludedFromElapsed(t *testing.T) {
	c := &Controller{order: &WorkOrder{Status: StatusExecuting, Budget: time.Hour}}
	c.startedAt = time.Now()

	time.Sleep(30 * time.Millisecond)
	c.Pause()
	pausedElapsed := c.Elapsed()
	time.Sleep(100 * time.Millisecond)

	if got := c.Elapsed(); got-pausedElapsed > 20*time.Millisecond {
		t.Errorf("Elapsed advanced %v while paused", got-pausedElapsed)
	}

	c.Resume()
	time.Sleep(30 * time.Millisecond)

	got := c.Elapsed()
	if got < 50*time.Millisecond {
		t.Errorf("Elapsed = %v, want at least the two active intervals", got)
	}
	if got > 120*time.Millisecond {
		t.Errorf("Elapsed = %v, pause interval leaked into accounting", got)
	}

	if remaining := c.Remaining(); remaining > time.Hour || remaining < time.Hour-200*time.Millisecond {
		t.Errorf("Remaining = %v, want just under the budget", remaining)
	}

	// Pausing twice is a no-op.
	c.Pause()
	c.Pause()
	c.Resume()
	c.Resume()
}
