package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/workorder/internal/brain"
	"github.com/aristath/workorder/internal/bus"
	"github.com/aristath/workorder/internal/config"
	"github.com/aristath/workorder/internal/events"
	"github.com/aristath/workorder/internal/plan"
	"github.com/aristath/workorder/internal/pod"
	"github.com/aristath/workorder/internal/pool"
	"github.com/aristath/workorder/internal/quality"
	"github.com/aristath/workorder/internal/taskgraph"
)

// ErrNoPodAvailable is recorded on a task when every pod stayed
// saturated for the whole pod-wait window. It is a task error: local to
// the task, cascading only to its direct dependents.
var ErrNoPodAvailable = errors.New("no pod available within wait window")

// controllerID is the bus sender ID for controller-originated messages.
const controllerID = "controller"

// podWaitPoll is how often a queued task re-checks pod capacity.
const podWaitPoll = 25 * time.Millisecond

// ControllerConfig wires a controller's collaborators. Pool is the only
// cross-run-shared piece; Store, Events and Resolver are optional.
type ControllerConfig struct {
	Engine   *config.EngineConfig
	Pool     *pool.Pool
	Brain    brain.Brain
	Store    Store
	Events   *events.EventBus
	Resolver Resolver
}

// Controller drives one work order from plan to receipt. One instance
// per work order; never reused.
type Controller struct {
	cfg      *config.EngineConfig
	pool     *pool.Pool
	brain    brain.Brain
	store    Store
	events   *events.EventBus
	resolver Resolver

	order    *WorkOrder
	graph    *taskgraph.Graph
	msgBus   *bus.Bus
	breakers *BreakerRegistry

	mu              sync.Mutex
	decisions       []DecisionPoint
	podStats        map[string]*podRunStats
	simplifications []string
	phaseScores     map[string]float64
	taskFailures    int
	budgetWarned    bool
	startedAt       time.Time
	pausedAt        time.Time
	totalPaused     time.Duration
	paused          bool
	forced          Status // timeout or cancelled, set asynchronously
	cancelRun       context.CancelFunc
}

// NewController creates a controller.
func NewController(cfg ControllerConfig) *Controller {
	engineCfg := cfg.Engine
	if engineCfg == nil {
		engineCfg = config.DefaultConfig()
	}
	return &Controller{
		cfg:      engineCfg,
		pool:     cfg.Pool,
		brain:    cfg.Brain,
		store:    cfg.Store,
		events:   cfg.Events,
		resolver: cfg.Resolver,
		breakers: NewBreakerRegistry(),
		msgBus: bus.New(
			bus.WithHistorySize(engineCfg.BusHistorySize),
		),
		podStats:    make(map[string]*podRunStats),
		phaseScores: make(map[string]float64),
	}
}

// Bus exposes the run's message bus, mainly for observers and tests.
func (c *Controller) Bus() *bus.Bus { return c.msgBus }

// Order returns the work order being driven.
func (c *Controller) Order() *WorkOrder { return c.order }

// Execute runs the work order to a terminal state and returns its
// receipt. Every terminal path produces a best-effort receipt; the
// returned error is non-nil only for planning errors (malformed plan,
// dependency cycle), which abort before execution starts.
func (c *Controller) Execute(ctx context.Context, order *WorkOrder) (*Receipt, error) {
	c.order = order
	if order.ID == "" {
		order.ID = "wo-" + uuid.NewString()
	}

	c.transition(ctx, StatusPlanning)

	// Guided authority blocks every checkpoint on external resolution;
	// without a resolver such a run could never progress past phase one.
	if order.Authority == AuthorityGuided && c.resolver == nil {
		planErr := errors.New("guided work order requires a checkpoint resolver")
		c.recordDecision("planning", []DecisionOption{
			{Label: "abort before execution", Rationale: planErr.Error()},
		}, 0, 1.0)
		return c.finalize(ctx, StatusFailed, nil), fmt.Errorf("planning: %w", planErr)
	}

	groups, planErr := c.buildSchedule()
	if planErr != nil {
		c.recordDecision("planning", []DecisionOption{
			{Label: "abort before execution", Rationale: planErr.Error()},
		}, 0, 1.0)
		return c.finalize(ctx, StatusFailed, nil), fmt.Errorf("planning: %w", planErr)
	}

	if err := c.spawnPods(); err != nil {
		c.recordDecision("planning", []DecisionOption{
			{Label: "abort before execution", Rationale: err.Error()},
		}, 0, 1.0)
		return c.finalize(ctx, StatusFailed, nil), fmt.Errorf("planning: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancelRun = cancel
	c.startedAt = time.Now()
	c.mu.Unlock()
	order.StartedAt = c.startedAt

	c.transition(ctx, StatusExecuting)
	c.publish(events.TopicRun, events.RunStartedEvent{
		OrderID:   order.ID,
		Objective: order.Objective,
		Phases:    len(order.Plan.Phases),
		Tasks:     len(order.Plan.Tasks()),
		Budget:    order.Budget,
		Timestamp: time.Now(),
	})

	go c.watchBudget(runCtx)

	abort := false
	for i := range order.Plan.Phases {
		phase := &order.Plan.Phases[i]

		c.waitWhilePaused(runCtx)
		if c.halted() {
			break
		}

		c.runPhase(runCtx, phase, groups)

		if c.halted() {
			break
		}
		if phase.Status == plan.PhaseFailed && !c.cfg.ContinueOnFailure() {
			abort = true
			break
		}
	}

	terminal := StatusCompleted
	c.mu.Lock()
	forced := c.forced
	c.mu.Unlock()
	switch {
	case forced != "":
		terminal = forced
	case abort:
		terminal = StatusFailed
	}

	return c.finalize(ctx, terminal, order.Artifacts), nil
}

// buildSchedule validates the plan, builds the task graph and derives
// the run's parallel groups and critical path. Any error here is a
// fatal planning error.
func (c *Controller) buildSchedule() ([][]*taskgraph.Node, error) {
	if c.order.Plan == nil {
		return nil, errors.New("work order has no plan")
	}
	if err := c.order.Plan.Validate(); err != nil {
		return nil, err
	}

	graph, err := taskgraph.Build(c.order.Plan)
	if err != nil {
		return nil, err
	}
	c.graph = graph

	// The topological sort is the fatal cycle gate; when it rejects the
	// graph, ParallelGroups' error is preferred because it names the
	// unresolvable task subset.
	if _, err := graph.Validate(); err != nil {
		if _, gerr := graph.ParallelGroups(); gerr != nil {
			err = gerr
		}
		return nil, err
	}

	groups, err := graph.ParallelGroups()
	if err != nil {
		return nil, err
	}

	if path := graph.CriticalPath(); len(path) > 0 {
		log.Printf("critical path: %s", strings.Join(path, " -> "))
	}

	return groups, nil
}

// spawnPods provisions one pod per role referenced anywhere in the plan
// and subscribes each to the message bus.
func (c *Controller) spawnPods() error {
	for _, roleName := range c.order.Plan.Roles() {
		role, err := pod.ParseRole(roleName)
		if err != nil {
			return err
		}
		pd := c.pool.Provision(role)
		c.order.PodIDs = append(c.order.PodIDs, pd.ID)
		c.podStats[pd.ID] = &podRunStats{}

		// Pods acknowledge instructions on receipt so polling ticks do
		// not re-process them; payload consumption happens at prompt
		// assembly via Pending.
		podID := pd.ID
		c.msgBus.Subscribe(podID, func(msg bus.Message) {
			if msg.Type == bus.TypeStatus && msg.To == podID {
				c.msgBus.Acknowledge(msg.ID)
			}
		})
	}
	if len(c.order.PodIDs) == 0 {
		return errors.New("plan references no pod roles")
	}

	// Role briefing reaches every pod already subscribed.
	c.msgBus.Publish(bus.Message{
		From:     controllerID,
		To:       bus.Broadcast,
		Type:     bus.TypeStatus,
		Payload:  "run starting: " + c.order.Objective,
		Priority: bus.PriorityNormal,
	})
	return nil
}

// runPhase executes one phase: its parallel groups in order, each group
// joined with all-settled semantics, then the quality gate and
// checkpoint evaluation.
func (c *Controller) runPhase(ctx context.Context, phase *plan.Phase, groups [][]*taskgraph.Node) {
	phase.Status = plan.PhaseInProgress
	c.publish(events.TopicPhase, events.PhaseStartedEvent{
		OrderID:   c.order.ID,
		PhaseID:   phase.ID,
		Name:      phase.Name,
		Order:     phase.Order,
		Tasks:     len(phase.Tasks),
		Timestamp: time.Now(),
	})

	phaseTasks := make(map[string]bool, len(phase.Tasks))
	for _, t := range phase.Tasks {
		phaseTasks[t.ID] = true
	}

	for _, group := range groups {
		var nodes []*taskgraph.Node
		for _, n := range group {
			if phaseTasks[n.ID] {
				nodes = append(nodes, n)
			}
		}
		if len(nodes) == 0 {
			continue
		}

		c.waitWhilePaused(ctx)
		if c.halted() {
			return
		}

		// Fan out the group. A failed task must not abort its siblings:
		// executeTask never returns an error, so the join is all-settled
		// rather than first-failure.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.pool.Cap() * len(c.order.PodIDs))
		for _, node := range nodes {
			n := node
			g.Go(func() error {
				c.executeTask(gctx, n)
				return nil
			})
		}
		_ = g.Wait()
	}

	c.settlePhase(phase)
	c.gatePhase(phase, phaseTasks)
	c.evaluateCheckpoints(ctx, phase)
}

// settlePhase derives the phase's terminal status and progress from its
// tasks' graph state. A phase completes only when every non-skipped task
// completed; any failed task fails the phase.
func (c *Controller) settlePhase(phase *plan.Phase) {
	completed, failed, skipped := 0, 0, 0
	for i := range phase.Tasks {
		t := &phase.Tasks[i]
		node, ok := c.graph.Get(t.ID)
		if !ok {
			continue
		}
		t.Status = node.Status
		t.PodID = node.PodID
		t.Output = node.Output
		t.Confidence = node.Confidence
		if !node.EndedAt.IsZero() && !node.StartedAt.IsZero() {
			t.Actual = node.EndedAt.Sub(node.StartedAt)
		}
		switch node.Status {
		case plan.TaskComplete:
			completed++
		case plan.TaskFailed:
			failed++
		case plan.TaskSkipped:
			skipped++
		}
	}

	phase.Progress = float64(completed) / float64(len(phase.Tasks))
	if failed > 0 {
		phase.Status = plan.PhaseFailed
	} else if completed+skipped == len(phase.Tasks) {
		phase.Status = plan.PhaseComplete
	}

	c.publish(events.TopicPhase, events.PhaseSettledEvent{
		OrderID:   c.order.ID,
		PhaseID:   phase.ID,
		Status:    string(phase.Status),
		Completed: completed,
		Failed:    failed,
		Skipped:   skipped,
		Timestamp: time.Now(),
	})

	if phase.Status == plan.PhaseFailed {
		chosen := 0
		if !c.cfg.ContinueOnFailure() {
			chosen = 1
		}
		c.recordDecision(
			fmt.Sprintf("phase %s failed", phase.ID),
			[]DecisionOption{
				{Label: "continue to next phase", Rationale: "remaining phases are independent of the failed tasks; dependents were skipped"},
				{Label: "abort run", Rationale: "treat any phase failure as fatal"},
			},
			chosen,
			0.7,
		)
	}
}

// gatePhase runs the quality gate over the phase's artifacts.
func (c *Controller) gatePhase(phase *plan.Phase, phaseTasks map[string]bool) {
	var artifacts []plan.Artifact
	c.mu.Lock()
	for _, a := range c.order.Artifacts {
		if phaseTasks[a.TaskID] {
			artifacts = append(artifacts, a)
		}
	}
	c.mu.Unlock()

	result := quality.RunChecks(artifacts, c.order.Target, c.order.Kind)
	c.mu.Lock()
	c.phaseScores[phase.ID] = result.Score
	c.mu.Unlock()

	c.publish(events.TopicPhase, events.QualityScoredEvent{
		OrderID:   c.order.ID,
		PhaseID:   phase.ID,
		Score:     result.Score,
		Passed:    result.Passed,
		Blockers:  len(result.Blockers),
		Timestamp: time.Now(),
	})

	for _, r := range result.Recommendations {
		log.Printf("quality recommendation (phase %s): %s", phase.ID, r)
	}
	for _, b := range result.Blockers {
		log.Printf("WARNING: quality blocker (phase %s): %s", phase.ID, b)
	}
}

// evaluateCheckpoints raises and resolves checkpoints after a phase.
// Error-threshold and time-elapsed triggers are independent of authority
// level; phase-complete triggers fire under guided authority only.
// Non-guided checkpoints auto-resolve to continue immediately.
func (c *Controller) evaluateCheckpoints(ctx context.Context, phase *plan.Phase) {
	c.mu.Lock()
	failures := c.taskFailures
	budgetWarn := c.cfg.BudgetWarnFraction > 0 && !c.budgetWarned &&
		c.budgetConsumedLocked() >= c.cfg.BudgetWarnFraction
	c.mu.Unlock()

	var trigger CheckpointTrigger
	switch {
	case c.cfg.ErrorThreshold > 0 && failures >= c.cfg.ErrorThreshold:
		trigger = TriggerErrorThreshold
	case budgetWarn:
		trigger = TriggerTimeElapsed
		c.mu.Lock()
		c.budgetWarned = true
		c.mu.Unlock()
	case c.order.Authority == AuthorityGuided:
		trigger = TriggerPhaseComplete
	default:
		return
	}

	cp := c.raiseCheckpoint(trigger, phase)

	resolution := Resolution{Action: ResolutionContinue, DecidedBy: "policy", At: time.Now()}
	if c.order.Authority == AuthorityGuided && c.resolver != nil {
		c.transition(ctx, StatusCheckpoint)
		res, err := c.resolver.Resolve(ctx, cp)
		if err != nil {
			log.Printf("WARNING: checkpoint resolution failed, pausing: %v", err)
			res = Resolution{Action: ResolutionPause, DecidedBy: "policy", At: time.Now()}
		}
		resolution = res
		c.transition(ctx, StatusExecuting)
	}

	c.resolveCheckpoint(ctx, cp, resolution)
}

func (c *Controller) raiseCheckpoint(trigger CheckpointTrigger, phase *plan.Phase) *Checkpoint {
	var achievements []string
	for _, t := range phase.Tasks {
		if t.Status == plan.TaskComplete {
			achievements = append(achievements, t.Name)
		}
	}
	var next []string
	for _, ph := range c.order.Plan.Phases {
		if ph.Order == phase.Order+1 {
			for _, t := range ph.Tasks {
				next = append(next, t.Name)
			}
		}
	}
	var artifactIDs []string
	c.mu.Lock()
	for _, a := range c.order.Artifacts {
		artifactIDs = append(artifactIDs, a.ID)
	}
	c.mu.Unlock()

	cp := &Checkpoint{
		ID:           "cp-" + uuid.NewString(),
		Order:        len(c.order.Checkpoints),
		Trigger:      trigger,
		Status:       CheckpointReached,
		Summary:      fmt.Sprintf("phase %s settled with status %s", phase.ID, phase.Status),
		Achievements: achievements,
		NextSteps:    next,
		ArtifactIDs:  artifactIDs,
	}
	c.order.Checkpoints = append(c.order.Checkpoints, cp)

	c.publish(events.TopicCheckpoint, events.CheckpointReachedEvent{
		OrderID:      c.order.ID,
		CheckpointID: cp.ID,
		Trigger:      string(trigger),
		Summary:      cp.Summary,
		Timestamp:    time.Now(),
	})
	return cp
}

func (c *Controller) resolveCheckpoint(ctx context.Context, cp *Checkpoint, res Resolution) {
	if res.At.IsZero() {
		res.At = time.Now()
	}
	cp.Resolution = &res
	cp.Status = CheckpointResolved

	options := []DecisionOption{
		{Label: "continue", Rationale: "proceed to the next phase"},
		{Label: "pause", Rationale: "hold progression until resumed"},
		{Label: "modify", Rationale: "accept a plan adjustment before proceeding"},
	}
	chosen := 0
	switch res.Action {
	case ResolutionPause:
		chosen = 1
	case ResolutionModify:
		chosen = 2
	}
	c.recordDecision(fmt.Sprintf("checkpoint %s (%s)", cp.ID, cp.Trigger), options, chosen, 0.9)

	c.publish(events.TopicCheckpoint, events.CheckpointResolvedEvent{
		OrderID:      c.order.ID,
		CheckpointID: cp.ID,
		Resolution:   string(res.Action),
		DecidedBy:    res.DecidedBy,
		Timestamp:    time.Now(),
	})

	switch res.Action {
	case ResolutionPause:
		c.Pause()
		c.waitWhilePaused(ctx)
	case ResolutionModify:
		note := res.Note
		if note == "" {
			note = "plan adjusted at checkpoint " + cp.ID
		}
		c.mu.Lock()
		c.simplifications = append(c.simplifications, note)
		c.mu.Unlock()
	}
}

// executeTask runs one task on the best available pod. Task errors are
// local: they mark the task and its graph node failed, cascade skips to
// direct and transitive dependents, and never abort the phase or run.
func (c *Controller) executeTask(ctx context.Context, node *taskgraph.Node) {
	if c.halted() || ctx.Err() != nil {
		return
	}
	if current, ok := c.graph.Get(node.ID); !ok || current.Status != plan.TaskPending {
		return
	}

	role, err := pod.ParseRole(node.Role)
	if err != nil {
		c.failTask(node, err)
		return
	}

	pd := c.pool.Acquire(node.Name, role)
	if pd == nil {
		pd = c.awaitPod(ctx, node, role)
		if pd == nil {
			c.failTask(node, ErrNoPodAvailable)
			return
		}
	}
	if !c.pool.StartTask(pd.ID, node.ID) {
		c.failTask(node, ErrNoPodAvailable)
		return
	}

	_ = c.graph.AssignPod(node.ID, pd.ID)
	_ = c.graph.UpdateStatus(node.ID, plan.TaskRunning)
	started := time.Now()

	c.publish(events.TopicTask, events.TaskStartedEvent{
		OrderID:   c.order.ID,
		TaskID:    node.ID,
		Name:      node.Name,
		PodID:     pd.ID,
		Role:      node.Role,
		Timestamp: started,
	})

	// Deliver the task instruction over the bus, then assemble the
	// prompt from the description, role instructions, dependency
	// artifacts and any pending messages addressed to the pod.
	c.msgBus.Publish(bus.Message{
		From:     controllerID,
		To:       pd.ID,
		Type:     bus.TypeUpdate,
		Payload:  fmt.Sprintf("execute task %s: %s", node.ID, node.Description),
		Priority: bus.PriorityHigh,
	})
	prompt := c.assemblePrompt(node, pd.ID, role)

	brainCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.BrainTimeoutMS)*time.Millisecond)
	result, err := executeWithRetry(brainCtx, c.brain, prompt, c.breakers.Get(node.Role), c.cfg.Retry)
	cancel()
	elapsed := time.Since(started)

	if c.halted() {
		// The run was cancelled or timed out while the call was in
		// flight; a late result must be discarded.
		c.pool.CompleteTask(pd.ID, node.ID, node.Name, false)
		return
	}

	if err != nil {
		c.pool.CompleteTask(pd.ID, node.ID, node.Name, false)
		c.podRunStat(pd.ID, func(s *podRunStats) {
			s.failed++
			s.timeUsed += elapsed
			s.warnings = append(s.warnings, fmt.Sprintf("task %s: %v", node.ID, err))
		})
		c.failTask(node, err)
		return
	}

	c.mu.Lock()
	for i := range result.Artifacts {
		a := &result.Artifacts[i]
		if a.ID == "" {
			a.ID = "art-" + uuid.NewString()
		}
		a.TaskID = node.ID
		a.PodID = pd.ID
		a.CreatedAt = time.Now()
		c.order.Artifacts = append(c.order.Artifacts, *a)
	}
	c.mu.Unlock()

	// Announce the output so sibling pods can pick it up as context.
	c.msgBus.Publish(bus.Message{
		From:     pd.ID,
		To:       bus.Broadcast,
		Type:     bus.TypeArtifact,
		Payload:  fmt.Sprintf("task %s produced %d artifact(s)", node.ID, len(result.Artifacts)),
		Priority: bus.PriorityNormal,
	})

	c.pool.CompleteTask(pd.ID, node.ID, node.Name, true)
	c.pool.AddUsage(pd.ID, result.TokensUsed, elapsed)
	c.podRunStat(pd.ID, func(s *podRunStats) {
		s.completed++
		s.tokens += result.TokensUsed
		s.timeUsed += elapsed
	})
	_ = c.graph.RecordResult(node.ID, result.Output, result.Confidence)
	_ = c.graph.UpdateStatus(node.ID, plan.TaskComplete)

	c.publish(events.TopicTask, events.TaskCompletedEvent{
		OrderID:   c.order.ID,
		TaskID:    node.ID,
		Name:      node.Name,
		PodID:     pd.ID,
		Duration:  elapsed,
		Artifacts: len(result.Artifacts),
		Timestamp: time.Now(),
	})
}

// awaitPod queues the task and polls for freed capacity, draining the
// overflow queue in priority order. Bounded by the request timeout so a
// saturated pool fails the task instead of blocking indefinitely.
func (c *Controller) awaitPod(ctx context.Context, node *taskgraph.Node, role pod.Role) *pod.Pod {
	c.pool.QueueTask(node.ID, node.Priority)
	deadline := time.Now().Add(time.Duration(c.cfg.RequestTimeoutMS) * time.Millisecond)

	for {
		if ctx.Err() != nil || c.halted() || time.Now().After(deadline) {
			c.pool.RemoveQueued(node.ID)
			return nil
		}
		if head, ok := c.pool.PeekQueue(); ok && head.TaskID == node.ID {
			if pd := c.pool.Acquire(node.Name, role); pd != nil {
				c.pool.RemoveQueued(node.ID)
				return pd
			}
		}
		time.Sleep(podWaitPoll)
	}
}

// assemblePrompt gathers everything the worker brain needs for one task.
func (c *Controller) assemblePrompt(node *taskgraph.Node, podID string, role pod.Role) brain.Prompt {
	var depContext []string
	c.mu.Lock()
	for _, depID := range node.DependsOn {
		for _, a := range c.order.Artifacts {
			if a.TaskID == depID {
				depContext = append(depContext, fmt.Sprintf("%s (%s):\n%s", a.Name, a.Type, a.Content))
			}
		}
	}
	c.mu.Unlock()

	var messages []string
	for _, msg := range c.msgBus.Pending(podID) {
		messages = append(messages, msg.Payload)
		c.msgBus.Acknowledge(msg.ID)
	}

	return brain.Prompt{
		TaskID:       node.ID,
		TaskName:     node.Name,
		Description:  node.Description,
		Instructions: role.Instructions(),
		AllowedTools: role.AllowedTools(),
		Context:      depContext,
		Messages:     messages,
	}
}

// failTask marks a task failed and skips its dependents.
func (c *Controller) failTask(node *taskgraph.Node, err error) {
	_ = c.graph.UpdateStatus(node.ID, plan.TaskFailed)

	c.mu.Lock()
	c.taskFailures++
	c.mu.Unlock()

	c.publish(events.TopicTask, events.TaskFailedEvent{
		OrderID:   c.order.ID,
		TaskID:    node.ID,
		Name:      node.Name,
		Err:       err,
		Timestamp: time.Now(),
	})

	for _, skippedID := range c.graph.SkipDependents(node.ID) {
		name := skippedID
		if n, ok := c.graph.Get(skippedID); ok {
			name = n.Name
		}
		c.publish(events.TopicTask, events.TaskSkippedEvent{
			OrderID:   c.order.ID,
			TaskID:    skippedID,
			Name:      name,
			Timestamp: time.Now(),
		})
	}
}

// watchBudget is the time-budget ticker. It runs independently of phase
// cadence and forces the run to timeout the moment the remaining budget
// reaches zero, even mid-phase. Paused intervals never consume budget.
func (c *Controller) watchBudget(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(c.cfg.TickIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.order.Budget > 0 && c.Remaining() <= 0 {
				c.mu.Lock()
				if c.forced == "" {
					c.forced = StatusTimeout
				}
				cancel := c.cancelRun
				c.mu.Unlock()
				if cancel != nil {
					cancel()
				}
				return
			}
		}
	}
}

// Elapsed returns wall time consumed by the run, excluding paused
// intervals, including the currently active pause's start boundary.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

func (c *Controller) elapsedLocked() time.Duration {
	if c.startedAt.IsZero() {
		return 0
	}
	elapsed := time.Since(c.startedAt) - c.totalPaused
	if c.paused {
		elapsed -= time.Since(c.pausedAt)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

// budgetConsumedLocked returns the consumed fraction of the time budget
// on the same pause-excluding clock as Remaining. Zero for unbudgeted
// runs, so fraction-based triggers never fire without a budget.
func (c *Controller) budgetConsumedLocked() float64 {
	if c.order == nil || c.order.Budget <= 0 {
		return 0
	}
	return float64(c.elapsedLocked()) / float64(c.order.Budget)
}

// Remaining returns the unused portion of the time budget.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Budget - c.elapsedLocked()
}

// Pause freezes phase progression. In-flight task executions are not
// interrupted; no new group starts while paused. Pausing is idempotent.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused || c.order == nil || c.order.Status.Terminal() {
		return
	}
	c.paused = true
	c.pausedAt = time.Now()
	c.order.Status = StatusPaused
}

// Resume unfreezes a paused run, adding the pause duration to the
// accumulator so elapsed-time accounting excludes it.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		return
	}
	c.totalPaused += time.Since(c.pausedAt)
	c.paused = false
	if c.order != nil && c.order.Status == StatusPaused {
		c.order.Status = StatusExecuting
	}
}

// Cancel immediately marks the run cancelled and stops the scheduler.
// In-flight external calls are not interrupted; their late results are
// discarded.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.forced == "" {
		c.forced = StatusCancelled
	}
	c.paused = false
	cancel := c.cancelRun
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// waitWhilePaused blocks while the run is paused. Cancellation and
// forced termination unblock it.
func (c *Controller) waitWhilePaused(ctx context.Context) {
	for {
		c.mu.Lock()
		paused := c.paused && c.forced == ""
		c.mu.Unlock()
		if !paused || ctx.Err() != nil {
			return
		}
		time.Sleep(podWaitPoll)
	}
}

// halted reports whether the run has been forced to a terminal state.
func (c *Controller) halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forced != ""
}

// finalize runs the closing sequence for any terminal path: the final
// quality pass (on completion), receipt assembly, the terminal decision,
// best-effort persistence, pod teardown and the run-finished event.
func (c *Controller) finalize(ctx context.Context, terminal Status, artifacts []plan.Artifact) *Receipt {
	finalScore := 0.0
	var finalNotes []string

	if terminal == StatusCompleted {
		c.transition(ctx, StatusCompleting)
		result := quality.RunChecks(artifacts, c.order.Target, c.order.Kind)
		finalScore = result.Score
		finalNotes = append(finalNotes, result.Blockers...)
		finalNotes = append(finalNotes, result.Recommendations...)
		c.publish(events.TopicRun, events.QualityScoredEvent{
			OrderID:   c.order.ID,
			Score:     result.Score,
			Passed:    result.Passed,
			Blockers:  len(result.Blockers),
			Timestamp: time.Now(),
		})
	} else {
		// Best effort: average whatever phase scores exist.
		c.mu.Lock()
		if len(c.phaseScores) > 0 {
			for _, s := range c.phaseScores {
				finalScore += s
			}
			finalScore /= float64(len(c.phaseScores))
		}
		c.mu.Unlock()
	}

	c.recordDecision("terminal outcome", []DecisionOption{
		{Label: string(StatusCompleted), Rationale: "all phases settled within budget"},
		{Label: string(StatusFailed), Rationale: "a fatal planning or phase error occurred"},
		{Label: string(StatusCancelled), Rationale: "cancellation was requested"},
		{Label: string(StatusTimeout), Rationale: "the time budget was exhausted"},
	}, terminalIndex(terminal), 1.0)

	c.transition(ctx, terminal)
	c.order.FinishedAt = time.Now()

	receipt := c.buildReceipt(finalScore, finalNotes)
	c.order.Receipt = receipt

	c.persist(ctx, receipt)

	c.pool.Terminate(c.order.PodIDs)

	c.publish(events.TopicRun, events.RunFinishedEvent{
		OrderID:   c.order.ID,
		Status:    string(terminal),
		Score:     finalScore,
		Elapsed:   c.Elapsed(),
		Timestamp: time.Now(),
	})

	return receipt
}

func terminalIndex(s Status) int {
	switch s {
	case StatusFailed:
		return 1
	case StatusCancelled:
		return 2
	case StatusTimeout:
		return 3
	}
	return 0
}

// persist writes the final state best-effort; persistence failures are
// logged, never fatal.
func (c *Controller) persist(ctx context.Context, receipt *Receipt) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveWorkOrder(ctx, c.order); err != nil {
		log.Printf("WARNING: failed to persist work order %s: %v", c.order.ID, err)
	}
	c.mu.Lock()
	decisions := append([]DecisionPoint(nil), c.decisions...)
	c.mu.Unlock()
	for _, d := range decisions {
		if err := c.store.AppendDecision(ctx, c.order.ID, d); err != nil {
			log.Printf("WARNING: failed to persist decision %s: %v", d.ID, err)
		}
	}
	if err := c.store.SaveReceipt(ctx, c.order.ID, receipt); err != nil {
		log.Printf("WARNING: failed to persist receipt for %s: %v", c.order.ID, err)
	}
	for _, podID := range c.order.PodIDs {
		if pd, ok := c.pool.Get(podID); ok {
			if err := c.store.SavePodMetrics(ctx, pd); err != nil {
				log.Printf("WARNING: failed to persist pod metrics for %s: %v", podID, err)
			}
		}
	}
}

// transition moves the work order to a new status and persists it
// best-effort.
func (c *Controller) transition(ctx context.Context, status Status) {
	c.mu.Lock()
	c.order.Status = status
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.UpdateWorkOrderStatus(ctx, c.order.ID, status); err != nil {
			log.Printf("WARNING: failed to persist status %s: %v", status, err)
		}
	}
}

// publish emits an event if an event bus was wired.
func (c *Controller) publish(topic string, event events.Event) {
	if c.events != nil {
		c.events.Publish(topic, event)
	}
}

func (c *Controller) recordDecision(situation string, options []DecisionOption, chosen int, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, newDecision(situation, options, chosen, confidence))
}

func (c *Controller) podRunStat(podID string, fn func(*podRunStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.podStats[podID]
	if stats == nil {
		stats = &podRunStats{}
		c.podStats[podID] = stats
	}
	fn(stats)
}
