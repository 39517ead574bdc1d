package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/workorder/internal/brain"
	"github.com/aristath/workorder/internal/config"
	"github.com/aristath/workorder/internal/engine"
	"github.com/aristath/workorder/internal/events"
	"github.com/aristath/workorder/internal/persistence"
	"github.com/aristath/workorder/internal/plan"
	"github.com/aristath/workorder/internal/pool"
	"github.com/aristath/workorder/internal/tui"
)

func main() {
	var (
		planPath  = flag.String("plan", "", "path to the execution plan JSON file (required)")
		objective = flag.String("objective", "", "one-line objective for the work order")
		kind      = flag.String("kind", string(plan.KindWebsite), "deliverable kind: website, application, document, campaign")
		target    = flag.String("target", string(plan.QualityStandard), "quality target: draft, standard, premium, apple-level")
		authority = flag.String("authority", string(engine.AuthoritySupervised), "authority level: guided, supervised, autonomous")
		budget    = flag.Duration("budget", 0, "time budget for the run (0 = unlimited)")
		dbPath    = flag.String("db", "", "path to the SQLite database (default ~/.workorder/workorder.db)")
		headless  = flag.Bool("headless", false, "run without the TUI, logging events to stderr")
	)
	flag.Parse()

	if *planPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: workorder -plan <plan.json> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	executionPlan, err := loadPlan(*planPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading plan: %v\n", err)
		os.Exit(1)
	}

	if *dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			os.Exit(1)
		}
		*dbPath = filepath.Join(homeDir, ".workorder", "workorder.db")
	}

	store, err := persistence.NewSQLiteStore(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	eventBus := events.NewEventBus()
	defer eventBus.Close()

	order := &engine.WorkOrder{
		Objective: *objective,
		Kind:      plan.Kind(*kind),
		Target:    plan.QualityTarget(*target),
		Authority: engine.Authority(*authority),
		Budget:    *budget,
		Status:    engine.StatusDraft,
		Plan:      executionPlan,
		CreatedAt: time.Now(),
	}

	ctrl := engine.NewController(engine.ControllerConfig{
		Engine: cfg,
		Pool:   pool.New(cfg.PodConcurrencyCap),
		// Deterministic dry-run brain; replace with a real worker-brain
		// client to produce actual deliverables.
		Brain:    brain.NewScripted(),
		Store:    store,
		Events:   eventBus,
		Resolver: newFormResolver(),
	})

	receiptChan := make(chan *engine.Receipt, 1)
	go func() {
		receipt, err := ctrl.Execute(ctx, order)
		if err != nil {
			log.Printf("ERROR: run aborted: %v", err)
		}
		receiptChan <- receipt
	}()

	if *headless {
		runHeadless(ctx, ctrl, eventBus, receiptChan)
		return
	}

	model := tui.New(eventBus, ctrl)
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		stop()
		ctrl.Cancel()
		p.Quit()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		select {
		case <-errChan:
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}
	}

	// The run stops on its own once the TUI's cancel reaches it.
	if receipt := <-receiptChan; receipt != nil {
		printReceipt(receipt)
	}
}

// runHeadless logs the event stream to stderr until the run finishes,
// then prints the receipt.
func runHeadless(ctx context.Context, ctrl *engine.Controller, eventBus *events.EventBus, receiptChan <-chan *engine.Receipt) {
	sub := eventBus.SubscribeAll(256)
	for {
		select {
		case <-ctx.Done():
			ctrl.Cancel()
			if receipt := <-receiptChan; receipt != nil {
				printReceipt(receipt)
			}
			return
		case receipt := <-receiptChan:
			if receipt != nil {
				printReceipt(receipt)
			}
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			logEvent(event)
		}
	}
}

func logEvent(event events.Event) {
	switch e := event.(type) {
	case events.RunStartedEvent:
		log.Printf("run started: %s (%d phases, %d tasks)", e.Objective, e.Phases, e.Tasks)
	case events.PhaseStartedEvent:
		log.Printf("phase %d: %s (%d tasks)", e.Order, e.Name, e.Tasks)
	case events.PhaseSettledEvent:
		log.Printf("phase %s settled: %d completed, %d failed, %d skipped", e.PhaseID, e.Completed, e.Failed, e.Skipped)
	case events.TaskStartedEvent:
		log.Printf("task started: %s on %s (%s)", e.Name, e.PodID, e.Role)
	case events.TaskCompletedEvent:
		log.Printf("task completed: %s in %s", e.Name, e.Duration.Round(time.Millisecond))
	case events.TaskFailedEvent:
		log.Printf("task failed: %s: %v", e.Name, e.Err)
	case events.TaskSkippedEvent:
		log.Printf("task skipped: %s", e.Name)
	case events.QualityScoredEvent:
		log.Printf("quality score: %.1f (passed=%v, blockers=%d)", e.Score, e.Passed, e.Blockers)
	case events.CheckpointReachedEvent:
		log.Printf("checkpoint reached: %s", e.Summary)
	case events.CheckpointResolvedEvent:
		log.Printf("checkpoint resolved: %s by %s", e.Resolution, e.DecidedBy)
	case events.RunFinishedEvent:
		log.Printf("run finished: %s (score %.1f, elapsed %s)", e.Status, e.Score, e.Elapsed.Round(time.Millisecond))
	}
}

func loadPlan(path string) (*plan.ExecutionPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p plan.ExecutionPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid plan JSON: %w", err)
	}
	return &p, nil
}

func printReceipt(r *engine.Receipt) {
	fmt.Printf("\n=== Receipt for %s (%s) ===\n", r.OrderID, r.Status)
	fmt.Printf("Tasks: %d total, %d completed, %d failed, %d skipped\n",
		r.Technical.TotalTasks, r.Technical.CompletedTasks, r.Technical.FailedTasks, r.Technical.SkippedTasks)
	fmt.Printf("Quality: %.1f/100, build %s\n", r.Executive.QualityScore, r.Technical.BuildStatus)
	fmt.Printf("Elapsed: %s, tokens: %d\n", r.Technical.Elapsed.Round(time.Millisecond), r.Technical.TokensUsed)

	if len(r.Executive.Accomplishments) > 0 {
		fmt.Println("\nAccomplished:")
		for _, a := range r.Executive.Accomplishments {
			fmt.Printf("  + %s\n", a)
		}
	}
	if len(r.Executive.UnfinishedItems) > 0 {
		fmt.Println("\nUnfinished:")
		for _, u := range r.Executive.UnfinishedItems {
			fmt.Printf("  - %s\n", u)
		}
	}
	if len(r.Executive.QualityNotes) > 0 {
		fmt.Println("\nQuality notes:")
		for _, n := range r.Executive.QualityNotes {
			fmt.Printf("  * %s\n", n)
		}
	}
	for _, p := range r.Pods {
		fmt.Printf("\nPod %s (%s): %d done, %d failed, %s used of %s, %d tokens\n",
			p.PodID, p.Role, p.TasksCompleted, p.TasksFailed,
			p.TimeUsed.Round(time.Millisecond), p.TimeAllocated.Round(time.Millisecond), p.TokensUsed)
	}
	if len(r.Rollback) > 0 {
		fmt.Println("\nRollback:")
		for _, step := range r.Rollback {
			fmt.Printf("  %s\n", step)
		}
	}
}
