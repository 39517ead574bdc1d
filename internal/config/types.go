package config

// RetryConfig tunes the exponential backoff applied to worker-brain
// calls. All intervals are in milliseconds.
type RetryConfig struct {
	InitialIntervalMS   int     `json:"initial_interval_ms,omitempty"`
	MaxIntervalMS       int     `json:"max_interval_ms,omitempty"`
	MaxElapsedTimeMS    int     `json:"max_elapsed_time_ms,omitempty"`
	Multiplier          float64 `json:"multiplier,omitempty"`
	RandomizationFactor float64 `json:"randomization_factor,omitempty"`
}

// EngineConfig is the top-level engine configuration.
type EngineConfig struct {
	// TickIntervalMS is the time-budget ticker cadence. The ticker runs
	// independently of phase cadence and forces timeout when the budget
	// is exhausted.
	TickIntervalMS int `json:"tick_interval_ms,omitempty"`

	// PodConcurrencyCap is the per-pod in-flight task limit.
	PodConcurrencyCap int `json:"pod_concurrency_cap,omitempty"`

	// RequestTimeoutMS bounds message-bus request/response round-trips.
	RequestTimeoutMS int `json:"request_timeout_ms,omitempty"`

	// BrainTimeoutMS is the externally configured ceiling on one
	// worker-brain call.
	BrainTimeoutMS int `json:"brain_timeout_ms,omitempty"`

	// BusHistorySize caps the message bus audit history.
	BusHistorySize int `json:"bus_history_size,omitempty"`

	// ContinueOnPhaseFailure controls whether a failed phase aborts the
	// run or execution proceeds to subsequent phases.
	ContinueOnPhaseFailure *bool `json:"continue_on_phase_failure,omitempty"`

	// ErrorThreshold is the task-failure count that triggers an
	// error-threshold checkpoint regardless of authority level.
	ErrorThreshold int `json:"error_threshold,omitempty"`

	// BudgetWarnFraction is the consumed share of the time budget (0..1)
	// at which a single time-elapsed checkpoint is raised. Zero disables
	// the trigger; runs without a budget never raise it.
	BudgetWarnFraction float64 `json:"budget_warn_fraction,omitempty"`

	Retry RetryConfig `json:"retry,omitempty"`
}

// ContinueOnFailure resolves the phase-failure policy (default true).
func (c *EngineConfig) ContinueOnFailure() bool {
	if c.ContinueOnPhaseFailure == nil {
		return true
	}
	return *c.ContinueOnPhaseFailure
}
