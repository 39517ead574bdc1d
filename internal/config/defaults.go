package config

// DefaultConfig returns the engine defaults.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		TickIntervalMS:     1000,
		PodConcurrencyCap:  2,
		RequestTimeoutMS:   30_000,
		BrainTimeoutMS:     120_000,
		BusHistorySize:     500,
		ErrorThreshold:     3,
		BudgetWarnFraction: 0.8,
		Retry: RetryConfig{
			InitialIntervalMS:   100,
			MaxIntervalMS:       10_000,
			MaxElapsedTimeMS:    120_000,
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		},
	}
}
