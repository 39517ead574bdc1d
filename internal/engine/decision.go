package engine

import (
	"time"

	"github.com/google/uuid"
)

// DecisionOption is one considered alternative at a decision point.
type DecisionOption struct {
	Label     string
	Rationale string
}

// DecisionPoint is an append-only audit record. Every phase failure,
// checkpoint and terminal outcome appends one, even when the choice was
// made automatically; the trail is what makes the receipt auditable.
type DecisionPoint struct {
	ID         string
	At         time.Time
	Context    string
	Options    []DecisionOption
	Chosen     int // index into Options
	Confidence float64
	Outcome    string // observed later, may be empty
}

func newDecision(situation string, options []DecisionOption, chosen int, confidence float64) DecisionPoint {
	return DecisionPoint{
		ID:         "dec-" + uuid.NewString(),
		At:         time.Now(),
		Context:    situation,
		Options:    options,
		Chosen:     chosen,
		Confidence: confidence,
	}
}
