package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/aristath/workorder/internal/engine"
)

// formResolver asks the operator to resolve a checkpoint through an
// interactive form. Under guided authority the run blocks here until
// the form is submitted.
type formResolver struct{}

func newFormResolver() engine.Resolver {
	return formResolver{}
}

// Resolve implements engine.Resolver.
func (formResolver) Resolve(ctx context.Context, cp *engine.Checkpoint) (engine.Resolution, error) {
	var summary strings.Builder
	summary.WriteString(cp.Summary)
	if len(cp.Achievements) > 0 {
		summary.WriteString("\n\nDone so far:\n  " + strings.Join(cp.Achievements, "\n  "))
	}
	if len(cp.NextSteps) > 0 {
		summary.WriteString("\n\nUp next:\n  " + strings.Join(cp.NextSteps, "\n  "))
	}

	action := engine.ResolutionContinue
	note := ""

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[engine.ResolutionAction]().
				Title(fmt.Sprintf("Checkpoint (%s)", cp.Trigger)).
				Description(summary.String()).
				Options(
					huh.NewOption("Continue", engine.ResolutionContinue),
					huh.NewOption("Pause the run", engine.ResolutionPause),
					huh.NewOption("Continue with changes", engine.ResolutionModify),
				).
				Value(&action),
			huh.NewText().
				Title("Note (optional)").
				Value(&note),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return engine.Resolution{}, err
	}

	return engine.Resolution{
		Action:    action,
		DecidedBy: "operator",
		At:        time.Now(),
		Note:      note,
	}, nil
}
