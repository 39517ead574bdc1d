// Package quality runs the fixed battery of heuristic checks against
// produced artifacts and reduces them to a pass/fail decision for a
// quality target. Checks are line-oriented text heuristics: completeness
// against required artifact categories, code smells, design consistency,
// documentation coverage and complexity banding.
package quality

import (
	"fmt"

	"github.com/aristath/workorder/internal/plan"
)

// Severity grades a check's failure impact. Failing checks of severity
// error or critical become blockers; lower severities become
// recommendations.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// passScore is the per-check pass boundary.
const passScore = 70.0

// Check is one named heuristic's outcome.
type Check struct {
	Name     string
	Passed   bool
	Score    float64 // 0..100
	Severity Severity
	Detail   string
}

// Result is the gate's verdict. Not persisted long-term.
type Result struct {
	Passed          bool
	Score           float64 // averaged 0..100
	Checks          []Check
	Recommendations []string
	Blockers        []string
}

// Threshold returns the minimum averaged score (0..100) a target
// demands. Monotonically increasing in target rank.
func Threshold(target plan.QualityTarget) float64 {
	switch target {
	case plan.QualityDraft:
		return 50
	case plan.QualityStandard:
		return 70
	case plan.QualityPremium:
		return 85
	case plan.QualityAppleLevel:
		return 95
	}
	return 70
}

// RunChecks runs every applicable check against the artifacts, averages
// their scores and compares against the target's threshold. Design
// consistency only applies to design-bearing kinds.
func RunChecks(artifacts []plan.Artifact, target plan.QualityTarget, kind plan.Kind) Result {
	checks := []Check{
		checkCompleteness(artifacts, kind),
		checkCodeQuality(artifacts),
		checkDocumentation(artifacts),
		checkComplexity(artifacts),
	}
	if designBearing(kind) {
		checks = append(checks, checkDesignConsistency(artifacts))
	}

	var total float64
	for _, c := range checks {
		total += c.Score
	}
	score := total / float64(len(checks))

	result := Result{
		Score:  score,
		Passed: score >= Threshold(target),
		Checks: checks,
	}

	for _, c := range checks {
		if c.Passed {
			continue
		}
		note := fmt.Sprintf("%s: %s", c.Name, c.Detail)
		switch c.Severity {
		case SeverityError, SeverityCritical:
			result.Blockers = append(result.Blockers, note)
		default:
			result.Recommendations = append(result.Recommendations, note)
		}
	}

	return result
}

func designBearing(kind plan.Kind) bool {
	return kind == plan.KindWebsite || kind == plan.KindCampaign
}

// requiredArtifacts maps a work-order kind to the artifact categories a
// complete deliverable must contain.
func requiredArtifacts(kind plan.Kind) []plan.ArtifactType {
	switch kind {
	case plan.KindWebsite:
		return []plan.ArtifactType{plan.ArtifactCode, plan.ArtifactDesign, plan.ArtifactContent}
	case plan.KindApplication:
		return []plan.ArtifactType{plan.ArtifactCode, plan.ArtifactDocument}
	case plan.KindDocument:
		return []plan.ArtifactType{plan.ArtifactDocument}
	case plan.KindCampaign:
		return []plan.ArtifactType{plan.ArtifactContent, plan.ArtifactDesign}
	}
	return []plan.ArtifactType{plan.ArtifactCode}
}
