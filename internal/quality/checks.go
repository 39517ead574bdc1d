package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aristath/workorder/internal/plan"
)

var (
	hexColorRe = regexp.MustCompile(`#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})\b`)
	funcDeclRe = regexp.MustCompile(`(?m)^\s*(?:func |def |function |const \w+ = (?:async )?\()`)
	branchRe   = regexp.MustCompile(`\b(if|for|while|switch|case|catch)\b`)
)

// debugMarkers are the debug-print escapes flagged by the code check.
var debugMarkers = []string{"console.log(", "debugger", "print(", "fmt.Println(", "var_dump("}

// checkCompleteness verifies the required artifact categories for the
// work-order kind are present. Each missing category costs an equal
// share of the score.
func checkCompleteness(artifacts []plan.Artifact, kind plan.Kind) Check {
	required := requiredArtifacts(kind)

	present := make(map[plan.ArtifactType]bool)
	for _, a := range artifacts {
		present[a.Type] = true
	}

	var missing []string
	for _, t := range required {
		if !present[t] {
			missing = append(missing, string(t))
		}
	}

	score := 100.0 * float64(len(required)-len(missing)) / float64(len(required))
	detail := "all required artifact categories present"
	if len(missing) > 0 {
		detail = "missing artifact categories: " + strings.Join(missing, ", ")
	}

	return Check{
		Name:     "completeness",
		Passed:   score >= passScore,
		Score:    score,
		Severity: SeverityCritical,
		Detail:   detail,
	}
}

// checkCodeQuality scans code artifacts for smells: debug prints, TODO
// markers, loosely-typed escapes and empty blocks. Each finding deducts
// from a 100 baseline.
func checkCodeQuality(artifacts []plan.Artifact) Check {
	score := 100.0
	findings := 0

	for _, a := range artifacts {
		if a.Type != plan.ArtifactCode {
			continue
		}
		for _, marker := range debugMarkers {
			if n := strings.Count(a.Content, marker); n > 0 {
				findings += n
				score -= float64(n) * 5
			}
		}
		if n := strings.Count(a.Content, "TODO") + strings.Count(a.Content, "FIXME"); n > 0 {
			findings += n
			score -= float64(n) * 3
		}
		if n := strings.Count(a.Content, ": any") + strings.Count(a.Content, "interface{}"); n > 0 {
			findings += n
			score -= float64(n) * 4
		}
		if n := strings.Count(a.Content, "{}") + strings.Count(a.Content, "{ }"); n > 0 {
			findings += n
			score -= float64(n) * 2
		}
	}

	if score < 0 {
		score = 0
	}

	return Check{
		Name:     "code-quality",
		Passed:   score >= passScore,
		Score:    score,
		Severity: SeverityError,
		Detail:   fmt.Sprintf("%d code smell(s) found", findings),
	}
}

// checkDesignConsistency applies two cheap heuristics to design-bearing
// output: a unique-color budget and mixing of inline styles with utility
// classes in the same artifact.
func checkDesignConsistency(artifacts []plan.Artifact) Check {
	score := 100.0
	colors := make(map[string]bool)
	mixed := 0

	for _, a := range artifacts {
		if a.Type != plan.ArtifactDesign && a.Type != plan.ArtifactCode {
			continue
		}
		for _, c := range hexColorRe.FindAllString(a.Content, -1) {
			colors[strings.ToLower(c)] = true
		}
		if strings.Contains(a.Content, "style=") && strings.Contains(a.Content, "class=") {
			mixed++
		}
	}

	// More than eight distinct colors reads as an unsystematic palette.
	if len(colors) > 8 {
		score -= float64(len(colors)-8) * 5
	}
	score -= float64(mixed) * 10

	if score < 0 {
		score = 0
	}

	return Check{
		Name:     "design-consistency",
		Passed:   score >= passScore,
		Score:    score,
		Severity: SeverityWarning,
		Detail:   fmt.Sprintf("%d unique colors, %d artifact(s) mixing inline styles with utility classes", len(colors), mixed),
	}
}

// checkDocumentation scores the ratio of documentation artifacts to code
// artifacts plus inline comment density within code.
func checkDocumentation(artifacts []plan.Artifact) Check {
	codeCount, docCount := 0, 0
	commentLines, codeLines := 0, 0

	for _, a := range artifacts {
		switch a.Type {
		case plan.ArtifactDocument:
			docCount++
		case plan.ArtifactCode:
			codeCount++
			for _, line := range strings.Split(a.Content, "\n") {
				trimmed := strings.TrimSpace(line)
				if trimmed == "" {
					continue
				}
				codeLines++
				if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*") {
					commentLines++
				}
			}
		}
	}

	if codeCount == 0 {
		// Nothing to document.
		return Check{Name: "documentation", Passed: true, Score: 100, Severity: SeverityInfo, Detail: "no code artifacts"}
	}

	ratioScore := 100.0 * float64(docCount) / float64(codeCount)
	if ratioScore > 100 {
		ratioScore = 100
	}

	density := 0.0
	if codeLines > 0 {
		density = float64(commentLines) / float64(codeLines)
	}
	// A ~10% comment density earns full marks.
	densityScore := density / 0.10 * 100
	if densityScore > 100 {
		densityScore = 100
	}

	score := (ratioScore + densityScore) / 2

	return Check{
		Name:     "documentation",
		Passed:   score >= passScore,
		Score:    score,
		Severity: SeverityInfo,
		Detail:   fmt.Sprintf("%d doc artifact(s) for %d code artifact(s), %.0f%% comment density", docCount, codeCount, density*100),
	}
}

// checkComplexity measures branching/looping density per function in
// code artifacts, penalizing both trivially low and excessive complexity
// relative to a target band of 1..6 branches per function.
func checkComplexity(artifacts []plan.Artifact) Check {
	funcs, branches := 0, 0
	for _, a := range artifacts {
		if a.Type != plan.ArtifactCode {
			continue
		}
		funcs += len(funcDeclRe.FindAllString(a.Content, -1))
		branches += len(branchRe.FindAllString(a.Content, -1))
	}

	if funcs == 0 {
		return Check{Name: "complexity", Passed: true, Score: 100, Severity: SeverityWarning, Detail: "no functions found"}
	}

	perFunc := float64(branches) / float64(funcs)
	score := 100.0
	switch {
	case perFunc < 1:
		// Suspiciously flat code: likely stubs.
		score = 60 + perFunc*40
	case perFunc > 6:
		score = 100 - (perFunc-6)*10
	}
	if score < 0 {
		score = 0
	}

	return Check{
		Name:     "complexity",
		Passed:   score >= passScore,
		Score:    score,
		Severity: SeverityWarning,
		Detail:   fmt.Sprintf("%.1f branches per function across %d function(s)", perFunc, funcs),
	}
}
