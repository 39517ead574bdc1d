package plan

import (
	"strings"
	"time"
)

// ArtifactType categorizes produced artifacts for quality checks and
// completeness scoring.
type ArtifactType string

const (
	ArtifactCode     ArtifactType = "code"
	ArtifactDesign   ArtifactType = "design"
	ArtifactContent  ArtifactType = "content"
	ArtifactDocument ArtifactType = "document"
	ArtifactData     ArtifactType = "data"
)

// Artifact is a unit of output produced by a task. Artifacts reference
// their producer by ID; the engine never holds live handles across
// components (graph, pool and bus are rebuilt independently from the
// same backing entities).
type Artifact struct {
	ID        string       `json:"id"`
	TaskID    string       `json:"task_id"`
	PodID     string       `json:"pod_id"`
	Type      ArtifactType `json:"type"`
	Name      string       `json:"name"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

// LineCount returns the number of non-empty lines in the artifact body.
// Used for the receipt's lines-produced accounting.
func (a Artifact) LineCount() int {
	count := 0
	for _, line := range strings.Split(a.Content, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
