package pod

import "fmt"

// Role is the closed set of worker specializations. Adding a role is a
// compile-time-checked change: Instructions and AllowedTools switch
// exhaustively over every value.
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleDesign       Role = "design"
	RoleFrontend     Role = "frontend"
	RoleBackend      Role = "backend"
	RoleCopy         Role = "copy"
	RoleMotion       Role = "motion"
	RoleQA           Role = "qa"
	RoleResearch     Role = "research"
	RoleData         Role = "data"
	RoleDeployment   Role = "deployment"
)

// Roles lists every role in declaration order.
var Roles = []Role{
	RoleOrchestrator,
	RoleDesign,
	RoleFrontend,
	RoleBackend,
	RoleCopy,
	RoleMotion,
	RoleQA,
	RoleResearch,
	RoleData,
	RoleDeployment,
}

// ParseRole validates a role string from an external plan.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown pod role %q", s)
}

// Instructions returns the role-specific instruction template prepended
// to every task prompt the pod executes.
func (r Role) Instructions() string {
	switch r {
	case RoleOrchestrator:
		return "You coordinate task planning and sequencing across the other pods. Keep answers decisive and short."
	case RoleDesign:
		return "You produce visual design artifacts: layout specs, color systems, component styles. Favor consistency over novelty."
	case RoleFrontend:
		return "You implement user-facing code. Produce complete, working components; no placeholder stubs."
	case RoleBackend:
		return "You implement server-side code and data plumbing. State assumptions explicitly in the output."
	case RoleCopy:
		return "You write product copy and microtext. Match the objective's tone; avoid filler."
	case RoleMotion:
		return "You specify animation and transition behavior as implementable timing curves and keyframes."
	case RoleQA:
		return "You review sibling artifacts for defects. Report concrete findings, not general advice."
	case RoleResearch:
		return "You gather and condense background material relevant to the task into actionable notes."
	case RoleData:
		return "You produce data models, queries and transformations. Output must be executable as written."
	case RoleDeployment:
		return "You produce build, release and rollout steps. Every step must be reversible or flagged."
	}
	return ""
}

// AllowedTools returns the tool names a pod of this role may request from
// the external tool executor.
func (r Role) AllowedTools() []string {
	switch r {
	case RoleOrchestrator:
		return []string{"read_artifact"}
	case RoleDesign:
		return []string{"read_artifact", "render_preview"}
	case RoleFrontend, RoleBackend, RoleData:
		return []string{"read_artifact", "write_file", "run_code"}
	case RoleCopy, RoleResearch:
		return []string{"read_artifact", "web_search"}
	case RoleMotion:
		return []string{"read_artifact", "render_preview"}
	case RoleQA:
		return []string{"read_artifact", "run_code"}
	case RoleDeployment:
		return []string{"read_artifact", "run_command"}
	}
	return nil
}
