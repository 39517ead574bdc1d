// Package taskgraph builds the scheduling DAG for one work order run.
// Nodes shadow plan tasks: they carry dependency and reverse-dependency
// edges, a longest-remaining-path priority, and execution timestamps.
// The graph is rebuilt once per run from the plan and never persisted
// independently of the tasks it shadows.
package taskgraph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/toposort"

	"github.com/aristath/workorder/internal/plan"
)

// Node is the scheduling-internal shadow of a plan task.
type Node struct {
	ID           string
	Name         string
	Role         string
	Description  string
	Estimated    time.Duration
	DependsOn    []string
	Dependents   []string
	Priority     time.Duration // longest remaining path through this node
	CriticalPath bool
	Status       plan.TaskStatus
	PodID        string
	Output       string
	Confidence   float64
	StartedAt    time.Time
	EndedAt      time.Time
	PhaseID      string
}

// Graph is a dependency DAG over all tasks of a plan.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string // insertion order, for deterministic iteration
}

// Build flattens all tasks across the plan's phases into nodes, wires
// reverse edges, computes priorities and derives the critical path.
// The plan must already have passed structural validation.
func Build(p *plan.ExecutionPlan) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*Node)}

	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			if _, exists := g.nodes[t.ID]; exists {
				return nil, fmt.Errorf("task with ID %q already exists", t.ID)
			}
			g.nodes[t.ID] = &Node{
				ID:          t.ID,
				Name:        t.Name,
				Role:        t.Role,
				Description: t.Description,
				Estimated:   t.Estimated,
				DependsOn:   append([]string(nil), t.DependsOn...),
				Status:      plan.TaskPending,
				PhaseID:     ph.ID,
			}
			g.order = append(g.order, t.ID)
		}
	}

	// Wire dependency -> dependent reverse edges.
	for _, id := range g.order {
		node := g.nodes[id]
		for _, depID := range node.DependsOn {
			dep, exists := g.nodes[depID]
			if !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", id, depID)
			}
			dep.Dependents = append(dep.Dependents, id)
		}
	}

	g.computePriorities()
	g.markCriticalPath()

	return g, nil
}

// Validate runs a topological sort over the whole graph and returns the
// ordered task IDs, or an error if a cycle or disconnected remainder is
// detected. Cycles are planning errors: they abort scheduling for the
// affected nodes rather than being silently dropped.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []toposort.Edge
	for _, id := range g.order {
		node := g.nodes[id]
		if len(node.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range node.DependsOn {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("task graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(g.nodes) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, id := range g.order {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Ready returns nodes whose status is pending and whose dependencies are
// all complete. Called on every scheduling tick. Nodes downstream of a
// failed dependency never become ready; SkipDependents handles those.
func (g *Graph) Ready() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*Node
	for _, id := range g.order {
		node := g.nodes[id]
		if node.Status != plan.TaskPending {
			continue
		}
		satisfied := true
		for _, depID := range node.DependsOn {
			if g.nodes[depID].Status != plan.TaskComplete {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, cloneNode(node))
		}
	}
	return ready
}

// ParallelGroups partitions all nodes into ordered groups such that group
// k contains exactly the nodes whose dependencies are fully satisfied by
// groups 0..k-1. If a pass assigns no node while unassigned nodes remain,
// those nodes form a dependency cycle and an error naming them is
// returned along with the groups resolved so far, leaving any independent
// portion of the graph executable.
func (g *Graph) ParallelGroups() ([][]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	assigned := make(map[string]bool, len(g.nodes))
	var groups [][]*Node

	for len(assigned) < len(g.nodes) {
		var group []*Node
		for _, id := range g.order {
			if assigned[id] {
				continue
			}
			node := g.nodes[id]
			eligible := true
			for _, depID := range node.DependsOn {
				if !assigned[depID] {
					eligible = false
					break
				}
			}
			if eligible {
				group = append(group, cloneNode(node))
			}
		}

		if len(group) == 0 {
			var unresolved []string
			for _, id := range g.order {
				if !assigned[id] {
					unresolved = append(unresolved, id)
				}
			}
			return groups, fmt.Errorf("dependency cycle among tasks: %s", strings.Join(unresolved, ", "))
		}

		// Highest-priority work first within a group; ties break on ID
		// so grouping is deterministic across runs.
		sort.Slice(group, func(i, j int) bool {
			if group[i].Priority != group[j].Priority {
				return group[i].Priority > group[j].Priority
			}
			return group[i].ID < group[j].ID
		})

		for _, node := range group {
			assigned[node.ID] = true
		}
		groups = append(groups, group)
	}

	return groups, nil
}

// UpdateStatus mutates a single node's status, recording start and end
// timestamps on transitions into and out of running.
func (g *Graph) UpdateStatus(taskID string, status plan.TaskStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, exists := g.nodes[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	if status == plan.TaskRunning && node.Status != plan.TaskRunning {
		node.StartedAt = time.Now()
	}
	if node.Status == plan.TaskRunning && status != plan.TaskRunning {
		node.EndedAt = time.Now()
	}

	node.Status = status
	return nil
}

// RecordResult stores the brain's output payload and confidence on the
// node. Phase settlement copies them back onto the plan task.
func (g *Graph) RecordResult(taskID, output string, confidence float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, exists := g.nodes[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	node.Output = output
	node.Confidence = confidence
	return nil
}

// AssignPod records the pod executing a node.
func (g *Graph) AssignPod(taskID, podID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, exists := g.nodes[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	node.PodID = podID
	return nil
}

// SkipDependents transitively marks every pending node downstream of the
// given task as skipped and returns the IDs it skipped. Used after a task
// fails: its dependents must never run.
func (g *Graph) SkipDependents(taskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var skipped []string
	queue := append([]string(nil), g.dependentsOf(taskID)...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node, exists := g.nodes[id]
		if !exists || node.Status != plan.TaskPending {
			continue
		}
		node.Status = plan.TaskSkipped
		skipped = append(skipped, id)
		queue = append(queue, node.Dependents...)
	}
	return skipped
}

func (g *Graph) dependentsOf(taskID string) []string {
	if node, exists := g.nodes[taskID]; exists {
		return node.Dependents
	}
	return nil
}

// Get returns a copy of the node with the given ID.
func (g *Graph) Get(taskID string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[taskID]
	if !exists {
		return nil, false
	}
	return cloneNode(node), true
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]*Node, 0, len(g.nodes))
	for _, id := range g.order {
		nodes = append(nodes, cloneNode(g.nodes[id]))
	}
	return nodes
}

// CriticalPath returns the IDs of critical-path nodes in execution order.
func (g *Graph) CriticalPath() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var path []string
	for _, id := range g.order {
		if g.nodes[id].CriticalPath {
			path = append(path, id)
		}
	}
	sort.Slice(path, func(i, j int) bool {
		return g.nodes[path[i]].Priority > g.nodes[path[j]].Priority
	})
	return path
}

// computePriorities assigns each node the length of the longest chain of
// estimated durations from it to a terminal node, memoized per node.
// This is deliberately a longest-remaining-path heuristic, not true CPM:
// estimates are approximate, so exact forward/backward passes would add
// precision the inputs do not have.
func (g *Graph) computePriorities() {
	memo := make(map[string]time.Duration, len(g.nodes))
	visiting := make(map[string]bool, len(g.nodes))

	var walk func(id string) time.Duration
	walk = func(id string) time.Duration {
		if p, ok := memo[id]; ok {
			return p
		}
		if visiting[id] {
			// Cycle: Validate reports it as a planning error; here the
			// walk just has to terminate.
			return 0
		}
		visiting[id] = true
		node := g.nodes[id]
		var maxDependent time.Duration
		for _, depID := range node.Dependents {
			if p := walk(depID); p > maxDependent {
				maxDependent = p
			}
		}
		p := maxDependent + node.Estimated
		memo[id] = p
		return p
	}

	for _, id := range g.order {
		g.nodes[id].Priority = walk(id)
	}
}

// markCriticalPath walks backward from the terminal node (no dependents)
// ending the longest estimated chain, always following the
// highest-priority unvisited dependency, flagging the chain estimated to
// determine the plan's minimum duration.
func (g *Graph) markCriticalPath() {
	var start *Node
	var startChain time.Duration
	for _, id := range g.order {
		node := g.nodes[id]
		if len(node.Dependents) != 0 {
			continue
		}
		chain := g.chainLength(node, make(map[string]bool))
		if start == nil || chain > startChain {
			start = node
			startChain = chain
		}
	}
	if start == nil {
		return
	}

	visited := make(map[string]bool, len(g.nodes))
	current := start
	for current != nil && !visited[current.ID] {
		current.CriticalPath = true
		visited[current.ID] = true

		var next *Node
		for _, depID := range current.DependsOn {
			dep := g.nodes[depID]
			if visited[depID] {
				continue
			}
			if next == nil || dep.Priority > next.Priority {
				next = dep
			}
		}
		current = next
	}
}

// chainLength returns the longest estimated-duration chain from any root
// down to the given node. seen guards against cycles, which Validate
// reports separately.
func (g *Graph) chainLength(node *Node, seen map[string]bool) time.Duration {
	if seen[node.ID] {
		return 0
	}
	seen[node.ID] = true
	defer delete(seen, node.ID)

	longest := node.Estimated
	for _, depID := range node.DependsOn {
		if l := g.chainLength(g.nodes[depID], seen) + node.Estimated; l > longest {
			longest = l
		}
	}
	return longest
}

func cloneNode(node *Node) *Node {
	if node == nil {
		return nil
	}
	cp := *node
	if node.DependsOn != nil {
		cp.DependsOn = append([]string(nil), node.DependsOn...)
	}
	if node.Dependents != nil {
		cp.Dependents = append([]string(nil), node.Dependents...)
	}
	return &cp
}
