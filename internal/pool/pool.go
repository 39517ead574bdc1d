// Package pool tracks which pods are busy versus idle, selects the best
// available pod for a pending task, and enforces a per-pod concurrency
// cap. The pool is the only cross-run-shared piece of the engine: it is
// keyed by role and retains pod metrics between runs for load balancing.
// Reassignment is monotonic (available -> active -> available), so a
// single mutex over the indexes is the only locking needed.
package pool

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aristath/workorder/internal/pod"
)

// DefaultPodCap is the per-pod concurrency cap. No pod may exceed its
// cap at any instant.
const DefaultPodCap = 2

// QueuedTask is an overflow entry for a task that could not be assigned
// immediately. Higher priority drains first.
type QueuedTask struct {
	TaskID   string
	Priority time.Duration
	Queued   time.Time
}

// Pool is the load-balancing resource pool.
type Pool struct {
	mu        sync.Mutex
	cap       int
	pods      map[string]*pod.Pod // by pod ID
	active    map[string][]string // pod ID -> in-flight task IDs
	nameMemo  map[string]map[string]bool // pod ID -> first words of completed task names
	queue     []QueuedTask
}

// New creates a pool with the given per-pod concurrency cap
// (DefaultPodCap if <= 0).
func New(podCap int) *Pool {
	if podCap <= 0 {
		podCap = DefaultPodCap
	}
	return &Pool{
		cap:      podCap,
		pods:     make(map[string]*pod.Pod),
		active:   make(map[string][]string),
		nameMemo: make(map[string]map[string]bool),
	}
}

// Cap returns the per-pod concurrency cap.
func (p *Pool) Cap() int { return p.cap }

// Provision returns an existing non-terminated pod of the given role, or
// creates one. The returned pod is idle and ready for assignment.
func (p *Pool) Provision(role pod.Role) *pod.Pod {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pd := range p.pods {
		if pd.Role != role {
			continue
		}
		if pd.Status == pod.StatusIdle || pd.Status == pod.StatusTerminated {
			pd.Status = pod.StatusIdle
			return pd
		}
	}

	pd := pod.New(role)
	pd.Status = pod.StatusIdle
	p.pods[pd.ID] = pd
	return pd
}

// Get returns the pod with the given ID.
func (p *Pool) Get(podID string) (*pod.Pod, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pd, ok := p.pods[podID]
	return pd, ok
}

// Pods returns every pod in the pool.
func (p *Pool) Pods() []*pod.Pod {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*pod.Pod, 0, len(p.pods))
	for _, pd := range p.pods {
		out = append(out, pd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Acquire scores every pod with spare capacity and returns the best
// match for the task, or nil if every pod is saturated. Callers must
// then queue the task or fail the phase, never block.
//
// Scoring: +2.0 exact role match, + historical success rate (0..1),
// +0.5 per free slot below the cap, +0.5 if the pod previously completed
// a task sharing the first word of this task's name.
func (p *Pool) Acquire(taskName string, preferredRole pod.Role) *pod.Pod {
	p.mu.Lock()
	defer p.mu.Unlock()

	firstWord := firstWordOf(taskName)

	var best *pod.Pod
	var bestScore float64
	for _, pd := range p.pods {
		if pd.Status == pod.StatusTerminated || pd.Status == pod.StatusFailed {
			continue
		}
		activeCount := len(p.active[pd.ID])
		if activeCount >= p.cap {
			continue
		}

		score := 0.0
		if pd.Role == preferredRole {
			score += 2.0
		}
		score += pd.SuccessRate()
		score += float64(p.cap-activeCount) * 0.5
		if firstWord != "" && p.nameMemo[pd.ID][firstWord] {
			score += 0.5
		}

		if best == nil || score > bestScore || (score == bestScore && pd.ID < best.ID) {
			best = pd
			bestScore = score
		}
	}
	return best
}

// StartTask records a task as in flight on the pod. Returns false if the
// pod is unknown or already at its cap.
func (p *Pool) StartTask(podID, taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pd, ok := p.pods[podID]
	if !ok || len(p.active[podID]) >= p.cap {
		return false
	}

	p.active[podID] = append(p.active[podID], taskID)
	pd.Status = pod.StatusWorking
	pd.CurrentTaskID = taskID
	return true
}

// CompleteTask removes a task from the pod's active index and records
// the outcome for future scoring.
func (p *Pool) CompleteTask(podID, taskID, taskName string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pd, ok := p.pods[podID]
	if !ok {
		return
	}

	tasks := p.active[podID]
	for i, id := range tasks {
		if id == taskID {
			p.active[podID] = append(tasks[:i], tasks[i+1:]...)
			break
		}
	}

	if success {
		pd.CompletedTasks = append(pd.CompletedTasks, taskID)
		if w := firstWordOf(taskName); w != "" {
			if p.nameMemo[podID] == nil {
				p.nameMemo[podID] = make(map[string]bool)
			}
			p.nameMemo[podID][w] = true
		}
	} else {
		pd.FailedTasks = append(pd.FailedTasks, taskID)
		pd.Health.Errors++
	}

	if len(p.active[podID]) == 0 {
		pd.Status = pod.StatusIdle
		pd.CurrentTaskID = ""
	}
}

// ActiveCount returns the pod's in-flight task count.
func (p *Pool) ActiveCount(podID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.active[podID])
}

// QueueTask adds a task to the priority-ordered overflow queue.
func (p *Pool) QueueTask(taskID string, priority time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := QueuedTask{TaskID: taskID, Priority: priority, Queued: time.Now()}
	i := sort.Search(len(p.queue), func(i int) bool {
		return p.queue[i].Priority < priority
	})
	p.queue = append(p.queue, QueuedTask{})
	copy(p.queue[i+1:], p.queue[i:])
	p.queue[i] = entry
}

// PeekQueue returns the highest-priority queued task without removing it.
func (p *Pool) PeekQueue() (QueuedTask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return QueuedTask{}, false
	}
	return p.queue[0], true
}

// RemoveQueued drops a task from the overflow queue, if present.
func (p *Pool) RemoveQueued(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, entry := range p.queue {
		if entry.TaskID == taskID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

// DequeueTask pops the highest-priority queued task, if any.
func (p *Pool) DequeueTask() (QueuedTask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return QueuedTask{}, false
	}
	entry := p.queue[0]
	p.queue = p.queue[1:]
	return entry, true
}

// QueueLen returns the overflow queue depth.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.queue)
}

// Terminate marks every pod of the run terminated. Metrics are retained:
// a later Provision for the same role revives the pod with its history.
func (p *Pool) Terminate(podIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range podIDs {
		if pd, ok := p.pods[id]; ok {
			pd.Status = pod.StatusTerminated
			pd.CurrentTaskID = ""
			delete(p.active, id)
		}
	}
}

// AddUsage accumulates resource usage on a pod.
func (p *Pool) AddUsage(podID string, tokens int, execTime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pd, ok := p.pods[podID]; ok {
		pd.Usage.TokensUsed += tokens
		pd.Usage.ExecutionTime += execTime
		pd.Usage.APICalls++
	}
}

func firstWordOf(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
