package swarm

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/payment-fabric/internal/clock"
	"github.com/rawblock/payment-fabric/internal/idgen"
	"github.com/rawblock/payment-fabric/pkg/errs"
)

// Coordinator is the swarm's public contract: agent registry, priority
// queue, dispatcher, and weighted consensus, per spec.md §4.6.
type Coordinator struct {
	cfg     Config
	clk     clock.Clock
	handler Handler
	log     zerolog.Logger

	mu      sync.Mutex
	agents  map[string]*Agent
	tasks   map[string]*Task
	queue   *taskQueue
	workers map[string]chan Task
	seq     uint64

	completedCount int64
	failedCount    int64

	dispatchSignal chan struct{}
	stopCh         chan struct{}
	shutdownOnce   sync.Once
	shutdown       bool
}

func NewCoordinator(cfg Config, clk clock.Clock, handler Handler) *Coordinator {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.ConsensusThreshold <= 0 {
		cfg.ConsensusThreshold = 0.66
	}
	if cfg.RecoveryDelay <= 0 {
		cfg.RecoveryDelay = 30 * time.Second
	}
	c := &Coordinator{
		cfg:            cfg,
		clk:            clk,
		handler:        handler,
		log:            newAuditLogger(),
		agents:         make(map[string]*Agent),
		tasks:          make(map[string]*Task),
		queue:          newTaskQueue(),
		workers:        make(map[string]chan Task),
		dispatchSignal: make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}
	go c.dispatcherLoop()
	return c
}

// AddAgent registers a new swarm participant and starts its dedicated
// worker goroutine, per spec.md §9's "owned worker with an inbound task
// channel" model.
func (c *Coordinator) AddAgent(a Agent) {
	if a.Status == "" {
		a.Status = AgentActive
	}
	a.LastActive = c.clk.Now()

	c.mu.Lock()
	c.agents[a.ID] = &a
	ch := make(chan Task, 1)
	c.workers[a.ID] = ch
	c.mu.Unlock()

	go c.runWorker(a.ID, ch)
}

// Agents returns a snapshot of the current agent roster.
func (c *Coordinator) Agents() []Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Agent, 0, len(c.agents))
	for _, a := range c.agents {
		out = append(out, *a)
	}
	return out
}

// Task returns a snapshot of one task, or false if unknown.
func (c *Coordinator) Task(id string) (Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Stats returns the running completed/failed task counters.
func (c *Coordinator) Stats() (completed, failed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completedCount, c.failedCount
}

// Submit creates a new pending task and triggers the dispatcher, per
// spec.md §4.6.
func (c *Coordinator) Submit(kind TaskKind, payload any, priority int, deadline *time.Time) (string, error) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return "", errs.New(errs.InvalidInput, "coordinator is shut down")
	}
	c.seq++
	task := &Task{
		ID:        idgen.New("task"),
		Kind:      kind,
		Priority:  priority,
		Payload:   payload,
		Status:    TaskPending,
		CreatedAt: c.clk.Now(),
		Deadline:  deadline,
		seq:       c.seq,
	}
	c.tasks[task.ID] = task
	c.queue.PushBack(task)
	c.mu.Unlock()

	c.kickDispatch()
	return task.ID, nil
}

func (c *Coordinator) kickDispatch() {
	select {
	case c.dispatchSignal <- struct{}{}:
	default:
	}
}

// dispatcherLoop is the single logical dispatcher, per spec.md §4.6: it
// drains the queue strictly priority-descending (FIFO within a priority)
// every time it's signaled.
func (c *Coordinator) dispatcherLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.dispatchSignal:
			c.drainQueue()
		}
	}
}

func (c *Coordinator) drainQueue() {
	for {
		c.mu.Lock()
		if c.shutdown {
			c.mu.Unlock()
			return
		}
		task, ok := c.queue.Pop()
		if !ok {
			c.mu.Unlock()
			return
		}
		agent := c.selectAgent(task.Kind)
		if agent == nil {
			task.Status = TaskFailed
			task.FailureError = errs.New(errs.NoEligibleAgents, "no active agent eligible for task kind "+string(task.Kind))
			c.failedCount++
			c.mu.Unlock()
			c.log.Warn().Str("task_id", task.ID).Str("kind", string(task.Kind)).Msg("no eligible agents")
			continue
		}

		agent.Status = AgentBusy
		agent.assignedTask = task.ID
		task.AssignedTo = agent.ID
		task.Status = TaskAssigned
		task.Status = TaskInProgress
		ch := c.workers[agent.ID]
		taskCopy := *task
		c.mu.Unlock()

		c.log.Info().Str("task_id", task.ID).Str("agent_id", agent.ID).Str("role", string(agent.Role)).Msg("dispatched")
		ch <- taskCopy
	}
}

// selectAgent picks the highest-weight active agent eligible for kind.
// Must be called with c.mu held.
func (c *Coordinator) selectAgent(kind TaskKind) *Agent {
	roles := eligibleRoles(kind)
	if len(roles) == 0 {
		return nil
	}
	var best *Agent
	for _, a := range c.agents {
		if a.Status != AgentActive {
			continue
		}
		if !roleIn(roles, a.Role) {
			continue
		}
		if best == nil || a.Weight > best.Weight {
			best = a
		}
	}
	return best
}

func roleIn(roles []Role, r Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

// runWorker is the per-agent worker goroutine: it receives at most one
// task at a time (structural "one task per busy agent" per spec.md §9),
// executes it (respecting a deadline if set), and reports completion.
func (c *Coordinator) runWorker(agentID string, ch chan Task) {
	for task := range ch {
		result, err := c.executeWithDeadline(task)
		c.completeTask(agentID, task.ID, result, err)
		c.kickDispatch()
	}
}

func (c *Coordinator) executeWithDeadline(task Task) (any, error) {
	if task.Deadline == nil {
		return c.handler.Execute(task)
	}

	remaining := task.Deadline.Sub(c.clk.Now())
	if remaining <= 0 {
		return nil, errs.New(errs.Timeout, "task deadline already elapsed at dispatch")
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, e := c.handler.Execute(task)
		done <- outcome{r, e}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-c.clk.After(remaining):
		return nil, errs.New(errs.Timeout, "task exceeded its deadline")
	}
}

// completeTask transitions the task to its terminal state and releases
// the agent back to active, per spec.md §4.6.
func (c *Coordinator) completeTask(agentID, taskID string, result any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[taskID]
	if !ok || task.Status.terminal() || task.AssignedTo != agentID {
		// Already resolved (e.g. by handle_failure's requeue); nothing to do.
		c.releaseAgent(agentID)
		return
	}

	if err != nil {
		task.Status = TaskFailed
		task.FailureError = errs.Wrap(errs.HandlerFailure, "agent handler reported failure", err)
		c.failedCount++
		c.log.Warn().Str("task_id", taskID).Str("agent_id", agentID).Err(err).Msg("task failed")
	} else {
		task.Status = TaskCompleted
		task.Result = result
		c.completedCount++
		c.log.Info().Str("task_id", taskID).Str("agent_id", agentID).Msg("task completed")
	}

	c.releaseAgent(agentID)
}

// releaseAgent returns an agent to active, unless it has been failed or
// taken offline in the meantime. Must be called with c.mu held.
func (c *Coordinator) releaseAgent(agentID string) {
	agent, ok := c.agents[agentID]
	if !ok {
		return
	}
	agent.assignedTask = ""
	if agent.Status == AgentBusy {
		agent.Status = AgentActive
	}
	agent.LastActive = c.clk.Now()
}

// HandleFailure implements spec.md §4.6's agent-failure recovery: the
// agent transitions to failed, its in-flight task (if any) is returned to
// pending and requeued at the absolute head of the queue, and — if
// recovery is enabled — the agent is reactivated after a fixed delay.
func (c *Coordinator) HandleFailure(agentID string) {
	c.mu.Lock()
	agent, ok := c.agents[agentID]
	if !ok {
		c.mu.Unlock()
		return
	}
	agent.Status = AgentFailed
	taskID := agent.assignedTask
	agent.assignedTask = ""

	if taskID != "" {
		if task, ok := c.tasks[taskID]; ok && !task.Status.terminal() {
			task.Status = TaskPending
			task.AssignedTo = ""
			c.queue.PushFront(task)
		}
	}
	c.mu.Unlock()

	c.log.Warn().Str("agent_id", agentID).Msg("agent marked failed")

	if c.cfg.RecoveryEnabled {
		go c.recoverAfterDelay(agentID)
	}
	c.kickDispatch()
}

func (c *Coordinator) recoverAfterDelay(agentID string) {
	<-c.clk.After(c.cfg.RecoveryDelay)
	c.mu.Lock()
	if agent, ok := c.agents[agentID]; ok && agent.Status == AgentFailed {
		agent.Status = AgentActive
		agent.LastActive = c.clk.Now()
	}
	c.mu.Unlock()
	c.log.Info().Str("agent_id", agentID).Msg("agent recovered")
	c.kickDispatch()
}

// Shutdown transitions all agents to offline and clears the pending
// queue; idempotent, per spec.md §8. In-progress tasks still complete or
// fail on their own, but no new dispatch occurs.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.shutdown = true
		for _, a := range c.agents {
			a.Status = AgentOffline
		}
		c.queue.Clear()
		c.mu.Unlock()
		close(c.stopCh)
		c.log.Info().Msg("swarm shutdown")
	})
}
