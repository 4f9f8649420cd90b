package swarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rawblock/payment-fabric/internal/clock"
)

type fakeHandler struct {
	executeFn func(Task) (any, error)
	voteFn    func(agentID string, role Role, topic string, payload any) (bool, float64, string)
}

func (h fakeHandler) Execute(t Task) (any, error) {
	if h.executeFn != nil {
		return h.executeFn(t)
	}
	return "ok", nil
}

func (h fakeHandler) Vote(agentID string, role Role, topic string, payload any) (bool, float64, string) {
	if h.voteFn != nil {
		return h.voteFn(agentID, role, topic, payload)
	}
	return true, 0.8, "default approve"
}

func waitForTerminal(t *testing.T, c *Coordinator, taskID string) Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := c.Task(taskID)
		require.True(t, ok)
		if task.Status == TaskCompleted || task.Status == TaskFailed {
			return task
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", taskID)
	return Task{}
}

func TestSubmitDispatchesToHighestWeightAgent(t *testing.T) {
	mc := clock.NewManual(time.Now())
	c := NewCoordinator(DefaultConfig(), mc, fakeHandler{})
	c.AddAgent(Agent{ID: "exec-weak", Role: RoleExecutor, Weight: 1})
	c.AddAgent(Agent{ID: "exec-strong", Role: RoleExecutor, Weight: 5})

	id, err := c.Submit(KindExecute, "payload", 1, nil)
	require.NoError(t, err)

	task := waitForTerminal(t, c, id)
	require.Equal(t, TaskCompleted, task.Status)
	require.Equal(t, "exec-strong", task.AssignedTo)
}

func TestSubmitWithNoEligibleAgentsFails(t *testing.T) {
	mc := clock.NewManual(time.Now())
	c := NewCoordinator(DefaultConfig(), mc, fakeHandler{})
	id, err := c.Submit(KindExecute, "payload", 1, nil)
	require.NoError(t, err)

	task := waitForTerminal(t, c, id)
	require.Equal(t, TaskFailed, task.Status)
}

func TestHandlerFailureMarksTaskFailed(t *testing.T) {
	mc := clock.NewManual(time.Now())
	c := NewCoordinator(DefaultConfig(), mc, fakeHandler{executeFn: func(Task) (any, error) {
		return nil, require.AnError
	}})
	c.AddAgent(Agent{ID: "exec-1", Role: RoleExecutor, Weight: 1})

	id, err := c.Submit(KindExecute, "payload", 1, nil)
	require.NoError(t, err)

	task := waitForTerminal(t, c, id)
	require.Equal(t, TaskFailed, task.Status)

	agents := c.Agents()
	require.Equal(t, AgentActive, agents[0].Status)
}

func TestHandleFailureRequeuesToFront(t *testing.T) {
	mc := clock.NewManual(time.Now())
	cfg := DefaultConfig()
	cfg.RecoveryEnabled = false
	c := NewCoordinator(cfg, mc, fakeHandler{executeFn: func(Task) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return "ok", nil
	}})
	c.AddAgent(Agent{ID: "exec-1", Role: RoleExecutor, Weight: 1})

	id, err := c.Submit(KindExecute, "payload", 1, nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond) // let dispatch assign before failing
	c.HandleFailure("exec-1")

	c.mu.Lock()
	task := c.tasks[id]
	require.Equal(t, TaskPending, task.Status)
	c.mu.Unlock()

	agents := c.Agents()
	require.Equal(t, AgentFailed, agents[0].Status)
}

func TestConsensusQuorumWeightedApproval(t *testing.T) {
	mc := clock.NewManual(time.Now())
	cfg := DefaultConfig()
	cfg.ConsensusThreshold = 0.66

	// Each agent's ballot is keyed off its own id, exercising the
	// real per-voter identity threaded through RequestConsensus -> Vote:
	// risk-assessor-1 rejects, everyone else approves.
	c := NewCoordinator(cfg, mc, fakeHandler{voteFn: func(agentID string, role Role, topic string, payload any) (bool, float64, string) {
		if agentID == "risk-assessor-1" {
			return false, 1.0, "reject"
		}
		return true, 1.0, "approve"
	}})

	for i := 0; i < 3; i++ {
		c.AddAgent(Agent{ID: "validator-" + string(rune('a'+i)), Role: RoleValidator, Weight: 1})
	}
	for i := 0; i < 2; i++ {
		c.AddAgent(Agent{ID: "executor-" + string(rune('a'+i)), Role: RoleExecutor, Weight: 1.5})
	}
	for i := 0; i < 2; i++ {
		c.AddAgent(Agent{ID: "optimizer-" + string(rune('a'+i)), Role: RoleOptimizer, Weight: 1.0})
	}
	c.AddAgent(Agent{ID: "risk-assessor-1", Role: RoleRiskAssessor, Weight: 2.0})

	result := c.RequestConsensus(ConsensusRequest{Topic: "payload-check"})

	require.InDelta(t, 0.8, result.ApprovalRatio, 1e-9)
	require.True(t, result.Decision)
	require.True(t, result.ConsensusReached)
}

func TestConsensusEmptySwarmReturnsNoConsensus(t *testing.T) {
	mc := clock.NewManual(time.Now())
	c := NewCoordinator(DefaultConfig(), mc, fakeHandler{})
	result := c.RequestConsensus(ConsensusRequest{Topic: "anything"})
	require.False(t, result.Decision)
	require.False(t, result.ConsensusReached)
	require.Empty(t, result.Votes)
}

func TestConsensusThresholdOneRequiresUnanimity(t *testing.T) {
	mc := clock.NewManual(time.Now())
	cfg := DefaultConfig()
	cfg.ConsensusThreshold = 1.0
	calls := 0
	c := NewCoordinator(cfg, mc, fakeHandler{voteFn: func(agentID string, role Role, topic string, payload any) (bool, float64, string) {
		calls++
		return calls != 2, 1.0, "vote"
	}})
	c.AddAgent(Agent{ID: "a", Role: RoleValidator, Weight: 1})
	c.AddAgent(Agent{ID: "b", Role: RoleValidator, Weight: 1})

	result := c.RequestConsensus(ConsensusRequest{Topic: "t"})
	require.False(t, result.ConsensusReached)
}

func TestShutdownIsIdempotentAndStopsNewDispatch(t *testing.T) {
	mc := clock.NewManual(time.Now())
	c := NewCoordinator(DefaultConfig(), mc, fakeHandler{})
	c.AddAgent(Agent{ID: "exec-1", Role: RoleExecutor, Weight: 1})

	c.Shutdown()
	c.Shutdown() // must not panic

	agents := c.Agents()
	require.Equal(t, AgentOffline, agents[0].Status)

	_, err := c.Submit(KindExecute, "x", 1, nil)
	require.Error(t, err)
}
