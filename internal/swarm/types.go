// Package swarm implements the priority-scheduled, role-routed task queue
// with weighted quorum voting, cancellation, and agent-failure recovery
// described in spec.md §4.6.
//
// Grounded on the teacher's mempool.Poller (internal/mempool/poller.go) for
// its single ticker-driven worker shape, generalized here to N role-typed
// per-agent workers each owning an inbound task channel (making "one task
// per busy agent" structural per spec.md §9), and on mbd888-alancoin's
// supervisor.RuleEngine Option-based construction for the
// pluggable-role/rule shape referenced in SPEC_FULL.md §4.7.
package swarm

import "time"

// Role is the kind of work an agent is able to perform.
type Role string

const (
	RoleValidator    Role = "validator"
	RoleExecutor     Role = "executor"
	RoleOptimizer    Role = "optimizer"
	RoleRiskAssessor Role = "risk-assessor"
	RoleCoordinator  Role = "coordinator"
)

// TaskKind is the semantic class of work submitted to the swarm; it
// selects which agent roles are eligible to serve it.
type TaskKind string

const (
	KindValidate    TaskKind = "validate"
	KindExecute     TaskKind = "execute"
	KindOptimize    TaskKind = "optimize"
	KindAssessRisk  TaskKind = "assess_risk"
	KindCoordinate  TaskKind = "coordinate"
)

// eligibleRoles implements spec.md §4.6's kind-to-role mapping table.
func eligibleRoles(kind TaskKind) []Role {
	switch kind {
	case KindValidate:
		return []Role{RoleValidator, RoleRiskAssessor}
	case KindExecute:
		return []Role{RoleExecutor}
	case KindOptimize:
		return []Role{RoleOptimizer}
	case KindAssessRisk:
		return []Role{RoleRiskAssessor, RoleValidator}
	case KindCoordinate:
		return []Role{RoleCoordinator}
	default:
		return nil
	}
}

// AgentStatus is an agent's lifecycle state.
type AgentStatus string

const (
	AgentActive  AgentStatus = "active"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
	AgentFailed  AgentStatus = "failed"
)

// Agent is a swarm participant. Created at swarm construction; status
// transitions only, never removed except on shutdown, per spec.md §3.
type Agent struct {
	ID           string
	Role         Role
	Capabilities []string
	Weight       float64
	Status       AgentStatus
	LastActive   time.Time

	assignedTask string // task ID currently assigned, "" if none
}

// TaskStatus is a task's lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

func (s TaskStatus) terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is one unit of swarm work. Created by Submit; terminal once
// completed or failed, per spec.md §3.
type Task struct {
	ID           string
	Kind         TaskKind
	Priority     int
	Payload      any
	AssignedTo   string
	Status       TaskStatus
	CreatedAt    time.Time
	Deadline     *time.Time
	Result       any
	FailureError error
	seq          uint64 // FIFO tiebreak within equal priority
}

// Handler executes assigned task work and produces votes for consensus
// requests. It is the external collaborator from spec.md §6. Vote is
// passed the voting agent's id and role so a real implementation can
// apply a role-specific approval prior (spec.md §4.6 step 2) instead of
// returning the same ballot for every agent in the swarm.
type Handler interface {
	Execute(task Task) (any, error)
	Vote(agentID string, role Role, topic string, payload any) (decision bool, confidence float64, reasoning string)
}

// Vote is one agent's weighted-in ballot on a consensus request.
type Vote struct {
	AgentID    string
	Decision   bool
	Confidence float64
	Reasoning  string
	Timestamp  time.Time
}

// ConsensusRequest asks a subset of agents (or all, if RoleFilter is empty)
// to vote on a topic.
type ConsensusRequest struct {
	Topic      string
	Payload    any
	RoleFilter []Role // empty means "all agents"
}

// ConsensusResult is the weighted-quorum tally from spec.md §4.6.
type ConsensusResult struct {
	Topic             string
	Decision          bool
	ConsensusReached  bool
	ApprovalRatio     float64
	Confidence        float64
	ParticipationRate float64
	Votes             []Vote
	WeightYes         float64
	WeightNo          float64
}

// Config tunes the coordinator's consensus threshold and failure recovery.
type Config struct {
	ConsensusThreshold float64       // default 0.66
	RecoveryEnabled    bool
	RecoveryDelay      time.Duration // default 30s
}

func DefaultConfig() Config {
	return Config{ConsensusThreshold: 0.66, RecoveryEnabled: true, RecoveryDelay: 30 * time.Second}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
