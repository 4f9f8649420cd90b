package swarm

import (
	"os"

	"github.com/rs/zerolog"
)

// newAuditLogger builds the structured per-dispatch/per-consensus-request
// audit logger,
// grounded on wtfspiff-KOLTracker's zerolog usage: the teacher's own
// internal/api path stays on plain log.Printf, but the swarm's dispatch and
// consensus trail is high-cardinality and field-shaped enough to warrant
// zerolog's structured output (agent_id, task_id, role), per
// SPEC_FULL.md §3.
func newAuditLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Str("component", "swarm").Logger()
}
