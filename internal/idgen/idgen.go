// Package idgen generates collision-resistant, prefixed identifiers for
// tasks, agents, and transactions. Grounded on the teacher's edge/alert ID
// conventions (internal/heuristics, internal/heuristics/alert_system.go),
// generalized from ad-hoc string concatenation to a uuid-backed generator.
package idgen

import "github.com/google/uuid"

// New returns a new identifier of the form "<prefix>-<uuid>".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
