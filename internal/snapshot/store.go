// Package snapshot is the optional persistence layer spec.md §6 allows:
// "implementations may snapshot agents, positions, profile aggregates, and
// price history to any durable store; the snapshot must be recoverable
// without changing any invariant above." Nothing in the core depends on
// this package — the swarm, yield allocator, and profile store all run
// fully in memory and call out here only if a Store is configured.
//
// Grounded on the teacher's internal/db/postgres.go (pgxpool connection
// pool, InitSchema loading a schema.sql file, one SaveX method per
// persisted shape), generalized from Bitcoin forensics tables to the
// payment fabric's agents/positions/profiles/price-history tables.
package snapshot

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/payment-fabric/internal/pricing"
	"github.com/rawblock/payment-fabric/internal/swarm"
	"github.com/rawblock/payment-fabric/internal/yield"
)

// Store persists periodic snapshots of swarm agents, yield positions,
// user-profile aggregates, and price history via pgx.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pooled connection and verifies it with a ping, mirroring
// the teacher's db.Connect.
func Connect(connStr string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Println("[snapshot] connected to PostgreSQL")
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql, same shape as the teacher's
// InitSchema.
func (s *Store) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/snapshot/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(context.Background(), string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Println("[snapshot] schema initialized")
	return nil
}

// SaveAgents upserts the current swarm roster.
func (s *Store) SaveAgents(ctx context.Context, agents []swarm.Agent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO swarm_agents (id, role, weight, status, last_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET role = EXCLUDED.role, weight = EXCLUDED.weight,
		    status = EXCLUDED.status, last_active = EXCLUDED.last_active;
	`
	for _, a := range agents {
		if _, err := tx.Exec(ctx, upsert, a.ID, string(a.Role), a.Weight, string(a.Status), a.LastActive); err != nil {
			return fmt.Errorf("upsert agent %s: %w", a.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// SavePositions upserts the yield allocator's current position set.
func (s *Store) SavePositions(ctx context.Context, positions map[string]yield.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO yield_positions (protocol, amount, value, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (protocol) DO UPDATE
		SET amount = EXCLUDED.amount, value = EXCLUDED.value, last_updated = EXCLUDED.last_updated;
	`
	for _, p := range positions {
		if _, err := tx.Exec(ctx, upsert, p.ProtocolName, p.Amount, p.Value, p.LastUpdated); err != nil {
			return fmt.Errorf("upsert position %s: %w", p.ProtocolName, err)
		}
	}
	return tx.Commit(ctx)
}

// SaveProfileAggregate persists one user's rolling fraud-profile stats.
func (s *Store) SaveProfileAggregate(ctx context.Context, userID string, meanAmount, stdDev float64, txCount int, lastActivity time.Time) error {
	const upsert = `
		INSERT INTO profile_aggregates (user_id, mean_amount, std_dev, tx_count, last_activity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET mean_amount = EXCLUDED.mean_amount, std_dev = EXCLUDED.std_dev,
		    tx_count = EXCLUDED.tx_count, last_activity = EXCLUDED.last_activity;
	`
	_, err := s.pool.Exec(ctx, upsert, userID, meanAmount, stdDev, txCount, lastActivity)
	return err
}

// SavePricePoint appends one pricing combiner observation to the history
// table.
func (s *Store) SavePricePoint(ctx context.Context, p pricing.PricePoint) error {
	const insert = `
		INSERT INTO price_history (price, volume, revenue, observed_at)
		VALUES ($1, $2, $3, $4);
	`
	_, err := s.pool.Exec(ctx, insert, p.Price, p.Volume, p.Revenue, p.Timestamp)
	return err
}
