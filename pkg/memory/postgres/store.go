// Package postgres provides a PostgreSQL-backed implementation of the
// memory.Store interface. Blocks live in a memory_blocks table keyed by
// their canonical label; attachments are rows in a block_attachments join
// table so the set attached to an agent survives restarts.
//
// All operations share a single [pgxpool.Pool] and are safe for concurrent
// use. [Migrate] is idempotent and runs on every NewStore call.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parley-voice/parley/pkg/memory"
)

// Compile-time interface assertion.
var _ memory.Store = (*Store)(nil)

const ddlMemoryBlocks = `
CREATE TABLE IF NOT EXISTS memory_blocks (
    id          TEXT         PRIMARY KEY,
    label       TEXT         NOT NULL UNIQUE,
    value       TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS block_attachments (
    agent_id    TEXT         NOT NULL,
    block_id    TEXT         NOT NULL REFERENCES memory_blocks (id) ON DELETE CASCADE,
    attached_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (agent_id, block_id)
);

CREATE INDEX IF NOT EXISTS idx_block_attachments_agent
    ON block_attachments (agent_id);
`

// Store is the PostgreSQL-backed memory store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection, and
// ensures the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the memory tables. Idempotent, safe on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlMemoryBlocks); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetOrCreateBlock implements memory.Store. The insert races are resolved
// by the label's unique constraint: on conflict the existing row wins and
// is returned.
func (s *Store) GetOrCreateBlock(ctx context.Context, agentID, userID string) (memory.Block, error) {
	label := memory.BlockLabel(agentID, userID)

	const q = `
		INSERT INTO memory_blocks (id, label)
		VALUES ($1, $2)
		ON CONFLICT (label) DO UPDATE SET updated_at = now()
		RETURNING id, label, value`

	var b memory.Block
	err := s.pool.QueryRow(ctx, q, uuid.NewString(), label).Scan(&b.ID, &b.Label, &b.Value)
	if err != nil {
		return memory.Block{}, fmt.Errorf("postgres store: get or create block: %w", err)
	}
	return b, nil
}

// Attach implements memory.Store. Attaching an already-attached block is a
// no-op via ON CONFLICT DO NOTHING.
func (s *Store) Attach(ctx context.Context, agentID, blockID string) error {
	const q = `
		INSERT INTO block_attachments (agent_id, block_id)
		VALUES ($1, $2)
		ON CONFLICT (agent_id, block_id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, q, agentID, blockID); err != nil {
		return fmt.Errorf("postgres store: attach block: %w", err)
	}
	return nil
}

// Detach implements memory.Store. Detaching an unattached block is a no-op.
func (s *Store) Detach(ctx context.Context, agentID, blockID string) error {
	const q = `DELETE FROM block_attachments WHERE agent_id = $1 AND block_id = $2`

	if _, err := s.pool.Exec(ctx, q, agentID, blockID); err != nil {
		return fmt.Errorf("postgres store: detach block: %w", err)
	}
	return nil
}

// UpdateValue replaces a block's content.
func (s *Store) UpdateValue(ctx context.Context, blockID, value string) error {
	const q = `UPDATE memory_blocks SET value = $2, updated_at = now() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, blockID, value)
	if err != nil {
		return fmt.Errorf("postgres store: update value: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: update value: no block with id %s", blockID)
	}
	return nil
}

// AttachedBlocks returns the IDs of all blocks attached to an agent.
func (s *Store) AttachedBlocks(ctx context.Context, agentID string) ([]string, error) {
	const q = `SELECT block_id FROM block_attachments WHERE agent_id = $1 ORDER BY attached_at`

	rows, err := s.pool.Query(ctx, q, agentID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: attached blocks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres store: scan block id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: attached blocks: %w", err)
	}
	return ids, nil
}
