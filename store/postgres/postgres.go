// Package postgres implements relay.ConversationStore using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	relay "github.com/relaykit/relay"
)

// Store implements relay.ConversationStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ relay.ConversationStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the turns table and its index.
func (s *Store) Init(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		provider TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	idx := `CREATE INDEX IF NOT EXISTS idx_turns_conversation
		ON turns (conversation_id, created_at)`
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Append records one finished turn.
func (s *Store) Append(ctx context.Context, rec relay.TurnRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO turns (id, conversation_id, query, response, provider, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.ConversationID, rec.Query, rec.Response, rec.Provider, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Recent returns the last n turns of a conversation, oldest first, as
// alternating user and assistant turns.
func (s *Store) Recent(ctx context.Context, conversationID string, n int) ([]relay.Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT query, response FROM turns
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	type pair struct{ query, response string }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.query, &p.response); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}

	turns := make([]relay.Turn, 0, len(pairs)*2)
	for i := len(pairs) - 1; i >= 0; i-- {
		turns = append(turns, relay.UserTurn(pairs[i].query), relay.AssistantTurn(pairs[i].response))
	}
	return turns, nil
}
