// Package sqlite implements relay.ConversationStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	relay "github.com/relaykit/relay"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a SQLite Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and row counts.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements relay.ConversationStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ relay.ConversationStore = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the turns table.
func (s *Store) Init(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		provider TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	idx := `CREATE INDEX IF NOT EXISTS idx_turns_conversation
		ON turns (conversation_id, created_at)`
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Append records one finished turn.
func (s *Store) Append(ctx context.Context, rec relay.TurnRecord) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, conversation_id, query, response, provider, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ConversationID, rec.Query, rec.Response, rec.Provider, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	s.logger.Debug("sqlite: turn appended",
		"conversation", rec.ConversationID,
		"provider", rec.Provider,
		"took", time.Since(start))
	return nil
}

// Recent returns the last n turns of a conversation, oldest first, as
// alternating user and assistant turns.
func (s *Store) Recent(ctx context.Context, conversationID string, n int) ([]relay.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query, response FROM turns
		 WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
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

	// Rows come newest first; emit oldest first.
	turns := make([]relay.Turn, 0, len(pairs)*2)
	for i := len(pairs) - 1; i >= 0; i-- {
		turns = append(turns, relay.UserTurn(pairs[i].query), relay.AssistantTurn(pairs[i].response))
	}
	return turns, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
