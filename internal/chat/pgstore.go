/*
This file defines the Postgres-backed HistoryStore, selected when a
database DSN is configured. The table keeps the full archive; Load replays
only the most recent window.
*/
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgQueryTimeout = 5 * time.Second

// PGHistoryStore is the Postgres-backed HistoryStore.
type PGHistoryStore struct {
	pool     *pgxpool.Pool
	capacity int
}

// NewPGHistoryStore wraps an existing connection pool. Load returns at most
// capacity messages.
func NewPGHistoryStore(pool *pgxpool.Pool, capacity int) *PGHistoryStore {
	return &PGHistoryStore{pool: pool, capacity: capacity}
}

// Load returns the most recent messages, oldest first.
func (s *PGHistoryStore) Load() ([]ChatMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pgQueryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT message_id, sender_uuid, body, sent_at FROM (
		   SELECT message_id, sender_uuid, body, sent_at
		   FROM chat_messages ORDER BY sent_at DESC LIMIT $1
		 ) recent ORDER BY sent_at ASC`, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.MessageID, &m.SenderUUID, &m.Body, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Save appends any messages not yet persisted. Rows already written are
// left untouched, so checkpointing the same window twice is harmless.
func (s *PGHistoryStore) Save(messages []ChatMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgQueryTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, m := range messages {
		batch.Queue(
			`INSERT INTO chat_messages (message_id, sender_uuid, body, sent_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (message_id) DO NOTHING`,
			m.MessageID, m.SenderUUID, m.Body, m.Timestamp)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range messages {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save chat message: %w", err)
		}
	}
	return nil
}
