// Package store persists conversation state and message history between
// sessions. The orchestrator never touches it; state flows through turns
// by value and the caller decides when to load and save.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"studymate/internal/logging"
	"studymate/internal/types"
)

// ErrNotFound marks a session ID with no stored state.
var ErrNotFound = errors.New("session not found")

// ConversationStore loads and saves per-session conversation data.
type ConversationStore interface {
	LoadState(ctx context.Context, sessionID string) (types.ConversationState, error)
	SaveState(ctx context.Context, sessionID string, state types.ConversationState) error
	AppendMessage(ctx context.Context, sessionID string, msg types.ChatMessage) error
	History(ctx context.Context, sessionID string, limit int) ([]types.ChatMessage, error)
	Close() error
}

// SQLiteStore implements ConversationStore on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("conversation store ready at %s", path)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversation_state (
		session_id TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// LoadState returns the stored state for sessionID, or ErrNotFound.
func (s *SQLiteStore) LoadState(ctx context.Context, sessionID string) (types.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM conversation_state WHERE session_id = ?`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return types.ConversationState{}, ErrNotFound
	}
	if err != nil {
		return types.ConversationState{}, fmt.Errorf("load state: %w", err)
	}

	var state types.ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return types.ConversationState{}, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

// SaveState upserts the state for sessionID.
func (s *SQLiteStore) SaveState(ctx context.Context, sessionID string, state types.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_state (session_id, state_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		sessionID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// AppendMessage records one turn message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg types.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), sessionID, msg.Role, msg.Content)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// History returns the most recent limit messages in chronological order.
func (s *SQLiteStore) History(ctx context.Context, sessionID string, limit int) ([]types.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM (
			SELECT role, content, created_at, rowid FROM messages
			WHERE session_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		) ORDER BY created_at ASC, rowid ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var history []types.ChatMessage
	for rows.Next() {
		var m types.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
