// Package store persists conversation exchanges. The core depends only on
// the narrow HistoryStore contract, not on SQLite specifically.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// HistoryStore is the persistence collaborator consumed by the orchestrator.
type HistoryStore interface {
	AddEntry(userMsg, botMsg, sessionID string) error
	GetHistory(sessionID string, limit int) ([]Exchange, error)
	ClearHistory(sessionID string) error
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS exchanges (
        id TEXT PRIMARY KEY, -- UUID
        session_id TEXT NOT NULL,
        user_message TEXT NOT NULL,
        bot_message TEXT NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges (session_id, timestamp);
    `
	_, err := s.db.Exec(schema)
	return err
}

// AddEntry records one completed exchange for a session.
func (s *SQLiteStore) AddEntry(userMsg, botMsg, sessionID string) error {
	stmt, err := s.db.Prepare("INSERT INTO exchanges (id, session_id, user_message, bot_message, timestamp) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare exchange insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(uuid.NewString(), sessionID, userMsg, botMsg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to execute exchange insert: %w", err)
	}
	return nil
}

// GetHistory returns up to limit most recent exchanges for the session in
// chronological order (oldest first).
func (s *SQLiteStore) GetHistory(sessionID string, limit int) ([]Exchange, error) {
	query := `
        SELECT id, session_id, user_message, bot_message, timestamp
        FROM exchanges
        WHERE session_id = ?
        ORDER BY timestamp DESC
        LIMIT ?
    `
	rows, err := s.db.Query(query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.ID, &e.SessionID, &e.UserMessage, &e.BotMessage, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan exchange row: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exchange rows: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

// ClearHistory removes every exchange for the session.
func (s *SQLiteStore) ClearHistory(sessionID string) error {
	_, err := s.db.Exec("DELETE FROM exchanges WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear exchanges: %w", err)
	}
	return nil
}
