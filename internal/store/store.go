// Package store persists small JSON documents (installation identity, the
// current fallback match id, audio settings) in a local sqlite database.
package store

import (
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
)

const (
	keyState    = "state"
	keySettings = "settings"
)

// State is the document stored under the "state" key
type State struct {
	Identity       string `json:"identity,omitempty"`
	CurrentMatchID string `json:"currentMatchId,omitempty"`
}

// Store manages the documents database
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// DefaultPath returns the database location under the user's config directory
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}
	return filepath.Join(configDir, "SwellVoice", "swellvoice.db")
}

// Open creates and initializes the database at path (DefaultPath when empty)
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// init creates the schema
func (s *Store) init() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			key TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get decodes the document stored under key into out. It reports false when
// the key has never been written.
func (s *Store) Get(key string, out any) (bool, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Put replaces the document stored under key
func (s *Store) Put(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := putTx(tx, key, v); err != nil {
		return err
	}
	return tx.Commit()
}

// updateState runs a read-modify-write of the state document in one transaction
func (s *Store) updateState(fn func(st *State)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return State{}, err
	}
	defer tx.Rollback()

	var st State
	var body string
	switch err := tx.QueryRow(`SELECT body FROM documents WHERE key = ?`, keyState).Scan(&body); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return State{}, fmt.Errorf("failed to read state: %w", err)
	default:
		// a corrupt document is replaced rather than wedging the app
		_ = json.Unmarshal([]byte(body), &st)
	}

	fn(&st)

	if err := putTx(tx, keyState, st); err != nil {
		return State{}, err
	}
	if err := tx.Commit(); err != nil {
		return State{}, fmt.Errorf("failed to commit state: %w", err)
	}
	return st, nil
}

func putTx(tx *sql.Tx, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = tx.Exec(`
		INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, key, string(body), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// State returns the current state document
func (s *Store) State() (State, error) {
	var st State
	if _, err := s.Get(keyState, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Identity returns the installation identity, creating it on first use
func (s *Store) Identity() (string, error) {
	st, err := s.updateState(func(st *State) {
		if st.Identity == "" {
			st.Identity = uuid.NewString()
		}
	})
	if err != nil {
		return "", err
	}
	return st.Identity, nil
}

// CurrentMatchID returns the persisted fallback match id, if any
func (s *Store) CurrentMatchID() (string, error) {
	st, err := s.State()
	if err != nil {
		return "", err
	}
	return st.CurrentMatchID, nil
}

// SetCurrentMatchID persists the fallback match id
func (s *Store) SetCurrentMatchID(id string) error {
	_, err := s.updateState(func(st *State) { st.CurrentMatchID = id })
	return err
}

// ClearCurrentMatchID removes the fallback match id
func (s *Store) ClearCurrentMatchID() error {
	return s.SetCurrentMatchID("")
}

// LoadSettings decodes the stored settings into out
func (s *Store) LoadSettings(out any) (bool, error) {
	return s.Get(keySettings, out)
}

// SaveSettings stores the settings document
func (s *Store) SaveSettings(v any) error {
	return s.Put(keySettings, v)
}
