// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements SnapshotStore using SQLite.
//
// Snapshots survive process restarts, which is what makes the recovery
// window useful: a client reconnecting with its old session id can restore
// its project state even after a server redeploy.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the snapshot database at
// path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// WAL mode for concurrent readers during the reaper sweep
	connStr := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS session_snapshots (
		session_id TEXT PRIMARY KEY,
		project_state TEXT,
		context TEXT NOT NULL,
		timestamp TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create session_snapshots table: %w", err)
	}
	return nil
}

// Save writes or replaces the snapshot for a session.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	state, err := json.Marshal(snap.ProjectState)
	if err != nil {
		return fmt.Errorf("failed to marshal project state: %w", err)
	}
	sessCtx, err := json.Marshal(snap.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal session context: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_snapshots (session_id, project_state, context, timestamp)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   project_state = excluded.project_state,
		   context = excluded.context,
		   timestamp = excluded.timestamp`,
		snap.SessionID, string(state), string(sessCtx), snap.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for a session, or (nil, nil) if none exists.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	var stateJSON, ctxJSON, stamp string
	err := s.db.QueryRowContext(ctx,
		`SELECT project_state, context, timestamp FROM session_snapshots WHERE session_id = ?`,
		sessionID).Scan(&stateJSON, &ctxJSON, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap := &Snapshot{SessionID: sessionID}
	if stateJSON != "" && stateJSON != "null" {
		if err := json.Unmarshal([]byte(stateJSON), &snap.ProjectState); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project state: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(ctxJSON), &snap.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session context: %w", err)
	}
	snap.Timestamp, err = time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot timestamp: %w", err)
	}
	return snap, nil
}

// Delete removes the snapshot for a session. Deleting a missing snapshot is
// not an error.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
