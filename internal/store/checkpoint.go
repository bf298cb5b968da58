package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/rahul/freshfetch/internal/pipeline"
)

// CheckpointStore persists pipeline checkpoints in sqlite, one row per
// session id. Save is an atomic replace.
type CheckpointStore struct {
	DB *sql.DB
}

func NewCheckpointStore(dbPath string) (*CheckpointStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	query := `CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		pending_stage TEXT,
		resume_as TEXT,
		state TEXT,
		history TEXT,
		last_error TEXT,
		updated_at DATETIME
	);`
	if _, err := db.Exec(query); err != nil {
		return nil, err
	}

	return &CheckpointStore{DB: db}, nil
}

func (s *CheckpointStore) Load(sessionID string) (*pipeline.Checkpoint, error) {
	query := `SELECT pending_stage, resume_as, state, history, last_error, updated_at
		FROM sessions WHERE session_id = ?`
	row := s.DB.QueryRow(query, sessionID)

	var pending, resumeAs, stateJSON, historyJSON, lastError string
	var updatedAt time.Time
	err := row.Scan(&pending, &resumeAs, &stateJSON, &historyJSON, &lastError, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cp := &pipeline.Checkpoint{
		SessionID: sessionID,
		Pending:   pipeline.StageName(pending),
		ResumeAs:  pipeline.StageName(resumeAs),
		LastError: lastError,
		UpdatedAt: updatedAt,
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, fmt.Errorf("corrupt state for session %s: %v", sessionID, err)
	}
	if historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &cp.History); err != nil {
			return nil, fmt.Errorf("corrupt history for session %s: %v", sessionID, err)
		}
	}
	return cp, nil
}

func (s *CheckpointStore) Save(sessionID string, cp *pipeline.Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return err
	}
	historyJSON, err := json.Marshal(cp.History)
	if err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO sessions
		(session_id, pending_stage, resume_as, state, history, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.DB.Exec(query, sessionID, string(cp.Pending), string(cp.ResumeAs),
		string(stateJSON), string(historyJSON), cp.LastError, cp.UpdatedAt)
	return err
}

func (s *CheckpointStore) Clear(sessionID string) error {
	query := `DELETE FROM sessions WHERE session_id = ?`
	_, err := s.DB.Exec(query, sessionID)
	return err
}
