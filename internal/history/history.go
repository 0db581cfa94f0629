// Package history persists scan run records.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run is one library scan, recorded from start to finish.
type Run struct {
	ID             string     `json:"id"`
	Trigger        string     `json:"trigger"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	Items          int64      `json:"items"`
	PeopleUpdated  int64      `json:"peopleUpdated"`
	ImagesUploaded int64      `json:"imagesUploaded"`
	Errors         int64      `json:"errors"`
	Message        string     `json:"message,omitempty"`
}

// Store reads and writes scan runs.
type Store struct {
	db *sql.DB
}

// NewStore creates a new history store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewRun returns a fresh running record for the given trigger source.
func NewRun(trigger string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// RecordStart inserts the run in its initial running state.
func (s *Store) RecordStart(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_runs (id, trigger_source, status, started_at)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.Trigger, run.Status, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record scan start: %w", err)
	}
	return nil
}

// RecordFinish updates the run with its final status and counters.
func (s *Store) RecordFinish(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_runs
		SET status = ?, finished_at = ?, items = ?, people_updated = ?,
		    images_uploaded = ?, errors = ?, message = ?
		WHERE id = ?`,
		run.Status, run.FinishedAt, run.Items, run.PeopleUpdated,
		run.ImagesUploaded, run.Errors, run.Message, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record scan finish: %w", err)
	}
	return nil
}

// ListRecent returns the most recent runs, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_source, status, started_at, finished_at,
		       items, people_updated, images_uploaded, errors, message
		FROM scan_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Trigger, &run.Status, &run.StartedAt,
			&run.FinishedAt, &run.Items, &run.PeopleUpdated,
			&run.ImagesUploaded, &run.Errors, &run.Message); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
