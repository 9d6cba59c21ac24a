// Package store persists work-item snapshots and presets in a local
// SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"promptforge/internal/batch"
	"promptforge/internal/logging"
	"promptforge/internal/preset"
)

// Store wraps the SQLite handle. Snapshots are whole-scope replaces: the
// queue is small and the debounced saver coalesces writes, so per-row
// diffing buys nothing.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("store opened at %s", path)
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	workItemsTable := `
	CREATE TABLE IF NOT EXISTS work_items (
		id TEXT NOT NULL,
		scope TEXT NOT NULL,
		position INTEGER NOT NULL,
		source_text TEXT NOT NULL,
		status TEXT NOT NULL,
		rounds_completed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		ov_instruction TEXT NOT NULL DEFAULT '',
		ov_outputs INTEGER NOT NULL DEFAULT 0,
		ov_rounds INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		PRIMARY KEY(scope, id)
	);
	CREATE INDEX IF NOT EXISTS idx_work_items_scope ON work_items(scope, position);
	`

	resultUnitsTable := `
	CREATE TABLE IF NOT EXISTS result_units (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scope TEXT NOT NULL,
		item_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		primary_text TEXT NOT NULL,
		secondary_text TEXT NOT NULL DEFAULT '',
		created_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_result_units_item ON result_units(scope, item_id, position);
	`

	presetsTable := `
	CREATE TABLE IF NOT EXISTS presets (
		name TEXT PRIMARY KEY,
		instruction TEXT NOT NULL,
		outputs_per_round INTEGER NOT NULL DEFAULT 0,
		rounds INTEGER NOT NULL DEFAULT 0,
		translation INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	for _, stmt := range []string{workItemsTable, resultUnitsTable, presetsTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// SaveSnapshot replaces the stored queue for one scope with the given
// items, preserving their order.
func (s *Store) SaveSnapshot(scope string, items []batch.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM result_units WHERE scope = ?", scope); err != nil {
		return fmt.Errorf("failed to clear result units: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM work_items WHERE scope = ?", scope); err != nil {
		return fmt.Errorf("failed to clear work items: %w", err)
	}

	itemStmt, err := tx.Prepare(`
		INSERT INTO work_items
			(id, scope, position, source_text, status, rounds_completed, error,
			 ov_instruction, ov_outputs, ov_rounds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer itemStmt.Close()

	unitStmt, err := tx.Prepare(`
		INSERT INTO result_units
			(scope, item_id, position, primary_text, secondary_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare unit insert: %w", err)
	}
	defer unitStmt.Close()

	for pos, item := range items {
		_, err := itemStmt.Exec(
			item.ID, scope, pos, item.SourceText, item.Status.String(),
			item.RoundsCompleted, item.Error,
			item.Overrides.Instruction, item.Overrides.OutputsPerRound, item.Overrides.Rounds,
			item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert work item %s: %w", item.ID, err)
		}
		for upos, u := range item.Outputs {
			if _, err := unitStmt.Exec(scope, item.ID, upos, u.Primary, u.Secondary, u.CreatedAt); err != nil {
				return fmt.Errorf("failed to insert result unit for %s: %w", item.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	logging.StoreDebug("saved snapshot scope=%s items=%d", scope, len(items))
	return nil
}

// LoadSnapshot returns the stored queue for one scope in saved order.
// An unknown scope returns an empty slice.
func (s *Store) LoadSnapshot(scope string) ([]batch.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, source_text, status, rounds_completed, error,
		       ov_instruction, ov_outputs, ov_rounds, created_at
		FROM work_items WHERE scope = ? ORDER BY position`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query work items: %w", err)
	}
	defer rows.Close()

	var items []batch.WorkItem
	for rows.Next() {
		var item batch.WorkItem
		var status string
		var createdAt sql.NullTime
		err := rows.Scan(
			&item.ID, &item.SourceText, &status, &item.RoundsCompleted, &item.Error,
			&item.Overrides.Instruction, &item.Overrides.OutputsPerRound, &item.Overrides.Rounds,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		item.Status = statusFromString(status)
		if createdAt.Valid {
			item.CreatedAt = createdAt.Time
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read work items: %w", err)
	}

	for i := range items {
		outputs, err := s.loadOutputs(scope, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Outputs = outputs
	}

	logging.StoreDebug("loaded snapshot scope=%s items=%d", scope, len(items))
	return items, nil
}

func (s *Store) loadOutputs(scope, itemID string) ([]batch.ResultUnit, error) {
	rows, err := s.db.Query(`
		SELECT primary_text, secondary_text, created_at
		FROM result_units WHERE scope = ? AND item_id = ? ORDER BY position`, scope, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query result units: %w", err)
	}
	defer rows.Close()

	var units []batch.ResultUnit
	for rows.Next() {
		var u batch.ResultUnit
		var createdAt sql.NullTime
		if err := rows.Scan(&u.Primary, &u.Secondary, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan result unit: %w", err)
		}
		if createdAt.Valid {
			u.CreatedAt = createdAt.Time
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// SavePreset inserts or replaces a preset by name.
func (s *Store) SavePreset(p preset.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	translation := 0
	if p.Translation {
		translation = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO presets (name, instruction, outputs_per_round, rounds, translation, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			instruction = excluded.instruction,
			outputs_per_round = excluded.outputs_per_round,
			rounds = excluded.rounds,
			translation = excluded.translation,
			updated_at = excluded.updated_at`,
		p.Name, p.Instruction, p.OutputsPerRound, p.Rounds, translation, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save preset %q: %w", p.Name, err)
	}
	return nil
}

// LoadPresets returns all stored presets in name order.
func (s *Store) LoadPresets() ([]preset.Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT name, instruction, outputs_per_round, rounds, translation
		FROM presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query presets: %w", err)
	}
	defer rows.Close()

	var presets []preset.Preset
	for rows.Next() {
		var p preset.Preset
		var translation int
		if err := rows.Scan(&p.Name, &p.Instruction, &p.OutputsPerRound, &p.Rounds, &translation); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		p.Translation = translation != 0
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// DeletePreset removes a preset by name, reporting whether it existed.
func (s *Store) DeletePreset(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM presets WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("failed to delete preset %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func statusFromString(s string) batch.Status {
	switch s {
	case "processing":
		return batch.StatusProcessing
	case "success":
		return batch.StatusSuccess
	case "error":
		return batch.StatusError
	default:
		return batch.StatusIdle
	}
}
