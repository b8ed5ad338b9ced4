// Package runstore keeps a history of probe runs in SQLite so runs can be
// compared after the fact.
package runstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/raysh454/chatprobe/internal/capture"
	"github.com/raysh454/chatprobe/internal/collector"
	"github.com/raysh454/chatprobe/internal/driver"
	"github.com/raysh454/chatprobe/internal/logging"
	"github.com/raysh454/chatprobe/internal/model"
	"github.com/raysh454/chatprobe/internal/snapshot"
)

//go:embed schema.sql
var schemaFS embed.FS

var ErrRunNotFound = errors.New("run not found")

// Store is a SQLite-backed run history.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Summary is one line of the run history.
type Summary struct {
	ID         string
	Target     string
	StartedAt  time.Time
	FinishedAt time.Time
	ActionKind string
	Frames     int
	Network    int
	Console    int
}

// Open opens (creating if needed) the database at path.
func Open(path string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps pragmas and writes consistent.
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, logger: logger.With(logging.Field{Key: "component", Value: "runstore"})}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// SaveRun stores res. A run without an ID gets one, which is written back.
func (s *Store) SaveRun(ctx context.Context, res *model.Result) error {
	if res == nil {
		return errors.New("runstore: nil result")
	}
	if res.RunID == "" {
		res.RunID = NewRunID()
	}
	if _, err := uuid.Parse(res.RunID); err != nil {
		return fmt.Errorf("runstore: invalid run id %q: %w", res.RunID, err)
	}

	initialJSON, err := json.Marshal(res.Initial)
	if err != nil {
		return fmt.Errorf("encoding initial state: %w", err)
	}
	finalJSON, err := json.Marshal(res.Final)
	if err != nil {
		return fmt.Errorf("encoding final snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var kind, text string
	var suggestions int
	if res.Action != nil {
		kind, text, suggestions = string(res.Action.Kind), res.Action.Text, res.Action.Suggestions
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, target, started_at, finished_at, action_kind, action_text, suggestions, initial_json, final_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Target, res.StartedAt.UnixNano(), res.FinishedAt.UnixNano(),
		kind, text, suggestions, string(initialJSON), string(finalJSON))
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i, f := range res.Frames {
		snapJSON, err := json.Marshal(f.Snapshot)
		if err != nil {
			return fmt.Errorf("encoding frame %s: %w", f.Name, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO frames
			(run_id, seq, name, offset_ms, path, taken_at, snapshot_json, inserted, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, i, f.Name, f.Offset.Milliseconds(), f.Path, f.TakenAt.UnixNano(),
			string(snapJSON), f.Progress.Inserted, f.Progress.Deleted)
		if err != nil {
			return fmt.Errorf("inserting frame %s: %w", f.Name, err)
		}
	}

	for i, ev := range res.Network {
		headersJSON, err := json.Marshal(ev.Headers)
		if err != nil {
			return fmt.Errorf("encoding headers: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO network_events (run_id, seq, url, status, headers_json)
			VALUES (?, ?, ?, ?, ?)`, res.RunID, i, ev.URL, ev.Status, string(headersJSON))
		if err != nil {
			return fmt.Errorf("inserting network event: %w", err)
		}
	}

	for i, e := range res.Console {
		_, err = tx.ExecContext(ctx, `INSERT INTO console_logs (run_id, seq, level, text) VALUES (?, ?, ?, ?)`,
			res.RunID, i, e.Level, e.Text)
		if err != nil {
			return fmt.Errorf("inserting console entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("run saved",
		logging.Field{Key: "run_id", Value: res.RunID},
		logging.Field{Key: "frames", Value: len(res.Frames)})
	return nil
}

// GetRun loads a run with all of its frames, events and console entries.
func (s *Store) GetRun(ctx context.Context, id string) (*model.Result, error) {
	var (
		res                    model.Result
		started, finished      int64
		kind, text             string
		suggestions            int
		initialJSON, finalJSON string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, target, started_at, finished_at, action_kind, action_text,
		suggestions, initial_json, final_json FROM runs WHERE id = ?`, id).
		Scan(&res.RunID, &res.Target, &started, &finished, &kind, &text, &suggestions, &initialJSON, &finalJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	res.StartedAt = time.Unix(0, started).UTC()
	res.FinishedAt = time.Unix(0, finished).UTC()
	if kind != "" {
		res.Action = &driver.Action{Kind: driver.Kind(kind), Text: text, Suggestions: suggestions}
	}
	if err := json.Unmarshal([]byte(initialJSON), &res.Initial); err != nil {
		return nil, fmt.Errorf("decoding initial state: %w", err)
	}
	if err := json.Unmarshal([]byte(finalJSON), &res.Final); err != nil {
		return nil, fmt.Errorf("decoding final snapshot: %w", err)
	}

	if res.Frames, err = s.frames(ctx, id); err != nil {
		return nil, err
	}
	if res.Network, err = s.network(ctx, id); err != nil {
		return nil, err
	}
	if res.Console, err = s.console(ctx, id); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Store) frames(ctx context.Context, id string) ([]capture.Frame, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, offset_ms, path, taken_at, snapshot_json, inserted, deleted
		FROM frames WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer rows.Close()

	var out []capture.Frame
	for rows.Next() {
		var (
			f        capture.Frame
			offsetMS int64
			takenAt  int64
			snapJSON string
		)
		if err := rows.Scan(&f.Name, &offsetMS, &f.Path, &takenAt, &snapJSON, &f.Progress.Inserted, &f.Progress.Deleted); err != nil {
			return nil, fmt.Errorf("scanning frame: %w", err)
		}
		f.Offset = time.Duration(offsetMS) * time.Millisecond
		f.TakenAt = time.Unix(0, takenAt).UTC()
		var snap snapshot.Snapshot
		if err := json.Unmarshal([]byte(snapJSON), &snap); err == nil && snapJSON != "null" {
			f.Snapshot = &snap
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) network(ctx context.Context, id string) ([]collector.NetworkEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url, status, headers_json FROM network_events
		WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying network events: %w", err)
	}
	defer rows.Close()

	var out []collector.NetworkEvent
	for rows.Next() {
		var ev collector.NetworkEvent
		var headersJSON string
		if err := rows.Scan(&ev.URL, &ev.Status, &headersJSON); err != nil {
			return nil, fmt.Errorf("scanning network event: %w", err)
		}
		if err := json.Unmarshal([]byte(headersJSON), &ev.Headers); err != nil {
			return nil, fmt.Errorf("decoding headers: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) console(ctx context.Context, id string) ([]collector.ConsoleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT level, text FROM console_logs WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying console logs: %w", err)
	}
	defer rows.Close()

	var out []collector.ConsoleEntry
	for rows.Next() {
		var e collector.ConsoleEntry
		if err := rows.Scan(&e.Level, &e.Text); err != nil {
			return nil, fmt.Errorf("scanning console entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Summary, error) {
	q := `SELECT r.id, r.target, r.started_at, r.finished_at, r.action_kind,
		(SELECT COUNT(*) FROM frames f WHERE f.run_id = r.id),
		(SELECT COUNT(*) FROM network_events n WHERE n.run_id = r.id),
		(SELECT COUNT(*) FROM console_logs c WHERE c.run_id = r.id)
		FROM runs r ORDER BY r.started_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		var started, finished int64
		if err := rows.Scan(&sm.ID, &sm.Target, &started, &finished, &sm.ActionKind, &sm.Frames, &sm.Network, &sm.Console); err != nil {
			return nil, fmt.Errorf("scanning run summary: %w", err)
		}
		sm.StartedAt = time.Unix(0, started).UTC()
		sm.FinishedAt = time.Unix(0, finished).UTC()
		out = append(out, sm)
	}
	return out, rows.Err()
}
