// Package history records finished invocations in a SQLite database so the
// CLI can show what ran recently and how each target ended.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/buildgraph/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when an invocation ID is not in the store.
var ErrNotFound = errors.New("invocation not found")

// Invocation is one recorded run of the engine.
type Invocation struct {
	ID            string
	BuildFile     string
	Requested     []string
	Configuration string
	Outcome       string // models.Outcome name, or "RequirementFailed"
	Interrupted   bool
	Error         string // invocation-level error, e.g. unmet requirements
	StartedAt     time.Time
	Duration      time.Duration
	Targets       []TargetRecord // in plan order
}

// TargetRecord is the terminal state of one planned target.
type TargetRecord struct {
	InvocationID string
	Name         string
	State        string
	SkipReason   string
	SkippedFor   string
	Error        string
	Duration     time.Duration
	StartedAt    time.Time // start of the owning invocation (TargetHistory only)
}

// OutcomeRequirementFailed marks an invocation that stopped before any
// target ran because a requirement was unmet.
const OutcomeRequirementFailed = "RequirementFailed"

// FromResult converts an engine result into a record.
func FromResult(buildFile string, r *models.InvocationResult) *Invocation {
	inv := &Invocation{
		ID:            r.ID,
		BuildFile:     buildFile,
		Requested:     append([]string(nil), r.Requested...),
		Configuration: r.Configuration,
		Outcome:       r.Outcome.String(),
		Interrupted:   r.Interrupted,
		StartedAt:     r.StartedAt,
		Duration:      r.Duration,
	}
	for _, tr := range r.Results {
		rec := TargetRecord{
			InvocationID: r.ID,
			Name:         tr.Name,
			State:        tr.State.String(),
			SkipReason:   string(tr.SkipReason),
			SkippedFor:   tr.SkippedFor,
			Duration:     tr.Duration,
		}
		if tr.Err != nil {
			rec.Error = tr.Err.Error()
		}
		inv.Targets = append(inv.Targets, rec)
	}
	return inv
}

// Store manages the SQLite history database
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the database at dbPath and applies
// pending migrations. ":memory:" opens a private in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// execWithRetry executes a statement with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordInvocation stores inv and its target records in one transaction.
// Recording an ID twice replaces the earlier record.
func (s *Store) RecordInvocation(ctx context.Context, inv *Invocation) error {
	if inv == nil || inv.ID == "" {
		return errors.New("invocation id is required")
	}
	requested, err := json.Marshal(nonNil(inv.Requested))
	if err != nil {
		return fmt.Errorf("marshal requested targets: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM target_results WHERE invocation_id = ?`, inv.ID); err != nil {
		return fmt.Errorf("clear target results: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO invocations
		(id, build_file, requested, configuration, outcome, interrupted, error_message, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.BuildFile, string(requested), inv.Configuration, inv.Outcome, inv.Interrupted,
		inv.Error, inv.StartedAt.UTC(), inv.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}

	for i, tr := range inv.Targets {
		_, err := tx.ExecContext(ctx, `INSERT INTO target_results
			(invocation_id, position, target, state, skip_reason, skipped_for, error_message, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, i, tr.Name, tr.State, tr.SkipReason, tr.SkippedFor, tr.Error, tr.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert target result %s: %w", tr.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invocation: %w", err)
	}
	return nil
}

const invocationColumns = `id, build_file, requested, configuration, outcome, interrupted, error_message, started_at, duration_ms`

// Recent returns up to limit invocations, newest first, with their targets.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Invocation, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+invocationColumns+`
		FROM invocations ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	invs, err := scanInvocations(rows)
	if err != nil {
		return nil, err
	}
	for _, inv := range invs {
		if inv.Targets, err = s.targets(ctx, inv.ID); err != nil {
			return nil, err
		}
	}
	return invs, nil
}

// Get returns one invocation by ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+invocationColumns+` FROM invocations WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query invocation: %w", err)
	}
	invs, err := scanInvocations(rows)
	if err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	inv := invs[0]
	if inv.Targets, err = s.targets(ctx, id); err != nil {
		return nil, err
	}
	return inv, nil
}

// TargetHistory returns the most recent results of one target, newest first.
// Target names match case-insensitively.
func (s *Store) TargetHistory(ctx context.Context, target string, limit int) ([]TargetRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT t.invocation_id, t.target, t.state, t.skip_reason, t.skipped_for,
			t.error_message, t.duration_ms, i.started_at
		FROM target_results t JOIN invocations i ON i.id = t.invocation_id
		WHERE t.target = ? COLLATE NOCASE
		ORDER BY i.started_at DESC, t.id DESC LIMIT ?`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("query target history: %w", err)
	}
	defer rows.Close()

	var out []TargetRecord
	for rows.Next() {
		var (
			rec                                TargetRecord
			skipReason, skippedFor, errMessage sql.NullString
			durationMS                         int64
		)
		if err := rows.Scan(&rec.InvocationID, &rec.Name, &rec.State, &skipReason, &skippedFor,
			&errMessage, &durationMS, &rec.StartedAt); err != nil {
			return nil, fmt.Errorf("scan target result: %w", err)
		}
		rec.SkipReason, rec.SkippedFor, rec.Error = skipReason.String, skippedFor.String, errMessage.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target results: %w", err)
	}
	return out, nil
}

// Prune deletes all but the newest keep invocations and returns how many
// were removed. keep <= 0 keeps everything.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM invocations ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM target_results WHERE invocation_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("prune target results: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM invocations WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune invocations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune invocations: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return n, nil
}

// Count returns the number of recorded invocations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invocations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count invocations: %w", err)
	}
	return n, nil
}

func (s *Store) targets(ctx context.Context, id string) ([]TargetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT target, state, skip_reason, skipped_for, error_message, duration_ms
		FROM target_results WHERE invocation_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query target results: %w", err)
	}
	defer rows.Close()

	var out []TargetRecord
	for rows.Next() {
		var (
			rec                                TargetRecord
			skipReason, skippedFor, errMessage sql.NullString
			durationMS                         int64
		)
		if err := rows.Scan(&rec.Name, &rec.State, &skipReason, &skippedFor, &errMessage, &durationMS); err != nil {
			return nil, fmt.Errorf("scan target result: %w", err)
		}
		rec.InvocationID = id
		rec.SkipReason, rec.SkippedFor, rec.Error = skipReason.String, skippedFor.String, errMessage.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target results: %w", err)
	}
	return out, nil
}

// scanInvocations reads and closes rows.
func scanInvocations(rows *sql.Rows) ([]*Invocation, error) {
	defer rows.Close()

	var out []*Invocation
	for rows.Next() {
		var (
			inv                             Invocation
			buildFile, configuration, errMs sql.NullString
			requested                       string
			durationMS                      int64
		)
		if err := rows.Scan(&inv.ID, &buildFile, &requested, &configuration, &inv.Outcome,
			&inv.Interrupted, &errMs, &inv.StartedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		if err := json.Unmarshal([]byte(requested), &inv.Requested); err != nil {
			return nil, fmt.Errorf("unmarshal requested targets of %s: %w", inv.ID, err)
		}
		inv.BuildFile, inv.Configuration, inv.Error = buildFile.String, configuration.String, errMs.String
		inv.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
