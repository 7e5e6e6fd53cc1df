// Package history keeps an audit log of shell jobs and services in SQLite.
// The log is informational only; process handling never reads it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/brianly1003/cquest/internal/domain/ports"
)

const schemaVersion = 1

// DefaultLimit caps List when the filter sets no limit.
const DefaultLimit = 100

// Store implements ports.HistoryRecorder and ports.HistoryReader.
type Store struct {
	db     *sql.DB
	dbPath string

	stmtInsert *sql.Stmt
	stmtFinish *sql.Stmt
}

// Open opens or creates the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writes.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn().Err(err).Str("pragma", pragma).Msg("failed to set pragma")
		}
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	var currentVersion int
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&currentVersion)
	if err != nil {
		currentVersion = 0
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	log.Info().Int("current", currentVersion).Int("target", schemaVersion).Msg("updating history schema")

	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS process_runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			command TEXT NOT NULL,
			work_dir TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			exit_code INTEGER,
			outcome TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON process_runs(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_entity ON process_runs(kind, entity_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err = s.db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}

func (s *Store) prepareStatements() error {
	var err error
	s.stmtInsert, err = s.db.Prepare(`
		INSERT INTO process_runs (id, kind, entity_id, command, work_dir, started_at, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	s.stmtFinish, err = s.db.Prepare(`
		UPDATE process_runs SET ended_at = ?, exit_code = ?, outcome = ?
		WHERE id = ?`)
	return err
}

// RunStarted records a spawned process.
func (s *Store) RunStarted(ctx context.Context, kind ports.RunKind, entityID, command, workDir string) string {
	id := uuid.NewString()
	_, err := s.stmtInsert.ExecContext(ctx, id, string(kind), entityID, command, workDir,
		time.Now().UnixMilli(), string(ports.OutcomeRunning))
	if err != nil {
		log.Warn().Err(err).Str("entity_id", entityID).Msg("failed to record process start")
		return ""
	}
	return id
}

// RunEnded completes a record.
func (s *Store) RunEnded(ctx context.Context, recordID string, outcome ports.RunOutcome, exitCode *int) {
	var code sql.NullInt64
	if exitCode != nil {
		code = sql.NullInt64{Int64: int64(*exitCode), Valid: true}
	}
	_, err := s.stmtFinish.ExecContext(ctx, time.Now().UnixMilli(), code, string(outcome), recordID)
	if err != nil {
		log.Warn().Err(err).Str("record_id", recordID).Msg("failed to record process end")
	}
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, filter ports.HistoryFilter) ([]ports.RunRecord, error) {
	var where []string
	var args []interface{}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	query := "SELECT id, kind, entity_id, command, work_dir, started_at, ended_at, exit_code, outcome FROM process_runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []ports.RunRecord
	for rows.Next() {
		var (
			r         ports.RunRecord
			kind      string
			outcome   string
			startedAt int64
			endedAt   sql.NullInt64
			exitCode  sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &kind, &r.EntityID, &r.Command, &r.WorkDir, &startedAt, &endedAt, &exitCode, &outcome); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		r.Kind = ports.RunKind(kind)
		r.Outcome = ports.RunOutcome(outcome)
		r.StartedAt = time.UnixMilli(startedAt).UTC()
		if endedAt.Valid {
			t := time.UnixMilli(endedAt.Int64).UTC()
			r.EndedAt = &t
		}
		if exitCode.Valid {
			c := int(exitCode.Int64)
			r.ExitCode = &c
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s.stmtInsert != nil {
		s.stmtInsert.Close()
	}
	if s.stmtFinish != nil {
		s.stmtFinish.Close()
	}
	return s.db.Close()
}

var (
	_ ports.HistoryRecorder = (*Store)(nil)
	_ ports.HistoryReader   = (*Store)(nil)
)
