package essence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/mattn/go-sqlite3"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

// schemaVersion is stored in SQLite's user_version pragma.
const schemaVersion = 1

// PersistenceError reports a summary that could not be stored.
type PersistenceError struct {
	Project string
	TID     string
	Reason  string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist summary (project=%q tid=%q): %s: %v", e.Project, e.TID, e.Reason, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// row is one essence_cache record as written.
type row struct {
	Project          string `validate:"required"`
	TID              string `validate:"required"`
	ParentTitle      string
	Title            string `validate:"required"`
	Body             string
	Essence          string `validate:"required"`
	EssenceCompleted string `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SQLiteStore keeps summaries in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the summary database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("open essence db: path is empty")
	}

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return nil, fmt.Errorf("open essence db: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open essence db: %w", err)
	}

	db.SetMaxOpenConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping essence db: %w", err)
	}

	err = migrate(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		PRAGMA busy_timeout = 10000;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
	`)
	if err != nil {
		return fmt.Errorf("apply pragmas: %w", err)
	}

	var version int

	err = db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version == schemaVersion {
		return nil
	}

	if version > schemaVersion {
		return fmt.Errorf("essence db schema %d is newer than supported %d", version, schemaVersion)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS essence_cache (
		project TEXT NOT NULL,
		tid TEXT NOT NULL,
		parent_title TEXT,
		title TEXT NOT NULL,
		body TEXT,
		essence TEXT NOT NULL,
		essence_completed TEXT,
		PRIMARY KEY (project, tid)
	)`)
	if err != nil {
		return fmt.Errorf("create essence_cache: %w", err)
	}

	// Databases created before the completed phrasing existed lack the column.
	hasCompleted, err := hasColumn(ctx, db, "essence_cache", "essence_completed")
	if err != nil {
		return err
	}

	if !hasCompleted {
		_, err = db.ExecContext(ctx, "ALTER TABLE essence_cache ADD COLUMN essence_completed TEXT")
		if err != nil {
			return fmt.Errorf("add essence_completed: %w", err)
		}
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	if err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string

		err = rows.Scan(&name)
		if err != nil {
			return false, fmt.Errorf("table info %s: %w", table, err)
		}

		if name == column {
			return true, nil
		}
	}

	return false, rows.Err()
}

// Lookup implements Store. Rows without the completed phrasing count as
// unknown so both summaries get regenerated together.
func (s *SQLiteStore) Lookup(ctx context.Context, tasks []task.Task) ([]task.Task, []task.Task, error) {
	stmt, err := s.db.PrepareContext(ctx,
		"SELECT essence, essence_completed FROM essence_cache WHERE project = ? AND tid = ?")
	if err != nil {
		return nil, nil, fmt.Errorf("prepare lookup: %w", err)
	}
	defer stmt.Close()

	var known, unknown []task.Task

	for _, t := range tasks {
		var (
			todo string
			done sql.NullString
		)

		err := stmt.QueryRowContext(ctx, t.Project, t.TID).Scan(&todo, &done)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && done.String == "") {
			unknown = append(unknown, t)

			continue
		}

		if err != nil {
			return nil, nil, fmt.Errorf("lookup %s: %w", t.Key(), err)
		}

		known = append(known, t.WithEssence(todo, done.String))
	}

	return known, unknown, nil
}

// Memorize implements Store with an upsert on (project, tid).
func (s *SQLiteStore) Memorize(ctx context.Context, t task.Task) error {
	r := row{
		Project:          t.Project,
		TID:              t.TID,
		ParentTitle:      t.ParentTitle,
		Title:            t.Title,
		Body:             t.Body,
		Essence:          t.Essence,
		EssenceCompleted: t.EssenceCompleted,
	}

	err := validate.Struct(r)
	if err != nil {
		return &PersistenceError{Project: t.Project, TID: t.TID, Reason: "invalid record", Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO essence_cache (project, tid, parent_title, title, body, essence, essence_completed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project, tid) DO UPDATE SET
			parent_title = excluded.parent_title,
			title = excluded.title,
			body = excluded.body,
			essence = excluded.essence,
			essence_completed = excluded.essence_completed`,
		r.Project, r.TID, nullable(r.ParentTitle), r.Title, nullable(r.Body), r.Essence, r.EssenceCompleted)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return &PersistenceError{Project: t.Project, TID: t.TID, Reason: "constraint violated", Err: err}
		}

		return &PersistenceError{Project: t.Project, TID: t.TID, Reason: "write failed", Err: err}
	}

	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
