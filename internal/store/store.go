// Package store persists annotated tasks and label taxonomies in SQLite.
//
// Two drivers are supported: the pure Go modernc.org/sqlite (default) and
// the CGO mattn/go-sqlite3 (build tag cgo_sqlite). Use Open instead of
// sql.Open so the right driver name is used for the build.
package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hanlabel/kdpii/core/errors"
	"github.com/hanlabel/kdpii/core/span"
	"github.com/hanlabel/kdpii/core/taxonomy"
	"github.com/hanlabel/kdpii/internal/cache"
)

// taskCacheSize bounds the number of loaded tasks kept in memory.
const taskCacheSize = 128

// DriverName returns the SQL driver name for the current build.
func DriverName() string {
	return driverName
}

// DriverType identifies the underlying implementation: "purego" for
// modernc.org/sqlite, "cgo" for mattn/go-sqlite3.
func DriverType() string {
	return driverType
}

// schema creates the tables on first open. Spans use start_offset and
// end_offset because END is a SQL keyword.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id      TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	hash    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	status      TEXT NOT NULL,
	extra       TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS spans (
	id           TEXT PRIMARY KEY,
	task_id      TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	label_code   TEXT NOT NULL,
	note         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_spans_task ON spans(task_id);
CREATE INDEX IF NOT EXISTS idx_spans_label ON spans(label_code);
CREATE TABLE IF NOT EXISTS labels (
	code         TEXT NOT NULL,
	display_name TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	scope        TEXT NOT NULL,
	project_id   TEXT NOT NULL DEFAULT '',
	background   TEXT NOT NULL DEFAULT '',
	hotkey       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (code, project_id)
);
`

// Store is a SQLite-backed task and taxonomy store. Loaded tasks are kept
// in an LRU cache, invalidated on save and delete.
type Store struct {
	db    *sql.DB
	tasks *cache.LRU[string, *span.AnnotatedTask]
}

// Open opens (creating if needed) a store at the given DSN. Use ":memory:"
// for an ephemeral store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "store: open database")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store: enable foreign keys")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store: create schema")
	}
	return &Store{
		db:    db,
		tasks: cache.NewLRU[string, *span.AnnotatedTask](taskCacheSize),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SaveTask upserts a task together with its document and spans. The task's
// spans replace any previously stored spans atomically.
func (s *Store) SaveTask(ctx context.Context, t *span.AnnotatedTask) error {
	if t.Document == nil || t.Document.ID == "" {
		return errors.NewFormat("store", 0, "task has no document")
	}
	if t.ID == "" {
		return errors.NewFormat("store", 0, "task has no id")
	}

	extra := "{}"
	if len(t.Extra) > 0 {
		data, err := json.Marshal(t.Extra)
		if err != nil {
			return errors.Wrap(err, "store: serialize task extra")
		}
		extra = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store: begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, content, hash) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, hash = excluded.hash`,
		t.Document.ID, t.Document.Content, t.Document.Hash)
	if err != nil {
		return errors.Wrap(err, "store: save document")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, document_id, status, extra) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document_id = excluded.document_id,
			status = excluded.status, extra = excluded.extra`,
		t.ID, t.Document.ID, string(t.Status), extra)
	if err != nil {
		return errors.Wrap(err, "store: save task")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM spans WHERE task_id = ?`, t.ID); err != nil {
		return errors.Wrap(err, "store: clear spans")
	}
	for _, sp := range t.Spans {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO spans (id, task_id, start_offset, end_offset, label_code, note)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sp.ID, t.ID, sp.Start, sp.End, sp.LabelCode, sp.Note)
		if err != nil {
			return errors.Wrap(err, "store: save span")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "store: commit")
	}
	s.tasks.Remove(t.ID)
	return nil
}

// cloneTask copies a task so a caller mutating the result cannot corrupt
// the cached entry. The document is immutable and stays shared.
func cloneTask(t *span.AnnotatedTask) *span.AnnotatedTask {
	cp := *t
	if t.Extra != nil {
		cp.Extra = make(map[string]json.RawMessage, len(t.Extra))
		for k, v := range t.Extra {
			cp.Extra[k] = v
		}
	}
	cp.Spans = make([]*span.Span, len(t.Spans))
	for i, sp := range t.Spans {
		c := *sp
		cp.Spans[i] = &c
	}
	return &cp
}

// LoadTask loads a task with its document and spans. Spans come back in
// (start, end, label) order. Every call returns an independent copy; cached
// entries are never handed out directly.
func (s *Store) LoadTask(ctx context.Context, id string) (*span.AnnotatedTask, error) {
	if t, ok := s.tasks.Get(id); ok {
		return cloneTask(t), nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT t.status, t.extra, d.id, d.content, d.hash
		FROM tasks t JOIN documents d ON d.id = t.document_id
		WHERE t.id = ?`, id)

	var status, extra string
	doc := &span.Document{}
	if err := row.Scan(&status, &extra, &doc.ID, &doc.Content, &doc.Hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFound("task", id)
		}
		return nil, errors.Wrap(err, "store: load task")
	}

	t := &span.AnnotatedTask{
		ID:       id,
		Document: doc,
		Status:   span.Status(status),
	}
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &t.Extra); err != nil {
			return nil, errors.Wrap(err, "store: parse task extra")
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_offset, end_offset, label_code, note
		FROM spans WHERE task_id = ?
		ORDER BY start_offset, end_offset, label_code`, id)
	if err != nil {
		return nil, errors.Wrap(err, "store: load spans")
	}
	defer rows.Close()
	for rows.Next() {
		sp := &span.Span{DocumentID: doc.ID}
		if err := rows.Scan(&sp.ID, &sp.Start, &sp.End, &sp.LabelCode, &sp.Note); err != nil {
			return nil, errors.Wrap(err, "store: scan span")
		}
		t.Spans = append(t.Spans, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "store: iterate spans")
	}
	s.tasks.Put(id, t)
	return cloneTask(t), nil
}

// LoadDocument loads a stored document by ID. Intended as the document
// resolver for content-free imports (codec.DecodeValidatedWith).
func (s *Store) LoadDocument(ctx context.Context, id string) (*span.Document, error) {
	doc := &span.Document{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, hash FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Content, &doc.Hash)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("document", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: load document")
	}
	return doc, nil
}

// ListTasks returns the IDs of all stored tasks, sorted.
func (s *Store) ListTasks(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "store: list tasks")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "store: scan task id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadAllTasks loads every stored task, in ID order.
func (s *Store) LoadAllTasks(ctx context.Context) ([]*span.AnnotatedTask, error) {
	ids, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]*span.AnnotatedTask, 0, len(ids))
	for _, id := range ids {
		t, err := s.LoadTask(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// DeleteTask removes a task and its spans. Missing tasks are an error.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "store: delete task")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "store: delete task")
	}
	if n == 0 {
		return errors.NewNotFound("task", id)
	}
	s.tasks.Remove(id)
	return nil
}

// LabelUsed reports whether any stored span references the label code.
// Intended as the used callback for Catalog.Remove.
func (s *Store) LabelUsed(ctx context.Context, code string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM spans WHERE label_code = ?`, code).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "store: count label uses")
	}
	return n > 0, nil
}

// SaveCatalog persists taxonomy entries. With clear set, previously stored
// labels are removed first; otherwise entries upsert over existing rows.
func (s *Store) SaveCatalog(ctx context.Context, entries []taxonomy.Entry, clear bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store: begin transaction")
	}
	defer tx.Rollback()

	if clear {
		if _, err := tx.ExecContext(ctx, `DELETE FROM labels`); err != nil {
			return errors.Wrap(err, "store: clear labels")
		}
	}
	for _, e := range entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO labels (code, display_name, category, scope, project_id, background, hotkey)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(code, project_id) DO UPDATE SET
				display_name = excluded.display_name,
				category = excluded.category,
				scope = excluded.scope,
				background = excluded.background,
				hotkey = excluded.hotkey`,
			e.Code, e.DisplayName, e.Category, string(e.Scope), e.ProjectID, e.Background, e.Hotkey)
		if err != nil {
			return errors.Wrapf(err, "store: save label %s", e.Code)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "store: commit")
	}
	return nil
}

// LoadCatalog reads all stored taxonomy entries, sorted by (project, code).
func (s *Store) LoadCatalog(ctx context.Context) ([]taxonomy.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, display_name, category, scope, project_id, background, hotkey
		FROM labels ORDER BY project_id, code`)
	if err != nil {
		return nil, errors.Wrap(err, "store: load labels")
	}
	defer rows.Close()

	var entries []taxonomy.Entry
	for rows.Next() {
		var e taxonomy.Entry
		var scope string
		if err := rows.Scan(&e.Code, &e.DisplayName, &e.Category, &scope,
			&e.ProjectID, &e.Background, &e.Hotkey); err != nil {
			return nil, errors.Wrap(err, "store: scan label")
		}
		e.Scope = taxonomy.Scope(scope)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
