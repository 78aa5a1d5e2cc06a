// Package registry implements the datastore-name audit trail that
// backs ChangeDatastoreName: the bytes a datastore persists are
// opaque to the core, but which name a datastore currently answers
// to is core bookkeeping that must survive a restart. A single
// sqlite3 backend suffices since a range server's registry is a
// small local file, not a shared multi-tenant database.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/hpc-hxhim/hxhim-go/internal/herr"
)

// Entry is one recorded name/path binding for a datastore id, in the
// order the registry observed it.
type Entry struct {
	DatastoreID int
	Name        string
	Path        string
	OpenedAt    time.Time
	RenamedAt   sql.NullTime
}

// Registry is the audit trail for one range server's datastore
// names, one instance per caller: a range server opens exactly one,
// and tests can open independent ones against t.TempDir().
type Registry struct {
	db *sqlx.DB
}

var driverOnce = "sqlite3_hxhim_registry"
var driverRegistered bool

// Open opens (creating if absent) the sqlite3 database at path and
// brings its schema up to date.
func Open(path string) (*Registry, error) {
	if !driverRegistered {
		sql.Register(driverOnce, sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &hooks{}))
		driverRegistered = true
	}

	db, err := sqlx.Open(driverOnce, fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, herr.New(herr.Config, "registry.Open", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 does not multiplex writers

	if err := applyMigrations(db.DB); err != nil {
		db.Close()
		return nil, herr.New(herr.Config, "registry.Open", err)
	}

	return &Registry{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// RecordOpen appends an entry marking datastoreID as newly opened
// under name/path.
func (r *Registry) RecordOpen(ctx context.Context, datastoreID int, name, path string) error {
	_, err := sq.Insert("datastore_registry").
		Columns("datastore_id", "name", "path", "opened_at").
		Values(datastoreID, name, path, time.Now()).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return herr.New(herr.Config, "registry.RecordOpen", err)
	}
	return nil
}

// RecordRename appends a new entry for datastoreID under newName/
// newPath and stamps the prior current entry's renamed_at, preserving
// full history rather than overwriting in place.
func (r *Registry) RecordRename(ctx context.Context, datastoreID int, newName, newPath string) error {
	now := time.Now()

	_, err := sq.Update("datastore_registry").
		Set("renamed_at", now).
		Where(sq.And{
			sq.Eq{"datastore_id": datastoreID},
			sq.Eq{"renamed_at": nil},
		}).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return herr.New(herr.Config, "registry.RecordRename", err)
	}

	_, err = sq.Insert("datastore_registry").
		Columns("datastore_id", "name", "path", "opened_at").
		Values(datastoreID, newName, newPath, now).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return herr.New(herr.Config, "registry.RecordRename", err)
	}
	return nil
}

// CurrentName returns the most recently opened, not-yet-superseded
// name and path for datastoreID.
func (r *Registry) CurrentName(ctx context.Context, datastoreID int) (name, path string, err error) {
	row := sq.Select("name", "path").
		From("datastore_registry").
		Where(sq.Eq{"datastore_id": datastoreID}).
		OrderBy("id DESC").
		Limit(1).
		RunWith(r.db).
		QueryRowContext(ctx)
	if scanErr := row.Scan(&name, &path); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", "", herr.New(herr.Argument, "registry.CurrentName", errNoSuchDatastore)
		}
		return "", "", herr.New(herr.Config, "registry.CurrentName", scanErr)
	}
	return name, path, nil
}

// History returns every recorded binding for datastoreID, oldest
// first.
func (r *Registry) History(ctx context.Context, datastoreID int) ([]Entry, error) {
	rows, err := sq.Select("datastore_id", "name", "path", "opened_at", "renamed_at").
		From("datastore_registry").
		Where(sq.Eq{"datastore_id": datastoreID}).
		OrderBy("id ASC").
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, herr.New(herr.Config, "registry.History", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.DatastoreID, &e.Name, &e.Path, &e.OpenedAt, &e.RenamedAt); err != nil {
			return nil, herr.New(herr.Config, "registry.History", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
