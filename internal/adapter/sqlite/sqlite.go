// Package sqlite implements the persistence ports on embedded SQLite
// databases, one file per store group, in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrations embed.FS

// DBSet holds the open per-store database handles.
type DBSet struct {
	Messages     *sql.DB
	Workspaces   *sql.DB
	Capabilities *sql.DB
	Knowledge    *sql.DB
	Sessions     *sql.DB
	Activity     *sql.DB
	Workflow     *sql.DB
	Retro        *sql.DB
	Receipts     *sql.DB
}

// groups maps a store group to its database file and migration dir.
var groups = []struct {
	name string
	file string
}{
	{"messages", "messages.db"},
	{"workspaces", "workspaces.db"},
	{"capabilities", "capabilities.db"},
	{"knowledge", "knowledge.db"},
	{"sessions", "sessions.db"},
	{"activity", "activity.db"},
	{"workflow", "workflow.db"},
	{"retro", "retro.db"},
	{"receipts", "receipts.db"},
}

// Open opens one database file with WAL durability and a busy timeout.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single writer connection sidesteps SQLITE_BUSY between handlers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	return db, nil
}

// OpenAll opens every store database under baseDir and applies pending
// migrations.
func OpenAll(ctx context.Context, baseDir string) (*DBSet, error) {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("goose dialect: %w", err)
	}

	set := &DBSet{}
	targets := map[string]**sql.DB{
		"messages":     &set.Messages,
		"workspaces":   &set.Workspaces,
		"capabilities": &set.Capabilities,
		"knowledge":    &set.Knowledge,
		"sessions":     &set.Sessions,
		"activity":     &set.Activity,
		"workflow":     &set.Workflow,
		"retro":        &set.Retro,
		"receipts":     &set.Receipts,
	}

	for _, g := range groups {
		db, err := Open(filepath.Join(baseDir, g.file))
		if err != nil {
			set.Close()
			return nil, err
		}
		if err := goose.UpContext(ctx, db, "migrations/"+g.name); err != nil {
			db.Close()
			set.Close()
			return nil, fmt.Errorf("migrate %s: %w", g.name, err)
		}
		*targets[g.name] = db
	}
	return set, nil
}

// Close closes every open handle.
func (s *DBSet) Close() {
	for _, db := range []*sql.DB{
		s.Messages, s.Workspaces, s.Capabilities, s.Knowledge,
		s.Sessions, s.Activity, s.Workflow, s.Retro, s.Receipts,
	} {
		if db != nil {
			db.Close()
		}
	}
}
