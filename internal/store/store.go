// Package store backs the per-user persistent variable set (spec
// §4.3) with an on-disk SQLite database. The table schema is not
// known at compile time — it is generated from the VariableSchema the
// script loader produces — so unlike a fixed-migration store this one
// issues its CREATE TABLE at Init(schema), not via embedded .sql files.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/ehrlich-b/scriptbot/internal/ir"

	_ "modernc.org/sqlite"
)

// Store is the Variable Store of spec §4.3: a single exclusive lock
// serializes every read and write so that each Update is atomic and
// each Speak observes a consistent snapshot (spec §5).
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	schema *ir.VariableSchema
}

// Open opens (creating if necessary) the SQLite file at dsn. If
// fresh is true, an existing user_variable table is dropped first — spec
// §4.3 and §9 Open Question 3: the reference implementation always
// recreates the store at startup; fresh=false is the configurable
// alternative that lets registered users survive a restart.
func Open(dsn string, fresh bool) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	if fresh {
		if _, err := db.Exec("DROP TABLE IF EXISTS user_variable"); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: drop user_variable: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the user_variable table from schema if it doesn't
// already exist, then inserts the reserved Guest row (spec §3:
// username="Guest", passwd=""). Must be called once, after Open and
// before any other Store method.
func (s *Store) Init(ctx context.Context, schema *ir.VariableSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = schema

	ddl, err := buildCreateTable(schema)
	if err != nil {
		return fmt.Errorf("store: build schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: create user_variable: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_variable WHERE username = ?`, "Guest").Scan(&count); err != nil {
		return fmt.Errorf("store: check Guest row: %w", err)
	}
	if count == 0 {
		if err := s.insertRowLocked(ctx, "Guest", ""); err != nil {
			return fmt.Errorf("store: seed Guest row: %w", err)
		}
	}
	return nil
}

func sqlType(t ir.VarType) string {
	switch t {
	case ir.VarInt:
		return "INTEGER"
	case ir.VarReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func sqlLiteral(l ir.Literal) string {
	switch l.Kind {
	case ir.LitInt:
		return fmt.Sprintf("%d", l.Int)
	case ir.LitReal:
		return fmt.Sprintf("%v", l.Real)
	default:
		return fmt.Sprintf("%q", l.Text)
	}
}

// buildCreateTable generates `CREATE TABLE IF NOT EXISTS user_variable
// (username TEXT PRIMARY KEY, passwd TEXT, <one column per scripted
// variable>)` per spec §4.3.
func buildCreateTable(schema *ir.VariableSchema) (string, error) {
	cols := make([]string, 0, len(schema.Names()))
	for _, name := range schema.Names() {
		t, ok := schema.Type(name)
		if !ok {
			return "", fmt.Errorf("schema missing type for %s", name)
		}
		if name == ir.ReservedUsername {
			cols = append(cols, "username TEXT PRIMARY KEY")
			continue
		}
		def, ok := schema.Default(name)
		if !ok {
			return "", fmt.Errorf("schema missing default for %s", name)
		}
		cols = append(cols, fmt.Sprintf("%s %s NOT NULL DEFAULT %s", name, sqlType(t), sqlLiteral(def)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS user_variable (%s)", joinColumns(cols)), nil
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
