package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

func (d Dialect) columnType(t ColumnType) string {
	switch t {
	case Integer:
		if d == Postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case Real:
		if d == Postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	default:
		return "TEXT"
	}
}

// DialectFor picks the store driver from a location: postgres URLs use pgx,
// anything else is a SQLite file path.
func DialectFor(location string) Dialect {
	l := strings.ToLower(strings.TrimSpace(location))
	if strings.HasPrefix(l, "postgres://") || strings.HasPrefix(l, "postgresql://") {
		return Postgres
	}
	return SQLite
}

type OpenMode int

const (
	// OpenRead requires an existing store and rejects writes where the
	// driver allows it.
	OpenRead OpenMode = iota
	// OpenWrite creates the store if needed.
	OpenWrite
)

// Store is a relational snapshot store.
type Store struct {
	db       *sqlx.DB
	location string
	dialect  Dialect
}

func OpenStore(ctx context.Context, location string, mode OpenMode) (*Store, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("empty store location")
	}
	dialect := DialectFor(location)

	var db *sqlx.DB
	var err error
	switch dialect {
	case Postgres:
		db, err = sqlx.Open("pgx", location)
		if err != nil {
			return nil, err
		}
	default:
		if mode == OpenRead {
			if _, err := os.Stat(location); err != nil {
				return nil, err
			}
		} else if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
			return nil, err
		}
		db, err = sqlx.Open("sqlite", location)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if err := initPragmas(ctx, db, mode); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, location: location, dialect: dialect}, nil
}

func initPragmas(ctx context.Context, db *sqlx.DB, mode OpenMode) error {
	// Snapshot stores are copied around as single files, so no WAL sidecars.
	pragmas := []string{
		"PRAGMA journal_mode=DELETE;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	if mode == OpenRead {
		pragmas = append(pragmas, "PRAGMA query_only=ON;")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DB() *sqlx.DB     { return s.db }
func (s *Store) Location() string { return s.location }
func (s *Store) Dialect() Dialect { return s.dialect }
func (s *Store) Close() error     { return s.db.Close() }

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// recreateTable drops and creates t inside tx.
func (s *Store) recreateTable(ctx context.Context, tx *sqlx.Tx, t Table) error {
	for _, q := range []string{t.dropSQL(), t.createSQL(s.dialect, false)} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%s: %w", t.Name, err)
		}
	}
	return nil
}

func (s *Store) ensureTable(ctx context.Context, t Table) error {
	if _, err := s.db.ExecContext(ctx, t.createSQL(s.dialect, true)); err != nil {
		return fmt.Errorf("%s: %w", t.Name, err)
	}
	return nil
}

// insertRows prepares the insert for t and hands fill an emit function that
// executes one row per call.
func (s *Store) insertRows(ctx context.Context, tx *sqlx.Tx, t Table, fill func(emit func(args ...any) error) error) (int, error) {
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(t.insertSQL()))
	if err != nil {
		return 0, fmt.Errorf("%s: prepare insert: %w", t.Name, err)
	}
	defer stmt.Close()

	n := 0
	err = fill(func(args ...any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("%s: insert row %d: %w", t.Name, n+1, err)
		}
		n++
		return nil
	})
	return n, err
}

func (s *Store) query(ctx context.Context, t Table, where string, args ...any) (*sqlx.Rows, error) {
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(t.selectSQL(where)), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name, err)
	}
	return rows, nil
}

// Tables lists the tables present in the store, lower-cased.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	q := "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name"
	if s.dialect == Postgres {
		q = "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name"
	}
	var names []string
	if err := s.db.SelectContext(ctx, &names, q); err != nil {
		return nil, err
	}
	for i := range names {
		names[i] = strings.ToLower(names[i])
	}
	return names, nil
}

func (s *Store) Count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, fmt.Errorf("%s: %w", table, err)
	}
	return n, nil
}
