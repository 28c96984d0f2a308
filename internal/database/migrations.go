package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one numbered schema change. The number is the file name
// prefix before the first underscore.
type Migration struct {
	ID   int
	Name string
	SQL  string
}

// Querier is what Migrate needs from a pool or connection.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrations returns the embedded migrations ordered by id.
func Migrations() ([]Migration, error) {
	return loadMigrations(migrationFS, "migrations")
}

func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		id, err := strconv.Atoi(strings.SplitN(e.Name(), "_", 2)[0])
		if err != nil {
			return nil, fmt.Errorf("migration %s: name must start with a number: %w", e.Name(), err)
		}
		sql, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{ID: id, Name: e.Name(), SQL: string(sql)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].ID < migrations[j].ID })
	for i := 1; i < len(migrations); i++ {
		if migrations[i].ID == migrations[i-1].ID {
			return nil, fmt.Errorf("duplicate migration id %d: %s and %s",
				migrations[i].ID, migrations[i-1].Name, migrations[i].Name)
		}
	}
	return migrations, nil
}

// Migrate applies the embedded migrations newer than the recorded version.
func Migrate(ctx context.Context, db Querier) (int, error) {
	migrations, err := Migrations()
	if err != nil {
		return 0, err
	}
	return Update(ctx, db, migrations)
}

// Update applies every migration whose id exceeds the version stored in
// the database_version sequence. Each migration and its version bump run
// in one transaction. Returns the resulting version.
func Update(ctx context.Context, db Querier, migrations []Migration) (int, error) {
	version, err := readVersion(ctx, db)
	if err != nil {
		return 0, err
	}
	slog.Info("updating database schema", "current_version", version)

	for _, m := range migrations {
		if m.ID <= version {
			continue
		}
		err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `SELECT setval('database_version', $1)`, m.ID)
			return err
		})
		if err != nil {
			return version, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		version = m.ID
		slog.Info("applied migration", "name", m.Name, "version", version)
	}
	return version, nil
}

// Version returns the schema version recorded in the database.
func Version(ctx context.Context, db Querier) (int, error) {
	return readVersion(ctx, db)
}

func readVersion(ctx context.Context, db Querier) (int, error) {
	_, err := db.Exec(ctx, `CREATE SEQUENCE IF NOT EXISTS database_version START WITH 0 MINVALUE 0`)
	if err != nil {
		return 0, fmt.Errorf("create version sequence: %w", err)
	}

	var version int
	if err := db.QueryRow(ctx, `SELECT last_value FROM database_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
