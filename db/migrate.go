package db

import (
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sukhchana/jira-tool/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

// Migrate applies all pending schema migrations in filename order. Each
// migration runs in its own transaction and is recorded in
// schema_migrations, which the first migration (000) creates.
func Migrate(database *sql.DB, logger *zap.SugaredLogger) error {
	files, err := fs.Glob(migrations, "sqlite/migrations/*.sql")
	if err != nil {
		return errors.Wrap(err, "list migrations")
	}
	sort.Strings(files)

	applied, err := appliedVersions(database)
	if err != nil {
		return err
	}

	pending := 0
	for _, file := range files {
		name := file[strings.LastIndex(file, "/")+1:]
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return errors.Newf("migration filename missing version prefix: %s", name)
		}
		if applied[version] {
			continue
		}
		if err := applyMigration(database, file, version); err != nil {
			return err
		}
		if logger != nil {
			logger.Infow("Applied migration", "migration", name)
		}
		pending++
	}

	if logger != nil {
		logger.Infow("Migrations complete", "applied", pending, "total", len(files))
	}
	return nil
}

// appliedVersions returns the set of recorded migration versions. An empty
// set is returned when schema_migrations does not exist yet.
func appliedVersions(database *sql.DB) (map[string]bool, error) {
	var table string
	err := database.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='schema_migrations'",
	).Scan(&table)
	if err == sql.ErrNoRows {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "inspect schema")
	}

	rows, err := database.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read applied migrations")
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, errors.Wrap(err, "scan migration version")
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func applyMigration(database *sql.DB, file, version string) error {
	script, err := migrations.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "read %s", file)
	}

	tx, err := database.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", file)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(script)); err != nil {
		return errors.Wrapf(err, "execute %s", file)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return errors.Wrapf(err, "record %s", file)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", file)
}
