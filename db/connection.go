package db

import (
	"database/sql"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sukhchana/jira-tool/errors"
)

// Open opens the SQLite database at path. WAL journaling, foreign key
// enforcement, and a 5s busy timeout are set through the DSN so every
// pooled connection gets the same settings.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_journal_mode": {"WAL"},
		"_foreign_keys": {"on"},
		"_busy_timeout": {"5000"},
	}.Encode()

	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}

	// sql.Open defers the actual connection; fail fast instead.
	if err := database.Ping(); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "connect to database %s", path)
	}

	if logger != nil {
		logger.Infow("Database opened", "path", path)
	}
	return database, nil
}
