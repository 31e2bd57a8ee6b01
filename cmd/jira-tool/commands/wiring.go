package commands

import (
	"database/sql"
	"time"

	"github.com/sukhchana/jira-tool/ai/interpreter"
	"github.com/sukhchana/jira-tool/ai/openrouter"
	"github.com/sukhchana/jira-tool/config"
	"github.com/sukhchana/jira-tool/db"
	"github.com/sukhchana/jira-tool/errors"
	"github.com/sukhchana/jira-tool/jira"
	"github.com/sukhchana/jira-tool/logger"
	"github.com/sukhchana/jira-tool/planstore"
	"github.com/sukhchana/jira-tool/revision"
	"github.com/sukhchana/jira-tool/tracker"
)

// openDatabase opens the configured SQLite database with migrations applied.
// Callers own the returned handle.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return database, nil
}

// newInterpreter builds the OpenRouter-backed interpreter. Usage tracking
// writes to the shared database.
func newInterpreter(cfg *config.Config, database *sql.DB, operationType, entityID string) *interpreter.Client {
	temp := cfg.AI.Temperature
	maxTokens := cfg.AI.MaxTokens

	provider := openrouter.NewClient(openrouter.Config{
		APIKey:        cfg.AI.APIKey,
		Model:         cfg.AI.Model,
		Temperature:   &temp,
		MaxTokens:     &maxTokens,
		Timeout:       time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		Logger:        logger.Logger,
		DB:            database,
		OperationType: operationType,
		EntityType:    "epic",
		EntityID:      entityID,
	})

	return interpreter.New(provider)
}

// newPlanStore opens the configured plan document directory.
func newPlanStore(cfg *config.Config) (*planstore.Store, error) {
	return planstore.NewStore(cfg.Plans.Dir, logger.Logger)
}

// newJiraClient builds the ticket client from configuration.
func newJiraClient(cfg *config.Config) (*jira.Client, error) {
	return jira.NewClient(jira.Config{
		BaseURL:           cfg.Jira.BaseURL,
		Email:             cfg.Jira.Email,
		APIToken:          cfg.Jira.APIToken,
		RequestsPerSecond: float64(cfg.Jira.RequestsPerSecond),
		Logger:            logger.Logger,
	})
}

// newWorkflow wires the revision workflow over an open database.
func newWorkflow(cfg *config.Config, database *sql.DB, entityID string) (*revision.Workflow, error) {
	plans, err := newPlanStore(cfg)
	if err != nil {
		return nil, err
	}

	interp := newInterpreter(cfg, database, "revision-interpret", entityID)
	store := tracker.NewStore(database)

	return revision.NewWorkflow(store, interp, plans, logger.Logger), nil
}
