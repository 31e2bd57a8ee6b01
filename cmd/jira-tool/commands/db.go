package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	aitracker "github.com/sukhchana/jira-tool/ai/tracker"
	"github.com/sukhchana/jira-tool/config"
	"github.com/sukhchana/jira-tool/errors"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the jira-tool database",
	Long: `db — Database operations

Examples:
  jira-tool db migrate            # Apply pending schema migrations
  jira-tool db stats              # Execution, revision, and AI usage stats
  jira-tool db stats --days 7     # AI usage for the last 7 days`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show execution, revision, and AI usage statistics",
	RunE:  runDbStats,
}

var statsDaysFlag int

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
	dbStatsCmd.Flags().IntVar(&statsDaysFlag, "days", 30, "AI usage window in days")
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	// openDatabase migrates as a side effect
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("Database migrated: %s\n", cfg.Database.Path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	var totalExecutions, activeExecutions, failedExecutions int
	err = database.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'ACTIVE' THEN 1 END),
			COUNT(CASE WHEN status IN ('FAILED', 'FATAL_ERROR') THEN 1 END)
		FROM executions
	`).Scan(&totalExecutions, &activeExecutions, &failedExecutions)
	if err != nil {
		return errors.Wrap(err, "failed to query execution stats")
	}

	var totalRevisions, pendingRevisions, appliedRevisions int
	err = database.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'PENDING' THEN 1 END),
			COUNT(CASE WHEN status = 'APPLIED' THEN 1 END)
		FROM revisions
	`).Scan(&totalRevisions, &pendingRevisions, &appliedRevisions)
	if err != nil {
		return errors.Wrap(err, "failed to query revision stats")
	}

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Printf("Database Path:     %s\n", cfg.Database.Path)
	fmt.Printf("Executions:        %d (%d active, %d failed)\n", totalExecutions, activeExecutions, failedExecutions)
	fmt.Printf("Revisions:         %d (%d pending, %d applied)\n", totalRevisions, pendingRevisions, appliedRevisions)
	fmt.Println()

	since := time.Now().AddDate(0, 0, -statsDaysFlag)
	usage := aitracker.NewUsageTracker(database)
	stats, err := usage.GetUsageStats(cmd.Context(), since)
	if err != nil {
		return errors.Wrap(err, "failed to query AI usage stats")
	}

	fmt.Printf("AI Usage (last %d days)\n", statsDaysFlag)
	fmt.Printf("Requests:          %d (%.0f%% success)\n", stats.TotalRequests, stats.SuccessRate*100)
	fmt.Printf("Tokens:            %d\n", stats.TotalTokens)
	fmt.Printf("Cost:              $%.4f\n", stats.TotalCost)

	breakdown, err := usage.GetModelBreakdown(cmd.Context(), since)
	if err != nil {
		return errors.Wrap(err, "failed to query model breakdown")
	}
	if len(breakdown) > 0 {
		fmt.Println()
		for _, mb := range breakdown {
			fmt.Printf("  %-40s %5d calls  %8d tokens  $%.4f\n",
				mb.ModelName, mb.RequestCount, mb.TotalTokens, mb.TotalCost)
		}
	}

	return nil
}
