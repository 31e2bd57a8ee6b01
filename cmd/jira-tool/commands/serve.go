package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sukhchana/jira-tool/config"
	"github.com/sukhchana/jira-tool/errors"
	"github.com/sukhchana/jira-tool/logger"
	"github.com/sukhchana/jira-tool/server"
	"github.com/sukhchana/jira-tool/tracker"
)

// ServeCmd represents the serve command
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `serve — Start the HTTP API server

Exposes executions and revisions over a JSON API. Revision interpretation
runs synchronously inside the request, bounded by the request context.

Examples:
  jira-tool serve                  # Listen on the configured address
  jira-tool serve --addr :9090`,
	RunE: runServe,
}

var serveAddrFlag string

func init() {
	ServeCmd.Flags().StringVar(&serveAddrFlag, "addr", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	addr := cfg.Server.Addr
	if serveAddrFlag != "" {
		addr = serveAddrFlag
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	workflow, err := newWorkflow(cfg, database, "")
	if err != nil {
		return err
	}
	trk := tracker.NewTracker(database, logger.Logger)

	srv := server.New(addr, trk, workflow, logger.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Logger.Infow("Received signal, shutting down", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
