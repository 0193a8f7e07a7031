package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tableflow/internal/progress"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	settings Settings
	runID    string
	flush    func()
}

// NewRootCommand builds the tableflow command tree.
func NewRootCommand() *cobra.Command {
	a := &app{flush: func() {}}

	cmd := &cobra.Command{
		Use:           "tableflow",
		Short:         "Load delimited files into SQL and materialize declarative pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.settings.load(cmd.Flags()); err != nil {
				return err
			}
			a.runID = uuid.NewString()
			flush, err := setupMetrics(&a.settings, a.settings.Job, a.runID)
			if err != nil {
				return &ExitError{Code: ExitValidation, Err: err}
			}
			a.flush = flush
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.flush()
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("store", "sqlite", "store kind (sqlite, postgres, mssql, mysql)")
	pf.String("dsn", "tableflow.db", "store connection string")
	pf.String("job", "tableflow", "job label for metrics and logs")
	pf.Int("batch-size", 0, "rows per insert transaction (0 = default)")
	pf.Int("page-size", 0, "rows per normalize page (0 = default)")
	pf.Int64("progress-every", 0, "progress cadence in records (0 = default)")
	pf.String("metrics-backend", "none", "metrics backend (none, pushgateway, datadog)")
	pf.String("pushgateway-url", "http://localhost:9091", "Pushgateway base URL")
	pf.String("dogstatsd-addr", "127.0.0.1:8125", "DogStatsD address")

	cmd.AddCommand(
		newSniffCommand(a),
		newLoadCommand(a),
		newNormalizeCommand(a),
		newPlanCommand(a),
		newRunCommand(a),
		newColumnsCommand(a),
		newQueryCommand(a),
	)
	return cmd
}

// context returns a context cancelled on interrupt.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

func (a *app) progress() progress.Reporter {
	return progress.Multi{progress.Log{}, progress.Metrics{Job: a.settings.Job}}
}
