// Command kakeiboctl administers the household ledger: schema migrations,
// seeding, balances and draw attempt recovery.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kakeibo/internal/backend"
	"kakeibo/internal/cli"
	"kakeibo/internal/config"
	"kakeibo/internal/log"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	dbPath  string
	backend string
	verbose bool
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "kakeiboctl",
		Short:        "Administer the kakeibo household ledger",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides SQLITE_DB_PATH)")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "",
		fmt.Sprintf("data backend, one of %s (overrides DATA_BACKEND)", strings.Join(backend.GetBackendTypeStrings(), ", ")))
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "deadline for the whole command")

	root.AddCommand(
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newBalanceCmd(opts),
		newAttemptsCmd(opts),
		newRecoverCmd(opts),
	)
	return root
}

// load reads the environment, applies the flag overrides and returns a
// logger writing to the command's stderr.
func (o *options) load(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if o.dbPath != "" {
		cfg.SQLiteDBPath = o.dbPath
	}
	if o.backend != "" {
		cfg.DataBackend = o.backend
	}

	lc := log.DefaultConfig()
	lc.Format = log.FormatTint
	lc.Level = slog.LevelWarn
	if o.verbose {
		lc.Level = slog.LevelDebug
	}
	lc.Output = cmd.ErrOrStderr()
	lc.Component = log.ComponentCLI
	return cfg, log.New(lc), nil
}

// withApp runs fn against a freshly built service graph.
func (o *options) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *cli.App) error) error {
	cfg, logger, err := o.load(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Warn("Cleanup failed", log.FieldError, cerr)
		}
	}()
	return fn(ctx, app)
}

func requireSQLite(cfg *config.Config) error {
	if cfg.DataBackend != backend.SQLiteBackend.String() {
		return fmt.Errorf("%s backend has no schema, use --backend sqlite", cfg.DataBackend)
	}
	return nil
}
