package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kakeibo/internal/backend"
	"kakeibo/internal/seed"
	"kakeibo/internal/storage"
)

func newMigrateCmd(opts *options) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations, or roll back with --down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := requireSQLite(cfg); err != nil {
				return err
			}

			if down > 0 {
				if err := storage.RollbackMigrations(cfg.SQLiteDBPath, down); err != nil {
					return err
				}
			} else if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
				return err
			}
			return printVersion(cmd, cfg.SQLiteDBPath)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "number of migrations to roll back")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := requireSQLite(cfg); err != nil {
				return err
			}
			return printVersion(cmd, cfg.SQLiteDBPath)
		},
	})
	return cmd
}

func printVersion(cmd *cobra.Command, dbPath string) error {
	version, dirty, err := storage.MigrationVersion(dbPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if dirty {
		fmt.Fprintf(out, "schema version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(out, "schema version %d\n", version)
	return nil
}

func newSeedCmd(opts *options) *cobra.Command {
	var (
		file  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the master data, prizes, budgets and assignees",
		Long: `Load the seed catalog into the SQLite store.

Without --file the embedded default catalog is used. A store that already
holds a catalog is left alone unless --force is given; forcing replaces the
chore taxonomy and upserts prizes, budgets and assignees.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := requireSQLite(cfg); err != nil {
				return err
			}

			repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			ctx := cmd.Context()
			if !force {
				seeded, err := repo.Seeded(ctx)
				if err != nil {
					return err
				}
				if seeded {
					fmt.Fprintln(cmd.OutOrStdout(), "already seeded, use --force to reload")
					return nil
				}
				if err := backend.EnsureSeeded(ctx, repo, file, logger); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "seeded")
				return nil
			}

			catalog, err := seed.Load(file)
			if err != nil {
				return fmt.Errorf("load seed catalog: %w", err)
			}
			if err := repo.Seed(ctx, catalog); err != nil {
				return fmt.Errorf("seed store: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories, %d prizes, %d assignees\n",
				len(catalog.Categories), len(catalog.Prizes), len(catalog.Assignees))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML seed catalog (defaults to the embedded one)")
	cmd.Flags().BoolVar(&force, "force", false, "reload even when the store is already seeded")
	return cmd
}
