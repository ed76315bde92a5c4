package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/posecapture/internal/db"
)

const defaultDBPath = "posecapture.db"

// resolveDBPath prefers the flag, then output_db from the config.
func resolveDBPath(ctx *commandContext, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	if p := cfg.GetOutputDB(); p != "" {
		return p, nil
	}
	return defaultDBPath, nil
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var dbPath string

	withDB := func(fn func(*db.DB) error) error {
		path, err := resolveDBPath(ctx, dbPath)
		if err != nil {
			return err
		}
		store, err := db.OpenDB(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer store.Close()
		return fn(store)
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session database schema",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default output_db or "+defaultDBPath+")")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(store *db.DB) error {
				if err := store.MigrateUp(); err != nil {
					return err
				}
				return printVersion(cmd, store)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(store *db.DB) error {
				if err := store.MigrateDown(); err != nil {
					return err
				}
				return printVersion(cmd, store)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(store *db.DB) error { return printVersion(cmd, store) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Force the schema version after a failed migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return withDB(func(store *db.DB) error {
				if err := store.MigrateForce(v); err != nil {
					return err
				}
				return printVersion(cmd, store)
			})
		},
	})
	return cmd
}

func printVersion(cmd *cobra.Command, store *db.DB) error {
	v, dirty, err := store.MigrateVersion()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", v, state)
	return err
}
