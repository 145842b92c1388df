package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/ironlog/internal/store/pg"
	migrations "github.com/dropDatabas3/ironlog/migrations/postgres"
)

func newMigrateCmd(rf *rootFlags) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migraciones de Postgres",
	}
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Aplica las migraciones pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rf)
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Storage.DSN) == "" {
				return fmt.Errorf("storage.dsn vacío (env STORAGE_DSN)")
			}
			ctx := context.Background()
			db, err := pg.Open(ctx, cfg.Storage.DSN, pg.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := pg.MigrateUp(ctx, db, migrations.FS)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "sin migraciones pendientes")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "aplicada:", name)
			}
			return nil
		},
	}
	migrateCmd.AddCommand(upCmd)
	return migrateCmd
}
