package main

import (
	"context"

	"github.com/rohits-web03/todo-api/internal/config"
	"github.com/rohits-web03/todo-api/internal/logger"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema (postgres) or indexes (mongo) and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Envs
		log := logger.New(cfg.LogLevel, cfg.Environment)
		defer func() { _ = log.Sync() }()

		store, err := openStorage(cmd.Context(), cfg, log, true)
		if err != nil {
			return err
		}
		return store.Close(context.Background())
	},
}
