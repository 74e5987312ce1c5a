package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// @title Todo Backend API
// @version 1.0.0
// @description Todo and user CRUD API with validation, due-date tracking and cookie sessions.
// @host localhost:5000
// @BasePath /

var rootCmd = &cobra.Command{
	Use:   "todo-api",
	Short: "Todo and user API server",
	Long: `Serves the todo and user HTTP API backed by Postgres, MongoDB or memory.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
