package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

func newMigrateCmd() *cobra.Command {
	var dbType, dbURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands for the sql checkpoint store",
		Example: `  agentrelay migrate up
  agentrelay migrate up --config /etc/agentrelay/config.yaml
  agentrelay migrate status
  agentrelay migrate goto 1
  agentrelay migrate up --db-type sqlite --db-url "file:./agentrelay.db"`,
	}
	cmd.PersistentFlags().StringVar(&dbType, "db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	cmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "Database connection URL (default: from config)")

	run := func(name string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			migrator, err := createMigrator(cmd, dbType, dbURL)
			if err != nil {
				return fmt.Errorf("failed to create migrator: %w", err)
			}
			defer migrator.Close()

			cli := migration.NewCLI(migrator)
			cli.SetOutput(cmd.OutOrStdout())
			return cli.Run(cmd.Context(), name, args...)
		}
	}

	for _, action := range migration.Actions() {
		sub := &cobra.Command{
			Use:   action.Name,
			Short: action.Short,
			Args:  cobra.ExactArgs(action.Args),
			RunE:  run(action.Name),
		}
		if action.Args == 1 {
			sub.Use += " <n>"
		}
		// down-all 保留旧名 reset
		if action.Name == "down-all" {
			sub.Aliases = []string{"reset"}
		}
		cmd.AddCommand(sub)
	}
	return cmd
}

// createMigrator creates a migrator from command line flags, falling back
// to the database section of the configuration.
func createMigrator(cmd *cobra.Command, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	logger := zap.NewNop()

	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL, logger)
	}

	// 迁移不需要完整校验，只读取 database 段
	loader := config.NewLoader()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger = cliLogger(cfg.Log)

	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}
