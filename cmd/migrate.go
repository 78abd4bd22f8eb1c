package cmd

import (
	"context"
	"time"

	"github.com/jackc/envconf"
	"github.com/jackc/pagecheck/db"
	"github.com/spf13/cobra"
)

var migrateEnvconf = envconf.New()

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the tables used to record case runs",
	Args:  cobra.NoArgs,

	Run: func(cmd *cobra.Command, args []string) {
		logger := setupLogger("console", parseLogLevel(false))
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		dbpool := setupPGXConnPool(ctx, migrateEnvconf.Value("DATABASE_URL"), logger)
		defer dbpool.Close()

		err := db.Migrate(ctx, dbpool)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate database")
		}

		logger.Info().Msg("Database migrated")
	},
}

func init() {
	migrateEnvconf.Register(envconf.Item{Name: "DATABASE_URL", Default: "", Description: "The PostgreSQL connection string"})

	migrateCmd.Long = envconfLong("Create the tables used to record case runs. It is safe to run more than once.", migrateEnvconf.Items())

	rootCmd.AddCommand(migrateCmd)
}
