package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pagecheck/test/testutil"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "setup_test_databases",
	Short: "Creates the template and pooled test databases used by testdb",
	Long: `Creates the template and pooled test databases used by testdb.

The administrative connection and the template database use the standard PG* environment variables. TEST_PGDATABASE
overrides the template database name, which must end with _test. TEST_DATABASE_COUNT sets the number of pooled
databases and defaults to the number of CPUs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		ctx := context.Background()

		templateConfig, err := pgx.ParseConfig("")
		if err != nil {
			return fmt.Errorf("parse test database config: %w", err)
		}
		if testPGDatabase := os.Getenv("TEST_PGDATABASE"); testPGDatabase != "" {
			templateConfig.Database = testPGDatabase
		}

		count, err := testutil.DatabaseCount()
		if err != nil {
			return err
		}
		names := testutil.DatabaseNames(templateConfig.Database, count)

		adminConn, err := pgx.Connect(ctx, "")
		if err != nil {
			return fmt.Errorf("connect to development database: %w", err)
		}
		defer adminConn.Close(ctx)

		err = testutil.CreateTemplateDatabase(ctx, adminConn, templateConfig, names)
		if err != nil {
			return err
		}

		err = testutil.CloneTemplateDatabase(ctx, adminConn, templateConfig.Database, names)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created %s and %d test databases\n", templateConfig.Database, len(names))
		return nil
	},
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
