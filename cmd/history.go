package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/envconf"
	"github.com/jackc/pagecheck/db"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var historyEnvconf = envconf.New()

// historyCmd represents the history command.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently recorded case runs",
	Args:  cobra.NoArgs,

	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		logger := setupLogger("console", parseLogLevel(false))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		dbpool := setupPGXConnPool(ctx, historyEnvconf.Value("DATABASE_URL"), logger)
		defer dbpool.Close()

		runs, err := db.RecentCaseRuns(ctx, dbpool, limit)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to read case runs")
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Started", "Case", "Target", "Status", "Assertions", "Elapsed", "Error"})
		table.SetAutoWrapText(false)
		for _, run := range runs {
			table.Append([]string{
				run.StartedAt.Local().Format(time.DateTime),
				run.Name,
				run.Target,
				strings.ToUpper(run.Status),
				fmt.Sprintf("%d/%d", run.Assertions-run.Failures, run.Assertions),
				run.Elapsed.Round(time.Millisecond).String(),
				firstLine(string(run.Error)),
			})
		}
		table.Render()
	},
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func init() {
	historyEnvconf.Register(envconf.Item{Name: "DATABASE_URL", Default: "", Description: "The PostgreSQL connection string"})

	historyCmd.Long = envconfLong("Show recently recorded case runs, most recent first.", historyEnvconf.Items())
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show.")

	rootCmd.AddCommand(historyCmd)
}
