// Package cmd implements the pagecheck command line interface.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jackc/envconf"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pagecheck",
	Short: "Check that web pages eventually show expected content",

	SilenceUsage: true,
}

// Execute runs the root command. It exits the process with status 1 if the command fails.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// envconfLong builds a command's long description from summary and the environment variables it reads.
func envconfLong(summary string, items []envconf.Item) string {
	long := &strings.Builder{}
	long.WriteString(summary)
	long.WriteString("\n\nConfigure with the following environment variables:\n\n")
	for _, item := range items {
		long.WriteString(fmt.Sprintf("  %s\n    Default: %s\n    %s\n\n", item.Name, item.Default, item.Description))
	}
	return long.String()
}
