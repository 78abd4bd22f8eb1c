package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pagecheck/runner"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestCheckConfigFromEnv(t *testing.T) {
	config, err := checkConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, runner.Config{
		DefaultDeadline:     runner.DefaultDeadline,
		DefaultPollInterval: runner.DefaultPollInterval,
		NavigationTimeout:   runner.DefaultNavigationTimeout,
		FailurePolicy:       runner.FailFast,
	}, config)

	t.Setenv("PAGECHECK_DEADLINE", "10s")
	t.Setenv("PAGECHECK_POLL_INTERVAL", "250ms")
	t.Setenv("PAGECHECK_FAILURE_POLICY", "fail-accumulate")
	config, err = checkConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, config.DefaultDeadline)
	require.Equal(t, 250*time.Millisecond, config.DefaultPollInterval)
	require.Equal(t, runner.FailAccumulate, config.FailurePolicy)

	t.Setenv("PAGECHECK_POLL_INTERVAL", "often")
	_, err = checkConfigFromEnv()
	require.ErrorContains(t, err, "PAGECHECK_POLL_INTERVAL")
}

func newCheckCasesCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{}
	cmd.Flags().String("file", "", "")
	cmd.Flags().String("url", "http://localhost:3000", "")
	cmd.Flags().StringArray("contains", nil, "")
	require.NoError(t, cmd.Flags().Parse(args))

	return cmd
}

func TestCheckCases(t *testing.T) {
	config := runner.Config{DefaultDeadline: time.Second}

	cases, got, err := checkCases(newCheckCasesCommand(t), config)
	require.NoError(t, err)
	require.Equal(t, config, got)
	require.Len(t, cases, 1)
	require.Equal(t, "http://localhost:3000", cases[0].Target)
	require.Len(t, cases[0].Assertions, len(defaultContains))
	for i, a := range cases[0].Assertions {
		require.True(t, a.Predicate.Match("> "+defaultContains[i]+" <"))
	}

	cases, _, err = checkCases(newCheckCasesCommand(t, "--url", "http://example.com/status", "--contains", "ok", "--contains", "ready"), config)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, "http://example.com/status", cases[0].Target)
	require.Len(t, cases[0].Assertions, 2)

	_, _, err = checkCases(newCheckCasesCommand(t, "--url", "localhost"), config)
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "cases.yaml")
	err = os.WriteFile(path, []byte(`
defaults:
  deadline: 2s
cases:
  - name: status
    target: http://localhost:3000
    assertions:
      - contains: DevOps Assignment
`), 0644)
	require.NoError(t, err)

	cases, got, err = checkCases(newCheckCasesCommand(t, "--file", path), config)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, got.DefaultDeadline)
	require.Len(t, cases, 1)
	require.Equal(t, "status", cases[0].Name)
}

func TestFirstLine(t *testing.T) {
	require.Equal(t, "", firstLine(""))
	require.Equal(t, "one", firstLine("one"))
	require.Equal(t, "one ...", firstLine("one\ntwo"))
}

func TestRecordVerdictsReturnsConnectError(t *testing.T) {
	verdicts := []*runner.CaseVerdict{
		{ID: uuid.Must(uuid.NewV7()), Name: "status", Target: "http://localhost:3000", Status: runner.CasePassed},
	}

	err := recordVerdicts(context.Background(), "postgres://%zz/pagecheck", verdicts)
	require.ErrorContains(t, err, "parse database URL")
}

func TestWriteReport(t *testing.T) {
	verdicts := []*runner.CaseVerdict{
		{ID: uuid.Must(uuid.NewV7()), Name: "status", Target: "http://localhost:3000", Status: runner.CasePassed},
	}

	for i, tt := range []struct {
		testName string
		format   string
		contains string
	}{
		{"table", "table", "1 of 1 cases passed"},
		{"json", "json", `"status": "passed"`},
	} {
		t.Run(tt.testName, func(t *testing.T) {
			buf := &bytes.Buffer{}
			err := writeReport(buf, tt.format, verdicts)
			require.NoErrorf(t, err, "%d", i)
			require.Containsf(t, buf.String(), tt.contains, "%d", i)
		})
	}

	err := writeReport(&bytes.Buffer{}, "jsn", verdicts)
	require.ErrorContains(t, err, `unknown report format "jsn"`)
}

func TestRunCheckRejectsUnknownFormat(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("log-format", "console", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().String("format", "table", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--format", "jsn"}))

	require.Equal(t, 2, runCheck(cmd))
}
