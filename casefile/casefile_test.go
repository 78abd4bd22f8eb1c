package casefile_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pagecheck/casefile"
	"github.com/jackc/pagecheck/runner"
	"github.com/stretchr/testify/require"
)

const exampleCaseFile = `
defaults:
  deadline: 4s
  pollInterval: 50ms
  failurePolicy: fail-fast
  navigationTimeout: 20s
cases:
  - name: frontend shows backend status
    target: http://localhost:3000
    failurePolicy: fail-accumulate
    assertions:
      - contains: DevOps Assignment
      - name: status
        contains: "Status: Backend is connected!"
        deadline: 10s
        pollInterval: 100ms
      - matches: "successfully integrated the \\w+"
  - name: health endpoint
    target: https://example.com/api/health
    navigationTimeout: 5s
    assertions:
      - contains: healthy
`

func TestParse(t *testing.T) {
	suite, err := casefile.Parse([]byte(exampleCaseFile))
	require.NoError(t, err)

	require.Equal(t, 4*time.Second, suite.DefaultDeadline)
	require.Equal(t, 50*time.Millisecond, suite.DefaultPollInterval)
	require.Equal(t, 20*time.Second, suite.NavigationTimeout)
	require.NotNil(t, suite.FailurePolicy)
	require.Equal(t, runner.FailFast, *suite.FailurePolicy)

	require.Len(t, suite.Cases, 2)

	c := suite.Cases[0]
	require.Equal(t, "frontend shows backend status", c.Name)
	require.Equal(t, "http://localhost:3000", c.Target)
	require.NotNil(t, c.FailurePolicy)
	require.Equal(t, runner.FailAccumulate, *c.FailurePolicy)
	require.Len(t, c.Assertions, 3)

	require.Equal(t, `contains "DevOps Assignment"`, c.Assertions[0].Predicate.Description)
	require.Zero(t, c.Assertions[0].Deadline)
	require.Zero(t, c.Assertions[0].PollInterval)

	require.Equal(t, "status", c.Assertions[1].Name)
	require.Equal(t, 10*time.Second, c.Assertions[1].Deadline)
	require.Equal(t, 100*time.Millisecond, c.Assertions[1].PollInterval)
	require.True(t, c.Assertions[1].Predicate.Match("Status: Backend is connected!"))

	require.Equal(t, `matches /successfully integrated the \w+/`, c.Assertions[2].Predicate.Description)
	require.True(t, c.Assertions[2].Predicate.Match("You've successfully integrated the backend!"))

	c = suite.Cases[1]
	require.Nil(t, c.FailurePolicy)
	require.Equal(t, 5*time.Second, c.NavigationTimeout)
}

func TestSuiteApply(t *testing.T) {
	policy := runner.FailAccumulate
	suite := &casefile.Suite{DefaultDeadline: 10 * time.Second, FailurePolicy: &policy}

	config := suite.Apply(runner.Config{DefaultDeadline: time.Second, DefaultPollInterval: 20 * time.Millisecond})
	require.Equal(t, runner.Config{
		DefaultDeadline:     10 * time.Second,
		DefaultPollInterval: 20 * time.Millisecond,
		FailurePolicy:       runner.FailAccumulate,
	}, config)

	config = (&casefile.Suite{}).Apply(runner.Config{FailurePolicy: runner.FailAccumulate})
	require.Equal(t, runner.FailAccumulate, config.FailurePolicy)
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		testName string
		yaml     string
		errStr   string
	}{
		{
			testName: "no cases",
			yaml:     "defaults:\n  deadline: 1s\n",
			errStr:   "no cases defined",
		},
		{
			testName: "missing name",
			yaml:     "cases:\n  - target: http://localhost:3000\n    assertions:\n      - contains: x\n",
			errStr:   "case 0: name is required",
		},
		{
			testName: "relative target",
			yaml:     "cases:\n  - name: a\n    target: /status\n    assertions:\n      - contains: x\n",
			errStr:   `case 0: a: target "/status" must be an absolute http or https URL`,
		},
		{
			testName: "no assertions",
			yaml:     "cases:\n  - name: a\n    target: http://localhost:3000\n",
			errStr:   "case 0: a: at least one assertion is required",
		},
		{
			testName: "no predicate",
			yaml:     "cases:\n  - name: a\n    target: http://localhost:3000\n    assertions:\n      - deadline: 1s\n",
			errStr:   "case 0: a: assertion 0: one of contains or matches is required",
		},
		{
			testName: "both predicates",
			yaml:     "cases:\n  - name: a\n    target: http://localhost:3000\n    assertions:\n      - contains: x\n        matches: y\n",
			errStr:   "case 0: a: assertion 0: only one of contains and matches may be set",
		},
		{
			testName: "negative deadline",
			yaml:     "cases:\n  - name: a\n    target: http://localhost:3000\n    assertions:\n      - contains: x\n        deadline: -1s\n",
			errStr:   "case 0: a: assertion 0: deadline must not be negative, got -1s",
		},
		{
			testName: "duplicate names",
			yaml:     "cases:\n  - name: a\n    target: http://localhost:3000\n    assertions:\n      - contains: x\n  - name: a\n    target: http://localhost:3000\n    assertions:\n      - contains: y\n",
			errStr:   `case 1: duplicate name "a"`,
		},
		{
			testName: "unknown policy",
			yaml:     "defaults:\n  failurePolicy: sometimes\ncases:\n  - name: a\n    target: http://localhost:3000\n    assertions:\n      - contains: x\n",
			errStr:   `defaults: unknown failure policy "sometimes": must be fail-fast or fail-accumulate`,
		},
	} {
		t.Run(tc.testName, func(t *testing.T) {
			_, err := casefile.Parse([]byte(tc.yaml))
			require.EqualError(t, err, tc.errStr)
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := casefile.Parse([]byte("cases:\n  - name: a\n    target: http://localhost:3000\n    assertions:\n      - containz: x\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "containz")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.yaml")
	err := os.WriteFile(path, []byte(exampleCaseFile), 0644)
	require.NoError(t, err)

	suite, err := casefile.Load(path)
	require.NoError(t, err)
	require.Len(t, suite.Cases, 2)

	_, err = casefile.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
