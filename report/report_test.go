package report_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pagecheck/eventually"
	"github.com/jackc/pagecheck/report"
	"github.com/jackc/pagecheck/runner"
	"github.com/stretchr/testify/require"
)

func passedVerdict() *runner.CaseVerdict {
	return &runner.CaseVerdict{
		ID:      uuid.Must(uuid.NewV7()),
		Name:    "frontend",
		Target:  "http://localhost:3000",
		Status:  runner.CasePassed,
		Elapsed: 230 * time.Millisecond,
		Verdicts: []eventually.Verdict{
			{Predicate: `contains "DevOps Assignment"`, Status: eventually.Passed},
		},
	}
}

func failedVerdict() *runner.CaseVerdict {
	return &runner.CaseVerdict{
		ID:      uuid.Must(uuid.NewV7()),
		Name:    "backend status",
		Target:  "http://localhost:3000",
		Status:  runner.CaseFailed,
		Elapsed: 600 * time.Millisecond,
		Verdicts: []eventually.Verdict{
			{Predicate: `contains "Backend is connected!"`, Status: eventually.TimedOut},
		},
		Failures: []runner.Failure{
			{
				Assertion:       `contains "Backend is connected!"`,
				Predicate:       `contains "Backend is connected!"`,
				LastSeenContent: "DevOps Assignment\nStatus: connecting...",
				Elapsed:         500 * time.Millisecond,
				Err:             fmt.Errorf("%w: test", eventually.ErrAssertionTimeout),
			},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	err := report.WriteJSON(buf, []*runner.CaseVerdict{passedVerdict(), failedVerdict()})
	require.NoError(t, err)

	var reports []report.CaseReport
	err = json.Unmarshal(buf.Bytes(), &reports)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	require.Equal(t, "passed", reports[0].Status)
	require.Empty(t, reports[0].Failures)

	require.Equal(t, "failed", reports[1].Status)
	require.Len(t, reports[1].Failures, 1)
	require.Equal(t, `contains "Backend is connected!"`, reports[1].Failures[0].Predicate)
	require.Equal(t, "DevOps Assignment\nStatus: connecting...", reports[1].Failures[0].LastSeenContent)
	require.Equal(t, report.Duration(500*time.Millisecond), reports[1].Failures[0].Elapsed)

	require.Contains(t, buf.String(), `"elapsed": "500ms"`)
	require.Contains(t, buf.String(), `"failures": []`)
}

func TestNewCaseReportIncludesCause(t *testing.T) {
	cv := &runner.CaseVerdict{
		Name:   "unreachable",
		Target: "http://localhost:1",
		Status: runner.CaseFailed,
		Cause:  fmt.Errorf("load http://localhost:1: %w: net::ERR_CONNECTION_REFUSED", runner.ErrNavigationError),
	}

	cr := report.NewCaseReport(cv)
	require.Equal(t, "failed", cr.Status)
	require.Equal(t, "load http://localhost:1: navigation failed: net::ERR_CONNECTION_REFUSED", cr.Error)
}

func TestWriteTable(t *testing.T) {
	buf := &bytes.Buffer{}
	err := report.WriteTable(buf, []*runner.CaseVerdict{passedVerdict(), failedVerdict()})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "frontend")
	require.Contains(t, out, "PASSED")
	require.Contains(t, out, "FAILED")
	require.Contains(t, out, "1 of 2 cases passed")
	require.Contains(t, out, "FAILED backend status (http://localhost:3000)")
	require.Contains(t, out, `contains "Backend is connected!": not satisfied after 500ms`)
	require.Contains(t, out, "    DevOps Assignment\n    Status: connecting...")
}

func TestWriteTableTruncatesOnRuneBoundary(t *testing.T) {
	cv := failedVerdict()
	// The 2000 byte limit falls inside the second byte of the first "é".
	cv.Failures[0].LastSeenContent = strings.Repeat("a", 1999) + strings.Repeat("é", 10)

	buf := &bytes.Buffer{}
	err := report.WriteTable(buf, []*runner.CaseVerdict{cv})
	require.NoError(t, err)

	out := buf.String()
	require.True(t, utf8.ValidString(out))
	require.Contains(t, out, strings.Repeat("a", 1999)+"...")
	require.NotContains(t, out, "é")
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, report.ExitCode(nil))
	require.Equal(t, 0, report.ExitCode([]*runner.CaseVerdict{passedVerdict()}))
	require.Equal(t, 1, report.ExitCode([]*runner.CaseVerdict{passedVerdict(), failedVerdict()}))
}
