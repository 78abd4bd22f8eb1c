// Package report renders case verdicts for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pagecheck/runner"
	"github.com/olekukonko/tablewriter"
)

// maxContentLen limits how much of the last seen content is printed in the table output. JSON output is never
// truncated.
const maxContentLen = 2000

type CaseReport struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Target   string          `json:"target"`
	Status   string          `json:"status"`
	Error    string          `json:"error,omitempty"`
	Elapsed  Duration        `json:"elapsed"`
	Failures []FailureReport `json:"failures"`
}

type FailureReport struct {
	Assertion       string   `json:"assertion"`
	Predicate       string   `json:"predicate"`
	LastSeenContent string   `json:"lastSeenContent"`
	Elapsed         Duration `json:"elapsed"`
	Error           string   `json:"error,omitempty"`
}

// Duration marshals to JSON as a Go duration string such as "1.5s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	err := json.Unmarshal(data, &s)
	if err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)

	return nil
}

func NewCaseReport(cv *runner.CaseVerdict) CaseReport {
	cr := CaseReport{
		ID:       cv.ID.String(),
		Name:     cv.Name,
		Target:   cv.Target,
		Status:   cv.Status.String(),
		Elapsed:  Duration(cv.Elapsed),
		Failures: make([]FailureReport, 0, len(cv.Failures)),
	}
	if cv.Cause != nil {
		cr.Error = cv.Cause.Error()
	}

	for _, f := range cv.Failures {
		fr := FailureReport{
			Assertion:       f.Assertion,
			Predicate:       f.Predicate,
			LastSeenContent: f.LastSeenContent,
			Elapsed:         Duration(f.Elapsed),
		}
		if f.Err != nil {
			fr.Error = f.Err.Error()
		}
		cr.Failures = append(cr.Failures, fr)
	}

	return cr
}

// WriteJSON writes verdicts to w as a JSON array of CaseReport.
func WriteJSON(w io.Writer, verdicts []*runner.CaseVerdict) error {
	reports := make([]CaseReport, 0, len(verdicts))
	for _, cv := range verdicts {
		reports = append(reports, NewCaseReport(cv))
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(reports)
}

// WriteTable writes a summary table of verdicts to w followed by the details of every failure.
func WriteTable(w io.Writer, verdicts []*runner.CaseVerdict) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Case", "Target", "Status", "Assertions", "Elapsed"})

	passed := 0
	for _, cv := range verdicts {
		if cv.Passed() {
			passed++
		}
		table.Append([]string{
			cv.Name,
			cv.Target,
			strings.ToUpper(cv.Status.String()),
			fmt.Sprintf("%d/%d", len(cv.Verdicts)-len(cv.Failures), len(cv.Verdicts)),
			cv.Elapsed.Round(time.Millisecond).String(),
		})
	}
	table.Render()

	_, err := fmt.Fprintf(w, "\n%d of %d cases passed\n", passed, len(verdicts))
	if err != nil {
		return err
	}

	for _, cv := range verdicts {
		if cv.Passed() {
			continue
		}

		_, err := fmt.Fprintf(w, "\nFAILED %s (%s)\n", cv.Name, cv.Target)
		if err != nil {
			return err
		}

		if cv.Cause != nil {
			_, err := fmt.Fprintf(w, "  error: %v\n", cv.Cause)
			if err != nil {
				return err
			}
		}

		for _, f := range cv.Failures {
			_, err := fmt.Fprintf(w, "  %s: not satisfied after %v\n  last seen content:\n%s\n",
				f.Predicate,
				f.Elapsed.Round(time.Millisecond),
				indent(truncate(f.LastSeenContent, maxContentLen), "    "),
			)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// ExitCode returns 0 if every case passed and 1 otherwise.
func ExitCode(verdicts []*runner.CaseVerdict) int {
	for _, cv := range verdicts {
		if !cv.Passed() {
			return 1
		}
	}
	return 0
}

// truncate shortens s to at most n bytes without splitting a UTF-8 encoded rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func indent(s, prefix string) string {
	if s == "" {
		return prefix + "(empty)"
	}
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
