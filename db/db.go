// Package db stores the history of case runs in PostgreSQL.
package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pagecheck/runner"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype/zeronull"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgxutil"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates the tables used to record case runs. It is safe to run more than once.
func Migrate(ctx context.Context, db pgxutil.DB) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}

		_, err = db.Exec(ctx, string(sql))
		if err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}

	return nil
}

// Connect returns a connection pool for databaseURL. An empty databaseURL uses the standard PG* environment variables.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	dbpool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return dbpool, nil
}

// RecordCaseVerdict stores cv and the verdict of each assertion it evaluated.
func RecordCaseVerdict(ctx context.Context, db pgxutil.DB, cv *runner.CaseVerdict) error {
	var caseErr zeronull.Text
	if err := cv.Err(); err != nil {
		caseErr = zeronull.Text(err.Error())
	}

	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		err := pgxutil.InsertRow(ctx, tx, "case_runs", map[string]any{
			"id":         cv.ID,
			"name":       cv.Name,
			"target":     cv.Target,
			"status":     cv.Status.String(),
			"error":      caseErr,
			"started_at": cv.StartedAt,
			"elapsed":    cv.Elapsed,
		})
		if err != nil {
			return fmt.Errorf("insert case run: %w", err)
		}

		for i, v := range cv.Verdicts {
			err := pgxutil.InsertRow(ctx, tx, "assertion_results", map[string]any{
				"case_run_id":       cv.ID,
				"position":          i,
				"name":              zeronull.Text(v.Name),
				"predicate":         v.Predicate,
				"status":            v.Status.String(),
				"elapsed":           v.Elapsed,
				"samples":           v.Samples,
				"last_seen_content": v.LastSeenContent,
			})
			if err != nil {
				return fmt.Errorf("insert assertion result %d: %w", i, err)
			}
		}

		return nil
	})
}

type CaseRun struct {
	ID         uuid.UUID
	Name       string
	Target     string
	Status     string
	Error      zeronull.Text
	StartedAt  time.Time
	Elapsed    time.Duration
	Assertions int32
	Failures   int32
}

// RecentCaseRuns returns up to limit case runs, most recent first.
func RecentCaseRuns(ctx context.Context, db pgxutil.DB, limit int) ([]*CaseRun, error) {
	return pgxutil.Select(ctx, db,
		`select case_runs.id, case_runs.name, case_runs.target, case_runs.status, case_runs.error, case_runs.started_at, case_runs.elapsed,
	count(assertion_results.position)::int4,
	count(assertion_results.position) filter (where assertion_results.status <> 'passed')::int4
from case_runs
	left join assertion_results on assertion_results.case_run_id = case_runs.id
group by case_runs.id
order by case_runs.started_at desc
limit $1`,
		[]any{limit},
		pgx.RowToAddrOfStructByPos[CaseRun],
	)
}
