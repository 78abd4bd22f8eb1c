package testutil

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/jackc/pagecheck/db"
	"github.com/jackc/pgx/v5"
)

// DatabaseCount returns the number of databases testdb.Manager may hand out at once. It is TEST_DATABASE_COUNT or
// the number of CPUs.
func DatabaseCount() (int, error) {
	s := os.Getenv("TEST_DATABASE_COUNT")
	if s == "" {
		return runtime.NumCPU(), nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse TEST_DATABASE_COUNT: %w", err)
	}
	if n < 1 {
		return 0, fmt.Errorf("TEST_DATABASE_COUNT must be at least 1, got %d", n)
	}

	return n, nil
}

// DatabaseNames returns the names of the count databases cloned from template.
func DatabaseNames(template string, count int) []string {
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", template, i)
	}
	return names
}

// ValidateTemplateName returns an error unless name ends with _test. Template and test databases are dropped without
// asking.
func ValidateTemplateName(name string) error {
	if !strings.HasSuffix(name, "_test") {
		return fmt.Errorf("test database name %q must end with _test", name)
	}
	return nil
}

// CreateTemplateDatabase recreates the migrated template database described by templateConfig through adminConn and
// registers names as the databases testdb.Manager hands out.
func CreateTemplateDatabase(ctx context.Context, adminConn *pgx.Conn, templateConfig *pgx.ConnConfig, names []string) error {
	template := templateConfig.Database
	err := ValidateTemplateName(template)
	if err != nil {
		return err
	}

	err = recreateDatabase(ctx, adminConn, template, "")
	if err != nil {
		return err
	}

	conn, err := pgx.ConnectConfig(ctx, templateConfig)
	if err != nil {
		return fmt.Errorf("connect to test database: %w", err)
	}
	defer conn.Close(ctx)

	err = db.Migrate(ctx, conn)
	if err != nil {
		return fmt.Errorf("migrate test database: %w", err)
	}

	_, err = conn.Exec(ctx, `create schema testdb`)
	if err != nil {
		return fmt.Errorf("create testdb schema: %w", err)
	}

	_, err = conn.Exec(ctx, `create table testdb.databases (name text primary key, acquirer_pid int)`)
	if err != nil {
		return fmt.Errorf("create testdb.databases table: %w", err)
	}

	batch := &pgx.Batch{}
	for _, name := range names {
		batch.Queue(`insert into testdb.databases (name) values ($1)`, name)
	}
	err = conn.SendBatch(ctx, batch).Close()
	if err != nil {
		return fmt.Errorf("insert into testdb.databases: %w", err)
	}

	return nil
}

// CloneTemplateDatabase recreates each of names as a copy of template. No connection to template may be open.
func CloneTemplateDatabase(ctx context.Context, adminConn *pgx.Conn, template string, names []string) error {
	for _, name := range names {
		err := recreateDatabase(ctx, adminConn, name, template)
		if err != nil {
			return err
		}
	}
	return nil
}

func recreateDatabase(ctx context.Context, adminConn *pgx.Conn, name, template string) error {
	_, err := adminConn.Exec(ctx, fmt.Sprintf("drop database if exists %s with (force)", pgx.Identifier{name}.Sanitize()))
	if err != nil {
		return fmt.Errorf("drop test database %q: %w", name, err)
	}

	sql := fmt.Sprintf("create database %s", pgx.Identifier{name}.Sanitize())
	if template != "" {
		sql += fmt.Sprintf(" template = %s", pgx.Identifier{template}.Sanitize())
	}
	_, err = adminConn.Exec(ctx, sql)
	if err != nil {
		return fmt.Errorf("create test database %q: %w", name, err)
	}

	return nil
}
