package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "token-backtest-lab/internal/storage/clickhouse"
)

const chVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version     String,
    applied_at  DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(applied_at)
ORDER BY version`

// RunClickhouseMigrations creates the DSN's database if needed and applies
// embedded migrations not yet recorded in schema_migrations. ClickHouse has
// no DDL transactions: a failed migration leaves its earlier statements in
// place and is retried from the start on the next run, so every statement
// must be idempotent. Returns the versions applied by this call.
func RunClickhouseMigrations(ctx context.Context, dsn string) ([]string, error) {
	all, err := Load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}

	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := createDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	defer conn.Close()

	if err := conn.Exec(ctx, chVersionTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := clickhouseVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range pending(all, done) {
		for _, stmt := range m.Statements {
			if err := conn.Exec(ctx, stmt); err != nil {
				return applied, fmt.Errorf("apply migration %s: %w", m.Version, err)
			}
		}
		if err := conn.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			return applied, fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func createDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

func clickhouseVersions(ctx context.Context, conn *chstore.Conn) (map[string]struct{}, error) {
	rows, err := conn.Query(ctx, "SELECT version FROM schema_migrations FINAL")
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return versionSet(versions), nil
}

// databaseFromDSN returns the database path segment of a clickhouse:// DSN.
func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
