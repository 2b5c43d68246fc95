// Package migrations embeds and applies the SQL schema for the durable backends.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strings"

	chstore "airdrop-optimizer/internal/storage/clickhouse"
	"airdrop-optimizer/internal/storage/postgres"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// ApplyPostgres runs every embedded postgres file in name order.
// Files use IF NOT EXISTS so reapplying is harmless.
func ApplyPostgres(ctx context.Context, pool *postgres.Pool) error {
	files, err := sqlFiles(postgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, f := range files {
		if strings.TrimSpace(f.body) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, f.body); err != nil {
			return fmt.Errorf("apply %s: %w", f.name, err)
		}
	}
	return nil
}

// ApplyClickhouse creates the DSN's database if needed, applies the trade
// schema and hands back a connection bound to that database.
func ApplyClickhouse(ctx context.Context, dsn string) (*chstore.Conn, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	database := strings.TrimPrefix(u.Path, "/")
	if database == "" {
		return nil, fmt.Errorf("clickhouse dsn has no database")
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse: %w", err)
	}
	err = admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+database)
	admin.Close()
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", database, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, database)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse %s: %w", database, err)
	}

	files, err := sqlFiles(clickhouseFS, "clickhouse")
	if err != nil {
		conn.Close()
		return nil, err
	}
	for _, f := range files {
		stmts, err := Statements(f.body)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		// The native driver takes one statement per Exec.
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply %s: %w", f.name, err)
			}
		}
	}
	return conn, nil
}

type sqlFile struct {
	name string
	body string
}

func sqlFiles(fsys fs.FS, dir string) ([]sqlFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	files := make([]sqlFile, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		files = append(files, sqlFile{name: name, body: string(data)})
	}
	return files, nil
}

// Statements drops "--" comment lines and splits on semicolons.
// A semicolon inside a quoted literal is rejected rather than mis-split.
func Statements(sql string) ([]string, error) {
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return nil, fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}

	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts, nil
}
