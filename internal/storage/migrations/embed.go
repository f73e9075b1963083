// Package migrations applies the embedded schema for the snapshot and run stores.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// PostgresFS embeds all PostgreSQL migration files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds all ClickHouse migration files.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// Migration is one SQL file.
type Migration struct {
	Name string
	SQL  string
}

// load returns the non-empty .sql files under dir in lexical order (001_, 002_, ...).
func load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		migrations = append(migrations, Migration{Name: name, SQL: string(data)})
	}
	return migrations, nil
}

// Postgres returns the PostgreSQL migrations in apply order.
func Postgres() ([]Migration, error) {
	return load(PostgresFS, "postgres")
}

// Clickhouse returns the ClickHouse migrations in apply order.
func Clickhouse() ([]Migration, error) {
	return load(ClickhouseFS, "clickhouse")
}
