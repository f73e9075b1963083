package migrations

import (
	"context"
	"fmt"

	"solana-counterparty-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded PostgreSQL migrations.
// Migrations are idempotent (CREATE ... IF NOT EXISTS), so this runs on every startup.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	migrations, err := Postgres()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
	}
	return nil
}
