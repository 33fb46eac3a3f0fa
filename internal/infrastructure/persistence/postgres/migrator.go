package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// migrationLockKey serializes concurrent migrators (portal and portalctl
// starting together) through pg_advisory_xact_lock.
const migrationLockKey = 7_160_204

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded schema.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator over the portal schema.
func NewMigrator(conn *Connection) *Migrator {
	return NewMigratorWithMigrations(conn, GetMigrations())
}

// NewMigratorWithMigrations creates a migrator with custom migrations.
func NewMigratorWithMigrations(conn *Connection, migrations []Migration) *Migrator {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	return &Migrator{
		conn:       conn,
		migrations: sorted,
		tableName:  "schema_migrations",
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context, q Querier) (map[int]time.Time, error) {
	rows, err := q.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[version] = at
	}
	return out, rows.Err()
}

// Up applies every pending migration in version order and returns how many
// ran. Each migration commits on its own.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range m.migrations {
		if mig.UpSQL == "" {
			return ran, fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		var skipped bool
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
				return err
			}
			done, err := m.applied(ctx, tx)
			if err != nil {
				return err
			}
			if _, ok := done[mig.Version]; ok {
				skipped = true
				return nil
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		if !skipped {
			ran++
		}
	}
	return ran, nil
}

// Down rolls back the newest applied migration. It returns the rolled back
// version, or 0 when nothing was applied.
func (m *Migrator) Down(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}

	var version int
	err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
			return err
		}
		done, err := m.applied(ctx, tx)
		if err != nil {
			return err
		}
		for v := range done {
			if v > version {
				version = v
			}
		}
		if version == 0 {
			return nil
		}

		var down string
		for _, mig := range m.migrations {
			if mig.Version == version {
				down = mig.DownSQL
			}
		}
		if down == "" {
			return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, version)
		}
		if _, err := tx.Exec(ctx, down); err != nil {
			return fmt.Errorf("failed to roll back migration %d: %w", version, err)
		}
		_, err = tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), version)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Status lists every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx, m.conn)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}
