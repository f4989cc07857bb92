package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_smoke_runs",
		SQL: `CREATE TABLE IF NOT EXISTS smoke_runs (
  id               TEXT        PRIMARY KEY,
  target_url       TEXT        NOT NULL,
  vus              INTEGER     NOT NULL CHECK (vus > 0),
  duration_ms      BIGINT      NOT NULL CHECK (duration_ms >= 0),
  requests         BIGINT      NOT NULL DEFAULT 0,
  failed_requests  BIGINT      NOT NULL DEFAULT 0,
  checks_passed    BIGINT      NOT NULL DEFAULT 0,
  checks_failed    BIGINT      NOT NULL DEFAULT 0,
  threshold_passed BOOLEAN     NOT NULL,
  report_path      TEXT        UNIQUE,
  started_at       TIMESTAMPTZ NOT NULL,
  ended_at         TIMESTAMPTZ NOT NULL,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_smoke_runs_started_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_smoke_runs_started_at ON smoke_runs (started_at DESC);`,
	},
	{
		Name: "create_index_smoke_runs_target_url",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_smoke_runs_target_url ON smoke_runs (target_url);`,
	},
}

// EnsureMigrated creates the run history schema when the smoke_runs table is missing.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	start := time.Now()
	log := logger.With(zap.String("component", "database"))

	var exists bool
	const query = "SELECT to_regclass('public.smoke_runs') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Debug("db_migration_skip", zap.String("reason", "schema already exists"))
		return nil
	}

	log.Info("db_migration_start", zap.Int("steps", len(steps)))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Duration("duration", time.Since(start)),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Debug("db_migration_step",
			zap.String("migration_step", step.Name),
			zap.Duration("step_duration", time.Since(stepStart)),
		)
	}

	log.Info("db_migration_success", zap.Duration("duration", time.Since(start)))
	return nil
}
