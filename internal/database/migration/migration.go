package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_images",
		SQL: `CREATE TABLE IF NOT EXISTS images (
  id           UUID        PRIMARY KEY,
  owner_id     TEXT        NOT NULL,
  filename     TEXT        NOT NULL,
  storage_path TEXT        NOT NULL UNIQUE,
  size         BIGINT      NOT NULL CHECK (size >= 0),
  content_type TEXT        NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_images_owner_created",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_images_owner_created ON images (owner_id, created_at DESC);`,
	},
	{
		Name: "create_table_thumbnails",
		SQL: `CREATE TABLE IF NOT EXISTS thumbnails (
  id         UUID        PRIMARY KEY,
  image_id   UUID        NOT NULL REFERENCES images (id) ON DELETE CASCADE,
  width      INTEGER     NOT NULL CHECK (width > 0),
  height     INTEGER     NOT NULL CHECK (height > 0),
  status     TEXT        NOT NULL CHECK (status IN ('pending', 'ready', 'failed')),
  path       TEXT,
  error      TEXT,
  attempt    INTEGER     NOT NULL DEFAULT 1 CHECK (attempt >= 1),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (image_id, width, height),
  CHECK (status <> 'ready' OR path IS NOT NULL)
);`,
	},
	{
		Name: "create_index_thumbnails_pending",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_thumbnails_pending ON thumbnails (status) WHERE status = 'pending';`,
	},
}

// EnsureMigrated runs the schema steps unless the thumbnails table already exists.
func EnsureMigrated(ctx context.Context, db *sql.DB, dbHost string) error {
	start := time.Now()
	log := logrus.WithFields(logrus.Fields{
		"component": "database",
		"db_host":   dbHost,
	})

	log.WithField("event", "db_migration_check").Info("checking schema")

	var exists bool
	if err := db.QueryRowContext(ctx, "SELECT to_regclass('public.thumbnails') IS NOT NULL").Scan(&exists); err != nil {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_failed",
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(err).Error("failed to check sentinel table")
		return fmt.Errorf("check sentinel table: %w", err)
	}

	if exists {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_skip",
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("schema already exists, skipping migration")
		return nil
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.WithFields(logrus.Fields{
				"event":            "db_migration_failed",
				"migration_step":   step.Name,
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			}).WithError(err).Error("migration step failed")
			return fmt.Errorf("migration step %s: %w", step.Name, err)
		}
		log.WithFields(logrus.Fields{
			"event":            "db_migration_step",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		}).Info("migration step applied")
	}

	log.WithFields(logrus.Fields{
		"event":       "db_migration_success",
		"steps":       len(steps),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("schema migrated")
	return nil
}
