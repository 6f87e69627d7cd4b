package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migrator applies the gradebook schema
type Migrator interface {
	Migrate(ctx context.Context, db *sql.DB) error
}

// SchemaMigrator applies idempotent CREATE ... IF NOT EXISTS statements for one driver
type SchemaMigrator struct {
	driver string
}

// NewSchemaMigrator creates a SchemaMigrator for a normalized driver name
func NewSchemaMigrator(driver string) *SchemaMigrator {
	return &SchemaMigrator{driver: driver}
}

// Migrate runs every schema statement in order
func (m *SchemaMigrator) Migrate(ctx context.Context, db *sql.DB) error {
	var schema string
	switch m.driver {
	case DriverMySQL:
		schema = schemaMySQL
	case DriverSQLite:
		schema = schemaSQLite
	default:
		return fmt.Errorf("unsupported driver %q (expected mysql/sqlite)", m.driver)
	}

	// The MySQL driver rejects multi-statement scripts unless asked to allow them.
	for _, stmt := range splitSQL(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed at: %s\nerror: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// splitSQL naively splits on ';' boundaries.
func splitSQL(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p+";")
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS grade_runs (
	id             TEXT PRIMARY KEY,
	submission     TEXT NOT NULL,
	score          INTEGER NOT NULL,
	max_score      INTEGER NOT NULL,
	execution_time REAL,
	created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_grade_runs_submission ON grade_runs (submission, created_at);

CREATE TABLE IF NOT EXISTS grade_groups (
	run_id    TEXT NOT NULL REFERENCES grade_runs (id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	name      TEXT NOT NULL,
	score     INTEGER NOT NULL,
	max_score INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS grade_tests (
	run_id         TEXT NOT NULL,
	group_position INTEGER NOT NULL,
	position       INTEGER NOT NULL,
	name           TEXT NOT NULL,
	score          INTEGER NOT NULL,
	max_score      INTEGER NOT NULL,
	output         TEXT,
	PRIMARY KEY (run_id, group_position, position),
	FOREIGN KEY (run_id, group_position) REFERENCES grade_groups (run_id, position) ON DELETE CASCADE
);
`

const schemaMySQL = `
CREATE TABLE IF NOT EXISTS grade_runs (
	id             CHAR(36) NOT NULL PRIMARY KEY,
	submission     VARCHAR(255) NOT NULL,
	score          INT NOT NULL,
	max_score      INT NOT NULL,
	execution_time DOUBLE NULL,
	created_at     DATETIME(6) NOT NULL,
	INDEX idx_grade_runs_submission (submission, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS grade_groups (
	run_id    CHAR(36) NOT NULL,
	position  INT NOT NULL,
	name      VARCHAR(255) NOT NULL,
	score     INT NOT NULL,
	max_score INT NOT NULL,
	PRIMARY KEY (run_id, position),
	FOREIGN KEY (run_id) REFERENCES grade_runs (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS grade_tests (
	run_id         CHAR(36) NOT NULL,
	group_position INT NOT NULL,
	position       INT NOT NULL,
	name           VARCHAR(255) NOT NULL,
	score          INT NOT NULL,
	max_score      INT NOT NULL,
	output         MEDIUMTEXT NULL,
	PRIMARY KEY (run_id, group_position, position),
	FOREIGN KEY (run_id, group_position) REFERENCES grade_groups (run_id, position) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`
