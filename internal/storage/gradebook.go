package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"autograde/internal/config"
	"autograde/internal/migration"
	"autograde/internal/report"
)

// Gradebook keeps every grading run in an SQL database (MySQL or SQLite)
type Gradebook struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// RunSummary is one row of the run history
type RunSummary struct {
	ID            string
	Submission    string
	Score         int
	MaxScore      int
	ExecutionTime *float64
	CreatedAt     time.Time
}

// OpenGradebook connects to the configured database, creating it and its
// tables if needed.
func OpenGradebook(ctx context.Context, cfg *config.Config) (*Gradebook, error) {
	dm := migration.NewDatabaseManager(cfg)
	driver, err := dm.Driver()
	if err != nil {
		return nil, err
	}
	dsn, err := dm.DSN()
	if err != nil {
		return nil, err
	}

	if err := dm.EnsureDatabase(ctx, driver, dsn); err != nil {
		return nil, err
	}
	db, err := dm.Connect(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := migration.NewSchemaMigrator(driver).Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate gradebook")
	}

	return &Gradebook{db: db, driver: driver, now: time.Now}, nil
}

// Close closes the database
func (g *Gradebook) Close() error {
	return g.db.Close()
}

// Record stores a report and returns the new run ID. The run is written in a
// single transaction.
func (g *Gradebook) Record(ctx context.Context, submission string, rep report.Report) (string, error) {
	runID := uuid.NewString()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "begin gradebook transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO grade_runs (id, submission, score, max_score, execution_time, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, submission, rep.Score, rep.MaxScore, nullFloat(rep.ExecutionTime), g.now().UTC(),
	); err != nil {
		return "", errors.Wrap(err, "insert grade run")
	}

	for gi, group := range rep.TestGroups {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grade_groups (run_id, position, name, score, max_score) VALUES (?, ?, ?, ?, ?)`,
			runID, gi, group.Name, group.Score, group.MaxScore,
		); err != nil {
			return "", errors.Wrapf(err, "insert group %s", group.Name)
		}
		for ti, test := range group.Tests {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO grade_tests (run_id, group_position, position, name, score, max_score, output) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, gi, ti, test.Name, test.Score, test.MaxScore, nullString(test.Output),
			); err != nil {
				return "", errors.Wrapf(err, "insert test %s/%s", group.Name, test.Name)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "commit gradebook transaction")
	}

	log.WithFields(log.Fields{
		"run_id":     runID,
		"submission": submission,
		"driver":     g.driver,
	}).Info("Recorded grade run")
	return runID, nil
}

// Runs lists recorded runs, newest first. An empty submission lists all runs.
func (g *Gradebook) Runs(ctx context.Context, submission string) ([]RunSummary, error) {
	query := `SELECT id, submission, score, max_score, execution_time, created_at FROM grade_runs`
	var args []any
	if submission != "" {
		query += ` WHERE submission = ?`
		args = append(args, submission)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query grade runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		var execTime sql.NullFloat64
		if err := rows.Scan(&run.ID, &run.Submission, &run.Score, &run.MaxScore, &execTime, &run.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan grade run")
		}
		if execTime.Valid {
			v := execTime.Float64
			run.ExecutionTime = &v
		}
		runs = append(runs, run)
	}
	return runs, errors.Wrap(rows.Err(), "iterate grade runs")
}

// Report rebuilds the report stored for a run
func (g *Gradebook) Report(ctx context.Context, runID string) (*report.Report, error) {
	rep := &report.Report{TestGroups: make([]report.GroupRecord, 0)}
	var execTime sql.NullFloat64
	err := g.db.QueryRowContext(ctx,
		`SELECT score, max_score, execution_time FROM grade_runs WHERE id = ?`, runID,
	).Scan(&rep.Score, &rep.MaxScore, &execTime)
	if err != nil {
		return nil, errors.Wrapf(err, "load grade run %s", runID)
	}
	if execTime.Valid {
		v := execTime.Float64
		rep.ExecutionTime = &v
	}

	groupRows, err := g.db.QueryContext(ctx,
		`SELECT name, score, max_score FROM grade_groups WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query grade groups")
	}
	for groupRows.Next() {
		group := report.GroupRecord{Tests: make([]report.TestRecord, 0)}
		if err := groupRows.Scan(&group.Name, &group.Score, &group.MaxScore); err != nil {
			groupRows.Close()
			return nil, errors.Wrap(err, "scan grade group")
		}
		rep.TestGroups = append(rep.TestGroups, group)
	}
	groupRows.Close()
	if err := groupRows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate grade groups")
	}

	testRows, err := g.db.QueryContext(ctx,
		`SELECT group_position, name, score, max_score, output FROM grade_tests WHERE run_id = ? ORDER BY group_position, position`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query grade tests")
	}
	defer testRows.Close()
	for testRows.Next() {
		var gi int
		var test report.TestRecord
		var output sql.NullString
		if err := testRows.Scan(&gi, &test.Name, &test.Score, &test.MaxScore, &output); err != nil {
			return nil, errors.Wrap(err, "scan grade test")
		}
		if gi < 0 || gi >= len(rep.TestGroups) {
			return nil, errors.Errorf("grade test %s refers to missing group %d", test.Name, gi)
		}
		if output.Valid {
			s := output.String
			test.Output = &s
		}
		rep.TestGroups[gi].Tests = append(rep.TestGroups[gi].Tests, test)
	}
	return rep, errors.Wrap(testRows.Err(), "iterate grade tests")
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
