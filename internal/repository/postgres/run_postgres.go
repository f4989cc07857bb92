package postgres

import (
	"context"
	"database/sql"

	"smoke/internal/model"
	"smoke/internal/repository"
)

// RunPostgres is a PostgreSQL implementation of repository.RunRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type RunPostgres struct {
	db *sql.DB
}

// NewRunPostgres creates a new RunPostgres repository.
func NewRunPostgres(db *sql.DB) *RunPostgres {
	return &RunPostgres{db: db}
}

var _ repository.RunRepository = (*RunPostgres)(nil)

const runColumns = `id, target_url, vus, duration_ms, requests, failed_requests,
		checks_passed, checks_failed, threshold_passed, report_path,
		started_at, ended_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*model.Run, error) {
	var (
		r          model.Run
		reportPath sql.NullString
	)
	if err := s.Scan(
		&r.ID,
		&r.TargetURL,
		&r.VUs,
		&r.DurationMs,
		&r.Requests,
		&r.FailedRequests,
		&r.ChecksPassed,
		&r.ChecksFailed,
		&r.ThresholdPassed,
		&reportPath,
		&r.StartedAt,
		&r.EndedAt,
		&r.CreatedAt,
	); err != nil {
		return nil, err
	}
	r.ReportPath = reportPath.String
	return &r, nil
}

// Create inserts a new run row and returns the stored record.
func (r *RunPostgres) Create(ctx context.Context, run *model.Run) (*model.Run, error) {
	const q = `
		INSERT INTO smoke_runs (id, target_url, vus, duration_ms, requests, failed_requests,
			checks_passed, checks_failed, threshold_passed, report_path, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)
		RETURNING ` + runColumns

	row := r.db.QueryRowContext(ctx, q,
		run.ID,
		run.TargetURL,
		run.VUs,
		run.DurationMs,
		run.Requests,
		run.FailedRequests,
		run.ChecksPassed,
		run.ChecksFailed,
		run.ThresholdPassed,
		run.ReportPath,
		run.StartedAt,
		run.EndedAt,
	)
	return scanRun(row)
}

// FindByID fetches a single run by its ID.
func (r *RunPostgres) FindByID(ctx context.Context, id string) (*model.Run, error) {
	const q = `SELECT ` + runColumns + ` FROM smoke_runs WHERE id = $1`
	return scanRun(r.db.QueryRowContext(ctx, q, id))
}

// List returns runs using LIMIT/OFFSET pagination and a total count.
func (r *RunPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Run], error) {
	const qCount = `SELECT COUNT(*) FROM smoke_runs`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `SELECT ` + runColumns + `
		FROM smoke_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Run]{
		Items: items,
		Total: total,
	}, nil
}

// Delete removes a run by ID. It does not return an error if the row does not exist.
func (r *RunPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM smoke_runs WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
