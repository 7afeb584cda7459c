package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mchmarny/yzlm/pkg/sim"
)

const (
	timeFormat = "2006-01-02T15:04:05Z"

	runLimitDefault = 20

	insertRunSQL = `INSERT INTO run (
			started_at, objects, users, trials, seed, quality_max, error_max,
			parallel, convergence, exponent, min_divergence, max_iterations,
			total_iterations, mean_iterations, mean_error, stddev_error,
			not_converged, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	insertTrialSQL = `INSERT INTO trial (
			run_id, trial, ratings, iterations, diff, error, converged, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectRunsSQL = `SELECT id, started_at, objects, users, trials, seed,
			quality_max, error_max, parallel, convergence, exponent, min_divergence,
			max_iterations, total_iterations, mean_iterations, mean_error,
			stddev_error, not_converged, duration
		FROM run
		ORDER BY id DESC
		LIMIT ?
	`

	selectTrialsSQL = `SELECT trial, ratings, iterations, diff, error, converged, duration
		FROM trial
		WHERE run_id = ?
		ORDER BY trial ASC
	`
)

// Run is a stored trial batch.
type Run struct {
	ID        int64        `json:"id" yaml:"id"`
	StartedAt string       `json:"started_at" yaml:"startedAt"`
	Summary   *sim.Summary `json:"summary" yaml:"summary"`
}

// SaveRun stores the summary and all of its trial reports in a single
// transaction and returns the new run ID.
func SaveRun(db *sql.DB, startedAt time.Time, s *sim.Summary) (int64, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}
	if s == nil {
		return 0, errors.New("summary required")
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("error starting run tx: %w", err)
	}

	res, err := tx.Exec(insertRunSQL,
		startedAt.UTC().Format(timeFormat),
		s.Config.Objects, s.Config.Users, s.Config.Trials, int64(s.Config.Seed),
		s.Config.QualityMax, s.Config.ErrorMax, s.Config.Parallel,
		s.Engine.Convergence, s.Engine.Exponent, s.Engine.MinDivergence, int64(s.Engine.MaxIterations),
		int64(s.TotalIterations), s.MeanIterations, s.MeanError, s.StdDevError,
		s.NotConverged, s.Duration,
	)
	if err != nil {
		rollbackTransaction(tx)
		return 0, fmt.Errorf("error inserting run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		rollbackTransaction(tx)
		return 0, fmt.Errorf("error getting run id: %w", err)
	}

	stmt, err := tx.Prepare(insertTrialSQL)
	if err != nil {
		rollbackTransaction(tx)
		return 0, fmt.Errorf("error preparing trial insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range s.Reports {
		if _, err := stmt.Exec(id, r.Trial, r.Ratings, int64(r.Iterations), r.Diff, r.Error, r.Converged, r.Duration); err != nil {
			rollbackTransaction(tx)
			return 0, fmt.Errorf("error inserting trial %d: %w", r.Trial, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing run tx: %w", err)
	}

	return id, nil
}

// ListRuns returns the most recent runs first, without trial reports.
func ListRuns(db *sql.DB, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = runLimitDefault
	}

	rows, err := db.Query(selectRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r := &Run{Summary: &sim.Summary{}}
		s := r.Summary
		var seed, maxIter, total int64
		if err := rows.Scan(&r.ID, &r.StartedAt,
			&s.Config.Objects, &s.Config.Users, &s.Config.Trials, &seed,
			&s.Config.QualityMax, &s.Config.ErrorMax, &s.Config.Parallel,
			&s.Engine.Convergence, &s.Engine.Exponent, &s.Engine.MinDivergence, &maxIter,
			&total, &s.MeanIterations, &s.MeanError, &s.StdDevError,
			&s.NotConverged, &s.Duration,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		s.Config.Seed = uint64(seed)
		s.Engine.MaxIterations = uint(maxIter)
		s.TotalIterations = uint(total)
		list = append(list, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run rows: %w", err)
	}

	return list, nil
}

// GetTrials returns the trial reports of a run in trial order.
func GetTrials(db *sql.DB, runID int64) ([]*sim.Report, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectTrialsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trials for run %d: %w", runID, err)
	}
	defer rows.Close()

	list := make([]*sim.Report, 0)
	for rows.Next() {
		r := &sim.Report{}
		var iter int64
		if err := rows.Scan(&r.Trial, &r.Ratings, &iter, &r.Diff, &r.Error, &r.Converged, &r.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan trial row: %w", err)
		}
		r.Iterations = uint(iter)
		list = append(list, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trial rows: %w", err)
	}

	return list, nil
}
