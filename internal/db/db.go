// Package db provides PostgreSQL access for runs, handoffs, targeted users,
// the product catalog, and the campaign send log.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// GetRun retrieves a campaign run by ID. Returns (nil, nil) when the run
// does not exist.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := db.pool.QueryRow(ctx,
		`SELECT run_id, COALESCE(channel, ''), COALESCE(campaign_goal, ''),
		        COALESCE(step_id, ''), COALESCE(status, ''), brief_json, created_at, updated_at
		 FROM runs WHERE run_id = $1`,
		runID,
	).Scan(&run.RunID, &run.Channel, &run.CampaignGoal, &run.StepID, &run.Status,
		&run.Brief, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// UpdateRunStatus advances a run's step and status markers.
func (db *DB) UpdateRunStatus(ctx context.Context, runID, stepID, status string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE runs SET step_id = $1, status = $2, updated_at = NOW() WHERE run_id = $3`,
		stepID, status, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// ListRuns retrieves recent campaign runs
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, COALESCE(channel, ''), COALESCE(campaign_goal, ''),
		        COALESCE(step_id, ''), COALESCE(status, ''), brief_json, created_at, updated_at
		 FROM runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.RunID, &run.Channel, &run.CampaignGoal, &run.StepID,
			&run.Status, &run.Brief, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
