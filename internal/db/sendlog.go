package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ReplaceSendLog deletes every existing send log entry for the run and
// inserts the provided entries in a single transaction. Repeated pipeline
// executions against the same run therefore produce a clean result set
// reflecting only the latest execution. An empty entry list still clears
// stale history. Returns the number of entries written.
func (db *DB) ReplaceSendLog(ctx context.Context, runID string, entries []SendLogEntry) (int, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin send log transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM campaign_send_logs WHERE run_id = $1`, runID); err != nil {
		return 0, fmt.Errorf("failed to clear send log for run %s: %w", runID, err)
	}

	if len(entries) > 0 {
		batch := &pgx.Batch{}
		for _, e := range entries {
			id := e.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			createdAt := e.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			batch.Queue(
				`INSERT INTO campaign_send_logs
				 (id, run_id, user_id, campaign_goal, channel, step_id, candidate_id,
				  status, rendered_text, error_code, error_message, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				id, e.RunID, e.UserID, e.CampaignGoal, e.Channel,
				nullIfEmpty(e.StepID), nullIfEmpty(e.CandidateID), string(e.Status),
				e.RenderedText, nullIfEmpty(e.ErrorCode), nullIfEmpty(e.ErrorMessage),
				createdAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range entries {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return 0, fmt.Errorf("failed to insert send log entry: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("failed to close send log batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit send log for run %s: %w", runID, err)
	}
	return len(entries), nil
}

// GetSendLog retrieves the current send log entries for a run.
func (db *DB) GetSendLog(ctx context.Context, runID string) ([]SendLogEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, user_id, campaign_goal, channel,
		        COALESCE(step_id, ''), COALESCE(candidate_id, ''), status,
		        COALESCE(rendered_text, ''), COALESCE(error_code, ''),
		        COALESCE(error_message, ''), created_at
		 FROM campaign_send_logs
		 WHERE run_id = $1
		 ORDER BY user_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load send log for run %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []SendLogEntry
	for rows.Next() {
		var e SendLogEntry
		var status string
		if err := rows.Scan(&e.ID, &e.RunID, &e.UserID, &e.CampaignGoal, &e.Channel,
			&e.StepID, &e.CandidateID, &status, &e.RenderedText,
			&e.ErrorCode, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan send log entry: %w", err)
		}
		e.Status = Status(status)
		entries = append(entries, e)
	}
	return entries, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
