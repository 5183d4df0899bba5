package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetLatestHandoff retrieves the most recent handoff for a run and stage.
// Ties on created_at are broken by id so the result is stable. Returns
// (nil, nil) when no handoff exists for the stage.
func (db *DB) GetLatestHandoff(ctx context.Context, runID, stage string) (*Handoff, error) {
	var h Handoff
	err := db.pool.QueryRow(ctx,
		`SELECT id, run_id, stage, payload_json, created_at
		 FROM handoffs
		 WHERE run_id = $1 AND stage = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		runID, stage,
	).Scan(&h.ID, &h.RunID, &h.Stage, &h.Payload, &h.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest %s handoff: %w", stage, err)
	}
	return &h, nil
}

// CreateHandoff stores a JSON payload as a new handoff for a run and stage.
func (db *DB) CreateHandoff(ctx context.Context, runID, stage string, payload any) (*Handoff, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s handoff payload: %w", stage, err)
	}

	h := Handoff{
		ID:      uuid.New(),
		RunID:   runID,
		Stage:   stage,
		Payload: jsonBytes,
	}
	err = db.pool.QueryRow(ctx,
		`INSERT INTO handoffs (id, run_id, stage, payload_json)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		h.ID, h.RunID, h.Stage, h.Payload,
	).Scan(&h.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s handoff: %w", stage, err)
	}
	return &h, nil
}
