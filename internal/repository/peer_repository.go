package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"Mansoor88-6/facility-sync-agent/internal/models"
)

// PeerRepository persists liveness records for readers and field agents
type PeerRepository struct {
	db *sql.DB
}

func NewPeerRepository(db *sql.DB) *PeerRepository {
	return &PeerRepository{db: db}
}

func (r *PeerRepository) List(ctx context.Context) ([]models.DeviceLivenessRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, last_heartbeat, status
		FROM peers
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query peers: %w", err)
	}
	defer rows.Close()

	var records []models.DeviceLivenessRecord
	for rows.Next() {
		var rec models.DeviceLivenessRecord
		var lastHeartbeat sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Kind, &lastHeartbeat, &rec.Status); err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}
		rec.LastHeartbeat = lastHeartbeat.String
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// SaveHeartbeats upserts a batch of heartbeats in one transaction. New peers
// start offline; the monitor decides their status on its next pass. A stored
// heartbeat is only replaced by one that advances it.
func (r *PeerRepository) SaveHeartbeats(ctx context.Context, heartbeats []models.Heartbeat) error {
	if len(heartbeats) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := tx.PrepareContext(ctx, `SELECT last_heartbeat FROM peers WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer current.Close()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO peers (id, kind, last_heartbeat, status, updated_at)
		VALUES (?, ?, ?, 'offline', CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			last_heartbeat = excluded.last_heartbeat,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer upsert.Close()

	for _, hb := range heartbeats {
		var stored sql.NullString
		err := current.QueryRowContext(ctx, hb.ID).Scan(&stored)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read heartbeat for %s: %w", hb.ID, err)
		}

		timestamp := hb.Timestamp
		if !models.HeartbeatAdvances(stored.String, hb.Timestamp) {
			timestamp = stored.String
		}

		if _, err := upsert.ExecContext(ctx, hb.ID, string(hb.Kind), timestamp); err != nil {
			return fmt.Errorf("failed to save heartbeat for %s: %w", hb.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PeerRepository) UpdateStatus(ctx context.Context, id string, status models.LivenessStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE peers SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update peer status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("peer %s not found", id)
	}
	return nil
}
