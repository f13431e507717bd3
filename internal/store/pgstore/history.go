package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
)

func appendHistory(ctx context.Context, db dbtx, rec audit.Record) (audit.Record, error) {
	err := db.QueryRow(ctx, `
		INSERT INTO history_records (entity_kind, entity_id, action_type, old_status, new_status, performed_by, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		RETURNING id, created_at
	`, rec.Kind, rec.EntityID, rec.Action, nullableString(rec.OldStatus), nullableString(rec.NewStatus),
		rec.PerformedBy, nullableString(rec.Note), nullableTime(rec.CreatedAt),
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return audit.Record{}, fmt.Errorf("insert history record: %w", err)
	}
	return rec, nil
}

func (s *Store) ListHistory(ctx context.Context, kind audit.Kind, id uuid.UUID) ([]audit.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_kind, entity_id, action_type, old_status, new_status, performed_by, note, created_at
		FROM history_records
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY id
	`, kind, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Record
	for rows.Next() {
		var (
			rec                  audit.Record
			oldStatus, newStatus *string
			note                 *string
		)
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.EntityID, &rec.Action, &oldStatus, &newStatus, &rec.PerformedBy, &note, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.OldStatus = stringOrEmpty(oldStatus)
		rec.NewStatus = stringOrEmpty(newStatus)
		rec.Note = stringOrEmpty(note)
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
