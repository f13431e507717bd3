package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the append-only history of every transition and booking action.
// Records are never updated or deleted.
type Ledger struct {
	reader Reader
	log    *zap.Logger
	now    func() time.Time
}

func NewLedger(reader Reader, log *zap.Logger) *Ledger {
	return &Ledger{
		reader: reader,
		log:    log,
		now:    time.Now,
	}
}

// Append validates rec and writes it through w, which is normally the transaction
// that performs the status mutation being recorded.
func (l *Ledger) Append(ctx context.Context, w Appender, rec Record) (Record, error) {
	if !rec.Kind.Valid() {
		return Record{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, rec.Kind)
	}
	if rec.EntityID == uuid.Nil {
		return Record{}, fmt.Errorf("%w: entity id is required", ErrInvalidRecord)
	}
	if rec.Action == "" {
		return Record{}, fmt.Errorf("%w: action is required", ErrInvalidRecord)
	}
	if rec.PerformedBy == uuid.Nil {
		return Record{}, fmt.Errorf("%w: performed_by is required", ErrInvalidRecord)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now().UTC()
	}

	stored, err := w.AppendHistory(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("append history: %w", err)
	}

	l.log.Debug("history appended",
		zap.String("kind", string(stored.Kind)),
		zap.String("entity_id", stored.EntityID.String()),
		zap.String("action", string(stored.Action)),
		zap.String("old_status", stored.OldStatus),
		zap.String("new_status", stored.NewStatus),
	)
	return stored, nil
}

// ListFor returns the history of one entity in append order.
func (l *Ledger) ListFor(ctx context.Context, kind Kind, entityID uuid.UUID) ([]Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, kind)
	}
	records, err := l.reader.ListHistory(ctx, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return records, nil
}
