package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/store"
	"salonsched/backend/internal/telemetry"
)

type outboxEvent struct {
	bun.BaseModel `bun:"table:outbox_events"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid"`
	EventType     string     `bun:"event_type,notnull"`
	AggregateType string     `bun:"aggregate_type,notnull"`
	AggregateID   uuid.UUID  `bun:"aggregate_id,notnull,type:uuid"`
	SalonID       uuid.UUID  `bun:"salon_id,notnull,type:uuid"`
	OccurredAt    time.Time  `bun:"occurred_at,notnull"`
	Payload       string     `bun:"payload,type:jsonb,notnull"`
	TraceParent   string     `bun:"traceparent,notnull"`
	TraceState    string     `bun:"tracestate,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	PublishedAt   *time.Time `bun:"published_at"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func (o outboxEvent) record() store.OutboxRecord {
	return store.OutboxRecord{
		Event: domain.Event{
			ID:            o.ID,
			Type:          domain.EventType(o.EventType),
			AggregateType: o.AggregateType,
			AggregateID:   o.AggregateID,
			SalonID:       o.SalonID,
			OccurredAt:    o.OccurredAt,
			Payload:       json.RawMessage(o.Payload),
		},
		Attempts:    o.Attempts,
		TraceParent: o.TraceParent,
		TraceState:  o.TraceState,
	}
}

// appendEvents writes events in the caller's transaction with the trace
// context active at write time.
func appendEvents(ctx context.Context, tx bun.Tx, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	traceparent, tracestate := telemetry.TraceContextStrings(ctx)
	rows := make([]outboxEvent, 0, len(events))
	for _, evt := range events {
		id := evt.ID
		if id == uuid.Nil {
			v7, err := uuid.NewV7()
			if err != nil {
				return err
			}
			id = v7
		}
		payload := string(evt.Payload)
		if payload == "" {
			payload = "{}"
		}
		rows = append(rows, outboxEvent{
			ID:            id,
			EventType:     string(evt.Type),
			AggregateType: evt.AggregateType,
			AggregateID:   evt.AggregateID,
			SalonID:       evt.SalonID,
			OccurredAt:    evt.OccurredAt.UTC(),
			Payload:       payload,
			TraceParent:   traceparent,
			TraceState:    tracestate,
		})
	}
	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

type OutboxRepo struct {
	db *bun.DB
}

func NewOutboxRepo(db *bun.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// ClaimBatch locks up to limit unpublished rows with SKIP LOCKED so several
// relays can run side by side. The rows stay locked while fn publishes them.
func (r *OutboxRepo) ClaimBatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []store.OutboxRecord) ([]uuid.UUID, error)) (int, error) {
	var (
		count int
		fnErr error
	)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rows []outboxEvent
		err := tx.NewSelect().
			Model(&rows).
			Where("published_at IS NULL").
			OrderExpr("occurred_at ASC, id ASC").
			Limit(limit).
			For("UPDATE SKIP LOCKED").
			Scan(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		batch := make([]store.OutboxRecord, 0, len(rows))
		for _, row := range rows {
			batch = append(batch, row.record())
		}

		published, err := fn(ctx, batch)
		fnErr = err

		done := make(map[uuid.UUID]bool, len(published))
		for _, id := range published {
			done[id] = true
		}
		var sent []uuid.UUID
		failed := uuid.Nil
		for _, row := range rows {
			if done[row.ID] {
				sent = append(sent, row.ID)
			} else if fnErr != nil && failed == uuid.Nil {
				failed = row.ID
			}
		}

		if len(sent) > 0 {
			_, err := tx.NewUpdate().
				Model((*outboxEvent)(nil)).
				Set("published_at = now()").
				Where("id IN (?)", bun.In(sent)).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		if failed != uuid.Nil {
			_, err := tx.NewUpdate().
				Model((*outboxEvent)(nil)).
				Set("attempts = attempts + 1").
				Where("id = ?", failed).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		count = len(sent)
		return nil
	})
	if err != nil {
		return 0, mapError(err)
	}
	return count, fnErr
}
