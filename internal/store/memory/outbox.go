package memory

import (
	"context"

	"github.com/google/uuid"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/store"
	"salonsched/backend/internal/telemetry"
)

type outboxRow struct {
	record    store.OutboxRecord
	published bool
	claimed   bool
}

func (s *Store) appendOutboxLocked(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	traceparent, tracestate := telemetry.TraceContextStrings(ctx)
	for _, evt := range events {
		s.outbox = append(s.outbox, outboxRow{record: store.OutboxRecord{
			Event:       evt,
			TraceParent: traceparent,
			TraceState:  tracestate,
		}})
	}
}

func (s *Store) ClaimBatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []store.OutboxRecord) ([]uuid.UUID, error)) (int, error) {
	s.mu.Lock()
	var idx []int
	var batch []store.OutboxRecord
	for i := range s.outbox {
		if len(batch) >= limit {
			break
		}
		row := &s.outbox[i]
		if row.published || row.claimed {
			continue
		}
		row.claimed = true
		idx = append(idx, i)
		batch = append(batch, row.record)
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	published, err := fn(ctx, batch)

	done := make(map[uuid.UUID]bool, len(published))
	for _, id := range published {
		done[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bumped := err == nil
	for _, i := range idx {
		row := &s.outbox[i]
		row.claimed = false
		if done[row.record.Event.ID] {
			row.published = true
			continue
		}
		if !bumped {
			row.record.Attempts++
			bumped = true
		}
	}
	return len(published), err
}

// PendingEvents returns unpublished events in write order.
func (s *Store) PendingEvents() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Event
	for _, row := range s.outbox {
		if !row.published {
			out = append(out, row.record.Event)
		}
	}
	return out
}
