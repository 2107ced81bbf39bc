package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/store"
)

type waitlistTx struct {
	s       *Store
	ctx     context.Context
	staged  map[uuid.UUID]domain.WaitlistEntry
	events  []domain.Event
	unlocks []func()
}

func (s *Store) WaitlistEntry(ctx context.Context, entryID uuid.UUID) (domain.WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.waitlist[entryID]
	if !ok {
		return domain.WaitlistEntry{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListWaitlist(ctx context.Context, salonID uuid.UUID, statuses []domain.WaitlistStatus) ([]domain.WaitlistEntry, error) {
	want := make(map[domain.WaitlistStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WaitlistEntry
	for _, e := range s.waitlist {
		if e.SalonID != salonID {
			continue
		}
		if len(want) > 0 && !want[e.Status] {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ahead(out[j]) })
	return out, nil
}

func (s *Store) InWaitlistTransaction(ctx context.Context, fn func(ctx context.Context, tx store.WaitlistTx) error) error {
	tx := &waitlistTx{s: s, ctx: ctx, staged: make(map[uuid.UUID]domain.WaitlistEntry)}
	defer func() {
		for i := len(tx.unlocks) - 1; i >= 0; i-- {
			tx.unlocks[i]()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range tx.staged {
		s.waitlist[id] = e
	}
	s.appendOutboxLocked(ctx, tx.events)
	return nil
}

func (t *waitlistTx) current(id uuid.UUID) (domain.WaitlistEntry, bool) {
	if e, ok := t.staged[id]; ok {
		return e, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	e, ok := t.s.waitlist[id]
	return e, ok
}

func (t *waitlistTx) WaitlistEntryForUpdate(ctx context.Context, entryID uuid.UUID) (domain.WaitlistEntry, error) {
	if _, ok := t.staged[entryID]; !ok {
		unlock, err := t.s.locks.lock(ctx, waitlistLockPrefix+entryID.String())
		if err != nil {
			return domain.WaitlistEntry{}, err
		}
		t.unlocks = append(t.unlocks, unlock)
	}
	e, ok := t.current(entryID)
	if !ok {
		return domain.WaitlistEntry{}, store.ErrNotFound
	}
	return e, nil
}

func (t *waitlistTx) InsertWaitlistEntry(ctx context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.WaitlistEntry{}, err
		}
		e.ID = id
	} else if _, exists := t.current(e.ID); exists {
		return domain.WaitlistEntry{}, store.ErrConflict
	}

	now := t.s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	t.staged[e.ID] = e
	return e, nil
}

func (t *waitlistTx) UpdateWaitlistEntry(ctx context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	if _, ok := t.current(e.ID); !ok {
		return domain.WaitlistEntry{}, store.ErrNotFound
	}
	e.UpdatedAt = t.s.now()
	t.staged[e.ID] = e
	return e, nil
}

func (t *waitlistTx) AppendEvents(ctx context.Context, events ...domain.Event) error {
	t.events = append(t.events, events...)
	return nil
}
