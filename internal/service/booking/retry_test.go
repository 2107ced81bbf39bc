package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/store"
	"salonsched/backend/internal/store/memory"
)

// flakyRepo wraps the memory store and fails the first N transactions with a
// transient error.
type flakyRepo struct {
	*memory.Store
	failures int
	calls    int
}

func (f *flakyRepo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("serialization failure: %w", store.ErrTransient)
	}
	return f.Store.InTransaction(ctx, fn)
}

func (f *flakyRepo) InTechnicianTransaction(ctx context.Context, ids []uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("deadlock detected: %w", store.ErrTransient)
	}
	return f.Store.InTechnicianTransaction(ctx, ids, fn)
}

func TestCreate_RetriesTransientFailureOnce(t *testing.T) {
	s := newStore(t)
	repo := &flakyRepo{Store: s, failures: 1}
	m := NewManager(repo, s, s, Config{}, WithClock(func() time.Time { return clock }))

	a, err := m.Create(context.Background(), createInput(anaID, at(10, 0)))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("calls = %d, want 2", repo.calls)
	}
	if a.Status != domain.AppointmentStatusBooked {
		t.Fatalf("status = %s", a.Status)
	}
}

func TestCancel_PersistentTransientFailureIsInternal(t *testing.T) {
	s := newStore(t)
	m := newManager(s)
	a, err := m.Create(context.Background(), createInput(anaID, at(10, 0)))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	repo := &flakyRepo{Store: s, failures: 5}
	flaky := NewManager(repo, s, s, Config{}, WithClock(func() time.Time { return clock }))
	_, err = flaky.Cancel(context.Background(), salonID, a.ID, "")
	if !errors.Is(err, store.ErrInternal) {
		t.Fatalf("err = %v, want ErrInternal", err)
	}
	if repo.calls != 2 {
		t.Fatalf("calls = %d, want 2", repo.calls)
	}

	stored, err := m.Get(context.Background(), salonID, a.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if stored.Status != domain.AppointmentStatusBooked {
		t.Fatalf("status = %s, want BOOKED", stored.Status)
	}
}
