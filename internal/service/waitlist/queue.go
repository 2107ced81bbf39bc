// Package waitlist runs the walk-in queue. Position and estimated wait are
// derived from the WAITING entries on every read and never stored.
package waitlist

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/metrics"
	"salonsched/backend/internal/service"
	"salonsched/backend/internal/store"
)

const maxPartySize = 20

type Config struct {
	// DefaultWaitPerParty is used for a party ahead whose service is unknown.
	DefaultWaitPerParty time.Duration
}

type Queue struct {
	repo      store.WaitlistRepository
	directory store.Directory
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

func NewQueue(repo store.WaitlistRepository, directory store.Directory, cfg Config, opts ...Option) *Queue {
	if cfg.DefaultWaitPerParty <= 0 {
		cfg.DefaultWaitPerParty = 15 * time.Minute
	}
	q := &Queue{
		repo:      repo,
		directory: directory,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

type AddInput struct {
	SalonID               uuid.UUID
	ClientID              *uuid.UUID
	ClientName            string
	Phone                 string
	PartySize             int
	ServiceID             *uuid.UUID
	PreferredTechnicianID *uuid.UUID
	Source                domain.BookingSource
}

func (q *Queue) Add(ctx context.Context, in AddInput) (domain.WaitlistEntry, error) {
	if in.SalonID == uuid.Nil {
		return domain.WaitlistEntry{}, service.Invalid("salon_id is required")
	}
	entry := domain.WaitlistEntry{
		SalonID:    in.SalonID,
		ClientName: strings.TrimSpace(in.ClientName),
		Phone:      domain.NormalizePhone(in.Phone),
		PartySize:  in.PartySize,
		Status:     domain.WaitlistStatusWaiting,
		Source:     in.Source,
	}
	if entry.PartySize == 0 {
		entry.PartySize = 1
	}
	if entry.PartySize < 1 || entry.PartySize > maxPartySize {
		return domain.WaitlistEntry{}, service.Invalidf("party_size must be between 1 and %d", maxPartySize)
	}
	if entry.Source == "" {
		entry.Source = domain.BookingSourceWalkIn
	}
	if !entry.Source.Valid() {
		return domain.WaitlistEntry{}, service.Invalidf("unknown source %q", in.Source)
	}

	if _, err := q.directory.Salon(ctx, in.SalonID); err != nil {
		return domain.WaitlistEntry{}, err
	}
	if in.ClientID != nil && *in.ClientID != uuid.Nil {
		client, err := q.directory.Client(ctx, *in.ClientID)
		if err != nil {
			return domain.WaitlistEntry{}, err
		}
		if client.SalonID != in.SalonID {
			return domain.WaitlistEntry{}, store.ErrUnauthorized
		}
		id := client.ID
		entry.ClientID = &id
		if entry.ClientName == "" {
			entry.ClientName = client.Name
		}
		if entry.Phone == "" {
			entry.Phone = client.Phone
		}
	}
	if entry.ClientID == nil && entry.ClientName == "" && entry.Phone == "" {
		return domain.WaitlistEntry{}, service.Invalid("client_id, client_name or phone is required")
	}
	if in.ServiceID != nil && *in.ServiceID != uuid.Nil {
		svc, err := q.directory.Service(ctx, *in.ServiceID)
		if err != nil {
			return domain.WaitlistEntry{}, err
		}
		if svc.SalonID != in.SalonID {
			return domain.WaitlistEntry{}, store.ErrUnauthorized
		}
		id := svc.ID
		entry.ServiceID = &id
	}
	if in.PreferredTechnicianID != nil && *in.PreferredTechnicianID != uuid.Nil {
		tech, err := q.directory.Technician(ctx, *in.PreferredTechnicianID)
		if err != nil {
			return domain.WaitlistEntry{}, err
		}
		if tech.SalonID != in.SalonID {
			return domain.WaitlistEntry{}, store.ErrUnauthorized
		}
		id := tech.ID
		entry.PreferredTechnicianID = &id
	}

	var created domain.WaitlistEntry
	err := service.RetryTransient(ctx, func(ctx context.Context) error {
		return q.repo.InWaitlistTransaction(ctx, func(ctx context.Context, tx store.WaitlistTx) error {
			now := q.now().UTC()
			e := entry
			e.CreatedAt = now
			e.UpdatedAt = now
			out, err := tx.InsertWaitlistEntry(ctx, e)
			if err != nil {
				return err
			}
			if err := tx.AppendEvents(ctx, domain.WaitlistEntryAdded(out, now)); err != nil {
				return err
			}
			created = out
			return nil
		})
	})
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	q.logger.Info("waitlist entry added", "salon_id", created.SalonID.String(), "entry_id", created.ID.String(), "party_size", created.PartySize)
	return q.derive(ctx, created)
}

func (q *Queue) Get(ctx context.Context, salonID, entryID uuid.UUID) (domain.WaitlistEntry, error) {
	if salonID == uuid.Nil {
		return domain.WaitlistEntry{}, service.Invalid("salon_id is required")
	}
	if entryID == uuid.Nil {
		return domain.WaitlistEntry{}, service.Invalid("entry_id is required")
	}
	e, err := q.repo.WaitlistEntry(ctx, entryID)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	if e.SalonID != salonID {
		return domain.WaitlistEntry{}, store.ErrUnauthorized
	}
	return q.derive(ctx, e)
}

// List returns the salon's WAITING and NOTIFIED entries in queue order with
// derived fields filled in.
func (q *Queue) List(ctx context.Context, salonID uuid.UUID) ([]domain.WaitlistEntry, error) {
	if salonID == uuid.Nil {
		return nil, service.Invalid("salon_id is required")
	}
	entries, err := q.repo.ListWaitlist(ctx, salonID, domain.ActiveWaitlistStatuses())
	if err != nil {
		return nil, err
	}

	durations := q.durationLookup(ctx)
	position := 0
	var ahead time.Duration
	for i := range entries {
		if entries[i].Status != domain.WaitlistStatusWaiting {
			continue
		}
		position++
		entries[i].Position = position
		entries[i].EstimatedWaitMinutes = int(ahead / time.Minute)
		d, err := durations(entries[i])
		if err != nil {
			return nil, err
		}
		ahead += d
	}
	return entries, nil
}

func (q *Queue) Notify(ctx context.Context, salonID, entryID uuid.UUID) (domain.WaitlistEntry, error) {
	return q.transition(ctx, salonID, entryID, domain.WaitlistStatusNotified)
}

func (q *Queue) Seat(ctx context.Context, salonID, entryID uuid.UUID) (domain.WaitlistEntry, error) {
	return q.transition(ctx, salonID, entryID, domain.WaitlistStatusSeated)
}

func (q *Queue) Leave(ctx context.Context, salonID, entryID uuid.UUID) (domain.WaitlistEntry, error) {
	return q.transition(ctx, salonID, entryID, domain.WaitlistStatusLeft)
}

func (q *Queue) Cancel(ctx context.Context, salonID, entryID uuid.UUID) (domain.WaitlistEntry, error) {
	return q.transition(ctx, salonID, entryID, domain.WaitlistStatusCancelled)
}

// Transition applies any allowed move; used by the generic PATCH-style RPC.
func (q *Queue) Transition(ctx context.Context, salonID, entryID uuid.UUID, target domain.WaitlistStatus) (domain.WaitlistEntry, error) {
	if !target.Valid() {
		return domain.WaitlistEntry{}, service.Invalidf("unknown status %q", target)
	}
	return q.transition(ctx, salonID, entryID, target)
}

func (q *Queue) transition(ctx context.Context, salonID, entryID uuid.UUID, target domain.WaitlistStatus) (domain.WaitlistEntry, error) {
	if salonID == uuid.Nil {
		return domain.WaitlistEntry{}, service.Invalid("salon_id is required")
	}
	if entryID == uuid.Nil {
		return domain.WaitlistEntry{}, service.Invalid("entry_id is required")
	}

	var (
		out  domain.WaitlistEntry
		from domain.WaitlistStatus
	)
	err := service.RetryTransient(ctx, func(ctx context.Context) error {
		return q.repo.InWaitlistTransaction(ctx, func(ctx context.Context, tx store.WaitlistTx) error {
			e, err := tx.WaitlistEntryForUpdate(ctx, entryID)
			if err != nil {
				return err
			}
			if e.SalonID != salonID {
				return store.ErrUnauthorized
			}
			if err := domain.ValidateWaitlistTransition(e.Status, target); err != nil {
				return err
			}

			now := q.now().UTC()
			from = e.Status
			next := e
			next.Status = target
			switch target {
			case domain.WaitlistStatusNotified:
				next.NotifiedAt = &now
			case domain.WaitlistStatusSeated:
				next.SeatedAt = &now
			case domain.WaitlistStatusLeft, domain.WaitlistStatusCancelled:
				next.ClosedAt = &now
			}

			updated, err := tx.UpdateWaitlistEntry(ctx, next)
			if err != nil {
				return err
			}
			if err := tx.AppendEvents(ctx, domain.WaitlistEntryTransitioned(updated, from, now)); err != nil {
				return err
			}
			out = updated
			return nil
		})
	})
	if err != nil {
		q.logger.Info("waitlist transition rejected", "entry_id", entryID.String(), "target", string(target), "err", err)
		return domain.WaitlistEntry{}, err
	}
	q.metrics.WaitlistTransition(string(from), string(target))
	return q.derive(ctx, out)
}

// derive fills Position and EstimatedWaitMinutes for e. Entries that are not
// WAITING have neither.
func (q *Queue) derive(ctx context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	e.Position = 0
	e.EstimatedWaitMinutes = 0
	if e.Status != domain.WaitlistStatusWaiting {
		return e, nil
	}

	waiting, err := q.repo.ListWaitlist(ctx, e.SalonID, []domain.WaitlistStatus{domain.WaitlistStatusWaiting})
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	durations := q.durationLookup(ctx)
	var ahead time.Duration
	position := 1
	for _, other := range waiting {
		if other.ID == e.ID || !other.Ahead(e) {
			continue
		}
		position++
		d, err := durations(other)
		if err != nil {
			return domain.WaitlistEntry{}, err
		}
		ahead += d
	}
	e.Position = position
	e.EstimatedWaitMinutes = int(ahead / time.Minute)
	return e, nil
}

// durationLookup returns a per-call cached resolver for how long a party's
// service takes.
func (q *Queue) durationLookup(ctx context.Context) func(domain.WaitlistEntry) (time.Duration, error) {
	cache := make(map[uuid.UUID]time.Duration)
	return func(e domain.WaitlistEntry) (time.Duration, error) {
		if e.ServiceID == nil {
			return q.cfg.DefaultWaitPerParty, nil
		}
		if d, ok := cache[*e.ServiceID]; ok {
			return d, nil
		}
		d := q.cfg.DefaultWaitPerParty
		svc, err := q.directory.Service(ctx, *e.ServiceID)
		switch {
		case err == nil && svc.DurationMinutes > 0:
			d = svc.Duration()
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return 0, err
		}
		cache[*e.ServiceID] = d
		return d, nil
	}
}
