package postgres

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/store"
)

const technicianLockPrefix = "technician:"

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Appointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().Model(&a).Where("id = ?", appointmentID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return a, nil
}

func (r *AppointmentRepo) ListBusy(ctx context.Context, technicianID uuid.UUID, start, end time.Time) ([]domain.Appointment, error) {
	return listBusy(ctx, r.db, technicianID, start, end)
}

func (r *AppointmentRepo) ListForClient(ctx context.Context, salonID, clientID uuid.UUID, start, end time.Time, statuses []domain.AppointmentStatus) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Where("salon_id = ?", salonID).
		Where("client_id = ?", clientID).
		Where("start_time >= ?", start).
		Where("start_time < ?", end)
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	if err := q.OrderExpr("start_time ASC, id ASC").Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (r *AppointmentRepo) ListForSalon(ctx context.Context, salonID uuid.UUID, start, end time.Time, statuses []domain.AppointmentStatus) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Where("salon_id = ?", salonID).
		Where("start_time >= ?", start).
		Where("start_time < ?", end)
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	if err := q.OrderExpr("start_time ASC, id ASC").Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// InTechnicianTransaction takes a transaction-scoped advisory lock per
// technician, in id order, before running fn.
func (r *AppointmentRepo) InTechnicianTransaction(ctx context.Context, technicianIDs []uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	keys := lockKeys(technicianLockPrefix, technicianIDs)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, key := range keys {
			if err := advisoryLock(ctx, tx, key); err != nil {
				return err
			}
		}
		return fn(ctx, bookingTx{tx: tx})
	})
	return mapError(err)
}

func (r *AppointmentRepo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, bookingTx{tx: tx})
	})
	return mapError(err)
}

func advisoryLock(ctx context.Context, tx bun.Tx, key string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}

// lockKeys returns the prefixed, de-duplicated ids in a stable order so two
// transactions never wait on each other's locks in opposite order.
func lockKeys(prefix string, ids []uuid.UUID) []string {
	seen := make(map[uuid.UUID]bool, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, prefix+id.String())
	}
	sort.Strings(keys)
	return keys
}

func listBusy(ctx context.Context, db bun.IDB, technicianID uuid.UUID, start, end time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("technician_id = ?", technicianID).
		Where("status IN (?)", bun.In(domain.BusyStatuses())).
		Where("start_time < ?", end).
		Where("end_time > ?", start).
		OrderExpr("start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (b bookingTx) AppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := b.tx.NewSelect().
		Model(&a).
		Where("id = ?", appointmentID).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return a, nil
}

func (b bookingTx) ListBusy(ctx context.Context, technicianID uuid.UUID, start, end time.Time) ([]domain.Appointment, error) {
	return listBusy(ctx, b.tx, technicianID, start, end)
}

func (b bookingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := b.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 1 {
		return m, nil
	}

	var existing domain.Appointment
	err = b.tx.NewSelect().
		Model(&existing).
		Where("id = ?", m.ID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	if !existing.SameBooking(appt) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (b bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := b.tx.NewUpdate().
		Model(&m).
		WherePK().
		ExcludeColumn("id", "created_at").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (b bookingTx) AppendEvents(ctx context.Context, events ...domain.Event) error {
	return appendEvents(ctx, b.tx, events)
}
