package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/store"
)

type WaitlistRepo struct {
	db *bun.DB
}

func NewWaitlistRepo(db *bun.DB) *WaitlistRepo {
	return &WaitlistRepo{db: db}
}

type waitlistTx struct {
	tx bun.Tx
}

func (r *WaitlistRepo) WaitlistEntry(ctx context.Context, entryID uuid.UUID) (domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := r.db.NewSelect().Model(&e).Where("id = ?", entryID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.WaitlistEntry{}, mapError(err)
	}
	return e, nil
}

func (r *WaitlistRepo) ListWaitlist(ctx context.Context, salonID uuid.UUID, statuses []domain.WaitlistStatus) ([]domain.WaitlistEntry, error) {
	var rows []domain.WaitlistEntry
	q := r.db.NewSelect().
		Model(&rows).
		Where("salon_id = ?", salonID)
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	if err := q.OrderExpr("created_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (r *WaitlistRepo) InWaitlistTransaction(ctx context.Context, fn func(ctx context.Context, tx store.WaitlistTx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, waitlistTx{tx: tx})
	})
	return mapError(err)
}

func (w waitlistTx) WaitlistEntryForUpdate(ctx context.Context, entryID uuid.UUID) (domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := w.tx.NewSelect().
		Model(&e).
		Where("id = ?", entryID).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.WaitlistEntry{}, mapError(err)
	}
	return e, nil
}

func (w waitlistTx) InsertWaitlistEntry(ctx context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	m := e
	if _, err := w.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.WaitlistEntry{}, mapError(err)
	}
	return m, nil
}

func (w waitlistTx) UpdateWaitlistEntry(ctx context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	m := e
	res, err := w.tx.NewUpdate().
		Model(&m).
		WherePK().
		ExcludeColumn("id", "created_at").
		Exec(ctx)
	if err != nil {
		return domain.WaitlistEntry{}, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	if affected == 0 {
		return domain.WaitlistEntry{}, store.ErrNotFound
	}
	return m, nil
}

func (w waitlistTx) AppendEvents(ctx context.Context, events ...domain.Event) error {
	return appendEvents(ctx, w.tx, events)
}
