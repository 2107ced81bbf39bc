package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"salonsched/backend/internal/domain"
	"salonsched/backend/internal/store"
)

// DirectoryRepo serves salons, staff, services, clients and weekly templates.
type DirectoryRepo struct {
	db *bun.DB
}

func NewDirectoryRepo(db *bun.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

func (r *DirectoryRepo) Salon(ctx context.Context, salonID uuid.UUID) (domain.Salon, error) {
	var s domain.Salon
	err := r.db.NewSelect().Model(&s).Where("id = ?", salonID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Salon{}, mapError(err)
	}
	return s, nil
}

func (r *DirectoryRepo) Technician(ctx context.Context, technicianID uuid.UUID) (domain.Technician, error) {
	var t domain.Technician
	err := r.db.NewSelect().Model(&t).Where("id = ?", technicianID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Technician{}, mapError(err)
	}
	return t, nil
}

func (r *DirectoryRepo) ActiveTechnicians(ctx context.Context, salonID uuid.UUID) ([]domain.Technician, error) {
	var rows []domain.Technician
	err := r.db.NewSelect().
		Model(&rows).
		Where("salon_id = ?", salonID).
		Where("active").
		OrderExpr("name ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (r *DirectoryRepo) Service(ctx context.Context, serviceID uuid.UUID) (domain.Service, error) {
	var s domain.Service
	err := r.db.NewSelect().Model(&s).Where("id = ?", serviceID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Service{}, mapError(err)
	}
	return s, nil
}

func (r *DirectoryRepo) Client(ctx context.Context, clientID uuid.UUID) (domain.Client, error) {
	var c domain.Client
	err := r.db.NewSelect().Model(&c).Where("id = ?", clientID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Client{}, mapError(err)
	}
	return c, nil
}

func (r *DirectoryRepo) ClientByPhone(ctx context.Context, salonID uuid.UUID, phone string) (domain.Client, error) {
	phone = domain.NormalizePhone(phone)
	if phone == "" {
		return domain.Client{}, store.ErrNotFound
	}
	var c domain.Client
	err := r.db.NewSelect().
		Model(&c).
		Where("salon_id = ?", salonID).
		Where("phone = ?", phone).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Client{}, mapError(err)
	}
	return c, nil
}

func (r *DirectoryRepo) WeeklyTemplate(ctx context.Context, technicianID uuid.UUID) ([]domain.ScheduleTemplateEntry, error) {
	exists, err := r.db.NewSelect().
		Model((*domain.Technician)(nil)).
		Where("id = ?", technicianID).
		Exists(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	var rows []domain.ScheduleTemplateEntry
	err = r.db.NewSelect().
		Model(&rows).
		Where("technician_id = ?", technicianID).
		OrderExpr("day_of_week ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// PutWeeklyTemplate replaces the technician's template.
func (r *DirectoryRepo) PutWeeklyTemplate(ctx context.Context, technicianID uuid.UUID, entries []domain.ScheduleTemplateEntry) error {
	if _, err := domain.NewWeeklySchedule(technicianID, entries); err != nil {
		return err
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*domain.ScheduleTemplateEntry)(nil)).
			Where("technician_id = ?", technicianID).
			Exec(ctx)
		if err != nil {
			return mapError(err)
		}
		if len(entries) == 0 {
			return nil
		}
		rows := make([]domain.ScheduleTemplateEntry, len(entries))
		for i, e := range entries {
			e.TechnicianID = technicianID
			rows[i] = e
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return mapError(err)
		}
		return nil
	})
}
