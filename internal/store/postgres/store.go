package postgres

import "github.com/uptrace/bun"

// Store bundles the repositories over one pool.
type Store struct {
	*DirectoryRepo
	*AppointmentRepo
	*WaitlistRepo
	*OutboxRepo
}

func NewStore(db *bun.DB) *Store {
	return &Store{
		DirectoryRepo:   NewDirectoryRepo(db),
		AppointmentRepo: NewAppointmentRepo(db),
		WaitlistRepo:    NewWaitlistRepo(db),
		OutboxRepo:      NewOutboxRepo(db),
	}
}
