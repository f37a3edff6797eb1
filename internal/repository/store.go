package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that share one database handle, so a unit of
// work can span users, books and loans.
type Store struct {
	db    *gorm.DB
	Users UserRepository
	Books BookRepository
	Loans LoanRepository
}

// NewStore creates repositories bound to db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		Users: NewUserRepository(db),
		Books: NewBookRepository(db),
		Loans: NewLoanRepository(db),
	}
}

// WithTransaction executes fn within a database transaction. The store passed
// to fn is bound to the transaction; fn must not use the outer store.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewStore(tx))
	})
}
