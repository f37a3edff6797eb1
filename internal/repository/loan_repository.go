package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookbase/internal/model"
)

// LoanFilter narrows a loan listing. Nil fields are not applied.
type LoanFilter struct {
	UserID *uint
	Status *model.LoanStatus
	Offset int
	Limit  int
}

// LoanRepository defines loan persistence operations.
type LoanRepository interface {
	Create(ctx context.Context, loan *model.Loan) error
	Update(ctx context.Context, loan *model.Loan) error
	Delete(ctx context.Context, id uint) error
	DeleteByBook(ctx context.Context, bookID uint) error
	FindByID(ctx context.Context, id uint) (*model.Loan, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*model.Loan, error)
	CountActiveByBook(ctx context.Context, bookID uint) (int64, error)
	HasActiveLoan(ctx context.Context, userID, bookID uint) (bool, error)
	List(ctx context.Context, filter LoanFilter) ([]model.Loan, error)
	ListByUser(ctx context.Context, userID uint) ([]model.Loan, error)
	ListOverdue(ctx context.Context, cutoff time.Time) ([]model.Loan, error)
}

type loanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository.
func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

// Create creates a new loan record. Associations are never written through a loan.
func (r *loanRepository) Create(ctx context.Context, loan *model.Loan) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(loan).Error
}

// Update saves every column of an existing loan.
func (r *loanRepository) Update(ctx context.Context, loan *model.Loan) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(loan).Error
}

// Delete removes a loan by ID.
func (r *loanRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.Loan{}, id).Error
}

// DeleteByBook removes every loan that references a book.
func (r *loanRepository) DeleteByBook(ctx context.Context, bookID uint) error {
	return r.db.WithContext(ctx).Where("book_id = ?", bookID).Delete(&model.Loan{}).Error
}

// FindByID finds a loan by ID with its user and book loaded.
func (r *loanRepository) FindByID(ctx context.Context, id uint) (*model.Loan, error) {
	var loan model.Loan
	if err := r.db.WithContext(ctx).Preload("User").Preload("Book").First(&loan, id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// FindByIDForUpdate finds a loan by ID with a row-level lock and no associations.
func (r *loanRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Loan, error) {
	var loan model.Loan
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&loan, id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// CountActiveByBook counts the active loans of a book.
func (r *loanRepository) CountActiveByBook(ctx context.Context, bookID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Loan{}).
		Where("book_id = ? AND status = ?", bookID, model.LoanStatusActive).
		Count(&count).Error
	return count, err
}

// HasActiveLoan reports whether the user holds an active loan for the book.
func (r *loanRepository) HasActiveLoan(ctx context.Context, userID, bookID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Loan{}).
		Where("user_id = ? AND book_id = ? AND status = ?", userID, bookID, model.LoanStatusActive).
		Count(&count).Error
	return count > 0, err
}

// List returns loans matching filter with user and book loaded.
func (r *loanRepository) List(ctx context.Context, filter LoanFilter) ([]model.Loan, error) {
	q := r.db.WithContext(ctx).Preload("User").Preload("Book").Order("id")
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var loans []model.Loan
	if err := q.Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// ListByUser returns every loan of a user.
func (r *loanRepository) ListByUser(ctx context.Context, userID uint) ([]model.Loan, error) {
	var loans []model.Loan
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// ListOverdue returns active loans expected back before cutoff.
func (r *loanRepository) ListOverdue(ctx context.Context, cutoff time.Time) ([]model.Loan, error) {
	var loans []model.Loan
	if err := r.db.WithContext(ctx).Preload("User").Preload("Book").
		Where("status = ? AND expected_return_at < ?", model.LoanStatusActive, cutoff).
		Order("expected_return_at").
		Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}
