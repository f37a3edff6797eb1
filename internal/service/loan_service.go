package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bookbase/internal/auth"
	"bookbase/internal/errors"
	"bookbase/internal/model"
	"bookbase/internal/repository"
)

// LoanInput carries the fields of a new loan.
type LoanInput struct {
	UserID           uint
	BookID           uint
	ExpectedReturnAt time.Time
}

// LoanUpdate carries a partial loan update. Only non-nil fields are applied.
type LoanUpdate struct {
	ExpectedReturnAt *time.Time
	ReturnedAt       *time.Time
	Status           *model.LoanStatus
}

// LoanQuery filters a loan listing.
type LoanQuery struct {
	UserID *uint
	Status *model.LoanStatus
	Offset int
	Limit  int
}

// OverdueLoan is an active loan past its expected return day.
type OverdueLoan struct {
	model.Loan
	DaysOverdue int             `json:"days_overdue"`
	LateFee     decimal.Decimal `json:"late_fee"`
}

// LoanService manages loans.
type LoanService interface {
	CreateLoan(ctx context.Context, input LoanInput) (*model.Loan, error)
	ReturnLoan(ctx context.Context, id uint) (*model.Loan, error)
	UpdateLoan(ctx context.Context, id uint, update LoanUpdate) (*model.Loan, error)
	DeleteLoan(ctx context.Context, id uint) error
	GetLoan(ctx context.Context, id uint, requester *model.User) (*model.Loan, error)
	ListLoans(ctx context.Context, query LoanQuery, requester *model.User) ([]model.Loan, error)
	ListOverdue(ctx context.Context) ([]OverdueLoan, error)
	ListForUser(ctx context.Context, userID uint, requester *model.User) ([]model.Loan, error)
}

type loanService struct {
	store         *repository.Store
	lateFeePerDay decimal.Decimal
	now           func() time.Time
}

// NewLoanService creates a new loan service.
func NewLoanService(store *repository.Store, lateFeePerDay decimal.Decimal) LoanService {
	return &loanService{
		store:         store,
		lateFeePerDay: lateFeePerDay,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateLoan checks out a book. The book row stays locked until the loan is
// inserted so concurrent checkouts of the last copy cannot both succeed.
func (s *loanService) CreateLoan(ctx context.Context, input LoanInput) (*model.Loan, error) {
	var loan *model.Loan
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx *repository.Store) error {
		book, err := tx.Books.FindByIDForUpdate(ctx, input.BookID)
		if err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.ErrBookNotFound
			}
			return fmt.Errorf("get book: %w", err)
		}

		if _, err := tx.Users.FindByID(ctx, input.UserID); err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.ErrUserNotFound
			}
			return fmt.Errorf("get user: %w", err)
		}

		holds, err := tx.Loans.HasActiveLoan(ctx, input.UserID, input.BookID)
		if err != nil {
			return fmt.Errorf("check active loan: %w", err)
		}
		if holds {
			return errors.ErrAlreadyHoldsBook
		}

		active, err := tx.Loans.CountActiveByBook(ctx, input.BookID)
		if err != nil {
			return fmt.Errorf("count active loans: %w", err)
		}
		if active >= int64(book.Copies) {
			return errors.ErrNoCopiesAvailable
		}

		loan = &model.Loan{
			UserID:           input.UserID,
			BookID:           input.BookID,
			LoanedAt:         s.now(),
			ExpectedReturnAt: input.ExpectedReturnAt.UTC(),
			Status:           model.LoanStatusActive,
		}
		if err := tx.Loans.Create(ctx, loan); err != nil {
			return fmt.Errorf("create loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Uint("loan_id", loan.ID).
		Uint("user_id", loan.UserID).
		Uint("book_id", loan.BookID).
		Msg("Loan created")
	return s.findLoan(ctx, loan.ID)
}

// ReturnLoan marks an active loan as returned now. The loan row is locked so
// that only one of two concurrent returns succeeds.
func (s *loanService) ReturnLoan(ctx context.Context, id uint) (*model.Loan, error) {
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx *repository.Store) error {
		loan, err := lockLoan(ctx, tx, id)
		if err != nil {
			return err
		}
		if loan.Status != model.LoanStatusActive {
			return errors.ErrLoanAlreadyReturned
		}

		if err := loan.Transition(model.LoanStatusReturned, s.now()); err != nil {
			return err
		}
		if err := tx.Loans.Update(ctx, loan); err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("loan_id", id).Msg("Loan returned")
	return s.findLoan(ctx, id)
}

// UpdateLoan edits dates and status. Status changes go through Loan.Transition.
func (s *loanService) UpdateLoan(ctx context.Context, id uint, update LoanUpdate) (*model.Loan, error) {
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx *repository.Store) error {
		loan, err := lockLoan(ctx, tx, id)
		if err != nil {
			return err
		}

		if update.ExpectedReturnAt != nil {
			loan.ExpectedReturnAt = update.ExpectedReturnAt.UTC()
		}

		var returnedAt *time.Time
		if update.ReturnedAt != nil {
			at := update.ReturnedAt.UTC()
			returnedAt = &at
		}

		if update.Status != nil {
			at := s.now()
			if returnedAt != nil {
				at = *returnedAt
			}
			if err := loan.Transition(*update.Status, at); err != nil {
				return err
			}
		}

		if returnedAt != nil {
			if loan.Status != model.LoanStatusReturned {
				return errors.ErrReturnDateRequiresReturned
			}
			loan.ReturnedAt = returnedAt
		}

		if err := tx.Loans.Update(ctx, loan); err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.findLoan(ctx, id)
}

// DeleteLoan removes a loan record.
func (s *loanService) DeleteLoan(ctx context.Context, id uint) error {
	if _, err := s.findLoan(ctx, id); err != nil {
		return err
	}
	if err := s.store.Loans.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	return nil
}

// GetLoan returns a loan visible to the requester.
func (s *loanService) GetLoan(ctx context.Context, id uint, requester *model.User) (*model.Loan, error) {
	loan, err := s.findLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.IsPrivileged(requester) && loan.UserID != requester.ID {
		return nil, errors.ErrForbidden
	}
	return loan, nil
}

// ListLoans lists loans. Patrons only ever see their own, whatever the filter.
func (s *loanService) ListLoans(ctx context.Context, query LoanQuery, requester *model.User) ([]model.Loan, error) {
	filter := repository.LoanFilter{
		UserID: query.UserID,
		Status: query.Status,
		Offset: query.Offset,
		Limit:  query.Limit,
	}
	if !auth.IsPrivileged(requester) {
		own := requester.ID
		filter.UserID = &own
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, errors.ErrInvalidLoanStatus
	}
	return s.store.Loans.List(ctx, filter)
}

// ListOverdue returns active loans whose expected return day is before today.
func (s *loanService) ListOverdue(ctx context.Context) ([]OverdueLoan, error) {
	now := s.now()
	cutoff := model.StartOfDay(now.Local()).UTC()

	loans, err := s.store.Loans.ListOverdue(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list overdue loans: %w", err)
	}

	overdue := make([]OverdueLoan, 0, len(loans))
	for _, loan := range loans {
		overdue = append(overdue, OverdueLoan{
			Loan:        loan,
			DaysOverdue: loan.DaysOverdue(now.Local()),
			LateFee:     loan.LateFee(now.Local(), s.lateFeePerDay),
		})
	}
	return overdue, nil
}

// ListForUser returns every loan of a user to that user or to staff.
func (s *loanService) ListForUser(ctx context.Context, userID uint, requester *model.User) ([]model.Loan, error) {
	if !auth.IsPrivileged(requester) && requester.ID != userID {
		return nil, errors.ErrForbidden
	}
	return s.store.Loans.ListByUser(ctx, userID)
}

func (s *loanService) findLoan(ctx context.Context, id uint) (*model.Loan, error) {
	loan, err := s.store.Loans.FindByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}

func lockLoan(ctx context.Context, tx *repository.Store, id uint) (*model.Loan, error) {
	loan, err := tx.Loans.FindByIDForUpdate(ctx, id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}
