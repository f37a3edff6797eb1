package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"bookbase/internal/errors"
)

// LoanStatus represents the status of a loan.
type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "active"
	LoanStatusReturned LoanStatus = "returned"
)

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	return s == LoanStatusActive || s == LoanStatusReturned
}

// Loan records a book checked out by a user.
// ReturnedAt is set if and only if Status is returned.
type Loan struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	UserID           uint       `json:"user_id" gorm:"not null;index"`
	BookID           uint       `json:"book_id" gorm:"not null;index"`
	LoanedAt         time.Time  `json:"loaned_at" gorm:"not null"`
	ExpectedReturnAt time.Time  `json:"expected_return_at" gorm:"not null;index"`
	ReturnedAt       *time.Time `json:"returned_at"`
	Status           LoanStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	// Relations
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Book *Book `json:"book,omitempty" gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
}

// Transition moves the loan to status to. It is the only place a loan's
// status changes. A move to returned stamps ReturnedAt with at; returned is
// terminal. Moving to the current status is a no-op.
func (l *Loan) Transition(to LoanStatus, at time.Time) error {
	if !to.Valid() {
		return errors.ErrInvalidLoanStatus
	}
	if l.Status == to {
		return nil
	}
	if l.Status == LoanStatusActive && to == LoanStatusReturned {
		returned := at
		l.ReturnedAt = &returned
		l.Status = LoanStatusReturned
		return nil
	}
	return errors.ErrInvalidLoanTransition
}

// DaysOverdue counts whole calendar days between the expected return day and
// the day of now. Loans that are not late report zero.
func (l *Loan) DaysOverdue(now time.Time) int {
	if l.Status != LoanStatusActive {
		return 0
	}
	due := StartOfDay(l.ExpectedReturnAt.In(now.Location()))
	days := int(math.Round(StartOfDay(now).Sub(due).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

// LateFee is DaysOverdue multiplied by the daily fee.
func (l *Loan) LateFee(now time.Time, perDay decimal.Decimal) decimal.Decimal {
	return perDay.Mul(decimal.NewFromInt(int64(l.DaysOverdue(now))))
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
