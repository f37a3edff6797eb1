// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bookbase/internal/db"
	"bookbase/internal/model"
)

var fixtureSeq atomic.Int64

// NewTestDB returns a migrated in-memory SQLite database. It uses a single
// connection so that every query sees the same memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gormDB, err := db.Open(db.DriverSQLite, ":memory:")
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

// CreateUser inserts a user with the given role. The password hash is not a
// real bcrypt hash; use auth.HashPassword when logging in matters.
func CreateUser(t *testing.T, gormDB *gorm.DB, role model.Role) *model.User {
	t.Helper()
	n := fixtureSeq.Add(1)
	user := &model.User{
		Name:         fmt.Sprintf("User %d", n),
		Email:        fmt.Sprintf("user%d@example.com", n),
		PasswordHash: "not-a-hash",
		Role:         role,
		Active:       true,
	}
	require.NoError(t, gormDB.WithContext(context.Background()).Create(user).Error)
	return user
}

// CreateBook inserts a book with the given number of copies.
func CreateBook(t *testing.T, gormDB *gorm.DB, copies int) *model.Book {
	t.Helper()
	n := fixtureSeq.Add(1)
	book := &model.Book{
		Title:       fmt.Sprintf("Book %d", n),
		Author:      "Author",
		ISBN:        fmt.Sprintf("978-%010d", n),
		Year:        2001,
		Copies:      copies,
		Category:    "Fiction",
		Pages:       320,
		Description: "A book.",
	}
	require.NoError(t, gormDB.WithContext(context.Background()).Create(book).Error)
	return book
}

// CreateLoan inserts a loan directly, bypassing the availability checks.
func CreateLoan(t *testing.T, gormDB *gorm.DB, userID, bookID uint, status model.LoanStatus, expectedReturn time.Time) *model.Loan {
	t.Helper()
	now := time.Now().UTC()
	loan := &model.Loan{
		UserID:           userID,
		BookID:           bookID,
		LoanedAt:         now,
		ExpectedReturnAt: expectedReturn.UTC(),
		Status:           status,
	}
	if status == model.LoanStatusReturned {
		loan.ReturnedAt = &now
	}
	require.NoError(t, gormDB.WithContext(context.Background()).Create(loan).Error)
	return loan
}
