package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookbase/internal/model"
	"bookbase/internal/testutil"
)

func TestLoanRepository_CountAndHasActive(t *testing.T) {
	gormDB := testutil.NewTestDB(t)
	repo := NewLoanRepository(gormDB)
	ctx := context.Background()

	alice := testutil.CreateUser(t, gormDB, model.RolePatron)
	bob := testutil.CreateUser(t, gormDB, model.RolePatron)
	book := testutil.CreateBook(t, gormDB, 3)
	due := time.Now().Add(72 * time.Hour)

	testutil.CreateLoan(t, gormDB, alice.ID, book.ID, model.LoanStatusActive, due)
	testutil.CreateLoan(t, gormDB, bob.ID, book.ID, model.LoanStatusReturned, due)

	count, err := repo.CountActiveByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	has, err := repo.HasActiveLoan(ctx, alice.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasActiveLoan(ctx, bob.ID, book.ID)
	require.NoError(t, err)
	assert.False(t, has, "a returned loan does not count")
}

func TestLoanRepository_ListFilters(t *testing.T) {
	gormDB := testutil.NewTestDB(t)
	repo := NewLoanRepository(gormDB)
	ctx := context.Background()

	alice := testutil.CreateUser(t, gormDB, model.RolePatron)
	bob := testutil.CreateUser(t, gormDB, model.RolePatron)
	book := testutil.CreateBook(t, gormDB, 5)
	due := time.Now().Add(72 * time.Hour)

	testutil.CreateLoan(t, gormDB, alice.ID, book.ID, model.LoanStatusActive, due)
	testutil.CreateLoan(t, gormDB, alice.ID, book.ID, model.LoanStatusReturned, due)
	testutil.CreateLoan(t, gormDB, bob.ID, book.ID, model.LoanStatusActive, due)

	active := model.LoanStatusActive
	tests := []struct {
		name     string
		filter   LoanFilter
		expected int
	}{
		{name: "no filter", filter: LoanFilter{}, expected: 3},
		{name: "by user", filter: LoanFilter{UserID: &alice.ID}, expected: 2},
		{name: "by status", filter: LoanFilter{Status: &active}, expected: 2},
		{name: "by user and status", filter: LoanFilter{UserID: &alice.ID, Status: &active}, expected: 1},
		{name: "paged", filter: LoanFilter{Offset: 1, Limit: 1}, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loans, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, loans, tt.expected)
			for _, loan := range loans {
				require.NotNil(t, loan.User)
				require.NotNil(t, loan.Book)
				assert.Equal(t, book.Title, loan.Book.Title)
			}
		})
	}
}

func TestLoanRepository_ListOverdue(t *testing.T) {
	gormDB := testutil.NewTestDB(t)
	repo := NewLoanRepository(gormDB)
	ctx := context.Background()

	user := testutil.CreateUser(t, gormDB, model.RolePatron)
	book := testutil.CreateBook(t, gormDB, 5)
	now := time.Now().UTC()

	late := testutil.CreateLoan(t, gormDB, user.ID, book.ID, model.LoanStatusActive, now.Add(-48*time.Hour))
	testutil.CreateLoan(t, gormDB, user.ID, book.ID, model.LoanStatusActive, now.Add(48*time.Hour))
	testutil.CreateLoan(t, gormDB, user.ID, book.ID, model.LoanStatusReturned, now.Add(-48*time.Hour))

	loans, err := repo.ListOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, late.ID, loans[0].ID)
}

func TestLoanRepository_UpdateDoesNotTouchAssociations(t *testing.T) {
	gormDB := testutil.NewTestDB(t)
	repo := NewLoanRepository(gormDB)
	ctx := context.Background()

	user := testutil.CreateUser(t, gormDB, model.RolePatron)
	book := testutil.CreateBook(t, gormDB, 1)
	created := testutil.CreateLoan(t, gormDB, user.ID, book.ID, model.LoanStatusActive, time.Now().Add(time.Hour))

	loan, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	loan.Book.Title = "changed through the loan"
	require.NoError(t, loan.Transition(model.LoanStatusReturned, time.Now().UTC()))
	require.NoError(t, repo.Update(ctx, loan))

	reloaded, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanStatusReturned, reloaded.Status)
	assert.NotNil(t, reloaded.ReturnedAt)
	assert.Equal(t, book.Title, reloaded.Book.Title)
}

func TestStore_WithTransactionRollsBack(t *testing.T) {
	gormDB := testutil.NewTestDB(t)
	store := NewStore(gormDB)
	ctx := context.Background()
	book := testutil.CreateBook(t, gormDB, 1)

	err := store.WithTransaction(ctx, func(ctx context.Context, tx *Store) error {
		if err := tx.Books.Delete(ctx, book.ID); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = store.Books.FindByID(ctx, book.ID)
	assert.NoError(t, err, "book must survive the rolled back delete")
}
