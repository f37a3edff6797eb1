package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookbase/internal/auth"
	"bookbase/internal/config"
	"bookbase/internal/errors"
	"bookbase/internal/model"
	"bookbase/internal/repository"
	"bookbase/internal/testutil"
)

func TestLoadBooks(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{
			name:  "defaults copies",
			input: `[{"title":"Iracema","author":"José de Alencar","isbn":" 978-1 ","year":1865}]`,
			want:  1,
		},
		{name: "empty array", input: `[]`, want: 0},
		{name: "missing isbn", input: `[{"title":"x"}]`, wantErr: true},
		{name: "negative copies", input: `[{"title":"x","isbn":"1","copies":-2}]`, wantErr: true},
		{name: "not json", input: `title,isbn`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, err := loadBooks(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, books, tt.want)
			for _, b := range books {
				assert.Equal(t, 1, b.Copies)
				assert.Equal(t, strings.TrimSpace(b.ISBN), b.ISBN)
			}
		})
	}
}

func TestSeedBooks(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewTestDB(t)

	books := []SeedBook{
		{Title: "Iracema", Author: "José de Alencar", ISBN: "978-1", Year: 1865, Copies: 1, Category: "Romance", Pages: 200, Description: "d"},
		{Title: "Senhora", Author: "José de Alencar", ISBN: "978-2", Year: 1875, Copies: 2, Category: "Romance", Pages: 250, Description: "d"},
	}
	created, updated, err := seedBooks(ctx, gormDB, books)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, updated)

	books[1].Copies = 5
	created, updated, err = seedBooks(ctx, gormDB, books)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, updated)

	book, err := repository.NewBookRepository(gormDB).FindByISBN(ctx, "978-2")
	require.NoError(t, err)
	assert.Equal(t, 5, book.Copies)
}

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewTestDB(t)
	cfg := &config.Config{JWTSecret: "s"}

	user, err := seedAdmin(ctx, gormDB, cfg, "Root", "root@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, user.Role)
	assert.True(t, user.Active)
	assert.True(t, auth.CheckPassword(user.PasswordHash, "secret123"))

	_, err = seedAdmin(ctx, gormDB, cfg, "Root", "root@example.com", "secret123")
	assert.ErrorIs(t, err, errors.ErrEmailTaken)

	_, err = seedAdmin(ctx, gormDB, cfg, "Root", "other@example.com", "123")
	assert.Error(t, err)
}
