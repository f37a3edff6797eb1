package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"bookbase/internal/auth"
	"bookbase/internal/config"
	"bookbase/internal/model"
	"bookbase/internal/repository"
	"bookbase/internal/service"
)

// SeedBook is one entry of a catalog import file.
type SeedBook struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	Year        int    `json:"year"`
	Copies      int    `json:"copies"`
	Category    string `json:"category"`
	Pages       int    `json:"pages"`
	Description string `json:"description"`
}

// loadBooks parses a JSON array of books. Copies defaults to 1.
func loadBooks(r io.Reader) ([]SeedBook, error) {
	var books []SeedBook
	if err := json.NewDecoder(r).Decode(&books); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	for i := range books {
		books[i].ISBN = strings.TrimSpace(books[i].ISBN)
		if books[i].ISBN == "" || books[i].Title == "" {
			return nil, fmt.Errorf("book %d: title and isbn are required", i)
		}
		if books[i].Copies == 0 {
			books[i].Copies = 1
		}
		if books[i].Copies < 0 {
			return nil, fmt.Errorf("book %s: copies must be at least 1", books[i].ISBN)
		}
	}
	return books, nil
}

// seedBooks creates new books and updates existing ones matched by ISBN.
func seedBooks(ctx context.Context, gormDB *gorm.DB, books []SeedBook) (created int, updated int, err error) {
	repo := repository.NewBookRepository(gormDB)
	for _, b := range books {
		existing, err := repo.FindByISBN(ctx, b.ISBN)
		if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return created, updated, fmt.Errorf("error checking book %s: %w", b.ISBN, err)
		}

		if existing != nil {
			existing.Title = b.Title
			existing.Author = b.Author
			existing.Year = b.Year
			existing.Copies = b.Copies
			existing.Category = b.Category
			existing.Pages = b.Pages
			existing.Description = b.Description
			if err := repo.Update(ctx, existing); err != nil {
				return created, updated, fmt.Errorf("error updating book %s: %w", b.ISBN, err)
			}
			updated++
			continue
		}

		book := &model.Book{
			Title:       b.Title,
			Author:      b.Author,
			ISBN:        b.ISBN,
			Year:        b.Year,
			Copies:      b.Copies,
			Category:    b.Category,
			Pages:       b.Pages,
			Description: b.Description,
		}
		if err := repo.Create(ctx, book); err != nil {
			return created, updated, fmt.Errorf("error creating book %s: %w", b.ISBN, err)
		}
		created++
	}
	return created, updated, nil
}

// seedAdmin registers an active administrator through the auth service.
func seedAdmin(ctx context.Context, gormDB *gorm.DB, cfg *config.Config, name, email, password string) (*model.User, error) {
	if len(password) < 6 {
		return nil, fmt.Errorf("password must be at least 6 characters")
	}
	authService := service.NewAuthService(
		repository.NewUserRepository(gormDB),
		auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL),
		auth.NewTokenStore(nil),
	)
	return authService.Register(ctx, service.RegisterInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     model.RoleAdmin,
		Active:   true,
	})
}
