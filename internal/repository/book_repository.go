package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookbase/internal/model"
)

// BookRepository defines book persistence operations.
type BookRepository interface {
	Create(ctx context.Context, book *model.Book) error
	Update(ctx context.Context, book *model.Book) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*model.Book, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*model.Book, error)
	FindByISBN(ctx context.Context, isbn string) (*model.Book, error)
	List(ctx context.Context, offset, limit int) ([]model.Book, error)
}

type bookRepository struct {
	db *gorm.DB
}

// NewBookRepository creates a new book repository.
func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

// Create creates a new book.
func (r *bookRepository) Create(ctx context.Context, book *model.Book) error {
	return r.db.WithContext(ctx).Create(book).Error
}

// Update updates an existing book.
func (r *bookRepository) Update(ctx context.Context, book *model.Book) error {
	return r.db.WithContext(ctx).Save(book).Error
}

// Delete removes a book by ID.
func (r *bookRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.Book{}, id).Error
}

// FindByID finds a book by ID.
func (r *bookRepository) FindByID(ctx context.Context, id uint) (*model.Book, error) {
	var book model.Book
	if err := r.db.WithContext(ctx).First(&book, id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// FindByIDForUpdate finds a book by ID with a row-level lock. Only meaningful
// inside a transaction; SQLite has no row locks and serializes writers instead.
func (r *bookRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Book, error) {
	var book model.Book
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&book, id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// FindByISBN finds a book by ISBN.
func (r *bookRepository) FindByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	var book model.Book
	if err := r.db.WithContext(ctx).Where("isbn = ?", isbn).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// List returns a page of books ordered by ID.
func (r *bookRepository) List(ctx context.Context, offset, limit int) ([]model.Book, error) {
	var books []model.Book
	if err := r.db.WithContext(ctx).Order("id").Offset(offset).Limit(limit).Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}
