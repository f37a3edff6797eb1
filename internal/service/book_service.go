package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"bookbase/internal/cache"
	"bookbase/internal/errors"
	"bookbase/internal/model"
	"bookbase/internal/repository"
)

const bookCacheTTL = 5 * time.Minute

// CoverStorage stores cover image files.
type CoverStorage interface {
	Save(originalName string, content io.Reader) (string, error)
	Delete(filename string) error
}

// CoverUpload is an uploaded cover image.
type CoverUpload struct {
	Filename string
	Content  io.Reader
}

// BookInput carries the fields of a new book.
type BookInput struct {
	Title       string
	Author      string
	ISBN        string
	Year        int
	Copies      int
	Category    string
	Pages       int
	Description string
}

// BookPatch carries a partial book update. Only non-nil fields are applied.
type BookPatch struct {
	Title       *string
	Author      *string
	ISBN        *string
	Year        *int
	Copies      *int
	Category    *string
	Pages       *int
	Description *string
}

// BookService manages the catalog.
type BookService interface {
	CreateBook(ctx context.Context, input BookInput, cover *CoverUpload) (*model.Book, error)
	UpdateBook(ctx context.Context, id uint, patch BookPatch, cover *CoverUpload) (*model.Book, error)
	DeleteBook(ctx context.Context, id uint) error
	GetBook(ctx context.Context, id uint) (*model.Book, error)
	ListBooks(ctx context.Context, offset, limit int) ([]model.Book, error)
}

type bookService struct {
	store  *repository.Store
	covers CoverStorage
	cache  *cache.Client
}

// NewBookService creates a new book service.
func NewBookService(store *repository.Store, covers CoverStorage, cache *cache.Client) BookService {
	return &bookService{store: store, covers: covers, cache: cache}
}

func (s *bookService) cacheKey(id uint) string {
	return fmt.Sprintf("book:%d", id)
}

func (s *bookService) invalidate(ctx context.Context, id uint) {
	_ = s.cache.Delete(ctx, s.cacheKey(id))
}

// CreateBook stores a new book and its optional cover.
func (s *bookService) CreateBook(ctx context.Context, input BookInput, cover *CoverUpload) (*model.Book, error) {
	if input.Copies < 1 {
		return nil, errors.ErrInvalidCopies
	}
	if err := ensureISBNFree(ctx, s.store.Books, input.ISBN, 0); err != nil {
		return nil, err
	}

	book := &model.Book{
		Title:       input.Title,
		Author:      input.Author,
		ISBN:        input.ISBN,
		Year:        input.Year,
		Copies:      input.Copies,
		Category:    input.Category,
		Pages:       input.Pages,
		Description: input.Description,
	}

	if cover != nil {
		filename, err := s.covers.Save(cover.Filename, cover.Content)
		if err != nil {
			return nil, err
		}
		book.Cover = &filename
	}

	if err := s.store.Books.Create(ctx, book); err != nil {
		s.discardCover(book.Cover)
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.ErrISBNTaken
		}
		return nil, fmt.Errorf("create book: %w", err)
	}

	log.Info().Uint("book_id", book.ID).Str("isbn", book.ISBN).Msg("Book created")
	return book, nil
}

// UpdateBook applies the supplied fields. A new cover replaces the old file.
// The book row is locked so the copy count cannot drop below the number of
// active loans while a checkout is in flight.
func (s *bookService) UpdateBook(ctx context.Context, id uint, patch BookPatch, cover *CoverUpload) (*model.Book, error) {
	var (
		book     *model.Book
		oldCover *string
		newCover *string
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx *repository.Store) error {
		var err error
		book, err = tx.Books.FindByIDForUpdate(ctx, id)
		if err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.ErrBookNotFound
			}
			return fmt.Errorf("get book: %w", err)
		}

		if patch.ISBN != nil && *patch.ISBN != book.ISBN {
			if err := ensureISBNFree(ctx, tx.Books, *patch.ISBN, book.ID); err != nil {
				return err
			}
			book.ISBN = *patch.ISBN
		}
		if patch.Copies != nil {
			if *patch.Copies < 1 {
				return errors.ErrInvalidCopies
			}
			active, err := tx.Loans.CountActiveByBook(ctx, book.ID)
			if err != nil {
				return fmt.Errorf("count active loans: %w", err)
			}
			if int64(*patch.Copies) < active {
				return errors.ErrCopiesBelowActiveLoans
			}
			book.Copies = *patch.Copies
		}
		if patch.Title != nil {
			book.Title = *patch.Title
		}
		if patch.Author != nil {
			book.Author = *patch.Author
		}
		if patch.Year != nil {
			book.Year = *patch.Year
		}
		if patch.Category != nil {
			book.Category = *patch.Category
		}
		if patch.Pages != nil {
			book.Pages = *patch.Pages
		}
		if patch.Description != nil {
			book.Description = *patch.Description
		}

		oldCover = book.Cover
		if cover != nil {
			filename, err := s.covers.Save(cover.Filename, cover.Content)
			if err != nil {
				return err
			}
			newCover = &filename
			book.Cover = newCover
		}

		if err := tx.Books.Update(ctx, book); err != nil {
			if stderrors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.ErrISBNTaken
			}
			return fmt.Errorf("update book: %w", err)
		}
		return nil
	})
	if err != nil {
		s.discardCover(newCover)
		return nil, err
	}

	if newCover != nil {
		s.discardCover(oldCover)
	}
	s.invalidate(ctx, book.ID)
	return book, nil
}

// DeleteBook removes a book and its returned loans. Books on loan cannot be deleted.
func (s *bookService) DeleteBook(ctx context.Context, id uint) error {
	var cover *string
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx *repository.Store) error {
		book, err := tx.Books.FindByIDForUpdate(ctx, id)
		if err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.ErrBookNotFound
			}
			return fmt.Errorf("get book: %w", err)
		}

		active, err := tx.Loans.CountActiveByBook(ctx, id)
		if err != nil {
			return fmt.Errorf("count active loans: %w", err)
		}
		if active > 0 {
			return errors.ErrBookHasActiveLoans
		}

		if err := tx.Loans.DeleteByBook(ctx, id); err != nil {
			return fmt.Errorf("delete loans: %w", err)
		}
		if err := tx.Books.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		cover = book.Cover
		return nil
	})
	if err != nil {
		return err
	}

	s.discardCover(cover)
	s.invalidate(ctx, id)
	log.Info().Uint("book_id", id).Msg("Book deleted")
	return nil
}

// GetBook returns a book, reading through the cache.
func (s *bookService) GetBook(ctx context.Context, id uint) (*model.Book, error) {
	var cached model.Book
	if s.cache.GetJSON(ctx, s.cacheKey(id), &cached) {
		return &cached, nil
	}

	book, err := s.findBook(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, s.cacheKey(id), book, bookCacheTTL)
	return book, nil
}

// ListBooks returns a page of books.
func (s *bookService) ListBooks(ctx context.Context, offset, limit int) ([]model.Book, error) {
	return s.store.Books.List(ctx, offset, limit)
}

func (s *bookService) findBook(ctx context.Context, id uint) (*model.Book, error) {
	book, err := s.store.Books.FindByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

func ensureISBNFree(ctx context.Context, books repository.BookRepository, isbn string, selfID uint) error {
	existing, err := books.FindByISBN(ctx, isbn)
	if err == nil && existing.ID != selfID {
		return errors.ErrISBNTaken
	}
	if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check isbn: %w", err)
	}
	return nil
}

// discardCover deletes a cover file. Failures are logged and otherwise ignored.
func (s *bookService) discardCover(filename *string) {
	if filename == nil || *filename == "" {
		return
	}
	if err := s.covers.Delete(*filename); err != nil {
		log.Warn().Err(err).Str("cover", *filename).Msg("Failed to delete cover file")
	}
}
