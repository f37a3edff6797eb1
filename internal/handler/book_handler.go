package handler

import (
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"bookbase/internal/service"
)

const coverField = "cover"

// CoverLocator resolves stored cover filenames to paths on disk.
type CoverLocator interface {
	Path(filename string) (string, error)
}

// BookHandler handles catalog endpoints.
type BookHandler struct {
	bookService service.BookService
	covers      CoverLocator
}

// NewBookHandler creates a new book handler.
func NewBookHandler(bookService service.BookService, covers CoverLocator) *BookHandler {
	return &BookHandler{bookService: bookService, covers: covers}
}

// BookForm represents the multipart fields of a new book.
type BookForm struct {
	Title       string `validate:"required,max=255"`
	Author      string `validate:"required,max=255"`
	ISBN        string `validate:"required,max=20"`
	Year        int    `validate:"required"`
	Copies      int    `validate:"min=1"`
	Category    string `validate:"required,max=100"`
	Pages       int    `validate:"min=0"`
	Description string `validate:"required"`
}

// BookPatchForm represents the multipart fields of a book update. Absent
// fields are nil; present ones follow the same rules as on create.
type BookPatchForm struct {
	Title       *string `validate:"omitnil,min=1,max=255"`
	Author      *string `validate:"omitnil,min=1,max=255"`
	ISBN        *string `validate:"omitnil,min=1,max=20"`
	Year        *int    `validate:"omitnil,ne=0"`
	Copies      *int    `validate:"omitnil,min=1"`
	Category    *string `validate:"omitnil,min=1,max=100"`
	Pages       *int    `validate:"omitnil,min=0"`
	Description *string
}

// CreateBook godoc
// @Summary Create a book
// @Tags books
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param author formData string true "Author"
// @Param isbn formData string true "ISBN"
// @Param year formData int true "Publication year"
// @Param copies formData int false "Number of copies" default(1)
// @Param category formData string true "Category"
// @Param pages formData int true "Page count"
// @Param description formData string true "Description"
// @Param cover formData file false "Cover image (jpg, jpeg, png, gif)"
// @Success 201 {object} model.Book
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /livros [post]
func (h *BookHandler) CreateBook(c echo.Context) error {
	params, err := c.FormParams()
	if err != nil {
		return invalidBody()
	}

	form := BookForm{
		Title:       params.Get("title"),
		Author:      params.Get("author"),
		ISBN:        params.Get("isbn"),
		Category:    params.Get("category"),
		Description: params.Get("description"),
		Copies:      1,
	}
	for field, dst := range map[string]*int{"year": &form.Year, "copies": &form.Copies, "pages": &form.Pages} {
		if v, ok := formInt(params, field); ok {
			*dst = *v
		} else if params.Has(field) {
			return badRequest("invalid "+field, "VALIDATION_ERROR")
		}
	}

	if err := c.Validate(&form); err != nil {
		return validationFailed(err)
	}

	cover, closeCover, err := coverUpload(c)
	if err != nil {
		return err
	}
	defer closeCover()

	book, err := h.bookService.CreateBook(c.Request().Context(), service.BookInput{
		Title:       form.Title,
		Author:      form.Author,
		ISBN:        form.ISBN,
		Year:        form.Year,
		Copies:      form.Copies,
		Category:    form.Category,
		Pages:       form.Pages,
		Description: form.Description,
	}, cover)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, book)
}

// UpdateBook godoc
// @Summary Update a book
// @Description Only the fields present in the form are changed.
// @Tags books
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Book ID"
// @Param title formData string false "Title"
// @Param author formData string false "Author"
// @Param isbn formData string false "ISBN"
// @Param year formData int false "Publication year"
// @Param copies formData int false "Number of copies"
// @Param category formData string false "Category"
// @Param pages formData int false "Page count"
// @Param description formData string false "Description"
// @Param cover formData file false "New cover image"
// @Success 200 {object} model.Book
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /livros/{id} [put]
func (h *BookHandler) UpdateBook(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	params, err := c.FormParams()
	if err != nil {
		return invalidBody()
	}

	form := BookPatchForm{
		Title:       formString(params, "title"),
		Author:      formString(params, "author"),
		ISBN:        formString(params, "isbn"),
		Category:    formString(params, "category"),
		Description: formString(params, "description"),
	}
	for field, dst := range map[string]**int{"year": &form.Year, "copies": &form.Copies, "pages": &form.Pages} {
		v, ok := formInt(params, field)
		if !ok && params.Has(field) {
			return badRequest("invalid "+field, "VALIDATION_ERROR")
		}
		*dst = v
	}

	if err := c.Validate(&form); err != nil {
		return validationFailed(err)
	}

	cover, closeCover, err := coverUpload(c)
	if err != nil {
		return err
	}
	defer closeCover()

	book, err := h.bookService.UpdateBook(c.Request().Context(), id, service.BookPatch{
		Title:       form.Title,
		Author:      form.Author,
		ISBN:        form.ISBN,
		Year:        form.Year,
		Copies:      form.Copies,
		Category:    form.Category,
		Pages:       form.Pages,
		Description: form.Description,
	}, cover)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, book)
}

// ListBooks godoc
// @Summary List books
// @Tags books
// @Produce json
// @Param skip query int false "Offset" default(0)
// @Param limit query int false "Page size" default(10)
// @Success 200 {array} model.Book
// @Failure 400 {object} errors.ErrorResponse
// @Router /livros [get]
func (h *BookHandler) ListBooks(c echo.Context) error {
	offset, limit, err := paging(c)
	if err != nil {
		return err
	}

	books, err := h.bookService.ListBooks(c.Request().Context(), offset, limit)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, books)
}

// GetBook godoc
// @Summary Get a book
// @Tags books
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} model.Book
// @Failure 404 {object} errors.ErrorResponse
// @Router /livros/{id} [get]
func (h *BookHandler) GetBook(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	book, err := h.bookService.GetBook(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, book)
}

// DeleteBook godoc
// @Summary Delete a book
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param id path int true "Book ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /livros/{id} [delete]
func (h *BookHandler) DeleteBook(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.bookService.DeleteBook(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: "book deleted successfully"})
}

// GetCover godoc
// @Summary Download a cover image
// @Tags books
// @Produce image/jpeg,image/png,image/gif
// @Param filename path string true "Cover filename"
// @Success 200 {file} file
// @Failure 404 {object} errors.ErrorResponse
// @Router /livros/capas/{filename} [get]
func (h *BookHandler) GetCover(c echo.Context) error {
	path, err := h.covers.Path(c.Param("filename"))
	if err != nil {
		return respondError(c, err)
	}
	return c.File(path)
}

func formString(params url.Values, key string) *string {
	if !params.Has(key) {
		return nil
	}
	v := params.Get(key)
	return &v
}

func formInt(params url.Values, key string) (*int, bool) {
	if !params.Has(key) {
		return nil, false
	}
	n, err := strconv.Atoi(params.Get(key))
	if err != nil {
		return nil, false
	}
	return &n, true
}

// coverUpload opens the optional cover file of a multipart request.
func coverUpload(c echo.Context) (*service.CoverUpload, func(), error) {
	header, err := c.FormFile(coverField)
	if err != nil {
		if stderrors.Is(err, http.ErrMissingFile) || stderrors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, nil, invalidBody()
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, invalidBody()
	}

	return &service.CoverUpload{Filename: header.Filename, Content: file}, func() { _ = file.Close() }, nil
}
