package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"bookbase/internal/model"
	"bookbase/internal/service"
)

// LoanHandler handles loan endpoints.
type LoanHandler struct {
	loanService service.LoanService
}

// NewLoanHandler creates a new loan handler.
func NewLoanHandler(loanService service.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

// CreateLoanRequest represents a checkout request.
type CreateLoanRequest struct {
	UserID           uint      `json:"user_id" validate:"required"`
	BookID           uint      `json:"book_id" validate:"required"`
	ExpectedReturnAt time.Time `json:"expected_return_at" validate:"required"`
}

// UpdateLoanRequest represents a partial loan update.
type UpdateLoanRequest struct {
	ExpectedReturnAt *time.Time        `json:"expected_return_at"`
	ReturnedAt       *time.Time        `json:"returned_at"`
	Status           *model.LoanStatus `json:"status"`
}

// LoanRow is a loan listing entry.
type LoanRow struct {
	ID               uint             `json:"id"`
	UserID           uint             `json:"user_id"`
	BookID           uint             `json:"book_id"`
	LoanedAt         time.Time        `json:"loaned_at"`
	ExpectedReturnAt time.Time        `json:"expected_return_at"`
	ReturnedAt       *time.Time       `json:"returned_at"`
	Status           model.LoanStatus `json:"status"`
	UserName         string           `json:"user_name"`
	BookTitle        string           `json:"book_title"`
}

func newLoanRow(loan model.Loan) LoanRow {
	row := LoanRow{
		ID:               loan.ID,
		UserID:           loan.UserID,
		BookID:           loan.BookID,
		LoanedAt:         loan.LoanedAt,
		ExpectedReturnAt: loan.ExpectedReturnAt,
		ReturnedAt:       loan.ReturnedAt,
		Status:           loan.Status,
	}
	if loan.User != nil {
		row.UserName = loan.User.Name
	}
	if loan.Book != nil {
		row.BookTitle = loan.Book.Title
	}
	return row
}

// CreateLoan godoc
// @Summary Check out a book
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateLoanRequest true "Loan data"
// @Success 201 {object} model.Loan
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /emprestimos [post]
func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req CreateLoanRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody()
	}

	if err := c.Validate(&req); err != nil {
		return validationFailed(err)
	}

	loan, err := h.loanService.CreateLoan(c.Request().Context(), service.LoanInput{
		UserID:           req.UserID,
		BookID:           req.BookID,
		ExpectedReturnAt: req.ExpectedReturnAt,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, loan)
}

// ListLoans godoc
// @Summary List loans
// @Description Patrons only see their own loans; usuario_id is ignored for them.
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param skip query int false "Offset" default(0)
// @Param limit query int false "Page size" default(10)
// @Param status query string false "Loan status" Enums(active, returned)
// @Param usuario_id query int false "User ID"
// @Success 200 {array} LoanRow
// @Failure 400 {object} errors.ErrorResponse
// @Router /emprestimos [get]
func (h *LoanHandler) ListLoans(c echo.Context) error {
	offset, limit, err := paging(c)
	if err != nil {
		return err
	}

	query := service.LoanQuery{Offset: offset, Limit: limit}
	if v := c.QueryParam("status"); v != "" {
		status := model.LoanStatus(v)
		query.Status = &status
	}
	if v := c.QueryParam("usuario_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest("invalid usuario_id", "INVALID_QUERY")
		}
		userID := uint(id)
		query.UserID = &userID
	}

	loans, err := h.loanService.ListLoans(c.Request().Context(), query, CurrentUser(c))
	if err != nil {
		return respondError(c, err)
	}

	rows := make([]LoanRow, 0, len(loans))
	for _, loan := range loans {
		rows = append(rows, newLoanRow(loan))
	}
	return c.JSON(http.StatusOK, rows)
}

// GetLoan godoc
// @Summary Get a loan
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} model.Loan
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /emprestimos/{id} [get]
func (h *LoanHandler) GetLoan(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	loan, err := h.loanService.GetLoan(c.Request().Context(), id, CurrentUser(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, loan)
}

// ReturnLoan godoc
// @Summary Return a book
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} model.Loan
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /emprestimos/{id}/devolver [put]
func (h *LoanHandler) ReturnLoan(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	loan, err := h.loanService.ReturnLoan(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, loan)
}

// UpdateLoan godoc
// @Summary Update a loan
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body UpdateLoanRequest true "Fields to change"
// @Success 200 {object} model.Loan
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /emprestimos/{id} [put]
func (h *LoanHandler) UpdateLoan(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req UpdateLoanRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody()
	}

	loan, err := h.loanService.UpdateLoan(c.Request().Context(), id, service.LoanUpdate{
		ExpectedReturnAt: req.ExpectedReturnAt,
		ReturnedAt:       req.ReturnedAt,
		Status:           req.Status,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, loan)
}

// DeleteLoan godoc
// @Summary Delete a loan
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /emprestimos/{id} [delete]
func (h *LoanHandler) DeleteLoan(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.loanService.DeleteLoan(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: "loan deleted successfully"})
}

// ListUserLoans godoc
// @Summary List the loans of a user
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {array} model.Loan
// @Failure 403 {object} errors.ErrorResponse
// @Router /emprestimos/usuario/{id} [get]
func (h *LoanHandler) ListUserLoans(c echo.Context) error {
	userID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	loans, err := h.loanService.ListForUser(c.Request().Context(), userID, CurrentUser(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, loans)
}

// ListOverdue godoc
// @Summary List overdue loans
// @Description Active loans whose expected return day is before today, with the late fee owed.
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Success 200 {array} service.OverdueLoan
// @Failure 403 {object} errors.ErrorResponse
// @Router /emprestimos/atrasados [get]
func (h *LoanHandler) ListOverdue(c echo.Context) error {
	loans, err := h.loanService.ListOverdue(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, loans)
}
