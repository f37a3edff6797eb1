package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrBookNotFound is returned when a book is not found.
	ErrBookNotFound = errors.New("book not found")
	// ErrLoanNotFound is returned when a loan is not found.
	ErrLoanNotFound = errors.New("loan not found")
	// ErrCoverNotFound is returned when a cover image does not exist.
	ErrCoverNotFound = errors.New("cover image not found")

	// ErrEmailTaken is returned when registering an email that is already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrISBNTaken is returned when a book with the same ISBN exists.
	ErrISBNTaken = errors.New("isbn already registered")
	// ErrNoCopiesAvailable is returned when every copy of a book is on loan.
	ErrNoCopiesAvailable = errors.New("no copies available")
	// ErrAlreadyHoldsBook is returned when the user has an active loan for the book.
	ErrAlreadyHoldsBook = errors.New("user already holds this book")
	// ErrLoanAlreadyReturned is returned when returning a loan that is not active.
	ErrLoanAlreadyReturned = errors.New("loan already returned")
	// ErrInvalidLoanTransition is returned for status changes other than active to returned.
	ErrInvalidLoanTransition = errors.New("loan status cannot change from returned to active")
	// ErrBookHasActiveLoans is returned when deleting a book that is still on loan.
	ErrBookHasActiveLoans = errors.New("book has active loans")
	// ErrCopiesBelowActiveLoans is returned when a book's copy count would drop below its active loans.
	ErrCopiesBelowActiveLoans = errors.New("copies cannot be fewer than active loans")

	// ErrInvalidCredentials is returned when email or password is incorrect.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken is returned when a bearer token is invalid, expired or revoked.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrIncorrectPassword is returned when the current password does not match.
	ErrIncorrectPassword = errors.New("current password is incorrect")
	// ErrUserInactive is returned when an inactive user authenticates.
	ErrUserInactive = errors.New("user is inactive")
	// ErrForbidden is returned when the caller lacks the required role or ownership.
	ErrForbidden = errors.New("insufficient permissions")

	// ErrUnsupportedFileType is returned for uploads outside the allowed extensions.
	ErrUnsupportedFileType = errors.New("file type not allowed")
	// ErrFileTooLarge is returned for uploads above the size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrInvalidLoanStatus is returned for unknown loan statuses.
	ErrInvalidLoanStatus = errors.New("invalid loan status")
	// ErrReturnDateRequiresReturned is returned when a return date is set on an active loan.
	ErrReturnDateRequiresReturned = errors.New("returned_at can only be set on a returned loan")
	// ErrInvalidCopies is returned when a book would have fewer than one copy.
	ErrInvalidCopies = errors.New("copies must be at least 1")
	// ErrInvalidRole is returned for unknown roles.
	ErrInvalidRole = errors.New("invalid role")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

var httpMapping = []struct {
	err    error
	status int
	code   string
}{
	{ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{ErrBookNotFound, http.StatusNotFound, "BOOK_NOT_FOUND"},
	{ErrLoanNotFound, http.StatusNotFound, "LOAN_NOT_FOUND"},
	{ErrCoverNotFound, http.StatusNotFound, "COVER_NOT_FOUND"},

	{ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN"},
	{ErrISBNTaken, http.StatusConflict, "ISBN_TAKEN"},
	{ErrNoCopiesAvailable, http.StatusConflict, "NO_COPIES_AVAILABLE"},
	{ErrAlreadyHoldsBook, http.StatusConflict, "ALREADY_HOLDS_BOOK"},
	{ErrLoanAlreadyReturned, http.StatusConflict, "LOAN_ALREADY_RETURNED"},
	{ErrInvalidLoanTransition, http.StatusConflict, "INVALID_LOAN_TRANSITION"},
	{ErrBookHasActiveLoans, http.StatusConflict, "BOOK_HAS_ACTIVE_LOANS"},
	{ErrCopiesBelowActiveLoans, http.StatusConflict, "COPIES_BELOW_ACTIVE_LOANS"},

	{ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN"},
	{ErrUserInactive, http.StatusForbidden, "USER_INACTIVE"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},

	{ErrIncorrectPassword, http.StatusBadRequest, "INCORRECT_PASSWORD"},
	{ErrUnsupportedFileType, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE"},
	{ErrFileTooLarge, http.StatusBadRequest, "FILE_TOO_LARGE"},
	{ErrInvalidLoanStatus, http.StatusBadRequest, "INVALID_LOAN_STATUS"},
	{ErrReturnDateRequiresReturned, http.StatusBadRequest, "INVALID_RETURN_DATE"},
	{ErrInvalidCopies, http.StatusBadRequest, "INVALID_COPIES"},
	{ErrInvalidRole, http.StatusBadRequest, "INVALID_ROLE"},
}

// MapErrorToHTTP maps domain errors, including wrapped ones, to HTTP errors.
// The message keeps any detail added by wrapping.
func MapErrorToHTTP(err error) *HTTPError {
	for _, m := range httpMapping {
		if errors.Is(err, m.err) {
			return NewHTTPError(m.status, err.Error(), m.code)
		}
	}
	return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}
