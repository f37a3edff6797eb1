package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"bookbase/internal/auth"
	"bookbase/internal/errors"
	"bookbase/internal/model"
)

// Context keys set by the authentication middleware.
const (
	ContextKeyUser   = "current_user"
	ContextKeyClaims = "token_claims"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// CurrentUser returns the authenticated user of the request.
func CurrentUser(c echo.Context) *model.User {
	user, _ := c.Get(ContextKeyUser).(*model.User)
	return user
}

// CurrentClaims returns the validated token claims of the request.
func CurrentClaims(c echo.Context) *auth.Claims {
	claims, _ := c.Get(ContextKeyClaims).(*auth.Claims)
	return claims
}

// respondError converts a service error into an HTTP error response.
func respondError(c echo.Context, err error) error {
	httpErr := errors.MapErrorToHTTP(err)
	if httpErr.StatusCode == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("Request failed")
	}
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}

func badRequest(message, code string) error {
	return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func invalidBody() error {
	return badRequest("invalid request body", "INVALID_REQUEST")
}

func validationFailed(err error) error {
	return badRequest(err.Error(), "VALIDATION_ERROR")
}

func parseID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid "+name, "INVALID_ID")
	}
	return uint(id), nil
}

// paging reads skip and limit query parameters.
func paging(c echo.Context) (offset, limit int, err error) {
	limit = defaultLimit
	if v := c.QueryParam("skip"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, badRequest("invalid skip", "INVALID_QUERY")
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, badRequest("invalid limit", "INVALID_QUERY")
		}
		if limit > maxLimit {
			limit = maxLimit
		}
	}
	return offset, limit, nil
}
