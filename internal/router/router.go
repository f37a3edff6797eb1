package router

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	echoSwagger "github.com/swaggo/echo-swagger"

	"bookbase/internal/auth"
	"bookbase/internal/config"
	"bookbase/internal/errors"
	"bookbase/internal/handler"
	"bookbase/internal/model"
	"bookbase/internal/service"
)

// uploadOverhead leaves room for the multipart envelope and text fields.
const uploadOverhead = 1 << 20

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	jwtService *auth.JWTService,
	authService service.AuthService,
	authHandler *handler.AuthHandler,
	bookHandler *handler.BookHandler,
	loanHandler *handler.LoanHandler,
	userHandler *handler.UserHandler,
) {
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadSize+uploadOverhead)))

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, handler.MessageResponse{Message: "Welcome to the bookbase library API"})
	})
	health := func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "healthy"})
	}
	e.GET("/healthz", health)
	e.GET("/api/health", health)

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	authenticated := []echo.MiddlewareFunc{bearerToken(jwtService), loadUser(authService)}
	anyUser := requireRoles(auth.AnyUser)
	staff := requireRoles(auth.LibrarianOrAdmin)
	admin := requireRoles(auth.AdminOnly)

	// Public routes
	authGroup := e.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/login-json", authHandler.LoginJSON)

	// Any authenticated user
	me := authGroup.Group("", append(authenticated, anyUser)...)
	me.GET("/me", authHandler.Me)
	me.PUT("/change-password", authHandler.ChangePassword)
	me.POST("/logout", authHandler.Logout)

	// Catalog: reads are public, writes need staff
	books := e.Group("/livros")
	books.GET("", bookHandler.ListBooks)
	books.GET("/capas/:filename", bookHandler.GetCover)
	books.GET("/:id", bookHandler.GetBook)
	bookAdmin := books.Group("", append(authenticated, staff)...)
	bookAdmin.POST("", bookHandler.CreateBook)
	bookAdmin.PUT("/:id", bookHandler.UpdateBook)
	bookAdmin.DELETE("/:id", bookHandler.DeleteBook)

	loans := e.Group("/emprestimos", authenticated...)
	loans.GET("", loanHandler.ListLoans, anyUser)
	loans.GET("/atrasados", loanHandler.ListOverdue, staff)
	loans.GET("/usuario/:id", loanHandler.ListUserLoans, anyUser)
	loans.GET("/:id", loanHandler.GetLoan, anyUser)
	loans.POST("", loanHandler.CreateLoan, staff)
	loans.PUT("/:id", loanHandler.UpdateLoan, staff)
	loans.PUT("/:id/devolver", loanHandler.ReturnLoan, staff)
	loans.DELETE("/:id", loanHandler.DeleteLoan, staff)

	users := e.Group("/usuarios", append(authenticated, admin)...)
	users.GET("", userHandler.ListUsers)
	users.GET("/:id", userHandler.GetUser)
	users.PUT("/:id", userHandler.UpdateUser)
}

// bearerToken validates the Authorization header and stores the claims.
func bearerToken(jwtService *auth.JWTService) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey: handler.ContextKeyClaims,
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return jwtService.ValidateToken(token)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
				Error: errors.ErrInvalidToken.Error(),
				Code:  "INVALID_TOKEN",
			})
		},
	})
}

// loadUser resolves the token subject to an active user.
func loadUser(authService service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := handler.CurrentClaims(c)
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
					Error: errors.ErrInvalidToken.Error(),
					Code:  "INVALID_TOKEN",
				})
			}

			user, err := authService.Authenticate(c.Request().Context(), claims)
			if err != nil {
				httpErr := errors.MapErrorToHTTP(err)
				return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
			}

			c.Set(handler.ContextKeyUser, user)
			return next(c)
		}
	}
}

// requireRoles rejects users whose role is not in allowed.
func requireRoles(allowed []model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := handler.CurrentUser(c)
			if user == nil || !auth.Authorize(user.Role, allowed) {
				return echo.NewHTTPError(http.StatusForbidden, errors.ErrorResponse{
					Error: errors.ErrForbidden.Error(),
					Code:  "FORBIDDEN",
				})
			}
			return next(c)
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Status >= http.StatusInternalServerError {
				event = log.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
