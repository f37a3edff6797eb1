package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"bookbase/internal/auth"
	"bookbase/internal/errors"
	"bookbase/internal/model"
	"bookbase/internal/repository"
)

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     model.Role
	Active   bool
}

// AuthService handles authentication operations.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (accessToken string, user *model.User, err error)
	Authenticate(ctx context.Context, claims *auth.Claims) (*model.User, error)
	ChangePassword(ctx context.Context, user *model.User, currentPassword, newPassword string) error
	Logout(ctx context.Context, claims *auth.Claims) error
}

type authService struct {
	userRepo   repository.UserRepository
	jwtService *auth.JWTService
	tokenStore auth.TokenStoreInterface
}

// NewAuthService creates a new authentication service.
func NewAuthService(userRepo repository.UserRepository, jwtService *auth.JWTService, tokenStore auth.TokenStoreInterface) AuthService {
	return &authService{
		userRepo:   userRepo,
		jwtService: jwtService,
		tokenStore: tokenStore,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new user with hashed password.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	if input.Role == "" {
		input.Role = model.RolePatron
	}
	if !input.Role.Valid() {
		return nil, errors.ErrInvalidRole
	}
	email := normalizeEmail(input.Email)

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, errors.ErrEmailTaken
	}
	if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hashedPassword, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         input.Role,
		Active:       input.Active,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	log.Info().Uint("user_id", user.ID).Str("role", string(user.Role)).Msg("User registered")
	return user, nil
}

// Login authenticates a user and returns a bearer token.
func (s *authService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", nil, errors.ErrInvalidCredentials
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return "", nil, errors.ErrInvalidCredentials
	}

	if !user.Active {
		return "", nil, errors.ErrUserInactive
	}

	accessToken, err := s.jwtService.GenerateAccessToken(user.Email, user.Role)
	if err != nil {
		return "", nil, fmt.Errorf("generate access token: %w", err)
	}

	return accessToken, user, nil
}

// Authenticate resolves validated token claims to an active user.
func (s *authService) Authenticate(ctx context.Context, claims *auth.Claims) (*model.User, error) {
	revoked, err := s.tokenStore.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil || revoked {
		return nil, errors.ErrInvalidToken
	}

	user, err := s.userRepo.FindByEmail(ctx, claims.Email())
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrInvalidToken
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !user.Active {
		return nil, errors.ErrUserInactive
	}
	return user, nil
}

// ChangePassword replaces the user's password after checking the current one.
func (s *authService) ChangePassword(ctx context.Context, user *model.User, currentPassword, newPassword string) error {
	if !auth.CheckPassword(user.PasswordHash, currentPassword) {
		return errors.ErrIncorrectPassword
	}

	hashedPassword, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hashedPassword

	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Logout revokes the token for the rest of its lifetime.
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	return s.tokenStore.RevokeAccessToken(ctx, claims.ID, claims.TTL(time.Now()))
}
