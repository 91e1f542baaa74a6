package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yukikurage/task-tracker-api/internal/auth"
	"github.com/yukikurage/task-tracker-api/internal/logger"
	"github.com/yukikurage/task-tracker-api/internal/metrics"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/policy"
	"github.com/yukikurage/task-tracker-api/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserNotFound         = errors.New("user not found")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrDenylistUnavailable  = errors.New("token denylist unavailable")
	ErrFailedToHashPassword = errors.New("failed to hash password")
)

// AuthService handles registration, login and token renewal.
type AuthService struct {
	userRepo           repository.UserRepository
	hasher             auth.PasswordHasher
	tokens             *auth.TokenService
	denylist           auth.Denylist
	roleSelectionAllow bool
}

// AuthOption configures optional AuthService behaviour.
type AuthOption func(*AuthService)

// WithDenylist enables token revocation.
func WithDenylist(d auth.Denylist) AuthOption {
	return func(s *AuthService) {
		s.denylist = d
	}
}

// WithRoleSelection lets registrants pick a role other than user.
func WithRoleSelection(allow bool) AuthOption {
	return func(s *AuthService) {
		s.roleSelectionAllow = allow
	}
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repository.UserRepository, hasher auth.PasswordHasher, tokens *auth.TokenService, opts ...AuthOption) *AuthService {
	s := &AuthService{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput represents the information needed to create an account.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	Role     models.Role
}

// Register creates a new account with the user role unless role selection
// is enabled.
func (s *AuthService) Register(input RegisterInput) (*models.User, error) {
	email := normalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)

	emailTaken, err := taken(s.userRepo.FindByEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	usernameTaken, err := taken(s.userRepo.FindByUsername(username))
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	if err := enforce(policy.ActionRegister, policy.CheckRegistration(policy.Registration{
		EmailTaken:     emailTaken,
		UsernameTaken:  usernameTaken,
		RequestedRole:  input.Role,
		RoleSelectable: s.roleSelectionAllow,
	})); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, ErrFailedToHashPassword
	}

	role := input.Role
	if role == "" {
		role = models.RoleUser
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}

	if err := s.userRepo.Create(user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, duplicateUserError(s.userRepo, policy.ActionRegister, email, 0)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// LoginResult carries the authenticated user and the issued session token.
type LoginResult struct {
	User   *models.User
	Token  string
	Claims *auth.Claims
}

// Login verifies credentials and issues a session token. Unknown email and
// wrong password both yield ErrInvalidCredentials.
func (s *AuthService) Login(email, password string) (*LoginResult, error) {
	user, err := s.userRepo.FindByEmail(normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	metrics.TokensIssuedTotal.WithLabelValues("login").Inc()
	return &LoginResult{User: user, Token: token, Claims: claims}, nil
}

// Refresh renews a validly signed token, expired or not. Revoked tokens are
// refused when a denylist is configured.
func (s *AuthService) Refresh(ctx context.Context, token string) (string, *auth.Claims, error) {
	if s.denylist != nil {
		old, err := s.tokens.VerifySignature(token)
		if err != nil {
			return "", nil, err
		}
		revoked, err := s.denylist.IsRevoked(ctx, old.ID)
		if err != nil {
			logger.Get().Error().Err(err).Str("jti", old.ID).Msg("denylist lookup failed")
			return "", nil, fmt.Errorf("%w: %v", ErrDenylistUnavailable, err)
		}
		if revoked {
			return "", nil, ErrTokenRevoked
		}
	}

	fresh, claims, err := s.tokens.Refresh(token)
	if err != nil {
		return "", nil, err
	}

	metrics.TokensIssuedTotal.WithLabelValues("refresh").Inc()
	return fresh, claims, nil
}

// Logout revokes token when a denylist is configured. Tokens that do not
// verify are ignored; the caller clears the cookie either way.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if s.denylist == nil || token == "" {
		return nil
	}
	claims, err := s.tokens.VerifySignature(token)
	if err != nil {
		return nil
	}
	return s.Revoke(ctx, claims)
}

// Revoke adds the token described by claims to the denylist, expired or not.
func (s *AuthService) Revoke(ctx context.Context, claims *auth.Claims) error {
	if s.denylist == nil || claims == nil || claims.ID == "" {
		return nil
	}
	if err := s.denylist.Revoke(ctx, claims.ID); err != nil {
		logger.Get().Error().Err(err).Str("jti", claims.ID).Msg("failed to revoke token")
		return err
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(id uint64) (*models.User, error) {
	user, err := s.userRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
