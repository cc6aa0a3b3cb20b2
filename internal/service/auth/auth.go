package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nkiryanov/taskm/internal/apperrors"
	"github.com/nkiryanov/taskm/internal/models"
	"github.com/nkiryanov/taskm/internal/repository"
	"github.com/nkiryanov/taskm/internal/service/auth/tokenmanager"
)

type Config struct {
	// Hasher to use during user registration or login
	// Default bcrypt hasher is used if not set
	Hasher PasswordHasher
}

// AuthService implements the register/login/refresh/logout flows over one
// logical session. Stateless on the server side: every operation derives
// everything from its inputs, logout only clears transport cookies.
type AuthService struct {
	// Transport is embedded so handlers get cookie helpers from one place
	*SessionTransport

	token    *tokenmanager.TokenManager
	hasher   PasswordHasher
	userRepo repository.UserRepo
}

func NewService(cfg Config, token *tokenmanager.TokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	if token == nil || userRepo == nil {
		return nil, errors.New("token manager and user repo must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	return &AuthService{
		SessionTransport: NewSessionTransport(),
		token:            token,
		hasher:           hasher,
		userRepo:         userRepo,
	}, nil
}

// Register new user with role "user" and issue a fresh token pair
// Email uniqueness is enforced atomically by the store, a duplicate
// registration race loses with apperrors.ErrUserAlreadyExists
func (s *AuthService) Register(ctx context.Context, name string, email string, password string) (models.AuthResult, error) {
	var res models.AuthResult

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return res, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Name:           name,
		Email:          email,
		HashedPassword: hash,
		Role:           models.RoleUser,
	})
	if err != nil {
		return res, err
	}

	return s.authResult(user)
}

// Login with email and password
// Unknown email and wrong password fail with the same
// apperrors.ErrInvalidCredentials, so responses don't enumerate accounts
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.AuthResult, error) {
	var res models.AuthResult

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Burn comparable time so the miss is not observable
		_ = s.hasher.Compare("$2a$10$00000000000000000000000000000000000000000000000000000", password)
		return res, apperrors.ErrInvalidCredentials
	case err != nil:
		return res, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return res, apperrors.ErrInvalidCredentials
	}

	return s.authResult(user)
}

// Refresh verifies the refresh token, re-resolves the identity and rotates
// the pair. No revocation list is kept: the previous refresh token stays
// cryptographically valid until its own expiry
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.AuthResult, error) {
	var res models.AuthResult

	userID, err := s.token.Verify(refresh, models.TokenKindRefresh)
	if err != nil {
		return res, fmt.Errorf("%w: %w", apperrors.ErrRefreshTokenInvalid, err)
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return res, fmt.Errorf("%w: user gone", apperrors.ErrRefreshTokenInvalid)
	case err != nil:
		return res, err
	}

	return s.authResult(user)
}

// Logout is stateless: the only effect is clearing transport cookies,
// which the handler does via ClearTokens

// Authenticate the inbound request and resolve its user
// Error taxonomy the middleware branches on:
//   - apperrors.ErrNoToken: request carried no token
//   - apperrors.ErrTokenExpired: token stale, client may refresh
//   - apperrors.ErrNotAuthenticated: token forged/malformed or user gone
func (s *AuthService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	var user models.User

	access, err := s.GetAccessString(r)
	if err != nil {
		return user, err
	}

	userID, err := s.token.Verify(access, models.TokenKindAccess)
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		return user, err
	case err != nil:
		return user, fmt.Errorf("%w: %w", apperrors.ErrNotAuthenticated, err)
	}

	user, err = s.userRepo.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Identity deleted after token issuance: absent, not a fault
		return user, fmt.Errorf("%w: user gone", apperrors.ErrNotAuthenticated)
	case err != nil:
		return user, err
	}

	return user, nil
}

func (s *AuthService) authResult(user models.User) (models.AuthResult, error) {
	pair, err := s.token.GeneratePair(user.ID)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return models.AuthResult{User: user, Tokens: pair}, nil
}
