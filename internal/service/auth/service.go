package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/splax/todos/internal/apperr"
	"github.com/splax/todos/internal/domain"
	"github.com/splax/todos/internal/repository"
	"github.com/splax/todos/pkg/config"
	"github.com/splax/todos/pkg/crypto"
	jwtpkg "github.com/splax/todos/pkg/jwt"
)

const (
	msgNoMatchingEmail   = "No Matching Email"
	msgPasswordMismatch  = "Passwords Don't Match"
	msgInvalidRefresh    = "Invalid refresh token"
	msgAuthFailed        = "authentication failed"
	msgInsufficientPerms = "Insufficient permission"
)

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, tokens repository.RefreshTokenRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, tokens: tokens, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// PayloadFor builds the identity signed into a user's tokens.
func PayloadFor(user *domain.User) jwtpkg.Payload {
	return jwtpkg.Payload{
		UserID:     user.ID,
		Name:       user.Name,
		Email:      user.Email,
		Permission: slices.Clone(user.Permission),
	}
}

// Login authenticates a user, registers a fresh refresh token and returns both tokens.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, apperr.NotFound(msgNoMatchingEmail)
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		s.logger.Warn("login password mismatch", "user_id", user.ID)
		return nil, TokenPair{}, apperr.Wrap(apperr.KindUnauthorized, msgPasswordMismatch, err)
	}

	payload := PayloadFor(user)
	access, err := s.GenerateAccessToken(payload)
	if err != nil {
		return nil, TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(payload, jwtpkg.TypeRefresh, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.tokens.Add(ctx, refresh, s.cfg.RefreshTokenTTL); err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// GenerateAccessToken signs payload into a short-lived access token.
func (s Service) GenerateAccessToken(payload jwtpkg.Payload) (string, error) {
	return jwtpkg.GenerateToken(payload, jwtpkg.TypeAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
}

// VerifyRefreshToken checks signature, expiry and type of a refresh token.
func (s Service) VerifyRefreshToken(token string) (*jwtpkg.Claims, error) {
	claims, err := jwtpkg.ParseType(strings.TrimSpace(token), jwtpkg.TypeRefresh, s.cfg.JWTSecret)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindForbidden, msgInvalidRefresh, err)
	}
	return claims, nil
}

// IsRefreshTokenValid reports whether token was issued by this service and
// has not expired or been revoked. An unknown token is a Forbidden error.
func (s Service) IsRefreshTokenValid(ctx context.Context, token string) (bool, error) {
	ok, err := s.tokens.Contains(ctx, token)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, apperr.Forbidden(msgInvalidRefresh)
	}
	return true, nil
}

// Refresh redeems a refresh token for a new access token.
func (s Service) Refresh(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.Forbidden(msgInvalidRefresh)
	}
	claims, err := s.VerifyRefreshToken(token)
	if err != nil {
		return "", err
	}
	if _, err := s.IsRefreshTokenValid(ctx, token); err != nil {
		return "", err
	}
	access, err := s.GenerateAccessToken(claims.Payload)
	if err != nil {
		return "", err
	}
	s.logger.Debug("access token refreshed", "user_id", claims.UserID)
	return access, nil
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return s.tokens.Remove(ctx, token)
}

// Authenticate validates an access token and returns its claims.
func (s Service) Authenticate(token string) (*jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	claims, err := jwtpkg.ParseType(trimmed, jwtpkg.TypeAccess, s.cfg.JWTSecret)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, msgAuthFailed, err)
	}
	return claims, nil
}

// Authorize requires identity to carry one of roles, or the super admin role
// when roles is empty.
func Authorize(identity jwtpkg.Payload, roles ...string) error {
	if len(roles) == 0 {
		roles = []string{domain.RoleSuperAdmin}
	}
	for _, role := range roles {
		if slices.Contains(identity.Permission, role) {
			return nil
		}
	}
	return apperr.Forbidden(msgInsufficientPerms)
}
