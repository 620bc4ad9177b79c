package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/splax/todos/internal/apperr"
	"github.com/splax/todos/internal/domain"
	"github.com/splax/todos/internal/repository"
	"github.com/splax/todos/pkg/config"
	"github.com/splax/todos/pkg/crypto"
)

const (
	msgEmailTaken     = "Email already taken"
	msgCreateFailed   = "Error creating user"
	msgUpdateFailed   = "Error updating user"
	msgNoUserWithID   = "No user with that id"
	msgNoUserToUpdate = "No user with that ID"
	msgNoUsers        = "No users created to show"
	msgUserDeleted    = "Successfully deleted user"
)

// Filter narrows GetUsers. The zero value returns every user.
type Filter struct {
	Query string
	Page  int
	Size  int
}

// Service manages the user directory.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
	hash   func(plain string, cost int) ([]byte, error)
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, logger: logger, cfg: cfg, hash: crypto.HashPassword}
}

// CreateUser registers a user with the default role.
func (s Service) CreateUser(ctx context.Context, name, password, email string) (*domain.User, error) {
	return s.create(ctx, name, password, email, []string{domain.RoleUser})
}

func (s Service) create(ctx context.Context, name, password, email string, permission []string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict(msgEmailTaken)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	hash, err := s.hash(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, msgCreateFailed, err)
	}
	user := &domain.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Permission:   permission,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// The store re-checks uniqueness under its own lock.
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Conflict(msgEmailTaken)
		}
		return nil, err
	}
	s.logger.Info("user created", "user_id", user.ID)
	return user, nil
}

// SeedAdmin creates a super admin account when no user holds email yet.
func (s Service) SeedAdmin(ctx context.Context, name, email, password string) (*domain.User, error) {
	if existing, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return s.create(ctx, name, password, email, []string{domain.RoleSuperAdmin, domain.RoleUser})
}

// FindUserByID returns a user or NotFound.
func (s Service) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgNoUserWithID)
		}
		return nil, err
	}
	return user, nil
}

// GetUsers lists users matching filter. An empty result is NotFound.
func (s Service) GetUsers(ctx context.Context, filter Filter) ([]domain.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		matched := users[:0]
		for _, u := range users {
			if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Email), q) {
				matched = append(matched, u)
			}
		}
		users = matched
	}
	if filter.Size > 0 {
		page := max(filter.Page, 1)
		start := (page - 1) * filter.Size
		if start >= len(users) {
			users = nil
		} else {
			users = users[start:min(start+filter.Size, len(users))]
		}
	}
	if len(users) == 0 {
		return nil, apperr.NotFound(msgNoUsers)
	}
	return users, nil
}

// DeleteUser removes a user. Their to-dos are not deleted.
func (s Service) DeleteUser(ctx context.Context, id int64) (string, error) {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperr.NotFound(msgNoUserWithID)
		}
		return "", err
	}
	s.logger.Info("user deleted", "user_id", id)
	return msgUserDeleted, nil
}

// UpdateUser changes email and/or password. Empty values keep the current ones.
func (s Service) UpdateUser(ctx context.Context, email, password string, id int64) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgNoUserToUpdate)
		}
		return nil, err
	}
	if email = strings.TrimSpace(email); email != "" {
		existing, err := s.users.GetUserByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != id:
			return nil, apperr.Conflict(msgEmailTaken)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
		user.Email = email
	}
	if password != "" {
		hash, err := s.hash(password, s.cfg.BcryptCost)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, msgUpdateFailed, err)
		}
		user.PasswordHash = hash
	}
	if err := s.users.UpdateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, apperr.Conflict(msgEmailTaken)
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.NotFound(msgNoUserToUpdate)
		}
		return nil, err
	}
	s.logger.Info("user updated", "user_id", id)
	return user, nil
}
