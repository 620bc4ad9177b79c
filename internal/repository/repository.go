package repository

import (
	"context"
	"time"

	"github.com/splax/todos/internal/domain"
)

// UserRepository persists users. Email is unique across the directory.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, id int64) error
}

// TodoRepository persists to-dos. Ownership is the owner's ordered Todos list.
type TodoRepository interface {
	CreateTodo(ctx context.Context, ownerID int64, todo *domain.Todo) error
	GetTodo(ctx context.Context, id int64) (*domain.Todo, error)
	ListTodosByOwner(ctx context.Context, ownerID int64) ([]domain.Todo, error)
	UpdateTodo(ctx context.Context, todo *domain.Todo) error
	DeleteTodo(ctx context.Context, ownerID, id int64) error
}

// RefreshTokenRepository tracks issued refresh tokens until they expire.
type RefreshTokenRepository interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
	Remove(ctx context.Context, token string) error
}

// Store bundles the user and to-do directories behind one backend.
type Store interface {
	UserRepository
	TodoRepository
	Ping(ctx context.Context) error
}
