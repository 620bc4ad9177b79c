package todo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/splax/todos/internal/apperr"
	"github.com/splax/todos/internal/domain"
	"github.com/splax/todos/internal/repository"
)

const (
	msgUserNotFound  = "User Not Found"
	msgTodosNotFound = "Todos Not Found"
	msgTodoNotFound  = "Todo with that ID doesn't exist"
	msgOwnerNotFound = "User not found"
	msgCannotUpdate  = "Cannot update someone else's Todo"
	msgCannotDelete  = "Cannot delete someone else's Todo"
	msgTodoDeleted   = "Successfully deleted Todo"
)

// Repository is the storage the service needs.
type Repository interface {
	repository.TodoRepository
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
}

// Input carries to-do fields. Nil fields are left unchanged on update.
type Input struct {
	Name   *string
	IsDone *bool
}

// Service applies ownership-scoped to-do operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// New constructs a Service.
func New(repo Repository, logger *slog.Logger) Service {
	return Service{repo: repo, logger: logger}
}

// GetAllTodos returns the user's to-dos. A user with none gets NotFound.
func (s Service) GetAllTodos(ctx context.Context, userID int64) ([]domain.Todo, error) {
	todos, err := s.repo.ListTodosByOwner(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgUserNotFound)
		}
		return nil, err
	}
	if len(todos) == 0 {
		return nil, apperr.NotFound(msgTodosNotFound)
	}
	return todos, nil
}

// AddTodo creates a to-do owned by userID.
func (s Service) AddTodo(ctx context.Context, in Input, userID int64) (*domain.Todo, error) {
	todo := &domain.Todo{}
	if in.Name != nil {
		todo.Name = *in.Name
	}
	if in.IsDone != nil {
		todo.IsDone = *in.IsDone
	}
	if err := s.repo.CreateTodo(ctx, userID, todo); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgUserNotFound)
		}
		return nil, err
	}
	s.logger.Info("todo created", "todo_id", todo.ID, "user_id", userID)
	return todo, nil
}

// checkOwnership resolves the to-do and its owner in the order the API reports them.
func (s Service) checkOwnership(ctx context.Context, id, userID int64, denied string) (*domain.Todo, error) {
	todo, err := s.repo.GetTodo(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgTodoNotFound)
		}
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgOwnerNotFound)
		}
		return nil, err
	}
	if user.TodoIndex(id) < 0 {
		s.logger.Warn("todo ownership denied", "todo_id", id, "user_id", userID)
		return nil, apperr.Unauthorized(denied)
	}
	return todo, nil
}

// UpdateTodo overwrites the provided fields of a to-do the caller owns.
func (s Service) UpdateTodo(ctx context.Context, id int64, in Input, userID int64) (*domain.Todo, error) {
	todo, err := s.checkOwnership(ctx, id, userID, msgCannotUpdate)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		todo.Name = *in.Name
	}
	if in.IsDone != nil {
		todo.IsDone = *in.IsDone
	}
	if err := s.repo.UpdateTodo(ctx, todo); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgTodoNotFound)
		}
		return nil, err
	}
	s.logger.Info("todo updated", "todo_id", id, "user_id", userID)
	return todo, nil
}

// DeleteTodo removes a to-do the caller owns and returns a confirmation.
func (s Service) DeleteTodo(ctx context.Context, id, userID int64) (string, error) {
	if _, err := s.checkOwnership(ctx, id, userID, msgCannotDelete); err != nil {
		return "", err
	}
	if err := s.repo.DeleteTodo(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperr.NotFound(msgTodoNotFound)
		}
		return "", err
	}
	s.logger.Info("todo deleted", "todo_id", id, "user_id", userID)
	return msgTodoDeleted, nil
}
