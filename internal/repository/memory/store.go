// Package memory implements the repositories on process memory. All data is
// lost when the process exits.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/splax/todos/internal/domain"
	"github.com/splax/todos/internal/repository"
)

// Store is a mutex-guarded user and to-do directory indexed by id and email.
type Store struct {
	mu sync.RWMutex

	usersByID     map[int64]*domain.User
	userIDByEmail map[string]int64
	todos         map[int64]*domain.Todo

	nextUserID int64
	nextTodoID int64
	now        func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		usersByID:     make(map[int64]*domain.User),
		userIDByEmail: make(map[string]int64),
		todos:         make(map[int64]*domain.Todo),
		now:           time.Now,
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// CreateUser assigns the next id and stores a copy of user.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(user.Email)
	if _, taken := s.userIDByEmail[key]; taken {
		return repository.ErrConflict
	}
	s.nextUserID++
	user.ID = s.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	if user.Todos == nil {
		user.Todos = []int64{}
	}
	stored := user.Clone()
	s.usersByID[stored.ID] = &stored
	s.userIDByEmail[key] = stored.ID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := u.Clone()
	return &out, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userIDByEmail[emailKey(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := s.usersByID[id].Clone()
	return &out, nil
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, u.Clone())
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return users, nil
}

// UpdateUser overwrites name, email, password hash and permission. The to-do
// list is owned by the to-do operations and is left untouched.
func (s *Store) UpdateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.usersByID[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	oldKey, newKey := emailKey(current.Email), emailKey(user.Email)
	if oldKey != newKey {
		if owner, taken := s.userIDByEmail[newKey]; taken && owner != user.ID {
			return repository.ErrConflict
		}
		delete(s.userIDByEmail, oldKey)
		s.userIDByEmail[newKey] = user.ID
	}
	current.Name = user.Name
	current.Email = user.Email
	current.PasswordHash = slices.Clone(user.PasswordHash)
	current.Permission = slices.Clone(user.Permission)
	user.Todos = slices.Clone(current.Todos)
	user.CreatedAt = current.CreatedAt
	return nil
}

// DeleteUser removes the user record. Their to-dos stay in the global set.
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.userIDByEmail, emailKey(u.Email))
	delete(s.usersByID, id)
	return nil
}

// CreateTodo stores todo and appends its id to the owner's list in one step.
func (s *Store) CreateTodo(_ context.Context, ownerID int64, todo *domain.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.usersByID[ownerID]
	if !ok {
		return repository.ErrNotFound
	}
	s.nextTodoID++
	now := s.now().UTC()
	todo.ID = s.nextTodoID
	todo.CreatedAt = now
	todo.UpdatedAt = now
	stored := *todo
	s.todos[stored.ID] = &stored
	owner.Todos = append(owner.Todos, stored.ID)
	return nil
}

func (s *Store) GetTodo(_ context.Context, id int64) (*domain.Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.todos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *t
	return &out, nil
}

// ListTodosByOwner returns the owner's to-dos in the order of their list.
func (s *Store) ListTodosByOwner(_ context.Context, ownerID int64) ([]domain.Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.usersByID[ownerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	todos := make([]domain.Todo, 0, len(owner.Todos))
	for _, id := range owner.Todos {
		if t, ok := s.todos[id]; ok {
			todos = append(todos, *t)
		}
	}
	return todos, nil
}

func (s *Store) UpdateTodo(_ context.Context, todo *domain.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.todos[todo.ID]
	if !ok {
		return repository.ErrNotFound
	}
	current.Name = todo.Name
	current.IsDone = todo.IsDone
	current.UpdatedAt = s.now().UTC()
	*todo = *current
	return nil
}

// DeleteTodo removes id from the owner's list and from the global set. It
// fails with ErrNotFound unless the owner currently holds id.
func (s *Store) DeleteTodo(_ context.Context, ownerID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.usersByID[ownerID]
	if !ok {
		return repository.ErrNotFound
	}
	idx := owner.TodoIndex(id)
	if idx < 0 {
		return repository.ErrNotFound
	}
	owner.Todos = slices.Delete(owner.Todos, idx, idx+1)
	delete(s.todos, id)
	return nil
}
