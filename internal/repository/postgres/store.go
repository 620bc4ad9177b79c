// Package postgres implements the repositories on PostgreSQL through
// database/sql and the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/splax/todos/internal/domain"
	"github.com/splax/todos/internal/repository"
)

const uniqueViolation = "23505"

// Store implements repository.Store on PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New constructs a Store.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func encodePermission(permission []string) (string, error) {
	if permission == nil {
		permission = []string{}
	}
	raw, err := json.Marshal(permission)
	if err != nil {
		return "", fmt.Errorf("encode permission: %w", err)
	}
	return string(raw), nil
}

// CreateUser inserts a user and sets its generated id.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (name, email, password_hash, permission, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	permission, err := encodePermission(user.Permission)
	if err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	err = s.db.QueryRowContext(ctx, query, user.Name, user.Email, user.PasswordHash, permission, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.Todos = []int64{}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u          domain.User
		permission []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &permission, &u.CreatedAt); err != nil {
		return nil, err
	}
	if len(permission) > 0 {
		if err := json.Unmarshal(permission, &u.Permission); err != nil {
			return nil, fmt.Errorf("decode permission: %w", err)
		}
	}
	return &u, nil
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	if u.Todos, err = s.todoIDs(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByID fetches a user with its to-do ids.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT id, name, email, password_hash, permission, created_at FROM users WHERE id = $1`
	return s.getUser(ctx, query, id)
}

// GetUserByEmail fetches a user by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, name, email, password_hash, permission, created_at FROM users WHERE lower(email) = lower($1)`
	return s.getUser(ctx, query, email)
}

func (s *Store) todoIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	const query = `SELECT id FROM todos WHERE owner_id = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select todo ids: %w", err)
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan todo id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	const usersQuery = `SELECT id, name, email, password_hash, permission, created_at FROM users ORDER BY id`
	const todosQuery = `SELECT owner_id, id FROM todos WHERE owner_id IS NOT NULL ORDER BY id`

	rows, err := s.db.QueryContext(ctx, usersQuery)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Todos = []int64{}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	todoRows, err := s.db.QueryContext(ctx, todosQuery)
	if err != nil {
		return nil, fmt.Errorf("select todo owners: %w", err)
	}
	defer todoRows.Close()
	byOwner := make(map[int64][]int64)
	for todoRows.Next() {
		var ownerID, id int64
		if err := todoRows.Scan(&ownerID, &id); err != nil {
			return nil, fmt.Errorf("scan todo owner: %w", err)
		}
		byOwner[ownerID] = append(byOwner[ownerID], id)
	}
	if err := todoRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todo owners: %w", err)
	}
	for i := range users {
		if ids, ok := byOwner[users[i].ID]; ok {
			users[i].Todos = ids
		}
	}
	return users, nil
}

// UpdateUser overwrites name, email, password hash and permission.
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users SET name = $2, email = $3, password_hash = $4, permission = $5
		WHERE id = $1 RETURNING created_at`
	permission, err := encodePermission(user.Permission)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, permission).Scan(&user.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return repository.ErrNotFound
		case isUniqueViolation(err):
			return repository.ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	user.Todos, err = s.todoIDs(ctx, user.ID)
	return err
}

// DeleteUser removes a user. Owned to-dos keep existing with a null owner.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	const query = `DELETE FROM users WHERE id = $1`
	return s.execAffecting(ctx, "delete user", query, id)
}

// CreateTodo inserts todo for ownerID inside a transaction that locks the owner row.
func (s *Store) CreateTodo(ctx context.Context, ownerID int64, todo *domain.Todo) (err error) {
	const ownerQuery = `SELECT id FROM users WHERE id = $1 FOR SHARE`
	const insertQuery = `INSERT INTO todos (name, is_done, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4) RETURNING id`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id int64
	if err = tx.QueryRowContext(ctx, ownerQuery, ownerID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("lock owner: %w", err)
	}
	now := s.now().UTC()
	if err = tx.QueryRowContext(ctx, insertQuery, todo.Name, todo.IsDone, ownerID, now).Scan(&todo.ID); err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit todo: %w", err)
	}
	todo.CreatedAt = now
	todo.UpdatedAt = now
	return nil
}

func scanTodo(row rowScanner) (*domain.Todo, error) {
	var t domain.Todo
	if err := row.Scan(&t.ID, &t.Name, &t.IsDone, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTodo fetches a to-do by id.
func (s *Store) GetTodo(ctx context.Context, id int64) (*domain.Todo, error) {
	const query = `SELECT id, name, is_done, created_at, updated_at FROM todos WHERE id = $1`
	t, err := scanTodo(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select todo: %w", err)
	}
	return t, nil
}

// ListTodosByOwner lists the owner's to-dos in creation order.
func (s *Store) ListTodosByOwner(ctx context.Context, ownerID int64) ([]domain.Todo, error) {
	const ownerQuery = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	const query = `SELECT id, name, is_done, created_at, updated_at FROM todos WHERE owner_id = $1 ORDER BY id`

	var exists bool
	if err := s.db.QueryRowContext(ctx, ownerQuery, ownerID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check owner: %w", err)
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select todos: %w", err)
	}
	defer rows.Close()
	todos := []domain.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return todos, nil
}

// UpdateTodo overwrites name and isDone.
func (s *Store) UpdateTodo(ctx context.Context, todo *domain.Todo) error {
	const query = `UPDATE todos SET name = $2, is_done = $3, updated_at = $4
		WHERE id = $1 RETURNING created_at, updated_at`
	err := s.db.QueryRowContext(ctx, query, todo.ID, todo.Name, todo.IsDone, s.now().UTC()).Scan(&todo.CreatedAt, &todo.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("update todo: %w", err)
	}
	return nil
}

// DeleteTodo deletes id when it belongs to ownerID.
func (s *Store) DeleteTodo(ctx context.Context, ownerID, id int64) error {
	const query = `DELETE FROM todos WHERE id = $1 AND owner_id = $2`
	return s.execAffecting(ctx, "delete todo", query, id, ownerID)
}

func (s *Store) execAffecting(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
