package domain

import (
	"slices"
	"time"
)

// Role labels carried in User.Permission.
const (
	RoleSuperAdmin = "super admin"
	RoleUser       = "user"
)

// User represents an account that owns to-dos.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Permission   []string  `json:"permission"`
	Todos        []int64   `json:"todos"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasRole reports whether the user carries role.
func (u User) HasRole(role string) bool {
	return slices.Contains(u.Permission, role)
}

// TodoIndex returns the position of todoID in the user's own list, or -1.
func (u User) TodoIndex(todoID int64) int {
	return slices.Index(u.Todos, todoID)
}

// Clone returns a deep copy so callers cannot mutate stored slices.
func (u User) Clone() User {
	u.PasswordHash = slices.Clone(u.PasswordHash)
	u.Permission = slices.Clone(u.Permission)
	u.Todos = slices.Clone(u.Todos)
	return u
}
