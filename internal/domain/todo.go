package domain

import "time"

// Todo is a single item on a user's list.
type Todo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsDone    bool      `json:"isDone"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
