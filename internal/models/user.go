package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Wins         int       `json:"wins"`
	Draws        int       `json:"draws"`
	Losses       int       `json:"losses"`
	Deleted      bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Public strips the email for responses about other users.
func (u User) Public() User {
	u.Email = ""
	return u
}

type CreateUserParams struct {
	Name         string
	Email        string
	PasswordHash string
}

type UserListParams struct {
	NamePrefix string
	Page       Page
}
