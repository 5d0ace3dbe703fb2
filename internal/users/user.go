package users

import (
	"errors"
	"time"

	"github.com/2beens/fittrack/internal/auth"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already in use")
	ErrUsernameTaken = errors.New("username already in use")
)

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name,omitempty"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) Identity() auth.Identity {
	return auth.Identity{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

// UpdateParams carries a partial update; nil fields are left untouched.
type UpdateParams struct {
	Email        *string
	Username     *string
	FullName     *string
	PasswordHash *string
}

func (p UpdateParams) IsEmpty() bool {
	return p.Email == nil && p.Username == nil && p.FullName == nil && p.PasswordHash == nil
}
