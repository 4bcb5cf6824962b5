package dto

import (
	"time"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

// UserResponse represents an account without its credentials.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserStatsResponse counts accounts by activity and role.
type UserStatsResponse struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Inactive  int `json:"inactive"`
	Admins    int `json:"admins"`
	Managers  int `json:"managers"`
	Employees int `json:"employees"`
}

// IdentityResponse is the caller as seen by the auth layer.
type IdentityResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      IdentityResponse `json:"user"`
}

// NewUser maps a user entity.
func NewUser(u *entity.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// NewUsers maps a list of user entities.
func NewUsers(users []*entity.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, NewUser(u))
	}
	return out
}
