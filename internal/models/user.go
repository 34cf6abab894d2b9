package models

import (
	"time"
)

// User roles
const (
	RoleAdmin     = "Admin"
	RoleSalesTeam = "SalesTeam"
)

// User represents a staff member who works leads
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Name         string    `json:"name" db:"name"`
	Role         string    `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ValidRoles defines allowed user roles
var ValidRoles = map[string]bool{
	RoleAdmin:     true,
	RoleSalesTeam: true,
}

// IsAdmin reports whether the user has the Admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// LoginRequest is the body of POST /v1/auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and the authenticated user
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
