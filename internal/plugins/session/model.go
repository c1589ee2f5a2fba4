// Package session handles user authentication and session management for
// LeadTS. Agency staff log in as admins, client contacts as clients scoped
// to one client record. Sessions are random tokens stored in Redis with a
// TTL; session lifecycle changes are published on the session-change channel
// so other app instances can react.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package session

import (
	"time"
)

// Role classifies what a logged-in user can do. Admins manage everything;
// clients get a read-only portal over their own campaigns.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// IsValid returns true if this is a recognized role.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleClient
}

// User represents a LeadTS login. Client users carry the client record they
// belong to; admins have an empty ClientID.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	Role         Role       `json:"role"`
	ClientID     string     `json:"client_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest holds the data submitted at login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest holds the data for creating a login.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	ClientID string `json:"client_id"`
}

// --- Service Input DTOs ---

// LoginInput is the validated input for authenticating a user.
type LoginInput struct {
	Email    string
	Password string
}

// CreateUserInput is the validated input for creating a login.
type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     Role
	ClientID string
}

// --- Session ---

// Session is an authenticated session stored in Redis. The token is the key,
// this struct is the JSON-encoded value. ImpersonatedBy carries the admin's
// user id while the admin is viewing the portal as a client.
type Session struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	ClientID       string    `json:"client_id,omitempty"`
	ImpersonatedBy string    `json:"impersonated_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsAdmin reports whether this session has admin rights. An admin
// impersonating a client deliberately loses them for the duration.
func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
