// Package clients manages the agency's client directory. Campaigns belong
// to a client, and client-role logins and impersonation sessions are scoped
// to one.
package clients

import "time"

// Client is one agency customer.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	Email     string    `json:"email,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateClientRequest holds the data for creating a client.
type CreateClientRequest struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Notes   string `json:"notes"`
}

// UpdateClientRequest holds the data for updating a client. Nil fields are
// left unchanged.
type UpdateClientRequest struct {
	Name    *string `json:"name"`
	Company *string `json:"company"`
	Email   *string `json:"email"`
	Notes   *string `json:"notes"`
}
