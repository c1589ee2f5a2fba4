package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leadts/leadts/internal/apperror"
)

// ClientRepository defines the data access contract for clients.
type ClientRepository interface {
	Create(ctx context.Context, client *Client) error
	FindByID(ctx context.Context, id string) (*Client, error)
	List(ctx context.Context) ([]Client, error)
	Update(ctx context.Context, client *Client) error
	Delete(ctx context.Context, id string) error
}

// clientRepository implements ClientRepository with MariaDB queries.
type clientRepository struct {
	db *sql.DB
}

// NewClientRepository creates a new client repository.
func NewClientRepository(db *sql.DB) ClientRepository {
	return &clientRepository{db: db}
}

const clientColumns = `id, name, company, email, notes, created_at, updated_at`

func scanClient(scan func(dest ...any) error) (*Client, error) {
	c := &Client{}
	err := scan(&c.ID, &c.Name, &c.Company, &c.Email, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new client row.
func (r *clientRepository) Create(ctx context.Context, client *Client) error {
	query := `INSERT INTO clients (id, name, company, email, notes, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		client.ID, client.Name, client.Company, client.Email, client.Notes,
		client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting client: %w", err)
	}
	return nil
}

// FindByID retrieves a client by its id.
func (r *clientRepository) FindByID(ctx context.Context, id string) (*Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	client, err := scanClient(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("client not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying client: %w", err)
	}
	return client, nil
}

// List returns all clients ordered by name.
func (r *clientRepository) List(ctx context.Context) ([]Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		client, err := scanClient(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning client row: %w", err)
		}
		clients = append(clients, *client)
	}
	return clients, rows.Err()
}

// Update persists all mutable columns of a client.
func (r *clientRepository) Update(ctx context.Context, client *Client) error {
	query := `UPDATE clients SET name = ?, company = ?, email = ?, notes = ?, updated_at = ?
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		client.Name, client.Company, client.Email, client.Notes,
		client.UpdatedAt, client.ID,
	)
	if err != nil {
		return fmt.Errorf("updating client: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("client not found")
	}
	return nil
}

// Delete removes a client row.
func (r *clientRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting client: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("client not found")
	}
	return nil
}
