package clients

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/sanitize"
)

// CampaignCounter reports how many campaigns a client owns. Satisfied by
// campaigns.CampaignService through a small adapter at wiring time.
type CampaignCounter interface {
	CountByClient(ctx context.Context, clientID string) (int, error)
}

// ClientService handles business logic for client management.
type ClientService interface {
	Create(ctx context.Context, req CreateClientRequest) (*Client, error)
	GetByID(ctx context.Context, id string) (*Client, error)
	List(ctx context.Context) ([]Client, error)
	Update(ctx context.Context, id string, req UpdateClientRequest) (*Client, error)
	Delete(ctx context.Context, id string) error
}

// clientService implements ClientService.
type clientService struct {
	repo      ClientRepository
	campaigns CampaignCounter
}

// NewClientService creates a new client service. campaigns may be nil, in
// which case deletion skips the ownership check.
func NewClientService(repo ClientRepository, campaigns CampaignCounter) ClientService {
	return &clientService{repo: repo, campaigns: campaigns}
}

// Create creates a new client.
func (s *clientService) Create(ctx context.Context, req CreateClientRequest) (*Client, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.NewBadRequest("client name is required")
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return nil, apperror.NewValidation("invalid email address")
	}

	now := time.Now().UTC()
	client := &Client{
		ID:        uuid.NewString(),
		Name:      name,
		Company:   strings.TrimSpace(req.Company),
		Email:     email,
		Notes:     sanitize.HTML(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating client: %w", err))
	}

	slog.Info("client created",
		slog.String("client_id", client.ID),
		slog.String("name", client.Name),
	)
	return client, nil
}

// GetByID retrieves a client.
func (s *clientService) GetByID(ctx context.Context, id string) (*Client, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all clients.
func (s *clientService) List(ctx context.Context) ([]Client, error) {
	return s.repo.List(ctx)
}

// Update applies a partial update to a client.
func (s *clientService) Update(ctx context.Context, id string, req UpdateClientRequest) (*Client, error) {
	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperror.NewBadRequest("client name is required")
		}
		client.Name = name
	}
	if req.Company != nil {
		client.Company = strings.TrimSpace(*req.Company)
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" && !strings.Contains(email, "@") {
			return nil, apperror.NewValidation("invalid email address")
		}
		client.Email = email
	}
	if req.Notes != nil {
		client.Notes = sanitize.HTML(*req.Notes)
	}
	client.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Delete removes a client. A client that still owns campaigns cannot be
// deleted; the campaigns must be reassigned or deleted first.
func (s *clientService) Delete(ctx context.Context, id string) error {
	if s.campaigns != nil {
		count, err := s.campaigns.CountByClient(ctx, id)
		if err != nil {
			return apperror.NewInternal(fmt.Errorf("counting client campaigns: %w", err))
		}
		if count > 0 {
			return apperror.NewConflict(fmt.Sprintf("client still owns %d campaigns", count))
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("client deleted", slog.String("client_id", id))
	return nil
}
