package campaigns

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leadts/leadts/internal/apperror"
)

// CampaignRepository defines the data access contract for campaign operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *Campaign) error
	FindByID(ctx context.Context, id string) (*Campaign, error)
	List(ctx context.Context, opts ListOptions) ([]Campaign, int, error)
	ListByClient(ctx context.Context, clientID string, opts ListOptions) ([]Campaign, int, error)
	ListTemplates(ctx context.Context) ([]Campaign, error)
	Update(ctx context.Context, campaign *Campaign) error
	Delete(ctx context.Context, id string) error
	CountAll(ctx context.Context) (int, error)

	// ReplaceSettings writes a whole settings document guarded by the
	// version the caller read. Returns apperror.NewStaleSettingsWrite when
	// the row has moved on, apperror.NewNotFound when the campaign does not
	// exist. On success the campaign's version is expectedVersion+1.
	ReplaceSettings(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) error

	// UpdateStats writes the pre-aggregated stats document.
	UpdateStats(ctx context.Context, campaignID string, stats Stats) error
}

// campaignRepository implements CampaignRepository with MariaDB queries.
// Settings and stats are stored as JSON documents; the version column
// provides the optimistic concurrency guard.
type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new repository backed by the given DB pool.
func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

const campaignColumns = `id, client_id, name, status, budget, start_date, end_date,
	is_template, stats_json, settings_json, settings_version, created_at, updated_at`

// scanCampaign reads one campaign row, decoding the JSON documents.
func scanCampaign(scan func(dest ...any) error) (*Campaign, error) {
	c := &Campaign{}
	var statusStr, statsJSON, settingsJSON string
	err := scan(
		&c.ID, &c.ClientID, &c.Name, &statusStr, &c.Budget, &c.StartDate, &c.EndDate,
		&c.IsTemplate, &statsJSON, &settingsJSON, &c.SettingsVersion,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = Status(statusStr)
	if err := json.Unmarshal([]byte(statsJSON), &c.Stats); err != nil {
		return nil, fmt.Errorf("decoding stats for campaign %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(settingsJSON), &c.Settings); err != nil {
		return nil, fmt.Errorf("decoding settings for campaign %s: %w", c.ID, err)
	}
	return c, nil
}

// Create inserts a new campaign row with its settings and stats documents.
func (r *campaignRepository) Create(ctx context.Context, campaign *Campaign) error {
	statsJSON, err := json.Marshal(campaign.Stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	settingsJSON, err := json.Marshal(campaign.Settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	query := `INSERT INTO campaigns (id, client_id, name, status, budget, start_date, end_date,
	          is_template, stats_json, settings_json, settings_version, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		campaign.ID, campaign.ClientID, campaign.Name, string(campaign.Status),
		campaign.Budget, campaign.StartDate, campaign.EndDate, campaign.IsTemplate,
		string(statsJSON), string(settingsJSON), campaign.SettingsVersion,
		campaign.CreatedAt, campaign.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting campaign: %w", err)
	}
	return nil
}

// FindByID retrieves a campaign by its UUID.
func (r *campaignRepository) FindByID(ctx context.Context, id string) (*Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	c, err := scanCampaign(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("campaign not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying campaign by id: %w", err)
	}
	return c, nil
}

// List returns all non-template campaigns ordered by most recently updated.
func (r *campaignRepository) List(ctx context.Context, opts ListOptions) ([]Campaign, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE is_template = 0`,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting campaigns: %w", err)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns
	          WHERE is_template = 0
	          ORDER BY updated_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, opts.PerPage, opts.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning campaign row: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, total, rows.Err()
}

// ListByClient returns a client's campaigns ordered by most recently updated.
func (r *campaignRepository) ListByClient(ctx context.Context, clientID string, opts ListOptions) ([]Campaign, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE client_id = ? AND is_template = 0`, clientID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting client campaigns: %w", err)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns
	          WHERE client_id = ? AND is_template = 0
	          ORDER BY updated_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, clientID, opts.PerPage, opts.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing client campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning campaign row: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, total, rows.Err()
}

// ListTemplates returns all template campaigns.
func (r *campaignRepository) ListTemplates(ctx context.Context) ([]Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
	          WHERE is_template = 1 ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning template row: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// Update modifies a campaign's top-level attributes and stats. Settings go
// through ReplaceSettings only.
func (r *campaignRepository) Update(ctx context.Context, campaign *Campaign) error {
	statsJSON, err := json.Marshal(campaign.Stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}

	query := `UPDATE campaigns SET client_id = ?, name = ?, status = ?, budget = ?,
	          start_date = ?, end_date = ?, is_template = ?, stats_json = ?, updated_at = NOW()
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		campaign.ClientID, campaign.Name, string(campaign.Status), campaign.Budget,
		campaign.StartDate, campaign.EndDate, campaign.IsTemplate, string(statsJSON),
		campaign.ID,
	)
	if err != nil {
		return fmt.Errorf("updating campaign: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("campaign not found")
	}
	return nil
}

// Delete removes a campaign. FK CASCADE handles lead and delivery cleanup.
func (r *campaignRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting campaign: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("campaign not found")
	}
	return nil
}

// CountAll returns the total number of campaigns.
func (r *campaignRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting campaigns: %w", err)
	}
	return count, nil
}

// ReplaceSettings performs the compare-and-swap settings write. The WHERE
// clause carries the expected version; zero affected rows means either the
// campaign vanished or someone else wrote first, and a follow-up existence
// check disambiguates the two.
func (r *campaignRepository) ReplaceSettings(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET settings_json = ?, settings_version = settings_version + 1, updated_at = NOW()
		 WHERE id = ? AND settings_version = ?`,
		string(settingsJSON), campaignID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("replacing settings: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = ?)`, campaignID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking campaign existence: %w", err)
	}
	if !exists {
		return apperror.NewNotFound("campaign not found")
	}
	return apperror.NewStaleSettingsWrite()
}

// UpdateStats writes only the stats document.
func (r *campaignRepository) UpdateStats(ctx context.Context, campaignID string, stats Stats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET stats_json = ?, updated_at = NOW() WHERE id = ?`,
		string(statsJSON), campaignID,
	)
	if err != nil {
		return fmt.Errorf("updating stats: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("campaign not found")
	}
	return nil
}
