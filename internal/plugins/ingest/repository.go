package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leadts/leadts/internal/apperror"
)

// IngestKeyRepository defines the data access contract for webhook keys.
type IngestKeyRepository interface {
	Create(ctx context.Context, key *IngestKey) error
	FindByID(ctx context.Context, id int) (*IngestKey, error)
	FindByPrefix(ctx context.Context, prefix string) (*IngestKey, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]IngestKey, error)
	UpdateActive(ctx context.Context, id int, active bool) error
	UpdateLastUsed(ctx context.Context, id int) error
	Delete(ctx context.Context, id int) error
}

// ingestKeyRepository implements IngestKeyRepository with MariaDB queries.
type ingestKeyRepository struct {
	db *sql.DB
}

// NewIngestKeyRepository creates a new ingest key repository.
func NewIngestKeyRepository(db *sql.DB) IngestKeyRepository {
	return &ingestKeyRepository{db: db}
}

const keyColumns = `id, key_hash, key_prefix, name, campaign_id, created_by, rate_limit, is_active, last_used_at, created_at`

// scanKey reads one key row.
func scanKey(scan func(dest ...any) error) (*IngestKey, error) {
	k := &IngestKey{}
	var lastUsed sql.NullTime
	err := scan(&k.ID, &k.KeyHash, &k.KeyPrefix, &k.Name, &k.CampaignID,
		&k.CreatedBy, &k.RateLimit, &k.IsActive, &lastUsed, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	return k, nil
}

// Create inserts a new key row and fills in the generated id.
func (r *ingestKeyRepository) Create(ctx context.Context, key *IngestKey) error {
	query := `INSERT INTO ingest_keys (key_hash, key_prefix, name, campaign_id, created_by, rate_limit, is_active, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		key.KeyHash, key.KeyPrefix, key.Name, key.CampaignID,
		key.CreatedBy, key.RateLimit, key.IsActive, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting ingest key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading ingest key id: %w", err)
	}
	key.ID = int(id)
	return nil
}

// FindByID retrieves a key by its id.
func (r *ingestKeyRepository) FindByID(ctx context.Context, id int) (*IngestKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM ingest_keys WHERE id = ?`, id)
	key, err := scanKey(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("ingest key not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying ingest key: %w", err)
	}
	return key, nil
}

// FindByPrefix retrieves a key by its display prefix for authentication.
func (r *ingestKeyRepository) FindByPrefix(ctx context.Context, prefix string) (*IngestKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM ingest_keys WHERE key_prefix = ?`, prefix)
	key, err := scanKey(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("ingest key not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying ingest key by prefix: %w", err)
	}
	return key, nil
}

// ListByCampaign returns a campaign's keys, newest first.
func (r *ingestKeyRepository) ListByCampaign(ctx context.Context, campaignID string) ([]IngestKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM ingest_keys WHERE campaign_id = ? ORDER BY created_at DESC`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing ingest keys: %w", err)
	}
	defer rows.Close()

	var keys []IngestKey
	for rows.Next() {
		key, err := scanKey(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning ingest key row: %w", err)
		}
		keys = append(keys, *key)
	}
	return keys, rows.Err()
}

// UpdateActive flips a key's active flag.
func (r *ingestKeyRepository) UpdateActive(ctx context.Context, id int, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE ingest_keys SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("updating ingest key: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("ingest key not found")
	}
	return nil
}

// UpdateLastUsed stamps the key's last successful use.
func (r *ingestKeyRepository) UpdateLastUsed(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ingest_keys SET last_used_at = NOW() WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("stamping ingest key: %w", err)
	}
	return nil
}

// Delete permanently removes a key.
func (r *ingestKeyRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ingest_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting ingest key: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("ingest key not found")
	}
	return nil
}
