package smtp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MailSettingsRepository handles database operations for mail settings.
// This is a singleton table (id=1) so all operations target that row.
type MailSettingsRepository interface {
	// Get returns the mail settings row including encrypted password bytes.
	// A missing row reads as empty, unconfigured settings.
	Get(ctx context.Context) (*mailRow, error)

	// Upsert writes the mail settings to the singleton row.
	Upsert(ctx context.Context, row *mailRow) error
}

// mailSettingsRepository implements MailSettingsRepository with MariaDB.
type mailSettingsRepository struct {
	db *sql.DB
}

// NewMailSettingsRepository creates a new mail settings repository.
func NewMailSettingsRepository(db *sql.DB) MailSettingsRepository {
	return &mailSettingsRepository{db: db}
}

// Get retrieves the singleton mail settings row.
func (r *mailSettingsRepository) Get(ctx context.Context) (*mailRow, error) {
	row := &mailRow{}
	err := r.db.QueryRowContext(ctx,
		`SELECT host, port, username, password_encrypted, from_address,
		        from_name, encryption, enabled, updated_at
		 FROM mail_settings WHERE id = 1`,
	).Scan(
		&row.Host, &row.Port, &row.Username, &row.PasswordEncrypted,
		&row.FromAddress, &row.FromName, &row.Encryption, &row.Enabled,
		&row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &mailRow{Port: 587, Encryption: "starttls"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying mail settings: %w", err)
	}
	return row, nil
}

// Upsert writes the mail settings to the singleton row.
func (r *mailSettingsRepository) Upsert(ctx context.Context, row *mailRow) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mail_settings (id, host, port, username, password_encrypted,
		                            from_address, from_name, encryption, enabled)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		     host = VALUES(host),
		     port = VALUES(port),
		     username = VALUES(username),
		     password_encrypted = VALUES(password_encrypted),
		     from_address = VALUES(from_address),
		     from_name = VALUES(from_name),
		     encryption = VALUES(encryption),
		     enabled = VALUES(enabled)`,
		row.Host, row.Port, row.Username, row.PasswordEncrypted,
		row.FromAddress, row.FromName, row.Encryption, row.Enabled,
	)
	if err != nil {
		return fmt.Errorf("upserting mail settings: %w", err)
	}
	return nil
}
