// Package smtp delivers the automation engine's notification emails.
// Mail server settings are stored in the database and managed through the
// admin API. The encrypted password is NEVER returned to a client -- only a
// boolean indicating whether a password is configured.
package smtp

import "time"

// MailSettings holds the mail server configuration. This is what the service
// layer and handlers work with. The password is intentionally omitted -- use
// HasPassword to show whether one is set.
type MailSettings struct {
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Username    string    `json:"username"`
	HasPassword bool      `json:"has_password"`
	FromAddress string    `json:"from_address"`
	FromName    string    `json:"from_name"`
	Encryption  string    `json:"encryption"` // "starttls", "ssl", or "none".
	Enabled     bool      `json:"enabled"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// mailRow is the raw database row including encrypted password bytes.
// Internal only -- never exposed outside the repository.
type mailRow struct {
	Host              string
	Port              int
	Username          string
	PasswordEncrypted []byte // AES-256-GCM encrypted, nil if not set.
	FromAddress       string
	FromName          string
	Encryption        string
	Enabled           bool
	UpdatedAt         time.Time
}

// toSettings converts a database row to the safe MailSettings struct.
func (r *mailRow) toSettings() *MailSettings {
	return &MailSettings{
		Host:        r.Host,
		Port:        r.Port,
		Username:    r.Username,
		HasPassword: len(r.PasswordEncrypted) > 0,
		FromAddress: r.FromAddress,
		FromName:    r.FromName,
		Encryption:  r.Encryption,
		Enabled:     r.Enabled,
		UpdatedAt:   r.UpdatedAt,
	}
}

// UpdateMailSettingsRequest holds the data for updating mail settings.
// Password is optional -- empty means "keep existing".
type UpdateMailSettingsRequest struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"` // Empty = keep existing.
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
	Encryption  string `json:"encryption"`
	Enabled     bool   `json:"enabled"`
}
