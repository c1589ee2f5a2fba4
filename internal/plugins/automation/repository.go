package automation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is the MariaDB error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// DeliveryRepository records notification attempts. The unique key over
// (lead_id, event_type, stage_id, channel) is what makes event processing
// idempotent: the first writer claims the delivery, everyone else skips.
type DeliveryRepository interface {
	// Claim inserts a sent-delivery row for this (lead, event, stage,
	// channel). Returns false when the delivery was already claimed.
	Claim(ctx context.Context, d *Delivery) (bool, error)

	// MarkFailed downgrades a claimed delivery after a send error.
	MarkFailed(ctx context.Context, d *Delivery, detail string) error

	// RecordSkipped records a delivery that was gated off (channel enabled
	// but its configuration incomplete). Duplicates are ignored.
	RecordSkipped(ctx context.Context, d *Delivery, detail string) error

	// ListByLead returns a lead's delivery history, newest first.
	ListByLead(ctx context.Context, leadID string) ([]Delivery, error)
}

// deliveryRepository implements DeliveryRepository with MariaDB queries.
type deliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository creates a new delivery repository backed by the
// given DB pool.
func NewDeliveryRepository(db *sql.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

const insertDelivery = `INSERT INTO automation_deliveries
	(id, lead_id, campaign_id, event_type, stage_id, channel, status, detail, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Claim inserts the delivery with status sent. A duplicate key means another
// request already processed this event for this channel.
func (r *deliveryRepository) Claim(ctx context.Context, d *Delivery) (bool, error) {
	_, err := r.db.ExecContext(ctx, insertDelivery,
		d.ID, d.LeadID, d.CampaignID, d.EventType, d.StageID, string(d.Channel),
		StatusSent, "", d.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claiming delivery: %w", err)
	}
	return true, nil
}

// MarkFailed flips a claimed row to failed with the error detail.
func (r *deliveryRepository) MarkFailed(ctx context.Context, d *Delivery, detail string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE automation_deliveries SET status = ?, detail = ? WHERE id = ?`,
		StatusFailed, detail, d.ID,
	)
	if err != nil {
		return fmt.Errorf("marking delivery failed: %w", err)
	}
	return nil
}

// RecordSkipped inserts a skipped row, ignoring duplicates.
func (r *deliveryRepository) RecordSkipped(ctx context.Context, d *Delivery, detail string) error {
	_, err := r.db.ExecContext(ctx, insertDelivery,
		d.ID, d.LeadID, d.CampaignID, d.EventType, d.StageID, string(d.Channel),
		StatusSkipped, detail, d.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recording skipped delivery: %w", err)
	}
	return nil
}

// ListByLead returns all deliveries recorded for a lead.
func (r *deliveryRepository) ListByLead(ctx context.Context, leadID string) ([]Delivery, error) {
	query := `SELECT id, lead_id, campaign_id, event_type, stage_id, channel, status, detail, created_at
	          FROM automation_deliveries WHERE lead_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		var channel string
		if err := rows.Scan(&d.ID, &d.LeadID, &d.CampaignID, &d.EventType, &d.StageID,
			&channel, &d.Status, &d.Detail, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning delivery row: %w", err)
		}
		d.Channel = Channel(channel)
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// isDuplicateEntry reports whether err is a MariaDB unique key violation.
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
