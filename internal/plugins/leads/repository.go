package leads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/leadts/leadts/internal/apperror"
)

// LeadRepository defines the data access contract for lead operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type LeadRepository interface {
	Create(ctx context.Context, lead *Lead) error
	FindByID(ctx context.Context, id string) (*Lead, error)
	ListByCampaign(ctx context.Context, campaignID string, opts ListOptions) ([]Lead, int, error)
	Update(ctx context.Context, lead *Lead) error
	UpdateStage(ctx context.Context, leadID, stageID string) error
	Delete(ctx context.Context, id string) error

	// MoveAllFromStage rebases every lead on fromStageID onto toStageID.
	// Backs stage deletion.
	MoveAllFromStage(ctx context.Context, campaignID, fromStageID, toStageID string) error

	// AggregateStats counts leads per bucket and sums revenue over won
	// stages. Stage membership is by id list since the stage table lives
	// inside the campaign settings document, not in SQL.
	AggregateStats(ctx context.Context, campaignID string, appointmentStageIDs, wonStageIDs []string) (leads, appointments, sales int, revenue float64, err error)
}

// leadRepository implements LeadRepository with MariaDB queries. The data
// bag is a JSON document column.
type leadRepository struct {
	db *sql.DB
}

// NewLeadRepository creates a new lead repository backed by the given DB pool.
func NewLeadRepository(db *sql.DB) LeadRepository {
	return &leadRepository{db: db}
}

const leadColumns = `id, campaign_id, stage_id, data_json, notes, created_at, updated_at`

// scanLead reads one lead row, decoding the data document.
func scanLead(scan func(dest ...any) error) (*Lead, error) {
	l := &Lead{}
	var dataJSON string
	err := scan(&l.ID, &l.CampaignID, &l.StageID, &dataJSON, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dataJSON), &l.Data); err != nil {
		return nil, fmt.Errorf("decoding data for lead %s: %w", l.ID, err)
	}
	return l, nil
}

// Create inserts a new lead row.
func (r *leadRepository) Create(ctx context.Context, lead *Lead) error {
	dataJSON, err := json.Marshal(lead.Data)
	if err != nil {
		return fmt.Errorf("encoding lead data: %w", err)
	}

	query := `INSERT INTO leads (id, campaign_id, stage_id, data_json, notes, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		lead.ID, lead.CampaignID, lead.StageID, string(dataJSON), lead.Notes,
		lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting lead: %w", err)
	}
	return nil
}

// FindByID retrieves a lead by its UUID.
func (r *leadRepository) FindByID(ctx context.Context, id string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	lead, err := scanLead(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("lead not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying lead by id: %w", err)
	}
	return lead, nil
}

// ListByCampaign returns a campaign's leads, optionally filtered by stage,
// newest first.
func (r *leadRepository) ListByCampaign(ctx context.Context, campaignID string, opts ListOptions) ([]Lead, int, error) {
	where := `WHERE campaign_id = ?`
	args := []any{campaignID}
	if opts.StageID != "" {
		where += ` AND stage_id = ?`
		args = append(args, opts.StageID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting leads: %w", err)
	}

	query := `SELECT ` + leadColumns + ` FROM leads ` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, opts.PerPage, opts.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing leads: %w", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		lead, err := scanLead(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning lead row: %w", err)
		}
		leads = append(leads, *lead)
	}
	return leads, total, rows.Err()
}

// Update rewrites the lead's data bag and notes.
func (r *leadRepository) Update(ctx context.Context, lead *Lead) error {
	dataJSON, err := json.Marshal(lead.Data)
	if err != nil {
		return fmt.Errorf("encoding lead data: %w", err)
	}

	query := `UPDATE leads SET data_json = ?, notes = ?, updated_at = NOW() WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, string(dataJSON), lead.Notes, lead.ID)
	if err != nil {
		return fmt.Errorf("updating lead: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("lead not found")
	}
	return nil
}

// UpdateStage moves a lead to another stage.
func (r *leadRepository) UpdateStage(ctx context.Context, leadID, stageID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE leads SET stage_id = ?, updated_at = NOW() WHERE id = ?`,
		stageID, leadID,
	)
	if err != nil {
		return fmt.Errorf("updating lead stage: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("lead not found")
	}
	return nil
}

// Delete removes a lead.
func (r *leadRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting lead: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("lead not found")
	}
	return nil
}

// MoveAllFromStage rebases a whole stage's leads in one statement.
func (r *leadRepository) MoveAllFromStage(ctx context.Context, campaignID, fromStageID, toStageID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE leads SET stage_id = ?, updated_at = NOW()
		 WHERE campaign_id = ? AND stage_id = ?`,
		toStageID, campaignID, fromStageID,
	)
	if err != nil {
		return fmt.Errorf("migrating leads between stages: %w", err)
	}
	return nil
}

// AggregateStats computes the campaign's lead counters in one query. The
// revenue value lives inside the JSON data document, so the sum goes
// through JSON_VALUE.
func (r *leadRepository) AggregateStats(ctx context.Context, campaignID string, appointmentStageIDs, wonStageIDs []string) (int, int, int, float64, error) {
	apptClause, apptArgs := inClause("stage_id", appointmentStageIDs)
	wonClause, wonArgs := inClause("stage_id", wonStageIDs)

	query := fmt.Sprintf(`SELECT
		COUNT(*),
		COALESCE(SUM(%s), 0),
		COALESCE(SUM(%s), 0),
		COALESCE(SUM(CASE WHEN %s
			THEN CAST(COALESCE(JSON_VALUE(data_json, '$.revenue'), '0') AS DOUBLE)
			ELSE 0 END), 0)
	FROM leads WHERE campaign_id = ?`,
		countCase(apptClause), countCase(wonClause), wonClause)

	args := make([]any, 0, len(apptArgs)+2*len(wonArgs)+1)
	args = append(args, apptArgs...)
	args = append(args, wonArgs...)
	args = append(args, wonArgs...)
	args = append(args, campaignID)

	var leads, appointments, sales int
	var revenue float64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&leads, &appointments, &sales, &revenue)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("aggregating lead stats: %w", err)
	}
	return leads, appointments, sales, revenue, nil
}

// inClause builds "col IN (?, ?)" with its args, or a never-true clause for
// an empty id list, so a campaign without won stages sums to zero.
func inClause(col string, ids []string) (string, []any) {
	if len(ids) == 0 {
		return "1 = 0", nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return col + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")", args
}

// countCase wraps a boolean clause into a summable 0/1 expression.
func countCase(clause string) string {
	return "CASE WHEN " + clause + " THEN 1 ELSE 0 END"
}
