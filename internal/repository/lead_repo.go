package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leadboard/internal/database"
	"github.com/leadboard/internal/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// leadRepo is the concrete implementation of LeadRepository
type leadRepo struct {
	db  *database.DB
	log zerolog.Logger
}

// NewLeadRepo creates a new lead repository
func NewLeadRepo(db *database.DB) LeadRepository {
	return &leadRepo{db: db, log: db.Logger().With().Str("repository", "lead").Logger()}
}

const leadColumns = `id, name, email, phone, source, venture, ad_name, status_id, assigned_to, extra_fields, created_at, updated_at`

// newest first; leads without a creation time go last
const leadOrder = ` ORDER BY created_at DESC NULLS LAST, id ASC`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *leadRepo) scan(row rowScanner) (*models.Lead, error) {
	var (
		lead       models.Lead
		assignedTo sql.NullString
		extra      []byte
		createdAt  sql.NullTime
		updatedAt  sql.NullTime
	)
	err := row.Scan(
		&lead.ID, &lead.Name, &lead.Email, &lead.Phone, &lead.Source, &lead.Venture,
		&lead.AdName, &lead.StatusID, &assignedTo, &extra, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignedTo.Valid {
		lead.AssignedTo = &assignedTo.String
	}
	if len(extra) > 0 {
		// malformed form answers are dropped rather than failing the listing
		if err := json.Unmarshal(extra, &lead.ExtraFields); err != nil {
			r.log.Warn().Err(err).Str("lead_id", lead.ID).Msg("Dropped malformed extra_fields")
			lead.ExtraFields = nil
		}
	}
	if createdAt.Valid {
		lead.CreatedAt = models.At(createdAt.Time)
	}
	if updatedAt.Valid {
		lead.UpdatedAt = models.At(updatedAt.Time)
	}
	return &lead, nil
}

// whereClause builds the filter predicate and its positional arguments
func whereClause(filter models.LeadFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(column, value string) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.StatusID != "" {
		add("status_id", filter.StatusID)
	}
	if filter.AssignedTo != "" {
		add("assigned_to", filter.AssignedTo)
	}
	if filter.AdName != "" {
		add("ad_name", filter.AdName)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns one page of leads matching filter plus the total match count
func (r *leadRepo) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	where, args := whereClause(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	query := `SELECT ` + leadColumns + ` FROM leads` + where + leadOrder +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, filter.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := []models.Lead{}
	for rows.Next() {
		lead, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		leads = append(leads, *lead)
	}
	return leads, total, rows.Err()
}

// GetByID retrieves a lead by ID, returning nil when absent
func (r *leadRepo) GetByID(ctx context.Context, id string) (*models.Lead, error) {
	lead, err := r.scan(r.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return lead, err
}

// UpdateStatus moves a lead to statusID; false means the lead does not exist
func (r *leadRepo) UpdateStatus(ctx context.Context, id, statusID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET status_id = $2, updated_at = NOW() WHERE id = $1`, id, statusID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Assign sets the lead's assignee; false means the lead does not exist
func (r *leadRepo) Assign(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET assigned_to = $2, updated_at = NOW() WHERE id = $1`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// BatchInsert inserts leads using PostgreSQL COPY
func (r *leadRepo) BatchInsert(ctx context.Context, leads []*models.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("leads",
		"id", "name", "email", "phone", "source", "venture", "ad_name",
		"status_id", "assigned_to", "extra_fields", "created_at", "updated_at",
	))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	for _, lead := range leads {
		extra, err := json.Marshal(lead.ExtraFields)
		if err != nil || lead.ExtraFields == nil {
			extra = []byte("[]")
		}

		if _, err := stmt.ExecContext(ctx,
			lead.ID, lead.Name, lead.Email, lead.Phone, lead.Source, lead.Venture, lead.AdName,
			lead.StatusID, nullString(lead.AssignedTo), string(extra), nullTime(lead.CreatedAt), now,
		); err != nil {
			return 0, fmt.Errorf("copy lead %s: %w", lead.ID, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(leads), nil
}

// ExistingIDs returns the subset of ids already stored
func (r *leadRepo) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	existing := []string{}
	if len(ids) == 0 {
		return existing, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM leads WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing = append(existing, id)
	}
	return existing, rows.Err()
}

// CountByStatus returns the number of leads in each status
func (r *leadRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status_id, COUNT(*) FROM leads GROUP BY status_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			statusID string
			n        int
		)
		if err := rows.Scan(&statusID, &n); err != nil {
			return nil, err
		}
		counts[statusID] = n
	}
	return counts, rows.Err()
}

// StreamAll streams every lead for export without buffering the table
func (r *leadRepo) StreamAll(ctx context.Context, callback func(*models.Lead) error) error {
	rows, err := r.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads`+leadOrder)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		lead, err := r.scan(rows)
		if err != nil {
			return err
		}
		if err := callback(lead); err != nil {
			return err
		}
	}

	return rows.Err()
}

func nullString(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullTime(t models.Timestamp) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Time
}
