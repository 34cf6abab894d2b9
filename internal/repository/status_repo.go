package repository

import (
	"context"

	"github.com/leadboard/internal/database"
	"github.com/leadboard/internal/models"
)

type statusRepo struct {
	db *database.DB
}

// NewStatusRepo creates a new status repository
func NewStatusRepo(db *database.DB) StatusRepository {
	return &statusRepo{db: db}
}

// List returns all statuses in column order
func (r *statusRepo) List(ctx context.Context) ([]models.Status, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, color, sort_order FROM statuses ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := []models.Status{}
	for rows.Next() {
		var s models.Status
		if err := rows.Scan(&s.ID, &s.Name, &s.Color, &s.Order); err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}
