package repository

import (
	"context"

	"github.com/leadboard/internal/database"
	"github.com/leadboard/internal/models"
)

// commentRepo is the concrete implementation of CommentRepository
type commentRepo struct {
	db *database.DB
}

// NewCommentRepo creates a new comment repository
func NewCommentRepo(db *database.DB) CommentRepository {
	return &commentRepo{db: db}
}

// Create inserts a new comment
func (r *commentRepo) Create(ctx context.Context, comment *models.Comment) error {
	query := `
		INSERT INTO comments (id, lead_id, user_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		comment.ID, comment.LeadID, comment.UserID, comment.Text, comment.CreatedAt.Time,
	)
	return err
}

// ListByLead returns a lead's comments oldest first, with author names resolved
func (r *commentRepo) ListByLead(ctx context.Context, leadID string) ([]models.Comment, error) {
	query := `
		SELECT c.id, c.lead_id, c.user_id, COALESCE(u.name, ''), c.text, c.created_at
		FROM comments c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.lead_id = $1
		ORDER BY c.created_at ASC, c.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var comment models.Comment
		if err := rows.Scan(
			&comment.ID, &comment.LeadID, &comment.UserID, &comment.UserName,
			&comment.Text, &comment.CreatedAt.Time,
		); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}
