package repository

import (
	"context"

	"github.com/leadboard/internal/database"
	"github.com/leadboard/internal/models"
)

// StatusRepository defines the interface for pipeline status data
type StatusRepository interface {
	List(ctx context.Context) ([]models.Status, error)
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, role string) ([]models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// LeadRepository defines the interface for lead data operations
type LeadRepository interface {
	List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error)
	GetByID(ctx context.Context, id string) (*models.Lead, error)
	UpdateStatus(ctx context.Context, id, statusID string) (bool, error)
	Assign(ctx context.Context, id, userID string) (bool, error)
	BatchInsert(ctx context.Context, leads []*models.Lead) (int, error)
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	StreamAll(ctx context.Context, callback func(*models.Lead) error) error
}

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByLead(ctx context.Context, leadID string) ([]models.Comment, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Status  StatusRepository
	User    UserRepository
	Lead    LeadRepository
	Comment CommentRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		Status:  NewStatusRepo(db),
		User:    NewUserRepo(db),
		Lead:    NewLeadRepo(db),
		Comment: NewCommentRepo(db),
	}
}
