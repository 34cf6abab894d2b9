package service

import (
	"context"
	"net/http"

	"github.com/leadboard/internal/cache"
	"github.com/leadboard/internal/config"
	"github.com/leadboard/internal/events"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/repository"
	"github.com/rs/zerolog"
)

// AuthService issues and verifies access tokens
type AuthService interface {
	Login(ctx context.Context, username, password string) (*models.LoginResponse, error)
	Authenticate(token string) (*models.User, error)
	CreateUser(ctx context.Context, username, name, role, password string) (*models.User, error)
	EnsureAdmin(ctx context.Context) error
}

// LeadService defines board reads and lead mutations
type LeadService interface {
	ListStatuses(ctx context.Context) ([]models.Status, error)
	ListUsers(ctx context.Context, role string) ([]models.User, error)
	ListLeads(ctx context.Context, actor *models.User, filter models.LeadFilter) (*models.LeadPage, error)
	GetLead(ctx context.Context, actor *models.User, id string) (*models.Lead, error)
	UpdateStatus(ctx context.Context, actor *models.User, leadID, statusID string) (*models.StatusChange, error)
	Assign(ctx context.Context, actor *models.User, leadID, userID string) (*models.Assignment, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// CommentService defines the interface for lead comments
type CommentService interface {
	List(ctx context.Context, actor *models.User, leadID string) ([]models.Comment, error)
	Add(ctx context.Context, actor *models.User, leadID, text string) (*models.Comment, error)
}

// ImportService defines the interface for lead import operations
type ImportService interface {
	ExistingIDs(ctx context.Context, actor *models.User, ids []string) ([]string, error)
	Import(ctx context.Context, actor *models.User, leads []models.LeadInput) (*models.ImportResult, error)
}

// ExportService defines the interface for export operations
type ExportService interface {
	StreamLeads(ctx context.Context, w http.ResponseWriter, format string) error
}

// Publisher receives change notifications after successful mutations
type Publisher interface {
	Publish(e events.Event)
}

// Services holds all service interfaces
type Services struct {
	Auth    AuthService
	Lead    LeadService
	Comment CommentService
	Import  ImportService
	Export  ExportService
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, store cache.Cache, pub Publisher, cfg *config.Config, log zerolog.Logger) *Services {
	if pub == nil {
		pub = nopPublisher{}
	}
	results := &resultCache{store: store, ttl: cfg.Cache.TTL, log: log.With().Str("component", "cache").Logger()}

	leadSvc := newLeadService(repos, results, pub, log)
	return &Services{
		Auth:    newAuthService(repos.User, cfg.Auth, log),
		Lead:    leadSvc,
		Comment: newCommentService(repos, results, log),
		Import:  newImportService(repos, leadSvc, results, pub, cfg, log),
		Export:  newExportService(repos, log),
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}
