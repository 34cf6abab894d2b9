package mocks

import (
	"context"
	"net/http"

	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/service"
)

// Verify interface compliance
var (
	_ service.AuthService    = (*MockAuthService)(nil)
	_ service.LeadService    = (*MockLeadService)(nil)
	_ service.CommentService = (*MockCommentService)(nil)
	_ service.ImportService  = (*MockImportService)(nil)
	_ service.ExportService  = (*MockExportService)(nil)
)

// MockAuthService maps fixed tokens to users
type MockAuthService struct {
	Tokens    map[string]*models.User
	LoginFunc func(ctx context.Context, username, password string) (*models.LoginResponse, error)
}

func NewMockAuthService() *MockAuthService {
	return &MockAuthService{Tokens: make(map[string]*models.User)}
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password)
	}
	for token, u := range m.Tokens {
		if u.Username == username && password == "secret" {
			return &models.LoginResponse{Token: token, User: *u}, nil
		}
	}
	return nil, service.ErrInvalidLogin
}

func (m *MockAuthService) Authenticate(token string) (*models.User, error) {
	if u, ok := m.Tokens[token]; ok {
		return u, nil
	}
	return nil, service.ErrInvalidToken
}

func (m *MockAuthService) CreateUser(ctx context.Context, username, name, role, password string) (*models.User, error) {
	return &models.User{ID: "user-" + username, Username: username, Name: name, Role: role}, nil
}

func (m *MockAuthService) EnsureAdmin(ctx context.Context) error { return nil }

// MockLeadService is a mock implementation of LeadService
type MockLeadService struct {
	Statuses         []models.Status
	Users            []models.User
	Leads            map[string]*models.Lead
	ListLeadsFunc    func(ctx context.Context, actor *models.User, filter models.LeadFilter) (*models.LeadPage, error)
	UpdateStatusFunc func(ctx context.Context, actor *models.User, leadID, statusID string) (*models.StatusChange, error)
	AssignFunc       func(ctx context.Context, actor *models.User, leadID, userID string) (*models.Assignment, error)
	LastFilter       models.LeadFilter
}

func NewMockLeadService() *MockLeadService {
	return &MockLeadService{Leads: make(map[string]*models.Lead)}
}

func (m *MockLeadService) ListStatuses(ctx context.Context) ([]models.Status, error) {
	return m.Statuses, nil
}

func (m *MockLeadService) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	users := []models.User{}
	for _, u := range m.Users {
		if role == "" || u.Role == role {
			users = append(users, u)
		}
	}
	return users, nil
}

func (m *MockLeadService) ListLeads(ctx context.Context, actor *models.User, filter models.LeadFilter) (*models.LeadPage, error) {
	m.LastFilter = filter
	if m.ListLeadsFunc != nil {
		return m.ListLeadsFunc(ctx, actor, filter)
	}
	return &models.LeadPage{Leads: []models.Lead{}, Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (m *MockLeadService) GetLead(ctx context.Context, actor *models.User, id string) (*models.Lead, error) {
	if l, ok := m.Leads[id]; ok {
		return l, nil
	}
	return nil, service.ErrNotFound
}

func (m *MockLeadService) UpdateStatus(ctx context.Context, actor *models.User, leadID, statusID string) (*models.StatusChange, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, actor, leadID, statusID)
	}
	return &models.StatusChange{LeadID: leadID, StatusID: statusID}, nil
}

func (m *MockLeadService) Assign(ctx context.Context, actor *models.User, leadID, userID string) (*models.Assignment, error) {
	if m.AssignFunc != nil {
		return m.AssignFunc(ctx, actor, leadID, userID)
	}
	return &models.Assignment{LeadID: leadID, UserID: userID}, nil
}

func (m *MockLeadService) CountByStatus(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, l := range m.Leads {
		counts[l.StatusID]++
	}
	return counts, nil
}

// MockCommentService is a mock implementation of CommentService
type MockCommentService struct {
	Comments map[string][]models.Comment
	AddFunc  func(ctx context.Context, actor *models.User, leadID, text string) (*models.Comment, error)
}

func NewMockCommentService() *MockCommentService {
	return &MockCommentService{Comments: make(map[string][]models.Comment)}
}

func (m *MockCommentService) List(ctx context.Context, actor *models.User, leadID string) ([]models.Comment, error) {
	if c, ok := m.Comments[leadID]; ok {
		return c, nil
	}
	return []models.Comment{}, nil
}

func (m *MockCommentService) Add(ctx context.Context, actor *models.User, leadID, text string) (*models.Comment, error) {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, actor, leadID, text)
	}
	c := models.Comment{ID: "comment-1", LeadID: leadID, UserID: actor.ID, UserName: actor.Name, Text: text}
	m.Comments[leadID] = append(m.Comments[leadID], c)
	return &c, nil
}

// MockImportService is a mock implementation of ImportService
type MockImportService struct {
	Existing   []string
	ImportFunc func(ctx context.Context, actor *models.User, leads []models.LeadInput) (*models.ImportResult, error)
	Batches    [][]models.LeadInput
}

func NewMockImportService() *MockImportService {
	return &MockImportService{}
}

func (m *MockImportService) ExistingIDs(ctx context.Context, actor *models.User, ids []string) ([]string, error) {
	if !actor.IsAdmin() {
		return nil, service.ErrForbidden
	}
	return m.Existing, nil
}

func (m *MockImportService) Import(ctx context.Context, actor *models.User, leads []models.LeadInput) (*models.ImportResult, error) {
	m.Batches = append(m.Batches, leads)
	if m.ImportFunc != nil {
		return m.ImportFunc(ctx, actor, leads)
	}
	return &models.ImportResult{Added: len(leads)}, nil
}

// MockExportService is a mock implementation of ExportService
type MockExportService struct {
	StreamLeadsFunc func(ctx context.Context, w http.ResponseWriter, format string) error
}

func NewMockExportService() *MockExportService {
	return &MockExportService{}
}

func (m *MockExportService) StreamLeads(ctx context.Context, w http.ResponseWriter, format string) error {
	if m.StreamLeadsFunc != nil {
		return m.StreamLeadsFunc(ctx, w, format)
	}
	return nil
}
