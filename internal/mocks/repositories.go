package mocks

import (
	"context"
	"sort"

	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/repository"
)

// Verify interface compliance
var (
	_ repository.StatusRepository  = (*MockStatusRepository)(nil)
	_ repository.UserRepository    = (*MockUserRepository)(nil)
	_ repository.LeadRepository    = (*MockLeadRepository)(nil)
	_ repository.CommentRepository = (*MockCommentRepository)(nil)
)

// MockStatusRepository is a mock implementation of StatusRepository
type MockStatusRepository struct {
	Statuses  []models.Status
	ListError error
	ListCalls int
}

func NewMockStatusRepository(statuses ...models.Status) *MockStatusRepository {
	return &MockStatusRepository{Statuses: statuses}
}

func (m *MockStatusRepository) List(ctx context.Context) ([]models.Status, error) {
	m.ListCalls++
	if m.ListError != nil {
		return nil, m.ListError
	}
	out := make([]models.Status, len(m.Statuses))
	copy(out, m.Statuses)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	Users       map[string]*models.User
	InsertError error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*models.User),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return m.Users[id], nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range m.Users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (m *MockUserRepository) List(ctx context.Context, role string) ([]models.User, error) {
	users := []models.User{}
	for _, u := range m.Users {
		if role == "" || u.Role == role {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (m *MockUserRepository) Exists(ctx context.Context, id string) (bool, error) {
	_, exists := m.Users[id]
	return exists, nil
}

// MockLeadRepository is an in-memory LeadRepository
type MockLeadRepository struct {
	Leads            map[string]*models.Lead
	ListError        error
	UpdateError      error
	BatchInsertFunc  func(ctx context.Context, leads []*models.Lead) (int, error)
	BatchInsertCalls int
	ListCalls        int
}

func NewMockLeadRepository(leads ...*models.Lead) *MockLeadRepository {
	m := &MockLeadRepository{Leads: make(map[string]*models.Lead)}
	for _, l := range leads {
		m.Leads[l.ID] = l
	}
	return m
}

func (m *MockLeadRepository) matching(filter models.LeadFilter) []models.Lead {
	var out []models.Lead
	for _, l := range m.Leads {
		if filter.StatusID != "" && l.StatusID != filter.StatusID {
			continue
		}
		if filter.AssignedTo != "" && l.Assignee() != filter.AssignedTo {
			continue
		}
		if filter.AdName != "" && l.AdName != filter.AdName {
			continue
		}
		out = append(out, *l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CreatedAt, out[j].CreatedAt
		switch {
		case a.IsZero() != b.IsZero():
			return b.IsZero()
		case !a.Equal(b.Time):
			return a.After(b.Time)
		default:
			return out[i].ID < out[j].ID
		}
	})
	return out
}

func (m *MockLeadRepository) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	m.ListCalls++
	if m.ListError != nil {
		return nil, 0, m.ListError
	}
	all := m.matching(filter)
	start := filter.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PageSize
	if end > len(all) {
		end = len(all)
	}
	page := append([]models.Lead{}, all[start:end]...)
	return page, len(all), nil
}

func (m *MockLeadRepository) GetByID(ctx context.Context, id string) (*models.Lead, error) {
	l, ok := m.Leads[id]
	if !ok {
		return nil, nil
	}
	copied := *l
	return &copied, nil
}

func (m *MockLeadRepository) UpdateStatus(ctx context.Context, id, statusID string) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	l, ok := m.Leads[id]
	if !ok {
		return false, nil
	}
	l.StatusID = statusID
	return true, nil
}

func (m *MockLeadRepository) Assign(ctx context.Context, id, userID string) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	l, ok := m.Leads[id]
	if !ok {
		return false, nil
	}
	l.AssignedTo = &userID
	return true, nil
}

func (m *MockLeadRepository) BatchInsert(ctx context.Context, leads []*models.Lead) (int, error) {
	m.BatchInsertCalls++
	if m.BatchInsertFunc != nil {
		return m.BatchInsertFunc(ctx, leads)
	}
	for _, l := range leads {
		m.Leads[l.ID] = l
	}
	return len(leads), nil
}

func (m *MockLeadRepository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	existing := []string{}
	for _, id := range ids {
		if _, ok := m.Leads[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

func (m *MockLeadRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, l := range m.Leads {
		counts[l.StatusID]++
	}
	return counts, nil
}

func (m *MockLeadRepository) StreamAll(ctx context.Context, callback func(*models.Lead) error) error {
	for _, l := range m.matching(models.LeadFilter{}) {
		lead := l
		if err := callback(&lead); err != nil {
			return err
		}
	}
	return nil
}

// MockCommentRepository is a mock implementation of CommentRepository
type MockCommentRepository struct {
	Comments    []models.Comment
	InsertError error
	ListCalls   int
}

func NewMockCommentRepository() *MockCommentRepository {
	return &MockCommentRepository{}
}

func (m *MockCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.Comments = append(m.Comments, *comment)
	return nil
}

func (m *MockCommentRepository) ListByLead(ctx context.Context, leadID string) ([]models.Comment, error) {
	m.ListCalls++
	out := []models.Comment{}
	for _, c := range m.Comments {
		if c.LeadID == leadID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt.Time) })
	return out, nil
}
