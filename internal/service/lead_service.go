package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/leadboard/internal/cache"
	"github.com/leadboard/internal/events"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/repository"
	"github.com/rs/zerolog"
)

// DefaultPageSize applies when a listing does not specify page_size
const DefaultPageSize = 20

// leadService is the concrete implementation of LeadService
type leadService struct {
	repos *repository.Repositories
	cache *resultCache
	pub   Publisher
	log   zerolog.Logger
}

func newLeadService(repos *repository.Repositories, results *resultCache, pub Publisher, log zerolog.Logger) *leadService {
	return &leadService{
		repos: repos,
		cache: results,
		pub:   pub,
		log:   log.With().Str("service", "lead").Logger(),
	}
}

// ListStatuses returns all statuses in column order
func (s *leadService) ListStatuses(ctx context.Context) ([]models.Status, error) {
	var statuses []models.Status
	if s.cache.get(ctx, cache.KeyStatuses, &statuses) {
		return statuses, nil
	}

	statuses, err := s.repos.Status.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	s.cache.set(ctx, cache.KeyStatuses, statuses)
	return statuses, nil
}

// ListUsers returns users, optionally restricted to one role
func (s *leadService) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	if role != "" && !models.ValidRoles[role] {
		return nil, invalid("unknown role %q", role)
	}

	key := cache.KeyUsers + "?role=" + role
	var users []models.User
	if s.cache.get(ctx, key, &users) {
		return users, nil
	}

	users, err := s.repos.User.List(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	s.cache.set(ctx, key, users)
	return users, nil
}

// normalizeFilter clamps paging and scopes SalesTeam members to their own leads
func normalizeFilter(actor *models.User, filter models.LeadFilter) models.LeadFilter {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = DefaultPageSize
	}
	if filter.PageSize > models.MaxPageSize {
		filter.PageSize = models.MaxPageSize
	}
	if !actor.IsAdmin() {
		filter.AssignedTo = actor.ID
	}
	return filter
}

func leadsKey(filter models.LeadFilter) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(filter.Page))
	q.Set("page_size", strconv.Itoa(filter.PageSize))
	q.Set("status_id", filter.StatusID)
	q.Set("assigned_to", filter.AssignedTo)
	q.Set("ad_name", filter.AdName)
	return cache.KeyLeads + "?" + q.Encode()
}

// ListLeads returns one page of leads visible to actor
func (s *leadService) ListLeads(ctx context.Context, actor *models.User, filter models.LeadFilter) (*models.LeadPage, error) {
	filter = normalizeFilter(actor, filter)

	key := leadsKey(filter)
	var page models.LeadPage
	if s.cache.get(ctx, key, &page) {
		return &page, nil
	}

	leads, total, err := s.repos.Lead.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	page = models.LeadPage{Leads: leads, Total: total, Page: filter.Page, PageSize: filter.PageSize}
	s.cache.set(ctx, key, page)
	return &page, nil
}

// GetLead returns a single lead if actor may see it
func (s *leadService) GetLead(ctx context.Context, actor *models.User, id string) (*models.Lead, error) {
	lead, err := s.repos.Lead.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	if lead == nil {
		return nil, ErrNotFound
	}
	if !actor.IsAdmin() && lead.Assignee() != actor.ID {
		return nil, ErrForbidden
	}
	return lead, nil
}

func (s *leadService) statusExists(ctx context.Context, statusID string) (bool, error) {
	statuses, err := s.ListStatuses(ctx)
	if err != nil {
		return false, err
	}
	for _, st := range statuses {
		if st.ID == statusID {
			return true, nil
		}
	}
	return false, nil
}

// UpdateStatus moves a lead to another status. Concurrent moves resolve last-write-wins.
func (s *leadService) UpdateStatus(ctx context.Context, actor *models.User, leadID, statusID string) (*models.StatusChange, error) {
	if statusID == "" {
		return nil, invalid("status_id is required")
	}
	ok, err := s.statusExists(ctx, statusID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalid("unknown status %q", statusID)
	}

	lead, err := s.GetLead(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}

	found, err := s.repos.Lead.UpdateStatus(ctx, leadID, statusID)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}

	s.log.Info().
		Str("lead_id", leadID).
		Str("from", lead.StatusID).
		Str("to", statusID).
		Str("actor", actor.ID).
		Msg("Lead status changed")

	lead.StatusID = statusID
	s.cache.invalidate(ctx, cache.KeyLeads)
	s.publishLead(lead, lead.Assignee())

	return &models.StatusChange{LeadID: leadID, StatusID: statusID}, nil
}

// Assign hands a lead to a user; only admins may assign
func (s *leadService) Assign(ctx context.Context, actor *models.User, leadID, userID string) (*models.Assignment, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if userID == "" {
		return nil, invalid("user_id is required")
	}

	exists, err := s.repos.User.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, invalid("unknown user %q", userID)
	}

	lead, err := s.repos.Lead.GetByID(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	if lead == nil {
		return nil, ErrNotFound
	}
	previous := lead.Assignee()

	found, err := s.repos.Lead.Assign(ctx, leadID, userID)
	if err != nil {
		return nil, fmt.Errorf("assign lead: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}

	s.log.Info().
		Str("lead_id", leadID).
		Str("from", previous).
		Str("to", userID).
		Msg("Lead assigned")

	lead.AssignedTo = &userID
	s.cache.invalidate(ctx, cache.KeyLeads)

	audience := []string{userID}
	if previous != "" && previous != userID {
		audience = append(audience, previous)
	}
	s.publishLead(lead, audience...)

	return &models.Assignment{LeadID: leadID, UserID: userID}, nil
}

// CountByStatus returns lead counts per status for metrics
func (s *leadService) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.repos.Lead.CountByStatus(ctx)
}

func (s *leadService) publishLead(lead *models.Lead, audience ...string) {
	e, err := events.LeadUpdated(lead, audience...)
	if err != nil {
		s.log.Error().Err(err).Str("lead_id", lead.ID).Msg("failed to build event")
		return
	}
	s.pub.Publish(e)
}
