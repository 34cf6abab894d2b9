package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/leadboard/internal/cache"
	"github.com/leadboard/internal/config"
	"github.com/leadboard/internal/events"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/repository"
	"github.com/leadboard/internal/validation"
	"github.com/rs/zerolog"
)

// importService is the concrete implementation of ImportService
type importService struct {
	repos *repository.Repositories
	leads *leadService
	cache *resultCache
	pub   Publisher
	cfg   *config.Config
	log   zerolog.Logger
}

func newImportService(repos *repository.Repositories, leads *leadService, results *resultCache, pub Publisher, cfg *config.Config, log zerolog.Logger) *importService {
	return &importService{
		repos: repos,
		leads: leads,
		cache: results,
		pub:   pub,
		cfg:   cfg,
		log:   log.With().Str("service", "import").Logger(),
	}
}

// ExistingIDs returns which of ids are already stored
func (s *importService) ExistingIDs(ctx context.Context, actor *models.User, ids []string) ([]string, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if len(ids) > models.MaxImportBatch {
		return nil, invalid("at most %d ids per request", models.MaxImportBatch)
	}
	existing, err := s.repos.Lead.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check existing ids: %w", err)
	}
	return existing, nil
}

// Import validates and stores one batch of leads.
// Rows whose id already exists are skipped; invalid rows are reported and not stored.
func (s *importService) Import(ctx context.Context, actor *models.User, inputs []models.LeadInput) (*models.ImportResult, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if len(inputs) == 0 {
		return &models.ImportResult{}, nil
	}
	if limit := s.cfg.Import.MaxBatchSize; limit > 0 && len(inputs) > limit {
		return nil, invalid("batch of %d rows exceeds the limit of %d", len(inputs), limit)
	}

	startTime := time.Now()

	validator, defaultStatus, err := s.prepareValidator(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if in.ID != "" {
			ids = append(ids, in.ID)
		}
	}
	existing, err := s.repos.Lead.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check existing ids: %w", err)
	}
	skip := make(map[string]bool, len(existing))
	for _, id := range existing {
		skip[id] = true
	}

	result := &models.ImportResult{}
	batch := make([]*models.Lead, 0, len(inputs))
	for i := range inputs {
		in := &inputs[i]
		lineNum := i + 1

		if skip[in.ID] {
			result.Skipped++
			continue
		}

		if errs := validator.ValidateLead(in, lineNum); len(errs) > 0 {
			result.Errors = append(result.Errors, errs...)
			continue
		}

		validator.AddLeadID(in.ID)
		batch = append(batch, convertInputToLead(in, defaultStatus))
	}

	inserted, err := s.repos.Lead.BatchInsert(ctx, batch)
	if err != nil {
		s.log.Error().Err(err).Int("batch_size", len(batch)).Msg("Batch insert failed")
		return nil, fmt.Errorf("insert leads: %w", err)
	}
	result.Added = inserted

	if inserted > 0 {
		s.cache.invalidate(ctx, cache.KeyLeads)
		s.pub.Publish(events.LeadsImported(inserted))
	}

	s.log.Info().
		Str("actor", actor.ID).
		Int("total", len(inputs)).
		Int("added", result.Added).
		Int("skipped", result.Skipped).
		Int("invalid_fields", len(result.Errors)).
		Int64("duration_ms", time.Since(startTime).Milliseconds()).
		Msg("Import batch completed")

	return result, nil
}

// prepareValidator loads reference data and returns the status used for rows without one
func (s *importService) prepareValidator(ctx context.Context) (*validation.Validator, string, error) {
	statuses, err := s.leads.ListStatuses(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(statuses) == 0 {
		return nil, "", fmt.Errorf("no statuses configured")
	}
	ordered := make([]models.Status, len(statuses))
	copy(ordered, statuses)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	users, err := s.leads.ListUsers(ctx, "")
	if err != nil {
		return nil, "", err
	}
	userIDs := make([]string, len(users))
	for i, u := range users {
		userIDs[i] = u.ID
	}

	validator := validation.NewValidator()
	validator.SetStatuses(statuses)
	validator.SetUserIDs(userIDs)
	return validator, ordered[0].ID, nil
}

// convertInputToLead maps a validated row to the stored model
func convertInputToLead(in *models.LeadInput, defaultStatus string) *models.Lead {
	lead := &models.Lead{
		ID:          in.ID,
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		Source:      in.Source,
		Venture:     in.Venture,
		AdName:      in.AdName,
		StatusID:    in.StatusID,
		ExtraFields: in.ExtraFields,
		CreatedAt:   models.ParseTimestamp(in.CreatedAt),
	}
	if lead.StatusID == "" {
		lead.StatusID = defaultStatus
	}
	if in.AssignedTo != "" {
		assignee := in.AssignedTo
		lead.AssignedTo = &assignee
	}
	if in.CreatedAt == "" {
		lead.CreatedAt = models.At(time.Now().UTC())
	}
	return lead
}
