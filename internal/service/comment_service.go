package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leadboard/internal/cache"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/repository"
	"github.com/leadboard/internal/validation"
	"github.com/rs/zerolog"
)

// commentService is the concrete implementation of CommentService
type commentService struct {
	repos *repository.Repositories
	cache *resultCache
	now   func() time.Time
	log   zerolog.Logger
}

func newCommentService(repos *repository.Repositories, results *resultCache, log zerolog.Logger) *commentService {
	return &commentService{
		repos: repos,
		cache: results,
		now:   time.Now,
		log:   log.With().Str("service", "comment").Logger(),
	}
}

func (s *commentService) checkLead(ctx context.Context, actor *models.User, leadID string) error {
	lead, err := s.repos.Lead.GetByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("get lead: %w", err)
	}
	if lead == nil {
		return ErrNotFound
	}
	if !actor.IsAdmin() && lead.Assignee() != actor.ID {
		return ErrForbidden
	}
	return nil
}

// List returns a lead's comments oldest first
func (s *commentService) List(ctx context.Context, actor *models.User, leadID string) ([]models.Comment, error) {
	if err := s.checkLead(ctx, actor, leadID); err != nil {
		return nil, err
	}

	key := cache.CommentsKey(leadID)
	var comments []models.Comment
	if s.cache.get(ctx, key, &comments) {
		return comments, nil
	}

	comments, err := s.repos.Comment.ListByLead(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	s.cache.set(ctx, key, comments)
	return comments, nil
}

// Add stores a comment authored by actor
func (s *commentService) Add(ctx context.Context, actor *models.User, leadID, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if err := validation.ValidateComment(text); err != nil {
		return nil, invalid("%s", err.Error())
	}
	if err := s.checkLead(ctx, actor, leadID); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ID:        uuid.New().String(),
		LeadID:    leadID,
		UserID:    actor.ID,
		UserName:  actor.Name,
		Text:      text,
		CreatedAt: models.At(s.now().UTC()),
	}
	if err := s.repos.Comment.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	s.cache.invalidate(ctx, cache.CommentsKey(leadID))
	s.log.Debug().Str("lead_id", leadID).Str("comment_id", comment.ID).Msg("Comment added")
	return comment, nil
}
