package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/validation"
	"github.com/rs/zerolog"
)

// Detail is the open view of one lead: its fields, its comments and the actions on it
type Detail struct {
	mu       sync.Mutex
	remote   Remote
	ctrl     Controller
	mover    Mover
	viewer   *models.User
	lead     models.Lead
	comments []models.Comment
	log      zerolog.Logger
}

// DetailOption configures a Detail
type DetailOption func(*Detail)

// WithController lets the detail push its changes to a board.
// A controller that is also a Mover handles status changes optimistically.
func WithController(ctrl Controller) DetailOption {
	return func(d *Detail) {
		d.ctrl = ctrl
		if m, ok := ctrl.(Mover); ok {
			d.mover = m
		}
	}
}

// WithDetailLogger sets the logger
func WithDetailLogger(log zerolog.Logger) DetailOption {
	return func(d *Detail) {
		d.log = log.With().Str("component", "detail").Logger()
	}
}

// NewDetail opens lead for viewer
func NewDetail(remote Remote, viewer *models.User, lead models.Lead, opts ...DetailOption) *Detail {
	d := &Detail{
		remote: remote,
		viewer: viewer,
		lead:   lead,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Lead returns the lead as currently shown
func (d *Detail) Lead() models.Lead {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lead
}

// Comments returns the loaded comments, oldest first
func (d *Detail) Comments() []models.Comment {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Comment, len(d.comments))
	copy(out, d.comments)
	return out
}

// Assign hands the lead to userID. Only admins may assign; for anyone else no call is made.
// On failure the shown assignee is unchanged.
func (d *Detail) Assign(ctx context.Context, userID string) error {
	if !d.viewer.IsAdmin() {
		return ErrForbidden
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	leadID := d.Lead().ID
	if _, err := d.remote.AssignLead(ctx, leadID, userID); err != nil {
		d.log.Warn().Err(err).Str("lead_id", leadID).Str("user_id", userID).Msg("Assign failed")
		return fmt.Errorf("assign %s: %w", leadID, err)
	}

	d.mu.Lock()
	assignee := userID
	d.lead.AssignedTo = &assignee
	lead := d.lead
	d.mu.Unlock()

	if d.ctrl != nil {
		d.ctrl.ApplyUpdate(lead)
	}
	d.log.Info().Str("lead_id", leadID).Str("user_id", userID).Msg("Lead assigned")
	return nil
}

// ChangeStatus moves the lead to statusID. With a board attached the move is optimistic;
// otherwise the remote is called first and the board, if any, is updated after.
func (d *Detail) ChangeStatus(ctx context.Context, statusID string) error {
	lead := d.Lead()
	if statusID == lead.StatusID {
		return nil
	}

	if d.mover != nil {
		_, err := d.mover.MoveLead(ctx, lead.ID, statusID, -1)
		switch {
		case err == nil:
			d.setStatus(statusID)
			return nil
		case !errors.Is(err, ErrLeadNotLoaded):
			return err
		}
	}

	if _, err := d.remote.UpdateLeadStatus(ctx, lead.ID, statusID); err != nil {
		return fmt.Errorf("change status of %s: %w", lead.ID, err)
	}
	updated := d.setStatus(statusID)
	if d.ctrl != nil {
		d.ctrl.ApplyUpdate(updated)
	}
	return nil
}

func (d *Detail) setStatus(statusID string) models.Lead {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lead.StatusID = statusID
	return d.lead
}

// LoadComments fetches the lead's comments
func (d *Detail) LoadComments(ctx context.Context) error {
	comments, err := d.remote.ListComments(ctx, d.Lead().ID)
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	sortOldestFirst(comments)

	d.mu.Lock()
	d.comments = comments
	d.mu.Unlock()
	return nil
}

// AddComment posts a comment and appends it to the list
func (d *Detail) AddComment(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if err := validation.ValidateComment(text); err != nil {
		return err
	}

	comment, err := d.remote.AddComment(ctx, d.Lead().ID, text)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}

	d.mu.Lock()
	d.comments = append(d.comments, *comment)
	sortOldestFirst(d.comments)
	d.mu.Unlock()
	return nil
}

func sortOldestFirst(comments []models.Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt.Time)
	})
}
