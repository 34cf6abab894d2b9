// Package board holds the client-side lead board: one bucket of leads per status,
// filled page by page from the remote service and kept consistent across reloads,
// single-record updates and optimistic status moves.
//
// A lead id is in at most one bucket at a time, the one matching its status.
// Buckets are ordered newest first by created_at; leads without a usable timestamp sort last.
package board

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/leadboard/internal/models"
	"github.com/rs/zerolog"
)

var (
	// ErrLeadNotLoaded is returned when an operation needs a lead that is in no bucket
	ErrLeadNotLoaded = errors.New("lead is not on the board")
	// ErrUnknownStatus is returned for a status that is not a board column
	ErrUnknownStatus = errors.New("unknown status")
	// ErrForbidden is returned for actions the viewer's role does not allow
	ErrForbidden = errors.New("not allowed for this role")
)

// Remote is the data service the board reads from and writes to
type Remote interface {
	ListStatuses(ctx context.Context) ([]models.Status, error)
	ListLeads(ctx context.Context, filter models.LeadFilter) (*models.LeadPage, error)
	UpdateLeadStatus(ctx context.Context, leadID, statusID string) (*models.StatusChange, error)
	AssignLead(ctx context.Context, leadID, userID string) (*models.Assignment, error)
	ListComments(ctx context.Context, leadID string) ([]models.Comment, error)
	AddComment(ctx context.Context, leadID, text string) (*models.Comment, error)
}

// Controller is the handle other components hold to refresh the board
type Controller interface {
	Reload(ctx context.Context) error
	ApplyUpdate(lead models.Lead)
}

// Config holds board settings
type Config struct {
	PageSize int
	// AssignedTo and AdName narrow every listing
	AssignedTo string
	AdName     string
	// Concurrency bounds the parallel first-page loads
	Concurrency int
	// DebounceWindow coalesces LoadMore bursts
	DebounceWindow time.Duration
	// OnError receives failures of debounced loads
	OnError func(statusID string, err error)
}

const (
	defaultPageSize    = 20
	defaultConcurrency = 4
	defaultDebounce    = 300 * time.Millisecond
)

// column is one status bucket plus its paging bookkeeping.
// serverTotal is the count the server last reported and drives paging;
// total is the count shown, which single updates recompute from the bucket.
type column struct {
	leads       []models.Lead
	total       int
	serverTotal int
	known       bool
	fetched     map[int]bool
	inFlight    map[int]bool
}

func newColumn() *column {
	return &column{fetched: make(map[int]bool), inFlight: make(map[int]bool)}
}

func (c *column) indexOf(id string) int {
	for i := range c.leads {
		if c.leads[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *column) remove(id string) bool {
	if i := c.indexOf(id); i >= 0 {
		c.leads = append(c.leads[:i], c.leads[i+1:]...)
		return true
	}
	return false
}

func (c *column) insertAt(i int, lead models.Lead) {
	if i < 0 {
		i = 0
	}
	if i > len(c.leads) {
		i = len(c.leads)
	}
	c.leads = append(c.leads, models.Lead{})
	copy(c.leads[i+1:], c.leads[i:])
	c.leads[i] = lead
}

// sortNewestFirst orders by created_at descending; equal timestamps keep insertion order
func sortNewestFirst(leads []models.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].CreatedAt.After(leads[j].CreatedAt.Time)
	})
}

// Column is a read-only view of one bucket
type Column struct {
	Status models.Status
	Leads  []models.Lead
	Total  int
	// Loaded reports whether the server has answered for this column yet
	Loaded bool

	serverTotal int
}

// Empty reports a loaded column without leads
func (c Column) Empty() bool {
	return c.Loaded && c.Total == 0 && len(c.Leads) == 0
}

// HasMore reports whether the server holds leads not loaded yet
func (c Column) HasMore() bool {
	return !c.Loaded || len(c.Leads) < c.serverTotal
}

// Board is the in-memory lead board
type Board struct {
	mu         sync.Mutex
	remote     Remote
	cfg        Config
	statuses   []models.Status
	columns    map[string]*column
	generation uint64
	debounce   *debouncer
	log        zerolog.Logger
}

var _ Controller = (*Board)(nil)

// New creates an empty board; call InitialLoad to fill it
func New(remote Remote, cfg Config, log zerolog.Logger) *Board {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = defaultDebounce
	}

	b := &Board{
		remote:   remote,
		cfg:      cfg,
		columns:  make(map[string]*column),
		debounce: newDebouncer(cfg.DebounceWindow),
		log:      log.With().Str("component", "board").Logger(),
	}
	if b.cfg.OnError == nil {
		b.cfg.OnError = func(statusID string, err error) {
			b.log.Warn().Err(err).Str("status_id", statusID).Msg("Page load failed")
		}
	}
	return b
}

// Close stops pending debounced loads
func (b *Board) Close() {
	b.debounce.stop()
}

// Generation returns the current load generation
func (b *Board) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// Statuses returns the columns in display order
func (b *Board) Statuses() []models.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Status, len(b.statuses))
	copy(out, b.statuses)
	return out
}

// Snapshot returns a copy of every column in display order
func (b *Board) Snapshot() []Column {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Column, 0, len(b.statuses))
	for _, st := range b.statuses {
		col := b.columns[st.ID]
		if col == nil {
			continue
		}
		leads := make([]models.Lead, len(col.leads))
		copy(leads, col.leads)
		out = append(out, Column{
			Status:      st,
			Leads:       leads,
			Total:       col.total,
			Loaded:      col.known,
			serverTotal: col.serverTotal,
		})
	}
	return out
}

// Bucket returns a copy of one column's leads
func (b *Board) Bucket(statusID string) []models.Lead {
	b.mu.Lock()
	defer b.mu.Unlock()
	col := b.columns[statusID]
	if col == nil {
		return nil
	}
	out := make([]models.Lead, len(col.leads))
	copy(out, col.leads)
	return out
}

// Total returns the displayed total of one column
func (b *Board) Total(statusID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if col := b.columns[statusID]; col != nil {
		return col.total
	}
	return 0
}

// Lead finds a loaded lead by id
func (b *Board) Lead(id string) (models.Lead, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, col := b.locate(id); col != nil {
		return col.leads[col.indexOf(id)], true
	}
	return models.Lead{}, false
}

// locate returns the column holding id; callers hold b.mu
func (b *Board) locate(id string) (string, *column) {
	for statusID, col := range b.columns {
		if col.indexOf(id) >= 0 {
			return statusID, col
		}
	}
	return "", nil
}

// matches reports whether lead passes the board's listing filters
func (b *Board) matches(lead models.Lead) bool {
	if b.cfg.AssignedTo != "" && lead.Assignee() != b.cfg.AssignedTo {
		return false
	}
	if b.cfg.AdName != "" && lead.AdName != b.cfg.AdName {
		return false
	}
	return true
}

// ApplyUpdate moves one changed lead into the bucket of its status without a reload.
// Every displayed total becomes its bucket length, so totals then count loaded leads only.
// Paging keeps the server totals, so remaining pages still load and failed columns can be retried.
func (b *Board) ApplyUpdate(lead models.Lead) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, col := range b.columns {
		col.remove(lead.ID)
	}

	if col := b.columns[lead.StatusID]; col != nil && b.matches(lead) {
		col.leads = append(col.leads, lead)
		sortNewestFirst(col.leads)
	}

	for _, col := range b.columns {
		col.total = len(col.leads)
	}

	b.log.Debug().Str("lead_id", lead.ID).Str("status_id", lead.StatusID).Msg("Applied single update")
}
