package board

import (
	"context"
	"fmt"

	"github.com/leadboard/internal/models"
)

// LoadPage fetches one 1-based page of a column and merges it into the bucket.
// Pages already fetched or in flight, and pages past the known total, are no-ops.
// A failed page stays unfetched so a later trigger can ask for it again.
func (b *Board) LoadPage(ctx context.Context, statusID string, page int) error {
	if page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", page)
	}

	b.mu.Lock()
	gen := b.generation
	col := b.columns[statusID]
	if col == nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownStatus, statusID)
	}
	if col.fetched[page] || col.inFlight[page] {
		b.mu.Unlock()
		return nil
	}
	if col.known && (page-1)*b.cfg.PageSize >= col.serverTotal {
		b.mu.Unlock()
		return nil
	}
	col.inFlight[page] = true
	filter := b.filter(statusID, page)
	b.mu.Unlock()

	resp, err := b.remote.ListLeads(ctx, filter)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.generation != gen || b.columns[statusID] != col {
		b.log.Debug().
			Str("status_id", statusID).
			Int("page", page).
			Uint64("generation", gen).
			Msg("Discarded stale page")
		return nil
	}
	delete(col.inFlight, page)
	if err != nil {
		return fmt.Errorf("load %s page %d: %w", statusID, page, err)
	}

	col.fetched[page] = true
	col.total = resp.Total
	col.serverTotal = resp.Total
	col.known = true
	added := b.merge(statusID, col, resp.Leads)

	b.log.Debug().
		Str("status_id", statusID).
		Int("page", page).
		Int("added", added).
		Int("bucket", len(col.leads)).
		Int("total", col.total).
		Msg("Page merged")
	return nil
}

// LoadNext fetches the next page of a column unless the bucket already holds the server total
func (b *Board) LoadNext(ctx context.Context, statusID string) error {
	b.mu.Lock()
	col := b.columns[statusID]
	if col == nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownStatus, statusID)
	}
	if col.known && len(col.leads) >= col.serverTotal {
		b.mu.Unlock()
		return nil
	}
	page := 1
	for col.fetched[page] || col.inFlight[page] {
		page++
	}
	b.mu.Unlock()

	return b.LoadPage(ctx, statusID, page)
}

// LoadMore is the debounced form of LoadNext for bursty triggers such as scrolling.
// Only the last call within the debounce window runs; failures go to Config.OnError.
func (b *Board) LoadMore(ctx context.Context, statusID string) {
	b.debounce.trigger(statusID, func() {
		if err := b.LoadNext(ctx, statusID); err != nil {
			b.cfg.OnError(statusID, err)
		}
	})
}

func (b *Board) filter(statusID string, page int) models.LeadFilter {
	return models.LeadFilter{
		StatusID:   statusID,
		AssignedTo: b.cfg.AssignedTo,
		AdName:     b.cfg.AdName,
		Page:       page,
		PageSize:   b.cfg.PageSize,
	}
}

// merge adds fetched leads to col and re-sorts it; callers hold b.mu.
// Leads of another status are dropped, ids already in the bucket are kept as they are,
// and an id found in another bucket leaves it.
func (b *Board) merge(statusID string, col *column, fetched []models.Lead) int {
	added := 0
	for _, lead := range fetched {
		if lead.StatusID != statusID {
			b.log.Warn().
				Str("lead_id", lead.ID).
				Str("want", statusID).
				Str("got", lead.StatusID).
				Msg("Dropped lead from another status")
			continue
		}
		if col.indexOf(lead.ID) >= 0 {
			continue
		}
		for otherID, other := range b.columns {
			if otherID != statusID {
				other.remove(lead.ID)
			}
		}
		col.leads = append(col.leads, lead)
		added++
	}
	sortNewestFirst(col.leads)
	return added
}
