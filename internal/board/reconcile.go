package board

import (
	"context"
	"fmt"

	"github.com/leadboard/internal/models"
)

// MoveState is where a status change stands
type MoveState int

const (
	Idle MoveState = iota
	Applied
	Confirmed
	RolledBack
)

func (s MoveState) String() string {
	switch s {
	case Applied:
		return "applied"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled back"
	default:
		return "idle"
	}
}

// Move describes one status change request
type Move struct {
	LeadID string
	From   string
	To     string
	State  MoveState
}

// Mover changes a lead's status through the board
type Mover interface {
	MoveLead(ctx context.Context, leadID, toStatusID string, position int) (Move, error)
}

var _ Mover = (*Board)(nil)

// MoveLead moves a lead to another column at once, then confirms with the remote service.
// position is the index in the destination bucket; a negative position keeps newest-first order.
// When the remote rejects the change, page 1 of both columns is fetched again and replaces
// both buckets; if that fails as well the lead goes back where it was. The remote error is returned.
// After a rollback the lead is in exactly one of the two buckets.
// Two moves of the same lead are not serialized; the last to complete wins.
func (b *Board) MoveLead(ctx context.Context, leadID, toStatusID string, position int) (Move, error) {
	move := Move{LeadID: leadID, To: toStatusID, State: Idle}

	b.mu.Lock()
	gen := b.generation
	fromID, src := b.locate(leadID)
	if src == nil {
		b.mu.Unlock()
		return move, fmt.Errorf("%w: %s", ErrLeadNotLoaded, leadID)
	}
	dst := b.columns[toStatusID]
	if dst == nil {
		b.mu.Unlock()
		return move, fmt.Errorf("%w: %s", ErrUnknownStatus, toStatusID)
	}
	move.From = fromID

	srcIndex := src.indexOf(leadID)
	original := src.leads[srcIndex]

	if fromID == toStatusID {
		if position >= 0 {
			src.remove(leadID)
			src.insertAt(position, original)
		}
		b.mu.Unlock()
		move.State = Confirmed
		return move, nil
	}

	moved := original
	moved.StatusID = toStatusID
	src.remove(leadID)
	if position < 0 {
		dst.leads = append(dst.leads, moved)
		sortNewestFirst(dst.leads)
	} else {
		dst.insertAt(position, moved)
	}
	saved := savedTotals{
		srcTotal: src.total, srcServer: src.serverTotal,
		dstTotal: dst.total, dstServer: dst.serverTotal,
	}
	if src.total > 0 {
		src.total--
	}
	if src.serverTotal > 0 {
		src.serverTotal--
	}
	dst.total++
	dst.serverTotal++
	b.mu.Unlock()

	move.State = Applied
	b.log.Debug().Str("lead_id", leadID).Str("from", fromID).Str("to", toStatusID).Msg("Move applied")

	_, err := b.remote.UpdateLeadStatus(ctx, leadID, toStatusID)
	if err == nil {
		move.State = Confirmed
		b.log.Info().Str("lead_id", leadID).Str("from", fromID).Str("to", toStatusID).Msg("Move confirmed")
		return move, nil
	}

	move.State = RolledBack
	b.log.Warn().Err(err).Str("lead_id", leadID).Str("from", fromID).Str("to", toStatusID).Msg("Move rejected, rolling back")

	if rerr := b.replaceWithServerTruth(ctx, gen, original, fromID, toStatusID); rerr != nil {
		b.log.Warn().Err(rerr).Str("lead_id", leadID).Msg("Refetch failed, reverting locally")
		b.revert(gen, original, fromID, toStatusID, srcIndex, saved)
	}
	return move, fmt.Errorf("move %s to %s: %w", leadID, toStatusID, err)
}

// savedTotals holds both columns' counts from before a move
type savedTotals struct {
	srcTotal, srcServer int
	dstTotal, dstServer int
}

// replaceWithServerTruth fetches page 1 of each column and swaps both buckets in together.
// A moved lead that lies beyond page 1 of its column is kept in the source bucket, where the
// rejected move leaves it on the server.
func (b *Board) replaceWithServerTruth(ctx context.Context, gen uint64, moved models.Lead, fromID, toID string) error {
	statusIDs := []string{fromID, toID}
	pages := make([]*models.LeadPage, len(statusIDs))
	for i, statusID := range statusIDs {
		b.mu.Lock()
		filter := b.filter(statusID, 1)
		b.mu.Unlock()

		page, err := b.remote.ListLeads(ctx, filter)
		if err != nil {
			return fmt.Errorf("refetch %s: %w", statusID, err)
		}
		pages[i] = page
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != gen {
		// A reload has taken over
		return nil
	}
	for i, statusID := range statusIDs {
		col := newColumn()
		col.fetched[1] = true
		col.total = pages[i].Total
		col.serverTotal = pages[i].Total
		col.known = true
		b.columns[statusID] = col
		b.merge(statusID, col, pages[i].Leads)
	}

	if _, col := b.locate(moved.ID); col == nil {
		src := b.columns[fromID]
		src.leads = append(src.leads, moved)
		sortNewestFirst(src.leads)
		b.log.Debug().Str("lead_id", moved.ID).Str("status_id", fromID).Msg("Kept moved lead beyond page 1")
	}
	return nil
}

// revert puts a lead back at its place before the move
func (b *Board) revert(gen uint64, original models.Lead, fromID, toID string, index int, saved savedTotals) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != gen {
		return
	}
	for _, col := range b.columns {
		col.remove(original.ID)
	}
	if src := b.columns[fromID]; src != nil {
		src.insertAt(index, original)
		src.total, src.serverTotal = saved.srcTotal, saved.srcServer
	}
	if dst := b.columns[toID]; dst != nil {
		dst.total, dst.serverTotal = saved.dstTotal, saved.dstServer
	}
}
