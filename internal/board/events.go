package board

import (
	"context"
	"fmt"

	"github.com/leadboard/internal/events"
)

// HandleEvent applies a live server event to a board.
// A changed lead is applied in place; an import may touch any column, so it reloads.
func HandleEvent(ctx context.Context, ctrl Controller, e events.Event) error {
	switch e.Type {
	case events.TypeLeadUpdated:
		lead, err := e.Lead()
		if err != nil {
			return fmt.Errorf("decode %s: %w", e.Type, err)
		}
		ctrl.ApplyUpdate(*lead)
		return nil
	case events.TypeLeadsImported:
		return ctrl.Reload(ctx)
	default:
		return nil
	}
}
