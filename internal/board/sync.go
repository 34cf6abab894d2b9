package board

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// InitialLoad fetches the statuses and then page 1 of every column in parallel.
// Columns load independently: a failing column leaves the others untouched and the
// returned error joins every column failure. A load overtaken by a newer one is abandoned.
func (b *Board) InitialLoad(ctx context.Context) error {
	b.mu.Lock()
	b.generation++
	gen := b.generation
	b.mu.Unlock()

	statuses, err := b.remote.ListStatuses(ctx)
	if err != nil {
		return fmt.Errorf("list statuses: %w", err)
	}
	sort.SliceStable(statuses, func(i, j int) bool { return statuses[i].Order < statuses[j].Order })

	b.mu.Lock()
	if b.generation != gen {
		b.mu.Unlock()
		return nil
	}
	b.statuses = statuses
	b.columns = make(map[string]*column, len(statuses))
	for _, st := range statuses {
		b.columns[st.ID] = newColumn()
	}
	b.mu.Unlock()

	b.log.Info().Uint64("generation", gen).Int("columns", len(statuses)).Msg("Loading board")

	errs := make([]error, len(statuses))
	var g errgroup.Group
	g.SetLimit(b.cfg.Concurrency)
	for i, st := range statuses {
		i, statusID := i, st.ID
		g.Go(func() error {
			errs[i] = b.LoadPage(ctx, statusID, 1)
			return nil
		})
	}
	g.Wait()

	err = errors.Join(errs...)
	if err != nil {
		b.log.Warn().Err(err).Uint64("generation", gen).Msg("Some columns failed to load")
	}
	return err
}

// Reload drops all page bookkeeping and loads the board again.
// Responses still in flight from before the reload are discarded when they arrive.
func (b *Board) Reload(ctx context.Context) error {
	b.mu.Lock()
	for _, col := range b.columns {
		col.fetched = make(map[int]bool)
		col.inFlight = make(map[int]bool)
	}
	b.mu.Unlock()

	b.log.Debug().Msg("Reloading board")
	return b.InitialLoad(ctx)
}
