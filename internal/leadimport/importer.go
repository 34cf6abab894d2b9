package leadimport

import (
	"context"
	"fmt"
	"time"

	"github.com/leadboard/internal/models"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is the number of rows sent per import call
const DefaultBatchSize = 100

// Remote is the part of the API the importer needs
type Remote interface {
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
	ImportLeads(ctx context.Context, batch []models.LeadInput) (*models.ImportResult, error)
}

// Progress is reported after every successful batch
type Progress struct {
	Batch   int
	Batches int
	Sent    int
	Total   int
	Added   int
}

// Result summarizes an import. On failure Added counts the rows stored before the failing batch.
type Result struct {
	Added   int
	Skipped int
	// Errors carry the 1-based position of the row in the input
	Errors []models.ValidationError
}

// Importer sends rows in fixed-size batches after dropping ids the server already has
type Importer struct {
	remote     Remote
	batchSize  int
	onProgress func(Progress)
	log        zerolog.Logger
}

// Option configures an Importer
type Option func(*Importer)

// WithBatchSize overrides DefaultBatchSize
func WithBatchSize(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithProgress registers a progress callback
func WithProgress(fn func(Progress)) Option {
	return func(i *Importer) {
		i.onProgress = fn
	}
}

// New creates an importer
func New(remote Remote, log zerolog.Logger, opts ...Option) *Importer {
	i := &Importer{
		remote:    remote,
		batchSize: DefaultBatchSize,
		log:       log.With().Str("component", "importer").Logger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import runs the precheck and sends the remaining rows. The first failing batch aborts the rest.
func (i *Importer) Import(ctx context.Context, rows []models.LeadInput) (Result, error) {
	var result Result
	startTime := time.Now()

	existing, err := i.precheck(ctx, rows)
	if err != nil {
		return result, fmt.Errorf("duplicate precheck: %w", err)
	}

	// position maps a row in pending back to its place in rows
	pending := make([]models.LeadInput, 0, len(rows))
	position := make([]int, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for idx, row := range rows {
		if existing[row.ID] || seen[row.ID] {
			result.Skipped++
			continue
		}
		seen[row.ID] = true
		pending = append(pending, row)
		position = append(position, idx+1)
	}

	batches := (len(pending) + i.batchSize - 1) / i.batchSize
	i.log.Info().
		Int("rows", len(rows)).
		Int("skipped", result.Skipped).
		Int("batches", batches).
		Msg("Starting import")

	for b := 0; b < batches; b++ {
		start := b * i.batchSize
		end := start + i.batchSize
		if end > len(pending) {
			end = len(pending)
		}

		res, err := i.remote.ImportLeads(ctx, pending[start:end])
		if err != nil {
			i.log.Error().Err(err).Int("batch", b+1).Int("added", result.Added).Msg("Import aborted")
			return result, fmt.Errorf("batch %d of %d: %w", b+1, batches, err)
		}

		result.Added += res.Added
		result.Skipped += res.Skipped
		for _, ve := range res.Errors {
			if ve.Line >= 1 && ve.Line <= end-start {
				ve.Line = position[start+ve.Line-1]
			}
			result.Errors = append(result.Errors, ve)
		}

		if i.onProgress != nil {
			i.onProgress(Progress{Batch: b + 1, Batches: batches, Sent: end, Total: len(pending), Added: result.Added})
		}
	}

	i.log.Info().
		Int("added", result.Added).
		Int("skipped", result.Skipped).
		Int("invalid_fields", len(result.Errors)).
		Int64("duration_ms", time.Since(startTime).Milliseconds()).
		Msg("Import completed")

	return result, nil
}

// precheck asks the server which ids already exist, in chunks the server accepts
func (i *Importer) precheck(ctx context.Context, rows []models.LeadInput) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(rows); start += models.MaxImportBatch {
		end := start + models.MaxImportBatch
		if end > len(rows) {
			end = len(rows)
		}
		ids := make([]string, 0, end-start)
		for _, row := range rows[start:end] {
			ids = append(ids, row.ID)
		}

		found, err := i.remote.ExistingIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			existing[id] = true
		}
	}
	return existing, nil
}
