package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"time"

	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/repository"
	"github.com/rs/zerolog"
)

// Export formats
const (
	FormatNDJSON = "ndjson"
	FormatJSON   = "json"
	FormatCSV    = "csv"
)

// flushEvery controls how often streamed exports are flushed to the client
const flushEvery = 100

// exportService is the concrete implementation of ExportService
type exportService struct {
	repos *repository.Repositories
	log   zerolog.Logger
}

func newExportService(repos *repository.Repositories, log zerolog.Logger) *exportService {
	return &exportService{
		repos: repos,
		log:   log.With().Str("service", "export").Logger(),
	}
}

// StreamLeads streams every lead in the requested format
func (s *exportService) StreamLeads(ctx context.Context, w http.ResponseWriter, format string) error {
	s.log.Info().Str("format", format).Msg("Starting leads export")

	var (
		count int
		err   error
	)
	switch format {
	case FormatNDJSON, "":
		count, err = s.streamNDJSON(ctx, w)
	case FormatJSON:
		count, err = s.streamJSON(ctx, w)
	case FormatCSV:
		count, err = s.streamCSV(ctx, w)
	default:
		return invalid("unsupported format: %s", format)
	}

	s.log.Info().Int("count", count).Str("format", format).Msg("Leads export completed")
	return err
}

func (s *exportService) streamNDJSON(ctx context.Context, w http.ResponseWriter) (int, error) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", "attachment; filename=leads.ndjson")

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	count := 0

	err := s.repos.Lead.StreamAll(ctx, func(lead *models.Lead) error {
		if err := enc.Encode(lead); err != nil {
			return err
		}
		count++
		if count%flushEvery == 0 && flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	return count, err
}

func (s *exportService) streamJSON(ctx context.Context, w http.ResponseWriter) (int, error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=leads.json")

	w.Write([]byte("["))
	count := 0

	err := s.repos.Lead.StreamAll(ctx, func(lead *models.Lead) error {
		if count > 0 {
			w.Write([]byte(","))
		}
		data, err := json.Marshal(lead)
		if err != nil {
			return err
		}
		w.Write(data)
		count++
		return nil
	})

	w.Write([]byte("]"))
	return count, err
}

var csvHeader = []string{
	"id", "name", "email", "phone", "source", "venture", "ad_name",
	"status_id", "assigned_to", "created_at", "extra_fields",
}

func (s *exportService) streamCSV(ctx context.Context, w http.ResponseWriter) (int, error) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=leads.csv")

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return 0, err
	}

	count := 0
	err := s.repos.Lead.StreamAll(ctx, func(lead *models.Lead) error {
		created := ""
		if !lead.CreatedAt.IsZero() {
			created = lead.CreatedAt.UTC().Format(time.RFC3339)
		}
		extra := "[]"
		if len(lead.ExtraFields) > 0 {
			data, err := json.Marshal(lead.ExtraFields)
			if err != nil {
				return err
			}
			extra = string(data)
		}
		count++
		return writer.Write([]string{
			lead.ID, lead.Name, lead.Email, lead.Phone, lead.Source, lead.Venture, lead.AdName,
			lead.StatusID, lead.Assignee(), created, extra,
		})
	})
	return count, err
}
