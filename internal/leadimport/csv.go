// Package leadimport turns a CSV export of ad-campaign form answers into lead batches and sends them.
package leadimport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/leadboard/internal/models"
)

// knownColumns maps accepted header spellings to lead fields
var knownColumns = map[string]string{
	"id":               "id",
	"lead_id":          "id",
	"name":             "name",
	"full_name":        "name",
	"email":            "email",
	"phone":            "phone",
	"phone_number":     "phone",
	"source":           "source",
	"venture":          "venture",
	"ad_name":          "ad_name",
	"status_id":        "status_id",
	"assigned_to":      "assigned_to",
	"assigned_user_id": "assigned_to",
	"created_at":       "created_at",
	"created_time":     "created_at",
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

// ReadCSV parses rows into lead inputs. Columns that are not lead fields become
// extra fields in column order; blank answers are left out. Rows without an id get a generated one.
func ReadCSV(r io.Reader) ([]models.LeadInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	fields := make([]string, len(header))
	extraKeys := make([]string, len(header))
	hasName := false
	for i, h := range header {
		if f, ok := knownColumns[normalizeHeader(h)]; ok {
			fields[i] = f
			hasName = hasName || f == "name"
			continue
		}
		extraKeys[i] = strings.TrimSpace(h)
	}
	if !hasName {
		return nil, fmt.Errorf("CSV header has no name column")
	}

	var rows []models.LeadInput
	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if blank(record) {
			continue
		}

		var in models.LeadInput
		for i, value := range record {
			if i >= len(fields) {
				break
			}
			value = strings.TrimSpace(value)
			if fields[i] == "" {
				if value != "" && extraKeys[i] != "" {
					in.ExtraFields = append(in.ExtraFields, models.ExtraField{Key: extraKeys[i], Value: value})
				}
				continue
			}
			setField(&in, fields[i], value)
		}
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		rows = append(rows, in)
	}
	return rows, nil
}

func setField(in *models.LeadInput, field, value string) {
	switch field {
	case "id":
		in.ID = value
	case "name":
		in.Name = value
	case "email":
		in.Email = value
	case "phone":
		in.Phone = value
	case "source":
		in.Source = value
	case "venture":
		in.Venture = value
	case "ad_name":
		in.AdName = value
	case "status_id":
		in.StatusID = value
	case "assigned_to":
		in.AssignedTo = value
	case "created_at":
		in.CreatedAt = value
	}
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
