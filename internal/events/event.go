// Package events carries board change notifications from the server to connected clients.
package events

import (
	"encoding/json"

	"github.com/leadboard/internal/models"
)

// Event types
const (
	TypeLeadUpdated   = "lead.updated"
	TypeLeadsImported = "leads.imported"
)

// Event is one message on the live stream
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// Audience restricts delivery to these user IDs (plus admins); empty means everyone
	Audience []string `json:"-"`
}

// ImportSummary is the payload of a leads.imported event
type ImportSummary struct {
	Added int `json:"added"`
}

// LeadUpdated builds a lead.updated event visible to admins and the listed users
func LeadUpdated(lead *models.Lead, audience ...string) (Event, error) {
	data, err := json.Marshal(lead)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: TypeLeadUpdated, Data: data, Audience: audience}, nil
}

// LeadsImported builds a leads.imported event
func LeadsImported(added int) Event {
	data, _ := json.Marshal(ImportSummary{Added: added})
	return Event{Type: TypeLeadsImported, Data: data}
}

// Lead decodes the payload of a lead.updated event
func (e Event) Lead() (*models.Lead, error) {
	var lead models.Lead
	if err := json.Unmarshal(e.Data, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}
