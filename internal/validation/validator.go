package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leadboard/internal/models"
)

var (
	emailRegex  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	leadIDRegex = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)
)

// MaxLeadIDLength matches the leads.id column width
const MaxLeadIDLength = 128

// Validator checks import rows against known statuses and users.
// It remembers accepted lead IDs so duplicates within one batch are reported.
type Validator struct {
	statusIDs map[string]bool
	userIDs   map[string]bool
	leadIDs   map[string]bool
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		statusIDs: make(map[string]bool),
		userIDs:   make(map[string]bool),
		leadIDs:   make(map[string]bool),
	}
}

// SetStatuses sets the statuses a lead may be imported into
func (v *Validator) SetStatuses(statuses []models.Status) {
	for _, s := range statuses {
		v.statusIDs[s.ID] = true
	}
}

// SetUserIDs sets the users a lead may be assigned to
func (v *Validator) SetUserIDs(ids []string) {
	for _, id := range ids {
		v.userIDs[id] = true
	}
}

// AddLeadID records an accepted lead ID for in-batch duplicate detection
func (v *Validator) AddLeadID(id string) {
	v.leadIDs[id] = true
}

// ValidateLead validates one import row; lineNum is 1-based
func (v *Validator) ValidateLead(lead *models.LeadInput, lineNum int) []models.ValidationError {
	var errors []models.ValidationError
	fail := func(field, msg string, value interface{}) {
		errors = append(errors, models.ValidationError{Line: lineNum, Field: field, Message: msg, Value: value})
	}

	// Validate ID
	switch {
	case lead.ID == "":
		fail("id", "id is required", nil)
	case len(lead.ID) > MaxLeadIDLength:
		fail("id", fmt.Sprintf("id exceeds %d characters", MaxLeadIDLength), lead.ID)
	case !leadIDRegex.MatchString(lead.ID):
		fail("id", "id may only contain letters, digits and . _ : -", lead.ID)
	case v.leadIDs[lead.ID]:
		fail("id", "duplicate id", lead.ID)
	}

	if strings.TrimSpace(lead.Name) == "" {
		fail("name", "name is required", nil)
	}

	// Email is optional on ad forms
	if lead.Email != "" && !emailRegex.MatchString(lead.Email) {
		fail("email", "invalid email format", lead.Email)
	}

	// An empty status lands the lead in the first column
	if lead.StatusID != "" && len(v.statusIDs) > 0 && !v.statusIDs[lead.StatusID] {
		fail("status_id", "unknown status", lead.StatusID)
	}

	if lead.AssignedTo != "" && len(v.userIDs) > 0 && !v.userIDs[lead.AssignedTo] {
		fail("assigned_to", "referenced user does not exist", lead.AssignedTo)
	}

	if lead.CreatedAt != "" && models.ParseTimestamp(lead.CreatedAt).IsZero() {
		fail("created_at", "invalid ISO 8601 date format", lead.CreatedAt)
	}

	for i, field := range lead.ExtraFields {
		if strings.TrimSpace(field.Key) == "" {
			fail("extra_fields", fmt.Sprintf("extra field %d has an empty key", i+1), nil)
		}
	}

	return errors
}

// ValidateComment checks a comment body
func ValidateComment(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is required")
	}
	if wordCount := len(strings.Fields(text)); wordCount > models.MaxCommentWords {
		return fmt.Errorf("text exceeds maximum of %d words (has %d)", models.MaxCommentWords, wordCount)
	}
	return nil
}
