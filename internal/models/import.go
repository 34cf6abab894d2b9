package models

// LeadInput is one lead row submitted for import
type LeadInput struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	Source      string      `json:"source"`
	Venture     string      `json:"venture"`
	AdName      string      `json:"ad_name"`
	StatusID    string      `json:"status_id"`
	AssignedTo  string      `json:"assigned_to,omitempty"`
	CreatedAt   string      `json:"created_at,omitempty"`
	ExtraFields ExtraFields `json:"extra_fields,omitempty"`
}

// ImportRequest is the body of POST /v1/leads/import
type ImportRequest struct {
	Leads []LeadInput `json:"leads"`
}

// ImportResult reports the outcome of one import batch
type ImportResult struct {
	Added   int               `json:"added"`
	Skipped int               `json:"skipped"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Line    int         `json:"line"`
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ExistingRequest is the body of the duplicate-id precheck
type ExistingRequest struct {
	IDs []string `json:"ids"`
}

// MaxImportBatch caps the number of rows accepted per import call
const MaxImportBatch = 1000
