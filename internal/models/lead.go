package models

// Lead represents a sales prospect captured from an ad campaign form
type Lead struct {
	ID          string      `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Email       string      `json:"email" db:"email"`
	Phone       string      `json:"phone" db:"phone"`
	Source      string      `json:"source" db:"source"`
	Venture     string      `json:"venture" db:"venture"`
	AdName      string      `json:"ad_name" db:"ad_name"`
	StatusID    string      `json:"status_id" db:"status_id"`
	AssignedTo  *string     `json:"assigned_to" db:"assigned_to"` // nil when unassigned
	ExtraFields ExtraFields `json:"extra_fields" db:"-"`
	CreatedAt   Timestamp   `json:"created_at" db:"created_at"`
	UpdatedAt   Timestamp   `json:"updated_at" db:"updated_at"`
}

// Assignee returns the assigned user ID, or "" when unassigned
func (l Lead) Assignee() string {
	if l.AssignedTo == nil {
		return ""
	}
	return *l.AssignedTo
}

// ExtraField is one answer to a dynamic form question
type ExtraField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ExtraFields keeps form answers in question order
type ExtraFields []ExtraField

// Get returns the value stored for key
func (f ExtraFields) Get(key string) (string, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return "", false
}

// LeadFilter narrows a lead listing
type LeadFilter struct {
	StatusID   string
	AssignedTo string
	AdName     string
	Page       int // 1-based
	PageSize   int
}

// Offset returns the row offset for the filter's page
func (f LeadFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// LeadPage is one page of a lead listing
type LeadPage struct {
	Leads    []Lead `json:"leads"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// StatusChange is the response to a status update
type StatusChange struct {
	LeadID   string `json:"lead_id"`
	StatusID string `json:"status_id"`
}

// Assignment is the response to a lead assignment
type Assignment struct {
	LeadID string `json:"lead_id"`
	UserID string `json:"user_id"`
}

// MaxPageSize caps the page_size accepted by the listing endpoint
const MaxPageSize = 200
