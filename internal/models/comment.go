package models

// Comment is a note left by a user on a lead
type Comment struct {
	ID        string    `json:"id" db:"id"`
	LeadID    string    `json:"lead_id" db:"lead_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	UserName  string    `json:"user_name" db:"user_name"`
	Text      string    `json:"text" db:"text"`
	CreatedAt Timestamp `json:"created_at" db:"created_at"`
}

// MaxCommentWords is the maximum allowed words in a comment
const MaxCommentWords = 500
