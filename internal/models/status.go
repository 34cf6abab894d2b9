package models

// Status is a pipeline stage; Order defines the column order (ascending)
type Status struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Color string `json:"color" db:"color"`
	Order int    `json:"order" db:"sort_order"`
}
