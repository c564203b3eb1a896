package models

import "time"

// Item represents a catalog item: slowly-changing reference data owned by
// the catalog, joined against projections by item id
type Item struct {
	ItemID      string     `json:"item_id" db:"item_id"`
	DisplayName string     `json:"display_name" db:"display_name"`
	Category    string     `json:"category" db:"category"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	ImageRef    string     `json:"image_ref,omitempty" db:"image_ref"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// User represents a catalog user
type User struct {
	UserID      string    `json:"user_id" db:"user_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
