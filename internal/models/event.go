package models

import "time"

// Action is the kind of movement a log entry records
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

// Valid reports whether the action is one of the known values
func (a Action) Valid() bool {
	return a == ActionCheckIn || a == ActionCheckOut
}

// LogEntry represents one immutable movement record emitted by the backend.
// ID is assigned by the source and increases monotonically, which makes
// (Timestamp, ID) a total order over entries.
type LogEntry struct {
	ID        int64     `json:"id" db:"id"`
	ItemID    string    `json:"item_id" db:"item_id"`
	ItemName  string    `json:"item_name" db:"item_name"`
	Action    Action    `json:"action" db:"action"`
	UserID    string    `json:"user_id" db:"user_id"`
	UserName  string    `json:"user_name" db:"user_name"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// LogFilter for querying log entries
type LogFilter struct {
	ItemID   *string    `json:"item_id,omitempty"`
	UserID   *string    `json:"user_id,omitempty"`
	Action   *Action    `json:"action,omitempty"`
	FromTime *time.Time `json:"from_time,omitempty"`
	ToTime   *time.Time `json:"to_time,omitempty"`
	AfterID  *int64     `json:"after_id,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}
