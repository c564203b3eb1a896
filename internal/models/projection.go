package models

import "time"

// ItemStatus is the derived current status of an item
type ItemStatus string

const (
	StatusInOffice   ItemStatus = "in_office"
	StatusCheckedOut ItemStatus = "checked_out"
)

// ItemProjection is the derived current state of one item. Exactly one
// projection exists per item id, and its fields always reflect the log
// entry with the greatest (Timestamp, ID) key seen so far for that item.
type ItemProjection struct {
	ItemID             string     `json:"item_id"`
	ItemName           string     `json:"item_name"`
	Status             ItemStatus `json:"status"`
	HolderUserID       string     `json:"holder_user_id,omitempty"`
	HolderUserName     string     `json:"holder_user_name,omitempty"`
	LastEventID        int64      `json:"last_event_id"`
	LastEventTimestamp time.Time  `json:"last_event_timestamp"`
}

// Supersedes reports whether the entry is strictly newer than the state a
// projection was built from, under the (Timestamp, ID) ordering key.
// Equal keys do not supersede, which is what makes replays idempotent.
func (e *LogEntry) Supersedes(p *ItemProjection) bool {
	if e.Timestamp.After(p.LastEventTimestamp) {
		return true
	}
	return e.Timestamp.Equal(p.LastEventTimestamp) && e.ID > p.LastEventID
}

// StatusCounts summarizes a snapshot by status
type StatusCounts struct {
	Total      int `json:"total"`
	InOffice   int `json:"in_office"`
	CheckedOut int `json:"checked_out"`
}

// HolderGroup is a pure view grouping checked-out items under the user
// currently holding them. Never stored, always recomputed from a snapshot.
type HolderGroup struct {
	UserID   string           `json:"user_id"`
	UserName string           `json:"user_name"`
	Items    []ItemProjection `json:"items"`
}

// OverdueReport lists checked-out items whose catalog due date has passed
type OverdueReport struct {
	Count   int              `json:"count"`
	AsOf    time.Time        `json:"as_of"`
	Items   []ItemProjection `json:"items"`
	ItemIDs []string         `json:"item_ids"`
}
