package projection

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gearbase/geartrack/internal/models"
	"github.com/gearbase/geartrack/pkg/utils"
)

// Projector maintains the latest-known state per item as log entries arrive.
// It is a pure projection over the event stream: applying the same entry
// twice, or applying entries in any order, always converges to the same
// snapshot. All writes go through Apply, all reads through Snapshot.
type Projector struct {
	mu    sync.RWMutex
	items map[string]*models.ItemProjection

	appliedCount   uint64
	staleCount     uint64
	malformedCount uint64

	logger *logrus.Logger
}

// BatchResult contains the result of ingesting a batch of entries
type BatchResult struct {
	Total     int     `json:"total"`
	Applied   int     `json:"applied"`
	Stale     int     `json:"stale"`
	Malformed int     `json:"malformed"`
	Errors    []error `json:"errors,omitempty"`
}

// ProjectorStats provides projector diagnostics
type ProjectorStats struct {
	Items            int    `json:"items"`
	EventsApplied    uint64 `json:"events_applied"`
	StaleDropped     uint64 `json:"stale_dropped"`
	MalformedDropped uint64 `json:"malformed_dropped"`
}

// NewProjector creates a new projector
func NewProjector() *Projector {
	return &Projector{
		items:  make(map[string]*models.ItemProjection),
		logger: utils.GetLogger(),
	}
}

// Apply folds one log entry into the projection. It returns true when the
// entry changed observable state. Entries that are equal to or older than
// the stored projection under the (Timestamp, ID) key are dropped silently;
// malformed entries are rejected with an error and never touch state.
func (p *Projector) Apply(entry *models.LogEntry) (bool, error) {
	if err := validateEntry(entry); err != nil {
		p.mu.Lock()
		p.malformedCount++
		p.mu.Unlock()
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current, exists := p.items[entry.ItemID]
	if exists && !entry.Supersedes(current) {
		p.staleCount++
		p.logger.WithFields(logrus.Fields{
			"item_id":  entry.ItemID,
			"event_id": entry.ID,
		}).Debug("Dropped stale event")
		return false, nil
	}

	p.items[entry.ItemID] = projectEntry(entry)
	p.appliedCount++
	return true, nil
}

// IngestBatch applies entries in the order given. Per-entry failures are
// isolated: a malformed entry is counted and reported but never aborts the
// rest of the batch. Final state is independent of batch order.
func (p *Projector) IngestBatch(entries []*models.LogEntry) *BatchResult {
	result := &BatchResult{Total: len(entries)}

	for _, entry := range entries {
		changed, err := p.Apply(entry)
		switch {
		case err != nil:
			result.Malformed++
			result.Errors = append(result.Errors, err)
		case changed:
			result.Applied++
		default:
			result.Stale++
		}
	}

	if result.Malformed > 0 {
		p.logger.WithFields(logrus.Fields{
			"total":     result.Total,
			"malformed": result.Malformed,
		}).Warn("Batch contained malformed entries")
	}

	return result
}

// Snapshot returns a copy of the current projections, order unspecified.
// The returned slice shares nothing with projector-owned state, so callers
// may hold it across later writes.
func (p *Projector) Snapshot() []models.ItemProjection {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snapshot := make([]models.ItemProjection, 0, len(p.items))
	for _, item := range p.items {
		snapshot = append(snapshot, *item)
	}
	return snapshot
}

// Get returns the projection for a single item id
func (p *Projector) Get(itemID string) (models.ItemProjection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	item, ok := p.items[itemID]
	if !ok {
		return models.ItemProjection{}, false
	}
	return *item, true
}

// Len returns the number of distinct items projected so far
func (p *Projector) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Stats returns projector diagnostics
func (p *Projector) Stats() *ProjectorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return &ProjectorStats{
		Items:            len(p.items),
		EventsApplied:    p.appliedCount,
		StaleDropped:     p.staleCount,
		MalformedDropped: p.malformedCount,
	}
}

// validateEntry rejects entries missing the fields the projection depends on
func validateEntry(entry *models.LogEntry) error {
	if entry == nil {
		return utils.NewAppError(utils.ErrCodeMalformedEvent, "Entry is nil")
	}
	if entry.ItemID == "" {
		return utils.NewAppError(utils.ErrCodeMalformedEvent, "Entry has no item id", fmt.Sprintf("event_id=%d", entry.ID))
	}
	if entry.ID <= 0 {
		return utils.NewAppError(utils.ErrCodeMalformedEvent, "Entry has no source id", fmt.Sprintf("item_id=%s", entry.ItemID))
	}
	if entry.Timestamp.IsZero() {
		return utils.NewAppError(utils.ErrCodeMalformedEvent, "Entry has no timestamp", fmt.Sprintf("item_id=%s", entry.ItemID))
	}
	if !entry.Action.Valid() {
		return utils.NewAppError(utils.ErrCodeMalformedEvent, "Entry has unknown action", fmt.Sprintf("item_id=%s action=%q", entry.ItemID, entry.Action))
	}
	return nil
}

// projectEntry builds the projection an entry implies for its item
func projectEntry(entry *models.LogEntry) *models.ItemProjection {
	projection := &models.ItemProjection{
		ItemID:             entry.ItemID,
		ItemName:           entry.ItemName,
		Status:             models.StatusInOffice,
		LastEventID:        entry.ID,
		LastEventTimestamp: entry.Timestamp,
	}

	if entry.Action == models.ActionCheckOut {
		projection.Status = models.StatusCheckedOut
		projection.HolderUserID = entry.UserID
		projection.HolderUserName = entry.UserName
	}

	return projection
}
