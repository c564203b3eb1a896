package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gearbase/geartrack/internal/catalog"
	"github.com/gearbase/geartrack/internal/feed"
	"github.com/gearbase/geartrack/internal/metrics"
	"github.com/gearbase/geartrack/internal/models"
	"github.com/gearbase/geartrack/internal/notification"
	"github.com/gearbase/geartrack/internal/projection"
	"github.com/gearbase/geartrack/pkg/utils"
)

// Tracker wires the feed, projector, aggregator and catalog into one
// service. It is the only writer to its projector: the historical batch is
// ingested during Start and live entries arrive through the feed's single
// dispatch goroutine. Everything it exposes reads from snapshots.
type Tracker struct {
	projector  *projection.Projector
	aggregator *projection.Aggregator
	catalog    *catalog.Catalog
	feed       feed.Feed
	notifier   *notification.Manager
	config     *TrackerConfig
	logger     *logrus.Logger
	metrics    *metrics.PrometheusMetrics

	mu          sync.RWMutex
	running     bool
	synced      bool
	lastEventID int64
	lastEventAt time.Time
	alerted     map[string]bool

	unsubscribe func()
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// TrackerConfig holds tracker configuration
type TrackerConfig struct {
	AlertsEnabled      bool          `json:"alerts_enabled"`
	AlertCheckInterval time.Duration `json:"alert_check_interval"`
}

// Status reports ingest progress. Synced distinguishes "zero items out"
// from "state unknown": it only turns true once the historical batch has
// been folded in.
type Status struct {
	Synced           bool      `json:"synced"`
	Running          bool      `json:"running"`
	LastEventID      int64     `json:"last_event_id"`
	LastEventAt      time.Time `json:"last_event_at,omitempty"`
	Items            int       `json:"items"`
	EventsApplied    uint64    `json:"events_applied"`
	StaleDropped     uint64    `json:"stale_dropped"`
	MalformedDropped uint64    `json:"malformed_dropped"`
}

// NewTracker creates a new tracker
func NewTracker(f feed.Feed, c *catalog.Catalog, notifier *notification.Manager, config *TrackerConfig) *Tracker {
	return &Tracker{
		projector:  projection.NewProjector(),
		aggregator: projection.NewAggregator(),
		catalog:    c,
		feed:       f,
		notifier:   notifier,
		config:     config,
		logger:     utils.GetLogger(),
		metrics:    metrics.GetMetrics(),
		alerted:    make(map[string]bool),
		stopChan:   make(chan struct{}),
	}
}

// Start loads the catalog, ingests the historical batch, then subscribes
// to the live feed. A failed historical fetch aborts startup: serving an
// empty projection would be indistinguishable from "nothing checked out".
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return utils.NewAppError(utils.ErrCodeInternal, "Tracker already running")
	}
	t.running = true
	t.mu.Unlock()

	if err := t.catalog.Start(ctx); err != nil {
		t.setStopped()
		return fmt.Errorf("failed to start catalog: %w", err)
	}

	entries, err := t.feed.FetchHistorical(ctx)
	if err != nil {
		t.setStopped()
		return fmt.Errorf("failed to fetch historical entries: %w", err)
	}

	result := t.projector.IngestBatch(entries)
	for _, entry := range entries {
		t.recordEvent(entry)
	}
	t.metrics.EventsAppliedTotal.Add(float64(result.Applied))
	t.metrics.EventsStaleTotal.Add(float64(result.Stale))
	t.metrics.EventsMalformedTotal.Add(float64(result.Malformed))

	t.mu.Lock()
	t.synced = true
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"total":     result.Total,
		"applied":   result.Applied,
		"stale":     result.Stale,
		"malformed": result.Malformed,
	}).Info("Historical batch ingested")

	t.unsubscribe = t.feed.Subscribe(t.handleLiveEntry)
	if err := t.feed.Start(ctx); err != nil {
		t.unsubscribe()
		t.setStopped()
		return fmt.Errorf("failed to start feed: %w", err)
	}

	if t.config.AlertsEnabled {
		t.wg.Add(1)
		go t.alertLoop(ctx)
	}

	t.updateGauges()
	t.logger.Info("Tracker started")
	return nil
}

// Stop stops the feed subscription and alert loop
func (t *Tracker) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.mu.Unlock()

	if t.unsubscribe != nil {
		t.unsubscribe()
	}
	if err := t.feed.Stop(); err != nil {
		t.logger.WithError(err).Warn("Feed stop failed")
	}
	if err := t.catalog.Stop(); err != nil {
		t.logger.WithError(err).Warn("Catalog stop failed")
	}

	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
	t.wg.Wait()

	t.logger.Info("Tracker stopped")
	return nil
}

// setStopped clears the running flag after a failed start
func (t *Tracker) setStopped() {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}

// IsRunning returns whether the tracker is started
func (t *Tracker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// handleLiveEntry folds one live entry into the projection. Called from
// the feed's dispatch goroutine, so applies are serialized.
func (t *Tracker) handleLiveEntry(entry *models.LogEntry) {
	changed, err := t.projector.Apply(entry)
	switch {
	case err != nil:
		t.metrics.EventsMalformedTotal.Inc()
		t.logger.WithError(err).Warn("Dropped malformed live entry")
	case changed:
		t.metrics.EventsAppliedTotal.Inc()
		t.recordEvent(entry)
	default:
		t.metrics.EventsStaleTotal.Inc()
	}

	t.updateGauges()
}

// recordEvent tracks the greatest event seen, for status reporting
func (t *Tracker) recordEvent(entry *models.LogEntry) {
	if entry == nil {
		return
	}
	t.mu.Lock()
	if entry.ID > t.lastEventID {
		t.lastEventID = entry.ID
		t.lastEventAt = entry.Timestamp
	}
	t.mu.Unlock()
}

// Snapshot returns the current projections
func (t *Tracker) Snapshot() []models.ItemProjection {
	return t.projector.Snapshot()
}

// Item returns the projection for one item id
func (t *Tracker) Item(itemID string) (models.ItemProjection, bool) {
	return t.projector.Get(itemID)
}

// Counts returns summary counts for the current snapshot
func (t *Tracker) Counts() models.StatusCounts {
	return t.aggregator.Counts(t.projector.Snapshot())
}

// Holders returns checked-out items grouped by their current holder
func (t *Tracker) Holders() []models.HolderGroup {
	return t.aggregator.GroupByHolder(t.projector.Snapshot(), t.catalog.Users())
}

// Overdue returns the overdue report as of the given instant
func (t *Tracker) Overdue(now time.Time) models.OverdueReport {
	return t.aggregator.Overdue(t.projector.Snapshot(), t.catalog.Items(), now)
}

// Search returns the snapshot narrowed by name query and optional status
func (t *Tracker) Search(query string, status models.ItemStatus) []models.ItemProjection {
	items := t.projector.Snapshot()
	if status != "" {
		items = projection.FilterByStatus(items, status)
	}
	return projection.Filter(items, query)
}

// Status returns ingest progress and projector diagnostics
func (t *Tracker) Status() *Status {
	stats := t.projector.Stats()

	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Status{
		Synced:           t.synced,
		Running:          t.running,
		LastEventID:      t.lastEventID,
		LastEventAt:      t.lastEventAt,
		Items:            stats.Items,
		EventsApplied:    stats.EventsApplied,
		StaleDropped:     stats.StaleDropped,
		MalformedDropped: stats.MalformedDropped,
	}
}

// Synced reports whether the historical batch has been ingested
func (t *Tracker) Synced() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.synced
}

// updateGauges refreshes the projection gauges
func (t *Tracker) updateGauges() {
	counts := t.Counts()
	t.metrics.ProjectedItems.Set(float64(counts.Total))
	t.metrics.ItemsCheckedOut.Set(float64(counts.CheckedOut))
}

// alertLoop scans for overdue items on the configured interval
func (t *Tracker) alertLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.AlertCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CheckOverdue(ctx, time.Now().UTC())
		}
	}
}

// CheckOverdue sends one notification per overdue episode: an item is
// alerted when it first shows up overdue and again only after it has left
// and re-entered the overdue set.
func (t *Tracker) CheckOverdue(ctx context.Context, now time.Time) {
	report := t.Overdue(now)
	t.metrics.ItemsOverdue.Set(float64(report.Count))

	overdueNow := make(map[string]bool, report.Count)
	for _, item := range report.Items {
		overdueNow[item.ItemID] = true
	}

	t.mu.Lock()
	var fresh []models.ItemProjection
	for _, item := range report.Items {
		if !t.alerted[item.ItemID] {
			t.alerted[item.ItemID] = true
			fresh = append(fresh, item)
		}
	}
	for itemID := range t.alerted {
		if !overdueNow[itemID] {
			delete(t.alerted, itemID)
		}
	}
	t.mu.Unlock()

	for _, item := range fresh {
		holder := item.HolderUserName
		if holder == "" {
			holder = item.HolderUserID
		}
		n := notification.NewNotification(
			"Overdue gear",
			fmt.Sprintf("%s is overdue, held by %s", item.ItemName, holder),
		)
		n.ItemID = item.ItemID
		n.UserID = item.HolderUserID
		t.notifier.Notify(ctx, n)
	}
}
