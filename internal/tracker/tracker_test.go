package tracker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearbase/geartrack/internal/catalog"
	"github.com/gearbase/geartrack/internal/feed"
	"github.com/gearbase/geartrack/internal/models"
	"github.com/gearbase/geartrack/internal/notification"
	"github.com/gearbase/geartrack/internal/storage"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

func (r *recordingChannel) Name() string { return "recording" }

func (r *recordingChannel) Send(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingChannel) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fixture struct {
	store   storage.Storage
	tracker *Tracker
	channel *recordingChannel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "tracker_test.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	f := feed.NewStorageFeed(store, &feed.FeedConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    50,
	})
	c := catalog.NewCatalog(store, &catalog.CatalogConfig{})
	channel := &recordingChannel{}
	notifier := notification.NewManager(channel)

	tr := NewTracker(f, c, notifier, &TrackerConfig{})
	t.Cleanup(func() { tr.Stop() })

	return &fixture{store: store, tracker: tr, channel: channel}
}

func (fx *fixture) append(t *testing.T, itemID, itemName string, action models.Action, userID, userName string, at time.Time) *models.LogEntry {
	t.Helper()
	entry := &models.LogEntry{
		ItemID:    itemID,
		ItemName:  itemName,
		Action:    action,
		UserID:    userID,
		UserName:  userName,
		Timestamp: at,
	}
	require.NoError(t, fx.store.AppendLogEntry(context.Background(), entry))
	return entry
}

func TestStartIngestsHistoricalBatch(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC().Truncate(time.Second)

	fx.append(t, "A", "Tripod", models.ActionCheckOut, "u1", "Ada", now)
	fx.append(t, "A", "Tripod", models.ActionCheckIn, "u1", "Ada", now.Add(time.Minute))
	fx.append(t, "B", "Camera", models.ActionCheckOut, "u2", "Grace", now.Add(2*time.Minute))

	require.NoError(t, fx.tracker.Start(context.Background()))

	status := fx.tracker.Status()
	assert.True(t, status.Synced)
	assert.Equal(t, 2, status.Items)

	counts := fx.tracker.Counts()
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.InOffice)
	assert.Equal(t, 1, counts.CheckedOut)
	assert.Equal(t, counts.Total, counts.InOffice+counts.CheckedOut)
}

func TestNotSyncedBeforeStart(t *testing.T) {
	fx := newFixture(t)
	assert.False(t, fx.tracker.Synced())
	assert.Empty(t, fx.tracker.Snapshot())
}

func TestLiveEntryUpdatesProjection(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, fx.tracker.Start(context.Background()))

	fx.append(t, "A", "Tripod", models.ActionCheckOut, "u1", "Ada", now)

	require.Eventually(t, func() bool {
		item, ok := fx.tracker.Item("A")
		return ok && item.Status == models.StatusCheckedOut
	}, 2*time.Second, 10*time.Millisecond)

	item, _ := fx.tracker.Item("A")
	assert.Equal(t, "u1", item.HolderUserID)
}

func TestEmptyHistoricalPlusOneLiveCheckout(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, fx.tracker.Start(context.Background()))
	require.True(t, fx.tracker.Synced(), "empty batch still counts as synced")

	fx.append(t, "B", "Camera", models.ActionCheckOut, "u2", "Grace", now)

	require.Eventually(t, func() bool {
		return fx.tracker.Counts().CheckedOut == 1
	}, 2*time.Second, 10*time.Millisecond)

	groups := fx.tracker.Holders()
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Items, 1)
	assert.Equal(t, "u2", groups[0].UserID)
	assert.Equal(t, "B", groups[0].Items[0].ItemID)
}

func TestHoldersUsesCatalogDisplayName(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, fx.store.UpsertUser(ctx, &models.User{UserID: "u1", DisplayName: "Ada Lovelace"}))
	fx.append(t, "A", "Tripod", models.ActionCheckOut, "u1", "ada", now)

	require.NoError(t, fx.tracker.Start(ctx))

	groups := fx.tracker.Holders()
	require.Len(t, groups, 1)
	assert.Equal(t, "Ada Lovelace", groups[0].UserName)
}

func TestSearchNarrowsSnapshot(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC().Truncate(time.Second)

	fx.append(t, "A", "Canon EOS R5", models.ActionCheckOut, "u1", "Ada", now)
	fx.append(t, "B", "Tripod", models.ActionCheckIn, "u1", "Ada", now)

	require.NoError(t, fx.tracker.Start(context.Background()))

	matched := fx.tracker.Search("canon", "")
	require.Len(t, matched, 1)
	assert.Equal(t, "A", matched[0].ItemID)

	out := fx.tracker.Search("", models.StatusCheckedOut)
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].ItemID)

	all := fx.tracker.Search("", "")
	assert.Len(t, all, 2)
}

func TestCheckOverdueAlertsOncePerEpisode(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	due := now.Add(time.Hour)

	require.NoError(t, fx.store.UpsertItem(ctx, &models.Item{
		ItemID:      "A",
		DisplayName: "Tripod",
		DueDate:     &due,
	}))
	fx.append(t, "A", "Tripod", models.ActionCheckOut, "u1", "Ada", now)

	require.NoError(t, fx.tracker.Start(ctx))

	// Not yet due.
	fx.tracker.CheckOverdue(ctx, due.Add(-time.Second))
	assert.Zero(t, fx.channel.count())

	// Past due: exactly one alert, repeated scans stay quiet.
	fx.tracker.CheckOverdue(ctx, due.Add(time.Second))
	assert.Equal(t, 1, fx.channel.count())
	fx.tracker.CheckOverdue(ctx, due.Add(time.Minute))
	assert.Equal(t, 1, fx.channel.count())

	fx.channel.mu.Lock()
	n := fx.channel.sent[0]
	fx.channel.mu.Unlock()
	assert.Equal(t, "A", n.ItemID)
	assert.Contains(t, n.Message, "Tripod")
	assert.Contains(t, n.Message, "Ada")
}

func TestCheckOverdueResetsAfterReturn(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	due := now.Add(time.Hour)

	require.NoError(t, fx.store.UpsertItem(ctx, &models.Item{
		ItemID:      "A",
		DisplayName: "Tripod",
		DueDate:     &due,
	}))
	fx.append(t, "A", "Tripod", models.ActionCheckOut, "u1", "Ada", now)

	require.NoError(t, fx.tracker.Start(ctx))

	fx.tracker.CheckOverdue(ctx, due.Add(time.Second))
	require.Equal(t, 1, fx.channel.count())

	// Item comes back, then goes out again past its due date.
	fx.append(t, "A", "Tripod", models.ActionCheckIn, "u1", "Ada", now.Add(2*time.Hour))
	require.Eventually(t, func() bool {
		item, _ := fx.tracker.Item("A")
		return item.Status == models.StatusInOffice
	}, 2*time.Second, 10*time.Millisecond)

	fx.tracker.CheckOverdue(ctx, due.Add(3*time.Hour))
	require.Equal(t, 1, fx.channel.count(), "returned item clears its alert state")

	fx.append(t, "A", "Tripod", models.ActionCheckOut, "u2", "Grace", now.Add(4*time.Hour))
	require.Eventually(t, func() bool {
		item, _ := fx.tracker.Item("A")
		return item.Status == models.StatusCheckedOut
	}, 2*time.Second, 10*time.Millisecond)

	fx.tracker.CheckOverdue(ctx, due.Add(5*time.Hour))
	assert.Equal(t, 2, fx.channel.count(), "new overdue episode alerts again")
}

func TestTrackerLifecycle(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.tracker.Start(context.Background()))
	assert.True(t, fx.tracker.IsRunning())
	assert.Error(t, fx.tracker.Start(context.Background()))

	require.NoError(t, fx.tracker.Stop())
	assert.False(t, fx.tracker.IsRunning())
	require.NoError(t, fx.tracker.Stop())
}
