package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearbase/geartrack/internal/models"
	"github.com/gearbase/geartrack/pkg/utils"
)

func newTestStorage(t *testing.T) Storage {
	t.Helper()

	store, err := NewStorage(&StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "geartrack_test.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Ping())

	t.Cleanup(func() { store.Close() })
	return store
}

func testEntry(itemID string, action models.Action, userID string, at time.Time) *models.LogEntry {
	return &models.LogEntry{
		ItemID:    itemID,
		ItemName:  "Item " + itemID,
		Action:    action,
		UserID:    userID,
		UserName:  "User " + userID,
		Timestamp: at,
	}
}

func TestNewStorageUnsupportedType(t *testing.T) {
	_, err := NewStorage(&StorageConfig{Type: "mongodb"})
	assert.Error(t, err)
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	first := testEntry("A", models.ActionCheckOut, "u1", now)
	second := testEntry("B", models.ActionCheckOut, "u2", now.Add(time.Second))

	require.NoError(t, store.AppendLogEntry(ctx, first))
	require.NoError(t, store.AppendLogEntry(ctx, second))

	assert.Positive(t, first.ID)
	assert.Greater(t, second.ID, first.ID)

	latest, err := store.GetLatestLogID(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest)
}

func TestGetLogEntriesNewestFirst(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		entry := testEntry("A", models.ActionCheckOut, "u1", now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.AppendLogEntry(ctx, entry))
	}

	entries, err := store.GetLogEntries(ctx, models.LogFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))
}

func TestGetLogEntriesFilter(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.AppendLogEntry(ctx, testEntry("A", models.ActionCheckOut, "u1", now)))
	require.NoError(t, store.AppendLogEntry(ctx, testEntry("B", models.ActionCheckIn, "u2", now)))
	require.NoError(t, store.AppendLogEntry(ctx, testEntry("A", models.ActionCheckIn, "u1", now.Add(time.Minute))))

	itemID := "A"
	entries, err := store.GetLogEntries(ctx, models.LogFilter{ItemID: &itemID})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	action := models.ActionCheckIn
	count, err := store.GetLogCount(ctx, models.LogFilter{Action: &action})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestGetLogEntriesAfterCursor(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	var ids []int64
	for i := 0; i < 5; i++ {
		entry := testEntry("A", models.ActionCheckOut, "u1", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.AppendLogEntry(ctx, entry))
		ids = append(ids, entry.ID)
	}

	entries, err := store.GetLogEntriesAfter(ctx, ids[1], 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ids[2], entries[0].ID)
	assert.Equal(t, ids[4], entries[2].ID)

	// Cursor past the end returns nothing.
	entries, err = store.GetLogEntriesAfter(ctx, ids[4], 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetLatestLogIDEmptyTable(t *testing.T) {
	store := newTestStorage(t)

	id, err := store.GetLatestLogID(context.Background())
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestGetLogEntryNotFound(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.GetLogEntry(context.Background(), 12345)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
}

func TestUpsertItemRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	due := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)

	item := &models.Item{
		ItemID:      "cam-01",
		DisplayName: "Canon EOS R5",
		Category:    "camera",
		DueDate:     &due,
		ImageRef:    "images/cam-01.jpg",
	}
	require.NoError(t, store.UpsertItem(ctx, item))

	got, err := store.GetItem(ctx, "cam-01")
	require.NoError(t, err)
	assert.Equal(t, "Canon EOS R5", got.DisplayName)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(due))

	// Upsert replaces fields for the same id.
	item.DisplayName = "Canon EOS R5 (body)"
	item.DueDate = nil
	require.NoError(t, store.UpsertItem(ctx, item))

	got, err = store.GetItem(ctx, "cam-01")
	require.NoError(t, err)
	assert.Equal(t, "Canon EOS R5 (body)", got.DisplayName)
	assert.Nil(t, got.DueDate)

	items, err := store.GetItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestUpsertUserRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertUser(ctx, &models.User{UserID: "u1", DisplayName: "Ada"}))
	require.NoError(t, store.UpsertUser(ctx, &models.User{UserID: "u1", DisplayName: "Ada Lovelace"}))

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", user.DisplayName)

	users, err := store.GetUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Migrate())
}

func TestGetStorageStats(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.AppendLogEntry(ctx, testEntry("A", models.ActionCheckOut, "u1", now)))
	require.NoError(t, store.UpsertItem(ctx, &models.Item{ItemID: "A", DisplayName: "Tripod"}))
	require.NoError(t, store.UpsertUser(ctx, &models.User{UserID: "u1", DisplayName: "Ada"}))

	stats, err := store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalLogEntries)
	assert.Equal(t, int64(1), stats.TotalItems)
	assert.Equal(t, int64(1), stats.TotalUsers)
	assert.Positive(t, stats.LatestEntryID)
	require.NotNil(t, stats.LatestEntry)
}

func TestRewritePlaceholders(t *testing.T) {
	assert.Equal(t, "a = $1 AND b = $2", rewritePlaceholders("a = ? AND b = ?"))
	assert.Equal(t, "no placeholders", rewritePlaceholders("no placeholders"))
}
