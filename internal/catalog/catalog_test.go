package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearbase/geartrack/internal/models"
	"github.com/gearbase/geartrack/internal/storage"
)

func newCatalogFixture(t *testing.T) (storage.Storage, *Catalog) {
	t.Helper()

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "catalog_test.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	return store, NewCatalog(store, &CatalogConfig{})
}

func TestRefreshLoadsItemsAndUsers(t *testing.T) {
	store, c := newCatalogFixture(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertItem(ctx, &models.Item{ItemID: "cam-01", DisplayName: "Camera", Category: "camera"}))
	require.NoError(t, store.UpsertUser(ctx, &models.User{UserID: "u1", DisplayName: "Ada"}))

	require.NoError(t, c.Refresh(ctx))

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Camera", items["cam-01"].DisplayName)

	users := c.Users()
	require.Len(t, users, 1)
	assert.Equal(t, "Ada", users["u1"].DisplayName)

	assert.Len(t, c.ItemList(), 1)
	assert.Len(t, c.UserList(), 1)
	assert.False(t, c.LastRefresh().IsZero())
}

func TestRefreshReplacesStaleData(t *testing.T) {
	store, c := newCatalogFixture(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertUser(ctx, &models.User{UserID: "u1", DisplayName: "Ada"}))
	require.NoError(t, c.Refresh(ctx))

	require.NoError(t, store.UpsertUser(ctx, &models.User{UserID: "u1", DisplayName: "Ada Lovelace"}))
	require.NoError(t, c.Refresh(ctx))

	assert.Equal(t, "Ada Lovelace", c.Users()["u1"].DisplayName)
}

func TestItemsReturnsCopy(t *testing.T) {
	store, c := newCatalogFixture(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertItem(ctx, &models.Item{ItemID: "cam-01", DisplayName: "Camera"}))
	require.NoError(t, c.Refresh(ctx))

	items := c.Items()
	items["cam-01"] = models.Item{ItemID: "cam-01", DisplayName: "Mutated"}

	assert.Equal(t, "Camera", c.Items()["cam-01"].DisplayName)
}

func TestStartStopLifecycle(t *testing.T) {
	_, c := newCatalogFixture(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
}
