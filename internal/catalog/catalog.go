package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gearbase/geartrack/internal/models"
	"github.com/gearbase/geartrack/internal/storage"
	"github.com/gearbase/geartrack/pkg/utils"
)

// Catalog caches item and user reference data from storage. It is read-only
// to the rest of the service: the projection joins against it by id but
// never writes through it. Data is refreshed on an interval since catalog
// rows change rarely.
type Catalog struct {
	store  storage.Storage
	config *CatalogConfig
	logger *logrus.Logger

	mu          sync.RWMutex
	items       map[string]models.Item
	users       map[string]models.User
	lastRefresh time.Time

	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// CatalogConfig holds catalog configuration
type CatalogConfig struct {
	RefreshInterval time.Duration `json:"refresh_interval"`
}

// NewCatalog creates a new catalog
func NewCatalog(store storage.Storage, config *CatalogConfig) *Catalog {
	return &Catalog{
		store:    store,
		config:   config,
		logger:   utils.GetLogger(),
		items:    make(map[string]models.Item),
		users:    make(map[string]models.User),
		stopChan: make(chan struct{}),
	}
}

// Refresh reloads items and users from storage
func (c *Catalog) Refresh(ctx context.Context) error {
	items, err := c.store.GetItems(ctx)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to refresh catalog items", err.Error())
	}
	users, err := c.store.GetUsers(ctx)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to refresh catalog users", err.Error())
	}

	itemMap := make(map[string]models.Item, len(items))
	for _, item := range items {
		itemMap[item.ItemID] = *item
	}
	userMap := make(map[string]models.User, len(users))
	for _, user := range users {
		userMap[user.UserID] = *user
	}

	c.mu.Lock()
	c.items = itemMap
	c.users = userMap
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"items": len(itemMap),
		"users": len(userMap),
	}).Debug("Catalog refreshed")

	return nil
}

// Start loads the catalog and launches the refresh loop
func (c *Catalog) Start(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return utils.NewAppError(utils.ErrCodeInternal, "Catalog already running")
	}
	c.running = true
	c.mu.Unlock()

	if c.config.RefreshInterval > 0 {
		c.wg.Add(1)
		go c.refreshLoop(ctx)
	}

	return nil
}

// Stop stops the refresh loop
func (c *Catalog) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
	return nil
}

// Items returns the cached items keyed by item id. The map is a copy.
func (c *Catalog) Items() map[string]models.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make(map[string]models.Item, len(c.items))
	for id, item := range c.items {
		items[id] = item
	}
	return items
}

// Users returns the cached users keyed by user id. The map is a copy.
func (c *Catalog) Users() map[string]models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()

	users := make(map[string]models.User, len(c.users))
	for id, user := range c.users {
		users[id] = user
	}
	return users
}

// ItemList returns the cached items as a slice
func (c *Catalog) ItemList() []models.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]models.Item, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	return items
}

// UserList returns the cached users as a slice
func (c *Catalog) UserList() []models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()

	users := make([]models.User, 0, len(c.users))
	for _, user := range c.users {
		users = append(users, user)
	}
	return users
}

// LastRefresh returns when the catalog was last loaded
func (c *Catalog) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// refreshLoop refreshes the catalog on the configured interval
func (c *Catalog) refreshLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.WithError(err).Warn("Catalog refresh failed")
			}
		}
	}
}
