package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gearbase/geartrack/internal/catalog"
	"github.com/gearbase/geartrack/internal/config"
	"github.com/gearbase/geartrack/internal/feed"
	"github.com/gearbase/geartrack/internal/models"
	"github.com/gearbase/geartrack/internal/notification"
	"github.com/gearbase/geartrack/internal/server"
	"github.com/gearbase/geartrack/internal/storage"
	"github.com/gearbase/geartrack/internal/tracker"
	"github.com/gearbase/geartrack/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *logrus.Logger
	storage  storage.Storage
	catalog  *catalog.Catalog
	feed     feed.Feed
	notifier *notification.Manager
	tracker  *tracker.Tracker
	server   *server.HTTPServer
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.initializeNotification()

	app.catalog = catalog.NewCatalog(app.storage, &catalog.CatalogConfig{
		RefreshInterval: app.config.Catalog.RefreshInterval,
	})

	app.feed = feed.NewStorageFeed(app.storage, &feed.FeedConfig{
		PollInterval: app.config.Feed.PollInterval,
		BatchSize:    app.config.Feed.BatchSize,
	})

	app.tracker = tracker.NewTracker(app.feed, app.catalog, app.notifier, &tracker.TrackerConfig{
		AlertsEnabled:      app.config.Alerts.Enabled,
		AlertCheckInterval: app.config.Alerts.CheckInterval,
	})

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	app.logger.Info("Initializing storage layer")

	var err error
	app.storage, err = storage.NewStorage(&storage.StorageConfig{
		Type:             app.config.Storage.Type,
		ConnectionString: app.config.Storage.ConnectionString,
		MaxConnections:   app.config.Storage.MaxConnections,
		MaxIdleTime:      app.config.Storage.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	if err := app.storage.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	if err := app.storage.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// initializeNotification builds the notification channels. The log channel
// is always on; the webhook channel needs a configured URL.
func (app *Application) initializeNotification() {
	channels := []notification.Channel{notification.NewLogChannel()}

	if app.config.Alerts.WebhookURL != "" {
		channels = append(channels, notification.NewWebhookChannel(&notification.WebhookConfig{
			URL:           app.config.Alerts.WebhookURL,
			Timeout:       app.config.Alerts.Timeout,
			RetryAttempts: app.config.Alerts.RetryAttempts,
			RetryDelay:    app.config.Alerts.RetryDelay,
		}))
	}

	app.notifier = notification.NewManager(channels...)
	app.logger.WithField("channels", len(channels)).Info("Notification manager initialized")
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.Info("Initializing HTTP server")

	serverCfg := &server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
	}

	var err error
	app.server, err = server.NewHTTPServer(serverCfg, app.storage, app.tracker, app.catalog)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting gear tracker")

	// The tracker ingests the historical batch before the server answers
	// projection queries, so start it first.
	if err := app.tracker.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start tracker: %w", err)
	}

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"storage":        app.config.Storage.Type,
	}).Info("Gear tracker started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping gear tracker")

	app.cancel()

	// Stop components in reverse order
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.tracker != nil {
		if err := app.tracker.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop tracker")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.Info("Gear tracker stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "geartrack",
	Short:   "Gear check-out tracker",
	Long:    `A reconciliation service that folds gear check-in/check-out logs into a live projection of who holds what, with a dashboard API and overdue alerts.`,
	Version: AppVersion,
	RunE:    runTracker,
}

// runTracker is the main command to run the tracker
func runTracker(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("geartrack %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Feed poll interval: %s\n", cfg.Feed.PollInterval)
		fmt.Printf("Alerts enabled: %t\n", cfg.Alerts.Enabled)

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test storage connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&storage.StorageConfig{
			Type:             cfg.Storage.Type,
			ConnectionString: cfg.Storage.ConnectionString,
			MaxConnections:   cfg.Storage.MaxConnections,
			MaxIdleTime:      cfg.Storage.MaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()

		count, err := store.GetLogCount(context.Background(), models.LogFilter{})
		if err != nil {
			return fmt.Errorf("failed to query log count: %w", err)
		}

		fmt.Println("Storage connection successful")
		fmt.Printf("Log entries: %d\n", count)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	configCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
