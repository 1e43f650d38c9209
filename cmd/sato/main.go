package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/satomon/sato/internal/alerts"
	"github.com/satomon/sato/internal/config"
	"github.com/satomon/sato/internal/database"
	"github.com/satomon/sato/internal/discovery"
	"github.com/satomon/sato/internal/handlers"
	"github.com/satomon/sato/internal/inventory"
	"github.com/satomon/sato/internal/maintenance"
	"github.com/satomon/sato/internal/middleware"
	"github.com/satomon/sato/internal/monitor"
	"github.com/satomon/sato/internal/notify"
	"github.com/satomon/sato/internal/probe"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Sato infrastructure monitor...")

	// JWT authentication: enabled only when fully configured. Without it
	// the API runs open, which is only sane on loopback.
	authEnabled := cfg.AdminPassword != "" && cfg.JWTSecret != ""
	passwordHash := ""
	if authEnabled {
		passwordHash, err = middleware.HashPassword(cfg.AdminPassword)
		if err != nil {
			log.Fatalf("Failed to hash admin password: %v", err)
		}
		log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)
	} else {
		log.Printf("Warning: SATO_ADMIN_PASSWORD / SATO_JWT_SECRET not set, operator API runs unauthenticated")
	}
	jwtAuth := middleware.NewJWTAuth(&middleware.JWTAuthConfig{
		Enabled:           authEnabled,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/metrics",
			"/auth/login",
		},
	})

	// State store. Running without one would make restart budgets and rate
	// caps meaningless, so failure here is fatal.
	db, err := database.Connect(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	defer database.Close(db)
	if err := database.InitializeDefaults(db); err != nil {
		log.Fatalf("Failed to initialize state store defaults: %v", err)
	}
	if err := database.VerifyWritable(db); err != nil {
		log.Fatalf("State store is not writable: %v", err)
	}
	store := database.NewStore(db)
	log.Printf("State store ready (%s)", cfg.DatabaseURL)

	// Notification hooks. The log notifier is always present; Slack and the
	// generic webhook join when configured. Everything is gated behind the
	// operator's notifications switch.
	hooks := []notify.Notifier{notify.LogNotifier{}}
	if cfg.SlackWebhookURL != "" {
		hooks = append(hooks, notify.NewSlackNotifier(cfg.SlackWebhookURL))
		log.Printf("Slack notifications enabled")
	}
	if cfg.WebhookURL != "" {
		hooks = append(hooks, notify.NewWebhookNotifier(cfg.WebhookURL))
		log.Printf("Webhook notifications enabled: %s", cfg.WebhookURL)
	}
	notifier := notify.NewGated(notify.NewDispatcher(10*time.Second, hooks...), func() bool {
		settings, err := database.GetOrCreateMonitorSettings(db)
		return err == nil && settings.NotificationsEnabled
	})

	aggregator, err := alerts.NewAggregator(store, notifier)
	if err != nil {
		log.Fatalf("Failed to initialize alert aggregator: %v", err)
	}
	maint, err := maintenance.NewManager(store)
	if err != nil {
		log.Fatalf("Failed to initialize maintenance manager: %v", err)
	}

	engine := probe.NewEngine(probe.NewDefaultChecker(cfg.CheckTimeout), cfg.ProbeWorkers)
	mon, err := monitor.New(cfg, engine, aggregator, maint, store)
	if err != nil {
		log.Fatalf("Failed to initialize monitor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Inventory: declared YAML plus discovered containers/units. Declared
	// descriptors win on id collision.
	declared, err := inventory.Load(cfg.InventoryPath)
	if err != nil {
		log.Printf("Warning: could not load inventory %s: %v", cfg.InventoryPath, err)
	} else {
		log.Printf("Loaded %d declared service(s) from %s", len(declared), cfg.InventoryPath)
	}

	var listers []discovery.Lister
	if cfg.DiscoverDocker {
		listers = append(listers, discovery.NewDockerLister())
	}
	if cfg.DiscoverSystemd {
		listers = append(listers, discovery.NewSystemdLister())
	}
	discovered := discovery.Discover(ctx, listers...)
	if len(listers) > 0 {
		log.Printf("Discovered %d service(s)", len(discovered))
	}
	mon.SetServices(inventory.Merge(declared, discovered))

	if cfg.InventoryReload && declared != nil {
		err := inventory.Watch(ctx, cfg.InventoryPath, func(reloaded []inventory.Service) {
			mon.SetServices(inventory.Merge(reloaded, discovery.Discover(ctx, listers...)))
		})
		if err != nil {
			log.Printf("Warning: inventory hot reload unavailable: %v", err)
		} else {
			log.Printf("Watching %s for changes", cfg.InventoryPath)
		}
	}

	// Operator API.
	mux := http.NewServeMux()
	handlers.NewAPIHandler(mon, maint, store, jwtAuth).SetupRoutes(mux)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: middleware.NewCORS().Wrap(jwtAuth.Wrap(mux)),
	}
	go func() {
		log.Printf("Operator API listening on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	go mon.Run(ctx)
	log.Printf("Monitoring %d service(s) every %s", mon.Snapshot().Total, cfg.ProbeInterval)

	// Graceful shutdown: stop the loop, drain pending recovery attempts,
	// then close the API.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal, cleaning up...")

	cancel()
	select {
	case <-mon.Stopped():
	case <-time.After(cfg.DrainTimeout + 5*time.Second):
		log.Println("Monitor did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	log.Println("Shutdown complete")
}
