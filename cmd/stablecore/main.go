// StableLink Core - Stable Automation Platform
//
// This is the main entry point for the StableLink Core application.
// StableLink runs the on-site orchestration for a connected stable:
//   - Smart feeder control (manual and scheduled feedings)
//   - Live camera streaming to horse owners
//   - Weight telemetry from feeder scales
//   - Offline-first operation on the stable's local network
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/stablelink/stable-core/migrations"

	"github.com/stablelink/stable-core/internal/api"
	"github.com/stablelink/stable-core/internal/device"
	"github.com/stablelink/stable-core/internal/feeding"
	"github.com/stablelink/stable-core/internal/horse"
	"github.com/stablelink/stable-core/internal/infrastructure/config"
	"github.com/stablelink/stable-core/internal/infrastructure/database"
	"github.com/stablelink/stable-core/internal/infrastructure/influxdb"
	"github.com/stablelink/stable-core/internal/infrastructure/logging"
	"github.com/stablelink/stable-core/internal/infrastructure/mqtt"
	"github.com/stablelink/stable-core/internal/link"
	"github.com/stablelink/stable-core/internal/relay"
	"github.com/stablelink/stable-core/internal/scheduler"
	"github.com/stablelink/stable-core/internal/session"
	"github.com/stablelink/stable-core/internal/stream"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// A .env file is optional; real deployments set the environment
	// directly
	_ = godotenv.Load()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting StableLink Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	deviceRepo := device.NewSQLiteRepository(db.DB)
	horseRepo := horse.NewSQLiteRepository(db.DB)
	feedingRepo := feeding.NewSQLiteRepository(db.DB)
	streamRepo := stream.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Transport instruments and owner notification hub
	apiMetrics := api.NewMetrics(prometheus.DefaultRegisterer)
	relayMetrics := relay.NewMetrics(prometheus.DefaultRegisterer)
	hub := api.NewHub(log, apiMetrics)

	// Camera frame relay
	frameRelay := relay.New(cfg.FrameNotifyInterval(), relayMetrics, log)
	defer frameRelay.Close()

	// Device link over MQTT
	deviceLink := link.New(mqttClient, log)

	// Domain services
	streamSvc := stream.NewService(streamRepo, horseRepo, deviceRepo, deviceLink, hub, log)
	feedingSvc := feeding.NewService(feedingRepo, horseRepo, deviceRepo, deviceLink, hub, log, cfg.Scheduler.DispatchBuffer)
	if influxClient != nil {
		feedingSvc.SetTelemetry(influxClient)
	}

	sessions := session.NewManager(horseRepo, deviceLink, streamSvc, cfg.GracePeriod(), log)
	defer sessions.Close()

	// Wire inbound device events and start the link
	deviceLink.SetFeederHandler(feedingSvc)
	deviceLink.SetCameraHandler(streamSvc)
	deviceLink.SetWeightHandler(feedingSvc)
	if startErr := deviceLink.Start(ctx); startErr != nil {
		return fmt.Errorf("starting device link: %w", startErr)
	}
	log.Info("device link started")

	// Dispatcher goroutine: moves scheduled feedings from the sweep to
	// the device link
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-feedingSvc.Dispatches():
				feedingSvc.Dispatch(d)
			}
		}
	}()

	// Scheduled feeding sweep (optional)
	if cfg.Scheduler.Enabled {
		sweep := scheduler.New(
			deviceRepo,
			feedingSvc,
			time.Duration(cfg.Scheduler.SweepInterval)*time.Second,
			cfg.Location(),
			log,
		)
		go sweep.Run(ctx)
		log.Info("feeding scheduler started",
			"sweep_interval", cfg.Scheduler.SweepInterval,
			"timezone", cfg.Site.Timezone,
		)
	} else {
		log.Info("feeding scheduler disabled")
	}

	// Placeholder JPEG for viewers whose camera drops mid-stream
	placeholder, readErr := os.ReadFile(cfg.Stream.PlaceholderPath)
	if readErr != nil {
		log.Warn("placeholder image unavailable, viewers close without a final frame",
			"path", cfg.Stream.PlaceholderPath,
			"error", readErr)
		placeholder = nil
	}

	// API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Devices:     deviceRepo,
		Horses:      horseRepo,
		Feedings:    feedingSvc,
		Streams:     streamSvc,
		Sessions:    sessions,
		Relay:       frameRelay,
		Hub:         hub,
		Metrics:     apiMetrics,
		Placeholder: placeholder,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Session manager
	// 3. Frame relay
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("StableLink Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses STABLECORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("STABLECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
