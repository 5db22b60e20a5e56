// Bulbnet Core - Device State Relay
//
// This is the main entry point for the Bulbnet relay. It bridges MQTT
// device traffic into a SQLite-backed store, serves the REST API and
// websocket push channel for UI clients, and optionally records status
// telemetry to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/bulbnet/bulbnet-core/migrations"

	"github.com/bulbnet/bulbnet-core/internal/api"
	"github.com/bulbnet/bulbnet-core/internal/auth"
	"github.com/bulbnet/bulbnet-core/internal/bridge"
	"github.com/bulbnet/bulbnet-core/internal/device"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/config"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/database"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/influxdb"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/logging"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/mqtt"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Bulbnet Core",
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

	// Overlay secrets from the secret store (JWT secret, broker
	// credentials, certificate material), then re-validate: the overlay
	// may supply values Load() could not check.
	if cfg.Secrets.Enabled {
		if err := cfg.ApplySecrets(ctx); err != nil {
			return fmt.Errorf("applying secrets: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config after secrets overlay: %w", err)
		}
		log.Info("secret store overlay applied", "secret_name", cfg.Secrets.SecretName)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
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
	deviceRepo := device.NewRepository(db.DB)
	auditRepo := device.NewAuditRepository(db.DB)
	userRepo := auth.NewUserRepository(db.DB)

	// Connect to MQTT broker. A broker outage at startup is not fatal:
	// the API keeps serving from the store and /status reports the gap.
	// The paho client reconnects on its own once the broker returns.
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		log.Error("MQTT connection failed, continuing without bridge", "error", err)
		mqttClient = nil
	} else {
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

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	}

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

	// Create the API server. Assign the broker only when it exists so the
	// interface field stays nil rather than wrapping a nil pointer.
	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Devices:  deviceRepo,
		Audit:    auditRepo,
		Users:    userRepo,
		DB:       db,
		QoS:      byte(cfg.MQTT.QoS),
		Version:  version,
	}
	if mqttClient != nil {
		apiDeps.Broker = mqttClient
	}

	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Start the MQTT bridge, sharing the API's websocket hub so broker
	// and API originated updates reach the same sessions.
	if mqttClient != nil {
		var metrics bridge.MetricWriter
		if influxClient != nil {
			metrics = influxClient
		}

		deviceBridge := bridge.New(
			mqttClient,
			deviceRepo,
			auditRepo,
			server.Hub(),
			metrics,
			log,
			byte(cfg.MQTT.QoS),
		)
		if err := deviceBridge.Start(ctx); err != nil {
			return fmt.Errorf("starting bridge: %w", err)
		}
	} else {
		log.Warn("bridge disabled: no MQTT connection")
	}

	// Verify connections are healthy. Only the database is load-bearing;
	// broker and sink outages are visible on /status instead.
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			log.Warn("MQTT health check failed", "error", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			log.Warn("InfluxDB health check failed", "error", err)
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if connected)
	// 4. Database

	log.Info("Bulbnet Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BULBNET_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BULBNET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
