// Argus Ingest - Device Telemetry Ingestion Gateway
//
// This is the main entry point for the Argus ingestion gateway. The
// gateway authenticates device submissions, enforces admission budgets,
// validates payloads and persists readings idempotently, with optional
// fan-out to MQTT and an InfluxDB mirror.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/arguswatcher/argus-ingest/migrations"

	"github.com/arguswatcher/argus-ingest/internal/admission"
	"github.com/arguswatcher/argus-ingest/internal/api"
	"github.com/arguswatcher/argus-ingest/internal/device"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/config"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/database"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/influxdb"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/logging"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/mqtt"
	"github.com/arguswatcher/argus-ingest/internal/ingest"
	"github.com/arguswatcher/argus-ingest/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
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
	log.Info("starting Argus ingestion gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and apply migrations
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry: repository + read-through cache + authenticator
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceCache := device.NewCache(cfg.CacheTTL(), cfg.Cache.MaxEntries)
	authenticator := device.NewAuthenticator(deviceRepo, deviceCache)
	authenticator.SetLogger(log)

	// Admission control
	controller := admission.NewController(cfg.AdmissionWindow(), cfg.Admission.DeviceBudget, cfg.Admission.GlobalBudget)
	log.Info("admission control configured",
		"window", cfg.AdmissionWindow(),
		"device_budget", cfg.Admission.DeviceBudget,
		"global_budget", cfg.Admission.GlobalBudget,
	)

	// Payload validation
	validator := telemetry.NewValidator(telemetry.ValidatorConfig{
		CoordinateMin: cfg.Telemetry.CoordinateMin,
		CoordinateMax: cfg.Telemetry.CoordinateMax,
		MaxFuture:     time.Duration(cfg.Telemetry.MaxFutureSeconds) * time.Second,
		MaxAge:        time.Duration(cfg.Telemetry.MaxAgeHours) * time.Hour,
	})

	// Durable telemetry store
	store := telemetry.NewSQLiteStore(db.DB)

	// Ingestion pipeline
	gateway := ingest.NewGateway(authenticator, controller, validator, store, ingest.Config{
		AuthTimeout:  cfg.AuthTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	})
	gateway.SetLogger(log)

	// Connect to MQTT broker (optional): registry invalidation bus and
	// telemetry fan-out
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(discErr error) {
			log.Warn("MQTT disconnected", "error", discErr)
		})

		// Evict local cache entries when another instance mutates the
		// registry.
		qos := byte(cfg.MQTT.QoS)
		topic := mqtt.Topics{}.RegistryInvalidate()
		subErr := mqttClient.Subscribe(topic, qos, func(_ string, payload []byte) error {
			authenticator.Invalidate(string(payload))
			return nil
		})
		if subErr != nil {
			return fmt.Errorf("subscribing to invalidation topic: %w", subErr)
		}

		gateway.AddObserver(&telemetryBroadcaster{client: mqttClient, qos: qos, log: log})
	} else {
		log.Info("MQTT disabled, cache invalidation is local-instance only")
	}

	// Connect to InfluxDB mirror (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB mirror disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
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

		influxClient.SetOnError(func(writeErr error) {
			log.Error("InfluxDB write error", "error", writeErr)
		})

		gateway.AddObserver(&influxMirror{client: influxClient})
	}

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Gateway:  gateway,
		Auth:     authenticator,
		Repo:     deviceRepo,
		Store:    store,
		DB:       db,
		MQTT:     mqttClient,
		Influx:   influxClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (drains in-flight requests)
	// 2. InfluxDB (if enabled, flushes pending points)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Argus ingestion gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ARGUS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ARGUS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// influxMirror forwards newly persisted readings to the time-series
// mirror. Writes are batched and non-blocking; a mirror outage never
// rejects a device submission.
type influxMirror struct {
	client *influxdb.Client
}

func (m *influxMirror) ReadingAccepted(r *telemetry.Reading, alias string) {
	m.client.WriteReading(r.DeviceUUID, alias, r.XCoord, r.YCoord, r.DeviceTime)
}

// telemetryBroadcaster publishes newly persisted readings on the
// per-device MQTT topic for live subscribers.
type telemetryBroadcaster struct {
	client *mqtt.Client
	qos    byte
	log    *logging.Logger
}

func (b *telemetryBroadcaster) ReadingAccepted(r *telemetry.Reading, alias string) {
	payload, err := json.Marshal(map[string]any{
		"ingestion_id": r.IngestionID,
		"device_uuid":  r.DeviceUUID,
		"alias":        alias,
		"x_coord":      r.XCoord,
		"y_coord":      r.YCoord,
		"device_time":  r.DeviceTime,
		"received_at":  r.ReceivedAt,
	})
	if err != nil {
		b.log.Error("failed to encode reading for broadcast", "error", err)
		return
	}

	topic := mqtt.Topics{}.DeviceTelemetry(r.DeviceUUID)
	if pubErr := b.client.Publish(topic, payload, b.qos, false); pubErr != nil {
		b.log.Warn("failed to broadcast reading",
			"device_uuid", r.DeviceUUID,
			"error", pubErr)
	}
}
