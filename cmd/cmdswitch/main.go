// Gray Logic command-line switch bridge.
//
// cmdswitch exposes devices that are controlled by shell commands (relay
// utilities, GPIO scripts, remote SSH one-liners) as on/off switches on the
// Gray Logic MQTT bus and over a small REST and WebSocket API.
//
// Each switch has an on command, an off command, and optionally a state
// command that is polled to learn the real device state. Switches without a
// state command run in assumed-state mode.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/api"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/bridges/cmdline"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/history"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/process"
	"github.com/nerrad567/gray-logic-cmdswitch/migrations"
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

// historyPruneInterval is how often expired history rows are deleted.
const historyPruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting command-line switch bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "switches", len(cfg.Switches))

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(cfg.Database)
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	applied, _, statusErr := db.MigrationStatus(ctx, migrations.FS)
	if statusErr != nil {
		return fmt.Errorf("reading migration status: %w", statusErr)
	}
	log.Info("database migrations complete", "applied", len(applied))

	historyRepo := history.NewSQLiteRepository(db.DB)

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
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var metrics cmdline.MetricsWriter
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metrics = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Shell runner shared by every switch
	runner := process.NewRunner(process.Config{
		Shell:          cfg.Bridge.Shell,
		DefaultTimeout: time.Duration(config.DefaultCommandTimeout) * time.Second,
	})
	runner.SetLogger(log.Component("process"))

	bridge, err := cmdline.NewBridge(cmdline.BridgeOptions{
		Config:     cfg,
		MQTTClient: mqttClient,
		Runner:     runner,
		History:    historyRepo,
		Metrics:    metrics,
		Logger:     log.Component("bridge"),
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// The API registers its state listener before the bridge publishes
	// start-up state, so WebSocket clients see the initial refresh.
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.Component("api"),
			Switches: bridge,
			History:  historyRepo,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer bridge.Stop()

	if retention := cfg.GetHistoryRetention(); retention > 0 {
		go pruneHistory(ctx, historyRepo, retention, historyPruneInterval, log)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Bridge (stops polling, waits for running commands)
	// 2. API server
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("command-line switch bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CMDSWITCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CMDSWITCH_CONFIG"); path != "" {
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

// pruneHistory deletes history older than retention once at start and then
// every interval, until ctx is cancelled.
func pruneHistory(ctx context.Context, repo history.Repository, retention, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		deleted, err := repo.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("failed to prune switch history", "error", err)
		case deleted > 0:
			log.Info("pruned switch history", "deleted", deleted, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
