// SoundWeave Core - Multi-Room Audio Platform
//
// This is the main entry point for the SoundWeave Core application. It
// connects to the audio hub, discovers players and playback groups, and
// exposes them over a REST API, WebSocket event stream, and MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/soundweave/soundweave-core/migrations"

	"github.com/soundweave/soundweave-core/internal/api"
	"github.com/soundweave/soundweave-core/internal/bridges/audionet"
	"github.com/soundweave/soundweave-core/internal/discovery"
	"github.com/soundweave/soundweave-core/internal/entity"
	"github.com/soundweave/soundweave-core/internal/infrastructure/config"
	"github.com/soundweave/soundweave-core/internal/infrastructure/database"
	"github.com/soundweave/soundweave-core/internal/infrastructure/influxdb"
	"github.com/soundweave/soundweave-core/internal/infrastructure/logging"
	"github.com/soundweave/soundweave-core/internal/infrastructure/mqtt"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SoundWeave Core",
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
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and run migrations
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Initialise entity registry
	registry := entity.NewRegistry(entity.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entity registry: %w", refreshErr)
	}
	log.Info("entity registry initialised", "entities", registry.Count())

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
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub, created ahead of the API server so the status handler
	// can broadcast health transitions.
	wsHub := api.NewHub(cfg.WebSocket, log)

	// Entity status fan-out: registry, MQTT, InfluxDB, WebSocket.
	statusHandler := &entityStatusHandler{
		registry: registry,
		mqtt:     mqttClient,
		influx:   influxClient,
		hub:      wsHub,
		log:      log,
	}

	// Hub session and bridge
	session, err := audionet.NewTCPSession(audionet.TCPSessionOptions{
		Host:      cfg.Audio.Hub.Host,
		Port:      cfg.Audio.Hub.Port,
		Heartbeat: cfg.GetHeartbeatInterval(),
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating hub session: %w", err)
	}

	bridge, err := audionet.NewBridge(audionet.BridgeOptions{
		ID:      cfg.System.ID,
		Session: session,
		Reconnect: audionet.ReconnectPolicy{
			InitialDelay: cfg.GetHubReconnectInitialDelay(),
			MaxDelay:     cfg.GetHubReconnectMaxDelay(),
			MaxAttempts:  cfg.Audio.Reconnect.MaxAttempts,
		},
		Username:      cfg.Audio.Account.Username,
		Password:      cfg.Audio.Account.Password,
		StatusHandler: statusHandler,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("creating hub bridge: %w", err)
	}
	defer func() {
		log.Info("closing hub bridge")
		if closeErr := bridge.Close(); closeErr != nil {
			log.Error("error closing hub bridge", "error", closeErr)
		}
	}()

	// Discovery inbox, relayed to the MQTT discovery topic
	inbox, err := discovery.NewInbox(discovery.InboxOptions{
		Store:  registry,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("creating discovery inbox: %w", err)
	}
	inbox.Subscribe(func(ev discovery.Event) {
		if pubErr := mqttClient.PublishDiscoveryEvent(mqtt.DiscoveryEvent{
			Event:     string(ev.Type),
			Kind:      string(ev.Result.Kind),
			EntityID:  ev.Result.ID,
			Name:      ev.Result.Label,
			Timestamp: ev.Result.Timestamp,
		}); pubErr != nil {
			log.Warn("publishing discovery event failed", "error", pubErr)
		}
	})

	// Scan coordinator
	var metrics audionet.ScanRecorder
	if influxClient != nil {
		metrics = influxClient
	}
	coordinator, err := audionet.NewCoordinator(audionet.CoordinatorOptions{
		Bridge:  bridge,
		Sink:    inbox,
		Metrics: metrics,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("creating scan coordinator: %w", err)
	}
	defer coordinator.StopBackgroundDiscovery()

	// API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Registry:    registry,
		Inbox:       inbox,
		Coordinator: coordinator,
		Bridge:      bridge,
		MQTT:        mqttClient,
		ExternalHub: wsHub,
		Version:     version,
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
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure connections before bringing up the hub link
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Bring up the hub connection in the background: the retry loop can run
	// for minutes when the hub is offline, and the API should serve reads
	// meanwhile.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if connErr := bridge.Connect(gctx); connErr != nil {
			return fmt.Errorf("connecting to hub: %w", connErr)
		}
		log.Info("hub connected", "host", cfg.Audio.Hub.Host, "state", bridge.State().String())

		if pubErr := mqttClient.PublishHubStatus(bridge.State().String(), cfg.Audio.Hub.Host); pubErr != nil {
			log.Warn("publishing hub status failed", "error", pubErr)
		}
		wsHub.Broadcast(api.ChannelHubStatus, map[string]any{
			"state": bridge.State().String(),
			"host":  cfg.Audio.Hub.Host,
		})

		coordinator.StartBackgroundDiscovery()
		return nil
	})

	log.Info("initialisation complete, waiting for shutdown signal")

	// gctx ends on shutdown signal or on hub connection failure
	<-gctx.Done()

	if waitErr := g.Wait(); waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}

	log.Info("shutdown signal received, cleaning up")
	log.Info("SoundWeave Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SOUNDWEAVE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SOUNDWEAVE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
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

// entityStatusHandler fans entity health transitions out to the registry,
// MQTT, InfluxDB, and WebSocket clients.
//
// Transitions arrive for every discovered player and group, including ones
// not yet adopted into the registry; registry misses are expected and
// ignored.
type entityStatusHandler struct {
	registry *entity.Registry
	mqtt     *mqtt.Client
	influx   *influxdb.Client
	hub      *api.Hub
	log      *logging.Logger
}

// SetEntityOnline implements audionet.StatusHandler.
func (h *entityStatusHandler) SetEntityOnline(id string) {
	h.set(id, entity.HealthOnline)
}

// SetEntityOffline implements audionet.StatusHandler.
func (h *entityStatusHandler) SetEntityOffline(id string) {
	h.set(id, entity.HealthOffline)
}

func (h *entityStatusHandler) set(id string, status entity.HealthStatus) {
	ctx := context.Background()

	kind := ""
	if e, err := h.registry.Get(ctx, id); err == nil {
		kind = string(e.Kind)
		if setErr := h.registry.SetHealth(ctx, id, status); setErr != nil {
			h.log.Warn("updating entity health failed", "entity_id", id, "error", setErr)
		}
	}

	if pubErr := h.mqtt.PublishEntityHealth(id, string(status)); pubErr != nil {
		h.log.Warn("publishing entity health failed", "entity_id", id, "error", pubErr)
	}

	if h.influx != nil && kind != "" {
		h.influx.WriteEntityHealth(id, kind, string(status))
	}

	h.hub.Broadcast(api.ChannelEntityHealth, map[string]any{
		"entity_id": id,
		"status":    string(status),
	})
}
