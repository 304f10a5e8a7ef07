// Farm Gateway - device telemetry and command gateway
//
// The gateway subscribes to sensor frames on the MQTT broker, validates and
// caches them, and fans them out to WebSocket clients. Clients and the HTTP
// API send Modbus commands back to devices, either over the broker or
// directly to the device's HTTP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ETC11111/app-serial-sub001/migrations"

	"github.com/ETC11111/app-serial-sub001/internal/api"
	"github.com/ETC11111/app-serial-sub001/internal/auth"
	"github.com/ETC11111/app-serial-sub001/internal/cmdqueue"
	"github.com/ETC11111/app-serial-sub001/internal/commandlog"
	"github.com/ETC11111/app-serial-sub001/internal/directory"
	"github.com/ETC11111/app-serial-sub001/internal/dispatch"
	"github.com/ETC11111/app-serial-sub001/internal/gateway"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/config"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/database"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/influxdb"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/logging"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/mqtt"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/rediscache"
	"github.com/ETC11111/app-serial-sub001/internal/metrics"
	"github.com/ETC11111/app-serial-sub001/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	pruneInterval = time.Minute
	statsInterval = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the gateway and blocks until ctx is cancelled. Deferred
// closes run in reverse order of construction.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting farm gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "gateway_id", cfg.Gateway.ID)

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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	health := map[string]api.HealthChecker{"database": db}

	dir, closeDir, err := openDirectory(ctx, cfg, db, health, log)
	if err != nil {
		return err
	}
	defer closeDir()

	m := metrics.New()

	cache := telemetry.NewCache(cfg.GetStaleAfter())
	if cfg.GetStaleAfter() > 0 {
		go cache.RunPruner(ctx, pruneInterval)
	}

	if cfg.Redis.Enabled {
		mirror, redisErr := rediscache.Connect(ctx, cfg.Redis, cfg.GetRedisTTL())
		if redisErr != nil {
			return fmt.Errorf("connecting to Redis: %w", redisErr)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := mirror.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		mirror.SetLogger(log)

		readings, loadErr := mirror.LoadAll(ctx)
		if loadErr != nil {
			log.Warn("restoring readings from Redis failed", "error", loadErr)
		}
		restored := cache.Restore(readings)
		cache.SetMirror(mirror)
		go mirror.Run(ctx)
		health["redis"] = mirror
		log.Info("Redis mirror enabled", "addr", cfg.Redis.Addr, "restored", restored)
	}

	commands := commandlog.NewSQLiteRepository(db.DB)
	queue := cmdqueue.New(db.DB)
	go queue.RunCleanup(ctx, cfg.GetQueueCleanupInterval(), cfg.GetQueueRetention(), log)
	dispatcher := dispatch.New(dir, cfg.GetDispatchTimeout())
	dispatcher.SetLogger(log)
	dispatcher.AddObserver(m)
	dispatcher.AddObserver(commandlog.NewRecorder(commands, log))

	influxClient, err := connectInflux(cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		dispatcher.AddObserver(influxClient)
		health["influxdb"] = influxClient
	}

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
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	health["mqtt"] = mqttClient
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	gw := gateway.New(gateway.Options{
		Cache:       cache,
		Broker:      mqttClient,
		Verifier:    verifier,
		QoS:         byte(cfg.MQTT.QoS),
		RequireAuth: cfg.Security.RequireAuth,
		Logger:      log,
		Metrics:     m,
	})
	if regErr := m.RegisterStatus(gw); regErr != nil {
		return fmt.Errorf("registering status metrics: %w", regErr)
	}
	if startErr := gw.Start(); startErr != nil {
		return fmt.Errorf("starting gateway: %w", startErr)
	}

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Gateway:    gw,
		Dispatcher: dispatcher,
		Commands:   commands,
		Queue:      queue,
		Metrics:    m,
		Health:     health,
		Version:    version,
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
	log.Info("API server listening", "addr", server.Addr(), "websocket", cfg.WebSocket.Path)

	if influxClient != nil {
		go reportStats(ctx, influxClient, cfg.Gateway.ID, gw)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns FARMGW_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("FARMGW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDirectory returns the configured device directory and its closer.
// Postgres adds itself to health; sqlite is seeded from directory.devices.
func openDirectory(ctx context.Context, cfg *config.Config, db *database.DB, health map[string]api.HealthChecker, log *logging.Logger) (directory.Directory, func(), error) {
	switch cfg.Directory.Driver {
	case "postgres":
		pg, err := directory.ConnectPostgres(ctx, cfg.Directory.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to device directory: %w", err)
		}
		health["directory"] = pg
		log.Info("device directory ready", "driver", "postgres")
		return pg, pg.Close, nil
	default:
		dir := directory.NewSQLite(db.DB)
		n, err := dir.Seed(ctx, staticEndpoints(cfg.Directory.Devices))
		if err != nil {
			return nil, nil, fmt.Errorf("seeding device directory: %w", err)
		}
		log.Info("device directory ready", "driver", "sqlite", "configured", len(cfg.Directory.Devices), "devices", n)
		return dir, func() {}, nil
	}
}

func staticEndpoints(devices []config.DeviceEndpointConfig) []directory.Endpoint {
	eps := make([]directory.Endpoint, 0, len(devices))
	for _, d := range devices {
		eps = append(eps, directory.Endpoint{DeviceID: d.ID, IPAddress: d.IPAddress, Port: d.Port})
	}
	return eps
}

// connectInflux returns nil when InfluxDB is disabled.
func connectInflux(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// newVerifier verifies client tokens against the JWT secret. Without a
// secret any non-empty token is accepted.
func newVerifier(cfg *config.Config) (auth.Verifier, error) {
	if cfg.Security.JWT.Secret == "" {
		return auth.Permissive{}, nil
	}
	v, err := auth.NewJWTVerifier(cfg.Security.JWT.Secret)
	if err != nil {
		return nil, fmt.Errorf("creating token verifier: %w", err)
	}
	return v, nil
}

// reportStats writes a gateway_stats point every statsInterval.
func reportStats(ctx context.Context, influx *influxdb.Client, gatewayID string, src metrics.StatusSource) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			influx.WriteGatewayStats(gatewayID, src.ConnectedClients(), src.CachedDevices(), src.BrokerConnected())
		}
	}
}
