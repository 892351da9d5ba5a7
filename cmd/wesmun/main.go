// WESMUN core - attendee access service for the WESMUN conference.
//
// The binary serves the HTTP API used by the registration desk, the scan
// stations and the admin console. Activity is fanned out to the live staff
// feed and, when configured, to MQTT and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/wesmun/nfc-core/migrations"

	"github.com/wesmun/nfc-core/internal/api"
	"github.com/wesmun/nfc-core/internal/attendee"
	"github.com/wesmun/nfc-core/internal/audit"
	"github.com/wesmun/nfc-core/internal/auth"
	"github.com/wesmun/nfc-core/internal/events"
	"github.com/wesmun/nfc-core/internal/infrastructure/config"
	"github.com/wesmun/nfc-core/internal/infrastructure/database"
	"github.com/wesmun/nfc-core/internal/infrastructure/influxdb"
	"github.com/wesmun/nfc-core/internal/infrastructure/logging"
	"github.com/wesmun/nfc-core/internal/infrastructure/mqtt"
	"github.com/wesmun/nfc-core/internal/roster"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// housekeepingInterval is how often expired sessions and stale
	// rate-limit windows are purged.
	housekeepingInterval = time.Hour

	eventQueueSize = 1024
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	migrateDown bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("wesmun", pflag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to the YAML config file (default $WESMUN_CONFIG or "+defaultConfigPath+")")
	fs.BoolVar(&opts.migrateDown, "migrate-down", false, "roll back the newest migration and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// run is the application body, separated from main for testability.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting WESMUN core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, allowMissing := getConfigPath(opts.configPath)
	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

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

	if opts.migrateDown {
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		log.Info("rolled back newest migration")
		return nil
	}

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	bus := events.NewBus(eventQueueSize, log.With("component", "events"))

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		bus.Subscribe(events.NewMQTTSink(mqttClient, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS)))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		bus.Subscribe(events.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	auditLogs := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditLogs, log, bus)

	authSvc, err := auth.NewService(auth.ServiceConfig{
		AllowedDomain:     cfg.Auth.AllowedDomain,
		EmergencyUsername: cfg.Auth.EmergencyAdmin.Username,
		EmergencyPassword: cfg.Auth.EmergencyAdmin.Password,
	}, auth.ServiceDeps{
		Users:    auth.NewUserRepository(db.DB),
		Sessions: auth.NewSessionStore(db.DB, cfg.Auth.SessionTTL()),
		Limiter:  auth.NewRateLimiter(db.DB, cfg.Auth.RateLimit.MaxAttempts, cfg.Auth.RateLimitWindow()),
		Profiles: attendee.NewProfileRepository(db.DB),
		Audit:    recorder,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}

	rosterSvc, err := roster.NewService(roster.Config{
		AllowedDomain:  cfg.Auth.AllowedDomain,
		EmergencyEmail: authSvc.EmergencyEmail(),
	}, roster.Deps{
		DB:        db.DB,
		Audit:     recorder,
		AuditLogs: auditLogs,
		Publisher: bus,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating roster service: %w", err)
	}

	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Auth:        cfg.Auth,
		Site:        cfg.Site,
		Logger:      log,
		AuthService: authSvc,
		Roster:      rosterSvc,
		DB:          db.DB,
		Events:      bus,
		Version:     version,
	}
	// Interface fields stay nil when the client is disabled.
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.Influx = influxClient
	}

	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	bus.Subscribe(apiServer.Hub())

	busCtx, stopBus := context.WithCancel(context.WithoutCancel(ctx))
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		bus.Run(busCtx)
	}()
	defer func() {
		stopBus()
		<-busDone
		if n := bus.Dropped(); n > 0 {
			log.Warn("events dropped during run", "count", n)
		}
	}()

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	go housekeeping(ctx, authSvc, log)

	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, event bus,
	// InfluxDB, MQTT, database.
	return nil
}

// getConfigPath resolves the config file path from the flag, then
// WESMUN_CONFIG, then the default. Only the default may be missing.
func getConfigPath(flagValue string) (path string, allowMissing bool) {
	if flagValue != "" {
		return flagValue, false
	}
	if path := os.Getenv("WESMUN_CONFIG"); path != "" {
		return path, false
	}
	return defaultConfigPath, true
}

// purger is the part of the auth service used by housekeeping.
type purger interface {
	PurgeExpired(ctx context.Context) (sessions, windows int64, err error)
}

// housekeeping purges expired sessions and stale rate-limit windows until
// ctx is cancelled.
func housekeeping(ctx context.Context, p purger, log *logging.Logger) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeOnce(ctx, p, log)
		}
	}
}

func purgeOnce(ctx context.Context, p purger, log *logging.Logger) {
	sessions, windows, err := p.PurgeExpired(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("housekeeping failed", "error", err)
		return
	}
	if sessions > 0 || windows > 0 {
		log.Info("housekeeping complete", "sessions", sessions, "rate_limit_windows", windows)
	}
}

// healthCheck verifies every started component is healthy. Disabled
// clients are nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
