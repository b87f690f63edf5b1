// AiGrow device server.
//
// Greenhouse controllers publish registrations and sensor readings over
// MQTT; this server records the greenhouse topology and the readings in a
// relational store, optionally mirrors readings to InfluxDB, and answers
// every message with an acknowledgement on the same topic.
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
	"golang.org/x/sync/errgroup"

	"github.com/aigrow/aigrow-device-server/internal/api"
	"github.com/aigrow/aigrow-device-server/internal/infrastructure/config"
	"github.com/aigrow/aigrow-device-server/internal/infrastructure/database"
	"github.com/aigrow/aigrow-device-server/internal/infrastructure/influxdb"
	"github.com/aigrow/aigrow-device-server/internal/infrastructure/logging"
	"github.com/aigrow/aigrow-device-server/internal/infrastructure/mqtt"
	"github.com/aigrow/aigrow-device-server/internal/ingest"
	"github.com/aigrow/aigrow-device-server/internal/topology"
	_ "github.com/aigrow/aigrow-device-server/migrations"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// configEnvVar overrides the default config path when --config is not given.
	configEnvVar = "AIGROW_CONFIG"

	startupCheckTimeout = 10 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component together and blocks until ctx is cancelled.
func run(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("deviceserver", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "path to the YAML config file (default $"+configEnvVar+" or "+defaultConfigPath+")")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	if *showVersion {
		fmt.Printf("deviceserver %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting AiGrow device server",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := resolveConfigPath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, cfg.Service.Name, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Driver:       cfg.Database.Driver,
		Path:         cfg.Database.Path,
		DSN:          cfg.Database.DSN,
		WALMode:      cfg.Database.WALMode,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
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
	log.Info("database connected", "driver", db.Driver(), "path", db.Path())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := topology.NewSQLRepository(db, cfg.GetQueryTimeout())
	router := ingest.NewRouter(repo)
	router.SetLogger(log.With("component", "ingest"))

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
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"tls", cfg.MQTT.Broker.TLS,
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	checks := map[string]healthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}

	// Kept as an interface so a disabled mirror stays a true nil.
	var influxChecker api.HealthChecker
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		router.SetTelemetrySink(influxClient)
		influxChecker = influxClient
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := startupHealthCheck(ctx, checks); err != nil {
		return fmt.Errorf("startup health check: %w", err)
	}

	listener := ingest.NewListener(mqttClient, router, ingest.ListenerConfig{
		InboundTopic:  cfg.MQTT.Topics.Inbound,
		OutboundTopic: cfg.MQTT.Topics.Outbound,
		QoS:           byte(cfg.MQTT.QoS),
	}, log.With("component", "listener"))
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}
	defer func() {
		if stopErr := listener.Stop(); stopErr != nil {
			log.Warn("error stopping listener", "error", stopErr)
		}
	}()

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.With("component", "api"),
			DB:       db,
			MQTT:     mqttClient,
			InfluxDB: influxChecker,
			Stats:    router.Stats(),
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("AiGrow device server ready")

	<-ctx.Done()
	log.Info("shutdown signal received")

	return nil
}

// resolveConfigPath picks the --config flag, then $AIGROW_CONFIG, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// startupHealthCheck runs every component check concurrently and fails on
// the first unhealthy one.
func startupHealthCheck(ctx context.Context, checks map[string]healthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for name, checker := range checks {
		g.Go(func() error {
			if err := checker.HealthCheck(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return fmt.Errorf("interrupted: %w", err)
		}
		return err
	}
	return nil
}
