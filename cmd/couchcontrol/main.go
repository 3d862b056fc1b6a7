// Couch Control - entity selection service for couch dashboards
//
// This is the main entry point for the Couch Control service. It keeps a
// persistent list of selected entities per config entry and streams live
// state changes of exactly those entities to REST and WebSocket clients.
//
// Usage:
//
//	couchcontrol [--config path]
//	couchcontrol token --subject living-room-tablet [--role user] [--ttl 60]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/couch-control/internal/api"
	"github.com/nerrad567/couch-control/internal/auth"
	"github.com/nerrad567/couch-control/internal/bridge"
	"github.com/nerrad567/couch-control/internal/configentry"
	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/infrastructure/config"
	"github.com/nerrad567/couch-control/internal/infrastructure/database"
	"github.com/nerrad567/couch-control/internal/infrastructure/influxdb"
	"github.com/nerrad567/couch-control/internal/infrastructure/kafka"
	"github.com/nerrad567/couch-control/internal/infrastructure/logging"
	"github.com/nerrad567/couch-control/internal/infrastructure/mqtt"
	"github.com/nerrad567/couch-control/internal/infrastructure/objectstore"
	"github.com/nerrad567/couch-control/internal/ingest"
	"github.com/nerrad567/couch-control/internal/integration"
	"github.com/nerrad567/couch-control/internal/schema"
	"github.com/nerrad567/couch-control/internal/selection"
	"github.com/nerrad567/couch-control/internal/service"
	"github.com/nerrad567/couch-control/migrations"
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

// configEnv names the environment variable that overrides the default
// configuration path.
const configEnv = "COUCHCONTROL_CONFIG"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// execute dispatches the command line: the "token" subcommand, or the
// service itself.
func execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) > 0 && args[0] == "token" {
		return runToken(args[1:], out)
	}

	flags := pflag.NewFlagSet("couchcontrol", pflag.ContinueOnError)
	flags.SetOutput(out)
	configFlag := flags.String("config", "", "path to the YAML configuration file")
	showVersion := flags.Bool("version", false, "print the version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(out, "couchcontrol %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}
	return run(ctx, getConfigPath(*configFlag))
}

// runToken prints a signed access token for a dashboard or tablet.
func runToken(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("couchcontrol token", pflag.ContinueOnError)
	flags.SetOutput(out)
	configFlag := flags.String("config", "", "path to the YAML configuration file")
	subject := flags.String("subject", "", "who the token is for, e.g. living-room-tablet")
	role := flags.String("role", string(auth.RoleUser), "token role: viewer, user or admin")
	ttl := flags.Int("ttl", 0, "token lifetime in minutes (default security.jwt.access_token_ttl)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("--subject is required")
	}

	cfg, err := config.Load(getConfigPath(*configFlag))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	minutes := *ttl
	if minutes <= 0 {
		minutes = cfg.Security.JWT.AccessTokenTTL
	}
	token, err := auth.GenerateAccessToken(*subject, auth.Role(*role), cfg.Security.JWT.Secret, minutes)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file to load
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Couch Control",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	db, err := database.Open(ctx, cfg.Database)
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
	log.Info("database migrations complete")

	// Entity registry and live states
	registry := entity.NewRegistry(entity.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entity registry: %w", refreshErr)
	}
	states := entity.NewStateMachine()
	if seedErr := applySeed(ctx, cfg.Registry.SeedFile, registry, states, log); seedErr != nil {
		return seedErr
	}
	log.Info("entity registry initialised", "entities", registry.Count())

	backend, err := openBackend(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	entries := configentry.NewManager(configentry.NewSQLiteRepository(db.DB))
	entries.SetLogger(log)
	if loadErr := entries.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading config entries: %w", loadErr)
	}

	// MQTT carries the live state feed and the retained selection topics.
	var mqttClient *mqtt.Client
	var publisher integration.RetainedPublisher
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		publisher = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, live states come from the REST API only")
	}

	services := service.NewRegistry()
	validator, err := schema.New()
	if err != nil {
		return fmt.Errorf("loading request schemas: %w", err)
	}
	log.Debug("request schemas loaded", "schemas", validator.Names())

	manager, err := integration.New(integration.Deps{
		Registry:    registry,
		States:      states,
		Entries:     entries,
		Services:    services,
		Backend:     backend,
		Schema:      validator,
		Publisher:   publisher,
		NativeScope: cfg.Bridge.NativeScope,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("creating integration: %w", err)
	}
	defer func() {
		log.Info("tearing down config entries")
		if closeErr := manager.Close(context.Background()); closeErr != nil {
			log.Error("error tearing down config entries", "error", closeErr)
		}
	}()

	flows := configentry.NewFlows(integration.Domain, cfg.Integration.AllowMultiple, entries, registry, manager)
	flows.SetLogger(log)

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Registry:    registry,
		States:      states,
		Integration: manager,
		Entries:     entries,
		Flows:       flows,
		Services:    services,
		Schema:      validator,
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

	if mqttClient != nil {
		stream := ingest.New(mqttClient, states, cfg.Ingest.TopicPrefix, byte(cfg.MQTT.QoS)) //nolint:gosec // QoS validated to 0-2
		stream.SetLogger(log)
		if startErr := stream.Start(); startErr != nil {
			return fmt.Errorf("starting statestream ingest: %w", startErr)
		}
		defer func() {
			log.Info("stopping statestream ingest")
			if stopErr := stream.Stop(); stopErr != nil {
				log.Error("error stopping statestream ingest", "error", stopErr)
			}
		}()
	}

	closeSinks := attachSinks(ctx, cfg, manager, log)
	defer closeSinks()

	if startErr := manager.Start(ctx); startErr != nil {
		return fmt.Errorf("setting up config entries: %w", startErr)
	}
	log.Info("config entries set up", "running", manager.Len())

	if err := healthCheck(ctx, startupChecks(db, server, mqttClient, backend)); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// sinks, ingest, API server, config entries, MQTT, database.

	log.Info("Couch Control stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// The --config flag wins, then COUCHCONTROL_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// applySeed loads the optional registry seed file.
func applySeed(ctx context.Context, path string, registry *entity.Registry, states *entity.StateMachine, log *logging.Logger) error {
	if path == "" {
		return nil
	}
	seed, err := entity.LoadSeed(path)
	if err != nil {
		return fmt.Errorf("loading registry seed: %w", err)
	}
	written, err := entity.ApplySeed(ctx, registry, states, seed)
	if err != nil {
		return fmt.Errorf("applying registry seed: %w", err)
	}
	log.Info("registry seed applied", "path", path, "rows", written, "states", len(seed.States))
	return nil
}

// openBackend returns the selection record backend named by
// storage.backend.
func openBackend(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (selection.Backend, error) {
	if cfg.Storage.Backend != config.StorageBackendMinIO {
		log.Info("selection storage", "backend", config.StorageBackendSQLite)
		return selection.NewSQLiteBackend(db.DB), nil
	}

	client, err := objectstore.Connect(ctx, cfg.Storage.MinIO)
	if err != nil {
		return nil, fmt.Errorf("connecting to object storage: %w", err)
	}
	log.Info("selection storage",
		"backend", config.StorageBackendMinIO,
		"endpoint", cfg.Storage.MinIO.Endpoint,
		"bucket", cfg.Storage.MinIO.Bucket,
	)
	return client, nil
}

// attachSinks subscribes the optional InfluxDB and Kafka sinks to the
// filtered change stream. A sink that cannot start is logged and skipped.
// The returned function detaches and closes every attached sink.
func attachSinks(ctx context.Context, cfg *config.Config, manager *integration.Manager, log *logging.Logger) func() {
	var cleanups []func()

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB telemetry disabled", "error", err)
		} else {
			client.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			sink := integration.NewTelemetrySink(client)
			sub := manager.AttachSink("influxdb", sink)
			cleanups = append(cleanups, func() {
				sub.Dispose()
				log.Info("closing InfluxDB connection", "points", sink.Written())
				if closeErr := client.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			})
			log.Info("InfluxDB telemetry attached",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)
		}
	}

	if cfg.Kafka.Enabled {
		exporter, err := kafka.New(cfg.Kafka, log)
		if err != nil {
			log.Warn("Kafka export disabled", "error", err)
		} else {
			sink := integration.NewExportSink(exporter, log)
			sub := manager.AttachSink("kafka", sink)
			cleanups = append(cleanups, func() {
				sub.Dispose()
				sent, failed := exporter.Stats()
				log.Info("closing Kafka exporter", "sent", sent, "failed", failed, "sink_failures", sink.Failed())
				if closeErr := exporter.Close(); closeErr != nil {
					log.Error("error closing Kafka exporter", "error", closeErr)
				}
			})
			log.Info("Kafka export attached", "brokers", cfg.Kafka.Brokers, "topic", exporter.Topic())
		}
	}

	return func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
}

// healthChecker is implemented by every component probed at startup.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// namedCheck labels a healthChecker for error messages.
type namedCheck struct {
	name    string
	checker healthChecker
}

// startupChecks lists the components to probe. Optional components that
// are disabled are left out, as is a selection backend without a
// HealthCheck method.
func startupChecks(db *database.DB, server *api.Server, mqttClient *mqtt.Client, backend selection.Backend) []namedCheck {
	checks := []namedCheck{
		{"database", db},
		{"api", server},
	}
	if mqttClient != nil {
		checks = append(checks, namedCheck{"mqtt", mqttClient})
	}
	if hc, ok := backend.(healthChecker); ok {
		checks = append(checks, namedCheck{"selection storage", hc})
	}
	return checks
}

// healthCheck runs checks in order and returns the first failure.
func healthCheck(ctx context.Context, checks []namedCheck) error {
	for _, c := range checks {
		if err := c.checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// Compile-time interface checks for the adapters wired above.
var (
	_ selection.Backend             = (*objectstore.Client)(nil)
	_ healthChecker                 = (*objectstore.Client)(nil)
	_ integration.RetainedPublisher = (*mqtt.Client)(nil)
	_ integration.PointWriter       = (*influxdb.Client)(nil)
	_ integration.EventExporter     = (*kafka.Exporter)(nil)
	_ ingest.Subscriber             = (*mqtt.Client)(nil)
	_ bridge.Subscriber             = (*integration.TelemetrySink)(nil)
)
