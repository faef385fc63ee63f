// Gray Logic Gateway - TCP device gateway
//
// Field devices dial in over TCP, register with a JSON identity document,
// stream data lines that are appended to per-device logs, and receive
// operator commands addressed to them by IMEI.
//
// The same process serves the REST API, the WebSocket event stream, the
// Prometheus endpoint and, when attached to a terminal, the operator
// console.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/api"
	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/bridges/mqttbridge"
	"github.com/nerrad567/gray-logic-gateway/internal/console"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/internal/metrics"
	"github.com/nerrad567/gray-logic-gateway/internal/telemetry"
	"github.com/nerrad567/gray-logic-gateway/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when GATEWAY_CONFIG is unset. A missing
	// file at this path falls back to built-in defaults.
	defaultConfigPath = "configs/config.yaml"

	// defaultTokenTTL is the lifetime of tokens minted with -issue-token.
	defaultTokenTTL = 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := dispatch(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dispatch handles the one-shot flags, then runs the gateway.
func dispatch(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.SetOutput(out)
	showVersion := fs.Bool("version", false, "print version and exit")
	tokenSubject := fs.String("issue-token", "", "print an API bearer token for `subject` and exit")
	tokenTTL := fs.Duration("token-ttl", defaultTokenTTL, "lifetime of the token printed by -issue-token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *showVersion:
		fmt.Fprintf(out, "gray-logic-gateway %s (commit %s, built %s)\n", version, commit, date)
		return nil
	case *tokenSubject != "":
		return issueToken(out, *tokenSubject, *tokenTTL)
	default:
		return run(ctx)
	}
}

// issueToken signs a token with the configured JWT secret.
func issueToken(out io.Writer, subject string, ttl time.Duration) error {
	path, allowMissing := getConfigPath()
	cfg, err := config.Load(path, allowMissing)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not set; the API is unauthenticated")
	}
	token, err := api.IssueToken(subject, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

// run is the actual application logic, separated from main for testability.
//
// Components are started in dependency order and torn down in reverse by
// the deferred closers: API, MQTT bridge, gateway (ending every session
// and flushing observers), audit writer, InfluxDB, MQTT, database.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo,funlen // linear startup sequence
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	log := logging.Default()
	log.Info("starting Gray Logic Gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, allowMissing := getConfigPath()
	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database and audit trail
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Device directory
	directory, err := device.OpenDirectory(cfg.Directory.Path)
	if err != nil {
		return fmt.Errorf("opening device directory: %w", err)
	}
	directory.SetLogger(log.Component("directory"))
	log.Info("device directory loaded", "path", directory.Path(), "devices", len(directory.All()))

	// MQTT (optional)
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
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
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

	auditObserver, err := audit.NewObserver(auditRepo, 0, log.Component("audit"))
	if err != nil {
		return fmt.Errorf("creating audit observer: %w", err)
	}
	defer func() {
		auditObserver.Close()
		log.Info("audit writer stopped", "stats", auditObserver.Stats())
	}()

	// Gateway and observers
	gwLog := log.Component("gateway")
	m := metrics.New()
	gw := gateway.New(gateway.ConfigFrom(cfg),
		gateway.WithLogger(gwLog),
		gateway.WithObserver(gateway.NewDirectoryObserver(directory, gwLog)),
		gateway.WithObserver(auditObserver),
		gateway.WithObserver(m),
	)
	defer func() {
		if closeErr := gw.Close(); closeErr != nil {
			log.Error("error closing gateway", "error", closeErr)
		}
	}()
	m.RegisterGateway(gw)

	if influxClient != nil {
		var opts []telemetry.Option
		if cfg.InfluxDB.StorePayloads {
			opts = append(opts, telemetry.WithPayloads())
		}
		gw.AddObserver(telemetry.NewRecorder(influxClient, opts...))
	}

	if mqttClient != nil {
		bridge, bridgeErr := mqttbridge.NewBridge(mqttbridge.Options{
			Client:  mqttClient,
			Gateway: gw,
			Topics:  mqttClient.Topics(),
			QoS:     mqttClient.QoS(),
			Logger:  log.Component("mqttbridge"),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		gw.AddObserver(bridge)
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
		}()
	}

	// REST API
	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Security:  cfg.Security,
			Logger:    log.Component("api"),
			Gateway:   gw,
			Directory: directory,
			Audit:     auditRepo,
			Metrics:   m.Handler(),
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		gw.AddObserver(srv.Hub())
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient, gw); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if cfg.Console.Enabled {
		con := console.New(os.Stdin, os.Stdout, gw, log.Component("console"))
		go func() {
			err := con.Run(ctx)
			switch {
			case errors.Is(err, console.ErrQuit):
				log.Info("quit requested from console")
				stop()
			case err != nil:
				log.Warn("console stopped", "error", err)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", gw.Addr().String())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns the configuration file path and whether a missing
// file is acceptable. Only the default path may be missing.
func getConfigPath() (string, bool) {
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		return path, false
	}
	return defaultConfigPath, true
}

// healthChecker is implemented by every infrastructure component.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies the started components. Nil clients are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, gw *gateway.Gateway) error {
	checks := []struct {
		name    string
		checker healthChecker
	}{
		{"database", db},
		{"gateway", gw},
	}
	if mqttClient != nil {
		checks = append(checks, struct {
			name    string
			checker healthChecker
		}{"mqtt", mqttClient})
	}
	if influxClient != nil {
		checks = append(checks, struct {
			name    string
			checker healthChecker
		}{"influxdb", influxClient})
	}

	for _, c := range checks {
		if err := c.checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}
