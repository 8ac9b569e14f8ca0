// regsync - OV2640 register control plane
//
// regsync serves the register API of one camera node. On the Primary it
// also mirrors writes onto the Secondary node, stores presets and keeps an
// audit trail of every change.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	_ "github.com/nerrad567/regsync/migrations"

	"github.com/nerrad567/regsync/internal/api"
	"github.com/nerrad567/regsync/internal/audit"
	"github.com/nerrad567/regsync/internal/auth"
	"github.com/nerrad567/regsync/internal/discovery"
	"github.com/nerrad567/regsync/internal/engine"
	"github.com/nerrad567/regsync/internal/infrastructure/config"
	"github.com/nerrad567/regsync/internal/infrastructure/database"
	"github.com/nerrad567/regsync/internal/infrastructure/influxdb"
	"github.com/nerrad567/regsync/internal/infrastructure/logging"
	"github.com/nerrad567/regsync/internal/infrastructure/mqtt"
	"github.com/nerrad567/regsync/internal/link"
	"github.com/nerrad567/regsync/internal/mirror"
	"github.com/nerrad567/regsync/internal/preset"
	"github.com/nerrad567/regsync/internal/register"
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
	configEnvVar      = "REGSYNC_CONFIG"
)

// options are the command line flags.
type options struct {
	configPath   string
	hashPassword bool
	issueToken   string
	tokenTTL     time.Duration
	showVersion  bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args and dispatches to the requested mode. Without a mode flag
// it runs the service until ctx is cancelled.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	switch {
	case opts.showVersion:
		fmt.Printf("regsync %s (commit %s, built %s)\n", version, commit, date)
		return nil
	case opts.hashPassword:
		return hashPassword(os.Stdin, os.Stdout)
	case opts.issueToken != "":
		return issueToken(opts, os.Stdout)
	}
	return serve(ctx, opts.configPath)
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("regsync", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file (env "+configEnvVar+")")
	fs.BoolVar(&opts.hashPassword, "hash-password", false, "read a password from stdin and print its Argon2id hash")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print an access token for the named account")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", 0, "lifetime of --issue-token tokens (default: security.jwt.access_token_ttl)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return opts, nil
}

// serve is the service itself, separated from main for testability.
func serve(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting regsync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"site", cfg.Site.ID,
		"role", cfg.Site.Role,
	)

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

	catalog, err := loadCatalog(cfg.Registers.CatalogFile)
	if err != nil {
		return fmt.Errorf("loading register catalog: %w", err)
	}
	log.Info("register catalog loaded", "registers", catalog.Len())

	primary, err := newPrimaryLink(cfg, catalog)
	if err != nil {
		return fmt.Errorf("creating primary link: %w", err)
	}
	log.Info("primary link ready", "driver", cfg.Devices.Primary.Driver)

	secondary, err := newSecondaryLink(cfg)
	if err != nil {
		return fmt.Errorf("creating secondary link: %w", err)
	}

	coordinator := mirror.New(secondary, register.NewStore(), mirror.Config{
		ProbeInterval: cfg.ProbeInterval(),
		ProbeTimeout:  cfg.ProbeTimeout(),
		WriteTimeout:  cfg.SecondaryTimeout(),
		HistorySize:   cfg.Devices.Secondary.HistorySize,
	})
	coordinator.SetLogger(log)
	if secondary != nil {
		coordinator.Start(ctx)
		defer func() {
			log.Info("stopping sync coordinator")
			coordinator.Stop()
		}()
		log.Info("sync coordinator started",
			"target", coordinator.Status().Target,
			"auto_sync", cfg.Devices.Secondary.AutoSync,
		)
	} else {
		log.Info("secondary sync disabled")
	}

	eng := engine.New(primary, register.NewStore(), coordinator, catalog, engine.Config{
		DeviceTimeout: cfg.PrimaryTimeout(),
		AutoSync:      cfg.Devices.Secondary.AutoSync,
	})
	eng.SetLogger(log)

	presets := preset.NewManager(eng, preset.NewSQLiteRepository(db.DB))
	presets.SetLogger(log)

	accounts, err := auth.NewAccounts(cfg.Security.Accounts)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	log.Info("accounts loaded", "count", accounts.Len(), "auth_enabled", cfg.Security.AuthEnabled)

	checks := map[string]api.HealthChecker{"database": db}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Site.ID)
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
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		publishEvents(mqttClient, eng, coordinator, presets)
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
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
		recordHistory(influxClient, eng, coordinator, presets)
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Engine:   eng,
		Presets:  presets,
		Accounts: accounts,
		Audit:    audit.NewSQLiteRepository(db.DB),
		Checks:   checks,
		Site:     cfg.Site.ID,
		Role:     cfg.Site.Role,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Discovery.Advertise {
		advertiser, advErr := discovery.Advertise(discovery.Config{
			Instance:  advertisedInstance(cfg),
			Port:      cfg.API.Port,
			Interface: cfg.Discovery.Interface,
			Text:      []string{"role=" + cfg.Site.Role, "site=" + cfg.Site.ID, "version=" + version},
		})
		if advErr != nil {
			// Peers configured by URL still reach us.
			log.Warn("mDNS advertisement failed", "error", advErr)
		} else {
			defer func() {
				log.Info("withdrawing mDNS advertisement")
				advertiser.Shutdown()
			}()
			log.Info("advertising over mDNS", "instance", advertisedInstance(cfg))
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("regsync stopped")
	return nil
}

// getConfigPath returns REGSYNC_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

func loadCatalog(path string) (*register.Catalog, error) {
	if path == "" {
		return register.DefaultCatalog()
	}
	return register.LoadCatalog(path)
}

func newPrimaryLink(cfg *config.Config, catalog *register.Catalog) (link.Link, error) {
	switch cfg.Devices.Primary.Driver {
	case config.DriverHTTP:
		return link.NewHTTPLink(link.HTTPConfig{
			BaseURL: cfg.Devices.Primary.URL,
			Timeout: cfg.PrimaryTimeout(),
		})
	default:
		return link.NewSimulated(catalog), nil
	}
}

// newSecondaryLink returns nil when this node does not mirror. A Secondary
// without a URL is found over mDNS on every connection attempt.
func newSecondaryLink(cfg *config.Config) (link.Link, error) {
	sec := cfg.Devices.Secondary
	if !sec.Enabled || cfg.Site.Role != config.RolePrimary {
		return nil, nil
	}

	httpCfg := link.HTTPConfig{
		BaseURL: sec.URL,
		Timeout: cfg.SecondaryTimeout(),
		Token:   sec.Token,
	}
	if sec.URL == "" {
		browser := discovery.NewBrowser(discovery.Config{
			Interface:     cfg.Discovery.Interface,
			BrowseTimeout: cfg.BrowseTimeout(),
		})
		httpCfg.Resolver = browser.ResolverFor(sec.MDNSInstance)
	}
	return link.NewHTTPLink(httpCfg)
}

func advertisedInstance(cfg *config.Config) string {
	if cfg.Discovery.Instance != "" {
		return cfg.Discovery.Instance
	}
	return cfg.Site.ID
}

// healthCheck verifies the infrastructure connections before serving.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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
	return nil
}

// publishEvents forwards register, sync and preset events to MQTT.
func publishEvents(client *mqtt.Client, eng *engine.Engine, coordinator *mirror.Coordinator, presets *preset.Manager) {
	topics := client.Topics()

	eng.OnChange(func(c engine.Change) {
		client.PublishEvent(topics.Register(c.Bank, c.Address), c, true)
	})
	coordinator.AddHooks(mirror.Hooks{
		OnOperation: func(op mirror.Operation) {
			client.PublishEvent(topics.SyncOperation(), op, false)
		},
		OnConnectivity: func(c mirror.Connectivity) {
			client.PublishEvent(topics.SyncConnectivity(), c, true)
		},
	})
	presets.OnApply(func(r *preset.ApplyResult) {
		client.PublishEvent(topics.PresetApplied(), r, false)
	})
}

// recordHistory writes register, sync and preset events to InfluxDB.
func recordHistory(client *influxdb.Client, eng *engine.Engine, coordinator *mirror.Coordinator, presets *preset.Manager) {
	eng.OnChange(func(c engine.Change) {
		mirrored := c.Sync != nil && c.Sync.State == mirror.StateApplied
		client.WriteRegisterChange(c.Bank.String(), uint8(c.Address), uint8(c.Value), c.Source, mirrored)
	})
	coordinator.AddHooks(mirror.Hooks{
		OnOperation: func(op mirror.Operation) {
			client.WriteSyncOutcome(op.Bank.String(), uint8(op.Address), string(op.State), op.Reason,
				time.Duration(op.DurationMS)*time.Millisecond)
		},
		OnConnectivity: func(c mirror.Connectivity) {
			client.WriteConnectivity(c.Connected)
		},
	})
	presets.OnApply(func(r *preset.ApplyResult) {
		client.WritePresetApply(r.Name, string(r.Scope), r.Written, r.Failed)
	})
}

// hashPassword reads one password from in and prints its PHC hash. A
// terminal is read without echo.
func hashPassword(in io.Reader, out io.Writer) error {
	var password string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // file descriptors fit in int
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // as above
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = string(b)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("empty password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}

// issueToken prints an access token for a configured account, for peers
// and scripts that cannot log in interactively.
func issueToken(opts *options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not set")
	}

	accounts, err := auth.NewAccounts(cfg.Security.Accounts)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	account, ok := accounts.Lookup(opts.issueToken)
	if !ok {
		return fmt.Errorf("unknown account %q", opts.issueToken)
	}

	ttl := opts.tokenTTL
	if ttl <= 0 {
		ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}
	token, err := auth.GenerateAccessToken(account, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
