package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Device roles.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
)

// Primary device drivers.
const (
	DriverSimulated = "simulated"
	DriverHTTP      = "http"
)

// Config is the root configuration structure for regsync.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Devices   DevicesConfig   `yaml:"devices"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Registers RegistersConfig `yaml:"registers"`
}

// SiteConfig identifies this instance.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Role is "primary" (drives a Secondary) or "secondary" (is driven).
	Role string `yaml:"role"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket settings. Intervals are in seconds.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	// AuthEnabled requires a bearer token on mutating routes.
	AuthEnabled bool            `yaml:"auth_enabled"`
	JWT         JWTConfig       `yaml:"jwt"`
	Accounts    []AccountConfig `yaml:"accounts"`
}

// AccountConfig is a local API account. PasswordHash is an Argon2id PHC
// string as printed by `regsync --hash-password`.
type AccountConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"` // viewer, operator or admin
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// DevicesConfig describes the Primary and Secondary devices.
type DevicesConfig struct {
	Primary   PrimaryDeviceConfig   `yaml:"primary"`
	Secondary SecondaryDeviceConfig `yaml:"secondary"`
}

// PrimaryDeviceConfig selects how the Primary sensor is reached.
type PrimaryDeviceConfig struct {
	// Driver is "simulated" (in-process register file) or "http" (a camera
	// node exposing the register API at URL).
	Driver    string `yaml:"driver"`
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// SecondaryDeviceConfig describes the mirror target.
type SecondaryDeviceConfig struct {
	Enabled bool `yaml:"enabled"`

	// URL is the Secondary's base URL. When empty the Secondary is resolved
	// over mDNS by MDNSInstance.
	URL          string `yaml:"url"`
	MDNSInstance string `yaml:"mdns_instance"`

	// Token is sent as a bearer token when the Secondary requires auth.
	Token string `yaml:"token"`

	TimeoutMS      int  `yaml:"timeout_ms"`
	ProbeInterval  int  `yaml:"probe_interval"` // seconds
	ProbeTimeoutMS int  `yaml:"probe_timeout_ms"`
	AutoSync       bool `yaml:"auto_sync"`
	HistorySize    int  `yaml:"history_size"`
}

// DiscoveryConfig contains mDNS settings.
type DiscoveryConfig struct {
	Advertise     bool   `yaml:"advertise"`
	Instance      string `yaml:"instance"`
	Interface     string `yaml:"interface"`
	BrowseTimeout int    `yaml:"browse_timeout"` // seconds
}

// RegistersConfig contains register catalog settings.
type RegistersConfig struct {
	// CatalogFile overrides the built-in OV2640 catalog.
	CatalogFile string `yaml:"catalog_file"`
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is not empty) and REGSYNC_* environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "cam-01",
			Name: "regsync",
			Role: RolePrimary,
		},
		Database: DatabaseConfig{
			Path:        "./data/regsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "regsync",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "regsync",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{AccessTokenTTL: 15},
		},
		Devices: DevicesConfig{
			Primary: PrimaryDeviceConfig{
				Driver:    DriverSimulated,
				TimeoutMS: 2000,
			},
			Secondary: SecondaryDeviceConfig{
				TimeoutMS:      4000,
				ProbeInterval:  10,
				ProbeTimeoutMS: 3000,
				HistorySize:    256,
			},
		},
		Discovery: DiscoveryConfig{
			BrowseTimeout: 5,
		},
	}
}

// applyEnvOverrides applies REGSYNC_SECTION_KEY environment overrides.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("REGSYNC_SITE_ID", &cfg.Site.ID)
	setString("REGSYNC_SITE_ROLE", &cfg.Site.Role)
	setString("REGSYNC_DATABASE_PATH", &cfg.Database.Path)

	setBool("REGSYNC_MQTT_ENABLED", &cfg.MQTT.Enabled)
	setString("REGSYNC_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setString("REGSYNC_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("REGSYNC_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	setString("REGSYNC_API_HOST", &cfg.API.Host)
	setInt("REGSYNC_API_PORT", &cfg.API.Port)

	setString("REGSYNC_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)
	setString("REGSYNC_LOG_LEVEL", &cfg.Logging.Level)
	setString("REGSYNC_JWT_SECRET", &cfg.Security.JWT.Secret)

	setString("REGSYNC_PRIMARY_DRIVER", &cfg.Devices.Primary.Driver)
	setString("REGSYNC_PRIMARY_URL", &cfg.Devices.Primary.URL)
	setBool("REGSYNC_SECONDARY_ENABLED", &cfg.Devices.Secondary.Enabled)
	setString("REGSYNC_SECONDARY_URL", &cfg.Devices.Secondary.URL)
	setString("REGSYNC_SECONDARY_TOKEN", &cfg.Devices.Secondary.Token)
	setBool("REGSYNC_SECONDARY_AUTO_SYNC", &cfg.Devices.Secondary.AutoSync)
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Role != RolePrimary && c.Site.Role != RoleSecondary {
		errs = append(errs, "site.role must be primary or secondary")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "") {
		errs = append(errs, "influxdb.url and influxdb.org are required when influxdb is enabled")
	}

	const minJWTSecretLength = 32
	if c.Security.AuthEnabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when auth is enabled (set REGSYNC_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}
	errs = append(errs, c.validateAccounts()...)

	errs = append(errs, c.validateDevices()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateAccounts() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Security.Accounts))
	for i, a := range c.Security.Accounts {
		if a.Username == "" {
			errs = append(errs, fmt.Sprintf("security.accounts[%d].username is required", i))
		} else if seen[a.Username] {
			errs = append(errs, fmt.Sprintf("security.accounts[%d].username %q is duplicated", i, a.Username))
		}
		seen[a.Username] = true
		if !strings.HasPrefix(a.PasswordHash, "$argon2id$") {
			errs = append(errs, fmt.Sprintf("security.accounts[%d].password_hash must be an argon2id hash", i))
		}
		switch a.Role {
		case "viewer", "operator", "admin":
		default:
			errs = append(errs, fmt.Sprintf("security.accounts[%d].role must be viewer, operator or admin", i))
		}
	}
	return errs
}

func (c *Config) validateDevices() []string {
	var errs []string
	p := c.Devices.Primary
	switch p.Driver {
	case DriverSimulated:
	case DriverHTTP:
		if !validHTTPURL(p.URL) {
			errs = append(errs, "devices.primary.url must be an http(s) URL for the http driver")
		}
	default:
		errs = append(errs, "devices.primary.driver must be simulated or http")
	}
	if p.TimeoutMS <= 0 {
		errs = append(errs, "devices.primary.timeout_ms must be positive")
	}

	s := c.Devices.Secondary
	if !s.Enabled {
		return errs
	}
	if c.Site.Role != RolePrimary {
		errs = append(errs, "devices.secondary requires site.role primary")
	}
	if s.URL == "" && s.MDNSInstance == "" {
		errs = append(errs, "devices.secondary needs url or mdns_instance")
	}
	if s.URL != "" && !validHTTPURL(s.URL) {
		errs = append(errs, "devices.secondary.url must be an http(s) URL")
	}
	if s.TimeoutMS <= 0 || s.ProbeTimeoutMS <= 0 || s.ProbeInterval <= 0 {
		errs = append(errs, "devices.secondary timeouts and probe_interval must be positive")
	}
	return errs
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// GetReadTimeout returns the API read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// PrimaryTimeout bounds each Primary device call.
func (c *Config) PrimaryTimeout() time.Duration {
	return time.Duration(c.Devices.Primary.TimeoutMS) * time.Millisecond
}

// SecondaryTimeout bounds each mirrored write.
func (c *Config) SecondaryTimeout() time.Duration {
	return time.Duration(c.Devices.Secondary.TimeoutMS) * time.Millisecond
}

// ProbeInterval is the period of the Secondary health probe.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Devices.Secondary.ProbeInterval) * time.Second
}

// ProbeTimeout bounds a single health probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Devices.Secondary.ProbeTimeoutMS) * time.Millisecond
}

// BrowseTimeout bounds an mDNS lookup.
func (c *Config) BrowseTimeout() time.Duration {
	return time.Duration(c.Discovery.BrowseTimeout) * time.Second
}
