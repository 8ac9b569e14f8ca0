package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "cam-front"
  role: primary
database:
  path: "/tmp/regsync-test.db"
devices:
  primary:
    driver: http
    url: "http://10.0.0.5"
    timeout_ms: 1500
  secondary:
    enabled: true
    mdns_instance: "cam-rear"
    auto_sync: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "cam-front" {
		t.Errorf("Site.ID = %q, want cam-front", cfg.Site.ID)
	}
	if cfg.Devices.Primary.Driver != DriverHTTP || cfg.PrimaryTimeout() != 1500*time.Millisecond {
		t.Errorf("primary = %+v", cfg.Devices.Primary)
	}
	if !cfg.Devices.Secondary.AutoSync || cfg.Devices.Secondary.MDNSInstance != "cam-rear" {
		t.Errorf("secondary = %+v", cfg.Devices.Secondary)
	}
	// Unset values keep their defaults.
	if cfg.ProbeInterval() != 10*time.Second || cfg.ProbeTimeout() != 3*time.Second {
		t.Errorf("probe interval/timeout = %v/%v, want 10s/3s", cfg.ProbeInterval(), cfg.ProbeTimeout())
	}
	if cfg.SecondaryTimeout() != 4*time.Second {
		t.Errorf("SecondaryTimeout() = %v, want 4s", cfg.SecondaryTimeout())
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Site.Role != RolePrimary || cfg.Devices.Primary.Driver != DriverSimulated {
		t.Errorf("defaults = role %q driver %q", cfg.Site.Role, cfg.Devices.Primary.Driver)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "from-file"
`)
	t.Setenv("REGSYNC_SITE_ID", "from-env")
	t.Setenv("REGSYNC_API_PORT", "9090")
	t.Setenv("REGSYNC_SECONDARY_ENABLED", "true")
	t.Setenv("REGSYNC_SECONDARY_URL", "http://cam-rear.local")
	t.Setenv("REGSYNC_API_HOST", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Site.ID != "from-env" {
		t.Errorf("Site.ID = %q, want from-env", cfg.Site.ID)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if !cfg.Devices.Secondary.Enabled || cfg.Devices.Secondary.URL != "http://cam-rear.local" {
		t.Errorf("secondary = %+v", cfg.Devices.Secondary)
	}
	if cfg.API.Host != "0.0.0.0" {
		t.Errorf("empty env var overrode API.Host: %q", cfg.API.Host)
	}
}

func TestConfig_Validate(t *testing.T) {
	validSecret := "test-secret-key-at-least-32-chars!"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "empty site id",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "unknown role",
			mutate:  func(c *Config) { c.Site.Role = "master" },
			wantErr: "site.role",
		},
		{
			name:    "bad qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "auth without secret",
			mutate:  func(c *Config) { c.Security.AuthEnabled = true },
			wantErr: "security.jwt.secret is required",
		},
		{
			name:    "auth with short secret",
			mutate:  func(c *Config) { c.Security.AuthEnabled = true; c.Security.JWT.Secret = "short" },
			wantErr: "at least 32",
		},
		{
			name:   "auth with secret",
			mutate: func(c *Config) { c.Security.AuthEnabled = true; c.Security.JWT.Secret = validSecret },
		},
		{
			name: "valid account",
			mutate: func(c *Config) {
				c.Security.Accounts = []AccountConfig{{Username: "ops", PasswordHash: "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA", Role: "operator"}}
			},
		},
		{
			name: "account with plain password",
			mutate: func(c *Config) {
				c.Security.Accounts = []AccountConfig{{Username: "ops", PasswordHash: "hunter2", Role: "operator"}}
			},
			wantErr: "argon2id",
		},
		{
			name: "account with unknown role",
			mutate: func(c *Config) {
				c.Security.Accounts = []AccountConfig{{Username: "ops", PasswordHash: "$argon2id$x", Role: "owner"}}
			},
			wantErr: "viewer, operator or admin",
		},
		{
			name: "duplicate account",
			mutate: func(c *Config) {
				a := AccountConfig{Username: "ops", PasswordHash: "$argon2id$x", Role: "viewer"}
				c.Security.Accounts = []AccountConfig{a, a}
			},
			wantErr: "duplicated",
		},
		{
			name:    "http driver without url",
			mutate:  func(c *Config) { c.Devices.Primary.Driver = DriverHTTP },
			wantErr: "devices.primary.url",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Devices.Primary.Driver = "i2c" },
			wantErr: "devices.primary.driver",
		},
		{
			name:    "secondary without target",
			mutate:  func(c *Config) { c.Devices.Secondary.Enabled = true },
			wantErr: "url or mdns_instance",
		},
		{
			name: "secondary on a secondary",
			mutate: func(c *Config) {
				c.Site.Role = RoleSecondary
				c.Devices.Secondary.Enabled = true
				c.Devices.Secondary.URL = "http://peer"
			},
			wantErr: "requires site.role primary",
		},
		{
			name:    "influx without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.API.Port = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	if !strings.Contains(err.Error(), "site.id") || !strings.Contains(err.Error(), "api.port") {
		t.Errorf("Validate() = %v, want both problems", err)
	}
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := &Config{API: APIConfig{Timeouts: APITimeoutConfig{Read: 5, Write: 10, Idle: 120}}}
	if cfg.GetReadTimeout() != 5*time.Second {
		t.Errorf("GetReadTimeout() = %v", cfg.GetReadTimeout())
	}
	if cfg.GetWriteTimeout() != 10*time.Second {
		t.Errorf("GetWriteTimeout() = %v", cfg.GetWriteTimeout())
	}
	if cfg.GetIdleTimeout() != 120*time.Second {
		t.Errorf("GetIdleTimeout() = %v", cfg.GetIdleTimeout())
	}
}
