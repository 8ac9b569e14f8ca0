// Package config loads and validates regsync configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// REGSYNC_* environment variables. Secrets (MQTT password, InfluxDB token,
// JWT secret, Secondary token) are best supplied through the environment.
//
// Usage:
//
//	cfg, err := config.Load("/etc/regsync/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Site.Role)
package config
