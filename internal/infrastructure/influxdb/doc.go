// Package influxdb records regsync history in InfluxDB.
//
// It wraps influxdb-client-go v2 with batched, non-blocking writes for:
//   - confirmed Primary register writes
//   - mirror operation outcomes and Secondary connectivity
//   - preset applications
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteRegisterChange("dsp", 0x44, 0x0C, "write", false)
//
// Write errors arrive asynchronously through SetOnError. Connection and
// health check errors are returned directly.
package influxdb
