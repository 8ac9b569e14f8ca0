package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRegisterWrite = "register_write"
	MeasurementSyncOperation = "sync_operation"
	MeasurementSyncLink      = "sync_connectivity"
	MeasurementPresetApply   = "preset_apply"
)

// WriteRegisterChange records a confirmed Primary register write.
//
//	client.WriteRegisterChange("dsp", 0x44, 0x0C, "write", true)
func (c *Client) WriteRegisterChange(bank string, addr, value uint8, source string, mirrored bool) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementRegisterWrite,
		map[string]string{
			"bank":   bank,
			"source": source,
		},
		map[string]interface{}{
			"addr":     int64(addr),
			"value":    int64(value),
			"mirrored": mirrored,
		},
		time.Now(),
	))
}

// WriteSyncOutcome records the terminal state of one mirror operation.
// reason is empty for applied operations.
func (c *Client) WriteSyncOutcome(bank string, addr uint8, state, reason string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"bank":  bank,
		"state": state,
	}
	if reason != "" {
		tags["reason"] = reason
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementSyncOperation,
		tags,
		map[string]interface{}{
			"addr":        int64(addr),
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	))
}

// WriteConnectivity records a Secondary connectivity transition.
func (c *Client) WriteConnectivity(connected bool) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementSyncLink,
		nil,
		map[string]interface{}{"connected": connected},
		time.Now(),
	))
}

// WritePresetApply records a preset application summary.
func (c *Client) WritePresetApply(name, scope string, written, failed int) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementPresetApply,
		map[string]string{
			"preset": name,
			"scope":  scope,
		},
		map[string]interface{}{
			"written": int64(written),
			"failed":  int64(failed),
		},
		time.Now(),
	))
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
