package influxdb

import (
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementEntityState is the measurement written for selected entities.
const MeasurementEntityState = "couch_control_state"

// EntityStatePoint converts an entity state into a point.
//
// Numeric states become a float "value" field; on/off, true/false,
// open/closed and home/not_home become a bool "active" field. Any other
// state (unavailable, unknown, free text) is not recordable and ok is false.
// The unit_of_measurement and device_class attributes become tags when set.
//
// Parameters:
//   - entityID: e.g. "sensor.temp"
//   - state: the raw state string
//   - attrs: entity attributes (may be nil)
//   - ts: point timestamp, usually the state's last_updated
func EntityStatePoint(entityID, state string, attrs map[string]any, ts time.Time) (*write.Point, bool) {
	fields := map[string]any{}
	if v, err := strconv.ParseFloat(state, 64); err == nil {
		fields["value"] = v
	} else if b, ok := parseBinaryState(state); ok {
		fields["active"] = b
	} else {
		return nil, false
	}

	domain, _, _ := strings.Cut(entityID, ".")
	tags := map[string]string{
		"entity_id": entityID,
		"domain":    domain,
	}
	if unit, ok := attrs["unit_of_measurement"].(string); ok && unit != "" {
		tags["unit"] = unit
	}
	if class, ok := attrs["device_class"].(string); ok && class != "" {
		tags["device_class"] = class
	}

	return write.NewPoint(MeasurementEntityState, tags, fields, ts), true
}

func parseBinaryState(state string) (bool, bool) {
	switch strings.ToLower(state) {
	case "on", "true", "open", "home", "detected":
		return true, true
	case "off", "false", "closed", "not_home", "clear":
		return false, true
	default:
		return false, false
	}
}

// WriteEntityState records a state change if it is numeric or binary.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Returns:
//   - bool: true if a point was queued
func (c *Client) WriteEntityState(entityID, state string, attrs map[string]any, ts time.Time) bool {
	if !c.IsConnected() {
		return false
	}

	point, ok := EntityStatePoint(entityID, state, attrs, ts)
	if !ok {
		return false
	}

	c.writeAPI.WritePoint(point)
	return true
}

// WritePointWithTime writes a custom point with full control over tags and fields.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
