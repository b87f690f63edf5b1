package influxdb

import (
	"strconv"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/aigrow/aigrow-device-server/internal/topology"
)

// MeasurementDeviceData is the measurement every reading is written to.
const MeasurementDeviceData = "device_data"

// WriteTelemetry mirrors a stored reading. The write is non-blocking.
func (c *Client) WriteTelemetry(kind topology.DeviceKind, rec topology.TelemetryRecord) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(telemetryPoint(kind, rec))
}

// telemetryPoint builds the point for a reading. Numeric readings are
// stored as floats so they can be aggregated; anything else is kept as a
// string field.
func telemetryPoint(kind topology.DeviceKind, rec topology.TelemetryRecord) *write.Point {
	tags := map[string]string{
		"device_unique_id": rec.DeviceUniqueID,
		"device_kind":      kind.String(),
	}
	if rec.Unit != "" {
		tags["unit"] = rec.Unit
	}

	var value interface{} = rec.Value
	if f, err := strconv.ParseFloat(rec.Value, 64); err == nil {
		value = f
	}

	return write.NewPoint(
		MeasurementDeviceData,
		tags,
		map[string]interface{}{"value": value},
		rec.ReceivedTime,
	)
}
