package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading mirrors one accepted telemetry reading.
//
// The point is stamped with the device's own clock (device_time), not the
// gateway's receive time, so dashboard queries line up with what the device
// reported. The write is non-blocking; data is batched and sent
// asynchronously.
func (c *Client) WriteReading(deviceUUID, alias string, x, y float64, deviceTime time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"telemetry",
		map[string]string{
			"device_uuid": deviceUUID,
			"alias":       alias,
		},
		map[string]interface{}{
			"x_coord": x,
			"y_coord": y,
		},
		deviceTime,
	)

	c.writeAPI.WritePoint(point)
}

// WriteGatewayMetric records an internal gateway counter or gauge, such as
// cache hit rates or admission rejections.
func (c *Client) WriteGatewayMetric(metric string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"gateway_metrics",
		map[string]string{
			"metric": metric,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
