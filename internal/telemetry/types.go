package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// ingestionNamespace is the UUIDv5 namespace for derived ingestion IDs.
var ingestionNamespace = uuid.MustParse("9f2c1a44-7b3e-4d8a-9c61-0e5b82c4a11d")

// Reading is one accepted telemetry sample. Immutable after creation.
type Reading struct {
	IngestionID string    `json:"ingestion_id"`
	DeviceUUID  string    `json:"device_uuid"`
	DeviceTime  time.Time `json:"device_time"`
	XCoord      float64   `json:"x_coord"`
	YCoord      float64   `json:"y_coord"`
	ReceivedAt  time.Time `json:"received_at"`
}

// IngestionID derives the idempotency key for a (device, device_time) pair.
// The same pair always yields the same ID, so a retransmitted reading maps
// to the same row it originally produced.
func IngestionID(deviceUUID string, deviceTime time.Time) string {
	name := deviceUUID + "|" + deviceTime.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(ingestionNamespace, []byte(name)).String()
}

// Payload is the raw request body for a telemetry submission. Coordinate
// fields are pointers so that absent and zero are distinguishable during
// validation.
type Payload struct {
	XCoord     *float64 `json:"x_coord"`
	YCoord     *float64 `json:"y_coord"`
	DeviceTime string   `json:"device_time"`
}
