package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/arguswatcher/argus-ingest/internal/admission"
	"github.com/arguswatcher/argus-ingest/internal/device"
	"github.com/arguswatcher/argus-ingest/internal/telemetry"
)

// mockAuth authenticates a single known device.
type mockAuth struct {
	dev         *device.Device
	key         string
	unavailable bool
}

func (m *mockAuth) Authenticate(_ context.Context, uuid, apiKey string) (*device.Device, error) {
	if m.unavailable {
		return nil, fmt.Errorf("%w: dial tcp: connection refused", device.ErrRegistryUnavailable)
	}
	if m.dev == nil || uuid != m.dev.UUID {
		return nil, device.ErrDeviceNotFound
	}
	if apiKey != m.key {
		return nil, device.ErrBadCredentials
	}
	return m.dev.DeepCopy(), nil
}

// mockAdmitter returns a canned decision.
type mockAdmitter struct {
	decision admission.Decision
	calls    int
}

func (m *mockAdmitter) Admit(string) admission.Decision {
	m.calls++
	return m.decision
}

// mockStore records writes and returns a canned outcome.
type mockStore struct {
	outcome     telemetry.WriteOutcome
	err         error
	writes      []*telemetry.Reading
	writeCtxErr error
}

func (m *mockStore) Write(ctx context.Context, r *telemetry.Reading) (telemetry.WriteOutcome, error) {
	m.writeCtxErr = ctx.Err()
	m.writes = append(m.writes, r)
	return m.outcome, m.err
}

func (m *mockStore) LatestForDevice(context.Context, string) (*telemetry.Reading, error) {
	return nil, telemetry.ErrNoReadings
}

// recordingObserver collects accepted readings.
type recordingObserver struct {
	accepted []*telemetry.Reading
}

func (o *recordingObserver) ReadingAccepted(r *telemetry.Reading, _ string) {
	o.accepted = append(o.accepted, r)
}

func newTestGateway(auth *mockAuth, admitter *mockAdmitter, store *mockStore) *Gateway {
	validator := telemetry.NewValidator(telemetry.ValidatorConfig{
		CoordinateMin: -100,
		CoordinateMax: 100,
		MaxFuture:     30 * time.Second,
		MaxAge:        24 * time.Hour,
	})
	return NewGateway(auth, admitter, validator, store, Config{
		AuthTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func validPayload() telemetry.Payload {
	x, y := 10.0, -20.0
	return telemetry.Payload{
		XCoord:     &x,
		YCoord:     &y,
		DeviceTime: time.Now().UTC().Format(time.RFC3339),
	}
}

func testDev() (*device.Device, string) {
	key := "abcdef0123456789"
	return &device.Device{
		UUID:       "3f8a9c12-5b6d-4e7f-8a90-1b2c3d4e5f60",
		Alias:      "rover-alpha",
		APIKeyHash: device.HashAPIKey(key),
		Version:    1,
	}, key
}

func TestGateway_AcceptsValidSubmission(t *testing.T) {
	dev, key := testDev()
	auth := &mockAuth{dev: dev, key: key}
	admitter := &mockAdmitter{decision: admission.Decision{Allowed: true}}
	store := &mockStore{outcome: telemetry.Written}
	obs := &recordingObserver{}

	g := newTestGateway(auth, admitter, store)
	g.AddObserver(obs)

	res := g.Ingest(context.Background(), dev.UUID, key, validPayload())
	if res.Status != StatusAccepted {
		t.Fatalf("Status = %v, want StatusAccepted", res.Status)
	}
	if res.Alias != "rover-alpha" {
		t.Errorf("Alias = %q, want rover-alpha", res.Alias)
	}
	if res.Duplicate {
		t.Error("Duplicate = true for first write")
	}
	if len(store.writes) != 1 {
		t.Fatalf("store writes = %d, want 1", len(store.writes))
	}
	if len(obs.accepted) != 1 {
		t.Errorf("observer notifications = %d, want 1", len(obs.accepted))
	}
}

func TestGateway_DuplicateIsAcceptedWithoutNotify(t *testing.T) {
	dev, key := testDev()
	auth := &mockAuth{dev: dev, key: key}
	admitter := &mockAdmitter{decision: admission.Decision{Allowed: true}}
	store := &mockStore{outcome: telemetry.Duplicate}
	obs := &recordingObserver{}

	g := newTestGateway(auth, admitter, store)
	g.AddObserver(obs)

	res := g.Ingest(context.Background(), dev.UUID, key, validPayload())
	if res.Status != StatusAccepted {
		t.Fatalf("Status = %v, want StatusAccepted", res.Status)
	}
	if !res.Duplicate {
		t.Error("Duplicate = false for replayed reading")
	}
	if len(obs.accepted) != 0 {
		t.Errorf("observer notified %d times for duplicate, want 0", len(obs.accepted))
	}
}

func TestGateway_UnknownDeviceAndBadKeyIndistinguishable(t *testing.T) {
	dev, key := testDev()
	auth := &mockAuth{dev: dev, key: key}
	admitter := &mockAdmitter{decision: admission.Decision{Allowed: true}}
	store := &mockStore{outcome: telemetry.Written}
	g := newTestGateway(auth, admitter, store)

	unknown := g.Ingest(context.Background(), "00000000-0000-0000-0000-000000000000", key, validPayload())
	badKey := g.Ingest(context.Background(), dev.UUID, "wrong", validPayload())

	if unknown.Status != StatusUnauthenticated || badKey.Status != StatusUnauthenticated {
		t.Fatalf("statuses = %v / %v, want both StatusUnauthenticated", unknown.Status, badKey.Status)
	}
	if unknown.Reason != badKey.Reason {
		t.Errorf("reasons differ: %q vs %q; unknown device must not be distinguishable", unknown.Reason, badKey.Reason)
	}
	if len(store.writes) != 0 {
		t.Errorf("store writes = %d for unauthenticated traffic, want 0", len(store.writes))
	}
}

func TestGateway_UnauthenticatedSkipsAdmission(t *testing.T) {
	dev, key := testDev()
	auth := &mockAuth{dev: dev, key: key}
	admitter := &mockAdmitter{decision: admission.Decision{Allowed: true}}
	g := newTestGateway(auth, admitter, &mockStore{outcome: telemetry.Written})

	g.Ingest(context.Background(), dev.UUID, "wrong", validPayload())
	if admitter.calls != 0 {
		t.Errorf("admission consulted %d times for unauthenticated request, want 0", admitter.calls)
	}
}

func TestGateway_RateLimited(t *testing.T) {
	dev, key := testDev()
	auth := &mockAuth{dev: dev, key: key}
	admitter := &mockAdmitter{decision: admission.Decision{
		Allowed:    false,
		RetryAfter: 7 * time.Second,
		Scope:      admission.ScopeDevice,
	}}
	store := &mockStore{outcome: telemetry.Written}
	g := newTestGateway(auth, admitter, store)

	res := g.Ingest(context.Background(), dev.UUID, key, validPayload())
	if res.Status != StatusRateLimited {
		t.Fatalf("Status = %v, want StatusRateLimited", res.Status)
	}
	if res.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", res.RetryAfter)
	}
	if len(store.writes) != 0 {
		t.Errorf("store writes = %d for rate-limited request, want 0", len(store.writes))
	}
}

func TestGateway_InvalidPayload(t *testing.T) {
	dev, key := testDev()
	auth := &mockAuth{dev: dev, key: key}
	admitter := &mockAdmitter{decision: admission.Decision{Allowed: true}}
	store := &mockStore{outcome: telemetry.Written}
	g := newTestGateway(auth, admitter, store)

	x := 150.0
	y := 0.0
	payload := telemetry.Payload{XCoord: &x, YCoord: &y, DeviceTime: time.Now().UTC().Format(time.RFC3339)}

	res := g.Ingest(context.Background(), dev.UUID, key, payload)
	if res.Status != StatusInvalidPayload {
		t.Fatalf("Status = %v, want StatusInvalidPayload", res.Status)
	}
	if res.Reason == "" {
		t.Error("Reason empty, want validation detail")
	}
	if len(store.writes) != 0 {
		t.Errorf("store writes = %d for invalid payload, want 0", len(store.writes))
	}
}

func TestGateway_StoreFailure(t *testing.T) {
	dev, key := testDev()
	auth := &mockAuth{dev: dev, key: key}
	admitter := &mockAdmitter{decision: admission.Decision{Allowed: true}}
	store := &mockStore{outcome: telemetry.Failed, err: errors.New("disk I/O error")}
	g := newTestGateway(auth, admitter, store)

	res := g.Ingest(context.Background(), dev.UUID, key, validPayload())
	if res.Status != StatusUnavailable {
		t.Fatalf("Status = %v, want StatusUnavailable", res.Status)
	}
	if res.Err == nil {
		t.Error("Err not carried for unavailable store")
	}
}

func TestGateway_RegistryOutage(t *testing.T) {
	auth := &mockAuth{unavailable: true}
	admitter := &mockAdmitter{decision: admission.Decision{Allowed: true}}
	g := newTestGateway(auth, admitter, &mockStore{outcome: telemetry.Written})

	res := g.Ingest(context.Background(), "3f8a9c12-5b6d-4e7f-8a90-1b2c3d4e5f60", "any", validPayload())
	if res.Status != StatusUnavailable {
		t.Fatalf("Status = %v, want StatusUnavailable", res.Status)
	}
}

func TestGateway_WriteSurvivesClientDisconnect(t *testing.T) {
	dev, key := testDev()
	auth := &mockAuth{dev: dev, key: key}
	admitter := &mockAdmitter{decision: admission.Decision{Allowed: true}}
	store := &mockStore{outcome: telemetry.Written}
	g := newTestGateway(auth, admitter, store)

	// Cancel the request context before ingesting; the write stage must
	// still receive a live context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := g.Ingest(ctx, dev.UUID, key, validPayload())
	if res.Status != StatusAccepted {
		t.Fatalf("Status = %v, want StatusAccepted", res.Status)
	}
	if store.writeCtxErr != nil {
		t.Errorf("write context error = %v, want nil despite cancelled parent", store.writeCtxErr)
	}
}
