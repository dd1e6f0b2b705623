package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arguswatcher/argus-ingest/internal/admission"
	"github.com/arguswatcher/argus-ingest/internal/auth"
	"github.com/arguswatcher/argus-ingest/internal/device"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/config"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/logging"
	"github.com/arguswatcher/argus-ingest/internal/ingest"
	"github.com/arguswatcher/argus-ingest/internal/telemetry"
)

const testAdminSecret = "test-secret-key-at-least-32-characters-long"

// testServer creates a Server backed by in-memory SQLite with a generous
// admission budget.
func testServer(t *testing.T) (*Server, device.Repository) {
	t.Helper()
	return testServerWithBudgets(t, 100, 1000)
}

func testServerWithBudgets(t *testing.T, deviceBudget, globalBudget int) (*Server, device.Repository) {
	t.Helper()

	db := setupTestDB(t)
	repo := device.NewSQLiteRepository(db)
	authenticator := device.NewAuthenticator(repo, device.NewCache(time.Minute, 100))
	store := telemetry.NewSQLiteStore(db)

	controller := admission.NewController(time.Minute, deviceBudget, globalBudget)
	validator := telemetry.NewValidator(telemetry.ValidatorConfig{
		CoordinateMin: -1000,
		CoordinateMax: 1000,
		MaxFuture:     30 * time.Second,
		MaxAge:        24 * time.Hour,
	})

	gateway := ingest.NewGateway(authenticator, controller, validator, store, ingest.Config{
		AuthTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Security: config.SecurityConfig{
			AdminJWT: config.AdminJWTConfig{Secret: testAdminSecret},
		},
		Logger:  log,
		Gateway: gateway,
		Auth:    authenticator,
		Repo:    repo,
		Store:   store,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, repo
}

// setupTestDB creates an in-memory SQLite database with the gateway schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			uuid TEXT PRIMARY KEY,
			alias TEXT NOT NULL,
			api_key_hash TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);
		CREATE TABLE telemetry_readings (
			ingestion_id TEXT PRIMARY KEY,
			device_uuid TEXT NOT NULL REFERENCES devices(uuid),
			device_time TEXT NOT NULL,
			x_coord REAL NOT NULL,
			y_coord REAL NOT NULL,
			received_at TEXT NOT NULL,
			UNIQUE (device_uuid, device_time)
		);
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// seedDevice registers a device and returns it with its plaintext API key.
func seedDevice(t *testing.T, repo device.Repository, alias string) (*device.Device, string) {
	t.Helper()

	apiKey, err := device.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	dev := &device.Device{
		UUID:       device.GenerateUUID(),
		Alias:      alias,
		APIKeyHash: device.HashAPIKey(apiKey),
	}
	if err := repo.Create(context.Background(), dev); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return dev, apiKey
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateAdminToken("test-admin", testAdminSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAdminToken: %v", err)
	}
	return token
}

func ingestBody(t *testing.T, x, y float64, deviceTime string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"x_coord":     x,
		"y_coord":     y,
		"device_time": deviceTime,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(body)
}

func postReading(router http.Handler, dev *device.Device, apiKey string, body *bytes.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/telemetry/"+dev.UUID, body)
	req.Header.Set("x-api-key", apiKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestReady(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// No database handle wired: nothing to fail, so the server is ready.
	if w.Code != http.StatusOK {
		t.Errorf("ready status = %d, want %d", w.Code, http.StatusOK)
	}
}

// ─── Ingestion Tests ───────────────────────────────────────────────

func TestIngest_Accepted(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, apiKey := seedDevice(t, repo, "probe-1")

	deviceTime := time.Now().UTC().Format(time.RFC3339Nano)
	w := postReading(router, dev, apiKey, ingestBody(t, 1.5, -2.5, deviceTime))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}

	var ack ingestAck
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ack.IngestionID == "" {
		t.Error("expected non-empty ingestion_id")
	}
	if ack.DeviceUUID != dev.UUID {
		t.Errorf("device_uuid = %q, want %q", ack.DeviceUUID, dev.UUID)
	}
	if ack.Duplicate {
		t.Error("first delivery should not be a duplicate")
	}
}

func TestIngest_DuplicateDelivery(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, apiKey := seedDevice(t, repo, "probe-1")

	deviceTime := time.Now().UTC().Format(time.RFC3339Nano)

	first := postReading(router, dev, apiKey, ingestBody(t, 1, 2, deviceTime))
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want %d", first.Code, http.StatusCreated)
	}

	second := postReading(router, dev, apiKey, ingestBody(t, 1, 2, deviceTime))
	if second.Code != http.StatusOK {
		t.Fatalf("retransmit status = %d, want %d", second.Code, http.StatusOK)
	}

	var ack ingestAck
	if err := json.Unmarshal(second.Body.Bytes(), &ack); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ack.Duplicate {
		t.Error("retransmit should be reported as duplicate")
	}

	var firstAck ingestAck
	if err := json.Unmarshal(first.Body.Bytes(), &firstAck); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ack.IngestionID != firstAck.IngestionID {
		t.Errorf("ingestion_id changed across retransmit: %q vs %q", ack.IngestionID, firstAck.IngestionID)
	}
}

func TestIngest_UnauthorizedIndistinguishable(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, _ := seedDevice(t, repo, "probe-1")

	deviceTime := time.Now().UTC().Format(time.RFC3339Nano)

	// Known device, wrong key.
	wrongKey := postReading(router, dev, "not-the-key", ingestBody(t, 1, 2, deviceTime))

	// Unknown device, any key.
	unknown := &device.Device{UUID: device.GenerateUUID()}
	unknownDev := postReading(router, unknown, "not-the-key", ingestBody(t, 1, 2, deviceTime))

	if wrongKey.Code != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d, want %d", wrongKey.Code, http.StatusUnauthorized)
	}
	if unknownDev.Code != http.StatusUnauthorized {
		t.Errorf("unknown device status = %d, want %d", unknownDev.Code, http.StatusUnauthorized)
	}

	// The two rejections must be byte-identical so a caller cannot probe
	// which UUIDs are registered.
	if wrongKey.Body.String() != unknownDev.Body.String() {
		t.Errorf("rejection bodies differ:\n%s\nvs\n%s", wrongKey.Body.String(), unknownDev.Body.String())
	}
}

func TestIngest_RateLimited(t *testing.T) {
	srv, repo := testServerWithBudgets(t, 1, 1000)
	router := srv.buildRouter()
	dev, apiKey := seedDevice(t, repo, "probe-1")

	now := time.Now().UTC()

	first := postReading(router, dev, apiKey, ingestBody(t, 1, 2, now.Format(time.RFC3339Nano)))
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want %d", first.Code, http.StatusCreated)
	}

	second := postReading(router, dev, apiKey, ingestBody(t, 3, 4, now.Add(time.Second).Format(time.RFC3339Nano)))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on rate-limited response")
	}
}

func TestIngest_InvalidPayload(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, apiKey := seedDevice(t, repo, "probe-1")

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"x_coord": 1,`},
		{"missing y_coord", fmt.Sprintf(`{"x_coord": 1, "device_time": %q}`, time.Now().UTC().Format(time.RFC3339Nano))},
		{"bad timestamp", `{"x_coord": 1, "y_coord": 2, "device_time": "yesterday"}`},
		{"out of range", fmt.Sprintf(`{"x_coord": 1e9, "y_coord": 2, "device_time": %q}`, time.Now().UTC().Format(time.RFC3339Nano))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/telemetry/"+dev.UUID, bytes.NewReader([]byte(tt.body)))
			req.Header.Set("x-api-key", apiKey)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestLatestReading(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, apiKey := seedDevice(t, repo, "probe-1")

	base := time.Now().UTC().Add(-time.Minute)
	for i := range 3 {
		deviceTime := base.Add(time.Duration(i) * time.Second).Format(time.RFC3339Nano)
		w := postReading(router, dev, apiKey, ingestBody(t, float64(i), float64(i), deviceTime))
		if w.Code != http.StatusCreated {
			t.Fatalf("seed reading %d: status = %d", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/telemetry/latest/"+dev.UUID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var reading telemetry.Reading
	if err := json.Unmarshal(w.Body.Bytes(), &reading); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if reading.XCoord != 2 {
		t.Errorf("latest x_coord = %v, want 2", reading.XCoord)
	}
}

func TestLatestReading_NoReadings(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, _ := seedDevice(t, repo, "probe-1")

	req := httptest.NewRequest(http.MethodGet, "/api/telemetry/latest/"+dev.UUID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Admin Registry Tests ──────────────────────────────────────────

func TestAdminRoutes_RequireToken(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"malformed token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/devices", bytes.NewReader([]byte(`{"alias":"x"}`)))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestCreateDevice(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	token := adminToken(t)

	req := httptest.NewRequest(http.MethodPost, "/api/devices", bytes.NewReader([]byte(`{"alias":"new-probe"}`)))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp createDeviceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.APIKey == "" {
		t.Error("expected plaintext API key in creation response")
	}
	if resp.Device == nil || resp.Device.Alias != "new-probe" {
		t.Fatalf("unexpected device in response: %+v", resp.Device)
	}

	// The issued key must authenticate immediately.
	deviceTime := time.Now().UTC().Format(time.RFC3339Nano)
	ingestResp := postReading(router, resp.Device, resp.APIKey, ingestBody(t, 1, 2, deviceTime))
	if ingestResp.Code != http.StatusCreated {
		t.Errorf("ingest with issued key: status = %d, want %d", ingestResp.Code, http.StatusCreated)
	}
}

func TestCreateDevice_DuplicateUUID(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, _ := seedDevice(t, repo, "probe-1")
	token := adminToken(t)

	body := fmt.Sprintf(`{"uuid": %q, "alias": "clone"}`, dev.UUID)
	req := httptest.NewRequest(http.MethodPost, "/api/devices", bytes.NewReader([]byte(body)))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestUpdateDevice_RotateKey(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, oldKey := seedDevice(t, repo, "probe-1")
	token := adminToken(t)

	// Warm the cache with the old credentials.
	deviceTime := time.Now().UTC().Format(time.RFC3339Nano)
	if w := postReading(router, dev, oldKey, ingestBody(t, 1, 2, deviceTime)); w.Code != http.StatusCreated {
		t.Fatalf("warm-up ingest: status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/devices/"+dev.UUID, bytes.NewReader([]byte(`{"rotate_key": true}`)))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}

	var resp updateDeviceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.APIKey == "" || resp.APIKey == oldKey {
		t.Fatal("expected a fresh API key after rotation")
	}
	if resp.Device.Version != dev.Version+1 {
		t.Errorf("version = %d, want %d", resp.Device.Version, dev.Version+1)
	}

	// Rotation must take effect immediately: the cache entry was evicted.
	later := time.Now().UTC().Format(time.RFC3339Nano)
	if w := postReading(router, dev, oldKey, ingestBody(t, 3, 4, later)); w.Code != http.StatusUnauthorized {
		t.Errorf("old key after rotation: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := postReading(router, dev, resp.APIKey, ingestBody(t, 3, 4, later)); w.Code != http.StatusCreated {
		t.Errorf("new key after rotation: status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestDeleteDevice(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, apiKey := seedDevice(t, repo, "probe-1")
	token := adminToken(t)

	// Warm the cache so deletion has to evict it.
	deviceTime := time.Now().UTC().Format(time.RFC3339Nano)
	if w := postReading(router, dev, apiKey, ingestBody(t, 1, 2, deviceTime)); w.Code != http.StatusCreated {
		t.Fatalf("warm-up ingest: status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/devices/"+dev.UUID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	later := time.Now().UTC().Format(time.RFC3339Nano)
	if w := postReading(router, dev, apiKey, ingestBody(t, 3, 4, later)); w.Code != http.StatusUnauthorized {
		t.Errorf("ingest after deletion: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestListDevices_ExcludesDeleted(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	keep, _ := seedDevice(t, repo, "keep")
	gone, _ := seedDevice(t, repo, "gone")

	if err := repo.Delete(context.Background(), gone.UUID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Devices[0].UUID != keep.UUID {
		t.Errorf("listed device = %q, want %q", resp.Devices[0].UUID, keep.UUID)
	}
}

func TestInvalidateDevice(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, _ := seedDevice(t, repo, "probe-1")
	token := adminToken(t)

	req := httptest.NewRequest(http.MethodPost, "/api/devices/"+dev.UUID+"/invalidate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestBodySizeLimit(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	dev, apiKey := seedDevice(t, repo, "probe-1")

	oversized := bytes.NewReader(bytes.Repeat([]byte("a"), maxRequestBodySize+1))
	req := httptest.NewRequest(http.MethodPost, "/api/telemetry/"+dev.UUID, oversized)
	req.Header.Set("x-api-key", apiKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
