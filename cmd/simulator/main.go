// Argus telemetry simulator.
//
// Drives a fleet of simulated devices against a running gateway: every
// interval it posts one random reading per device with that device's
// API key. Failures are logged and the loop continues; the simulator
// never retries a reading.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/arguswatcher/argus-ingest/internal/infrastructure/config"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/logging"
)

// simDevice is one entry in the devices JSON file.
type simDevice struct {
	UUID   string `json:"device_uuid"`
	Alias  string `json:"alias"`
	APIKey string `json:"api_key"`
}

const requestTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		devicesFile = flag.String("devices", envOrDefault("DEVICES_FILE", "devices.json"), "path to devices JSON file")
		interval    = flag.Duration("interval", envSecondsOrDefault("INTERVAL", 10*time.Second), "delay between cycles")
		targetURL   = flag.String("target", envOrDefault("TARGET_URL", "http://localhost:8080/api/telemetry"), "gateway telemetry endpoint")
	)
	flag.Parse()

	log := logging.New(config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"}, "simulator")
	log.Info("starting telemetry simulator",
		"devices_file", *devicesFile,
		"interval", *interval,
		"target_url", *targetURL,
	)

	devices, err := loadDevices(*devicesFile, log)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	client := &http.Client{Timeout: requestTimeout}
	endpoint := strings.TrimRight(*targetURL, "/")

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		log.Info("sending telemetry", "devices", len(devices))

		for _, dev := range devices {
			sendReading(ctx, client, endpoint, dev, log)
		}

		log.Info("cycle complete", "elapsed", time.Since(start).Round(time.Millisecond))

		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, stopping simulator")
			return nil
		case <-ticker.C:
		}
	}
}

// loadDevices reads the devices JSON file. Malformed entries are skipped
// with a warning so one bad record cannot take the whole fleet down.
func loadDevices(path string, log *logging.Logger) ([]simDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("devices file must be a JSON array: %w", err)
	}

	devices := make([]simDevice, 0, len(raw))
	skipped := 0
	for i, item := range raw {
		var dev simDevice
		if err := json.Unmarshal(item, &dev); err != nil {
			log.Warn("skipping malformed device entry", "index", i, "error", err)
			skipped++
			continue
		}
		if dev.UUID == "" || dev.APIKey == "" {
			log.Warn("skipping device entry with missing fields", "index", i, "alias", dev.Alias)
			skipped++
			continue
		}
		devices = append(devices, dev)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no valid devices in %s", path)
	}

	log.Info("devices loaded", "valid", len(devices), "skipped", skipped)
	return devices, nil
}

// sendReading posts one random reading for a device. Fire-and-forget:
// errors are logged and the fleet loop moves on.
func sendReading(ctx context.Context, client *http.Client, endpoint string, dev simDevice, log *logging.Logger) {
	payload := map[string]any{
		"x_coord":     rand.Float64()*200 - 100,
		"y_coord":     rand.Float64()*200 - 100,
		"device_time": time.Now().UTC().Format(time.RFC3339Nano),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to encode payload", "alias", dev.Alias, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/"+dev.UUID, bytes.NewReader(body))
	if err != nil {
		log.Error("failed to build request", "alias", dev.Alias, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", dev.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		log.Error("request failed", "alias", dev.Alias, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Info("reading sent",
			"alias", dev.Alias,
			"x", payload["x_coord"],
			"y", payload["y_coord"],
			"status", resp.StatusCode,
		)
		return
	}

	log.Warn("reading rejected",
		"alias", dev.Alias,
		"status", resp.StatusCode,
		"retry_after", resp.Header.Get("Retry-After"),
	)
}

func envOrDefault(name, defaultVal string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultVal
}

// envSecondsOrDefault reads a duration in seconds from the environment,
// matching the original operator-facing convention (INTERVAL=10).
func envSecondsOrDefault(name string, defaultVal time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return defaultVal
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs * float64(time.Second))
}
