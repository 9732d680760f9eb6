package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/repcounter/internal/rep"
)

const validYAML = `
server:
  host: "0.0.0.0"
  port: 9090
camera:
  device: 1
  idle_fps: 5
  active_fps: 10
counter:
  down_threshold: 95
  up_threshold: 155
  min_confidence: 0.4
  arm: left
storage:
  path: "/tmp/reps.db"
mqtt:
  broker: "tcp://localhost:1883"
  topic_prefix: "gym/pushups"
log:
  level: debug
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:9090" {
		t.Errorf("server addr = %q, want 0.0.0.0:9090", cfg.Server.Addr())
	}
	if cfg.Camera.Device != 1 {
		t.Errorf("camera.device = %d, want 1", cfg.Camera.Device)
	}
	if cfg.Counter.DownThreshold != 95 || cfg.Counter.UpThreshold != 155 {
		t.Errorf("counter thresholds = %v/%v, want 95/155", cfg.Counter.DownThreshold, cfg.Counter.UpThreshold)
	}
	if cfg.Storage.Path != "/tmp/reps.db" {
		t.Errorf("storage.path = %q", cfg.Storage.Path)
	}
	if !cfg.MQTT.Enabled() || cfg.MQTT.TopicPrefix != "gym/pushups" {
		t.Errorf("unexpected mqtt config %+v", cfg.MQTT)
	}
	// Fields absent from the file keep their defaults
	if cfg.Detector.Model != "lightning" {
		t.Errorf("detector.model = %q, want lightning", cfg.Detector.Model)
	}
	if cfg.Camera.Width != 640 {
		t.Errorf("camera.width = %d, want 640", cfg.Camera.Width)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	counter, err := cfg.Counter.Rep()
	if err != nil {
		t.Fatalf("Counter.Rep() error = %v", err)
	}
	if counter != rep.DefaultConfig() {
		t.Errorf("default counter = %+v, want %+v", counter, rep.DefaultConfig())
	}
	if cfg.MQTT.Enabled() {
		t.Error("mqtt should be disabled by default")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("REPCOUNT_SERVER_PORT", "7000")
	t.Setenv("REPCOUNT_COUNTER_DOWN", "80")
	t.Setenv("REPCOUNT_COUNTER_ARM", "right")
	t.Setenv("REPCOUNT_LOG_JSON", "true")
	t.Setenv("REPCOUNT_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("server.port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Counter.DownThreshold != 80 {
		t.Errorf("counter.down_threshold = %v, want 80", cfg.Counter.DownThreshold)
	}
	if cfg.Counter.Arm != "right" {
		t.Errorf("counter.arm = %q, want right", cfg.Counter.Arm)
	}
	if !cfg.Log.JSON {
		t.Error("log.json should be true")
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("mqtt.broker = %q", cfg.MQTT.Broker)
	}
	// Unchanged fields keep YAML values
	if cfg.Counter.UpThreshold != 155 {
		t.Errorf("counter.up_threshold = %v, want 155", cfg.Counter.UpThreshold)
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("REPCOUNT_SERVER_PORT", "not-a-port")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "thresholds inverted", yaml: "counter:\n  down_threshold: 170\n  up_threshold: 90\n"},
		{name: "unknown arm", yaml: "counter:\n  arm: both\n"},
		{name: "confidence above one", yaml: "counter:\n  min_confidence: 1.5\n"},
		{name: "bad port", yaml: "server:\n  port: 70000\n"},
		{name: "active below idle", yaml: "camera:\n  idle_fps: 10\n  active_fps: 5\n"},
		{name: "unknown model", yaml: "detector:\n  model: heavy\n"},
		{name: "empty storage", yaml: "storage:\n  path: \"\"\n"},
		{name: "bad qos", yaml: "mqtt:\n  broker: tcp://x:1883\n  qos: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, tt.yaml)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidationWrapsCounterError(t *testing.T) {
	_, err := Load(writeTemp(t, "counter:\n  down_threshold: 170\n"))
	if !errors.Is(err, rep.ErrInvalidConfig) {
		t.Errorf("expected rep.ErrInvalidConfig in chain, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformed(t *testing.T) {
	if _, err := Load(writeTemp(t, "server: [")); err == nil {
		t.Fatal("expected parse error")
	}
}
