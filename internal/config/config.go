// Package config loads the repcounter configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/repcounter/internal/rep"
)

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Counter  CounterConfig  `yaml:"counter"`
	Storage  StorageConfig  `yaml:"storage"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the HTTP listener and the web UI directory.
type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	WebDir string `yaml:"web_dir"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CameraConfig selects the capture device, frame size and sampling cadence.
type CameraConfig struct {
	Device          int     `yaml:"device"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	IdleFPS         int     `yaml:"idle_fps"`
	ActiveFPS       int     `yaml:"active_fps"`
	MotionThreshold float64 `yaml:"motion_threshold"`
}

// DetectorConfig locates and tunes the pose service.
type DetectorConfig struct {
	Model          string `yaml:"model"`
	Script         string `yaml:"script"`
	Python         string `yaml:"python"`
	IdleTimeoutSec int    `yaml:"idle_timeout_sec"`
}

// CounterConfig holds the rep thresholds and tracked arm.
type CounterConfig struct {
	DownThreshold float64 `yaml:"down_threshold"`
	UpThreshold   float64 `yaml:"up_threshold"`
	MinConfidence float64 `yaml:"min_confidence"`
	Arm           string  `yaml:"arm"`
}

// Rep converts the counter section into an engine configuration.
func (c CounterConfig) Rep() (rep.Config, error) {
	arm, err := rep.ArmBySide(c.Arm)
	if err != nil {
		return rep.Config{}, err
	}
	cfg := rep.Config{
		DownThreshold: c.DownThreshold,
		UpThreshold:   c.UpThreshold,
		MinConfidence: c.MinConfidence,
		Arm:           arm,
	}
	return cfg, cfg.Validate()
}

// StorageConfig points at the sqlite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// PluginsConfig controls plugin discovery and spoken narration.
type PluginsConfig struct {
	Dir       string `yaml:"dir"`
	Speech    string `yaml:"speech"`
	Narrate   bool   `yaml:"narrate"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// MQTTConfig configures the optional broker connection.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	TimeoutMs   int    `yaml:"timeout_ms"`
}

// Enabled reports whether a broker has been configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// LogConfig mirrors logging.SetupParams.
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	File   string `yaml:"file"`
	Stdout bool   `yaml:"stdout"`
}

// DataDir returns ~/.repcounter, or ".repcounter" when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".repcounter"
	}
	return filepath.Join(home, ".repcounter")
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	data := DataDir()
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080},
		Camera: CameraConfig{
			Width:           640,
			Height:          480,
			IdleFPS:         5,
			ActiveFPS:       10,
			MotionThreshold: 1.0,
		},
		Detector: DetectorConfig{Model: "lightning", IdleTimeoutSec: 30},
		Counter: CounterConfig{
			DownThreshold: rep.DefaultDownThreshold,
			UpThreshold:   rep.DefaultUpThreshold,
			MinConfidence: rep.DefaultMinConfidence,
			Arm:           "right",
		},
		Storage: StorageConfig{Path: filepath.Join(data, "repcounter.db")},
		Plugins: PluginsConfig{
			Dir:       filepath.Join(data, "plugins"),
			Speech:    "speech",
			Narrate:   true,
			TimeoutMs: 5000,
		},
		MQTT: MQTTConfig{
			ClientID:    "repcounter",
			TopicPrefix: "repcounter",
			TimeoutMs:   2000,
		},
		Log: LogConfig{Level: "info", Stdout: true},
	}
}

// Load reads config from a YAML file on top of the defaults, then applies
// environment variable overrides. An empty path skips the file.
// Env vars use the prefix REPCOUNT_ and underscore-separated paths:
//
//	REPCOUNT_SERVER_HOST, REPCOUNT_SERVER_PORT, REPCOUNT_SERVER_WEB_DIR,
//	REPCOUNT_CAMERA_DEVICE, REPCOUNT_DETECTOR_MODEL, REPCOUNT_DETECTOR_SCRIPT,
//	REPCOUNT_COUNTER_DOWN, REPCOUNT_COUNTER_UP, REPCOUNT_COUNTER_MIN_CONFIDENCE,
//	REPCOUNT_COUNTER_ARM, REPCOUNT_STORAGE_PATH, REPCOUNT_PLUGINS_DIR,
//	REPCOUNT_MQTT_BROKER, REPCOUNT_MQTT_TOPIC_PREFIX, REPCOUNT_LOG_LEVEL,
//	REPCOUNT_LOG_FILE, REPCOUNT_LOG_JSON
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("REPCOUNT_SERVER_HOST", &cfg.Server.Host)
	integer("REPCOUNT_SERVER_PORT", &cfg.Server.Port)
	str("REPCOUNT_SERVER_WEB_DIR", &cfg.Server.WebDir)
	integer("REPCOUNT_CAMERA_DEVICE", &cfg.Camera.Device)
	str("REPCOUNT_DETECTOR_MODEL", &cfg.Detector.Model)
	str("REPCOUNT_DETECTOR_SCRIPT", &cfg.Detector.Script)
	float("REPCOUNT_COUNTER_DOWN", &cfg.Counter.DownThreshold)
	float("REPCOUNT_COUNTER_UP", &cfg.Counter.UpThreshold)
	float("REPCOUNT_COUNTER_MIN_CONFIDENCE", &cfg.Counter.MinConfidence)
	str("REPCOUNT_COUNTER_ARM", &cfg.Counter.Arm)
	str("REPCOUNT_STORAGE_PATH", &cfg.Storage.Path)
	str("REPCOUNT_PLUGINS_DIR", &cfg.Plugins.Dir)
	str("REPCOUNT_MQTT_BROKER", &cfg.MQTT.Broker)
	str("REPCOUNT_MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)
	str("REPCOUNT_LOG_LEVEL", &cfg.Log.Level)
	str("REPCOUNT_LOG_FILE", &cfg.Log.File)
	boolean("REPCOUNT_LOG_JSON", &cfg.Log.JSON)
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Camera.Device < 0 {
		return fmt.Errorf("camera.device must not be negative")
	}
	if c.Camera.IdleFPS <= 0 || c.Camera.ActiveFPS <= 0 {
		return fmt.Errorf("camera fps values must be positive")
	}
	if c.Camera.ActiveFPS < c.Camera.IdleFPS {
		return fmt.Errorf("camera.active_fps %d is below camera.idle_fps %d", c.Camera.ActiveFPS, c.Camera.IdleFPS)
	}
	switch c.Detector.Model {
	case "lightning", "thunder":
	default:
		return fmt.Errorf("detector.model %q must be lightning or thunder", c.Detector.Model)
	}
	if _, err := c.Counter.Rep(); err != nil {
		return fmt.Errorf("counter: %w", err)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.MQTT.Enabled() {
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS)
		}
		if strings.TrimSpace(c.MQTT.TopicPrefix) == "" {
			return fmt.Errorf("mqtt.topic_prefix is required when mqtt.broker is set")
		}
	}
	return nil
}
