package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the photo strip server configuration
type Config struct {
	Server     ServerConfig  `yaml:"server"`
	Camera     CameraConfig  `yaml:"camera"`
	Session    SessionConfig `yaml:"session"`
	Filter     FilterConfig  `yaml:"filter"`
	Render     RenderConfig  `yaml:"render"`
	Output     OutputConfig  `yaml:"output"`
	Fonts      FontsConfig   `yaml:"fonts"`
	Relay      RelayConfig   `yaml:"relay"`
	Logging    LoggingConfig `yaml:"logging"`
	FramesFile string        `yaml:"frames_file"` // extra or overriding frame layouts
}

type ServerConfig struct {
	HTTPPort            string   `yaml:"http_port"`
	GRPCPort            string   `yaml:"grpc_port"` // health endpoint, empty disables
	ShutdownTimeoutSec  int      `yaml:"shutdown_timeout_sec"`
	AllowedOrigins      []string `yaml:"allowed_origins"` // websocket origins, empty allows all
	KeepaliveTimeSec    int      `yaml:"keepalive_time_sec"`
	KeepaliveTimeoutSec int      `yaml:"keepalive_timeout_sec"`
}

type CameraConfig struct {
	Device     string            `yaml:"device"`      // "testpattern", "v4l2" or "mjpeg"
	FacingMode string            `yaml:"facing_mode"` // initial facing mode
	V4L2       map[string]string `yaml:"v4l2"`        // facing mode -> /dev/videoN
	MJPEG      map[string]string `yaml:"mjpeg"`       // facing mode -> stream URL
	Buffers    uint32            `yaml:"buffers"`
	TimeoutSec uint32            `yaml:"timeout_sec"`
	StaleMs    int               `yaml:"stale_ms"`
}

type SessionConfig struct {
	ReadyGraceMs     int `yaml:"ready_grace_ms"`
	CaptureDelayMs   int `yaml:"capture_delay_ms"`
	ReacquireDelayMs int `yaml:"reacquire_delay_ms"`
	TickMs           int `yaml:"tick_ms"`
	CaptureTimeoutMs int `yaml:"capture_timeout_ms"`
}

type FilterConfig struct {
	TimeoutMs      int  `yaml:"timeout_ms"`
	PollIntervalMs int  `yaml:"poll_interval_ms"`
	Serial         bool `yaml:"serial"` // run gift filters on one goroutine
}

type RenderConfig struct {
	DebounceMs    int `yaml:"debounce_ms"`
	LoaderWorkers int `yaml:"loader_workers"`
	NoticeTTLMs   int `yaml:"notice_ttl_ms"`
	StatsWindow   int `yaml:"stats_window"` // pass durations kept for /api/stats
}

type OutputConfig struct {
	JPEGQuality    int `yaml:"jpeg_quality"`    // 1-100, strip download
	CaptureQuality int `yaml:"capture_quality"` // 1-100, captured frames
}

type FontsConfig struct {
	Files map[string]string `yaml:"files"` // font id -> .ttf/.otf path
}

type RelayConfig struct {
	URL        string `yaml:"url"` // empty disables sharing and contact
	TimeoutSec int    `yaml:"timeout_sec"`
	ExpiryMin  int    `yaml:"expiry_min"`
}

type LoggingConfig struct {
	BufferedLogging bool `yaml:"buffered_logging"`
	SampleRate      int  `yaml:"sample_rate"`
	AutoFlush       bool `yaml:"auto_flush"`
	FlushIntervalMs int  `yaml:"flush_interval_ms"`
}

// Environment variables that override the file.
const (
	EnvHTTPPort = "PHOTOSTRIP_HTTP_PORT"
	EnvRelayURL = "PHOTOSTRIP_RELAY_URL"
)

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Environment variables, optionally from a .env file next to the
// config, are applied last.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	envPath := ".env"
	if path != "" {
		envPath = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	// Resolve paths relative to the config file
	if path != "" {
		base := filepath.Dir(path)
		if cfg.FramesFile != "" && !filepath.IsAbs(cfg.FramesFile) {
			cfg.FramesFile = filepath.Join(base, cfg.FramesFile)
		}
		for id, f := range cfg.Fonts.Files {
			if !filepath.IsAbs(f) {
				cfg.Fonts.Files[id] = filepath.Join(base, f)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyEnv() error {
	if v := os.Getenv(EnvHTTPPort); v != "" {
		if _, err := strconv.Atoi(strings.TrimPrefix(v, ":")); err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHTTPPort, v, err)
		}
		cfg.Server.HTTPPort = v
	}
	if v, ok := os.LookupEnv(EnvRelayURL); ok {
		cfg.Relay.URL = v
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	// Set defaults
	if cfg.Server.HTTPPort == "" {
		cfg.Server.HTTPPort = "8080"
	}
	if cfg.Server.ShutdownTimeoutSec == 0 {
		cfg.Server.ShutdownTimeoutSec = 10
	}
	if cfg.Server.KeepaliveTimeSec == 0 {
		cfg.Server.KeepaliveTimeSec = 10
	}
	if cfg.Server.KeepaliveTimeoutSec == 0 {
		cfg.Server.KeepaliveTimeoutSec = 3
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "testpattern"
	}
	if cfg.Camera.FacingMode == "" {
		cfg.Camera.FacingMode = "user"
	}
	if cfg.Camera.Buffers == 0 {
		cfg.Camera.Buffers = 4
	}
	if cfg.Camera.TimeoutSec == 0 {
		cfg.Camera.TimeoutSec = 5
	}
	if cfg.Camera.StaleMs == 0 {
		cfg.Camera.StaleMs = 2000
	}
	if cfg.Session.ReadyGraceMs == 0 {
		cfg.Session.ReadyGraceMs = 500
	}
	if cfg.Session.CaptureDelayMs == 0 {
		cfg.Session.CaptureDelayMs = 100
	}
	if cfg.Session.ReacquireDelayMs == 0 {
		cfg.Session.ReacquireDelayMs = 500
	}
	if cfg.Session.TickMs == 0 {
		cfg.Session.TickMs = 1000
	}
	if cfg.Session.CaptureTimeoutMs == 0 {
		cfg.Session.CaptureTimeoutMs = 5000
	}
	if cfg.Filter.TimeoutMs == 0 {
		cfg.Filter.TimeoutMs = 5000
	}
	if cfg.Filter.PollIntervalMs == 0 {
		cfg.Filter.PollIntervalMs = 200
	}
	if cfg.Render.DebounceMs == 0 {
		cfg.Render.DebounceMs = 16
	}
	if cfg.Render.LoaderWorkers == 0 {
		cfg.Render.LoaderWorkers = 4
	}
	if cfg.Render.NoticeTTLMs == 0 {
		cfg.Render.NoticeTTLMs = 4000
	}
	if cfg.Render.StatsWindow == 0 {
		cfg.Render.StatsWindow = 256
	}
	if cfg.Output.JPEGQuality == 0 {
		cfg.Output.JPEGQuality = 90
	}
	if cfg.Output.CaptureQuality == 0 {
		cfg.Output.CaptureQuality = 92
	}
	if cfg.Relay.TimeoutSec == 0 {
		cfg.Relay.TimeoutSec = 30
	}
	if cfg.Relay.ExpiryMin == 0 {
		cfg.Relay.ExpiryMin = 60
	}
	if cfg.Logging.SampleRate == 0 {
		cfg.Logging.SampleRate = 1
	}
	if cfg.Logging.FlushIntervalMs == 0 {
		cfg.Logging.FlushIntervalMs = 100
	}
}

// Validate rejects settings the server cannot start with.
func (cfg *Config) Validate() error {
	switch cfg.Camera.Device {
	case "testpattern", "v4l2", "mjpeg":
	default:
		return fmt.Errorf("unknown camera device %q", cfg.Camera.Device)
	}
	switch cfg.Camera.FacingMode {
	case "user", "environment":
	default:
		return fmt.Errorf("unknown facing mode %q", cfg.Camera.FacingMode)
	}
	if cfg.Output.JPEGQuality < 1 || cfg.Output.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality %d out of range 1-100", cfg.Output.JPEGQuality)
	}
	if cfg.Output.CaptureQuality < 1 || cfg.Output.CaptureQuality > 100 {
		return fmt.Errorf("capture_quality %d out of range 1-100", cfg.Output.CaptureQuality)
	}
	return nil
}

// Addr returns a listen address for a bare port or host:port.
func Addr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
