package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/globe-radio/internal/encoder"
	"github.com/shaunagostinho/globe-radio/internal/grid"
	"github.com/shaunagostinho/globe-radio/internal/index"
	"github.com/shaunagostinho/globe-radio/internal/logger"
	"github.com/shaunagostinho/globe-radio/internal/player"
	"github.com/shaunagostinho/globe-radio/internal/tuner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds all globe configuration.
type Config struct {
	mu sync.RWMutex

	// Encoder hardware
	Encoder EncoderConfig `yaml:"encoder" json:"encoder"`

	// Search and latch behaviour
	Tuning TuningConfig `yaml:"tuning" json:"tuning"`

	// Station catalog and derived files
	Data DataConfig `yaml:"data" json:"data"`

	// Audio backend
	Player PlayerConfig `yaml:"player" json:"player"`

	// Logging
	Logging logger.Config `yaml:"logging" json:"logging"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

type EncoderConfig struct {
	Type           string               `yaml:"type" json:"type"` // "spi", "serial" or "demo"
	SPI            encoder.SPIConfig    `yaml:"spi" json:"spi"`
	Serial         encoder.SerialConfig `yaml:"serial" json:"serial"`
	PollMs         int                  `yaml:"poll_ms" json:"pollMs"`
	ReadTimeoutMs  int                  `yaml:"read_timeout_ms" json:"readTimeoutMs"`
	ReconnectAfter int                  `yaml:"reconnect_after" json:"reconnectAfter"` // consecutive failed reads
}

type TuningConfig struct {
	Resolution     int `yaml:"resolution" json:"resolution"`
	Fuzziness      int `yaml:"fuzziness" json:"fuzziness"`   // search radius, 1 = the cell itself
	Stickiness     int `yaml:"stickiness" json:"stickiness"` // cells the pointer may wander while latched
	StartupDelayMs int `yaml:"startup_delay_ms" json:"startupDelayMs"`
}

// DataConfig names the files under Dir. Absolute names are used as given.
type DataConfig struct {
	Dir         string `yaml:"dir" json:"dir"`
	Stations    string `yaml:"stations" json:"stations"`
	Index       string `yaml:"index" json:"index"`
	Checksums   string `yaml:"checksums" json:"checksums"`
	Calibration string `yaml:"calibration" json:"calibration"`
}

type PlayerConfig struct {
	Type string            `yaml:"type" json:"type"` // "log" or "mqtt"
	MQTT player.MQTTConfig `yaml:"mqtt" json:"mqtt"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr" json:"listenAddr"`
	BroadcastHz int    `yaml:"broadcast_hz" json:"broadcastHz"`
}

// DefaultConfigPath is used when no config file is named.
const DefaultConfigPath = "/etc/globe-radio/config.yaml"

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Encoder: EncoderConfig{
			Type: "demo",
			SPI: encoder.SPIConfig{
				LatDevice: "/dev/spidev0.0",
				LonDevice: "/dev/spidev0.1",
				SpeedHz:   5000,
			},
			Serial: encoder.SerialConfig{
				PortPath: "/dev/ttyACM0",
				BaudRate: 115200,
			},
			PollMs:         200,
			ReadTimeoutMs:  150,
			ReconnectAfter: 25,
		},
		Tuning: TuningConfig{
			Resolution:     int(grid.DefaultResolution),
			Fuzziness:      2,
			Stickiness:     3,
			StartupDelayMs: 0,
		},
		Data: DataConfig{
			Dir:         "data",
			Stations:    "stations.json",
			Index:       "map.dat",
			Checksums:   "checksums.json",
			Calibration: "offsets.json",
		},
		Player: PlayerConfig{
			Type: "log",
			MQTT: player.MQTTConfig{
				Broker: "tcp://localhost:1883",
				Topic:  "globeradio/player",
			},
		},
		Logging: logger.Config{
			Enabled:    false,
			Path:       "/var/log/globe-radio",
			IntervalMs: 200,
		},
		Server: ServerConfig{
			ListenAddr:  ":8080",
			BroadcastHz: 5,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	if path == "" {
		path = DefaultConfigPath
	}
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		// Strip surrounding quotes
		val = strings.Trim(val, `"'`)
		// Only set if not already set in real env (real env takes precedence)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: ENCODER_TYPE, ENCODER_PORT, ENCODER_BAUD, POLL_MS, RESOLUTION,
// FUZZINESS, STICKINESS, DATA_DIR, STATIONS_JSON, PLAYER_TYPE, MQTT_BROKER,
// MQTT_TOPIC, LISTEN_ADDR, LOG_ENABLED, LOG_PATH, LOG_INTERVAL_MS
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ENCODER_TYPE"); v != "" {
		c.Encoder.Type = v
	}
	if v := os.Getenv("ENCODER_PORT"); v != "" {
		c.Encoder.Serial.PortPath = v
	}
	if v := os.Getenv("ENCODER_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Encoder.Serial.BaudRate = n
		}
	}
	if v := os.Getenv("POLL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Encoder.PollMs = n
		}
	}
	if v := os.Getenv("RESOLUTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tuning.Resolution = n
		}
	}
	if v := os.Getenv("FUZZINESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tuning.Fuzziness = n
		}
	}
	if v := os.Getenv("STICKINESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tuning.Stickiness = n
		}
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("STATIONS_JSON"); v != "" {
		c.Data.Stations = v
	}
	if v := os.Getenv("PLAYER_TYPE"); v != "" {
		c.Player.Type = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Player.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_TOPIC"); v != "" {
		c.Player.MQTT.Topic = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	// Logging
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("LOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Logging.IntervalMs = n
		}
	}
}

// Validate checks the settings the core refuses to run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateLocked()
}

func (c *Config) validateLocked() error {
	if err := grid.Resolution(c.Tuning.Resolution).Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Tuning.Fuzziness < 1 {
		return fmt.Errorf("config: %w: fuzziness %d must be at least 1", grid.ErrInvalidConfig, c.Tuning.Fuzziness)
	}
	if c.Tuning.Stickiness < 1 {
		return fmt.Errorf("config: %w: stickiness %d must be at least 1", grid.ErrInvalidConfig, c.Tuning.Stickiness)
	}
	switch c.Encoder.Type {
	case "spi", "serial", "demo":
	default:
		return fmt.Errorf("config: %w: unknown encoder type %q", grid.ErrInvalidConfig, c.Encoder.Type)
	}
	switch c.Player.Type {
	case "log", "mqtt":
	default:
		return fmt.Errorf("config: %w: unknown player type %q", grid.ErrInvalidConfig, c.Player.Type)
	}
	return nil
}

// Resolution returns the configured grid size.
func (c *Config) Resolution() grid.Resolution {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return grid.Resolution(c.Tuning.Resolution)
}

// TunerConfig returns the tuner settings.
func (c *Config) TunerConfig() tuner.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return tuner.Config{
		Fuzziness:    c.Tuning.Fuzziness,
		Stickiness:   c.Tuning.Stickiness,
		StartupDelay: time.Duration(c.Tuning.StartupDelayMs) * time.Millisecond,
	}
}

// SamplerConfig returns the encoder polling settings.
func (c *Config) SamplerConfig() tuner.SamplerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return tuner.SamplerConfig{
		Poll:           time.Duration(c.Encoder.PollMs) * time.Millisecond,
		ReadTimeout:    time.Duration(c.Encoder.ReadTimeoutMs) * time.Millisecond,
		ReconnectAfter: c.Encoder.ReconnectAfter,
	}
}

// StationsPath is the catalog file.
func (c *Config) StationsPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return dataPath(c.Data.Dir, c.Data.Stations)
}

// CalibrationPath is the offsets file.
func (c *Config) CalibrationPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return dataPath(c.Data.Dir, c.Data.Calibration)
}

// IndexPaths locates the persisted index and its checksum sidecar.
func (c *Config) IndexPaths() index.Paths {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return index.Paths{
		Index:     dataPath(c.Data.Dir, c.Data.Index),
		Checksums: dataPath(c.Data.Dir, c.Data.Checksums),
	}
}

func dataPath(dir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.path
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved. An update that fails validation leaves the
// config untouched.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current config to a generic map
	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	// Unmarshal incoming partial update to a map
	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	// Deep merge patch into base
	deepMerge(base, patch)

	// Marshal merged result and decode into a scratch copy first
	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	next := DefaultConfig()
	if err := json.Unmarshal(merged, next); err != nil {
		return fmt.Errorf("unmarshal merged config: %w", err)
	}
	if err := next.validateLocked(); err != nil {
		return err
	}

	c.Encoder = next.Encoder
	c.Tuning = next.Tuning
	c.Data = next.Data
	c.Player = next.Player
	c.Logging = next.Logging
	c.Server = next.Server
	return nil
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
