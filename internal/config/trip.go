package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultConfigPath is where the CLI looks for the trip configuration when no
// path is given.
const DefaultConfigPath = "config/carhack.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// TripConfig selects the sensors and processors a trip runs and carries their
// key/value configuration blocks.
//
//	{
//	  "sensors": {"radar": true, "synthetic": false},
//	  "processors": {"units": true, "smooth": true},
//	  "sensor_config": {"radar": {"port": "/dev/ttyUSB0"}},
//	  "processor_config": {"smooth": {"window": "5"}},
//	  "codecs": {"radar.frame": "blob-zstd"}
//	}
//
// Codecs pins the codec of individual series by name; other series get the
// codec matching their first value.
type TripConfig struct {
	Sensors         map[string]bool              `json:"sensors"`
	Processors      map[string]bool              `json:"processors"`
	SensorConfig    map[string]map[string]string `json:"sensor_config,omitempty"`
	ProcessorConfig map[string]map[string]string `json:"processor_config,omitempty"`
	Codecs          map[string]string            `json:"codecs,omitempty"`
}

// LoadTripConfig loads a TripConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTripConfig(path string) (*TripConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseTripConfig(data)
}

// ParseTripConfig decodes and validates a JSON trip configuration.
func ParseTripConfig(data []byte) (*TripConfig, error) {
	cfg := &TripConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every sensor and processor name can be used as a
// series namespace, and that no name is both a sensor and a processor.
func (c *TripConfig) Validate() error {
	for name := range c.Sensors {
		if err := validateName("sensor", name); err != nil {
			return err
		}
	}
	for name := range c.Processors {
		if err := validateName("processor", name); err != nil {
			return err
		}
		if _, ok := c.Sensors[name]; ok {
			return fmt.Errorf("%q is configured as both a sensor and a processor", name)
		}
	}
	return nil
}

func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name must not be empty", kind)
	}
	if strings.ContainsAny(name, `./\ `) {
		return fmt.Errorf("%s name %q must not contain '.', '/', '\\' or spaces", kind, name)
	}
	return nil
}

// EnabledSensors returns the enabled sensor names, sorted.
func (c *TripConfig) EnabledSensors() []string { return enabled(c.Sensors) }

// EnabledProcessors returns the enabled processor names, sorted.
func (c *TripConfig) EnabledProcessors() []string { return enabled(c.Processors) }

func enabled(m map[string]bool) []string {
	names := make([]string, 0, len(m))
	for name, on := range m {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SensorSettings returns a copy of the configuration block for a sensor. It is
// never nil.
func (c *TripConfig) SensorSettings(name string) Settings {
	return copySettings(c.SensorConfig[name])
}

// ProcessorSettings returns a copy of the configuration block for a processor.
// It is never nil.
func (c *TripConfig) ProcessorSettings(name string) Settings {
	return copySettings(c.ProcessorConfig[name])
}

// CodecOverrides returns a copy of the per-series codec names. It is never nil.
func (c *TripConfig) CodecOverrides() map[string]string {
	return copySettings(c.Codecs)
}

func copySettings(m map[string]string) Settings {
	out := make(Settings, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Settings is one key/value configuration block. The getters return def when
// the key is absent or does not parse.
type Settings map[string]string

// GetString returns the value for key or def.
func (s Settings) GetString(key, def string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return def
}

// GetInt returns the integer value for key or def.
func (s Settings) GetInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s[key]))
	if err != nil {
		return def
	}
	return v
}

// GetFloat returns the float value for key or def.
func (s Settings) GetFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s[key]), 64)
	if err != nil {
		return def
	}
	return v
}

// GetDuration returns the duration value for key (e.g. "250ms") or def.
func (s Settings) GetDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(s[key]))
	if err != nil {
		return def
	}
	return v
}

// Provider supplies the trip configuration at trip open and at recompute.
type Provider interface {
	TripConfig() (*TripConfig, error)
}

// File is a Provider that re-reads its JSON file on every call, so processor
// changes take effect on the next recompute.
type File struct {
	Path string
}

func (f File) TripConfig() (*TripConfig, error) {
	return LoadTripConfig(f.Path)
}

// Static is a Provider holding a fixed configuration. It is safe for
// concurrent use; Set replaces the configuration.
type Static struct {
	mu  sync.RWMutex
	cfg *TripConfig
}

// NewStatic returns a Provider that always returns cfg.
func NewStatic(cfg *TripConfig) *Static {
	return &Static{cfg: cfg}
}

func (s *Static) TripConfig() (*TripConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return &TripConfig{}, nil
	}
	return s.cfg, nil
}

// Set replaces the configuration returned by TripConfig.
func (s *Static) Set(cfg *TripConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
