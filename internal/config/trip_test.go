package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadTripConfig(t *testing.T) {
	path := writeConfig(t, "trip.json", `{
  "sensors": {"radar": true, "synthetic": false},
  "processors": {"units": true, "smooth": true, "peak": false},
  "sensor_config": {"radar": {"port": "/dev/ttyUSB0", "baud_rate": "19200"}},
  "processor_config": {"smooth": {"window": "5"}}
}`)

	cfg, err := LoadTripConfig(path)
	if err != nil {
		t.Fatalf("LoadTripConfig failed: %v", err)
	}

	if got := cfg.EnabledSensors(); !reflect.DeepEqual(got, []string{"radar"}) {
		t.Errorf("EnabledSensors() = %v", got)
	}
	if got := cfg.EnabledProcessors(); !reflect.DeepEqual(got, []string{"smooth", "units"}) {
		t.Errorf("EnabledProcessors() = %v", got)
	}
	radar := cfg.SensorSettings("radar")
	if radar.GetString("port", "") != "/dev/ttyUSB0" {
		t.Errorf("port = %q", radar.GetString("port", ""))
	}
	if radar.GetInt("baud_rate", 0) != 19200 {
		t.Errorf("baud_rate = %d", radar.GetInt("baud_rate", 0))
	}
	if cfg.ProcessorSettings("smooth").GetInt("window", 0) != 5 {
		t.Errorf("window = %d", cfg.ProcessorSettings("smooth").GetInt("window", 0))
	}
}

func TestCodecOverrides(t *testing.T) {
	cfg, err := ParseTripConfig([]byte(`{
  "sensors": {"radar": true},
  "codecs": {"radar.frame": "blob-zstd"}
}`))
	if err != nil {
		t.Fatalf("ParseTripConfig failed: %v", err)
	}
	codecs := cfg.CodecOverrides()
	if !reflect.DeepEqual(codecs, map[string]string{"radar.frame": "blob-zstd"}) {
		t.Errorf("CodecOverrides() = %v", codecs)
	}
	codecs["radar.frame"] = "blob-lz4"
	if cfg.Codecs["radar.frame"] != "blob-zstd" {
		t.Error("CodecOverrides returned the config's own map")
	}
	if got := (&TripConfig{}).CodecOverrides(); got == nil {
		t.Error("CodecOverrides() of an empty config is nil")
	}
}

func TestLoadTripConfigRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "trip.yaml", `{}`, ".json extension"},
		{"syntax", "trip.json", `{"sensors":`, "failed to parse config JSON"},
		{"dotted name", "trip.json", `{"sensors": {"engine.rpm": true}}`, "must not contain"},
		{"empty name", "trip.json", `{"processors": {"": true}}`, "must not be empty"},
		{"overlap", "trip.json", `{"sensors": {"radar": true}, "processors": {"radar": false}}`, "both a sensor and a processor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTripConfig(writeConfig(t, tt.file, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := LoadTripConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadTripConfigTooLarge(t *testing.T) {
	body := `{"sensors": {}, "pad": "` + strings.Repeat("x", maxFileSize) + `"}`
	_, err := LoadTripConfig(writeConfig(t, "big.json", body))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("error = %v, want too large", err)
	}
}

func TestSettingsAreCopies(t *testing.T) {
	cfg := &TripConfig{SensorConfig: map[string]map[string]string{"radar": {"port": "a"}}}
	s := cfg.SensorSettings("radar")
	s["port"] = "b"
	if cfg.SensorConfig["radar"]["port"] != "a" {
		t.Error("SensorSettings returned the underlying map")
	}
	if cfg.SensorSettings("missing") == nil {
		t.Error("SensorSettings returned nil for a missing block")
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{"interval": "250ms", "amplitude": "3.5", "window": "x", "empty": ""}

	if got := s.GetDuration("interval", time.Second); got != 250*time.Millisecond {
		t.Errorf("GetDuration = %v", got)
	}
	if got := s.GetDuration("missing", time.Second); got != time.Second {
		t.Errorf("GetDuration default = %v", got)
	}
	if got := s.GetFloat("amplitude", 1); got != 3.5 {
		t.Errorf("GetFloat = %v", got)
	}
	if got := s.GetInt("window", 4); got != 4 {
		t.Errorf("GetInt on bad value = %v, want default", got)
	}
	if got := s.GetString("empty", "dflt"); got != "dflt" {
		t.Errorf("GetString on empty value = %q", got)
	}
}

func TestFileProviderRereads(t *testing.T) {
	path := writeConfig(t, "trip.json", `{"processors": {"units": true}}`)
	p := File{Path: path}

	cfg, err := p.TripConfig()
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.EnabledProcessors(); !reflect.DeepEqual(got, []string{"units"}) {
		t.Fatalf("EnabledProcessors() = %v", got)
	}

	if err := os.WriteFile(path, []byte(`{"processors": {"units": false, "peak": true}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = p.TripConfig()
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.EnabledProcessors(); !reflect.DeepEqual(got, []string{"peak"}) {
		t.Errorf("EnabledProcessors() after edit = %v", got)
	}
}

func TestStaticProvider(t *testing.T) {
	var p Provider = NewStatic(nil)
	cfg, err := p.TripConfig()
	if err != nil || cfg == nil {
		t.Fatalf("TripConfig() = %v, %v", cfg, err)
	}
	if len(cfg.EnabledSensors()) != 0 {
		t.Errorf("expected no sensors, got %v", cfg.EnabledSensors())
	}

	s := p.(*Static)
	s.Set(&TripConfig{Sensors: map[string]bool{"engine": true}})
	cfg, _ = p.TripConfig()
	if got := cfg.EnabledSensors(); !reflect.DeepEqual(got, []string{"engine"}) {
		t.Errorf("EnabledSensors() after Set = %v", got)
	}
}
