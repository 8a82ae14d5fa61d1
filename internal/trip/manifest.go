package trip

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ConfigName is the manifest file name inside a trip directory.
const ConfigName = "LOG_CONFIG"

// Series classifications, also the subdirectory each kind is stored in.
const (
	Primary   = "primary"
	Secondary = "secondary"
)

// SeriesEntry describes one persisted series.
type SeriesEntry struct {
	LoggerName string   `json:"logger_name"`
	Fname      string   `json:"fname"`
	Files      []string `json:"files"`
	SeriesType string   `json:"series_type"`
}

// files returns the backing files of the series. Manifests written without a
// files list fall back to fname.
func (e SeriesEntry) files() []string {
	if len(e.Files) > 0 {
		return e.Files
	}
	if e.Fname != "" {
		return []string{e.Fname}
	}
	return nil
}

// Manifest is the durable description of a trip.
type Manifest struct {
	Sensors      []string               `json:"sensors"`
	Processors   []string               `json:"processors"`
	Series       map[string]SeriesEntry `json:"series"`
	TimeInterval *[2]float64            `json:"time_interval,omitempty"`
}

func newManifest() Manifest {
	return Manifest{
		Sensors:    []string{},
		Processors: []string{},
		Series:     make(map[string]SeriesEntry),
	}
}

// clone returns a deep copy of m.
func (m Manifest) clone() Manifest {
	out := Manifest{
		Sensors:    append([]string{}, m.Sensors...),
		Processors: append([]string{}, m.Processors...),
		Series:     make(map[string]SeriesEntry, len(m.Series)),
	}
	for name, e := range m.Series {
		e.Files = append([]string(nil), e.Files...)
		out.Series[name] = e
	}
	if m.TimeInterval != nil {
		ti := *m.TimeInterval
		out.TimeInterval = &ti
	}
	return out
}

// seriesNames returns the manifest's series names, sorted.
func (m Manifest) seriesNames() []string {
	names := make([]string, 0, len(m.Series))
	for name := range m.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// readManifest loads the manifest of the trip at t.path.
func (t *Trip) readManifest() (Manifest, error) {
	data, err := t.fs.ReadFile(t.Join(ConfigName))
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	m := newManifest()
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest %s: %w", t.Join(ConfigName), err)
	}
	if m.Series == nil {
		m.Series = make(map[string]SeriesEntry)
	}
	return m, nil
}

// writeManifestLocked persists t.manifest. The new manifest is written next
// to the old one and renamed over it, so readers see either version whole.
// t.mu must be held.
func (t *Trip) writeManifestLocked() error {
	data, err := json.MarshalIndent(t.manifest, "", " ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	final := t.Join(ConfigName)
	tmp := final + ".tmp"
	if err := t.fs.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := t.fs.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
