// Package trip records sensor samples into per-series files and recomputes
// derived series from recorded data.
//
// A trip directory holds
//
//	primary/<series>.dat    samples published by sensors
//	secondary/<series>.dat  samples published by processors
//	LOG_CONFIG              the manifest
//
// LiveTrip records from running sensors. LoggedTrip reopens a finished trip
// and can regenerate its secondary series with Recalculate.
package trip

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/carhack/internal/codec"
	"github.com/banshee-data/carhack/internal/config"
	"github.com/banshee-data/carhack/internal/fsutil"
	"github.com/banshee-data/carhack/internal/monitoring"
	"github.com/banshee-data/carhack/internal/processor"
	"github.com/banshee-data/carhack/internal/replay"
	"github.com/banshee-data/carhack/internal/sensor"
	"github.com/banshee-data/carhack/internal/serialmux"
	"github.com/banshee-data/carhack/internal/timeutil"
)

// Options configures a trip. Zero values get working defaults, except Config
// which live trips and Recalculate require.
type Options struct {
	// Name is the display name; it defaults to the trip ID.
	Name string

	Config     config.Provider
	FS         fsutil.FileSystem
	Clock      timeutil.Clock
	Logf       monitoring.Logf
	Codecs     *codec.Registry
	Sensors    *sensor.Registry
	Processors *processor.Registry

	// OpenSerial is handed to sensors that open serial ports.
	OpenSerial serialmux.SerialPortOpener
}

func (o Options) withDefaults() Options {
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	o.Logf = monitoring.OrDefault(o.Logf)
	if o.Codecs == nil {
		o.Codecs = codec.NewRegistry()
	}
	if o.Sensors == nil {
		o.Sensors = sensor.Builtin()
	}
	if o.Processors == nil {
		o.Processors = processor.Builtin()
	}
	return o
}

func (o Options) tripConfig() (*config.TripConfig, error) {
	if o.Config == nil {
		return nil, fmt.Errorf("no configuration provider")
	}
	cfg, err := o.Config.TripConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load trip configuration: %w", err)
	}
	return cfg, nil
}

// NewID returns a new time-ordered trip ID.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NormPath converts Windows separators to forward slashes.
func NormPath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// IsTripDir reports whether dir holds a trip manifest.
func IsTripDir(fsys fsutil.FileSystem, dir string) bool {
	info, err := fsys.Stat(filepath.Join(dir, ConfigName))
	return err == nil && !info.IsDir()
}

// Summary is the reporting view of a trip.
type Summary struct {
	TID        string   `json:"tid"`
	Name       string   `json:"name"`
	Live       bool     `json:"live"`
	TSStart    float64  `json:"ts_start"`
	TSEnd      float64  `json:"ts_end"`
	Sensors    []string `json:"sensors"`
	Processors []string `json:"processors"`
	Series     []string `json:"series"`
}

// Trip is the state shared by live and logged trips: identity, the active
// sensor and processor names, the open series and the manifest.
type Trip struct {
	tid  string
	path string
	name string
	opts Options
	fs   fsutil.FileSystem
	logf monitoring.Logf

	mu         sync.Mutex
	tsStart    float64
	tsEnd      float64
	sensors    map[string]bool
	processors map[string]bool
	series     map[string]codec.Series
	manifest   Manifest
	sealed     bool

	// codecs pins series names to codec names ahead of Guess.
	codecs map[string]string
	// logged trips load series read-only and never write primary series.
	logged bool
}

func newTrip(tid, dir string, opts Options) *Trip {
	opts = opts.withDefaults()
	name := opts.Name
	if name == "" {
		name = tid
	}
	return &Trip{
		tid:        tid,
		path:       NormPath(dir),
		name:       name,
		opts:       opts,
		fs:         opts.FS,
		logf:       opts.Logf,
		sensors:    make(map[string]bool),
		processors: make(map[string]bool),
		series:     make(map[string]codec.Series),
		manifest:   newManifest(),
	}
}

// TID returns the trip ID.
func (t *Trip) TID() string { return t.tid }

// Path returns the trip directory.
func (t *Trip) Path() string { return t.path }

// Name returns the display name.
func (t *Trip) Name() string { return t.name }

// Join returns the path of parts relative to the trip directory.
func (t *Trip) Join(parts ...string) string {
	elems := make([]string, 0, len(parts)+1)
	elems = append(elems, filepath.FromSlash(t.path))
	for _, p := range parts {
		elems = append(elems, filepath.FromSlash(NormPath(p)))
	}
	return filepath.Join(elems...)
}

// TimeInterval returns ts_start and ts_end in seconds. ts_end is zero until a
// live trip is closed.
func (t *Trip) TimeInterval() (float64, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tsStart, t.tsEnd
}

// Manifest returns a copy of the current manifest.
func (t *Trip) Manifest() Manifest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manifest.clone()
}

// Series returns the open series called name.
func (t *Trip) Series(name string) (codec.Series, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.series[name]
	return s, ok
}

// SeriesNames returns the names of the open series, sorted.
func (t *Trip) SeriesNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedKeys(t.series)
}

// Readers returns the open series as merge reader inputs.
func (t *Trip) Readers() map[string]replay.Reader {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]replay.Reader, len(t.series))
	for name, s := range t.series {
		out[name] = s
	}
	return out
}

func (t *Trip) summary(live bool) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		TID:        t.tid,
		Name:       t.name,
		Live:       live,
		TSStart:    t.tsStart,
		TSEnd:      t.tsEnd,
		Sensors:    sortedKeys(t.sensors),
		Processors: sortedKeys(t.processors),
		Series:     sortedKeys(t.series),
	}
}

// WriteSeries appends (ts, value) to the series called name, creating it on
// first write. The series is primary when its namespace (the part of the name
// before the first dot) is an active sensor and secondary when it is an
// active processor; any other namespace fails with ErrUnknownNamespace and
// creates nothing. Logged trips reject primary series with ErrPrimaryReadOnly.
func (t *Trip) WriteSeries(name string, ts float64, value any) error {
	t.mu.Lock()
	if t.sealed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.logged && t.isPrimaryLocked(name) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPrimaryReadOnly, name)
	}
	s, ok := t.series[name]
	if !ok {
		var err error
		if s, err = t.createSeriesLocked(name, value); err != nil {
			t.mu.Unlock()
			return err
		}
	}
	t.mu.Unlock()

	return s.Append(ts, value)
}

func (t *Trip) createSeriesLocked(name string, value any) (codec.Series, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeriesName, name)
	}
	ns, _, _ := strings.Cut(name, ".")

	var seriesType string
	switch {
	case t.sensors[ns]:
		seriesType = Primary
	case t.processors[ns]:
		seriesType = Secondary
	default:
		return nil, fmt.Errorf("%w: %s (namespace %q)", ErrUnknownNamespace, name, ns)
	}

	ctor, err := t.codecForLocked(name, value)
	if err != nil {
		return nil, err
	}
	s := ctor()
	fname := path.Join(seriesType, name+".dat")
	if err := s.Open(t.fs, t.path, fname); err != nil {
		return nil, fmt.Errorf("failed to create series %s: %w", name, err)
	}

	t.series[name] = s
	d := s.Manifest()
	t.manifest.Series[name] = SeriesEntry{
		LoggerName: d.LoggerName,
		Fname:      NormPath(d.Fname),
		Files:      d.Files,
		SeriesType: seriesType,
	}
	return s, nil
}

func (t *Trip) codecForLocked(name string, value any) (codec.Constructor, error) {
	if codecName, ok := t.codecs[name]; ok {
		ctor, err := t.opts.Codecs.ByName(codecName)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", name, err)
		}
		return ctor, nil
	}
	return t.opts.Codecs.Guess(name, value)
}

// isPrimaryLocked reports whether name is, or would be created as, a primary
// series.
func (t *Trip) isPrimaryLocked(name string) bool {
	if entry, ok := t.manifest.Series[name]; ok {
		return entry.SeriesType == Primary
	}
	ns, _, _ := strings.Cut(name, ".")
	return t.sensors[ns]
}

// loadSeriesLocked opens every series listed in the manifest read-only.
// Series with a missing backing file are skipped; a torn tail is skipped but
// left on disk.
func (t *Trip) loadSeriesLocked() error {
	t.sensors = nameSet(t.manifest.Sensors)
	t.processors = nameSet(t.manifest.Processors)
	t.series = make(map[string]codec.Series)

	for _, name := range t.manifest.seriesNames() {
		entry := t.manifest.Series[name]
		ctor, err := t.opts.Codecs.ByName(entry.LoggerName)
		if err != nil {
			t.logf("trip %s: %v - skipping series %s", t.tid, err, name)
			continue
		}

		missing := ""
		for _, f := range entry.files() {
			if !t.fs.Exists(t.Join(f)) {
				missing = f
				break
			}
		}
		if missing != "" {
			t.logf("trip %s: missing backing file %s - skipping series %s", t.tid, missing, name)
			continue
		}

		s := ctor()
		if err := s.OpenReadOnly(t.fs, t.path, NormPath(entry.Fname)); err != nil {
			t.closeSeriesLocked()
			return fmt.Errorf("failed to open series %s: %w", name, err)
		}
		if d, ok := s.(interface{ Dropped() int64 }); ok && d.Dropped() > 0 {
			t.logf("trip %s: skipping %d bytes of torn tail in series %s", t.tid, d.Dropped(), name)
		}
		t.series[name] = s
	}
	return nil
}

// closeSeriesLocked closes and forgets every open series.
func (t *Trip) closeSeriesLocked() error {
	var errs []error
	for _, name := range sortedKeys(t.series) {
		if err := t.series[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close series %s: %w", name, err))
		}
	}
	t.series = make(map[string]codec.Series)
	return errors.Join(errs...)
}

func nameSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
