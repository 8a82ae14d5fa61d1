// Package codec provides the series codecs ("loggers") that persist one
// named stream of timestamped samples, and the registry that selects them
// either from a sample's value kind or from a recorded codec name.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/carhack/internal/fsutil"
)

// Built-in codec names as they appear in a trip manifest.
const (
	Float    = "float"
	Int      = "int"
	Bool     = "bool"
	Text     = "text"
	JSON     = "json"
	BlobS2   = "blob-s2"
	BlobZstd = "blob-zstd"
	BlobLZ4  = "blob-lz4"
)

var (
	ErrUnknownCodec     = errors.New("unknown codec")
	ErrUnsupportedValue = errors.New("unsupported sample value")
	ErrValueType        = errors.New("value does not match series codec")
	ErrCorrupt          = errors.New("corrupt series record")
	ErrClosed           = errors.New("series is closed")
	ErrReadOnly         = errors.New("series is read-only")
)

// Sample is one recorded value.
type Sample struct {
	Timestamp float64
	Value     any
}

// Descriptor is the manifest projection of an open series.
type Descriptor struct {
	LoggerName string   `json:"logger_name"`
	Fname      string   `json:"fname"`
	Files      []string `json:"files"`
}

// Series is an append-only, randomly readable stream of samples backed by
// one or more files relative to a trip directory.
type Series interface {
	// Open binds the series to relFile under basePath, creating it if absent
	// and indexing any records already present.
	Open(fsys fsutil.FileSystem, basePath, relFile string) error
	// OpenReadOnly indexes the intact records of an existing file without
	// modifying it. Append fails with ErrReadOnly.
	OpenReadOnly(fsys fsutil.FileSystem, basePath, relFile string) error
	Append(ts float64, value any) error
	Close() error
	Manifest() Descriptor
	Len() int
	At(i int) (Sample, error)
}

// Constructor returns a new, unopened series.
type Constructor func() Series

// Registry maps codec names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns a registry holding the built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	for _, vc := range builtinValueCodecs() {
		r.ctors[vc.name()] = func() Series { return newRecordLog(vc) }
	}
	return r
}

// Register adds a codec. Registering an existing name is an error.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return fmt.Errorf("codec registration requires a name and constructor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctors[name]; ok {
		return fmt.Errorf("codec %q is already registered", name)
	}
	r.ctors[name] = ctor
	return nil
}

// ByName returns the constructor recorded under name.
func (r *Registry) ByName(name string) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return ctor, nil
}

// Guess picks the codec for the first sample of a series from the value's
// kind.
func (r *Registry) Guess(series string, value any) (Constructor, error) {
	name, ok := Kind(value)
	if !ok {
		return nil, fmt.Errorf("%w: series %s has value of type %T", ErrUnsupportedValue, series, value)
	}
	return r.ByName(name)
}

// Names returns the registered codec names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kind returns the built-in codec name for a value's dynamic type.
func Kind(value any) (string, bool) {
	switch value.(type) {
	case float64, float32:
		return Float, true
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return Int, true
	case bool:
		return Bool, true
	case string:
		return Text, true
	case map[string]any, []any, jsonRaw:
		return JSON, true
	case []byte:
		return BlobS2, true
	}
	return "", false
}
