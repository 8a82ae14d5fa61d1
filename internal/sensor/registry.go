// Package sensor holds the registry of sample sources a live trip can run and
// the built-in sensors.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/carhack/internal/config"
	"github.com/banshee-data/carhack/internal/monitoring"
	"github.com/banshee-data/carhack/internal/serialmux"
	"github.com/banshee-data/carhack/internal/timeutil"
)

// ErrUnknownSensor is returned by Registry.Get for an unregistered name.
var ErrUnknownSensor = errors.New("unknown sensor")

// Target receives samples. Series names must start with "<sensor name>.".
type Target interface {
	Publish(name string, ts float64, value any) error
}

// Sensor is a running sample source. Start must not block; samples are
// published from the sensor's own goroutines until Close returns.
type Sensor interface {
	Start(ctx context.Context) error
	Close() error
}

// Deps is everything a sensor gets from the trip that runs it.
type Deps struct {
	// Name is the configured sensor name and the namespace of its series.
	Name       string
	Target     Target
	Logf       monitoring.Logf
	Clock      timeutil.Clock
	OpenSerial serialmux.SerialPortOpener
}

func (d Deps) withDefaults() Deps {
	d.Logf = monitoring.OrDefault(d.Logf)
	if d.Clock == nil {
		d.Clock = timeutil.RealClock{}
	}
	if d.OpenSerial == nil {
		d.OpenSerial = serialmux.OpenPort
	}
	return d
}

// now returns the current clock time in seconds.
func (d Deps) now() float64 {
	return timeutil.Seconds(d.Clock.Now())
}

// Factory builds a sensor from its configuration block.
type Factory func(cfg config.Settings, deps Deps) (Sensor, error)

// Registry maps sensor names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Builtin returns a registry holding the sensors shipped with carhack.
func Builtin() *Registry {
	r := NewRegistry()
	r.MustRegister("radar", NewRadar)
	r.MustRegister("synthetic", NewSynthetic)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("sensor name cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("sensor %s: factory cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("sensor %s already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Get returns the factory registered under name.
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSensor, name)
	}
	return f, nil
}

// New builds the sensor registered under name.
func (r *Registry) New(name string, cfg config.Settings, deps Deps) (Sensor, error) {
	f, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	deps.Name = name
	s, err := f(cfg, deps.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("sensor %s: %w", name, err)
	}
	return s, nil
}

// Names returns the registered sensor names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
