// Package processor holds the registry of derived-metric processors and the
// built-in processors. A processor subscribes to series on its target and
// publishes derived series under its own name.
package processor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/carhack/internal/bus"
	"github.com/banshee-data/carhack/internal/config"
	"github.com/banshee-data/carhack/internal/monitoring"
)

// ErrUnknownProcessor is returned by Registry.Get for an unregistered name.
var ErrUnknownProcessor = errors.New("unknown processor")

// Target is the trip a processor runs against, live or during recompute.
type Target interface {
	Publish(name string, ts float64, value any) error
	Subscribe(name string, h bus.Handler) bus.Subscription
	Unsubscribe(s bus.Subscription) error
}

// Processor is a running processor. Close may publish trailing values before
// it returns.
type Processor interface {
	Close() error
}

// Deps carries the processor's name, logger and configuration block.
type Deps struct {
	// Name is the configured processor name and the namespace of its series.
	Name     string
	Logf     monitoring.Logf
	Settings config.Settings
}

// Factory builds a processor and subscribes it to target.
type Factory func(target Target, deps Deps) (Processor, error)

// Registry maps processor names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Builtin returns a registry holding the processors shipped with carhack.
func Builtin() *Registry {
	r := NewRegistry()
	r.MustRegister("units", NewUnits)
	r.MustRegister("smooth", NewSmooth)
	r.MustRegister("peak", NewPeak)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("processor name cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("processor %s: factory cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("processor %s already registered", name)
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
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	return f, nil
}

// New builds the processor registered under name against target.
func (r *Registry) New(name string, target Target, deps Deps) (Processor, error) {
	f, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	deps.Name = name
	deps.Logf = monitoring.OrDefault(deps.Logf)
	if deps.Settings == nil {
		deps.Settings = config.Settings{}
	}
	p, err := f(target, deps)
	if err != nil {
		return nil, fmt.Errorf("processor %s: %w", name, err)
	}
	return p, nil
}

// Names returns the registered processor names, sorted.
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

// subscriptions tracks what a processor subscribed to so Close can undo it.
type subscriptions struct {
	target Target
	subs   []bus.Subscription
}

func (s *subscriptions) subscribe(name string, h bus.Handler) {
	s.subs = append(s.subs, s.target.Subscribe(name, h))
}

func (s *subscriptions) unsubscribeAll() error {
	var errs []error
	for _, sub := range s.subs {
		if err := s.target.Unsubscribe(sub); err != nil {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}

// toFloat accepts the numeric kinds the float and int codecs produce.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
