// Package bus provides the in-process publisher that routes samples from
// sensors to processors, keyed by series name.
package bus

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotSubscribed is returned when unsubscribing a registration that is not
// (or is no longer) present.
var ErrNotSubscribed = errors.New("handler is not subscribed")

// Handler receives one sample of a series.
type Handler func(ts float64, value any) error

// Subscription identifies one registration made with Subscribe.
type Subscription struct {
	name string
	id   uint64
}

// Name returns the series name the subscription is registered for.
func (s Subscription) Name() string { return s.name }

type entry struct {
	id uint64
	h  Handler
}

// Publisher delivers samples to the handlers subscribed to a series name, in
// subscription order, on the caller's goroutine.
type Publisher struct {
	mu     sync.RWMutex
	subs   map[string][]entry
	nextID uint64
}

// NewPublisher returns an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[string][]entry)}
}

// Subscribe registers h for name. The same handler may be registered more
// than once; each registration gets its own Subscription.
func (p *Publisher) Subscribe(name string, h Handler) Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	// Copy on write: Fire iterates slices without holding the lock.
	list := make([]entry, len(p.subs[name]), len(p.subs[name])+1)
	copy(list, p.subs[name])
	p.subs[name] = append(list, entry{id: p.nextID, h: h})
	return Subscription{name: name, id: p.nextID}
}

// Unsubscribe removes the registration identified by s.
func (p *Publisher) Unsubscribe(s Subscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.subs[s.name]
	for i, e := range list {
		if e.id != s.id {
			continue
		}
		if len(list) == 1 {
			delete(p.subs, s.name)
			return nil
		}
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		p.subs[s.name] = append(next, list[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotSubscribed, s.name)
}

// Fire calls every handler registered for name with (ts, value). Handlers that
// fire other series are served depth-first before Fire continues. The first
// handler error stops delivery and is returned.
func (p *Publisher) Fire(name string, ts float64, value any) error {
	p.mu.RLock()
	list := p.subs[name]
	p.mu.RUnlock()

	for _, e := range list {
		if err := e.h(ts, value); err != nil {
			return fmt.Errorf("handler for %s: %w", name, err)
		}
	}
	return nil
}

// Subscribers reports how many handlers are registered for name.
func (p *Publisher) Subscribers(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs[name])
}
