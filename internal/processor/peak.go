package processor

import (
	"errors"
	"fmt"
	"sync"
)

// Peak tracks the fastest input sample. It publishes <name>.speed each time a
// new maximum is seen and <name>.max once on Close, stamped with the last
// input timestamp.
//
// Config keys: input (default radar.speed).
type Peak struct {
	subs   subscriptions
	name   string
	target Target

	mu     sync.Mutex
	seen   bool
	max    float64
	lastTS float64
	closed bool
}

// NewPeak subscribes to the input series.
func NewPeak(target Target, deps Deps) (Processor, error) {
	p := &Peak{subs: subscriptions{target: target}, name: deps.Name, target: target}
	p.subs.subscribe(deps.Settings.GetString("input", "radar.speed"), p.handle)
	return p, nil
}

func (p *Peak) handle(ts float64, value any) error {
	v, err := toFloat(value)
	if err != nil {
		return fmt.Errorf("peak: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastTS = ts
	if p.seen && v <= p.max {
		return nil
	}
	p.seen = true
	p.max = v
	return p.target.Publish(p.name+".speed", ts, v)
}

func (p *Peak) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.subs.unsubscribeAll()
	if p.seen {
		err = errors.Join(err, p.target.Publish(p.name+".max", p.lastTS, p.max))
	}
	return err
}
