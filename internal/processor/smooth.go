package processor

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Smooth publishes <name>.speed, the mean of the last window input samples.
// Nothing is published until the window has filled.
//
// Config keys: input (default radar.speed) and window (default 5).
type Smooth struct {
	subs   subscriptions
	name   string
	target Target

	mu     sync.Mutex
	window []float64
	next   int
	filled bool
}

// NewSmooth subscribes to the input series.
func NewSmooth(target Target, deps Deps) (Processor, error) {
	n := deps.Settings.GetInt("window", 5)
	if n < 1 {
		return nil, fmt.Errorf("window must be at least 1, got %d", n)
	}
	p := &Smooth{
		subs:   subscriptions{target: target},
		name:   deps.Name,
		target: target,
		window: make([]float64, n),
	}
	p.subs.subscribe(deps.Settings.GetString("input", "radar.speed"), p.handle)
	return p, nil
}

func (p *Smooth) handle(ts float64, value any) error {
	v, err := toFloat(value)
	if err != nil {
		return fmt.Errorf("smooth: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window[p.next] = v
	p.next = (p.next + 1) % len(p.window)
	if p.next == 0 {
		p.filled = true
	}
	if !p.filled {
		return nil
	}
	return p.target.Publish(p.name+".speed", ts, stat.Mean(p.window, nil))
}

func (p *Smooth) Close() error {
	return p.subs.unsubscribeAll()
}
