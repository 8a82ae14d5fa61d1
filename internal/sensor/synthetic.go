package sensor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/carhack/internal/config"
	"github.com/banshee-data/carhack/internal/timeutil"
)

// Synthetic publishes <name>.speed on a clock ticker, following a sine wave
// between 0 and amplitude m/s. It stands in for the radar on a bench.
//
// Config keys: interval (duration, default 100ms), amplitude (default 20),
// period (duration, default 30s).
type Synthetic struct {
	deps      Deps
	interval  time.Duration
	amplitude float64
	period    time.Duration

	mu     sync.Mutex
	ticker timeutil.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewSynthetic validates the configuration.
func NewSynthetic(cfg config.Settings, deps Deps) (Sensor, error) {
	s := &Synthetic{
		deps:      deps,
		interval:  cfg.GetDuration("interval", 100*time.Millisecond),
		amplitude: cfg.GetFloat("amplitude", 20),
		period:    cfg.GetDuration("period", 30*time.Second),
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", s.interval)
	}
	if s.period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %s", s.period)
	}
	return s, nil
}

// Speed returns the synthetic speed at time t.
func (s *Synthetic) Speed(t time.Time) float64 {
	phase := 2 * math.Pi * timeutil.Seconds(t) / s.period.Seconds()
	return s.amplitude * (1 - math.Cos(phase)) / 2
}

func (s *Synthetic) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("synthetic %s is closed", s.deps.Name)
	}
	if s.cancel != nil {
		return fmt.Errorf("synthetic %s already started", s.deps.Name)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.ticker = s.deps.Clock.NewTicker(s.interval)
	series := s.deps.Name + ".speed"

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-s.ticker.C():
				if err := s.deps.Target.Publish(series, timeutil.Seconds(now), s.Speed(now)); err != nil {
					s.deps.Logf("synthetic %s: publish failed: %v", s.deps.Name, err)
				}
			}
		}
	}()
	return nil
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, ticker := s.cancel, s.ticker
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	ticker.Stop()
	s.wg.Wait()
	return nil
}
