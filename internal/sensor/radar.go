package sensor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/banshee-data/carhack/internal/config"
	"github.com/banshee-data/carhack/internal/serialmux"
)

// Radar reads a doppler radar on a serial port and publishes
//
//	<name>.speed      float, m/s
//	<name>.magnitude  float
//	<name>.uptime     float, device seconds (when reported)
//	<name>.object     json, detected object summaries
//	<name>.config     json, device configuration echoes
//
// Config keys: port (required), baud_rate, data_bits, stop_bits, parity and
// initialize ("true" sends the device setup commands on Start).
type Radar struct {
	deps       Deps
	mux        serialmux.SerialMuxInterface
	initialize bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
	dropped int
}

// NewRadar opens the configured serial port.
func NewRadar(cfg config.Settings, deps Deps) (Sensor, error) {
	path := cfg.GetString("port", "")
	if path == "" {
		return nil, fmt.Errorf("port is required")
	}
	opts, err := serialmux.PortOptions{
		BaudRate: cfg.GetInt("baud_rate", 0),
		DataBits: cfg.GetInt("data_bits", 0),
		StopBits: cfg.GetInt("stop_bits", 0),
		Parity:   cfg.GetString("parity", ""),
	}.Normalize()
	if err != nil {
		return nil, err
	}
	initialize, _ := strconv.ParseBool(cfg.GetString("initialize", "false"))

	port, err := deps.OpenSerial(path, opts)
	if err != nil {
		return nil, err
	}
	deps.Logf("radar %s: opened %s at %d baud", deps.Name, path, opts.BaudRate)
	return &Radar{
		deps:       deps,
		mux:        serialmux.NewSerialMux(port),
		initialize: initialize,
	}, nil
}

func (r *Radar) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("radar %s is closed", r.deps.Name)
	}
	if r.cancel != nil {
		return fmt.Errorf("radar %s already started", r.deps.Name)
	}

	if r.initialize {
		if err := r.mux.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize radar: %w", err)
		}
	}

	ctx, r.cancel = context.WithCancel(ctx)
	_, lines := r.mux.Subscribe()

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		if err := r.mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.deps.Logf("radar %s: monitor stopped: %v", r.deps.Name, err)
		}
	}()
	go func() {
		defer r.wg.Done()
		for line := range lines {
			r.handle(line)
		}
	}()
	return nil
}

func (r *Radar) handle(line string) {
	ev, err := serialmux.ParseEvent(line)
	if err != nil {
		r.deps.Logf("radar %s: skipping line: %v", r.deps.Name, err)
		return
	}

	ts := r.deps.now()
	name := r.deps.Name
	switch ev.Type {
	case serialmux.EventTypeRawData:
		r.publish(name+".speed", ts, ev.Reading.Speed)
		r.publish(name+".magnitude", ts, ev.Reading.Magnitude)
		if ev.Reading.Uptime != 0 {
			r.publish(name+".uptime", ts, ev.Reading.Uptime)
		}
	case serialmux.EventTypeRadarObject:
		r.publish(name+".object", ts, ev.Fields)
	case serialmux.EventTypeConfig:
		r.publish(name+".config", ts, ev.Fields)
	}
}

func (r *Radar) publish(series string, ts float64, value any) {
	if err := r.deps.Target.Publish(series, ts, value); err != nil {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.deps.Logf("radar %s: publish %s failed: %v", r.deps.Name, series, err)
	}
}

// Dropped reports how many samples failed to publish.
func (r *Radar) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops reading and closes the port. Samples are no longer published
// once it returns.
func (r *Radar) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := r.mux.Close()
	r.wg.Wait()
	return err
}
