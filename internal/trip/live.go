package trip

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/carhack/internal/bus"
	"github.com/banshee-data/carhack/internal/monitoring"
	"github.com/banshee-data/carhack/internal/processor"
	"github.com/banshee-data/carhack/internal/sensor"
	"github.com/banshee-data/carhack/internal/timeutil"
)

// LiveTrip records samples from running sensors. Every published sample is
// persisted and then fanned out to the processors subscribed to it.
type LiveTrip struct {
	*Trip
	bus *bus.Publisher

	sensorNames    []string
	sensorInst     map[string]sensor.Sensor
	processorNames []string
	processorInst  map[string]processor.Processor

	closing atomic.Bool
	closed  atomic.Bool
}

// NewLiveTrip creates the trip directory if needed, builds the enabled
// sensors and processors, writes the manifest and starts the sensors. ctx
// bounds the sensors' lifetime; Close stops them either way.
func NewLiveTrip(ctx context.Context, tid, dir string, opts Options) (*LiveTrip, error) {
	lt := &LiveTrip{
		Trip:          newTrip(tid, dir, opts),
		bus:           bus.NewPublisher(),
		sensorInst:    make(map[string]sensor.Sensor),
		processorInst: make(map[string]processor.Processor),
	}
	if err := lt.open(ctx); err != nil {
		if cerr := lt.teardown(); cerr != nil {
			lt.logf("trip %s: cleanup after failed open: %v", tid, cerr)
		}
		return nil, err
	}
	return lt, nil
}

func (lt *LiveTrip) open(ctx context.Context) error {
	cfg, err := lt.opts.tripConfig()
	if err != nil {
		return err
	}
	codecs := cfg.CodecOverrides()
	for series, name := range codecs {
		if _, err := lt.opts.Codecs.ByName(name); err != nil {
			return fmt.Errorf("codec for series %s: %w", series, err)
		}
	}
	lt.mu.Lock()
	lt.codecs = codecs
	lt.mu.Unlock()
	if err := lt.fs.MkdirAll(lt.Join(), 0755); err != nil {
		return fmt.Errorf("failed to create trip directory: %w", err)
	}
	lt.logf("trip %s: starting live trip in %s", lt.tid, lt.path)

	lt.mu.Lock()
	lt.tsStart = timeutil.Seconds(lt.opts.Clock.Now())
	lt.mu.Unlock()

	if err := lt.fs.MkdirAll(lt.Join(Primary), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", Primary, err)
	}
	lt.sensorNames = cfg.EnabledSensors()
	lt.mu.Lock()
	lt.sensors = nameSet(lt.sensorNames)
	lt.manifest.Sensors = append([]string{}, lt.sensorNames...)
	lt.mu.Unlock()
	for _, name := range lt.sensorNames {
		lt.logf("trip %s: loading sensor %s", lt.tid, name)
		s, err := lt.opts.Sensors.New(name, cfg.SensorSettings(name), sensor.Deps{
			Target:     lt,
			Logf:       lt.logf,
			Clock:      lt.opts.Clock,
			OpenSerial: lt.opts.OpenSerial,
		})
		if err != nil {
			return err
		}
		lt.sensorInst[name] = s
	}

	if err := lt.fs.MkdirAll(lt.Join(Secondary), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", Secondary, err)
	}
	lt.processorNames = cfg.EnabledProcessors()
	lt.mu.Lock()
	lt.processors = nameSet(lt.processorNames)
	lt.manifest.Processors = append([]string{}, lt.processorNames...)
	lt.mu.Unlock()
	for _, name := range lt.processorNames {
		lt.logf("trip %s: loading processor %s", lt.tid, name)
		p, err := lt.opts.Processors.New(name, lt, processor.Deps{
			Logf:     monitoring.Prefixed(lt.logf, name+": "),
			Settings: cfg.ProcessorSettings(name),
		})
		if err != nil {
			return err
		}
		lt.processorInst[name] = p
	}

	lt.mu.Lock()
	err = lt.writeManifestLocked()
	lt.mu.Unlock()
	if err != nil {
		return err
	}

	for _, name := range lt.sensorNames {
		if err := lt.sensorInst[name].Start(ctx); err != nil {
			return fmt.Errorf("failed to start sensor %s: %w", name, err)
		}
	}
	return nil
}

// Live reports true.
func (lt *LiveTrip) Live() bool { return true }

// Summary returns the reporting view of the trip.
func (lt *LiveTrip) Summary() Summary { return lt.summary(true) }

// Publish persists a sample and then delivers it to subscribers. A
// subscriber reading the series from its handler sees the sample.
func (lt *LiveTrip) Publish(name string, ts float64, value any) error {
	if lt.closed.Load() {
		return ErrClosed
	}
	if err := lt.WriteSeries(name, ts, value); err != nil {
		return err
	}
	return lt.bus.Fire(name, ts, value)
}

// Subscribe registers h for samples of the named series.
func (lt *LiveTrip) Subscribe(name string, h bus.Handler) bus.Subscription {
	return lt.bus.Subscribe(name, h)
}

// Unsubscribe removes a registration made with Subscribe.
func (lt *LiveTrip) Unsubscribe(s bus.Subscription) error {
	return lt.bus.Unsubscribe(s)
}

// Close finalizes the trip: it records ts_end, writes the manifest, then
// closes the sensors, the processors and the series in that order. Processors
// may still publish while they close. A second Close returns ErrClosed.
func (lt *LiveTrip) Close() error {
	if !lt.closing.CompareAndSwap(false, true) {
		return ErrClosed
	}
	lt.logf("trip %s: closing", lt.tid)

	lt.mu.Lock()
	lt.tsEnd = timeutil.Seconds(lt.opts.Clock.Now())
	lt.manifest.TimeInterval = &[2]float64{lt.tsStart, lt.tsEnd}
	err := lt.writeManifestLocked()
	lt.mu.Unlock()

	return errors.Join(err, lt.teardown())
}

// teardown closes sensors, processors and series. The manifest is written
// again at the end so series created while processors closed are listed.
func (lt *LiveTrip) teardown() error {
	lt.closing.Store(true)
	var errs []error
	for _, name := range lt.sensorNames {
		s, ok := lt.sensorInst[name]
		if !ok {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sensor %s: %w", name, err))
		}
	}
	for _, name := range lt.processorNames {
		p, ok := lt.processorInst[name]
		if !ok {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close processor %s: %w", name, err))
		}
	}
	lt.closed.Store(true)

	lt.mu.Lock()
	defer lt.mu.Unlock()
	errs = append(errs, lt.closeSeriesLocked())
	lt.sealed = true
	if lt.fs.Exists(lt.Join(ConfigName)) {
		errs = append(errs, lt.writeManifestLocked())
	}
	return errors.Join(errs...)
}
